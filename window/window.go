// Package window wraps a GLFW window as the surface provider of the frame
// loop, or as the context of the OpenGL fallback.
package window

import (
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/vulkan"
)

func init() {
	// GLFW must run on the main thread.
	runtime.LockOSThread()
}

// API selects the client API the window is created for.
type API int

const (
	APIVulkan API = iota
	APIOpenGL
)

type Window struct {
	Handle *glfw.Window
	Title  string
	api    API

	mu        sync.Mutex
	surface   vulkan.Surface
	extent    vulkan.Extent2D
	callbacks []func(vulkan.Extent2D)
}

// New initializes GLFW and opens a window. For APIOpenGL it creates a 4.1
// core context and makes it current.
func New(cfg core.WindowConfig, api API) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize GLFW")
	}

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Resizable, boolToInt(cfg.Resizable))
	switch api {
	case APIVulkan:
		if !glfw.VulkanSupported() {
			glfw.Terminate()
			return nil, errors.New("GLFW reports no Vulkan loader")
		}
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	case APIOpenGL:
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	}

	handle, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	w := &Window{Handle: handle, Title: cfg.Title, api: api}
	fw, fh := handle.GetFramebufferSize()
	w.extent = vulkan.Extent2D{Width: uint32(fw), Height: uint32(fh)}

	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(vulkan.Extent2D{Width: uint32(width), Height: uint32(height)})
	})
	if api == APIOpenGL {
		handle.MakeContextCurrent()
		glfw.SwapInterval(1)
	}
	core.Logger().Info("window created", "title", cfg.Title, "width", fw, "height", fh, "api", api)
	return w, nil
}

func (w *Window) resized(e vulkan.Extent2D) {
	w.mu.Lock()
	w.extent = e
	callbacks := append([]func(vulkan.Extent2D)(nil), w.callbacks...)
	w.mu.Unlock()

	// A minimized window reports 0x0; there is nothing to rebuild for.
	if e.Width == 0 || e.Height == 0 {
		return
	}
	for _, cb := range callbacks {
		cb(e)
	}
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) SetShouldClose(v bool) {
	w.Handle.SetShouldClose(v)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents processes events, sleeping up to timeout when there are none.
func (w *Window) WaitEvents(timeout time.Duration) {
	glfw.WaitEventsTimeout(timeout.Seconds())
}

// SwapBuffers presents the OpenGL back buffer. Vulkan windows present
// through the swapchain.
func (w *Window) SwapBuffers() {
	if w.api == APIOpenGL {
		w.Handle.SwapBuffers()
	}
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) IsKeyPressed(key glfw.Key) bool {
	return w.Handle.GetKey(key) == glfw.Press
}

// SetKeyCallback calls fn for every key press.
func (w *Window) SetKeyCallback(fn func(key glfw.Key)) {
	w.Handle.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Press {
			fn(key)
		}
	})
}

// VulkanProcAddr returns vkGetInstanceProcAddr as resolved by GLFW.
func (w *Window) VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// RequiredInstanceExtensions returns the instance extensions the window
// surface needs.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.Handle.GetRequiredInstanceExtensions()
}

// CreateWindowSurface creates a VkSurfaceKHR for instance, which must be a
// VkInstance handle.
func (w *Window) CreateWindowSurface(instance any) (uintptr, error) {
	surface, err := w.Handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create window surface")
	}
	return surface, nil
}

// SetSurface records the device's handle for the surface created with
// CreateWindowSurface.
func (w *Window) SetSurface(s vulkan.Surface) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.surface = s
}

func (w *Window) Surface() vulkan.Surface {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.surface
}

func (w *Window) DrawableExtent() vulkan.Extent2D {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.extent
}

// OnResize registers fn to run on the main thread whenever the
// framebuffer size changes to a non-zero extent.
func (w *Window) OnResize(fn func(vulkan.Extent2D)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// WaitWhileMinimized blocks in event processing until the framebuffer has
// a non-zero size or the window is asked to close.
func (w *Window) WaitWhileMinimized() {
	for !w.ShouldClose() {
		e := w.DrawableExtent()
		if e.Width != 0 && e.Height != 0 {
			return
		}
		glfw.WaitEvents()
	}
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

var _ vulkan.SurfaceProvider = (*Window)(nil)
