package main

import (
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"

	"frame-engine/core"
	"frame-engine/opengl"
	"frame-engine/scene"
	"frame-engine/vulkan"
	"frame-engine/window"
)

// glProgram stands in for the SPIR-V program when drawing through OpenGL.
// Only its per-frame uniform reservation is used.
type glProgram struct {
	mu    sync.Mutex
	frame uint64
	held  bool
}

func (p *glProgram) Name() string { return "mesh-gl" }

func (p *glProgram) Code() (vertex, fragment []byte) { return nil, nil }

func (p *glProgram) VertexLayout() vulkan.VertexLayout { return scene.VertexLayout }

func (p *glProgram) PushConstantRange() vulkan.PushConstantRange { return scene.PushConstantRange }

func (p *glProgram) Descriptors() []vulkan.DescriptorBinding { return nil }

func (p *glProgram) TryReserveUniform(frame uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held && p.frame == frame {
		return false
	}
	p.held, p.frame = true, frame
	return true
}

func (p *glProgram) ClearReservations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = false
}

// runOpenGL draws the scene with the GL presenter on the main thread until
// the window closes.
func runOpenGL(cfg core.Config) error {
	win, err := window.New(cfg.Window, window.APIOpenGL)
	if err != nil {
		return err
	}
	defer win.Destroy()

	presenter, err := opengl.NewPresenter(cfg.ClearColor)
	if err != nil {
		return err
	}
	defer presenter.Destroy()

	camera, meshes, err := loadScene(cfg, &glProgram{})
	if err != nil {
		return err
	}

	extent := win.DrawableExtent()
	presenter.SetViewport(int(extent.Width), int(extent.Height))
	camera.UpdateAspectRatio(float32(extent.Width), float32(extent.Height))
	win.OnResize(func(e vulkan.Extent2D) {
		presenter.SetViewport(int(e.Width), int(e.Height))
		camera.UpdateAspectRatio(float32(e.Width), float32(e.Height))
	})

	bg := cfg.ClearColor
	win.SetKeyCallback(func(key glfw.Key) {
		switch {
		case isQuitKey(key):
			win.SetShouldClose(true)
		case key == glfw.KeyC:
			bg = nextClearColor(bg)
			presenter.SetClearColor(bg)
		}
	})

	core.Logger().Info("rendering with OpenGL", "meshes", len(meshes))
	for frame := uint64(1); !win.ShouldClose(); frame++ {
		for _, m := range meshes {
			m.UpdateUniforms(frame)
		}
		presenter.Frame(meshes, camera.ViewProjection())
		win.SwapBuffers()
		win.PollEvents()
		win.WaitWhileMinimized()
	}
	return nil
}
