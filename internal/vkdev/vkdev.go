// Package vkdev implements vulkan.Device on top of the native Vulkan
// loader through vulkan-go. Every native object is kept in a handle table
// and handed out as an opaque uint64, so the engine packages never see a
// cgo pointer.
package vkdev

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/core"
	"frame-engine/vulkan"
)

// Window is the presentation side a device is created for.
type Window interface {
	VulkanProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateWindowSurface(instance any) (uintptr, error)
	SetSurface(vulkan.Surface)
}

type Options struct {
	AppName    string
	Validation bool
}

type table[T any] struct {
	mu   sync.Mutex
	next uint64
	m    map[uint64]T
}

func newTable[T any]() *table[T] {
	return &table[T]{m: make(map[uint64]T)}
}

func (t *table[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.m[t.next] = v
	return t.next
}

func (t *table[T]) get(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[h]
	return v, ok
}

func (t *table[T]) take(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[h]
	delete(t.m, h)
	return v, ok
}

func (t *table[T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.m))
	for h, v := range t.m {
		out = append(out, v)
		delete(t.m, h)
	}
	return out
}

type commandBuffer struct {
	cb   vk.CommandBuffer
	pool vk.CommandPool
}

type image struct {
	img vk.Image
	mem vk.DeviceMemory
	// Swapchain images are owned by their swapchain.
	owned bool
}

type pipeline struct {
	p         vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
}

type buffer struct {
	buf vk.Buffer
	mem vk.DeviceMemory
}

type swapchain struct {
	sc     vk.Swapchain
	images []vulkan.Image
}

type Device struct {
	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface
	physical vk.PhysicalDevice
	device   vk.Device

	name           string
	kind           string
	graphicsFamily uint32
	presentFamily  uint32
	memProps       vk.PhysicalDeviceMemoryProperties
	depthFormat    vulkan.Format
	validation     bool

	qmu    sync.Mutex
	queues map[vulkan.QueueClass]*vulkan.Queue
	vkq    *table[vk.Queue]

	fences       *table[vk.Fence]
	semaphores   *table[vk.Semaphore]
	pools        *table[vk.CommandPool]
	cbs          *table[commandBuffer]
	swapchains   *table[*swapchain]
	images       *table[image]
	views        *table[vk.ImageView]
	renderPasses *table[vk.RenderPass]
	framebuffers *table[vk.Framebuffer]
	pipelines    *table[pipeline]
	buffers      *table[buffer]
}

// The device drives a single window surface.
const surfaceHandle vulkan.Surface = 1

// New loads Vulkan through the window's loader, creates an instance and a
// surface for win, and opens the most capable physical device that can
// render to it.
func New(win Window, opts Options) (*Device, error) {
	vk.SetGetInstanceProcAddr(win.VulkanProcAddr())
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize vulkan loader")
	}

	d := &Device{
		queues:       make(map[vulkan.QueueClass]*vulkan.Queue),
		vkq:          newTable[vk.Queue](),
		fences:       newTable[vk.Fence](),
		semaphores:   newTable[vk.Semaphore](),
		pools:        newTable[vk.CommandPool](),
		cbs:          newTable[commandBuffer](),
		swapchains:   newTable[*swapchain](),
		images:       newTable[image](),
		views:        newTable[vk.ImageView](),
		renderPasses: newTable[vk.RenderPass](),
		framebuffers: newTable[vk.Framebuffer](),
		pipelines:    newTable[pipeline](),
		buffers:      newTable[buffer](),
	}
	if err := d.createInstance(win.RequiredInstanceExtensions(), opts); err != nil {
		return nil, err
	}

	ptr, err := win.CreateWindowSurface(d.instance)
	if err != nil {
		d.destroyInstance()
		return nil, err
	}
	d.surface = vk.SurfaceFromPointer(ptr)
	win.SetSurface(surfaceHandle)

	if err := d.pickPhysicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}
	d.depthFormat = d.findDepthFormat()

	core.Logger().Info("vulkan device ready", "gpu", d.name, "type", d.kind,
		"graphics_family", d.graphicsFamily, "present_family", d.presentFamily)
	return d, nil
}

func (d *Device) Name() string { return d.name }

// Destroy releases whatever the engine left alive, then the device,
// surface and instance.
func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)

	for _, p := range d.pipelines.drain() {
		d.destroyPipeline(p)
	}
	for _, fb := range d.framebuffers.drain() {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
	for _, rp := range d.renderPasses.drain() {
		vk.DestroyRenderPass(d.device, rp, nil)
	}
	for _, v := range d.views.drain() {
		vk.DestroyImageView(d.device, v, nil)
	}
	for _, img := range d.images.drain() {
		if img.owned {
			vk.DestroyImage(d.device, img.img, nil)
			vk.FreeMemory(d.device, img.mem, nil)
		}
	}
	for _, sc := range d.swapchains.drain() {
		vk.DestroySwapchain(d.device, sc.sc, nil)
	}
	for _, b := range d.buffers.drain() {
		vk.DestroyBuffer(d.device, b.buf, nil)
		vk.FreeMemory(d.device, b.mem, nil)
	}
	d.cbs.drain()
	for _, p := range d.pools.drain() {
		vk.DestroyCommandPool(d.device, p, nil)
	}
	for _, s := range d.semaphores.drain() {
		vk.DestroySemaphore(d.device, s, nil)
	}
	for _, f := range d.fences.drain() {
		vk.DestroyFence(d.device, f, nil)
	}

	vk.DestroyDevice(d.device, nil)
	d.device = nil
	d.destroyInstance()
}

// check turns a failed native result into a *vulkan.ResultError.
func check(op string, res vk.Result) error {
	if res == vk.Success {
		return nil
	}
	return vulkan.NewResultError(op, vulkan.Result(res))
}

// safeStrings null-terminates names for the loader.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		if !strings.HasSuffix(s, "\x00") {
			s += "\x00"
		}
		out[i] = s
	}
	return out
}

var _ vulkan.Device = (*Device)(nil)
