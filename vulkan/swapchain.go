package vulkan

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"frame-engine/core"
)

type SwapchainOptions struct {
	// ImageCount is the requested number of images. Zero asks for one more
	// than the surface minimum. The value is clamped to what the surface
	// supports.
	ImageCount uint32
	// LowLatency selects mailbox presentation when the surface offers it.
	LowLatency bool
}

// swapchainState is published as a whole after a successful Init so that
// readers never observe a half-built chain.
type swapchainState struct {
	dev    Device
	handle Swapchain
	format SurfaceFormat
	extent Extent2D
	mode   PresentMode
	images []Image
	views  []ImageView
}

// SwapchainManager owns the presentable image chain of one surface.
//
// Init and Destroy and AcquireNextImage are serialized by one mutex, so a
// resize driven recreation can never overlap an acquire. The getters read
// the last published state and may be called from any goroutine.
type SwapchainManager struct {
	pools *CommandPoolRegistry
	opts  SwapchainOptions

	mu    sync.Mutex
	state atomic.Pointer[swapchainState]
}

func NewSwapchainManager(pools *CommandPoolRegistry, opts SwapchainOptions) *SwapchainManager {
	return &SwapchainManager{pools: pools, opts: opts}
}

// Init creates the swapchain for surface, or recreates it when one exists.
//
// The previous chain is passed to the driver as the old swapchain and is
// destroyed only after the new chain and all of its image views exist and
// every new image was transitioned to the present layout. On failure the
// previous chain is left untouched.
func (m *SwapchainManager) Init(dev Device, surface SurfaceProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := surface.Surface()
	caps, err := dev.SurfaceCapabilities(s)
	if err != nil {
		return errors.Wrap(err, "failed to query surface capabilities")
	}
	formats, err := dev.SurfaceFormats(s)
	if err != nil {
		return errors.Wrap(err, "failed to query surface formats")
	}
	modes, err := dev.SurfacePresentModes(s)
	if err != nil {
		return errors.Wrap(err, "failed to query present modes")
	}
	if len(formats) == 0 || len(modes) == 0 {
		return errors.New("swapchain does not have available formats or present modes")
	}

	old := m.state.Load()
	next := &swapchainState{
		dev:    dev,
		format: chooseSurfaceFormat(formats),
		extent: chooseExtent(caps, surface.DrawableExtent()),
		mode:   choosePresentMode(modes, m.opts.LowLatency),
	}
	info := SwapchainCreateInfo{
		Surface:     s,
		MinImages:   chooseImageCount(caps, m.opts.ImageCount),
		Format:      next.format,
		Extent:      next.extent,
		PresentMode: next.mode,
	}
	if old != nil {
		info.OldSwapchain = old.handle
	}

	next.handle, err = dev.CreateSwapchain(info)
	if err != nil {
		return errors.Wrap(err, "failed to create swapchain")
	}
	if err := m.build(next); err != nil {
		next.release()
		return err
	}

	if old != nil {
		old.release()
	}
	m.state.Store(next)

	core.Logger().Info("swapchain created",
		"images", len(next.images),
		"extent", next.extent,
		"present_mode", next.mode.String(),
		"recreated", old != nil)
	return nil
}

// build fills in images and views and brings every image to the present
// layout.
func (m *SwapchainManager) build(st *swapchainState) error {
	images, err := st.dev.SwapchainImages(st.handle)
	if err != nil {
		return errors.Wrap(err, "failed to get swapchain images")
	}
	st.images = images
	st.views = make([]ImageView, 0, len(images))
	for i, img := range images {
		v, err := st.dev.CreateImageView(img, st.format.Format, AspectColor)
		if err != nil {
			return errors.Wrapf(err, "failed to create image view %d", i)
		}
		st.views = append(st.views, v)
	}
	if err := m.transition(st.dev, images); err != nil {
		return errors.Wrap(err, "failed to transition swapchain images")
	}
	return nil
}

// transition moves images from the undefined to the present layout with a
// one-shot submission.
func (m *SwapchainManager) transition(dev Device, images []Image) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	q, err := dev.Queue(QueueGraphics, 1)
	if err != nil {
		return err
	}
	pool, err := m.pools.Get(dev, q.Family, PoolTransient|PoolResetCommandBuffer)
	if err != nil {
		return err
	}
	return SubmitOnce(dev, q, pool, func(cb CommandBuffer) {
		for _, img := range images {
			dev.CmdImageBarrier(cb, ImageBarrier{
				Image:     img,
				Aspect:    AspectColor,
				OldLayout: LayoutUndefined,
				NewLayout: LayoutPresentSrc,
				SrcStage:  StageTopOfPipe,
				DstStage:  StageBottomOfPipe,
			})
		}
	})
}

func (st *swapchainState) release() {
	for _, v := range st.views {
		st.dev.DestroyImageView(v)
	}
	if st.handle != NullSwapchain {
		st.dev.DestroySwapchain(st.handle)
	}
	st.views, st.images, st.handle = nil, nil, NullSwapchain
}

// Destroy releases the chain. Destroying an already destroyed manager is
// reported with ErrNotInitialized and otherwise does nothing.
func (m *SwapchainManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state.Swap(nil)
	if st == nil {
		core.Logger().Warn("swapchain destroy on uninitialized manager")
		return ErrNotInitialized
	}
	st.release()
	core.Logger().Info("swapchain destroyed")
	return nil
}

// AcquireNextImage blocks until an image is available or timeout runs out.
// It signals sem and fence when the image is ready; either may be null.
func (m *SwapchainManager) AcquireNextImage(sem Semaphore, fence Fence, timeout time.Duration) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state.Load()
	if st == nil {
		return 0, ErrNotInitialized
	}
	idx, err := st.dev.AcquireNextImage(st.handle, timeout, sem, fence)
	if err != nil {
		return 0, errors.Wrap(err, "failed to acquire swapchain image")
	}
	return idx, nil
}

func (m *SwapchainManager) Ready() bool { return m.state.Load() != nil }

func (m *SwapchainManager) ImageCount() int {
	if st := m.state.Load(); st != nil {
		return len(st.images)
	}
	return 0
}

func (m *SwapchainManager) Format() SurfaceFormat {
	if st := m.state.Load(); st != nil {
		return st.format
	}
	return SurfaceFormat{}
}

func (m *SwapchainManager) Extent() Extent2D {
	if st := m.state.Load(); st != nil {
		return st.extent
	}
	return Extent2D{}
}

func (m *SwapchainManager) PresentMode() PresentMode {
	if st := m.state.Load(); st != nil {
		return st.mode
	}
	return PresentModeFifo
}

func (m *SwapchainManager) Handle() Swapchain {
	if st := m.state.Load(); st != nil {
		return st.handle
	}
	return NullSwapchain
}

// Images returns a copy of the image handles.
func (m *SwapchainManager) Images() []Image {
	if st := m.state.Load(); st != nil {
		return append([]Image(nil), st.images...)
	}
	return nil
}

// Views returns a copy of the image views, index aligned with Images.
func (m *SwapchainManager) Views() []ImageView {
	if st := m.state.Load(); st != nil {
		return append([]ImageView(nil), st.views...)
	}
	return nil
}

func chooseSurfaceFormat(formats []SurfaceFormat) SurfaceFormat {
	for _, f := range formats {
		if f.Format == FormatB8G8R8A8Srgb && f.ColorSpace == ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode returns FIFO, which every surface supports and which
// never tears, unless low latency was asked for and mailbox is available.
func choosePresentMode(modes []PresentMode, lowLatency bool) PresentMode {
	if lowLatency {
		for _, m := range modes {
			if m == PresentModeMailbox {
				return m
			}
		}
	}
	return PresentModeFifo
}

func chooseExtent(caps SurfaceCapabilities, drawable Extent2D) Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return Extent2D{
		Width:  clamp(drawable.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(drawable.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps SurfaceCapabilities, requested uint32) uint32 {
	n := requested
	if n == 0 {
		n = caps.MinImageCount + 1
	}
	if n < caps.MinImageCount {
		n = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
