// Package renderer records the command buffers of one render target.
//
// A Unit owns a render pass, the framebuffers over the swapchain images, a
// depth attachment and one pipeline per shader program. For every
// swapchain image it keeps three command buffers: pre moves the image from
// the present layout to the color attachment layout, render runs the render
// pass with every drawable, post moves the image back to the present layout.
package renderer

import (
	"slices"
	"sync"

	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/vulkan"
)

var ErrNotReady = errors.New("renderer: not ready")

// Mode selects how much of a framebuffer's command buffers Record rewrites.
type Mode int

const (
	// RecordFull rewrites pre, render and post.
	RecordFull Mode = iota
	// RecordPushConstants refreshes push constants and rewrites only the
	// render buffer. It falls back to RecordFull for a framebuffer whose
	// buffers are not valid.
	RecordPushConstants
)

func (m Mode) String() string {
	if m == RecordPushConstants {
		return "push-constants"
	}
	return "full"
}

// CommandBufferSet is the pre, render and post command buffers of one
// swapchain image. They are submitted together in that order.
type CommandBufferSet struct {
	Pre, Render, Post vulkan.CommandBuffer
}

type Options struct {
	Name      string
	DepthTest bool
	// Overlay loads the color attachment instead of clearing it, for units
	// drawn on top of another unit.
	Overlay bool
	// DynamicPushConstants asks the frame loop to re-record push constants
	// for every frame.
	DynamicPushConstants bool
}

// Unit is one render target and the drawables recorded into it.
//
// Init allocates the render target resources, Update builds pipelines and
// records every command buffer. Update and Record must not run while a
// submission that uses the unit's buffers is in flight; the frame loop
// guarantees this by stopping before it mutates a unit.
type Unit struct {
	dev  vulkan.Device
	swap *vulkan.SwapchainManager
	opts Options

	mu        sync.Mutex
	drawables []Drawable
	clear     vulkan.ClearColor

	initialized  bool
	swapchain    vulkan.Swapchain
	renderPass   vulkan.RenderPass
	depthImage   vulkan.Image
	depthView    vulkan.ImageView
	framebuffers []vulkan.Framebuffer
	images       []vulkan.Image
	extent       vulkan.Extent2D
	pipelines    []vulkan.Pipeline

	pool  vulkan.CommandPool
	sets  []CommandBufferSet
	valid []bool
}

func NewUnit(dev vulkan.Device, swap *vulkan.SwapchainManager, opts Options) *Unit {
	if opts.Name == "" {
		opts.Name = "unit"
	}
	return &Unit{
		dev:   dev,
		swap:  swap,
		opts:  opts,
		clear: core.ColorBlack.Array(),
	}
}

func (u *Unit) Name() string { return u.opts.Name }

func (u *Unit) Options() Options { return u.opts }

// Init creates the render pass, the depth attachment and one framebuffer
// per swapchain image. pool is used for the depth layout transition and
// must belong to the calling thread. Nothing is recorded.
//
// Init is a no-op for a unit already built against the current swapchain.
// A unit built against a swapchain that has since been recreated is
// rebuilt. On failure everything created so far is released and the unit
// stays not ready.
func (u *Unit) Init(pool vulkan.CommandPool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.initialized && !u.stale() {
		return nil
	}
	return u.buildTargets(pool)
}

// stale reports whether the render target was built for a swapchain that
// has been replaced since.
func (u *Unit) stale() bool {
	return u.initialized && u.swapchain != u.swap.Handle()
}

func (u *Unit) buildTargets(pool vulkan.CommandPool) error {
	if u.initialized {
		u.destroyPipelines()
		u.destroyTargets()
	}
	if err := u.createTargets(pool); err != nil {
		u.destroyTargets()
		core.Logger().Error("renderer init failed", "unit", u.opts.Name, "err", err)
		return err
	}
	u.initialized = true
	u.valid = make([]bool, len(u.framebuffers))
	core.Logger().Debug("renderer initialized", "unit", u.opts.Name,
		"framebuffers", len(u.framebuffers), "extent", u.extent)
	return nil
}

func (u *Unit) createTargets(pool vulkan.CommandPool) error {
	if !u.swap.Ready() {
		return errors.Wrap(vulkan.ErrNotInitialized, "swapchain")
	}
	u.swapchain = u.swap.Handle()
	u.extent = u.swap.Extent()
	u.images = u.swap.Images()
	views := u.swap.Views()

	depthFormat := vulkan.FormatUndefined
	if u.opts.DepthTest {
		depthFormat = u.dev.DepthFormat()
	}

	var err error
	u.renderPass, err = u.dev.CreateRenderPass(vulkan.RenderPassCreateInfo{
		ColorFormat: u.swap.Format().Format,
		DepthFormat: depthFormat,
		Load:        u.opts.Overlay,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create render pass")
	}

	if u.opts.DepthTest {
		if err := u.createDepth(pool, depthFormat); err != nil {
			return err
		}
	}

	u.framebuffers = make([]vulkan.Framebuffer, 0, len(views))
	for i, v := range views {
		attachments := []vulkan.ImageView{v}
		if u.depthView != vulkan.NullImageView {
			attachments = append(attachments, u.depthView)
		}
		fb, err := u.dev.CreateFramebuffer(vulkan.FramebufferCreateInfo{
			RenderPass:  u.renderPass,
			Attachments: attachments,
			Extent:      u.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create framebuffer %d", i)
		}
		u.framebuffers = append(u.framebuffers, fb)
	}
	return nil
}

func (u *Unit) createDepth(pool vulkan.CommandPool, format vulkan.Format) error {
	var err error
	u.depthImage, err = u.dev.CreateImage(vulkan.ImageCreateInfo{
		Format: format,
		Extent: u.extent,
		Aspect: vulkan.AspectDepth,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create depth image")
	}
	u.depthView, err = u.dev.CreateImageView(u.depthImage, format, vulkan.AspectDepth)
	if err != nil {
		return errors.Wrap(err, "failed to create depth image view")
	}

	q, err := u.dev.Queue(vulkan.QueueGraphics, 1)
	if err != nil {
		return err
	}
	err = vulkan.SubmitOnce(u.dev, q, pool, func(cb vulkan.CommandBuffer) {
		u.dev.CmdImageBarrier(cb, vulkan.ImageBarrier{
			Image:     u.depthImage,
			Aspect:    vulkan.AspectDepth,
			OldLayout: vulkan.LayoutUndefined,
			NewLayout: vulkan.LayoutDepthStencilAttachment,
			SrcStage:  vulkan.StageTopOfPipe,
			DstStage:  vulkan.StageEarlyFragmentTests,
		})
	})
	return errors.Wrap(err, "failed to transition depth image")
}

func (u *Unit) destroyTargets() {
	for _, fb := range u.framebuffers {
		u.dev.DestroyFramebuffer(fb)
	}
	u.framebuffers = nil
	if u.depthView != vulkan.NullImageView {
		u.dev.DestroyImageView(u.depthView)
		u.depthView = vulkan.NullImageView
	}
	if u.depthImage != vulkan.NullImage {
		u.dev.DestroyImage(u.depthImage)
		u.depthImage = vulkan.NullImage
	}
	if u.renderPass != vulkan.NullRenderPass {
		u.dev.DestroyRenderPass(u.renderPass)
		u.renderPass = vulkan.NullRenderPass
	}
	u.images = nil
	u.swapchain = vulkan.NullSwapchain
	u.initialized = false
}

func (u *Unit) destroyPipelines() {
	for _, p := range u.pipelines {
		u.dev.DestroyPipeline(p)
	}
	u.pipelines = nil
	for _, d := range u.drawables {
		d.SetPipeline(vulkan.NullPipeline)
	}
}

// Update rebuilds the unit for a new loop activation. It destroys every
// pipeline and clears the uniform reservations of every program, creates a
// pipeline for each drawable that lacks one, then records all command
// buffers from scratch. Command buffers are allocated from pool on first
// use; pool must belong to the calling thread.
func (u *Unit) Update(pool vulkan.CommandPool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.initialized {
		return ErrNotReady
	}
	if u.stale() {
		if err := u.buildTargets(pool); err != nil {
			return err
		}
	}

	u.destroyPipelines()
	for _, d := range u.drawables {
		d.Program().ClearReservations()
	}
	if err := u.createPipelines(); err != nil {
		core.Logger().Error("pipeline creation failed", "unit", u.opts.Name, "err", err)
		return err
	}

	if err := u.allocate(pool); err != nil {
		core.Logger().Error("command buffer allocation failed", "unit", u.opts.Name, "err", err)
		return err
	}
	for i := range u.sets {
		if err := u.record(i, RecordFull); err != nil {
			core.Logger().Error("command buffer recording failed", "unit", u.opts.Name, "framebuffer", i, "err", err)
			return err
		}
	}
	core.Logger().Debug("renderer updated", "unit", u.opts.Name,
		"drawables", len(u.drawables), "pipelines", len(u.pipelines))
	return nil
}

// createPipelines creates one pipeline per distinct program.
func (u *Unit) createPipelines() error {
	built := make(map[ShaderProgram]vulkan.Pipeline)
	for _, d := range u.drawables {
		if d.Pipeline() != vulkan.NullPipeline {
			continue
		}
		prog := d.Program()
		if p, ok := built[prog]; ok {
			d.SetPipeline(p)
			continue
		}
		vert, frag := prog.Code()
		p, err := u.dev.CreateGraphicsPipeline(vulkan.PipelineCreateInfo{
			RenderPass:   u.renderPass,
			Extent:       u.extent,
			VertexCode:   vert,
			FragmentCode: frag,
			Vertex:       prog.VertexLayout(),
			PushConstant: prog.PushConstantRange(),
			Descriptors:  prog.Descriptors(),
			DepthTest:    u.opts.DepthTest,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create pipeline for %s", prog.Name())
		}
		built[prog] = p
		u.pipelines = append(u.pipelines, p)
		d.SetPipeline(p)
	}
	return nil
}

func (u *Unit) allocate(pool vulkan.CommandPool) error {
	if u.sets != nil && u.pool == pool && len(u.sets) == len(u.framebuffers) {
		return nil
	}
	u.freeCommandBuffers()

	n := len(u.framebuffers)
	cbs, err := u.dev.AllocateCommandBuffers(pool, 3*n)
	if err != nil {
		return errors.Wrap(err, "failed to allocate command buffers")
	}
	u.pool = pool
	u.sets = make([]CommandBufferSet, n)
	for i := range u.sets {
		u.sets[i] = CommandBufferSet{Pre: cbs[3*i], Render: cbs[3*i+1], Post: cbs[3*i+2]}
	}
	return nil
}

// Record re-records the command buffers of framebuffer fb.
func (u *Unit) Record(fb int, mode Mode) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.initialized || fb < 0 || fb >= len(u.sets) {
		return ErrNotReady
	}
	return u.record(fb, mode)
}

func (u *Unit) record(fb int, mode Mode) error {
	if mode == RecordPushConstants && !u.valid[fb] {
		mode = RecordFull
	}
	u.valid[fb] = false

	for _, d := range u.drawables {
		d.UpdatePushConstants(fb)
	}

	set := u.sets[fb]
	if mode == RecordFull {
		if err := u.recordBarrier(set.Pre, fb, vulkan.LayoutPresentSrc, vulkan.LayoutColorAttachment,
			vulkan.StageColorAttachmentOutput, vulkan.StageColorAttachmentOutput); err != nil {
			return err
		}
	}
	if err := u.recordRender(set.Render, fb); err != nil {
		return err
	}
	if mode == RecordFull {
		if err := u.recordBarrier(set.Post, fb, vulkan.LayoutColorAttachment, vulkan.LayoutPresentSrc,
			vulkan.StageColorAttachmentOutput, vulkan.StageBottomOfPipe); err != nil {
			return err
		}
	}
	u.valid[fb] = true
	return nil
}

func (u *Unit) recordBarrier(cb vulkan.CommandBuffer, fb int, from, to vulkan.ImageLayout, src, dst vulkan.PipelineStage) error {
	if err := u.dev.BeginCommandBuffer(cb, false); err != nil {
		return errors.Wrap(err, "failed to begin command buffer")
	}
	u.dev.CmdImageBarrier(cb, vulkan.ImageBarrier{
		Image:     u.images[fb],
		Aspect:    vulkan.AspectColor,
		OldLayout: from,
		NewLayout: to,
		SrcStage:  src,
		DstStage:  dst,
	})
	return errors.Wrap(u.dev.EndCommandBuffer(cb), "failed to end command buffer")
}

func (u *Unit) recordRender(cb vulkan.CommandBuffer, fb int) error {
	if err := u.dev.BeginCommandBuffer(cb, false); err != nil {
		return errors.Wrap(err, "failed to begin command buffer")
	}
	u.dev.CmdBeginRenderPass(cb, vulkan.RenderPassBegin{
		RenderPass:  u.renderPass,
		Framebuffer: u.framebuffers[fb],
		Extent:      u.extent,
		Clear:       u.clear,
		ClearDepth:  u.opts.DepthTest,
	})

	var drawErr error
	for _, d := range u.drawables {
		p := d.Pipeline()
		if p == vulkan.NullPipeline {
			continue
		}
		u.dev.CmdBindPipeline(cb, p)
		c := &Cmd{
			Framebuffer: fb,
			dev:         u.dev,
			cb:          cb,
			pipeline:    p,
			push:        d.Program().PushConstantRange(),
		}
		if err := d.RecordDraw(c); err != nil {
			drawErr = errors.Wrapf(err, "failed to record draw for %s", d.Program().Name())
			break
		}
	}

	u.dev.CmdEndRenderPass(cb)
	if err := u.dev.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "failed to end command buffer")
	}
	return drawErr
}

// Buffers returns the command buffers of framebuffer fb and whether they
// hold a valid recording.
func (u *Unit) Buffers(fb int) (CommandBufferSet, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if fb < 0 || fb >= len(u.sets) || fb >= len(u.valid) {
		return CommandBufferSet{}, false
	}
	return u.sets[fb], u.valid[fb]
}

// Valid reports whether the unit is initialized and every framebuffer has
// a valid recording.
func (u *Unit) Valid() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.initialized || len(u.sets) == 0 {
		return false
	}
	for _, v := range u.valid {
		if !v {
			return false
		}
	}
	return true
}

// Framebuffers returns the number of framebuffers, which equals the
// swapchain image count at the last Init.
func (u *Unit) Framebuffers() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.framebuffers)
}

// UpdateUniforms lets every drawable write its uniforms for frame. Units
// drawn by the same loop must be given the same frame number so programs
// they share see one writer per frame.
func (u *Unit) UpdateUniforms(frame uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, d := range u.drawables {
		d.UpdateUniforms(frame)
	}
}

// FreeCommandBuffers returns every command buffer to its pool. It must run
// on the thread that owns the pool passed to Update, after the device is
// idle.
func (u *Unit) FreeCommandBuffers() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.freeCommandBuffers()
}

func (u *Unit) freeCommandBuffers() {
	if u.sets == nil {
		return
	}
	cbs := make([]vulkan.CommandBuffer, 0, 3*len(u.sets))
	for _, s := range u.sets {
		cbs = append(cbs, s.Pre, s.Render, s.Post)
	}
	u.dev.FreeCommandBuffers(u.pool, cbs)
	u.sets = nil
	u.pool = vulkan.NullCommandPool
	clear(u.valid)
}

// Resize recreates the render target for the current swapchain. Command
// buffers must already be freed.
func (u *Unit) Resize(pool vulkan.CommandPool) error {
	u.mu.Lock()
	u.destroyPipelines()
	u.destroyTargets()
	u.mu.Unlock()
	return u.Init(pool)
}

func (u *Unit) invalidate() {
	clear(u.valid)
}

func (u *Unit) Add(d Drawable) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.drawables = append(u.drawables, d)
	u.invalidate()
}

// Remove drops d and reports whether it was present.
func (u *Unit) Remove(d Drawable) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	i := slices.Index(u.drawables, d)
	if i < 0 {
		return false
	}
	u.drawables = slices.Delete(u.drawables, i, i+1)
	d.SetPipeline(vulkan.NullPipeline)
	u.invalidate()
	return true
}

func (u *Unit) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, d := range u.drawables {
		d.SetPipeline(vulkan.NullPipeline)
	}
	u.drawables = nil
	u.invalidate()
}

func (u *Unit) Drawables() []Drawable {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.drawables)
}

// SetClearColor changes the clear color used by the next full recording.
func (u *Unit) SetClearColor(c core.Color) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.clear = c.Array()
	u.invalidate()
}

// Invalidate marks every recording stale.
func (u *Unit) Invalidate() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.invalidate()
}

// Destroy releases the pipelines and render target. Command buffers are
// not touched; FreeCommandBuffers must have run on the owning thread.
func (u *Unit) Destroy() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.destroyPipelines()
	u.destroyTargets()
	u.valid = nil
}
