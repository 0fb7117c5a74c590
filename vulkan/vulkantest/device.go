// Package vulkantest provides an in-memory vulkan.Device for tests.
//
// Work submitted to the device completes synchronously: a submission
// signals its fence and semaphores before QueueSubmit returns. The device
// checks the usage rules the engine relies on (fence reset before reuse,
// semaphores waited only after a signal, command pools used only from
// their creating thread, command buffers submitted only when executable)
// and records every breach; tests assert that Violations is empty.
package vulkantest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"frame-engine/vulkan"
)

// Kind names a class of object for fault injection and leak counting.
type Kind int

const (
	KindFence Kind = iota
	KindSemaphore
	KindCommandPool
	KindCommandBuffer
	KindSwapchain
	KindImage
	KindImageView
	KindRenderPass
	KindFramebuffer
	KindPipeline
	KindBuffer
	numKinds
)

var kindNames = [...]string{
	"fence", "semaphore", "command pool", "command buffer", "swapchain",
	"image", "image view", "render pass", "framebuffer", "pipeline", "buffer",
}

func (k Kind) String() string { return kindNames[k] }

type commandBuffer struct {
	pool      vulkan.CommandPool
	recording bool
	ready     bool
	records   int
	ops       []string
}

type swapchain struct {
	images []vulkan.Image
	next   uint32
}

// Submission is one recorded batch of a QueueSubmit call.
type Submission struct {
	vulkan.SubmitInfo
	Fence vulkan.Fence
}

// Device is a scripted vulkan.Device. The zero value is not usable; call
// New.
type Device struct {
	mu sync.Mutex

	Caps    vulkan.SurfaceCapabilities
	Formats []vulkan.SurfaceFormat
	Modes   []vulkan.PresentMode

	handle uint64
	queue  *vulkan.Queue

	live    [numKinds]map[uint64]bool
	created [numKinds]int
	failAt  [numKinds]int

	fences       map[vulkan.Fence]bool // signaled
	fenceLog     map[vulkan.Fence][]string
	fenceOrder   []vulkan.Fence
	semaphores   map[vulkan.Semaphore]bool // signaled
	pools        map[vulkan.CommandPool]uint64
	poolFlags    map[vulkan.CommandPool]vulkan.CommandPoolFlags
	cbs          map[vulkan.CommandBuffer]*commandBuffer
	swapchains   map[vulkan.Swapchain]*swapchain
	submissions  []Submission
	presents     []vulkan.PresentInfo
	pipelineInfo map[vulkan.Pipeline]vulkan.PipelineCreateInfo
	violations   []string

	acquires, submits, presentCalls, idles int

	failAcquire, failSubmit, failPresent int
	holdAfter                            int
}

// New returns a device whose surface is 800x600 with two to eight images,
// offering an sRGB format and FIFO, mailbox and immediate presentation.
func New() *Device {
	d := &Device{
		Caps: vulkan.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  vulkan.Extent2D{Width: 800, Height: 600},
			MinImageExtent: vulkan.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: vulkan.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []vulkan.SurfaceFormat{
			{Format: vulkan.FormatB8G8R8A8Unorm, ColorSpace: vulkan.ColorSpaceSrgbNonlinear},
			{Format: vulkan.FormatB8G8R8A8Srgb, ColorSpace: vulkan.ColorSpaceSrgbNonlinear},
		},
		Modes: []vulkan.PresentMode{
			vulkan.PresentModeFifo, vulkan.PresentModeMailbox, vulkan.PresentModeImmediate,
		},
		fences:       make(map[vulkan.Fence]bool),
		fenceLog:     make(map[vulkan.Fence][]string),
		semaphores:   make(map[vulkan.Semaphore]bool),
		pools:        make(map[vulkan.CommandPool]uint64),
		poolFlags:    make(map[vulkan.CommandPool]vulkan.CommandPoolFlags),
		cbs:          make(map[vulkan.CommandBuffer]*commandBuffer),
		swapchains:   make(map[vulkan.Swapchain]*swapchain),
		pipelineInfo: make(map[vulkan.Pipeline]vulkan.PipelineCreateInfo),
	}
	for i := range d.live {
		d.live[i] = make(map[uint64]bool)
	}
	d.queue = &vulkan.Queue{Class: vulkan.QueueGraphics, Family: 0, Handle: vulkan.QueueHandle(d.nextHandle())}
	return d
}

func (d *Device) nextHandle() uint64 {
	d.handle++
	return d.handle
}

func (d *Device) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// create allocates a handle of kind k unless a failure was scheduled.
func (d *Device) create(k Kind) (uint64, error) {
	d.created[k]++
	if d.failAt[k] != 0 && d.created[k] == d.failAt[k] {
		d.failAt[k] = 0
		return 0, vulkan.NewResultError("create "+k.String(), vulkan.ErrorOutOfDeviceMemory)
	}
	h := d.nextHandle()
	d.live[k][h] = true
	return h, nil
}

func (d *Device) destroy(k Kind, h uint64) {
	if h == 0 {
		return
	}
	if !d.live[k][h] {
		d.violate("destroy of unknown %s %d", k, h)
		return
	}
	delete(d.live[k], h)
}

// FailCreate makes the n-th creation of kind k from now on fail with
// ErrorOutOfDeviceMemory.
func (d *Device) FailCreate(k Kind, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAt[k] = d.created[k] + n
}

// FailAcquireAt makes the k-th AcquireNextImage call fail with
// ErrorOutOfDate. Calls are counted from device creation, starting at 1.
func (d *Device) FailAcquireAt(k int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAcquire = k
}

// FailSubmitAt makes the k-th QueueSubmit call fail with ErrorDeviceLost.
func (d *Device) FailSubmitAt(k int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSubmit = k
}

// FailPresentAt makes the k-th QueuePresent call fail with ErrorOutOfDate.
func (d *Device) FailPresentAt(k int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPresent = k
}

// HoldAcquiresAfter lets n more acquires succeed; later ones time out
// until the hold is lifted with a negative n.
func (d *Device) HoldAcquiresAfter(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 {
		d.holdAfter = 0
		return
	}
	d.holdAfter = d.acquires + n + 1
}

// Violations returns every usage rule breach seen so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Live returns the number of live objects of every kind.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.live {
		n += len(m)
	}
	return n
}

// LiveOf returns the number of live objects of kind k.
func (d *Device) LiveOf(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live[k])
}

// Created returns how many objects of kind k were created successfully or
// not.
func (d *Device) Created(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[k]
}

// FenceLog returns the "wait" and "reset" calls seen by f in order. The log
// survives destruction of the fence.
func (d *Device) FenceLog(f vulkan.Fence) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.fenceLog[f]...)
}

// Fences returns every fence ever created, oldest first.
func (d *Device) Fences() []vulkan.Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vulkan.Fence(nil), d.fenceOrder...)
}

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

func (d *Device) Presents() []vulkan.PresentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vulkan.PresentInfo(nil), d.presents...)
}

// Counts returns the number of acquire, submit and present calls.
func (d *Device) Counts() (acquires, submits, presents int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquires, d.submits, d.presentCalls
}

func (d *Device) IdleWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idles
}

// CommandLog returns the commands recorded into cb by its last recording.
func (d *Device) CommandLog(cb vulkan.CommandBuffer) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cbs[cb]; ok {
		return append([]string(nil), c.ops...)
	}
	return nil
}

// RecordCount returns how many times cb was begun.
func (d *Device) RecordCount(cb vulkan.CommandBuffer) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cbs[cb]; ok {
		return c.records
	}
	return 0
}

func (d *Device) PipelineInfo(p vulkan.Pipeline) (vulkan.PipelineCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.pipelineInfo[p]
	return info, ok
}

// LiveSwapchains returns the live swapchain handles in creation order.
func (d *Device) LiveSwapchains() []vulkan.Swapchain {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []vulkan.Swapchain
	for h := range d.live[KindSwapchain] {
		out = append(out, vulkan.Swapchain(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sync

func (d *Device) CreateFence(signaled bool) (vulkan.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindFence)
	if err != nil {
		return vulkan.NullFence, err
	}
	f := vulkan.Fence(h)
	d.fences[f] = signaled
	d.fenceOrder = append(d.fenceOrder, f)
	return f, nil
}

func (d *Device) DestroyFence(f vulkan.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFence, uint64(f))
	delete(d.fences, f)
}

func (d *Device) ResetFences(fences []vulkan.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		if _, ok := d.fences[f]; !ok {
			d.violate("reset of unknown fence %d", f)
			continue
		}
		d.fences[f] = false
		d.fenceLog[f] = append(d.fenceLog[f], "reset")
	}
	return nil
}

func (d *Device) WaitForFences(fences []vulkan.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		signaled, ok := d.fences[f]
		if !ok {
			d.violate("wait on unknown fence %d", f)
			return vulkan.NewResultError("wait for fences", vulkan.ErrorDeviceLost)
		}
		d.fenceLog[f] = append(d.fenceLog[f], "wait")
		if !signaled {
			return vulkan.NewResultError("wait for fences", vulkan.Timeout)
		}
	}
	return nil
}

func (d *Device) FenceStatus(f vulkan.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	signaled, ok := d.fences[f]
	if !ok {
		return false, vulkan.NewResultError("get fence status", vulkan.ErrorDeviceLost)
	}
	return signaled, nil
}

func (d *Device) CreateSemaphore() (vulkan.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindSemaphore)
	if err != nil {
		return vulkan.NullSemaphore, err
	}
	d.semaphores[vulkan.Semaphore(h)] = false
	return vulkan.Semaphore(h), nil
}

func (d *Device) DestroySemaphore(s vulkan.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSemaphore, uint64(s))
	delete(d.semaphores, s)
}

func (d *Device) signalSemaphore(s vulkan.Semaphore, op string) {
	signaled, ok := d.semaphores[s]
	switch {
	case !ok:
		d.violate("%s signals unknown semaphore %d", op, s)
	case signaled:
		d.violate("%s signals semaphore %d twice", op, s)
	default:
		d.semaphores[s] = true
	}
}

func (d *Device) waitSemaphore(s vulkan.Semaphore, op string) {
	signaled, ok := d.semaphores[s]
	switch {
	case !ok:
		d.violate("%s waits on unknown semaphore %d", op, s)
	case !signaled:
		d.violate("%s waits on unsignaled semaphore %d", op, s)
	default:
		d.semaphores[s] = false
	}
}

// Commands

func (d *Device) CreateCommandPool(family uint32, flags vulkan.CommandPoolFlags) (vulkan.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindCommandPool)
	if err != nil {
		return vulkan.NullCommandPool, err
	}
	p := vulkan.CommandPool(h)
	d.pools[p] = vulkan.CurrentThread()
	d.poolFlags[p] = flags
	return p, nil
}

func (d *Device) DestroyCommandPool(p vulkan.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindCommandPool, uint64(p))
	for h, cb := range d.cbs {
		if cb.pool == p {
			d.destroy(KindCommandBuffer, uint64(h))
			delete(d.cbs, h)
		}
	}
	delete(d.pools, p)
	delete(d.poolFlags, p)
}

func (d *Device) checkThread(p vulkan.CommandPool, op string) {
	owner, ok := d.pools[p]
	if !ok {
		d.violate("%s on unknown command pool %d", op, p)
		return
	}
	if t := vulkan.CurrentThread(); t != owner {
		d.violate("%s on thread %d, pool %d belongs to thread %d", op, t, p, owner)
	}
}

func (d *Device) AllocateCommandBuffers(p vulkan.CommandPool, count int) ([]vulkan.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkThread(p, "allocate")
	out := make([]vulkan.CommandBuffer, 0, count)
	for range count {
		h, err := d.create(KindCommandBuffer)
		if err != nil {
			for _, cb := range out {
				d.destroy(KindCommandBuffer, uint64(cb))
				delete(d.cbs, cb)
			}
			return nil, err
		}
		d.cbs[vulkan.CommandBuffer(h)] = &commandBuffer{pool: p}
		out = append(out, vulkan.CommandBuffer(h))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p vulkan.CommandPool, cbs []vulkan.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkThread(p, "free")
	for _, cb := range cbs {
		if cb == vulkan.NullCommandBuffer {
			continue
		}
		d.destroy(KindCommandBuffer, uint64(cb))
		delete(d.cbs, cb)
	}
}

func (d *Device) buffer(cb vulkan.CommandBuffer, op string) *commandBuffer {
	c, ok := d.cbs[cb]
	if !ok {
		d.violate("%s on unknown command buffer %d", op, cb)
		return nil
	}
	return c
}

func (d *Device) ResetCommandBuffer(cb vulkan.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c := d.buffer(cb, "reset"); c != nil {
		d.checkThread(c.pool, "reset")
		c.recording, c.ready, c.ops = false, false, nil
	}
	return nil
}

func (d *Device) BeginCommandBuffer(cb vulkan.CommandBuffer, oneTime bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.buffer(cb, "begin")
	if c == nil {
		return vulkan.NewResultError("begin command buffer", vulkan.ErrorInitializationFailed)
	}
	d.checkThread(c.pool, "begin")
	if c.ready && d.poolFlags[c.pool]&vulkan.PoolResetCommandBuffer == 0 {
		d.violate("implicit reset of command buffer %d from pool without reset flag", cb)
	}
	c.recording, c.ready, c.ops = true, false, nil
	c.records++
	return nil
}

func (d *Device) EndCommandBuffer(cb vulkan.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.buffer(cb, "end")
	if c == nil || !c.recording {
		d.violate("end of command buffer %d that is not recording", cb)
		return vulkan.NewResultError("end command buffer", vulkan.ErrorInitializationFailed)
	}
	c.recording, c.ready = false, true
	return nil
}

func (d *Device) record(cb vulkan.CommandBuffer, op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.buffer(cb, op)
	if c == nil {
		return
	}
	if !c.recording {
		d.violate("%s into command buffer %d that is not recording", op, cb)
		return
	}
	c.ops = append(c.ops, op)
}

func (d *Device) CmdImageBarrier(cb vulkan.CommandBuffer, b vulkan.ImageBarrier) {
	d.record(cb, fmt.Sprintf("barrier %d %d->%d", b.Image, b.OldLayout, b.NewLayout))
}

func (d *Device) CmdBeginRenderPass(cb vulkan.CommandBuffer, begin vulkan.RenderPassBegin) {
	d.mu.Lock()
	if !d.live[KindFramebuffer][uint64(begin.Framebuffer)] {
		d.violate("render pass begun on unknown framebuffer %d", begin.Framebuffer)
	}
	d.mu.Unlock()
	d.record(cb, fmt.Sprintf("begin-pass %d clear=%v", begin.Framebuffer, begin.Clear))
}

func (d *Device) CmdEndRenderPass(cb vulkan.CommandBuffer) {
	d.record(cb, "end-pass")
}

func (d *Device) CmdBindPipeline(cb vulkan.CommandBuffer, p vulkan.Pipeline) {
	d.mu.Lock()
	if !d.live[KindPipeline][uint64(p)] {
		d.violate("bind of unknown pipeline %d", p)
	}
	d.mu.Unlock()
	d.record(cb, fmt.Sprintf("bind-pipeline %d", p))
}

func (d *Device) CmdBindVertexBuffer(cb vulkan.CommandBuffer, b vulkan.Buffer, offset uint64) {
	d.record(cb, fmt.Sprintf("bind-vertex %d", b))
}

func (d *Device) CmdBindIndexBuffer(cb vulkan.CommandBuffer, b vulkan.Buffer, offset uint64) {
	d.record(cb, fmt.Sprintf("bind-index %d", b))
}

func (d *Device) CmdPushConstants(cb vulkan.CommandBuffer, p vulkan.Pipeline, stages vulkan.ShaderStage, offset uint32, data []byte) {
	d.record(cb, fmt.Sprintf("push %d %x", p, data))
}

func (d *Device) CmdDraw(cb vulkan.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, fmt.Sprintf("draw %d", vertexCount))
}

func (d *Device) CmdDrawIndexed(cb vulkan.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, fmt.Sprintf("draw-indexed %d", indexCount))
}

// Queues

func (d *Device) Queue(class vulkan.QueueClass, priority float32) (*vulkan.Queue, error) {
	return d.queue, nil
}

func (d *Device) QueueSubmit(q *vulkan.Queue, submits []vulkan.SubmitInfo, fence vulkan.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits++
	if d.submits == d.failSubmit {
		return vulkan.NewResultError("queue submit", vulkan.ErrorDeviceLost)
	}
	if fence != vulkan.NullFence {
		signaled, ok := d.fences[fence]
		if !ok {
			d.violate("submit with unknown fence %d", fence)
		} else if signaled {
			d.violate("submit with fence %d that was not reset", fence)
		}
	}
	for _, s := range submits {
		for _, cb := range s.CommandBuffers {
			c := d.buffer(cb, "submit")
			if c != nil && !c.ready {
				d.violate("submit of command buffer %d that is not executable", cb)
			}
		}
		for _, sem := range s.WaitSemaphores {
			d.waitSemaphore(sem, "submit")
		}
		for _, sem := range s.SignalSemaphores {
			d.signalSemaphore(sem, "submit")
		}
		d.submissions = append(d.submissions, Submission{SubmitInfo: s, Fence: fence})
	}
	if _, ok := d.fences[fence]; ok {
		d.fences[fence] = true
	}
	return nil
}

func (d *Device) QueuePresent(q *vulkan.Queue, info vulkan.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentCalls++
	if d.presentCalls == d.failPresent {
		return vulkan.NewResultError("queue present", vulkan.ErrorOutOfDate)
	}
	sc, ok := d.swapchains[info.Swapchain]
	if !ok || !d.live[KindSwapchain][uint64(info.Swapchain)] {
		d.violate("present to unknown swapchain %d", info.Swapchain)
	} else if int(info.ImageIndex) >= len(sc.images) {
		d.violate("present of image %d out of %d", info.ImageIndex, len(sc.images))
	}
	for _, sem := range info.WaitSemaphores {
		d.waitSemaphore(sem, "present")
	}
	d.presents = append(d.presents, info)
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idles++
	return nil
}

// Surfaces and swapchains

func (d *Device) SurfaceCapabilities(s vulkan.Surface) (vulkan.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Caps, nil
}

func (d *Device) SurfaceFormats(s vulkan.Surface) ([]vulkan.SurfaceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vulkan.SurfaceFormat(nil), d.Formats...), nil
}

func (d *Device) SurfacePresentModes(s vulkan.Surface) ([]vulkan.PresentMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vulkan.PresentMode(nil), d.Modes...), nil
}

func (d *Device) CreateSwapchain(info vulkan.SwapchainCreateInfo) (vulkan.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.OldSwapchain != vulkan.NullSwapchain {
		if _, ok := d.swapchains[info.OldSwapchain]; !ok {
			d.violate("create swapchain with unknown old swapchain %d", info.OldSwapchain)
		}
	}
	h, err := d.create(KindSwapchain)
	if err != nil {
		return vulkan.NullSwapchain, err
	}
	sc := &swapchain{}
	for range info.MinImages {
		sc.images = append(sc.images, vulkan.Image(d.nextHandle()))
	}
	d.swapchains[vulkan.Swapchain(h)] = sc
	return vulkan.Swapchain(h), nil
}

func (d *Device) DestroySwapchain(sc vulkan.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSwapchain, uint64(sc))
	delete(d.swapchains, sc)
}

func (d *Device) SwapchainImages(sc vulkan.Swapchain) ([]vulkan.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return nil, vulkan.NewResultError("get swapchain images", vulkan.ErrorSurfaceLost)
	}
	return append([]vulkan.Image(nil), s.images...), nil
}

func (d *Device) CreateImageView(img vulkan.Image, format vulkan.Format, aspect vulkan.ImageAspect) (vulkan.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindImageView)
	return vulkan.ImageView(h), err
}

func (d *Device) DestroyImageView(v vulkan.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImageView, uint64(v))
}

func (d *Device) AcquireNextImage(sc vulkan.Swapchain, timeout time.Duration, signal vulkan.Semaphore, fence vulkan.Fence) (uint32, error) {
	d.mu.Lock()
	if d.holdAfter != 0 && d.acquires+1 >= d.holdAfter {
		d.mu.Unlock()
		time.Sleep(min(timeout, time.Millisecond))
		return 0, vulkan.NewResultError("acquire next image", vulkan.Timeout)
	}
	defer d.mu.Unlock()
	d.acquires++
	if d.acquires == d.failAcquire {
		return 0, vulkan.NewResultError("acquire next image", vulkan.ErrorOutOfDate)
	}
	s, ok := d.swapchains[sc]
	if !ok {
		return 0, vulkan.NewResultError("acquire next image", vulkan.ErrorOutOfDate)
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	if signal != vulkan.NullSemaphore {
		d.signalSemaphore(signal, "acquire")
	}
	if _, ok := d.fences[fence]; ok {
		d.fences[fence] = true
	}
	return idx, nil
}

// Resources

func (d *Device) FindMemoryType(typeFilter uint32, props vulkan.MemoryProperty) (uint32, error) {
	for i := range uint32(32) {
		if typeFilter&(1<<i) != 0 {
			return i, nil
		}
	}
	return 0, vulkan.NewResultError("find memory type", vulkan.ErrorOutOfDeviceMemory)
}

func (d *Device) DepthFormat() vulkan.Format { return vulkan.FormatD32Sfloat }

func (d *Device) CreateImage(info vulkan.ImageCreateInfo) (vulkan.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindImage)
	return vulkan.Image(h), err
}

func (d *Device) DestroyImage(img vulkan.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImage, uint64(img))
}

func (d *Device) CreateRenderPass(info vulkan.RenderPassCreateInfo) (vulkan.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindRenderPass)
	return vulkan.RenderPass(h), err
}

func (d *Device) DestroyRenderPass(rp vulkan.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindRenderPass, uint64(rp))
}

func (d *Device) CreateFramebuffer(info vulkan.FramebufferCreateInfo) (vulkan.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.live[KindRenderPass][uint64(info.RenderPass)] {
		d.violate("framebuffer for unknown render pass %d", info.RenderPass)
	}
	h, err := d.create(KindFramebuffer)
	return vulkan.Framebuffer(h), err
}

func (d *Device) DestroyFramebuffer(fb vulkan.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFramebuffer, uint64(fb))
}

func (d *Device) CreateGraphicsPipeline(info vulkan.PipelineCreateInfo) (vulkan.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.live[KindRenderPass][uint64(info.RenderPass)] {
		d.violate("pipeline for unknown render pass %d", info.RenderPass)
	}
	h, err := d.create(KindPipeline)
	if err != nil {
		return vulkan.NullPipeline, err
	}
	d.pipelineInfo[vulkan.Pipeline(h)] = info
	return vulkan.Pipeline(h), nil
}

func (d *Device) DestroyPipeline(p vulkan.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipeline, uint64(p))
	delete(d.pipelineInfo, p)
}

func (d *Device) CreateBuffer(usage vulkan.BufferUsage, data []byte) (vulkan.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindBuffer)
	return vulkan.Buffer(h), err
}

func (d *Device) DestroyBuffer(b vulkan.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindBuffer, uint64(b))
}

var _ vulkan.Device = (*Device)(nil)
