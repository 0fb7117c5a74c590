package vulkan

import (
	"sync"
	"time"
)

// SyncDevice creates and drives fences and semaphores.
type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	ResetFences(fences []Fence) error
	// WaitForFences waits until all fences are signaled. A wait that runs
	// out of time returns an error matching ErrTimeout.
	WaitForFences(fences []Fence, timeout time.Duration) error
	FenceStatus(f Fence) (signaled bool, err error)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
}

// CommandDevice owns command pools and records into command buffers.
// Pools and the buffers allocated from them must only be touched from the
// thread that created the pool; see CommandPoolRegistry.
type CommandDevice interface {
	CreateCommandPool(family uint32, flags CommandPoolFlags) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffers(p CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(p CommandPool, cbs []CommandBuffer)
	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdImageBarrier(cb CommandBuffer, b ImageBarrier)
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindVertexBuffer(cb CommandBuffer, b Buffer, offset uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64)
	CmdPushConstants(cb CommandBuffer, p Pipeline, stages ShaderStage, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// QueueDevice hands out queues and submits to them. Callers go through
// Queue.Submit and Queue.Present, which hold the queue's submission mutex.
type QueueDevice interface {
	Queue(class QueueClass, priority float32) (*Queue, error)
	QueueSubmit(q *Queue, submits []SubmitInfo, fence Fence) error
	QueuePresent(q *Queue, info PresentInfo) error
	WaitIdle() error
}

// SwapchainDevice answers surface queries and manages presentable images.
type SwapchainDevice interface {
	SurfaceCapabilities(s Surface) (SurfaceCapabilities, error)
	SurfaceFormats(s Surface) ([]SurfaceFormat, error)
	SurfacePresentModes(s Surface) ([]PresentMode, error)
	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	DestroySwapchain(sc Swapchain)
	SwapchainImages(sc Swapchain) ([]Image, error)
	CreateImageView(img Image, format Format, aspect ImageAspect) (ImageView, error)
	DestroyImageView(v ImageView)
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore, fence Fence) (uint32, error)
}

// ResourceDevice creates the render target resources a renderer owns.
type ResourceDevice interface {
	FindMemoryType(typeFilter uint32, props MemoryProperty) (uint32, error)
	DepthFormat() Format
	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(img Image)
	CreateRenderPass(info RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreateGraphicsPipeline(info PipelineCreateInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)
	// CreateBuffer creates a host visible buffer holding a copy of data.
	CreateBuffer(usage BufferUsage, data []byte) (Buffer, error)
	DestroyBuffer(b Buffer)
}

// Device is everything the frame engine needs from a GPU.
type Device interface {
	SyncDevice
	CommandDevice
	QueueDevice
	SwapchainDevice
	ResourceDevice
}

// Queue is a device queue together with the mutex that serializes
// submissions to it.
type Queue struct {
	Class  QueueClass
	Family uint32
	Handle QueueHandle

	mu sync.Mutex
}

// Submit submits batches to the queue while holding its submission mutex.
func (q *Queue) Submit(dev QueueDevice, submits []SubmitInfo, fence Fence) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return dev.QueueSubmit(q, submits, fence)
}

// Present queues a present while holding the submission mutex.
func (q *Queue) Present(dev QueueDevice, info PresentInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return dev.QueuePresent(q, info)
}

// SurfaceProvider is the window side of presentation.
type SurfaceProvider interface {
	Surface() Surface
	DrawableExtent() Extent2D
	OnResize(func(Extent2D))
}
