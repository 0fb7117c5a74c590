// Package vulkan is the device abstraction the frame engine is built on.
// It carries backend-neutral handle types, the small device interfaces each
// component consumes, and the pieces of the submission core that sit
// directly on top of a device: fence/semaphore groups, the thread-confined
// command pool registry and the swapchain manager.
//
// A real implementation lives in internal/vkdev; tests use vulkantest.
package vulkan

import (
	"math"
	"time"
)

// Opaque handles. The zero value of every handle is the null handle.
type (
	Fence         uint64
	Semaphore     uint64
	CommandPool   uint64
	CommandBuffer uint64
	Swapchain     uint64
	Surface       uint64
	Image         uint64
	ImageView     uint64
	RenderPass    uint64
	Framebuffer   uint64
	Pipeline      uint64
	Buffer        uint64
	QueueHandle   uint64
)

const (
	NullFence         Fence         = 0
	NullSemaphore     Semaphore     = 0
	NullCommandPool   CommandPool   = 0
	NullCommandBuffer CommandBuffer = 0
	NullSwapchain     Swapchain     = 0
	NullImage         Image         = 0
	NullImageView     ImageView     = 0
	NullRenderPass    RenderPass    = 0
	NullFramebuffer   Framebuffer   = 0
	NullPipeline      Pipeline      = 0
	NullBuffer        Buffer        = 0
)

// Infinite is the timeout value that never expires.
const Infinite = time.Duration(math.MaxInt64)

// Format mirrors VkFormat for the handful of formats the engine selects.
type Format int32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

// ColorSpace mirrors VkColorSpaceKHR.
type ColorSpace int32

const ColorSpaceSrgbNonlinear ColorSpace = 0

// PresentMode mirrors VkPresentModeKHR.
type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// ImageLayout mirrors VkImageLayout.
type ImageLayout int32

const (
	LayoutUndefined              ImageLayout = 0
	LayoutColorAttachment        ImageLayout = 2
	LayoutDepthStencilAttachment ImageLayout = 3
	LayoutTransferDst            ImageLayout = 7
	LayoutPresentSrc             ImageLayout = 1000001002
)

// ImageAspect selects the aspect of an image a view or barrier addresses.
type ImageAspect uint32

const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

// PipelineStage mirrors VkPipelineStageFlags.
type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageEarlyFragmentTests    PipelineStage = 0x00000100
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
	StageAllCommands           PipelineStage = 0x00010000
)

// ShaderStage mirrors VkShaderStageFlags.
type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x01
	ShaderStageFragment ShaderStage = 0x10
)

// QueueClass selects which capability a retrieved queue must have.
type QueueClass int

const (
	QueueGraphics QueueClass = iota
	QueuePresent
	QueueTransfer
)

// CommandPoolFlags mirrors VkCommandPoolCreateFlags.
type CommandPoolFlags uint32

const (
	PoolTransient          CommandPoolFlags = 0x1
	PoolResetCommandBuffer CommandPoolFlags = 0x2
)

// BufferUsage mirrors VkBufferUsageFlags.
type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 0x10
	BufferUsageIndex   BufferUsage = 0x40
	BufferUsageVertex  BufferUsage = 0x80
)

// MemoryProperty mirrors VkMemoryPropertyFlags.
type MemoryProperty uint32

const (
	MemoryDeviceLocal  MemoryProperty = 0x1
	MemoryHostVisible  MemoryProperty = 0x2
	MemoryHostCoherent MemoryProperty = 0x4
)

type Extent2D struct {
	Width, Height uint32
}

// SurfaceCapabilities is what a surface reports about the swapchains it
// accepts. MaxImageCount of zero means there is no upper bound; a
// CurrentExtent width of math.MaxUint32 means the surface size is decided by
// the swapchain extent.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SwapchainCreateInfo struct {
	Surface      Surface
	MinImages    uint32
	Format       SurfaceFormat
	Extent       Extent2D
	PresentMode  PresentMode
	// OldSwapchain is passed to the driver as a resource reuse hint.
	OldSwapchain Swapchain
}

// ImageBarrier is a single image layout transition.
type ImageBarrier struct {
	Image     Image
	Aspect    ImageAspect
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

type ImageCreateInfo struct {
	Format Format
	Extent Extent2D
	Aspect ImageAspect
}

// RenderPassCreateInfo describes the single-subpass render passes the
// renderer uses. Color attachments stay in LayoutColorAttachment; layout
// changes to and from presentation are recorded as explicit barriers.
type RenderPassCreateInfo struct {
	ColorFormat Format
	DepthFormat Format
	// Load keeps the previous color contents instead of clearing them.
	Load bool
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type ClearColor [4]float32

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	Clear       ClearColor
	ClearDepth  bool
}

// VertexAttribute is one attribute of an interleaved vertex layout.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type DescriptorBinding struct {
	Binding uint32
	Stages  ShaderStage
	Count   uint32
}

type PipelineCreateInfo struct {
	RenderPass   RenderPass
	Extent       Extent2D
	VertexCode   []byte
	FragmentCode []byte
	Vertex       VertexLayout
	PushConstant PushConstantRange
	Descriptors  []DescriptorBinding
	DepthTest    bool
}

// SubmitInfo is one batch of a queue submission.
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}
