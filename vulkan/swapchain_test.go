package vulkan_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frame-engine/vulkan"
	"frame-engine/vulkan/vulkantest"
)

func newSwapchain(t *testing.T, dev *vulkantest.Device, opts vulkan.SwapchainOptions) *vulkan.SwapchainManager {
	t.Helper()
	m := vulkan.NewSwapchainManager(vulkan.NewCommandPoolRegistry(), opts)
	require.NoError(t, m.Init(dev, vulkantest.NewSurface(800, 600)))
	return m
}

func TestSwapchainInit(t *testing.T) {
	dev := vulkantest.New()
	m := newSwapchain(t, dev, vulkan.SwapchainOptions{ImageCount: 3})

	assert.True(t, m.Ready())
	assert.Equal(t, 3, m.ImageCount())
	assert.Len(t, m.Images(), 3)
	assert.Len(t, m.Views(), 3)
	assert.Equal(t, vulkan.FormatB8G8R8A8Srgb, m.Format().Format)
	assert.Equal(t, vulkan.PresentModeFifo, m.PresentMode())
	assert.Equal(t, vulkan.Extent2D{Width: 800, Height: 600}, m.Extent())
	assert.Equal(t, 3, dev.LiveOf(vulkantest.KindImageView))

	// Every image went through the one-shot transition to the present
	// layout, and its fence was waited on.
	subs := dev.Submissions()
	require.Len(t, subs, 1)
	ops := dev.CommandLog(subs[0].CommandBuffers[0])
	assert.Nil(t, ops, "one-shot command buffer is freed after the wait")
	assert.Equal(t, []string{"wait"}, dev.FenceLog(subs[0].Fence))
	assert.Equal(t, 0, dev.LiveOf(vulkantest.KindFence))
	assert.Equal(t, 0, dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Empty(t, dev.Violations())
}

func TestSwapchainImageCountClamped(t *testing.T) {
	dev := vulkantest.New()
	dev.Caps.MinImageCount, dev.Caps.MaxImageCount = 2, 4

	m := newSwapchain(t, dev, vulkan.SwapchainOptions{ImageCount: 16})
	assert.Equal(t, 4, m.ImageCount())

	dev = vulkantest.New()
	dev.Caps.MinImageCount, dev.Caps.MaxImageCount = 2, 0
	m = newSwapchain(t, dev, vulkan.SwapchainOptions{})
	assert.Equal(t, 3, m.ImageCount())
}

func TestSwapchainExtentFromSurface(t *testing.T) {
	dev := vulkantest.New()
	dev.Caps.CurrentExtent = vulkan.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	dev.Caps.MaxImageExtent = vulkan.Extent2D{Width: 1024, Height: 1024}

	m := vulkan.NewSwapchainManager(vulkan.NewCommandPoolRegistry(), vulkan.SwapchainOptions{})
	require.NoError(t, m.Init(dev, vulkantest.NewSurface(2000, 500)))
	assert.Equal(t, vulkan.Extent2D{Width: 1024, Height: 500}, m.Extent())
}

func TestSwapchainPresentMode(t *testing.T) {
	dev := vulkantest.New()
	m := newSwapchain(t, dev, vulkan.SwapchainOptions{LowLatency: true})
	assert.Equal(t, vulkan.PresentModeMailbox, m.PresentMode())

	dev = vulkantest.New()
	dev.Modes = []vulkan.PresentMode{vulkan.PresentModeImmediate, vulkan.PresentModeFifo}
	m = newSwapchain(t, dev, vulkan.SwapchainOptions{LowLatency: true})
	assert.Equal(t, vulkan.PresentModeFifo, m.PresentMode())
}

func TestSwapchainFormatFallback(t *testing.T) {
	dev := vulkantest.New()
	dev.Formats = []vulkan.SurfaceFormat{{Format: vulkan.FormatR8G8B8A8Srgb}}
	m := newSwapchain(t, dev, vulkan.SwapchainOptions{})
	assert.Equal(t, vulkan.FormatR8G8B8A8Srgb, m.Format().Format)
}

func TestSwapchainRecreateReplacesOld(t *testing.T) {
	dev := vulkantest.New()
	surface := vulkantest.NewSurface(800, 600)
	m := vulkan.NewSwapchainManager(vulkan.NewCommandPoolRegistry(), vulkan.SwapchainOptions{ImageCount: 3})
	require.NoError(t, m.Init(dev, surface))
	first := m.Handle()

	dev.Caps.CurrentExtent = vulkan.Extent2D{Width: 640, Height: 480}
	require.NoError(t, m.Init(dev, surface))

	assert.NotEqual(t, first, m.Handle())
	assert.Equal(t, []vulkan.Swapchain{m.Handle()}, dev.LiveSwapchains())
	assert.Equal(t, 3, dev.LiveOf(vulkantest.KindImageView))
	assert.Equal(t, vulkan.Extent2D{Width: 640, Height: 480}, m.Extent())
	assert.Empty(t, dev.Violations())
}

func TestSwapchainFailedInitKeepsPrevious(t *testing.T) {
	dev := vulkantest.New()
	surface := vulkantest.NewSurface(800, 600)
	m := vulkan.NewSwapchainManager(vulkan.NewCommandPoolRegistry(), vulkan.SwapchainOptions{ImageCount: 3})
	require.NoError(t, m.Init(dev, surface))
	handle, images, views := m.Handle(), m.Images(), m.Views()

	dev.FailCreate(vulkantest.KindImageView, 2)
	err := m.Init(dev, surface)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image view 1")

	assert.Equal(t, handle, m.Handle())
	assert.Equal(t, images, m.Images())
	assert.Equal(t, views, m.Views())
	assert.Equal(t, []vulkan.Swapchain{handle}, dev.LiveSwapchains())
	assert.Equal(t, 3, dev.LiveOf(vulkantest.KindImageView))

	dev.FailCreate(vulkantest.KindSwapchain, 1)
	require.Error(t, m.Init(dev, surface))
	assert.Equal(t, handle, m.Handle())
	assert.Empty(t, dev.Violations())
}

func TestSwapchainFailedTransitionKeepsPrevious(t *testing.T) {
	dev := vulkantest.New()
	surface := vulkantest.NewSurface(800, 600)
	m := vulkan.NewSwapchainManager(vulkan.NewCommandPoolRegistry(), vulkan.SwapchainOptions{ImageCount: 2})
	require.NoError(t, m.Init(dev, surface))
	handle := m.Handle()

	dev.FailCreate(vulkantest.KindFence, 1)
	err := m.Init(dev, surface)
	require.ErrorIs(t, err, vulkan.ErrDegradedGroup)
	assert.Equal(t, handle, m.Handle())
	assert.Equal(t, 2, dev.LiveOf(vulkantest.KindImageView))
	assert.Equal(t, 1, dev.LiveOf(vulkantest.KindSwapchain))
}

func TestSwapchainDestroyTwice(t *testing.T) {
	dev := vulkantest.New()
	m := newSwapchain(t, dev, vulkan.SwapchainOptions{})

	require.NoError(t, m.Destroy())
	assert.False(t, m.Ready())
	assert.Equal(t, 0, m.ImageCount())
	assert.Equal(t, 0, dev.LiveOf(vulkantest.KindSwapchain))
	assert.Equal(t, 0, dev.LiveOf(vulkantest.KindImageView))

	assert.ErrorIs(t, m.Destroy(), vulkan.ErrNotInitialized)
	_, err := m.AcquireNextImage(vulkan.NullSemaphore, vulkan.NullFence, time.Second)
	assert.ErrorIs(t, err, vulkan.ErrNotInitialized)
	assert.Empty(t, dev.Violations())
}

func TestSwapchainAcquireRoundRobin(t *testing.T) {
	dev := vulkantest.New()
	m := newSwapchain(t, dev, vulkan.SwapchainOptions{ImageCount: 3})

	var got []uint32
	for range 4 {
		idx, err := m.AcquireNextImage(vulkan.NullSemaphore, vulkan.NullFence, time.Second)
		require.NoError(t, err)
		got = append(got, idx)
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, got)

	dev.FailAcquireAt(5)
	_, err := m.AcquireNextImage(vulkan.NullSemaphore, vulkan.NullFence, time.Second)
	assert.ErrorIs(t, err, vulkan.ErrOutOfDate)
	assert.True(t, strings.Contains(err.Error(), "acquire"))
}
