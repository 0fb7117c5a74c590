package vulkan_test

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frame-engine/vulkan"
	"frame-engine/vulkan/vulkantest"
)

func TestCommandPoolRegistrySameThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	dev := vulkantest.New()
	r := vulkan.NewCommandPoolRegistry()

	a, err := r.Get(dev, 0, vulkan.PoolResetCommandBuffer)
	require.NoError(t, err)
	b, err := r.Get(dev, 0, vulkan.PoolResetCommandBuffer)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := r.Get(dev, 0, vulkan.PoolTransient)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := r.Get(dev, 1, vulkan.PoolResetCommandBuffer)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)

	assert.Equal(t, 3, r.Len())
}

func TestCommandPoolRegistryPerThread(t *testing.T) {
	dev := vulkantest.New()
	r := vulkan.NewCommandPoolRegistry()

	const workers = 4
	pools := make([]vulkan.CommandPool, workers)
	threads := make([]uint64, workers)
	var ready, done sync.WaitGroup
	ready.Add(workers)
	done.Add(workers)
	release := make(chan struct{})
	for i := range workers {
		go func() {
			defer done.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			p, err := r.Get(dev, 0, vulkan.PoolResetCommandBuffer)
			assert.NoError(t, err)
			cbs, err := dev.AllocateCommandBuffers(p, 1)
			assert.NoError(t, err)
			assert.NoError(t, dev.BeginCommandBuffer(cbs[0], true))
			assert.NoError(t, dev.EndCommandBuffer(cbs[0]))
			dev.FreeCommandBuffers(p, cbs)
			pools[i], threads[i] = p, vulkan.CurrentThread()

			// Keep every thread alive until all have taken a pool.
			ready.Done()
			<-release
		}()
	}
	ready.Wait()
	close(release)
	done.Wait()

	seen := map[vulkan.CommandPool]bool{}
	for i, p := range pools {
		assert.False(t, seen[p], "pool %d shared between threads", p)
		seen[p] = true
		assert.NotZero(t, threads[i])
	}
	assert.Equal(t, workers, r.Len())
	assert.Empty(t, dev.Violations())
}

func TestCommandPoolRegistryCleanup(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	devA, devB := vulkantest.New(), vulkantest.New()
	r := vulkan.NewCommandPoolRegistry()

	_, err := r.Get(devA, 0, 0)
	require.NoError(t, err)
	_, err = r.Get(devA, 1, 0)
	require.NoError(t, err)
	_, err = r.Get(devB, 0, 0)
	require.NoError(t, err)

	r.Cleanup(devA)
	assert.Equal(t, 0, devA.LiveOf(vulkantest.KindCommandPool))
	assert.Equal(t, 1, devB.LiveOf(vulkantest.KindCommandPool))
	assert.Equal(t, 1, r.Len())

	p, err := r.Get(devA, 0, 0)
	require.NoError(t, err)
	assert.NotEqual(t, vulkan.NullCommandPool, p)
}

func TestCommandPoolRegistryCreateFailure(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	dev := vulkantest.New()
	dev.FailCreate(vulkantest.KindCommandPool, 1)
	r := vulkan.NewCommandPoolRegistry()

	_, err := r.Get(dev, 0, 0)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())

	_, err = r.Get(dev, 0, 0)
	assert.NoError(t, err)
}
