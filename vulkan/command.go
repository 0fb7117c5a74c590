package vulkan

import (
	"sync"

	"github.com/pkg/errors"

	"frame-engine/core"
)

type poolKey struct {
	dev    CommandDevice
	family uint32
	flags  CommandPoolFlags
	thread uint64
}

// CommandPoolRegistry hands out command pools that are private to the
// calling OS thread. There is at most one pool per device, queue family,
// creation flags and thread.
//
// A pool is only private to a goroutine while that goroutine stays on the
// same OS thread, so callers pin themselves with runtime.LockOSThread for as
// long as they use the pool and the buffers allocated from it.
type CommandPoolRegistry struct {
	mu    sync.Mutex
	pools map[poolKey]CommandPool
}

func NewCommandPoolRegistry() *CommandPoolRegistry {
	return &CommandPoolRegistry{pools: make(map[poolKey]CommandPool)}
}

// Get returns the calling thread's pool for the family, creating it on
// first use. The pool stays valid until Cleanup is called for dev.
func (r *CommandPoolRegistry) Get(dev CommandDevice, family uint32, flags CommandPoolFlags) (CommandPool, error) {
	key := poolKey{dev: dev, family: family, flags: flags, thread: CurrentThread()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[key]; ok {
		return p, nil
	}
	p, err := dev.CreateCommandPool(family, flags)
	if err != nil {
		return NullCommandPool, errors.Wrapf(err, "failed to create command pool for family %d", family)
	}
	r.pools[key] = p
	core.Logger().Debug("command pool created", "family", family, "flags", uint32(flags), "thread", key.thread)
	return p, nil
}

// Cleanup destroys every pool created for dev.
//
// It must only run once all command buffers of dev are idle and no caller
// still holds a pool returned by Get; pools handed out earlier dangle
// afterwards.
func (r *CommandPoolRegistry) Cleanup(dev CommandDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, p := range r.pools {
		if k.dev != dev {
			continue
		}
		dev.DestroyCommandPool(p)
		delete(r.pools, k)
		n++
	}
	core.Logger().Debug("command pools destroyed", "count", n)
}

// Len returns the number of live pools across all devices.
func (r *CommandPoolRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// SubmitOnce records a single-use command buffer from pool, submits it to q
// and blocks on a fence until the device has executed it. pool must belong
// to the calling thread.
func SubmitOnce(dev Device, q *Queue, pool CommandPool, record func(cb CommandBuffer)) error {
	cbs, err := dev.AllocateCommandBuffers(pool, 1)
	if err != nil {
		return errors.Wrap(err, "failed to allocate command buffer")
	}
	defer dev.FreeCommandBuffers(pool, cbs)

	cb := cbs[0]
	if err := dev.BeginCommandBuffer(cb, true); err != nil {
		return errors.Wrap(err, "failed to begin command buffer")
	}
	record(cb)
	if err := dev.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "failed to end command buffer")
	}

	fences := NewFenceGroup(dev, 1, false)
	defer fences.Release()
	if !fences.Valid() {
		return ErrDegradedGroup
	}
	if err := q.Submit(dev, []SubmitInfo{{CommandBuffers: cbs}}, fences.At(0)); err != nil {
		return errors.Wrap(err, "failed to submit command buffer")
	}
	return fences.Wait(0, 1, Infinite)
}
