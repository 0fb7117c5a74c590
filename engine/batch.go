package engine

import (
	"runtime"
	"slices"

	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/renderer"
	"frame-engine/vulkan"
)

// Batch mutates the renderer set of a stopped loop. It is only valid inside
// the function passed to Loop.Batch, which runs on a goroutine locked to
// its OS thread.
type Batch struct {
	l    *Loop
	pool vulkan.CommandPool
}

// Batch stops the loop if it is running, calls fn, and starts the loop
// again if it was running before. Code that already runs inside fn
// mutates through b instead of calling the Loop mutators, which would
// deadlock.
func (l *Loop) Batch(fn func(b *Batch) error) error {
	l.ctl.Lock()
	defer l.ctl.Unlock()

	if l.closed {
		return ErrClosed
	}
	wasRunning := l.running
	if wasRunning {
		if err := l.stop(); err != nil {
			return err
		}
	}

	runtime.LockOSThread()
	err := fn(&Batch{l: l})
	runtime.UnlockOSThread()

	if wasRunning {
		if serr := l.start(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// commandPool returns the calling thread's pool for one-shot work.
func (b *Batch) commandPool() (vulkan.CommandPool, error) {
	if b.pool != vulkan.NullCommandPool {
		return b.pool, nil
	}
	q, err := b.l.dev.Queue(vulkan.QueueGraphics, 1)
	if err != nil {
		return vulkan.NullCommandPool, err
	}
	b.pool, err = b.l.pools.Get(b.l.dev, q.Family, vulkan.PoolTransient|vulkan.PoolResetCommandBuffer)
	return b.pool, err
}

// AddRenderer initializes u if needed and appends it. Adding a renderer
// twice is a no-op.
func (b *Batch) AddRenderer(u *renderer.Unit) error {
	pool, err := b.commandPool()
	if err != nil {
		return err
	}
	if err := u.Init(pool); err != nil {
		return errors.Wrapf(err, "failed to init renderer %s", u.Name())
	}

	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	if !slices.Contains(b.l.units, u) {
		b.l.units = append(b.l.units, u)
	}
	return nil
}

// RemoveRenderer drops u and reports whether it was present. The renderer
// is not destroyed.
func (b *Batch) RemoveRenderer(u *renderer.Unit) bool {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	i := slices.Index(b.l.units, u)
	if i < 0 {
		return false
	}
	b.l.units = slices.Delete(b.l.units, i, i+1)
	return true
}

func (b *Batch) ClearRenderers() {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	b.l.units = nil
}

func (b *Batch) Renderers() []*renderer.Unit {
	return b.l.snapshot()
}

func (b *Batch) SetClearColor(c core.Color) {
	for _, u := range b.l.snapshot() {
		u.SetClearColor(c)
	}
}

// Resize recreates the swapchain for surface and the render targets of
// every renderer.
func (b *Batch) Resize(surface vulkan.SurfaceProvider) error {
	if err := b.l.swap.Init(b.l.dev, surface); err != nil {
		return err
	}
	pool, err := b.commandPool()
	if err != nil {
		return err
	}
	for _, u := range b.l.snapshot() {
		if err := u.Resize(pool); err != nil {
			return errors.Wrapf(err, "failed to resize renderer %s", u.Name())
		}
	}
	return nil
}

// Invalidate marks every renderer's recording stale.
func (b *Batch) Invalidate() {
	for _, u := range b.l.snapshot() {
		u.Invalidate()
	}
}

func (l *Loop) AddRenderer(u *renderer.Unit) error {
	return l.Batch(func(b *Batch) error { return b.AddRenderer(u) })
}

// RemoveRenderer drops u. Removing a renderer the loop does not hold is a
// no-op.
func (l *Loop) RemoveRenderer(u *renderer.Unit) error {
	return l.Batch(func(b *Batch) error {
		b.RemoveRenderer(u)
		return nil
	})
}

func (l *Loop) ClearRenderers() error {
	return l.Batch(func(b *Batch) error {
		b.ClearRenderers()
		return nil
	})
}

func (l *Loop) Renderers() []*renderer.Unit {
	return l.snapshot()
}

// Rebuild stops the loop and starts it again, which rebuilds every
// pipeline and records every command buffer from scratch.
func (l *Loop) Rebuild() error {
	return l.Batch(func(b *Batch) error {
		b.Invalidate()
		return nil
	})
}

// Resize rebuilds the swapchain and every render target for surface's
// current size.
func (l *Loop) Resize(surface vulkan.SurfaceProvider) error {
	return l.Batch(func(b *Batch) error { return b.Resize(surface) })
}

// SetClearColor sets the clear color of every renderer. It takes effect
// with the next full recording and does not stop the loop.
func (l *Loop) SetClearColor(c core.Color) {
	for _, u := range l.snapshot() {
		u.SetClearColor(c)
	}
}
