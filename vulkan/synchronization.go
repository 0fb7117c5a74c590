package vulkan

import (
	"time"

	"github.com/pkg/errors"

	"frame-engine/core"
)

// noCopy makes go vet flag copies of the groups below.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// FenceGroup owns N fences created on one device.
//
// A fence that failed to create is left null and the group is degraded;
// callers check Valid before use. A fence must be reset between two waits,
// WaitThenReset is the safe reuse pattern.
type FenceGroup struct {
	_      noCopy
	dev    SyncDevice
	fences []Fence
}

// NewFenceGroup eagerly creates n fences.
func NewFenceGroup(dev SyncDevice, n int, signaled bool) *FenceGroup {
	g := &FenceGroup{dev: dev, fences: make([]Fence, n)}
	for i := range g.fences {
		f, err := dev.CreateFence(signaled)
		if err != nil {
			core.Logger().Warn("fence creation failed, group degraded", "index", i, "err", err)
			continue
		}
		g.fences[i] = f
	}
	return g
}

// Valid reports whether every fence of the group exists.
func (g *FenceGroup) Valid() bool {
	if g == nil || g.dev == nil {
		return false
	}
	for _, f := range g.fences {
		if f == NullFence {
			return false
		}
	}
	return true
}

func (g *FenceGroup) Len() int { return len(g.fences) }

func (g *FenceGroup) At(i int) Fence { return g.fences[i] }

func (g *FenceGroup) span(start, count int) ([]Fence, error) {
	if start < 0 || count < 0 || start+count > len(g.fences) {
		return nil, errors.Errorf("fence range [%d,%d) out of bounds for group of %d", start, start+count, len(g.fences))
	}
	span := g.fences[start : start+count]
	for _, f := range span {
		if f == NullFence {
			return nil, ErrDegradedGroup
		}
	}
	return span, nil
}

// Reset unsignals fences [start, start+count).
func (g *FenceGroup) Reset(start, count int) error {
	span, err := g.span(start, count)
	if err != nil {
		return err
	}
	if len(span) == 0 {
		return nil
	}
	return errors.Wrap(g.dev.ResetFences(span), "failed to reset fences")
}

// Wait blocks until fences [start, start+count) are all signaled or the
// timeout runs out.
func (g *FenceGroup) Wait(start, count int, timeout time.Duration) error {
	span, err := g.span(start, count)
	if err != nil {
		return err
	}
	if len(span) == 0 {
		return nil
	}
	return errors.Wrap(g.dev.WaitForFences(span, timeout), "failed to wait for fences")
}

// WaitThenReset waits for fences [start, start+count) and resets them.
func (g *FenceGroup) WaitThenReset(start, count int, timeout time.Duration) error {
	if err := g.Wait(start, count, timeout); err != nil {
		return err
	}
	return g.Reset(start, count)
}

// Status reports whether fence n is signaled.
func (g *FenceGroup) Status(n int) (bool, error) {
	span, err := g.span(n, 1)
	if err != nil {
		return false, err
	}
	return g.dev.FenceStatus(span[0])
}

// Move transfers ownership of the fences to a new group and empties g.
func (g *FenceGroup) Move() *FenceGroup {
	m := &FenceGroup{dev: g.dev, fences: g.fences}
	g.dev, g.fences = nil, nil
	return m
}

// Release destroys every non-null fence. It is safe to call twice.
func (g *FenceGroup) Release() {
	if g == nil || g.dev == nil {
		return
	}
	for i, f := range g.fences {
		if f != NullFence {
			g.dev.DestroyFence(f)
			g.fences[i] = NullFence
		}
	}
	g.dev = nil
}

// SemaphoreGroup owns N semaphores created on one device. Like FenceGroup a
// failed element is left null.
type SemaphoreGroup struct {
	_    noCopy
	dev  SyncDevice
	sems []Semaphore
}

func NewSemaphoreGroup(dev SyncDevice, n int) *SemaphoreGroup {
	g := &SemaphoreGroup{dev: dev, sems: make([]Semaphore, n)}
	for i := range g.sems {
		s, err := dev.CreateSemaphore()
		if err != nil {
			core.Logger().Warn("semaphore creation failed, group degraded", "index", i, "err", err)
			continue
		}
		g.sems[i] = s
	}
	return g
}

func (g *SemaphoreGroup) Valid() bool {
	if g == nil || g.dev == nil {
		return false
	}
	for _, s := range g.sems {
		if s == NullSemaphore {
			return false
		}
	}
	return true
}

func (g *SemaphoreGroup) Len() int { return len(g.sems) }

func (g *SemaphoreGroup) At(i int) Semaphore { return g.sems[i] }

func (g *SemaphoreGroup) Move() *SemaphoreGroup {
	m := &SemaphoreGroup{dev: g.dev, sems: g.sems}
	g.dev, g.sems = nil, nil
	return m
}

func (g *SemaphoreGroup) Release() {
	if g == nil || g.dev == nil {
		return
	}
	for i, s := range g.sems {
		if s != NullSemaphore {
			g.dev.DestroySemaphore(s)
			g.sems[i] = NullSemaphore
		}
	}
	g.dev = nil
}
