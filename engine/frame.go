package engine

import (
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/renderer"
	"frame-engine/vulkan"
)

const (
	fencePre = iota
	fenceRender
	fencePost
	numFences
)

const (
	semAcquired = iota
	semReady
	numSemaphores
)

// batch is what one swapchain image submits: the layout transitions of the
// first unit around the render buffers of every unit.
type batch struct {
	pre, render, post []vulkan.CommandBuffer
}

// activation is the state the render goroutine builds when recording starts
// and drops when the frame cycle ends.
type activation struct {
	dev     vulkan.Device
	graphic *vulkan.Queue
	present *vulkan.Queue
	fences  *vulkan.FenceGroup
	sems    *vulkan.SemaphoreGroup
	units   []*renderer.Unit
	dynamic []*renderer.Unit
	batches []batch
}

// prepare runs on the render goroutine when recording is requested.
func (l *Loop) prepare() (*activation, error) {
	act := &activation{dev: l.dev}
	units := l.snapshot()
	if len(units) == 0 {
		return act, nil
	}
	if !l.swap.Ready() {
		return nil, errors.Wrap(vulkan.ErrNotInitialized, "swapchain")
	}

	var err error
	if act.graphic, err = l.dev.Queue(vulkan.QueueGraphics, 1); err != nil {
		return nil, errors.Wrap(err, "failed to get graphics queue")
	}
	if act.present, err = l.dev.Queue(vulkan.QueuePresent, 1); err != nil {
		return nil, errors.Wrap(err, "failed to get present queue")
	}
	pool, err := l.pools.Get(l.dev, act.graphic.Family, vulkan.PoolResetCommandBuffer)
	if err != nil {
		return nil, err
	}

	act.fences = vulkan.NewFenceGroup(l.dev, numFences, false)
	act.sems = vulkan.NewSemaphoreGroup(l.dev, numSemaphores)
	if !act.fences.Valid() || !act.sems.Valid() {
		act.teardown()
		return nil, vulkan.ErrDegradedGroup
	}

	images := l.swap.ImageCount()
	for _, u := range units {
		act.units = append(act.units, u)
		if err := u.Update(pool); err != nil {
			act.teardown()
			return nil, errors.Wrapf(err, "failed to update renderer %s", u.Name())
		}
		if n := u.Framebuffers(); n != images {
			act.teardown()
			return nil, errors.Errorf("renderer %s has %d framebuffers for %d swapchain images", u.Name(), n, images)
		}
		if u.Options().DynamicPushConstants {
			act.dynamic = append(act.dynamic, u)
		}
	}

	act.batches = make([]batch, images)
	for i := range act.batches {
		b := &act.batches[i]
		for j, u := range units {
			set, ok := u.Buffers(i)
			if !ok {
				// Invalidated since its Update, by a clear color change or
				// by another unit's drawables.
				if err := u.Record(i, renderer.RecordFull); err != nil {
					act.teardown()
					return nil, errors.Wrapf(err, "failed to re-record renderer %s", u.Name())
				}
				if set, ok = u.Buffers(i); !ok {
					act.teardown()
					return nil, errors.Wrapf(renderer.ErrNotReady, "renderer %s framebuffer %d has no valid recording", u.Name(), i)
				}
			}
			if j == 0 {
				b.pre = []vulkan.CommandBuffer{set.Pre}
				b.post = []vulkan.CommandBuffer{set.Post}
			}
			b.render = append(b.render, set.Render)
		}
	}
	core.Logger().Debug("frame loop recorded", "renderers", len(units), "images", images,
		"dynamic", len(act.dynamic))
	return act, nil
}

// teardown waits for the device and frees what prepare built. It runs on
// the render goroutine.
func (a *activation) teardown() {
	if err := a.dev.WaitIdle(); err != nil {
		core.Logger().Error("device wait idle failed", "err", err)
	}
	if a.fences == nil {
		return
	}
	for _, u := range a.units {
		u.FreeCommandBuffers()
	}
	a.fences.Release()
	a.sems.Release()
	a.units, a.dynamic, a.batches = nil, nil, nil
	a.fences, a.sems = nil, nil
}

// cycle is the steady state: acquire, submit pre, render and post, present,
// then wait for the frame before the next one. Any acquire, submit or
// present failure ends the cycle.
func (l *Loop) cycle(act *activation) error {
	if len(act.batches) == 0 {
		// Nothing to draw; idle until stop is requested.
		l.stopLoop.await(l.quit, l.opts.HandshakeTimeout)
		return nil
	}

	acquired := act.sems.At(semAcquired)
	ready := act.sems.At(semReady)

	for l.keepRunning.Load() {
		idx, err := l.swap.AcquireNextImage(acquired, vulkan.NullFence, l.opts.AcquireTimeout)
		if errors.Is(err, vulkan.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}

		for _, u := range act.dynamic {
			if err := u.Record(int(idx), renderer.RecordPushConstants); err != nil {
				return errors.Wrapf(err, "failed to record push constants for %s", u.Name())
			}
		}

		b := act.batches[idx]
		if err := act.graphic.Submit(l.dev, []vulkan.SubmitInfo{{
			WaitSemaphores: []vulkan.Semaphore{acquired},
			WaitStages:     []vulkan.PipelineStage{vulkan.StageColorAttachmentOutput},
			CommandBuffers: b.pre,
		}}, act.fences.At(fencePre)); err != nil {
			return errors.Wrap(err, "failed to submit pre")
		}
		if err := act.graphic.Submit(l.dev, []vulkan.SubmitInfo{{
			CommandBuffers: b.render,
		}}, act.fences.At(fenceRender)); err != nil {
			return errors.Wrap(err, "failed to submit render")
		}
		if err := act.graphic.Submit(l.dev, []vulkan.SubmitInfo{{
			CommandBuffers:   b.post,
			SignalSemaphores: []vulkan.Semaphore{ready},
		}}, act.fences.At(fencePost)); err != nil {
			return errors.Wrap(err, "failed to submit post")
		}

		if err := act.present.Present(l.dev, vulkan.PresentInfo{
			WaitSemaphores: []vulkan.Semaphore{ready},
			Swapchain:      l.swap.Handle(),
			ImageIndex:     idx,
		}); err != nil {
			return errors.Wrap(err, "failed to present")
		}

		if err := l.waitFence(act, fenceRender); err != nil {
			return err
		}
		frame := l.frames.Load() + 1
		for _, u := range act.units {
			u.UpdateUniforms(frame)
		}
		if err := l.waitFence(act, fencePre); err != nil {
			return err
		}
		if err := l.waitFence(act, fencePost); err != nil {
			return err
		}
		if err := act.fences.Reset(0, numFences); err != nil {
			return err
		}
		l.frames.Add(1)
	}
	return nil
}

// waitFence waits for fence i, retrying on timeout while the loop is alive.
func (l *Loop) waitFence(act *activation, i int) error {
	for {
		err := act.fences.Wait(i, 1, l.opts.FenceTimeout)
		if !errors.Is(err, vulkan.ErrTimeout) {
			return err
		}
		if !l.alive() {
			return ErrClosed
		}
		core.Logger().Debug("fence wait timed out, retrying", "fence", i)
	}
}
