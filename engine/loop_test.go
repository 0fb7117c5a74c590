package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frame-engine/core"
	"frame-engine/renderer"
	"frame-engine/renderer/renderertest"
	"frame-engine/vulkan"
	"frame-engine/vulkan/vulkantest"
)

type fixture struct {
	dev     *vulkantest.Device
	pools   *vulkan.CommandPoolRegistry
	swap    *vulkan.SwapchainManager
	surface *vulkantest.Surface
	loop    *Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dev:     vulkantest.New(),
		pools:   vulkan.NewCommandPoolRegistry(),
		surface: vulkantest.NewSurface(800, 600),
	}
	f.swap = vulkan.NewSwapchainManager(f.pools, vulkan.SwapchainOptions{ImageCount: 3})
	require.NoError(t, f.swap.Init(f.dev, f.surface))
	f.loop = New(f.dev, f.swap, f.pools, Options{
		HandshakeTimeout: 5 * time.Millisecond,
		FenceTimeout:     50 * time.Millisecond,
		AcquireTimeout:   5 * time.Millisecond,
	})
	t.Cleanup(func() { f.loop.Close() })
	return f
}

func (f *fixture) unit(opts renderer.Options, drawables ...renderer.Drawable) *renderer.Unit {
	u := renderer.NewUnit(f.dev, f.swap, opts)
	for _, d := range drawables {
		u.Add(d)
	}
	return u
}

func (f *fixture) waitFrames(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return f.loop.RenderedFrames() >= n },
		2*time.Second, time.Millisecond, "rendered %d frames", f.loop.RenderedFrames())
}

// assertFenceDiscipline checks that no fence was waited on twice without a
// reset in between.
func assertFenceDiscipline(t *testing.T, dev *vulkantest.Device) {
	t.Helper()
	for _, fence := range dev.Fences() {
		log := dev.FenceLog(fence)
		for i := 1; i < len(log); i++ {
			if log[i] == "wait" && log[i-1] == "wait" {
				t.Errorf("fence %d waited twice without reset: %v", fence, log)
				break
			}
		}
	}
}

func TestLoopZeroRenderers(t *testing.T) {
	f := newFixture(t)

	start := time.Now()
	require.NoError(t, f.loop.Start())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateRunning, f.loop.State())

	require.NoError(t, f.loop.Stop())
	assert.Equal(t, StateIdle, f.loop.State())
	assert.Zero(t, f.loop.RenderedFrames())

	acquires, _, _ := f.dev.Counts()
	assert.Zero(t, acquires)
	assert.Empty(t, f.dev.Violations())
}

func TestLoopRendersFrames(t *testing.T) {
	f := newFixture(t)
	const frames = 5

	d := renderertest.NewDrawable(renderertest.NewProgram("p"))
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{Name: "main"}, d)))
	setupFences := len(f.dev.Fences())

	f.dev.HoldAcquiresAfter(frames)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, frames)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(frames), f.loop.RenderedFrames())
	require.NoError(t, f.loop.Stop())
	assert.NoError(t, f.loop.Err())

	// The activation's three fences end every cycle waited and reset.
	loopFences := f.dev.Fences()[setupFences:]
	require.Len(t, loopFences, 3)
	for _, fence := range loopFences {
		log := f.dev.FenceLog(fence)
		require.Len(t, log, 2*frames)
		for i := 0; i < len(log); i += 2 {
			assert.Equal(t, []string{"wait", "reset"}, log[i:i+2])
		}
	}
	assertFenceDiscipline(t, f.dev)

	calls, _ := d.UniformUpdates()
	assert.Equal(t, frames, calls)
	assert.Len(t, f.dev.Presents(), frames)
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindFence))
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindSemaphore))
	assert.Equal(t, 1, f.dev.IdleWaits())
	assert.Empty(t, f.dev.Violations())
}

func TestLoopSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	u := f.unit(renderer.Options{}, renderertest.NewDrawable(renderertest.NewProgram("p")))
	require.NoError(t, f.loop.AddRenderer(u))
	before := len(f.dev.Submissions())

	f.dev.HoldAcquiresAfter(3)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 3)
	require.NoError(t, f.loop.Stop())

	subs := f.dev.Submissions()[before:]
	presents := f.dev.Presents()
	require.Len(t, subs, 9)
	for frame := range 3 {
		pre, render, post := subs[3*frame], subs[3*frame+1], subs[3*frame+2]
		idx := int(presents[frame].ImageIndex)
		assert.Equal(t, idx, frame%3)

		assert.Len(t, pre.WaitSemaphores, 1)
		assert.Equal(t, []vulkan.PipelineStage{vulkan.StageColorAttachmentOutput}, pre.WaitStages)
		assert.Empty(t, pre.SignalSemaphores)
		assert.Empty(t, render.WaitSemaphores)
		assert.Empty(t, render.SignalSemaphores)
		assert.Empty(t, post.WaitSemaphores)
		require.Len(t, post.SignalSemaphores, 1)
		assert.Equal(t, post.SignalSemaphores, presents[frame].WaitSemaphores)

		assert.NotEqual(t, pre.Fence, render.Fence)
		assert.NotEqual(t, render.Fence, post.Fence)
	}
	assert.Empty(t, f.dev.Violations())
}

func TestLoopPresentFailureEndsActivation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{},
		renderertest.NewDrawable(renderertest.NewProgram("p")))))

	const k = 4
	f.dev.FailPresentAt(k)
	require.NoError(t, f.loop.Start())

	require.Eventually(t, func() bool { return f.loop.State() == StateStopping },
		2*time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, uint64(k-1), f.loop.RenderedFrames())
	assert.ErrorIs(t, f.loop.Err(), vulkan.ErrOutOfDate)
	acquires, _, presents := f.dev.Counts()
	assert.Equal(t, k, acquires)
	assert.Equal(t, k, presents)

	// Teardown already ran on the render goroutine.
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindFence))

	require.NoError(t, f.loop.Stop())
	assert.Equal(t, StateIdle, f.loop.State())
	assert.Equal(t, uint64(k-1), f.loop.RenderedFrames())
	assertFenceDiscipline(t, f.dev)
}

func TestLoopSubmitFailureEndsActivation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{},
		renderertest.NewDrawable(renderertest.NewProgram("p")))))
	_, submits, _ := f.dev.Counts()

	// Second frame, render submission.
	f.dev.FailSubmitAt(submits + 5)
	require.NoError(t, f.loop.Start())
	require.Eventually(t, func() bool { return f.loop.State() == StateStopping },
		2*time.Second, time.Millisecond)

	assert.Equal(t, uint64(1), f.loop.RenderedFrames())
	assert.ErrorIs(t, f.loop.Err(), vulkan.ErrDeviceLost)
	require.NoError(t, f.loop.Stop())
}

func TestLoopAcquireFailureEndsActivation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{},
		renderertest.NewDrawable(renderertest.NewProgram("p")))))

	f.dev.FailAcquireAt(1)
	require.NoError(t, f.loop.Start())
	require.Eventually(t, func() bool { return f.loop.State() == StateStopping },
		2*time.Second, time.Millisecond)
	assert.Zero(t, f.loop.RenderedFrames())
	assert.ErrorIs(t, f.loop.Err(), vulkan.ErrOutOfDate)
	require.NoError(t, f.loop.Stop())

	// The application may start again.
	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 2)
	assert.NoError(t, f.loop.Err())
	require.NoError(t, f.loop.Stop())
}

func TestLoopIdempotentStartStop(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.loop.Stop(), ErrNotRunning)
	require.NoError(t, f.loop.Start())
	assert.ErrorIs(t, f.loop.Start(), ErrAlreadyRunning)
	require.NoError(t, f.loop.Stop())
	assert.ErrorIs(t, f.loop.Stop(), ErrNotRunning)

	_, startCycles := f.loop.startRec.snapshot()
	_, stopCycles := f.loop.stopLoop.snapshot()
	assert.Equal(t, uint64(1), startCycles)
	assert.Equal(t, uint64(1), stopCycles)
}

func TestLoopConcurrentStartStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{},
		renderertest.NewDrawable(renderertest.NewProgram("p")))))
	f.dev.HoldAcquiresAfter(0)

	var mu sync.Mutex
	var starts, stops uint64
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				var err error
				if (g+i)%2 == 0 {
					err = f.loop.Start()
					if err == nil {
						mu.Lock()
						starts++
						mu.Unlock()
					} else {
						assert.ErrorIs(t, err, ErrAlreadyRunning)
					}
				} else {
					err = f.loop.Stop()
					if err == nil {
						mu.Lock()
						stops++
						mu.Unlock()
					} else {
						assert.ErrorIs(t, err, ErrNotRunning)
					}
				}
			}
		}()
	}
	wg.Wait()
	if f.loop.Running() {
		require.NoError(t, f.loop.Stop())
		stops++
	}

	recState, recCycles := f.loop.startRec.snapshot()
	loopState, loopCycles := f.loop.startLoop.snapshot()
	stopState, stopCycles := f.loop.stopLoop.snapshot()
	assert.Equal(t, starts, recCycles)
	assert.Equal(t, starts, loopCycles)
	assert.Equal(t, stops, stopCycles)
	assert.Equal(t, starts, stops)
	assert.Equal(t, blocked, recState)
	assert.Equal(t, blocked, loopState)
	assert.Equal(t, blocked, stopState)
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Empty(t, f.dev.Violations())
}

func TestLoopRecordingFailure(t *testing.T) {
	f := newFixture(t)
	d := renderertest.NewDrawable(renderertest.NewProgram("p"))
	d.Fail = errors.New("broken mesh")
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{Name: "broken"}, d)))

	err := f.loop.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer broken")
	assert.False(t, f.loop.Running())
	assert.Eventually(t, func() bool { return f.loop.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindFence))

	d.Fail = nil
	f.dev.HoldAcquiresAfter(1)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 1)
	require.NoError(t, f.loop.Stop())
}

func TestLoopMutatorsRestart(t *testing.T) {
	f := newFixture(t)
	prog := renderertest.NewProgram("p")
	first := f.unit(renderer.Options{Name: "first"}, renderertest.NewDrawable(prog))
	second := f.unit(renderer.Options{Name: "second", Overlay: true}, renderertest.NewDrawable(prog))

	require.NoError(t, f.loop.AddRenderer(first))
	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 2)

	before := len(f.dev.Submissions())
	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.AddRenderer(second))
	assert.True(t, f.loop.Running())
	f.waitFrames(t, 4)
	assert.Len(t, f.loop.Renderers(), 2)

	subs := f.dev.Submissions()[before:]
	require.GreaterOrEqual(t, len(subs), 3)
	assert.Len(t, subs[0].CommandBuffers, 1, "pre comes from the first renderer")
	assert.Len(t, subs[1].CommandBuffers, 2, "render of both renderers")
	assert.Len(t, subs[2].CommandBuffers, 1, "post comes from the first renderer")

	_, cycles := f.loop.startRec.snapshot()
	assert.Equal(t, uint64(2), cycles)

	require.NoError(t, f.loop.RemoveRenderer(first))
	assert.Equal(t, []*renderer.Unit{second}, f.loop.Renderers())
	require.NoError(t, f.loop.ClearRenderers())
	assert.Empty(t, f.loop.Renderers())
	assert.True(t, f.loop.Running())

	require.NoError(t, f.loop.Stop())
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Empty(t, f.dev.Violations())
}

func TestLoopMutatorsWhileStoppedDoNotStart(t *testing.T) {
	f := newFixture(t)
	u := f.unit(renderer.Options{}, renderertest.NewDrawable(renderertest.NewProgram("p")))

	require.NoError(t, f.loop.AddRenderer(u))
	require.NoError(t, f.loop.Rebuild())
	assert.False(t, f.loop.Running())
	_, cycles := f.loop.startRec.snapshot()
	assert.Zero(t, cycles)
}

func TestLoopBatchSingleRestart(t *testing.T) {
	f := newFixture(t)
	prog := renderertest.NewProgram("p")
	a := f.unit(renderer.Options{Name: "a"}, renderertest.NewDrawable(prog))
	b := f.unit(renderer.Options{Name: "b", Overlay: true}, renderertest.NewDrawable(prog))

	f.dev.HoldAcquiresAfter(0)
	require.NoError(t, f.loop.Start())
	err := f.loop.Batch(func(batch *Batch) error {
		if err := batch.AddRenderer(a); err != nil {
			return err
		}
		if err := batch.AddRenderer(b); err != nil {
			return err
		}
		require.NoError(t, batch.AddRenderer(a))
		batch.SetClearColor(core.ColorBlue)
		return nil
	})
	require.NoError(t, err)

	_, cycles := f.loop.startRec.snapshot()
	assert.Equal(t, uint64(2), cycles)
	assert.Len(t, f.loop.Renderers(), 2)
	assert.True(t, a.Valid())
	assert.True(t, b.Valid())

	fnErr := errors.New("rejected")
	assert.Equal(t, fnErr, f.loop.Batch(func(*Batch) error { return fnErr }))
	assert.True(t, f.loop.Running())
	require.NoError(t, f.loop.Stop())
}

func TestLoopDynamicPushConstants(t *testing.T) {
	f := newFixture(t)
	u := f.unit(renderer.Options{DynamicPushConstants: true},
		renderertest.NewDrawable(renderertest.NewProgram("p")))
	require.NoError(t, f.loop.AddRenderer(u))

	f.dev.HoldAcquiresAfter(6)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 6)

	set, _ := u.Buffers(0)
	// One full recording at start plus one push constant recording for
	// each of the two frames that used image 0.
	assert.Equal(t, 1, f.dev.RecordCount(set.Pre))
	assert.Equal(t, 3, f.dev.RecordCount(set.Render))
	assert.Equal(t, 1, f.dev.RecordCount(set.Post))
	require.NoError(t, f.loop.Stop())
	assert.Empty(t, f.dev.Violations())
}

func TestLoopResize(t *testing.T) {
	f := newFixture(t)
	u := f.unit(renderer.Options{DepthTest: true}, renderertest.NewDrawable(renderertest.NewProgram("p")))
	require.NoError(t, f.loop.AddRenderer(u))
	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 2)

	f.dev.Caps.MinImageCount = 4
	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.Resize(f.surface))
	f.waitFrames(t, 4)

	assert.Equal(t, 4, f.swap.ImageCount())
	assert.Equal(t, 4, u.Framebuffers())
	assert.Equal(t, []vulkan.Swapchain{f.swap.Handle()}, f.dev.LiveSwapchains())
	require.NoError(t, f.loop.Stop())
	assert.Empty(t, f.dev.Violations())
}

func TestLoopReAddAfterResize(t *testing.T) {
	f := newFixture(t)
	scene := f.unit(renderer.Options{Name: "scene", DepthTest: true},
		renderertest.NewDrawable(renderertest.NewProgram("p")))
	hudDrawable := renderertest.NewDrawable(renderertest.NewProgram("q"))
	hud := f.unit(renderer.Options{Name: "hud", Overlay: true}, hudDrawable)
	require.NoError(t, f.loop.Batch(func(b *Batch) error {
		if err := b.AddRenderer(scene); err != nil {
			return err
		}
		return b.AddRenderer(hud)
	}))

	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 2)

	require.NoError(t, f.loop.RemoveRenderer(hud))
	f.dev.Caps.MinImageCount = 4
	f.dev.Caps.CurrentExtent = vulkan.Extent2D{Width: 1024, Height: 768}
	require.NoError(t, f.loop.Resize(f.surface))

	require.NoError(t, f.loop.Batch(func(b *Batch) error {
		f.dev.HoldAcquiresAfter(2)
		return b.AddRenderer(hud)
	}))
	assert.True(t, f.loop.Running())
	f.waitFrames(t, 4)
	assert.NoError(t, f.loop.Err())

	assert.Equal(t, 4, hud.Framebuffers())
	info, ok := f.dev.PipelineInfo(hudDrawable.Pipeline())
	require.True(t, ok)
	assert.Equal(t, vulkan.Extent2D{Width: 1024, Height: 768}, info.Extent)
	assert.Equal(t, 8, f.dev.LiveOf(vulkantest.KindFramebuffer))
	require.NoError(t, f.loop.Stop())
	assert.Empty(t, f.dev.Violations())
}

func TestLoopSharedProgramOneWriterPerFrame(t *testing.T) {
	f := newFixture(t)
	prog := renderertest.NewProgram("p")
	a, b := renderertest.NewDrawable(prog), renderertest.NewDrawable(prog)
	require.NoError(t, f.loop.AddRenderer(f.unit(renderer.Options{Name: "a"}, a)))

	f.dev.HoldAcquiresAfter(3)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 3)

	// b joins in a later activation; both units must still agree on the
	// frame number.
	require.NoError(t, f.loop.Batch(func(bt *Batch) error {
		f.dev.HoldAcquiresAfter(4)
		return bt.AddRenderer(f.unit(renderer.Options{Name: "b"}, b))
	}))
	f.waitFrames(t, 7)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.loop.Stop())
	require.Equal(t, uint64(7), f.loop.RenderedFrames())

	callsA, writesA := a.UniformUpdates()
	callsB, writesB := b.UniformUpdates()
	assert.Equal(t, 7, callsA)
	assert.Equal(t, 4, callsB)
	assert.Equal(t, 7, writesA+writesB)
	assert.Equal(t, uint64(7), a.LastFrame())
	assert.Equal(t, uint64(7), b.LastFrame())
}

// invalidator marks target stale whenever it is recorded, and optionally
// makes target's drawable fail from then on.
type invalidator struct {
	*renderertest.Drawable
	target *renderer.Unit
	breaks *renderertest.Drawable
}

func (d *invalidator) RecordDraw(c *renderer.Cmd) error {
	d.target.Invalidate()
	if d.breaks != nil {
		d.breaks.Fail = errors.New("draw failed")
	}
	return d.Drawable.RecordDraw(c)
}

func TestLoopRerecordsInvalidatedRenderer(t *testing.T) {
	f := newFixture(t)
	first := f.unit(renderer.Options{Name: "first"}, renderertest.NewDrawable(renderertest.NewProgram("p")))
	second := f.unit(renderer.Options{Name: "second"}, &invalidator{
		Drawable: renderertest.NewDrawable(renderertest.NewProgram("q")),
		target:   first,
	})
	require.NoError(t, f.loop.Batch(func(b *Batch) error {
		if err := b.AddRenderer(first); err != nil {
			return err
		}
		return b.AddRenderer(second)
	}))

	f.dev.HoldAcquiresAfter(2)
	require.NoError(t, f.loop.Start())
	f.waitFrames(t, 2)

	assert.True(t, first.Valid())
	for i := range f.swap.ImageCount() {
		set, ok := first.Buffers(i)
		require.True(t, ok)
		// Update, then again after second's recording invalidated it.
		assert.Equal(t, 2, f.dev.RecordCount(set.Pre))
	}
	require.NoError(t, f.loop.Stop())
	assert.NoError(t, f.loop.Err())
	assert.Empty(t, f.dev.Violations())
}

func TestLoopInvalidatedRendererFailsToRerecord(t *testing.T) {
	f := newFixture(t)
	victim := renderertest.NewDrawable(renderertest.NewProgram("p"))
	first := f.unit(renderer.Options{Name: "first"}, victim)
	second := f.unit(renderer.Options{Name: "second"}, &invalidator{
		Drawable: renderertest.NewDrawable(renderertest.NewProgram("q")),
		target:   first,
		breaks:   victim,
	})
	require.NoError(t, f.loop.Batch(func(b *Batch) error {
		if err := b.AddRenderer(first); err != nil {
			return err
		}
		return b.AddRenderer(second)
	}))

	err := f.loop.Start()
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to re-record renderer first")
	assert.False(t, f.loop.Running())
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindCommandBuffer))
	assert.Equal(t, 0, f.dev.LiveOf(vulkantest.KindFence))
	assert.Empty(t, f.dev.Violations())
}

func TestLoopZeroRenderersStopWaitsIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.Start())
	require.NoError(t, f.loop.Stop())
	assert.Equal(t, 1, f.dev.IdleWaits())
}

func TestLoopCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	u := f.unit(renderer.Options{DepthTest: true}, renderertest.NewDrawable(renderertest.NewProgram("p")))
	require.NoError(t, f.loop.AddRenderer(u))
	f.dev.HoldAcquiresAfter(0)
	require.NoError(t, f.loop.Start())

	done := make(chan struct{})
	go func() {
		f.loop.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	assert.NoError(t, f.loop.Close())
	assert.ErrorIs(t, f.loop.Start(), ErrClosed)
	assert.ErrorIs(t, f.loop.Stop(), ErrClosed)
	assert.ErrorIs(t, f.loop.AddRenderer(u), ErrClosed)

	u.Destroy()
	require.NoError(t, f.swap.Destroy())
	f.pools.Cleanup(f.dev)
	assert.Equal(t, 0, f.dev.Live())
	assert.Empty(t, f.dev.Violations())
}

func TestLoopCloseWhileIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.Close())
	assert.Equal(t, StateIdle, f.loop.State())
	assert.False(t, f.loop.Running())
}
