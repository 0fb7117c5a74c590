// Package engine runs the frame loop: a dedicated render goroutine, locked
// to its OS thread, that records, submits and presents frames, and the
// handshakes through which a controlling goroutine starts and stops it.
package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/renderer"
	"frame-engine/vulkan"
)

var (
	ErrAlreadyRunning = errors.New("engine: loop already running")
	ErrNotRunning     = errors.New("engine: loop not running")
	ErrClosed         = errors.New("engine: loop closed")
)

// State is the phase the render goroutine is in.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "idle"
}

type Options struct {
	// HandshakeTimeout bounds each wait of the render goroutine before it
	// checks again whether the loop was closed.
	HandshakeTimeout time.Duration
	// FenceTimeout bounds each fence wait of the frame cycle. A wait that
	// runs out is retried.
	FenceTimeout time.Duration
	// AcquireTimeout bounds each swapchain acquire. An acquire that runs
	// out is retried and does not count as a frame.
	AcquireTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 100 * time.Millisecond,
		FenceTimeout:     time.Second,
		AcquireTimeout:   10 * time.Second,
	}
}

// OptionsFromConfig maps the loop and swapchain sections of cfg.
func OptionsFromConfig(cfg core.Config) Options {
	return Options{
		HandshakeTimeout: cfg.Loop.HandshakeTimeout.D(),
		FenceTimeout:     cfg.Loop.FenceTimeout.D(),
		AcquireTimeout:   cfg.Swapchain.AcquireTimeout.D(),
	}
}

// Loop owns the render goroutine and the renderers it draws.
//
// Start and Stop block until the render goroutine acknowledged them. The
// renderer set is only changed while the loop is stopped: the mutators
// stop the loop, apply the change and start it again if it was running.
// Batch applies several changes under one stop/start.
type Loop struct {
	dev   vulkan.Device
	swap  *vulkan.SwapchainManager
	pools *vulkan.CommandPoolRegistry
	opts  Options

	// ctl serializes Start, Stop, Close and the mutators.
	ctl     sync.Mutex
	running bool
	closed  bool

	mu    sync.Mutex
	units []*renderer.Unit

	keepRunning atomic.Bool
	quit        chan struct{}
	exited      chan struct{}
	closeOnce   sync.Once

	startRec  *handshake
	startLoop *handshake
	stopLoop  *handshake

	state  atomic.Int32
	frames atomic.Uint64

	errMu sync.Mutex
	err   error
}

// New starts the render goroutine. It idles until Start.
func New(dev vulkan.Device, swap *vulkan.SwapchainManager, pools *vulkan.CommandPoolRegistry, opts Options) *Loop {
	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = def.FenceTimeout
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = def.AcquireTimeout
	}
	l := &Loop{
		dev:       dev,
		swap:      swap,
		pools:     pools,
		opts:      opts,
		quit:      make(chan struct{}),
		exited:    make(chan struct{}),
		startRec:  newHandshake("start-recording"),
		startLoop: newHandshake("start-loop"),
		stopLoop:  newHandshake("stop-loop"),
	}
	go l.run()
	return l
}

// Start records every renderer and enters the frame cycle. It returns
// ErrAlreadyRunning when the loop runs already, or the error that made
// recording fail.
func (l *Loop) Start() error {
	l.ctl.Lock()
	defer l.ctl.Unlock()
	return l.start()
}

func (l *Loop) start() error {
	if l.closed {
		return ErrClosed
	}
	if l.running {
		core.Logger().Warn("frame loop start while running")
		return ErrAlreadyRunning
	}
	l.setErr(nil)
	l.keepRunning.Store(true)
	if err := l.startRec.request(l.quit); err != nil {
		l.keepRunning.Store(false)
		return err
	}
	if err := l.startLoop.request(l.quit); err != nil {
		return err
	}
	l.running = true
	core.Logger().Info("frame loop started", "renderers", len(l.snapshot()))
	return nil
}

// Stop leaves the frame cycle after the current frame, waits for the
// device to go idle and frees the command buffers. It returns
// ErrNotRunning when the loop is not running.
func (l *Loop) Stop() error {
	l.ctl.Lock()
	defer l.ctl.Unlock()
	return l.stop()
}

func (l *Loop) stop() error {
	if l.closed {
		return ErrClosed
	}
	if !l.running {
		core.Logger().Warn("frame loop stop while stopped")
		return ErrNotRunning
	}
	l.keepRunning.Store(false)
	err := l.stopLoop.request(l.quit)
	l.running = false
	core.Logger().Info("frame loop stopped", "frames", l.frames.Load())
	return err
}

// Close stops the render goroutine and waits for it to exit. Any pending
// handshake returns ErrClosed. Closing twice is a no-op.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.keepRunning.Store(false)
		close(l.quit)
	})
	<-l.exited

	l.ctl.Lock()
	defer l.ctl.Unlock()
	l.running = false
	l.closed = true
	return nil
}

// Running reports whether the last Start succeeded and no Stop followed.
// A loop whose frame cycle ended on an error still counts as running until
// it is stopped.
func (l *Loop) Running() bool {
	l.ctl.Lock()
	defer l.ctl.Unlock()
	return l.running
}

func (l *Loop) RenderedFrames() uint64 { return l.frames.Load() }

func (l *Loop) State() State { return State(l.state.Load()) }

// Err returns the error that ended the last activation of the frame cycle,
// or nil.
func (l *Loop) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Loop) setErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.err = err
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) != s {
		core.Logger().Debug("frame loop state", "state", s.String())
	}
}

func (l *Loop) snapshot() []*renderer.Unit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*renderer.Unit(nil), l.units...)
}

func (l *Loop) alive() bool {
	select {
	case <-l.quit:
		return false
	default:
		return true
	}
}

// run is the render goroutine. It stays on one OS thread for its whole
// life so that the command pool it takes from the registry stays private.
func (l *Loop) run() {
	runtime.LockOSThread()
	defer close(l.exited)

	for {
		if !l.startRec.await(l.quit, l.opts.HandshakeTimeout) {
			return
		}
		l.setState(StateRecording)
		act, err := l.prepare()
		l.startRec.acknowledge(err)
		if err != nil {
			core.Logger().Error("frame loop recording failed", "err", err)
			l.setErr(err)
			l.setState(StateIdle)
			continue
		}

		if !l.startLoop.await(l.quit, l.opts.HandshakeTimeout) {
			act.teardown()
			return
		}
		l.setState(StateRunning)
		l.startLoop.acknowledge(nil)

		if err := l.cycle(act); err != nil {
			core.Logger().Error("frame loop aborted", "err", err, "frames", l.frames.Load())
			l.setErr(err)
		}
		l.setState(StateStopping)
		act.teardown()

		if !l.stopLoop.await(l.quit, l.opts.HandshakeTimeout) {
			return
		}
		l.setState(StateIdle)
		l.stopLoop.acknowledge(nil)
	}
}
