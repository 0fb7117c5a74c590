package engine

import (
	"sync"
	"time"
)

type flag int

const (
	blocked flag = iota
	requested
	acknowledged
)

func (f flag) String() string {
	switch f {
	case requested:
		return "requested"
	case acknowledged:
		return "acknowledged"
	}
	return "blocked"
}

// handshake is one synchronization point between the controlling goroutine
// and the render goroutine. The controller moves it from blocked to
// requested and waits; the render goroutine waits for requested and moves
// it to acknowledged; the controller then resets it to blocked.
//
// Every transition closes wake and replaces it, which wakes all waiters.
type handshake struct {
	name string

	mu     sync.Mutex
	state  flag
	err    error
	wake   chan struct{}
	cycles uint64
}

func newHandshake(name string) *handshake {
	return &handshake{name: name, wake: make(chan struct{})}
}

// set must be called with mu held.
func (h *handshake) set(f flag) {
	h.state = f
	close(h.wake)
	h.wake = make(chan struct{})
}

// request is the controller side. It returns the error passed to
// acknowledge, or ErrClosed when quit closes first.
func (h *handshake) request(quit <-chan struct{}) error {
	h.mu.Lock()
	h.set(requested)
	for h.state != acknowledged {
		wake := h.wake
		h.mu.Unlock()
		select {
		case <-wake:
		case <-quit:
			h.mu.Lock()
			h.set(blocked)
			h.mu.Unlock()
			return ErrClosed
		}
		h.mu.Lock()
	}
	err := h.err
	h.err = nil
	h.set(blocked)
	h.cycles++
	h.mu.Unlock()
	return err
}

// await is the render side. It waits in slices of timeout until the flag
// is requested and reports false when quit closes first. The flag is left
// requested until acknowledge.
func (h *handshake) await(quit <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for h.state != requested {
		wake := h.wake
		h.mu.Unlock()
		select {
		case <-wake:
		case <-quit:
			h.mu.Lock()
			return false
		case <-t.C:
			t.Reset(timeout)
		}
		h.mu.Lock()
	}
	select {
	case <-quit:
		return false
	default:
		return true
	}
}

func (h *handshake) acknowledge(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
	h.set(acknowledged)
}

func (h *handshake) snapshot() (flag, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.cycles
}
