package engine

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeCycle(t *testing.T) {
	h := newHandshake("test")
	quit := make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.request(quit) }()

	require.True(t, h.await(quit, time.Millisecond))
	state, cycles := h.snapshot()
	assert.Equal(t, requested, state)
	assert.Zero(t, cycles)

	select {
	case <-done:
		t.Fatal("request returned before acknowledge")
	case <-time.After(20 * time.Millisecond):
	}

	wantErr := errors.New("boom")
	h.acknowledge(wantErr)
	assert.Equal(t, wantErr, <-done)

	state, cycles = h.snapshot()
	assert.Equal(t, blocked, state)
	assert.Equal(t, uint64(1), cycles)
}

func TestHandshakeAwaitIsBounded(t *testing.T) {
	h := newHandshake("test")
	quit := make(chan struct{})

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(quit)
	}()
	start := time.Now()
	assert.False(t, h.await(quit, 5*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandshakeRequestCancelled(t *testing.T) {
	h := newHandshake("test")
	quit := make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.request(quit) }()
	time.Sleep(10 * time.Millisecond)
	close(quit)

	assert.ErrorIs(t, <-done, ErrClosed)
	state, cycles := h.snapshot()
	assert.Equal(t, blocked, state)
	assert.Zero(t, cycles)
	assert.False(t, h.await(quit, time.Millisecond))
}
