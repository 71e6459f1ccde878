// Package controlchannel implements the out-of-band, latest-wins signal
// delivery spec'd in §4.5: a FIFO would create head-of-line blocking for
// barge-in, so sends intentionally coalesce into one slot.
package controlchannel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/callcore-ai/callcore/internal/metrics"
	"github.com/callcore-ai/callcore/pkg/frame"
)

// ControlChannel holds at most one unconsumed ControlSignal. A second
// Send before a Wait overwrites the first.
type ControlChannel struct {
	mu   sync.Mutex
	cur  *frame.ControlSignal
	meta any
	// ready is recreated on every Wait so a subsequent Send always has a
	// channel to close, even after a previous one was already consumed.
	ready chan struct{}

	sent     atomic.Uint64
	received atomic.Uint64
}

// New returns a ControlChannel with an empty slot.
func New() *ControlChannel {
	return &ControlChannel{ready: make(chan struct{})}
}

// Send overwrites any unconsumed signal and marks the slot ready.
func (c *ControlChannel) Send(sig frame.ControlSignal, meta any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cur = &sig
	c.meta = meta
	c.sent.Add(1)
	metrics.ControlSignalsSent.WithLabelValues(string(sig.Kind)).Inc()

	select {
	case <-c.ready:
		// already open, nothing to do
	default:
		close(c.ready)
	}
}

// Wait blocks until a signal is ready or ctx is done, then clears and
// returns the slot. ok is false if ctx ended the wait first.
func (c *ControlChannel) Wait(ctx context.Context) (sig frame.ControlSignal, meta any, ok bool) {
	c.mu.Lock()
	readyCh := c.ready
	c.mu.Unlock()

	select {
	case <-readyCh:
	case <-ctx.Done():
		return frame.ControlSignal{}, nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur == nil {
		// raced with another Wait that drained it first
		return frame.ControlSignal{}, nil, false
	}

	sig, meta = *c.cur, c.meta
	c.cur, c.meta = nil, nil
	c.ready = make(chan struct{})
	c.received.Add(1)
	return sig, meta, true
}

// Stats returns the lifetime send/receive counters.
func (c *ControlChannel) Stats() (sent, received uint64) {
	return c.sent.Load(), c.received.Load()
}
