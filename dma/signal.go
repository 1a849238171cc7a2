package dma

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Signal counts completion events that have not yet been consumed.
// Notify is safe to call from the interrupt-serving goroutine; it never
// blocks or allocates.
type Signal struct {
	count atomic.Int32
	wake  chan struct{}
}

func NewSignal() *Signal {
	return &Signal{wake: make(chan struct{}, 1)}
}

// Notify records one completion and wakes a waiter, if any.
func (s *Signal) Notify() {
	s.count.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one completion is pending. It returns
// ErrTimeout when timeout passes first and ErrInterrupted when ctx is
// done first. Wait does not consume the completion.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		if s.count.Load() > 0 {
			return nil
		}
		select {
		case <-s.wake:
			// Re-check; wakeups may be stale.
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		case <-t.C:
			if s.count.Load() > 0 {
				return nil
			}
			return ErrTimeout
		}
	}
}

// Consume takes one completion. It must only follow a successful Wait.
func (s *Signal) Consume() {
	s.count.Add(-1)
}

// Pending returns the number of unconsumed completions.
func (s *Signal) Pending() int {
	return int(s.count.Load())
}
