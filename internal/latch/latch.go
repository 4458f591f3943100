// Package latch provides a single-use readiness signal shared between a
// launcher task and the orchestrator waiting on it.
package latch

import (
	"context"
	"sync"
	"time"
)

// Latch is a count-down latch with an initial count of one.
//
// The launcher counts it down once the child is spawned or has failed to
// spawn. It never counts up and is never reused.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// New returns a latch with count 1.
func New() *Latch {
	return &Latch{done: make(chan struct{})}
}

// CountDown releases all waiters. Calls after the first are no-ops.
func (l *Latch) CountDown() {
	l.once.Do(func() { close(l.done) })
}

// Count returns 1 until CountDown has been called, then 0.
func (l *Latch) Count() int {
	select {
	case <-l.done:
		return 0
	default:
		return 1
	}
}

// Done is closed when the latch reaches zero.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch is counted down, timeout elapses or ctx ends.
// It reports whether the count reached zero. A non-positive timeout waits on
// ctx alone.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration) bool {
	if l.Count() == 0 {
		return true
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-l.done:
		return true
	case <-expired:
		return false
	case <-ctx.Done():
		return false
	}
}
