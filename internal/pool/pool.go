// Package pool runs launcher tasks and remote calls on a fixed number of
// goroutines.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"stagectl/pkg/logging"
)

var (
	// ErrPoolFull is returned by Submit when every slot is busy.
	ErrPoolFull = errors.New("worker pool is full")
	// ErrPoolClosed is returned by Submit and Go after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Pool is a fixed-capacity worker pool. Submit never queues: a task either gets
// a slot immediately or is rejected. Go waits for a free slot instead.
type Pool struct {
	name     string
	capacity int

	mu     sync.Mutex
	group  errgroup.Group
	closed bool
	// queued counts Go calls that passed the closed check but may still be
	// waiting for a slot.
	queued sync.WaitGroup

	running atomic.Int32
}

// New creates a pool named name (used in logs) with capacity slots.
func New(name string, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{name: name, capacity: capacity}
	p.group.SetLimit(capacity)
	return p
}

// Submit starts task on a free slot.
func (p *Pool) Submit(task func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	if !p.group.TryGo(p.wrap(task)) {
		return fmt.Errorf("%w (capacity %d)", ErrPoolFull, p.capacity)
	}
	return nil
}

// Go starts task, blocking until a slot is free. It only fails once the pool
// has been shut down.
func (p *Pool) Go(task func() error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queued.Add(1)
	p.mu.Unlock()

	defer p.queued.Done()
	p.group.Go(p.wrap(task))
	return nil
}

func (p *Pool) wrap(task func() error) func() error {
	return func() (err error) {
		p.running.Add(1)
		defer p.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
				logging.Error(p.subsystem(), err, "Recovered from task panic")
			}
		}()
		return task()
	}
}

// Shutdown stops accepting work and waits for running tasks to return. The
// first task error, if any, is returned for information only.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	// Every queued Go call must hand its task to the group before Wait.
	p.queued.Wait()
	err := p.group.Wait()
	if err != nil {
		logging.Debug(p.subsystem(), "Pool drained with task error: %v", err)
	}
	return err
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int {
	return p.capacity
}

func (p *Pool) subsystem() string {
	return "Pool/" + p.name
}
