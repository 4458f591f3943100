// Package launcher starts one external process, signals readiness once it has
// been spawned and keeps it alive until told to stop.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"stagectl/internal/command"
	"stagectl/internal/config"
	"stagectl/internal/latch"
	"stagectl/pkg/logging"
)

var (
	// ErrStartFailed wraps every failure to spawn the child.
	ErrStartFailed = errors.New("process failed to start")
	// ErrAlreadyRun is returned when Run is called on a task more than once.
	ErrAlreadyRun = errors.New("launcher task already run")
)

// DefaultGracePeriod is how long a stopped child may take to exit before it is killed.
const DefaultGracePeriod = 5 * time.Second

// For mocking in tests
var execCommand = exec.Command

// Option customizes a Task.
type Option func(*Task)

// WithPollInterval sets how often the idle loop re-checks the running flag.
func WithPollInterval(d time.Duration) Option {
	return func(t *Task) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithGracePeriod sets how long a terminated child may take to exit.
func WithGracePeriod(d time.Duration) Option {
	return func(t *Task) {
		if d > 0 {
			t.gracePeriod = d
		}
	}
}

// WithStarter replaces the function that starts the prepared *exec.Cmd.
func WithStarter(start func(*exec.Cmd) error) Option {
	return func(t *Task) {
		if start != nil {
			t.start = start
		}
	}
}

// WithCaptureOutput forces output capture regardless of ProcessSpec.CaptureOutput.
func WithCaptureOutput() Option {
	return func(t *Task) {
		t.spec.CaptureOutput = true
	}
}

// Task launches a single child process and supervises it.
//
// A task is single-use: Run may be called once. Stop may be called any number
// of times from any goroutine, before, during or after Run.
type Task struct {
	spec         ProcessSpec
	latch        *latch.Latch
	subsystem    string
	pollInterval time.Duration
	gracePeriod  time.Duration
	start        func(*exec.Cmd) error

	mu            sync.Mutex
	state         State
	err           error
	proc          *ManagedProcess
	stopRequested bool

	running      atomic.Bool
	stopCh       chan struct{}
	stopOnce     sync.Once
	stopRequests atomic.Int32
}

// New creates a task for spec that counts l down once the child has been
// spawned or has failed to spawn.
func New(spec ProcessSpec, l *latch.Latch, opts ...Option) *Task {
	t := &Task{
		spec:         spec,
		latch:        l,
		subsystem:    "Launcher/" + spec.Name,
		pollInterval: config.DefaultPollInterval,
		gracePeriod:  DefaultGracePeriod,
		start:        (*exec.Cmd).Start,
		state:        NotStarted,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the name from the task's spec.
func (t *Task) Name() string {
	return t.spec.Name
}

// Run spawns the child and blocks until Stop is called.
//
// Spawn failures move the task to StartFailed and are returned wrapped in
// ErrStartFailed. The latch is counted down exactly once on either path.
// ctx only guards the spawn itself: cancelling it later does not stop the task.
// A task stopped before Run goes straight to Stopped without launching anything.
func (t *Task) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.state != NotStarted {
		t.mu.Unlock()
		return ErrAlreadyRun
	}
	if t.stopRequested {
		t.state = Stopped
		t.mu.Unlock()
		logging.Debug(t.subsystem, "Stop requested before start, not launching")
		t.latch.CountDown()
		return nil
	}
	t.state = Starting
	t.mu.Unlock()

	proc, err := t.spawn(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStartFailed, t.spec.Name, err)
		t.mu.Lock()
		t.state = StartFailed
		t.err = err
		t.mu.Unlock()
		logging.Error(t.subsystem, err, "Could not launch process")
		t.latch.CountDown()
		return err
	}
	defer proc.Release(t.gracePeriod)

	t.mu.Lock()
	t.proc = proc
	stopEarly := t.stopRequested
	if stopEarly {
		t.state = Stopping
	} else {
		t.state = ReadyRunning
		t.running.Store(true)
	}
	t.mu.Unlock()

	logging.Info(t.subsystem, "Process started (PID: %d)", proc.PID())
	t.latch.CountDown()

	if stopEarly {
		logging.Debug(t.subsystem, "Stop requested during spawn, terminating PID %d", proc.PID())
	} else {
		t.idle(proc)
	}

	t.mu.Lock()
	t.state = Stopping
	t.mu.Unlock()

	proc.Release(t.gracePeriod)

	t.mu.Lock()
	t.state = Stopped
	t.mu.Unlock()
	logging.Info(t.subsystem, "Process stopped")
	return nil
}

// Stop asks the task to terminate its child and leave its idle loop. It does
// not wait. Repeated calls have no further effect.
func (t *Task) Stop() {
	t.stopRequests.Add(1)
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopRequested = true
		t.running.Store(false)
		if t.state == ReadyRunning {
			t.state = Stopping
		}
		proc := t.proc
		t.mu.Unlock()

		close(t.stopCh)
		if proc != nil {
			if err := proc.Terminate(); err != nil {
				logging.Debug(t.subsystem, "Termination signal failed: %v", err)
			}
		}
	})
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the start failure, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// PID returns the child's process ID, or 0 if it was never started.
func (t *Task) PID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.proc == nil {
		return 0
	}
	return t.proc.PID()
}

// StopRequests returns how many times Stop has been called.
func (t *Task) StopRequests() int {
	return int(t.stopRequests.Load())
}

func (t *Task) spawn(ctx context.Context) (*ManagedProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	argv, err := t.spec.StartCommand()
	if err != nil {
		return nil, err
	}

	cmd := execCommand(argv[0], argv[1:]...)
	cmd.Env = command.MergeEnv(os.Environ(), t.spec.Env)

	logging.Debug(t.subsystem, "Starting %v", argv)
	return startProcess(cmd, t.start, t.subsystem, t.spec.CaptureOutput)
}

// idle blocks until Stop is observed. The running flag is re-checked every
// poll interval in case the stop channel signal is missed.
func (t *Task) idle(proc *ManagedProcess) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	exited := proc.Exited()
	for {
		select {
		case <-t.stopCh:
			return
		case <-exited:
			logging.Warn(t.subsystem, "Process exited on its own: %v", exitDescription(proc.ExitErr()))
			exited = nil
		case <-ticker.C:
			if !t.running.Load() {
				return
			}
		}
	}
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
