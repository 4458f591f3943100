package launcher

import (
	"bytes"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"stagectl/pkg/logging"
)

// pipeDrainDelay bounds how long Wait keeps captured pipes open after the
// child exits.
const pipeDrainDelay = 2 * time.Second

const groupPollInterval = 50 * time.Millisecond

// ManagedProcess owns a started child: its exit status, its output streams
// and the signals sent to it.
type ManagedProcess struct {
	cmd       *exec.Cmd
	subsystem string

	// running is true once the child has started and until it is signalled or exits.
	running atomic.Bool
	exited  chan struct{}
	waitErr error

	outputs     []*lineLogger
	releaseOnce sync.Once
}

// startProcess wires cmd's streams, starts it through start and begins reaping it.
func startProcess(cmd *exec.Cmd, start func(*exec.Cmd) error, subsystem string, capture bool) (*ManagedProcess, error) {
	p := &ManagedProcess{
		cmd:       cmd,
		subsystem: subsystem,
		exited:    make(chan struct{}),
	}

	if capture {
		stdout := newLineLogger(subsystem, "stdout")
		stderr := newLineLogger(subsystem, "stderr")
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		p.outputs = []*lineLogger{stdout, stderr}
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	cmd.WaitDelay = pipeDrainDelay
	prepareProcessGroup(cmd)

	if err := start(cmd); err != nil {
		return nil, err
	}
	p.running.Store(true)

	go func() {
		p.waitErr = cmd.Wait()
		p.running.Store(false)
		close(p.exited)
	}()

	return p, nil
}

// PID returns the child's process ID.
func (p *ManagedProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Running reports whether the child is started and has been neither signalled nor reaped.
func (p *ManagedProcess) Running() bool {
	return p.running.Load()
}

// Exited is closed once the child has been reaped.
func (p *ManagedProcess) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the result of waiting on the child. Only valid after Exited is closed.
func (p *ManagedProcess) ExitErr() error {
	return p.waitErr
}

// Terminate asks the child to exit. Only the first call sends a signal.
func (p *ManagedProcess) Terminate() error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	logging.Debug(p.subsystem, "Sending termination signal to PID %d", p.PID())
	return signalTerminate(p.cmd)
}

// Release terminates the child if needed, waits up to grace for it to exit and
// kills it otherwise, then flushes captured output. Safe to call more than once.
func (p *ManagedProcess) Release(grace time.Duration) {
	p.releaseOnce.Do(func() {
		if err := p.Terminate(); err != nil {
			logging.Debug(p.subsystem, "Terminate PID %d: %v", p.PID(), err)
		}

		select {
		case <-p.exited:
		case <-time.After(grace):
			logging.Warn(p.subsystem, "PID %d did not exit within %s, killing", p.PID(), grace)
			if err := signalKill(p.cmd); err != nil {
				logging.Debug(p.subsystem, "Kill PID %d: %v", p.PID(), err)
			}
			select {
			case <-p.exited:
			case <-time.After(grace + pipeDrainDelay):
				logging.Warn(p.subsystem, "PID %d still not reaped, giving up", p.PID())
			}
		}

		p.sweepGroup(grace)

		for _, out := range p.outputs {
			out.Flush()
		}
	})
}

// sweepGroup ends processes left in the child's group after the leader is gone,
// including when the leader exited on its own and was never signalled.
func (p *ManagedProcess) sweepGroup(grace time.Duration) {
	if !groupAlive(p.cmd) {
		return
	}
	logging.Debug(p.subsystem, "Process group %d outlived its leader, terminating it", p.PID())
	if err := terminateGroup(p.cmd); err != nil {
		logging.Debug(p.subsystem, "Terminate group %d: %v", p.PID(), err)
	}

	deadline := time.Now().Add(grace)
	for groupAlive(p.cmd) && time.Now().Before(deadline) {
		time.Sleep(groupPollInterval)
	}
	if groupAlive(p.cmd) {
		logging.Warn(p.subsystem, "Process group %d did not exit within %s, killing", p.PID(), grace)
		if err := killGroup(p.cmd); err != nil {
			logging.Debug(p.subsystem, "Kill group %d: %v", p.PID(), err)
		}
	}
}

// lineLogger forwards whatever the child writes to the log, one entry per line.
type lineLogger struct {
	subsystem string
	stream    string

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineLogger(subsystem, stream string) *lineLogger {
	return &lineLogger{subsystem: subsystem, stream: stream}
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(b)
	for {
		line, err := l.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			l.buf.Reset()
			l.buf.Write(line)
			break
		}
		l.emit(bytes.TrimRight(line, "\r\n"))
	}
	return len(b), nil
}

// Flush logs any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf.Len() > 0 {
		l.emit(l.buf.Bytes())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line []byte) {
	logging.Info(l.subsystem, "[%s] %s", l.stream, line)
}
