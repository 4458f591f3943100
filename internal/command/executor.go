package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"stagectl/pkg/logging"
)

const (
	subsystem = "Executor"

	// maxLineSize bounds a single captured output line.
	maxLineSize = 1024 * 1024
	// maxStderrSize bounds how much stderr is kept for the debug log.
	maxStderrSize = 4 * 1024
	// pipeDrainDelay bounds how long Wait keeps pipes open after the child exits,
	// in case a grandchild inherited them.
	pipeDrainDelay = 2 * time.Second
)

// For mocking in tests
var execCommand = exec.Command

// Result is the outcome of one execution.
type Result struct {
	// Lines holds stdout, one entry per line, in emission order.
	Lines []string
	// ExitCode is the child's exit status, or -1 if it never ran to completion.
	ExitCode int
	// Err is set when the command could not be spawned, its output could not be
	// read, or the context ended the wait.
	Err error
}

// OK reports whether the command ran and exited with status zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Executor runs commands synchronously and captures their output line by line.
type Executor struct {
	defaultEnv map[string]string
}

// NewExecutor creates an executor. defaultEnv is applied to commands whose Env
// is nil; pass config.DefaultEnv() for locale-stable output.
func NewExecutor(defaultEnv map[string]string) *Executor {
	env := make(map[string]string, len(defaultEnv))
	for k, v := range defaultEnv {
		env[k] = v
	}
	return &Executor{defaultEnv: env}
}

// Execute runs cmd and returns its output lines.
//
// This is the best-effort form: a command that cannot be spawned, or whose
// output cannot be read, yields an empty slice. Callers cannot tell "no output"
// from "failed to run" here; use Run when that matters.
func (e *Executor) Execute(ctx context.Context, cmd Command) []string {
	res := e.Run(ctx, cmd)
	if errors.Is(res.Err, ErrSpawn) || errors.Is(res.Err, ErrRead) || errors.Is(res.Err, ErrEmptyCommand) {
		return []string{}
	}
	return res.Lines
}

// Run executes cmd to completion and reports its lines together with the exit
// status. There is no internal timeout: the wait ends when the child exits or
// ctx is done, in which case the child is killed and the lines read so far are
// returned with ctx.Err().
func (e *Executor) Run(ctx context.Context, cmd Command) Result {
	res := Result{Lines: []string{}, ExitCode: -1}

	if len(cmd.Args) == 0 || cmd.Args[0] == "" {
		res.Err = ErrEmptyCommand
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	c := execCommand(cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = MergeEnv(os.Environ(), e.environment(cmd))
	c.WaitDelay = pipeDrainDelay

	stderr := &cappedBuffer{limit: maxStderrSize}
	c.Stderr = stderr

	h := &handles{}
	defer h.release()

	stdin, err := c.StdinPipe()
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrSpawn, cmd, err)
		return res
	}
	h.stdin = stdin

	stdout, err := c.StdoutPipe()
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrSpawn, cmd, err)
		return res
	}
	h.stdout = stdout

	logging.Debug(subsystem, "Running %s", cmd)

	if err := c.Start(); err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrSpawn, cmd, err)
		logging.Debug(subsystem, "Could not start %s: %v", cmd, err)
		return res
	}

	// Nothing is ever written to the child; give it EOF right away.
	h.closeStdin()

	stopWatch := context.AfterFunc(ctx, func() {
		_ = c.Process.Kill()
		h.closeStdout()
	})
	defer stopWatch()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		res.Lines = append(res.Lines, scanner.Text())
	}
	readErr := scanner.Err()

	waitErr := c.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Err = ctxErr
		logging.Debug(subsystem, "Wait for %s ended: %v", cmd, ctxErr)
		return res
	}

	if readErr != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrRead, cmd, readErr)
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if stderr.buf.Len() > 0 {
			suffix := ""
			if stderr.truncated {
				suffix = " (truncated)"
			}
			logging.Debug(subsystem, "%s exited with %d: %s%s", cmd, res.ExitCode, bytes.TrimSpace(stderr.buf.Bytes()), suffix)
		}
	default:
		res.Err = fmt.Errorf("failed waiting for %s: %w", cmd, waitErr)
	}

	return res
}

// environment picks the overrides applied on top of the inherited environment.
func (e *Executor) environment(cmd Command) map[string]string {
	if cmd.Env != nil {
		return cmd.Env
	}
	return e.defaultEnv
}

// handles owns the child's pipe ends. Every close is best-effort and at most once.
type handles struct {
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stdinOnce sync.Once
	outOnce   sync.Once
}

func (h *handles) closeStdin() {
	h.stdinOnce.Do(func() {
		if h.stdin != nil {
			_ = h.stdin.Close()
		}
	})
}

func (h *handles) closeStdout() {
	h.outOnce.Do(func() {
		if h.stdout != nil {
			_ = h.stdout.Close()
		}
	})
}

func (h *handles) release() {
	h.closeStdin()
	h.closeStdout()
}

// cappedBuffer keeps the first limit bytes written to it and discards the rest
// while still reporting full writes, so the child never blocks on stderr.
type cappedBuffer struct {
	limit     int
	buf       bytes.Buffer
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
			c.truncated = true
		} else {
			c.buf.Write(p)
		}
	} else if len(p) > 0 {
		c.truncated = true
	}
	return len(p), nil
}
