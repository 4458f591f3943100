package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagectl/internal/config"
	"stagectl/internal/latch"
)

// fakeExecCommand re-executes the test binary as TestHelperProcess.
func fakeExecCommand(command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	return exec.Command(os.Args[0], cs...)
}

func useHelperProcess(t *testing.T) {
	t.Helper()
	original := execCommand
	execCommand = fakeExecCommand
	t.Cleanup(func() { execCommand = original })
}

// helperSpec runs TestHelperProcess in the given mode.
func helperSpec(name, mode string) ProcessSpec {
	return ProcessSpec{
		Name:    name,
		Command: []string{mode},
		Env:     map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
	}
}

// TestHelperProcess is not a real test. It's used by fakeExecCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}

	switch args[1] {
	case "serve":
		fmt.Println("serving")
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGTERM, os.Interrupt)
		<-sigs
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Minute)
	case "orphan":
		// Leaves a grandchild behind in the process group and exits.
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "serve")
		if err := child.Start(); err != nil {
			os.Exit(3)
		}
		_ = os.WriteFile(args[2], []byte(strconv.Itoa(child.Process.Pid)), 0644)
		os.Exit(0)
	case "quit":
		fmt.Println("done already")
		os.Exit(0)
	}
	os.Exit(2)
}

func waitState(t *testing.T, task *Task, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return task.State() == want },
		10*time.Second, 10*time.Millisecond, "task never reached %s (now %s)", want, task.State())
}

func TestTask_StartReadyStop(t *testing.T) {
	useHelperProcess(t)
	l := latch.New()
	task := New(helperSpec("service", "serve"), l, WithCaptureOutput())
	assert.Equal(t, NotStarted, task.State())

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()

	require.True(t, l.Wait(context.Background(), 10*time.Second))
	assert.Equal(t, ReadyRunning, task.State())
	assert.NotZero(t, task.PID())

	task.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("task did not leave its idle loop")
	}
	assert.Equal(t, Stopped, task.State())
	assert.Equal(t, 1, task.StopRequests())
	assert.NoError(t, task.Err())
}

func TestTask_SpawnFailureCountsDownLatch(t *testing.T) {
	l := latch.New()
	task := New(ProcessSpec{Name: "missing", Command: []string{"/nonexistent/binary"}}, l)

	err := task.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.Equal(t, 0, l.Count())
	assert.Equal(t, StartFailed, task.State())
	assert.ErrorIs(t, task.Err(), ErrStartFailed)
	assert.Zero(t, task.PID())

	// Stopping a task that never started is harmless and idempotent.
	task.Stop()
	task.Stop()
	assert.Equal(t, StartFailed, task.State())
	assert.Equal(t, 2, task.StopRequests())
}

func TestTask_StarterRefusal(t *testing.T) {
	useHelperProcess(t)
	l := latch.New()
	denied := errors.New("operation not permitted")
	task := New(helperSpec("guarded", "serve"), l, WithStarter(func(*exec.Cmd) error { return denied }))

	err := task.Run(context.Background())
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.Contains(t, err.Error(), "operation not permitted")
	assert.Equal(t, 0, l.Count())
}

func TestTask_StartFailureKeepsCause(t *testing.T) {
	useHelperProcess(t)
	l := latch.New()
	task := New(helperSpec("restricted", "serve"), l, WithStarter(func(*exec.Cmd) error {
		return &fs.PathError{Op: "fork/exec", Path: "/opt/restricted", Err: fs.ErrPermission}
	}))

	err := task.Run(context.Background())
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.ErrorIs(t, task.Err(), fs.ErrPermission)
	assert.Equal(t, StartFailed, task.State())
	assert.Equal(t, 0, l.Count())
}

func TestTask_RunTwice(t *testing.T) {
	task := New(ProcessSpec{Name: "once", Command: []string{"/nonexistent/binary"}}, latch.New())
	_ = task.Run(context.Background())
	assert.ErrorIs(t, task.Run(context.Background()), ErrAlreadyRun)
}

func TestTask_StopBeforeRun(t *testing.T) {
	useHelperProcess(t)
	l := latch.New()
	spawned := false
	task := New(helperSpec("early", "serve"), l, WithStarter(func(cmd *exec.Cmd) error {
		spawned = true
		return cmd.Start()
	}))
	task.Stop()

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("task started after an early stop kept running")
	}
	assert.Equal(t, 0, l.Count())
	assert.Equal(t, Stopped, task.State())
	assert.False(t, spawned, "a task stopped before Run never launches its child")
	assert.Zero(t, task.PID())
}

func TestTask_ContextDoesNotStopIdleTask(t *testing.T) {
	useHelperProcess(t)
	l := latch.New()
	task := New(helperSpec("service", "serve"), l, WithCaptureOutput(), WithPollInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	require.True(t, l.Wait(context.Background(), 10*time.Second))
	cancel()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, ReadyRunning, task.State())

	task.Stop()
	require.NoError(t, <-done)
}

func TestTask_ChildExitKeepsIdling(t *testing.T) {
	useHelperProcess(t)
	l := latch.New()
	task := New(helperSpec("short", "quit"), l, WithCaptureOutput(), WithPollInterval(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()

	require.True(t, l.Wait(context.Background(), 10*time.Second))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, ReadyRunning, task.State(), "the task idles until stopped")

	task.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, Stopped, task.State())
}

func TestTask_StubbornChildIsKilled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SIGTERM is not delivered on windows")
	}
	useHelperProcess(t)
	l := latch.New()
	task := New(helperSpec("stubborn", "stubborn"), l, WithCaptureOutput(), WithGracePeriod(200*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()
	require.True(t, l.Wait(context.Background(), 10*time.Second))

	task.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stubborn child was never killed")
	}
	waitState(t, task, Stopped)
}

func TestProcessSpec_StartCommand(t *testing.T) {
	t.Run("entry point through runtime", func(t *testing.T) {
		spec := ProcessSpec{
			Name:       "service",
			Kind:       config.ProcessKindService,
			Runtime:    "/usr/local/bin/stagectl",
			ModulePath: "/srv/module",
			Args:       []string{"--port", "19200"},
		}
		argv, err := spec.StartCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{
			"/usr/local/bin/stagectl", "entrypoint", "--module-path", "/srv/module",
			config.EntryPointService, "--", "--port", "19200",
		}, argv)
	})

	t.Run("defaults to current executable and working directory", func(t *testing.T) {
		argv, err := ProcessSpec{Name: "ext", Kind: config.ProcessKindExtension}.StartCommand()
		require.NoError(t, err)
		exe, _ := os.Executable()
		wd, _ := os.Getwd()
		assert.Equal(t, []string{exe, "entrypoint", "--module-path", wd, config.EntryPointExtension}, argv)
	})

	t.Run("explicit command", func(t *testing.T) {
		argv, err := ProcessSpec{Name: "sleep", Command: []string{"sleep"}, Args: []string{"60"}}.StartCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{"sleep", "60"}, argv)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ProcessSpec{Name: "db", Kind: "database"}.StartCommand()
		assert.Error(t, err)
	})
}

func TestSpecFromDefinition(t *testing.T) {
	spec := SpecFromDefinition("svc", config.ProcessDefinition{
		Kind: config.ProcessKindService,
		Args: []string{"--port", "1"},
	}, config.LauncherSettings{Runtime: "/bin/stagectl", ModulePath: filepath.Join("/", "m")})

	assert.Equal(t, "svc", spec.Name)
	assert.Equal(t, "/bin/stagectl", spec.Runtime)
	assert.Equal(t, filepath.Join("/", "m"), spec.ModulePath)
	assert.Equal(t, []string{"--port", "1"}, spec.Args)
}

func TestLineLogger(t *testing.T) {
	l := newLineLogger("test", "stdout")
	n, err := l.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "sec", l.buf.String())

	_, _ = l.Write([]byte("ond\r\n"))
	assert.Zero(t, l.buf.Len())

	_, _ = l.Write([]byte("tail"))
	l.Flush()
	assert.Zero(t, l.buf.Len())
}

// processGone reports whether pid has exited. Zombies count as gone since the
// test process may not be the one to reap them.
func processGone(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && (fields[0] == "Z" || fields[0] == "X")
}

func TestManagedProcess_ReleaseSweepsGroupAfterLeaderExit(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process inspection uses /proc")
	}
	pidFile := filepath.Join(t.TempDir(), "grandchild.pid")
	cmd := fakeExecCommand("orphan", pidFile)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")

	proc, err := startProcess(cmd, (*exec.Cmd).Start, "Launcher/orphan", true)
	require.NoError(t, err)

	select {
	case <-proc.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("leader never exited")
	}
	assert.False(t, proc.Running())

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	grandchild, err := strconv.Atoi(string(raw))
	require.NoError(t, err)
	t.Cleanup(func() {
		if p, err := os.FindProcess(grandchild); err == nil {
			_ = p.Kill()
		}
	})
	require.False(t, processGone(grandchild), "grandchild should outlive the leader")

	proc.Release(500 * time.Millisecond)

	require.Eventually(t, func() bool { return processGone(grandchild) },
		10*time.Second, 20*time.Millisecond, "grandchild %d survived Release", grandchild)
}
