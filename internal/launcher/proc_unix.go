//go:build !windows

package launcher

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// prepareProcessGroup puts the child in its own process group so the whole
// tree it spawns can be signalled at once.
func prepareProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalTerminate asks the child's process group to exit.
func signalTerminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGTERM)
}

// signalKill forcibly ends the child's process group.
func signalKill(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// The group is gone; fall back to the leader in case it never got one.
		err = unix.Kill(pid, sig)
	}
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// groupAlive reports whether any member of the child's process group remains.
func groupAlive(cmd *exec.Cmd) bool {
	if cmd.Process == nil {
		return false
	}
	return unix.Kill(-cmd.Process.Pid, 0) == nil
}

// signalGroupOnly signals the child's process group without falling back to
// the leader's pid, which may have been reused once the leader was reaped.
func signalGroupOnly(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// terminateGroup asks what is left of the child's process group to exit.
func terminateGroup(cmd *exec.Cmd) error {
	return signalGroupOnly(cmd, unix.SIGTERM)
}

// killGroup forcibly ends what is left of the child's process group.
func killGroup(cmd *exec.Cmd) error {
	return signalGroupOnly(cmd, unix.SIGKILL)
}
