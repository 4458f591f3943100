//go:build windows

package launcher

import (
	"errors"
	"os"
	"os/exec"
)

func prepareProcessGroup(cmd *exec.Cmd) {}

// signalTerminate kills the child. Windows has no SIGTERM equivalent for
// console processes started without a window.
func signalTerminate(cmd *exec.Cmd) error {
	return signalKill(cmd)
}

func signalKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Children are not grouped on windows; there is nothing left to sweep once the
// process itself has exited.
func groupAlive(cmd *exec.Cmd) bool { return false }

func terminateGroup(cmd *exec.Cmd) error { return nil }

func killGroup(cmd *exec.Cmd) error { return nil }
