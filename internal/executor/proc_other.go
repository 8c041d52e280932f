//go:build !windows

package executor

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so a cancelled
// install takes its helpers down with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

// ErrElevationUnsupported is returned by StartElevated off Windows.
var ErrElevationUnsupported = errors.New("elevated launch is only supported on windows")

// StartElevated is only implemented on Windows.
func StartElevated(path, dir, args string) error {
	log.Warn("elevated launch requested on unsupported platform", "path", path)
	return ErrElevationUnsupported
}
