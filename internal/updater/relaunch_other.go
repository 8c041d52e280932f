//go:build !windows

package updater

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// relaunch starts the new binary detached from this process. There is no
// elevation step off Windows.
func relaunch(path, dir, args string) error {
	cmd := exec.Command(path, strings.Fields(args)...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}
	return cmd.Process.Release()
}
