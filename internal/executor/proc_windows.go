//go:build windows

package executor

import (
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sys/windows"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// StartElevated launches path through ShellExecuteW with the "runas" verb
// and returns without waiting. The user declining the UAC prompt is not an
// error.
func StartElevated(path, dir, args string) error {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	file, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	params, err := windows.UTF16PtrFromString(args)
	if err != nil {
		return fmt.Errorf("invalid arguments %q: %w", args, err)
	}
	cwd, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return fmt.Errorf("invalid directory %q: %w", dir, err)
	}

	log.Info("starting elevated process", "path", path, "args", args)
	err = windows.ShellExecute(0, verb, file, params, cwd, windows.SW_SHOWNORMAL)
	if err == nil {
		return nil
	}
	if errors.Is(err, windows.ERROR_CANCELLED) || errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		log.Info("elevation declined by user", "path", path)
		return nil
	}
	return fmt.Errorf("start %s elevated: %w", path, err)
}
