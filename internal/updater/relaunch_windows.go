//go:build windows

package updater

import "github.com/infinite-dreams/igame-bootstrapper/internal/executor"

// relaunch starts the new bootstrapper elevated through UAC.
func relaunch(path, dir, args string) error {
	return executor.StartElevated(path, dir, args)
}
