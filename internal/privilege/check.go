//go:build windows

// Package privilege reports whether the bootstrapper runs elevated. Runtime
// installers started from an unelevated process each raise a UAC prompt.
package privilege

import "golang.org/x/sys/windows"

// IsElevated reports whether the process token is elevated.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
