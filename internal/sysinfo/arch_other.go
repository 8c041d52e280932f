//go:build !windows

package sysinfo

import "runtime"

func detectArch() Arch {
	switch runtime.GOARCH {
	case "386", "arm":
		return ArchX86
	default:
		return ArchX64
	}
}
