// Package sysinfo gathers the host facts the bootstrapper gates on: the
// Windows kernel version and the processor architecture.
package sysinfo

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("sysinfo")

// UnsupportedOSMessage is shown when IsSupported fails.
const UnsupportedOSMessage = "this software only runs on Windows 7/8.1/10/11\nplease upgrade your Windows system"

type Arch int

const (
	ArchX86 Arch = 32
	ArchX64 Arch = 64
)

func (a Arch) String() string {
	if a == ArchX86 {
		return "x86"
	}
	return "x64"
}

type Info struct {
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	Arch            Arch
}

// Collect reads host facts. Missing fields are left empty; the caller
// decides what an unknown kernel means.
func Collect() Info {
	info := Info{OS: runtime.GOOS, Arch: detectArch()}

	hostInfo, err := host.Info()
	if err != nil {
		log.Warn("failed to read host info", logging.KeyError, err)
		return info
	}
	info.OS = hostInfo.OS
	info.Platform = hostInfo.Platform
	info.PlatformVersion = hostInfo.PlatformVersion
	info.KernelVersion = hostInfo.KernelVersion
	return info
}

// Supported reports whether the host passes the OS gate.
func (i Info) Supported() bool {
	return i.OS == "windows" && IsSupported(i.KernelVersion)
}

// IsSupported accepts Windows 7 (6.1), 8.1 (6.3) and 10/11 (10.x) kernel
// versions. Vista (6.0) and 8 (6.2) are rejected.
func IsSupported(kernelVersion string) bool {
	major, minor, ok := parseKernelVersion(kernelVersion)
	if !ok {
		return false
	}
	switch {
	case major == 10:
		return true
	case major == 6:
		return minor == 1 || minor == 3
	default:
		return false
	}
}

// parseKernelVersion takes the leading "major.minor" of strings such as
// "10.0.19045 Build 19045" or "6.1.7601".
func parseKernelVersion(v string) (int, int, bool) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, 0, false
	}
	parts := strings.Split(fields[0], ".")
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// archFromProcessor maps a PROCESSOR_ARCHITECTURE value. Anything that is
// not x86 is treated as 64-bit.
func archFromProcessor(value string) Arch {
	if strings.EqualFold(strings.TrimSpace(value), "x86") {
		return ArchX86
	}
	return ArchX64
}
