//go:build windows

package sysinfo

import "golang.org/x/sys/windows/registry"

const environmentKey = `SYSTEM\CurrentControlSet\Control\Session Manager\Environment`

// detectArch reads the machine architecture from the registry rather than
// runtime.GOARCH, which describes this binary and not the OS.
func detectArch() Arch {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, environmentKey, registry.QUERY_VALUE)
	if err != nil {
		log.Debug("cannot open environment key, assuming x86", "error", err)
		return ArchX86
	}
	defer key.Close()

	value, _, err := key.GetStringValue("PROCESSOR_ARCHITECTURE")
	if err != nil {
		return ArchX86
	}
	return archFromProcessor(value)
}
