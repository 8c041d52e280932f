// Package depend describes the runtime dependencies the IGame installer
// needs, how to detect them and how to fetch and install them.
package depend

import (
	"fmt"
	"strings"

	"github.com/infinite-dreams/igame-bootstrapper/internal/sysinfo"
)

// Kind is one of a fixed set of runtime dependencies.
type Kind int

const (
	DotNet48 Kind = iota + 1
	WebView2
	IGameInstaller
)

// All lists every dependency in probe and download order.
var All = []Kind{DotNet48, WebView2, IGameInstaller}

// Resource ids served by the metadata service.
const (
	ResourceDotNet48       int32 = 9
	ResourceWebView2X86    int32 = 10
	ResourceWebView2X64    int32 = 11
	ResourceIGameInstaller int32 = 12
	ResourceRootsupd       int32 = 13
)

// DefaultInstallDir is where the IGame installer package is unpacked.
const DefaultInstallDir = `C:\Program Files\Infinite Dreams\IGameInstaller`

// InstallerExecutable is the downstream installer inside the install dir.
const InstallerExecutable = "IGameInstaller.exe"

func (k Kind) Name() string {
	switch k {
	case DotNet48:
		return ".NET Framework 4.8"
	case WebView2:
		return "WebView2"
	case IGameInstaller:
		return "IGame Installer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) String() string { return k.Name() }

// ParseKind resolves a name as printed by Name, case-insensitively.
func ParseKind(name string) (Kind, error) {
	for _, k := range All {
		if strings.EqualFold(k.Name(), strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown dependency %q", name)
}

// Provider is one package that has to be downloaded for a dependency.
type Provider struct {
	ResourceID  int32
	PackageFile string
	// Tracked downloads drive the progress bar; helper packages are
	// fetched silently.
	Tracked bool
}

// Providers returns the packages for k in download order.
func (k Kind) Providers(arch sysinfo.Arch) []Provider {
	switch k {
	case DotNet48:
		return []Provider{
			{ResourceID: ResourceRootsupd, PackageFile: "Rootsupd.tzst"},
			{ResourceID: ResourceDotNet48, PackageFile: ".NET Framework 4.8.tzst", Tracked: true},
		}
	case WebView2:
		id := ResourceWebView2X64
		if arch == sysinfo.ArchX86 {
			id = ResourceWebView2X86
		}
		return []Provider{{ResourceID: id, PackageFile: "WebView2Installer.tzst", Tracked: true}}
	case IGameInstaller:
		return []Provider{{ResourceID: ResourceIGameInstaller, PackageFile: "IGameInstaller.tzst", Tracked: true}}
	default:
		return nil
	}
}

// PackageFile is the main package name for k.
func (k Kind) PackageFile() string {
	ps := k.Providers(sysinfo.ArchX64)
	if len(ps) == 0 {
		return ""
	}
	return ps[len(ps)-1].PackageFile
}

// Step is one install action. A step either runs Executable from a fresh
// extraction directory or, when ExtractTo is set, only unpacks there.
type Step struct {
	PackageFile string
	Executable  string
	Args        []string
	ExtractTo   string
}

// Steps returns the install actions for k.
func (k Kind) Steps(arch sysinfo.Arch, installDir string) []Step {
	switch k {
	case DotNet48:
		return []Step{
			{PackageFile: "Rootsupd.tzst", Executable: "Rootsupd.exe"},
			{
				PackageFile: ".NET Framework 4.8.tzst",
				Executable:  ".NET Framework 4.8.exe",
				Args:        []string{"/passive", "/showrmui", "/promptrestart"},
			},
		}
	case WebView2:
		exe := "WebView2RuntimeInstallerX64.exe"
		if arch == sysinfo.ArchX86 {
			exe = "WebView2RuntimeInstallerX32.exe"
		}
		return []Step{{PackageFile: "WebView2Installer.tzst", Executable: exe, Args: []string{"/silent", "/install"}}}
	case IGameInstaller:
		if installDir == "" {
			installDir = DefaultInstallDir
		}
		return []Step{{PackageFile: "IGameInstaller.tzst", ExtractTo: installDir}}
	default:
		return nil
	}
}

// Names returns the display names of kinds.
func Names(kinds []Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.Name()
	}
	return out
}

// NeedsPrompt reports whether the user must confirm before installing. The
// IGame installer on its own is installed without asking.
func NeedsPrompt(missing []Kind) bool {
	if len(missing) == 0 {
		return false
	}
	return !(len(missing) == 1 && missing[0] == IGameInstaller)
}
