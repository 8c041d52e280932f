package depend

import (
	"os"
	"path/filepath"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/sysinfo"
)

var log = logging.L("depend")

// CheckType identifies the kind of presence probe.
type CheckType string

const (
	CheckFileExists           CheckType = "file_exists"
	CheckRegistryDWORDAtLeast CheckType = "registry_dword_at_least"
	CheckRegistryString       CheckType = "registry_string_nonempty"
)

// DotNet48Release is the minimum NDP Release value of .NET Framework 4.8.
const DotNet48Release = 528040

const (
	dotNetKey        = `SOFTWARE\Microsoft\NET Framework Setup\NDP\v4\Full`
	webView2ClientID = `{F3017226-FE2A-4295-8BDF-00C3A9A7E4C5}`
)

// Check is a single presence probe. Registry checks read Value from the
// HKLM key at Path.
type Check struct {
	Type  CheckType
	Path  string
	Value string
	Min   uint64
}

// CheckFor returns the probe that decides whether k is installed.
func CheckFor(k Kind, arch sysinfo.Arch, installDir string) Check {
	switch k {
	case DotNet48:
		return Check{Type: CheckRegistryDWORDAtLeast, Path: dotNetKey, Value: "Release", Min: DotNet48Release}
	case WebView2:
		path := `SOFTWARE\WOW6432Node\Microsoft\EdgeUpdate\Clients\` + webView2ClientID
		if arch == sysinfo.ArchX86 {
			path = `SOFTWARE\Microsoft\EdgeUpdate\Clients\` + webView2ClientID
		}
		return Check{Type: CheckRegistryString, Path: path, Value: "pv"}
	default:
		if installDir == "" {
			installDir = DefaultInstallDir
		}
		return Check{Type: CheckFileExists, Path: filepath.Join(installDir, InstallerExecutable)}
	}
}

// Prober answers whether each dependency is already present.
type Prober struct {
	arch       sysinfo.Arch
	installDir string
	registry   registryReader
}

func NewProber(arch sysinfo.Arch, installDir string) *Prober {
	return &Prober{arch: arch, installDir: installDir, registry: systemRegistry{}}
}

// Installed reports whether k is present. Probe errors count as absent.
func (p *Prober) Installed(k Kind) bool {
	c := CheckFor(k, p.arch, p.installDir)
	ok := p.evaluate(c)
	log.Debug("dependency probed", logging.KeyDependency, k.Name(), "check", string(c.Type), "installed", ok)
	return ok
}

// Missing returns the dependencies that are not installed, in All order.
func (p *Prober) Missing() []Kind {
	var out []Kind
	for _, k := range All {
		if !p.Installed(k) {
			out = append(out, k)
		}
	}
	return out
}

func (p *Prober) evaluate(c Check) bool {
	switch c.Type {
	case CheckFileExists:
		_, err := os.Stat(c.Path)
		return err == nil
	case CheckRegistryDWORDAtLeast:
		v, err := p.registry.Integer(c.Path, c.Value)
		if err != nil {
			return false
		}
		return v >= c.Min
	case CheckRegistryString:
		v, err := p.registry.String(c.Path, c.Value)
		return err == nil && v != ""
	default:
		log.Warn("unknown check type", "type", c.Type)
		return false
	}
}

// registryReader reads HKLM values.
type registryReader interface {
	Integer(path, name string) (uint64, error)
	String(path, name string) (string, error)
}
