package sysinfo

import "testing"

func TestIsSupported(t *testing.T) {
	tests := []struct {
		kernel string
		want   bool
	}{
		{"6.1.7601", true},
		{"6.3.9600", true},
		{"10.0.19045 Build 19045", true},
		{"10.0.22631 Build 22631", true},
		{"6.0.6002", false},
		{"6.2.9200", false},
		{"5.1.2600", false},
		{"", false},
		{"garbage", false},
		{"10", false},
	}
	for _, tt := range tests {
		if got := IsSupported(tt.kernel); got != tt.want {
			t.Errorf("IsSupported(%q) = %v, want %v", tt.kernel, got, tt.want)
		}
	}
}

func TestSupportedRequiresWindows(t *testing.T) {
	i := Info{OS: "linux", KernelVersion: "10.0.1"}
	if i.Supported() {
		t.Fatal("non-windows host must not pass the OS gate")
	}
	i.OS = "windows"
	if !i.Supported() {
		t.Fatal("windows 10 kernel should pass")
	}
}

func TestArchFromProcessor(t *testing.T) {
	for value, want := range map[string]Arch{
		"x86":   ArchX86,
		"X86 ":  ArchX86,
		"AMD64": ArchX64,
		"ARM64": ArchX64,
		"":      ArchX64,
	} {
		if got := archFromProcessor(value); got != want {
			t.Errorf("archFromProcessor(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestCollectFillsArch(t *testing.T) {
	info := Collect()
	if info.Arch != ArchX86 && info.Arch != ArchX64 {
		t.Fatalf("unexpected arch %d", info.Arch)
	}
	if info.OS == "" {
		t.Fatal("OS should always be set")
	}
}
