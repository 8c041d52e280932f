package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	result := cfg.Validate()
	if result.HasFatals() {
		t.Fatalf("default config should be valid, got %v", result.Fatals)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("default config should not warn, got %v", result.Warnings)
	}
}

func TestValidateInvalidURLSchemeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "ftp://example.com"
	if !cfg.Validate().HasFatals() {
		t.Fatal("invalid URL scheme should be fatal")
	}
}

func TestValidateEmptyInstallDirIsFatal(t *testing.T) {
	cfg := Default()
	cfg.InstallDir = ""
	if !cfg.Validate().HasFatals() {
		t.Fatal("empty install_dir should be fatal")
	}
}

func TestValidateTrimsTrailingSlash(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "https://api.example.com/"
	cfg.Validate()
	if cfg.APIURL != "https://api.example.com" {
		t.Fatalf("APIURL = %q, want trailing slash trimmed", cfg.APIURL)
	}
}

func TestValidateClampsTimeouts(t *testing.T) {
	cfg := Default()
	cfg.ConnectTimeoutSeconds = 0
	cfg.RequestTimeoutSeconds = 100000
	cfg.APIMaxRetries = -3

	result := cfg.Validate()
	if result.HasFatals() {
		t.Fatalf("clamping should not be fatal: %v", result.Fatals)
	}
	if cfg.ConnectTimeoutSeconds != 1 {
		t.Fatalf("ConnectTimeoutSeconds = %d, want 1", cfg.ConnectTimeoutSeconds)
	}
	if cfg.RequestTimeoutSeconds != 300 {
		t.Fatalf("RequestTimeoutSeconds = %d, want 300", cfg.RequestTimeoutSeconds)
	}
	if cfg.APIMaxRetries != 0 {
		t.Fatalf("APIMaxRetries = %d, want 0", cfg.APIMaxRetries)
	}
	if len(result.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(result.Warnings), result.Warnings)
	}
}

func TestValidateUnknownProviderGroupFallsBackToFast(t *testing.T) {
	cfg := Default()
	cfg.ProviderGroup = "turbo"
	result := cfg.Validate()
	if cfg.ProviderGroup != "fast" {
		t.Fatalf("ProviderGroup = %q, want fast", cfg.ProviderGroup)
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "provider_group") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected provider_group warning")
	}
}

func TestLoadReadsFileNextToExecutable(t *testing.T) {
	dir := t.TempDir()
	content := "api_url: https://mirror.example.com\nprovider_group: normal\nskip_update: true\n"
	if err := os.WriteFile(filepath.Join(dir, "bootstrapper.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://mirror.example.com" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
	if cfg.ProviderGroup != "normal" {
		t.Fatalf("ProviderGroup = %q", cfg.ProviderGroup)
	}
	if !cfg.SkipUpdate {
		t.Fatal("SkipUpdate should be true")
	}
	if cfg.RequestTimeoutSeconds != 30 {
		t.Fatalf("unset keys should keep defaults, RequestTimeoutSeconds = %d", cfg.RequestTimeoutSeconds)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != Default().APIURL {
		t.Fatalf("APIURL = %q, want default", cfg.APIURL)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("IGAME_API_MAX_RETRIES", "4")

	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIMaxRetries != 4 {
		t.Fatalf("APIMaxRetries = %d, want 4 from environment", cfg.APIMaxRetries)
	}
}

func TestYAMLRendersKeys(t *testing.T) {
	out, err := Default().YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	if !strings.Contains(string(out), "api_url: https://api.igame.ml") {
		t.Fatalf("unexpected YAML output:\n%s", out)
	}
}
