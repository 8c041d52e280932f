package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validProviderGroups = map[string]bool{
	"fast":   true,
	"normal": true,
}

// ValidationResult separates errors that must stop startup from values that
// were clamped to a safe default.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// Validate checks the config and clamps unsafe values in place.
// Warnings are logged; fatals are returned for the caller to report.
func (c *Config) Validate() ValidationResult {
	var result ValidationResult

	u, err := url.Parse(c.APIURL)
	switch {
	case c.APIURL == "":
		result.Fatals = append(result.Fatals, fmt.Errorf("api_url is required"))
	case err != nil:
		result.Fatals = append(result.Fatals, fmt.Errorf("api_url %q is not a valid URL: %w", c.APIURL, err))
	case u.Scheme != "http" && u.Scheme != "https":
		result.Fatals = append(result.Fatals, fmt.Errorf("api_url scheme must be http or https, got %q", u.Scheme))
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")

	if !validProviderGroups[strings.ToLower(c.ProviderGroup)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("provider_group %q is not valid (use fast or normal), using fast", c.ProviderGroup))
		c.ProviderGroup = "fast"
	}
	c.ProviderGroup = strings.ToLower(c.ProviderGroup)

	if c.InstallDir == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("install_dir is required"))
	}

	c.RequestTimeoutSeconds = clamp(&result, "request_timeout_seconds", c.RequestTimeoutSeconds, 5, 300)
	c.ConnectTimeoutSeconds = clamp(&result, "connect_timeout_seconds", c.ConnectTimeoutSeconds, 1, 120)
	c.TelemetryTimeoutSeconds = clamp(&result, "telemetry_timeout_seconds", c.TelemetryTimeoutSeconds, 1, 60)
	c.APIMaxRetries = clamp(&result, "api_max_retries", c.APIMaxRetries, 0, 10)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range result.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return result
}

func clamp(result *ValidationResult, key string, value, lo, hi int) int {
	if value < lo {
		result.Warnings = append(result.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, value, lo))
		return lo
	}
	if value > hi {
		result.Warnings = append(result.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, value, hi))
		return hi
	}
	return value
}
