package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the base name of the optional config file looked up next to
// the executable and in the working directory.
const FileName = "bootstrapper"

type Config struct {
	APIURL                  string `mapstructure:"api_url" yaml:"api_url"`
	ProviderGroup           string `mapstructure:"provider_group" yaml:"provider_group"`
	LogLevel                string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat               string `mapstructure:"log_format" yaml:"log_format"`
	LogFile                 bool   `mapstructure:"log_file" yaml:"log_file"`
	TempDir                 string `mapstructure:"temp_dir" yaml:"temp_dir"`
	InstallDir              string `mapstructure:"install_dir" yaml:"install_dir"`
	RequestTimeoutSeconds   int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	ConnectTimeoutSeconds   int    `mapstructure:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	TelemetryTimeoutSeconds int    `mapstructure:"telemetry_timeout_seconds" yaml:"telemetry_timeout_seconds"`
	APIMaxRetries           int    `mapstructure:"api_max_retries" yaml:"api_max_retries"`
	SkipUpdate              bool   `mapstructure:"skip_update" yaml:"skip_update"`
	Interactive             bool   `mapstructure:"interactive" yaml:"interactive"`
}

func Default() *Config {
	return &Config{
		APIURL:                  "https://api.igame.ml",
		ProviderGroup:           "fast",
		LogLevel:                "info",
		LogFormat:               "text",
		TempDir:                 os.TempDir(),
		InstallDir:              `C:\Program Files\Infinite Dreams\IGameInstaller`,
		RequestTimeoutSeconds:   30,
		ConnectTimeoutSeconds:   10,
		TelemetryTimeoutSeconds: 10,
		APIMaxRetries:           3,
		Interactive:             true,
	}
}

// Load reads the config file (explicit path, or bootstrapper.yaml next to
// the executable / in the working directory) and IGAME_* environment
// variables on top of Default(). A missing file is not an error.
func Load(cfgFile, exeDir string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		if exeDir != "" {
			v.AddConfigPath(exeDir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("IGAME")
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindDefaults registers every key so AutomaticEnv can resolve values that
// appear in neither the file nor the struct literal.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api_url", cfg.APIURL)
	v.SetDefault("provider_group", cfg.ProviderGroup)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("temp_dir", cfg.TempDir)
	v.SetDefault("install_dir", cfg.InstallDir)
	v.SetDefault("request_timeout_seconds", cfg.RequestTimeoutSeconds)
	v.SetDefault("connect_timeout_seconds", cfg.ConnectTimeoutSeconds)
	v.SetDefault("telemetry_timeout_seconds", cfg.TelemetryTimeoutSeconds)
	v.SetDefault("api_max_retries", cfg.APIMaxRetries)
	v.SetDefault("skip_update", cfg.SkipUpdate)
	v.SetDefault("interactive", cfg.Interactive)
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultPath is where `config show --write` would place the file.
func DefaultPath(exeDir string) string {
	return filepath.Join(exeDir, FileName+".yaml")
}
