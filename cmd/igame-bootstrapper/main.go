package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/infinite-dreams/igame-bootstrapper/internal/bootstrap"
	"github.com/infinite-dreams/igame-bootstrapper/internal/config"
	"github.com/infinite-dreams/igame-bootstrapper/internal/depend"
	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/report"
	"github.com/infinite-dreams/igame-bootstrapper/internal/resource"
	"github.com/infinite-dreams/igame-bootstrapper/internal/sysinfo"
)

var (
	version = "1.0.0"
	cfgFile string
	fullID  bool
	write   bool
)

var rootCmd = &cobra.Command{
	Use:   "igame-bootstrapper",
	Short: "IGame Bootstrapper",
	Long:  `IGame Bootstrapper - keeps itself up to date, installs the runtimes the IGame installer needs and starts it`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runBootstrap())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("IGame Bootstrapper v%s\n", version)
	},
}

var resourceIDCmd = &cobra.Command{
	Use:   "resource-id [file]",
	Short: "Print the resource id embedded in a bootstrapper build",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := targetPath(args)
		if err != nil {
			return err
		}
		id, err := resource.Locate(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Println(int32(id))
		return nil
	},
}

var stampCmd = &cobra.Command{
	Use:   "stamp <file> <id>",
	Short: "Write a resource id into a bootstrapper build",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid resource id %q: %w", args[1], err)
		}
		if fullID {
			return resource.Embed(args[0], resource.ID(n))
		}
		return resource.Stamp(args[0], resource.ID(n))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the bootstrapper configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		exeDir, err := executableDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(cfgFile, exeDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		if write {
			path := config.DefaultPath(exeDir)
			if err := os.WriteFile(path, out, 0644); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", path)
			return nil
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show which runtime dependencies are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		exeDir, err := executableDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(cfgFile, exeDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		info := sysinfo.Collect()
		fmt.Printf("OS: %s %s (kernel %s, %s)\n", info.Platform, info.PlatformVersion, info.KernelVersion, info.Arch)
		fmt.Printf("Supported: %t\n", info.Supported())

		prober := depend.NewProber(info.Arch, cfg.InstallDir)
		for _, k := range depend.All {
			state := "missing"
			if prober.Installed(k) {
				state = "installed"
			}
			fmt.Printf("  %-20s %s\n", k.Name(), state)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is bootstrapper.yaml next to the executable)")
	stampCmd.Flags().BoolVar(&fullID, "full", false, "embed the full 16-byte marker instead of the trailing stamp")
	configShowCmd.Flags().BoolVar(&write, "write", false, "write the configuration next to the executable")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resourceIDCmd)
	rootCmd.AddCommand(stampCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBootstrap() int {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to locate executable: %v\n", err)
		return bootstrap.ExitFatal
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	cfg, err := config.Load(cfgFile, filepath.Dir(exe))
	if err != nil {
		newReporter(config.Default()).LocalFatal(fmt.Sprintf("failed to load config\n%v", err))
		return bootstrap.ExitFatal
	}
	result := cfg.Validate()

	output, closer := logOutput(cfg)
	if closer != nil {
		defer closer.Close()
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log := logging.L("main")
	for _, w := range result.Warnings {
		log.Warn("config", logging.KeyError, w)
	}

	rep := newReporter(cfg)
	if result.HasFatals() {
		rep.LocalFatal(fmt.Sprintf("invalid configuration\n%v", errors.Join(result.Fatals...)))
		return bootstrap.ExitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "version", version, logging.KeyPath, exe)
	return bootstrap.New(bootstrap.Options{
		Config:   cfg,
		Version:  version,
		ExePath:  exe,
		Reporter: rep,
	}).Run(ctx)
}

// logOutput keeps the terminal free for the progress view when running
// interactively.
func logOutput(cfg *config.Config) (io.Writer, io.Closer) {
	var console io.Writer = os.Stderr
	if cfg.Interactive {
		console = nil
	}
	if !cfg.LogFile {
		if console == nil {
			return io.Discard, nil
		}
		return console, nil
	}

	w, closer, err := logging.OpenDebugLog(cfg.TempDir, console)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open debug log: %v\n", err)
		return io.Discard, nil
	}
	return w, closer
}

func newReporter(cfg *config.Config) *report.Reporter {
	return report.New(report.Config{
		TempDir:       cfg.TempDir,
		APIURL:        cfg.APIURL,
		AppVersion:    version,
		UploadTimeout: time.Duration(cfg.TelemetryTimeoutSeconds) * time.Second,
	})
}

func targetPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return os.Executable()
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}
