// Package bootstrap runs the startup flow: OS gate, resource id, stale
// backup cleanup, self-update, dependency probe, prompt, dependency
// pipeline and finally the launch of the IGame installer.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/infinite-dreams/igame-bootstrapper/internal/config"
	"github.com/infinite-dreams/igame-bootstrapper/internal/depend"
	"github.com/infinite-dreams/igame-bootstrapper/internal/executor"
	"github.com/infinite-dreams/igame-bootstrapper/internal/httputil"
	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/pipeline"
	"github.com/infinite-dreams/igame-bootstrapper/internal/privilege"
	"github.com/infinite-dreams/igame-bootstrapper/internal/report"
	"github.com/infinite-dreams/igame-bootstrapper/internal/resource"
	"github.com/infinite-dreams/igame-bootstrapper/internal/sysinfo"
	"github.com/infinite-dreams/igame-bootstrapper/internal/transfer"
	"github.com/infinite-dreams/igame-bootstrapper/internal/ui"
	"github.com/infinite-dreams/igame-bootstrapper/internal/updater"
	"github.com/infinite-dreams/igame-bootstrapper/pkg/api"
)

var log = logging.L("bootstrap")

// Process exit codes.
const (
	ExitOK     = 0
	ExitFatal  = 1
	ExitClosed = 2
)

var (
	pipelineHeader = []string{
		"This is the first run, some runtime environments have to be installed.",
		"This should take 2-5 minutes, please wait...",
	}
	updateHeader = []string{
		"A new version was found and is being installed.",
		"This should take about 30 seconds, please wait...",
	}
)

// Options configures an App.
type Options struct {
	Config   *config.Config
	Version  string
	ExePath  string
	Reporter *report.Reporter
	// TeaOptions are passed to every interactive view.
	TeaOptions []tea.ProgramOption
}

// App holds the collaborators of one bootstrap run. The function fields
// are the OS-facing edges.
type App struct {
	cfg      *config.Config
	version  string
	exePath  string
	reporter *report.Reporter
	teaOpts  []tea.ProgramOption

	meta    *api.Client
	engine  *transfer.Engine
	updater *updater.Updater

	hostInfo func() sysinfo.Info
	locate   func(path string) (resource.ID, error)
	missing  func(arch sysinfo.Arch) []depend.Kind
	launch   func(path, dir, args string) error
	runStep  depend.RunFunc
}

func New(opts Options) *App {
	cfg := opts.Config
	retry := httputil.DefaultRetryConfig()
	retry.MaxRetries = cfg.APIMaxRetries

	meta := api.NewClient(cfg.APIURL, &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second}, retry)
	engine := transfer.New(transfer.Options{
		TempDir:        cfg.TempDir,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		UserAgent:      "IGameBootstrapper/" + opts.Version,
	})
	upd := updater.New(&updater.Config{
		CurrentVersion: opts.Version,
		ExePath:        opts.ExePath,
		TempDir:        cfg.TempDir,
		ProviderGroup:  api.ProviderGroup(cfg.ProviderGroup),
	}, meta, engine)

	return &App{
		cfg:      cfg,
		version:  opts.Version,
		exePath:  opts.ExePath,
		reporter: opts.Reporter,
		teaOpts:  opts.TeaOptions,
		meta:     meta,
		engine:   engine,
		updater:  upd,
		hostInfo: sysinfo.Collect,
		locate:   resource.Locate,
		missing: func(arch sysinfo.Arch) []depend.Kind {
			return depend.NewProber(arch, cfg.InstallDir).Missing()
		},
		launch:  executor.StartElevated,
		runStep: executor.Run,
	}
}

// Title is the heading shown on every view.
func (a *App) Title() string {
	return fmt.Sprintf("IGame Bootstrapper v%s", a.version)
}

// Run executes the whole flow and returns the process exit code.
func (a *App) Run(ctx context.Context) int {
	info := a.hostInfo()
	if !info.Supported() {
		log.Warn("unsupported operating system", "os", info.OS, "kernel", info.KernelVersion)
		a.reporter.LocalFatal(sysinfo.UnsupportedOSMessage)
		return ExitFatal
	}
	log.Info("host detected", "platform", info.Platform, "version", info.PlatformVersion, "arch", info.Arch.String(), "elevated", privilege.IsElevated())

	id, err := a.locate(a.exePath)
	if err != nil {
		a.reporter.Fail(report.StartupFatal, "failed to read own resource id", err, report.FatalOptions)
		return ExitFatal
	}
	log.Info("resource id resolved", logging.KeyResourceID, int32(id))

	if err := a.updater.CleanupBackup(); err != nil {
		a.reporter.Fail(report.FilesystemFailure, "failed to remove old version file", err, report.FatalOptions)
		return ExitFatal
	}

	if !a.cfg.SkipUpdate {
		code, replaced := a.selfUpdate(ctx, id)
		if replaced || code != ExitOK {
			return code
		}
	}

	missing := a.missing(info.Arch)
	if len(missing) > 0 {
		if code := a.installDependencies(ctx, info.Arch, missing); code != ExitOK {
			return code
		}
	}

	return a.launchInstaller(id)
}

// selfUpdate checks for and applies a newer bootstrapper. replaced is true
// when the new build has been started and this process must exit.
func (a *App) selfUpdate(ctx context.Context, id resource.ID) (code int, replaced bool) {
	pkg, outdated, err := a.updater.Check(ctx)
	if err != nil {
		return a.networkFailure("failed to check for updates", err), false
	}
	if !outdated {
		return ExitOK, false
	}

	tracker := ui.NewTracker(pipeline.InitialDownloadDescription, "waiting for download...")
	a.updater.OnStage = func(s updater.Stage) {
		switch s {
		case updater.StageDownload:
			tracker.SetDownload("downloading update file...")
		case updater.StageExtract:
			tracker.SetDownload("download finished")
			tracker.SetInstall("installing update...", true)
		}
	}

	errc := make(chan error, 1)
	go func() {
		err := a.updater.Apply(ctx, pkg, id, tracker.SetProgress)
		errc <- err
		if err != nil {
			tracker.Fail()
			return
		}
		tracker.Finish()
	}()

	switch err := a.show(ctx, updateHeader, tracker); {
	case errors.Is(err, ui.ErrClosed):
		return ExitClosed, true
	case errors.Is(err, ui.ErrFailed):
		applyErr := <-errc
		var ue *updater.Error
		what := "failed to install update"
		if errors.As(applyErr, &ue) && ue.Stage == updater.StageDownload {
			what = "failed to download update file"
		}
		a.reporter.Fail(report.SelfUpdateFailure, what, applyErr, report.FatalOptions)
		return ExitFatal, true
	case err != nil:
		a.reporter.Fail(report.StartupFatal, "failed to show update progress", err, report.FatalOptions)
		return ExitFatal, true
	}

	log.Info("bootstrapper replaced, exiting", "version", pkg.Version)
	return ExitOK, true
}

func (a *App) installDependencies(ctx context.Context, arch sysinfo.Arch, missing []depend.Kind) int {
	names := depend.Names(missing)
	log.Info("missing dependencies", "names", names)

	if depend.NeedsPrompt(missing) {
		if a.cfg.Interactive {
			if err := ui.Prompt(ctx, a.Title(), names, a.teaOpts...); err != nil {
				if errors.Is(err, ui.ErrClosed) {
					return ExitClosed
				}
				a.reporter.Fail(report.StartupFatal, "failed to show prompt", err, report.FatalOptions)
				return ExitFatal
			}
		} else {
			log.Info("non-interactive run, installing without prompt")
		}
	}

	fetcher := depend.NewFetcher(a.meta, a.engine, arch, api.ProviderGroup(a.cfg.ProviderGroup))
	setup := depend.NewSetup(a.cfg.TempDir, a.cfg.InstallDir, arch).WithRunner(a.runStep)
	sink := &deferredSink{report: pipeline.ReportSink{Reporter: a.reporter}}

	p := pipeline.New(missing, fetcher, setup, sink)
	p.Run(ctx)

	err := a.show(ctx, pipelineHeader, pipelineSource{p})
	switch {
	case errors.Is(err, ui.ErrClosed):
		return ExitClosed
	case errors.Is(err, ui.ErrFailed):
		sink.flush()
		return ExitFatal
	case err != nil:
		a.reporter.Fail(report.StartupFatal, "failed to show install progress", err, report.FatalOptions)
		return ExitFatal
	}

	if err := p.Wait(ctx); err != nil {
		log.Warn("install tasks still running", logging.KeyError, err)
	}
	return ExitOK
}

func (a *App) launchInstaller(id resource.ID) int {
	path := filepath.Join(a.cfg.InstallDir, depend.InstallerExecutable)
	args := fmt.Sprintf("%q", fmt.Sprint(int32(id)))
	log.Info("launching installer", logging.KeyPath, path, logging.KeyResourceID, int32(id))

	if err := a.launch(path, a.cfg.InstallDir, args); err != nil {
		a.reporter.Fail(report.StartupFatal, "failed to start the IGame installer", err, report.FatalOptions)
		return ExitFatal
	}
	return ExitOK
}

// show runs the progress view, or logs progress when not interactive.
func (a *App) show(ctx context.Context, header []string, src ui.Source) error {
	if !a.cfg.Interactive {
		return ui.Watch(ctx, src)
	}
	return ui.RunProgress(ctx, a.Title(), header, src, a.teaOpts...)
}

// networkFailure reports a metadata failure. Maintenance is shown without
// being uploaded.
func (a *App) networkFailure(what string, err error) int {
	var me *api.MaintenanceError
	if errors.As(err, &me) {
		a.reporter.Maintenance(me.Until)
		return ExitFatal
	}
	a.reporter.Fail(report.NetworkFailure, what, err, report.FatalOptions)
	return ExitFatal
}

// pipelineSource adapts a pipeline to the progress view.
type pipelineSource struct {
	p *pipeline.Pipeline
}

func (s pipelineSource) Notices() <-chan struct{} { return s.p.Notices() }

func (s pipelineSource) Done() <-chan struct{} { return s.p.Done() }

func (s pipelineSource) State() ui.State {
	snap := s.p.Snapshot()
	return ui.State{
		DownloadDescription: snap.DownloadDescription,
		Progress:            snap.Progress,
		InstallDescription:  snap.InstallDescription,
		Installing:          len(snap.Installing) > 0,
		Failed:              snap.Failed,
	}
}

// deferredSink holds the fatal download failure until the progress view
// has released the terminal. Install failures are reported right away.
type deferredSink struct {
	report pipeline.ReportSink

	mu   sync.Mutex
	kind depend.Kind
	err  error
}

func (s *deferredSink) DownloadFailed(k depend.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.kind, s.err = k, err
	}
}

func (s *deferredSink) InstallFailed(k depend.Kind, err error) {
	s.report.InstallFailed(k, err)
}

func (s *deferredSink) flush() {
	s.mu.Lock()
	k, err := s.kind, s.err
	s.mu.Unlock()
	if err != nil {
		s.report.DownloadFailed(k, err)
	}
}
