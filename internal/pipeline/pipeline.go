// Package pipeline downloads missing dependencies one after another and
// installs each one concurrently as soon as its download has finished.
//
// State is shared between the download driver, the install tasks and the
// dispatch side (the progress view). Each logical field has its own lock and
// every change is announced through a payload-less notice; the dispatch side
// re-reads everything through Snapshot after waking.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/infinite-dreams/igame-bootstrapper/internal/depend"
	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/notice"
	"github.com/infinite-dreams/igame-bootstrapper/internal/transfer"
	"github.com/infinite-dreams/igame-bootstrapper/internal/workerpool"
)

var log = logging.L("pipeline")

const (
	InitialDownloadDescription = "initializing download request"
	IdleInstallDescription     = "waiting for downloads..."
)

// Downloader fetches every package of a dependency.
type Downloader interface {
	Download(ctx context.Context, k depend.Kind, sink transfer.ProgressSink) error
}

// Installer installs a downloaded dependency.
type Installer interface {
	Install(ctx context.Context, k depend.Kind) error
}

// ErrorSink decides how failures are presented. A download failure blocks
// every later step; an install failure does not stop its siblings.
type ErrorSink interface {
	DownloadFailed(k depend.Kind, err error)
	InstallFailed(k depend.Kind, err error)
}

// Result is the outcome of one install task.
type Result struct {
	Kind depend.Kind
	Err  error
}

// Snapshot is a copy of the shared state taken under the locks.
type Snapshot struct {
	DownloadDescription string
	Progress            int
	InstallDescription  string
	Needed              []depend.Kind
	Installing          []depend.Kind
	Installed           []depend.Kind
	Failed              bool
}

// Complete reports whether every needed dependency has been installed.
func (s Snapshot) Complete() bool {
	return len(s.Installed) == len(s.Needed)
}

type Pipeline struct {
	needed     []depend.Kind
	downloader Downloader
	installer  Installer
	errs       ErrorSink

	pool    *workerpool.Pool
	notice  *notice.Notice
	results chan Result

	done       chan struct{}
	doneOnce   sync.Once
	driverDone chan struct{}
	startOnce  sync.Once

	progressMu sync.Mutex
	progress   int

	descMu       sync.Mutex
	downloadDesc string
	installDesc  string

	setMu      sync.Mutex
	installing []depend.Kind
	installed  []depend.Kind
	failed     bool
}

// New builds a pipeline for needed. Duplicates are dropped, order is kept.
func New(needed []depend.Kind, d Downloader, i Installer, errs ErrorSink) *Pipeline {
	var uniq []depend.Kind
	for _, k := range needed {
		if !slices.Contains(uniq, k) {
			uniq = append(uniq, k)
		}
	}

	n := len(uniq)
	return &Pipeline{
		needed:       uniq,
		downloader:   d,
		installer:    i,
		errs:         errs,
		pool:         workerpool.New(max(n, 1), max(n, 1)),
		notice:       notice.New(),
		results:      make(chan Result, n),
		done:         make(chan struct{}),
		driverDone:   make(chan struct{}),
		downloadDesc: InitialDownloadDescription,
		installDesc:  IdleInstallDescription,
	}
}

// Run starts the download driver and returns immediately. Calling it more
// than once has no effect.
func (p *Pipeline) Run(ctx context.Context) {
	p.startOnce.Do(func() {
		log.Info("pipeline started", "needed", strings.Join(depend.Names(p.needed), ","))
		if len(p.needed) == 0 {
			close(p.driverDone)
			p.complete()
			return
		}
		go p.drive(ctx)
	})
}

// Notices fires after any change to the shared state.
func (p *Pipeline) Notices() <-chan struct{} {
	return p.notice.C()
}

// Done is closed once every needed dependency has been installed.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Results receives one entry per finished install task.
func (p *Pipeline) Results() <-chan Result {
	return p.results
}

// Failed reports whether a download failed.
func (p *Pipeline) Failed() bool {
	p.setMu.Lock()
	defer p.setMu.Unlock()
	return p.failed
}

// Wait blocks until the driver has stopped and every started install task
// has returned, or until ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-p.driverDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.pool.Shutdown(ctx)
}

func (p *Pipeline) Snapshot() Snapshot {
	var s Snapshot

	p.progressMu.Lock()
	s.Progress = p.progress
	p.progressMu.Unlock()

	p.descMu.Lock()
	s.DownloadDescription = p.downloadDesc
	s.InstallDescription = p.installDesc
	p.descMu.Unlock()

	p.setMu.Lock()
	s.Needed = slices.Clone(p.needed)
	s.Installing = slices.Clone(p.installing)
	s.Installed = slices.Clone(p.installed)
	s.Failed = p.failed
	p.setMu.Unlock()

	return s
}

func (p *Pipeline) drive(ctx context.Context) {
	defer close(p.driverDone)

	n := len(p.needed)
	for i, k := range p.needed {
		if p.Failed() {
			log.Debug("download driver stopped after failure")
			return
		}

		p.setDownloadDescription(fmt.Sprintf("(%d/%d) downloading runtime: %s", i+1, n, k.Name()))
		p.setProgress(0)

		// The sink sees a failure before the flag becomes visible to views.
		if err := p.downloader.Download(ctx, k, p.setProgress); err != nil {
			log.Error("download failed", logging.KeyDependency, k.Name(), logging.KeyError, err)
			p.errs.DownloadFailed(k, err)
			p.markFailed()
			return
		}

		if !p.pool.Submit(func() { p.install(ctx, k) }) {
			p.errs.DownloadFailed(k, fmt.Errorf("could not schedule install of %s", k.Name()))
			p.markFailed()
			return
		}
	}

	p.setDownloadDescription(fmt.Sprintf("(%d/%d) all downloads finished, waiting for installs...", n, n))
}

func (p *Pipeline) install(ctx context.Context, k depend.Kind) {
	logger := logging.WithDependency(log, k.Name())
	if !p.beginInstall(k) {
		logger.Debug("install skipped after failure")
		return
	}

	logger.Info("install started")
	err := p.runInstaller(ctx, k)
	if err != nil {
		logger.Error("install failed", logging.KeyError, err)
		p.errs.InstallFailed(k, err)
	} else {
		logger.Info("install finished")
	}

	p.results <- Result{Kind: k, Err: err}
	p.finishInstall(k)
}

// runInstaller turns an installer panic into an install error so the
// pipeline still reaches completion.
func (p *Pipeline) runInstaller(ctx context.Context, k depend.Kind) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("installer panicked: %v", r)
		}
	}()
	return p.installer.Install(ctx, k)
}

// beginInstall moves k into the installing set. It refuses once the
// pipeline has failed.
func (p *Pipeline) beginInstall(k depend.Kind) bool {
	p.setMu.Lock()
	if p.failed {
		p.setMu.Unlock()
		return false
	}
	p.installing = append(p.installing, k)
	installing := slices.Clone(p.installing)
	p.setMu.Unlock()

	p.setInstallDescription(installingDescription(installing))
	return true
}

// finishInstall moves k from installing to installed and re-evaluates
// completion. It runs after every single install, failed or not.
func (p *Pipeline) finishInstall(k depend.Kind) {
	p.setMu.Lock()
	if i := slices.Index(p.installing, k); i >= 0 {
		p.installing = slices.Delete(p.installing, i, i+1)
	}
	if !slices.Contains(p.installed, k) {
		p.installed = append(p.installed, k)
	}
	installing := slices.Clone(p.installing)
	complete := len(p.installed) == len(p.needed)
	p.setMu.Unlock()

	switch {
	case complete:
		p.complete()
	case len(installing) == 0:
		p.setInstallDescription(IdleInstallDescription)
	default:
		p.setInstallDescription(installingDescription(installing))
	}
}

func (p *Pipeline) complete() {
	p.doneOnce.Do(func() {
		log.Info("all dependencies installed", "count", len(p.needed))
		close(p.done)
		p.notice.Notify()
	})
}

func (p *Pipeline) markFailed() {
	p.setMu.Lock()
	p.failed = true
	p.setMu.Unlock()
	p.notice.Notify()
}

func (p *Pipeline) setProgress(percent int) {
	p.progressMu.Lock()
	changed := p.progress != percent
	p.progress = percent
	p.progressMu.Unlock()
	if changed {
		p.notice.Notify()
	}
}

func (p *Pipeline) setDownloadDescription(s string) {
	p.descMu.Lock()
	p.downloadDesc = s
	p.descMu.Unlock()
	p.notice.Notify()
}

func (p *Pipeline) setInstallDescription(s string) {
	p.descMu.Lock()
	p.installDesc = s
	p.descMu.Unlock()
	p.notice.Notify()
}

func installingDescription(kinds []depend.Kind) string {
	return "installing runtime: " + strings.Join(depend.Names(kinds), ", ")
}
