package depend

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/infinite-dreams/igame-bootstrapper/internal/archive"
	"github.com/infinite-dreams/igame-bootstrapper/internal/executor"
	"github.com/infinite-dreams/igame-bootstrapper/internal/fileutil"
	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/sysinfo"
	"github.com/infinite-dreams/igame-bootstrapper/internal/transfer"
	"github.com/infinite-dreams/igame-bootstrapper/pkg/api"
)

// URLResolver looks up where a resource can be downloaded from.
type URLResolver interface {
	DownloadURL(ctx context.Context, resourceID int32, group api.ProviderGroup) (string, error)
}

// Fetcher downloads every package of a dependency into the temp dir.
type Fetcher struct {
	resolver URLResolver
	engine   *transfer.Engine
	arch     sysinfo.Arch
	group    api.ProviderGroup
}

func NewFetcher(resolver URLResolver, engine *transfer.Engine, arch sysinfo.Arch, group api.ProviderGroup) *Fetcher {
	return &Fetcher{resolver: resolver, engine: engine, arch: arch, group: group}
}

// Download fetches the packages of k. Only tracked packages report to sink.
func (f *Fetcher) Download(ctx context.Context, k Kind, sink transfer.ProgressSink) error {
	logger := logging.WithDependency(log, k.Name())
	for _, p := range k.Providers(f.arch) {
		url, err := f.resolver.DownloadURL(ctx, p.ResourceID, f.group)
		if err != nil {
			return fmt.Errorf("resolve download url for %s: %w", p.PackageFile, err)
		}
		logger.Info("downloading package", "package", p.PackageFile, logging.KeyResourceID, p.ResourceID)

		if p.Tracked {
			err = f.engine.Download(ctx, url, p.PackageFile, sink)
		} else {
			err = f.engine.DownloadQuiet(ctx, url, p.PackageFile)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RunFunc runs an installer process.
type RunFunc func(ctx context.Context, cmd executor.Command) (*executor.Result, error)

// Setup installs downloaded packages.
type Setup struct {
	tempDir    string
	installDir string
	arch       sysinfo.Arch
	run        RunFunc
}

func NewSetup(tempDir, installDir string, arch sysinfo.Arch) *Setup {
	return &Setup{tempDir: tempDir, installDir: installDir, arch: arch, run: executor.Run}
}

// WithRunner replaces the process runner.
func (s *Setup) WithRunner(run RunFunc) *Setup {
	s.run = run
	return s
}

// Install performs every step for k. Each executable is unpacked into its
// own random directory, which is removed afterwards whatever the outcome.
func (s *Setup) Install(ctx context.Context, k Kind) error {
	logger := logging.WithDependency(log, k.Name())
	for _, step := range k.Steps(s.arch, s.installDir) {
		pkg := filepath.Join(s.tempDir, step.PackageFile)

		if step.ExtractTo != "" {
			if err := archive.Extract(pkg, step.ExtractTo); err != nil {
				return err
			}
			if err := fileutil.RemovePath(pkg); err != nil {
				return err
			}
			logger.Info("package unpacked", logging.KeyPath, step.ExtractTo)
			continue
		}

		if err := s.runStep(ctx, k, pkg, step); err != nil {
			return err
		}
	}
	return nil
}

func (s *Setup) runStep(ctx context.Context, k Kind, pkg string, step Step) (err error) {
	dir, err := archive.RandomDir(s.tempDir)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := fileutil.RemovePath(dir); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	if err := archive.Extract(pkg, dir); err != nil {
		return err
	}
	if err := fileutil.RemovePath(pkg); err != nil {
		return err
	}

	cmd := executor.Command{Path: filepath.Join(dir, step.Executable), Args: step.Args, Dir: dir}
	defer logging.Since(logging.WithDependency(log, k.Name()), "installer exited", logging.KeyPath, step.Executable)()
	if _, err := s.run(ctx, cmd); err != nil {
		return fmt.Errorf("%s installer reported an error: %w", k.Name(), err)
	}
	return nil
}
