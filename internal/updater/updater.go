package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/infinite-dreams/igame-bootstrapper/internal/archive"
	"github.com/infinite-dreams/igame-bootstrapper/internal/fileutil"
	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/resource"
	"github.com/infinite-dreams/igame-bootstrapper/internal/transfer"
	"github.com/infinite-dreams/igame-bootstrapper/pkg/api"
)

var log = logging.L("updater")

// BootstrapperResourceID is the metadata resource of the bootstrapper itself.
const BootstrapperResourceID int32 = 8

const (
	PackageName    = "IGameBootstrapper.tzst"
	ExecutableName = "IGameBootstrapper.exe"
)

// Stage names a step of Apply.
type Stage string

const (
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StageSwap     Stage = "swap"
	StageStamp    Stage = "stamp"
	StageRelaunch Stage = "relaunch"
)

// Error is a self-update failure at a given stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("self-update failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds updater configuration
type Config struct {
	CurrentVersion string
	// ExePath is the running executable that gets replaced.
	ExePath        string
	TempDir        string
	ResourceID     int32
	PackageName    string
	ExecutableName string
	ProviderGroup  api.ProviderGroup
}

// MetadataClient is the part of the metadata service the updater needs.
type MetadataClient interface {
	Version(ctx context.Context, resourceID int32) (string, error)
	DownloadURL(ctx context.Context, resourceID int32, group api.ProviderGroup) (string, error)
}

// Launcher starts path from dir with args and returns without waiting.
type Launcher func(path, dir, args string) error

// Package is an available bootstrapper build.
type Package struct {
	Version string
	URL     string
}

// Updater replaces the running bootstrapper with a newer build.
type Updater struct {
	config *Config
	meta   MetadataClient
	engine *transfer.Engine
	launch Launcher

	// OnStage, when set, is called as Apply enters each stage.
	OnStage func(Stage)
}

// New creates a new Updater
func New(cfg *Config, meta MetadataClient, engine *transfer.Engine) *Updater {
	if cfg.ResourceID == 0 {
		cfg.ResourceID = BootstrapperResourceID
	}
	if cfg.PackageName == "" {
		cfg.PackageName = PackageName
	}
	if cfg.ExecutableName == "" {
		cfg.ExecutableName = ExecutableName
	}
	if cfg.TempDir == "" {
		cfg.TempDir = engine.TempDir()
	}
	return &Updater{config: cfg, meta: meta, engine: engine, launch: relaunch}
}

// WithLauncher replaces the relaunch function.
func (u *Updater) WithLauncher(l Launcher) *Updater {
	u.launch = l
	return u
}

// BackupPath returns where exe is moved during a swap: <stem>_old<ext>
// beside the original.
func BackupPath(exe string) string {
	ext := filepath.Ext(exe)
	return strings.TrimSuffix(exe, ext) + "_old" + ext
}

func (u *Updater) BackupPath() string {
	return BackupPath(u.config.ExePath)
}

// CleanupBackup removes a backup left by an earlier update. A missing backup
// is not an error.
func (u *Updater) CleanupBackup() error {
	backup := u.BackupPath()
	if !fileutil.Exists(backup) {
		return nil
	}
	log.Info("removing stale backup", logging.KeyPath, backup)
	if err := fileutil.RemovePath(backup); err != nil {
		return fmt.Errorf("remove old version file: %w", err)
	}
	return nil
}

// IsNewer reports whether remote is strictly greater than current.
func IsNewer(remote, current string) (bool, error) {
	rv, err := goversion.NewVersion(remote)
	if err != nil {
		return false, fmt.Errorf("parse remote version %q: %w", remote, err)
	}
	cv, err := goversion.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("parse current version %q: %w", current, err)
	}
	return rv.GreaterThan(cv), nil
}

// Check asks the metadata service for the latest build. The package is
// returned only when it is newer than the running one.
func (u *Updater) Check(ctx context.Context) (*Package, bool, error) {
	remote, err := u.meta.Version(ctx, u.config.ResourceID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch bootstrapper version: %w", err)
	}

	newer, err := IsNewer(remote, u.config.CurrentVersion)
	if err != nil {
		return nil, false, err
	}
	if !newer {
		log.Info("bootstrapper is up to date", "version", u.config.CurrentVersion, "remote", remote)
		return nil, false, nil
	}

	url, err := u.meta.DownloadURL(ctx, u.config.ResourceID, u.config.ProviderGroup)
	if err != nil {
		return nil, false, fmt.Errorf("fetch bootstrapper download url: %w", err)
	}
	log.Info("bootstrapper update available", "version", u.config.CurrentVersion, "remote", remote)
	return &Package{Version: remote, URL: url}, true, nil
}

// Apply downloads pkg, swaps it in for the running executable, stamps id
// into it and relaunches it. On success the caller must exit.
func (u *Updater) Apply(ctx context.Context, pkg *Package, id resource.ID, sink transfer.ProgressSink) error {
	log.Info("starting update", "targetVersion", pkg.Version)

	u.enter(StageDownload)
	if err := u.engine.Download(ctx, pkg.URL, u.config.PackageName, sink); err != nil {
		return &Error{Stage: StageDownload, Err: err}
	}

	u.enter(StageExtract)
	dir, err := u.extract()
	if err != nil {
		return &Error{Stage: StageExtract, Err: err}
	}

	u.enter(StageSwap)
	swapErr := u.swap(filepath.Join(dir, u.config.ExecutableName))
	if err := fileutil.RemovePaths(dir); err != nil && swapErr == nil {
		swapErr = err
	}
	if swapErr != nil {
		return &Error{Stage: StageSwap, Err: swapErr}
	}

	u.enter(StageStamp)
	if err := resource.Stamp(u.config.ExePath, id); err != nil {
		return &Error{Stage: StageStamp, Err: err}
	}

	u.enter(StageRelaunch)
	if err := u.launch(u.config.ExePath, filepath.Dir(u.config.ExePath), ""); err != nil {
		return &Error{Stage: StageRelaunch, Err: err}
	}

	log.Info("update installed, relaunching", "version", pkg.Version)
	return nil
}

func (u *Updater) enter(s Stage) {
	log.Debug("update stage", logging.KeyStage, string(s))
	if u.OnStage != nil {
		u.OnStage(s)
	}
}

// extract unpacks the downloaded package into a fresh directory and removes
// the package.
func (u *Updater) extract() (string, error) {
	pkgPath := u.engine.Path(u.config.PackageName)
	dir, err := archive.RandomDir(u.config.TempDir)
	if err != nil {
		return "", err
	}

	err = archive.Extract(pkgPath, dir)
	if err == nil {
		err = fileutil.RemovePath(pkgPath)
	}
	if err == nil && !fileutil.Exists(filepath.Join(dir, u.config.ExecutableName)) {
		err = fmt.Errorf("package does not contain %s", u.config.ExecutableName)
	}
	if err != nil {
		if rmErr := fileutil.RemovePaths(dir); rmErr != nil {
			log.Warn("failed to remove extraction dir", logging.KeyPath, dir, logging.KeyError, rmErr)
		}
		return "", err
	}
	return dir, nil
}

// swap moves the running executable to its backup path and copies newExe in
// its place.
func (u *Updater) swap(newExe string) error {
	exe := u.config.ExePath
	backup := u.BackupPath()

	if err := fileutil.RemovePath(backup); err != nil {
		return err
	}
	if err := os.Rename(exe, backup); err != nil {
		return fmt.Errorf("move %s to %s: %w", exe, backup, err)
	}

	if err := fileutil.CopyFile(newExe, exe); err != nil {
		if rbErr := u.Rollback(); rbErr != nil {
			log.Error("rollback also failed after copy error", "copyError", err, "rollbackError", rbErr)
			return fmt.Errorf("copy %s to %s: %w (rollback also failed: %v)", newExe, exe, err, rbErr)
		}
		return fmt.Errorf("copy %s to %s (rolled back): %w", newExe, exe, err)
	}
	return nil
}

// Rollback moves the backup back over the executable path.
func (u *Updater) Rollback() error {
	log.Info("rolling back to previous version")

	backup := u.BackupPath()
	if !fileutil.Exists(backup) {
		return fmt.Errorf("no backup found at %s", backup)
	}
	if err := fileutil.RemovePath(u.config.ExePath); err != nil {
		return err
	}
	if err := os.Rename(backup, u.config.ExePath); err != nil {
		return fmt.Errorf("move %s to %s: %w", backup, u.config.ExePath, err)
	}
	return nil
}

// IsUpdateError reports whether err is a self-update failure.
func IsUpdateError(err error) bool {
	var ue *Error
	return errors.As(err, &ue)
}
