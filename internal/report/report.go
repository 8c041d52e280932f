// Package report is the single sink for user-facing failures: it can show a
// blocking dialog, append to the error log, upload encrypted telemetry and
// terminate the process.
package report

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("report")

const (
	// ErrorLogName is appended to in the temp directory.
	ErrorLogName = "IGameBootstrapError.log"
	// TimestampLayout is the layout of error log timestamps.
	TimestampLayout = "2006-01-02 15:04:05"

	AppName = "IGameBootstrapper"
)

// Zone is UTC+8, the zone user-facing times are rendered in.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// Class groups failures for logging.
type Class int

const (
	StartupFatal Class = iota + 1
	NetworkFailure
	FilesystemFailure
	SelfUpdateFailure
	InstallFailure
	ServiceMaintenance
)

func (c Class) String() string {
	switch c {
	case StartupFatal:
		return "startup"
	case NetworkFailure:
		return "network"
	case FilesystemFailure:
		return "filesystem"
	case SelfUpdateFailure:
		return "self-update"
	case InstallFailure:
		return "install"
	case ServiceMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Options selects which of the four effects a report has.
type Options struct {
	Show   bool
	Log    bool
	Upload bool
	Exit   bool
}

var (
	FatalOptions    = Options{Show: true, Log: true, Upload: true, Exit: true}
	NonFatalOptions = Options{Show: true, Log: true, Upload: true}
	// LocalFatalOptions is for conditions the service already knows about
	// or that say nothing about the service (maintenance, unsupported OS).
	LocalFatalOptions = Options{Show: true, Log: true, Exit: true}
)

// Presenter shows a message to the user and returns once it is dismissed.
type Presenter interface {
	ShowError(msg string)
}

// Config configures a Reporter. Zero values pick defaults.
type Config struct {
	Presenter      Presenter
	TempDir        string
	APIURL         string
	AppVersion     string
	UploadTimeout  time.Duration
	HTTPClient     *http.Client
	Exit           func(code int)
	Now            func() time.Time
	DisableUploads bool
}

type Reporter struct {
	presenter Presenter
	logPath   string
	telemetry *telemetry
	exit      func(int)
	now       func() time.Time

	// mu serialises reports so concurrent failures present one at a time
	// and the first fatal one wins.
	mu sync.Mutex
}

func New(cfg Config) *Reporter {
	if cfg.Presenter == nil {
		cfg.Presenter = DefaultPresenter()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 10 * time.Second
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Reporter{
		presenter: cfg.Presenter,
		logPath:   filepath.Join(cfg.TempDir, ErrorLogName),
		exit:      cfg.Exit,
		now:       cfg.Now,
	}
	if !cfg.DisableUploads && cfg.APIURL != "" {
		client := cfg.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: cfg.UploadTimeout}
		}
		r.telemetry = &telemetry{
			endpoint:   cfg.APIURL + "/error/collect",
			appVersion: cfg.AppVersion,
			client:     client,
			timeout:    cfg.UploadTimeout,
		}
	}
	return r
}

// LogPath is the error log file the reporter appends to.
func (r *Reporter) LogPath() string {
	return r.logPath
}

// Report applies the selected effects in order: show, log, upload, exit.
// Failures of the log and upload effects are only logged.
func (r *Reporter) Report(msg string, opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.Show {
		r.presenter.ShowError(msg)
	}
	if opts.Log {
		if err := r.appendLog(msg); err != nil {
			log.Warn("failed to write error log", logging.KeyPath, r.logPath, logging.KeyError, err)
		}
	}
	if opts.Upload && r.telemetry != nil {
		if err := r.telemetry.send(msg); err != nil {
			log.Debug("telemetry upload failed", logging.KeyError, err)
		}
	}
	if opts.Exit {
		r.exit(1)
	}
}

// Fatal shows, logs and uploads msg, then exits with status 1.
func (r *Reporter) Fatal(msg string) {
	r.Report(msg, FatalOptions)
}

// NonFatal shows, logs and uploads msg and returns.
func (r *Reporter) NonFatal(msg string) {
	r.Report(msg, NonFatalOptions)
}

// LocalFatal shows and logs msg, then exits with status 1 without uploading.
func (r *Reporter) LocalFatal(msg string) {
	r.Report(msg, LocalFatalOptions)
}

// Fail reports err under a class with a short description of what failed.
func (r *Reporter) Fail(class Class, what string, err error, opts Options) {
	log.Error(what, "class", class.String(), logging.KeyError, err)
	r.Report(fmt.Sprintf("%s\n%v", what, err), opts)
}

// Maintenance reports that the service is down until the given UTC time.
func (r *Reporter) Maintenance(until time.Time) {
	msg := "the server is under maintenance"
	if !until.IsZero() {
		msg += "\nexpected to be back at " + until.In(Zone).Format(TimestampLayout) + " (UTC+8)"
	}
	log.Warn("service maintenance", "until", until)
	r.LocalFatal(msg)
}

func (r *Reporter) appendLog(msg string) error {
	f, err := os.OpenFile(r.logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	stamp := r.now().In(Zone).Format(TimestampLayout)
	if _, err := fmt.Fprintf(f, "%s\n%s\n", stamp, msg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
