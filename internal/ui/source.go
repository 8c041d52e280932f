// Package ui renders the interactive steps of the bootstrapper in the
// terminal: the dependency prompt and the download/install progress view.
package ui

import (
	"errors"
	"sync"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
	"github.com/infinite-dreams/igame-bootstrapper/internal/notice"
)

var log = logging.L("ui")

// ErrClosed is returned when the user closes a view before it finished.
var ErrClosed = errors.New("closed by user")

// ErrFailed is returned when the source reports a failure.
var ErrFailed = errors.New("source failed")

// State is what the progress view shows.
type State struct {
	DownloadDescription string
	Progress            int
	InstallDescription  string
	// Installing switches the install bar to an indeterminate spinner.
	Installing bool
	Failed     bool
}

// Source feeds a progress view. Notices fires after every change and State
// is re-read on wakeup.
type Source interface {
	Notices() <-chan struct{}
	Done() <-chan struct{}
	State() State
}

// Tracker is a Source driven by explicit calls. It is used for the
// self-update, which runs a single sequential job.
type Tracker struct {
	mu    sync.Mutex
	state State

	notice   *notice.Notice
	done     chan struct{}
	doneOnce sync.Once
}

func NewTracker(download, install string) *Tracker {
	return &Tracker{
		state:  State{DownloadDescription: download, InstallDescription: install},
		notice: notice.New(),
		done:   make(chan struct{}),
	}
}

func (t *Tracker) Notices() <-chan struct{} { return t.notice.C() }

func (t *Tracker) Done() <-chan struct{} { return t.done }

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetProgress stores a download percentage. It has the transfer.ProgressSink
// signature.
func (t *Tracker) SetProgress(percent int) {
	t.update(func(s *State) { s.Progress = percent })
}

func (t *Tracker) SetDownload(desc string) {
	t.update(func(s *State) { s.DownloadDescription = desc })
}

func (t *Tracker) SetInstall(desc string, busy bool) {
	t.update(func(s *State) {
		s.InstallDescription = desc
		s.Installing = busy
	})
}

// Fail marks the job as failed.
func (t *Tracker) Fail() {
	t.update(func(s *State) { s.Failed = true })
}

// Finish closes Done. Further calls have no effect.
func (t *Tracker) Finish() {
	t.doneOnce.Do(func() {
		close(t.done)
		t.notice.Notify()
	})
}

func (t *Tracker) update(fn func(*State)) {
	t.mu.Lock()
	fn(&t.state)
	t.mu.Unlock()
	t.notice.Notify()
}
