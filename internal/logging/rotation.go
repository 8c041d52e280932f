package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DebugLogName is the file name of the optional diagnostic log kept in the
// temp directory next to the error log.
const DebugLogName = "IGameBootstrapDebug.log"

const (
	defaultMaxBytes = 2 << 20
	defaultKeep     = 2
)

// RotatingWriter appends to a log file and shifts it to <name>.1 ... <name>.N
// once it would grow past MaxBytes. Safe for concurrent use.
type RotatingWriter struct {
	path     string
	maxBytes int64
	keep     int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// RotateOptions bounds a RotatingWriter. Zero values pick 2 MiB and two
// backups.
type RotateOptions struct {
	MaxBytes int64
	Keep     int
}

func NewRotatingWriter(path string, opts RotateOptions) (*RotatingWriter, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Keep <= 0 {
		opts.Keep = defaultKeep
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{path: path, maxBytes: opts.MaxBytes, keep: opts.Keep}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// OpenDebugLog opens the diagnostic log inside dir. When tee is not nil
// records are written to it as well.
func OpenDebugLog(dir string, tee io.Writer) (io.Writer, io.Closer, error) {
	rw, err := NewRotatingWriter(filepath.Join(dir, DebugLogName), RotateOptions{})
	if err != nil {
		return nil, nil, err
	}
	if tee == nil {
		return rw, rw, nil
	}
	return io.MultiWriter(tee, rw), rw, nil
}

func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.f == nil {
		return 0, os.ErrClosed
	}
	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", rw.path, err)
		}
	}
	n, err := rw.f.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.f == nil {
		return nil
	}
	err := rw.f.Close()
	rw.f = nil
	return err
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.f, rw.size = f, info.Size()
	return nil
}

func (rw *RotatingWriter) backup(i int) string {
	return fmt.Sprintf("%s.%d", rw.path, i)
}

// rotate drops the oldest backup and shifts the rest up by one.
func (rw *RotatingWriter) rotate() error {
	if err := rw.f.Close(); err != nil {
		return err
	}
	rw.f = nil

	if err := os.Remove(rw.backup(rw.keep)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for i := rw.keep - 1; i >= 1; i-- {
		if err := os.Rename(rw.backup(i), rw.backup(i+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(rw.path, rw.backup(1)); err != nil {
		return err
	}
	return rw.open()
}
