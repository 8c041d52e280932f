// Package executor runs installer processes and launches elevated programs.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("executor")

const (
	// MaxOutputSize is the maximum size of stdout/stderr to capture
	MaxOutputSize = 1024 * 1024 // 1MB
)

// Command describes a program to run.
type Command struct {
	Path string
	Args []string
	Dir  string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError is returned when a process ran but exited non-zero.
type ExitError struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Path, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Run starts cmd, waits for it and captures its output. Installers can take
// arbitrarily long, so no timeout is applied beyond ctx. A process that
// could not be started returns a nil Result.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	start := time.Now()

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	c.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}
	setProcessGroup(c)
	c.Cancel = func() error { return killProcessGroup(c) }

	log.Info("starting process", "command", cmd.String())

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	err := c.Wait()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Warn("process exited with error", "command", cmd.Path, "exitCode", result.ExitCode, "duration", result.Duration)
			return result, &ExitError{Path: cmd.Path, ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
		result.ExitCode = -1
		return result, fmt.Errorf("wait for %s: %w", cmd.Path, err)
	}

	log.Info("process completed", "command", cmd.Path, "duration", result.Duration)
	return result, nil
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	if w.written >= w.limit {
		// Discard additional data but don't error
		return len(p), nil
	}

	remaining := w.limit - w.written
	if len(p) > remaining {
		p = p[:remaining]
	}

	n, err = w.buf.Write(p)
	w.written += n
	return len(p), err // Return original length to avoid short write errors
}
