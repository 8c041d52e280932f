// Package transfer streams remote files into the temp directory and reports
// integer percent progress while doing so.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("transfer")

const (
	// ChunkSize is the read size used while streaming a body to disk.
	ChunkSize = 8 * 1024
	// FallbackSize is the total assumed when the server sends no usable
	// Content-Length.
	FallbackSize = 50 * 1024 * 1024

	DefaultConnectTimeout = 10 * time.Second
)

// ProgressSink receives percent values in [0,100]. It is called from the
// downloading goroutine and must not block for long.
type ProgressSink func(percent int)

// Kind classifies a transfer failure.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindTransport
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	URL  string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRequest:
		return fmt.Sprintf("send request %s: %v", e.URL, e.Err)
	case KindTransport:
		return fmt.Sprintf("read download body %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("write download file %s: %v", e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	TempDir        string
	ConnectTimeout time.Duration
	UserAgent      string
	Client         *http.Client
}

type Engine struct {
	client    *http.Client
	tempDir   string
	userAgent string
}

// New creates an Engine. Bodies can be large, so the client only bounds
// connection setup and leaves the overall request untimed.
func New(opts Options) *Engine {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	client := opts.Client
	if client == nil {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   opts.ConnectTimeout,
				ResponseHeaderTimeout: 3 * opts.ConnectTimeout,
				MaxIdleConnsPerHost:   4,
			},
		}
	}
	return &Engine{client: client, tempDir: opts.TempDir, userAgent: opts.UserAgent}
}

// TempDir is the directory downloads are written to.
func (e *Engine) TempDir() string {
	return e.tempDir
}

// Path returns where a download named destName is stored.
func (e *Engine) Path(destName string) string {
	return filepath.Join(e.tempDir, destName)
}

// Download streams url into <tempDir>/<destName>, truncating any existing
// file. sink may be nil. A percent is emitted only when it changes.
func (e *Engine) Download(ctx context.Context, url, destName string, sink ProgressSink) error {
	path := e.Path(destName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindRequest, URL: url, Path: path, Err: err}
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &Error{Kind: KindRequest, URL: url, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Kind: KindRequest, URL: url, Path: path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &Error{Kind: KindIO, URL: url, Path: path, Err: err}
	}

	total := resp.ContentLength
	if total <= 0 {
		total = FallbackSize
	}

	log.Debug("download started", logging.KeyURL, url, logging.KeyPath, path, "size", resp.ContentLength)

	written, copyErr := copyWithProgress(file, resp.Body, total, sink)
	closeErr := file.Close()
	if copyErr != nil {
		return &Error{Kind: copyErr.kind, URL: url, Path: path, Err: copyErr.err}
	}
	if closeErr != nil {
		return &Error{Kind: KindIO, URL: url, Path: path, Err: closeErr}
	}

	log.Debug("download finished", logging.KeyURL, url, logging.KeyPath, path, "bytes", written)
	return nil
}

// DownloadQuiet is Download without progress notifications.
func (e *Engine) DownloadQuiet(ctx context.Context, url, destName string) error {
	return e.Download(ctx, url, destName, nil)
}

type copyError struct {
	kind Kind
	err  error
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, sink ProgressSink) (int64, *copyError) {
	buf := make([]byte, ChunkSize)
	var written int64
	last := 0

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, &copyError{kind: KindIO, err: werr}
			}
			written += int64(n)

			if sink != nil {
				if pct := Percent(written, total); pct != last {
					last = pct
					sink(pct)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, &copyError{kind: KindTransport, err: err}
		}
	}
}

// Percent is floor(written/total*100) clamped to [0,100].
func Percent(written, total int64) int {
	if total <= 0 || written <= 0 {
		return 0
	}
	pct := written * 100 / total
	if pct > 100 {
		return 100
	}
	return int(pct)
}
