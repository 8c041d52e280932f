package transfer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func recordSink() (*[]int, ProgressSink) {
	var got []int
	return &got, func(p int) { got = append(got, p) }
}

func assertMonotonic(t *testing.T, values []int) {
	t.Helper()
	prev := 0
	for i, v := range values {
		if v < 0 || v > 100 {
			t.Fatalf("progress[%d] = %d out of range", i, v)
		}
		if v <= prev {
			t.Fatalf("progress[%d] = %d not greater than previous %d", i, v, prev)
		}
		prev = v
	}
}

func TestDownloadKnownLength(t *testing.T) {
	payload := bytes.Repeat([]byte("igame"), 40000) // 200000 bytes
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	e := New(Options{TempDir: dir})
	values, sink := recordSink()

	if err := e.Download(context.Background(), server.URL, "pkg.tzst", sink); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pkg.tzst"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("downloaded %d bytes, want %d", len(data), len(payload))
	}

	assertMonotonic(t, *values)
	if n := len(*values); n == 0 || (*values)[n-1] != 100 {
		t.Fatalf("final progress should be 100, got %v", *values)
	}
}

func TestDownloadUnknownLengthUsesFallback(t *testing.T) {
	payload := bytes.Repeat([]byte{1}, 2*1024*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flushing before writing forces chunked encoding with no length.
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write(payload)
	}))
	defer server.Close()

	e := New(Options{TempDir: t.TempDir()})
	values, sink := recordSink()
	if err := e.Download(context.Background(), server.URL, "x", sink); err != nil {
		t.Fatalf("Download: %v", err)
	}

	assertMonotonic(t, *values)
	// 2 MiB of a 50 MiB fallback is 4%.
	if n := len(*values); n == 0 || (*values)[n-1] != 4 {
		t.Fatalf("final progress = %v, want last value 4", *values)
	}
}

func TestDownloadTruncatesExistingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("short"))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	os.WriteFile(path, bytes.Repeat([]byte("stale"), 100), 0644)

	if err := New(Options{TempDir: dir}).DownloadQuiet(context.Background(), server.URL, "f"); err != nil {
		t.Fatalf("DownloadQuiet: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "short" {
		t.Fatalf("file = %q, want truncated content", data)
	}
}

func TestDownloadNon2xxIsRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := New(Options{TempDir: t.TempDir()}).DownloadQuiet(context.Background(), server.URL, "f")
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if te.Kind != KindRequest {
		t.Fatalf("kind = %v, want request", te.Kind)
	}
}

func TestDownloadConnectionRefusedIsRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := New(Options{TempDir: t.TempDir()}).DownloadQuiet(context.Background(), url, "f")
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindRequest {
		t.Fatalf("expected request error, got %v", err)
	}
}

func TestDownloadUnwritableDestinationIsIOError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	err := New(Options{TempDir: missing}).DownloadQuiet(context.Background(), server.URL, "f")
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindIO {
		t.Fatalf("expected io error, got %v", err)
	}
	if te.Path != filepath.Join(missing, "f") {
		t.Fatalf("error path = %q", te.Path)
	}
}

func TestDownloadTruncatedBodyIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write([]byte("only a little"))
	}))
	defer server.Close()

	err := New(Options{TempDir: t.TempDir()}).DownloadQuiet(context.Background(), server.URL, "f")
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		written, total int64
		want           int
	}{
		{0, 100, 0},
		{1, 100, 1},
		{99, 100, 99},
		{100, 100, 100},
		{250, 100, 100},
		{1, 3, 33},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.written, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.written, tt.total, got, tt.want)
		}
	}
}
