// Package logging wires log/slog for the bootstrapper. Packages create their
// logger at init time with L; Init later points all of them at the
// configured sink.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyResourceID = "resourceId"
	KeyDependency = "dependency"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyStage      = "stage"
	KeyError      = "error"
)

// timeLayout matches the timestamps of the error log.
const timeLayout = "2006-01-02 15:04:05.000"

var (
	level = new(slog.LevelVar)
	sink  atomic.Pointer[sinkHandler]
	root  = slog.New(&lateHandler{})
)

// sinkHandler wraps the configured handler so it can sit in an atomic
// pointer. gen increases with every Init.
type sinkHandler struct {
	h   slog.Handler
	gen uint64
}

func init() {
	level.Set(slog.LevelWarn)
	install(os.Stderr, "text")
	slog.SetDefault(root)
}

// op is a WithAttrs or WithGroup call recorded on a lateHandler.
type op struct {
	attrs []slog.Attr
	group string
}

// lateHandler resolves the current sink on every record, replaying the
// attrs and groups added by With calls in their original order. The
// resolved handler is cached per sink generation.
type lateHandler struct {
	ops   []op
	cache atomic.Pointer[sinkHandler]
}

func (h *lateHandler) resolve() slog.Handler {
	cur := sink.Load()
	if c := h.cache.Load(); c != nil && c.gen == cur.gen {
		return c.h
	}
	out := cur.h
	for _, o := range h.ops {
		if o.group != "" {
			out = out.WithGroup(o.group)
		} else {
			out = out.WithAttrs(o.attrs)
		}
	}
	h.cache.Store(&sinkHandler{h: out, gen: cur.gen})
	return out
}

func (h *lateHandler) with(o op) *lateHandler {
	ops := make([]op, 0, len(h.ops)+1)
	ops = append(ops, h.ops...)
	return &lateHandler{ops: append(ops, o)}
}

func (h *lateHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

func (h *lateHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(op{attrs: attrs})
}

func (h *lateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(op{group: name})
}

func install(output io.Writer, format string) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	var gen uint64
	if prev := sink.Load(); prev != nil {
		gen = prev.gen + 1
	}
	sink.Store(&sinkHandler{h: h, gen: gen})
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(slog.TimeKey, a.Value.Time().Format(timeLayout))
	}
	return a
}

// Init points every logger at output. format is "json" or "text" (default);
// level is "debug", "info" (default), "warn" or "error". A nil output logs
// to stderr.
func Init(format, lvl string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	level.Set(parseLevel(lvl))
	install(output, format)
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return root.With(slog.String(KeyComponent, component))
}

// WithDependency returns a child logger tagged with a dependency name.
func WithDependency(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String(KeyDependency, name))
}

// Since logs how long an operation took when the returned func runs.
func Since(logger *slog.Logger, msg string, args ...any) func() {
	start := time.Now()
	return func() {
		logger.Debug(msg, append(args, "elapsed", time.Since(start).Round(time.Millisecond).String())...)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
