// Package logsink prints digest, detail and slow-call lines for dispatched
// call records.
package logsink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aponysus/callscope/controlplane"
	"github.com/aponysus/callscope/observe"
)

// Line carries what a sink needs to print one record.
type Line struct {
	Record      *observe.Record
	Application string
	Environment string
	// MaxTextLength bounds serialized payloads and error text. <= 0 uses the
	// sink's own limit.
	MaxTextLength int
	// Threshold is set for slow-call lines.
	Threshold time.Duration
}

// Sink receives the lines the dispatcher decided to print.
type Sink interface {
	// Digest prints a one-line summary.
	Digest(ctx context.Context, line Line) error
	// Detail prints the summary plus serialized input and output.
	Detail(ctx context.Context, line Line) error
	// Slow prints a slow-call warning.
	Slow(ctx context.Context, line Line) error
}

// Noop discards every line.
type Noop struct{}

func (Noop) Digest(context.Context, Line) error { return nil }
func (Noop) Detail(context.Context, Line) error { return nil }
func (Noop) Slow(context.Context, Line) error   { return nil }

// Multi fans lines out to several sinks.
type Multi struct {
	Sinks []Sink
}

func (m Multi) Digest(ctx context.Context, line Line) error {
	return m.each(func(s Sink) error { return s.Digest(ctx, line) })
}

func (m Multi) Detail(ctx context.Context, line Line) error {
	return m.each(func(s Sink) error { return s.Detail(ctx, line) })
}

func (m Multi) Slow(ctx context.Context, line Line) error {
	return m.each(func(s Sink) error { return s.Slow(ctx, line) })
}

func (m Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m.Sinks {
		if s == nil {
			continue
		}
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to
// slog.Level. Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
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

// NewLogger builds a logger writing to w. format "json" selects the JSON
// handler, anything else the text handler.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// DebugLogger returns the logger for internal engine diagnostics: base at
// debug level outside production, and a discarding logger in production.
func DebugLogger(base *slog.Logger, environment string) *slog.Logger {
	if base == nil || controlplane.IsProduction(environment) {
		return slog.New(slog.DiscardHandler)
	}
	return base.With(slog.String("component", "callscope"))
}

// GatedDebugLogger is DebugLogger for collaborators that outlive a single
// snapshot: environment is consulted on every record, so a reload into
// production silences it without rebuilding the logger.
func GatedDebugLogger(base *slog.Logger, environment func() string) *slog.Logger {
	if base == nil || environment == nil {
		return slog.New(slog.DiscardHandler)
	}
	inner := base.With(slog.String("component", "callscope")).Handler()
	return slog.New(gatedHandler{inner: inner, environment: environment})
}

type gatedHandler struct {
	inner       slog.Handler
	environment func() string
}

func (h gatedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if controlplane.IsProduction(h.environment()) {
		return false
	}
	return h.inner.Enabled(ctx, level)
}

func (h gatedHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h gatedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return gatedHandler{inner: h.inner.WithAttrs(attrs), environment: h.environment}
}

func (h gatedHandler) WithGroup(name string) slog.Handler {
	return gatedHandler{inner: h.inner.WithGroup(name), environment: h.environment}
}
