// Package metrics records call counters and durations.
//
// Recorders are addressed by a metric name and an ordered tag list. The
// dispatcher emits three families per log point: "<prefix>_<log_point>",
// "<prefix>_<service>_<action>_<log_point>" when user tags are present, and
// "<prefix>_<log_point>_slow". Prometheus and OpenTelemetry backends are
// provided, and Limiter caps the number of distinct identifiers.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aponysus/callscope/observe"
)

// Kind selects which instruments a Measurement updates.
type Kind uint8

const (
	// KindCounter increments a call counter by one.
	KindCounter Kind = 1 << iota
	// KindTimer observes Cost on a duration histogram.
	KindTimer

	KindBoth = KindCounter | KindTimer
)

func (k Kind) Counter() bool { return k&KindCounter != 0 }
func (k Kind) Timer() bool   { return k&KindTimer != 0 }

// Measurement is one metric emission.
type Measurement struct {
	Name string
	Kind Kind
	Tags []observe.Tag
	Cost time.Duration
}

// Recorder emits measurements to a backend.
//
// Implementations must be safe for concurrent use. A returned error is
// reported to the internal debug log only.
type Recorder interface {
	Record(ctx context.Context, m Measurement) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, m Measurement) error

func (f RecorderFunc) Record(ctx context.Context, m Measurement) error {
	if f == nil {
		return nil
	}
	return f(ctx, m)
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) Record(context.Context, Measurement) error { return nil }

// Multi fans a measurement out to several recorders. Every recorder is called
// even when an earlier one fails.
type Multi struct {
	Recorders []Recorder
}

func (m Multi) Record(ctx context.Context, meas Measurement) error {
	var errs []error
	for _, r := range m.Recorders {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, meas); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var costBounds = []struct {
	limit time.Duration
	label string
}{
	{10 * time.Millisecond, "10ms"},
	{50 * time.Millisecond, "50ms"},
	{100 * time.Millisecond, "100ms"},
	{200 * time.Millisecond, "200ms"},
	{500 * time.Millisecond, "500ms"},
	{time.Second, "1s"},
	{3 * time.Second, "3s"},
	{5 * time.Second, "5s"},
	{10 * time.Second, "10s"},
}

// CostBucket maps a duration to the smallest bucket bound that contains it,
// or "+Inf". The cost tag uses buckets so that it does not explode series
// cardinality.
func CostBucket(d time.Duration) string {
	for _, b := range costBounds {
		if d <= b.limit {
			return b.label
		}
	}
	return "+Inf"
}

// Name joins non-blank parts with "_" and sanitizes the result into a valid
// metric name.
func Name(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return SanitizeName(strings.Join(kept, "_"))
}

// SanitizeName replaces characters outside [a-zA-Z0-9_:] with '_' and
// prefixes names that start with a digit.
func SanitizeName(s string) string {
	return sanitize(s, true)
}

// SanitizeLabel is SanitizeName without ':' and without the reserved "__"
// prefix.
func SanitizeLabel(s string) string {
	out := sanitize(s, false)
	if strings.HasPrefix(out, "__") {
		out = "tag" + out
	}
	return out
}

func sanitize(s string, colon bool) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
		case r == ':' && colon:
		default:
			r = '_'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// uniqueTags drops blank keys and keeps the last value of duplicated keys at
// the position of their first occurrence.
func uniqueTags(tags []observe.Tag) []observe.Tag {
	out := make([]observe.Tag, 0, len(tags))
	index := make(map[string]int, len(tags))
	for _, t := range tags {
		if t.Key == "" {
			continue
		}
		if i, ok := index[t.Key]; ok {
			out[i].Value = t.Value
			continue
		}
		index[t.Key] = len(out)
		out = append(out, t)
	}
	return out
}
