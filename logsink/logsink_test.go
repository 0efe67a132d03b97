package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/callscope/observe"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func newTestSink(buf *bytes.Buffer, opts ...SlogOption) *SlogSink {
	return NewSlogSink(NewLogger(buf, "json", slog.LevelDebug), opts...)
}

func sampleRecord() *observe.Record {
	return &observe.Record{
		LogPoint:   observe.LogPointHTTPClient,
		Service:    "orders",
		Action:     "GetOrder",
		Success:    true,
		MsgCode:    "0",
		MsgMessage: "SUCCESS",
		Cost:       15 * time.Millisecond,
		Input:      []any{map[string]any{"id": "42"}},
		Output:     map[string]any{"code": 0},
		Tags:       []observe.Tag{{Key: "tenant", Value: "t1"}},
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDigestLine(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf)
	ctx := observe.WithTraceID(context.Background(), "trace-1")

	require.NoError(t, sink.Digest(ctx, Line{Record: sampleRecord(), Application: "shop", Environment: "dev"}))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, "digest", l["msg"])
	assert.Equal(t, "INFO", l["level"])
	assert.Equal(t, "orders", l["service"])
	assert.Equal(t, "trace-1", l["trace_id"])
	assert.Equal(t, "shop", l["application"])
	assert.Equal(t, "http_client", l["log_point"])
	assert.Equal(t, "0", l["code"])
	assert.Equal(t, true, l["success"])
	assert.Equal(t, map[string]any{"tenant": "t1"}, l["tags"])
	_, hasInput := l["input"]
	assert.False(t, hasInput)
}

func TestDetailLineTruncatesPayloads(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf, WithMaxTextLength(8))
	rec := sampleRecord()
	rec.Success = false
	rec.Output = strings.Repeat("x", 50)

	require.NoError(t, sink.Detail(context.Background(), Line{Record: rec}))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "detail", lines[0]["msg"])
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "xxxxxxxx...", lines[0]["output"])
	assert.Equal(t, `[{"id":"...`, lines[0]["input"])
}

func TestDetailLineUsesLineLimit(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf, WithMaxTextLength(4))
	rec := sampleRecord()
	rec.Output = "abcdefgh"

	require.NoError(t, sink.Detail(context.Background(), Line{Record: rec, MaxTextLength: 6}))
	assert.Equal(t, "abcdef...", decodeLines(t, &buf)[0]["output"])
}

func TestErrorRecordsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf)
	rec := sampleRecord()
	rec.Success = false
	rec.Err = errors.New("connection refused")

	require.NoError(t, sink.Digest(context.Background(), Line{Record: rec}))
	l := decodeLines(t, &buf)[0]
	assert.Equal(t, "ERROR", l["level"])
	assert.Equal(t, "connection refused", l["error"])
}

func TestSlowLine(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf)

	require.NoError(t, sink.Slow(context.Background(), Line{Record: sampleRecord(), Threshold: 10 * time.Millisecond}))
	l := decodeLines(t, &buf)[0]
	assert.Equal(t, "slow call", l["msg"])
	assert.Equal(t, "WARN", l["level"])
	assert.EqualValues(t, 10*time.Millisecond, l["threshold"])
}

func TestLoggerCachePerService(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf, WithLoggerCacheSize(1))

	a := sink.Logger("a")
	assert.Same(t, a, sink.Logger("a"))
	sink.Logger("b")
	assert.NotSame(t, a, sink.Logger("a"))
}

func TestNilRecordIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	sink := newTestSink(&buf)
	require.NoError(t, sink.Digest(context.Background(), Line{}))
	require.NoError(t, sink.Detail(context.Background(), Line{}))
	require.NoError(t, sink.Slow(context.Background(), Line{}))
	assert.Empty(t, buf.String())
}

type errSink struct {
	Noop
	err error
}

func (s errSink) Digest(context.Context, Line) error { return s.err }

func TestMultiSink(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	m := Multi{Sinks: []Sink{errSink{err: boom}, nil, newTestSink(&buf)}}

	err := m.Digest(context.Background(), Line{Record: sampleRecord()})
	require.ErrorIs(t, err, boom)
	assert.Len(t, decodeLines(t, &buf), 1)
	require.NoError(t, m.Detail(context.Background(), Line{Record: sampleRecord()}))
}

func TestDebugLogger(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "text", slog.LevelDebug)

	DebugLogger(base, "production").Debug("hidden")
	assert.Empty(t, buf.String())

	DebugLogger(base, "dev").Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=callscope")

	assert.NotNil(t, DebugLogger(nil, "dev"))
}

func TestGatedDebugLogger_FollowsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "text", slog.LevelDebug)
	env := "dev"
	logger := GatedDebugLogger(base, func() string { return env }).With("step", "eval")

	logger.Debug("first")
	assert.Contains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "component=callscope")
	assert.Contains(t, buf.String(), "step=eval")

	buf.Reset()
	env = "prod"
	logger.Debug("second")
	assert.Empty(t, buf.String())

	env = "staging"
	logger.WithGroup("g").Debug("third", "k", "v")
	assert.Contains(t, buf.String(), "g.k=v")

	assert.NotNil(t, GatedDebugLogger(nil, nil))
}
