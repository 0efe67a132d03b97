package logsink

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aponysus/callscope/internal"
	"github.com/aponysus/callscope/observe"
)

const (
	DefaultLoggerCacheSize = 256
	DefaultMaxTextLength   = 2048
)

// SlogSink writes lines through log/slog. Each service gets a child logger
// carrying a "service" attribute, cached in a bounded LRU.
type SlogSink struct {
	base    *slog.Logger
	maxText int
	loggers *lru.Cache[string, *slog.Logger]
}

// SlogOption configures a SlogSink.
type SlogOption func(*slogConfig)

type slogConfig struct {
	maxText   int
	cacheSize int
}

// WithMaxTextLength bounds serialized input, output and error text.
func WithMaxTextLength(n int) SlogOption {
	return func(c *slogConfig) { c.maxText = n }
}

// WithLoggerCacheSize bounds the per-service logger cache.
func WithLoggerCacheSize(n int) SlogOption {
	return func(c *slogConfig) { c.cacheSize = n }
}

// NewSlogSink returns a sink writing to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger, opts ...SlogOption) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := slogConfig{maxText: DefaultMaxTextLength, cacheSize: DefaultLoggerCacheSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.cacheSize <= 0 {
		cfg.cacheSize = DefaultLoggerCacheSize
	}
	cache, _ := lru.New[string, *slog.Logger](cfg.cacheSize)
	return &SlogSink{base: logger, maxText: cfg.maxText, loggers: cache}
}

// Logger returns the cached child logger for service.
func (s *SlogSink) Logger(service string) *slog.Logger {
	if l, ok := s.loggers.Get(service); ok {
		return l
	}
	l := s.base.With(slog.String("service", service))
	s.loggers.Add(service, l)
	return l
}

func (s *SlogSink) Digest(ctx context.Context, line Line) error {
	rec := line.Record
	if rec == nil {
		return nil
	}
	attrs := s.summary(ctx, line)
	s.Logger(rec.Service).LogAttrs(ctx, levelFor(rec), "digest", attrs...)
	return nil
}

func (s *SlogSink) Detail(ctx context.Context, line Line) error {
	rec := line.Record
	if rec == nil {
		return nil
	}
	max := s.limit(line)
	attrs := s.summary(ctx, line)
	attrs = append(attrs,
		slog.String("input", internal.Truncate(internal.Stringify(rec.Input), max)),
		slog.String("output", internal.Truncate(internal.Stringify(rec.Output), max)),
	)
	s.Logger(rec.Service).LogAttrs(ctx, levelFor(rec), "detail", attrs...)
	return nil
}

func (s *SlogSink) Slow(ctx context.Context, line Line) error {
	rec := line.Record
	if rec == nil {
		return nil
	}
	attrs := s.summary(ctx, line)
	attrs = append(attrs, slog.Duration("threshold", line.Threshold))
	s.Logger(rec.Service).LogAttrs(ctx, slog.LevelWarn, "slow call", attrs...)
	return nil
}

func (s *SlogSink) limit(line Line) int {
	if line.MaxTextLength > 0 {
		return line.MaxTextLength
	}
	return s.maxText
}

func (s *SlogSink) summary(ctx context.Context, line Line) []slog.Attr {
	rec := line.Record
	attrs := make([]slog.Attr, 0, 12)
	if id := observe.TraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	if line.Application != "" {
		attrs = append(attrs, slog.String("application", line.Application))
	}
	if line.Environment != "" {
		attrs = append(attrs, slog.String("environment", line.Environment))
	}
	attrs = append(attrs,
		slog.String("log_point", rec.LogPoint.String()),
		slog.String("action", rec.Action),
		slog.Bool("success", rec.Success),
		slog.String("code", rec.MsgCode),
		slog.String("message", internal.Truncate(rec.MsgMessage, s.limit(line))),
		slog.Duration("cost", rec.Cost),
	)
	if rec.Err != nil {
		attrs = append(attrs, slog.String("error", internal.Truncate(rec.Err.Error(), s.limit(line))))
	}
	if len(rec.Tags) > 0 {
		tags := make([]any, 0, len(rec.Tags))
		for _, t := range rec.Tags {
			tags = append(tags, slog.String(t.Key, t.Value))
		}
		attrs = append(attrs, slog.Group("tags", tags...))
	}
	return attrs
}

func levelFor(rec *observe.Record) slog.Level {
	switch {
	case rec.Err != nil:
		return slog.LevelError
	case !rec.Success:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
