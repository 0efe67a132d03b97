// Package dispatch turns classified call records into metrics and log lines
// according to the active policy snapshot.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/aponysus/callscope/controlplane"
	"github.com/aponysus/callscope/internal"
	"github.com/aponysus/callscope/logsink"
	"github.com/aponysus/callscope/metrics"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

// Tag keys of the fixed system tag set.
const (
	TagResult      = "result"
	TagApplication = "application"
	TagEnvironment = "environment"
	TagLogPoint    = "log_point"
	TagService     = "service"
	TagAction      = "action"
	TagMsgCode     = "msg_code"
	TagCost        = "cost"
	TagException   = "exception"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	// ExceptionTagLength bounds the error text carried by the exception tag.
	ExceptionTagLength = 64
	noException        = "none"
)

// Step names reported in StepError and PanicError.
const (
	StepMetrics     = "metrics"
	StepUserMetrics = "user_metrics"
	StepSlowMetrics = "slow_metrics"
	StepSlowLog     = "slow_log"
	StepDigest      = "digest"
	StepDetail      = "detail"
)

// PanicError reports a panic recovered inside a dispatch step.
type PanicError struct {
	Step  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callscope: panic in dispatch step %s: %v", e.Step, e.Value)
}

// StepError wraps the error a dispatch step returned.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("callscope: dispatch step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Report describes what one Dispatch call emitted.
type Report struct {
	Disabled bool

	Metrics     bool
	UserMetrics bool
	// MetricsSuppressed is set when the identifier ceiling rejected a
	// measurement.
	MetricsSuppressed bool

	Slow        bool
	SlowMetrics bool
	SlowLog     bool

	Excluded bool
	Digest   bool
	Detail   bool

	// Err joins every step failure. It is informational only.
	Err error
}

// Dispatcher emits metrics and log lines for finished call records. It is
// safe for concurrent use; every call runs on the caller's goroutine.
type Dispatcher struct {
	store    *controlplane.Store
	recorder *metrics.Limiter
	sink     logsink.Sink
	logger   *slog.Logger
}

// Options configures a Dispatcher.
type Options struct {
	Store    *controlplane.Store
	Recorder metrics.Recorder
	Sink     logsink.Sink
	// Logger receives internal diagnostics. It is silenced when the active
	// snapshot names a production environment.
	Logger *slog.Logger
	// MaxMetricIDs overrides the snapshot's identifier ceiling.
	MaxMetricIDs int
	// MetricIDs shares an identifier ceiling with other dispatchers. When nil
	// the dispatcher owns a set sized by MaxMetricIDs, so the ceiling is per
	// dispatcher.
	MetricIDs *metrics.IDSet
}

// Option configures a Dispatcher.
type Option func(*Options)

func WithStore(s *controlplane.Store) Option {
	return func(o *Options) { o.Store = s }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

func WithSink(s logsink.Sink) Option {
	return func(o *Options) { o.Sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMaxMetricIDs sets the dispatcher's ceiling on distinct metric
// identifiers.
func WithMaxMetricIDs(n int) Option {
	return func(o *Options) { o.MaxMetricIDs = n }
}

// WithMetricIDs makes the dispatcher count identifiers against ids, which
// other dispatchers may share. MaxMetricIDs is ignored.
func WithMetricIDs(ids *metrics.IDSet) Option {
	return func(o *Options) { o.MetricIDs = ids }
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return NewFromOptions(o)
}

// NewFromOptions creates a Dispatcher from an Options struct. Missing
// collaborators default to a store serving the default snapshot, a no-op
// recorder and sink, and a discarding logger.
func NewFromOptions(o Options) *Dispatcher {
	d := &Dispatcher{
		store:  o.Store,
		sink:   o.Sink,
		logger: o.Logger,
	}
	if d.store == nil {
		d.store, _ = controlplane.NewStore(nil)
	}
	if d.sink == nil {
		d.sink = logsink.Noop{}
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	ids := o.MetricIDs
	if ids == nil {
		max := o.MaxMetricIDs
		if max <= 0 {
			max = d.store.Load().MaxMetricIDs
		}
		ids = metrics.NewIDSet(max)
	}
	d.recorder = metrics.NewSharedLimiter(o.Recorder, ids)
	return d
}

// Store returns the policy store the dispatcher reads.
func (d *Dispatcher) Store() *controlplane.Store {
	return d.store
}

// Dispatch emits metrics, the slow-call escalation and the digest and detail
// lines for rec. Each step is guarded independently: a failing or panicking
// step is reported in Report.Err and to the debug log, and the remaining
// steps still run.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *observe.Record) Report {
	var r Report
	if d == nil || rec == nil {
		return r
	}
	if ctx == nil {
		ctx = context.Background()
	}

	snap := d.store.Load()
	if !snap.Enabled(rec.LogPoint) {
		r.Disabled = true
		return r
	}
	entry := snap.Policy(rec.LogPoint)
	system := SystemTags(snap, rec)

	var errs []error
	run := func(step string, fn func() error) bool {
		err := guard(step, fn)
		if err == nil {
			return true
		}
		if errors.Is(err, metrics.ErrCardinalityExceeded) {
			r.MetricsSuppressed = true
		}
		errs = append(errs, err)
		d.debugLogger(snap).DebugContext(ctx, "callscope: dispatch step failed",
			slog.String("step", step),
			slog.String("log_point", rec.LogPoint.String()),
			slog.String("service", rec.Service),
			slog.String("action", rec.Action),
			slog.Any("error", err),
		)
		return false
	}

	r.Metrics = run(StepMetrics, func() error {
		return d.recorder.Record(ctx, metrics.Measurement{
			Name: metrics.Name(snap.MetricPrefix, rec.LogPoint.String()),
			Kind: metrics.KindBoth,
			Tags: system,
			Cost: rec.Cost,
		})
	})

	if rec.HasUserTag {
		r.UserMetrics = run(StepUserMetrics, func() error {
			tags := make([]observe.Tag, 0, len(system)+len(rec.Tags))
			tags = append(tags, system...)
			tags = append(tags, rec.Tags...)
			return d.recorder.Record(ctx, metrics.Measurement{
				Name: metrics.Name(snap.MetricPrefix, rec.Service, rec.Action, rec.LogPoint.String()),
				Kind: metrics.KindTimer,
				Tags: tags,
				Cost: rec.Cost,
			})
		})
	}

	line := logsink.Line{
		Record:        rec,
		Application:   snap.Application,
		Environment:   snap.Environment,
		MaxTextLength: snap.MaxTextLength,
	}

	if entry.IsSlow(rec.Cost) {
		r.Slow = true
		if entry.SlowMode.Metrics() {
			r.SlowMetrics = run(StepSlowMetrics, func() error {
				return d.recorder.Record(ctx, metrics.Measurement{
					Name: metrics.Name(snap.MetricPrefix, rec.LogPoint.String(), "slow"),
					Kind: metrics.KindBoth,
					Tags: system,
					Cost: rec.Cost,
				})
			})
		}
		if entry.SlowMode.Log() {
			slow := line
			slow.Threshold = entry.SlowThreshold
			r.SlowLog = run(StepSlowLog, func() error { return d.sink.Slow(ctx, slow) })
		}
	}

	if entry.Exclude.Match(rec.LogPoint, policy.Key{Service: rec.Service, Action: rec.Action}) {
		r.Excluded = true
	} else {
		failed, errored := rec.Failed(), rec.Err != nil
		if entry.Digest.Allows(failed, errored) {
			r.Digest = run(StepDigest, func() error { return d.sink.Digest(ctx, line) })
		}
		if entry.Detail.Allows(failed, errored) {
			r.Detail = run(StepDetail, func() error { return d.sink.Detail(ctx, line) })
		}
	}

	r.Err = errors.Join(errs...)
	return r
}

func (d *Dispatcher) debugLogger(snap *controlplane.Snapshot) *slog.Logger {
	return logsink.DebugLogger(d.logger, snap.Environment)
}

// SystemTags returns the fixed tag set for rec.
func SystemTags(snap *controlplane.Snapshot, rec *observe.Record) []observe.Tag {
	result := ResultSuccess
	if rec.Failed() {
		result = ResultFailure
	}
	exception := noException
	if rec.Err != nil {
		exception = internal.Truncate(strings.TrimSpace(rec.Err.Error()), ExceptionTagLength)
	}
	return []observe.Tag{
		{Key: TagResult, Value: result},
		{Key: TagApplication, Value: snap.Application},
		{Key: TagEnvironment, Value: snap.Environment},
		{Key: TagLogPoint, Value: rec.LogPoint.String()},
		{Key: TagService, Value: rec.Service},
		{Key: TagAction, Value: rec.Action},
		{Key: TagMsgCode, Value: rec.MsgCode},
		{Key: TagCost, Value: metrics.CostBucket(rec.Cost)},
		{Key: TagException, Value: exception},
	}
}

func guard(step string, fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Step: step, Value: v, Stack: debug.Stack()}
		}
	}()
	if err := fn(); err != nil {
		return &StepError{Step: step, Err: err}
	}
	return nil
}
