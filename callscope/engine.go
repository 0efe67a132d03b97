package callscope

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/controlplane"
	"github.com/aponysus/callscope/dispatch"
	"github.com/aponysus/callscope/logsink"
	"github.com/aponysus/callscope/metrics"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/selector"
	"github.com/aponysus/callscope/tags"
)

// Call is what a collaborator measured for one call.
type Call struct {
	Start time.Time
	Cost  time.Duration

	Input  []any
	Output any
	Err    error

	// Sources feed tag placeholders. When Sources.Args is nil, Input is used.
	Sources tags.Sources
}

// Engine classifies finished calls, resolves their tags and dispatches them.
type Engine struct {
	store      *controlplane.Store
	classifier *classify.Classifier
	rules      *classify.Registry
	tags       *tags.Builder
	dispatcher *dispatch.Dispatcher
	observer   observe.Observer
	clock      func() time.Time
	logger     *slog.Logger
}

// Options configures an Engine.
type Options struct {
	Store     *controlplane.Store
	Evaluator *selector.Evaluator
	// ErrorMappers extend the error taxonomy, e.g. for gRPC status codes.
	ErrorMappers []classify.ErrorMapper
	Rules        *classify.Registry
	Recorder     metrics.Recorder
	Sink         logsink.Sink
	Observer     observe.Observer
	Clock        func() time.Time
	// Logger receives internal diagnostics outside production environments.
	Logger       *slog.Logger
	MaxMetricIDs int
	// MetricIDs shares one identifier ceiling across engines. Without it
	// each engine enforces its own MaxMetricIDs.
	MetricIDs *metrics.IDSet
}

// Option configures an Engine.
type Option func(*Options)

func WithStore(s *controlplane.Store) Option {
	return func(o *Options) { o.Store = s }
}

func WithEvaluator(e *selector.Evaluator) Option {
	return func(o *Options) { o.Evaluator = e }
}

func WithErrorMapper(m classify.ErrorMapper) Option {
	return func(o *Options) { o.ErrorMappers = append(o.ErrorMappers, m) }
}

func WithRules(r *classify.Registry) Option {
	return func(o *Options) { o.Rules = r }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

func WithSink(s logsink.Sink) Option {
	return func(o *Options) { o.Sink = s }
}

func WithObserver(obs observe.Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

func WithClock(f func() time.Time) Option {
	return func(o *Options) { o.Clock = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithMaxMetricIDs(n int) Option {
	return func(o *Options) { o.MaxMetricIDs = n }
}

func WithMetricIDs(ids *metrics.IDSet) Option {
	return func(o *Options) { o.MetricIDs = ids }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return NewEngineFromOptions(o)
}

// NewEngineFromOptions creates an Engine from an Options struct. Missing
// collaborators get defaults: the default snapshot, the built-in rules, a
// no-op recorder and sink.
func NewEngineFromOptions(o Options) *Engine {
	e := &Engine{
		store:    o.Store,
		rules:    o.Rules,
		observer: o.Observer,
		clock:    o.Clock,
		logger:   o.Logger,
	}
	if e.store == nil {
		e.store, _ = controlplane.NewStore(nil)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.rules == nil {
		e.rules = classify.NewRegistry()
		classify.RegisterBuiltins(e.rules)
	}
	if e.observer == nil {
		e.observer = observe.NoopObserver{}
	}
	if e.clock == nil {
		e.clock = time.Now
	}

	debugLogger := logsink.GatedDebugLogger(e.logger, func() string { return e.store.Load().Environment })
	eval := o.Evaluator
	if eval == nil {
		eval = selector.NewEvaluator(selector.WithLogger(debugLogger))
	}
	copts := []classify.Option{classify.WithEvaluator(eval), classify.WithLogger(debugLogger)}
	for _, m := range o.ErrorMappers {
		copts = append(copts, classify.WithErrorMapper(m))
	}
	e.classifier = classify.NewClassifier(copts...)
	e.tags = tags.NewBuilder(eval)
	e.dispatcher = dispatch.NewFromOptions(dispatch.Options{
		Store:        e.store,
		Recorder:     o.Recorder,
		Sink:         o.Sink,
		Logger:       e.logger,
		MaxMetricIDs: o.MaxMetricIDs,
		MetricIDs:    o.MetricIDs,
	})
	return e
}

// Store returns the engine's configuration store.
func (e *Engine) Store() *controlplane.Store { return e.store }

// Rules returns the engine's rule registry.
func (e *Engine) Rules() *classify.Registry { return e.rules }

// Complete turns a finished call into a classified, tagged record and
// dispatches it. Calls at a disabled log point are returned unclassified and
// are not dispatched. The returned record is informational; the business
// result is never touched.
func (e *Engine) Complete(ctx context.Context, site Site, call Call) *observe.Record {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := &observe.Record{
		LogPoint: site.LogPoint,
		Service:  site.Service,
		Action:   site.Action,
		Start:    call.Start,
		Cost:     call.Cost,
		Err:      call.Err,
		Input:    call.Input,
		Output:   call.Output,
		Success:  call.Err == nil,
	}
	if e == nil {
		return rec
	}

	snap := e.store.Load()
	if !snap.Enabled(site.LogPoint) {
		publish(ctx, rec)
		return rec
	}

	e.guard(ctx, snap, "classify", func() {
		out := e.classifier.Classify(call.Output, call.Err, site.rule(e.rules), snap.DefaultsFor(site.LogPoint))
		rec.Success = out.Success
		rec.MsgCode = out.Code
		rec.MsgMessage = out.Message
	})

	if len(site.Tags) > 0 {
		e.guard(ctx, snap, "tags", func() {
			src := call.Sources
			if src.Args == nil {
				src.Args = call.Input
			}
			rec.Tags = e.tags.Build(site.Tags, src)
			rec.HasUserTag = len(rec.Tags) > 0
		})
	}

	e.dispatcher.Dispatch(ctx, rec)

	publish(ctx, rec)
	e.guard(ctx, snap, "observer", func() { e.observer.OnRecord(ctx, rec) })
	return rec
}

func publish(ctx context.Context, rec *observe.Record) {
	if capture, ok := observe.RecordCaptureFromContext(ctx); ok {
		observe.StoreRecordCapture(capture, rec)
	}
}

func (e *Engine) guard(ctx context.Context, snap *controlplane.Snapshot, step string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			logsink.DebugLogger(e.logger, snap.Environment).DebugContext(ctx, "callscope: recovered panic",
				slog.String("step", step),
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

// Operation is an instrumented call without a result value.
type Operation func(ctx context.Context) error

// OperationValue is an instrumented call returning a value.
type OperationValue[T any] func(ctx context.Context) (T, error)

// Do times op, completes its record at site and returns op's error
// unchanged. input is recorded as the call's arguments.
func (e *Engine) Do(ctx context.Context, site Site, op Operation, input ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	clock := e.now()
	start := clock()
	err := op(observe.WithoutRecordCapture(ctx))
	e.Complete(ctx, site, Call{Start: start, Cost: clock().Sub(start), Input: input, Err: err})
	return err
}

// DoValueWith times op on e, completes its record at site and returns op's
// value and error unchanged.
func DoValueWith[T any](ctx context.Context, e *Engine, site Site, op OperationValue[T], input ...any) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	clock := e.now()
	start := clock()
	val, err := op(observe.WithoutRecordCapture(ctx))
	e.Complete(ctx, site, Call{Start: start, Cost: clock().Sub(start), Input: input, Output: val, Err: err})
	return val, err
}

func (e *Engine) now() func() time.Time {
	if e == nil || e.clock == nil {
		return time.Now
	}
	return e.clock
}
