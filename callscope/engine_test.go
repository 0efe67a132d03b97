package callscope_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/controlplane"
	"github.com/aponysus/callscope/logsink"
	"github.com/aponysus/callscope/metrics"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

type memRecorder struct {
	mu   sync.Mutex
	seen []metrics.Measurement
}

func (r *memRecorder) Record(_ context.Context, m metrics.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, m)
	return nil
}

func (r *memRecorder) measurements() []metrics.Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.Measurement(nil), r.seen...)
}

type memSink struct {
	mu      sync.Mutex
	digests []logsink.Line
	details []logsink.Line
}

func (s *memSink) Digest(_ context.Context, l logsink.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests = append(s.digests, l)
	return nil
}

func (s *memSink) Detail(_ context.Context, l logsink.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details = append(s.details, l)
	return nil
}

func (s *memSink) Slow(context.Context, logsink.Line) error { return nil }

func (s *memSink) digestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.digests)
}

type fixture struct {
	engine   *callscope.Engine
	recorder *memRecorder
	sink     *memSink
}

func newFixture(t *testing.T, snap controlplane.Snapshot, opts ...callscope.Option) fixture {
	t.Helper()
	store, err := controlplane.NewStore(&snap)
	require.NoError(t, err)
	f := fixture{recorder: &memRecorder{}, sink: &memSink{}}
	opts = append([]callscope.Option{
		callscope.WithStore(store),
		callscope.WithRecorder(f.recorder),
		callscope.WithSink(f.sink),
	}, opts...)
	f.engine = callscope.NewEngine(opts...)
	return f
}

func TestCompleteEndToEnd(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{Policies: policy.Set{Default: policy.Entry{Digest: policy.OutputAlways}}})
	site := callscope.NewSite(observe.LogPointCustom, "orders.GetOrder")

	rec := f.engine.Complete(context.Background(), site, callscope.Call{
		Cost:   25 * time.Millisecond,
		Output: map[string]any{"code": 0, "data": map[string]any{"id": 1}},
	})

	assert.True(t, rec.Success)
	assert.Equal(t, "0", rec.MsgCode)
	assert.Equal(t, classify.SentinelSuccess, rec.MsgMessage)
	assert.Equal(t, 25*time.Millisecond, rec.Cost)
	assert.Equal(t, "orders", rec.Service)
	assert.Equal(t, "GetOrder", rec.Action)

	ms := f.recorder.measurements()
	require.Len(t, ms, 1)
	assert.Equal(t, "callscope_custom", ms[0].Name)
	assert.Equal(t, 25*time.Millisecond, ms[0].Cost)
	assert.Equal(t, 1, f.sink.digestCount())
	assert.Empty(t, f.sink.details)
}

func TestCompleteFailureFromBody(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{})
	site := callscope.NewSite(observe.LogPointCustom, "orders.GetOrder")

	rec := f.engine.Complete(context.Background(), site, callscope.Call{
		Output: map[string]any{"code": 500, "message": "out of stock"},
	})
	assert.False(t, rec.Success)
	assert.Equal(t, "500", rec.MsgCode)
	assert.Equal(t, "out of stock", rec.MsgMessage)
	assert.Len(t, f.sink.details, 1)
}

func TestCompleteErrorUsesTaxonomy(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{})
	site := callscope.NewSite(observe.LogPointRPCClient, "billing.Charge")

	rec := f.engine.Complete(context.Background(), site, callscope.Call{Err: context.DeadlineExceeded})
	assert.False(t, rec.Success)
	assert.Equal(t, classify.ErrorKindTimeout.Code(), rec.MsgCode)
	assert.Equal(t, classify.ErrorKindTimeout.Message(), rec.MsgMessage)
}

func TestSiteRuleOverridesDefaults(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{})
	site := callscope.NewSite(observe.LogPointCustom, "pay.Refund",
		callscope.WithBoolExpr("$.ok"),
		callscope.WithCodeExpr("+$.result.code"),
	)

	rec := f.engine.Complete(context.Background(), site, callscope.Call{
		Output: map[string]any{"ok": false, "code": 0, "result": map[string]any{"code": "R1"}},
	})
	assert.False(t, rec.Success)
	assert.Equal(t, "R1", rec.MsgCode)
}

func TestSiteRuleByName(t *testing.T) {
	rules := classify.NewRegistry()
	rules.Register("strict", classify.Rule{Strategy: classify.StrategyIfSuccess})
	f := newFixture(t, controlplane.Snapshot{}, callscope.WithRules(rules))

	site := callscope.NewSite(observe.LogPointCustom, "a.b", callscope.WithRuleName("strict"))
	rec := f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"data": 1}})
	assert.False(t, rec.Success, "IfSuccess treats an undetermined result as failure")

	loose := callscope.NewSite(observe.LogPointCustom, "a.b")
	rec = f.engine.Complete(context.Background(), loose, callscope.Call{Output: map[string]any{"data": 1}})
	assert.True(t, rec.Success)
}

func TestBuiltinLogPointsHonorConfiguredBoolExpr(t *testing.T) {
	points := []observe.LogPoint{
		observe.LogPointRPCClient,
		observe.LogPointMQConsumer,
		observe.LogPointHTTPClient,
		observe.LogPointJob,
	}
	for _, lp := range points {
		t.Run(string(lp)+"/component", func(t *testing.T) {
			f := newFixture(t, controlplane.Snapshot{
				Components: map[observe.LogPoint]controlplane.Component{
					lp: {Enabled: true, Defaults: classify.Defaults{BoolExpr: "$.ok"}},
				},
			})
			site := callscope.NewSite(lp, "svc.Call")
			rec := f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"ok": false}})
			assert.False(t, rec.Success)
		})
		t.Run(string(lp)+"/global", func(t *testing.T) {
			f := newFixture(t, controlplane.Snapshot{})
			site := callscope.NewSite(lp, "svc.Call")

			rec := f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"success": false}})
			assert.False(t, rec.Success)

			rec = f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"data": 1}})
			assert.True(t, rec.Success)
		})
	}
}

func TestDebugLoggingFollowsReloadedEnvironment(t *testing.T) {
	var buf bytes.Buffer
	logger := logsink.NewLogger(&buf, "text", slog.LevelDebug)
	f := newFixture(t, controlplane.Snapshot{Environment: "dev"}, callscope.WithLogger(logger))
	site := callscope.NewSite(observe.LogPointCustom, "a.b", callscope.WithBoolExpr("$.[[bad"))

	f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"ok": true}})
	assert.NotEmpty(t, buf.String())

	require.NoError(t, f.engine.Store().Update(controlplane.Snapshot{Environment: "prod"}))
	buf.Reset()
	f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"ok": true}})
	assert.Empty(t, buf.String())
}

func TestEnginesShareMetricIDCeiling(t *testing.T) {
	ids := metrics.NewIDSet(1)
	a := newFixture(t, controlplane.Snapshot{}, callscope.WithMetricIDs(ids))
	b := newFixture(t, controlplane.Snapshot{}, callscope.WithMetricIDs(ids))

	a.engine.Complete(context.Background(), callscope.NewSite(observe.LogPointCustom, "orders.Get"), callscope.Call{})
	b.engine.Complete(context.Background(), callscope.NewSite(observe.LogPointCustom, "orders.List"), callscope.Call{})

	assert.Len(t, a.recorder.measurements(), 1)
	assert.Empty(t, b.recorder.measurements())
	assert.Equal(t, 1, ids.Len())
}

func TestComponentExpressionsApply(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{
		Components: map[observe.LogPoint]controlplane.Component{
			observe.LogPointMQConsumer: {Enabled: true, Defaults: classify.Defaults{CodeExpr: "+$.receipt"}},
		},
	})
	site := callscope.NewSite(observe.LogPointMQConsumer, "queue.orders")

	rec := f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"receipt": "r-1"}})
	assert.True(t, rec.Success)
	assert.Equal(t, "r-1", rec.MsgCode)
}

func TestDisabledLogPointIsNotClassified(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{
		Components: map[observe.LogPoint]controlplane.Component{
			observe.LogPointCache: {Enabled: false},
		},
	})
	site := callscope.NewSite(observe.LogPointCache, "redis.get")

	rec := f.engine.Complete(context.Background(), site, callscope.Call{Output: map[string]any{"code": 1}})
	assert.Empty(t, rec.MsgCode)
	assert.True(t, rec.Success)
	assert.Empty(t, f.recorder.measurements())
	assert.Zero(t, f.sink.digestCount())
}

func TestTagsResolveFromInput(t *testing.T) {
	f := newFixture(t, controlplane.Snapshot{})
	site := callscope.NewSite(observe.LogPointHTTPServer, "orders.get",
		callscope.WithTags("order", "{id}", "tenant", "${tenant}"),
	)

	rec := f.engine.Complete(context.Background(), site, callscope.Call{
		Input:  []any{map[string]any{"id": "42"}},
		Output: map[string]any{"status": 200},
	})
	assert.True(t, rec.HasUserTag)
	assert.Equal(t, []observe.Tag{{Key: "order", Value: "42"}, {Key: "tenant", Value: "00"}}, rec.Tags)

	ms := f.recorder.measurements()
	require.Len(t, ms, 2)
	assert.Equal(t, "callscope_orders_get_http_server", ms[1].Name)
}

func TestDoValueReturnsBusinessResultUnchanged(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(50 * time.Millisecond)
		return now
	}
	f := newFixture(t, controlplane.Snapshot{}, callscope.WithClock(clock))
	site := callscope.NewSite(observe.LogPointJob, "jobs.reindex")

	got, err := callscope.DoValueWith(context.Background(), f.engine, site, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	boom := errors.New("boom")
	_, err = callscope.DoValueWith(context.Background(), f.engine, site, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.Same(t, boom, err)

	ms := f.recorder.measurements()
	require.Len(t, ms, 2)
	assert.Equal(t, 50*time.Millisecond, ms[0].Cost)
}

func TestEngineDoRecordsInput(t *testing.T) {
	var seen *observe.Record
	obs := observe.ObserverFunc(func(_ context.Context, rec *observe.Record) { seen = rec })
	f := newFixture(t, controlplane.Snapshot{}, callscope.WithObserver(obs))
	site := callscope.NewSite(observe.LogPointJob, "jobs.cleanup")

	err := f.engine.Do(context.Background(), site, func(context.Context) error { return nil }, "arg1", 2)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, []any{"arg1", 2}, seen.Input)
	assert.True(t, seen.Success)
	assert.Equal(t, classify.SentinelSuccess, seen.MsgCode)
}

func TestObserverPanicIsContained(t *testing.T) {
	obs := observe.ObserverFunc(func(context.Context, *observe.Record) { panic("observer broke") })
	f := newFixture(t, controlplane.Snapshot{}, callscope.WithObserver(obs))
	site := callscope.NewSite(observe.LogPointCustom, "a.b")

	require.NotPanics(t, func() {
		f.engine.Complete(context.Background(), site, callscope.Call{})
	})
}

type statusErr struct{ code string }

func (e statusErr) Error() string { return "status " + e.code }

func TestErrorMapperOption(t *testing.T) {
	mapper := func(err error) (classify.ErrorKind, bool) {
		var se statusErr
		if errors.As(err, &se) && se.code == "INVALID_ARGUMENT" {
			return classify.ErrorKindParam, true
		}
		return classify.ErrorKindNone, false
	}
	f := newFixture(t, controlplane.Snapshot{}, callscope.WithErrorMapper(mapper))
	site := callscope.NewSite(observe.LogPointRPCClient, "users.Get")

	rec := f.engine.Complete(context.Background(), site, callscope.Call{Err: statusErr{code: "INVALID_ARGUMENT"}})
	assert.Equal(t, classify.ErrorKindParam.Code(), rec.MsgCode)
}

func TestNilEngineCompleteReturnsSkeleton(t *testing.T) {
	var e *callscope.Engine
	rec := e.Complete(context.Background(), callscope.NewSite(observe.LogPointSQL, "db.query"), callscope.Call{Err: errors.New("x")})
	assert.False(t, rec.Success)
	assert.Equal(t, observe.LogPointSQL, rec.LogPoint)
}

func TestNewSite(t *testing.T) {
	s := callscope.NewSite(observe.LogPointSQL, "inventory.reserve",
		callscope.WithStrategy(classify.StrategyIfNotEmpty),
		callscope.WithMsgExpr("$.reason"),
	)
	assert.Equal(t, callscope.Key{Service: "inventory", Action: "reserve"}, s.Key())
	assert.Equal(t, classify.Rule{Strategy: classify.StrategyIfNotEmpty, MsgExpr: "$.reason"}, s.Rule)
	assert.Equal(t, callscope.ParseKey("inventory.reserve"), s.Key())
}
