package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aponysus/callscope/observe"
)

func TestOTelCounterAndTimer(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	o := NewOTel(mp)
	ctx := context.Background()
	m := Measurement{
		Name: "callscope_sql",
		Kind: KindBoth,
		Tags: []observe.Tag{{Key: "result", Value: "fail"}},
		Cost: 200 * time.Millisecond,
	}
	require.NoError(t, o.Record(ctx, m))
	require.NoError(t, o.Record(ctx, m))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, meterName, rm.ScopeMetrics[0].Scope.Name)

	byName := map[string]metricdata.Metrics{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		byName[md.Name] = md
	}

	sum, ok := byName["callscope_sql"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	v, ok := sum.DataPoints[0].Attributes.Value("result")
	require.True(t, ok)
	assert.Equal(t, "fail", v.AsString())

	hist, ok := byName["callscope_sql.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.4, hist.DataPoints[0].Sum, 1e-9)
	assert.Equal(t, "s", byName["callscope_sql.duration"].Unit)
}

func TestOTelNilRecorder(t *testing.T) {
	var o *OTel
	assert.NoError(t, o.Record(context.Background(), Measurement{Name: "x", Kind: KindBoth}))
}
