package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/aponysus/callscope/metrics"

// OTel records counters as Int64Counter "<name>" and durations as
// Float64Histogram "<name>.duration" in seconds.
type OTel struct {
	meter metric.Meter

	counters sync.Map // string -> metric.Int64Counter
	timers   sync.Map // string -> metric.Float64Histogram
}

// NewOTel returns a recorder using mp. A nil mp uses the global meter
// provider.
func NewOTel(mp metric.MeterProvider) *OTel {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return &OTel{meter: mp.Meter(meterName)}
}

func (o *OTel) Record(ctx context.Context, m Measurement) error {
	if o == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tags := uniqueTags(m.Tags)
	attrs := make([]attribute.KeyValue, len(tags))
	for i, t := range tags {
		attrs[i] = attribute.String(t.Key, t.Value)
	}
	set := metric.WithAttributes(attrs...)

	if m.Kind.Counter() {
		c, err := o.counter(m.Name)
		if err != nil {
			return err
		}
		c.Add(ctx, 1, set)
	}
	if m.Kind.Timer() {
		h, err := o.timer(m.Name)
		if err != nil {
			return err
		}
		h.Record(ctx, m.Cost.Seconds(), set)
	}
	return nil
}

func (o *OTel) counter(name string) (metric.Int64Counter, error) {
	if v, ok := o.counters.Load(name); ok {
		return v.(metric.Int64Counter), nil
	}
	c, err := o.meter.Int64Counter(name, metric.WithDescription("Number of calls."))
	if err != nil {
		return nil, err
	}
	v, _ := o.counters.LoadOrStore(name, c)
	return v.(metric.Int64Counter), nil
}

func (o *OTel) timer(name string) (metric.Float64Histogram, error) {
	if v, ok := o.timers.Load(name); ok {
		return v.(metric.Float64Histogram), nil
	}
	h, err := o.meter.Float64Histogram(name+".duration",
		metric.WithDescription("Call duration."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	v, _ := o.timers.LoadOrStore(name, h)
	return v.(metric.Float64Histogram), nil
}
