package metrics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrLabelMismatch is returned when a metric name is reused with a different
// tag key set. Prometheus requires a fixed label set per family.
var ErrLabelMismatch = errors.New("callscope: metric label set mismatch")

// Prometheus records counters as "<name>_total" and durations as
// "<name>_seconds" histograms. Families are created and registered on first
// use.
type Prometheus struct {
	reg     prometheus.Registerer
	buckets []float64

	mu       sync.Mutex
	families map[string]*promFamily
}

type promFamily struct {
	labels  []string
	counter *prometheus.CounterVec
	timer   *prometheus.HistogramVec
}

// PrometheusOption configures a Prometheus recorder.
type PrometheusOption func(*Prometheus)

// WithBuckets overrides the histogram buckets (seconds).
func WithBuckets(buckets []float64) PrometheusOption {
	return func(p *Prometheus) {
		if len(buckets) > 0 {
			p.buckets = append([]float64(nil), buckets...)
		}
	}
}

// NewPrometheus returns a recorder registering into reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer, opts ...PrometheusOption) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		reg:      reg,
		buckets:  prometheus.DefBuckets,
		families: make(map[string]*promFamily),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Prometheus) Record(_ context.Context, m Measurement) error {
	if p == nil {
		return nil
	}
	name := SanitizeName(m.Name)
	tags := uniqueTags(m.Tags)
	labels := make([]string, len(tags))
	values := make([]string, len(tags))
	for i, t := range tags {
		labels[i] = SanitizeLabel(t.Key)
		values[i] = t.Value
	}

	counter, timer, err := p.vecs(name, labels, m.Kind)
	if err != nil {
		return err
	}
	if counter != nil {
		counter.WithLabelValues(values...).Inc()
	}
	if timer != nil {
		timer.WithLabelValues(values...).Observe(m.Cost.Seconds())
	}
	return nil
}

func (p *Prometheus) vecs(name string, labels []string, kind Kind) (*prometheus.CounterVec, *prometheus.HistogramVec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.families[name]
	if !ok {
		f = &promFamily{labels: labels}
		p.families[name] = f
	} else if !slices.Equal(f.labels, labels) {
		return nil, nil, fmt.Errorf("%w: %s has %v, got %v", ErrLabelMismatch, name, f.labels, labels)
	}

	if kind.Counter() && f.counter == nil {
		c, err := register(p.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name + "_total",
			Help: "Number of calls observed at " + name + ".",
		}, labels))
		if err != nil {
			return nil, nil, err
		}
		f.counter = c
	}
	if kind.Timer() && f.timer == nil {
		h, err := register(p.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name + "_seconds",
			Help:    "Duration of calls observed at " + name + ".",
			Buckets: p.buckets,
		}, labels))
		if err != nil {
			return nil, nil, err
		}
		f.timer = h
	}

	var (
		counter *prometheus.CounterVec
		timer   *prometheus.HistogramVec
	)
	if kind.Counter() {
		counter = f.counter
	}
	if kind.Timer() {
		timer = f.timer
	}
	return counter, timer, nil
}

// register registers c, reusing an equivalent collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
