// Package metrics provides the pipeline metrics registry and progress tracking.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder accumulates pipeline metrics into a dedicated prometheus registry.
// All methods are safe for concurrent use and never panic: a metric that
// cannot be registered is silently dropped, because recording a metric must
// never abort the pipeline.
type Recorder struct {
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// NewRecorder creates an empty metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// IncCounter adds delta to the named counter, creating it on first use.
func (r *Recorder) IncCounter(name string, delta float64) {
	if delta < 0 {
		return
	}
	r.mu.Lock()
	c, ok := r.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(name)})
		if err := r.registry.Register(c); err != nil {
			r.mu.Unlock()
			return
		}
		r.counters[name] = c
	}
	r.mu.Unlock()
	c.Add(delta)
}

// SetGauge sets the named gauge, creating it on first use.
func (r *Recorder) SetGauge(name string, value float64) {
	r.mu.Lock()
	g, ok := r.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{Name: sanitize(name)})
		if err := r.registry.Register(g); err != nil {
			r.mu.Unlock()
			return
		}
		r.gauges[name] = g
	}
	r.mu.Unlock()
	g.Set(value)
}

// ObserveDuration records a duration sample in seconds on the named histogram.
func (r *Recorder) ObserveDuration(name string, d time.Duration) {
	r.mu.Lock()
	h, ok := r.histograms[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    sanitize(name),
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		})
		if err := r.registry.Register(h); err != nil {
			r.mu.Unlock()
			return
		}
		r.histograms[name] = h
	}
	r.mu.Unlock()
	h.Observe(d.Seconds())
}

// Gather exposes the raw metric families, primarily for tests and the
// end-of-run summary.
func (r *Recorder) Gather() ([]*PrintableMetric, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make([]*PrintableMetric, 0, len(families))
	for _, mf := range families {
		pm := &PrintableMetric{Name: mf.GetName()}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				pm.Value += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				pm.Value += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				pm.Value += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out = append(out, pm)
	}
	return out, nil
}

// PrintableMetric is a flattened metric value for summaries.
type PrintableMetric struct {
	Name  string
	Value float64
}

// Handler returns an HTTP handler exposing the registry in the standard
// exposition format, for callers that run a scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// sanitize maps arbitrary metric names onto the exposition charset.
func sanitize(name string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == ':':
			return c
		default:
			return '_'
		}
	}, name)
}
