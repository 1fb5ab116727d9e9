package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the sink pipeline components report to. The nop default keeps
// the library dependency-free for embedders that do not scrape.
type Metrics interface {
	ObserveDuration(name string, labels map[string]string, d time.Duration)
	IncCounter(name string, labels map[string]string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDuration(string, map[string]string, time.Duration) {}
func (nopMetrics) IncCounter(string, map[string]string)                     {}

// NopMetrics returns a metrics sink that does nothing.
func NopMetrics() Metrics { return nopMetrics{} }

// PromMetrics implements Metrics with Prometheus collectors partitioned by
// engine/plugin label.
type PromMetrics struct {
	durations *prometheus.HistogramVec
	counters  *prometheus.CounterVec
}

// NewPromMetrics builds the collectors and registers them with reg. A nil
// registerer uses the default registry.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PromMetrics{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screenkit_operation_duration_seconds",
			Help:    "Duration of pipeline operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "component"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenkit_operation_total",
			Help: "Count of pipeline operations.",
		}, []string{"operation", "component"}),
	}
	reg.MustRegister(m.durations, m.counters)
	return m
}

func (m *PromMetrics) ObserveDuration(name string, labels map[string]string, d time.Duration) {
	m.durations.WithLabelValues(name, labels["component"]).Observe(d.Seconds())
}

func (m *PromMetrics) IncCounter(name string, labels map[string]string) {
	m.counters.WithLabelValues(name, labels["component"]).Inc()
}
