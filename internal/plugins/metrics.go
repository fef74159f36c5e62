package plugins

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transform outcomes recorded in metrics.
const (
	OutcomeTransformed = "transformed"
	OutcomePassThrough = "passthrough"
	OutcomeError       = "error"
	OutcomeCached      = "cached"
)

// Metrics tracks transform activity on a dedicated prometheus registry.
type Metrics struct {
	registry   *prometheus.Registry
	transforms *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transforms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbsbundle",
			Name:      "transforms_total",
			Help:      "Files offered to a transform plugin, by outcome.",
		}, []string{"plugin", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hbsbundle",
			Name:      "transform_duration_seconds",
			Help:      "Time spent inside a transform plugin.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"plugin"}),
	}

	m.registry.MustRegister(m.transforms, m.duration)

	return m
}

// Observe records one transform call.
func (m *Metrics) Observe(plugin, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transforms.WithLabelValues(plugin, outcome).Inc()
	m.duration.WithLabelValues(plugin).Observe(elapsed.Seconds())
}

// Registry exposes the registry so other components can add collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteToTextfile writes every collected metric in the text exposition
// format, suitable for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
