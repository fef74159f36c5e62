package build

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks bundle builds.
type Metrics struct {
	builds   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the build collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hbsbundle",
			Name:      "bundles_total",
			Help:      "Bundle target builds, by result.",
		}, []string{"bundle", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hbsbundle",
			Name:      "bundle_duration_seconds",
			Help:      "Wall time of one bundle target build.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"bundle"}),
	}

	reg.MustRegister(m.builds, m.duration)

	return m
}

// Observe records one bundle build.
func (m *Metrics) Observe(bundle string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	result := "success"
	if !ok {
		result = "failure"
	}
	m.builds.WithLabelValues(bundle, result).Inc()
	m.duration.WithLabelValues(bundle).Observe(elapsed.Seconds())
}
