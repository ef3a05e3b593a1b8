// Package metrics registers SlimLO's Prometheus instrumentation, the same
// promauto-driven shape the teacher's escrow package uses for its own
// metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector SlimLO exposes.
type Metrics struct {
	ConversionTotal    *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	WorkerCrashes      prometheus.Counter
	WorkerRecycles     *prometheus.CounterVec
	ActiveWorkers      prometheus.Gauge
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
}

// NewMetrics constructs and registers the collector set against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ConversionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slimlo_conversion_total",
				Help: "Total number of conversion requests processed.",
			},
			[]string{"format", "status"}, // status: success, failure
		),
		ConversionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slimlo_conversion_duration_seconds",
				Help:    "Duration of a single convert/convert_buffer round trip.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		WorkerCrashes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slimlo_worker_crashes_total",
			Help: "Total number of worker processes that died unexpectedly.",
		}),
		WorkerRecycles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slimlo_worker_recycles_total",
				Help: "Total number of worker processes torn down deliberately.",
			},
			[]string{"reason"}, // reason: recycle_after, idle, dispose
		),
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slimlo_active_workers",
			Help: "Number of worker slots currently holding a live child process.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slimlo_cache_hits_total",
			Help: "Total number of conversion requests served from cache.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slimlo_cache_misses_total",
			Help: "Total number of conversion requests that missed the cache.",
		}),
	}
}

// RecordConversion records a completed conversion's outcome and latency.
func (m *Metrics) RecordConversion(format string, success bool, duration time.Duration) {
	status := "failure"
	if success {
		status = "success"
	}
	m.ConversionTotal.WithLabelValues(format, status).Inc()
	m.ConversionDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordRecycle records a worker being torn down for reason.
func (m *Metrics) RecordRecycle(reason string) {
	m.WorkerRecycles.WithLabelValues(reason).Inc()
}
