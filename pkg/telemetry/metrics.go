// Package telemetry exposes Prometheus metrics for the record lifecycle
// daemon.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
)

// Metrics collects cleanup and record counters on its own registry so that
// embedding applications never collide with it on the default registry.
type Metrics struct {
	registry *prometheus.Registry

	recordsExpired *prometheus.CounterVec
	recordsPruned  *prometheus.CounterVec
	cleanupRuns    *prometheus.CounterVec
	cleanupSeconds *prometheus.HistogramVec
	recordsActive  *prometheus.GaugeVec
	queueDepth     *prometheus.GaugeVec
}

// Cleanup passes are expected to finish in well under a minute; the upper
// buckets exist to surface pathological batches.
var cleanupDurationBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates and registers all lifecycle metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.recordsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiondb_records_expired_total",
			Help: "Records removed by cleanup after reaching their expiry time",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.recordsExpired)

	m.recordsPruned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiondb_records_pruned_total",
			Help: "Dangling queue or index entries dropped by cleanup",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.recordsPruned)

	m.cleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiondb_cleanup_runs_total",
			Help: "Cleanup batch outcomes per record class",
		},
		[]string{"class", "status"},
	)
	m.registry.MustRegister(m.cleanupRuns)

	m.cleanupSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiondb_cleanup_duration_seconds",
			Help:    "Per-class cleanup batch duration",
			Buckets: cleanupDurationBuckets,
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.cleanupSeconds)

	m.recordsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessiondb_records_active",
			Help: "Active record count per class as reported by statistics",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.recordsActive)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessiondb_expiry_queue_depth",
			Help: "Entries waiting in the expiry queue per class",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.queueDepth)

	// Pre-seed the per-class series so dashboards see zeros instead of
	// absent series before the first cleanup pass.
	for _, class := range lifecycle.Classes {
		m.recordsExpired.WithLabelValues(class.String()).Add(0)
		m.recordsPruned.WithLabelValues(class.String()).Add(0)
		m.cleanupRuns.WithLabelValues(class.String(), "success").Add(0)
		m.cleanupRuns.WithLabelValues(class.String(), "failure").Add(0)
	}

	return m
}

// ObserveCleanup folds one cleanup invocation's result into the metrics.
func (m *Metrics) ObserveCleanup(result lifecycle.Result) {
	for class, cr := range result.Classes {
		label := class.String()
		m.recordsExpired.WithLabelValues(label).Add(float64(cr.Cleaned))
		m.recordsPruned.WithLabelValues(label).Add(float64(cr.Pruned))
		m.cleanupSeconds.WithLabelValues(label).Observe(float64(cr.DurationMS) / 1000)

		status := "success"
		if cr.Error != "" {
			status = "failure"
		}
		m.cleanupRuns.WithLabelValues(label, status).Inc()
	}
}

// SetActive records the active-record gauge for a class.
func (m *Metrics) SetActive(class lifecycle.Class, n int64) {
	m.recordsActive.WithLabelValues(class.String()).Set(float64(n))
}

// SetQueueDepth records the expiry-queue depth gauge for a class.
func (m *Metrics) SetQueueDepth(class lifecycle.Class, n int64) {
	m.queueDepth.WithLabelValues(class.String()).Set(float64(n))
}

// Handler returns an HTTP handler serving this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
