// Package metrics provides Prometheus metrics for the ranking worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "arena"
	subsystem = "rank"
)

// Manager owns every metric of the worker. All recording methods are safe
// for concurrent use and no-ops on a nil receiver, so callers can hold a nil
// *Manager when metrics are disabled.
type Manager struct {
	registry *prometheus.Registry

	// Aggregation.
	snapshotsAggregated prometheus.Counter
	aggregationFailures prometheus.Counter
	aggregationDuration prometheus.Histogram

	// Ranking index.
	indexOps       *prometheus.CounterVec
	indexOpLatency *prometheus.HistogramVec

	// Classification.
	classificationRuns     prometheus.Counter
	classificationDuration prometheus.Histogram
	promotions             prometheus.Counter
	demotions              prometheus.Counter

	// Scheduler.
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	trackerResults *prometheus.CounterVec
}

// NewManager builds a manager on its own registry, keeping the default Go
// collectors out of the exposition.
func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	auto := promauto.With(registry)

	return &Manager{
		registry: registry,

		snapshotsAggregated: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshots_aggregated_total",
			Help:      "Performance snapshots computed and stored.",
		}),
		aggregationFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aggregation_failures_total",
			Help:      "Members skipped during aggregation runs.",
		}),
		aggregationDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aggregation_duration_seconds",
			Help:      "Wall time of per-arena aggregation runs.",
			Buckets:   prometheus.DefBuckets,
		}),

		indexOps: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "index_operations_total",
			Help:      "Ranking index operations by name and outcome.",
		}, []string{"op", "outcome"}),
		indexOpLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "index_operation_seconds",
			Help:      "Latency of ranking index operations.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),

		classificationRuns: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "classification_runs_total",
			Help:      "League classification runs completed.",
		}),
		classificationDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "classification_duration_seconds",
			Help:      "Wall time of per-arena classification runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		promotions: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "promotions_total",
			Help:      "Members promoted to a higher tier.",
		}),
		demotions: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "demotions_total",
			Help:      "Members demoted to a lower tier.",
		}),

		jobRuns: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job name and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_duration_seconds",
			Help:      "Wall time of scheduled job runs.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		trackerResults: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tracker_requests_total",
			Help:      "Activity tracker requests by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler returns the exposition endpoint for this manager's registry.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server returns an http.Server exposing the registry on addr under
// /metrics. It backs the standalone exposition listener, which keeps
// scraping possible when the read API is disabled; the caller owns the
// server's lifecycle.
func (m *Manager) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// Registry exposes the underlying registry for tests.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ─────────────────────────────────────────────────────────────────────────────
// Recording
// ─────────────────────────────────────────────────────────────────────────────

// RecordAggregation records one per-arena aggregation run.
func (m *Manager) RecordAggregation(aggregated, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.snapshotsAggregated.Add(float64(aggregated))
	m.aggregationFailures.Add(float64(failed))
	m.aggregationDuration.Observe(elapsed.Seconds())
}

// RecordIndexOp records one ranking index call.
func (m *Manager) RecordIndexOp(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.indexOps.WithLabelValues(op, outcome).Inc()
	m.indexOpLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordClassification records one per-arena classification run.
func (m *Manager) RecordClassification(promoted, demoted int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.classificationRuns.Inc()
	m.promotions.Add(float64(promoted))
	m.demotions.Add(float64(demoted))
	m.classificationDuration.Observe(elapsed.Seconds())
}

// RecordJobRun records one scheduled job run.
func (m *Manager) RecordJobRun(job string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// RecordTrackerRequest records one activity source request outcome.
func (m *Manager) RecordTrackerRequest(outcome string) {
	if m == nil {
		return
	}
	m.trackerResults.WithLabelValues(outcome).Inc()
}
