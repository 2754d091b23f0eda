// Package metrics defines the Prometheus collectors shared by the
// controller and worker processes.
//
// Metric naming follows Prometheus conventions:
//   - tom_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is Tom's private Prometheus registry. A private registry (rather
// than the global default) keeps the controller and worker binaries from
// leaking Go-runtime collectors into each other's /metrics output when they
// share a process in tests.
var Registry = prometheus.NewRegistry()

var (
	// ActiveLeases is the current count of held device gate leases, by
	// device key.
	ActiveLeases = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tom_active_leases",
			Help: "Number of currently held device concurrency leases.",
		},
		[]string{"device_key"},
	)

	// CacheHitsTotal counts response-cache lookups that returned a fresh entry.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tom_cache_hits_total",
			Help: "Total response cache lookups satisfied by a fresh entry.",
		},
	)

	// CacheMissesTotal counts response-cache lookups that found nothing.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tom_cache_misses_total",
			Help: "Total response cache lookups that found no entry.",
		},
	)

	// CacheRefreshesTotal counts commands whose cache lookup was skipped
	// because the request asked for a refresh.
	CacheRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tom_cache_refreshes_total",
			Help: "Total commands re-executed because the request asked for a cache refresh.",
		},
	)

	// CacheBypassTotal counts requests that explicitly bypassed the cache.
	CacheBypassTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tom_cache_bypass_total",
			Help: "Total requests that opted out of the response cache.",
		},
	)

	// JobDurationSeconds is a histogram of end-to-end job duration.
	JobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tom_job_duration_seconds",
			Help:    "End-to-end duration of a job from creation to terminal state.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// QueueDepth is the current number of jobs sitting in QUEUED state.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tom_queue_depth",
			Help: "Number of jobs currently queued and not yet claimed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		ActiveLeases,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheRefreshesTotal,
		CacheBypassTotal,
		JobDurationSeconds,
		QueueDepth,
	)
}

// Handler returns the HTTP handler to mount at /metrics, outside the /api
// namespace so it is reachable regardless of the configured auth mode.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordJobTerminal records the duration of a job that reached a terminal
// status (COMPLETE, FAILED, or ABORTED).
func RecordJobTerminal(status string, duration time.Duration) {
	JobDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// SetActiveLeases sets the held-lease gauge for a device key.
func SetActiveLeases(deviceKey string, count int) {
	ActiveLeases.WithLabelValues(deviceKey).Set(float64(count))
}
