package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfstamp",
			Name:      "merges_total",
			Help:      "Total merge operations by result (success, invalid, failed)",
		},
		[]string{"result"},
	)

	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pdfstamp",
			Name:      "merge_duration_seconds",
			Help:      "Duration of complete merge operations",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pagesComposed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfstamp",
			Name:      "pages_composed_total",
			Help:      "Total output pages stamped",
		},
	)

	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfstamp",
			Name:      "render_duration_seconds",
			Help:      "Duration of page rasterization by document role",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	cleanupRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfstamp",
			Name:      "cleanup_retries_total",
			Help:      "Scratch file removals retried because the file was locked",
		},
	)

	cleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfstamp",
			Name:      "cleanup_failures_total",
			Help:      "Scratch files left behind after all removal attempts",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfstamp",
			Name:      "active_sessions",
			Help:      "Sessions currently held by the session manager",
		},
	)

	initOnce sync.Once
)

// Init registers collectors.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(mergesTotal, mergeDuration, pagesComposed, renderDuration, cleanupRetries, cleanupFailures, activeSessions)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveMerge(result string, pages int, dur time.Duration) {
	mergesTotal.WithLabelValues(result).Inc()
	mergeDuration.Observe(dur.Seconds())
	if result == "success" {
		pagesComposed.Add(float64(pages))
	}
}

func ObserveRender(role string, dur time.Duration) {
	renderDuration.WithLabelValues(role).Observe(dur.Seconds())
}

func IncCleanupRetry()        { cleanupRetries.Inc() }
func IncCleanupFailure()      { cleanupFailures.Inc() }
func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }
