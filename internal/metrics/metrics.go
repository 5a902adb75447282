// Package metrics exposes Prometheus collectors for the crawler, merge pipeline and API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiCallsTotal              *prometheus.CounterVec
	apiCallDurationSeconds     *prometheus.HistogramVec
	throttleWaitSeconds        prometheus.Histogram
	pacingWaitSeconds          prometheus.Histogram
	mergeOutcomesTotal         *prometheus.CounterVec
	frontierItems              *prometheus.GaugeVec
	normalizeWarningsTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riftlens_api_calls_total",
				Help: "Total number of telemetry API calls, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		apiCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riftlens_api_call_duration_seconds",
				Help:    "Histogram of telemetry API call latencies, labeled by operation.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"op"},
		)

		throttleWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riftlens_throttle_wait_seconds",
				Help:    "Histogram of time spent waiting for the quota window to reset.",
				Buckets: []float64{0.1, 1, 5, 15, 30, 60, 121},
			},
		)

		pacingWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riftlens_pacing_wait_seconds",
				Help:    "Histogram of artificial pacing delays between calls.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
		)

		mergeOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riftlens_merge_outcomes_total",
				Help: "Total number of merge operations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		frontierItems = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riftlens_frontier_items",
				Help: "Current size of each crawl frontier set.",
			},
			[]string{"set"},
		)

		normalizeWarningsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riftlens_normalize_warnings_total",
				Help: "Total number of malformed values coerced during normalization, labeled by field.",
			},
			[]string{"field"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riftlens_http_requests_total",
				Help: "Total number of API requests, labeled by method, route pattern and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riftlens_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "riftlens_active_workers",
				Help: "Number of ingest workers currently processing an entity.",
			},
		)
	})
}

// LabelValue normalizes a free-form label value to lowercase, returning
// "unknown" when it is blank.
func LabelValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPICall records one telemetry API call.
func ObserveAPICall(op, result string, duration time.Duration) {
	Init()
	apiCallsTotal.WithLabelValues(LabelValue(op), LabelValue(result)).Inc()
	apiCallDurationSeconds.WithLabelValues(LabelValue(op)).Observe(duration.Seconds())
}

// ObserveThrottleWait records a quota-window wait.
func ObserveThrottleWait(duration time.Duration) {
	Init()
	throttleWaitSeconds.Observe(duration.Seconds())
}

// ObservePacingWait records a pacing delay.
func ObservePacingWait(duration time.Duration) {
	Init()
	pacingWaitSeconds.Observe(duration.Seconds())
}

// ObserveMergeOutcome increments the merge outcome counter.
func ObserveMergeOutcome(outcome string) {
	Init()
	mergeOutcomesTotal.WithLabelValues(LabelValue(outcome)).Inc()
}

// SetFrontierItems publishes the size of a frontier set.
func SetFrontierItems(set string, n int) {
	Init()
	frontierItems.WithLabelValues(LabelValue(set)).Set(float64(n))
}

// ObserveNormalizeWarning increments the coercion warning counter for field.
func ObserveNormalizeWarning(field string) {
	Init()
	normalizeWarningsTotal.WithLabelValues(LabelValue(field)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
