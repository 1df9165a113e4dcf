// Package metrics exposes Prometheus collectors for the hiscore crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	retryAttemptsTotal         *prometheus.CounterVec
	retryFailuresTotal         *prometheus.CounterVec
	stageCursor                *prometheus.GaugeVec
	stageEmittedTotal          *prometheus.CounterVec
	stageQueueDepth            *prometheus.GaugeVec
	activeWorkers              *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	sinkItemsTotal             *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscore_fetches_total",
				Help: "Total number of remote fetches, labeled by kind (page, user) and outcome.",
			},
			[]string{"kind", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hiscore_fetch_duration_seconds",
				Help:    "Histogram of remote fetch latencies, labeled by kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		retryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscore_retry_attempts_total",
				Help: "Total number of failed attempts that were retried, labeled by call.",
			},
			[]string{"call"},
		)

		retryFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscore_retry_failures_total",
				Help: "Total number of calls that exhausted their retries, labeled by call.",
			},
			[]string{"call"},
		)

		stageCursor = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hiscore_stage_cursor",
				Help: "Current release cursor of each pipeline stage.",
			},
			[]string{"stage"},
		)

		stageEmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscore_stage_emitted_total",
				Help: "Total number of jobs released by each stage, labeled by outcome.",
			},
			[]string{"stage", "outcome"},
		)

		stageQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hiscore_stage_queue_depth",
				Help: "Pending jobs in each stage's input queue.",
			},
			[]string{"stage"},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hiscore_active_workers",
				Help: "Number of workers currently running, labeled by stage.",
			},
			[]string{"stage"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hiscore_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		sinkItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscore_sink_items_total",
				Help: "Total number of items consumed by output sinks, labeled by outcome (written, skipped).",
			},
			[]string{"outcome"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one remote fetch outcome.
func ObserveFetch(kind, status string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(kind, status).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRetryAttempt counts a failed attempt that will be retried.
func ObserveRetryAttempt(call string) {
	Init()
	retryAttemptsTotal.WithLabelValues(call).Inc()
}

// ObserveRetryFailure counts a call that exhausted its retries.
func ObserveRetryFailure(call string) {
	Init()
	retryFailuresTotal.WithLabelValues(call).Inc()
}

// SetStageCursor publishes a stage's release cursor.
func SetStageCursor(stage string, value int) {
	Init()
	stageCursor.WithLabelValues(stage).Set(float64(value))
}

// ObserveStageRelease counts a released job; outcome is "emitted" or "skipped".
func ObserveStageRelease(stage, outcome string) {
	Init()
	stageEmittedTotal.WithLabelValues(stage, outcome).Inc()
}

// SetQueueDepth publishes a stage's pending job count.
func SetQueueDepth(stage string, depth int) {
	Init()
	stageQueueDepth.WithLabelValues(stage).Set(float64(depth))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers(stage string) {
	Init()
	activeWorkers.WithLabelValues(stage).Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers(stage string) {
	Init()
	activeWorkers.WithLabelValues(stage).Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveSinkItem counts an item consumed by an output sink.
func ObserveSinkItem(outcome string) {
	Init()
	sinkItemsTotal.WithLabelValues(outcome).Inc()
}
