// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal            *prometheus.CounterVec
	conversationsTotal     *prometheus.CounterVec
	cycleDurationSeconds   prometheus.Histogram
	consecutiveErrorsGauge prometheus.Gauge
	schedulerRunningGauge  prometheus.Gauge
	httpRequestsTotal      *prometheus.CounterVec
	httpDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddichain_cycles_total",
				Help: "Total number of fetch cycles, labeled by trigger and outcome.",
			},
			[]string{"trigger", "outcome"},
		)

		conversationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddichain_conversations_total",
				Help: "Total number of conversations handled, labeled by result.",
			},
			[]string{"result"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "buddichain_cycle_duration_seconds",
				Help:    "Histogram of fetch cycle durations.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		)

		consecutiveErrorsGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "buddichain_consecutive_errors",
				Help: "Number of consecutive failing cycles.",
			},
		)

		schedulerRunningGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "buddichain_scheduler_running",
				Help: "1 when the scheduler run loop is active, 0 otherwise.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records the outcome and duration of a fetch cycle.
func ObserveCycle(trigger, outcome string, duration time.Duration) {
	cyclesTotal.WithLabelValues(trigger, outcome).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveConversations adds to the per-result conversation counters.
func ObserveConversations(processed, skipped, failed int) {
	if processed > 0 {
		conversationsTotal.WithLabelValues("processed").Add(float64(processed))
	}
	if skipped > 0 {
		conversationsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
	if failed > 0 {
		conversationsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// SetConsecutiveErrors updates the consecutive-error gauge.
func SetConsecutiveErrors(n int) {
	consecutiveErrorsGauge.Set(float64(n))
}

// SetSchedulerRunning flips the scheduler-running gauge.
func SetSchedulerRunning(running bool) {
	if running {
		schedulerRunningGauge.Set(1)
		return
	}
	schedulerRunningGauge.Set(0)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, statusText(code)).Inc()
	httpDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusText(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
