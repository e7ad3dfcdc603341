// Package metrics exposes Prometheus collectors for the frontier service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	frontierRequestsStoredTotal  *prometheus.CounterVec
	frontierRequestsDroppedTotal *prometheus.CounterVec
	frontierRequestsPoppedTotal  *prometheus.CounterVec
	frontierRejectedTotal        prometheus.Counter
	frontierActiveWorkers        prometheus.Gauge
	frontierWorkerCrashesTotal   prometheus.Counter
	frontierOpDurationSeconds    *prometheus.HistogramVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		frontierRequestsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_requests_stored_total",
				Help: "Total requests persisted to a frontier backend, labeled by spider.",
			},
			[]string{"spider"},
		)

		frontierRequestsDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_requests_dropped_total",
				Help: "Total requests dropped by the transformation pipeline, labeled by spider.",
			},
			[]string{"spider"},
		)

		frontierRequestsPoppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_requests_popped_total",
				Help: "Total requests handed out to fetchers, labeled by spider.",
			},
			[]string{"spider"},
		)

		frontierRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frontier_malformed_requests_total",
				Help: "Total store calls rejected because the value was not a request.",
			},
		)

		frontierActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "frontier_active_workers",
				Help: "Number of live per-job storage workers.",
			},
		)

		frontierWorkerCrashesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frontier_worker_crashes_total",
				Help: "Total storage workers that terminated with an error.",
			},
		)

		frontierOpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontier_op_duration_seconds",
				Help:    "Histogram of forwarded store/pop/stats call latencies.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"op"},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStored increments the stored-request counter for a spider.
func ObserveStored(spider string, n int) {
	frontierRequestsStoredTotal.WithLabelValues(spider).Add(float64(n))
}

// ObserveDropped increments the pipeline-drop counter for a spider.
func ObserveDropped(spider string, n int) {
	frontierRequestsDroppedTotal.WithLabelValues(spider).Add(float64(n))
}

// ObservePopped increments the popped-request counter for a spider.
func ObservePopped(spider string) {
	frontierRequestsPoppedTotal.WithLabelValues(spider).Inc()
}

// ObserveRejected counts a store call rejected as not-a-request.
func ObserveRejected() {
	frontierRejectedTotal.Inc()
}

// IncActiveWorkers increments the live worker gauge.
func IncActiveWorkers() {
	frontierActiveWorkers.Inc()
}

// DecActiveWorkers decrements the live worker gauge.
func DecActiveWorkers() {
	frontierActiveWorkers.Dec()
}

// ObserveWorkerCrash counts a worker that terminated with an error.
func ObserveWorkerCrash() {
	frontierWorkerCrashesTotal.Inc()
}

// ObserveOp records the duration of one forwarded call.
func ObserveOp(op string, duration time.Duration) {
	frontierOpDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
