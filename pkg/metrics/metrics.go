package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PendingJobs      prometheus.Gauge
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram

	OptimizationRoundsTotal     prometheus.Counter
	OptimizationBytesSavedTotal prometheus.Counter

	ChunkSessionsTotal  *prometheus.CounterVec
	CapturesStoredTotal prometheus.Counter
)

func Init() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	PendingJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_jobs",
			Help: "Current number of delivery jobs waiting in the queue.",
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of delivery attempts.",
		},
		[]string{"status", "error_type"}, // status: success, failure
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Duration of capture delivery attempts.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	OptimizationRoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optimization_rounds_total",
			Help: "Total optimization rounds run across all captures.",
		},
	)

	OptimizationBytesSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optimization_bytes_saved_total",
			Help: "Total bytes removed from payloads by the optimizer.",
		},
	)

	ChunkSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunk_sessions_total",
			Help: "Total chunk transfer sessions by outcome.",
		},
		[]string{"status"}, // status: complete, incomplete, malformed, evicted
	)

	CapturesStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captures_stored_total",
			Help: "Total captures durably stored by the handoff server.",
		},
	)
}
