// Package metrics provides Prometheus metrics for the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by envelope outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "jobs_total",
			Help:      "Total number of jobs by final outcome",
		},
		[]string{"outcome"}, // "ok" or an error code
	)

	// JobsActive tracks invocations currently in flight.
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "jobs_active",
			Help:      "Number of invocations currently in flight",
		},
	)

	// JobDuration tracks end-to-end invocation duration.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "job_duration_seconds",
			Help:      "End-to-end job duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"outcome"},
	)

	// EventsTotal counts events consumed from the server's channel by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "events_total",
			Help:      "Total number of job events consumed",
		},
		[]string{"type"},
	)

	// ListenerConnections tracks open event channels.
	ListenerConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "listener_connections",
			Help:      "Number of open event channel connections",
		},
	)

	// ArtifactsTotal counts artifact encodings by delivery backend and result.
	ArtifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "artifacts_total",
			Help:      "Total number of artifact encodings",
		},
		[]string{"delivery", "result"}, // result: "ok", "fetch_error", "deliver_error"
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runpod",
			Subsystem: "comfy_worker",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
