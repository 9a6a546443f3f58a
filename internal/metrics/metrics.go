// Package metrics provides Prometheus metrics for the analyst service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by final status and executor kind.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "runs_total",
			Help:      "Total number of crew runs by final status",
		},
		[]string{"status", "executor"}, // status: "completed", "error"; executor: "crew", "simulated"
	)

	// RunsActive tracks currently executing runs.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "runs_active",
			Help:      "Number of crew runs currently executing",
		},
	)

	// RunDuration tracks end-to-end run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "run_duration_seconds",
			Help:      "Crew run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// StageDuration tracks how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	// EventsTotal counts events appended to run logs by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "events_total",
			Help:      "Total number of events appended to run logs",
		},
		[]string{"type"},
	)

	// EventsDropped counts events that were not appended or not forwarded.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped",
		},
		[]string{"reason"}, // "complete", "sink_full", "sink_error"
	)

	// ToolCallsTotal counts crew tool invocations by tool and result.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "tool_calls_total",
			Help:      "Total number of crew tool invocations",
		},
		[]string{"tool", "result"}, // result: "success", "fallback", "error"
	)

	// ReconcileTotal counts report reconciliation outcomes by winning source.
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "reconcile_total",
			Help:      "Report reconciliation outcomes by selected source",
		},
		[]string{"source"}, // "file", "result", "stream", "none"
	)

	// StreamActiveConnections tracks open WebSocket and SSE stream consumers.
	StreamActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "stream_connections_active",
			Help:      "Number of active stream consumers",
		},
		[]string{"transport"}, // "websocket", "sse"
	)

	// StreamConnectionDuration tracks how long stream consumers stay connected.
	StreamConnectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "stream_connection_duration_seconds",
			Help:      "Stream connection duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"transport"},
	)

	// StreamMessagesTotal counts messages written to stream consumers.
	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "stream_messages_total",
			Help:      "Total number of messages written to stream consumers",
		},
		[]string{"transport"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ArtifactUploads counts artifact mirror uploads by result.
	ArtifactUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "analyst",
			Name:      "artifact_uploads_total",
			Help:      "Total number of artifact mirror uploads",
		},
		[]string{"result"},
	)
)
