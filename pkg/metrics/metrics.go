// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages appended to sessions.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages appended, by role",
		},
		[]string{"role"},
	)

	// SessionsCreated tracks new chat sessions.
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_created_total",
			Help: "Chat sessions created",
		},
	)

	// TrialBlocked tracks sends blocked by the trial gate.
	TrialBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trial_gate_blocked_total",
			Help: "Sends blocked by the free trial gate",
		},
	)

	// FallbackResponses tracks responses produced locally after an AI
	// call failure.
	FallbackResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fallback_responses_total",
			Help: "Assistant replies served by the fallback responder",
		},
	)

	// ResponderDuration tracks AI responder call duration.
	ResponderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "responder_duration_seconds",
			Help:    "AI responder call duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// SnapshotsApplied tracks remote snapshots forwarded to the session
	// store.
	SnapshotsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_snapshots_applied_total",
			Help: "Remote snapshots applied, by collection",
		},
		[]string{"collection"},
	)

	// StaleSnapshotsDropped tracks deliveries discarded because their
	// target no longer matched current state.
	StaleSnapshotsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_snapshots_stale_total",
			Help: "Remote snapshots discarded as stale, by collection",
		},
		[]string{"collection"},
	)

	// RemoteWriteFailures tracks mirrored writes that the remote store
	// rejected.
	RemoteWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_remote_write_failures_total",
			Help: "Remote upserts that failed, by kind",
		},
		[]string{"kind"},
	)

	// WatchesActive tracks live remote subscriptions.
	WatchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_watches_active",
			Help: "Live remote store subscriptions",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordResponder records an AI responder call.
func RecordResponder(provider, status string, duration float64) {
	ResponderDuration.WithLabelValues(provider, status).Observe(duration)
}
