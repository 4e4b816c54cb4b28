// Package metrics provides Prometheus metrics for the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of open sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Number of currently open chat sessions",
		},
	)

	// OnlineIdentities tracks the number of identities in the presence registry.
	OnlineIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_identities",
			Help: "Number of identities with a live session",
		},
	)

	// SessionsSuperseded counts sessions evicted by a newer session of the same identity.
	SessionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_superseded_total",
			Help: "Total number of sessions closed because the identity reconnected",
		},
	)

	// InboundEvents counts decoded inbound events by name.
	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_inbound_events_total",
			Help: "Total number of inbound events",
		},
		[]string{"event"},
	)

	// InboundRejected counts inbound frames dropped before dispatch.
	InboundRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_inbound_rejected_total",
			Help: "Total number of inbound frames rejected before dispatch",
		},
		[]string{"reason"},
	)

	// OutboundDropped counts frames dropped because a session queue was full.
	OutboundDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_outbound_dropped_total",
			Help: "Total number of outbound frames dropped on full session queues",
		},
	)

	// FanoutRecipients observes how many sessions each broadcast reached.
	FanoutRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_fanout_recipients",
			Help:    "Number of sessions reached per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// MessageOperations counts lifecycle operations by operation and outcome.
	MessageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_message_operations_total",
			Help: "Total number of message lifecycle operations",
		},
		[]string{"operation", "outcome"},
	)

	// PersistenceDuration tracks store call latency by operation.
	PersistenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_persistence_duration_seconds",
			Help:    "Duration of message store calls",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
		[]string{"operation"},
	)
)

// RecordSessionOpened increments session metrics.
func RecordSessionOpened() {
	ActiveSessions.Inc()
}

// RecordSessionClosed decrements session metrics.
func RecordSessionClosed() {
	ActiveSessions.Dec()
}

// RecordOperation records the outcome of a lifecycle operation.
func RecordOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	MessageOperations.WithLabelValues(operation, outcome).Inc()
}
