// Package metrics provides Prometheus metrics for the Fern bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal tracks inbound Commonly events by type and outcome
	// (dispatched, direct_post, ignored, dropped).
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "total",
			Help:      "Total number of inbound events by type and outcome",
		},
		[]string{"account_id", "event_type", "outcome"},
	)

	// EventHandlersInFlight tracks events currently being processed.
	EventHandlersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "handlers_in_flight",
			Help:      "Number of inbound events currently being processed",
		},
	)

	// DeliveriesTotal tracks outbound reply deliveries by kind and status.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "delivery",
			Name:      "total",
			Help:      "Total number of outbound reply deliveries by kind and status",
		},
		[]string{"account_id", "kind", "status"},
	)

	// AcksTotal tracks event acknowledgments by status.
	AcksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "acks_total",
			Help:      "Total number of event acknowledgments by status",
		},
		[]string{"account_id", "status"},
	)

	// SocketReconnectsTotal tracks push connection (re)connects.
	SocketReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "socket",
			Name:      "reconnects_total",
			Help:      "Total number of push connection establishments",
		},
		[]string{"account_id"},
	)

	// SocketConnected reports whether the push connection is currently up.
	SocketConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "socket",
			Name:      "connected",
			Help:      "Whether the push connection is currently established (1 or 0)",
		},
		[]string{"account_id"},
	)

	// RemoteRequestsTotal tracks outbound HTTP requests to Commonly.
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "remote_api",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests to the remote API",
		},
		[]string{"method", "status_code"},
	)

	// RemoteRequestDuration tracks outbound HTTP request duration.
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "remote_api",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// PollerEventsTotal tracks events recovered by the catch-up poller.
	PollerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "poller",
			Name:      "events_total",
			Help:      "Total number of events recovered by the catch-up poller",
		},
		[]string{"account_id", "status"},
	)
)

// RecordEvent records an inbound event outcome.
func RecordEvent(accountID, eventType, outcome string) {
	EventsTotal.WithLabelValues(accountID, eventType, outcome).Inc()
}

// RecordDelivery records an outbound reply delivery.
func RecordDelivery(accountID, kind, status string) {
	DeliveriesTotal.WithLabelValues(accountID, kind, status).Inc()
}

// RecordAck records an event acknowledgment attempt.
func RecordAck(accountID, status string) {
	AcksTotal.WithLabelValues(accountID, status).Inc()
}

// RecordPollerEvent records one event seen by the catch-up poller.
func RecordPollerEvent(accountID, status string) {
	PollerEventsTotal.WithLabelValues(accountID, status).Inc()
}

// RecordRemoteRequest records one outbound HTTP request to the remote API.
func RecordRemoteRequest(method string, statusCode int, duration time.Duration) {
	RemoteRequestsTotal.WithLabelValues(method, statusText(statusCode)).Inc()
	RemoteRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func statusText(code int) string {
	switch {
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
