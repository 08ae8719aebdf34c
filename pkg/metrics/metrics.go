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

	// CompletionDuration tracks completion service latency.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_completion_duration_seconds",
			Help:    "Completion service call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"purpose", "outcome"},
	)

	// CompletionTokensTotal tracks tokens exchanged with the completion service.
	CompletionTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_completion_tokens_total",
			Help: "Total completion tokens processed",
		},
		[]string{"direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"hours"},
	)

	// MessagesTotal tracks messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role", "visibility"},
	)

	// LifecycleTransitionsTotal tracks close/reopen/snooze/unsnooze/merge.
	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_lifecycle_transitions_total",
			Help: "Conversation lifecycle transitions",
		},
		[]string{"transition"},
	)

	// HandoffsTotal tracks AI-to-human handoffs.
	HandoffsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_handoffs_total",
			Help: "Conversations escalated to a human by the assistant",
		},
	)

	// AssignmentsTotal tracks assignments by source.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_assignments_total",
			Help: "Conversation assignments",
		},
		[]string{"source"},
	)

	// DroppedRepliesTotal tracks assistant replies discarded because their
	// conversation was closed or removed while the call was in flight.
	DroppedRepliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_dropped_replies_total",
			Help: "Assistant replies dropped for stale conversations",
		},
	)

	// ConversationsOpen tracks open conversations after each sweep.
	ConversationsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_conversations_open",
			Help: "Open conversations in the working set",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records metrics for one completion call.
func RecordCompletion(purpose, outcome string, duration float64, tokensIn, tokensOut int) {
	CompletionDuration.WithLabelValues(purpose, outcome).Observe(duration)
	CompletionTokensTotal.WithLabelValues("in").Add(float64(tokensIn))
	CompletionTokensTotal.WithLabelValues("out").Add(float64(tokensOut))
}

// RecordTransition counts a lifecycle transition.
func RecordTransition(transition string) {
	LifecycleTransitionsTotal.WithLabelValues(transition).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
