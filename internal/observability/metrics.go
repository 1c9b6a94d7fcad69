package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhub_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of active subscriber connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedhub_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhub_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// PostMutations counts committed post mutations by action.
	PostMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhub_post_mutations_total",
		Help: "Total number of committed post mutations",
	}, []string{"action"})

	// EventsBroadcast counts mutation events handed to the notifier by transport.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhub_events_broadcast_total",
		Help: "Total number of mutation events broadcast",
	}, []string{"transport"})

	// AttachmentOperations counts attachment store/delete outcomes.
	AttachmentOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhub_attachment_operations_total",
		Help: "Total number of attachment operations by result",
	}, []string{"operation", "result"})

	// AsyncTaskFailures counts failed detached tasks by operation.
	AsyncTaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhub_async_task_failures_total",
		Help: "Total number of failed background tasks",
	}, []string{"operation"})
)
