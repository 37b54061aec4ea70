package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trashtalk_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// WebSocketConnections is the gauge of authenticated WebSocket connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trashtalk_websocket_connections",
		Help: "Number of authenticated WebSocket connections",
	})

	// WebSocketRejections counts sockets refused during the handshake.
	WebSocketRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trashtalk_websocket_rejections_total",
		Help: "Total WebSocket connections refused during handshake",
	}, []string{"reason"})

	// WebSocketEventsTotal counts WebSocket events by direction and type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trashtalk_websocket_events_total",
		Help: "Total WebSocket events by direction and type",
	}, []string{"direction", "event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trashtalk_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})

	// NotificationDeliveries counts fan-out deliveries by outcome (live, deferred).
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trashtalk_notification_deliveries_total",
		Help: "Notification recipients by delivery outcome",
	}, []string{"kind", "outcome"})

	// NotificationPublishRetries counts retried publish transactions.
	NotificationPublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trashtalk_notification_publish_retries_total",
		Help: "Total retried notification publish transactions",
	})

	// NotificationFanoutSize records recipient set sizes.
	NotificationFanoutSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trashtalk_notification_fanout_size",
		Help:    "Number of recipients per published notification",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	// LiveStreams is the gauge of live streams.
	LiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trashtalk_live_streams",
		Help: "Number of live streams",
	})

	// StreamViewers is the gauge of viewers across live streams.
	StreamViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trashtalk_stream_viewers",
		Help: "Number of viewers across all live streams",
	})

	// SignalRelays counts signaling messages by kind and outcome.
	SignalRelays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trashtalk_signal_relays_total",
		Help: "Signaling messages by kind and outcome",
	}, []string{"kind", "outcome"})
)
