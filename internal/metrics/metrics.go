package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshchat_connections_active",
			Help: "WebSocket connections currently registered on this node",
		},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshchat_connections_rejected_total",
			Help: "Connections rejected at handshake",
		},
		[]string{"reason"}, // "auth" or "capacity"
	)

	// Routing metrics
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshchat_messages_routed_total",
			Help: "Envelopes accepted at ingress on this node",
		},
		[]string{"kind"}, // "text" or "file"
	)

	LocalDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshchat_local_deliveries_total",
			Help: "Socket writes delivered to locally registered recipients",
		},
	)

	// Bus metrics
	BusPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshchat_bus_published_total",
			Help: "Envelopes published to the fan-out bus",
		},
	)

	BusPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshchat_bus_publish_failures_total",
			Help: "Bus publishes that failed after all retry attempts",
		},
	)

	BusReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshchat_bus_received_total",
			Help: "Frames received from the fan-out bus",
		},
		[]string{"result"}, // "delivered", "echo", "duplicate", "no_local"
	)

	// Quota metrics
	QuotaDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshchat_quota_denied_total",
			Help: "Send attempts denied by the quota gate",
		},
		[]string{"reason"}, // "message_limit" or "file_too_large"
	)

	// Persistence metrics
	PersistDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshchat_persist_dropped_total",
			Help: "Envelopes dropped from the persistence queue",
		},
	)

	PersistLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshchat_persist_latency_seconds",
			Help:    "Durable store write latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshchat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshchat_rate_limit_hits_total",
			Help: "Total HTTP rate limit hits",
		},
		[]string{"endpoint"},
	)
)
