// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ContentCreated counts posts and reels created.
	ContentCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oristagram_content_created_total",
		Help: "Total number of posts and reels created",
	}, []string{"kind"})

	// EngagementEvents counts like/mark/comment actions by target kind.
	EngagementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oristagram_engagement_events_total",
		Help: "Total engagement actions by action and target",
	}, []string{"action", "target"})

	// FollowEvents counts follow and unfollow actions.
	FollowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oristagram_follow_events_total",
		Help: "Total follow graph mutations",
	}, []string{"action"})

	// MediaUploads counts validated uploads by kind and outcome.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oristagram_media_uploads_total",
		Help: "Total media uploads by kind and result",
	}, []string{"kind", "result"})

	// FeedComposeDuration records compose_feed latency.
	FeedComposeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oristagram_feed_compose_seconds",
		Help:    "Time spent composing a user's feed",
		Buckets: prometheus.DefBuckets,
	})

	// ChatMessages counts chat messages persisted, by entry point.
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oristagram_chat_messages_total",
		Help: "Total chat messages persisted",
	}, []string{"source"})

	// WebSocketRoomConnections is the gauge of local connections across all chat rooms.
	WebSocketRoomConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oristagram_websocket_room_connections",
		Help: "Number of WebSocket connections joined to chat rooms",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oristagram_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)
