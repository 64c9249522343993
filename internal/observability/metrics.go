package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations counts cache operations by tier, operation and result
	// (hit, miss, ok, error).
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_cache_operations_total",
		Help: "Total cache operations by tier, operation and result",
	}, []string{"tier", "op", "result"})

	// CacheDegradedWrites counts writes that landed on a fallback tier.
	CacheDegradedWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_cache_degraded_writes_total",
		Help: "Cache writes served by a fallback tier after the primary tier failed",
	}, []string{"tier"})

	// RedisErrors counts Redis command errors other than redis.Nil.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_redis_errors_total",
		Help: "Total number of Redis command errors by command",
	}, []string{"command"})

	// SideEffectFailures counts post-commit listener failures.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_side_effect_failures_total",
		Help: "Post-commit side effects that failed and were absorbed",
	}, []string{"listener", "event"})

	// SearchRequests counts search index calls by operation and result.
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_search_requests_total",
		Help: "Search index operations by operation and result",
	}, []string{"op", "result"})

	// RecommendRequests counts recommendation lookups by result
	// (ok, empty, error).
	RecommendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_recommend_requests_total",
		Help: "Recommendation collaborator calls by result",
	}, []string{"result"})

	// WebSocketDrops counts notification frames dropped on slow clients.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_websocket_drops_total",
		Help: "Websocket messages dropped by reason",
	}, []string{"reason"})

	// ActiveWebSockets tracks currently connected notification streams.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shutter_websocket_connections",
		Help: "Open notification websocket connections",
	})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"route"})
)
