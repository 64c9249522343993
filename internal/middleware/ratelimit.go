package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shutter/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter in Redis. When Redis is unreachable
// requests are let through.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewRateLimiter returns a limiter; a nil client or enabled=false turns every
// check into an allow.
func NewRateLimiter(rdb *redis.Client, enabled bool) *RateLimiter {
	return &RateLimiter{rdb: rdb, enabled: enabled && rdb != nil}
}

// Allow counts one hit for id on resource and reports whether it is within
// limit for the current window.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if l == nil || !l.enabled || limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("rl:%s:%s", resource, id)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return true, err
		}
	}
	return count <= int64(limit), nil
}

// Handler limits requests per authenticated user, or per client IP for
// anonymous requests, under the given resource name.
func (l *RateLimiter) Handler(resource string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid := UserID(c); uid != 0 {
			id = fmt.Sprintf("user:%d", uid)
		}

		allowed, err := l.Allow(c.UserContext(), resource, id, limit, window)
		if err != nil && !errors.Is(err, context.Canceled) {
			observability.Logger.WarnContext(c.UserContext(), "rate limiter unavailable, allowing request",
				slog.String("resource", resource),
				slog.String("error", err.Error()))
		}
		if !allowed {
			observability.RateLimitRejections.WithLabelValues(resource).Inc()
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
