// Package middleware holds the fiber middleware shared by every route: request
// context propagation, access logging, tracing, JWT auth and rate limiting.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"shutter/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals set by this package.
const (
	LocalUserID  = "userID"
	LocalTraceID = "traceID"
)

// ContextMiddleware copies the request id, user id and trace id from fiber
// locals into the request context so service-layer logs carry them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(requestContext(c))
		return c.Next()
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if rid, ok := c.Locals("requestid").(string); ok {
		ctx = context.WithValue(ctx, observability.RequestIDKey, rid)
	}
	if uid, ok := c.Locals(LocalUserID).(uint); ok {
		ctx = observability.WithUserID(ctx, uid)
	}
	if tid, ok := c.Locals(LocalTraceID).(string); ok {
		ctx = context.WithValue(ctx, observability.TraceIDKey, tid)
	}
	return ctx
}

// StructuredLogger logs one record per request. Client errors log at INFO;
// only 5xx responses log at ERROR.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}

		ctx := requestContext(c)
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			if err != nil {
				fields = append(fields, slog.String("error", err.Error()))
			}
			observability.Logger.ErrorContext(ctx, "request failed", fields...)
		default:
			observability.Logger.InfoContext(ctx, "request processed", fields...)
		}
		return err
	}
}
