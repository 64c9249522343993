package cache

import (
	"context"
	"log/slog"
	"time"

	"shutter/internal/observability"
)

// Tiered chains backends in priority order (shared tier first, in-process
// tier last).
//
// Reads return the first hit; an erroring or missing tier falls through to
// the next. Writes go to the first tier that accepts them, so a local write
// only happens when the shared tier is failing and is then visible to this
// instance alone. Deletes fan out to every tier regardless of errors.
type Tiered struct {
	tiers      []Backend
	defaultTTL time.Duration
	logger     *slog.Logger
}

var _ Cache = (*Tiered)(nil)

// NewTiered builds the chain. defaultTTL <= 0 selects DefaultTTL.
func NewTiered(defaultTTL time.Duration, tiers ...Backend) *Tiered {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Tiered{tiers: tiers, defaultTTL: defaultTTL, logger: observability.Logger}
}

// Tiers returns the backends in priority order.
func (t *Tiered) Tiers() []Backend {
	return t.tiers
}

func (t *Tiered) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return t.defaultTTL
	}
	return ttl
}

func (t *Tiered) record(tier Backend, op, result string) {
	observability.CacheOperations.WithLabelValues(tier.Name(), op, result).Inc()
}

func (t *Tiered) warn(ctx context.Context, tier Backend, op, key string, err error) {
	t.record(tier, op, "error")
	t.logger.WarnContext(ctx, "cache tier failed",
		slog.String("tier", tier.Name()),
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

func (t *Tiered) Get(ctx context.Context, key string, dest any) bool {
	for _, tier := range t.tiers {
		hit, err := tier.Get(ctx, key, dest)
		if err != nil {
			t.warn(ctx, tier, "get", key, err)
			continue
		}
		if hit {
			t.record(tier, "get", "hit")
			return true
		}
		t.record(tier, "get", "miss")
	}
	return false
}

func (t *Tiered) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	ttl = t.ttl(ttl)
	for i, tier := range t.tiers {
		err := tier.Set(ctx, key, value, ttl)
		if err == nil {
			t.record(tier, "set", "ok")
			if i > 0 {
				observability.CacheDegradedWrites.WithLabelValues(tier.Name()).Inc()
				t.logger.WarnContext(ctx, "cache write degraded to fallback tier",
					slog.String("tier", tier.Name()), slog.String("key", key))
			}
			return
		}
		t.warn(ctx, tier, "set", key, err)
	}
}

func (t *Tiered) Delete(ctx context.Context, key string) {
	for _, tier := range t.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			t.warn(ctx, tier, "delete", key, err)
			continue
		}
		t.record(tier, "delete", "ok")
	}
}

func (t *Tiered) DeleteByPattern(ctx context.Context, pattern string) {
	for _, tier := range t.tiers {
		if err := tier.DeleteByPattern(ctx, pattern); err != nil {
			t.warn(ctx, tier, "delete_pattern", pattern, err)
			continue
		}
		t.record(tier, "delete_pattern", "ok")
	}
}

func (t *Tiered) Exists(ctx context.Context, key string) bool {
	for _, tier := range t.tiers {
		ok, err := tier.Exists(ctx, key)
		if err != nil {
			t.warn(ctx, tier, "exists", key, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (t *Tiered) Expire(ctx context.Context, key string, ttl time.Duration) {
	ttl = t.ttl(ttl)
	for _, tier := range t.tiers {
		if err := tier.Expire(ctx, key, ttl); err != nil {
			t.warn(ctx, tier, "expire", key, err)
		}
	}
}
