package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shutter/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultQueryTimeout bounds every Redis round trip made by RedisBackend.
	DefaultQueryTimeout = 5 * time.Second
	scanCount           = 1000
	deleteBatch         = 500
)

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// NewRedisClient connects to addr (host:port or a redis:// URL) and pings it.
// The client is returned even when the ping fails so that callers can decide
// whether to run without the shared tier.
func NewRedisClient(addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	client.AddHook(metricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisBackend is the shared tier.
type RedisBackend struct {
	client       *redis.Client
	queryTimeout time.Duration
}

// NewRedisBackend wraps client. A nil client yields a backend whose every
// operation fails with ErrUnavailable.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, queryTimeout: DefaultQueryTimeout}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

func (r *RedisBackend) Get(ctx context.Context, key string, dest any) (bool, error) {
	if r.client == nil {
		return false, ErrUnavailable
	}
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := decode(data, dest); err != nil {
		// Corrupt or incompatible payload: treat as a miss and drop it.
		observability.Logger.WarnContext(ctx, "evicting undecodable cache entry",
			slog.String("key", key), slog.String("error", err.Error()))
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return false, delErr
		}
		return false, nil
	}
	return true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if r.client == nil {
		return ErrUnavailable
	}
	payload, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Set(ctx, key, payload, effectiveTTL(ttl)).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return ErrUnavailable
	}
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Del(ctx, key).Err()
}

// DeleteByPattern walks the keyspace with SCAN MATCH and deletes in batches.
func (r *RedisBackend) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return ErrUnavailable
	}
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()

	batch := make([]string, 0, deleteBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == deleteBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return flush()
}

func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return false, ErrUnavailable
	}
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Expire maps to EXPIRE, which leaves absent keys untouched.
func (r *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if r.client == nil {
		return ErrUnavailable
	}
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Expire(ctx, key, effectiveTTL(ttl)).Err()
}
