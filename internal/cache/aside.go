package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// fillTimeout bounds a shared fill once it no longer follows any caller's
// cancellation.
const fillTimeout = 30 * time.Second

var flights singleflight.Group

// Aside returns the cached value for key or computes it with fetch and
// stores it for ttl. Concurrent misses on the same key share one fetch.
// fetch errors are returned and nothing is cached.
//
// The shared fetch runs detached from the caller that started it, so one
// cancelled request never fails the others waiting on the same key. Each
// caller still returns as soon as its own ctx is done.
func Aside[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var out T
	if c == nil {
		return fetch(ctx)
	}
	if c.Get(ctx, key, &out) {
		return out, nil
	}

	ch := flights.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		val, err := fetch(fillCtx)
		if err != nil {
			return nil, err
		}
		c.Set(fillCtx, key, val, ttl)
		return val, nil
	})

	select {
	case <-ctx.Done():
		return out, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return out, res.Err
		}
		return res.Val.(T), nil
	}
}
