// Package cache implements the tiered cache: a shared Redis tier in front of
// a bounded in-process tier, behind one never-failing Cache facade.
package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL applies whenever a caller passes ttl <= 0.
const DefaultTTL = time.Hour

// ErrUnavailable is returned by a backend that has no live connection.
var ErrUnavailable = errors.New("cache: backend unavailable")

// Backend is the contract every cache tier implements. Backends report
// failures; the Tiered service decides what to do with them.
type Backend interface {
	Name() string
	// Get decodes the entry for key into dest. A missing, expired or
	// undecodable entry reports false; undecodable entries are evicted.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPattern removes every key matching a Redis-style glob.
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Expire resets the TTL of an existing key and is a no-op for absent keys.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Cache is the facade used by services. Implementations never fail: reads
// degrade to a miss and writes/invalidations log and continue.
type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
	DeleteByPattern(ctx context.Context, pattern string)
	Exists(ctx context.Context, key string) bool
	Expire(ctx context.Context, key string, ttl time.Duration)
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// Values are msgpack-encoded using their json struct tags, so API views can
// be cached without a second set of tags.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, dest any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(dest)
}
