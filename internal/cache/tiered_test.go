package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend fails every operation, standing in for a dead shared tier.
type failingBackend struct {
	calls map[string]int
}

func newFailingBackend() *failingBackend {
	return &failingBackend{calls: map[string]int{}}
}

var errDown = errors.New("connection refused")

func (f *failingBackend) Name() string { return "failing" }
func (f *failingBackend) Get(context.Context, string, any) (bool, error) {
	f.calls["get"]++
	return false, errDown
}
func (f *failingBackend) Set(context.Context, string, any, time.Duration) error {
	f.calls["set"]++
	return errDown
}
func (f *failingBackend) Delete(context.Context, string) error {
	f.calls["delete"]++
	return errDown
}
func (f *failingBackend) DeleteByPattern(context.Context, string) error {
	f.calls["delete_pattern"]++
	return errDown
}
func (f *failingBackend) Exists(context.Context, string) (bool, error) {
	f.calls["exists"]++
	return false, errDown
}
func (f *failingBackend) Expire(context.Context, string, time.Duration) error {
	f.calls["expire"]++
	return errDown
}

func newTieredWithRedis(t *testing.T) (*Tiered, *miniredis.Miniredis, *MemoryBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	local := NewMemoryBackend(100)
	return NewTiered(0, NewRedisBackend(client), local), mr, local
}

func TestTiered_WriteThroughToSharedOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr, local := newTieredWithRedis(t)

	c.Set(ctx, "k", sample{ID: 1}, time.Minute)

	assert.True(t, mr.Exists("k"))
	assert.Equal(t, 0, local.Len(), "local tier untouched while shared tier is healthy")

	var got sample
	assert.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, uint(1), got.ID)
}

func TestTiered_DefaultTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr, _ := newTieredWithRedis(t)

	c.Set(ctx, "k", "v", 0)
	assert.Equal(t, time.Hour, mr.TTL("k"))
}

func TestTiered_SharedFailureFallsBackToLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr, local := newTieredWithRedis(t)
	mr.SetError("ERR shared tier down")

	assert.NotPanics(t, func() { c.Set(ctx, "k", sample{ID: 2}, time.Minute) })
	assert.Equal(t, 1, local.Len(), "degraded write lands in the local tier")

	var got sample
	assert.True(t, c.Get(ctx, "k", &got), "read falls through the failing shared tier")
	assert.Equal(t, uint(2), got.ID)
	assert.True(t, c.Exists(ctx, "k"))
}

func TestTiered_SharedMissFallsThroughToLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, local := newTieredWithRedis(t)
	require.NoError(t, local.Set(ctx, "k", "local", time.Minute))

	var got string
	assert.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "local", got)
}

func TestTiered_SharedHitWinsOverLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, local := newTieredWithRedis(t)
	require.NoError(t, local.Set(ctx, "k", "local", time.Minute))
	c.Set(ctx, "k", "shared", time.Minute)

	var got string
	assert.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "shared", got)
}

func TestTiered_DeleteFansOutDespiteErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	failing := newFailingBackend()
	local := NewMemoryBackend(100)
	c := NewTiered(time.Hour, failing, local)

	require.NoError(t, local.Set(ctx, "autocomplete:abc", "v", time.Minute))
	require.NoError(t, local.Set(ctx, "k", "v", time.Minute))

	c.DeleteByPattern(ctx, "autocomplete:ab*")
	c.Delete(ctx, "k")

	assert.Equal(t, 0, local.Len(), "local tier invalidated although the shared tier failed")
	assert.Equal(t, 1, failing.calls["delete_pattern"])
	assert.Equal(t, 1, failing.calls["delete"])
}

func TestTiered_ClosedSharedTierNeverRaises(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr, _ := newTieredWithRedis(t)
	mr.Close()

	assert.NotPanics(t, func() {
		c.Set(ctx, "k", "v", time.Minute)
		var got string
		assert.True(t, c.Get(ctx, "k", &got))
		c.Expire(ctx, "k", time.Hour)
		c.Delete(ctx, "k")
		c.DeleteByPattern(ctx, "*")
		assert.False(t, c.Exists(ctx, "k"))
	})
}

func TestTiered_TotalMiss(t *testing.T) {
	t.Parallel()
	c := NewTiered(0, newFailingBackend(), NewMemoryBackend(10))
	var got string
	assert.False(t, c.Get(context.Background(), "nope", &got))
}
