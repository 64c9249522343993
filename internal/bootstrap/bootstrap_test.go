package bootstrap

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"shutter/internal/config"
	"shutter/internal/search"
	"shutter/internal/service"
	"shutter/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                  "test",
		Port:                 "0",
		JWTSecret:            "bootstrap-test-secret-long-enough",
		JWTIssuer:            "shutter-test",
		JWTTTLHours:          1,
		DBDriver:             "sqlite",
		CacheDefaultTTL:      time.Hour,
		CacheLocalSize:       100,
		SearchBreakerTimeout: time.Second,
		BlobDriver:           "local",
		UploadDir:            t.TempDir(),
		PublicBaseURL:        "http://localhost/uploads",
		AvatarMaxSizeMB:      1,
	}
}

func TestBuild_WiresTiersAndListeners(t *testing.T) {
	t.Parallel()
	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	c, err := Build(context.Background(), cfg, db, rdb)
	require.NoError(t, err)

	tiers := c.Cache.Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, "redis", tiers[0].Name())
	assert.Equal(t, "memory", tiers[1].Name())
	assert.Equal(t, cfg.UploadDir, c.UploadDir)
	assert.Same(t, db, c.SearchDB)

	ctx := context.Background()
	res, err := c.Users.Register(ctx, service.RegisterInput{
		Username: "wired",
		Email:    "wired@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	uid, err := c.Auth.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, uid)

	hits, err := c.Index.SuggestUsers(ctx, "wir", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "registration indexes the user")
}

func TestBuild_WithoutRedisUsesLocalTierOnly(t *testing.T) {
	t.Parallel()
	c, err := Build(context.Background(), testConfig(t), testutil.NewSQLiteDB(t), nil)
	require.NoError(t, err)
	require.Len(t, c.Cache.Tiers(), 1)
	assert.Equal(t, "memory", c.Cache.Tiers()[0].Name())
}

func TestBuild_RejectsUnknownBlobDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.BlobDriver = "ftp"
	_, err := Build(context.Background(), cfg, testutil.NewSQLiteDB(t), nil)
	assert.ErrorContains(t, err, "unsupported BLOB_DRIVER")
}

type countingReindexer struct{ runs atomic.Int32 }

func (c *countingReindexer) Reindex(context.Context, search.Scope) (search.Stats, error) {
	c.runs.Add(1)
	return search.Stats{}, nil
}

func TestScheduleReindex(t *testing.T) {
	t.Parallel()

	c, err := ScheduleReindex(context.Background(), "", &countingReindexer{})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = ScheduleReindex(context.Background(), "not a cron", &countingReindexer{})
	assert.ErrorContains(t, err, "SEARCH_REINDEX_CRON")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &countingReindexer{}
	c, err = ScheduleReindex(ctx, "@every 1s", r)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Entries(), 1)
	assert.Eventually(t, func() bool { return r.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestTracing_FollowsConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.TracingExporter = "otlp"
	cfg.TracingSampleRatio = 0.2
	cfg.OTLPEndpoint = "collector:4318"
	cfg.OTLPInsecure = true

	tc := Tracing(cfg, "shutter-api", "v1")
	assert.Empty(t, tc.Exporter, "disabled tracing has no exporter")
	assert.Equal(t, 0.2, tc.SampleRatio)

	cfg.TracingEnabled = true
	tc = Tracing(cfg, "shutter-api", "v1")
	assert.Equal(t, "otlp", tc.Exporter)
	assert.Equal(t, "collector:4318", tc.Endpoint)
	assert.True(t, tc.Insecure)
	assert.Equal(t, "test", tc.Environment)
	assert.Equal(t, "shutter-api", tc.Service)
}
