package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	s := &Server{}
	app.Get("/health/live", s.LivenessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func mockDB(t *testing.T, pingErr error) *gorm.DB {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	expect := mock.ExpectPing()
	if pingErr != nil {
		expect.WillReturnError(pingErr)
	}
	return db
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		redisDown  bool
		noRedis    bool
		wantStatus int
		wantDB     string
		wantRedis  string
	}{
		{name: "all healthy", wantStatus: http.StatusOK, wantDB: "healthy", wantRedis: "healthy"},
		{name: "database down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantDB: "unhealthy", wantRedis: "healthy"},
		{name: "redis down", redisDown: true, wantStatus: http.StatusServiceUnavailable, wantDB: "healthy", wantRedis: "unhealthy"},
		{name: "redis not configured", noRedis: true, wantStatus: http.StatusServiceUnavailable, wantDB: "healthy", wantRedis: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Server{db: mockDB(t, tt.pingErr)}
			if !tt.noRedis {
				mr := miniredis.RunT(t)
				s.redis = redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
				t.Cleanup(func() { _ = s.redis.Close() })
				if tt.redisDown {
					mr.Close()
				}
			}

			app := fiber.New()
			app.Get("/health/ready", s.ReadinessCheck)
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body struct {
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, decodeBody(resp, &body))
			assert.Equal(t, tt.wantDB, body.Checks["database"])
			assert.Equal(t, tt.wantRedis, body.Checks["redis"])
		})
	}
}

func TestRoutes_InfrastructureEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.json(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.status, string(resp.body))

	resp = ts.json(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), "http_requests_total")
}
