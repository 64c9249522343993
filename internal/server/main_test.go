package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shutter/internal/bootstrap"
	"shutter/internal/config"
	"shutter/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPassword = "password123"

type testServer struct {
	*Server
	deps *bootstrap.Components
	mr   *miniredis.Miniredis
}

// newTestServer builds the full stack over in-memory sqlite and miniredis.
// Handlers reading through the cache share a process-wide singleflight, so
// tests using them do not run in parallel.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Env:                  "test",
		Port:                 "0",
		JWTSecret:            "server-test-secret-long-enough!!",
		JWTIssuer:            "shutter-test",
		JWTTTLHours:          1,
		DBDriver:             "sqlite",
		CacheDefaultTTL:      time.Hour,
		CacheLocalSize:       1000,
		SearchBreakerTimeout: time.Second,
		BlobDriver:           "local",
		UploadDir:            t.TempDir(),
		PublicBaseURL:        "http://localhost/uploads",
		AvatarMaxSizeMB:      1,
		RateLimitPerMinute:   60,
	}
	db := testutil.NewSQLiteDB(t)
	deps, err := bootstrap.Build(context.Background(), cfg, db, rdb)
	require.NoError(t, err)

	s := New(Deps{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Auth:          deps.Auth,
		Users:         deps.Users,
		Posts:         deps.Posts,
		Comments:      deps.Comments,
		Notifications: deps.Notifications,
		Search:        deps.Search,
		Hub:           deps.Hub,
		Notifier:      deps.Notifier,
		UploadDir:     deps.UploadDir,
	})
	return &testServer{Server: s, deps: deps, mr: mr}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dest), string(r.body))
}

func (ts *testServer) do(t *testing.T, req *http.Request, token string) response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: body}
}

func (ts *testServer) json(t *testing.T, method, path, token string, payload interface{}) response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.do(t, req, token)
}

func (ts *testServer) multipart(t *testing.T, path, token string, fields map[string]string, fileField string, file []byte) response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return ts.do(t, req, token)
}

type authBody struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// register creates a user through the API and returns its id and token.
func (ts *testServer) register(t *testing.T, username string) (uint, string) {
	t.Helper()
	resp := ts.json(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.body))
	var out authBody
	resp.decode(t, &out)
	return out.User.ID, out.Token
}

type postBody struct {
	ID         uint     `json:"id"`
	Caption    string   `json:"caption"`
	ImageURL   string   `json:"image_url"`
	Visibility string   `json:"visibility"`
	Tags       []string `json:"tags"`
	LikesCount int64    `json:"likes_count"`
	Liked      bool     `json:"liked"`
	Author     struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
}

func (ts *testServer) createPost(t *testing.T, token, caption, visibility string) postBody {
	t.Helper()
	resp := ts.json(t, http.MethodPost, "/api/posts", token, map[string]string{
		"caption":    caption,
		"visibility": visibility,
	})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.body))
	var p postBody
	resp.decode(t, &p)
	return p
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeBody(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dest)
}
