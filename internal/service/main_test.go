package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shutter/internal/blob"
	"shutter/internal/cache"
	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/repository"
	"shutter/internal/search"
	"shutter/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "password123"

// testEnv wires real repositories over sqlite with an in-process cache, the
// gorm-backed index and the full listener set. Tests reading through
// cache.Aside do not run in parallel: misses collapse per key process-wide.
type testEnv struct {
	db            *gorm.DB
	userRepo      repository.UserRepository
	postRepo      *countingPostRepo
	notifications repository.NotificationRepository
	cache         *cache.Tiered
	index         *search.GormIndex
	blobs         *memStore
	recommender   *fakeRecommender
	auth          *AuthService

	users    *UserService
	posts    *PostService
	comments *CommentService
	notifier *NotificationService
	search   *SearchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	e := &testEnv{
		db:            db,
		userRepo:      repository.NewUserRepository(db),
		postRepo:      &countingPostRepo{PostRepository: repository.NewPostRepository(db)},
		notifications: repository.NewNotificationRepository(db),
		cache:         cache.NewTiered(time.Hour, cache.NewMemoryBackend(1000)),
		index:         search.NewGormIndex(db),
		blobs:         newMemStore(),
		recommender:   &fakeRecommender{},
		auth:          NewAuthService("test-secret-with-enough-length", "shutter-test", time.Hour),
	}

	dispatcher := events.NewDispatcher(
		events.NewCacheInvalidator(e.cache),
		events.NewIndexUpdater(e.index, repository.NewDocuments(db)),
		events.NewNotificationListener(e.notifications, nil),
	)

	e.users = NewUserService(e.userRepo, e.auth, e.blobs, 5<<20, dispatcher)
	e.posts = NewPostService(e.postRepo, e.userRepo, e.cache, e.blobs, e.recommender, dispatcher)
	e.comments = NewCommentService(repository.NewCommentRepository(db), e.postRepo, e.userRepo, dispatcher)
	e.notifier = NewNotificationService(e.notifications)
	e.search = NewSearchService(e.index, e.postRepo, e.userRepo, repository.NewTagRepository(db), e.cache)
	return e
}

func (e *testEnv) register(t *testing.T, username string) *models.User {
	t.Helper()
	res, err := e.users.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	return res.User
}

func (e *testEnv) post(t *testing.T, author *models.User, caption string, vis models.Visibility) *models.PostView {
	t.Helper()
	view, err := e.posts.CreatePost(context.Background(), CreatePostInput{
		UserID:     author.ID,
		Caption:    caption,
		Visibility: string(vis),
	})
	require.NoError(t, err)
	return view
}

func (e *testEnv) follow(t *testing.T, follower, following *models.User) {
	t.Helper()
	ok, err := e.users.ToggleFollow(context.Background(), follower.ID, following.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

// countingPostRepo counts the primary-store reads that caches should absorb.
type countingPostRepo struct {
	repository.PostRepository
	getByID    atomic.Int32
	listPublic atomic.Int32
}

func (c *countingPostRepo) GetByID(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	c.getByID.Add(1)
	return c.PostRepository.GetByID(ctx, id, viewerID)
}

func (c *countingPostRepo) ListPublic(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, int64, error) {
	c.listPublic.Add(1)
	return c.PostRepository.ListPublic(ctx, viewerID, limit, offset)
}

// memStore is an in-memory blob.Store issuing mem:// URLs.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
	failPut error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Upload(_ context.Context, obj blob.Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return "", m.failPut
	}
	m.seq++
	url := "mem://" + obj.Prefix + "/" + strings.Repeat("x", m.seq) + obj.Ext
	m.objects[url] = obj.Data
	return url, nil
}

func (m *memStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !strings.HasPrefix(url, "mem://") {
		return blob.ErrForeignURL
	}
	delete(m.objects, url)
	return nil
}

func (m *memStore) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeRecommender struct {
	ids []uint
}

func (f *fakeRecommender) Recommendations(context.Context, uint) []uint {
	return f.ids
}

// recordingEmitter captures emitted events for stub-based tests.
type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e events.Event) {
	r.events = append(r.events, e)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}
