package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"shutter/internal/cache"
	"shutter/internal/models"
	"shutter/internal/repository"
	"shutter/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRepoStub overrides the methods a test needs.
type postRepoStub struct {
	repository.PostRepository
	createFn  func(context.Context, *models.Post, []string) ([]models.Tag, error)
	getByIDFn func(context.Context, uint, uint) (*models.Post, error)
}

func (s *postRepoStub) Create(ctx context.Context, p *models.Post, tags []string) ([]models.Tag, error) {
	return s.createFn(ctx, p, tags)
}
func (s *postRepoStub) GetByID(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id, viewerID)
}

func ptr[T any](v T) *T { return &v }

func TestPostService_CreatePost_Validation(t *testing.T) {
	t.Parallel()
	svc := NewPostService(&postRepoStub{}, nil, nil, nil, nil, nil)

	tests := []struct {
		name  string
		input CreatePostInput
	}{
		{"empty post", CreatePostInput{UserID: 1, Caption: "   "}},
		{"caption too long", CreatePostInput{UserID: 1, Caption: strings.Repeat("x", models.MaxCaptionLength+1)}},
		{"bad visibility", CreatePostInput{UserID: 1, Caption: "hi", Visibility: "friends"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(context.Background(), tt.input)
			assertCode(t, err, "VALIDATION_ERROR")
		})
	}
}

func TestPostService_CreatePost_FailedWriteDeletesUpload(t *testing.T) {
	t.Parallel()
	blobs := newMemStore()
	repo := &postRepoStub{
		createFn: func(context.Context, *models.Post, []string) ([]models.Tag, error) {
			return nil, models.NewInternalError(errors.New("db down"))
		},
	}
	emitter := &recordingEmitter{}
	svc := NewPostService(repo, nil, nil, blobs, nil, emitter)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		UserID: 1, Caption: "#sunset", Image: testutil.PNG(t, 40, 30),
	})
	assertCode(t, err, "INTERNAL_ERROR")
	assert.Zero(t, blobs.len())
	assert.Empty(t, emitter.events)
}

func TestPostService_CreatePost_RejectsNonImage(t *testing.T) {
	t.Parallel()
	svc := NewPostService(&postRepoStub{}, nil, nil, newMemStore(), nil, nil)
	_, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: 1, Image: []byte("text")})
	assertCode(t, err, "VALIDATION_ERROR")
}

func TestPostService_CreatePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	// Seed the caches create-post must drop.
	page, err := env.posts.ListPublic(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	feedKey := cache.UserFeedKey(alice.ID)
	env.cache.Set(ctx, feedKey, "stale", 0)
	tagKey := cache.AutocompleteKey("#sun")
	env.cache.Set(ctx, tagKey, models.EmptySearchResult(), 0)

	view, err := env.posts.CreatePost(ctx, CreatePostInput{
		UserID:  alice.ID,
		Caption: "  Golden hour #Sunset #beach #sunset ",
		Image:   testutil.PNG(t, 200, 100),
	})
	require.NoError(t, err)

	assert.Equal(t, "Golden hour #Sunset #beach #sunset", view.Caption)
	assert.ElementsMatch(t, []string{"sunset", "beach"}, view.Tags)
	assert.Equal(t, models.VisibilityPublic, view.Visibility)
	assert.Equal(t, "alice", view.Author.Username)
	assert.True(t, env.blobs.has(view.ImageURL))

	assert.False(t, env.cache.Exists(ctx, feedKey))
	assert.False(t, env.cache.Exists(ctx, tagKey))
	assert.False(t, env.cache.Exists(ctx, cache.PublicPostsPageKey(1, 10, 0)))

	page, err = env.posts.ListPublic(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)

	docs, err := env.index.SearchPostsByTag(ctx, "sunset", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, view.ID, docs[0].ID)

	tags, err := env.index.SearchTags(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "beach", tags[0].Name)
}

func TestPostService_GetPost_CachesPerViewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.post(t, alice, "hello", models.VisibilityPublic)

	env.postRepo.getByID.Store(0)
	for range 3 {
		view, err := env.posts.GetPost(ctx, post.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, post.ID, view.ID)
	}
	assert.Equal(t, int32(1), env.postRepo.getByID.Load())
	assert.True(t, env.cache.Exists(ctx, cache.PostDetailsKey(post.ID, bob.ID)))

	// Each viewer has its own entry because of the liked flag.
	_, err := env.posts.GetPost(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), env.postRepo.getByID.Load())
}

func TestPostService_GetPost_Visibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	env.follow(t, bob, alice)

	private := env.post(t, alice, "mine", models.VisibilityPrivate)
	followers := env.post(t, alice, "friends", models.VisibilityFollowersOnly)

	tests := []struct {
		name     string
		postID   uint
		viewerID uint
		allowed  bool
	}{
		{"owner reads private", private.ID, alice.ID, true},
		{"follower denied private", private.ID, bob.ID, false},
		{"anonymous denied private", private.ID, 0, false},
		{"follower reads followers-only", followers.ID, bob.ID, true},
		{"stranger denied followers-only", followers.ID, carol.ID, false},
		{"anonymous denied followers-only", followers.ID, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.posts.GetPost(ctx, tt.postID, tt.viewerID)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assertCode(t, err, "FORBIDDEN")
			assert.False(t, env.cache.Exists(ctx, cache.PostDetailsKey(tt.postID, tt.viewerID)))
		})
	}

	_, err := env.posts.GetPost(ctx, 999, alice.ID)
	assertCode(t, err, "NOT_FOUND")
}

func TestPostService_UpdatePost(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.post(t, alice, "#a #b", models.VisibilityPublic)

	_, err := env.posts.UpdatePost(ctx, UpdatePostInput{UserID: bob.ID, PostID: post.ID, Caption: ptr("#x")})
	assertCode(t, err, "FORBIDDEN")

	updated, err := env.posts.UpdatePost(ctx, UpdatePostInput{
		UserID:     alice.ID,
		PostID:     post.ID,
		Caption:    ptr("now #B and #c"),
		Visibility: ptr("followers"),
	})
	require.NoError(t, err)
	assert.Equal(t, "now #B and #c", updated.Caption)
	assert.ElementsMatch(t, []string{"b", "c"}, updated.Tags)
	assert.Equal(t, models.VisibilityFollowersOnly, updated.Visibility)

	for tag, want := range map[string]int{"a": 0, "b": 1, "c": 1} {
		docs, err := env.index.SearchPostsByTag(ctx, tag, 10)
		require.NoError(t, err)
		assert.Len(t, docs, want, "tag %s", tag)
	}
	tags, err := env.index.SearchTags(ctx, "c", 10)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	// Visibility only: the caption and its tags stay put.
	same, err := env.posts.UpdatePost(ctx, UpdatePostInput{UserID: alice.ID, PostID: post.ID, Visibility: ptr("private")})
	require.NoError(t, err)
	assert.Equal(t, "now #B and #c", same.Caption)
	assert.ElementsMatch(t, []string{"b", "c"}, same.Tags)

	_, err = env.posts.UpdatePost(ctx, UpdatePostInput{
		UserID: alice.ID, PostID: post.ID, Caption: ptr(strings.Repeat("y", models.MaxCaptionLength+1)),
	})
	assertCode(t, err, "VALIDATION_ERROR")
}

func TestPostService_DeletePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	view, err := env.posts.CreatePost(ctx, CreatePostInput{
		UserID: alice.ID, Caption: "#gone", Image: testutil.PNG(t, 10, 10),
	})
	require.NoError(t, err)

	// Prime the detail cache, then delete.
	_, err = env.posts.GetPost(ctx, view.ID, bob.ID)
	require.NoError(t, err)

	err = env.posts.DeletePost(ctx, DeletePostInput{UserID: bob.ID, PostID: view.ID})
	assertCode(t, err, "FORBIDDEN")

	require.NoError(t, env.posts.DeletePost(ctx, DeletePostInput{UserID: alice.ID, PostID: view.ID}))
	assert.False(t, env.blobs.has(view.ImageURL))

	docs, err := env.index.SearchPostsByTag(ctx, "gone", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	// Deleting a post does not invalidate cached views: the detail entry is
	// served until its TTL expires.
	cached, err := env.posts.GetPost(ctx, view.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, cached.ID)

	_, err = env.posts.GetPost(ctx, view.ID, alice.ID)
	assertCode(t, err, "NOT_FOUND")

	err = env.posts.DeletePost(ctx, DeletePostInput{UserID: alice.ID, PostID: view.ID})
	assertCode(t, err, "NOT_FOUND")
}

func TestPostService_ListPublic_Paging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	for i := range 5 {
		env.post(t, alice, strings.Repeat("p", i+1), models.VisibilityPublic)
	}
	env.post(t, alice, "hidden", models.VisibilityPrivate)

	env.postRepo.listPublic.Store(0)
	first, err := env.posts.ListPublic(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.Total)
	require.Len(t, first.Posts, 2)
	assert.Equal(t, "ppppp", first.Posts[0].Caption)

	again, err := env.posts.ListPublic(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Posts[0].ID, again.Posts[0].ID)
	assert.Equal(t, int32(1), env.postRepo.listPublic.Load())

	last, err := env.posts.ListPublic(ctx, 3, 2, 0)
	require.NoError(t, err)
	require.Len(t, last.Posts, 1)
	assert.Equal(t, "p", last.Posts[0].Caption)
}

func TestPostService_TimelineAndProfilePosts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	env.follow(t, bob, alice)

	env.post(t, alice, "public", models.VisibilityPublic)
	env.post(t, alice, "followers", models.VisibilityFollowersOnly)
	env.post(t, alice, "private", models.VisibilityPrivate)
	env.post(t, bob, "bob's own", models.VisibilityPrivate)
	env.post(t, carol, "not followed", models.VisibilityPublic)

	timeline, err := env.posts.Timeline(ctx, bob.ID, 1, 10)
	require.NoError(t, err)
	captions := make([]string, 0, len(timeline.Posts))
	for _, p := range timeline.Posts {
		captions = append(captions, p.Caption)
	}
	assert.ElementsMatch(t, []string{"public", "followers", "bob's own"}, captions)

	tests := []struct {
		name   string
		viewer uint
		want   int64
	}{
		{"owner", alice.ID, 3},
		{"follower", bob.ID, 2},
		{"stranger", carol.ID, 1},
		{"anonymous", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := env.posts.ListByUser(ctx, alice.ID, tt.viewer, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.Total)
		})
	}

	_, err = env.posts.ListByUser(ctx, 999, 0, 1, 10)
	assertCode(t, err, "NOT_FOUND")
}

func TestPostService_Explore(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	env.follow(t, bob, alice)

	popular := env.post(t, alice, "popular", models.VisibilityPublic)
	quiet := env.post(t, carol, "quiet", models.VisibilityPublic)
	secret := env.post(t, carol, "secret", models.VisibilityPrivate)
	own := env.post(t, bob, "own", models.VisibilityPublic)
	_, err := env.posts.ToggleLike(ctx, popular.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.posts.ToggleLike(ctx, popular.ID, carol.ID)
	require.NoError(t, err)
	_, err = env.posts.ToggleLike(ctx, quiet.ID, alice.ID)
	require.NoError(t, err)

	t.Run("anonymous gets most liked", func(t *testing.T) {
		page, err := env.posts.Explore(ctx, 0, 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Posts, 3)
		assert.Equal(t, popular.ID, page.Posts[0].ID)
		assert.Equal(t, int64(2), page.Posts[0].LikesCount)
		assert.Equal(t, quiet.ID, page.Posts[1].ID)
	})

	t.Run("fallback excludes followed authors and self", func(t *testing.T) {
		env.recommender.ids = nil
		page, err := env.posts.Explore(ctx, bob.ID, 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Posts, 1)
		assert.Equal(t, quiet.ID, page.Posts[0].ID)
	})

	t.Run("recommendations keep order and drop unreadable posts", func(t *testing.T) {
		env.recommender.ids = []uint{own.ID, secret.ID, 999, popular.ID}
		page, err := env.posts.Explore(ctx, bob.ID, 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Posts, 2)
		assert.Equal(t, own.ID, page.Posts[0].ID)
		assert.Equal(t, popular.ID, page.Posts[1].ID)
		assert.True(t, page.Posts[1].Liked)
	})

	t.Run("pages past the end are empty", func(t *testing.T) {
		env.recommender.ids = nil
		page, err := env.posts.Explore(ctx, 0, 5, 10)
		require.NoError(t, err)
		assert.Empty(t, page.Posts)
		assert.Equal(t, int64(3), page.Total)
	})
}

func TestPostService_ToggleLikeAndLikers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.post(t, alice, "like me", models.VisibilityPublic)
	private := env.post(t, alice, "no", models.VisibilityPrivate)

	liked, err := env.posts.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	likers, err := env.posts.Likers(ctx, post.ID, 0, 1, 10)
	require.NoError(t, err)
	require.Len(t, likers.Users, 1)
	assert.Equal(t, "bob", likers.Users[0].Username)

	liked, err = env.posts.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	_, err = env.posts.ToggleLike(ctx, private.ID, bob.ID)
	assertCode(t, err, "FORBIDDEN")
	_, err = env.posts.Likers(ctx, private.ID, bob.ID, 1, 10)
	assertCode(t, err, "FORBIDDEN")
	_, err = env.posts.ToggleLike(ctx, 999, bob.ID)
	assertCode(t, err, "NOT_FOUND")
}
