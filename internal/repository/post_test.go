package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"shutter/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestPostRepository_CreateLinksTagsAndReportsNewOnes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")

	first := &models.Post{Caption: "#sun #sea", UserID: amy.ID, Visibility: models.VisibilityPublic}
	created, err := repo.Create(ctx, first, []string{"sun", "sea"})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	second := &models.Post{Caption: "#sea #sand", UserID: amy.ID, Visibility: models.VisibilityPublic}
	created, err = repo.Create(ctx, second, []string{"sea", "sand"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "sand", created[0].Name)

	var tagCount int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(3), tagCount, "sea is shared, not duplicated")

	got, err := repo.GetByID(ctx, second.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"sand", "sea"}, got.Tags)
	assert.Equal(t, "amy", got.User.Username)
}

func TestFindOrCreateTag_ExistingNameIsNotDuplicated(t *testing.T) {
	t.Parallel()
	db := setupDB(t)

	tag, isNew, err := findOrCreateTag(db, "golang")
	require.NoError(t, err)
	assert.True(t, isNew)

	again, isNew, err := findOrCreateTag(db, "golang")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, tag.ID, again.ID)
}

func TestPostRepository_UpdateAppliesTagDifference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	post := createPost(t, db, amy, "#a #b", models.VisibilityPublic)

	added, removed := models.DiffTags([]string{"a", "b"}, []string{"b", "c"})
	post.Caption = "#b #c"
	created, err := repo.Update(ctx, post, added, removed)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "c", created[0].Name)

	got, err := repo.GetByID(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got.Tags)
	assert.Equal(t, "#b #c", got.Caption)

	// Unchanged caption does not churn links.
	created, err = repo.Update(ctx, got, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	got, err = repo.GetByID(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got.Tags)
}

func TestPostRepository_UpdateMissingPost(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	_, err := NewPostRepository(db).Update(context.Background(), &models.Post{ID: 404, Visibility: models.VisibilityPublic}, nil, nil)
	assert.True(t, models.IsNotFound(err))
}

func TestPostRepository_ToggleLikeAndCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	bob := createUser(t, db, "bob")
	post := createPost(t, db, amy, "hello", models.VisibilityPublic)

	before, err := repo.GetByID(ctx, post.ID, bob.ID)
	require.NoError(t, err)

	liked, err := repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	mid, err := repo.GetByID(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, before.LikesCount+1, mid.LikesCount)
	assert.True(t, mid.Liked)

	liked, err = repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	after, err := repo.GetByID(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, before.LikesCount, after.LikesCount)
	assert.False(t, after.Liked)
}

func TestPostRepository_DeleteRemovesDependents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	bob := createUser(t, db, "bob")
	post := createPost(t, db, amy, "#gone", models.VisibilityPublic)

	_, err := repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, NewCommentRepository(db).Create(ctx, &models.Comment{PostID: post.ID, UserID: bob.ID, Content: "nice"}))

	require.NoError(t, repo.Delete(ctx, post.ID))

	_, err = repo.GetByID(ctx, post.ID, 0)
	assert.True(t, models.IsNotFound(err))
	for _, m := range []interface{}{&models.PostTag{}, &models.PostLike{}, &models.Comment{}} {
		var n int64
		require.NoError(t, db.Model(m).Where("post_id = ?", post.ID).Count(&n).Error)
		assert.Zero(t, n)
	}
	var tags int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&tags).Error)
	assert.Equal(t, int64(1), tags, "tags outlive their posts")

	assert.True(t, models.IsNotFound(repo.Delete(ctx, post.ID)))
}

func TestPostRepository_Listings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	bob := createUser(t, db, "bob")
	cat := createUser(t, db, "cat")
	follow(t, db, bob, amy)

	pub := createPost(t, db, amy, "public", models.VisibilityPublic)
	fol := createPost(t, db, amy, "followers", models.VisibilityFollowersOnly)
	createPost(t, db, amy, "private", models.VisibilityPrivate)
	own := createPost(t, db, bob, "bob private", models.VisibilityPrivate)
	catPost := createPost(t, db, cat, "cat public", models.VisibilityPublic)

	public, total, err := repo.ListPublic(ctx, 0, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.ElementsMatch(t, []uint{pub.ID, catPost.ID}, postIDs(public))

	timeline, total, err := repo.Timeline(ctx, bob.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.ElementsMatch(t, []uint{pub.ID, fol.ID, own.ID}, postIDs(timeline))

	byUser, total, err := repo.ListByUser(ctx, amy.ID, cat.ID, []models.Visibility{models.VisibilityPublic}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []uint{pub.ID}, postIDs(byUser))

	page, _, err := repo.ListPublic(ctx, 0, 1, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestPostRepository_PopularAndGetByIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	bob := createUser(t, db, "bob")
	cat := createUser(t, db, "cat")
	follow(t, db, bob, amy)

	amyPost := createPost(t, db, amy, "amy", models.VisibilityPublic)
	catPost := createPost(t, db, cat, "cat", models.VisibilityPublic)
	bobPost := createPost(t, db, bob, "bob", models.VisibilityPublic)
	createPost(t, db, cat, "hidden", models.VisibilityPrivate)
	for _, u := range []*models.User{bob, cat} {
		_, err := repo.ToggleLike(ctx, amyPost.ID, u.ID)
		require.NoError(t, err)
	}
	_, err := repo.ToggleLike(ctx, catPost.ID, amy.ID)
	require.NoError(t, err)

	popular, err := repo.Popular(ctx, 0, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{amyPost.ID, catPost.ID, bobPost.ID}, postIDs(popular))

	forBob, err := repo.Popular(ctx, bob.ID, bob.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{catPost.ID}, postIDs(forBob))

	ordered, err := repo.GetByIDs(ctx, []uint{bobPost.ID, 9999, amyPost.ID}, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{bobPost.ID, amyPost.ID}, postIDs(ordered))
	assert.True(t, ordered[1].Liked)
}

func TestPostRepository_SearchFallbacks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	beach := createPost(t, db, amy, "Sunset at the #Beach", models.VisibilityPublic)
	createPost(t, db, amy, "100% mountains", models.VisibilityPublic)

	got, err := repo.SearchByCaption(ctx, "SUNSET", 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{beach.ID}, postIDs(got))

	got, err = repo.SearchByCaption(ctx, "%", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1, "LIKE metacharacters are matched literally")

	got, err = repo.SearchByTag(ctx, "#beach", 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{beach.ID}, postIDs(got))
}

func TestPostRepository_Likers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostRepository(db)
	amy := createUser(t, db, "amy")
	bob := createUser(t, db, "bob")
	post := createPost(t, db, amy, "x", models.VisibilityPublic)
	_, err := repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)

	users, total, err := repo.Likers(ctx, post.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: tags.name")))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestPostRepository_ToggleLikeRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "post_likes" WHERE post_id = $1 AND user_id = $2`)).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "post_likes"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.ToggleLike(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func postIDs(posts []*models.Post) []uint {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
