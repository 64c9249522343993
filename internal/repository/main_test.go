package repository

import (
	"context"
	"testing"

	"shutter/internal/models"
	"shutter/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewSQLiteDB(t)
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Password: "x"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func createPost(t *testing.T, db *gorm.DB, author *models.User, caption string, vis models.Visibility) *models.Post {
	t.Helper()
	p := &models.Post{Caption: caption, Visibility: vis, UserID: author.ID}
	_, err := NewPostRepository(db).Create(context.Background(), p, models.ExtractHashtags(caption))
	require.NoError(t, err)
	return p
}

func follow(t *testing.T, db *gorm.DB, follower, following *models.User) {
	t.Helper()
	ok, err := NewUserRepository(db).ToggleFollow(context.Background(), follower.ID, following.ID)
	require.NoError(t, err)
	require.True(t, ok)
}
