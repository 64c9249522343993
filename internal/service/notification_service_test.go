package service

import (
	"context"
	"testing"

	"shutter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_MarkAsRead(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.post(t, alice, "p", models.VisibilityPublic)

	for range 2 {
		_, err := env.comments.CreateComment(ctx, CreateCommentInput{UserID: bob.ID, PostID: post.ID, Content: "c"})
		require.NoError(t, err)
	}
	page, err := env.notifier.List(ctx, alice.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	id := page.Notifications[0].ID

	_, err = env.notifier.MarkAsRead(ctx, id, bob.ID)
	assertCode(t, err, "FORBIDDEN")

	n, err := env.notifier.MarkAsRead(ctx, id, alice.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	// Read stays Read.
	n, err = env.notifier.MarkAsRead(ctx, id, alice.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	count, err := env.notifier.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	changed, err := env.notifier.MarkAllAsRead(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	count, err = env.notifier.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = env.notifier.MarkAsRead(ctx, 999, alice.ID)
	assertCode(t, err, "NOT_FOUND")
}

func TestNotificationService_ListEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	page, err := env.notifier.List(context.Background(), alice.ID, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, page.Notifications)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.Size)
}
