package events

import (
	"context"
	"fmt"
	"log/slog"

	"shutter/internal/models"
	"shutter/internal/observability"
)

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	DeleteCommentNotification(ctx context.Context, postID, fromUserID uint) error
}

// Publisher pushes a stored notification to live clients.
type Publisher interface {
	PublishNotification(ctx context.Context, n *models.Notification) error
}

// NotificationListener turns comments into notifications for the post owner.
// Likes and follows do not notify.
type NotificationListener struct {
	store     NotificationStore
	publisher Publisher
	handles   func(string) bool
}

// NewNotificationListener accepts a nil publisher when realtime delivery is
// not configured.
func NewNotificationListener(store NotificationStore, publisher Publisher) *NotificationListener {
	return &NotificationListener{
		store:     store,
		publisher: publisher,
		handles:   handles(TypeCommentCreated, TypeCommentDeleted),
	}
}

func (l *NotificationListener) Name() string                  { return "notifier" }
func (l *NotificationListener) Priority() int                 { return 30 }
func (l *NotificationListener) Handles(eventType string) bool { return l.handles(eventType) }

func (l *NotificationListener) Handle(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case CommentCreated:
		if e.CommenterID == e.PostOwnerID {
			return nil
		}
		postID := e.PostID
		n := &models.Notification{
			RecipientID: e.PostOwnerID,
			FromUserID:  e.CommenterID,
			Type:        models.NotificationComment,
			PostID:      &postID,
			Message:     CommentMessage(e.CommenterUsername),
		}
		if err := l.store.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		if l.publisher != nil {
			if err := l.publisher.PublishNotification(ctx, n); err != nil {
				// The notification is stored; clients pick it up on the next list.
				observability.Logger.WarnContext(ctx, "notification publish failed",
					slog.Uint64("notification_id", uint64(n.ID)),
					slog.String("error", err.Error()),
				)
			}
		}
	case CommentDeleted:
		return l.store.DeleteCommentNotification(ctx, e.PostID, e.CommenterID)
	}
	return nil
}

// CommentMessage is the text of a comment notification.
func CommentMessage(username string) string {
	return username + " commented on your post."
}

func tagIDs(tags []models.Tag) []uint {
	ids := make([]uint, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}
