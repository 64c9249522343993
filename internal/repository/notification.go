package repository

import (
	"context"

	"shutter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository stores notifications. Its Create and delete methods
// also satisfy the post-commit notification listener.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	DeleteCommentNotification(ctx context.Context, postID, fromUserID uint) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	ListByRecipient(ctx context.Context, recipientID uint, limit, offset int) ([]models.Notification, int64, error)
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
	MarkRead(ctx context.Context, id uint) error
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// CreateNotification inserts n as unread and loads its sender.
func (r *notificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	db := r.db.WithContext(ctx)
	n.IsRead = false
	if err := db.Omit(clause.Associations).Create(n).Error; err != nil {
		return models.NewInternalError(err)
	}
	if err := db.First(&n.FromUser, n.FromUserID).Error; err != nil {
		return notFoundOrInternal(err, "User", n.FromUserID)
	}
	return nil
}

// DeleteCommentNotification removes comment notifications sent by
// fromUserID about postID. Deleting nothing is not an error.
func (r *notificationRepository) DeleteCommentNotification(ctx context.Context, postID, fromUserID uint) error {
	if err := r.db.WithContext(ctx).
		Where("post_id = ? AND from_user_id = ? AND type = ?", postID, fromUserID, models.NotificationComment).
		Delete(&models.Notification{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).Preload("FromUser").First(&n, id).Error; err != nil {
		return nil, notFoundOrInternal(err, "Notification", id)
	}
	return &n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uint, limit, offset int) ([]models.Notification, int64, error) {
	db := r.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Notification{}).Where("recipient_id = ?", recipientID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var items []models.Notification
	if err := db.Preload("FromUser").
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return items, total, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
