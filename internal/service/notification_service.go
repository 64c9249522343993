package service

import (
	"context"

	"shutter/internal/models"
	"shutter/internal/repository"
)

type NotificationService struct {
	notificationRepo repository.NotificationRepository
}

func NewNotificationService(notificationRepo repository.NotificationRepository) *NotificationService {
	return &NotificationService{notificationRepo: notificationRepo}
}

func (s *NotificationService) List(ctx context.Context, userID uint, page, size int) (*models.NotificationPage, error) {
	page, size = normalizePage(page, size)
	items, total, err := s.notificationRepo.ListByRecipient(ctx, userID, size, offset(page, size))
	if err != nil {
		return nil, err
	}
	unread, err := s.notificationRepo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &models.NotificationPage{Notifications: items, Page: page, Size: size, Total: total, Unread: unread}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.notificationRepo.UnreadCount(ctx, userID)
}

// MarkAsRead moves one notification Unread -> Read. Only the recipient may
// do so; marking an already read notification is a no-op.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID uint) (*models.Notification, error) {
	n, err := s.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != userID {
		return nil, models.NewForbiddenError("You cannot modify this notification")
	}
	if !n.MarkRead() {
		return n, nil
	}
	if err := s.notificationRepo.MarkRead(ctx, n.ID); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkAllAsRead returns how many notifications changed state.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	return s.notificationRepo.MarkAllRead(ctx, userID)
}
