package models

import "time"

// NotificationType identifies what produced a notification.
type NotificationType string

const (
	NotificationComment NotificationType = "Comment"
	NotificationLike    NotificationType = "Like"
	NotificationFollow  NotificationType = "Follow"
	NotificationMention NotificationType = "Mention"
)

// Notification is created Unread and moves to Read only at the recipient's request.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index:idx_notifications_recipient" json:"recipient_id"`
	FromUserID  uint             `gorm:"not null" json:"from_user_id"`
	FromUser    User             `gorm:"foreignKey:FromUserID" json:"from_user"`
	Type        NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	PostID      *uint            `gorm:"index" json:"post_id,omitempty"`
	Message     string           `gorm:"size:500" json:"message"`
	IsRead      bool             `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
}

// MarkRead moves the notification to Read. It reports whether the state changed.
func (n *Notification) MarkRead() bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	return true
}
