package models

import "time"

// Tag is a unique, lowercased hashtag name.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PostTag associates a post with a tag.
type PostTag struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"post_id"`
	TagID     uint      `gorm:"primaryKey;autoIncrement:false;index" json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostTag) TableName() string {
	return "post_tags"
}
