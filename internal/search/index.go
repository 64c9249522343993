// Package search is the denormalized search index: one document type per
// entity, rebuilt wholesale on every relevant mutation.
package search

import (
	"context"
	"errors"
	"time"

	"shutter/internal/models"
)

// ErrUnavailable means the index is not answering (breaker open or backend
// down). Callers fall back or skip; they never fail a committed mutation.
var ErrUnavailable = errors.New("search: index unavailable")

// PostDocument is the indexed snapshot of a post.
type PostDocument struct {
	ID             uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Caption        string    `gorm:"type:text" json:"caption"`
	ImageURL       string    `json:"image_url"`
	AuthorID       uint      `gorm:"index" json:"author_id"`
	AuthorUsername string    `gorm:"size:30" json:"author_username"`
	Visibility     string    `gorm:"size:20" json:"visibility"`
	LikesCount     int64     `json:"likes_count"`
	CommentsCount  int64     `json:"comments_count"`
	Tags           []string  `gorm:"serializer:json;type:text" json:"tags"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
	IsActive       bool      `json:"is_active"`
}

func (PostDocument) TableName() string { return "search_post_documents" }

// UserDocument is the indexed snapshot of a user.
type UserDocument struct {
	ID              uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username        string    `gorm:"size:30;index" json:"username"`
	Email           string    `json:"email"`
	ProfileImageURL string    `json:"profile_image_url"`
	FollowersCount  int64     `json:"followers_count"`
	FollowingCount  int64     `json:"following_count"`
	PostsCount      int64     `json:"posts_count"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	IsVerified      bool      `json:"is_verified"`
	IsActive        bool      `json:"is_active"`
}

func (UserDocument) TableName() string { return "search_user_documents" }

// TagDocument is the indexed snapshot of a tag.
type TagDocument struct {
	ID         uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name       string    `gorm:"size:50;index" json:"name"`
	UsageCount int64     `json:"usage_count"`
	LastUsed   time.Time `json:"last_used"`
	IsActive   bool      `json:"is_active"`
}

func (TagDocument) TableName() string { return "search_tag_documents" }

// Index is the search backend contract. Update* is a full overwrite, never a
// partial patch. Visibility filtering is the caller's job.
type Index interface {
	IndexPost(ctx context.Context, doc PostDocument) error
	UpdatePost(ctx context.Context, doc PostDocument) error
	DeletePost(ctx context.Context, id uint) error
	IndexUser(ctx context.Context, doc UserDocument) error
	UpdateUser(ctx context.Context, doc UserDocument) error
	DeleteUser(ctx context.Context, id uint) error
	IndexTag(ctx context.Context, doc TagDocument) error
	UpdateTag(ctx context.Context, doc TagDocument) error
	DeleteTag(ctx context.Context, id uint) error

	// DocumentIDs pages through the stored ids of one document type, given as
	// a single Scope bit, in ascending order after afterID.
	DocumentIDs(ctx context.Context, kind Scope, afterID uint, limit int) ([]uint, error)

	// SearchPosts matches caption text as a case-insensitive substring.
	SearchPosts(ctx context.Context, query string, limit int) ([]PostDocument, error)
	// SearchPostsByTag returns posts carrying tag.
	SearchPostsByTag(ctx context.Context, tag string, limit int) ([]PostDocument, error)
	// SearchUsers matches username as a case-insensitive substring.
	SearchUsers(ctx context.Context, query string, limit int) ([]UserDocument, error)
	// SuggestUsers matches username as a case-insensitive prefix.
	SuggestUsers(ctx context.Context, prefix string, limit int) ([]UserDocument, error)
	// SearchTags matches tag name as a prefix.
	SearchTags(ctx context.Context, prefix string, limit int) ([]TagDocument, error)
}

// NewPostDocument snapshots a post loaded with author, counts and tags.
func NewPostDocument(p *models.Post) PostDocument {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PostDocument{
		ID:             p.ID,
		Caption:        p.Caption,
		ImageURL:       p.ImageURL,
		AuthorID:       p.UserID,
		AuthorUsername: p.User.Username,
		Visibility:     string(p.Visibility),
		LikesCount:     p.LikesCount,
		CommentsCount:  p.CommentsCount,
		Tags:           tags,
		CreatedAt:      p.CreatedAt,
		IsActive:       true,
	}
}

// NewUserDocument snapshots a user and its relationship counts.
func NewUserDocument(u *models.User, profile models.UserProfile) UserDocument {
	return UserDocument{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		ProfileImageURL: u.ProfileImageURL,
		FollowersCount:  profile.FollowersCount,
		FollowingCount:  profile.FollowingCount,
		PostsCount:      profile.PostsCount,
		CreatedAt:       u.CreatedAt,
		IsVerified:      u.IsVerified,
		IsActive:        true,
	}
}

// NewTagDocument snapshots a tag.
func NewTagDocument(t models.Tag, usage int64, lastUsed time.Time) TagDocument {
	return TagDocument{
		ID:         t.ID,
		Name:       t.Name,
		UsageCount: usage,
		LastUsed:   lastUsed,
		IsActive:   true,
	}
}
