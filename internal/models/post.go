package models

import (
	"strings"
	"time"
)

// Visibility is the per-post read access policy.
type Visibility string

const (
	VisibilityPublic        Visibility = "Public"
	VisibilityFollowersOnly Visibility = "FollowersOnly"
	VisibilityPrivate       Visibility = "Private"
)

// ParseVisibility accepts the canonical names case-insensitively. Empty input
// defaults to Public.
func ParseVisibility(raw string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "public":
		return VisibilityPublic, nil
	case "followersonly", "followers_only", "followers":
		return VisibilityFollowersOnly, nil
	case "private":
		return VisibilityPrivate, nil
	}
	return "", NewValidationError("Invalid visibility: " + raw)
}

// CanView applies the visibility rules. viewerID 0 is an anonymous viewer;
// isFollower must be true only when viewer follows owner.
func (v Visibility) CanView(viewerID, ownerID uint, isFollower bool) bool {
	switch v {
	case VisibilityPublic:
		return true
	case VisibilityFollowersOnly:
		return viewerID != 0 && (viewerID == ownerID || isFollower)
	case VisibilityPrivate:
		return viewerID != 0 && viewerID == ownerID
	}
	return false
}

// Post represents a photo post.
type Post struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Caption    string     `gorm:"type:text;not null;default:''" json:"caption"`
	ImageURL   string     `json:"image_url"`
	Visibility Visibility `gorm:"type:varchar(20);not null;default:'Public';index" json:"visibility"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	User       User       `gorm:"foreignKey:UserID" json:"user"`
	// LikesCount is not persisted; computed at query time
	LikesCount int64 `gorm:"->;-:migration" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int64 `gorm:"->;-:migration" json:"comments_count"`
	// Liked indicates whether the current requesting user liked this post (computed)
	Liked bool `gorm:"->;-:migration" json:"liked"`
	// Tags is loaded by the repository from post_tags.
	Tags      []string  `gorm:"-" json:"tags"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostView is the viewer-specific projection served to clients and stored in
// the post detail and listing caches.
type PostView struct {
	ID            uint        `json:"id"`
	Caption       string      `json:"caption"`
	ImageURL      string      `json:"image_url"`
	Visibility    Visibility  `json:"visibility"`
	Author        UserSummary `json:"author"`
	Tags          []string    `json:"tags"`
	LikesCount    int64       `json:"likes_count"`
	CommentsCount int64       `json:"comments_count"`
	Liked         bool        `json:"liked"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// View projects a post loaded with its details into a PostView.
func (p *Post) View() PostView {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PostView{
		ID:            p.ID,
		Caption:       p.Caption,
		ImageURL:      p.ImageURL,
		Visibility:    p.Visibility,
		Author:        p.User.Summary(),
		Tags:          tags,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		Liked:         p.Liked,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts []PostView `json:"posts"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Total int64      `json:"total"`
}
