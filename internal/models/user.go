// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User represents a registered account.
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Username        string    `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email           string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password        string    `gorm:"not null" json:"-"`
	Bio             string    `gorm:"size:500" json:"bio"`
	ProfileImageURL string    `json:"profile_image_url"`
	IsVerified      bool      `gorm:"default:false" json:"is_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserSummary is the author/actor projection embedded in post, comment and
// notification views.
type UserSummary struct {
	ID              uint   `json:"id"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Summary projects the user into its embeddable form.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfileImageURL: u.ProfileImageURL}
}

// UserProfile is a user with relationship cardinalities computed at query time.
type UserProfile struct {
	ID              uint      `json:"id"`
	Username        string    `json:"username"`
	Bio             string    `json:"bio"`
	ProfileImageURL string    `json:"profile_image_url"`
	IsVerified      bool      `json:"is_verified"`
	FollowersCount  int64     `json:"followers_count"`
	FollowingCount  int64     `json:"following_count"`
	PostsCount      int64     `json:"posts_count"`
	IsFollowing     bool      `json:"is_following"`
	CreatedAt       time.Time `json:"created_at"`
}

// UserPage is one page of a user listing (followers, following, likers).
type UserPage struct {
	Users []UserSummary `json:"users"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Total int64         `json:"total"`
}
