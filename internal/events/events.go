// Package events carries post-commit side effects. Services emit an event
// once the primary-store transaction has committed; listeners refresh caches,
// the search index and notifications. Listener failures are logged and
// counted, never returned to the mutating request.
package events

import "shutter/internal/models"

// Event type names.
const (
	TypeUserRegistered = "user.registered"
	TypePostCreated    = "post.created"
	TypePostUpdated    = "post.updated"
	TypePostDeleted    = "post.deleted"
	TypePostLiked      = "post.liked"
	TypeCommentCreated = "comment.created"
	TypeCommentDeleted = "comment.deleted"
	TypeUserFollowed   = "user.followed"
	TypeAvatarUploaded = "user.avatar_uploaded"
)

// Event is anything the Dispatcher can route.
type Event interface {
	EventType() string
}

type UserRegistered struct {
	UserID   uint
	Username string
}

// PostCreated carries every hashtag of the caption and the subset of tags
// that did not exist before this post.
type PostCreated struct {
	PostID   uint
	AuthorID uint
	Tags     []string
	NewTags  []models.Tag
}

// PostUpdated is emitted for every successful edit. Added and Removed are the
// hashtag set difference between the old and new caption.
type PostUpdated struct {
	PostID   uint
	AuthorID uint
	Added    []string
	Removed  []string
	NewTags  []models.Tag
}

type PostDeleted struct {
	PostID   uint
	AuthorID uint
}

type PostLiked struct {
	PostID uint
	UserID uint
	Liked  bool
}

// CommentCreated names the post owner so listeners need no extra lookup.
type CommentCreated struct {
	CommentID         uint
	PostID            uint
	PostOwnerID       uint
	CommenterID       uint
	CommenterUsername string
}

type CommentDeleted struct {
	CommentID   uint
	PostID      uint
	CommenterID uint
}

type UserFollowed struct {
	FollowerID  uint
	FollowingID uint
	Following   bool
}

type AvatarUploaded struct {
	UserID uint
	URL    string
}

func (UserRegistered) EventType() string { return TypeUserRegistered }
func (PostCreated) EventType() string    { return TypePostCreated }
func (PostUpdated) EventType() string    { return TypePostUpdated }
func (PostDeleted) EventType() string    { return TypePostDeleted }
func (PostLiked) EventType() string      { return TypePostLiked }
func (CommentCreated) EventType() string { return TypeCommentCreated }
func (CommentDeleted) EventType() string { return TypeCommentDeleted }
func (UserFollowed) EventType() string   { return TypeUserFollowed }
func (AvatarUploaded) EventType() string { return TypeAvatarUploaded }
