// Package service orchestrates the primary store, the tiered cache, the search
// index and post-commit events. Writes commit first; cache, index and
// notification side effects follow through the event dispatcher.
package service

import (
	"context"

	"shutter/internal/models"
	"shutter/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// normalizePage returns a 1-based page and a bounded size.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func offset(page, size int) int {
	return (page - 1) * size
}

func postViews(posts []*models.Post) []models.PostView {
	views := make([]models.PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, p.View())
	}
	return views
}

func userSummaries(users []models.User) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out
}

// canView applies post visibility for viewer, consulting the follow graph
// only for FollowersOnly posts.
func canView(ctx context.Context, users repository.UserRepository, post *models.Post, viewerID uint) (bool, error) {
	isFollower := false
	if post.Visibility == models.VisibilityFollowersOnly && viewerID != 0 && viewerID != post.UserID {
		var err error
		if isFollower, err = users.IsFollowing(ctx, viewerID, post.UserID); err != nil {
			return false, err
		}
	}
	return post.Visibility.CanView(viewerID, post.UserID, isFollower), nil
}

// visibleTo returns the visibilities of authorID's posts that viewerID may read.
func visibleTo(ctx context.Context, users repository.UserRepository, authorID, viewerID uint) ([]models.Visibility, error) {
	if viewerID != 0 && viewerID == authorID {
		return []models.Visibility{models.VisibilityPublic, models.VisibilityFollowersOnly, models.VisibilityPrivate}, nil
	}
	if viewerID != 0 {
		following, err := users.IsFollowing(ctx, viewerID, authorID)
		if err != nil {
			return nil, err
		}
		if following {
			return []models.Visibility{models.VisibilityPublic, models.VisibilityFollowersOnly}, nil
		}
	}
	return []models.Visibility{models.VisibilityPublic}, nil
}
