package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/repository"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	events      events.Emitter
}

type CreateCommentInput struct {
	UserID  uint
	PostID  uint
	Content string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	emitter events.Emitter,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		userRepo:    userRepo,
		events:      emitterOrNoop(emitter),
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxCommentLength {
		return nil, models.NewValidationError(
			fmt.Sprintf("Comment exceeds maximum length of %d characters", models.MaxCommentLength))
	}

	post, err := s.visiblePost(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{Content: content, PostID: post.ID, UserID: in.UserID}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.CommentCreated{
		CommentID:         comment.ID,
		PostID:            post.ID,
		PostOwnerID:       post.UserID,
		CommenterID:       in.UserID,
		CommenterUsername: comment.User.Username,
	})
	return comment, nil
}

// DeleteComment is allowed to the comment's author and the post's owner.
func (s *CommentService) DeleteComment(ctx context.Context, commentID, userID uint) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		post, err := s.postRepo.GetByID(ctx, comment.PostID, userID)
		if err != nil {
			return err
		}
		if post.UserID != userID {
			return models.NewForbiddenError("You cannot delete this comment")
		}
	}

	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return err
	}
	s.events.Emit(ctx, events.CommentDeleted{
		CommentID:   comment.ID,
		PostID:      comment.PostID,
		CommenterID: comment.UserID,
	})
	return nil
}

func (s *CommentService) ListComments(ctx context.Context, postID, viewerID uint, page, size int) (*models.CommentPage, error) {
	if _, err := s.visiblePost(ctx, postID, viewerID); err != nil {
		return nil, err
	}
	page, size = normalizePage(page, size)
	comments, total, err := s.commentRepo.ListByPost(ctx, postID, size, offset(page, size))
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return &models.CommentPage{Comments: comments, Page: page, Size: size, Total: total}, nil
}

func (s *CommentService) visiblePost(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	ok, err := canView(ctx, s.userRepo, post, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewForbiddenError("You do not have access to this post")
	}
	return post, nil
}
