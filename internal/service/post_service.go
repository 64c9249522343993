package service

import (
	"context"
	"errors"
	"fmt"

	"shutter/internal/blob"
	"shutter/internal/cache"
	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/recommend"
	"shutter/internal/repository"
)

// ExploreLimit bounds how many popular posts explore considers.
const ExploreLimit = 100

type PostService struct {
	postRepo  repository.PostRepository
	userRepo  repository.UserRepository
	cache     cache.Cache
	blobs     blob.Store
	images    blob.Normalizer
	recommend recommend.Recommender
	events    events.Emitter
}

type CreatePostInput struct {
	UserID     uint
	Caption    string
	Visibility string
	// Image is the raw upload; empty means a caption-only post.
	Image []byte
}

// UpdatePostInput leaves a nil field unchanged.
type UpdatePostInput struct {
	UserID     uint
	PostID     uint
	Caption    *string
	Visibility *string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	c cache.Cache,
	blobs blob.Store,
	rec recommend.Recommender,
	emitter events.Emitter,
) *PostService {
	return &PostService{
		postRepo:  postRepo,
		userRepo:  userRepo,
		cache:     c,
		blobs:     blobs,
		images:    blob.PostNormalizer,
		recommend: rec,
		events:    emitterOrNoop(emitter),
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.PostView, error) {
	caption, err := models.NewCaption(in.Caption)
	if err != nil {
		return nil, err
	}
	visibility, err := models.ParseVisibility(in.Visibility)
	if err != nil {
		return nil, err
	}
	if caption.IsEmpty() && len(in.Image) == 0 {
		return nil, models.NewValidationError("A post needs an image or a caption")
	}

	var imageURL string
	if len(in.Image) > 0 {
		if imageURL, err = s.uploadImage(ctx, in.Image); err != nil {
			return nil, err
		}
	}

	post := &models.Post{
		Caption:    caption.String(),
		ImageURL:   imageURL,
		Visibility: visibility,
		UserID:     in.UserID,
	}
	tags := caption.Hashtags()
	newTags, err := s.postRepo.Create(ctx, post, tags)
	if err != nil {
		deleteBlob(ctx, s.blobs, imageURL)
		return nil, err
	}

	s.events.Emit(ctx, events.PostCreated{
		PostID:   post.ID,
		AuthorID: post.UserID,
		Tags:     tags,
		NewTags:  newTags,
	})

	created, err := s.postRepo.GetByID(ctx, post.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	view := created.View()
	return &view, nil
}

func (s *PostService) uploadImage(ctx context.Context, data []byte) (string, error) {
	if s.blobs == nil {
		return "", models.NewInternalError(errors.New("blob store not configured"))
	}
	obj, err := s.images.Normalize(data)
	if err != nil {
		if errors.Is(err, blob.ErrUnsupportedImage) {
			return "", models.NewValidationError("Image must be a JPEG, PNG, GIF or WebP image")
		}
		return "", models.NewInternalError(err)
	}
	obj.Prefix = "posts"
	url, err := s.blobs.Upload(ctx, obj)
	if err != nil {
		return "", models.NewInternalError(fmt.Errorf("upload post image: %w", err))
	}
	return url, nil
}

// UpdatePost edits caption and visibility. Hashtag links follow the caption
// by set difference, so re-saving an unchanged caption touches no links.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.PostView, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You are not the owner of this post")
	}

	prevTags := models.ExtractHashtags(post.Caption)
	if in.Caption != nil {
		caption, err := models.NewCaption(*in.Caption)
		if err != nil {
			return nil, err
		}
		post.Caption = caption.String()
	}
	if in.Visibility != nil {
		visibility, err := models.ParseVisibility(*in.Visibility)
		if err != nil {
			return nil, err
		}
		post.Visibility = visibility
	}

	added, removed := models.DiffTags(prevTags, models.ExtractHashtags(post.Caption))
	newTags, err := s.postRepo.Update(ctx, post, added, removed)
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.PostUpdated{
		PostID:   post.ID,
		AuthorID: post.UserID,
		Added:    added,
		Removed:  removed,
		NewTags:  newTags,
	})

	updated, err := s.postRepo.GetByID(ctx, post.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	view := updated.View()
	return &view, nil
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return err
	}
	if post.UserID != in.UserID {
		return models.NewForbiddenError("You are not the owner of this post")
	}

	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return err
	}

	deleteBlob(ctx, s.blobs, post.ImageURL)
	s.events.Emit(ctx, events.PostDeleted{PostID: post.ID, AuthorID: post.UserID})
	return nil
}

// GetPost serves post_details_<id>_<viewer> cache-first. Visibility is
// checked on the miss path before anything is cached, so a cached view only
// ever exists for a viewer who was allowed to read it.
func (s *PostService) GetPost(ctx context.Context, postID, viewerID uint) (*models.PostView, error) {
	view, err := cache.Aside(ctx, s.cache, cache.PostDetailsKey(postID, viewerID), cache.PostDetailsTTL,
		func(ctx context.Context) (models.PostView, error) {
			post, err := s.postRepo.GetByID(ctx, postID, viewerID)
			if err != nil {
				return models.PostView{}, err
			}
			ok, err := canView(ctx, s.userRepo, post, viewerID)
			if err != nil {
				return models.PostView{}, err
			}
			if !ok {
				return models.PostView{}, models.NewForbiddenError("You do not have access to this post")
			}
			return post.View(), nil
		})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListPublic serves public_posts_page_<page>_<size>_<viewer> cache-first.
func (s *PostService) ListPublic(ctx context.Context, page, size int, viewerID uint) (*models.PostPage, error) {
	page, size = normalizePage(page, size)
	result, err := cache.Aside(ctx, s.cache, cache.PublicPostsPageKey(page, size, viewerID), cache.PublicPostsTTL,
		func(ctx context.Context) (models.PostPage, error) {
			posts, total, err := s.postRepo.ListPublic(ctx, viewerID, size, offset(page, size))
			if err != nil {
				return models.PostPage{}, err
			}
			return models.PostPage{Posts: postViews(posts), Page: page, Size: size, Total: total}, nil
		})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Timeline lists the viewer's own posts and the visible posts of users they
// follow. It is computed per request.
func (s *PostService) Timeline(ctx context.Context, viewerID uint, page, size int) (*models.PostPage, error) {
	page, size = normalizePage(page, size)
	posts, total, err := s.postRepo.Timeline(ctx, viewerID, size, offset(page, size))
	if err != nil {
		return nil, err
	}
	return &models.PostPage{Posts: postViews(posts), Page: page, Size: size, Total: total}, nil
}

func (s *PostService) ListByUser(ctx context.Context, authorID, viewerID uint, page, size int) (*models.PostPage, error) {
	if _, err := s.userRepo.GetByID(ctx, authorID); err != nil {
		return nil, err
	}
	visible, err := visibleTo(ctx, s.userRepo, authorID, viewerID)
	if err != nil {
		return nil, err
	}
	page, size = normalizePage(page, size)
	posts, total, err := s.postRepo.ListByUser(ctx, authorID, viewerID, visible, size, offset(page, size))
	if err != nil {
		return nil, err
	}
	return &models.PostPage{Posts: postViews(posts), Page: page, Size: size, Total: total}, nil
}

// Explore shows anonymous viewers the most liked public posts. Signed-in
// viewers get the recommender's picks; when it has none, the most liked public
// posts from authors they do not follow.
func (s *PostService) Explore(ctx context.Context, viewerID uint, page, size int) (*models.PostPage, error) {
	page, size = normalizePage(page, size)

	var posts []*models.Post
	var err error
	switch {
	case viewerID == 0:
		posts, err = s.postRepo.Popular(ctx, 0, 0, ExploreLimit)
	default:
		posts, err = s.recommended(ctx, viewerID)
		if err == nil && len(posts) == 0 {
			posts, err = s.postRepo.Popular(ctx, viewerID, viewerID, ExploreLimit)
		}
	}
	if err != nil {
		return nil, err
	}

	total := int64(len(posts))
	start := min(offset(page, size), len(posts))
	end := min(start+size, len(posts))
	return &models.PostPage{Posts: postViews(posts[start:end]), Page: page, Size: size, Total: total}, nil
}

// recommended loads the recommender's ids, keeping only posts the viewer may
// read. Ids of deleted posts drop out silently.
func (s *PostService) recommended(ctx context.Context, viewerID uint) ([]*models.Post, error) {
	if s.recommend == nil {
		return nil, nil
	}
	ids := s.recommend.Recommendations(ctx, viewerID)
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > ExploreLimit {
		ids = ids[:ExploreLimit]
	}
	posts, err := s.postRepo.GetByIDs(ctx, ids, viewerID)
	if err != nil {
		return nil, err
	}
	visible := posts[:0]
	for _, p := range posts {
		ok, err := canView(ctx, s.userRepo, p, viewerID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// ToggleLike likes or unlikes a post the user can see and reports the
// resulting state.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID uint) (bool, error) {
	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	ok, err := canView(ctx, s.userRepo, post, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, models.NewForbiddenError("You do not have access to this post")
	}

	liked, err := s.postRepo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	s.events.Emit(ctx, events.PostLiked{PostID: postID, UserID: userID, Liked: liked})
	return liked, nil
}

func (s *PostService) Likers(ctx context.Context, postID, viewerID uint, page, size int) (*models.UserPage, error) {
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

	page, size = normalizePage(page, size)
	users, total, err := s.postRepo.Likers(ctx, postID, size, offset(page, size))
	if err != nil {
		return nil, err
	}
	return &models.UserPage{Users: userSummaries(users), Page: page, Size: size, Total: total}, nil
}
