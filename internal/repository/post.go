package repository

import (
	"context"
	"time"

	"shutter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations. Writes that
// touch more than one table run in a single transaction.
type PostRepository interface {
	// Create inserts post, find-or-creates its tags and links them. It returns
	// the tags that did not exist before.
	Create(ctx context.Context, post *models.Post, tags []string) ([]models.Tag, error)
	// Update persists caption and visibility, unlinks removed tags and links
	// added ones. It returns the tags that did not exist before.
	Update(ctx context.Context, post *models.Post, added, removed []string) ([]models.Tag, error)
	// Delete removes the post with its tag links, likes, comments and
	// notifications.
	Delete(ctx context.Context, id uint) error

	GetByID(ctx context.Context, id, viewerID uint) (*models.Post, error)
	GetByIDs(ctx context.Context, ids []uint, viewerID uint) ([]*models.Post, error)
	ListPublic(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, int64, error)
	ListByUser(ctx context.Context, authorID, viewerID uint, visible []models.Visibility, limit, offset int) ([]*models.Post, int64, error)
	Timeline(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, int64, error)
	// Popular returns the most liked public posts. When excludeFollowedBy is
	// set, posts by that user and by users they follow are skipped.
	Popular(ctx context.Context, viewerID, excludeFollowedBy uint, limit int) ([]*models.Post, error)
	SearchByCaption(ctx context.Context, query string, limit int) ([]*models.Post, error)
	SearchByTag(ctx context.Context, tag string, limit int) ([]*models.Post, error)

	ToggleLike(ctx context.Context, postID, userID uint) (bool, error)
	Likers(ctx context.Context, postID uint, limit, offset int) ([]models.User, int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// applyPostDetails adds subqueries to fetch counts and liked status in a single query.
func applyPostDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comments_count, " +
		"(SELECT COUNT(*) FROM post_likes WHERE post_likes.post_id = posts.id) AS likes_count"

	if viewerID != 0 {
		return db.Select(selectQuery+", EXISTS(SELECT 1 FROM post_likes WHERE post_likes.post_id = posts.id AND post_likes.user_id = ?) AS liked", viewerID)
	}
	return db.Select(selectQuery + ", false AS liked")
}

// loadTags fills Post.Tags from post_tags.
func loadTags(db *gorm.DB, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
		p.Tags = []string{}
	}

	var rows []struct {
		PostID uint
		Name   string
	}
	if err := db.Table("post_tags").
		Select("post_tags.post_id, tags.name").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("post_tags.post_id IN ?", ids).
		Order("tags.name ASC").
		Scan(&rows).Error; err != nil {
		return err
	}

	byID := make(map[uint]*models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	for _, row := range rows {
		if p, ok := byID[row.PostID]; ok {
			p.Tags = append(p.Tags, row.Name)
		}
	}
	return nil
}

// findOrCreateTag inserts name and falls back to reading the existing row
// when the insert conflicts. It never checks before inserting, so a
// concurrent creator cannot slip in between a check and the insert.
func findOrCreateTag(tx *gorm.DB, name string) (models.Tag, bool, error) {
	tag := models.Tag{Name: name}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tag)
	if res.Error != nil && !isUniqueViolation(res.Error) {
		return models.Tag{}, false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return tag, true, nil
	}

	var existing models.Tag
	if err := tx.Where("name = ?", name).First(&existing).Error; err != nil {
		return models.Tag{}, false, err
	}
	return existing, false, nil
}

// linkTags associates names with postID and returns the tags it created.
func linkTags(tx *gorm.DB, postID uint, names []string) ([]models.Tag, error) {
	created := []models.Tag{}
	for _, name := range names {
		tag, isNew, err := findOrCreateTag(tx, name)
		if err != nil {
			return nil, err
		}
		if isNew {
			created = append(created, tag)
		}
		link := models.PostTag{PostID: postID, TagID: tag.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post, tags []string) ([]models.Tag, error) {
	var created []models.Tag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(post).Error; err != nil {
			return err
		}
		var err error
		created, err = linkTags(tx, post.ID, tags)
		return err
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	post.Tags = tags
	return created, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post, added, removed []string) ([]models.Tag, error) {
	var created []models.Tag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post.UpdatedAt = time.Now()
		res := tx.Model(&models.Post{}).Where("id = ?", post.ID).Updates(map[string]interface{}{
			"caption":    post.Caption,
			"visibility": post.Visibility,
			"updated_at": post.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", post.ID)
		}

		if len(removed) > 0 {
			if err := tx.Where("post_id = ? AND tag_id IN (?)", post.ID,
				tx.Model(&models.Tag{}).Select("id").Where("name IN ?", removed),
			).Delete(&models.PostTag{}).Error; err != nil {
				return err
			}
		}

		var err error
		created, err = linkTags(tx, post.ID, added)
		return err
	})
	if err != nil {
		return nil, internal(err)
	}
	return created, nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dependent := range []interface{}{&models.PostTag{}, &models.PostLike{}, &models.Comment{}, &models.Notification{}} {
			if err := tx.Where("post_id = ?", id).Delete(dependent).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	return internal(err)
}

func (r *postRepository) GetByID(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	var post models.Post
	db := r.db.WithContext(ctx)
	if err := applyPostDetails(db, viewerID).
		Preload("User").
		First(&post, id).Error; err != nil {
		return nil, notFoundOrInternal(err, "Post", id)
	}
	if err := loadTags(db, []*models.Post{&post}); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

// GetByIDs returns the existing posts among ids, in the order of ids.
func (r *postRepository) GetByIDs(ctx context.Context, ids []uint, viewerID uint) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}
	var posts []*models.Post
	db := r.db.WithContext(ctx)
	if err := applyPostDetails(db, viewerID).
		Preload("User").
		Where("posts.id IN ?", ids).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := loadTags(db, posts); err != nil {
		return nil, models.NewInternalError(err)
	}

	byID := make(map[uint]*models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]*models.Post, 0, len(posts))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// list runs a paginated, detail-enriched post query. scope carries the
// filter and is applied to both the count and the page query.
func (r *postRepository) list(ctx context.Context, viewerID uint, scope func(*gorm.DB) *gorm.DB, limit, offset int) ([]*models.Post, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Post{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var posts []*models.Post
	if err := applyPostDetails(db, viewerID).
		Preload("User").
		Scopes(scope).
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	if err := loadTags(db, posts); err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func (r *postRepository) ListPublic(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, int64, error) {
	return r.list(ctx, viewerID, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.visibility = ?", models.VisibilityPublic)
	}, limit, offset)
}

func (r *postRepository) ListByUser(ctx context.Context, authorID, viewerID uint, visible []models.Visibility, limit, offset int) ([]*models.Post, int64, error) {
	return r.list(ctx, viewerID, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.user_id = ? AND posts.visibility IN ?", authorID, visible)
	}, limit, offset)
}

// Timeline lists the viewer's own posts and the Public or FollowersOnly
// posts of users the viewer follows.
func (r *postRepository) Timeline(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, int64, error) {
	followed := r.db.WithContext(ctx).Model(&models.UserFollow{}).
		Select("following_id").
		Where("follower_id = ?", viewerID)
	return r.list(ctx, viewerID, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.user_id = ? OR (posts.user_id IN (?) AND posts.visibility IN ?)",
			viewerID, followed,
			[]models.Visibility{models.VisibilityPublic, models.VisibilityFollowersOnly})
	}, limit, offset)
}

func (r *postRepository) Popular(ctx context.Context, viewerID, excludeFollowedBy uint, limit int) ([]*models.Post, error) {
	db := r.db.WithContext(ctx)
	q := applyPostDetails(db, viewerID).
		Preload("User").
		Where("posts.visibility = ?", models.VisibilityPublic)
	if excludeFollowedBy != 0 {
		followed := r.db.WithContext(ctx).Model(&models.UserFollow{}).
			Select("following_id").
			Where("follower_id = ?", excludeFollowedBy)
		q = q.Where("posts.user_id <> ? AND posts.user_id NOT IN (?)", excludeFollowedBy, followed)
	}

	var posts []*models.Post
	if err := q.Order("likes_count DESC").
		Order("posts.created_at DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := loadTags(db, posts); err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// SearchByCaption is the primary-store fallback for caption search.
// Visibility filtering is left to the caller.
func (r *postRepository) SearchByCaption(ctx context.Context, query string, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	db := r.db.WithContext(ctx)
	if err := applyPostDetails(db, 0).
		Preload("User").
		Where(`LOWER(posts.caption) LIKE ? ESCAPE '\'`, containsPattern(query)).
		Order("posts.created_at DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := loadTags(db, posts); err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// SearchByTag is the primary-store fallback for hashtag search.
func (r *postRepository) SearchByTag(ctx context.Context, tag string, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	db := r.db.WithContext(ctx)
	tagged := r.db.WithContext(ctx).Table("post_tags").
		Select("post_tags.post_id").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("tags.name = ?", models.NormalizeHashtag(tag))
	if err := applyPostDetails(db, 0).
		Preload("User").
		Where("posts.id IN (?)", tagged).
		Order("posts.created_at DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := loadTags(db, posts); err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// ToggleLike removes the viewer's like when present, otherwise adds it, and
// reports whether the post is now liked. A concurrent duplicate insert is
// absorbed by the unique (post_id, user_id) index.
func (r *postRepository) ToggleLike(ctx context.Context, postID, userID uint) (bool, error) {
	var liked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			liked = false
			return nil
		}
		like := models.PostLike{PostID: postID, UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
			return err
		}
		liked = true
		return nil
	})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return liked, nil
}

func (r *postRepository) Likers(ctx context.Context, postID uint, limit, offset int) ([]models.User, int64, error) {
	db := r.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var users []models.User
	if err := db.
		Joins("JOIN post_likes ON post_likes.user_id = users.id").
		Where("post_likes.post_id = ?", postID).
		Order("post_likes.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}
