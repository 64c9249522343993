package repository

import (
	"context"

	"shutter/internal/models"
	"shutter/internal/search"

	"gorm.io/gorm"
)

// Documents builds search documents from the primary store. It feeds both
// the post-commit index updater (one document at a time) and the Reindexer
// (keyset batches).
type Documents struct {
	db *gorm.DB
}

var _ search.Source = (*Documents)(nil)

func NewDocuments(db *gorm.DB) *Documents {
	return &Documents{db: db}
}

func (d *Documents) PostDocument(ctx context.Context, postID uint) (search.PostDocument, error) {
	docs, err := d.postDocuments(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.id = ?", postID)
	})
	if err != nil {
		return search.PostDocument{}, err
	}
	if len(docs) == 0 {
		return search.PostDocument{}, models.NewNotFoundError("Post", postID)
	}
	return docs[0], nil
}

func (d *Documents) PostDocuments(ctx context.Context, afterID uint, limit int) ([]search.PostDocument, error) {
	return d.postDocuments(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.id > ?", afterID).Order("posts.id ASC").Limit(limit)
	})
}

func (d *Documents) postDocuments(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]search.PostDocument, error) {
	db := d.db.WithContext(ctx)
	var posts []*models.Post
	if err := applyPostDetails(db, 0).Preload("User").Scopes(scope).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := loadTags(db, posts); err != nil {
		return nil, models.NewInternalError(err)
	}
	docs := make([]search.PostDocument, 0, len(posts))
	for _, p := range posts {
		docs = append(docs, search.NewPostDocument(p))
	}
	return docs, nil
}

func (d *Documents) UserDocument(ctx context.Context, userID uint) (search.UserDocument, error) {
	docs, err := d.userDocuments(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("users.id = ?", userID)
	})
	if err != nil {
		return search.UserDocument{}, err
	}
	if len(docs) == 0 {
		return search.UserDocument{}, models.NewNotFoundError("User", userID)
	}
	return docs[0], nil
}

func (d *Documents) UserDocuments(ctx context.Context, afterID uint, limit int) ([]search.UserDocument, error) {
	return d.userDocuments(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("users.id > ?", afterID).Order("users.id ASC").Limit(limit)
	})
}

func (d *Documents) userDocuments(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]search.UserDocument, error) {
	var rows []userWithCounts
	if err := d.db.WithContext(ctx).Model(&models.User{}).
		Select("users.*, " + profileCounts).
		Scopes(scope).
		Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	docs := make([]search.UserDocument, 0, len(rows))
	for i := range rows {
		docs = append(docs, search.NewUserDocument(&rows[i].User, rows[i].profile()))
	}
	return docs, nil
}

func (d *Documents) TagDocument(ctx context.Context, tagID uint) (search.TagDocument, error) {
	var tag models.Tag
	if err := d.db.WithContext(ctx).First(&tag, tagID).Error; err != nil {
		return search.TagDocument{}, notFoundOrInternal(err, "Tag", tagID)
	}
	return d.tagDocument(ctx, tag)
}

func (d *Documents) TagDocuments(ctx context.Context, afterID uint, limit int) ([]search.TagDocument, error) {
	var tags []models.Tag
	if err := d.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&tags).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	docs := make([]search.TagDocument, 0, len(tags))
	for _, tag := range tags {
		doc, err := d.tagDocument(ctx, tag)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// tagDocument counts a tag's posts; LastUsed is the newest link, or the
// tag's creation time when it has none.
func (d *Documents) tagDocument(ctx context.Context, tag models.Tag) (search.TagDocument, error) {
	db := d.db.WithContext(ctx)
	var usage int64
	if err := db.Model(&models.PostTag{}).Where("tag_id = ?", tag.ID).Count(&usage).Error; err != nil {
		return search.TagDocument{}, models.NewInternalError(err)
	}

	var latest []models.PostTag
	if err := db.Where("tag_id = ?", tag.ID).Order("created_at DESC").Limit(1).Find(&latest).Error; err != nil {
		return search.TagDocument{}, models.NewInternalError(err)
	}
	lastUsed := tag.CreatedAt
	if len(latest) > 0 {
		lastUsed = latest[0].CreatedAt
	}
	return search.NewTagDocument(tag, usage, lastUsed), nil
}
