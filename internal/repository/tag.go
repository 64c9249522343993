package repository

import (
	"context"

	"shutter/internal/models"

	"gorm.io/gorm"
)

// TagRepository reads hashtags. Tags are created only through post writes.
type TagRepository interface {
	GetByName(ctx context.Context, name string) (*models.Tag, error)
	// SearchByPrefix returns tags whose name starts with prefix, most used
	// first.
	SearchByPrefix(ctx context.Context, prefix string, limit int) ([]models.Tag, error)
}

type tagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	if err := r.db.WithContext(ctx).Where("name = ?", models.NormalizeHashtag(name)).First(&tag).Error; err != nil {
		return nil, notFoundOrInternal(err, "Tag", name)
	}
	return &tag, nil
}

func (r *tagRepository) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.db.WithContext(ctx).
		Select("tags.*").
		Where(`tags.name LIKE ? ESCAPE '\'`, prefixPattern(models.NormalizeHashtag(prefix))).
		Order("(SELECT COUNT(*) FROM post_tags WHERE post_tags.tag_id = tags.id) DESC").
		Order("tags.name ASC").
		Limit(limit).
		Find(&tags).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tags, nil
}
