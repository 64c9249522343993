package search

import (
	"context"
	"fmt"
	"strings"

	"shutter/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("shutter/search")

// GormIndex keeps the documents in dedicated tables of a SQL database, either
// the primary store or a separate one.
type GormIndex struct {
	db *gorm.DB
}

// NewGormIndex returns an index over db. Call Migrate first.
func NewGormIndex(db *gorm.DB) *GormIndex {
	return &GormIndex{db: db}
}

// Migrate creates the document tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PostDocument{}, &UserDocument{}, &TagDocument{}); err != nil {
		return fmt.Errorf("failed to migrate search documents: %w", err)
	}
	return nil
}

func (g *GormIndex) upsert(ctx context.Context, op string, id uint, doc interface{}) (err error) {
	ctx, span := tracer.Start(ctx, "search."+op)
	span.SetAttributes(attribute.Int64("search.document_id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(doc).Error
	countResult(op, err)
	return err
}

func (g *GormIndex) remove(ctx context.Context, op string, id uint, model interface{}) (err error) {
	ctx, span := tracer.Start(ctx, "search."+op)
	span.SetAttributes(attribute.Int64("search.document_id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	err = g.db.WithContext(ctx).Delete(model, id).Error
	countResult(op, err)
	return err
}

func countResult(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.SearchRequests.WithLabelValues(op, result).Inc()
}

func (g *GormIndex) IndexPost(ctx context.Context, doc PostDocument) error {
	return g.upsert(ctx, "index_post", doc.ID, &doc)
}

func (g *GormIndex) UpdatePost(ctx context.Context, doc PostDocument) error {
	return g.upsert(ctx, "update_post", doc.ID, &doc)
}

func (g *GormIndex) DeletePost(ctx context.Context, id uint) error {
	return g.remove(ctx, "delete_post", id, &PostDocument{})
}

func (g *GormIndex) IndexUser(ctx context.Context, doc UserDocument) error {
	return g.upsert(ctx, "index_user", doc.ID, &doc)
}

func (g *GormIndex) UpdateUser(ctx context.Context, doc UserDocument) error {
	return g.upsert(ctx, "update_user", doc.ID, &doc)
}

func (g *GormIndex) DeleteUser(ctx context.Context, id uint) error {
	return g.remove(ctx, "delete_user", id, &UserDocument{})
}

func (g *GormIndex) IndexTag(ctx context.Context, doc TagDocument) error {
	return g.upsert(ctx, "index_tag", doc.ID, &doc)
}

func (g *GormIndex) UpdateTag(ctx context.Context, doc TagDocument) error {
	return g.upsert(ctx, "update_tag", doc.ID, &doc)
}

func (g *GormIndex) DeleteTag(ctx context.Context, id uint) error {
	return g.remove(ctx, "delete_tag", id, &TagDocument{})
}

// escapeLike escapes LIKE metacharacters; queries use ESCAPE '\'.
func (g *GormIndex) DocumentIDs(ctx context.Context, kind Scope, afterID uint, limit int) (ids []uint, err error) {
	var model interface{}
	switch kind {
	case ScopePosts:
		model = &PostDocument{}
	case ScopeUsers:
		model = &UserDocument{}
	case ScopeTags:
		model = &TagDocument{}
	default:
		return nil, fmt.Errorf("document ids: scope %d is not a single type", kind)
	}

	ctx, span := tracer.Start(ctx, "search.document_ids")
	defer func() { observability.EndSpan(span, err) }()

	err = g.db.WithContext(ctx).Model(model).
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	countResult("document_ids", err)
	return ids, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (g *GormIndex) search(ctx context.Context, op, query string, dest interface{}, scope func(*gorm.DB) *gorm.DB) (err error) {
	ctx, span := tracer.Start(ctx, "search."+op)
	span.SetAttributes(attribute.String("search.query", query))
	defer func() { observability.EndSpan(span, err) }()

	err = scope(g.db.WithContext(ctx).Where("is_active = ?", true)).Find(dest).Error
	countResult(op, err)
	return err
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}

func (g *GormIndex) SearchPosts(ctx context.Context, query string, limit int) ([]PostDocument, error) {
	var docs []PostDocument
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	err := g.search(ctx, "search_posts", query, &docs, func(db *gorm.DB) *gorm.DB {
		return db.Where(`LOWER(caption) LIKE ? ESCAPE '\'`, pattern).
			Order("created_at DESC").Limit(normalizeLimit(limit))
	})
	return docs, err
}

func (g *GormIndex) SearchPostsByTag(ctx context.Context, tag string, limit int) ([]PostDocument, error) {
	var docs []PostDocument
	// Tags are stored as a JSON array, so an exact tag appears quoted.
	pattern := `%"` + escapeLike(strings.ToLower(strings.TrimSpace(tag))) + `"%`
	err := g.search(ctx, "search_posts_by_tag", tag, &docs, func(db *gorm.DB) *gorm.DB {
		return db.Where(`tags LIKE ? ESCAPE '\'`, pattern).
			Order("created_at DESC").Limit(normalizeLimit(limit))
	})
	return docs, err
}

func (g *GormIndex) SearchUsers(ctx context.Context, query string, limit int) ([]UserDocument, error) {
	var docs []UserDocument
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	err := g.search(ctx, "search_users", query, &docs, func(db *gorm.DB) *gorm.DB {
		return db.Where(`LOWER(username) LIKE ? ESCAPE '\'`, pattern).
			Order("username ASC").Limit(normalizeLimit(limit))
	})
	return docs, err
}

func (g *GormIndex) SuggestUsers(ctx context.Context, prefix string, limit int) ([]UserDocument, error) {
	var docs []UserDocument
	pattern := escapeLike(strings.ToLower(strings.TrimSpace(prefix))) + "%"
	err := g.search(ctx, "suggest_users", prefix, &docs, func(db *gorm.DB) *gorm.DB {
		return db.Where(`LOWER(username) LIKE ? ESCAPE '\'`, pattern).
			Order("username ASC").Limit(normalizeLimit(limit))
	})
	return docs, err
}

func (g *GormIndex) SearchTags(ctx context.Context, prefix string, limit int) ([]TagDocument, error) {
	var docs []TagDocument
	pattern := escapeLike(strings.ToLower(strings.TrimSpace(prefix))) + "%"
	err := g.search(ctx, "search_tags", prefix, &docs, func(db *gorm.DB) *gorm.DB {
		return db.Where(`name LIKE ? ESCAPE '\'`, pattern).
			Order("usage_count DESC, name ASC").Limit(normalizeLimit(limit))
	})
	return docs, err
}
