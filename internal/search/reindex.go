package search

import (
	"context"
	"fmt"
	"log/slog"

	"shutter/internal/observability"
)

// Scope selects which document types a reindex rebuilds.
type Scope uint8

const (
	ScopePosts Scope = 1 << iota
	ScopeUsers
	ScopeTags

	ScopeAll = ScopePosts | ScopeUsers | ScopeTags
)

// Source produces documents from the primary store in ascending id order,
// starting after afterID.
type Source interface {
	PostDocuments(ctx context.Context, afterID uint, limit int) ([]PostDocument, error)
	UserDocuments(ctx context.Context, afterID uint, limit int) ([]UserDocument, error)
	TagDocuments(ctx context.Context, afterID uint, limit int) ([]TagDocument, error)
}

// Stats summarizes a reindex run.
type Stats struct {
	Posts  int
	Users  int
	Tags   int
	Failed int
	// Pruned counts documents removed because their row no longer exists.
	Pruned int
}

// Reindexer rebuilds documents from the primary store. It closes the gaps
// left by best-effort indexing.
type Reindexer struct {
	source    Source
	index     Index
	batchSize int
}

// NewReindexer returns a Reindexer reading batchSize rows at a time.
func NewReindexer(source Source, index Index, batchSize int) *Reindexer {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Reindexer{source: source, index: index, batchSize: batchSize}
}

// Reindex upserts every document in scope, then deletes indexed documents of
// the same types whose rows are gone. Individual upsert or delete failures
// are logged and counted; a failing source aborts the run before pruning.
func (r *Reindexer) Reindex(ctx context.Context, scope Scope) (Stats, error) {
	var stats Stats

	if scope&ScopePosts != 0 {
		live, n, failed, err := reindexAll(ctx, r.batchSize, r.source.PostDocuments,
			func(d PostDocument) uint { return d.ID }, r.index.UpdatePost)
		stats.Posts, stats.Failed = n, stats.Failed+failed
		if err == nil {
			err = r.prune(ctx, ScopePosts, live, r.index.DeletePost, &stats)
		}
		if err != nil {
			return stats, fmt.Errorf("reindex posts: %w", err)
		}
	}
	if scope&ScopeUsers != 0 {
		live, n, failed, err := reindexAll(ctx, r.batchSize, r.source.UserDocuments,
			func(d UserDocument) uint { return d.ID }, r.index.UpdateUser)
		stats.Users, stats.Failed = n, stats.Failed+failed
		if err == nil {
			err = r.prune(ctx, ScopeUsers, live, r.index.DeleteUser, &stats)
		}
		if err != nil {
			return stats, fmt.Errorf("reindex users: %w", err)
		}
	}
	if scope&ScopeTags != 0 {
		live, n, failed, err := reindexAll(ctx, r.batchSize, r.source.TagDocuments,
			func(d TagDocument) uint { return d.ID }, r.index.UpdateTag)
		stats.Tags, stats.Failed = n, stats.Failed+failed
		if err == nil {
			err = r.prune(ctx, ScopeTags, live, r.index.DeleteTag, &stats)
		}
		if err != nil {
			return stats, fmt.Errorf("reindex tags: %w", err)
		}
	}

	observability.Logger.InfoContext(ctx, "search reindex finished",
		slog.Int("posts", stats.Posts),
		slog.Int("users", stats.Users),
		slog.Int("tags", stats.Tags),
		slog.Int("failed", stats.Failed),
		slog.Int("pruned", stats.Pruned),
	)
	return stats, nil
}

// reindexAll upserts every document fetch yields and returns the ids it saw,
// including those whose upsert failed.
func reindexAll[D any](
	ctx context.Context,
	batch int,
	fetch func(context.Context, uint, int) ([]D, error),
	id func(D) uint,
	upsert func(context.Context, D) error,
) (live map[uint]struct{}, indexed, failed int, err error) {
	live = make(map[uint]struct{})
	var after uint
	for {
		if err := ctx.Err(); err != nil {
			return live, indexed, failed, err
		}
		docs, err := fetch(ctx, after, batch)
		if err != nil {
			return live, indexed, failed, err
		}
		for _, d := range docs {
			live[id(d)] = struct{}{}
			if err := upsert(ctx, d); err != nil {
				failed++
				observability.Logger.WarnContext(ctx, "reindex document failed",
					slog.Uint64("id", uint64(id(d))), slog.String("error", err.Error()))
				continue
			}
			indexed++
		}
		if len(docs) < batch {
			return live, indexed, failed, nil
		}
		after = id(docs[len(docs)-1])
	}
}

// prune deletes indexed documents of kind that are not in live.
func (r *Reindexer) prune(ctx context.Context, kind Scope, live map[uint]struct{}, del func(context.Context, uint) error, stats *Stats) error {
	var after uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := r.index.DocumentIDs(ctx, kind, after, r.batchSize)
		if err != nil {
			return fmt.Errorf("list indexed ids: %w", err)
		}
		for _, id := range ids {
			if _, ok := live[id]; ok {
				continue
			}
			if err := del(ctx, id); err != nil {
				stats.Failed++
				observability.Logger.WarnContext(ctx, "prune document failed",
					slog.Uint64("id", uint64(id)), slog.String("error", err.Error()))
				continue
			}
			stats.Pruned++
		}
		if len(ids) < r.batchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}
