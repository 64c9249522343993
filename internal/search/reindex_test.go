package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	posts []PostDocument
	users []UserDocument
	tags  []TagDocument
	err   error
}

func page[D any](all []D, id func(D) uint, after uint, limit int) []D {
	var out []D
	for _, d := range all {
		if id(d) > after {
			out = append(out, d)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func (s *sliceSource) PostDocuments(_ context.Context, after uint, limit int) ([]PostDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return page(s.posts, func(d PostDocument) uint { return d.ID }, after, limit), nil
}

func (s *sliceSource) UserDocuments(_ context.Context, after uint, limit int) ([]UserDocument, error) {
	return page(s.users, func(d UserDocument) uint { return d.ID }, after, limit), nil
}

func (s *sliceSource) TagDocuments(_ context.Context, after uint, limit int) ([]TagDocument, error) {
	return page(s.tags, func(d TagDocument) uint { return d.ID }, after, limit), nil
}

func TestReindexer_RebuildsAcrossBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := setupIndex(t)

	src := &sliceSource{}
	for i := uint(1); i <= 5; i++ {
		src.posts = append(src.posts, PostDocument{ID: i, Caption: "caption", IsActive: true})
	}
	src.users = []UserDocument{{ID: 1, Username: "amy", IsActive: true}}
	src.tags = []TagDocument{{ID: 1, Name: "go", IsActive: true}, {ID: 2, Name: "gopher", IsActive: true}}

	stats, err := NewReindexer(src, idx, 2).Reindex(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, Stats{Posts: 5, Users: 1, Tags: 2}, stats)

	docs, err := idx.SearchPosts(ctx, "caption", 100)
	require.NoError(t, err)
	assert.Len(t, docs, 5)
}

func TestReindexer_ScopeAndSourceErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := setupIndex(t)
	src := &sliceSource{
		users: []UserDocument{{ID: 1, Username: "amy", IsActive: true}},
		err:   errors.New("db down"),
	}

	stats, err := NewReindexer(src, idx, 10).Reindex(ctx, ScopeUsers)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)
	assert.Zero(t, stats.Posts)

	_, err = NewReindexer(src, idx, 10).Reindex(ctx, ScopePosts)
	assert.Error(t, err)
}

func TestReindexer_PrunesDocumentsWithoutRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := setupIndex(t)

	// Left behind by deletes whose index event was lost.
	for i := uint(1); i <= 4; i++ {
		require.NoError(t, idx.IndexPost(ctx, PostDocument{ID: i, Caption: "sunset", IsActive: true}))
	}
	require.NoError(t, idx.IndexTag(ctx, TagDocument{ID: 9, Name: "stale", IsActive: true}))

	src := &sliceSource{
		posts: []PostDocument{{ID: 2, Caption: "sunset", IsActive: true}, {ID: 5, Caption: "sunset", IsActive: true}},
	}

	stats, err := NewReindexer(src, idx, 2).Reindex(ctx, ScopePosts)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 3, stats.Pruned)

	ids, err := idx.DocumentIDs(ctx, ScopePosts, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 5}, ids)

	// Tags were out of scope and stay untouched.
	tags, err := idx.DocumentIDs(ctx, ScopeTags, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint{9}, tags)
}

func TestReindexer_SourceErrorSkipsPruning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := setupIndex(t)
	require.NoError(t, idx.IndexPost(ctx, PostDocument{ID: 1, Caption: "kept", IsActive: true}))

	stats, err := NewReindexer(&sliceSource{err: errors.New("db down")}, idx, 10).Reindex(ctx, ScopePosts)
	require.Error(t, err)
	assert.Zero(t, stats.Pruned)

	ids, err := idx.DocumentIDs(ctx, ScopePosts, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, ids)
}
