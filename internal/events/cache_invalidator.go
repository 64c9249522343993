package events

import (
	"context"

	"shutter/internal/cache"
)

// CacheInvalidator drops cached reads made stale by a mutation. Deleting a
// post intentionally invalidates nothing: listings and details for the post
// stay served until their TTL runs out.
type CacheInvalidator struct {
	cache   cache.Cache
	handles func(string) bool
}

func NewCacheInvalidator(c cache.Cache) *CacheInvalidator {
	return &CacheInvalidator{
		cache:   c,
		handles: handles(TypeUserRegistered, TypePostCreated),
	}
}

func (l *CacheInvalidator) Name() string                  { return "cache_invalidator" }
func (l *CacheInvalidator) Priority() int                 { return 10 }
func (l *CacheInvalidator) Handles(eventType string) bool { return l.handles(eventType) }

func (l *CacheInvalidator) Handle(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case UserRegistered:
		for _, p := range cache.AutocompletePrefixPatterns(e.Username) {
			l.cache.DeleteByPattern(ctx, p)
		}
	case PostCreated:
		l.cache.DeleteByPattern(ctx, cache.PublicPostsPattern)
		l.cache.Delete(ctx, cache.UserFeedKey(e.AuthorID))
		for _, tag := range e.Tags {
			keys, patterns := cache.HashtagInvalidation(tag)
			for _, k := range keys {
				l.cache.Delete(ctx, k)
			}
			for _, p := range patterns {
				l.cache.DeleteByPattern(ctx, p)
			}
		}
	}
	return nil
}
