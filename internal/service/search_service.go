package service

import (
	"context"
	"log/slog"
	"strings"

	"shutter/internal/cache"
	"shutter/internal/models"
	"shutter/internal/observability"
	"shutter/internal/repository"
	"shutter/internal/search"
)

const (
	SearchLimit           = 10
	AutocompleteTagLimit  = 3
	AutocompleteUserLimit = 10
)

// SearchService answers search and autocomplete from the index, falling back
// to LIKE queries on the primary store whenever the index fails.
type SearchService struct {
	index    search.Index
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	tagRepo  repository.TagRepository
	cache    cache.Cache
}

func NewSearchService(
	index search.Index,
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	tagRepo repository.TagRepository,
	c cache.Cache,
) *SearchService {
	return &SearchService{index: index, postRepo: postRepo, userRepo: userRepo, tagRepo: tagRepo, cache: c}
}

// Search treats "#tag" as a hashtag lookup and anything else as a caption and
// username query. Posts are filtered to what the viewer may see in results:
// Public, or FollowersOnly by the viewer or someone they follow.
func (s *SearchService) Search(ctx context.Context, query string, viewerID uint) (*models.SearchResult, error) {
	result := models.EmptySearchResult()
	query = strings.TrimSpace(query)
	if query == "" {
		return &result, nil
	}

	followed, err := s.followedSet(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	var posts []*models.Post
	if strings.HasPrefix(query, "#") {
		tag := models.NormalizeHashtag(query)
		if tag == "" {
			return &result, nil
		}
		result.Hashtags = []string{tag}
		if posts, err = s.postsByTag(ctx, tag, viewerID); err != nil {
			return nil, err
		}
	} else {
		if posts, err = s.postsByCaption(ctx, query, viewerID); err != nil {
			return nil, err
		}
		if result.Users, err = s.users(ctx, query); err != nil {
			return nil, err
		}
	}

	for _, p := range posts {
		if searchVisible(p, viewerID, followed) {
			result.Posts = append(result.Posts, p.View())
		}
	}
	return &result, nil
}

func searchVisible(p *models.Post, viewerID uint, followed map[uint]bool) bool {
	switch p.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityFollowersOnly:
		return viewerID != 0 && (p.UserID == viewerID || followed[p.UserID])
	}
	return false
}

func (s *SearchService) followedSet(ctx context.Context, viewerID uint) (map[uint]bool, error) {
	set := map[uint]bool{}
	if viewerID == 0 {
		return set, nil
	}
	ids, err := s.userRepo.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Index hits are re-read from the primary store so views carry fresh counts
// and the viewer's like state; ids of deleted posts drop out.
func (s *SearchService) hydrate(ctx context.Context, docs []search.PostDocument, viewerID uint) ([]*models.Post, error) {
	ids := make([]uint, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return s.postRepo.GetByIDs(ctx, ids, viewerID)
}

func (s *SearchService) postsByTag(ctx context.Context, tag string, viewerID uint) ([]*models.Post, error) {
	if s.index != nil {
		docs, err := s.index.SearchPostsByTag(ctx, tag, SearchLimit)
		if err == nil {
			return s.hydrate(ctx, docs, viewerID)
		}
		degraded(ctx, "search_posts_by_tag", tag, err)
	}
	return s.postRepo.SearchByTag(ctx, tag, SearchLimit)
}

func (s *SearchService) postsByCaption(ctx context.Context, query string, viewerID uint) ([]*models.Post, error) {
	if s.index != nil {
		docs, err := s.index.SearchPosts(ctx, query, SearchLimit)
		if err == nil {
			return s.hydrate(ctx, docs, viewerID)
		}
		degraded(ctx, "search_posts", query, err)
	}
	return s.postRepo.SearchByCaption(ctx, query, SearchLimit)
}

func (s *SearchService) users(ctx context.Context, query string) ([]models.UserSummary, error) {
	if s.index != nil {
		docs, err := s.index.SearchUsers(ctx, query, SearchLimit)
		if err == nil {
			return userDocSummaries(docs), nil
		}
		degraded(ctx, "search_users", query, err)
	}
	users, err := s.userRepo.SearchByUsername(ctx, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	return userSummaries(users), nil
}

// Autocomplete returns up to three hashtags and ten usernames starting with
// the query (a leading '#' is ignored), cached under autocomplete:<query>.
func (s *SearchService) Autocomplete(ctx context.Context, query string) (*models.SearchResult, error) {
	term := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(query)), "#")
	if term == "" {
		result := models.EmptySearchResult()
		return &result, nil
	}

	result, err := cache.Aside(ctx, s.cache, cache.AutocompleteKey(query), cache.AutocompleteTTL,
		func(ctx context.Context) (models.SearchResult, error) {
			result := models.EmptySearchResult()
			tags, err := s.suggestTags(ctx, term)
			if err != nil {
				return result, err
			}
			users, err := s.suggestUsers(ctx, term)
			if err != nil {
				return result, err
			}
			result.Hashtags = tags
			result.Users = users
			return result, nil
		})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *SearchService) suggestTags(ctx context.Context, prefix string) ([]string, error) {
	names := []string{}
	if s.index != nil {
		docs, err := s.index.SearchTags(ctx, prefix, AutocompleteTagLimit)
		if err == nil {
			for _, d := range docs {
				names = append(names, d.Name)
			}
			return names, nil
		}
		degraded(ctx, "search_tags", prefix, err)
	}
	tags, err := s.tagRepo.SearchByPrefix(ctx, prefix, AutocompleteTagLimit)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names, nil
}

func (s *SearchService) suggestUsers(ctx context.Context, prefix string) ([]models.UserSummary, error) {
	if s.index != nil {
		docs, err := s.index.SuggestUsers(ctx, prefix, AutocompleteUserLimit)
		if err == nil {
			return userDocSummaries(docs), nil
		}
		degraded(ctx, "suggest_users", prefix, err)
	}
	users, err := s.userRepo.SuggestByPrefix(ctx, prefix, AutocompleteUserLimit)
	if err != nil {
		return nil, err
	}
	return userSummaries(users), nil
}

func userDocSummaries(docs []search.UserDocument) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.UserSummary{ID: d.ID, Username: d.Username, ProfileImageURL: d.ProfileImageURL})
	}
	return out
}

func degraded(ctx context.Context, op, query string, err error) {
	observability.Logger.WarnContext(ctx, "search index failed, using primary store",
		slog.String("op", op),
		slog.String("query", query),
		slog.String("error", err.Error()))
}
