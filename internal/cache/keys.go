package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cache key formats
const (
	PostDetailsKeyPrefix  = "post_details_%d_%s"
	PublicPostsKeyPrefix  = "public_posts_page_%d_%d_%s"
	UserFeedKeyPrefix     = "user_feed_%d"
	AutocompleteKeyPrefix = "autocomplete:"

	// PublicPostsPattern matches every cached public listing page.
	PublicPostsPattern = "public_posts_page_*"
)

// Cache TTLs
const (
	PostDetailsTTL  = 30 * time.Minute
	PublicPostsTTL  = 15 * time.Minute
	AutocompleteTTL = 5 * time.Minute
)

func viewerSegment(viewerID uint) string {
	if viewerID == 0 {
		return "anonymous"
	}
	return strconv.FormatUint(uint64(viewerID), 10)
}

// PostDetailsKey is viewer specific because the view carries the viewer's
// liked state.
func PostDetailsKey(postID, viewerID uint) string {
	return fmt.Sprintf(PostDetailsKeyPrefix, postID, viewerSegment(viewerID))
}

func PublicPostsPageKey(page, size int, viewerID uint) string {
	return fmt.Sprintf(PublicPostsKeyPrefix, page, size, viewerSegment(viewerID))
}

func UserFeedKey(authorID uint) string {
	return fmt.Sprintf(UserFeedKeyPrefix, authorID)
}

// AutocompleteKey normalizes the query the same way lookups do.
func AutocompleteKey(query string) string {
	return AutocompleteKeyPrefix + strings.ToLower(strings.TrimSpace(query))
}

// AutocompletePrefixPatterns returns the 1-character bucket and, for terms of
// two or more characters, the 2-character bucket for term.
func AutocompletePrefixPatterns(term string) []string {
	runes := []rune(strings.ToLower(strings.TrimSpace(term)))
	if len(runes) == 0 {
		return nil
	}
	patterns := []string{AutocompleteKeyPrefix + EscapeGlob(string(runes[:1])) + "*"}
	if len(runes) >= 2 {
		patterns = append(patterns, AutocompleteKeyPrefix+EscapeGlob(string(runes[:2]))+"*")
	}
	return patterns
}

// HashtagInvalidation lists the exact keys and patterns to drop when tag gains
// a new post: `#tag` and `tag`, plus the 2-character buckets of both.
func HashtagInvalidation(tag string) (keys, patterns []string) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, nil
	}
	keys = []string{AutocompleteKeyPrefix + "#" + tag, AutocompleteKeyPrefix + tag}
	runes := []rune(tag)
	if len(runes) >= 2 {
		prefix := EscapeGlob(string(runes[:2]))
		patterns = []string{
			AutocompleteKeyPrefix + "#" + prefix + "*",
			AutocompleteKeyPrefix + prefix + "*",
		}
	}
	return keys, patterns
}
