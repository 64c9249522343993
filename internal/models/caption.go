package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxCaptionLength = 2200
	MaxTagLength     = 50
	MaxCommentLength = 1000
)

var (
	hashtagPattern = regexp.MustCompile(`#([a-zA-Z0-9_가-힣]+)`)
	mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_.]+)`)
)

// Caption is the trimmed text of a post together with the hashtags and
// mentions derived from it.
type Caption struct {
	text     string
	hashtags []string
	mentions []string
}

// NewCaption validates and normalizes raw caption text.
func NewCaption(raw string) (Caption, error) {
	if utf8.RuneCountInString(raw) > MaxCaptionLength {
		return Caption{}, NewValidationError(
			fmt.Sprintf("Caption exceeds maximum length of %d characters", MaxCaptionLength))
	}
	text := strings.TrimSpace(raw)
	return Caption{
		text:     text,
		hashtags: ExtractHashtags(text),
		mentions: extractTokens(mentionPattern, text, 0),
	}, nil
}

func (c Caption) String() string { return c.text }

// Hashtags returns lowercased, deduplicated hashtags in first-seen order.
func (c Caption) Hashtags() []string { return append([]string(nil), c.hashtags...) }

// Mentions returns lowercased, deduplicated mentions in first-seen order.
func (c Caption) Mentions() []string { return append([]string(nil), c.mentions...) }

func (c Caption) IsEmpty() bool { return c.text == "" }

// ExtractHashtags pulls `#token` hashtags out of text. Tokens longer than
// MaxTagLength are dropped.
func ExtractHashtags(text string) []string {
	return extractTokens(hashtagPattern, text, MaxTagLength)
}

// NormalizeHashtag strips a leading '#' and lowercases.
func NormalizeHashtag(tag string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
}

func extractTokens(pattern *regexp.Regexp, text string, maxLen int) []string {
	out := []string{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	seen := make(map[string]struct{})
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		token := strings.ToLower(m[1])
		if maxLen > 0 && utf8.RuneCountInString(token) > maxLen {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// DiffTags returns the tags present in next but not prev (added) and in prev
// but not next (removed), each in input order.
func DiffTags(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, t := range prev {
		prevSet[t] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, t := range next {
		nextSet[t] = struct{}{}
		if _, ok := prevSet[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range prev {
		if _, ok := nextSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}
