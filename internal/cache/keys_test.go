package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "post_details_5_anonymous", PostDetailsKey(5, 0))
	assert.Equal(t, "post_details_5_9", PostDetailsKey(5, 9))
	assert.Equal(t, "public_posts_page_2_20_9", PublicPostsPageKey(2, 20, 9))
	assert.Equal(t, "user_feed_3", UserFeedKey(3))
	assert.Equal(t, "autocomplete:#go", AutocompleteKey("  #Go "))
}

func TestAutocompletePrefixPatterns(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"autocomplete:a*", "autocomplete:al*"}, AutocompletePrefixPatterns("Alice"))
	assert.Equal(t, []string{"autocomplete:z*"}, AutocompletePrefixPatterns("z"))
	assert.Equal(t, []string{"autocomplete:서*", "autocomplete:서울*"}, AutocompletePrefixPatterns("서울여행"))
	assert.Nil(t, AutocompletePrefixPatterns(" "))
}

func TestHashtagInvalidation(t *testing.T) {
	t.Parallel()
	keys, patterns := HashtagInvalidation("abcd")
	assert.Equal(t, []string{"autocomplete:#abcd", "autocomplete:abcd"}, keys)
	assert.Equal(t, []string{"autocomplete:#ab*", "autocomplete:ab*"}, patterns)

	keys, patterns = HashtagInvalidation("x")
	assert.Equal(t, []string{"autocomplete:#x", "autocomplete:x"}, keys)
	assert.Empty(t, patterns)
}

func TestCompileGlob(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"autocomplete:ab*", "autocomplete:abcd", true},
		{"autocomplete:ab*", "autocomplete:a", false},
		{"autocomplete:ab*", "xautocomplete:ab", false},
		{"post_?", "post_1", true},
		{"post_?", "post_12", false},
		{"page_[0-2]", "page_1", true},
		{"page_[^0-2]", "page_1", false},
		{`lit\*`, "lit*", true},
		{`lit\*`, "lits", false},
		{"a.b", "axb", false},
		{"q:" + EscapeGlob("50%*"), "q:50%*", true},
	}
	for _, tt := range tests {
		re, err := compileGlob(tt.pattern)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, re.MatchString(tt.key), "%s ~ %s", tt.pattern, tt.key)
	}
}
