package models

// SearchResult is the response of search and autocomplete queries.
type SearchResult struct {
	Users    []UserSummary `json:"users"`
	Posts    []PostView    `json:"posts"`
	Hashtags []string      `json:"hashtags"`
}

// EmptySearchResult returns a result whose slices encode as [] rather than null.
func EmptySearchResult() SearchResult {
	return SearchResult{Users: []UserSummary{}, Posts: []PostView{}, Hashtags: []string{}}
}
