package models

import "encoding/json"

// Page is the result of one pagination call against the CMS
type Page struct {
	Posts     []Post  `json:"posts"`
	HasMore   bool    `json:"hasMore"`
	EndCursor *string `json:"endCursor"`
}

// NewPage builds a page, dropping the cursor when there is nothing more to fetch
func NewPage(posts []Post, hasMore bool, endCursor string) Page {
	if posts == nil {
		posts = []Post{}
	}
	if !hasMore || endCursor == "" {
		return Page{Posts: posts}
	}
	cursor := endCursor
	return Page{Posts: posts, HasMore: true, EndCursor: &cursor}
}

// EmptyPage is the "no more posts" page
func EmptyPage() Page {
	return Page{Posts: []Post{}}
}

// MarshalJSON keeps posts an array on the wire
func (p Page) MarshalJSON() ([]byte, error) {
	type alias Page
	if p.Posts == nil {
		p.Posts = []Post{}
	}
	return json.Marshal(alias(p))
}
