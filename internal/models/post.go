package models

import "encoding/json"

// Tag is a post tag as reported by the CMS
type Tag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CoverImage wraps the original cover image URL
type CoverImage struct {
	Src string `json:"src"`
}

// Post is the normalized content entity served by every endpoint.
// Content is only filled for single-post lookups and the search corpus.
type Post struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle"`
	Brief       string      `json:"brief"`
	Content     string      `json:"content"`
	CoverImage  *CoverImage `json:"coverImage"`
	PublishedAt string      `json:"publishedAt"`
	Tags        []Tag       `json:"tags"`
}

// MarshalJSON keeps tags an array even when the post has none
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	if p.Tags == nil {
		p.Tags = []Tag{}
	}
	return json.Marshal(alias(p))
}

// UniqueTags drops repeated tag slugs, keeping the first occurrence
func UniqueTags(tags []Tag) []Tag {
	out := make([]Tag, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t.Slug == "" {
			continue
		}
		if _, ok := seen[t.Slug]; ok {
			continue
		}
		seen[t.Slug] = struct{}{}
		out = append(out, t)
	}
	return out
}
