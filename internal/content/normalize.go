package content

import (
	"strings"

	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/bilgisen/kafkaesque/internal/utils"
)

// briefLength is the rune budget of a brief derived from the post body
const briefLength = 160

// normalizePost maps a CMS node into a Post. Fields that were not requested stay
// empty strings, nil cover image or an empty tag list.
func normalizePost(node postNode) models.Post {
	post := models.Post{
		ID:          strings.TrimSpace(node.ID),
		Slug:        strings.TrimSpace(node.Slug),
		Title:       strings.TrimSpace(node.Title),
		Subtitle:    strings.TrimSpace(deref(node.Subtitle)),
		Brief:       strings.TrimSpace(deref(node.Brief)),
		PublishedAt: deref(node.PublishedAt),
		Tags:        []models.Tag{},
	}

	if node.Content != nil {
		post.Content = node.Content.HTML
	}
	if node.CoverImage != nil && strings.TrimSpace(node.CoverImage.URL) != "" {
		post.CoverImage = &models.CoverImage{Src: strings.TrimSpace(node.CoverImage.URL)}
	}

	if len(node.Tags) > 0 {
		tags := make([]models.Tag, 0, len(node.Tags))
		for _, t := range node.Tags {
			tags = append(tags, models.Tag{Name: strings.TrimSpace(t.Name), Slug: strings.TrimSpace(t.Slug)})
		}
		post.Tags = models.UniqueTags(tags)
	}

	if post.Brief == "" && post.Content != "" {
		post.Brief = utils.Truncate(utils.StripHTML(post.Content), briefLength)
	}

	return post
}

func normalizeEdges(edges []postEdge) []models.Post {
	posts := make([]models.Post, 0, len(edges))
	for _, edge := range edges {
		posts = append(posts, normalizePost(edge.Node))
	}
	return posts
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
