package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePostListingFields(t *testing.T) {
	post := normalizePost(postNode{ID: " 1 ", Slug: "hello", Title: " Hello "})

	assert.Equal(t, "1", post.ID)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "", post.Subtitle)
	assert.Equal(t, "", post.Brief)
	assert.Equal(t, "", post.Content)
	assert.Equal(t, "", post.PublishedAt)
	assert.Nil(t, post.CoverImage)
	assert.NotNil(t, post.Tags)
	assert.Empty(t, post.Tags)
}

func TestNormalizePostDedupesTags(t *testing.T) {
	node := postNode{ID: "1", Tags: []tagNode{{"Go", "go"}, {"Golang", "go"}}}

	post := normalizePost(node)
	assert.Equal(t, []models.Tag{{Name: "Go", Slug: "go"}}, post.Tags)
}

func TestNormalizePostDerivesLongBrief(t *testing.T) {
	body := "<p>" + strings.Repeat("census deprivation ", 30) + "</p>"
	brief := "keep me"

	node := postNode{ID: "1"}
	node.Content = &struct {
		HTML string `json:"html"`
	}{HTML: body}

	derived := normalizePost(node)
	assert.True(t, strings.HasSuffix(derived.Brief, "..."))
	assert.LessOrEqual(t, utf8.RuneCountInString(derived.Brief), briefLength+3)

	node.Brief = &brief
	assert.Equal(t, "keep me", normalizePost(node).Brief)
}
