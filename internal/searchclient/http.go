package searchclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/go-resty/resty/v2"
)

type apiError struct {
	Error string `json:"error"`
}

// HTTPSearcher queries the blog's /api/search endpoint
type HTTPSearcher struct {
	client *resty.Client
}

// NewHTTPSearcher creates a searcher for the server at baseURL.
// Per-search deadlines come from the caller's context.
func NewHTTPSearcher(baseURL string) *HTTPSearcher {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPSearcher{client: client}
}

func (s *HTTPSearcher) Search(ctx context.Context, query string) ([]models.Post, error) {
	var posts []models.Post
	var apiErr apiError

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&posts).
		SetError(&apiErr).
		Get("/api/search")
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("search %q: status %d: %s", query, resp.StatusCode(), msg)
	}

	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}
