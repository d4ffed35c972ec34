package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/kafkaesque/internal/gql"
	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/metrics"
	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/rs/zerolog"
)

var (
	// ErrNotConfigured means the CMS publication host is unknown
	ErrNotConfigured = errors.New("content: HASHNODE_HOST is not configured")
	// ErrInvalidSlug is returned for blank slugs
	ErrInvalidSlug = errors.New("content: slug must not be empty")
	// ErrInvalidLimit is returned for non-positive page sizes
	ErrInvalidLimit = errors.New("content: limit must be positive")
)

// Doer executes GraphQL requests
type Doer interface {
	Do(ctx context.Context, operation string, req gql.Request) gql.Result
}

// Options configures the content client
type Options struct {
	// Host is the Hashnode publication host, e.g. kafkaesque.hashnode.dev
	Host string
	// BatchSize is the page size used while draining the whole corpus
	BatchSize int
	// MaxAttempts bounds the page fetches of one drain
	MaxAttempts int
	// PageDelay separates consecutive page fetches of one drain
	PageDelay time.Duration
}

// Client fetches normalized posts from the CMS
type Client struct {
	gql         Doer
	host        string
	batchSize   int
	maxAttempts int
	pageDelay   time.Duration
	log         zerolog.Logger
}

func NewClient(doer Doer, opts Options) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 20
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	return &Client{
		gql:         doer,
		host:        strings.TrimSpace(opts.Host),
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		pageDelay:   opts.PageDelay,
		log:         logger.Component("content"),
	}
}

func (c *Client) ready() error {
	if c.host == "" {
		return ErrNotConfigured
	}
	return nil
}

// Page fetches one listing page. Failures are returned to the caller.
// A nil or empty after requests the first page.
func (c *Client) Page(ctx context.Context, limit int, after *string) (models.Page, error) {
	if limit <= 0 {
		return models.EmptyPage(), ErrInvalidLimit
	}
	if err := c.ready(); err != nil {
		return models.EmptyPage(), err
	}

	cursor := deref(after)
	conn, err := c.connection(ctx, "posts", listPostsQuery, limit, cursor)
	if err != nil {
		return models.EmptyPage(), err
	}
	if conn == nil {
		c.log.Warn().Str("host", c.host).Msg("No posts found in publication data")
		return models.EmptyPage(), nil
	}

	next, more, a := nextCursor(conn, cursor)
	if a != anomalyNone {
		c.reportAnomaly(a, cursor, 1)
	}
	return models.NewPage(normalizeEdges(conn.Edges), more, next), nil
}

// FetchPage is the lenient form of Page: every failure yields an empty page
func (c *Client) FetchPage(ctx context.Context, limit int, after *string) models.Page {
	page, err := c.Page(ctx, limit, after)
	if err != nil {
		c.log.Error().
			Err(err).
			Int("limit", limit).
			Str("after", deref(after)).
			Msg("Failed to fetch posts page")
		return models.EmptyPage()
	}
	return page
}

// Post looks a single post up by slug. A post the CMS does not know is
// reported as (nil, nil) so callers can tell it apart from a failure.
func (c *Client) Post(ctx context.Context, slug string) (*models.Post, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrInvalidSlug
	}
	if err := c.ready(); err != nil {
		return nil, err
	}

	res := c.gql.Do(ctx, "post", gql.Request{
		Query:     postBySlugQuery,
		Variables: map[string]interface{}{"slug": slug, "host": c.host},
	})

	if respErr, ok := res.(*gql.ResponseError); ok && respErr.Contains("not found") {
		return nil, nil
	}

	var data postData
	if err := gql.Decode(res, &data); err != nil {
		return nil, fmt.Errorf("fetch post %q: %w", slug, err)
	}
	if data.Publication == nil || data.Publication.Post == nil {
		return nil, nil
	}

	post := normalizePost(*data.Publication.Post)
	if post.Slug == "" {
		post.Slug = slug
	}
	return &post, nil
}

// FetchBySlug is the lenient form of Post: failures are logged and reported as nil
func (c *Client) FetchBySlug(ctx context.Context, slug string) *models.Post {
	post, err := c.Post(ctx, slug)
	if err != nil {
		c.log.Error().Err(err).Str("slug", slug).Msg("Failed to fetch post")
		return nil
	}
	return post
}

// connection runs one paginated posts query. A nil connection means the
// publication or its posts were absent from the response.
func (c *Client) connection(ctx context.Context, operation, query string, first int, after string) (*postConnection, error) {
	vars := map[string]interface{}{
		"first": first,
		"host":  c.host,
		"after": nil,
	}
	if after != "" {
		vars["after"] = after
	}

	res := c.gql.Do(ctx, operation, gql.Request{Query: query, Variables: vars})

	var data postsData
	if err := gql.Decode(res, &data); err != nil {
		return nil, fmt.Errorf("fetch posts (first=%d, after=%q): %w", first, after, err)
	}
	if data.Publication == nil || data.Publication.Posts == nil {
		return nil, nil
	}
	return data.Publication.Posts, nil
}

func (c *Client) reportAnomaly(a anomaly, after string, attempt int) {
	metrics.RecordAnomaly(string(a))
	c.log.Warn().
		Str("anomaly", string(a)).
		Str("after", after).
		Int("attempt", attempt).
		Msg("Pagination stopped early")
}
