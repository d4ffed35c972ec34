package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/metrics"
	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrIndexBuild wraps every failure to (re)build the index
var ErrIndexBuild = errors.New("search: failed to build index")

// Source provides the full post corpus
type Source interface {
	FetchAll(ctx context.Context) ([]models.Post, error)
}

// State is the lifecycle state of the cache
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Result is the outcome of a search
type Result struct {
	Posts []models.Post
	// Version identifies the index snapshot that answered; empty for short queries
	Version string
}

// Cache keeps one fuzzy index over the corpus and rebuilds it once its TTL expires.
// Rebuilds replace the index wholesale; concurrent expiries share one rebuild.
type Cache struct {
	source         Source
	ttl            time.Duration
	buildTimeout   time.Duration
	minQueryLength int
	maxResults     int
	now            func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	current  *Index
	building int
	epoch    uint64 // bumped by Invalidate; builds from an older epoch are not installed

	log zerolog.Logger
}

// Option configures a Cache
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithBuildTimeout(d time.Duration) Option {
	return func(c *Cache) { c.buildTimeout = d }
}

func WithMinQueryLength(n int) Option {
	return func(c *Cache) { c.minQueryLength = n }
}

func WithMaxResults(n int) Option {
	return func(c *Cache) { c.maxResults = n }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:         source,
		ttl:            30 * time.Minute,
		buildTimeout:   2 * time.Minute,
		minQueryLength: 3,
		maxResults:     15,
		now:            time.Now,
		log:            logger.Component("search"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports where the cache is in its lifecycle
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.building > 0:
		return StateBuilding
	case c.current != nil:
		return StateReady
	default:
		return StateEmpty
	}
}

// Invalidate drops the cached index; the next search rebuilds it.
// A build already in flight still answers its waiters but is not cached.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.epoch++
	c.mu.Unlock()
	c.group.Forget(indexKey)
	c.log.Info().Msg("Search index invalidated")
}

// Index returns the cached index, rebuilding it when missing or older than the TTL
func (c *Cache) Index(ctx context.Context) (*Index, error) {
	if ix := c.fresh(); ix != nil {
		return ix, nil
	}

	// The build outlives a cancelled caller so other waiters still get the result.
	ch := c.group.DoChan(indexKey, func() (interface{}, error) {
		if ix := c.fresh(); ix != nil {
			return ix, nil
		}
		return c.build(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

// Search runs a fuzzy query. Queries shorter than the minimum length return
// no results without touching the index.
func (c *Cache) Search(ctx context.Context, query string, maxResults int) (Result, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < c.minQueryLength {
		return Result{Posts: []models.Post{}}, nil
	}
	if maxResults <= 0 || maxResults > c.maxResults {
		maxResults = c.maxResults
	}

	ix, err := c.Index(ctx)
	if err != nil {
		return Result{Posts: []models.Post{}}, err
	}

	posts := ix.Search(q, maxResults)
	c.log.Debug().
		Str("query", q).
		Int("results", len(posts)).
		Str("index_version", ix.Version).
		Msg("Search performed")

	return Result{Posts: posts, Version: ix.Version}, nil
}

func (c *Cache) fresh() *Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil && c.now().Sub(c.current.BuiltAt) < c.ttl {
		return c.current
	}
	return nil
}

const indexKey = "index"

func (c *Cache) build(ctx context.Context) (*Index, error) {
	ctx, cancel := context.WithTimeout(ctx, c.buildTimeout)
	defer cancel()

	c.mu.Lock()
	c.building++
	epoch := c.epoch
	c.mu.Unlock()

	start := time.Now()
	c.log.Info().Msg("Cache expired or missing, fetching all posts")

	posts, err := c.source.FetchAll(ctx)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.current = nil
		}
		c.building--
		c.mu.Unlock()

		metrics.RecordIndexBuild("failure", time.Since(start), 0)
		c.log.Error().Err(err).Msg("Failed to build search index")
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	ix := newIndex(posts, c.now(), uuid.NewString())

	c.mu.Lock()
	stale := c.epoch != epoch
	if !stale {
		c.current = ix
	}
	c.building--
	c.mu.Unlock()

	if stale {
		metrics.RecordIndexBuild("discarded", time.Since(start), len(posts))
		c.log.Info().Str("version", ix.Version).Msg("Search index invalidated during build, not cached")
		return ix, nil
	}

	metrics.RecordIndexBuild("success", time.Since(start), len(posts))
	c.log.Info().
		Int("posts", len(posts)).
		Str("version", ix.Version).
		Dur("duration", time.Since(start)).
		Msg("Search index built")

	return ix, nil
}
