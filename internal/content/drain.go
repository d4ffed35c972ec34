package content

import (
	"context"
	"fmt"
	"time"

	"github.com/bilgisen/kafkaesque/internal/models"
	"golang.org/x/time/rate"
)

// FetchAll drains the whole corpus, including post bodies, for the search index.
// Pages are fetched one after another, paced by the configured delay. Pagination
// anomalies and the attempt cap end the drain with the posts collected so far;
// a failed page fails the whole drain so partial corpora never get cached.
func (c *Client) FetchAll(ctx context.Context) ([]models.Post, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	tracker := newCursorTracker(c.maxAttempts)
	// a zero delay yields rate.Inf
	limiter := rate.NewLimiter(rate.Every(c.pageDelay), 1)

	after := ""
	for {
		if !tracker.begin() {
			c.reportAnomaly(anomalyAttemptCap, after, tracker.attempts)
			c.log.Warn().
				Int("max_attempts", c.maxAttempts).
				Int("posts", len(tracker.posts)).
				Msg("Reached max attempts before fetching all posts, corpus may be incomplete")
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch all posts: %w", err)
		}

		conn, err := c.connection(ctx, "posts_all", corpusPostsQuery, c.batchSize, after)
		if err != nil {
			return nil, fmt.Errorf("fetch all posts, attempt %d: %w", tracker.attempts, err)
		}
		if conn == nil {
			c.log.Warn().Int("attempt", tracker.attempts).Msg("No posts data found, ending drain")
			break
		}

		added := tracker.collect(normalizeEdges(conn.Edges))
		c.log.Debug().
			Int("attempt", tracker.attempts).
			Int("edges", len(conn.Edges)).
			Int("added", added).
			Msg("Fetched corpus page")

		next, more, a := nextCursor(conn, after)
		if a != anomalyNone {
			c.reportAnomaly(a, after, tracker.attempts)
		}
		if !more {
			break
		}
		if !tracker.advance(next) {
			c.reportAnomaly(anomalyCursorLoop, after, tracker.attempts)
			break
		}
		after = next
	}

	if tracker.duplicates > 0 {
		c.log.Warn().Int("duplicates", tracker.duplicates).Msg("Dropped posts served more than once")
	}
	c.log.Info().
		Int("posts", len(tracker.posts)).
		Int("attempts", tracker.attempts).
		Dur("duration", time.Since(start)).
		Msg("Fetched all posts")

	return tracker.posts, nil
}
