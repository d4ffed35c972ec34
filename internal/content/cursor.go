package content

import (
	"github.com/bilgisen/kafkaesque/internal/models"
)

// anomaly names an upstream pagination misbehaviour that ends a drain early
type anomaly string

const (
	anomalyNone          anomaly = ""
	anomalyEmptyButMore  anomaly = "empty_but_more"
	anomalyMissingCursor anomaly = "missing_cursor"
	anomalyCursorLoop    anomaly = "cursor_loop"
	anomalyAttemptCap    anomaly = "attempt_cap"
)

// nextCursor decides whether a connection can be continued and from where.
// The last edge's cursor wins over pageInfo.endCursor because the CMS has been
// seen to desynchronize the two. A page that claims more data but has no edges,
// no usable cursor, or a cursor equal to the one it was requested with, ends
// pagination.
func nextCursor(conn *postConnection, after string) (string, bool, anomaly) {
	if conn == nil || !conn.PageInfo.HasNextPage {
		return "", false, anomalyNone
	}
	if len(conn.Edges) == 0 {
		return "", false, anomalyEmptyButMore
	}

	cursor := conn.Edges[len(conn.Edges)-1].Cursor
	if cursor == "" {
		cursor = deref(conn.PageInfo.EndCursor)
	}
	if cursor == "" {
		return "", false, anomalyMissingCursor
	}
	if cursor == after {
		return "", false, anomalyCursorLoop
	}
	return cursor, true, anomalyNone
}

// cursorTracker carries the state of one fetch-all drain: the attempt budget,
// every cursor already followed and every post already collected.
type cursorTracker struct {
	maxAttempts int
	attempts    int
	cursors     map[string]struct{}
	ids         map[string]struct{}
	slugs       map[string]struct{}
	posts       []models.Post
	duplicates  int
}

func newCursorTracker(maxAttempts int) *cursorTracker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &cursorTracker{
		maxAttempts: maxAttempts,
		cursors:     make(map[string]struct{}),
		ids:         make(map[string]struct{}),
		slugs:       make(map[string]struct{}),
		posts:       []models.Post{},
	}
}

// begin reserves one page fetch, returning false once the budget is spent
func (t *cursorTracker) begin() bool {
	if t.attempts >= t.maxAttempts {
		return false
	}
	t.attempts++
	return true
}

// advance records a cursor about to be followed; false means it was followed before
func (t *cursorTracker) advance(cursor string) bool {
	if _, ok := t.cursors[cursor]; ok {
		return false
	}
	t.cursors[cursor] = struct{}{}
	return true
}

// collect appends the posts not seen earlier in the drain and returns how many were new
func (t *cursorTracker) collect(posts []models.Post) int {
	added := 0
	for _, p := range posts {
		if p.ID != "" {
			if _, ok := t.ids[p.ID]; ok {
				t.duplicates++
				continue
			}
		}
		if p.Slug != "" {
			if _, ok := t.slugs[p.Slug]; ok {
				t.duplicates++
				continue
			}
		}
		if p.ID != "" {
			t.ids[p.ID] = struct{}{}
		}
		if p.Slug != "" {
			t.slugs[p.Slug] = struct{}{}
		}
		t.posts = append(t.posts, p)
		added++
	}
	return added
}
