package content

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllDrainsEveryPage(t *testing.T) {
	cms := &fakeCMS{respond: pagedCorpus(7, 3)}
	client := newTestClient(t, cms, Options{BatchSize: 3})

	posts, err := client.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, posts, 7)
	for i, p := range posts {
		assert.Equal(t, "Post "+string(rune('0'+i)), p.Title)
	}
	assert.Equal(t, []string{"", "c2", "c5"}, cms.afters)
	assert.Contains(t, cms.queries[0], "content { html }", "the corpus includes post bodies")
}

func TestFetchAllStopsOnEmptyButMore(t *testing.T) {
	cms := &fakeCMS{respond: func(after string, call int) (int, interface{}) {
		if call == 1 {
			return http.StatusOK, postsBody([]edge{{"c0", "0", "Only"}}, true, "c0")
		}
		// claims more data forever but never returns any
		return http.StatusOK, postsBody(nil, true, "c-next")
	}}
	client := newTestClient(t, cms, Options{MaxAttempts: 15})

	posts, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 2, cms.calls())
}

func TestFetchAllTerminatesWithinAttemptCap(t *testing.T) {
	cms := &fakeCMS{respond: func(after string, call int) (int, interface{}) {
		// always advancing, never finished
		c := "c" + strconv.Itoa(call)
		return http.StatusOK, postsBody([]edge{{c, c, "Endless " + c}}, true, c)
	}}
	client := newTestClient(t, cms, Options{MaxAttempts: 4})

	posts, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, cms.calls())
	assert.Len(t, posts, 4)
}

func TestFetchAllStopsOnCursorLoop(t *testing.T) {
	cms := &fakeCMS{respond: func(after string, call int) (int, interface{}) {
		switch after {
		case "":
			return http.StatusOK, postsBody([]edge{{"a", "1", "One"}}, true, "a")
		case "a":
			return http.StatusOK, postsBody([]edge{{"b", "2", "Two"}}, true, "b")
		default:
			// cursor desync: the CMS points back at an earlier page
			return http.StatusOK, postsBody([]edge{{"a", "1", "One"}}, true, "a")
		}
	}}
	client := newTestClient(t, cms, Options{MaxAttempts: 20})

	posts, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, cms.calls())
	require.Len(t, posts, 2)
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, "2", posts[1].ID)
}

func TestFetchAllNeverReturnsDuplicateIDs(t *testing.T) {
	cms := &fakeCMS{respond: func(after string, call int) (int, interface{}) {
		switch call {
		case 1:
			return http.StatusOK, postsBody([]edge{{"c1", "1", "One"}, {"c2", "2", "Two"}}, true, "c2")
		case 2:
			// re-serves the first page under a fresh cursor
			return http.StatusOK, postsBody([]edge{{"c1", "1", "One"}, {"x2", "2", "Two"}, {"c3", "3", "Three"}}, true, "c3")
		default:
			return http.StatusOK, postsBody([]edge{{"c4", "4", "Four"}}, false, nil)
		}
	}}
	client := newTestClient(t, cms, Options{})

	posts, err := client.FetchAll(context.Background())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, p := range posts {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
	assert.Len(t, posts, 4)
}

func TestFetchAllFailsWithoutPartialData(t *testing.T) {
	cms := &fakeCMS{respond: func(after string, call int) (int, interface{}) {
		if call == 1 {
			return http.StatusOK, postsBody([]edge{{"c1", "1", "One"}}, true, "c1")
		}
		return http.StatusInternalServerError, nil
	}}
	client := newTestClient(t, cms, Options{})

	posts, err := client.FetchAll(context.Background())
	assert.Error(t, err)
	assert.Nil(t, posts)
}

func TestFetchAllPacesPages(t *testing.T) {
	cms := &fakeCMS{respond: pagedCorpus(3, 1)}
	client := newTestClient(t, cms, Options{BatchSize: 1, PageDelay: 30 * time.Millisecond})

	start := time.Now()
	posts, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "two waits between three pages")
}

func TestFetchAllHonorsCancellation(t *testing.T) {
	cms := &fakeCMS{respond: pagedCorpus(10, 1)}
	client := newTestClient(t, cms, Options{BatchSize: 1, PageDelay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.FetchAll(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, cms.calls())
}
