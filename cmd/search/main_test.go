package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useServer(t *testing.T, page string) *atomic.Int32 {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`[{"id":"1","slug":"` + q + `","title":"About ` + q + `","tags":[]}]`))
	}))
	t.Cleanup(srv.Close)

	oldServer, oldPage, oldDebounce, oldTimeout := server, pageURL, debounce, timeout
	t.Cleanup(func() { server, pageURL, debounce, timeout = oldServer, oldPage, oldDebounce, oldTimeout })
	server, pageURL, debounce, timeout = srv.URL, page, 50*time.Millisecond, time.Second
	return &hits
}

func TestRunSearchesLastLineBeforeExit(t *testing.T) {
	hits := useServer(t, "https://blog.example.com/search")

	var out bytes.Buffer
	require.NoError(t, run(strings.NewReader("hou\nhousing\n"), &out))

	assert.EqualValues(t, 1, hits.Load())
	assert.Contains(t, out.String(), `1 result(s) for "housing"`)
	assert.True(t, strings.HasSuffix(out.String(), "share: https://blog.example.com/search?q=housing\n"))
}

func TestRunRestoresSharedQuery(t *testing.T) {
	hits := useServer(t, "https://blog.example.com/search?q=census")

	var out bytes.Buffer
	require.NoError(t, run(strings.NewReader(""), &out))

	assert.EqualValues(t, 1, hits.Load())
	assert.Contains(t, out.String(), `1 result(s) for "census"`)
	assert.Contains(t, out.String(), "share: https://blog.example.com/search?q=census")
}
