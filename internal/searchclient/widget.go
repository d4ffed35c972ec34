// Package searchclient is a headless search box: it debounces input, keeps a
// single search in flight and exposes the render state.
package searchclient

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bilgisen/kafkaesque/internal/models"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

// Searcher runs one search
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Post, error)
}

// State is what a search box renders
type State struct {
	Query   string
	Results []models.Post
	Loading bool
	// Searched is true once a search for a non-blank query has completed
	Searched bool
	Err      error
}

// Option configures a Widget
type Option func(*Widget)

func WithDebounce(d time.Duration) Option {
	return func(w *Widget) { w.debounce = d }
}

func WithTimeout(d time.Duration) Option {
	return func(w *Widget) { w.timeout = d }
}

// WithInitialURL restores the query carried by a shared page URL and
// searches for it right away, without waiting for the debounce
func WithInitialURL(pageURL string) Option {
	return func(w *Widget) { w.initialURL = pageURL }
}

// OnChange registers fn to receive every state change. fn must not block.
func OnChange(fn func(State)) Option {
	return func(w *Widget) { w.onChange = fn }
}

// Widget drives a search box. Only the latest search ever updates the state.
type Widget struct {
	searcher Searcher
	debounce time.Duration
	timeout  time.Duration
	onChange   func(State)
	initialURL string

	mu      sync.Mutex
	idle    *sync.Cond
	state   State
	timer   *time.Timer
	pending bool   // a debounce timer is armed
	gen     uint64 // bumped by every Input
	seq     uint64 // bumped by every issued search
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func New(searcher Searcher, opts ...Option) *Widget {
	w := &Widget{
		searcher: searcher,
		debounce: DefaultDebounce,
		timeout:  DefaultTimeout,
		state:    State{Results: []models.Post{}},
	}
	w.idle = sync.NewCond(&w.mu)
	for _, opt := range opts {
		opt(w)
	}
	if w.initialURL != "" {
		// an unparsable link opens an empty search box
		_ = w.Restore(w.initialURL)
	}
	return w
}

// Input records a keystroke. The search runs once input has been quiet for
// the debounce interval; a blank query clears the results immediately.
func (w *Widget) Input(query string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	w.gen++
	w.state.Query = query
	if w.timer != nil {
		w.timer.Stop()
	}

	if strings.TrimSpace(query) == "" {
		w.pending = false
		w.abortLocked()
		w.state = State{Query: query, Results: []models.Post{}}
		snapshot := w.state
		w.idle.Broadcast()
		w.mu.Unlock()
		w.notify(snapshot)
		return
	}

	gen := w.gen
	w.pending = true
	w.timer = time.AfterFunc(w.debounce, func() { w.fire(gen) })
	w.mu.Unlock()
}

// Restore takes the q parameter of pageURL as the query and searches for it
// immediately. A URL without q leaves the widget untouched.
func (w *Widget) Restore(pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(u.Query().Get("q"))
	if query == "" {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.gen++
	w.state.Query = query
	if w.timer != nil {
		w.timer.Stop()
	}
	gen := w.gen
	w.pending = true
	w.mu.Unlock()

	w.fire(gen)
	return nil
}

// Wait blocks until no debounced search is pending and none is in flight
func (w *Widget) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pending || w.cancel != nil {
		w.idle.Wait()
	}
}

// State returns the current render state
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ShareURL returns base with the active query in its q parameter,
// or without q when the query is blank
func (w *Widget) ShareURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	query := strings.TrimSpace(w.State().Query)
	values := u.Query()
	if query == "" {
		values.Del("q")
	} else {
		values.Set("q", query)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Close stops pending and in-flight searches and waits for them to finish
func (w *Widget) Close() {
	w.mu.Lock()
	w.closed = true
	w.pending = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.abortLocked()
	w.idle.Broadcast()
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Widget) fire(gen uint64) {
	w.mu.Lock()
	// a newer Input owns the pending timer
	if w.closed || gen != w.gen {
		w.mu.Unlock()
		return
	}

	w.pending = false
	w.abortLocked()
	w.seq++
	seq := w.seq
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	w.cancel = cancel

	query := strings.TrimSpace(w.state.Query)
	w.state.Loading = true
	w.state.Err = nil
	snapshot := w.state
	w.wg.Add(1)
	w.mu.Unlock()

	w.notify(snapshot)
	go w.run(ctx, cancel, seq, query)
}

func (w *Widget) run(ctx context.Context, cancel context.CancelFunc, seq uint64, query string) {
	defer w.wg.Done()
	defer cancel()

	results, err := w.searcher.Search(ctx, query)

	w.mu.Lock()
	// superseded or aborted: a newer search owns the state. Every abort
	// bumps seq, so a cancelled search never reaches the code below.
	if seq != w.seq || w.closed {
		w.mu.Unlock()
		return
	}

	w.cancel = nil
	w.idle.Broadcast()
	w.state.Loading = false
	w.state.Searched = true
	if err != nil {
		w.state.Results = []models.Post{}
		w.state.Err = err
	} else {
		if results == nil {
			results = []models.Post{}
		}
		w.state.Results = results
		w.state.Err = nil
	}
	snapshot := w.state
	w.mu.Unlock()

	w.notify(snapshot)
}

// abortLocked cancels the in-flight search and orphans its result
func (w *Widget) abortLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.seq++
}

func (w *Widget) notify(s State) {
	if w.onChange != nil {
		w.onChange(s)
	}
}
