package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	delay time.Duration
	posts []models.Post

	mu  sync.Mutex
	err error
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]models.Post, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestShortQueriesSkipTheIndex(t *testing.T) {
	src := &fakeSource{posts: corpus()}
	cache := NewCache(src)

	for _, q := range []string{"", "a", "  ab  "} {
		res, err := cache.Search(context.Background(), q, 15)
		require.NoError(t, err)
		assert.Empty(t, res.Posts)
		assert.NotNil(t, res.Posts)
	}
	assert.Zero(t, src.calls.Load())
	assert.Equal(t, StateEmpty, cache.State())
}

func TestSearchBuildsIndexLazily(t *testing.T) {
	src := &fakeSource{posts: corpus()}
	cache := NewCache(src)

	res, err := cache.Search(context.Background(), "deprivation", 15)
	require.NoError(t, err)
	require.NotEmpty(t, res.Posts)
	assert.Equal(t, "2", res.Posts[0].ID)
	assert.NotEmpty(t, res.Version)
	assert.Equal(t, StateReady, cache.State())
	assert.EqualValues(t, 1, src.calls.Load())

	res, err = cache.Search(context.Background(), "xyzxyz-no-match", 15)
	require.NoError(t, err)
	assert.Empty(t, res.Posts)
}

func TestIndexReusedWithinTTL(t *testing.T) {
	clock := newClock()
	src := &fakeSource{posts: corpus()}
	cache := NewCache(src, WithTTL(10*time.Minute), WithClock(clock.Now))

	first, err := cache.Index(context.Background())
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	second, err := cache.Index(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestExpiryTriggersOneRebuildUnderConcurrency(t *testing.T) {
	clock := newClock()
	src := &fakeSource{posts: corpus(), delay: 50 * time.Millisecond}
	cache := NewCache(src, WithTTL(10*time.Minute), WithClock(clock.Now))

	first, err := cache.Index(context.Background())
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*Index, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ix, err := cache.Index(context.Background())
			assert.NoError(t, err)
			results[i] = ix
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 2, src.calls.Load(), "initial build plus exactly one rebuild")
	for _, ix := range results {
		assert.NotSame(t, first, ix)
		assert.Same(t, results[0], ix)
	}
}

func TestBuildFailureLeavesCacheEmpty(t *testing.T) {
	clock := newClock()
	src := &fakeSource{posts: corpus()}
	cache := NewCache(src, WithTTL(time.Minute), WithClock(clock.Now))

	_, err := cache.Index(context.Background())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	src.fail(errors.New("cms unavailable"))

	_, err = cache.Search(context.Background(), "deprivation", 15)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexBuild)
	assert.Equal(t, StateEmpty, cache.State(), "a stale index is not kept after a failed rebuild")

	src.fail(nil)
	res, err := cache.Search(context.Background(), "deprivation", 15)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Posts)
	assert.EqualValues(t, 3, src.calls.Load())
}

func TestInvalidateForcesRebuild(t *testing.T) {
	src := &fakeSource{posts: corpus()}
	cache := NewCache(src)

	first, err := cache.Index(context.Background())
	require.NoError(t, err)

	cache.Invalidate()
	assert.Equal(t, StateEmpty, cache.State())

	second, err := cache.Index(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.Version, second.Version)
}

func TestInvalidateDuringBuildIsNotLost(t *testing.T) {
	src := &fakeSource{posts: corpus(), delay: 100 * time.Millisecond}
	cache := NewCache(src)

	inFlight := make(chan *Index, 1)
	go func() {
		ix, err := cache.Index(context.Background())
		assert.NoError(t, err)
		inFlight <- ix
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	cache.Invalidate()

	// asked after the invalidation: must not join the older build
	fresh, err := cache.Index(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())

	old := <-inFlight
	require.NotNil(t, old)
	assert.NotSame(t, old, fresh)

	again, err := cache.Index(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, again)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestBuildFinishingAfterInvalidateIsNotCached(t *testing.T) {
	src := &fakeSource{posts: corpus(), delay: 50 * time.Millisecond}
	cache := NewCache(src)

	inFlight := make(chan *Index, 1)
	go func() {
		ix, _ := cache.Index(context.Background())
		inFlight <- ix
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	cache.Invalidate()
	old := <-inFlight
	require.NotNil(t, old, "waiters of the older build still get its index")
	assert.Equal(t, StateEmpty, cache.State())

	rebuilt, err := cache.Index(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, old, rebuilt)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCancelledCallerDoesNotAbortBuild(t *testing.T) {
	src := &fakeSource{posts: corpus(), delay: 100 * time.Millisecond}
	cache := NewCache(src)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := cache.Index(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		return cache.State() == StateReady
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestMaxResultsIsCapped(t *testing.T) {
	posts := make([]models.Post, 0, 30)
	for i := 0; i < 30; i++ {
		posts = append(posts, models.Post{ID: string(rune('A' + i)), Title: "Weekly notes"})
	}
	cache := NewCache(&fakeSource{posts: posts}, WithMaxResults(15))

	res, err := cache.Search(context.Background(), "notes", 100)
	require.NoError(t, err)
	assert.Len(t, res.Posts, 15)

	res, err = cache.Search(context.Background(), "notes", 0)
	require.NoError(t, err)
	assert.Len(t, res.Posts, 15)
}
