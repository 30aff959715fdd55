package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/service"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingQuerier returns a fixed response and counts calls.
type countingQuerier struct {
	calls    atomic.Int32
	degraded bool
	delay    time.Duration
}

func (q *countingQuerier) ComplexQuery(_ context.Context, req *domain.ComplexQueryRequest) service.Result {
	q.calls.Add(1)
	time.Sleep(q.delay)
	if q.degraded {
		return service.Result{Response: domain.EmptySearchResponse(), Degraded: true}
	}
	resp := domain.NewSearchResponseBuilder(2, []domain.ProductHit{{ID: "1", Title: req.Term()}, {ID: "2", Title: req.Term()}}).
		WithFacets(map[string]domain.FacetBucket{"category": {Counts: map[string]uint64{"books": 1, "electronics": 1}}}).
		WithPagination(domain.Pagination{Size: req.Size(), From: req.From()}).
		Build()
	return service.Result{Response: resp}
}

// spyStore records calls and can fail on demand.
type spyStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	sets   int
	failOn bool
}

func newSpyStore() *spyStore { return &spyStore{data: map[string][]byte{}} }

func (s *spyStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failOn {
		return nil, false, errors.New("store down")
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *spyStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.failOn {
		return errors.New("store down")
	}
	s.data[key] = value
	return nil
}

func newRequest(t *testing.T, filters map[string]string) *domain.ComplexQueryRequest {
	t.Helper()
	req, err := domain.NewComplexQueryRequest("laptop", filters, domain.SortDesc, 10, 0)
	require.NoError(t, err)
	return req
}

func enabled() Options { return Options{TTL: time.Minute, Enabled: true} }

func TestKey(t *testing.T) {
	a, err := domain.NewComplexQueryRequest("laptop", map[string]string{"category": "electronics", "entity": "acme"}, domain.SortDesc, 10, 0)
	require.NoError(t, err)
	b, err := domain.NewComplexQueryRequest("laptop", map[string]string{"entity": "acme", "category": "electronics"}, domain.SortDesc, 10, 0)
	require.NoError(t, err)
	c, err := domain.NewComplexQueryRequest("laptop", map[string]string{"category": "books", "entity": "acme"}, domain.SortDesc, 10, 0)
	require.NoError(t, err)
	d, err := domain.NewComplexQueryRequest("laptop", map[string]string{"category": "electronics", "entity": "acme"}, domain.SortAsc, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c))
	assert.NotEqual(t, Key(a), Key(d))
	assert.True(t, strings.HasPrefix(Key(a), KeyPrefix))
	assert.Len(t, strings.TrimPrefix(Key(a), KeyPrefix), 64)
}

func TestResponseCache_SecondCallIsHitWithIdenticalBytes(t *testing.T) {
	store, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	next := &countingQuerier{}
	c := NewResponseCache(store, next, enabled(), newTestLogger())

	first := c.ComplexQuery(context.Background(), newRequest(t, map[string]string{"category": "electronics"}))
	second := c.ComplexQuery(context.Background(), newRequest(t, map[string]string{"category": "electronics"}))

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), next.calls.Load())

	firstBytes, err := json.Marshal(first.Response)
	require.NoError(t, err)
	secondBytes, err := json.Marshal(second.Response)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestResponseCache_DegradedNotStored(t *testing.T) {
	store := newSpyStore()
	next := &countingQuerier{degraded: true}
	c := NewResponseCache(store, next, enabled(), newTestLogger())

	res := c.ComplexQuery(context.Background(), newRequest(t, nil))
	assert.True(t, res.Degraded)
	c.ComplexQuery(context.Background(), newRequest(t, nil))

	assert.Equal(t, 0, store.sets)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestResponseCache_DisabledNeverTouchesStore(t *testing.T) {
	store := newSpyStore()
	next := &countingQuerier{}
	c := NewResponseCache(store, next, Options{TTL: time.Minute}, newTestLogger())

	c.ComplexQuery(context.Background(), newRequest(t, nil))
	c.ComplexQuery(context.Background(), newRequest(t, nil))

	assert.Equal(t, 0, store.gets)
	assert.Equal(t, 0, store.sets)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestResponseCache_StoreErrorsAreMisses(t *testing.T) {
	store := newSpyStore()
	store.failOn = true
	next := &countingQuerier{}
	c := NewResponseCache(store, next, enabled(), newTestLogger())

	res := c.ComplexQuery(context.Background(), newRequest(t, nil))
	assert.False(t, res.Degraded)
	assert.Equal(t, uint64(2), res.Response.TotalHits())
	assert.Equal(t, 1, store.sets)
}

func TestResponseCache_UndecodableEntryIsMiss(t *testing.T) {
	store := newSpyStore()
	req := newRequest(t, nil)
	store.data[Key(req)] = []byte("not json")
	next := &countingQuerier{}
	c := NewResponseCache(store, next, enabled(), newTestLogger())

	res := c.ComplexQuery(context.Background(), req)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestResponseCache_CollapsesConcurrentMisses(t *testing.T) {
	store := newSpyStore()
	next := &countingQuerier{delay: 100 * time.Millisecond}
	c := NewResponseCache(store, next, enabled(), newTestLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.ComplexQuery(context.Background(), newRequest(t, nil))
			assert.False(t, res.Degraded)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
}

// contextQuerier answers after delay, or with the fallback once its context
// is done, and records the context it ran on.
type contextQuerier struct {
	calls    atomic.Int32
	delay    time.Duration
	deadline atomic.Bool
}

func (q *contextQuerier) ComplexQuery(ctx context.Context, req *domain.ComplexQueryRequest) service.Result {
	q.calls.Add(1)
	_, ok := ctx.Deadline()
	q.deadline.Store(ok)
	select {
	case <-time.After(q.delay):
		return service.Result{Response: domain.NewSearchResponseBuilder(1, []domain.ProductHit{{ID: "1", Title: req.Term()}}).Build()}
	case <-ctx.Done():
		return service.Result{Response: domain.EmptySearchResponse(), Degraded: true}
	}
}

func TestResponseCache_CancelledCallerDoesNotDegradeOthers(t *testing.T) {
	store := newSpyStore()
	next := &contextQuerier{delay: 100 * time.Millisecond}
	c := NewResponseCache(store, next, enabled(), newTestLogger())
	req := newRequest(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan service.Result, 1)
	go func() { first <- c.ComplexQuery(ctx, req) }()

	time.Sleep(10 * time.Millisecond)
	second := make(chan service.Result, 1)
	go func() { second <- c.ComplexQuery(context.Background(), req) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	gone := <-first
	assert.True(t, gone.Degraded)

	live := <-second
	assert.False(t, live.Degraded)
	assert.Equal(t, uint64(1), live.Response.TotalHits())
	assert.Equal(t, Key(req), live.CacheKey)
	assert.Equal(t, int32(1), next.calls.Load())

	// The shared result was stored even though the first caller left.
	res := c.ComplexQuery(context.Background(), req)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestResponseCache_SharedCallIsBounded(t *testing.T) {
	next := &contextQuerier{delay: time.Second}
	opts := enabled()
	opts.CallTimeout = 50 * time.Millisecond
	c := NewResponseCache(newSpyStore(), next, opts, newTestLogger())

	start := time.Now()
	res := c.ComplexQuery(context.Background(), newRequest(t, nil))

	assert.True(t, res.Degraded)
	assert.True(t, next.deadline.Load())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestResponseCache_WithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingQuerier{}
	c := NewResponseCache(NewRedisStore(client), next, Options{TTL: 30 * time.Second, Enabled: true}, newTestLogger())
	req := newRequest(t, map[string]string{"category": "electronics"})

	c.ComplexQuery(context.Background(), req)
	require.True(t, mr.Exists(Key(req)))
	assert.Equal(t, 30*time.Second, mr.TTL(Key(req)))

	res := c.ComplexQuery(context.Background(), req)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), next.calls.Load())

	mr.FastForward(31 * time.Second)
	res = c.ComplexQuery(context.Background(), req)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestResponseCache_RedisDownStillServes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	next := &countingQuerier{}
	c := NewResponseCache(NewRedisStore(client), next, enabled(), newTestLogger())

	res := c.ComplexQuery(context.Background(), newRequest(t, nil))
	assert.False(t, res.Degraded)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), next.calls.Load())
}
