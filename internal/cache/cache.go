package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/service"
	"github.com/utafrali/search-gateway/pkg/logger"
)

// KeyPrefix namespaces complex-query entries in the store.
const KeyPrefix = "search:complex:"

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "response_cache_requests_total",
		Help: "Response cache lookups by result.",
	},
	[]string{"result"},
)

// Querier runs complex queries. It is satisfied by *service.SearchService.
type Querier interface {
	ComplexQuery(ctx context.Context, req *domain.ComplexQueryRequest) service.Result
}

// Options configures a ResponseCache. CallTimeout bounds a shared backend
// call once it is detached from its callers; zero leaves it unbounded.
type Options struct {
	TTL         time.Duration
	Enabled     bool
	CallTimeout time.Duration
}

// ResponseCache is a read-through cache in front of a Querier. Only
// non-degraded responses are stored, and store failures never fail a request.
type ResponseCache struct {
	store  Store
	next   Querier
	opts   Options
	group  singleflight.Group
	logger *slog.Logger
}

// NewResponseCache wraps next with a cache over store.
func NewResponseCache(store Store, next Querier, opts Options, logger *slog.Logger) *ResponseCache {
	if store == nil {
		store = NoopStore{}
	}
	return &ResponseCache{
		store:  store,
		next:   next,
		opts:   opts,
		logger: logger,
	}
}

// canonicalRequest is the key material of a request. Filters are a sorted
// list so equal requests hash equally regardless of map order.
type canonicalRequest struct {
	Term    string      `json:"term"`
	Filters [][2]string `json:"filters"`
	Order   string      `json:"order"`
	Size    int         `json:"size"`
	From    int         `json:"from"`
}

// Key returns the store key for req.
func Key(req *domain.ComplexQueryRequest) string {
	sorted := req.SortedFilters()
	filters := make([][2]string, 0, len(sorted))
	for _, f := range sorted {
		filters = append(filters, [2]string{f.Field, f.Value})
	}

	// Marshalling strings, ints and arrays of them cannot fail.
	data, _ := json.Marshal(canonicalRequest{
		Term:    req.Term(),
		Filters: filters,
		Order:   string(req.SortOrder()),
		Size:    req.Size(),
		From:    req.From(),
	})
	sum := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// ComplexQuery returns a cached response when present, otherwise runs the
// query once for all concurrent identical callers and stores the result.
// The shared call does not inherit any caller's cancellation, and each
// caller stops waiting when its own context is done.
func (c *ResponseCache) ComplexQuery(ctx context.Context, req *domain.ComplexQueryRequest) service.Result {
	if !c.opts.Enabled {
		return c.next.ComplexQuery(ctx, req)
	}

	key := Key(req)
	if resp, ok := c.lookup(ctx, key); ok {
		requestsTotal.WithLabelValues("hit").Inc()
		return service.Result{Response: resp, Cached: true, CacheKey: key}
	}
	requestsTotal.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := c.detach(ctx)
		defer cancel()

		res := c.next.ComplexQuery(callCtx, req)
		if !res.Degraded {
			c.save(callCtx, key, res.Response)
		}
		return res, nil
	})

	select {
	case shared := <-ch:
		res := shared.Val.(service.Result)
		res.CacheKey = key
		return res
	case <-ctx.Done():
		return service.Result{Response: domain.EmptySearchResponse(), Degraded: true, CacheKey: key}
	}
}

// detach keeps ctx values (correlation id, span) but drops its cancellation.
func (c *ResponseCache) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if c.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.CallTimeout)
	}
	return ctx, func() {}
}

func (c *ResponseCache) lookup(ctx context.Context, key string) (*domain.SearchResponse, bool) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		c.log(ctx).WarnContext(ctx, "response cache lookup failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		c.log(ctx).WarnContext(ctx, "response cache entry undecodable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &resp, true
}

func (c *ResponseCache) save(ctx context.Context, key string, resp *domain.SearchResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.log(ctx).ErrorContext(ctx, "encode response for cache", slog.String("error", err.Error()))
		return
	}
	if err := c.store.Set(ctx, key, data, c.opts.TTL); err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		c.log(ctx).WarnContext(ctx, "response cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *ResponseCache) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}
