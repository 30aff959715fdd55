package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/pkg/breaker"
	"github.com/utafrali/search-gateway/pkg/logger"
)

// Breaker names.
const (
	BreakerComplexQuery = "complex_query"
	BreakerSimpleQuery  = "simple_query"
)

// ErrCircuitOpen is returned by a breaker that short-circuits a call.
var ErrCircuitOpen = breaker.ErrOpen

// Searcher runs queries against the search backend.
type Searcher interface {
	Execute(ctx context.Context, req *domain.ComplexQueryRequest) (*domain.SearchResponse, error)
	ExecuteSimple(ctx context.Context, term string) (*domain.SearchResponse, error)
}

// Result is the outcome of a guarded query. Degraded marks the empty
// fallback served when the backend failed or the breaker was open.
// Cached marks a response served from the response cache, and CacheKey is
// the key the response cache used, empty when caching is off.
type Result struct {
	Response *domain.SearchResponse
	Degraded bool
	Cached   bool
	CacheKey string
}

// SearchService guards a Searcher with one circuit breaker per query kind.
type SearchService struct {
	searcher Searcher
	complex  *breaker.Breaker[*domain.SearchResponse]
	simple   *breaker.Breaker[*domain.SearchResponse]
	logger   *slog.Logger
}

// NewSearchService creates a search service. cfg is the breaker policy
// shared by both breakers; its Name is ignored.
func NewSearchService(searcher Searcher, cfg breaker.Config, logger *slog.Logger) *SearchService {
	complexCfg := cfg
	complexCfg.Name = BreakerComplexQuery
	simpleCfg := cfg
	simpleCfg.Name = BreakerSimpleQuery

	return &SearchService{
		searcher: searcher,
		complex:  breaker.New[*domain.SearchResponse](complexCfg, logger),
		simple:   breaker.New[*domain.SearchResponse](simpleCfg, logger),
		logger:   logger,
	}
}

// ComplexQuery runs the filtered, faceted query. It never fails: backend
// errors and open breakers yield an empty degraded result.
func (s *SearchService) ComplexQuery(ctx context.Context, req *domain.ComplexQueryRequest) Result {
	resp, err := s.complex.Execute(func() (*domain.SearchResponse, error) {
		return s.searcher.Execute(ctx, req)
	})
	if err != nil {
		return s.fallback(ctx, s.complex, req.Term(), err)
	}
	return Result{Response: resp}
}

// SimpleQuery runs the single-field title query with the same fallback
// behaviour as ComplexQuery.
func (s *SearchService) SimpleQuery(ctx context.Context, term string) Result {
	resp, err := s.simple.Execute(func() (*domain.SearchResponse, error) {
		return s.searcher.ExecuteSimple(ctx, term)
	})
	if err != nil {
		return s.fallback(ctx, s.simple, term, err)
	}
	return Result{Response: resp}
}

func (s *SearchService) fallback(ctx context.Context, b *breaker.Breaker[*domain.SearchResponse], term string, err error) Result {
	b.Fallback()

	cause := "backend_error"
	if errors.Is(err, ErrCircuitOpen) {
		cause = "circuit_open"
	}
	l := logger.WithContext(ctx, s.logger)
	attrs := []any{
		slog.String("term", term),
		slog.String("breaker", b.Name()),
		slog.String("cause", cause),
		slog.String("error", err.Error()),
	}
	var be *domain.SearchBackendError
	if errors.As(err, &be) {
		attrs = append(attrs,
			slog.String("backend", be.Backend),
			slog.String("kind", string(be.Kind)),
			slog.Int("status", be.Status),
			slog.String("reason", be.Reason),
		)
	}
	l.WarnContext(ctx, "serving search fallback", attrs...)

	return Result{Response: domain.EmptySearchResponse(), Degraded: true}
}
