package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/engine"
	"github.com/utafrali/search-gateway/internal/query"
	"github.com/utafrali/search-gateway/pkg/logger"
	"github.com/utafrali/search-gateway/pkg/tracing"
)

const tracerName = "github.com/utafrali/search-gateway/internal/gateway"

// Sub-query labels used in spans, metrics and logs.
const (
	SubQueryPrimary     = "primary"
	SubQueryAggregation = "aggregation"
	SubQuerySimple      = "simple"
)

// Options configures a Gateway.
type Options struct {
	// Timeout bounds each sub-query. Zero disables the bound.
	Timeout time.Duration
}

// DefaultOptions returns the default gateway options.
func DefaultOptions() Options {
	return Options{Timeout: 2 * time.Second}
}

// Gateway builds engine queries, issues them and merges the results.
type Gateway struct {
	backend engine.Backend
	builder *query.Builder
	opts    Options
	logger  *slog.Logger
}

// New creates a Gateway over the given backend.
func New(backend engine.Backend, builder *query.Builder, opts Options, logger *slog.Logger) *Gateway {
	return &Gateway{
		backend: backend,
		builder: builder,
		opts:    opts,
		logger:  logger,
	}
}

// Backend returns the backend name.
func (g *Gateway) Backend() string { return g.backend.Name() }

// Execute runs the primary and aggregation queries concurrently and merges
// them. A failed aggregation only drops the facets; a failed primary query
// fails the call.
func (g *Gateway) Execute(ctx context.Context, req *domain.ComplexQueryRequest) (*domain.SearchResponse, error) {
	primaryQuery := g.builder.SearchQuery(req)
	aggQuery := g.builder.AggregationQuery(req)

	var (
		primary, aggs *engine.Response
		aggErr        error
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		primary, err = g.run(egCtx, SubQueryPrimary, primaryQuery)
		return err
	})
	eg.Go(func() error {
		aggs, aggErr = g.run(egCtx, SubQueryAggregation, aggQuery)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var facets map[string]domain.FacetBucket
	if aggErr == nil {
		facets, aggErr = Facets(aggs, g.builder.FacetFields())
	}
	if aggErr != nil {
		aggErr = &domain.AggregationError{Err: aggErr}
		g.log(ctx).WarnContext(ctx, "aggregation query failed, returning results without facets",
			slog.String("term", req.Term()),
			slog.String("sub_query", SubQueryAggregation),
			slog.String("backend", g.backend.Name()),
			slog.String("error", aggErr.Error()),
		)
		facets = nil
	}

	return assemble(primary, facets, req), nil
}

// ExecuteSimple runs the single-field title query. The response carries no
// facets and no pagination.
func (g *Gateway) ExecuteSimple(ctx context.Context, term string) (*domain.SearchResponse, error) {
	q := g.builder.SimpleQuery(term)
	resp, err := g.run(ctx, SubQuerySimple, q)
	if err != nil {
		return nil, err
	}

	products := resp.Hits
	if len(products) > q.Size {
		products = products[:q.Size]
	}
	return domain.NewSearchResponseBuilder(totalHits(resp.TotalHits, products), products).Build(), nil
}

// run issues one sub-query under its own timeout, span and latency metric.
func (g *Gateway) run(ctx context.Context, subQuery string, q *query.Request) (*engine.Response, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	ctx, span := tracing.Start(ctx, tracerName, "gateway."+subQuery,
		attribute.String("search.backend", g.backend.Name()),
		attribute.String("search.sub_query", subQuery),
	)

	start := time.Now()
	resp, err := g.backend.Search(ctx, q)
	if err != nil {
		err = g.backendError(err)
	}
	observe(g.backend.Name(), subQuery, err, time.Since(start))
	tracing.End(span, err)

	if err != nil {
		attrs := []any{
			slog.String("sub_query", subQuery),
			slog.String("backend", g.backend.Name()),
		}
		var be *domain.SearchBackendError
		if errors.As(err, &be) {
			attrs = append(attrs,
				slog.String("kind", string(be.Kind)),
				slog.Int("status", be.Status),
				slog.String("reason", be.Reason),
			)
		}
		attrs = append(attrs, slog.String("error", err.Error()))
		g.log(ctx).DebugContext(ctx, "search sub-query failed", attrs...)
		return nil, err
	}
	return resp, nil
}

// backendError makes sure every failure surfaces as a SearchBackendError.
func (g *Gateway) backendError(err error) error {
	if errors.Is(err, domain.ErrSearchBackend) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return engine.TransportError(g.backend.Name(), "search", err)
	}
	return &domain.SearchBackendError{
		Backend: g.backend.Name(),
		Op:      "search",
		Kind:    domain.KindMalformed,
		Err:     err,
	}
}

func (g *Gateway) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, g.logger)
}

// Merge combines a primary and an aggregation response into the canonical
// response. aggregations may be nil, in which case facets are absent. A
// configured facet field missing from a non-nil aggregation response is an
// error.
func Merge(primary, aggregations *engine.Response, facetFields []string, req *domain.ComplexQueryRequest) (*domain.SearchResponse, error) {
	var facets map[string]domain.FacetBucket
	if aggregations != nil {
		var err error
		facets, err = Facets(aggregations, facetFields)
		if err != nil {
			return nil, &domain.AggregationError{Err: err}
		}
	}
	return assemble(primary, facets, req), nil
}

// Facets extracts the configured facet fields from an aggregation response.
func Facets(aggregations *engine.Response, facetFields []string) (map[string]domain.FacetBucket, error) {
	if aggregations == nil {
		return nil, errors.New("no aggregation response")
	}

	facets := make(map[string]domain.FacetBucket, len(facetFields))
	for _, field := range facetFields {
		buckets, ok := aggregations.Aggregations[field]
		if !ok {
			return nil, fmt.Errorf("malformed aggregation payload: facet %q missing", field)
		}
		counts := make(map[string]uint64, len(buckets))
		for _, b := range buckets {
			counts[b.Key] += b.DocCount
		}
		facets[field] = domain.FacetBucket{FieldName: field, Counts: counts}
	}
	return facets, nil
}

func assemble(primary *engine.Response, facets map[string]domain.FacetBucket, req *domain.ComplexQueryRequest) *domain.SearchResponse {
	products := primary.Hits
	if req != nil && len(products) > req.Size() {
		products = products[:req.Size()]
	}

	b := domain.NewSearchResponseBuilder(totalHits(primary.TotalHits, products), products).
		WithFacets(facets)
	if req != nil {
		b.WithPagination(domain.Pagination{Size: req.Size(), From: req.From()})
	}
	return b.Build()
}

func totalHits(reported uint64, products []domain.ProductHit) uint64 {
	if n := uint64(len(products)); n > reported {
		return n
	}
	return reported
}
