package query

import (
	"fmt"

	"github.com/utafrali/search-gateway/internal/domain"
)

// SimpleQuerySize is the page size of the single-field title query. It is the
// search engines' own default, which the title lookup has always relied on.
const SimpleQuerySize = 10

// SimpleQueryField is the field matched by SimpleQuery.
const SimpleQueryField = "title"

// Options configures a Builder.
type Options struct {
	SearchFields []string
	FacetFields  []string
	TieBreaker   float64
	FacetSize    int
}

// DefaultOptions returns the default field sets with the given tie breaker.
func DefaultOptions(tieBreaker float64) Options {
	return Options{
		SearchFields: []string{"title", "entity"},
		FacetFields:  []string{"category", "entity"},
		TieBreaker:   tieBreaker,
		FacetSize:    10,
	}
}

// Builder translates search requests into engine queries. It holds no
// mutable state and is safe for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.TieBreaker < 0 || opts.TieBreaker > 1 {
		return nil, fmt.Errorf("tie breaker must be in [0,1], got %v", opts.TieBreaker)
	}
	if len(opts.SearchFields) == 0 {
		return nil, fmt.Errorf("at least one search field is required")
	}
	if len(opts.FacetFields) == 0 {
		return nil, fmt.Errorf("at least one facet field is required")
	}
	if opts.FacetSize <= 0 {
		return nil, fmt.Errorf("facet size must be positive, got %d", opts.FacetSize)
	}

	opts.SearchFields = append([]string(nil), opts.SearchFields...)
	opts.FacetFields = append([]string(nil), opts.FacetFields...)
	return &Builder{opts: opts}, nil
}

// FacetFields returns the configured facet fields in order.
func (b *Builder) FacetFields() []string {
	return append([]string(nil), b.opts.FacetFields...)
}

// SearchQuery builds the ranked primary query: a cross-fields match on the
// term restricted by the request filters.
func (b *Builder) SearchQuery(req *domain.ComplexQueryRequest) *Request {
	sorted := req.SortedFilters()
	filters := make([]TermsFilter, 0, len(sorted))
	for _, f := range sorted {
		filters = append(filters, TermsFilter{Field: f.Field, Values: []string{f.Value}})
	}

	return &Request{
		MultiMatch:     b.multiMatch(req.Term()),
		Filters:        filters,
		Size:           req.Size(),
		From:           req.From(),
		Sort:           req.SortOrder(),
		TrackTotalHits: true,
	}
}

// AggregationQuery builds the zero-hit facet query. Filters are not applied,
// so facet counts cover every document matching the term.
func (b *Builder) AggregationQuery(req *domain.ComplexQueryRequest) *Request {
	aggs := make([]TermsAggregation, 0, len(b.opts.FacetFields))
	for _, field := range b.opts.FacetFields {
		aggs = append(aggs, TermsAggregation{Name: field, Field: field, Size: b.opts.FacetSize})
	}

	return &Request{
		MultiMatch:     b.multiMatch(req.Term()),
		Aggregations:   aggs,
		Size:           0,
		TrackTotalHits: true,
	}
}

// SimpleQuery builds the single-field title match.
func (b *Builder) SimpleQuery(term string) *Request {
	return &Request{
		Match:          &Match{Field: SimpleQueryField, Query: term},
		Size:           SimpleQuerySize,
		TrackTotalHits: true,
	}
}

func (b *Builder) multiMatch(term string) *MultiMatch {
	return &MultiMatch{
		Query:      term,
		Fields:     append([]string(nil), b.opts.SearchFields...),
		Type:       TypeCrossFields,
		Operator:   OperatorAnd,
		TieBreaker: b.opts.TieBreaker,
	}
}

// CrossFieldScore blends per-field scores: the best field plus t times the
// sum of the others. It returns 0 for no fields.
func CrossFieldScore(fieldScores []float64, t float64) float64 {
	if len(fieldScores) == 0 {
		return 0
	}
	best, sum := fieldScores[0], 0.0
	for _, s := range fieldScores {
		sum += s
		if s > best {
			best = s
		}
	}
	return best + t*(sum-best)
}
