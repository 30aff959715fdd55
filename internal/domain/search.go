package domain

import (
	"encoding/json"
	"maps"
	"sort"
	"strings"
)

// DefaultPageSize is the page size used when a request does not name one.
const DefaultPageSize = 60

// SortOrder is the direction applied to the relevance sort.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ParseSortOrder parses a case-insensitive sort order. An empty string yields SortDesc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(SortDesc):
		return SortDesc, nil
	case string(SortAsc):
		return SortAsc, nil
	default:
		return "", InvalidRequestf("order must be ASC or DESC, got %q", s)
	}
}

// Lower returns the engine form of the order ("asc" or "desc").
func (o SortOrder) Lower() string {
	return strings.ToLower(string(o))
}

// Filter is a single field = value restriction.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ComplexQueryRequest is a validated, immutable search request.
type ComplexQueryRequest struct {
	term    string
	filters map[string]string
	order   SortOrder
	size    int
	from    int
}

// NewComplexQueryRequest validates its arguments and builds a request.
func NewComplexQueryRequest(term string, filters map[string]string, order SortOrder, size, from int) (*ComplexQueryRequest, error) {
	if size < 0 {
		return nil, InvalidRequestf("size must not be negative, got %d", size)
	}
	if from < 0 {
		return nil, InvalidRequestf("from must not be negative, got %d", from)
	}
	if order == "" {
		order = SortDesc
	}
	if order != SortAsc && order != SortDesc {
		return nil, InvalidRequestf("order must be ASC or DESC, got %q", order)
	}
	for field := range filters {
		if strings.TrimSpace(field) == "" {
			return nil, InvalidRequest("filter field name must not be empty")
		}
	}

	return &ComplexQueryRequest{
		term:    term,
		filters: maps.Clone(filters),
		order:   order,
		size:    size,
		from:    from,
	}, nil
}

// Term returns the free-text search term.
func (r *ComplexQueryRequest) Term() string { return r.term }

// Filters returns a copy of the filter map.
func (r *ComplexQueryRequest) Filters() map[string]string {
	out := make(map[string]string, len(r.filters))
	maps.Copy(out, r.filters)
	return out
}

// SortedFilters returns the filters ordered by field name.
func (r *ComplexQueryRequest) SortedFilters() []Filter {
	out := make([]Filter, 0, len(r.filters))
	for field, value := range r.filters {
		out = append(out, Filter{Field: field, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// SortOrder returns the relevance sort direction.
func (r *ComplexQueryRequest) SortOrder() SortOrder { return r.order }

// Size returns the page size.
func (r *ComplexQueryRequest) Size() int { return r.size }

// From returns the page offset.
func (r *ComplexQueryRequest) From() int { return r.from }

// ProductHit is a single document returned by the search engine.
type ProductHit struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Entity   string `json:"entity"`
}

// FacetBucket holds the value counts for one facet field.
type FacetBucket struct {
	FieldName string
	Counts    map[string]uint64
}

// Pagination echoes the page window of a complex query.
type Pagination struct {
	Size int `json:"size"`
	From int `json:"from"`
}

// SearchResponse is the merged result of a query. It is never mutated after Build.
type SearchResponse struct {
	totalHits  uint64
	products   []ProductHit
	facets     map[string]FacetBucket
	pagination *Pagination
}

// TotalHits returns the number of matching documents reported by the engine.
func (r *SearchResponse) TotalHits() uint64 { return r.totalHits }

// Products returns the hits in engine order.
func (r *SearchResponse) Products() []ProductHit {
	return append([]ProductHit(nil), r.products...)
}

// Facets returns the facet buckets keyed by field name, or nil when facets are absent.
func (r *SearchResponse) Facets() map[string]FacetBucket {
	if r.facets == nil {
		return nil
	}
	out := make(map[string]FacetBucket, len(r.facets))
	for k, v := range r.facets {
		out[k] = FacetBucket{FieldName: v.FieldName, Counts: maps.Clone(v.Counts)}
	}
	return out
}

// HasFacets reports whether facet counts are present.
func (r *SearchResponse) HasFacets() bool { return r.facets != nil }

// Pagination returns the page window, or nil for simple queries.
func (r *SearchResponse) Pagination() *Pagination {
	if r.pagination == nil {
		return nil
	}
	p := *r.pagination
	return &p
}

type searchResponseJSON struct {
	TotalHits  uint64                       `json:"totalHits"`
	Products   []ProductHit                 `json:"products"`
	Facets     map[string]map[string]uint64 `json:"facets,omitempty"`
	Pagination *Pagination                  `json:"pagination,omitempty"`
}

// MarshalJSON encodes the response in its wire form.
func (r *SearchResponse) MarshalJSON() ([]byte, error) {
	out := searchResponseJSON{
		TotalHits:  r.totalHits,
		Products:   r.products,
		Pagination: r.pagination,
	}
	if out.Products == nil {
		out.Products = []ProductHit{}
	}
	if r.facets != nil {
		out.Facets = make(map[string]map[string]uint64, len(r.facets))
		for field, bucket := range r.facets {
			counts := bucket.Counts
			if counts == nil {
				counts = map[string]uint64{}
			}
			out.Facets[field] = counts
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	var in searchResponseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b := NewSearchResponseBuilder(in.TotalHits, in.Products)
	if in.Facets != nil {
		facets := make(map[string]FacetBucket, len(in.Facets))
		for field, counts := range in.Facets {
			facets[field] = FacetBucket{FieldName: field, Counts: counts}
		}
		b.WithFacets(facets)
	}
	if in.Pagination != nil {
		b.WithPagination(*in.Pagination)
	}
	*r = *b.Build()
	return nil
}

// SearchResponseBuilder assembles a SearchResponse.
type SearchResponseBuilder struct {
	resp SearchResponse
}

// NewSearchResponseBuilder starts a response with the mandatory fields.
func NewSearchResponseBuilder(totalHits uint64, products []ProductHit) *SearchResponseBuilder {
	if products == nil {
		products = []ProductHit{}
	}
	return &SearchResponseBuilder{resp: SearchResponse{
		totalHits: totalHits,
		products:  append([]ProductHit(nil), products...),
	}}
}

// WithFacets sets the facet buckets. A nil map leaves facets absent.
func (b *SearchResponseBuilder) WithFacets(facets map[string]FacetBucket) *SearchResponseBuilder {
	if facets == nil {
		b.resp.facets = nil
		return b
	}
	b.resp.facets = make(map[string]FacetBucket, len(facets))
	for k, v := range facets {
		b.resp.facets[k] = FacetBucket{FieldName: k, Counts: maps.Clone(v.Counts)}
	}
	return b
}

// WithPagination sets the page window.
func (b *SearchResponseBuilder) WithPagination(p Pagination) *SearchResponseBuilder {
	b.resp.pagination = &p
	return b
}

// Build returns the finished response. The builder must not be reused.
func (b *SearchResponseBuilder) Build() *SearchResponse {
	resp := b.resp
	return &resp
}

// EmptySearchResponse is the fallback result: no hits, no facets, no pagination.
func EmptySearchResponse() *SearchResponse {
	return NewSearchResponseBuilder(0, nil).Build()
}
