package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/engine"
	"github.com/utafrali/search-gateway/internal/query"
)

// laptopCatalog holds ten "laptop" documents: three electronics and seven books.
func laptopCatalog() []domain.ProductHit {
	var products []domain.ProductHit
	for i := 0; i < 3; i++ {
		products = append(products, domain.ProductHit{
			ID: fmt.Sprintf("e%d", i), Title: "Gaming laptop", Category: "electronics", Entity: "acme",
		})
	}
	for i := 0; i < 7; i++ {
		products = append(products, domain.ProductHit{
			ID: fmt.Sprintf("b%d", i), Title: "Laptop repair guide", Category: "books", Entity: "press",
		})
	}
	products = append(products, domain.ProductHit{ID: "x1", Title: "Desk lamp", Category: "home", Entity: "acme"})
	return products
}

func newBuilder(t *testing.T) *query.Builder {
	t.Helper()
	b, err := query.NewBuilder(query.DefaultOptions(0.3))
	require.NoError(t, err)
	return b
}

func newRequest(t *testing.T, term string, filters map[string]string, size, from int) *domain.ComplexQueryRequest {
	t.Helper()
	req, err := domain.NewComplexQueryRequest(term, filters, domain.SortDesc, size, from)
	require.NoError(t, err)
	return req
}

func TestSearch_FilteredPrimaryAndUnfilteredFacets(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)
	req := newRequest(t, "laptop", map[string]string{"category": "electronics"}, 10, 0)

	primary, err := e.Search(context.Background(), b.SearchQuery(req))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), primary.TotalHits)
	require.Len(t, primary.Hits, 3)
	for _, h := range primary.Hits {
		assert.Equal(t, "electronics", h.Category)
	}

	aggs, err := e.Search(context.Background(), b.AggregationQuery(req))
	require.NoError(t, err)
	assert.Empty(t, aggs.Hits)
	assert.Equal(t, uint64(10), aggs.TotalHits)
	assert.Equal(t, []engine.Bucket{
		{Key: "books", DocCount: 7},
		{Key: "electronics", DocCount: 3},
	}, aggs.Aggregations["category"])
	assert.Equal(t, []engine.Bucket{
		{Key: "press", DocCount: 7},
		{Key: "acme", DocCount: 3},
	}, aggs.Aggregations["entity"])
}

func TestSearch_EmptyFiltersEqualNoFilters(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)

	withNil, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "laptop", nil, 60, 0)))
	require.NoError(t, err)
	withEmpty, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "laptop", map[string]string{}, 60, 0)))
	require.NoError(t, err)

	assert.Equal(t, withNil, withEmpty)
	assert.Equal(t, uint64(10), withNil.TotalHits)
}

func TestSearch_FacetCountsNeverExceedTotal(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)
	req := newRequest(t, "laptop", nil, 60, 0)

	aggs, err := e.Search(context.Background(), b.AggregationQuery(req))
	require.NoError(t, err)

	for _, field := range b.FacetFields() {
		var sum uint64
		for _, bucket := range aggs.Aggregations[field] {
			sum += bucket.DocCount
		}
		assert.LessOrEqual(t, sum, aggs.TotalHits, field)
	}
}

func TestSearch_CrossFieldsRequiresEveryToken(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)

	// "gaming" is in the title, "acme" in the entity: cross-fields matches across both.
	resp, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "gaming acme", nil, 60, 0)))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), resp.TotalHits)

	resp, err = e.Search(context.Background(), b.SearchQuery(newRequest(t, "gaming press", nil, 60, 0)))
	require.NoError(t, err)
	assert.Zero(t, resp.TotalHits)
}

func TestSearch_EmptyTermMatchesNothing(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)

	resp, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "", nil, 60, 0)))
	require.NoError(t, err)
	assert.Zero(t, resp.TotalHits)
	assert.Empty(t, resp.Hits)
}

func TestSearch_Pagination(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)

	page, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "laptop", nil, 4, 8)))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), page.TotalHits)
	assert.Len(t, page.Hits, 2)

	past, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "laptop", nil, 4, 50)))
	require.NoError(t, err)
	assert.Empty(t, past.Hits)

	zero, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "laptop", nil, 0, 0)))
	require.NoError(t, err)
	assert.Empty(t, zero.Hits)
	assert.Equal(t, uint64(10), zero.TotalHits)
}

func TestSearch_SortOrder(t *testing.T) {
	e := New(
		domain.ProductHit{ID: "1", Title: "laptop", Entity: "x"},
		domain.ProductHit{ID: "2", Title: "laptop laptop", Entity: "laptop"},
	)
	b := newBuilder(t)

	desc, err := e.Search(context.Background(), b.SearchQuery(newRequest(t, "laptop", nil, 10, 0)))
	require.NoError(t, err)
	assert.Equal(t, "2", desc.Hits[0].ID)

	ascReq, err := domain.NewComplexQueryRequest("laptop", nil, domain.SortAsc, 10, 0)
	require.NoError(t, err)
	asc, err := e.Search(context.Background(), b.SearchQuery(ascReq))
	require.NoError(t, err)
	assert.Equal(t, "1", asc.Hits[0].ID)
}

func TestSearch_SimpleQuery(t *testing.T) {
	e := New(laptopCatalog()...)
	b := newBuilder(t)

	resp, err := e.Search(context.Background(), b.SimpleQuery("lamp"))
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "x1", resp.Hits[0].ID)
	assert.Nil(t, resp.Aggregations)
}

func TestSearch_CanceledContext(t *testing.T) {
	e := New(laptopCatalog()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, newBuilder(t).SimpleQuery("laptop"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "1", "title": "Laptop", "category": "electronics", "entity": "acme"},
		{"id": "2", "title": "Novel", "category": "books", "entity": "press"}
	]`), 0o600))

	e, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"title": "no id"}]`), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
