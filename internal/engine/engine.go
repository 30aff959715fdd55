package engine

import (
	"context"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/query"
)

// Backend executes queries against a search index.
// Implementations may use Elasticsearch, OpenSearch, or in-memory storage.
type Backend interface {
	// Name identifies the backend in logs, metrics and errors.
	Name() string

	// Search runs a single query and returns the decoded response.
	Search(ctx context.Context, req *query.Request) (*Response, error)

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Bucket is one value of a terms aggregation with a string-normalized key.
type Bucket struct {
	Key      string
	DocCount uint64
}

// Response is the decoded result of a single query.
type Response struct {
	TotalHits    uint64
	Hits         []domain.ProductHit
	Aggregations map[string][]Bucket
}
