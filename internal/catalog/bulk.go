package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/utafrali/search-gateway/internal/domain"
)

// Target describes the index a catalog is loaded into.
type Target struct {
	URL       string
	Username  string
	Password  string
	Index     string
	Transport http.RoundTripper
}

// Stats summarizes a bulk load.
type Stats struct {
	Indexed uint64
	Failed  uint64
}

// IndexElasticsearch bulk-indexes products into an Elasticsearch index,
// keyed by product ID.
func IndexElasticsearch(ctx context.Context, t Target, products []domain.ProductHit, logger *slog.Logger) (Stats, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{t.URL},
		Username:  t.Username,
		Password:  t.Password,
		Transport: t.Transport,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client: client,
		Index:  t.Index,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("elasticsearch: create bulk indexer: %w", err)
	}

	for _, p := range products {
		body, err := json.Marshal(p)
		if err != nil {
			return Stats{}, fmt.Errorf("marshal product %s: %w", p.ID, err)
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: p.ID,
			Body:       bytes.NewReader(body),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				logFailure(ctx, logger, item.DocumentID, res.Error.Type, res.Error.Reason, err)
			},
		})
		if err != nil {
			return Stats{}, fmt.Errorf("elasticsearch: add product %s: %w", p.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return Stats{}, fmt.Errorf("elasticsearch: flush bulk indexer: %w", err)
	}
	s := bi.Stats()
	return Stats{Indexed: s.NumIndexed, Failed: s.NumFailed}, nil
}

// IndexOpenSearch bulk-indexes products into an OpenSearch index, keyed by
// product ID.
func IndexOpenSearch(ctx context.Context, t Target, products []domain.ProductHit, logger *slog.Logger) (Stats, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{t.URL},
		Username:  t.Username,
		Password:  t.Password,
		Transport: t.Transport,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("opensearch: failed to create client: %w", err)
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: client,
		Index:  t.Index,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("opensearch: create bulk indexer: %w", err)
	}

	for _, p := range products {
		body, err := json.Marshal(p)
		if err != nil {
			return Stats{}, fmt.Errorf("marshal product %s: %w", p.ID, err)
		}
		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: p.ID,
			Body:       bytes.NewReader(body),
			OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				logFailure(ctx, logger, item.DocumentID, res.Error.Type, res.Error.Reason, err)
			},
		})
		if err != nil {
			return Stats{}, fmt.Errorf("opensearch: add product %s: %w", p.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return Stats{}, fmt.Errorf("opensearch: flush bulk indexer: %w", err)
	}
	s := bi.Stats()
	return Stats{Indexed: s.NumIndexed, Failed: s.NumFailed}, nil
}

func logFailure(ctx context.Context, logger *slog.Logger, id, errType, reason string, err error) {
	attrs := []any{slog.String("product_id", id)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	} else {
		attrs = append(attrs, slog.String("type", errType), slog.String("reason", reason))
	}
	logger.WarnContext(ctx, "bulk index failed", attrs...)
}
