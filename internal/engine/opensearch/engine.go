package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/utafrali/search-gateway/internal/engine"
	"github.com/utafrali/search-gateway/internal/query"
	"github.com/utafrali/search-gateway/pkg/httpclient"
)

// Name is the backend name reported in logs, metrics and errors.
const Name = "opensearch"

// Config holds the connection settings for the OpenSearch engine.
type Config struct {
	URL       string
	Username  string
	Password  string
	Index     string
	Transport http.RoundTripper
}

// Engine is an OpenSearch-backed implementation of engine.Backend.
type Engine struct {
	client    *opensearch.Client
	indexName string
	logger    *slog.Logger
}

// New creates a new OpenSearch engine with retries disabled.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("opensearch: index name is required")
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:    []string{cfg.URL},
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch: failed to create client: %w", err)
	}

	logger.Info("opensearch engine configured",
		slog.String("url", httpclient.Redact(cfg.URL)),
		slog.String("index", cfg.Index),
	)

	return &Engine{
		client:    client,
		indexName: cfg.Index,
		logger:    logger,
	}, nil
}

// Name implements engine.Backend.
func (e *Engine) Name() string { return Name }

// Ping checks whether the OpenSearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, e.client)
	if err != nil {
		return engine.TransportError(Name, "ping", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return engine.DecodeError(Name, "ping", res.StatusCode, res.Body)
	}
	return nil
}

// Search executes a query against the configured index.
func (e *Engine) Search(ctx context.Context, req *query.Request) (*engine.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("opensearch search: marshal query: %w", err)
	}

	osReq := opensearchapi.SearchRequest{
		Index: []string{e.indexName},
		Body:  bytes.NewReader(data),
	}

	res, err := osReq.Do(ctx, e.client)
	if err != nil {
		return nil, engine.TransportError(Name, "search", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, engine.DecodeError(Name, "search", res.StatusCode, res.Body)
	}

	return engine.DecodeResponse(Name, res.Body)
}
