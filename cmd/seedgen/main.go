// Command seedgen generates a deterministic product catalog. The catalog is
// written as a JSON array usable as SEARCH_MEMORY_SEED_FILE and can also be
// bulk-loaded into an Elasticsearch or OpenSearch index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utafrali/search-gateway/internal/catalog"
	"github.com/utafrali/search-gateway/pkg/config"
	"github.com/utafrali/search-gateway/pkg/httpclient"
	"github.com/utafrali/search-gateway/pkg/logger"
)

type seedConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Products int    `env:"SEED_PRODUCTS" envDefault:"10000"`
	Seed     int64  `env:"SEED_RANDOM_SEED" envDefault:"42"`
	Output   string `env:"SEED_OUTPUT" envDefault:"catalog.json"`

	// Target is "none", "elasticsearch" or "opensearch".
	Target         string        `env:"SEED_TARGET" envDefault:"none"`
	SearchURL      string        `env:"SEARCH_URL" envDefault:"http://localhost:9200"`
	SearchUser     string        `env:"SEARCH_USER"`
	SearchPassword string        `env:"SEARCH_PASSWORD"`
	SearchIndex    string        `env:"SEARCH_INDEX" envDefault:"products"`
	Timeout        time.Duration `env:"SEED_TIMEOUT" envDefault:"10m"`
}

const (
	targetNone          = "none"
	targetElasticsearch = "elasticsearch"
	targetOpenSearch    = "opensearch"
)

func (c *seedConfig) Validate() error {
	if c.Products < 0 {
		return fmt.Errorf("SEED_PRODUCTS must not be negative, got %d", c.Products)
	}
	switch c.Target {
	case "", targetNone, targetElasticsearch, targetOpenSearch:
		return nil
	default:
		return fmt.Errorf("invalid SEED_TARGET: %q (want none, elasticsearch or opensearch)", c.Target)
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var cfg seedConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Options{Service: "seedgen", Level: cfg.LogLevel, Format: cfg.LogFormat})

	products := catalog.Generate(cfg.Products, cfg.Seed)
	log.Info("catalog generated",
		slog.Int("products", len(products)),
		slog.Int64("seed", cfg.Seed),
	)

	if cfg.Output != "" {
		data, err := json.Marshal(products)
		if err != nil {
			return fmt.Errorf("marshal catalog: %w", err)
		}
		if err := os.WriteFile(cfg.Output, data, 0o644); err != nil {
			return fmt.Errorf("write catalog: %w", err)
		}
		log.Info("catalog written", slog.String("path", cfg.Output))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelTimeout()

	target := catalog.Target{
		URL:       cfg.SearchURL,
		Username:  cfg.SearchUser,
		Password:  cfg.SearchPassword,
		Index:     cfg.SearchIndex,
		Transport: httpclient.NewTransport(httpclient.DefaultConfig()),
	}

	var stats catalog.Stats
	var err error
	switch cfg.Target {
	case "", targetNone:
		return nil
	case targetElasticsearch:
		stats, err = catalog.IndexElasticsearch(ctx, target, products, log)
	case targetOpenSearch:
		stats, err = catalog.IndexOpenSearch(ctx, target, products, log)
	}
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}

	log.Info("catalog indexed",
		slog.String("target", cfg.Target),
		slog.String("url", httpclient.Redact(cfg.SearchURL)),
		slog.String("index", cfg.SearchIndex),
		slog.Uint64("indexed", stats.Indexed),
		slog.Uint64("failed", stats.Failed),
	)
	if stats.Failed > 0 {
		return fmt.Errorf("%d products failed to index", stats.Failed)
	}
	return nil
}
