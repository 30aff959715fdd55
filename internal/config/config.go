package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/search-gateway/pkg/config"
	"github.com/utafrali/search-gateway/pkg/logger"
)

// Search backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendOpenSearch    = "opensearch"
	BackendMemory        = "memory"
)

// Cache stores.
const (
	CacheStoreRedis  = "redis"
	CacheStoreMemory = "memory"
)

// Config holds all configuration for the search gateway.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	HTTPCacheMaxAge    int      `env:"HTTP_CACHE_MAX_AGE" envDefault:"30"`

	// Search backend
	SearchBackend         string        `env:"SEARCH_BACKEND" envDefault:"opensearch"`
	SearchScheme          string        `env:"SEARCH_SCHEME" envDefault:"http"`
	SearchHost            string        `env:"SEARCH_HOST" envDefault:"localhost"`
	SearchPort            int           `env:"SEARCH_PORT" envDefault:"9200"`
	SearchUser            string        `env:"SEARCH_USER"`
	SearchPassword        string        `env:"SEARCH_PASSWORD"`
	SearchIndex           string        `env:"SEARCH_INDEX" envDefault:"products"`
	SearchTieBreaker      float64       `env:"SEARCH_TIE_BREAKER" envDefault:"0.3"`
	SearchTimeout         time.Duration `env:"SEARCH_TIMEOUT" envDefault:"2s"`
	SearchFacetSize       int           `env:"SEARCH_FACET_SIZE" envDefault:"10"`
	SearchDefaultPageSize int           `env:"SEARCH_DEFAULT_PAGE_SIZE" envDefault:"60"`
	SearchMaxConnsPerHost int           `env:"SEARCH_MAX_CONNS_PER_HOST" envDefault:"50"`
	SearchMemorySeedFile  string        `env:"SEARCH_MEMORY_SEED_FILE"`

	// Response cache
	CacheEnabled bool          `env:"CACHE_ENABLED" envDefault:"false"`
	CacheStore   string        `env:"CACHE_STORE" envDefault:"redis"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	CacheMaxCost int64         `env:"CACHE_MAX_COST" envDefault:"67108864"`

	// Redis
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisTimeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"3s"`

	// Circuit breaker
	CBFailureRatio     float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests      uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`
	CBWindow           time.Duration `env:"CB_WINDOW" envDefault:"60s"`
	CBCoolDown         time.Duration `env:"CB_COOL_DOWN" envDefault:"30s"`
	CBHalfOpenRequests uint32        `env:"CB_HALF_OPEN_REQUESTS" envDefault:"1"`

	// Query log
	QueryLogEnabled bool     `env:"QUERY_LOG_ENABLED" envDefault:"false"`
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	QueryLogTopic   string   `env:"QUERY_LOG_TOPIC" envDefault:"search.query.executed"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search gateway config: %w", err)
	}
	return cfg, nil
}

// SearchURL returns the backend base URL without credentials.
func (c *Config) SearchURL() string {
	return fmt.Sprintf("%s://%s:%d", c.SearchScheme, c.SearchHost, c.SearchPort)
}

// Validate checks cross-field invariants. Load calls it.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != logger.FormatJSON && c.LogFormat != logger.FormatText {
		return fmt.Errorf("invalid LOG_FORMAT: %q (want json or text)", c.LogFormat)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.SearchBackend {
	case BackendElasticsearch, BackendOpenSearch:
		if c.SearchScheme != "http" && c.SearchScheme != "https" {
			return fmt.Errorf("invalid SEARCH_SCHEME: %q", c.SearchScheme)
		}
		if c.SearchHost == "" {
			return fmt.Errorf("SEARCH_HOST is required for backend %s", c.SearchBackend)
		}
		if c.SearchPort < 1 || c.SearchPort > 65535 {
			return fmt.Errorf("invalid search port: %d", c.SearchPort)
		}
		if c.SearchIndex == "" {
			return fmt.Errorf("SEARCH_INDEX is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid SEARCH_BACKEND: %q (want elasticsearch, opensearch or memory)", c.SearchBackend)
	}

	if c.SearchTieBreaker < 0 || c.SearchTieBreaker > 1 {
		return fmt.Errorf("SEARCH_TIE_BREAKER must be in [0,1], got %v", c.SearchTieBreaker)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must be positive, got %s", c.SearchTimeout)
	}
	if c.SearchFacetSize < 1 {
		return fmt.Errorf("SEARCH_FACET_SIZE must be positive, got %d", c.SearchFacetSize)
	}
	if c.SearchDefaultPageSize < 0 {
		return fmt.Errorf("SEARCH_DEFAULT_PAGE_SIZE must not be negative, got %d", c.SearchDefaultPageSize)
	}
	if c.SearchMaxConnsPerHost < 1 {
		return fmt.Errorf("SEARCH_MAX_CONNS_PER_HOST must be positive, got %d", c.SearchMaxConnsPerHost)
	}

	if c.CacheEnabled {
		switch c.CacheStore {
		case CacheStoreRedis:
			if c.RedisPort < 1 || c.RedisPort > 65535 {
				return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
			}
		case CacheStoreMemory:
			if c.CacheMaxCost <= 0 {
				return fmt.Errorf("CACHE_MAX_COST must be positive, got %d", c.CacheMaxCost)
			}
		default:
			return fmt.Errorf("invalid CACHE_STORE: %q (want redis or memory)", c.CacheStore)
		}
		if c.CacheTTL <= 0 {
			return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
		}
	}

	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0,1], got %v", c.CBFailureRatio)
	}
	if c.CBHalfOpenRequests < 1 {
		return fmt.Errorf("CB_HALF_OPEN_REQUESTS must be at least 1")
	}
	if c.CBCoolDown <= 0 {
		return fmt.Errorf("CB_COOL_DOWN must be positive, got %s", c.CBCoolDown)
	}

	if c.QueryLogEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when QUERY_LOG_ENABLED is set")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be in [0,1], got %v", c.OTelSampleRate)
	}
	return nil
}
