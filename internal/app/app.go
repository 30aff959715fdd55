package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/search-gateway/internal/cache"
	"github.com/utafrali/search-gateway/internal/config"
	"github.com/utafrali/search-gateway/internal/engine"
	esengine "github.com/utafrali/search-gateway/internal/engine/elasticsearch"
	"github.com/utafrali/search-gateway/internal/engine/memory"
	osengine "github.com/utafrali/search-gateway/internal/engine/opensearch"
	"github.com/utafrali/search-gateway/internal/event"
	"github.com/utafrali/search-gateway/internal/gateway"
	handler "github.com/utafrali/search-gateway/internal/handler/http"
	"github.com/utafrali/search-gateway/internal/query"
	"github.com/utafrali/search-gateway/internal/service"
	"github.com/utafrali/search-gateway/pkg/breaker"
	"github.com/utafrali/search-gateway/pkg/database"
	"github.com/utafrali/search-gateway/pkg/health"
	"github.com/utafrali/search-gateway/pkg/httpclient"
	pkgkafka "github.com/utafrali/search-gateway/pkg/kafka"
	"github.com/utafrali/search-gateway/pkg/pagination"
	"github.com/utafrali/search-gateway/pkg/tracing"
)

// App wires together all dependencies and runs the search gateway.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	handler     http.Handler
	transport   *http.Transport
	redisClient *redis.Client
	memoryStore *cache.MemoryStore
	producer    *pkgkafka.Producer
	tracer      *tracing.Provider
}

// NewApp creates a new application instance, initializing all dependencies.
// A configured cache or search backend that cannot be reached fails startup.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources(context.Background())
		}
	}()

	// Tracing.
	tracingCfg := tracing.DefaultConfig(handler.ServiceName)
	tracingCfg.Environment = cfg.Environment
	tracingCfg.Endpoint = cfg.OTelEndpoint
	tracingCfg.SampleRate = cfg.OTelSampleRate
	tracingCfg.Enabled = cfg.OTelEnabled
	a.tracer, err = tracing.Setup(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Search backend.
	backend, err := a.newBackend()
	if err != nil {
		return nil, err
	}

	builderOpts := query.DefaultOptions(cfg.SearchTieBreaker)
	builderOpts.FacetSize = cfg.SearchFacetSize
	builder, err := query.NewBuilder(builderOpts)
	if err != nil {
		return nil, fmt.Errorf("init query builder: %w", err)
	}

	gw := gateway.New(backend, builder, gateway.Options{Timeout: cfg.SearchTimeout}, logger)
	searchService := service.NewSearchService(gw, breaker.Config{
		MaxRequests:  cfg.CBHalfOpenRequests,
		Interval:     cfg.CBWindow,
		Timeout:      cfg.CBCoolDown,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}, logger)

	// Response cache.
	store, err := a.newCacheStore(ctx)
	if err != nil {
		return nil, err
	}
	responseCache := cache.NewResponseCache(store, searchService, cache.Options{
		TTL:         cfg.CacheTTL,
		Enabled:     cfg.CacheEnabled,
		CallTimeout: cfg.SearchTimeout,
	}, logger)

	// Query log.
	var publisher event.Publisher = event.NoopPublisher{}
	if cfg.QueryLogEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewKafkaPublisher(a.producer, cfg.QueryLogTopic, logger)
		logger.Info("query log enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.QueryLogTopic),
		)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical(backend.Name(), backend.Ping)
	if a.redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// HTTP router.
	searchHandler := handler.NewSearchHandler(responseCache, searchService, publisher, pagination.Limits{
		DefaultSize: cfg.SearchDefaultPageSize,
		MaxWindow:   pagination.MaxResultWindow,
	}, logger)
	a.handler = handler.NewRouter(searchHandler, healthHandler, handler.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		CacheMaxAge:    cfg.HTTPCacheMaxAge,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) newBackend() (engine.Backend, error) {
	cfg := a.cfg

	switch cfg.SearchBackend {
	case config.BackendElasticsearch, config.BackendOpenSearch:
		transportCfg := httpclient.DefaultConfig()
		transportCfg.MaxConnsPerHost = cfg.SearchMaxConnsPerHost
		a.transport = httpclient.NewTransport(transportCfg)
		if cfg.SearchBackend == config.BackendElasticsearch {
			eng, err := esengine.New(esengine.Config{
				URL:       cfg.SearchURL(),
				Username:  cfg.SearchUser,
				Password:  cfg.SearchPassword,
				Index:     cfg.SearchIndex,
				Transport: a.transport,
			}, a.logger)
			if err != nil {
				return nil, fmt.Errorf("init elasticsearch engine: %w", err)
			}
			return eng, nil
		}
		eng, err := osengine.New(osengine.Config{
			URL:       cfg.SearchURL(),
			Username:  cfg.SearchUser,
			Password:  cfg.SearchPassword,
			Index:     cfg.SearchIndex,
			Transport: a.transport,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init opensearch engine: %w", err)
		}
		return eng, nil
	default:
		if cfg.SearchMemorySeedFile == "" {
			a.logger.Info("in-memory search engine initialized")
			return memory.New(), nil
		}
		eng, err := memory.LoadFile(cfg.SearchMemorySeedFile)
		if err != nil {
			return nil, fmt.Errorf("init memory engine: %w", err)
		}
		a.logger.Info("in-memory search engine initialized",
			slog.String("seed_file", cfg.SearchMemorySeedFile),
			slog.Int("documents", eng.Len()),
		)
		return eng, nil
	}
}

func (a *App) newCacheStore(ctx context.Context) (cache.Store, error) {
	cfg := a.cfg
	if !cfg.CacheEnabled {
		return cache.NoopStore{}, nil
	}

	switch cfg.CacheStore {
	case config.CacheStoreMemory:
		store, err := cache.NewMemoryStore(cfg.CacheMaxCost)
		if err != nil {
			return nil, fmt.Errorf("init memory cache: %w", err)
		}
		a.memoryStore = store
		a.logger.Info("response cache enabled",
			slog.String("store", cfg.CacheStore),
			slog.Duration("ttl", cfg.CacheTTL),
		)
		return store, nil
	default:
		redisCfg := database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
		}
		client, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		a.redisClient = client
		a.logger.Info("response cache enabled",
			slog.String("store", cfg.CacheStore),
			slog.String("addr", redisCfg.Addr()),
			slog.Duration("ttl", cfg.CacheTTL),
		)
		return cache.NewRedisStore(client), nil
	}
}

// Run starts the HTTP server, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	errs = append(errs, a.closeResources(shutdownCtx))

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything NewApp opened. It is safe to call on a
// partially initialized App.
func (a *App) closeResources(ctx context.Context) error {
	var errs []error

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.memoryStore != nil {
		a.memoryStore.Close()
	}
	if a.transport != nil {
		a.transport.CloseIdleConnections()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
