package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/search-gateway/pkg/health"
	"github.com/utafrali/search-gateway/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "search-gateway"

// RouterConfig holds the HTTP-layer settings of the router.
type RouterConfig struct {
	AllowedOrigins []string
	// CacheMaxAge is the Cache-Control max-age, in seconds, of simple query
	// responses. Zero disables the header.
	CacheMaxAge int
}

// NewRouter creates a chi router with all query gateway routes registered.
func NewRouter(
	searchHandler *SearchHandler,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Query endpoints
	r.With(chimw.AllowContentType("application/json")).Post("/query", searchHandler.ComplexQuery)
	r.With(middleware.CacheControl(cfg.CacheMaxAge)).Get("/query/{term}", searchHandler.SimpleQuery)

	return r
}
