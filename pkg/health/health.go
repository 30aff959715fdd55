package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/search-gateway/pkg/httputil"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// Status of a dependency or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// DefaultTimeout bounds a full readiness evaluation.
const DefaultTimeout = 5 * time.Second

var dependencyUp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "dependency_up",
		Help: "1 if the last readiness probe of the dependency succeeded.",
	},
	[]string{"dependency", "critical"},
)

// Response is the body of both health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type check struct {
	fn       Checker
	critical bool
}

// Handler serves liveness and readiness. Readiness is 503 when a critical
// dependency is down and 200 with status degraded when only non-critical
// ones are.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
}

// NewHandler returns a Handler with no registered checks.
func NewHandler() *Handler {
	return &Handler{
		checks:  make(map[string]check),
		timeout: DefaultTimeout,
	}
}

// RegisterCritical adds a dependency the gateway cannot serve without.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.add(name, checker, true)
}

// RegisterNonCritical adds a dependency whose outage only degrades service.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.add(name, checker, false)
}

func (h *Handler) add(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{fn: checker, critical: critical}
}

// LivenessHandler reports up while the process is serving.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler probes every registered dependency concurrently.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := h.probe(r.Context())

		overall := StatusUp
		for _, res := range results {
			switch {
			case res.Status == StatusUp:
			case res.Critical:
				overall = StatusDown
			case overall == StatusUp:
				overall = StatusDegraded
			}
		}

		status := http.StatusOK
		if overall == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, Response{
			Status:    overall,
			Timestamp: time.Now().UTC(),
			Checks:    results,
		})
	}
}

func (h *Handler) probe(ctx context.Context) map[string]CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]CheckResult, len(checks))
	)
	for name, c := range checks {
		g.Go(func() error {
			start := time.Now()
			res := CheckResult{Status: StatusUp, Critical: c.critical}
			up := 1.0
			if err := c.fn(ctx); err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
				up = 0
			}
			res.DurationMs = time.Since(start).Milliseconds()
			dependencyUp.WithLabelValues(name, criticalLabel(c.critical)).Set(up)

			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func criticalLabel(critical bool) string {
	if critical {
		return "true"
	}
	return "false"
}
