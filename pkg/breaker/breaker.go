// Package breaker wraps sony/gobreaker with the failure-ratio trip policy,
// state metrics and logging shared by every breaker in the gateway.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned when the breaker rejects a call without running it,
// either because it is open or because the half-open trial quota is spent.
var ErrOpen = errors.New("circuit breaker open")

// Config holds configuration for a circuit breaker.
type Config struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval is the rolling window after which closed-state counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once failures/requests reaches it.
	FailureRatio float64

	// MinRequests is the minimum number of requests in the window before
	// FailureRatio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns the gateway's default breaker policy.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return errors.New("breaker name is required")
	case c.FailureRatio <= 0 || c.FailureRatio > 1:
		return fmt.Errorf("failure ratio %v out of range (0,1]", c.FailureRatio)
	case c.MinRequests == 0:
		return errors.New("min requests must be positive")
	case c.MaxRequests == 0:
		return errors.New("half-open requests must be positive")
	case c.Timeout <= 0:
		return errors.New("cool-down must be positive")
	case c.Interval < 0:
		return errors.New("window must not be negative")
	}
	return nil
}

var (
	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Calls through the circuit breaker by result (success, failure, cancelled, rejected)",
		},
		[]string{"name", "result"},
	)

	fallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_fallback_invoked_total",
			Help: "Total number of times the circuit breaker fallback was invoked",
		},
		[]string{"name"},
	)
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Breaker guards calls returning T.
type Breaker[T any] struct {
	cb     *gobreaker.CircuitBreaker[T]
	name   string
	logger *slog.Logger
}

// New builds a breaker from cfg. A call that ends in caller cancellation is
// excluded from the counts, so it can neither trip nor close the circuit.
// Every other error, deadline expiry included, is a failure.
func New[T any](cfg Config, logger *slog.Logger) *Breaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			requests := counts.Requests - min(counts.TotalExclusions, counts.Requests)
			if requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			stateGauge.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	}

	stateGauge.WithLabelValues(cfg.Name).Set(0)

	return &Breaker[T]{
		cb:     gobreaker.NewCircuitBreaker[T](settings),
		name:   cfg.Name,
		logger: logger,
	}
}

// Execute runs fn through the breaker. Rejections are reported as ErrOpen
// wrapping the gobreaker cause.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		requestsTotal.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		requestsTotal.WithLabelValues(b.name, "rejected").Inc()
		return res, fmt.Errorf("%s: %w: %w", b.name, ErrOpen, err)
	case errors.Is(err, context.Canceled):
		requestsTotal.WithLabelValues(b.name, "cancelled").Inc()
	default:
		requestsTotal.WithLabelValues(b.name, "failure").Inc()
	}
	return res, err
}

// Fallback counts a fallback served on behalf of this breaker.
func (b *Breaker[T]) Fallback() {
	fallbackTotal.WithLabelValues(b.name).Inc()
}

// Name returns the breaker name.
func (b *Breaker[T]) Name() string {
	return b.name
}

// State returns the current state of the breaker.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}
