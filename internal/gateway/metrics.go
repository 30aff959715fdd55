package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var backendRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_backend_request_duration_seconds",
		Help:    "Latency of search backend sub-queries.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
	},
	[]string{"backend", "sub_query", "outcome"},
)

func observe(backend, subQuery string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	backendRequestDuration.WithLabelValues(backend, subQuery, outcome).Observe(elapsed.Seconds())
}
