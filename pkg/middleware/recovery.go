package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/search-gateway/pkg/errors"
	"github.com/utafrali/search-gateway/pkg/httputil"
	"github.com/utafrali/search-gateway/pkg/logger"
)

var httpPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_handler_panics_total",
		Help: "Panics recovered from HTTP handlers.",
	},
	[]string{"route"},
)

// Recovery turns a handler panic into a 500 error envelope. When the handler
// had already started the response only the log line and counter remain.
// http.ErrAbortHandler is re-raised.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newStatusRecorder(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				route := routePattern(r, "unmatched")
				httpPanicsTotal.WithLabelValues(route).Inc()
				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("route", route),
					slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
					slog.Bool("response_started", rw.wroteHeader),
				)
				if rw.wroteHeader {
					return
				}

				code, message := apperrors.Classify(apperrors.Internal(nil))
				httputil.WriteJSON(rw, code.Status(), httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      string(code),
						Message:   message,
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
