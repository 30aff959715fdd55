package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/search-gateway/pkg/errors"
	"github.com/utafrali/search-gateway/pkg/logger"
	"github.com/utafrali/search-gateway/pkg/validator"
)

// Response is the standard JSON error envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRawJSON writes an already encoded JSON document.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteNoContent writes a bodiless 204 response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes the error envelope for err. Server-side failures are
// logged with the request-scoped logger when the RequestLogger middleware is
// mounted, otherwise with fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	code, message := apperrors.Classify(err)
	status := code.Status()

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.String("code", string(code)),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeErrorBody(w, r, status, ErrorResponse{Code: string(code), Message: message})
}

// WriteValidationError writes a 400 response. Field-level messages are
// included when err is a validator.ValidationError.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeErrorBody(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    string(apperrors.CodeValidation),
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		})
		return
	}

	writeErrorBody(w, r, http.StatusBadRequest, ErrorResponse{
		Code:    string(apperrors.CodeInvalidInput),
		Message: err.Error(),
	})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	body.RequestID = logger.CorrelationIDFromContext(r.Context())
	WriteJSON(w, status, Response{Error: &body})
}
