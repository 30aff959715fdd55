package domain

import (
	"errors"
	"fmt"

	apperrors "github.com/utafrali/search-gateway/pkg/errors"
)

// ErrSearchBackend matches every SearchBackendError via errors.Is.
var ErrSearchBackend = errors.New("search backend error")

// Kind classifies a backend failure.
type Kind string

// Backend failure kinds.
const (
	KindUnreachable Kind = "unreachable"
	KindTimeout     Kind = "timeout"
	KindEngine      Kind = "engine"
	KindMalformed   Kind = "malformed"
)

// SearchBackendError describes a failed call to the search engine.
type SearchBackendError struct {
	Backend string
	Op      string
	Kind    Kind
	Status  int
	Reason  string
	Err     error
}

func (e *SearchBackendError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Backend, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SearchBackendError) Unwrap() error { return e.Err }

// Is reports ErrSearchBackend as a match.
func (e *SearchBackendError) Is(target error) bool {
	return target == ErrSearchBackend
}

// AggregationError reports a failed or malformed facet sub-query.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return "aggregation: " + e.Err.Error()
}

func (e *AggregationError) Unwrap() error { return e.Err }

// InvalidRequest returns a 400 error for a rejected request.
func InvalidRequest(message string) *apperrors.AppError {
	return apperrors.InvalidInput(message)
}

// InvalidRequestf is InvalidRequest with a formatted message.
func InvalidRequestf(format string, args ...any) *apperrors.AppError {
	return apperrors.InvalidInputf(format, args...)
}

// IsInvalidRequest reports whether err is a request validation error.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidInput)
}
