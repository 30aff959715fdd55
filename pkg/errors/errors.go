package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code reported to API clients.
type Code string

// Codes reported by the gateway.
const (
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Status returns the HTTP status clients receive for c.
func (c Code) Status() int {
	switch c {
	case CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels matched by Classify when an error carries no AppError.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// internalMessage replaces the text of every 5xx error sent to clients.
const internalMessage = "an internal error occurred"

// AppError is an error with a client-facing code and message.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Status is shorthand for e.Code.Status().
func (e *AppError) Status() int { return e.Code.Status() }

// InvalidInput rejects a request with message.
func InvalidInput(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message, Err: ErrInvalidInput}
}

// InvalidInputf is InvalidInput with a formatted message.
func InvalidInputf(format string, args ...any) *AppError {
	return InvalidInput(fmt.Sprintf(format, args...))
}

// Unavailable reports a dependency outage; cause is kept for logs only.
func Unavailable(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrUnavailable
	} else {
		cause = fmt.Errorf("%w: %w", ErrUnavailable, cause)
	}
	return &AppError{Code: CodeUnavailable, Message: message, Err: cause}
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: internalMessage, Err: err}
}

// Classify resolves err to the code and message sent to clients. Messages of
// internal errors never leave the process.
func Classify(err error) (Code, string) {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		if appErr.Code.Status() >= http.StatusInternalServerError && appErr.Code != CodeUnavailable {
			return appErr.Code, internalMessage
		}
		return appErr.Code, appErr.Message
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput, err.Error()
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable, ErrUnavailable.Error()
	default:
		return CodeInternal, internalMessage
	}
}

// HTTPStatus returns the status Classify maps err to.
func HTTPStatus(err error) int {
	code, _ := Classify(err)
	return code.Status()
}
