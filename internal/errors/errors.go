package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Base error types
var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrLimitReached   = errors.New("limit reached")
	ErrQuotaExhausted = errors.New("quota exhausted")
	ErrUpstream       = errors.New("upstream failure")
	ErrInternalError  = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeLimit        ErrorType = "limit"
	ErrorTypeQuota        ErrorType = "quota"
	ErrorTypeUpstream     ErrorType = "upstream"
	ErrorTypeInternal     ErrorType = "internal"
)

var typeSentinels = map[ErrorType]error{
	ErrorTypeNotFound:     ErrNotFound,
	ErrorTypeUnauthorized: ErrUnauthorized,
	ErrorTypeForbidden:    ErrForbidden,
	ErrorTypeValidation:   ErrInvalidInput,
	ErrorTypeConflict:     ErrConflict,
	ErrorTypeLimit:        ErrLimitReached,
	ErrorTypeQuota:        ErrQuotaExhausted,
	ErrorTypeUpstream:     ErrUpstream,
	ErrorTypeInternal:     ErrInternalError,
}

// AppError is a structured error carried from the store and service layers
// up to the HTTP boundary.
type AppError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "create_case", "ai_research")
	Err        error  // Underlying error
	StatusCode int    // Upstream HTTP status code if applicable
	Details    map[string]any
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Type)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if sentinel, ok := typeSentinels[e.Type]; ok && sentinel == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// New creates a new AppError
func New(errorType ErrorType, op string, err error) *AppError {
	return &AppError{Type: errorType, Op: op, Err: err}
}

// WithDetail attaches a detail surfaced to API callers.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithStatusCode records the upstream HTTP status code.
func (e *AppError) WithStatusCode(code int) *AppError {
	e.StatusCode = code
	return e
}

// Helper functions

// NotFound wraps err as a not-found error.
func NotFound(op string, err error) error {
	return New(ErrorTypeNotFound, op, err)
}

// Invalid wraps a validation failure.
func Invalid(op, format string, args ...any) error {
	return New(ErrorTypeValidation, op, fmt.Errorf(format, args...))
}

// Upstream wraps a failure from an external provider.
func Upstream(op string, err error, statusCode int) error {
	return New(ErrorTypeUpstream, op, err).WithStatusCode(statusCode)
}

// TypeOf returns the category of err, defaulting to internal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	for t, sentinel := range typeSentinels {
		if errors.Is(err, sentinel) {
			return t
		}
	}
	return ErrorTypeInternal
}

// DetailsOf returns the details attached to the outermost AppError in err.
func DetailsOf(err error) map[string]any {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}

// HTTPStatus maps an error to the response status used by the API.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeLimit:
		return http.StatusPaymentRequired
	case ErrorTypeQuota:
		return http.StatusTooManyRequests
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
