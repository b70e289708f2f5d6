package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/ratelimit"
	"github.com/xenovalaw/xenova/internal/tenancy"
)

// APIError is the envelope of every error response.
type APIError struct {
	Code       string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Timestamp  int64          `json:"timestamp"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// errRoleForbidden is returned when the caller's role may not see a module.
var errRoleForbidden = errors.New("role cannot access this module")

// classify maps err to its response. Only the messages chosen here reach
// clients; wrapped store or provider errors are logged, never echoed.
func classify(err error) *APIError {
	var (
		locked *assistant.LockedError
		quota  *assistant.QuotaExhaustedError
		verr   validationErrors
	)
	switch {
	case errors.As(err, &verr):
		return &APIError{Code: "invalid_request", StatusCode: http.StatusBadRequest,
			Message: "Request validation failed", Details: verr.details()}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return &APIError{Code: "rate_limited", StatusCode: http.StatusTooManyRequests,
			Message: "Too many requests, try again later"}
	case errors.Is(err, tenancy.ErrNoTenant):
		return &APIError{Code: "no_tenant", StatusCode: http.StatusUnauthorized,
			Message: "Account is not attached to a firm"}
	case errors.Is(err, tenancy.ErrTenantInactive):
		return &APIError{Code: "tenant_inactive", StatusCode: http.StatusForbidden,
			Message: "Firm account is inactive"}
	case errors.Is(err, errRoleForbidden):
		return &APIError{Code: "role_forbidden", StatusCode: http.StatusForbidden,
			Message: "Your role cannot access this module"}
	case errors.As(err, &locked):
		d := locked.Decision
		details := map[string]any{
			"module":      d.Module,
			"locked":      true,
			"reason":      d.Reason,
			"reason_code": d.ReasonCode,
			"requires_ai": d.RequiresAI,
		}
		if d.RequiredTier != "" {
			details["required_tier"] = d.RequiredTier
		}
		if d.UpgradeHint != "" {
			details["upgrade_hint"] = d.UpgradeHint
		}
		return &APIError{Code: "module_locked", StatusCode: http.StatusPaymentRequired,
			Message: "Module is not available on your plan", Details: details}
	case errors.As(err, &quota):
		return &APIError{Code: "quota_exhausted", StatusCode: http.StatusTooManyRequests,
			Message: "AI quota exhausted for this period",
			Details: map[string]any{"used": quota.Used, "max": quota.Max}}
	case errors.Is(err, assistant.ErrProcessingFailed), errors.Is(err, assistant.ErrAIUnavailable):
		return &APIError{Code: "ai_processing_failed", StatusCode: http.StatusBadGateway,
			Message: "AI processing failed, try again later"}
	}

	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound:
		return &APIError{Code: "not_found", StatusCode: http.StatusNotFound, Message: "Resource not found"}
	case apperrors.ErrorTypeUnauthorized:
		return &APIError{Code: "unauthorized", StatusCode: http.StatusUnauthorized, Message: "Authentication required"}
	case apperrors.ErrorTypeForbidden:
		return &APIError{Code: "forbidden", StatusCode: http.StatusForbidden, Message: "Operation not permitted"}
	case apperrors.ErrorTypeValidation:
		return &APIError{Code: "invalid_request", StatusCode: http.StatusBadRequest, Message: validationMessage(err)}
	case apperrors.ErrorTypeConflict:
		return &APIError{Code: "conflict", StatusCode: http.StatusConflict, Message: "Resource already exists or changed state"}
	case apperrors.ErrorTypeLimit:
		return &APIError{Code: "limit_reached", StatusCode: http.StatusPaymentRequired,
			Message: "Plan limit reached", Details: apperrors.DetailsOf(err)}
	case apperrors.ErrorTypeQuota:
		return &APIError{Code: "quota_exhausted", StatusCode: http.StatusTooManyRequests,
			Message: "AI quota exhausted for this period", Details: apperrors.DetailsOf(err)}
	case apperrors.ErrorTypeUpstream:
		return &APIError{Code: "upstream_error", StatusCode: http.StatusBadGateway, Message: "Upstream service failed"}
	default:
		return &APIError{Code: "internal_error", StatusCode: http.StatusInternalServerError, Message: "An unexpected error occurred"}
	}
}

// validationMessage returns the inner message of a validation AppError.
// Those messages are written for clients.
func validationMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return "Invalid request"
}

// writeError renders err with the envelope. Server-side failures are logged
// at error level with the underlying cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := classify(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Str("code", resp.Code).
			Msg("Request failed")
	}
	writeAPIError(w, r, resp)
}

// writeErrorResponse writes a consistent error response
func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, details map[string]any) {
	writeAPIError(w, r, &APIError{Code: code, Message: message, StatusCode: statusCode, Details: details})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, resp *APIError) {
	resp.Timestamp = time.Now().Unix()
	resp.RequestID = logging.GetRequestID(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Failed to encode error response")
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}
