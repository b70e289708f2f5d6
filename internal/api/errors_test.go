package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/ratelimit"
	"github.com/xenovalaw/xenova/internal/tenancy"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", apperrors.New(apperrors.ErrorTypeUnauthorized, "op", errors.New("x")), 401, "unauthorized"},
		{"no tenant", fmt.Errorf("guard: %w", tenancy.ErrNoTenant), 401, "no_tenant"},
		{"inactive tenant", tenancy.ErrTenantInactive, 403, "tenant_inactive"},
		{"role", errRoleForbidden, 403, "role_forbidden"},
		{"not found", apperrors.NotFound("op", errors.New("x")), 404, "not_found"},
		{"locked", &assistant.LockedError{Decision: licensing.Decision{Module: "reports", Locked: true}}, 402, "module_locked"},
		{"seat limit", fmt.Errorf("create user: %w", apperrors.New(apperrors.ErrorTypeLimit, "op", errors.New("x"))), 402, "limit_reached"},
		{"quota", &assistant.QuotaExhaustedError{Used: 3, Max: 3}, 429, "quota_exhausted"},
		{"rate limited", ratelimit.ErrRateLimited, 429, "rate_limited"},
		{"provider", fmt.Errorf("run: %w", assistant.ErrProcessingFailed), 502, "ai_processing_failed"},
		{"validation", apperrors.Invalid("op", "name is required"), 400, "invalid_request"},
		{"fields", validationErrors{"name": "is required"}, 400, "invalid_request"},
		{"conflict", apperrors.New(apperrors.ErrorTypeConflict, "op", errors.New("x")), 409, "conflict"},
		{"unknown", errors.New("database is locked"), 500, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestClassifyKeepsInternalsPrivate(t *testing.T) {
	got := classify(fmt.Errorf("query tenants: %w", errors.New("pq: relation \"tenants\" does not exist")))
	assert.NotContains(t, got.Message, "tenants")

	got = classify(apperrors.Invalid("op", "ends_at must not be before starts_at"))
	assert.Equal(t, "ends_at must not be before starts_at", got.Message)
}

func TestWriteErrorEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	ctx, id := logging.WithRequestID(req.Context(), "req-123")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	writeError(rec, req, &assistant.QuotaExhaustedError{Used: 5, Max: 5})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	apiErr := decodeError(t, rec)
	assert.Equal(t, id, apiErr.RequestID)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.NotZero(t, apiErr.Timestamp)
	assert.EqualValues(t, 5, apiErr.Details["max"])
}

func TestPanicRecovery(t *testing.T) {
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), ErrorHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "internal_error", decodeError(t, rec).Code)
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", "", nil).Code)
	require.NoError(t, env.store.Close())
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/readyz", "", nil).Code)
}
