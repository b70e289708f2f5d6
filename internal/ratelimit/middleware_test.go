package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/xenovalaw/xenova/internal/metrics"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func newHandler(l Limiter, scope string) (http.Handler, *int) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})
	reject := func(w http.ResponseWriter, _ *http.Request, err error) {
		if errors.Is(err, ErrRateLimited) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}
	return Middleware(l, scope, ClientIP, reject)(next), &calls
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	h, calls := newHandler(NewMemoryLimiter(1, time.Minute), "login_test")
	before := testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("login_test"))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "198.51.100.5:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i+1)
	}
	assert.Equal(t, 1, *calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("login_test")))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	h, calls := newHandler(brokenLimiter{}, "api_test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, *calls)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"x-forwarded-for single", "203.0.113.9", "127.0.0.1:9999", "203.0.113.9"},
		{"x-forwarded-for chain", "203.0.113.7, 10.0.0.1", "127.0.0.1:9999", "203.0.113.7"},
		{"remote addr", "", "198.51.100.2:443", "198.51.100.2"},
		{"remote addr without port", "", "198.51.100.3", "198.51.100.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
