// Package ratelimit throttles requests per key over a fixed window.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/metrics"
)

// ErrRateLimited is passed to the reject handler when a key is over its limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// KeyFunc derives the limiter key of a request.
type KeyFunc func(r *http.Request) string

// RejectFunc renders a rejected request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware limits requests by key. scope labels the rejection metric.
// A limiter backend failure lets the request through.
func Middleware(l Limiter, scope string, key KeyFunc, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := l.Allow(r.Context(), scope+":"+k)
			if err != nil {
				logger := logging.FromContext(r.Context())
				logger.Warn().Err(err).Str("scope", scope).Msg("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.RateLimitRejections.WithLabelValues(scope).Inc()
				reject(w, r, ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, or the remote address.
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
