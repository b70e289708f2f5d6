package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/pkg/auth"
)

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(auth.SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// sessionMiddleware attaches the authenticated user id. A request without a
// token passes through anonymously; a bad token is rejected.
func (rt *Router) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" || rt.sessions == nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := rt.sessions.Verify(token)
		if err != nil {
			writeError(w, r, apperrors.New(apperrors.ErrorTypeUnauthorized, "verify_session", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	})
}

// AdminKeyMiddleware returns middleware that requires a valid admin API key.
func AdminKeyMiddleware(adminKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if key == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				key = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
		}

		if adminKey == "" || key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			logging.Audit(r.Context(), "admin_auth", "failure").
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("Admin API key rejected")
			writeErrorResponse(w, r, http.StatusUnauthorized, "unauthorized", "Admin key required", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
