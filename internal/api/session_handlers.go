package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

var errInvalidCredentials = apperrors.New(apperrors.ErrorTypeUnauthorized, "login", errors.New("invalid credentials"))

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck keeps the unknown-user path as slow as a real comparison.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("xenova-dummy-password")
	})
	_ = auth.CheckPasswordHash(password, dummyHash)
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if rt.sessions == nil {
		writeError(w, r, apperrors.New(apperrors.ErrorTypeInternal, "login", errors.New("sessions not configured")))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := rt.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, fmt.Errorf("login: %w", err))
		return
	}
	if user == nil || !user.Active {
		burnPasswordCheck(req.Password)
		logging.Audit(r.Context(), "login", "failure").Str("reason", "unknown_or_inactive_user").Msg("Login failed")
		writeError(w, r, errInvalidCredentials)
		return
	}
	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logging.Audit(r.Context(), "login", "failure").
			Str("user_id", user.ID).
			Str("tenant_id", user.TenantID).
			Str("reason", "bad_password").
			Msg("Login failed")
		writeError(w, r, errInvalidCredentials)
		return
	}

	token, expiresAt, err := rt.sessions.Issue(user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := rt.now().UTC()
	if err := rt.store.RecordLogin(r.Context(), user.ID, now); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record login time")
	} else {
		user.LastLoginAt = &now
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   rt.secure,
		SameSite: http.SameSiteLaxMode,
	})
	logging.Audit(r.Context(), "login", "success").
		Str("user_id", user.ID).
		Str("tenant_id", user.TenantID).
		Msg("Login succeeded")
	writeJSON(w, r, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (rt *Router) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   rt.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	User   *models.User `json:"user"`
	Tenant tenantView   `json:"tenant"`
}

func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	writeJSON(w, r, http.StatusOK, meResponse{User: scope.User, Tenant: rt.viewTenant(scope.Tenant)})
}

type preferencesRequest struct {
	Theme string `json:"theme" validate:"required,theme"`
}

func (rt *Router) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req preferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.store.UpdatePreferences(r.Context(), scope.UserID, req.Theme); err != nil {
		writeError(w, r, err)
		return
	}
	user := *scope.User
	user.Theme = req.Theme
	writeJSON(w, r, http.StatusOK, &user)
}
