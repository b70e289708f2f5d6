// Package tenancy derives the tenant a request may act on.
//
// The tenant id is never taken from the request. It is read from the stored
// user record of the authenticated identity, and handlers obtain it only
// through FromContext.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
)

var (
	// ErrNoTenant means the identity is valid but not attached to a firm.
	ErrNoTenant = fmt.Errorf("identity has no tenant: %w", apperrors.ErrUnauthorized)
	// ErrTenantInactive means the firm has been deactivated.
	ErrTenantInactive = fmt.Errorf("tenant is inactive: %w", apperrors.ErrForbidden)
)

// Scope is the tenant context of an authenticated request.
type Scope struct {
	TenantID string
	UserID   string
	Role     auth.Role
	User     *models.User
	Tenant   *models.Tenant
}

// Lookup is the store surface the guard needs.
type Lookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// Guard resolves identities to tenant scopes.
type Guard struct {
	lookup Lookup
}

// NewGuard creates a guard backed by lookup.
func NewGuard(lookup Lookup) *Guard {
	return &Guard{lookup: lookup}
}

// ScopeToTenant loads the user and its tenant. Both records are read fresh on
// every call so tier and deactivation changes apply to the next request.
func (g *Guard) ScopeToTenant(ctx context.Context, userID string) (Scope, error) {
	if userID == "" {
		return Scope{}, apperrors.New(apperrors.ErrorTypeUnauthorized, "scope_to_tenant", errors.New("no identity"))
	}
	user, err := g.lookup.GetUser(ctx, userID)
	if err != nil {
		return Scope{}, fmt.Errorf("scope to tenant: %w", err)
	}
	if user == nil || !user.Active {
		return Scope{}, apperrors.New(apperrors.ErrorTypeUnauthorized, "scope_to_tenant", errors.New("unknown or inactive user"))
	}
	if user.TenantID == "" {
		return Scope{}, ErrNoTenant
	}

	tenant, err := g.lookup.GetTenant(ctx, user.TenantID)
	if err != nil {
		return Scope{}, fmt.Errorf("scope to tenant: %w", err)
	}
	if tenant == nil {
		return Scope{}, ErrNoTenant
	}
	if !tenant.Active {
		return Scope{}, ErrTenantInactive
	}

	return Scope{
		TenantID: tenant.ID,
		UserID:   user.ID,
		Role:     user.Role,
		User:     user,
		Tenant:   tenant,
	}, nil
}

type contextKey struct{}

// WithScope stores scope in ctx.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, scope)
}

// FromContext returns the scope set by RequireTenant.
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(contextKey{}).(Scope)
	return scope, ok && scope.TenantID != ""
}

// ErrorWriter renders a guard failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireTenant resolves the authenticated identity (set by the session
// middleware through auth.WithUser) to a Scope before calling next.
func RequireTenant(g *Guard, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.GetUser(r.Context())
			scope, err := g.ScopeToTenant(r.Context(), userID)
			if err != nil {
				if errors.Is(err, ErrNoTenant) || errors.Is(err, ErrTenantInactive) {
					logger := logging.FromContext(r.Context())
					logger.Warn().
						Str("user_id", userID).
						Err(err).
						Msg("Tenant scope rejected")
				}
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}
