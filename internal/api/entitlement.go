package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/metrics"
	"github.com/xenovalaw/xenova/internal/tenancy"
	"github.com/xenovalaw/xenova/pkg/auth"
)

// requireModule checks role visibility, then tier entitlement, for moduleID.
// It runs after tenancy.RequireTenant, whose scope carries the tenant as
// loaded for this request.
func (rt *Router) requireModule(moduleID string) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := mustScope(r)
			logger := logging.FromContext(r.Context())

			module, ok := rt.catalog.Module(moduleID)
			if !ok {
				logger.Error().Str("module", moduleID).Msg("Route guarded by a module missing from the catalog")
				writeError(w, r, apperrors.New(apperrors.ErrorTypeInternal, "require_module",
					fmt.Errorf("unknown module %q", moduleID)))
				return
			}
			if !auth.CanSeeModule(scope.Role, module) {
				metrics.EntitlementDenials.WithLabelValues(moduleID, "role_forbidden").Inc()
				writeError(w, r, errRoleForbidden)
				return
			}

			decision, err := rt.catalog.IsModuleUnlocked(moduleID, scope.Tenant.EntitlementState())
			if err != nil {
				logger.Error().Err(err).
					Str("tenant_id", scope.TenantID).
					Str("module", moduleID).
					Str("tier", string(scope.Tenant.Tier)).
					Msg("Entitlement check failed on tenant state")
				writeError(w, r, apperrors.New(apperrors.ErrorTypeInternal, "require_module", err))
				return
			}
			if decision.Locked {
				metrics.EntitlementDenials.WithLabelValues(moduleID, string(decision.ReasonCode)).Inc()
				logger.Debug().
					Str("tenant_id", scope.TenantID).
					Str("module", moduleID).
					Str("reason_code", string(decision.ReasonCode)).
					Msg("Module locked")
				writeError(w, r, &assistant.LockedError{Decision: decision})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireRoles narrows a route to roles beyond what category visibility allows.
func requireRoles(roles ...auth.Role) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, mustScope(r).Role) {
				writeError(w, r, errRoleForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mustScope returns the scope installed by tenancy.RequireTenant. Handlers
// mounted through Router.tenant always have one.
func mustScope(r *http.Request) tenancy.Scope {
	scope, ok := tenancy.FromContext(r.Context())
	if !ok {
		panic("api: tenant handler reached without scope")
	}
	return scope
}
