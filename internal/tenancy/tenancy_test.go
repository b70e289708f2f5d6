package tenancy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

type fakeLookup struct {
	users   map[string]*models.User
	tenants map[string]*models.Tenant
	err     error
}

func (f *fakeLookup) GetUser(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func (f *fakeLookup) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	return f.tenants[id], nil
}

func newFixture() *fakeLookup {
	return &fakeLookup{
		users: map[string]*models.User{
			"u-owner":    {ID: "u-owner", TenantID: "t-A", Role: auth.RoleOwner, Active: true},
			"u-loose":    {ID: "u-loose", Role: auth.RoleLawyer, Active: true},
			"u-disabled": {ID: "u-disabled", TenantID: "t-A", Role: auth.RoleLawyer, Active: false},
			"u-orphan":   {ID: "u-orphan", TenantID: "t-gone", Role: auth.RoleLawyer, Active: true},
			"u-inactive": {ID: "u-inactive", TenantID: "t-off", Role: auth.RoleAdmin, Active: true},
		},
		tenants: map[string]*models.Tenant{
			"t-A":   {ID: "t-A", Tier: licensing.TierPro, Active: true},
			"t-off": {ID: "t-off", Tier: licensing.TierBase, Active: false},
		},
	}
}

func TestScopeToTenant(t *testing.T) {
	g := NewGuard(newFixture())
	ctx := context.Background()

	scope, err := g.ScopeToTenant(ctx, "u-owner")
	require.NoError(t, err)
	assert.Equal(t, "t-A", scope.TenantID)
	assert.Equal(t, "u-owner", scope.UserID)
	assert.Equal(t, auth.RoleOwner, scope.Role)
	require.NotNil(t, scope.Tenant)
	assert.Equal(t, licensing.TierPro, scope.Tenant.Tier)

	tests := []struct {
		name   string
		userID string
		want   error
	}{
		{"no identity", "", apperrors.ErrUnauthorized},
		{"unknown user", "u-nobody", apperrors.ErrUnauthorized},
		{"deactivated user", "u-disabled", apperrors.ErrUnauthorized},
		{"identity without tenant", "u-loose", ErrNoTenant},
		{"tenant record missing", "u-orphan", ErrNoTenant},
		{"tenant deactivated", "u-inactive", ErrTenantInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.ScopeToTenant(ctx, tt.userID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// No tenant is an authentication failure, an inactive tenant is forbidden.
	_, err = g.ScopeToTenant(ctx, "u-loose")
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
	_, err = g.ScopeToTenant(ctx, "u-inactive")
	assert.Equal(t, http.StatusForbidden, apperrors.HTTPStatus(err))
}

func TestScopeToTenantStoreError(t *testing.T) {
	lookup := newFixture()
	lookup.err = errors.New("database is locked")
	_, err := NewGuard(lookup).ScopeToTenant(context.Background(), "u-owner")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRequireTenant(t *testing.T) {
	g := NewGuard(newFixture())

	var failed error
	fail := func(w http.ResponseWriter, _ *http.Request, err error) {
		failed = err
		w.WriteHeader(apperrors.HTTPStatus(err))
	}

	var seen Scope
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		seen, ok = FromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireTenant(g, fail)(next)

	t.Run("scoped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req = req.WithContext(auth.WithUser(req.Context(), "u-owner"))
		// A tenant id in the request is ignored.
		req.Header.Set("X-Tenant-ID", "t-off")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "t-A", seen.TenantID)
	})

	t.Run("anonymous", func(t *testing.T) {
		failed = nil
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.ErrorIs(t, failed, apperrors.ErrUnauthorized)
	})

	t.Run("no tenant", func(t *testing.T) {
		failed = nil
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req = req.WithContext(auth.WithUser(req.Context(), "u-loose"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.ErrorIs(t, failed, ErrNoTenant)
	})
}

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	_, ok = FromContext(WithScope(context.Background(), Scope{}))
	assert.False(t, ok)
}
