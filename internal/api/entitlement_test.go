package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func TestTenantRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/clients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/clients", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityWithoutTenant(t *testing.T) {
	env := newTestEnv(t)
	loose := env.addMember(t, "", auth.RoleLawyer)

	rec := env.do(t, http.MethodGet, "/api/me", loose.token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no_tenant", decodeError(t, rec).Code)
}

func TestInactiveTenant(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, false, 0)

	rec := env.admin(t, http.MethodPatch, "/admin/tenants/"+f.tenant.ID, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/clients", f.owner.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "tenant_inactive", decodeError(t, rec).Code)
}

func TestModuleLockedByTier(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierBase, false, 0)

	rec := env.do(t, http.MethodGet, "/api/reports/summary", f.owner.token, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "module_locked", apiErr.Code)
	assert.Equal(t, "reports", apiErr.Details["module"])
	assert.Equal(t, string(licensing.ReasonTierTooLow), apiErr.Details["reason_code"])
	assert.Equal(t, "enterprise", apiErr.Details["required_tier"])
	assert.NotEmpty(t, apiErr.Details["upgrade_hint"])

	rec = env.do(t, http.MethodPost, "/api/invoices/x/issue-electronic", f.owner.token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAIModuleNeedsAddon(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, false, 0)

	rec := env.do(t, http.MethodPost, "/api/ai/research", f.owner.token, map[string]any{"prompt": "x"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, string(licensing.ReasonAIAddonInactive), apiErr.Details["reason_code"])
	assert.Equal(t, true, apiErr.Details["requires_ai"])
	assert.Zero(t, env.provider.calls.Load())
}

func TestRoleVisibility(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierEnterprise, true, 10)
	lawyer := env.addMember(t, f.tenant.ID, auth.RoleLawyer)
	assistantUser := env.addMember(t, f.tenant.ID, auth.RoleAssistant)

	tests := []struct {
		name   string
		token  string
		path   string
		status int
	}{
		{"lawyer cannot bill", lawyer.token, "/api/invoices", http.StatusForbidden},
		{"lawyer reads reports", lawyer.token, "/api/reports/summary", http.StatusOK},
		{"lawyer works cases", lawyer.token, "/api/cases", http.StatusOK},
		{"lawyer cannot manage team", lawyer.token, "/api/team", http.StatusForbidden},
		{"assistant bills", assistantUser.token, "/api/invoices", http.StatusOK},
		{"assistant cannot read reports", assistantUser.token, "/api/reports/summary", http.StatusForbidden},
		{"assistant cannot read ai usage", assistantUser.token, "/api/ai/usage", http.StatusForbidden},
		{"lawyer cannot read ai usage", lawyer.token, "/api/ai/usage", http.StatusForbidden},
		{"owner reads ai usage", f.owner.token, "/api/ai/usage", http.StatusOK},
		{"owner manages team", f.owner.token, "/api/team", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, tt.token, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "role_forbidden", decodeError(t, rec).Code)
			}
		})
	}
}

func TestTierUpgradeAppliesOnNextRequest(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierBase, false, 0)

	rec := env.do(t, http.MethodGet, "/api/reports/summary", f.owner.token, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = env.admin(t, http.MethodPatch, "/admin/tenants/"+f.tenant.ID, map[string]any{"tier": "enterprise"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/reports/summary", f.owner.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListModules(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, false, 0)
	lawyer := env.addMember(t, f.tenant.ID, auth.RoleLawyer)

	rec := env.do(t, http.MethodGet, "/api/modules", lawyer.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Tier    licensing.Tier `json:"tier"`
		Modules []moduleView   `json:"modules"`
	}](t, rec)
	assert.Equal(t, licensing.TierPro, body.Tier)

	byID := make(map[string]moduleView, len(body.Modules))
	for _, m := range body.Modules {
		byID[m.ID] = m
	}
	require.Len(t, byID, len(licensing.Default().Modules()))
	assert.False(t, byID[licensing.ModuleCases].Locked)
	assert.True(t, byID[licensing.ModuleCases].Visible)
	assert.False(t, byID[licensing.ModuleBilling].Visible)
	assert.True(t, byID[licensing.ModuleReports].Locked)
	assert.Equal(t, licensing.TierEnterprise, byID[licensing.ModuleReports].RequiredTier)
	assert.True(t, byID[licensing.ModuleAIResearch].Locked)
	assert.Equal(t, licensing.ReasonAIAddonInactive, byID[licensing.ModuleAIResearch].ReasonCode)

	rec = env.do(t, http.MethodGet, "/api/modules/e_signature", lawyer.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[moduleView](t, rec).Locked)

	rec = env.do(t, http.MethodGet, "/api/modules/nope", lawyer.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
