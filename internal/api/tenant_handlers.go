package api

import (
	"net/http"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

type tenantView struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Tier             licensing.Tier        `json:"tier"`
	TierName         string                `json:"tier_name"`
	MaxUsers         int                   `json:"max_users"`
	StorageGB        int                   `json:"storage_gb"`
	AIActive         bool                  `json:"ai_active"`
	AIQuota          licensing.QuotaStatus `json:"ai_quota"`
	Active           bool                  `json:"active"`
	ActiveUsers      *int                  `json:"active_users,omitempty"`
	StorageUsedBytes *int64                `json:"storage_used_bytes,omitempty"`
}

func (rt *Router) viewTenant(t *models.Tenant) tenantView {
	return tenantView{
		ID:        t.ID,
		Name:      t.Name,
		Tier:      t.Tier,
		TierName:  licensing.GetTierDisplayName(t.Tier),
		MaxUsers:  t.MaxUsers,
		StorageGB: t.StorageGB,
		AIActive:  t.AIActive,
		AIQuota:   licensing.CheckQuota(t.QuotaState()),
		Active:    t.Active,
	}
}

func (rt *Router) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	view := rt.viewTenant(scope.Tenant)

	seats, err := rt.store.CountActiveUsers(r.Context(), scope.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	used, err := rt.store.DocumentBytes(r.Context(), scope.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view.ActiveUsers = &seats
	view.StorageUsedBytes = &used
	writeJSON(w, r, http.StatusOK, view)
}
