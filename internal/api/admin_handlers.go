package api

import (
	"net/http"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/provisioning"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

type adminOwnerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=200"`
	Password string `json:"password" validate:"required,min=10,max=128"`
}

type adminCreateTenantRequest struct {
	Name          string            `json:"name" validate:"required,max=200"`
	Tier          string            `json:"tier" validate:"required,oneof=base pro enterprise"`
	MaxUsers      *int              `json:"max_users,omitempty" validate:"omitempty,gte=0"`
	StorageGB     *int              `json:"storage_gb,omitempty" validate:"omitempty,gte=0"`
	AIActive      bool              `json:"ai_active"`
	AIBillingMode string            `json:"ai_billing_mode,omitempty" validate:"omitempty,oneof=fixed pay_per_use"`
	AIQuotaMax    *int64            `json:"ai_quota_max,omitempty" validate:"omitempty,gte=0"`
	Owner         adminOwnerRequest `json:"owner" validate:"required"`
}

type adminUpdateTenantRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Tier      *string `json:"tier,omitempty" validate:"omitempty,oneof=base pro enterprise"`
	MaxUsers  *int    `json:"max_users,omitempty" validate:"omitempty,gte=0"`
	StorageGB *int    `json:"storage_gb,omitempty" validate:"omitempty,gte=0"`
	Active    *bool   `json:"active,omitempty"`
}

type adminSetAIRequest struct {
	Active      *bool   `json:"active,omitempty"`
	BillingMode *string `json:"billing_mode,omitempty" validate:"omitempty,oneof=fixed pay_per_use"`
	QuotaMax    *int64  `json:"quota_max,omitempty" validate:"omitempty,gte=0"`
}

type adminCreateTenantResponse struct {
	Tenant *models.Tenant `json:"tenant"`
	Owner  *models.User   `json:"owner"`
}

type adminResetResponse struct {
	TenantID    string    `json:"tenant_id"`
	PeriodStart time.Time `json:"period_start"`
}

func (rt *Router) handleAdminListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := rt.provisioning.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(tenants))
}

func (rt *Router) handleAdminCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req adminCreateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tenant, owner, err := rt.provisioning.Provision(r.Context(), provisioning.TenantSpec{
		Name:          req.Name,
		Tier:          licensing.Tier(req.Tier),
		MaxUsers:      req.MaxUsers,
		StorageGB:     req.StorageGB,
		AIActive:      req.AIActive,
		AIBillingMode: licensing.BillingMode(req.AIBillingMode),
		AIQuotaMax:    req.AIQuotaMax,
		Owner: provisioning.UserSpec{
			Email:    req.Owner.Email,
			Name:     req.Owner.Name,
			Password: req.Owner.Password,
			Role:     auth.RoleOwner,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, adminCreateTenantResponse{Tenant: tenant, Owner: owner})
}

func (rt *Router) handleAdminGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := rt.provisioning.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (rt *Router) handleAdminUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := provisioning.TenantPatch{
		Name:      req.Name,
		MaxUsers:  req.MaxUsers,
		StorageGB: req.StorageGB,
		Active:    req.Active,
	}
	if req.Tier != nil {
		tier := licensing.Tier(*req.Tier)
		patch.Tier = &tier
	}
	t, err := rt.provisioning.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (rt *Router) handleAdminSetAI(w http.ResponseWriter, r *http.Request) {
	var req adminSetAIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := provisioning.AIPatch{Active: req.Active, QuotaMax: req.QuotaMax}
	if req.BillingMode != nil {
		mode := licensing.BillingMode(*req.BillingMode)
		patch.BillingMode = &mode
	}
	t, err := rt.provisioning.SetAI(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (rt *Router) handleAdminResetQuota(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := rt.provisioning.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := rt.accountant.ResetPeriod(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, adminResetResponse{TenantID: id, PeriodStart: start})
}

func (rt *Router) handleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.accountant.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}
