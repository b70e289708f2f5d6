package api

import (
	"fmt"
	"net/http"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/tenancy"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// moduleView is one navigation entry for the caller.
type moduleView struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Route        string               `json:"route"`
	Category     licensing.Category   `json:"category"`
	Visible      bool                 `json:"visible"`
	Locked       bool                 `json:"locked"`
	Reason       string               `json:"reason,omitempty"`
	ReasonCode   licensing.ReasonCode `json:"reason_code,omitempty"`
	RequiredTier licensing.Tier       `json:"required_tier,omitempty"`
	RequiresAI   bool                 `json:"requires_ai,omitempty"`
	UpgradeHint  string               `json:"upgrade_hint,omitempty"`
}

func (rt *Router) moduleView(scope tenancy.Scope, m licensing.Module) (moduleView, error) {
	d, err := rt.catalog.IsModuleUnlocked(m.ID, scope.Tenant.EntitlementState())
	if err != nil {
		return moduleView{}, apperrors.New(apperrors.ErrorTypeInternal, "module_view", err)
	}
	return moduleView{
		ID:           m.ID,
		Name:         m.Name,
		Route:        m.Route,
		Category:     m.Category,
		Visible:      auth.CanSeeModule(scope.Role, m),
		Locked:       d.Locked,
		Reason:       d.Reason,
		ReasonCode:   d.ReasonCode,
		RequiredTier: d.RequiredTier,
		RequiresAI:   d.RequiresAI,
		UpgradeHint:  d.UpgradeHint,
	}, nil
}

func (rt *Router) handleListModules(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	modules := rt.catalog.Modules()
	out := make([]moduleView, 0, len(modules))
	for _, m := range modules {
		v, err := rt.moduleView(scope, m)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"tier":    scope.Tenant.Tier,
		"modules": out,
	})
}

func (rt *Router) handleGetModule(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	id := r.PathValue("module_id")
	m, ok := rt.catalog.Module(id)
	if !ok {
		writeError(w, r, apperrors.NotFound("get_module", fmt.Errorf("module %q not found", id)))
		return
	}
	v, err := rt.moduleView(scope, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}
