package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

type caseRequest struct {
	ClientID       string     `json:"client_id" validate:"required,max=64"`
	Number         string     `json:"number" validate:"required,max=64"`
	Title          string     `json:"title" validate:"required,max=300"`
	Court          string     `json:"court,omitempty" validate:"max=200"`
	Matter         string     `json:"matter,omitempty" validate:"max=200"`
	Status         string     `json:"status,omitempty" validate:"omitempty,oneof=open suspended closed"`
	AssignedUserID string     `json:"assigned_user_id,omitempty" validate:"max=64"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
}

func (req caseRequest) apply(c *models.Case, now time.Time) {
	c.ClientID = req.ClientID
	c.Number = strings.TrimSpace(req.Number)
	c.Title = strings.TrimSpace(req.Title)
	c.Court = strings.TrimSpace(req.Court)
	c.Matter = strings.TrimSpace(req.Matter)
	c.AssignedUserID = req.AssignedUserID
	if req.OpenedAt != nil {
		c.OpenedAt = *req.OpenedAt
	}
	if req.Status != "" {
		c.Status = models.CaseStatus(req.Status)
	}
	switch {
	case c.Status == models.CaseClosed && c.ClosedAt == nil:
		c.ClosedAt = &now
	case c.Status != models.CaseClosed:
		c.ClosedAt = nil
	}
}

func (rt *Router) handleListCases(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	cases, err := rt.store.ListCases(r.Context(), scope.TenantID, store.CaseFilter{
		ClientID:       q.Get("client_id"),
		AssignedUserID: q.Get("assigned_user_id"),
		Status:         models.CaseStatus(q.Get("status")),
		Query:          strings.TrimSpace(q.Get("q")),
		Page:           page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(cases))
}

func (rt *Router) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req caseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := &models.Case{}
	req.apply(c, rt.now().UTC())
	if err := rt.store.CreateCase(r.Context(), scope.TenantID, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (rt *Router) handleGetCase(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	c, err := foundOr404(rt.store.GetCase(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (rt *Router) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req caseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := foundOr404(rt.store.GetCase(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(c, rt.now().UTC())
	if err := rt.store.UpdateCase(r.Context(), scope.TenantID, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}
