package api

import (
	"net/http"
	"strings"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

type clientRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
	TaxID   string `json:"tax_id,omitempty" validate:"max=50"`
	Address string `json:"address,omitempty" validate:"max=500"`
	Notes   string `json:"notes,omitempty" validate:"max=5000"`
}

func (req clientRequest) apply(c *models.Client) {
	c.Name = strings.TrimSpace(req.Name)
	c.Email = strings.TrimSpace(req.Email)
	c.Phone = strings.TrimSpace(req.Phone)
	c.TaxID = strings.TrimSpace(req.TaxID)
	c.Address = strings.TrimSpace(req.Address)
	c.Notes = req.Notes
}

func (rt *Router) handleListClients(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	clients, err := rt.store.ListClients(r.Context(), scope.TenantID, store.ClientFilter{
		Query:           strings.TrimSpace(q.Get("q")),
		IncludeArchived: q.Get("include_archived") == "true",
		Page:            page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(clients))
}

func (rt *Router) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := &models.Client{}
	req.apply(c)
	if err := rt.store.CreateClient(r.Context(), scope.TenantID, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (rt *Router) handleGetClient(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	id := r.PathValue("id")
	c, err := foundOr404(rt.store.GetClient(r.Context(), scope.TenantID, id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (rt *Router) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	id := r.PathValue("id")
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := foundOr404(rt.store.GetClient(r.Context(), scope.TenantID, id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(c)
	if err := rt.store.UpdateClient(r.Context(), scope.TenantID, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// handleArchiveClient archives; clients are never deleted.
func (rt *Router) handleArchiveClient(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	if err := rt.store.ArchiveClient(r.Context(), scope.TenantID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
