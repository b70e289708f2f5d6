package api

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

type eventRequest struct {
	CaseID   string     `json:"case_id,omitempty" validate:"max=64"`
	Title    string     `json:"title" validate:"required,max=300"`
	Kind     string     `json:"kind" validate:"required,oneof=hearing meeting deadline"`
	StartsAt time.Time  `json:"starts_at" validate:"required"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Location string     `json:"location,omitempty" validate:"max=300"`
}

func (req eventRequest) apply(e *models.CalendarEvent) error {
	if req.EndsAt != nil && req.EndsAt.Before(req.StartsAt) {
		return apperrors.Invalid("calendar_event", "ends_at must not be before starts_at")
	}
	e.CaseID = req.CaseID
	e.Title = strings.TrimSpace(req.Title)
	e.Kind = models.EventKind(req.Kind)
	e.StartsAt = req.StartsAt
	e.EndsAt = req.EndsAt
	e.Location = strings.TrimSpace(req.Location)
	return nil
}

// handleListEvents accepts ?from= and ?to= (RFC 3339) on starts_at.
func (rt *Router) handleListEvents(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := rt.store.ListEvents(r.Context(), scope.TenantID, store.EventFilter{
		CaseID: r.URL.Query().Get("case_id"),
		From:   from,
		To:     to,
		Page:   page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(events))
}

func (rt *Router) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e := &models.CalendarEvent{}
	if err := req.apply(e); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.store.CreateEvent(r.Context(), scope.TenantID, e); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

func (rt *Router) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	e, err := foundOr404(rt.store.GetEvent(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

func (rt *Router) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := foundOr404(rt.store.GetEvent(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.apply(e); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.store.UpdateEvent(r.Context(), scope.TenantID, e); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

func (rt *Router) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	if err := rt.store.DeleteEvent(r.Context(), scope.TenantID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
