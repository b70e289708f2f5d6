package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

type taskRequest struct {
	CaseID      string     `json:"case_id,omitempty" validate:"max=64"`
	Title       string     `json:"title" validate:"required,max=300"`
	Description string     `json:"description,omitempty" validate:"max=5000"`
	Status      string     `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress done"`
	AssigneeID  string     `json:"assignee_id,omitempty" validate:"max=64"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

func (req taskRequest) apply(t *models.Task) {
	t.CaseID = req.CaseID
	t.Title = strings.TrimSpace(req.Title)
	t.Description = req.Description
	t.AssigneeID = req.AssigneeID
	t.DueAt = req.DueAt
	if req.Status != "" {
		t.Status = models.TaskStatus(req.Status)
	}
}

// handleListTasks accepts ?mine=true for the caller's own tasks.
func (rt *Router) handleListTasks(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := store.TaskFilter{
		CaseID:     q.Get("case_id"),
		AssigneeID: q.Get("assignee_id"),
		Status:     models.TaskStatus(q.Get("status")),
		Page:       page,
	}
	if q.Get("mine") == "true" {
		f.AssigneeID = scope.UserID
	}
	tasks, err := rt.store.ListTasks(r.Context(), scope.TenantID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(tasks))
}

func (rt *Router) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t := &models.Task{}
	req.apply(t)
	if err := rt.store.CreateTask(r.Context(), scope.TenantID, t); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

func (rt *Router) handleGetTask(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	t, err := foundOr404(rt.store.GetTask(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (rt *Router) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := foundOr404(rt.store.GetTask(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(t)
	if err := rt.store.UpdateTask(r.Context(), scope.TenantID, t); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (rt *Router) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	if err := rt.store.DeleteTask(r.Context(), scope.TenantID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
