package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func (rt *Router) handleAIQuota(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	writeJSON(w, r, http.StatusOK, licensing.CheckQuota(scope.Tenant.QuotaState()))
}

type aiUsageResponse struct {
	PeriodStart time.Time               `json:"period_start"`
	Quota       licensing.QuotaStatus   `json:"quota"`
	Summary     []store.UsageSummary    `json:"summary"`
	Records     []*models.AIUsageRecord `json:"records"`
}

// handleAIUsage returns the period's usage. ?since= (RFC 3339) widens or
// narrows the window; ?limit= bounds the record list.
func (rt *Router) handleAIUsage(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	q := r.URL.Query()

	since := scope.Tenant.AIPeriodStart
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, apperrors.Invalid("ai_usage", "since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, apperrors.Invalid("ai_usage", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	summary, err := rt.accountant.Summary(r.Context(), scope.TenantID, since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := rt.accountant.Recent(r.Context(), scope.TenantID, since, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if summary == nil {
		summary = []store.UsageSummary{}
	}
	if records == nil {
		records = []*models.AIUsageRecord{}
	}
	writeJSON(w, r, http.StatusOK, aiUsageResponse{
		PeriodStart: scope.Tenant.AIPeriodStart,
		Quota:       licensing.CheckQuota(scope.Tenant.QuotaState()),
		Summary:     summary,
		Records:     records,
	})
}

type aiActionRequest struct {
	Prompt string `json:"prompt" validate:"max=20000"`
	CaseID string `json:"case_id,omitempty" validate:"omitempty,max=64"`
}

func (rt *Router) handleAIAction(action assistant.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := mustScope(r)
		if rt.assistant == nil {
			writeError(w, r, assistant.ErrAIUnavailable)
			return
		}
		var req aiActionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := rt.assistant.Run(r.Context(), scope, assistant.Request{
			Action: action,
			Prompt: req.Prompt,
			CaseID: req.CaseID,
		})
		if err != nil {
			if errors.Is(err, assistant.ErrProcessingFailed) {
				// Already logged with the provider error by the assistant.
				writeAPIError(w, r, classify(err))
				return
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}
