package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

type invoiceRequest struct {
	ClientID    string     `json:"client_id" validate:"required,max=64"`
	CaseID      string     `json:"case_id,omitempty" validate:"max=64"`
	Number      string     `json:"number" validate:"required,max=64"`
	AmountCents int64      `json:"amount_cents" validate:"gte=0"`
	Currency    string     `json:"currency" validate:"required,len=3,alpha"`
	Status      string     `json:"status,omitempty" validate:"omitempty,oneof=draft issued paid void"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

func (req invoiceRequest) apply(inv *models.Invoice, now time.Time) {
	inv.ClientID = req.ClientID
	inv.CaseID = req.CaseID
	inv.Number = strings.TrimSpace(req.Number)
	inv.AmountCents = req.AmountCents
	inv.Currency = strings.ToUpper(req.Currency)
	inv.DueAt = req.DueAt
	if req.Status != "" {
		inv.Status = models.InvoiceStatus(req.Status)
	}
	if inv.Status != models.InvoiceDraft && inv.IssuedAt == nil {
		inv.IssuedAt = &now
	}
}

func (rt *Router) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	invoices, err := rt.store.ListInvoices(r.Context(), scope.TenantID, store.InvoiceFilter{
		ClientID: q.Get("client_id"),
		CaseID:   q.Get("case_id"),
		Status:   models.InvoiceStatus(q.Get("status")),
		Page:     page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(invoices))
}

func (rt *Router) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req invoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv := &models.Invoice{Status: models.InvoiceDraft}
	req.apply(inv, rt.now().UTC())
	if err := rt.store.CreateInvoice(r.Context(), scope.TenantID, inv); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, inv)
}

func (rt *Router) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	inv, err := foundOr404(rt.store.GetInvoice(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, inv)
}

func (rt *Router) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req invoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := foundOr404(rt.store.GetInvoice(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if inv.Status == models.InvoiceVoid {
		writeError(w, r, apperrors.New(apperrors.ErrorTypeConflict, "update_invoice",
			fmt.Errorf("invoice %q is void", inv.ID)))
		return
	}
	req.apply(inv, rt.now().UTC())
	if err := rt.store.UpdateInvoice(r.Context(), scope.TenantID, inv); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, inv)
}

// handleIssueElectronic marks an invoice as issued through the electronic
// invoicing channel. Drafts are issued on the way.
func (rt *Router) handleIssueElectronic(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	inv, err := foundOr404(rt.store.GetInvoice(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if inv.Status == models.InvoiceVoid || inv.Electronic {
		writeError(w, r, apperrors.New(apperrors.ErrorTypeConflict, "issue_electronic_invoice",
			fmt.Errorf("invoice %q cannot be issued electronically in status %s", inv.ID, inv.Status)))
		return
	}
	now := rt.now().UTC()
	inv.Electronic = true
	if inv.Status == models.InvoiceDraft {
		inv.Status = models.InvoiceIssued
	}
	if inv.IssuedAt == nil {
		inv.IssuedAt = &now
	}
	if err := rt.store.UpdateInvoice(r.Context(), scope.TenantID, inv); err != nil {
		writeError(w, r, err)
		return
	}
	logging.Audit(r.Context(), "invoice_issue_electronic", "success").
		Str("tenant_id", scope.TenantID).
		Str("user_id", scope.UserID).
		Str("invoice_id", inv.ID).
		Msg("Electronic invoice issued")
	writeJSON(w, r, http.StatusOK, inv)
}
