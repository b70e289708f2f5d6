package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xenovalaw/xenova/internal/models"
)

const invoiceColumns = `id, tenant_id, client_id, case_id, number, amount_cents, currency, status, electronic,
	issued_at, due_at, created_at, updated_at`

// CreateInvoice inserts an invoice. The client and optional case must belong
// to tenantID.
func (s *SQLiteStore) CreateInvoice(ctx context.Context, tenantID string, inv *models.Invoice) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := verifyInvoiceRefs(ctx, tx, tenantID, inv); err != nil {
			return err
		}
		if inv.ID == "" {
			inv.ID = models.NewID()
		}
		if inv.Status == "" {
			inv.Status = models.InvoiceDraft
		}
		inv.Currency = strings.ToUpper(inv.Currency)
		inv.TenantID = tenantID
		now := s.stamp()
		inv.CreatedAt = now
		inv.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.TenantID, inv.ClientID, inv.CaseID, inv.Number, inv.AmountCents, inv.Currency,
			string(inv.Status), boolToInt(inv.Electronic), nullableTimeMilli(inv.IssuedAt), nullableTimeMilli(inv.DueAt),
			unixMilli(inv.CreatedAt), unixMilli(inv.UpdatedAt),
		)
		return wrapWriteErr("create invoice", err)
	})
}

func verifyInvoiceRefs(ctx context.Context, q querier, tenantID string, inv *models.Invoice) error {
	if err := requireOwned(ctx, q, "client", tenantID, inv.ClientID); err != nil {
		return err
	}
	return requireOwnedIfSet(ctx, q, "case", tenantID, inv.CaseID)
}

// GetInvoice retrieves an invoice of tenantID. Returns nil, nil if not found.
func (s *SQLiteStore) GetInvoice(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND tenant_id = ?`, id, tenantID)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns the tenant's invoices, newest first.
func (s *SQLiteStore) ListInvoices(ctx context.Context, tenantID string, f InvoiceFilter) ([]*models.Invoice, error) {
	w := tenantWhere(tenantID)
	w.addIf(f.ClientID != "", "client_id = ?", f.ClientID)
	w.addIf(f.CaseID != "", "case_id = ?", f.CaseID)
	w.addIf(f.Status != "", "status = ?", string(f.Status))
	limit, args := w.page(f.Page)

	rows, err := s.db.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices`+w.String()+` ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("list invoices: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// UpdateInvoice writes the editable invoice fields.
func (s *SQLiteStore) UpdateInvoice(ctx context.Context, tenantID string, inv *models.Invoice) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := verifyInvoiceRefs(ctx, tx, tenantID, inv); err != nil {
			return err
		}
		inv.Currency = strings.ToUpper(inv.Currency)
		inv.TenantID = tenantID
		inv.UpdatedAt = s.stamp()
		res, err := tx.ExecContext(ctx, `UPDATE invoices SET
			client_id = ?, case_id = ?, number = ?, amount_cents = ?, currency = ?, status = ?, electronic = ?,
			issued_at = ?, due_at = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			inv.ClientID, inv.CaseID, inv.Number, inv.AmountCents, inv.Currency, string(inv.Status),
			boolToInt(inv.Electronic), nullableTimeMilli(inv.IssuedAt), nullableTimeMilli(inv.DueAt),
			unixMilli(inv.UpdatedAt), inv.ID, tenantID,
		)
		if err != nil {
			return wrapWriteErr("update invoice", err)
		}
		return checkAffected(res, "update_invoice", "invoice", inv.ID)
	})
}

func scanInvoice(sc scanner) (*models.Invoice, error) {
	var (
		inv                  models.Invoice
		status               string
		electronic           int
		issuedAt, dueAt      sql.NullInt64
		createdAt, updatedAt int64
	)
	err := sc.Scan(&inv.ID, &inv.TenantID, &inv.ClientID, &inv.CaseID, &inv.Number, &inv.AmountCents, &inv.Currency,
		&status, &electronic, &issuedAt, &dueAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inv.Status = models.InvoiceStatus(status)
	inv.Electronic = electronic != 0
	inv.IssuedAt = timePtrFromNull(issuedAt)
	inv.DueAt = timePtrFromNull(dueAt)
	inv.CreatedAt = fromMilli(createdAt)
	inv.UpdatedAt = fromMilli(updatedAt)
	return &inv, nil
}
