package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
)

// upcomingWindow bounds the "upcoming hearings" count.
const upcomingWindow = 30 * 24 * time.Hour

// PracticeSummary aggregates the tenant's practice data for BI reports.
func (s *SQLiteStore) PracticeSummary(ctx context.Context, tenantID string, now time.Time) (*models.PracticeSummary, error) {
	sum := &models.PracticeSummary{
		CasesByStatus:    make(map[models.CaseStatus]int),
		InvoicesByStatus: make(map[models.InvoiceStatus]int),
		GeneratedAt:      now.UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM cases WHERE tenant_id = ? GROUP BY status`, tenantID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return err
			}
			sum.CasesByStatus[models.CaseStatus(status)] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(SUM(amount_cents), 0)
			FROM invoices WHERE tenant_id = ? GROUP BY status`, tenantID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var status string
			var n int
			var cents int64
			if err := rows.Scan(&status, &n, &cents); err != nil {
				rows.Close()
				return err
			}
			st := models.InvoiceStatus(status)
			sum.InvoicesByStatus[st] = n
			if st == models.InvoiceIssued || st == models.InvoicePaid {
				sum.BilledCents += cents
			}
			if st == models.InvoicePaid {
				sum.PaidCents += cents
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE tenant_id = ? AND status != ?`,
			tenantID, string(models.TaskDone)).Scan(&sum.OpenTasks); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE tenant_id = ? AND archived = 0`,
			tenantID).Scan(&sum.ActiveClients); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM documents WHERE tenant_id = ?`,
			tenantID).Scan(&sum.DocumentBytes); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM calendar_events
			WHERE tenant_id = ? AND kind = ? AND starts_at >= ? AND starts_at < ?`,
			tenantID, string(models.EventHearing), unixMilli(now), unixMilli(now.Add(upcomingWindow))).
			Scan(&sum.UpcomingHearings)
	})
	if err != nil {
		return nil, fmt.Errorf("practice summary: %w", err)
	}
	return sum, nil
}
