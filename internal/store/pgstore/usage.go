package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

func (s *Store) AppendAIUsage(ctx context.Context, rec *models.AIUsageRecord) error {
	if rec.ID == "" {
		rec.ID = store.NewUsageID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.stamp()
	} else {
		rec.CreatedAt = millis(rec.CreatedAt)
	}
	meta := "{}"
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal ai usage metadata: %w", err)
		}
		meta = string(b)
	}
	row := &aiUsageRow{
		ID: rec.ID, TenantID: rec.TenantID, UserID: rec.UserID, Action: rec.Action, Model: rec.Model,
		Tokens: rec.Tokens, CostUSD: rec.CostUSD, DurationMs: rec.DurationMs, Success: rec.Success,
		ErrorMessage: rec.ErrorMessage, Metadata: meta, CreatedAt: rec.CreatedAt,
	}
	return wrapWriteErr("append ai usage", s.db.WithContext(ctx).Create(row).Error)
}

func (s *Store) ListAIUsage(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.AIUsageRecord, error) {
	var rows []aiUsageRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since.UTC()).
		Order("created_at DESC, id DESC").
		Limit(store.Page{Limit: limit}.Normalize().Limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list ai usage: %w", err)
	}
	out := make([]*models.AIUsageRecord, 0, len(rows))
	for _, row := range rows {
		rec := &models.AIUsageRecord{
			ID: row.ID, TenantID: row.TenantID, UserID: row.UserID, Action: row.Action, Model: row.Model,
			Tokens: row.Tokens, CostUSD: row.CostUSD, DurationMs: row.DurationMs, Success: row.Success,
			ErrorMessage: row.ErrorMessage, CreatedAt: row.CreatedAt.UTC(),
		}
		if row.Metadata != "" && row.Metadata != "{}" {
			if err := json.Unmarshal([]byte(row.Metadata), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode ai usage metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) CountSuccessfulAIUsage(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&aiUsageRow{}).
		Where("tenant_id = ? AND created_at >= ? AND success", tenantID, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count ai usage: %w", err)
	}
	return n, nil
}

func (s *Store) SummarizeAIUsage(ctx context.Context, tenantID string, since time.Time) ([]store.UsageSummary, error) {
	var out []store.UsageSummary
	err := s.db.WithContext(ctx).Model(&aiUsageRow{}).
		Select(`action, COUNT(*) AS attempts, COUNT(*) FILTER (WHERE success) AS successes,
			COALESCE(SUM(tokens), 0) AS tokens, COALESCE(SUM(cost_usd), 0) AS cost_usd`).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since.UTC()).
		Group("action").
		Order("action").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("summarize ai usage: %w", err)
	}
	return out, nil
}

type statusCount struct {
	Status string
	N      int
	Cents  int64
}

func (s *Store) PracticeSummary(ctx context.Context, tenantID string, now time.Time) (*models.PracticeSummary, error) {
	sum := &models.PracticeSummary{
		CasesByStatus:    make(map[models.CaseStatus]int),
		InvoicesByStatus: make(map[models.InvoiceStatus]int),
		GeneratedAt:      now.UTC(),
	}

	err := s.tx(ctx, func(tx *gorm.DB) error {
		var cases []statusCount
		if err := tx.Model(&caseRow{}).Select("status, COUNT(*) AS n").
			Where("tenant_id = ?", tenantID).Group("status").Scan(&cases).Error; err != nil {
			return err
		}
		for _, c := range cases {
			sum.CasesByStatus[models.CaseStatus(c.Status)] = c.N
		}

		var invoices []statusCount
		if err := tx.Model(&invoiceRow{}).Select("status, COUNT(*) AS n, COALESCE(SUM(amount_cents), 0) AS cents").
			Where("tenant_id = ?", tenantID).Group("status").Scan(&invoices).Error; err != nil {
			return err
		}
		for _, inv := range invoices {
			st := models.InvoiceStatus(inv.Status)
			sum.InvoicesByStatus[st] = inv.N
			if st == models.InvoiceIssued || st == models.InvoicePaid {
				sum.BilledCents += inv.Cents
			}
			if st == models.InvoicePaid {
				sum.PaidCents += inv.Cents
			}
		}

		var n int64
		if err := tx.Model(&taskRow{}).Where("tenant_id = ? AND status <> ?", tenantID, string(models.TaskDone)).
			Count(&n).Error; err != nil {
			return err
		}
		sum.OpenTasks = int(n)

		if err := tx.Model(&clientRow{}).Where("tenant_id = ? AND NOT archived", tenantID).Count(&n).Error; err != nil {
			return err
		}
		sum.ActiveClients = int(n)

		if err := tx.Model(&documentRow{}).Where("tenant_id = ?", tenantID).
			Select("COALESCE(SUM(size_bytes), 0)").Scan(&sum.DocumentBytes).Error; err != nil {
			return err
		}

		if err := tx.Model(&eventRow{}).
			Where("tenant_id = ? AND kind = ? AND starts_at >= ? AND starts_at < ?",
				tenantID, string(models.EventHearing), now.UTC(), now.UTC().Add(30*24*time.Hour)).
			Count(&n).Error; err != nil {
			return err
		}
		sum.UpcomingHearings = int(n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("practice summary: %w", err)
	}
	return sum, nil
}
