package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/xenovalaw/xenova/internal/models"
)

const aiUsageColumns = `id, tenant_id, user_id, action, model, tokens, cost_usd, duration_ms, success,
	error_message, metadata, created_at`

// NewUsageID returns a time-ordered identifier for an AI usage record.
func NewUsageID() string {
	return ulid.Make().String()
}

// AppendAIUsage inserts one usage record. Records are never updated.
func (s *SQLiteStore) AppendAIUsage(ctx context.Context, rec *models.AIUsageRecord) error {
	if rec.ID == "" {
		rec.ID = NewUsageID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.stamp()
	} else {
		rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)
	}
	meta, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO ai_usage (`+aiUsageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.UserID, rec.Action, rec.Model, rec.Tokens, rec.CostUSD, rec.DurationMs,
		boolToInt(rec.Success), rec.ErrorMessage, meta, unixMilli(rec.CreatedAt),
	)
	return wrapWriteErr("append ai usage", err)
}

// ListAIUsage returns the tenant's records since the given instant, newest
// first.
func (s *SQLiteStore) ListAIUsage(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.AIUsageRecord, error) {
	limit = Page{Limit: limit}.Normalize().Limit
	rows, err := s.db.QueryContext(ctx, `SELECT `+aiUsageColumns+` FROM ai_usage
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		tenantID, unixMilli(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list ai usage: %w", err)
	}
	defer rows.Close()

	var out []*models.AIUsageRecord
	for rows.Next() {
		rec, err := scanAIUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("list ai usage: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountSuccessfulAIUsage counts successful attempts since the given instant.
func (s *SQLiteStore) CountSuccessfulAIUsage(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_usage WHERE tenant_id = ? AND created_at >= ? AND success = 1`,
		tenantID, unixMilli(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ai usage: %w", err)
	}
	return n, nil
}

// SummarizeAIUsage aggregates usage per action since the given instant.
func (s *SQLiteStore) SummarizeAIUsage(ctx context.Context, tenantID string, since time.Time) ([]UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*), COALESCE(SUM(success), 0),
			COALESCE(SUM(tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM ai_usage WHERE tenant_id = ? AND created_at >= ?
		GROUP BY action ORDER BY action`,
		tenantID, unixMilli(since))
	if err != nil {
		return nil, fmt.Errorf("summarize ai usage: %w", err)
	}
	defer rows.Close()

	var out []UsageSummary
	for rows.Next() {
		var sum UsageSummary
		if err := rows.Scan(&sum.Action, &sum.Attempts, &sum.Successes, &sum.Tokens, &sum.CostUSD); err != nil {
			return nil, fmt.Errorf("summarize ai usage: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal ai usage metadata: %w", err)
	}
	return string(b), nil
}

func scanAIUsage(sc scanner) (*models.AIUsageRecord, error) {
	var (
		rec       models.AIUsageRecord
		success   int
		meta      string
		createdAt int64
	)
	err := sc.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.Action, &rec.Model, &rec.Tokens, &rec.CostUSD,
		&rec.DurationMs, &success, &rec.ErrorMessage, &meta, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Success = success != 0
	rec.CreatedAt = fromMilli(createdAt)
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode ai usage metadata: %w", err)
		}
	}
	return &rec, nil
}
