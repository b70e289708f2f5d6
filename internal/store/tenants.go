package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

const tenantColumns = `id, name, tier, max_users, storage_gb, ai_active, ai_billing_mode,
	ai_quota_max, ai_quota_used, ai_activated_at, ai_period_start, active, created_at, updated_at`

// CreateTenant inserts a new tenant. An empty ID is generated.
func (s *SQLiteStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertTenant(ctx, tx, t)
	})
}

// ProvisionTenant creates a tenant and its owner atomically.
func (s *SQLiteStore) ProvisionTenant(ctx context.Context, t *models.Tenant, owner *models.User) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertTenant(ctx, tx, t); err != nil {
			return err
		}
		owner.TenantID = t.ID
		return s.insertUser(ctx, tx, owner)
	})
}

func (s *SQLiteStore) insertTenant(ctx context.Context, q querier, t *models.Tenant) error {
	if t.ID == "" {
		id, err := models.GenerateTenantID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.AIBillingMode == "" {
		t.AIBillingMode = licensing.BillingFixed
	}
	now := s.stamp()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.AIPeriodStart.IsZero() {
		t.AIPeriodStart = now
	} else {
		t.AIPeriodStart = t.AIPeriodStart.UTC().Truncate(time.Millisecond)
	}
	t.AIQuotaUsed = 0

	_, err := q.ExecContext(ctx, `INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, string(t.Tier), t.MaxUsers, t.StorageGB, boolToInt(t.AIActive), string(t.AIBillingMode),
		t.AIQuotaMax, t.AIQuotaUsed, nullableTimeMilli(t.AIActivatedAt), unixMilli(t.AIPeriodStart),
		boolToInt(t.Active), unixMilli(t.CreatedAt), unixMilli(t.UpdatedAt),
	)
	return wrapWriteErr("create tenant", err)
}

// GetTenant retrieves a tenant by ID. Returns nil, nil if not found.
func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return getTenant(ctx, s.db, id)
}

func getTenant(ctx context.Context, q querier, id string) (*models.Tenant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// ListTenants returns all tenants ordered by creation time.
func (s *SQLiteStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("list tenants: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTenant writes the admin-managed tenant fields.
func (s *SQLiteStore) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	t.UpdatedAt = s.stamp()
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET
		name = ?, tier = ?, max_users = ?, storage_gb = ?, ai_active = ?, ai_billing_mode = ?,
		ai_quota_max = ?, ai_activated_at = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, string(t.Tier), t.MaxUsers, t.StorageGB, boolToInt(t.AIActive), string(t.AIBillingMode),
		t.AIQuotaMax, nullableTimeMilli(t.AIActivatedAt), boolToInt(t.Active), unixMilli(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		return wrapWriteErr("update tenant", err)
	}
	return checkAffected(res, "update_tenant", "tenant", t.ID)
}

// ConsumeAIQuotaUnit increments the AI counter with a single conditional
// UPDATE so concurrent consumers can never push a fixed-billing tenant past
// its ceiling.
func (s *SQLiteStore) ConsumeAIQuotaUnit(ctx context.Context, tenantID string) (int64, error) {
	var used int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tenants
			SET ai_quota_used = ai_quota_used + 1
			WHERE id = ? AND (ai_billing_mode = ? OR ai_quota_used < ai_quota_max)`,
			tenantID, string(licensing.BillingPayPerUse))
		if err != nil {
			return fmt.Errorf("consume ai quota: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("consume ai quota: %w", err)
		}

		var quotaMax int64
		err = tx.QueryRowContext(ctx, `SELECT ai_quota_used, ai_quota_max FROM tenants WHERE id = ?`, tenantID).
			Scan(&used, &quotaMax)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("consume_ai_quota", fmt.Errorf("tenant %q not found", tenantID))
		}
		if err != nil {
			return fmt.Errorf("consume ai quota: %w", err)
		}
		if affected == 0 {
			return apperrors.New(apperrors.ErrorTypeQuota, "consume_ai_quota", nil).
				WithDetail("used", used).
				WithDetail("max", quotaMax)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return used, nil
}

// ResetAIQuota zeroes the AI counter and starts a new period.
func (s *SQLiteStore) ResetAIQuota(ctx context.Context, tenantID string, periodStart time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET ai_quota_used = 0, ai_period_start = ?, updated_at = ? WHERE id = ?`,
		unixMilli(periodStart), unixMilli(s.stamp()), tenantID)
	if err != nil {
		return fmt.Errorf("reset ai quota: %w", err)
	}
	return checkAffected(res, "reset_ai_quota", "tenant", tenantID)
}

func scanTenant(sc scanner) (*models.Tenant, error) {
	var (
		t                                 models.Tenant
		tier, mode                        string
		aiActive, active                  int
		activatedAt                       sql.NullInt64
		periodStart, createdAt, updatedAt int64
	)
	err := sc.Scan(
		&t.ID, &t.Name, &tier, &t.MaxUsers, &t.StorageGB, &aiActive, &mode,
		&t.AIQuotaMax, &t.AIQuotaUsed, &activatedAt, &periodStart, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Tier = licensing.Tier(strings.ToLower(tier))
	t.AIBillingMode = licensing.BillingMode(mode)
	t.AIActive = aiActive != 0
	t.Active = active != 0
	t.AIActivatedAt = timePtrFromNull(activatedAt)
	t.AIPeriodStart = fromMilli(periodStart)
	t.CreatedAt = fromMilli(createdAt)
	t.UpdatedAt = fromMilli(updatedAt)
	return &t, nil
}
