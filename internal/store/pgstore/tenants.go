package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		return s.insertTenant(tx, t)
	})
}

func (s *Store) ProvisionTenant(ctx context.Context, t *models.Tenant, owner *models.User) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.insertTenant(tx, t); err != nil {
			return err
		}
		owner.TenantID = t.ID
		return s.insertUser(tx, owner)
	})
}

func (s *Store) insertTenant(tx *gorm.DB, t *models.Tenant) error {
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
		t.AIPeriodStart = millis(t.AIPeriodStart)
	}
	t.AIQuotaUsed = 0
	t.AIActivatedAt = millisPtr(t.AIActivatedAt)

	return wrapWriteErr("create tenant", tx.Create(tenantToRow(t)).Error)
}

func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var row tenantRow
	ok, err := first(s.db.WithContext(ctx).Where("id = ?", id), &row)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return row.model(), nil
}

func (s *Store) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	var rows []tenantRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	out := make([]*models.Tenant, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	t.UpdatedAt = s.stamp()
	res := s.db.WithContext(ctx).Model(&tenantRow{}).Where("id = ?", t.ID).Updates(map[string]any{
		"name":            t.Name,
		"tier":            string(t.Tier),
		"max_users":       t.MaxUsers,
		"storage_gb":      t.StorageGB,
		"ai_active":       t.AIActive,
		"ai_billing_mode": string(t.AIBillingMode),
		"ai_quota_max":    t.AIQuotaMax,
		"ai_activated_at": millisPtr(t.AIActivatedAt),
		"active":          t.Active,
		"updated_at":      t.UpdatedAt,
	})
	return checkAffected(res, "update_tenant", "tenant", t.ID)
}

func (s *Store) ConsumeAIQuotaUnit(ctx context.Context, tenantID string) (int64, error) {
	var used int64
	err := s.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&tenantRow{}).
			Where("id = ? AND (ai_billing_mode = ? OR ai_quota_used < ai_quota_max)", tenantID, string(licensing.BillingPayPerUse)).
			UpdateColumn("ai_quota_used", gorm.Expr("ai_quota_used + 1"))
		if res.Error != nil {
			return fmt.Errorf("consume ai quota: %w", res.Error)
		}

		var row tenantRow
		ok, err := first(tx.Select("ai_quota_used", "ai_quota_max").Where("id = ?", tenantID), &row)
		if err != nil {
			return fmt.Errorf("consume ai quota: %w", err)
		}
		if !ok {
			return apperrors.NotFound("consume_ai_quota", fmt.Errorf("tenant %q not found", tenantID))
		}
		used = row.AIQuotaUsed
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.ErrorTypeQuota, "consume_ai_quota", nil).
				WithDetail("used", row.AIQuotaUsed).
				WithDetail("max", row.AIQuotaMax)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return used, nil
}

func (s *Store) ResetAIQuota(ctx context.Context, tenantID string, periodStart time.Time) error {
	res := s.db.WithContext(ctx).Model(&tenantRow{}).Where("id = ?", tenantID).Updates(map[string]any{
		"ai_quota_used":   0,
		"ai_period_start": millis(periodStart),
		"updated_at":      s.stamp(),
	})
	return checkAffected(res, "reset_ai_quota", "tenant", tenantID)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if u.TenantID != "" && u.Active {
			if err := checkSeat(tx, u.TenantID); err != nil {
				return err
			}
		}
		return s.insertUser(tx, u)
	})
}

func (s *Store) insertUser(tx *gorm.DB, u *models.User) error {
	if u.ID == "" {
		u.ID = models.NewID()
	}
	u.Email = normalizeEmail(u.Email)
	if u.Theme == "" {
		u.Theme = models.ThemeSystem
	}
	now := s.stamp()
	u.CreatedAt = now
	u.UpdatedAt = now
	return wrapWriteErr("create user", tx.Create(userToRow(u)).Error)
}

func checkSeat(tx *gorm.DB, tenantID string) error {
	var t tenantRow
	ok, err := first(tx.Where("id = ?", tenantID), &t)
	if err != nil {
		return fmt.Errorf("check seat: %w", err)
	}
	if !ok {
		return apperrors.NotFound("check_seat", fmt.Errorf("tenant %q not found", tenantID))
	}
	var count int64
	if err := tx.Model(&userRow{}).Where("tenant_id = ? AND active", tenantID).Count(&count).Error; err != nil {
		return fmt.Errorf("check seat: %w", err)
	}
	if licensing.CheckLimit(int64(t.MaxUsers), count) == licensing.LimitHardBlock {
		return apperrors.New(apperrors.ErrorTypeLimit, "check_seat", fmt.Errorf("seat limit of %d reached", t.MaxUsers)).
			WithDetail("limit", "users").
			WithDetail("max", t.MaxUsers)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, op string, q *gorm.DB) (*models.User, error) {
	var row userRow
	ok, err := first(q.WithContext(ctx), &row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, nil
	}
	return row.model(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "get user", s.db.Where("id = ?", id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "get user by email", s.db.Where("email = ?", normalizeEmail(email)))
}

func (s *Store) GetTenantUser(ctx context.Context, tenantID, id string) (*models.User, error) {
	return s.getUser(ctx, "get tenant user", s.db.Where("id = ? AND tenant_id = ?", id, tenantID))
}

func (s *Store) ListUsers(ctx context.Context, tenantID string) ([]*models.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("email").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*models.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, tenantID string, u *models.User) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var current userRow
		ok, err := first(tx.Where("id = ? AND tenant_id = ?", u.ID, tenantID), &current)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if !ok {
			return apperrors.NotFound("update_user", fmt.Errorf("user %q not found", u.ID))
		}
		if u.Active && !current.Active {
			if err := checkSeat(tx, tenantID); err != nil {
				return err
			}
		}
		if u.PasswordHash == "" {
			u.PasswordHash = current.PasswordHash
		}
		u.TenantID = tenantID
		u.UpdatedAt = s.stamp()
		err = tx.Model(&userRow{}).Where("id = ? AND tenant_id = ?", u.ID, tenantID).Updates(map[string]any{
			"name":          u.Name,
			"role":          string(u.Role),
			"active":        u.Active,
			"password_hash": u.PasswordHash,
			"updated_at":    u.UpdatedAt,
		}).Error
		return wrapWriteErr("update user", err)
	})
}

func (s *Store) UpdatePreferences(ctx context.Context, userID, theme string) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Updates(map[string]any{
		"theme":      theme,
		"updated_at": s.stamp(),
	})
	return checkAffected(res, "update_preferences", "user", userID)
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update("last_login_at", millis(at))
	return checkAffected(res, "record_login", "user", userID)
}

func (s *Store) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Where("tenant_id = ? AND active", tenantID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return int(n), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
