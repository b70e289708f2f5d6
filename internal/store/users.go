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
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

const userColumns = `id, tenant_id, email, name, password_hash, role, active, theme, created_at, updated_at, last_login_at`

// CreateUser inserts a user, enforcing the tenant's seat limit.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if u.TenantID != "" && u.Active {
			if err := checkSeat(ctx, tx, u.TenantID); err != nil {
				return err
			}
		}
		return s.insertUser(ctx, tx, u)
	})
}

func (s *SQLiteStore) insertUser(ctx context.Context, q querier, u *models.User) error {
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

	_, err := q.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Email, u.Name, u.PasswordHash, string(u.Role), boolToInt(u.Active), u.Theme,
		unixMilli(u.CreatedAt), unixMilli(u.UpdatedAt), nullableTimeMilli(u.LastLoginAt),
	)
	return wrapWriteErr("create user", err)
}

// checkSeat fails with a limit error when the tenant has no free seat.
func checkSeat(ctx context.Context, q querier, tenantID string) error {
	t, err := getTenant(ctx, q, tenantID)
	if err != nil {
		return err
	}
	if t == nil {
		return apperrors.NotFound("check_seat", fmt.Errorf("tenant %q not found", tenantID))
	}
	count, err := countActiveUsers(ctx, q, tenantID)
	if err != nil {
		return err
	}
	if licensing.CheckLimit(int64(t.MaxUsers), int64(count)) == licensing.LimitHardBlock {
		return apperrors.New(apperrors.ErrorTypeLimit, "check_seat", fmt.Errorf("seat limit of %d reached", t.MaxUsers)).
			WithDetail("limit", "users").
			WithDetail("max", t.MaxUsers)
	}
	return nil
}

// GetUser retrieves a user by ID regardless of tenant.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by e-mail (case-insensitive).
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetTenantUser retrieves a user of the given tenant.
func (s *SQLiteStore) GetTenantUser(ctx context.Context, tenantID, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? AND tenant_id = ?`, id, tenantID)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get tenant user: %w", err)
	}
	return u, nil
}

// ListUsers returns the tenant's users ordered by e-mail.
func (s *SQLiteStore) ListUsers(ctx context.Context, tenantID string) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY email`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser writes name, role, active flag and password hash of a tenant
// user. Reactivating a user takes a seat.
func (s *SQLiteStore) UpdateUser(ctx context.Context, tenantID string, u *models.User) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? AND tenant_id = ?`, u.ID, tenantID)
		current, err := scanUser(row)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if current == nil {
			return apperrors.NotFound("update_user", fmt.Errorf("user %q not found", u.ID))
		}
		if u.Active && !current.Active {
			if err := checkSeat(ctx, tx, tenantID); err != nil {
				return err
			}
		}
		if u.PasswordHash == "" {
			u.PasswordHash = current.PasswordHash
		}

		u.TenantID = tenantID
		u.UpdatedAt = s.stamp()
		_, err = tx.ExecContext(ctx, `UPDATE users SET name = ?, role = ?, active = ?, password_hash = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			u.Name, string(u.Role), boolToInt(u.Active), u.PasswordHash, unixMilli(u.UpdatedAt), u.ID, tenantID)
		return wrapWriteErr("update user", err)
	})
}

// UpdatePreferences stores the user's personal settings.
func (s *SQLiteStore) UpdatePreferences(ctx context.Context, userID, theme string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET theme = ?, updated_at = ? WHERE id = ?`,
		theme, unixMilli(s.stamp()), userID)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return checkAffected(res, "update_preferences", "user", userID)
}

// RecordLogin stamps the user's last sign-in.
func (s *SQLiteStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, unixMilli(at), userID)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return checkAffected(res, "record_login", "user", userID)
}

// CountActiveUsers returns the number of seats in use.
func (s *SQLiteStore) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	return countActiveUsers(ctx, s.db, tenantID)
}

func countActiveUsers(ctx context.Context, q querier, tenantID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id = ? AND active = 1`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return n, nil
}

func scanUser(sc scanner) (*models.User, error) {
	var (
		u                    models.User
		role                 string
		active               int
		createdAt, updatedAt int64
		lastLogin            sql.NullInt64
	)
	err := sc.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.PasswordHash, &role, &active, &u.Theme,
		&createdAt, &updatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	u.Active = active != 0
	u.CreatedAt = fromMilli(createdAt)
	u.UpdatedAt = fromMilli(updatedAt)
	u.LastLoginAt = timePtrFromNull(lastLogin)
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
