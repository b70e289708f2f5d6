package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
)

const caseColumns = `id, tenant_id, client_id, number, title, court, matter, status, assigned_user_id,
	opened_at, closed_at, created_at, updated_at`

// CreateCase inserts a case. The client and assignee must belong to tenantID.
func (s *SQLiteStore) CreateCase(ctx context.Context, tenantID string, c *models.Case) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOwned(ctx, tx, "client", tenantID, c.ClientID); err != nil {
			return err
		}
		if err := requireOwnedIfSet(ctx, tx, "user", tenantID, c.AssignedUserID); err != nil {
			return err
		}

		if c.ID == "" {
			c.ID = models.NewID()
		}
		if c.Status == "" {
			c.Status = models.CaseOpen
		}
		c.TenantID = tenantID
		now := s.stamp()
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.OpenedAt.IsZero() {
			c.OpenedAt = now
		} else {
			c.OpenedAt = c.OpenedAt.UTC().Truncate(time.Millisecond)
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO cases (`+caseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.TenantID, c.ClientID, c.Number, c.Title, c.Court, c.Matter, string(c.Status), c.AssignedUserID,
			unixMilli(c.OpenedAt), nullableTimeMilli(c.ClosedAt), unixMilli(c.CreatedAt), unixMilli(c.UpdatedAt),
		)
		return wrapWriteErr("create case", err)
	})
}

// GetCase retrieves a case of tenantID. Returns nil, nil if not found.
func (s *SQLiteStore) GetCase(ctx context.Context, tenantID, id string) (*models.Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ? AND tenant_id = ?`, id, tenantID)
	c, err := scanCase(row)
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

// ListCases returns the tenant's cases, most recently opened first.
func (s *SQLiteStore) ListCases(ctx context.Context, tenantID string, f CaseFilter) ([]*models.Case, error) {
	w := tenantWhere(tenantID)
	w.addIf(f.ClientID != "", "client_id = ?", f.ClientID)
	w.addIf(f.AssignedUserID != "", "assigned_user_id = ?", f.AssignedUserID)
	w.addIf(f.Status != "", "status = ?", string(f.Status))
	if q := strings.TrimSpace(f.Query); q != "" {
		p := likePattern(q)
		w.add(`(number LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')`, p, p)
	}
	limit, args := w.page(f.Page)

	rows, err := s.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases`+w.String()+` ORDER BY opened_at DESC, id`+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("list cases: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCase writes the editable case fields. Changing the client re-checks
// ownership.
func (s *SQLiteStore) UpdateCase(ctx context.Context, tenantID string, c *models.Case) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOwned(ctx, tx, "client", tenantID, c.ClientID); err != nil {
			return err
		}
		if err := requireOwnedIfSet(ctx, tx, "user", tenantID, c.AssignedUserID); err != nil {
			return err
		}

		c.TenantID = tenantID
		c.UpdatedAt = s.stamp()
		res, err := tx.ExecContext(ctx, `UPDATE cases SET
			client_id = ?, number = ?, title = ?, court = ?, matter = ?, status = ?, assigned_user_id = ?,
			closed_at = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			c.ClientID, c.Number, c.Title, c.Court, c.Matter, string(c.Status), c.AssignedUserID,
			nullableTimeMilli(c.ClosedAt), unixMilli(c.UpdatedAt),
			c.ID, tenantID,
		)
		if err != nil {
			return wrapWriteErr("update case", err)
		}
		return checkAffected(res, "update_case", "case", c.ID)
	})
}

func scanCase(sc scanner) (*models.Case, error) {
	var (
		c                              models.Case
		status                         string
		openedAt, createdAt, updatedAt int64
		closedAt                       sql.NullInt64
	)
	err := sc.Scan(&c.ID, &c.TenantID, &c.ClientID, &c.Number, &c.Title, &c.Court, &c.Matter, &status,
		&c.AssignedUserID, &openedAt, &closedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Status = models.CaseStatus(status)
	c.OpenedAt = fromMilli(openedAt)
	c.ClosedAt = timePtrFromNull(closedAt)
	c.CreatedAt = fromMilli(createdAt)
	c.UpdatedAt = fromMilli(updatedAt)
	return &c, nil
}
