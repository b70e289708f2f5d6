package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xenovalaw/xenova/internal/models"
)

const clientColumns = `id, tenant_id, name, email, phone, tax_id, address, notes, archived, created_at, updated_at`

// CreateClient inserts a client owned by tenantID.
func (s *SQLiteStore) CreateClient(ctx context.Context, tenantID string, c *models.Client) error {
	if c.ID == "" {
		c.ID = models.NewID()
	}
	c.TenantID = tenantID
	now := s.stamp()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.Email, c.Phone, c.TaxID, c.Address, c.Notes, boolToInt(c.Archived),
		unixMilli(c.CreatedAt), unixMilli(c.UpdatedAt),
	)
	return wrapWriteErr("create client", err)
}

// GetClient retrieves a client of tenantID. Returns nil, nil if not found.
func (s *SQLiteStore) GetClient(ctx context.Context, tenantID, id string) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ? AND tenant_id = ?`, id, tenantID)
	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// ListClients returns the tenant's clients ordered by name.
func (s *SQLiteStore) ListClients(ctx context.Context, tenantID string, f ClientFilter) ([]*models.Client, error) {
	w := tenantWhere(tenantID)
	w.addIf(!f.IncludeArchived, "archived = 0")
	if q := strings.TrimSpace(f.Query); q != "" {
		p := likePattern(q)
		w.add(`(name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR tax_id LIKE ? ESCAPE '\')`, p, p, p)
	}
	limit, args := w.page(f.Page)

	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients`+w.String()+` ORDER BY name, id`+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("list clients: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateClient writes the editable client fields.
func (s *SQLiteStore) UpdateClient(ctx context.Context, tenantID string, c *models.Client) error {
	c.TenantID = tenantID
	c.UpdatedAt = s.stamp()
	res, err := s.db.ExecContext(ctx, `UPDATE clients SET
		name = ?, email = ?, phone = ?, tax_id = ?, address = ?, notes = ?, archived = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		c.Name, c.Email, c.Phone, c.TaxID, c.Address, c.Notes, boolToInt(c.Archived), unixMilli(c.UpdatedAt),
		c.ID, tenantID,
	)
	if err != nil {
		return wrapWriteErr("update client", err)
	}
	return checkAffected(res, "update_client", "client", c.ID)
}

// ArchiveClient hides a client from default listings.
func (s *SQLiteStore) ArchiveClient(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE clients SET archived = 1, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		unixMilli(s.stamp()), id, tenantID)
	if err != nil {
		return fmt.Errorf("archive client: %w", err)
	}
	return checkAffected(res, "archive_client", "client", id)
}

func scanClient(sc scanner) (*models.Client, error) {
	var (
		c                    models.Client
		archived             int
		createdAt, updatedAt int64
	)
	err := sc.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.TaxID, &c.Address, &c.Notes, &archived,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Archived = archived != 0
	c.CreatedAt = fromMilli(createdAt)
	c.UpdatedAt = fromMilli(updatedAt)
	return &c, nil
}
