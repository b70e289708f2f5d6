package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
)

const documentColumns = `id, tenant_id, case_id, filename, content_type, size_bytes, storage_key, uploaded_by,
	signed_at, signed_by, created_at, updated_at`

// CreateDocument inserts document metadata. The case must belong to tenantID
// and the document must fit in the tenant's storage allowance.
func (s *SQLiteStore) CreateDocument(ctx context.Context, tenantID string, d *models.Document) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOwned(ctx, tx, "case", tenantID, d.CaseID); err != nil {
			return err
		}
		if err := checkStorage(ctx, tx, tenantID, d.SizeBytes); err != nil {
			return err
		}
		if d.ID == "" {
			d.ID = models.NewID()
		}
		d.TenantID = tenantID
		now := s.stamp()
		d.CreatedAt = now
		d.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.TenantID, d.CaseID, d.Filename, d.ContentType, d.SizeBytes, d.StorageKey, d.UploadedBy,
			nullableTimeMilli(d.SignedAt), d.SignedBy, unixMilli(d.CreatedAt), unixMilli(d.UpdatedAt),
		)
		return wrapWriteErr("create document", err)
	})
}

// GetDocument retrieves document metadata. Returns nil, nil if not found.
func (s *SQLiteStore) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID)
	d, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns the tenant's documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, tenantID string, f DocumentFilter) ([]*models.Document, error) {
	w := tenantWhere(tenantID)
	w.addIf(f.CaseID != "", "case_id = ?", f.CaseID)
	limit, args := w.page(f.Page)

	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents`+w.String()+` ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes document metadata. The caller removes the blob.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return checkAffected(res, "delete_document", "document", id)
}

// SignDocument records a signature on an unsigned document.
func (s *SQLiteStore) SignDocument(ctx context.Context, tenantID, id, userID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOwned(ctx, tx, "user", tenantID, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE documents SET signed_at = ?, signed_by = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ? AND signed_at IS NULL`,
			unixMilli(at), userID, unixMilli(s.stamp()), id, tenantID)
		if err != nil {
			return fmt.Errorf("sign document: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sign document: %w", err)
		}
		if affected > 0 {
			return nil
		}

		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("sign_document", fmt.Errorf("document %q not found", id))
		}
		if err != nil {
			return fmt.Errorf("sign document: %w", err)
		}
		return apperrors.New(apperrors.ErrorTypeConflict, "sign_document", fmt.Errorf("document %q already signed", id))
	})
}

// DocumentBytes returns the total size of the tenant's documents.
func (s *SQLiteStore) DocumentBytes(ctx context.Context, tenantID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM documents WHERE tenant_id = ?`, tenantID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("document bytes: %w", err)
	}
	return total, nil
}

// StorageLimitError reports an upload that would exceed the allowance.
func StorageLimitError(op string, t *models.Tenant, used int64) error {
	return apperrors.New(apperrors.ErrorTypeLimit, op,
		fmt.Errorf("storage allowance of %d GB reached", t.StorageGB)).
		WithDetail("used_bytes", used).
		WithDetail("limit_bytes", t.StorageLimitBytes())
}

// StorageExceeded reports whether adding size bytes to used overflows the
// tenant's allowance.
func StorageExceeded(t *models.Tenant, used, size int64) bool {
	limit := t.StorageLimitBytes()
	return limit > 0 && used+size > limit
}

// checkStorage runs inside the insert transaction. The store holds a single
// connection, so concurrent uploads are serialized here.
func checkStorage(ctx context.Context, q querier, tenantID string, size int64) error {
	t, err := getTenant(ctx, q, tenantID)
	if err != nil {
		return err
	}
	if t == nil {
		return apperrors.NotFound("check_storage", fmt.Errorf("tenant %q not found", tenantID))
	}
	var used int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM documents WHERE tenant_id = ?`, tenantID).Scan(&used); err != nil {
		return fmt.Errorf("check storage: %w", err)
	}
	if StorageExceeded(t, used, size) {
		return StorageLimitError("check_storage", t, used)
	}
	return nil
}

func scanDocument(sc scanner) (*models.Document, error) {
	var (
		d                    models.Document
		signedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := sc.Scan(&d.ID, &d.TenantID, &d.CaseID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.StorageKey,
		&d.UploadedBy, &signedAt, &d.SignedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.SignedAt = timePtrFromNull(signedAt)
	d.CreatedAt = fromMilli(createdAt)
	d.UpdatedAt = fromMilli(updatedAt)
	return &d, nil
}
