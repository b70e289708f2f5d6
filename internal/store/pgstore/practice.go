package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

func likePattern(q string) string {
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(q))
	return "%" + q + "%"
}

// getOwned loads one tenant-owned row into dest.
func (s *Store) getOwned(ctx context.Context, op, tenantID, id string, dest any) (bool, error) {
	ok, err := first(s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID), dest)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

func (s *Store) deleteOwned(ctx context.Context, op, kind, tenantID, id string, model any) error {
	res := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(model)
	return checkAffected(res, op, kind, id)
}

// Clients

func (s *Store) CreateClient(ctx context.Context, tenantID string, c *models.Client) error {
	if c.ID == "" {
		c.ID = models.NewID()
	}
	c.TenantID = tenantID
	now := s.stamp()
	c.CreatedAt = now
	c.UpdatedAt = now
	return wrapWriteErr("create client", s.db.WithContext(ctx).Create(clientToRow(c)).Error)
}

func (s *Store) GetClient(ctx context.Context, tenantID, id string) (*models.Client, error) {
	var row clientRow
	ok, err := s.getOwned(ctx, "get client", tenantID, id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) ListClients(ctx context.Context, tenantID string, f store.ClientFilter) ([]*models.Client, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !f.IncludeArchived {
		q = q.Where("NOT archived")
	}
	if strings.TrimSpace(f.Query) != "" {
		p := likePattern(f.Query)
		q = q.Where("(name ILIKE ? OR email ILIKE ? OR tax_id ILIKE ?)", p, p, p)
	}
	var rows []clientRow
	if err := page(q.Order("name, id"), f.Page).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]*models.Client, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateClient(ctx context.Context, tenantID string, c *models.Client) error {
	c.TenantID = tenantID
	c.UpdatedAt = s.stamp()
	res := s.db.WithContext(ctx).Model(&clientRow{}).Where("id = ? AND tenant_id = ?", c.ID, tenantID).Updates(map[string]any{
		"name": c.Name, "email": c.Email, "phone": c.Phone, "tax_id": c.TaxID, "address": c.Address,
		"notes": c.Notes, "archived": c.Archived, "updated_at": c.UpdatedAt,
	})
	return checkAffected(res, "update_client", "client", c.ID)
}

func (s *Store) ArchiveClient(ctx context.Context, tenantID, id string) error {
	res := s.db.WithContext(ctx).Model(&clientRow{}).Where("id = ? AND tenant_id = ?", id, tenantID).Updates(map[string]any{
		"archived": true, "updated_at": s.stamp(),
	})
	return checkAffected(res, "archive_client", "client", id)
}

// Cases

func (s *Store) CreateCase(ctx context.Context, tenantID string, c *models.Case) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireOwned(tx, "client", tenantID, c.ClientID); err != nil {
			return err
		}
		if err := requireOwnedIfSet(tx, "user", tenantID, c.AssignedUserID); err != nil {
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
			c.OpenedAt = millis(c.OpenedAt)
		}
		return wrapWriteErr("create case", tx.Create(caseToRow(c)).Error)
	})
}

func (s *Store) GetCase(ctx context.Context, tenantID, id string) (*models.Case, error) {
	var row caseRow
	ok, err := s.getOwned(ctx, "get case", tenantID, id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) ListCases(ctx context.Context, tenantID string, f store.CaseFilter) ([]*models.Case, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.AssignedUserID != "" {
		q = q.Where("assigned_user_id = ?", f.AssignedUserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if strings.TrimSpace(f.Query) != "" {
		p := likePattern(f.Query)
		q = q.Where("(number ILIKE ? OR title ILIKE ?)", p, p)
	}
	var rows []caseRow
	if err := page(q.Order("opened_at DESC, id"), f.Page).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	out := make([]*models.Case, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateCase(ctx context.Context, tenantID string, c *models.Case) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireOwned(tx, "client", tenantID, c.ClientID); err != nil {
			return err
		}
		if err := requireOwnedIfSet(tx, "user", tenantID, c.AssignedUserID); err != nil {
			return err
		}
		c.TenantID = tenantID
		c.UpdatedAt = s.stamp()
		res := tx.Model(&caseRow{}).Where("id = ? AND tenant_id = ?", c.ID, tenantID).Updates(map[string]any{
			"client_id": c.ClientID, "number": c.Number, "title": c.Title, "court": c.Court, "matter": c.Matter,
			"status": string(c.Status), "assigned_user_id": c.AssignedUserID, "closed_at": millisPtr(c.ClosedAt),
			"updated_at": c.UpdatedAt,
		})
		return checkAffected(res, "update_case", "case", c.ID)
	})
}

// Tasks

func verifyTaskRefs(tx *gorm.DB, tenantID string, t *models.Task) error {
	if err := requireOwnedIfSet(tx, "case", tenantID, t.CaseID); err != nil {
		return err
	}
	return requireOwnedIfSet(tx, "user", tenantID, t.AssigneeID)
}

func (s *Store) CreateTask(ctx context.Context, tenantID string, t *models.Task) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := verifyTaskRefs(tx, tenantID, t); err != nil {
			return err
		}
		if t.ID == "" {
			t.ID = models.NewID()
		}
		if t.Status == "" {
			t.Status = models.TaskPending
		}
		t.TenantID = tenantID
		now := s.stamp()
		t.CreatedAt = now
		t.UpdatedAt = now
		return wrapWriteErr("create task", tx.Create(taskToRow(t)).Error)
	})
}

func (s *Store) GetTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	var row taskRow
	ok, err := s.getOwned(ctx, "get task", tenantID, id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) ListTasks(ctx context.Context, tenantID string, f store.TaskFilter) ([]*models.Task, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.CaseID != "" {
		q = q.Where("case_id = ?", f.CaseID)
	}
	if f.AssigneeID != "" {
		q = q.Where("assignee_id = ?", f.AssigneeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var rows []taskRow
	if err := page(q.Order("due_at ASC NULLS LAST, created_at, id"), f.Page).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]*models.Task, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, tenantID string, t *models.Task) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := verifyTaskRefs(tx, tenantID, t); err != nil {
			return err
		}
		t.TenantID = tenantID
		t.UpdatedAt = s.stamp()
		res := tx.Model(&taskRow{}).Where("id = ? AND tenant_id = ?", t.ID, tenantID).Updates(map[string]any{
			"case_id": t.CaseID, "title": t.Title, "description": t.Description, "status": string(t.Status),
			"assignee_id": t.AssigneeID, "due_at": millisPtr(t.DueAt), "updated_at": t.UpdatedAt,
		})
		return checkAffected(res, "update_task", "task", t.ID)
	})
}

func (s *Store) DeleteTask(ctx context.Context, tenantID, id string) error {
	return s.deleteOwned(ctx, "delete_task", "task", tenantID, id, &taskRow{})
}

// Documents

func (s *Store) CreateDocument(ctx context.Context, tenantID string, d *models.Document) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireOwned(tx, "case", tenantID, d.CaseID); err != nil {
			return err
		}
		if err := checkStorage(tx, tenantID, d.SizeBytes); err != nil {
			return err
		}
		if d.ID == "" {
			d.ID = models.NewID()
		}
		d.TenantID = tenantID
		now := s.stamp()
		d.CreatedAt = now
		d.UpdatedAt = now
		return wrapWriteErr("create document", tx.Create(documentToRow(d)).Error)
	})
}

// checkStorage locks the tenant row so concurrent uploads for one tenant are
// checked one at a time.
func checkStorage(tx *gorm.DB, tenantID string, size int64) error {
	var t tenantRow
	ok, err := first(tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", tenantID), &t)
	if err != nil {
		return fmt.Errorf("check storage: %w", err)
	}
	if !ok {
		return apperrors.NotFound("check_storage", fmt.Errorf("tenant %q not found", tenantID))
	}
	var used int64
	if err := tx.Model(&documentRow{}).Where("tenant_id = ?", tenantID).
		Select("COALESCE(SUM(size_bytes), 0)").Scan(&used).Error; err != nil {
		return fmt.Errorf("check storage: %w", err)
	}
	tenant := t.model()
	if store.StorageExceeded(tenant, used, size) {
		return store.StorageLimitError("check_storage", tenant, used)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	var row documentRow
	ok, err := s.getOwned(ctx, "get document", tenantID, id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) ListDocuments(ctx context.Context, tenantID string, f store.DocumentFilter) ([]*models.Document, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.CaseID != "" {
		q = q.Where("case_id = ?", f.CaseID)
	}
	var rows []documentRow
	if err := page(q.Order("created_at DESC, id"), f.Page).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]*models.Document, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, tenantID, id string) error {
	return s.deleteOwned(ctx, "delete_document", "document", tenantID, id, &documentRow{})
}

func (s *Store) SignDocument(ctx context.Context, tenantID, id, userID string, at time.Time) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireOwned(tx, "user", tenantID, userID); err != nil {
			return err
		}
		res := tx.Model(&documentRow{}).
			Where("id = ? AND tenant_id = ? AND signed_at IS NULL", id, tenantID).
			Updates(map[string]any{"signed_at": millis(at), "signed_by": userID, "updated_at": s.stamp()})
		if res.Error != nil {
			return fmt.Errorf("sign document: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		var n int64
		if err := tx.Model(&documentRow{}).Where("id = ? AND tenant_id = ?", id, tenantID).Count(&n).Error; err != nil {
			return fmt.Errorf("sign document: %w", err)
		}
		if n == 0 {
			return apperrors.NotFound("sign_document", fmt.Errorf("document %q not found", id))
		}
		return apperrors.New(apperrors.ErrorTypeConflict, "sign_document", fmt.Errorf("document %q already signed", id))
	})
}

func (s *Store) DocumentBytes(ctx context.Context, tenantID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&documentRow{}).Where("tenant_id = ?", tenantID).
		Select("COALESCE(SUM(size_bytes), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("document bytes: %w", err)
	}
	return total, nil
}

// Invoices

func verifyInvoiceRefs(tx *gorm.DB, tenantID string, inv *models.Invoice) error {
	if err := requireOwned(tx, "client", tenantID, inv.ClientID); err != nil {
		return err
	}
	return requireOwnedIfSet(tx, "case", tenantID, inv.CaseID)
}

func (s *Store) CreateInvoice(ctx context.Context, tenantID string, inv *models.Invoice) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := verifyInvoiceRefs(tx, tenantID, inv); err != nil {
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
		return wrapWriteErr("create invoice", tx.Create(invoiceToRow(inv)).Error)
	})
}

func (s *Store) GetInvoice(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	var row invoiceRow
	ok, err := s.getOwned(ctx, "get invoice", tenantID, id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, f store.InvoiceFilter) ([]*models.Invoice, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.CaseID != "" {
		q = q.Where("case_id = ?", f.CaseID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var rows []invoiceRow
	if err := page(q.Order("created_at DESC, id"), f.Page).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	out := make([]*models.Invoice, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, tenantID string, inv *models.Invoice) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := verifyInvoiceRefs(tx, tenantID, inv); err != nil {
			return err
		}
		inv.Currency = strings.ToUpper(inv.Currency)
		inv.TenantID = tenantID
		inv.UpdatedAt = s.stamp()
		res := tx.Model(&invoiceRow{}).Where("id = ? AND tenant_id = ?", inv.ID, tenantID).Updates(map[string]any{
			"client_id": inv.ClientID, "case_id": inv.CaseID, "number": inv.Number, "amount_cents": inv.AmountCents,
			"currency": inv.Currency, "status": string(inv.Status), "electronic": inv.Electronic,
			"issued_at": millisPtr(inv.IssuedAt), "due_at": millisPtr(inv.DueAt), "updated_at": inv.UpdatedAt,
		})
		return checkAffected(res, "update_invoice", "invoice", inv.ID)
	})
}

// Calendar

func (s *Store) CreateEvent(ctx context.Context, tenantID string, e *models.CalendarEvent) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireOwnedIfSet(tx, "case", tenantID, e.CaseID); err != nil {
			return err
		}
		if e.ID == "" {
			e.ID = models.NewID()
		}
		e.TenantID = tenantID
		e.StartsAt = millis(e.StartsAt)
		now := s.stamp()
		e.CreatedAt = now
		e.UpdatedAt = now
		return wrapWriteErr("create event", tx.Create(eventToRow(e)).Error)
	})
}

func (s *Store) GetEvent(ctx context.Context, tenantID, id string) (*models.CalendarEvent, error) {
	var row eventRow
	ok, err := s.getOwned(ctx, "get event", tenantID, id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) ListEvents(ctx context.Context, tenantID string, f store.EventFilter) ([]*models.CalendarEvent, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.CaseID != "" {
		q = q.Where("case_id = ?", f.CaseID)
	}
	if f.From != nil {
		q = q.Where("starts_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("starts_at < ?", f.To.UTC())
	}
	var rows []eventRow
	if err := page(q.Order("starts_at, id"), f.Page).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]*models.CalendarEvent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) UpdateEvent(ctx context.Context, tenantID string, e *models.CalendarEvent) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := requireOwnedIfSet(tx, "case", tenantID, e.CaseID); err != nil {
			return err
		}
		e.TenantID = tenantID
		e.StartsAt = millis(e.StartsAt)
		e.UpdatedAt = s.stamp()
		res := tx.Model(&eventRow{}).Where("id = ? AND tenant_id = ?", e.ID, tenantID).Updates(map[string]any{
			"case_id": e.CaseID, "title": e.Title, "kind": string(e.Kind), "starts_at": e.StartsAt,
			"ends_at": millisPtr(e.EndsAt), "location": e.Location, "updated_at": e.UpdatedAt,
		})
		return checkAffected(res, "update_event", "event", e.ID)
	})
}

func (s *Store) DeleteEvent(ctx context.Context, tenantID, id string) error {
	return s.deleteOwned(ctx, "delete_event", "event", tenantID, id, &eventRow{})
}
