package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
)

const eventColumns = `id, tenant_id, case_id, title, kind, starts_at, ends_at, location, created_at, updated_at`

// CreateEvent inserts a calendar event. An optional case must belong to
// tenantID.
func (s *SQLiteStore) CreateEvent(ctx context.Context, tenantID string, e *models.CalendarEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOwnedIfSet(ctx, tx, "case", tenantID, e.CaseID); err != nil {
			return err
		}
		if e.ID == "" {
			e.ID = models.NewID()
		}
		e.TenantID = tenantID
		e.StartsAt = e.StartsAt.UTC().Truncate(time.Millisecond)
		now := s.stamp()
		e.CreatedAt = now
		e.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `INSERT INTO calendar_events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TenantID, e.CaseID, e.Title, string(e.Kind), unixMilli(e.StartsAt), nullableTimeMilli(e.EndsAt),
			e.Location, unixMilli(e.CreatedAt), unixMilli(e.UpdatedAt),
		)
		return wrapWriteErr("create event", err)
	})
}

// GetEvent retrieves an event of tenantID. Returns nil, nil if not found.
func (s *SQLiteStore) GetEvent(ctx context.Context, tenantID, id string) (*models.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ? AND tenant_id = ?`, id, tenantID)
	e, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns the tenant's events in chronological order.
func (s *SQLiteStore) ListEvents(ctx context.Context, tenantID string, f EventFilter) ([]*models.CalendarEvent, error) {
	w := tenantWhere(tenantID)
	w.addIf(f.CaseID != "", "case_id = ?", f.CaseID)
	if f.From != nil {
		w.add("starts_at >= ?", unixMilli(*f.From))
	}
	if f.To != nil {
		w.add("starts_at < ?", unixMilli(*f.To))
	}
	limit, args := w.page(f.Page)

	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM calendar_events`+w.String()+` ORDER BY starts_at, id`+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEvent writes the editable event fields.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, tenantID string, e *models.CalendarEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOwnedIfSet(ctx, tx, "case", tenantID, e.CaseID); err != nil {
			return err
		}
		e.TenantID = tenantID
		e.StartsAt = e.StartsAt.UTC().Truncate(time.Millisecond)
		e.UpdatedAt = s.stamp()
		res, err := tx.ExecContext(ctx, `UPDATE calendar_events SET
			case_id = ?, title = ?, kind = ?, starts_at = ?, ends_at = ?, location = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			e.CaseID, e.Title, string(e.Kind), unixMilli(e.StartsAt), nullableTimeMilli(e.EndsAt), e.Location,
			unixMilli(e.UpdatedAt), e.ID, tenantID,
		)
		if err != nil {
			return wrapWriteErr("update event", err)
		}
		return checkAffected(res, "update_event", "event", e.ID)
	})
}

// DeleteEvent removes an event.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return checkAffected(res, "delete_event", "event", id)
}

func scanEvent(sc scanner) (*models.CalendarEvent, error) {
	var (
		e                              models.CalendarEvent
		kind                           string
		startsAt, createdAt, updatedAt int64
		endsAt                         sql.NullInt64
	)
	err := sc.Scan(&e.ID, &e.TenantID, &e.CaseID, &e.Title, &kind, &startsAt, &endsAt, &e.Location,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Kind = models.EventKind(kind)
	e.StartsAt = fromMilli(startsAt)
	e.EndsAt = timePtrFromNull(endsAt)
	e.CreatedAt = fromMilli(createdAt)
	e.UpdatedAt = fromMilli(updatedAt)
	return &e, nil
}
