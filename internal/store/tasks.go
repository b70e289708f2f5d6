package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xenovalaw/xenova/internal/models"
)

const taskColumns = `id, tenant_id, case_id, title, description, status, assignee_id, due_at, created_at, updated_at`

// CreateTask inserts a task. An optional case and assignee must belong to
// tenantID.
func (s *SQLiteStore) CreateTask(ctx context.Context, tenantID string, t *models.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := verifyTaskRefs(ctx, tx, tenantID, t); err != nil {
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

		_, err := tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.TenantID, t.CaseID, t.Title, t.Description, string(t.Status), t.AssigneeID,
			nullableTimeMilli(t.DueAt), unixMilli(t.CreatedAt), unixMilli(t.UpdatedAt),
		)
		return wrapWriteErr("create task", err)
	})
}

func verifyTaskRefs(ctx context.Context, q querier, tenantID string, t *models.Task) error {
	if err := requireOwnedIfSet(ctx, q, "case", tenantID, t.CaseID); err != nil {
		return err
	}
	return requireOwnedIfSet(ctx, q, "user", tenantID, t.AssigneeID)
}

// GetTask retrieves a task of tenantID. Returns nil, nil if not found.
func (s *SQLiteStore) GetTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tenant's tasks ordered by due date, undated last.
func (s *SQLiteStore) ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]*models.Task, error) {
	w := tenantWhere(tenantID)
	w.addIf(f.CaseID != "", "case_id = ?", f.CaseID)
	w.addIf(f.AssigneeID != "", "assignee_id = ?", f.AssigneeID)
	w.addIf(f.Status != "", "status = ?", string(f.Status))
	limit, args := w.page(f.Page)

	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+w.String()+
		` ORDER BY due_at IS NULL, due_at, created_at, id`+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask writes the editable task fields.
func (s *SQLiteStore) UpdateTask(ctx context.Context, tenantID string, t *models.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := verifyTaskRefs(ctx, tx, tenantID, t); err != nil {
			return err
		}
		t.TenantID = tenantID
		t.UpdatedAt = s.stamp()
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET
			case_id = ?, title = ?, description = ?, status = ?, assignee_id = ?, due_at = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			t.CaseID, t.Title, t.Description, string(t.Status), t.AssigneeID, nullableTimeMilli(t.DueAt),
			unixMilli(t.UpdatedAt), t.ID, tenantID,
		)
		if err != nil {
			return wrapWriteErr("update task", err)
		}
		return checkAffected(res, "update_task", "task", t.ID)
	})
}

// DeleteTask removes a task.
func (s *SQLiteStore) DeleteTask(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(res, "delete_task", "task", id)
}

func scanTask(sc scanner) (*models.Task, error) {
	var (
		t                    models.Task
		status               string
		dueAt                sql.NullInt64
		createdAt, updatedAt int64
	)
	err := sc.Scan(&t.ID, &t.TenantID, &t.CaseID, &t.Title, &t.Description, &status, &t.AssigneeID, &dueAt,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.DueAt = timePtrFromNull(dueAt)
	t.CreatedAt = fromMilli(createdAt)
	t.UpdatedAt = fromMilli(updatedAt)
	return &t, nil
}
