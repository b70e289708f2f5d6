// Package pgstore implements store.Store on PostgreSQL through gorm.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/store"
)

// Store is the PostgreSQL backend.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&tenantRow{}, &userRow{}, &clientRow{}, &caseRow{}, &taskRow{},
		&documentRow{}, &invoiceRow{}, &eventRow{}, &aiUsageRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Truncate empties every table. Tests only.
func (s *Store) Truncate(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec(`TRUNCATE ai_usage, calendar_events, invoices, documents, tasks, cases,
		clients, users, tenants`).Error
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// ownedTables are the tables a caller may reference by id.
var ownedTables = map[string]string{
	"client": "clients",
	"case":   "cases",
	"user":   "users",
}

func requireOwned(tx *gorm.DB, kind, tenantID, id string) error {
	table, ok := ownedTables[kind]
	if !ok {
		return fmt.Errorf("requireOwned: unknown kind %q", kind)
	}
	var n int64
	if err := tx.Table(table).Where("id = ? AND tenant_id = ?", id, tenantID).Count(&n).Error; err != nil {
		return fmt.Errorf("verify %s: %w", kind, err)
	}
	if n == 0 {
		return apperrors.NotFound("verify_"+kind, fmt.Errorf("%s %q not found", kind, id))
	}
	return nil
}

func requireOwnedIfSet(tx *gorm.DB, kind, tenantID, id string) error {
	if id == "" {
		return nil
	}
	return requireOwned(tx, kind, tenantID, id)
}

func wrapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.New(apperrors.ErrorTypeConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func checkAffected(res *gorm.DB, op, kind, id string) error {
	if res.Error != nil {
		return wrapWriteErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound(op, fmt.Errorf("%s %q not found", kind, id))
	}
	return nil
}

// first loads a single row and maps "no row" to (false, nil).
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func page(q *gorm.DB, p store.Page) *gorm.DB {
	p = p.Normalize()
	return q.Limit(p.Limit).Offset(p.Offset)
}

func millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func millisPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := millis(*t)
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
