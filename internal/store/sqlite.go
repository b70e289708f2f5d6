package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	tier            TEXT NOT NULL,
	max_users       INTEGER NOT NULL DEFAULT 0,
	storage_gb      INTEGER NOT NULL DEFAULT 0,
	ai_active       INTEGER NOT NULL DEFAULT 0,
	ai_billing_mode TEXT NOT NULL DEFAULT 'fixed',
	ai_quota_max    INTEGER NOT NULL DEFAULT 0,
	ai_quota_used   INTEGER NOT NULL DEFAULT 0,
	ai_activated_at INTEGER,
	ai_period_start INTEGER NOT NULL,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL COLLATE NOCASE UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1,
	theme         TEXT NOT NULL DEFAULT 'system',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	last_login_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);

CREATE TABLE IF NOT EXISTS clients (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL REFERENCES tenants(id),
	name       TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	tax_id     TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	archived   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clients_tenant ON clients(tenant_id, name);

CREATE TABLE IF NOT EXISTS cases (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL REFERENCES tenants(id),
	client_id        TEXT NOT NULL REFERENCES clients(id),
	number           TEXT NOT NULL,
	title            TEXT NOT NULL,
	court            TEXT NOT NULL DEFAULT '',
	matter           TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	assigned_user_id TEXT NOT NULL DEFAULT '',
	opened_at        INTEGER NOT NULL,
	closed_at        INTEGER,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	UNIQUE (tenant_id, number)
);
CREATE INDEX IF NOT EXISTS idx_cases_tenant_client ON cases(tenant_id, client_id);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL REFERENCES tenants(id),
	case_id     TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	assignee_id TEXT NOT NULL DEFAULT '',
	due_at      INTEGER,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_tenant_case ON tasks(tenant_id, case_id);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL REFERENCES tenants(id),
	case_id      TEXT NOT NULL REFERENCES cases(id),
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	storage_key  TEXT NOT NULL,
	uploaded_by  TEXT NOT NULL DEFAULT '',
	signed_at    INTEGER,
	signed_by    TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_tenant_case ON documents(tenant_id, case_id);

CREATE TABLE IF NOT EXISTS invoices (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL REFERENCES tenants(id),
	client_id    TEXT NOT NULL REFERENCES clients(id),
	case_id      TEXT NOT NULL DEFAULT '',
	number       TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL,
	electronic   INTEGER NOT NULL DEFAULT 0,
	issued_at    INTEGER,
	due_at       INTEGER,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	UNIQUE (tenant_id, number)
);
CREATE INDEX IF NOT EXISTS idx_invoices_tenant_client ON invoices(tenant_id, client_id);

CREATE TABLE IF NOT EXISTS calendar_events (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL REFERENCES tenants(id),
	case_id    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	starts_at  INTEGER NOT NULL,
	ends_at    INTEGER,
	location   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tenant_start ON calendar_events(tenant_id, starts_at);

CREATE TABLE IF NOT EXISTS ai_usage (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	action        TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	tokens        INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_usage_tenant_created ON ai_usage(tenant_id, created_at);

CREATE TRIGGER IF NOT EXISTS ai_usage_no_update BEFORE UPDATE ON ai_usage
BEGIN
	SELECT RAISE(ABORT, 'ai_usage is append-only');
END;
CREATE TRIGGER IF NOT EXISTS ai_usage_no_delete BEFORE DELETE ON ai_usage
BEGIN
	SELECT RAISE(ABORT, 'ai_usage is append-only');
END;
`

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetClock overrides the time source. Tests only.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ownedTables are the tables a caller may reference by id.
var ownedTables = map[string]string{
	"client": "clients",
	"case":   "cases",
	"user":   "users",
}

// requireOwned verifies that the referenced row belongs to tenantID. It is the
// root-of-chain check applied to every caller-supplied foreign key.
func requireOwned(ctx context.Context, q querier, kind, tenantID, id string) error {
	table, ok := ownedTables[kind]
	if !ok {
		return fmt.Errorf("requireOwned: unknown kind %q", kind)
	}
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ? AND tenant_id = ?`, id, tenantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("verify_"+kind, fmt.Errorf("%s %q not found", kind, id))
	}
	if err != nil {
		return fmt.Errorf("verify %s: %w", kind, err)
	}
	return nil
}

// requireOwnedIfSet is requireOwned for optional references.
func requireOwnedIfSet(ctx context.Context, q querier, kind, tenantID, id string) error {
	if id == "" {
		return nil
	}
	return requireOwned(ctx, q, kind, tenantID, id)
}

func checkAffected(res sql.Result, op, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return apperrors.NotFound(op, fmt.Errorf("%s %q not found", kind, id))
	}
	return nil
}

func wrapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return apperrors.New(apperrors.ErrorTypeConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func unixMilli(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableTimeMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func timePtrFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := time.UnixMilli(v.Int64).UTC()
	return &ts
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func likePattern(q string) string {
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(q))
	return "%" + q + "%"
}

// whereBuilder accumulates AND-ed conditions. The tenant filter is always the
// first condition.
type whereBuilder struct {
	clauses []string
	args    []any
}

func tenantWhere(tenantID string) *whereBuilder {
	return &whereBuilder{clauses: []string{"tenant_id = ?"}, args: []any{tenantID}}
}

func (w *whereBuilder) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) addIf(cond bool, clause string, args ...any) {
	if cond {
		w.add(clause, args...)
	}
}

func (w *whereBuilder) String() string {
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) page(p Page) (string, []any) {
	p = p.Normalize()
	return " LIMIT ? OFFSET ?", append(append([]any{}, w.args...), p.Limit, p.Offset)
}
