// Package store is the persistence boundary of XenovaLaw.
//
// Every method that touches tenant-owned rows takes the caller's tenant id as
// an explicit argument, filters every read, update and delete on it, and
// overwrites the tenant id of inserted records with it. Foreign keys supplied
// by callers (a task's case, an invoice's client) are re-verified against the
// same tenant inside the write transaction. A reference to a row of another
// tenant is reported exactly like a missing row.
//
// Get methods return (nil, nil) when no row matches. Update and delete
// methods return an error matching errors.ErrNotFound.
package store

import (
	"context"
	"time"

	"github.com/xenovalaw/xenova/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ClientFilter narrows ListClients.
type ClientFilter struct {
	Query           string // matched against name, email and tax id
	IncludeArchived bool
	Page
}

// CaseFilter narrows ListCases.
type CaseFilter struct {
	ClientID       string
	AssignedUserID string
	Status         models.CaseStatus
	Query          string // matched against number and title
	Page
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	CaseID     string
	AssigneeID string
	Status     models.TaskStatus
	Page
}

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	CaseID string
	Page
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	ClientID string
	CaseID   string
	Status   models.InvoiceStatus
	Page
}

// EventFilter narrows ListEvents. From and To bound starts_at.
type EventFilter struct {
	CaseID string
	From   *time.Time
	To     *time.Time
	Page
}

// UsageSummary aggregates AI usage per action.
type UsageSummary struct {
	Action    string  `json:"action"`
	Attempts  int64   `json:"attempts"`
	Successes int64   `json:"successes"`
	Tokens    int64   `json:"tokens"`
	CostUSD   float64 `json:"cost_usd"`
}

// TenantStore manages tenant records. It is the only surface that lists
// across tenants and is reachable only from platform-admin code paths.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	// ProvisionTenant creates a tenant and its owner in one transaction.
	ProvisionTenant(ctx context.Context, t *models.Tenant, owner *models.User) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	// UpdateTenant writes admin-managed fields. The AI counter and period
	// start are not touched.
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	// ConsumeAIQuotaUnit atomically increments the AI counter unless fixed
	// billing has reached its ceiling, and returns the new value. A full
	// quota yields an error matching errors.ErrQuotaExhausted.
	ConsumeAIQuotaUnit(ctx context.Context, tenantID string) (int64, error)
	ResetAIQuota(ctx context.Context, tenantID string, periodStart time.Time) error
}

// UserStore manages user identities.
type UserStore interface {
	// CreateUser inserts a user. When TenantID is set the tenant must exist
	// and have a free seat, otherwise errors.ErrLimitReached is returned.
	CreateUser(ctx context.Context, u *models.User) error
	// GetUser and GetUserByEmail are unscoped. They serve identity resolution
	// and sign-in only.
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetTenantUser(ctx context.Context, tenantID, id string) (*models.User, error)
	ListUsers(ctx context.Context, tenantID string) ([]*models.User, error)
	UpdateUser(ctx context.Context, tenantID string, u *models.User) error
	UpdatePreferences(ctx context.Context, userID, theme string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	CountActiveUsers(ctx context.Context, tenantID string) (int, error)
}

// ClientStore manages clients. Clients are archived, never deleted.
type ClientStore interface {
	CreateClient(ctx context.Context, tenantID string, c *models.Client) error
	GetClient(ctx context.Context, tenantID, id string) (*models.Client, error)
	ListClients(ctx context.Context, tenantID string, f ClientFilter) ([]*models.Client, error)
	UpdateClient(ctx context.Context, tenantID string, c *models.Client) error
	ArchiveClient(ctx context.Context, tenantID, id string) error
}

// CaseStore manages cases (expedientes).
type CaseStore interface {
	CreateCase(ctx context.Context, tenantID string, c *models.Case) error
	GetCase(ctx context.Context, tenantID, id string) (*models.Case, error)
	ListCases(ctx context.Context, tenantID string, f CaseFilter) ([]*models.Case, error)
	UpdateCase(ctx context.Context, tenantID string, c *models.Case) error
}

// TaskStore manages tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, tenantID string, t *models.Task) error
	GetTask(ctx context.Context, tenantID, id string) (*models.Task, error)
	ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, tenantID string, t *models.Task) error
	DeleteTask(ctx context.Context, tenantID, id string) error
}

// DocumentStore manages document metadata.
type DocumentStore interface {
	CreateDocument(ctx context.Context, tenantID string, d *models.Document) error
	GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, tenantID string, f DocumentFilter) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, tenantID, id string) error
	// SignDocument records a signature once; signing twice is a conflict.
	SignDocument(ctx context.Context, tenantID, id, userID string, at time.Time) error
	DocumentBytes(ctx context.Context, tenantID string) (int64, error)
}

// InvoiceStore manages invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, tenantID string, inv *models.Invoice) error
	GetInvoice(ctx context.Context, tenantID, id string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, tenantID string, f InvoiceFilter) ([]*models.Invoice, error)
	UpdateInvoice(ctx context.Context, tenantID string, inv *models.Invoice) error
}

// CalendarStore manages calendar events.
type CalendarStore interface {
	CreateEvent(ctx context.Context, tenantID string, e *models.CalendarEvent) error
	GetEvent(ctx context.Context, tenantID, id string) (*models.CalendarEvent, error)
	ListEvents(ctx context.Context, tenantID string, f EventFilter) ([]*models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, tenantID string, e *models.CalendarEvent) error
	DeleteEvent(ctx context.Context, tenantID, id string) error
}

// AIUsageStore is the append-only AI attempt log. There is no update or
// delete.
type AIUsageStore interface {
	AppendAIUsage(ctx context.Context, rec *models.AIUsageRecord) error
	ListAIUsage(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.AIUsageRecord, error)
	CountSuccessfulAIUsage(ctx context.Context, tenantID string, since time.Time) (int64, error)
	SummarizeAIUsage(ctx context.Context, tenantID string, since time.Time) ([]UsageSummary, error)
}

// ReportStore computes read-only aggregates.
type ReportStore interface {
	PracticeSummary(ctx context.Context, tenantID string, now time.Time) (*models.PracticeSummary, error)
}

// Store is the full persistence surface.
type Store interface {
	TenantStore
	UserStore
	ClientStore
	CaseStore
	TaskStore
	DocumentStore
	InvoiceStore
	CalendarStore
	AIUsageStore
	ReportStore

	Ping(ctx context.Context) error
	Close() error
}
