package pgstore

import (
	"time"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

type tenantRow struct {
	ID            string     `gorm:"primaryKey"`
	Name          string     `gorm:"not null"`
	Tier          string     `gorm:"not null"`
	MaxUsers      int        `gorm:"not null;default:0"`
	StorageGB     int        `gorm:"column:storage_gb;not null;default:0"`
	AIActive      bool       `gorm:"column:ai_active;not null;default:false"`
	AIBillingMode string     `gorm:"column:ai_billing_mode;not null;default:fixed"`
	AIQuotaMax    int64      `gorm:"column:ai_quota_max;not null;default:0"`
	AIQuotaUsed   int64      `gorm:"column:ai_quota_used;not null;default:0"`
	AIActivatedAt *time.Time `gorm:"column:ai_activated_at"`
	AIPeriodStart time.Time  `gorm:"column:ai_period_start;not null"`
	Active        bool       `gorm:"not null;default:true"`
	CreatedAt     time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime:false"`
}

func (tenantRow) TableName() string { return "tenants" }

func tenantToRow(t *models.Tenant) *tenantRow {
	return &tenantRow{
		ID: t.ID, Name: t.Name, Tier: string(t.Tier), MaxUsers: t.MaxUsers, StorageGB: t.StorageGB,
		AIActive: t.AIActive, AIBillingMode: string(t.AIBillingMode), AIQuotaMax: t.AIQuotaMax,
		AIQuotaUsed: t.AIQuotaUsed, AIActivatedAt: millisPtr(t.AIActivatedAt), AIPeriodStart: t.AIPeriodStart,
		Active: t.Active, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (r *tenantRow) model() *models.Tenant {
	return &models.Tenant{
		ID: r.ID, Name: r.Name, Tier: licensing.Tier(r.Tier), MaxUsers: r.MaxUsers, StorageGB: r.StorageGB,
		AIActive: r.AIActive, AIBillingMode: licensing.BillingMode(r.AIBillingMode), AIQuotaMax: r.AIQuotaMax,
		AIQuotaUsed: r.AIQuotaUsed, AIActivatedAt: utcPtr(r.AIActivatedAt), AIPeriodStart: r.AIPeriodStart.UTC(),
		Active: r.Active, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type userRow struct {
	ID           string     `gorm:"primaryKey"`
	TenantID     string     `gorm:"index;not null;default:''"`
	Email        string     `gorm:"uniqueIndex;not null"`
	Name         string     `gorm:"not null;default:''"`
	PasswordHash string     `gorm:"not null;default:''"`
	Role         string     `gorm:"not null"`
	Active       bool       `gorm:"not null;default:true"`
	Theme        string     `gorm:"not null;default:system"`
	CreatedAt    time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime:false"`
	LastLoginAt  *time.Time
}

func (userRow) TableName() string { return "users" }

func userToRow(u *models.User) *userRow {
	return &userRow{
		ID: u.ID, TenantID: u.TenantID, Email: u.Email, Name: u.Name, PasswordHash: u.PasswordHash,
		Role: string(u.Role), Active: u.Active, Theme: u.Theme, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
		LastLoginAt: millisPtr(u.LastLoginAt),
	}
}

func (r *userRow) model() *models.User {
	return &models.User{
		ID: r.ID, TenantID: r.TenantID, Email: r.Email, Name: r.Name, PasswordHash: r.PasswordHash,
		Role: auth.Role(r.Role), Active: r.Active, Theme: r.Theme, CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(), LastLoginAt: utcPtr(r.LastLoginAt),
	}
}

type clientRow struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"index:idx_clients_tenant;not null"`
	Name      string `gorm:"index:idx_clients_tenant;not null"`
	Email     string
	Phone     string
	TaxID     string
	Address   string
	Notes     string
	Archived  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (clientRow) TableName() string { return "clients" }

func clientToRow(c *models.Client) *clientRow {
	return &clientRow{
		ID: c.ID, TenantID: c.TenantID, Name: c.Name, Email: c.Email, Phone: c.Phone, TaxID: c.TaxID,
		Address: c.Address, Notes: c.Notes, Archived: c.Archived, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r *clientRow) model() *models.Client {
	return &models.Client{
		ID: r.ID, TenantID: r.TenantID, Name: r.Name, Email: r.Email, Phone: r.Phone, TaxID: r.TaxID,
		Address: r.Address, Notes: r.Notes, Archived: r.Archived, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type caseRow struct {
	ID             string `gorm:"primaryKey"`
	TenantID       string `gorm:"uniqueIndex:idx_cases_tenant_number;index:idx_cases_tenant_client;not null"`
	ClientID       string `gorm:"index:idx_cases_tenant_client;not null"`
	Number         string `gorm:"uniqueIndex:idx_cases_tenant_number;not null"`
	Title          string `gorm:"not null"`
	Court          string
	Matter         string
	Status         string `gorm:"not null"`
	AssignedUserID string
	OpenedAt       time.Time `gorm:"not null"`
	ClosedAt       *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (caseRow) TableName() string { return "cases" }

func caseToRow(c *models.Case) *caseRow {
	return &caseRow{
		ID: c.ID, TenantID: c.TenantID, ClientID: c.ClientID, Number: c.Number, Title: c.Title, Court: c.Court,
		Matter: c.Matter, Status: string(c.Status), AssignedUserID: c.AssignedUserID, OpenedAt: c.OpenedAt,
		ClosedAt: millisPtr(c.ClosedAt), CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r *caseRow) model() *models.Case {
	return &models.Case{
		ID: r.ID, TenantID: r.TenantID, ClientID: r.ClientID, Number: r.Number, Title: r.Title, Court: r.Court,
		Matter: r.Matter, Status: models.CaseStatus(r.Status), AssignedUserID: r.AssignedUserID,
		OpenedAt: r.OpenedAt.UTC(), ClosedAt: utcPtr(r.ClosedAt), CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type taskRow struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"index:idx_tasks_tenant_case;not null"`
	CaseID      string `gorm:"index:idx_tasks_tenant_case"`
	Title       string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null"`
	AssigneeID  string
	DueAt       *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (taskRow) TableName() string { return "tasks" }

func taskToRow(t *models.Task) *taskRow {
	return &taskRow{
		ID: t.ID, TenantID: t.TenantID, CaseID: t.CaseID, Title: t.Title, Description: t.Description,
		Status: string(t.Status), AssigneeID: t.AssigneeID, DueAt: millisPtr(t.DueAt),
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (r *taskRow) model() *models.Task {
	return &models.Task{
		ID: r.ID, TenantID: r.TenantID, CaseID: r.CaseID, Title: r.Title, Description: r.Description,
		Status: models.TaskStatus(r.Status), AssigneeID: r.AssigneeID, DueAt: utcPtr(r.DueAt),
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type documentRow struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"index:idx_documents_tenant_case;not null"`
	CaseID      string `gorm:"index:idx_documents_tenant_case;not null"`
	Filename    string `gorm:"not null"`
	ContentType string
	SizeBytes   int64  `gorm:"not null;default:0"`
	StorageKey  string `gorm:"not null"`
	UploadedBy  string
	SignedAt    *time.Time
	SignedBy    string
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (documentRow) TableName() string { return "documents" }

func documentToRow(d *models.Document) *documentRow {
	return &documentRow{
		ID: d.ID, TenantID: d.TenantID, CaseID: d.CaseID, Filename: d.Filename, ContentType: d.ContentType,
		SizeBytes: d.SizeBytes, StorageKey: d.StorageKey, UploadedBy: d.UploadedBy, SignedAt: millisPtr(d.SignedAt),
		SignedBy: d.SignedBy, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (r *documentRow) model() *models.Document {
	return &models.Document{
		ID: r.ID, TenantID: r.TenantID, CaseID: r.CaseID, Filename: r.Filename, ContentType: r.ContentType,
		SizeBytes: r.SizeBytes, StorageKey: r.StorageKey, UploadedBy: r.UploadedBy, SignedAt: utcPtr(r.SignedAt),
		SignedBy: r.SignedBy, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type invoiceRow struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"uniqueIndex:idx_invoices_tenant_number;index:idx_invoices_tenant_client;not null"`
	ClientID    string `gorm:"index:idx_invoices_tenant_client;not null"`
	CaseID      string
	Number      string `gorm:"uniqueIndex:idx_invoices_tenant_number;not null"`
	AmountCents int64  `gorm:"not null"`
	Currency    string `gorm:"not null"`
	Status      string `gorm:"not null"`
	Electronic  bool   `gorm:"not null;default:false"`
	IssuedAt    *time.Time
	DueAt       *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (invoiceRow) TableName() string { return "invoices" }

func invoiceToRow(inv *models.Invoice) *invoiceRow {
	return &invoiceRow{
		ID: inv.ID, TenantID: inv.TenantID, ClientID: inv.ClientID, CaseID: inv.CaseID, Number: inv.Number,
		AmountCents: inv.AmountCents, Currency: inv.Currency, Status: string(inv.Status), Electronic: inv.Electronic,
		IssuedAt: millisPtr(inv.IssuedAt), DueAt: millisPtr(inv.DueAt), CreatedAt: inv.CreatedAt, UpdatedAt: inv.UpdatedAt,
	}
}

func (r *invoiceRow) model() *models.Invoice {
	return &models.Invoice{
		ID: r.ID, TenantID: r.TenantID, ClientID: r.ClientID, CaseID: r.CaseID, Number: r.Number,
		AmountCents: r.AmountCents, Currency: r.Currency, Status: models.InvoiceStatus(r.Status), Electronic: r.Electronic,
		IssuedAt: utcPtr(r.IssuedAt), DueAt: utcPtr(r.DueAt), CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type eventRow struct {
	ID        string    `gorm:"primaryKey"`
	TenantID  string    `gorm:"index:idx_events_tenant_start;not null"`
	CaseID    string
	Title     string    `gorm:"not null"`
	Kind      string    `gorm:"not null"`
	StartsAt  time.Time `gorm:"index:idx_events_tenant_start;not null"`
	EndsAt    *time.Time
	Location  string
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (eventRow) TableName() string { return "calendar_events" }

func eventToRow(e *models.CalendarEvent) *eventRow {
	return &eventRow{
		ID: e.ID, TenantID: e.TenantID, CaseID: e.CaseID, Title: e.Title, Kind: string(e.Kind), StartsAt: e.StartsAt,
		EndsAt: millisPtr(e.EndsAt), Location: e.Location, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func (r *eventRow) model() *models.CalendarEvent {
	return &models.CalendarEvent{
		ID: r.ID, TenantID: r.TenantID, CaseID: r.CaseID, Title: r.Title, Kind: models.EventKind(r.Kind),
		StartsAt: r.StartsAt.UTC(), EndsAt: utcPtr(r.EndsAt), Location: r.Location,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type aiUsageRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"index:idx_ai_usage_tenant_created;not null"`
	UserID       string `gorm:"not null"`
	Action       string `gorm:"not null"`
	Model        string
	Tokens       int64
	CostUSD      float64 `gorm:"column:cost_usd"`
	DurationMs   int64
	Success      bool `gorm:"not null"`
	ErrorMessage string
	Metadata     string    `gorm:"type:text;not null;default:'{}'"`
	CreatedAt    time.Time `gorm:"index:idx_ai_usage_tenant_created;autoCreateTime:false"`
}

func (aiUsageRow) TableName() string { return "ai_usage" }
