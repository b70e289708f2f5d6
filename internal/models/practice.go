package models

import "time"

// Client is a person or company the firm represents.
type Client struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	TaxID     string    `json:"tax_id,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseOpen      CaseStatus = "open"
	CaseSuspended CaseStatus = "suspended"
	CaseClosed    CaseStatus = "closed"
)

// Case is an expediente: a matter handled for a client.
type Case struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	ClientID       string     `json:"client_id"`
	Number         string     `json:"number"`
	Title          string     `json:"title"`
	Court          string     `json:"court,omitempty"`
	Matter         string     `json:"matter,omitempty"`
	Status         CaseStatus `json:"status"`
	AssignedUserID string     `json:"assigned_user_id,omitempty"`
	OpenedAt       time.Time  `json:"opened_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskStatus is the progress of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Task is a to-do item, optionally attached to a case.
type Task struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	CaseID      string     `json:"case_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Document is the metadata of an uploaded file. The bytes live in blob
// storage under StorageKey.
type Document struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	CaseID      string     `json:"case_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	StorageKey  string     `json:"-"`
	UploadedBy  string     `json:"uploaded_by"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	SignedBy    string     `json:"signed_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// InvoiceStatus is the billing state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceVoid   InvoiceStatus = "void"
)

// Invoice bills a client, optionally for a specific case.
type Invoice struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	ClientID    string        `json:"client_id"`
	CaseID      string        `json:"case_id,omitempty"`
	Number      string        `json:"number"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Status      InvoiceStatus `json:"status"`
	Electronic  bool          `json:"electronic"`
	IssuedAt    *time.Time    `json:"issued_at,omitempty"`
	DueAt       *time.Time    `json:"due_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// EventKind classifies calendar entries.
type EventKind string

const (
	EventHearing  EventKind = "hearing"
	EventMeeting  EventKind = "meeting"
	EventDeadline EventKind = "deadline"
)

// CalendarEvent is a hearing, meeting or deadline.
type CalendarEvent struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	CaseID    string     `json:"case_id,omitempty"`
	Title     string     `json:"title"`
	Kind      EventKind  `json:"kind"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Location  string     `json:"location,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PracticeSummary feeds the BI reports module.
type PracticeSummary struct {
	CasesByStatus    map[CaseStatus]int    `json:"cases_by_status"`
	InvoicesByStatus map[InvoiceStatus]int `json:"invoices_by_status"`
	BilledCents      int64                 `json:"billed_cents"`
	PaidCents        int64                 `json:"paid_cents"`
	OpenTasks        int                   `json:"open_tasks"`
	ActiveClients    int                   `json:"active_clients"`
	DocumentBytes    int64                 `json:"document_bytes"`
	UpcomingHearings int                   `json:"upcoming_hearings"`
	GeneratedAt      time.Time             `json:"generated_at"`
}
