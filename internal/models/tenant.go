// Package models holds the persisted record types shared by the store
// backends and the API.
package models

import (
	"time"

	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// Tenant is a law firm account ("estudio"), the unit of data isolation.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Tier      licensing.Tier `json:"tier"`
	MaxUsers  int            `json:"max_users"` // 0 = unlimited
	StorageGB int            `json:"storage_gb"`

	AIActive      bool                  `json:"ai_active"`
	AIBillingMode licensing.BillingMode `json:"ai_billing_mode"`
	AIQuotaMax    int64                 `json:"ai_quota_max"`
	// AIQuotaUsed is only ever changed by the store's atomic consume and reset.
	AIQuotaUsed   int64      `json:"ai_quota_used"`
	AIActivatedAt *time.Time `json:"ai_activated_at,omitempty"`
	AIPeriodStart time.Time  `json:"ai_period_start"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntitlementState is the resolver input derived from the tenant record.
func (t *Tenant) EntitlementState() licensing.TenantState {
	return licensing.TenantState{Tier: t.Tier, AIActive: t.AIActive}
}

// QuotaState is the quota sub-check input derived from the tenant record.
func (t *Tenant) QuotaState() licensing.QuotaState {
	return licensing.QuotaState{Mode: t.AIBillingMode, Used: t.AIQuotaUsed, Max: t.AIQuotaMax}
}

// StorageLimitBytes returns the storage allowance in bytes, 0 when unlimited.
func (t *Tenant) StorageLimitBytes() int64 {
	if t.StorageGB <= 0 {
		return 0
	}
	return int64(t.StorageGB) << 30
}

// User is a person who signs in. TenantID is empty for an identity that has
// not been attached to a firm; such a user can reach no tenant data.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	Active       bool       `json:"active"`
	Theme        string     `json:"theme"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Themes accepted as user preferences.
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// AIUsageRecord is one append-only row per AI invocation attempt.
type AIUsageRecord struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	UserID       string            `json:"user_id"`
	Action       string            `json:"action"`
	Model        string            `json:"model"`
	Tokens       int64             `json:"tokens"`
	CostUSD      float64           `json:"cost_usd"`
	DurationMs   int64             `json:"duration_ms"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
