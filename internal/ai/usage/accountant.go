// Package usage implements AI usage accounting: the append-only attempt log
// and the per-tenant quota counter.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/internal/usagefeed"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

const maxErrorMessageLen = 500

// Store is the persistence the accountant needs.
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ConsumeAIQuotaUnit(ctx context.Context, tenantID string) (int64, error)
	ResetAIQuota(ctx context.Context, tenantID string, periodStart time.Time) error
	AppendAIUsage(ctx context.Context, rec *models.AIUsageRecord) error
	ListAIUsage(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.AIUsageRecord, error)
	CountSuccessfulAIUsage(ctx context.Context, tenantID string, since time.Time) (int64, error)
	SummarizeAIUsage(ctx context.Context, tenantID string, since time.Time) ([]store.UsageSummary, error)
}

// Outcome describes one AI attempt.
type Outcome struct {
	Model        string
	Tokens       int64
	CostUSD      float64
	Duration     time.Duration
	Success      bool
	ErrorMessage string
	Metadata     map[string]string
}

// Reconciliation compares the quota counter with the attempt log for the
// current period. Drift is Counter minus LoggedSuccesses. A negative drift is
// expected when successful attempts lost the race for the last quota unit.
type Reconciliation struct {
	TenantID        string    `json:"tenant_id"`
	PeriodStart     time.Time `json:"period_start"`
	Counter         int64     `json:"counter"`
	LoggedSuccesses int64     `json:"logged_successes"`
	Drift           int64     `json:"drift"`
	Consistent      bool      `json:"consistent"`
}

// Accountant records AI attempts and meters the quota.
type Accountant struct {
	store Store
	feed  usagefeed.Publisher
	now   func() time.Time
}

// NewAccountant creates an accountant. A nil feed disables publication.
func NewAccountant(s Store, feed usagefeed.Publisher) *Accountant {
	if feed == nil {
		feed = usagefeed.Nop{}
	}
	return &Accountant{store: s, feed: feed, now: time.Now}
}

// RecordAttempt appends exactly one usage record. Failed attempts are
// recorded with zero tokens and cost and must carry an error message.
func (a *Accountant) RecordAttempt(ctx context.Context, tenantID, userID, action string, out Outcome) (*models.AIUsageRecord, error) {
	if tenantID == "" || action == "" {
		return nil, apperrors.Invalid("record_ai_attempt", "tenant and action are required")
	}
	rec := &models.AIUsageRecord{
		TenantID:   tenantID,
		UserID:     userID,
		Action:     action,
		Model:      out.Model,
		DurationMs: out.Duration.Milliseconds(),
		Success:    out.Success,
		Metadata:   out.Metadata,
		CreatedAt:  a.now().UTC(),
	}
	if out.Success {
		rec.Tokens = out.Tokens
		rec.CostUSD = out.CostUSD
	} else {
		msg := strings.TrimSpace(out.ErrorMessage)
		if msg == "" {
			return nil, apperrors.Invalid("record_ai_attempt", "failed attempt requires an error message")
		}
		rec.ErrorMessage = truncate(msg, maxErrorMessageLen)
	}

	if err := a.store.AppendAIUsage(ctx, rec); err != nil {
		return nil, fmt.Errorf("record ai attempt: %w", err)
	}

	if err := a.feed.Publish(ctx, rec); err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Str("usage_id", rec.ID).
			Msg("Usage event not published")
	}
	return rec, nil
}

// ConsumeQuotaUnit takes one unit of the tenant's AI quota and returns the
// new counter value. It is not idempotent: call it exactly once per
// successful attempt. A full quota yields an error matching
// errors.ErrQuotaExhausted.
func (a *Accountant) ConsumeQuotaUnit(ctx context.Context, tenantID string) (int64, error) {
	return a.store.ConsumeAIQuotaUnit(ctx, tenantID)
}

// QuotaStatus reads the tenant's counter.
func (a *Accountant) QuotaStatus(ctx context.Context, tenantID string) (licensing.QuotaStatus, error) {
	t, err := a.tenant(ctx, tenantID, "ai_quota_status")
	if err != nil {
		return licensing.QuotaStatus{}, err
	}
	return licensing.CheckQuota(t.QuotaState()), nil
}

// ResetPeriod zeroes the counter and starts a new accounting period now.
func (a *Accountant) ResetPeriod(ctx context.Context, tenantID string) (time.Time, error) {
	start := a.now().UTC().Truncate(time.Millisecond)
	if err := a.store.ResetAIQuota(ctx, tenantID, start); err != nil {
		return time.Time{}, fmt.Errorf("reset ai period: %w", err)
	}
	return start, nil
}

// Reconcile counts successful attempts logged since the period start and
// compares them with the counter.
func (a *Accountant) Reconcile(ctx context.Context, tenantID string) (Reconciliation, error) {
	t, err := a.tenant(ctx, tenantID, "reconcile_ai_usage")
	if err != nil {
		return Reconciliation{}, err
	}
	logged, err := a.store.CountSuccessfulAIUsage(ctx, tenantID, t.AIPeriodStart)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconcile ai usage: %w", err)
	}
	r := Reconciliation{
		TenantID:        tenantID,
		PeriodStart:     t.AIPeriodStart,
		Counter:         t.AIQuotaUsed,
		LoggedSuccesses: logged,
		Drift:           t.AIQuotaUsed - logged,
	}
	r.Consistent = r.Drift == 0
	return r, nil
}

// Summary aggregates attempts per action since the given time. A zero since
// means the tenant's current period.
func (a *Accountant) Summary(ctx context.Context, tenantID string, since time.Time) ([]store.UsageSummary, error) {
	if since.IsZero() {
		t, err := a.tenant(ctx, tenantID, "ai_usage_summary")
		if err != nil {
			return nil, err
		}
		since = t.AIPeriodStart
	}
	return a.store.SummarizeAIUsage(ctx, tenantID, since)
}

// Recent returns the newest attempts since the given time.
func (a *Accountant) Recent(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.AIUsageRecord, error) {
	return a.store.ListAIUsage(ctx, tenantID, since, limit)
}

func (a *Accountant) tenant(ctx context.Context, tenantID, op string) (*models.Tenant, error) {
	t, err := a.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t == nil {
		return nil, apperrors.NotFound(op, errors.New("tenant not found"))
	}
	return t, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
