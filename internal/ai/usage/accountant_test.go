package usage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

type capturePublisher struct {
	mu   sync.Mutex
	recs []*models.AIUsageRecord
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, rec *models.AIUsageRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func newTestAccountant(t *testing.T) (*Accountant, *store.SQLiteStore, *capturePublisher) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "xenova.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	feed := &capturePublisher{}
	return NewAccountant(s, feed), s, feed
}

func newTenant(t *testing.T, s store.Store, mode licensing.BillingMode, quotaMax int64) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:          "Estudio Ruiz",
		Tier:          licensing.TierPro,
		MaxUsers:      10,
		StorageGB:     100,
		AIActive:      true,
		AIBillingMode: mode,
		AIQuotaMax:    quotaMax,
		Active:        true,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func TestRecordAttemptSuccess(t *testing.T) {
	acct, s, feed := newTestAccountant(t)
	ctx := context.Background()
	tenant := newTenant(t, s, licensing.BillingFixed, 10)

	rec, err := acct.RecordAttempt(ctx, tenant.ID, "u-1", "research", Outcome{
		Model:    "claude-sonnet-4",
		Tokens:   1200,
		CostUSD:  0.012,
		Duration: 1500 * time.Millisecond,
		Success:  true,
		Metadata: map[string]string{"case_id": "c-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(1500), rec.DurationMs)

	recent, err := acct.Recent(ctx, tenant.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(1200), recent[0].Tokens)
	assert.Equal(t, "c-1", recent[0].Metadata["case_id"])

	require.Len(t, feed.recs, 1)
	assert.Equal(t, rec.ID, feed.recs[0].ID)
}

func TestRecordAttemptFailureZeroesUsage(t *testing.T) {
	acct, s, _ := newTestAccountant(t)
	ctx := context.Background()
	tenant := newTenant(t, s, licensing.BillingFixed, 10)

	rec, err := acct.RecordAttempt(ctx, tenant.ID, "u-1", "draft", Outcome{
		Model:        "claude-sonnet-4",
		Tokens:       999,
		CostUSD:      1.5,
		Success:      false,
		ErrorMessage: "API error (500): overloaded",
	})
	require.NoError(t, err)
	assert.Zero(t, rec.Tokens)
	assert.Zero(t, rec.CostUSD)
	assert.Equal(t, "API error (500): overloaded", rec.ErrorMessage)

	_, err = acct.RecordAttempt(ctx, tenant.ID, "u-1", "draft", Outcome{Success: false})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// Failures never touch the counter.
	status, err := acct.QuotaStatus(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Used)
}

func TestRecordAttemptTruncatesOnRuneBoundary(t *testing.T) {
	acct, s, _ := newTestAccountant(t)
	tenant := newTenant(t, s, licensing.BillingFixed, 10)

	msg := "x" + strings.Repeat("é", 300)
	rec, err := acct.RecordAttempt(context.Background(), tenant.ID, "u-1", "research", Outcome{
		Success:      false,
		ErrorMessage: msg,
	})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(rec.ErrorMessage))
	assert.Len(t, rec.ErrorMessage, maxErrorMessageLen-1)
	assert.True(t, strings.HasPrefix(msg, rec.ErrorMessage))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "", truncate("é", 1))
}

func TestRecordAttemptPublishFailureIgnored(t *testing.T) {
	acct, s, feed := newTestAccountant(t)
	feed.err = errors.New("queue full")
	tenant := newTenant(t, s, licensing.BillingFixed, 10)

	_, err := acct.RecordAttempt(context.Background(), tenant.ID, "u-1", "research", Outcome{Success: true, Tokens: 5})
	require.NoError(t, err)
}

func TestConsumeQuotaUnitFixed(t *testing.T) {
	acct, s, _ := newTestAccountant(t)
	ctx := context.Background()
	tenant := newTenant(t, s, licensing.BillingFixed, 3)

	for i := int64(1); i <= 3; i++ {
		used, err := acct.ConsumeQuotaUnit(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, i, used)
	}

	_, err := acct.ConsumeQuotaUnit(ctx, tenant.ID)
	require.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
	details := apperrors.DetailsOf(err)
	assert.EqualValues(t, 3, details["used"])
	assert.EqualValues(t, 3, details["max"])

	status, err := acct.QuotaStatus(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, status.Exhausted)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, int64(0), *status.Remaining)
}

func TestConsumeQuotaUnitConcurrent(t *testing.T) {
	acct, s, _ := newTestAccountant(t)
	ctx := context.Background()
	const quota, workers = 7, 25
	tenant := newTenant(t, s, licensing.BillingFixed, quota)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		exhausted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := acct.ConsumeQuotaUnit(ctx, tenant.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrQuotaExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota, successes)
	assert.Equal(t, workers-quota, exhausted)
	status, err := acct.QuotaStatus(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(quota), status.Used)
}

func TestConsumeQuotaUnitPayPerUse(t *testing.T) {
	acct, s, _ := newTestAccountant(t)
	ctx := context.Background()
	tenant := newTenant(t, s, licensing.BillingPayPerUse, 0)

	for i := 0; i < 5; i++ {
		_, err := acct.ConsumeQuotaUnit(ctx, tenant.ID)
		require.NoError(t, err)
	}
	status, err := acct.QuotaStatus(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, licensing.BillingPayPerUse, status.BillingMode)
	assert.Equal(t, int64(5), status.Used)
	assert.Nil(t, status.Max)
	assert.Nil(t, status.Remaining)
	assert.False(t, status.Exhausted)
}

func TestQuotaStatusUnknownTenant(t *testing.T) {
	acct, _, _ := newTestAccountant(t)
	_, err := acct.QuotaStatus(context.Background(), "t-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = acct.ConsumeQuotaUnit(context.Background(), "t-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResetPeriodAndReconcile(t *testing.T) {
	acct, s, _ := newTestAccountant(t)
	ctx := context.Background()
	tenant := newTenant(t, s, licensing.BillingFixed, 10)

	for i := 0; i < 3; i++ {
		_, err := acct.RecordAttempt(ctx, tenant.ID, "u-1", "research", Outcome{Success: true, Tokens: 10})
		require.NoError(t, err)
		_, err = acct.ConsumeQuotaUnit(ctx, tenant.ID)
		require.NoError(t, err)
	}
	_, err := acct.RecordAttempt(ctx, tenant.ID, "u-1", "research", Outcome{ErrorMessage: "timeout"})
	require.NoError(t, err)

	rec, err := acct.Reconcile(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Counter)
	assert.Equal(t, int64(3), rec.LoggedSuccesses)
	assert.True(t, rec.Consistent)

	// A success whose unit was lost to a concurrent request shows as drift.
	_, err = acct.RecordAttempt(ctx, tenant.ID, "u-1", "research", Outcome{Success: true, Tokens: 10})
	require.NoError(t, err)
	rec, err = acct.Reconcile(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), rec.Drift)
	assert.False(t, rec.Consistent)

	summary, err := acct.Summary(ctx, tenant.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "research", summary[0].Action)
	assert.Equal(t, int64(5), summary[0].Attempts)
	assert.Equal(t, int64(4), summary[0].Successes)
	assert.Equal(t, int64(40), summary[0].Tokens)

	acct.now = func() time.Time { return time.Now().Add(time.Second) }
	start, err := acct.ResetPeriod(ctx, tenant.ID)
	require.NoError(t, err)

	status, err := acct.QuotaStatus(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Used)

	rec, err = acct.Reconcile(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, rec.PeriodStart.Equal(start))
	assert.Zero(t, rec.LoggedSuccesses)
	assert.True(t, rec.Consistent)

	_, err = acct.ResetPeriod(ctx, "t-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
