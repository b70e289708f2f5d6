package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenovalaw/xenova/internal/blob"
	"github.com/xenovalaw/xenova/internal/config"
	"github.com/xenovalaw/xenova/internal/metrics"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/ratelimit"
	"github.com/xenovalaw/xenova/internal/usagefeed"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:         t.TempDir(),
		DatabaseDriver:  config.DriverSQLite,
		DocumentStorage: config.StorageLocal,
		LoginRateLimit:  5,
		APIRateLimit:    100,
		RateLimitWindow: time.Minute,
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	assert.FileExists(t, cfg.SQLitePath())
}

func TestOpenBlobStoreLocal(t *testing.T) {
	cfg := testConfig(t)
	s, err := OpenBlobStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &blob.LocalStore{}, s)
	assert.DirExists(t, cfg.DocumentsDir())
}

func TestOpenLimitersMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIRateLimit = 0

	set, err := openLimiters(cfg)
	require.NoError(t, err)
	defer set.close()

	assert.IsType(t, &ratelimit.MemoryLimiter{}, set.login)
	assert.Nil(t, set.api)
	assert.Len(t, set.background, 1)
	assert.Empty(t, set.closers)
}

func TestOpenLimitersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()

	set, err := openLimiters(cfg)
	require.NoError(t, err)
	defer set.close()

	require.IsType(t, &ratelimit.RedisLimiter{}, set.login)
	require.IsType(t, &ratelimit.RedisLimiter{}, set.api)
	assert.Empty(t, set.background)
	assert.Len(t, set.closers, 2)

	ok, err := set.login.Allow(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenLimitersBadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "not a url"
	_, err := openLimiters(cfg)
	assert.Error(t, err)
}

func TestOpenUsageFeedDisabled(t *testing.T) {
	feed, err := openUsageFeed(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, usagefeed.Nop{}, feed)
}

type staticTenants struct {
	tenants []*models.Tenant
	err     error
}

func (s staticTenants) ListTenants(context.Context) ([]*models.Tenant, error) {
	return s.tenants, s.err
}

func TestUpdateTenantGauge(t *testing.T) {
	lister := staticTenants{tenants: []*models.Tenant{
		{ID: "t1", Tier: licensing.TierBase, Active: true},
		{ID: "t2", Tier: licensing.TierPro, Active: true},
		{ID: "t3", Tier: licensing.TierPro, Active: true},
		{ID: "t4", Tier: licensing.TierEnterprise, Active: false},
	}}
	updateTenantGauge(context.Background(), lister)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TenantsByTier.WithLabelValues("base")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TenantsByTier.WithLabelValues("pro")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.TenantsByTier.WithLabelValues("enterprise")))

	// A failed listing keeps the last values.
	updateTenantGauge(context.Background(), staticTenants{err: errors.New("database is locked")})
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TenantsByTier.WithLabelValues("pro")))
}

func TestTrackTenantsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trackTenants(ctx, staticTenants{}, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("trackTenants did not stop after cancel")
	}
}
