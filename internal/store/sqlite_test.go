package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/internal/store/storetest"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "xenova.db"))
	require.NoError(t, err)
	return s
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newSQLiteStore(t)
	})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "xenova.db")

	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	tn := &models.Tenant{Name: "Estudio", Tier: licensing.TierBase, MaxUsers: 3, Active: true}
	require.NoError(t, s.CreateTenant(ctx, tn))
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Estudio", got.Name)
	require.NoError(t, s.Ping(ctx))
}

func TestSQLiteClockTruncatesToMillis(t *testing.T) {
	s := newSQLiteStore(t)
	t.Cleanup(func() { _ = s.Close() })

	fixed := time.Date(2026, 3, 4, 5, 6, 7, 891234567, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	tn := &models.Tenant{Name: "Estudio", Tier: licensing.TierPro, MaxUsers: 10, Active: true}
	require.NoError(t, s.CreateTenant(context.Background(), tn))
	assert.Equal(t, fixed.Truncate(time.Millisecond), tn.CreatedAt)
	assert.Equal(t, fixed.Truncate(time.Millisecond), tn.AIPeriodStart)

	got, err := s.GetTenant(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(tn.CreatedAt))
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, store.Page{Limit: 100}, store.Page{}.Normalize())
	assert.Equal(t, store.Page{Limit: 500, Offset: 0}, store.Page{Limit: 10000, Offset: -3}.Normalize())
	assert.Equal(t, store.Page{Limit: 20, Offset: 40}, store.Page{Limit: 20, Offset: 40}.Normalize())
}
