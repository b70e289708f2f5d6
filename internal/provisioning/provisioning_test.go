package provisioning

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func TestMain(m *testing.M) {
	auth.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func newService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "xenova.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s, nil), s
}

func owner(email string) UserSpec {
	return UserSpec{Email: email, Name: "Owner", Password: "correct-horse-battery"}
}

func TestProvisionUsesTierDefaults(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	tenant, user, err := svc.Provision(ctx, TenantSpec{Name: "  Estudio Ruiz ", Tier: licensing.TierPro, Owner: owner("Ana@Example.com")})
	require.NoError(t, err)

	assert.Equal(t, "Estudio Ruiz", tenant.Name)
	assert.Equal(t, 10, tenant.MaxUsers)
	assert.Equal(t, 100, tenant.StorageGB)
	assert.Equal(t, int64(500), tenant.AIQuotaMax)
	assert.Equal(t, licensing.BillingFixed, tenant.AIBillingMode)
	assert.False(t, tenant.AIActive)
	assert.Nil(t, tenant.AIActivatedAt)
	assert.True(t, tenant.Active)

	assert.Equal(t, tenant.ID, user.TenantID)
	assert.Equal(t, auth.RoleOwner, user.Role)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.True(t, auth.CheckPasswordHash("correct-horse-battery", user.PasswordHash))

	stored, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.MaxUsers)
}

func TestProvisionOverrides(t *testing.T) {
	svc, _ := newService(t)
	seats, storage := 25, 0
	quota := int64(40)

	tenant, _, err := svc.Provision(context.Background(), TenantSpec{
		Name: "Estudio Vega", Tier: licensing.TierBase,
		MaxUsers: &seats, StorageGB: &storage, AIQuotaMax: &quota,
		AIActive: true, AIBillingMode: licensing.BillingPayPerUse,
		Owner: owner("vega@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, 25, tenant.MaxUsers)
	assert.Equal(t, 0, tenant.StorageGB)
	assert.Equal(t, int64(40), tenant.AIQuotaMax)
	assert.Equal(t, licensing.BillingPayPerUse, tenant.AIBillingMode)
	assert.NotNil(t, tenant.AIActivatedAt)
}

func TestProvisionValidation(t *testing.T) {
	svc, _ := newService(t)
	negative := -1

	tests := []struct {
		name string
		spec TenantSpec
	}{
		{"missing name", TenantSpec{Tier: licensing.TierBase, Owner: owner("a@example.com")}},
		{"unknown tier", TenantSpec{Name: "x", Tier: "platinum", Owner: owner("a@example.com")}},
		{"bad billing mode", TenantSpec{Name: "x", Tier: licensing.TierBase, AIBillingMode: "monthly", Owner: owner("a@example.com")}},
		{"negative seats", TenantSpec{Name: "x", Tier: licensing.TierBase, MaxUsers: &negative, Owner: owner("a@example.com")}},
		{"bad email", TenantSpec{Name: "x", Tier: licensing.TierBase, Owner: owner("not-an-email")}},
		{"weak password", TenantSpec{Name: "x", Tier: licensing.TierBase, Owner: UserSpec{Email: "a@example.com", Password: "short"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Provision(context.Background(), tt.spec)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestProvisionDuplicateOwnerEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _, err := svc.Provision(ctx, TenantSpec{Name: "A", Tier: licensing.TierBase, Owner: owner("dup@example.com")})
	require.NoError(t, err)
	_, _, err = svc.Provision(ctx, TenantSpec{Name: "B", Tier: licensing.TierBase, Owner: owner("DUP@example.com")})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestChangeTierResetsLimits(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tenant, _, err := svc.Provision(ctx, TenantSpec{Name: "A", Tier: licensing.TierBase, Owner: owner("a@example.com")})
	require.NoError(t, err)
	require.Equal(t, 3, tenant.MaxUsers)

	updated, err := svc.ChangeTier(ctx, tenant.ID, licensing.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, licensing.TierEnterprise, updated.Tier)
	assert.Equal(t, 0, updated.MaxUsers)
	assert.Equal(t, 1000, updated.StorageGB)

	// Explicit limits in the same patch win over tier defaults.
	tier, seats := licensing.TierPro, 4
	updated, err = svc.Update(ctx, tenant.ID, TenantPatch{Tier: &tier, MaxUsers: &seats})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.MaxUsers)
	assert.Equal(t, 100, updated.StorageGB)

	_, err = svc.ChangeTier(ctx, tenant.ID, "platinum")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.ChangeTier(ctx, "t-missing", licensing.TierPro)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	tenant, _, err := svc.Provision(ctx, TenantSpec{Name: "A", Tier: licensing.TierBase, Owner: owner("a@example.com")})
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, tenant.ID)
	require.NoError(t, err)
	stored, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestSetAI(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	zero := int64(0)
	tenant, _, err := svc.Provision(ctx, TenantSpec{Name: "A", Tier: licensing.TierPro, AIQuotaMax: &zero, Owner: owner("a@example.com")})
	require.NoError(t, err)

	on := true
	updated, err := svc.SetAI(ctx, tenant.ID, AIPatch{Active: &on})
	require.NoError(t, err)
	assert.True(t, updated.AIActive)
	assert.NotNil(t, updated.AIActivatedAt)
	assert.Equal(t, int64(500), updated.AIQuotaMax, "activation assigns the tier default quota")

	mode := licensing.BillingPayPerUse
	quota := int64(50)
	updated, err = svc.SetAI(ctx, tenant.ID, AIPatch{BillingMode: &mode, QuotaMax: &quota})
	require.NoError(t, err)
	assert.Equal(t, licensing.BillingPayPerUse, updated.AIBillingMode)
	assert.Equal(t, int64(50), updated.AIQuotaMax)

	bad := licensing.BillingMode("monthly")
	_, err = svc.SetAI(ctx, tenant.ID, AIPatch{BillingMode: &bad})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateUserSeatLimit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	seats := 2
	tenant, _, err := svc.Provision(ctx, TenantSpec{Name: "A", Tier: licensing.TierBase, MaxUsers: &seats, Owner: owner("a@example.com")})
	require.NoError(t, err)

	u, err := svc.CreateUser(ctx, tenant.ID, UserSpec{Email: "b@example.com", Password: "correct-horse-battery", Role: "Lawyer"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleLawyer, u.Role)
	assert.Equal(t, tenant.ID, u.TenantID)

	_, err = svc.CreateUser(ctx, tenant.ID, UserSpec{Email: "c@example.com", Password: "correct-horse-battery", Role: auth.RoleAssistant})
	assert.ErrorIs(t, err, apperrors.ErrLimitReached)

	_, err = svc.CreateUser(ctx, tenant.ID, UserSpec{Email: "d@example.com", Password: "correct-horse-battery", Role: "partner"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
