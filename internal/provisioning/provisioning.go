// Package provisioning creates and administers tenants and their users. It
// is shared by the platform admin API and the CLI.
package provisioning

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// Store is the persistence surface provisioning needs.
type Store interface {
	ProvisionTenant(ctx context.Context, t *models.Tenant, owner *models.User) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	CreateUser(ctx context.Context, u *models.User) error
}

// TenantSpec describes a new firm. Nil limits take the tier defaults.
type TenantSpec struct {
	Name          string
	Tier          licensing.Tier
	MaxUsers      *int
	StorageGB     *int
	AIActive      bool
	AIBillingMode licensing.BillingMode
	AIQuotaMax    *int64
	Owner         UserSpec
}

// UserSpec describes a new user.
type UserSpec struct {
	Email    string
	Name     string
	Password string
	Role     auth.Role
}

// TenantPatch changes admin-managed tenant fields. A tier change resets the
// seat and storage limits to the new tier's defaults unless the patch sets
// them explicitly.
type TenantPatch struct {
	Name      *string
	Tier      *licensing.Tier
	MaxUsers  *int
	StorageGB *int
	Active    *bool
}

// AIPatch changes the AI add-on state of a tenant.
type AIPatch struct {
	Active      *bool
	BillingMode *licensing.BillingMode
	QuotaMax    *int64
}

// Service administers tenants.
type Service struct {
	store   Store
	catalog *licensing.Catalog
	now     func() time.Time
}

// NewService creates a provisioning service. A nil catalog uses the built-in one.
func NewService(s Store, catalog *licensing.Catalog) *Service {
	if catalog == nil {
		catalog = licensing.Default()
	}
	return &Service{store: s, catalog: catalog, now: time.Now}
}

// Provision creates a tenant and its owner in one transaction.
func (s *Service) Provision(ctx context.Context, spec TenantSpec) (*models.Tenant, *models.User, error) {
	const op = "provision_tenant"

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, nil, apperrors.Invalid(op, "name is required")
	}
	caps, ok := s.catalog.CapabilitiesOf(spec.Tier)
	if !ok {
		return nil, nil, apperrors.Invalid(op, "unknown tier %q", spec.Tier)
	}
	mode := spec.AIBillingMode
	if mode == "" {
		mode = licensing.BillingFixed
	}
	if _, err := licensing.ParseBillingMode(string(mode)); err != nil {
		return nil, nil, apperrors.Invalid(op, "%v", err)
	}

	tenant := &models.Tenant{
		Name:          name,
		Tier:          spec.Tier,
		MaxUsers:      caps.MaxUsers,
		StorageGB:     caps.StorageGB,
		AIActive:      spec.AIActive,
		AIBillingMode: mode,
		AIQuotaMax:    caps.DefaultAIQuota,
		Active:        true,
	}
	if err := applyLimits(op, tenant, spec.MaxUsers, spec.StorageGB); err != nil {
		return nil, nil, err
	}
	if spec.AIQuotaMax != nil {
		if *spec.AIQuotaMax < 0 {
			return nil, nil, apperrors.Invalid(op, "ai_quota_max must not be negative")
		}
		tenant.AIQuotaMax = *spec.AIQuotaMax
	}
	if tenant.AIActive {
		now := s.now().UTC()
		tenant.AIActivatedAt = &now
	}

	ownerSpec := spec.Owner
	ownerSpec.Role = auth.RoleOwner
	owner, err := newUser(op, ownerSpec)
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.ProvisionTenant(ctx, tenant, owner); err != nil {
		logging.Audit(ctx, "tenant_provision", "failure").Err(err).
			Str("tier", string(tenant.Tier)).
			Msg("Tenant provisioning failed")
		return nil, nil, fmt.Errorf("provision tenant: %w", err)
	}

	logging.Audit(ctx, "tenant_provision", "success").
		Str("tenant_id", tenant.ID).
		Str("tier", string(tenant.Tier)).
		Str("owner_id", owner.ID).
		Bool("ai_active", tenant.AIActive).
		Msg("Tenant provisioned")
	return tenant, owner, nil
}

// Get returns a tenant or a not-found error.
func (s *Service) Get(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if t == nil {
		return nil, apperrors.NotFound("get_tenant", fmt.Errorf("tenant %q not found", id))
	}
	return t, nil
}

// List returns every tenant.
func (s *Service) List(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Update applies patch to tenant id.
func (s *Service) Update(ctx context.Context, id string, patch TenantPatch) (*models.Tenant, error) {
	const op = "update_tenant"

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := t.Tier

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.Invalid(op, "name must not be empty")
		}
		t.Name = name
	}
	if patch.Tier != nil && *patch.Tier != t.Tier {
		caps, ok := s.catalog.CapabilitiesOf(*patch.Tier)
		if !ok {
			return nil, apperrors.Invalid(op, "unknown tier %q", *patch.Tier)
		}
		t.Tier = caps.Tier
		t.MaxUsers = caps.MaxUsers
		t.StorageGB = caps.StorageGB
	}
	if err := applyLimits(op, t, patch.MaxUsers, patch.StorageGB); err != nil {
		return nil, err
	}
	if patch.Active != nil {
		t.Active = *patch.Active
	}

	if err := s.store.UpdateTenant(ctx, t); err != nil {
		logging.Audit(ctx, "tenant_update", "failure").Err(err).Str("tenant_id", id).Msg("Tenant update failed")
		return nil, fmt.Errorf("update tenant: %w", err)
	}

	e := logging.Audit(ctx, "tenant_update", "success").
		Str("tenant_id", t.ID).
		Str("tier", string(t.Tier)).
		Int("max_users", t.MaxUsers).
		Int("storage_gb", t.StorageGB).
		Bool("active", t.Active)
	if before != t.Tier {
		e = e.Str("previous_tier", string(before))
	}
	e.Msg("Tenant updated")
	return t, nil
}

// ChangeTier moves a tenant to tier with that tier's default limits.
func (s *Service) ChangeTier(ctx context.Context, id string, tier licensing.Tier) (*models.Tenant, error) {
	return s.Update(ctx, id, TenantPatch{Tier: &tier})
}

// Deactivate soft-deactivates a tenant. Its users can no longer reach any
// tenant data.
func (s *Service) Deactivate(ctx context.Context, id string) (*models.Tenant, error) {
	inactive := false
	return s.Update(ctx, id, TenantPatch{Active: &inactive})
}

// SetAI applies patch to the AI add-on of tenant id. Activation stamps the
// activation time and, when the tenant has no quota yet, assigns the tier's
// default quota.
func (s *Service) SetAI(ctx context.Context, id string, patch AIPatch) (*models.Tenant, error) {
	const op = "set_tenant_ai"

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.BillingMode != nil {
		mode, err := licensing.ParseBillingMode(string(*patch.BillingMode))
		if err != nil {
			return nil, apperrors.Invalid(op, "%v", err)
		}
		t.AIBillingMode = mode
	}
	if patch.QuotaMax != nil {
		if *patch.QuotaMax < 0 {
			return nil, apperrors.Invalid(op, "ai_quota_max must not be negative")
		}
		t.AIQuotaMax = *patch.QuotaMax
	}
	if patch.Active != nil {
		if *patch.Active && !t.AIActive {
			now := s.now().UTC()
			t.AIActivatedAt = &now
			if patch.QuotaMax == nil && t.AIQuotaMax == 0 {
				if caps, ok := s.catalog.CapabilitiesOf(t.Tier); ok {
					t.AIQuotaMax = caps.DefaultAIQuota
				}
			}
		}
		t.AIActive = *patch.Active
	}

	if err := s.store.UpdateTenant(ctx, t); err != nil {
		logging.Audit(ctx, "tenant_ai_update", "failure").Err(err).Str("tenant_id", id).Msg("AI add-on update failed")
		return nil, fmt.Errorf("update tenant ai: %w", err)
	}

	logging.Audit(ctx, "tenant_ai_update", "success").
		Str("tenant_id", t.ID).
		Bool("ai_active", t.AIActive).
		Str("billing_mode", string(t.AIBillingMode)).
		Int64("quota_max", t.AIQuotaMax).
		Msg("AI add-on updated")
	return t, nil
}

// CreateUser adds a user to tenantID. Seat limits are enforced by the store.
func (s *Service) CreateUser(ctx context.Context, tenantID string, spec UserSpec) (*models.User, error) {
	const op = "create_user"

	if spec.Role == "" {
		return nil, apperrors.Invalid(op, "role is required")
	}
	role, err := auth.ParseRole(string(spec.Role))
	if err != nil {
		return nil, apperrors.Invalid(op, "%v", err)
	}
	spec.Role = role
	u, err := newUser(op, spec)
	if err != nil {
		return nil, err
	}
	u.TenantID = tenantID

	if err := s.store.CreateUser(ctx, u); err != nil {
		logging.Audit(ctx, "user_create", "failure").Err(err).Str("tenant_id", tenantID).Msg("User creation failed")
		return nil, fmt.Errorf("create user: %w", err)
	}

	logging.Audit(ctx, "user_create", "success").
		Str("tenant_id", tenantID).
		Str("user_id", u.ID).
		Str("role", string(u.Role)).
		Msg("User created")
	return u, nil
}

func newUser(op string, spec UserSpec) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(spec.Email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, apperrors.Invalid(op, "invalid email %q", spec.Email)
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = email
	}
	if err := auth.ValidatePasswordComplexity(spec.Password); err != nil {
		return nil, apperrors.Invalid(op, "%v", err)
	}
	hash, err := auth.HashPassword(spec.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         spec.Role,
		Active:       true,
	}, nil
}

func applyLimits(op string, t *models.Tenant, maxUsers, storageGB *int) error {
	if maxUsers != nil {
		if *maxUsers < 0 {
			return apperrors.Invalid(op, "max_users must not be negative")
		}
		t.MaxUsers = *maxUsers
	}
	if storageGB != nil {
		if *storageGB < 0 {
			return apperrors.Invalid(op, "storage_gb must not be negative")
		}
		t.StorageGB = *storageGB
	}
	return nil
}
