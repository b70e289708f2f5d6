package licensing

import (
	"errors"
	"strings"
	"testing"
)

func TestIsModuleUnlocked(t *testing.T) {
	tests := []struct {
		name         string
		module       string
		state        TenantState
		wantLocked   bool
		wantCode     ReasonCode
		wantRequired Tier
	}{
		{
			// AI research needs pro, so a base tenant is blocked on rank first.
			name:         "base_ai_inactive_requests_ai_research",
			module:       ModuleAIResearch,
			state:        TenantState{Tier: TierBase, AIActive: false},
			wantLocked:   true,
			wantCode:     ReasonTierTooLow,
			wantRequired: TierPro,
		},
		{
			name:         "tier_check_wins_over_ai_check",
			module:       ModuleAIDrafting,
			state:        TenantState{Tier: TierBase, AIActive: false},
			wantLocked:   true,
			wantCode:     ReasonTierTooLow,
			wantRequired: TierPro,
		},
		{
			name:         "tier_too_low_even_with_ai_active",
			module:       ModuleAIResearch,
			state:        TenantState{Tier: TierBase, AIActive: true},
			wantLocked:   true,
			wantCode:     ReasonTierTooLow,
			wantRequired: TierPro,
		},
		{
			name:       "pro_ai_inactive",
			module:     ModuleAIResearch,
			state:      TenantState{Tier: TierPro},
			wantLocked: true,
			wantCode:   ReasonAIAddonInactive,
		},
		{
			name:   "pro_ai_active",
			module: ModuleAIDrafting,
			state:  TenantState{Tier: TierPro, AIActive: true},
		},
		{
			name:         "reports_need_enterprise",
			module:       ModuleReports,
			state:        TenantState{Tier: TierPro, AIActive: true},
			wantLocked:   true,
			wantCode:     ReasonTierTooLow,
			wantRequired: TierEnterprise,
		},
		{
			name:   "base_module_for_base",
			module: ModuleCases,
			state:  TenantState{Tier: TierBase},
		},
		{
			name:   "enterprise_everything_non_ai",
			module: ModuleEInvoicing,
			state:  TenantState{Tier: TierEnterprise},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsModuleUnlocked(tt.module, tt.state)
			if err != nil {
				t.Fatalf("IsModuleUnlocked: %v", err)
			}
			if got.Locked != tt.wantLocked {
				t.Fatalf("Locked = %v, want %v (%+v)", got.Locked, tt.wantLocked, got)
			}
			if got.ReasonCode != tt.wantCode {
				t.Errorf("ReasonCode = %q, want %q", got.ReasonCode, tt.wantCode)
			}
			if got.RequiredTier != tt.wantRequired {
				t.Errorf("RequiredTier = %q, want %q", got.RequiredTier, tt.wantRequired)
			}
			if tt.wantLocked && got.UpgradeHint == "" {
				t.Error("locked decision should carry an upgrade hint")
			}
			if !tt.wantLocked && got.Reason != "" {
				t.Errorf("unlocked decision has reason %q", got.Reason)
			}
		})
	}
}

func TestIsModuleUnlockedReasonText(t *testing.T) {
	d, err := IsModuleUnlocked(ModuleAIResearch, TenantState{Tier: TierBase})
	if err != nil {
		t.Fatal(err)
	}
	if d.Reason != "tier too low" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if !strings.Contains(d.UpgradeHint, "Upgrade to Pro") {
		t.Errorf("UpgradeHint = %q", d.UpgradeHint)
	}

	d, _ = IsModuleUnlocked(ModuleAIResearch, TenantState{Tier: TierPro})
	if d.Reason != "AI add-on not active" || !d.RequiresAI {
		t.Errorf("unexpected decision %+v", d)
	}
}

// A tier can qualify by rank yet decline a feature. The built-in catalog never
// does this, so build one that does.
func TestIsModuleUnlockedFeatureNotInTier(t *testing.T) {
	c, err := NewCatalog(
		[]TierSpec{
			{Tier: "starter", Rank: 1},
			{Tier: "plus", Rank: 2, Features: []string{"signing"}},
		},
		[]Module{{ID: "sign", Name: "Sign", MinTier: "starter", RequiredFeature: "signing", RequiresAI: true}},
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	d, err := c.IsModuleUnlocked("sign", TenantState{Tier: "starter", AIActive: false})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Locked || d.ReasonCode != ReasonFeatureNotInTier {
		t.Fatalf("decision = %+v, want feature_not_in_tier", d)
	}
	if d.RequiredTier != "" {
		t.Errorf("RequiredTier should be empty for feature lock, got %q", d.RequiredTier)
	}

	d, _ = c.IsModuleUnlocked("sign", TenantState{Tier: "plus", AIActive: false})
	if d.ReasonCode != ReasonAIAddonInactive {
		t.Fatalf("decision = %+v, want ai_addon_inactive", d)
	}
}

func TestIsModuleUnlockedErrors(t *testing.T) {
	if _, err := IsModuleUnlocked("holodeck", TenantState{Tier: TierPro}); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("unknown module error = %v", err)
	}
	if _, err := IsModuleUnlocked(ModuleCases, TenantState{}); !errors.Is(err, ErrMissingTier) {
		t.Errorf("missing tier error = %v", err)
	}
	if _, err := IsModuleUnlocked(ModuleCases, TenantState{Tier: "gold"}); !errors.Is(err, ErrMissingTier) {
		t.Errorf("unknown tier error = %v", err)
	}
}

// Property: a tier ranked below the module's minimum is locked no matter the
// feature flags or AI state.
func TestPropertyTierTooLowAlwaysLocked(t *testing.T) {
	c := Default()
	for _, m := range c.Modules() {
		minCaps, _ := c.CapabilitiesOf(m.MinTier)
		for _, tier := range c.Tiers() {
			caps, _ := c.CapabilitiesOf(tier)
			if caps.Rank >= minCaps.Rank {
				continue
			}
			for _, ai := range []bool{false, true} {
				d, err := c.IsModuleUnlocked(m.ID, TenantState{Tier: tier, AIActive: ai})
				if err != nil {
					t.Fatal(err)
				}
				if !d.Locked || d.ReasonCode != ReasonTierTooLow {
					t.Errorf("%s/%s ai=%v: decision %+v", m.ID, tier, ai, d)
				}
			}
		}
	}
}

// Property: at or above the minimum tier, an AI module is unlocked iff the
// add-on is active.
func TestPropertyAIModulesFollowAddon(t *testing.T) {
	c := Default()
	for _, m := range c.Modules() {
		if !m.RequiresAI {
			continue
		}
		minCaps, _ := c.CapabilitiesOf(m.MinTier)
		for _, tier := range c.Tiers() {
			caps, _ := c.CapabilitiesOf(tier)
			if caps.Rank < minCaps.Rank {
				continue
			}
			if m.RequiredFeature != "" && !caps.Has(m.RequiredFeature) {
				continue
			}
			on, _ := c.IsModuleUnlocked(m.ID, TenantState{Tier: tier, AIActive: true})
			off, _ := c.IsModuleUnlocked(m.ID, TenantState{Tier: tier, AIActive: false})
			if on.Locked || !off.Locked {
				t.Errorf("%s/%s: on=%+v off=%+v", m.ID, tier, on, off)
			}
		}
	}
}

func TestGenerateUpgradeReasons(t *testing.T) {
	decisions := []Decision{
		{Module: ModuleReports, Locked: true},
		{Module: ModuleAIResearch, Locked: true},
		{Module: ModuleCases, Locked: false},
		{Module: ModuleTeam, Locked: true},
	}
	got := GenerateUpgradeReasons(decisions)
	if len(got) != 2 {
		t.Fatalf("got %d reasons, want 2: %+v", len(got), got)
	}
	if got[0].Module != ModuleAIResearch || got[1].Module != ModuleReports {
		t.Errorf("unexpected order: %+v", got)
	}
}
