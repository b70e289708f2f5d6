package licensing

import (
	"errors"
	"fmt"
)

// ReasonCode identifies the first check that locked a module.
type ReasonCode string

const (
	ReasonTierTooLow       ReasonCode = "tier_too_low"
	ReasonFeatureNotInTier ReasonCode = "feature_not_in_tier"
	ReasonAIAddonInactive  ReasonCode = "ai_addon_inactive"
)

var reasonText = map[ReasonCode]string{
	ReasonTierTooLow:       "tier too low",
	ReasonFeatureNotInTier: "feature not in tier",
	ReasonAIAddonInactive:  "AI add-on not active",
}

var (
	// ErrUnknownModule means a caller asked about a module the catalog does not define.
	ErrUnknownModule = errors.New("unknown module")
	// ErrMissingTier means tenant state carried no tier, or one the catalog does not define.
	ErrMissingTier = errors.New("tenant state has no valid tier")
)

// TenantState is the slice of tenant data the resolver needs.
type TenantState struct {
	Tier     Tier
	AIActive bool
}

// Decision is a per-request entitlement result. It is never cached.
type Decision struct {
	Module       string     `json:"module"`
	Locked       bool       `json:"locked"`
	Reason       string     `json:"reason,omitempty"`
	ReasonCode   ReasonCode `json:"reason_code,omitempty"`
	RequiredTier Tier       `json:"required_tier,omitempty"`
	RequiresAI   bool       `json:"requires_ai,omitempty"`
	UpgradeHint  string     `json:"upgrade_hint,omitempty"`
}

// IsModuleUnlocked evaluates moduleID against the built-in catalog.
func IsModuleUnlocked(moduleID string, state TenantState) (Decision, error) {
	return defaultCatalog.IsModuleUnlocked(moduleID, state)
}

// IsModuleUnlocked decides whether state may use moduleID. Checks run in a
// fixed order (tier rank, tier feature, AI add-on) and the first failing
// check names the reason. A locked module is a normal result; errors are
// returned only for unknown modules or tenant state without a known tier.
func (c *Catalog) IsModuleUnlocked(moduleID string, state TenantState) (Decision, error) {
	module, ok := c.modules[moduleID]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownModule, moduleID)
	}
	caps, ok := c.tiers[state.Tier]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrMissingTier, state.Tier)
	}

	decision := Decision{Module: module.ID, RequiresAI: module.RequiresAI}

	if caps.Rank < c.tiers[module.MinTier].Rank {
		decision.RequiredTier = module.MinTier
		return c.lock(decision, module, ReasonTierTooLow), nil
	}
	if module.RequiredFeature != "" && !caps.Features[module.RequiredFeature] {
		return c.lock(decision, module, ReasonFeatureNotInTier), nil
	}
	if module.RequiresAI && !state.AIActive {
		return c.lock(decision, module, ReasonAIAddonInactive), nil
	}
	return decision, nil
}

func (c *Catalog) lock(d Decision, module Module, code ReasonCode) Decision {
	d.Locked = true
	d.ReasonCode = code
	d.Reason = reasonText[code]
	d.UpgradeHint = c.UpgradeHint(module, code)
	return d
}
