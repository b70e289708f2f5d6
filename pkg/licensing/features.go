// Package licensing defines XenovaLaw subscription tiers, the features each
// tier grants, and the module catalog gated by them.
//
// The catalog is immutable after package initialisation. Request paths read it
// through CapabilitiesOf and IsModuleUnlocked and never mutate it.
package licensing

import (
	"fmt"
	"strings"
)

// Feature constants represent gated features in XenovaLaw.
const (
	// Base tier features
	FeatureCaseManagement  = "case_management"  // Expedientes and their client records
	FeatureDocumentStorage = "document_storage" // Document upload and download
	FeatureCalendar        = "calendar"         // Hearings, meetings and deadlines
	FeatureBilling         = "billing"          // Invoices

	// Pro tier features (everything in Base, plus:)
	FeatureEInvoicing = "e_invoicing" // Electronic invoice issuance
	FeatureESignature = "e_signature" // Document e-signature
	FeatureAIDrafting = "ai_drafting" // AI-assisted drafting (still needs the AI add-on)

	// Enterprise tier features (everything in Pro, plus:)
	FeatureBIReporting     = "bi_reporting"
	FeaturePrioritySupport = "priority_support"
)

// Tier represents a subscription tier.
type Tier string

const (
	TierBase       Tier = "base"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// TierSpec is the static definition of one tier used to build a Catalog.
type TierSpec struct {
	Tier        Tier
	Rank        int
	DisplayName string
	// MaxUsers of 0 means unlimited seats.
	MaxUsers       int
	StorageGB      int
	DefaultAIQuota int64
	Features       []string
}

var baseFeatures = []string{
	FeatureCaseManagement,
	FeatureDocumentStorage,
	FeatureCalendar,
	FeatureBilling,
}

var proFeatures = appendFeatures(baseFeatures,
	FeatureEInvoicing,
	FeatureESignature,
	FeatureAIDrafting,
)

var enterpriseFeatures = appendFeatures(proFeatures,
	FeatureBIReporting,
	FeaturePrioritySupport,
)

// appendFeatures returns a new slice with extra features appended (no mutation).
func appendFeatures(base []string, extra ...string) []string {
	result := make([]string, len(base), len(base)+len(extra))
	copy(result, base)
	return append(result, extra...)
}

var defaultTiers = []TierSpec{
	{Tier: TierBase, Rank: 1, DisplayName: "Base", MaxUsers: 3, StorageGB: 10, DefaultAIQuota: 100, Features: baseFeatures},
	{Tier: TierPro, Rank: 2, DisplayName: "Pro", MaxUsers: 10, StorageGB: 100, DefaultAIQuota: 500, Features: proFeatures},
	{Tier: TierEnterprise, Rank: 3, DisplayName: "Enterprise", MaxUsers: 0, StorageGB: 1000, DefaultAIQuota: 2000, Features: enterpriseFeatures},
}

// ParseTier normalises a tier identifier and checks it against the default catalog.
func ParseTier(s string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultCatalog.tiers[tier]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return tier, nil
}

// GetTierDisplayName returns a human-readable name for the tier.
func GetTierDisplayName(tier Tier) string {
	if caps, ok := defaultCatalog.tiers[tier]; ok {
		return caps.DisplayName
	}
	return "Unknown"
}

// GetFeatureDisplayName returns a human-readable name for a feature.
func GetFeatureDisplayName(feature string) string {
	switch feature {
	case FeatureCaseManagement:
		return "Case Management"
	case FeatureDocumentStorage:
		return "Document Storage"
	case FeatureCalendar:
		return "Calendar & Hearings"
	case FeatureBilling:
		return "Billing"
	case FeatureEInvoicing:
		return "Electronic Invoicing"
	case FeatureESignature:
		return "E-Signature"
	case FeatureAIDrafting:
		return "AI-Assisted Drafting"
	case FeatureBIReporting:
		return "BI Reporting"
	case FeaturePrioritySupport:
		return "Priority Support"
	default:
		return feature
	}
}
