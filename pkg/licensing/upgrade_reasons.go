package licensing

import (
	"fmt"
	"sort"
)

// ReasonEntry defines an actionable upgrade prompt tied to a locked module.
type ReasonEntry struct {
	Module   string `json:"module"`
	Reason   string `json:"reason"`
	Priority int    `json:"priority"` // lower = more important
}

// UpgradeReasonMatrix is the module-to-upgrade-pitch mapping shown next to
// locked navigation entries.
var UpgradeReasonMatrix = []ReasonEntry{
	{
		Module:   ModuleAIResearch,
		Reason:   "Research case law and doctrine in seconds and attach the findings to the case file.",
		Priority: 1,
	},
	{
		Module:   ModuleAIDrafting,
		Reason:   "Draft briefs, contracts and letters from your case data with AI assistance.",
		Priority: 2,
	},
	{
		Module:   ModuleEInvoicing,
		Reason:   "Issue tax-compliant electronic invoices straight from your billing records.",
		Priority: 3,
	},
	{
		Module:   ModuleESignature,
		Reason:   "Collect legally binding e-signatures on documents without leaving the case.",
		Priority: 4,
	},
	{
		Module:   ModuleReports,
		Reason:   "Track caseload, billing and team performance with BI dashboards.",
		Priority: 5,
	},
}

// UpgradeHint renders the user-facing prompt for a locked module. It names
// the blocking condition and appends the module pitch when one exists.
func (c *Catalog) UpgradeHint(module Module, code ReasonCode) string {
	var hint string
	switch code {
	case ReasonTierTooLow:
		hint = fmt.Sprintf("Upgrade to %s to unlock %s.", c.displayName(module.MinTier), module.Name)
	case ReasonFeatureNotInTier:
		hint = fmt.Sprintf("%s is not included in your plan.", GetFeatureDisplayName(module.RequiredFeature))
		if tier, ok := c.FeatureMinTier(module.RequiredFeature); ok {
			hint = fmt.Sprintf("%s Available from %s.", hint, c.displayName(tier))
		}
	case ReasonAIAddonInactive:
		hint = fmt.Sprintf("Activate the AI add-on to use %s.", module.Name)
	default:
		return ""
	}
	for _, entry := range UpgradeReasonMatrix {
		if entry.Module == module.ID {
			return hint + " " + entry.Reason
		}
	}
	return hint
}

func (c *Catalog) displayName(tier Tier) string {
	if caps, ok := c.tiers[tier]; ok && caps.DisplayName != "" {
		return caps.DisplayName
	}
	return string(tier)
}

// GenerateUpgradeReasons returns the upgrade pitches for the locked decisions,
// most important first.
func GenerateUpgradeReasons(decisions []Decision) []ReasonEntry {
	locked := make(map[string]struct{}, len(decisions))
	for _, d := range decisions {
		if d.Locked {
			locked[d.Module] = struct{}{}
		}
	}

	reasons := make([]ReasonEntry, 0, len(locked))
	for _, entry := range UpgradeReasonMatrix {
		if _, ok := locked[entry.Module]; ok {
			reasons = append(reasons, entry)
		}
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		if reasons[i].Priority == reasons[j].Priority {
			return reasons[i].Module < reasons[j].Module
		}
		return reasons[i].Priority < reasons[j].Priority
	})

	return reasons
}
