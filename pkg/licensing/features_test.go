package licensing

import (
	"sort"
	"strings"
	"testing"
)

func TestCatalogSupersetInvariant(t *testing.T) {
	c := Default()
	tiers := c.Tiers()
	for _, feature := range c.Features() {
		for i := 0; i < len(tiers); i++ {
			for j := i + 1; j < len(tiers); j++ {
				low, high := tiers[i], tiers[j]
				if c.TierHasFeature(low, feature) && !c.TierHasFeature(high, feature) {
					t.Errorf("tier %q grants %q but higher tier %q does not", low, feature, high)
				}
			}
		}
	}
}

func TestCatalogTiersAreRankOrdered(t *testing.T) {
	want := []Tier{TierBase, TierPro, TierEnterprise}
	got := Default().Tiers()
	if len(got) != len(want) {
		t.Fatalf("Tiers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tiers() = %v, want %v", got, want)
		}
	}
}

func TestCapabilitiesOf(t *testing.T) {
	tests := []struct {
		name         string
		tier         Tier
		wantOK       bool
		wantRank     int
		wantMaxUsers int
		wantContains []string
		wantMissing  []string
	}{
		{
			name:         "base",
			tier:         TierBase,
			wantOK:       true,
			wantRank:     1,
			wantMaxUsers: 3,
			wantContains: []string{FeatureCaseManagement, FeatureBilling},
			wantMissing:  []string{FeatureEInvoicing, FeatureAIDrafting, FeatureBIReporting},
		},
		{
			name:         "pro",
			tier:         TierPro,
			wantOK:       true,
			wantRank:     2,
			wantMaxUsers: 10,
			wantContains: []string{FeatureCaseManagement, FeatureEInvoicing, FeatureESignature, FeatureAIDrafting},
			wantMissing:  []string{FeatureBIReporting},
		},
		{
			name:         "enterprise_unlimited_seats",
			tier:         TierEnterprise,
			wantOK:       true,
			wantRank:     3,
			wantMaxUsers: 0,
			wantContains: []string{FeatureBIReporting, FeaturePrioritySupport, FeatureBilling},
		},
		{
			name:   "unknown",
			tier:   Tier("platinum"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, ok := CapabilitiesOf(tt.tier)
			if ok != tt.wantOK {
				t.Fatalf("CapabilitiesOf(%q) ok = %v, want %v", tt.tier, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if caps.Rank != tt.wantRank {
				t.Errorf("Rank = %d, want %d", caps.Rank, tt.wantRank)
			}
			if caps.MaxUsers != tt.wantMaxUsers {
				t.Errorf("MaxUsers = %d, want %d", caps.MaxUsers, tt.wantMaxUsers)
			}
			for _, f := range tt.wantContains {
				if !caps.Has(f) {
					t.Errorf("missing expected feature %q", f)
				}
			}
			for _, f := range tt.wantMissing {
				if caps.Has(f) {
					t.Errorf("unexpected feature %q", f)
				}
			}
		})
	}
}

func TestCapabilitiesOfReturnsCopy(t *testing.T) {
	caps, _ := CapabilitiesOf(TierBase)
	caps.Features[FeatureBIReporting] = true

	again, _ := CapabilitiesOf(TierBase)
	if again.Has(FeatureBIReporting) {
		t.Fatal("mutating a returned capability set changed the catalog")
	}
}

func TestNewCatalogRejectsSupersetViolation(t *testing.T) {
	tiers := []TierSpec{
		{Tier: "low", Rank: 1, Features: []string{"a", "b"}},
		{Tier: "mid", Rank: 2, Features: []string{"a"}},
		{Tier: "high", Rank: 3, Features: []string{"a", "b"}},
	}
	_, err := NewCatalog(tiers, nil)
	if err == nil {
		t.Fatal("expected superset violation error")
	}
	if !strings.Contains(err.Error(), `tier "mid" lacks feature "b"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewCatalogRejectsBadModules(t *testing.T) {
	tiers := []TierSpec{{Tier: "low", Rank: 1, Features: []string{"a"}}}
	tests := []struct {
		name    string
		modules []Module
		wantErr string
	}{
		{"unknown_min_tier", []Module{{ID: "m", MinTier: "gold"}}, "unknown min tier"},
		{"unknown_feature", []Module{{ID: "m", MinTier: "low", RequiredFeature: "zzz"}}, "granted by no tier"},
		{"duplicate", []Module{{ID: "m", MinTier: "low"}, {ID: "m", MinTier: "low"}}, "duplicate module"},
		{"empty_id", []Module{{MinTier: "low"}}, "empty identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tiers, tt.modules)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("NewCatalog() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewCatalogRejectsSharedRank(t *testing.T) {
	_, err := NewCatalog([]TierSpec{{Tier: "a", Rank: 1}, {Tier: "b", Rank: 1}}, nil)
	if err == nil {
		t.Fatal("expected shared rank error")
	}
}

func TestFeaturesSorted(t *testing.T) {
	if !sort.StringsAreSorted(Default().Features()) {
		t.Error("Features() should be sorted")
	}
}

func TestFeatureMinTier(t *testing.T) {
	c := Default()
	tests := map[string]Tier{
		FeatureBilling:     TierBase,
		FeatureEInvoicing:  TierPro,
		FeatureBIReporting: TierEnterprise,
	}
	for feature, want := range tests {
		got, ok := c.FeatureMinTier(feature)
		if !ok || got != want {
			t.Errorf("FeatureMinTier(%q) = %q, %v; want %q", feature, got, ok, want)
		}
	}
	if _, ok := c.FeatureMinTier("nope"); ok {
		t.Error("FeatureMinTier(nope) should not be found")
	}
}

func TestParseTier(t *testing.T) {
	got, err := ParseTier("  PRO ")
	if err != nil || got != TierPro {
		t.Fatalf("ParseTier = %q, %v", got, err)
	}
	if _, err := ParseTier("gold"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestGetTierDisplayName(t *testing.T) {
	if got := GetTierDisplayName(TierEnterprise); got != "Enterprise" {
		t.Errorf("GetTierDisplayName(enterprise) = %q", got)
	}
	if got := GetTierDisplayName("x"); got != "Unknown" {
		t.Errorf("GetTierDisplayName(x) = %q", got)
	}
}
