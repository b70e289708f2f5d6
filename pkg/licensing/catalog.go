package licensing

import (
	"errors"
	"fmt"
	"sort"
)

// CapabilitySet is everything a tier grants.
type CapabilitySet struct {
	Tier        Tier   `json:"tier"`
	Rank        int    `json:"rank"`
	DisplayName string `json:"display_name"`
	// MaxUsers of 0 means unlimited seats.
	MaxUsers       int             `json:"max_users"`
	StorageGB      int             `json:"storage_gb"`
	DefaultAIQuota int64           `json:"default_ai_quota"`
	Features       map[string]bool `json:"features"`
}

// Has reports whether the capability set grants feature.
func (c CapabilitySet) Has(feature string) bool {
	return c.Features[feature]
}

// Catalog is an immutable tier and module catalog.
type Catalog struct {
	tiers    map[Tier]CapabilitySet
	ordered  []Tier // ascending rank
	features []string
	modules  map[string]Module
	order    []string
}

var defaultCatalog = mustCatalog(NewCatalog(defaultTiers, defaultModules))

func mustCatalog(c *Catalog, err error) *Catalog {
	if err != nil {
		panic(fmt.Sprintf("licensing: invalid built-in catalog: %v", err))
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

// CapabilitiesOf returns the capability set of tier in the built-in catalog.
func CapabilitiesOf(tier Tier) (CapabilitySet, bool) {
	return defaultCatalog.CapabilitiesOf(tier)
}

// NewCatalog builds and validates a catalog. Tiers must have distinct ranks,
// each higher tier must grant every feature a lower tier grants, and modules
// may only reference known tiers and features.
func NewCatalog(tiers []TierSpec, modules []Module) (*Catalog, error) {
	c := &Catalog{
		tiers:   make(map[Tier]CapabilitySet, len(tiers)),
		modules: make(map[string]Module, len(modules)),
	}

	featureSet := make(map[string]struct{})
	ranks := make(map[int]Tier, len(tiers))
	for _, spec := range tiers {
		if spec.Tier == "" {
			return nil, errors.New("tier with empty identifier")
		}
		if _, dup := c.tiers[spec.Tier]; dup {
			return nil, fmt.Errorf("duplicate tier %q", spec.Tier)
		}
		if other, dup := ranks[spec.Rank]; dup {
			return nil, fmt.Errorf("tiers %q and %q share rank %d", other, spec.Tier, spec.Rank)
		}
		ranks[spec.Rank] = spec.Tier

		features := make(map[string]bool, len(spec.Features))
		for _, f := range spec.Features {
			features[f] = true
			featureSet[f] = struct{}{}
		}
		c.tiers[spec.Tier] = CapabilitySet{
			Tier:           spec.Tier,
			Rank:           spec.Rank,
			DisplayName:    spec.DisplayName,
			MaxUsers:       spec.MaxUsers,
			StorageGB:      spec.StorageGB,
			DefaultAIQuota: spec.DefaultAIQuota,
			Features:       features,
		}
		c.ordered = append(c.ordered, spec.Tier)
	}
	sort.Slice(c.ordered, func(i, j int) bool {
		return c.tiers[c.ordered[i]].Rank < c.tiers[c.ordered[j]].Rank
	})
	for f := range featureSet {
		c.features = append(c.features, f)
	}
	sort.Strings(c.features)

	for _, m := range modules {
		if m.ID == "" {
			return nil, errors.New("module with empty identifier")
		}
		if _, dup := c.modules[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module %q", m.ID)
		}
		if _, ok := c.tiers[m.MinTier]; !ok {
			return nil, fmt.Errorf("module %q: unknown min tier %q", m.ID, m.MinTier)
		}
		if m.RequiredFeature != "" {
			if _, ok := featureSet[m.RequiredFeature]; !ok {
				return nil, fmt.Errorf("module %q: feature %q is granted by no tier", m.ID, m.RequiredFeature)
			}
		}
		c.modules[m.ID] = m
		c.order = append(c.order, m.ID)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the tier superset invariant by enumerating every feature
// against every ordered pair of tiers. All violations are reported.
func (c *Catalog) Validate() error {
	var errs []error
	for _, feature := range c.features {
		for i, low := range c.ordered {
			if !c.tiers[low].Features[feature] {
				continue
			}
			for _, high := range c.ordered[i+1:] {
				if !c.tiers[high].Features[feature] {
					errs = append(errs, fmt.Errorf("tier %q lacks feature %q granted by lower tier %q", high, feature, low))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// CapabilitiesOf returns the capability set of tier. The returned feature map
// is a copy.
func (c *Catalog) CapabilitiesOf(tier Tier) (CapabilitySet, bool) {
	caps, ok := c.tiers[tier]
	if !ok {
		return CapabilitySet{}, false
	}
	features := make(map[string]bool, len(caps.Features))
	for k, v := range caps.Features {
		features[k] = v
	}
	caps.Features = features
	return caps, true
}

// Tiers returns the tiers in ascending rank order.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Features returns every feature granted by at least one tier, sorted.
func (c *Catalog) Features() []string {
	out := make([]string, len(c.features))
	copy(out, c.features)
	return out
}

// TierHasFeature checks if a tier includes a specific feature.
func (c *Catalog) TierHasFeature(tier Tier, feature string) bool {
	caps, ok := c.tiers[tier]
	return ok && caps.Features[feature]
}

// FeatureMinTier returns the lowest tier granting feature.
func (c *Catalog) FeatureMinTier(feature string) (Tier, bool) {
	for _, tier := range c.ordered {
		if c.tiers[tier].Features[feature] {
			return tier, true
		}
	}
	return "", false
}

// Module looks up a module descriptor.
func (c *Catalog) Module(id string) (Module, bool) {
	m, ok := c.modules[id]
	return m, ok
}

// Modules returns every module in navigation order.
func (c *Catalog) Modules() []Module {
	out := make([]Module, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.modules[id])
	}
	return out
}
