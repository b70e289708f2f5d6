package cost

import (
	"math"
	"testing"
)

func TestEstimateUSD(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		in, out  int64
		wantOK   bool
		wantUSD  float64
	}{
		{"sonnet", "anthropic", "claude-sonnet-4-20250514", 1_000_000, 1_000_000, true, 18.0},
		{"opus", "anthropic", "claude-opus-4-1", 100_000, 10_000, true, 2.25},
		{"haiku 3.5", "anthropic", "claude-3-5-haiku-latest", 1_000_000, 0, true, 0.80},
		{"haiku 3", "anthropic", "claude-3-haiku-20240307", 0, 1_000_000, true, 1.25},
		{"case insensitive", "Anthropic", "Claude-Sonnet-4", 1_000_000, 0, true, 3.0},
		{"unknown model", "anthropic", "gpt-4o", 1000, 1000, false, 0},
		{"unknown provider", "mystery", "claude-sonnet-4", 1000, 1000, false, 0},
		{"empty model", "anthropic", "", 1000, 1000, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usd, ok, price := EstimateUSD(tt.provider, tt.model, tt.in, tt.out)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if math.Abs(usd-tt.wantUSD) > 1e-9 {
				t.Fatalf("usd = %v, want %v", usd, tt.wantUSD)
			}
			if ok && price.AsOf != PricingAsOf() {
				t.Fatalf("AsOf = %q, want %q", price.AsOf, PricingAsOf())
			}
		})
	}
}
