package cost

import "testing"

func TestResolveProviderAndModel(t *testing.T) {
	tests := []struct {
		name             string
		provider         string
		requestModel     string
		responseModel    string
		expectedProvider string
		expectedModel    string
	}{
		{
			name:             "response model wins",
			provider:         "anthropic",
			requestModel:     "claude-sonnet-4-0",
			responseModel:    "claude-sonnet-4-20250514",
			expectedProvider: "anthropic",
			expectedModel:    "claude-sonnet-4-20250514",
		},
		{
			name:             "falls back to request model",
			provider:         "anthropic",
			requestModel:     "claude-3-5-haiku-latest",
			expectedProvider: "anthropic",
			expectedModel:    "claude-3-5-haiku-latest",
		},
		{
			name:             "provider prefix stripped",
			provider:         "anthropic",
			requestModel:     "anthropic:claude-opus-4-1",
			expectedProvider: "anthropic",
			expectedModel:    "claude-opus-4-1",
		},
		{
			name:             "provider inferred from prefix",
			requestModel:     "anthropic:claude-sonnet-4-5",
			expectedProvider: "anthropic",
			expectedModel:    "claude-sonnet-4-5",
		},
		{
			name:             "foreign prefix kept",
			provider:         "anthropic",
			requestModel:     "bedrock:claude-sonnet-4",
			expectedProvider: "anthropic",
			expectedModel:    "bedrock:claude-sonnet-4",
		},
		{
			name:             "whitespace trimming",
			provider:         "  Anthropic  ",
			requestModel:     "  claude-sonnet-4  ",
			expectedProvider: "anthropic",
			expectedModel:    "claude-sonnet-4",
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model := ResolveProviderAndModel(tt.provider, tt.requestModel, tt.responseModel)
			if provider != tt.expectedProvider {
				t.Errorf("provider = %q, want %q", provider, tt.expectedProvider)
			}
			if model != tt.expectedModel {
				t.Errorf("model = %q, want %q", model, tt.expectedModel)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	usd, model := Estimate("anthropic", "claude-sonnet-4-0", "claude-sonnet-4-20250514", 1_000_000, 1_000_000)
	if model != "claude-sonnet-4-20250514" {
		t.Fatalf("model = %q", model)
	}
	if usd != 18.0 {
		t.Fatalf("usd = %v, want 18", usd)
	}

	usd, _ = Estimate("anthropic", "some-future-model", "", 1000, 1000)
	if usd != 0 {
		t.Fatalf("unknown model usd = %v, want 0", usd)
	}
}
