package cost

import "strings"

// ResolveProviderAndModel normalizes the model reported for an AI attempt into
// a provider and model pair for pricing. The model the provider reports wins
// over the configured one because aliases resolve to dated snapshots.
// A "provider:model" form sets the provider when none is given.
func ResolveProviderAndModel(provider, requestModel, responseModel string) (string, string) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	model := strings.TrimSpace(responseModel)
	if model == "" {
		model = strings.TrimSpace(requestModel)
	}
	if prefix, rest, found := strings.Cut(model, ":"); found && strings.TrimSpace(prefix) != "" {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if provider == "" {
			provider = prefix
		}
		if prefix == provider {
			model = strings.TrimSpace(rest)
		}
	}
	return provider, model
}

// Estimate prices an attempt from the raw provider and model strings.
// Unknown models cost 0.
func Estimate(provider, requestModel, responseModel string, inputTokens, outputTokens int64) (float64, string) {
	provider, model := ResolveProviderAndModel(provider, requestModel, responseModel)
	usd, _, _ := EstimateUSD(provider, model, inputTokens, outputTokens)
	return usd, model
}
