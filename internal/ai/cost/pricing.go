// Package cost estimates the USD cost of AI provider calls.
package cost

import (
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// TokenPrice represents a price per million tokens for a model.
// Prices are estimates intended for usage reporting, not billing reconciliation.
type TokenPrice struct {
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64
	AsOf             string
}

// EstimateUSD returns an estimated USD cost for the given provider/model and token counts.
// If the model pricing is unknown, ok is false and usd is 0.
func EstimateUSD(provider, model string, inputTokens, outputTokens int64) (usd float64, ok bool, price TokenPrice) {
	price, ok = lookupPrice(provider, model)
	if !ok {
		return 0, false, TokenPrice{}
	}

	usd = (float64(inputTokens)/1_000_000.0)*price.InputUSDPerMTok +
		(float64(outputTokens)/1_000_000.0)*price.OutputUSDPerMTok
	return usd, true, price
}

type modelPrice struct {
	Pattern          string
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64
}

const pricingAsOf = "2026-06"

// PricingAsOf indicates the effective date of the pricing table used for estimation.
func PricingAsOf() string {
	return pricingAsOf
}

// Patterns are matched in order; list specific patterns before broad ones.
var providerPrices = map[string][]modelPrice{
	"anthropic": {
		{Pattern: "claude-opus*", InputUSDPerMTok: 15.00, OutputUSDPerMTok: 75.00},
		{Pattern: "claude-sonnet*", InputUSDPerMTok: 3.00, OutputUSDPerMTok: 15.00},
		{Pattern: "claude-3-5-sonnet*", InputUSDPerMTok: 3.00, OutputUSDPerMTok: 15.00},
		{Pattern: "claude-3-5-haiku*", InputUSDPerMTok: 0.80, OutputUSDPerMTok: 4.00},
		{Pattern: "claude-haiku*", InputUSDPerMTok: 0.80, OutputUSDPerMTok: 4.00},
		{Pattern: "claude-3-haiku*", InputUSDPerMTok: 0.25, OutputUSDPerMTok: 1.25},
	},
}

func lookupPrice(provider, model string) (TokenPrice, bool) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.ToLower(strings.TrimSpace(model))
	if provider == "" || model == "" {
		return TokenPrice{}, false
	}

	prices, ok := providerPrices[provider]
	if !ok {
		return TokenPrice{}, false
	}

	for _, p := range prices {
		if wildcard.Match(strings.ToLower(p.Pattern), model) {
			return TokenPrice{
				InputUSDPerMTok:  p.InputUSDPerMTok,
				OutputUSDPerMTok: p.OutputUSDPerMTok,
				AsOf:             pricingAsOf,
			}, true
		}
	}
	return TokenPrice{}, false
}
