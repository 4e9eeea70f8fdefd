package app

import (
	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/conduit-gateway/internal/cost"
)

// staticPricing is a hand-maintained tariff table for the flagship model of
// each wired provider. It is intentionally small: the managed product prices
// every model from a billing-plane database (out of scope here, per spec
// §1), so this table only needs to keep the ledger honest for the models
// most likely to appear in local testing and demos. Unknown models fall back
// to cost.ErrPricingUnavailable, which the gateway treats as "don't record a
// cost" rather than silently billing zero.
var staticPricing = map[string]cost.ModelCost{
	"gpt-4o": {
		InputPerMillion: decimal.NewFromFloat(2.50), OutputPerMillion: decimal.NewFromFloat(10.00),
		CachedInputPerMillion: decimal.NewFromFloat(1.25),
		HasInputRate: true, HasOutputRate: true,
	},
	"gpt-4o-mini": {
		InputPerMillion: decimal.NewFromFloat(0.15), OutputPerMillion: decimal.NewFromFloat(0.60),
		HasInputRate: true, HasOutputRate: true,
	},
	"claude-3-5-sonnet-20241022": {
		InputPerMillion: decimal.NewFromFloat(3.00), OutputPerMillion: decimal.NewFromFloat(15.00),
		HasInputRate: true, HasOutputRate: true,
	},
	"claude-3-5-haiku-20241022": {
		InputPerMillion: decimal.NewFromFloat(0.80), OutputPerMillion: decimal.NewFromFloat(4.00),
		HasInputRate: true, HasOutputRate: true,
	},
	"gemini-1.5-pro": {
		InputPerMillion: decimal.NewFromFloat(1.25), OutputPerMillion: decimal.NewFromFloat(5.00),
		HasInputRate: true, HasOutputRate: true,
	},
	"gemini-1.5-flash": {
		InputPerMillion: decimal.NewFromFloat(0.075), OutputPerMillion: decimal.NewFromFloat(0.30),
		HasInputRate: true, HasOutputRate: true,
	},
	"mistral-large-latest": {
		InputPerMillion: decimal.NewFromFloat(2.00), OutputPerMillion: decimal.NewFromFloat(6.00),
		HasInputRate: true, HasOutputRate: true,
	},
	"command-r-plus": {
		InputPerMillion: decimal.NewFromFloat(2.50), OutputPerMillion: decimal.NewFromFloat(10.00),
		HasInputRate: true, HasOutputRate: true,
	},
	"text-embedding-3-small": {
		EmbeddingPerMillion: decimal.NewFromFloat(0.02),
		HasEmbeddingRate:     true,
	},
	"text-embedding-3-large": {
		EmbeddingPerMillion: decimal.NewFromFloat(0.13),
		HasEmbeddingRate:     true,
	},
	"embed-english-v3.0": {
		EmbeddingPerMillion: decimal.NewFromFloat(0.10),
		HasEmbeddingRate:     true,
	},
}

// lookupModelCost returns the static tariff for a model alias, if known.
func lookupModelCost(model string) (cost.ModelCost, bool) {
	mc, ok := staticPricing[model]
	return mc, ok
}
