package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/internal/router"
)

var decimalThousand = decimal.NewFromInt(1000)

// buildRouterConfig turns the static model-alias roster (internal/providers)
// and the set of providers actually wired at startup into the
// router.RouterConfig the spec §4.F Router dispatches against. Unlike the
// admin-plane ModelMapping/ModelDeployment records spec §3 describes (out of
// scope here per spec §1 — no database), this gateway has only one
// deployment per (alias, provider) pair, so there is exactly one candidate
// per model in the common case; the strategies still matter once a model
// alias resolves to more than one enabled provider, e.g. an OpenAI-compatible
// alias available from both a primary and a fallback host.
func buildRouterConfig(provs map[string]providers.Provider) router.RouterConfig {
	var deployments []*router.ModelDeployment

	addDeployment := func(alias, providerName string, embeddings bool) {
		if _, ok := provs[providerName]; !ok {
			return
		}
		rate, hasRate := staticPricing[alias]
		d := &router.ModelDeployment{
			ID:                 providerName + ":" + alias,
			ModelName:          alias,
			Provider:           providerName,
			Weight:             1,
			Priority:           0,
			Healthy:            true,
			Enabled:            true,
			SupportsEmbeddings: embeddings,
		}
		if hasRate {
			d.InputCostPer1K = rate.InputPerMillion.Div(decimalThousand).InexactFloat64()
			d.OutputCostPer1K = rate.OutputPerMillion.Div(decimalThousand).InexactFloat64()
		}
		deployments = append(deployments, d)
	}

	for alias, providerName := range providers.ModelAliases {
		addDeployment(alias, providerName, false)
	}
	for alias, providerName := range providers.EmbeddingModelAliases {
		addDeployment(alias, providerName, true)
	}

	return router.RouterConfig{
		Deployments:     deployments,
		DefaultStrategy: "simple",
		FallbackEnabled: false,
		MaxRetries:      3,
		BaseBackoff:     time.Second,
		MaxBackoff:      30 * time.Second,
	}
}
