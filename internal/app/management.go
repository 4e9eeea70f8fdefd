package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/pkg/apierr"
)

// handleListModels backs GET /v1/providers/{id}/models — the model-agnostic
// client-factory path spec §4.E calls out ("GetClientByProviderId ... used
// for operations that do not need a specific model, e.g. list-models").
// Adapters without a live models endpoint return an empty list rather than
// an error, mirroring the "may fall back to a hard-coded allowlist" clause
// in spec §4.D's ListModels operation table — the allowlist itself is
// already served by GET /v1/models (dispatchModels).
func (a *App) handleListModels(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	prov, err := a.reg.GetClientByProviderId(id)
	if err != nil {
		writeRegistryError(ctx, err)
		return
	}

	ids := []string{}
	if lister, ok := prov.(providers.ListModelsProvider); ok {
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		ids, err = lister.ListModels(reqCtx)
		if err != nil {
			apierr.Write(ctx, fasthttp.StatusBadGateway,
				fmt.Sprintf("list models: %s", err.Error()),
				apierr.TypeProviderError, apierr.CodeProviderError)
			return
		}
	}

	body, merr := json.Marshal(struct {
		Object string   `json:"object"`
		Data   []string `json:"data"`
	}{Object: "list", Data: ids})
	if merr != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			"failed to serialize response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// handleVerifyCredential backs POST /v1/providers/{id}/verify (spec §4.D
// VerifyAuthentication, §4.E CreateTestClient). It resolves the provider's
// currently configured credential through the client factory and asks the
// adapter to verify it in isolation, without sending a real chat request.
func (a *App) handleVerifyCredential(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	prov, err := a.reg.GetClientByProviderId(id)
	if err != nil {
		writeRegistryError(ctx, err)
		return
	}

	verifier, ok := prov.(providers.AuthVerifier)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusNotImplemented,
			fmt.Sprintf("provider %q does not support credential verification", prov.Name()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err := verifier.VerifyAuthentication(reqCtx, "", "")
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusBadGateway,
			fmt.Sprintf("verify: %s", err.Error()),
			apierr.TypeProviderError, apierr.CodeProviderError)
		return
	}

	body, merr := json.Marshal(struct {
		OK          bool   `json:"ok"`
		RoundTripMs int64  `json:"round_trip_ms"`
		Details     string `json:"details,omitempty"`
	}{OK: result.OK, RoundTripMs: result.RoundTripMs, Details: result.Details})
	if merr != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			"failed to serialize response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// writeRegistryError maps a conduit.Error surfaced by the client factory
// (always KindConfiguration for a missing/disabled provider, per
// registry.Factory.getClientForProvider) onto the HTTP status its Kind
// names, matching every other handler's use of ErrorKind.HTTPStatus.
func writeRegistryError(ctx *fasthttp.RequestCtx, err error) {
	kind := conduit.KindConfiguration
	var cerr *conduit.Error
	if errors.As(err, &cerr) {
		kind = cerr.Kind
	}
	apierr.Write(ctx, kind.HTTPStatus(), err.Error(), apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
}

// handleCacheStats backs GET /v1/cache/stats (spec §4.H CacheStatistics).
// Reports the chat-completions region, the only one the cache wrapper in
// initGateway is attached to; a region with zero traffic still appears,
// with zero-valued counters rather than being omitted.
func (a *App) handleCacheStats(ctx *fasthttp.RequestCtx) {
	if a.cacheStats == nil {
		body, _ := json.Marshal(struct {
			Regions []conduit.CacheStatistics `json:"regions"`
		}{})
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
		return
	}

	// Only chat-completions caching is wired today (initGateway attaches
	// WithStats to the chat-completions region); embeddings responses
	// aren't cached, so there is no second region to report yet.
	snaps := []conduit.CacheStatistics{a.cacheStats.Snapshot(conduit.CacheRegionChatCompletions)}

	var alerts []conduit.CacheAlert
	if a.cacheAlerts != nil {
		for _, snap := range snaps {
			alerts = append(alerts, a.cacheAlerts.EvaluateThresholds(snap)...)
		}
	}

	body, err := json.Marshal(struct {
		Regions []conduit.CacheStatistics `json:"regions"`
		Alerts  []conduit.CacheAlert      `json:"alerts,omitempty"`
	}{Regions: snaps, Alerts: alerts})
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			"failed to serialize response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
