package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/pkg/apierr"
)

type (
	// inboundImageRequest mirrors the OpenAI POST /v1/images/generations body.
	inboundImageRequest struct {
		Model   string `json:"model"`
		Prompt  string `json:"prompt"`
		N       int    `json:"n"`
		Size    string `json:"size"`
		Quality string `json:"quality"`
	}

	outboundImageData struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	}

	outboundImageResponse struct {
		Created int64               `json:"created"`
		Data    []outboundImageData `json:"data"`
	}

	modelListEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}

	modelListResponse struct {
		Object string           `json:"object"`
		Data   []modelListEntry `json:"data"`
	}
)

// dispatchImages handles POST /v1/images/generations (spec §6, §4.D
// CreateImage). It resolves the provider from the model name, delegates to
// the provider's ImageProvider capability, and returns an OpenAI-compatible
// response envelope. Providers that don't implement ImageProvider fail with
// UnsupportedOperation (spec §4.D operation table).
func (g *Gateway) dispatchImages(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "images_generations"
	reqBytes := len(ctx.PostBody())
	servedProvider := "unknown"
	respBytes := -1

	if g.metrics != nil {
		g.metrics.IncInFlight()
	}
	defer func() {
		if g.metrics == nil {
			return
		}
		g.metrics.DecInFlight()
		status := ctx.Response.StatusCode()
		dur := time.Since(start)
		if respBytes < 0 {
			respBytes = len(ctx.Response.Body())
		}
		g.metrics.ObserveHTTP(route, status, dur, reqBytes, respBytes)
		g.metrics.RecordRequest(servedProvider, status, dur.Milliseconds())
		g.metrics.ObserveGatewayRequest(servedProvider, route, "bypass", dur)
	}()

	reqID, _ := ctx.UserValue("request_id").(string)
	clientKey, _ := g.extractClientAPIKey(ctx)

	var req inboundImageRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	if req.Prompt == "" {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			"field 'prompt' is required",
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	if req.N <= 0 {
		req.N = 1
	}

	providerName := resolveImageProvider(req.Model)
	servedProvider = providerName

	g.log.InfoContext(ctx, "image_request",
		slog.String("request_id", reqID),
		slog.String("model", req.Model),
		slog.String("provider", providerName),
		slog.Int("n", req.N),
	)

	if len(g.providers) == 0 {
		apierr.Write(ctx, fasthttp.StatusBadGateway,
			"no providers configured",
			apierr.TypeProviderError, apierr.CodeProviderError)
		return
	}

	prov, ok := g.providers[providerName]
	if !ok {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("provider %q not configured", providerName),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	imager, ok := prov.(providers.ImageProvider)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusNotImplemented,
			fmt.Sprintf("provider %q does not support image generation", prov.Name()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	provCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()

	imgReq := &providers.ImageRequest{
		Prompt:    req.Prompt,
		N:         req.N,
		Size:      req.Size,
		Quality:   req.Quality,
		Model:     req.Model,
		APIKey:    clientKey,
		RequestID: reqID,
	}

	upStart := time.Now()
	imgResp, err := imager.CreateImage(provCtx, imgReq)
	upDur := time.Since(upStart)
	if err != nil {
		if g.metrics != nil {
			reason := classifyError(err)
			g.metrics.ObserveUpstreamAttempt(servedProvider, route, reason, upDur)
			g.metrics.RecordError(servedProvider, reason)
		}
		g.log.ErrorContext(ctx, "image_error",
			slog.String("request_id", reqID),
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		handleProviderError(ctx, err)
		return
	}
	if g.metrics != nil {
		g.metrics.ObserveUpstreamAttempt(servedProvider, route, "success", upDur)
	}

	outData := make([]outboundImageData, len(imgResp.Data))
	for i, d := range imgResp.Data {
		outData[i] = outboundImageData{URL: d.URL, B64JSON: d.B64JSON}
	}
	out := outboundImageResponse{Created: imgResp.Created, Data: outData}

	body, err := json.Marshal(out)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			"failed to serialize response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
	respBytes = len(body)
}

// dispatchModels handles GET /v1/models (spec §6). It lists the static
// alias roster (providers.ModelAliases/EmbeddingModelAliases/ImageModelAliases)
// of every configured provider, and adds ListModels() results from each
// provider that implements ListModelsProvider; a failed ListModels call is
// logged and that provider's aliases are still listed — mirroring the
// "may fall back to a hard-coded allowlist" clause in spec §4.D's ListModels
// operation table.
func (g *Gateway) dispatchModels(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	ids := map[string]string{} // model id -> owning provider

	for alias, name := range providers.ModelAliases {
		if _, ok := g.providers[name]; ok {
			ids[alias] = name
		}
	}
	for alias, name := range providers.EmbeddingModelAliases {
		if _, ok := g.providers[name]; ok {
			ids[alias] = name
		}
	}
	for alias, name := range providers.ImageModelAliases {
		if _, ok := g.providers[name]; ok {
			ids[alias] = name
		}
	}

	provCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()
	for name, prov := range g.providers {
		lister, ok := prov.(providers.ListModelsProvider)
		if !ok {
			continue
		}
		live, err := lister.ListModels(provCtx)
		if err != nil {
			g.log.WarnContext(ctx, "list_models_failed",
				slog.String("provider", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, id := range live {
			ids[id] = name
		}
	}

	entries := make([]modelListEntry, 0, len(ids))
	for id, name := range ids {
		entries = append(entries, modelListEntry{ID: id, Object: "model", OwnedBy: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	body, err := json.Marshal(modelListResponse{Object: "list", Data: entries})
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			"failed to serialize response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)

	if g.metrics != nil {
		g.metrics.ObserveHTTP("models", fasthttp.StatusOK, time.Since(start), 0, len(body))
	}
}
