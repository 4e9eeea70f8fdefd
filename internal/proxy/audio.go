package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/pkg/apierr"
)

type (
	// inboundSpeechRequest mirrors the OpenAI POST /v1/audio/speech body,
	// widened with a language field for providers keyed off a language code
	// rather than a voice id.
	inboundSpeechRequest struct {
		Model    string `json:"model"`
		Input    string `json:"input"`
		Voice    string `json:"voice"`
		Language string `json:"language,omitempty"`
	}

	// inboundTranscribeRequest mirrors OpenAI's multipart transcription
	// request, flattened to JSON with the audio payload base64-encoded —
	// this gateway's audio endpoints speak JSON everywhere else, and the
	// OpenAI multipart form isn't otherwise exercised by this codebase.
	inboundTranscribeRequest struct {
		Model           string `json:"model"`
		Audio           string `json:"audio"` // base64
		SampleRateHertz int    `json:"sample_rate_hertz,omitempty"`
		Language        string `json:"language,omitempty"`
	}

	outboundTranscribeResponse struct {
		Text string `json:"text"`
	}
)

// dispatchSpeech handles POST /v1/audio/speech (spec §4.D CreateSpeech). It
// resolves the provider from the model name, delegates to the provider's
// SpeechProvider capability, and streams back raw audio bytes — OpenAI's own
// /v1/audio/speech returns the audio body directly rather than a JSON
// envelope, and this gateway matches that.
func (g *Gateway) dispatchSpeech(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "audio_speech"
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

	var req inboundSpeechRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	if req.Input == "" {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			"field 'input' is required",
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	providerName, ok := resolveSpeechProvider(req.Model)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("model %q is not a recognized speech model", req.Model),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	servedProvider = providerName

	g.log.InfoContext(ctx, "speech_request",
		slog.String("request_id", reqID),
		slog.String("model", req.Model),
		slog.String("provider", providerName),
	)

	prov, ok := g.providers[providerName]
	if !ok {
		apierr.Write(ctx, fasthttp.StatusBadGateway,
			fmt.Sprintf("provider %q not configured", providerName),
			apierr.TypeProviderError, apierr.CodeProviderError)
		return
	}

	speaker, ok := prov.(providers.SpeechProvider)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusNotImplemented,
			fmt.Sprintf("provider %q does not support speech synthesis", prov.Name()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	provCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()

	upStart := time.Now()
	resp, err := speaker.Speak(provCtx, &providers.SpeechRequest{
		Text:     req.Input,
		Voice:    req.Voice,
		Model:    req.Model,
		Language: req.Language,
		APIKey:   clientKey,
	})
	upDur := time.Since(upStart)
	if err != nil {
		if g.metrics != nil {
			reason := classifyError(err)
			g.metrics.ObserveUpstreamAttempt(servedProvider, route, reason, upDur)
			g.metrics.RecordError(servedProvider, reason)
		}
		g.log.ErrorContext(ctx, "speech_error",
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

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(contentType)
	ctx.SetBody(resp.Audio)
	respBytes = len(resp.Audio)
}

// dispatchTranscribe handles POST /v1/audio/transcriptions (spec §4.D
// Transcribe). It resolves the provider from the model name, delegates to
// the provider's TranscribeProvider capability, and returns an
// OpenAI-compatible {"text": "..."} envelope.
func (g *Gateway) dispatchTranscribe(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "audio_transcriptions"
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

	var req inboundTranscribeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	if req.Audio == "" {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			"field 'audio' is required",
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			"field 'audio' must be base64-encoded",
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	providerName, ok := resolveTranscribeProvider(req.Model)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("model %q is not a recognized transcription model", req.Model),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	servedProvider = providerName

	g.log.InfoContext(ctx, "transcribe_request",
		slog.String("request_id", reqID),
		slog.String("model", req.Model),
		slog.String("provider", providerName),
		slog.Int("audio_bytes", len(audio)),
	)

	prov, ok := g.providers[providerName]
	if !ok {
		apierr.Write(ctx, fasthttp.StatusBadGateway,
			fmt.Sprintf("provider %q not configured", providerName),
			apierr.TypeProviderError, apierr.CodeProviderError)
		return
	}

	transcriber, ok := prov.(providers.TranscribeProvider)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusNotImplemented,
			fmt.Sprintf("provider %q does not support transcription", prov.Name()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	provCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()

	upStart := time.Now()
	resp, err := transcriber.TranscribeAudio(provCtx, &providers.TranscribeRequest{
		Audio:           audio,
		SampleRateHertz: req.SampleRateHertz,
		Language:        req.Language,
		APIKey:          clientKey,
	})
	upDur := time.Since(upStart)
	if err != nil {
		if g.metrics != nil {
			reason := classifyError(err)
			g.metrics.ObserveUpstreamAttempt(servedProvider, route, reason, upDur)
			g.metrics.RecordError(servedProvider, reason)
		}
		g.log.ErrorContext(ctx, "transcribe_error",
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

	body, err := json.Marshal(outboundTranscribeResponse{Text: resp.Text})
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
