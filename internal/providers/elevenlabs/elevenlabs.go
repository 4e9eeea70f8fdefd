// Package elevenlabs implements the providers.Provider interface for
// ElevenLabs' real-time conversational voice API (spec §4.D, §4.G) and its
// REST text-to-speech endpoint.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/httputil"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/internal/realtime"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	providerName   = "elevenlabs"
)

// Provider implements providers.Provider for ElevenLabs.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// New creates a new ElevenLabs Provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, baseURL: defaultBaseURL, client: &http.Client{Timeout: providers.ProviderTimeout}}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	res, err := p.VerifyAuthentication(ctx, "", "")
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("elevenlabs: health check: %s", res.Details)
	}
	return nil
}

// Request implements providers.Provider. ElevenLabs is primarily a TTS/
// real-time audio provider — it has no chat-completions endpoint.
func (p *Provider) Request(_ context.Context, _ *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	return nil, conduit.NewError(conduit.KindUnsupportedOperation, providerName, "elevenlabs does not support chat completions", nil)
}

// speechRequest is the body for POST /text-to-speech/{voice_id}.
type speechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// CreateSpeech synthesizes audio for the given voice, returning raw audio
// bytes (spec's TTS surface — POST /v1/audio/speech at the gateway boundary
// maps to this per-provider call once the client factory resolves the
// voice's provider).
func (p *Provider) CreateSpeech(ctx context.Context, voiceID, text, modelID, apiKey string) ([]byte, error) {
	key := p.apiKey
	if apiKey != "" {
		key = apiKey
	}

	body, err := json.Marshal(speechRequest{Text: text, ModelID: modelID})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := httputil.Combine(p.baseURL, "text-to-speech", voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	req.Header.Set("xi-api-key", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "speech request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, conduit.NewError(conduit.ClassifyHTTPStatus(resp.StatusCode), providerName, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

// Speak implements providers.SpeechProvider over CreateSpeech, mapping the
// normalized request fields onto ElevenLabs' voice-id/model-id parameters.
func (p *Provider) Speak(ctx context.Context, req *providers.SpeechRequest) (*providers.SpeechResponse, error) {
	audio, err := p.CreateSpeech(ctx, req.Voice, req.Text, req.Model, req.APIKey)
	if err != nil {
		return nil, err
	}
	return &providers.SpeechResponse{Audio: audio, ContentType: "audio/mpeg"}, nil
}

// VerifyAuthentication calls /voices (spec §4.D table).
func (p *Provider) VerifyAuthentication(ctx context.Context, apiKey, baseURL string) (*providers.AuthResult, error) {
	base := p.baseURL
	if baseURL != "" {
		base = baseURL
	}
	key := p.apiKey
	if apiKey != "" {
		key = apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httputil.Combine(base, "voices"), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: verify auth: %w", err)
	}
	req.Header.Set("xi-api-key", key)

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &providers.AuthResult{OK: false, RoundTripMs: elapsed, Details: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &providers.AuthResult{OK: false, RoundTripMs: elapsed, Details: "authentication rejected"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &providers.AuthResult{OK: false, RoundTripMs: elapsed, Details: fmt.Sprintf("unexpected response: status %d", resp.StatusCode)}, nil
	}
	return &providers.AuthResult{OK: true, RoundTripMs: elapsed}, nil
}

// OpenRealtimeSession establishes the ElevenLabs conversational-AI session
// (spec §4.G): Authorization: Bearer header, rest same as Ultravox's
// open sequence.
func (p *Provider) OpenRealtimeSession(ctx context.Context, sessionID string, cfg realtime.SessionConfig) (*realtime.Session, error) {
	wsURL, err := httputil.ToWebSocketUrl(httputil.Combine(p.baseURL, "convai/conversation"))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "dial realtime transport", err)
	}

	return realtime.Open(ctx, sessionID, providerName, realtime.NewGorillaTransport(conn), cfg)
}

// Capabilities returns the session limits ElevenLabs advertises (spec §4.G).
func (p *Provider) Capabilities() realtime.Capabilities { return realtime.ElevenLabsCapabilities }
