// Package ultravox implements the providers.Provider interface for
// Ultravox's real-time voice API (spec §4.D, §4.G). Ultravox is primarily a
// real-time audio provider: text chat/embedding/image operations are
// UnsupportedOperation, and its real value is OpenRealtimeSession, which
// opens a gorilla/websocket transport and hands it to internal/realtime.
package ultravox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/httputil"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/internal/realtime"
)

const (
	defaultBaseURL = "https://api.ultravox.ai/api"
	providerName   = "ultravox"
)

// Provider implements providers.Provider for Ultravox.
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

// New creates a new Ultravox Provider.
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
		return fmt.Errorf("ultravox: health check: %s", res.Details)
	}
	return nil
}

// Request implements providers.Provider; Ultravox's product surface is
// real-time audio, so text chat completions are not supported (spec §4.D:
// "text-only operations fail with UnsupportedOperation").
func (p *Provider) Request(_ context.Context, _ *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	return nil, conduit.NewError(conduit.KindUnsupportedOperation, providerName, "ultravox does not support text chat completions", nil)
}

// VerifyAuthentication calls accounts/me (spec §4.D table).
func (p *Provider) VerifyAuthentication(ctx context.Context, apiKey, baseURL string) (*providers.AuthResult, error) {
	base := p.baseURL
	if baseURL != "" {
		base = baseURL
	}
	key := p.apiKey
	if apiKey != "" {
		key = apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httputil.Combine(base, "accounts/me"), nil)
	if err != nil {
		return nil, fmt.Errorf("ultravox: verify auth: %w", err)
	}
	req.Header.Set("X-API-Key", key)

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

// OpenRealtimeSession establishes the real-time voice session (spec §4.G
// "Open sequence"): derive the ws(s) URL, attach the X-API-Key header, dial,
// and hand the connection to internal/realtime so the neutral frame model
// takes over.
func (p *Provider) OpenRealtimeSession(ctx context.Context, sessionID string, cfg realtime.SessionConfig) (*realtime.Session, error) {
	wsURL, err := httputil.ToWebSocketUrl(httputil.Combine(p.baseURL, "calls"))
	if err != nil {
		return nil, fmt.Errorf("ultravox: %w", err)
	}

	header := http.Header{}
	header.Set("X-API-Key", p.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "dial realtime transport", err)
	}

	return realtime.Open(ctx, sessionID, providerName, realtime.NewGorillaTransport(conn), cfg)
}

// Capabilities returns the session limits Ultravox advertises (spec §4.G).
func (p *Provider) Capabilities() realtime.Capabilities { return realtime.UltravoxCapabilities }
