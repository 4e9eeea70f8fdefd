// Package replicate implements the providers.Provider interface for
// Replicate's asynchronous prediction model (spec §4.D): POST creates a
// prediction and the adapter polls until it settles. Streaming is not
// implemented: a request with Stream set is answered with the completed
// prediction as one non-streaming response, and the stream URL Replicate
// returns is not used.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/httputil"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

const (
	defaultBaseURL = "https://api.replicate.com/v1"
	providerName   = "replicate"

	pollInterval = 500 * time.Millisecond
)

// Provider implements providers.Provider for Replicate.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// New creates a new Replicate Provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, baseURL: defaultBaseURL, client: &http.Client{Timeout: providers.ProviderTimeout}}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httputil.Combine(p.baseURL, "account"), nil)
	if err != nil {
		return fmt.Errorf("replicate: health check: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("replicate: health check: status %d", resp.StatusCode)
	}
	return nil
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
	Stream  bool           `json:"stream,omitempty"`
}

type prediction struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"` // starting | processing | succeeded | failed | canceled
	Output     any            `json:"output"`
	Error      string         `json:"error"`
	URLs       map[string]string `json:"urls"`
	Metrics    map[string]any `json:"metrics"`
}

// Request implements providers.Provider: create a prediction, then poll
// GET /predictions/{id} until it settles outside {starting, processing}.
func (p *Provider) Request(ctx context.Context, req *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content.Text()
			break
		}
	}

	body, err := json.Marshal(predictionRequest{
		Version: req.Model,
		Input:   map[string]any{"prompt": prompt, "max_new_tokens": req.MaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("replicate: marshal request: %w", err)
	}

	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	pred, err := p.createPrediction(ctx, body, key)
	if err != nil {
		return nil, err
	}

	pred, err = p.awaitCompletion(ctx, pred, key)
	if err != nil {
		return nil, err
	}
	if pred.Status == "failed" || pred.Status == "canceled" {
		return nil, conduit.NewError(conduit.KindProviderInternal, providerName, pred.Error, nil)
	}

	return &providers.ProxyResponse{ID: pred.ID, Model: req.Model, Content: outputToText(pred.Output)}, nil
}

func (p *Provider) createPrediction(ctx context.Context, body []byte, key string) (*prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "predictions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait=1")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "create prediction failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, p.parseError(resp)
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("replicate: decode prediction: %w", err)
	}
	return &pred, nil
}

// awaitCompletion polls the prediction's "get" URL (spec §4.D: "POST →
// polling → completion") until it leaves the in-flight states or ctx ends.
func (p *Provider) awaitCompletion(ctx context.Context, pred *prediction, key string) (*prediction, error) {
	for pred.Status == "starting" || pred.Status == "processing" {
		select {
		case <-ctx.Done():
			return nil, conduit.NewError(conduit.KindCancelled, providerName, "prediction polling cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}

		getURL := pred.URLs["get"]
		if getURL == "" {
			getURL = httputil.Combine(p.baseURL, "predictions", pred.ID)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
		if err != nil {
			return nil, fmt.Errorf("replicate: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+key)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, conduit.NewError(conduit.KindCommunication, providerName, "poll prediction failed", err)
		}
		var next prediction
		decodeErr := json.NewDecoder(resp.Body).Decode(&next)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, p.parseError(resp)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("replicate: decode prediction: %w", decodeErr)
		}
		pred = &next
	}
	return pred, nil
}

func outputToText(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case []any:
		s := ""
		for _, part := range v {
			if str, ok := part.(string); ok {
				s += str
			}
		}
		return s
	default:
		return ""
	}
}

func (p *Provider) effectiveAPIKey(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if p.apiKey == "" {
		return "", fmt.Errorf("replicate: no API key configured")
	}
	return p.apiKey, nil
}

// ProviderError is a structured error returned by the Replicate API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string   { return fmt.Sprintf("replicate: %s (status=%d)", e.Message, e.StatusCode) }
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: e.Detail}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}
