// Package huggingface implements the providers.Provider interface for the
// Hugging Face Inference API's OpenAI-compatible chat-completions router.
package huggingface

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
	defaultBaseURL = "https://api-inference.huggingface.co/v1"
	providerName   = "huggingface"
)

// Provider implements providers.Provider for Hugging Face.
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

// New creates a new Hugging Face Provider.
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
		return fmt.Errorf("huggingface: health check: %s", res.Details)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Request implements providers.Provider using the Hugging Face router's
// OpenAI-compatible chat-completions endpoint.
func (p *Provider) Request(ctx context.Context, req *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: m.Role, Content: m.Content.Text()}
	}

	body, err := json.Marshal(chatRequest{Model: req.Model, Messages: messages, Temperature: req.Temperature, MaxTokens: req.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}

	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "chat request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("huggingface: decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("huggingface: empty response")
	}

	return &providers.ProxyResponse{
		ID:      chatResp.ID,
		Model:   req.Model,
		Content: chatResp.Choices[0].Message.Content,
		Usage: providers.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		},
	}, nil
}

func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	key, err := p.effectiveAPIKey("")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httputil.Combine(p.baseURL, "models"), nil)
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "list models failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var listed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("huggingface: decode models: %w", err)
	}

	ids := make([]string, 0, len(listed.Data))
	for _, m := range listed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *Provider) VerifyAuthentication(ctx context.Context, apiKey, baseURL string) (*providers.AuthResult, error) {
	base := p.baseURL
	if baseURL != "" {
		base = baseURL
	}
	key, err := p.effectiveAPIKey(apiKey)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httputil.Combine(base, "models"), nil)
	if err != nil {
		return nil, fmt.Errorf("huggingface: verify auth: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

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

func (p *Provider) effectiveAPIKey(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if p.apiKey == "" {
		return "", fmt.Errorf("huggingface: no API key configured")
	}
	return p.apiKey, nil
}

// ProviderError is a structured error returned by the Hugging Face API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string   { return fmt.Sprintf("huggingface: %s (status=%d)", e.Message, e.StatusCode) }
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}
