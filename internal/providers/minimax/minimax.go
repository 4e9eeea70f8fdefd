// Package minimax implements the providers.Provider interface for MiniMax,
// which exposes both a chat-completions endpoint and a video-generation
// endpoint billed at a flat per-video rate by resolution and duration
// (spec §4.A, §4.D).
package minimax

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
	defaultBaseURL = "https://api.minimax.chat/v1"
	providerName   = "minimax"

	videoPollInterval = time.Second
)

// Provider implements providers.Provider for MiniMax.
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

// New creates a new MiniMax Provider.
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
		return fmt.Errorf("minimax: health check: %s", res.Details)
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
	Stream      bool          `json:"stream,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Request implements providers.Provider via MiniMax's chat completions endpoint.
func (p *Provider) Request(ctx context.Context, req *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: m.Role, Content: m.Content.Text()}
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("minimax: marshal request: %w", err)
	}

	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "text/chatcompletion_v2"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("minimax: %w", err)
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
		return nil, fmt.Errorf("minimax: decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("minimax: empty response")
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

// VideoRequest describes a text/image-to-video generation job (spec §4.A:
// video is billed at a flat rate keyed by resolution and duration, unlike
// per-token chat pricing).
type VideoRequest struct {
	Model      string
	Prompt     string
	Duration   int
	Resolution string
	APIKey     string
}

type videoCreateResponse struct {
	TaskID string `json:"task_id"`
}

type videoStatusResponse struct {
	Status   string `json:"status"` // Preparing | Queueing | Processing | Success | Fail
	FileID   string `json:"file_id"`
}

// CreateVideo submits a video-generation job and polls until it settles,
// mirroring the create→poll→complete shape this adapter also uses for the
// (separate) prediction-style workflow on other providers.
func (p *Provider) CreateVideo(ctx context.Context, req *VideoRequest) (string, error) {
	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"model":       req.Model,
		"prompt":      req.Prompt,
		"duration":    req.Duration,
		"resolution":  req.Resolution,
	})
	if err != nil {
		return "", fmt.Errorf("minimax: marshal video request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "video_generation"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("minimax: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", conduit.NewError(conduit.KindCommunication, providerName, "video request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", p.parseError(resp)
	}

	var created videoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("minimax: decode video response: %w", err)
	}

	return p.awaitVideo(ctx, created.TaskID, key)
}

func (p *Provider) awaitVideo(ctx context.Context, taskID, key string) (string, error) {
	statusURL := httputil.AppendQueryString(httputil.Combine(p.baseURL, "query/video_generation"), map[string]string{"task_id": taskID})

	for {
		select {
		case <-ctx.Done():
			return "", conduit.NewError(conduit.KindCancelled, providerName, "video polling cancelled", ctx.Err())
		case <-time.After(videoPollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return "", fmt.Errorf("minimax: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+key)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return "", conduit.NewError(conduit.KindCommunication, providerName, "poll video failed", err)
		}
		var status videoStatusResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", p.parseError(resp)
		}
		if decodeErr != nil {
			return "", fmt.Errorf("minimax: decode video status: %w", decodeErr)
		}

		switch status.Status {
		case "Success":
			return status.FileID, nil
		case "Fail":
			return "", conduit.NewError(conduit.KindProviderInternal, providerName, "video generation failed", nil)
		}
	}
}

func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"abab6.5s-chat", "abab6.5g-chat", "abab6.5t-chat", "MiniMax-Text-01", "MiniMax-VL-01", "video-01"}, nil
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

	body, _ := json.Marshal(chatRequest{Model: "abab6.5s-chat", Messages: []chatMessage{{Role: "user", Content: "ping"}}, MaxTokens: 1})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(base, "text/chatcompletion_v2"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("minimax: verify auth: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

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
		return "", fmt.Errorf("minimax: no API key configured")
	}
	return p.apiKey, nil
}

// ProviderError is a structured error returned by the MiniMax API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string   { return fmt.Sprintf("minimax: %s (status=%d)", e.Message, e.StatusCode) }
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e struct {
		BaseResp struct {
			StatusMsg string `json:"status_msg"`
		} `json:"base_resp"`
	}
	if json.Unmarshal(body, &e) == nil && e.BaseResp.StatusMsg != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: e.BaseResp.StatusMsg}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}
