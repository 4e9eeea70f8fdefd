// Package cohere implements the providers.Provider interface for Cohere's
// chat, embedding, and rerank APIs. Rerank is Cohere's distinguishing
// operation — billed per search unit (spec §3 ModelCost.cost_per_search_unit,
// one query plus up to 100 documents) — so this adapter exposes it as an
// additional method beyond the common Provider surface.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/httputil"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

const (
	defaultBaseURL = "https://api.cohere.com/v2"
	providerName   = "cohere"
)

// Provider implements providers.Provider for Cohere.
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

// New creates a new Cohere Provider.
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
		return fmt.Errorf("cohere: health check: %s", res.Details)
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

type chatUsage struct {
	BilledUnits struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"billed_units"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Message struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Usage chatUsage `json:"usage"`
}

type apiErr struct {
	Message string `json:"message"`
}

// Request implements providers.Provider via POST /v2/chat.
func (p *Provider) Request(ctx context.Context, req *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: strings.ToLower(m.Role), Content: m.Content.Text()}
	}
	cr := chatRequest{Model: req.Model, Messages: msgs, Stream: req.Stream}
	if req.Temperature > 0 {
		cr.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal request: %w", err)
	}

	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "chat"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var cresp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cresp); err != nil {
		return nil, fmt.Errorf("cohere: decode response: %w", err)
	}

	content := ""
	if len(cresp.Message.Content) > 0 {
		content = cresp.Message.Content[0].Text
	}

	return &providers.ProxyResponse{
		ID:      cresp.ID,
		Model:   req.Model,
		Content: content,
		Usage: providers.Usage{
			InputTokens:  cresp.Usage.BilledUnits.InputTokens,
			OutputTokens: cresp.Usage.BilledUnits.OutputTokens,
		},
	}, nil
}

// RerankRequest is Cohere's search-unit-billed rerank operation (spec §3:
// "1 query + up to 100 documents").
type RerankRequest struct {
	Model     string
	Query     string
	Documents []string
	TopN      int
	APIKey    string
}

// RerankResult is one scored document.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankRequestBody struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponseBody struct {
	Results []RerankResult `json:"results"`
}

// Rerank calls POST /v2/rerank. The cost engine bills
// ceil(len(Documents)/100) search units for the call (spec §4.A step 6).
func (p *Provider) Rerank(ctx context.Context, req *RerankRequest) ([]RerankResult, error) {
	body, err := json.Marshal(rerankRequestBody{Model: req.Model, Query: req.Query, Documents: req.Documents, TopN: req.TopN})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal rerank request: %w", err)
	}

	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "rerank"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var rresp rerankResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&rresp); err != nil {
		return nil, fmt.Errorf("cohere: decode rerank response: %w", err)
	}
	return rresp.Results, nil
}

// Embed implements providers.EmbeddingProvider via POST /v2/embed.
func (p *Provider) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	body, err := json.Marshal(map[string]any{
		"model":           req.Model,
		"texts":           req.Input,
		"input_type":      "search_document",
		"embedding_types": []string{"float"},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal embed request: %w", err)
	}

	key, err := p.effectiveAPIKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httputil.Combine(p.baseURL, "embed"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "embed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var eresp struct {
		Embeddings struct {
			Float [][]float32 `json:"float"`
		} `json:"embeddings"`
		Meta struct {
			BilledUnits struct {
				InputTokens int `json:"input_tokens"`
			} `json:"billed_units"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&eresp); err != nil {
		return nil, fmt.Errorf("cohere: decode embed response: %w", err)
	}

	data := make([]providers.EmbeddingData, len(eresp.Embeddings.Float))
	for i, e := range eresp.Embeddings.Float {
		data[i] = providers.EmbeddingData{Index: i, Embedding: e}
	}
	return &providers.EmbeddingResponse{
		Model: req.Model,
		Data:  data,
		Usage: providers.Usage{InputTokens: eresp.Meta.BilledUnits.InputTokens},
	}, nil
}

// ListModels implements providers.ListModelsProvider via GET /v1/models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.cohere.com/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("cohere: list models: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere: list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var list struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("cohere: decode models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.Name)
	}
	return ids, nil
}

// VerifyAuthentication implements providers.AuthVerifier.
func (p *Provider) VerifyAuthentication(ctx context.Context, apiKey, baseURL string) (*providers.AuthResult, error) {
	base := "https://api.cohere.com/v1"
	if baseURL != "" {
		base = baseURL
	}
	key := p.apiKey
	if apiKey != "" {
		key = apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httputil.Combine(base, "models"), nil)
	if err != nil {
		return nil, fmt.Errorf("cohere: verify auth: %w", err)
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
		return "", fmt.Errorf("cohere: no API key configured")
	}
	return p.apiKey, nil
}

// ProviderError is a structured error returned by the Cohere API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string { return fmt.Sprintf("cohere: %s (status=%d)", e.Message, e.StatusCode) }
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var ae apiErr
	if json.Unmarshal(body, &ae) == nil && ae.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: ae.Message}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}
