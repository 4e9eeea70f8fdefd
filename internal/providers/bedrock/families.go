package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

// modelFamily is the Bedrock provider family a model ID belongs to (spec
// §4.C/§4.D: "Claude/Titan/Llama/Cohere/AI21 … each has a distinct body
// shape keyed by model family prefix"). familyConverse covers every family
// that accepts the unified Converse API directly (Anthropic, Amazon Nova,
// Mistral); the rest use Bedrock's older per-family InvokeModel bodies.
type modelFamily int

const (
	familyConverse modelFamily = iota
	familyTitan
	familyLlama
	familyCohere
	familyAI21
)

// familyForModel classifies a Bedrock model ID by its provider-namespace
// prefix (e.g. "amazon.titan-text-express-v1" -> familyTitan).
func familyForModel(modelID string) modelFamily {
	switch {
	case strings.HasPrefix(modelID, "amazon.titan"):
		return familyTitan
	case strings.HasPrefix(modelID, "meta."):
		return familyLlama
	case strings.HasPrefix(modelID, "cohere."):
		return familyCohere
	case strings.HasPrefix(modelID, "ai21."):
		return familyAI21
	default:
		return familyConverse
	}
}

// ─── Amazon Titan Text ──────────────────────────────────────────────────────

type titanRequest struct {
	InputText            string              `json:"inputText"`
	TextGenerationConfig *titanGenerationConf `json:"textGenerationConfig,omitempty"`
}

type titanGenerationConf struct {
	MaxTokenCount int     `json:"maxTokenCount,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
}

type titanResponse struct {
	Results []struct {
		OutputText       string `json:"outputText"`
		TokenCount       int    `json:"tokenCount"`
		CompletionReason string `json:"completionReason"`
	} `json:"results"`
	InputTextTokenCount int `json:"inputTextTokenCount"`
}

// ─── Meta Llama ─────────────────────────────────────────────────────────────

type llamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type llamaResponse struct {
	Generation           string `json:"generation"`
	PromptTokenCount     int    `json:"prompt_token_count"`
	GenerationTokenCount int    `json:"generation_token_count"`
}

// ─── Cohere Command ─────────────────────────────────────────────────────────

type cohereRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type cohereResponse struct {
	Generations []struct {
		Text string `json:"text"`
	} `json:"generations"`
}

// ─── AI21 Jamba ──────────────────────────────────────────────────────────────
//
// Jamba's InvokeModel body is OpenAI-chat-shaped (role/content messages),
// unlike Titan/Llama/Cohere's flat-prompt bodies, so it keeps the full
// message list rather than collapsing to one prompt string.

type ai21Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ai21Request struct {
	Messages    []ai21Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type ai21Response struct {
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

// flattenPrompt joins every message into a single newline-separated prompt,
// prefixing non-user turns with their role — the shape Titan/Llama/Cohere's
// flat-prompt InvokeModel bodies expect in place of a structured turn list.
func flattenPrompt(req *providers.ProxyRequest) string {
	var sb strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		if role := strings.ToLower(m.Role); role != "user" {
			sb.WriteString(role)
			sb.WriteString(": ")
		}
		sb.WriteString(m.Content.Text())
	}
	return sb.String()
}

// buildFamilyBody constructs the InvokeModel JSON body for a non-Converse
// model family.
func buildFamilyBody(fam modelFamily, req *providers.ProxyRequest) (any, error) {
	switch fam {
	case familyTitan:
		body := titanRequest{InputText: flattenPrompt(req)}
		if req.MaxTokens > 0 || req.Temperature > 0 {
			body.TextGenerationConfig = &titanGenerationConf{
				MaxTokenCount: req.MaxTokens,
				Temperature:   req.Temperature,
			}
		}
		return body, nil
	case familyLlama:
		return llamaRequest{
			Prompt:      flattenPrompt(req),
			MaxGenLen:   req.MaxTokens,
			Temperature: req.Temperature,
		}, nil
	case familyCohere:
		return cohereRequest{
			Prompt:      flattenPrompt(req),
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}, nil
	case familyAI21:
		msgs := make([]ai21Message, len(req.Messages))
		for i, m := range req.Messages {
			msgs[i] = ai21Message{Role: strings.ToLower(m.Role), Content: m.Content.Text()}
		}
		return ai21Request{
			Messages:    msgs,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}, nil
	default:
		return nil, fmt.Errorf("bedrock: no InvokeModel body for family %d", fam)
	}
}

// parseFamilyResponse extracts text and usage from a family's InvokeModel
// response body.
func parseFamilyResponse(fam modelFamily, data []byte) (content string, inputTokens, outputTokens int, err error) {
	switch fam {
	case familyTitan:
		var r titanResponse
		if err = json.Unmarshal(data, &r); err != nil {
			return
		}
		inputTokens = r.InputTextTokenCount
		if len(r.Results) > 0 {
			content = r.Results[0].OutputText
			outputTokens = r.Results[0].TokenCount
		}
	case familyLlama:
		var r llamaResponse
		if err = json.Unmarshal(data, &r); err != nil {
			return
		}
		content = r.Generation
		inputTokens = r.PromptTokenCount
		outputTokens = r.GenerationTokenCount
	case familyCohere:
		var r cohereResponse
		if err = json.Unmarshal(data, &r); err != nil {
			return
		}
		if len(r.Generations) > 0 {
			content = r.Generations[0].Text
		}
	case familyAI21:
		var r ai21Response
		if err = json.Unmarshal(data, &r); err != nil {
			return
		}
		if len(r.Choices) > 0 {
			content = r.Choices[0].Message.Content
		}
		inputTokens = r.Usage.PromptTokens
		outputTokens = r.Usage.CompletionTokens
	default:
		err = fmt.Errorf("bedrock: no InvokeModel response parser for family %d", fam)
	}
	return
}

// invokeModelEndpoint returns the Bedrock InvokeModel URL for a given model.
func (p *Provider) invokeModelEndpoint(modelID string) string {
	if p.endpointURL != "" {
		return fmt.Sprintf("%s/model/%s/invoke", strings.TrimRight(p.endpointURL, "/"), modelID)
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke", p.region, modelID)
}

// handleFamilyResponse issues a non-streaming InvokeModel call using the
// given family's native body shape (spec §4.C/§4.D).
func (p *Provider) handleFamilyResponse(ctx context.Context, req *providers.ProxyRequest, fam modelFamily) (*providers.ProxyResponse, error) {
	body, err := buildFamilyBody(fam, req)
	if err != nil {
		return nil, fmt.Errorf("bedrock: build request: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal: %w", err)
	}

	endpoint := p.invokeModelEndpoint(req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := p.signRequest(httpReq, payload); err != nil {
		return nil, fmt.Errorf("bedrock: sign: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: read response: %w", err)
	}

	content, inTok, outTok, err := parseFamilyResponse(fam, data)
	if err != nil {
		return nil, fmt.Errorf("bedrock: decode response: %w", err)
	}

	return &providers.ProxyResponse{
		ID:      req.RequestID,
		Model:   req.Model,
		Content: content,
		Usage: providers.Usage{
			InputTokens:  inTok,
			OutputTokens: outTok,
		},
	}, nil
}
