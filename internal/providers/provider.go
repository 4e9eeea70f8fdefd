// Package providers defines the common interfaces and types used by all LLM
// provider implementations (OpenAI, Anthropic, Gemini, Mistral, and others).
//
// Each provider lives in its own sub-package and implements the Provider
// interface. Providers that support vector embeddings additionally implement
// EmbeddingProvider.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nulpointcorp/conduit-gateway/internal/realtime"
)

type (
	// StreamChunk is a single token chunk delivered during a streaming response.
	StreamChunk struct {
		Content      string
		FinishReason string
	}

	// Message is a single turn in a conversation (role + content parts).
	Message struct {
		Role    string
		Content Content
	}

	// Usage — token usage stats.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}

	// ProxyRequest — normalized client request.
	ProxyRequest struct {
		Model       string
		Messages    []Message
		Stream      bool
		Temperature float64
		MaxTokens   int
		WorkspaceID string
		APIKey      string
		APIKeyID    string
		RequestID   string
	}

	// ProxyResponse — normalized provider response.
	ProxyResponse struct {
		ID      string
		Model   string
		Content string
		Usage   Usage
		Stream  <-chan StreamChunk // nil if it's not a stream.
	}

	// EmbeddingRequest — normalized embedding request.
	EmbeddingRequest struct {
		// Input is the list of texts to embed. Always at least one element.
		Input []string
		// Model is the provider-native model name (e.g. "text-embedding-3-small").
		Model       string
		WorkspaceID string
		APIKey      string
		APIKeyID    string
		RequestID   string
	}

	// EmbeddingData — a single embedding vector.
	EmbeddingData struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}

	// EmbeddingResponse — normalized embedding response.
	EmbeddingResponse struct {
		Model string
		Data  []EmbeddingData
		Usage Usage
	}
)

// ContentPartType is the closed set of content categories a message part
// can carry (spec §4.C content-part normalization: "text" | "image").
type ContentPartType string

const (
	ContentText        ContentPartType = "text"
	ContentImageURL    ContentPartType = "image_url"
	ContentImageBase64 ContentPartType = "image_base64"
)

// ContentPart is one piece of a Message's content: plain text, a
// remotely-hosted image, or an inline base64-encoded image with its media
// type (e.g. "image/png").
type ContentPart struct {
	Type ContentPartType

	Text string // set when Type == ContentText

	ImageURL string // set when Type == ContentImageURL

	MediaType string // set when Type == ContentImageBase64
	ImageData string // base64 bytes, no "data:" prefix; set when Type == ContentImageBase64
}

// TextContent builds a single-part, text-only Content — the common case for
// callers and tests constructing a Message by hand.
func TextContent(s string) Content {
	return Content{{Type: ContentText, Text: s}}
}

// Content is a Message's body: an ordered list of parts. A request whose
// content is a plain JSON string unmarshals to a single ContentText part
// (spec §4.C: "the content field may be a plain string, treated as a
// single text part"); a request sending an OpenAI-style content array
// unmarshals to one part per array element.
type Content []ContentPart

// IsTextOnly reports whether every part is plain text (spec §4.C:
// "IsTextOnly returns true iff every part is text").
func (c Content) IsTextOnly() bool {
	for _, p := range c {
		if p.Type != ContentText {
			return false
		}
	}
	return true
}

// Text concatenates every text part and drops image parts. Used by
// adapters and the tokenizer that only need a flat string — every provider
// except Anthropic and the OpenAI-compatible family reads content this way
// today.
func (c Content) Text() string {
	if len(c) == 1 && c[0].Type == ContentText {
		return c[0].Text
	}
	var sb strings.Builder
	for _, p := range c {
		if p.Type == ContentText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

type contentPartWire struct {
	Type     ContentPartType      `json:"type"`
	Text     string               `json:"text,omitempty"`
	ImageURL *contentImageURLWire `json:"image_url,omitempty"`
}

type contentImageURLWire struct {
	URL string `json:"url"`
}

// MarshalJSON renders a single text part as a bare string (the common
// case) and anything else as an OpenAI-style content-part array, so a
// re-serialized request (e.g. buildCacheKey) round-trips through the same
// shape a plain-string client sent.
func (c Content) MarshalJSON() ([]byte, error) {
	if len(c) == 1 && c[0].Type == ContentText {
		return json.Marshal(c[0].Text)
	}
	parts := make([]contentPartWire, len(c))
	for i, p := range c {
		switch p.Type {
		case ContentImageURL:
			parts[i] = contentPartWire{Type: ContentImageURL, ImageURL: &contentImageURLWire{URL: p.ImageURL}}
		case ContentImageBase64:
			parts[i] = contentPartWire{Type: ContentImageURL, ImageURL: &contentImageURLWire{
				URL: "data:" + p.MediaType + ";base64," + p.ImageData,
			}}
		default:
			parts[i] = contentPartWire{Type: ContentText, Text: p.Text}
		}
	}
	return json.Marshal(parts)
}

// UnmarshalJSON accepts either a plain string (single text part) or an
// array of {"type": "text"|"image_url", ...} objects matching OpenAI's
// vision content-part format. An image_url part whose URL carries a
// "data:<media-type>;base64,<data>" URI is classified as ContentImageBase64
// so adapters don't need to sniff the URL themselves.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{{Type: ContentText, Text: s}}
		return nil
	}

	var wire []contentPartWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("providers: content must be a string or an array of content parts: %w", err)
	}

	out := make(Content, 0, len(wire))
	for _, p := range wire {
		switch p.Type {
		case ContentText, "":
			out = append(out, ContentPart{Type: ContentText, Text: p.Text})
		case ContentImageURL, "image":
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return fmt.Errorf("providers: content part of type %q missing image_url", p.Type)
			}
			if mediaType, b64, ok := parseDataURI(p.ImageURL.URL); ok {
				out = append(out, ContentPart{Type: ContentImageBase64, MediaType: mediaType, ImageData: b64})
			} else {
				out = append(out, ContentPart{Type: ContentImageURL, ImageURL: p.ImageURL.URL})
			}
		default:
			return fmt.Errorf("providers: unsupported content part type %q", p.Type)
		}
	}
	*c = out
	return nil
}

// parseDataURI splits a "data:<media-type>;base64,<data>" URI into its
// media type and base64 payload. ok is false for any other URL scheme.
func parseDataURI(uri string) (mediaType, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}
	rest := uri[len(prefix):]
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	meta = strings.TrimSuffix(meta, ";base64")
	return meta, payload, true
}

// Provider — LLM provider interface.
type Provider interface {
	Name() string
	Request(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error)
	HealthCheck(ctx context.Context) error
}

// EmbeddingProvider is an optional interface implemented by providers that
// support the embeddings API. Check with a type assertion before calling.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// EmbeddingModelAliases maps embedding model names to provider names.
// Used by the proxy to route POST /v1/embeddings requests.
var EmbeddingModelAliases = map[string]string{
	// OpenAI
	"text-embedding-3-small": "openai",
	"text-embedding-3-large": "openai",
	"text-embedding-ada-002": "openai",
	// Mistral
	"mistral-embed": "mistral",
	// Google Gemini
	"text-embedding-004": "gemini",
	"embedding-001":      "gemini",
	// Cohere
	"embed-english-v3.0":       "cohere",
	"embed-multilingual-v3.0":  "cohere",
}

// ImageModelAliases maps image-generation model names to provider names.
// Used by the proxy to route POST /v1/images/generations requests.
var ImageModelAliases = map[string]string{
	"dall-e-3": "openai",
	"dall-e-2": "openai",
}

// SpeechModelAliases maps text-to-speech model names to provider names.
// Used by the proxy to route POST /v1/audio/speech requests.
var SpeechModelAliases = map[string]string{
	"eleven_multilingual_v2": "elevenlabs",
	"eleven_turbo_v2":        "elevenlabs",
	"google-tts":             "googlecloud",
}

// TranscribeModelAliases maps speech-to-text model names to provider names.
// Used by the proxy to route POST /v1/audio/transcriptions requests.
var TranscribeModelAliases = map[string]string{
	"google-stt": "googlecloud",
}

// RealtimeModelAliases maps real-time conversational-session model names to
// provider names. Used by the /v1/realtime WebSocket endpoint (spec §4.G).
var RealtimeModelAliases = map[string]string{
	"ultravox-realtime":   "ultravox",
	"elevenlabs-realtime": "elevenlabs",
}

// ModelAliases maps model names to provider names.
// Used by the proxy to route POST /v1/chat/completions requests.
var ModelAliases = map[string]string{

	// ─── OpenAI ───────────────────────────────────────────────────────────────
	"gpt-4":                  "openai",
	"gpt-4-0613":             "openai",
	"gpt-4o":                 "openai",
	"gpt-4o-2024-11-20":      "openai",
	"gpt-4o-2024-08-06":      "openai",
	"gpt-4o-2024-05-13":      "openai",
	"gpt-4o-mini":            "openai",
	"gpt-4o-mini-2024-07-18": "openai",
	"gpt-4-turbo":            "openai",
	"gpt-4-turbo-2024-04-09": "openai",
	"gpt-4-turbo-preview":    "openai",
	"gpt-3.5-turbo":          "openai",
	"gpt-3.5-turbo-0125":     "openai",
	"gpt-3.5-turbo-1106":     "openai",
	"o1":                     "openai",
	"o1-mini":                "openai",
	"o1-preview":             "openai",
	"o1-2024-12-17":          "openai",
	"o3":                     "openai",
	"o3-mini":                "openai",
	"o3-mini-2025-01-31":     "openai",
	"o4-mini":                "openai",
	"gpt-4.1":                "openai",
	"gpt-4.1-mini":           "openai",
	"gpt-4.1-nano":           "openai",

	// ─── Anthropic ────────────────────────────────────────────────────────────
	"claude-3-5-sonnet":          "anthropic",
	"claude-3-5-sonnet-20241022": "anthropic",
	"claude-3-5-haiku":           "anthropic",
	"claude-3-5-haiku-20241022":  "anthropic",
	"claude-3-opus":              "anthropic",
	"claude-3-opus-20240229":     "anthropic",
	"claude-3-haiku":             "anthropic",
	"claude-3-haiku-20240307":    "anthropic",
	"claude-3-sonnet-20240229":   "anthropic",
	"claude-3-7-sonnet-20250219": "anthropic",
	"claude-3-7-sonnet":          "anthropic",
	"claude-opus-4":              "anthropic",
	"claude-sonnet-4":            "anthropic",
	"claude-haiku-4":             "anthropic",
	"claude-opus-4-5":            "anthropic",
	"claude-sonnet-4-5":          "anthropic",
	"claude-haiku-4-5":           "anthropic",
	"claude-opus-4-6":            "anthropic",
	"claude-sonnet-4-6":          "anthropic",
	"claude-haiku-4-6":           "anthropic",

	// ─── Google AI Studio ─────────────────────────────────────────────────────
	"gemini-pro":                    "gemini",
	"gemini-1.0-pro":                "gemini",
	"gemini-1.5-pro":                "gemini",
	"gemini-1.5-pro-002":            "gemini",
	"gemini-1.5-flash":              "gemini",
	"gemini-1.5-flash-002":          "gemini",
	"gemini-1.5-flash-8b":           "gemini",
	"gemini-2.0-flash":              "gemini",
	"gemini-2.0-flash-lite":         "gemini",
	"gemini-2.0-flash-exp":          "gemini",
	"gemini-2.0-pro-exp":            "gemini",
	"gemini-2.5-pro":                "gemini",
	"gemini-2.5-flash":              "gemini",
	"gemini-exp-1206":               "gemini",
	"gemini-2.0-flash-thinking-exp": "gemini",
	"gemma-3-27b-it":                "gemini",
	"gemma-3-12b-it":                "gemini",
	"gemma-3-4b-it":                 "gemini",
	"gemma-2-27b-it":                "gemini",
	"gemma-2-9b-it":                 "gemini",
	"gemma-2-2b-it":                 "gemini",
	"learnlm-1.5-pro-experimental":  "gemini",

	// ─── Mistral AI ───────────────────────────────────────────────────────────
	"mistral-large-latest":  "mistral",
	"mistral-small-latest":  "mistral",
	"mistral-large":         "mistral",
	"mistral-large-2411":    "mistral",
	"mistral-medium":        "mistral",
	"mistral-small-2501":    "mistral",
	"mistral-small-2412":    "mistral",
	"mistral-nemo":          "mistral",
	"open-mistral-nemo":     "mistral",
	"mixtral-8x7b":          "mistral",
	"open-mixtral-8x22b":    "mistral",
	"pixtral-large-2411":    "mistral",
	"pixtral-12b-2409":      "mistral",
	"codestral-2501":        "mistral",
	"codestral-latest":      "mistral",
	"ministral-3b-latest":   "mistral",
	"ministral-8b-latest":   "mistral",

	// ─── xAI (Grok) ───────────────────────────────────────────────────────────
	"grok-3":             "xai",
	"grok-3-fast":        "xai",
	"grok-3-mini":        "xai",
	"grok-3-mini-fast":   "xai",
	"grok-3-latest":      "xai",
	"grok-2":             "xai",
	"grok-2-mini":        "xai",
	"grok-2-1212":        "xai",
	"grok-2-vision":      "xai",
	"grok-2-vision-1212": "xai",
	"grok-2-image-1212":  "xai",
	"grok-beta":          "xai",
	"grok-vision-beta":   "xai",

	// ─── DeepSeek ─────────────────────────────────────────────────────────────
	"deepseek-chat":     "deepseek",
	"deepseek-reasoner": "deepseek",

	// ─── Groq ─────────────────────────────────────────────────────────────────
	// Groq uses its own model naming distinct from HuggingFace IDs.
	"llama-3.3-70b-versatile": "groq",
	"llama-3.1-70b-versatile": "groq",
	"llama-3.1-8b-instant":    "groq",
	"llama3-70b-8192":         "groq",
	"llama3-8b-8192":          "groq",
	"gemma2-9b-it":            "groq",

	// ─── Together AI ──────────────────────────────────────────────────────────
	// Uses HuggingFace-style names with provider/model format.
	"meta-llama/Llama-3.3-70B-Instruct-Turbo":       "together",
	"meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo": "together",
	"meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo":  "together",
	"meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo":   "together",
	"mistralai/Mixtral-8x7B-Instruct-v0.1":          "together",
	"mistralai/Mixtral-8x22B-Instruct-v0.1":         "together",
	"Qwen/Qwen2.5-72B-Instruct-Turbo":               "together",
	"deepseek-ai/DeepSeek-R1":                       "together",
	"google/gemma-2-27b-it":                         "together",

	// ─── Cerebras ─────────────────────────────────────────────────────────────
	// Cerebras uses short model names (note: llama3.1 not llama-3.1).
	"llama3.1-8b":                   "cerebras",
	"llama3.1-70b":                  "cerebras",
	"llama3.3-70b":                  "cerebras",
	"qwen-3-32b":                    "cerebras",
	"deepseek-r1-distill-llama-70b": "cerebras",
	"qwen-3-235b":                   "cerebras",
	"llama4-scout-17b-16e":          "cerebras",

	// ─── Moonshot AI ──────────────────────────────────────────────────────────
	"moonshot-v1-8k":   "moonshot",
	"moonshot-v1-32k":  "moonshot",
	"moonshot-v1-128k": "moonshot",
	"moonshot-v1-auto": "moonshot",
	"kimi-latest":      "moonshot",

	// ─── MiniMax ──────────────────────────────────────────────────────────────
	"MiniMax-Text-01": "minimax",
	"MiniMax-VL-01":   "minimax",
	"abab6.5s-chat":   "minimax",
	"abab6.5-chat":    "minimax",
	"abab5.5-chat":    "minimax",

	// ─── Perplexity ───────────────────────────────────────────────────────────
	"sonar":           "perplexity",
	"sonar-pro":       "perplexity",
	"sonar-reasoning": "perplexity",

	// ─── Alibaba Cloud (Qwen) ─────────────────────────────────────────────────
	"qwen-turbo":           "qwen",
	"qwen-plus":            "qwen",
	"qwen-max":             "qwen",
	"qwen-max-2025-01-25":  "qwen",
	"qwen-long":            "qwen",
	"qwen-vl-plus":         "qwen",
	"qwen-vl-max":          "qwen",
	"qwq-plus":             "qwen",
	"qwq-32b":              "qwen",
	"qwen2.5-72b-instruct": "qwen",
	"qwen2.5-32b-instruct": "qwen",
	"qwen2.5-7b-instruct":  "qwen",

	// ─── Nebius AI Studio ─────────────────────────────────────────────────────
	// Uses HuggingFace IDs — note different variant names from Together AI.
	"meta-llama/Meta-Llama-3.1-70B-Instruct": "nebius",
	"meta-llama/Meta-Llama-3.1-8B-Instruct":  "nebius",
	"meta-llama/Meta-Llama-3.3-70B-Instruct": "nebius",
	"Qwen/Qwen2.5-72B-Instruct":              "nebius",
	"mistralai/Mistral-7B-Instruct-v0.3":     "nebius",
	"mistralai/Mistral-Nemo-Instruct-2407":   "nebius",
	"deepseek-ai/DeepSeek-V3":                "nebius",
	"deepseek-ai/DeepSeek-R1-Nebius":         "nebius",

	// ─── NovitaAI ─────────────────────────────────────────────────────────────
	// Uses lowercase HuggingFace IDs.
	"meta-llama/llama-3.1-8b-instruct":   "novita",
	"meta-llama/llama-3.1-70b-instruct":  "novita",
	"meta-llama/llama-3.1-405b-instruct": "novita",
	"meta-llama/llama-3.3-70b-instruct":  "novita",
	"deepseek/deepseek-v3":               "novita",
	"deepseek/deepseek-r1":               "novita",
	"mistralai/mistral-7b-instruct-v0.3": "novita",
	"qwen/qwen2.5-72b-instruct":          "novita",

	// ─── ByteDance ModelArk ───────────────────────────────────────────────────
	"doubao-1.5-pro-32k":  "bytedance",
	"doubao-1.5-lite-32k": "bytedance",
	"doubao-pro-32k":      "bytedance",
	"doubao-lite-32k":     "bytedance",
	"doubao-pro-4k":       "bytedance",
	"doubao-pro-128k":     "bytedance",

	// ─── Z AI ─────────────────────────────────────────────────────────────────
	"glm-4-plus":  "zai",
	"glm-4-air":   "zai",
	"glm-4-flash": "zai",
	"glm-4-0520":  "zai",
	"glm-4":       "zai",
	"glm-3-turbo": "zai",

	// ─── CanopyWave ───────────────────────────────────────────────────────────
	// OpenAI-compatible infrastructure provider; model names match OpenAI format.
	// Routes to CanopyWave when explicitly configured as primary provider.

	// ─── Inference.net ────────────────────────────────────────────────────────
	"inference-llama-3.1-8b":  "inference",
	"inference-llama-3.1-70b": "inference",

	// ─── NanoGPT ──────────────────────────────────────────────────────────────
	// NanoGPT aggregates many models; use the nanogpt- prefix for routing.
	"nanogpt-gpt-4o":   "nanogpt",
	"nanogpt-claude-3": "nanogpt",

	// ─── AWS Bedrock ──────────────────────────────────────────────────────────
	// Bedrock uses provider-namespaced model IDs.
	"anthropic.claude-3-5-sonnet-20241022-v2:0": "bedrock",
	"anthropic.claude-3-opus-20240229-v1:0":     "bedrock",
	"anthropic.claude-3-haiku-20240307-v1:0":    "bedrock",
	"anthropic.claude-3-sonnet-20240229-v1:0":   "bedrock",
	"meta.llama3-70b-instruct-v1:0":             "bedrock",
	"meta.llama3-8b-instruct-v1:0":              "bedrock",
	"meta.llama3-1-70b-instruct-v1:0":           "bedrock",
	"amazon.titan-text-express-v1":              "bedrock",
	"amazon.titan-text-lite-v1":                 "bedrock",
	"amazon.nova-pro-v1:0":                      "bedrock",
	"amazon.nova-lite-v1:0":                     "bedrock",
	"amazon.nova-micro-v1:0":                    "bedrock",
	"mistral.mistral-large-2402-v1:0":           "bedrock",
	"ai21.jamba-1-5-large-v1:0":                 "bedrock",

	// ─── Azure OpenAI ─────────────────────────────────────────────────────────
	// Use the "azure-" prefix to route explicitly to Azure. The prefix is
	// stripped to derive the Azure deployment name.
	"azure-gpt-4":        "azure",
	"azure-gpt-4o":       "azure",
	"azure-gpt-4-turbo":  "azure",
	"azure-gpt-4o-mini":  "azure",
	"azure-o1":           "azure",
	"azure-o3-mini":      "azure",
	"azure-gpt-4.1":      "azure",
	"azure-gpt-4.1-mini": "azure",

	// ─── Google Vertex AI ─────────────────────────────────────────────────────
	// Use the "vertexai-" prefix to route explicitly to Vertex AI.
	// Without the prefix, Gemini models default to Google AI Studio.
	"vertexai-gemini-2.0-flash":      "vertexai",
	"vertexai-gemini-2.0-flash-lite": "vertexai",
	"vertexai-gemini-1.5-pro":        "vertexai",
	"vertexai-gemini-1.5-flash":      "vertexai",
	"vertexai-gemini-2.5-pro":        "vertexai",
	"vertexai-gemini-2.5-flash":      "vertexai",

	// ─── Cohere ───────────────────────────────────────────────────────────────
	"command-r-plus": "cohere",
	"command-r":      "cohere",
	"command-light":  "cohere",
	"command-a-03-2025": "cohere",

	// ─── Hugging Face Inference API ──────────────────────────────────────────
	"meta-llama/Meta-Llama-3-8B-Instruct": "huggingface",
	"mistralai/Mistral-7B-Instruct-v0.2":  "huggingface",

	// ─── Replicate (owner/model:version strings) ─────────────────────────────
	"meta/meta-llama-3-70b-instruct": "replicate",
	"mistralai/mixtral-8x7b-instruct-v0.1": "replicate",

	// ─── Fireworks AI ─────────────────────────────────────────────────────────
	"accounts/fireworks/models/llama-v3p1-70b-instruct": "fireworks",
	"accounts/fireworks/models/mixtral-8x7b-instruct":   "fireworks",

	// ─── DeepInfra ────────────────────────────────────────────────────────────
	"meta-llama/Meta-Llama-3.1-70B-Instruct-deepinfra": "deepinfra",

	// ─── SambaNova ────────────────────────────────────────────────────────────
	"Meta-Llama-3.1-70B-Instruct": "sambanova",
	"Meta-Llama-3.1-8B-Instruct":  "sambanova",

	// ─── OpenRouter ───────────────────────────────────────────────────────────
	// OpenRouter aggregates many upstreams under "vendor/model" IDs; use the
	// "openrouter/" prefix to route explicitly.
	"openrouter/auto": "openrouter",

	// ─── Ollama (local models, no provider prefix needed) ────────────────────
	"llama3":  "ollama",
	"llama3.1": "ollama",
	"mistral-local": "ollama",
}

// DefaultFallbackOrder is the default provider failover sequence.
// When the primary provider fails, the gateway tries each provider in this
// order until one succeeds or MaxRetries is exhausted.
var DefaultFallbackOrder = []string{
	"openai",
	"anthropic",
	"gemini",
	"mistral",
	"xai",
	"groq",
	"azure",
	"vertexai",
	"bedrock",
}

// Default circuit breaker and failover constants.
const (
	CBErrorThreshold  = 5
	CBTimeWindow      = 60 * time.Second
	CBHalfOpenTimeout = 30 * time.Second
	MaxRetries        = 3
	ProviderTimeout   = 30 * time.Second
)

type StatusCoder interface {
	HTTPStatus() int
}

// ── Optional capability interfaces (spec §4.D operation table) ─────────────
//
// Provider is the minimal contract every adapter satisfies (chat, via
// Request, plus HealthCheck). EmbeddingProvider, ImageProvider,
// ListModelsProvider and AuthVerifier are additional capabilities an
// adapter may implement; callers type-assert before using them so an
// adapter that can't support a modality simply doesn't implement the
// interface rather than returning UnsupportedOperation at runtime. The
// client factory (internal/registry) still surfaces UnsupportedOperation
// to HTTP callers that hit an operation a resolved adapter lacks.

// ImageRequest is a normalized image-generation request.
type ImageRequest struct {
	Prompt      string
	N           int
	Size        string
	Quality     string
	Model       string
	APIKey      string
	WorkspaceID string
	RequestID   string
}

// ImageData is one generated image, as a URL or inline base64 payload.
type ImageData struct {
	URL     string
	B64JSON string
}

// ImageResponse is a normalized image-generation response.
type ImageResponse struct {
	Created int64
	Data    []ImageData
	Usage   Usage
}

// ImageProvider is implemented by adapters that support image generation.
type ImageProvider interface {
	CreateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

// ListModelsProvider is implemented by adapters that can report a model
// list. Most query the provider directly; some (gemini, vertexai) return a
// hard-coded allowlist after a health check instead.
type ListModelsProvider interface {
	ListModels(ctx context.Context) ([]string, error)
}

// AuthResult is the outcome of VerifyAuthentication: whether the credential
// is accepted by the provider, and how long the round trip took.
type AuthResult struct {
	OK          bool
	RoundTripMs int64
	Details     string
}

// AuthVerifier is implemented by adapters that can verify a credential
// in isolation, without needing a full chat/completion request. apiKey and
// baseURL overrides are optional; empty means "use the adapter's configured
// default."
type AuthVerifier interface {
	VerifyAuthentication(ctx context.Context, apiKey, baseURL string) (*AuthResult, error)
}

// SpeechRequest is a normalized text-to-speech request. Not every field
// applies to every provider (Voice/Model are ElevenLabs concepts, Language
// is a Google Cloud TTS concept); adapters use what they need and ignore
// the rest.
type SpeechRequest struct {
	Text     string
	Voice    string
	Model    string
	Language string
	APIKey   string
}

// SpeechResponse carries the synthesized audio.
type SpeechResponse struct {
	Audio       []byte
	ContentType string
}

// SpeechProvider is implemented by adapters that can synthesize audio from
// text (spec §4.D CreateSpeech / spec's /v1/audio/speech surface). Speak
// wraps each adapter's native signature so the HTTP layer can dispatch
// without knowing which parameters a given provider's TTS endpoint needs.
type SpeechProvider interface {
	Speak(ctx context.Context, req *SpeechRequest) (*SpeechResponse, error)
}

// TranscribeRequest is a normalized speech-to-text request.
type TranscribeRequest struct {
	Audio           []byte
	SampleRateHertz int
	Language        string
	APIKey          string
}

// TranscribeResponse carries the recognized text.
type TranscribeResponse struct {
	Text string
}

// TranscribeProvider is implemented by adapters that can transcribe audio
// to text (spec §4.D Transcribe / spec's /v1/audio/transcriptions surface).
type TranscribeProvider interface {
	TranscribeAudio(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error)
}

// RealtimeProvider is implemented by adapters offering full-duplex
// real-time audio sessions (spec §4.G). OpenRealtimeSession dials the
// provider's streaming transport and returns a session already in the
// Connected state; Capabilities reports the transport limits the gateway
// advertises to clients before they open a session.
type RealtimeProvider interface {
	OpenRealtimeSession(ctx context.Context, sessionID string, cfg realtime.SessionConfig) (*realtime.Session, error)
	Capabilities() realtime.Capabilities
}

// ModelContextWindows gives the gateway's tiktoken-based pre-flight check
// (internal/providers/tokenizer) a max-token budget per model alias, so a
// request can be rejected with ContextLengthExceeded before it is ever sent
// upstream. Only the aliases with a well-known published context window are
// listed; an alias absent from this map skips the pre-flight check entirely
// and relies on the provider's own validation.
var ModelContextWindows = map[string]int{
	"gpt-4":               8192,
	"gpt-4-0613":          8192,
	"gpt-4-turbo":         128000,
	"gpt-4-turbo-preview": 128000,
	"gpt-4o":              128000,
	"gpt-4o-mini":         128000,
	"gpt-3.5-turbo":       16385,
	"o1":                  200000,
	"o1-mini":             128000,
	"o1-preview":          128000,
	"o3":                  200000,
	"o3-mini":             200000,
	"o4-mini":             200000,
	"gpt-4.1":             1047576,
	"gpt-4.1-mini":        1047576,
	"gpt-4.1-nano":        1047576,

	"claude-3-5-sonnet-20241022": 200000,
	"claude-3-5-haiku-20241022":  200000,
	"claude-3-opus-20240229":     200000,
	"claude-3-haiku-20240307":    200000,
	"claude-3-sonnet-20240229":   200000,
	"claude-3-7-sonnet-20250219": 200000,
	"claude-opus-4":              200000,
	"claude-sonnet-4":            200000,
	"claude-haiku-4":             200000,

	"gemini-1.5-pro":   2097152,
	"gemini-1.5-flash": 1048576,
	"gemini-2.0-flash": 1048576,
	"gemini-2.5-pro":   1048576,
	"gemini-2.5-flash": 1048576,

	"mistral-large-latest": 131072,
	"mistral-small-latest": 32768,
	"open-mistral-nemo":    131072,
}
