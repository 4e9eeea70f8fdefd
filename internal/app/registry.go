package app

import (
	"context"
	"fmt"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/config"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	anthropicprov "github.com/nulpointcorp/conduit-gateway/internal/providers/anthropic"
	azureprov "github.com/nulpointcorp/conduit-gateway/internal/providers/azure"
	bedrockprov "github.com/nulpointcorp/conduit-gateway/internal/providers/bedrock"
	cohereprov "github.com/nulpointcorp/conduit-gateway/internal/providers/cohere"
	elevenlabsprov "github.com/nulpointcorp/conduit-gateway/internal/providers/elevenlabs"
	geminiprov "github.com/nulpointcorp/conduit-gateway/internal/providers/gemini"
	googlecloudprov "github.com/nulpointcorp/conduit-gateway/internal/providers/googlecloud"
	huggingfaceprov "github.com/nulpointcorp/conduit-gateway/internal/providers/huggingface"
	minimaxprov "github.com/nulpointcorp/conduit-gateway/internal/providers/minimax"
	mistralprov "github.com/nulpointcorp/conduit-gateway/internal/providers/mistral"
	openaiprov "github.com/nulpointcorp/conduit-gateway/internal/providers/openai"
	openaicompatprov "github.com/nulpointcorp/conduit-gateway/internal/providers/openaicompat"
	replicateprov "github.com/nulpointcorp/conduit-gateway/internal/providers/replicate"
	ultravoxprov "github.com/nulpointcorp/conduit-gateway/internal/providers/ultravox"
	vertexaiprov "github.com/nulpointcorp/conduit-gateway/internal/providers/vertexai"
	"github.com/nulpointcorp/conduit-gateway/internal/registry"
)

// configStore is the registry.Store backed directly by static config
// (internal/config) and the provider.ModelAliases roster, rather than an
// admin-plane database (out of scope per spec §1). It turns buildProviders'
// map-at-startup model into the per-call resolution the client factory
// (spec §4.E) expects, so internal/registry.Factory is genuinely exercised
// instead of sitting unused alongside the simpler provider map.
type configStore struct {
	cfg      *config.Config
	entries  map[string]catalogEntry
}

type catalogEntry struct {
	ptype   conduit.ProviderType
	apiKey  string
	baseURL string
	// secondary carries the AWS secret key for Bedrock.
	secondary  string
	apiVersion string
}

// newConfigStore builds the provider catalog once at startup from cfg. Every
// entry with a non-empty apiKey (or, for Bedrock, both keys) is enabled.
func newConfigStore(cfg *config.Config) *configStore {
	entries := map[string]catalogEntry{
		"openai":     {ptype: conduit.ProviderOpenAI, apiKey: cfg.OpenAI.APIKey, baseURL: cfg.OpenAI.BaseURL},
		"anthropic":  {ptype: conduit.ProviderAnthropic, apiKey: cfg.Anthropic.APIKey, baseURL: cfg.Anthropic.BaseURL},
		"gemini":     {ptype: conduit.ProviderGemini, apiKey: cfg.Gemini.APIKey, baseURL: cfg.Gemini.BaseURL},
		"mistral":    {ptype: conduit.ProviderMistral, apiKey: cfg.Mistral.APIKey, baseURL: cfg.Mistral.BaseURL},
		"groq":       {ptype: conduit.ProviderGroq, apiKey: cfg.Groq.APIKey, baseURL: "https://api.groq.com/openai/v1"},
		"cerebras":   {ptype: conduit.ProviderCerebras, apiKey: cfg.Cerebras.APIKey, baseURL: "https://api.cerebras.ai/v1"},
		"fireworks":  {ptype: conduit.ProviderFireworks, apiKey: cfg.Fireworks.APIKey, baseURL: "https://api.fireworks.ai/inference/v1"},
		"deepinfra":  {ptype: conduit.ProviderDeepInfra, apiKey: cfg.DeepInfra.APIKey, baseURL: "https://api.deepinfra.com/v1/openai"},
		"sambanova":  {ptype: conduit.ProviderSambaNova, apiKey: cfg.SambaNova.APIKey, baseURL: "https://api.sambanova.ai/v1"},
		"openrouter": {ptype: conduit.ProviderOpenRouter, apiKey: cfg.OpenRouter.APIKey, baseURL: "https://openrouter.ai/api/v1"},
		"ollama":     {ptype: conduit.ProviderOllama, apiKey: cfg.Ollama.APIKey, baseURL: cfg.Ollama.BaseURL},
		"huggingface": {ptype: conduit.ProviderHuggingFace, apiKey: cfg.HuggingFace.APIKey},
		"cohere":      {ptype: conduit.ProviderCohere, apiKey: cfg.Cohere.APIKey},
		"replicate":   {ptype: conduit.ProviderReplicate, apiKey: cfg.Replicate.APIKey},
		"minimax":     {ptype: conduit.ProviderMiniMax, apiKey: cfg.MiniMax.APIKey},
		"ultravox":    {ptype: conduit.ProviderUltravox, apiKey: cfg.Ultravox.APIKey},
		"elevenlabs":  {ptype: conduit.ProviderElevenLabs, apiKey: cfg.ElevenLabs.APIKey},
		"vertexai":    {ptype: conduit.ProviderVertexAI, apiKey: cfg.VertexAI.Project},
		"bedrock":     {ptype: conduit.ProviderBedrock, apiKey: cfg.Bedrock.AccessKey, secondary: cfg.Bedrock.SecretKey, baseURL: cfg.Bedrock.EndpointURL},
		"azure":       {ptype: conduit.ProviderAzureOpenAI, apiKey: cfg.Azure.APIKey, baseURL: cfg.Azure.Endpoint, apiVersion: cfg.Azure.APIVersion},
		"googlecloud": {ptype: conduit.ProviderGoogleCloud, apiKey: cfg.GoogleCloud.CredentialsJSON},

		// Generic OpenAI-compatible upstreams — every one of these shares the
		// ProviderOpenAICompatible adapter builder below.
		"xai":        {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.XAI.APIKey, baseURL: "https://api.x.ai/v1"},
		"deepseek":   {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.DeepSeek.APIKey, baseURL: "https://api.deepseek.com/v1"},
		"together":   {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.Together.APIKey, baseURL: "https://api.together.xyz/v1"},
		"perplexity": {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.Perplexity.APIKey, baseURL: "https://api.perplexity.ai"},
		"moonshot":   {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.Moonshot.APIKey, baseURL: "https://api.moonshot.cn/v1"},
		"qwen":       {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.Qwen.APIKey, baseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"},
		"nebius":     {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.Nebius.APIKey, baseURL: "https://api.studio.nebius.ai/v1"},
		"novita":     {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.NovitaAI.APIKey, baseURL: "https://api.novita.ai/v3/openai"},
		"bytedance":  {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.ByteDance.APIKey, baseURL: "https://ark.cn-beijing.volces.com/api/v3"},
		"zai":        {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.ZAI.APIKey, baseURL: "https://api.z.ai/api/openai/v1"},
		"canopywave": {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.CanopyWave.APIKey, baseURL: "https://api.canopywave.com/v1"},
		"inference":  {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.Inference.APIKey, baseURL: "https://api.inference.net/v1"},
		"nanogpt":    {ptype: conduit.ProviderOpenAICompatible, apiKey: cfg.NanoGPT.APIKey, baseURL: "https://nano-gpt.com/api/v1"},
	}

	return &configStore{cfg: cfg, entries: entries}
}

func (s *configStore) ModelMapping(alias string) (conduit.ModelMapping, bool) {
	name, ok := providers.ModelAliases[alias]
	if !ok {
		name, ok = providers.EmbeddingModelAliases[alias]
	}
	if !ok {
		return conduit.ModelMapping{}, false
	}
	return conduit.ModelMapping{Alias: alias, ProviderID: name, ProviderModelID: alias}, true
}

func (s *configStore) Provider(id string) (conduit.Provider, bool) {
	e, ok := s.entries[id]
	if !ok {
		return conduit.Provider{}, false
	}
	enabled := e.apiKey != ""
	if e.ptype == conduit.ProviderBedrock {
		enabled = e.apiKey != "" && e.secondary != "" && s.cfg.Bedrock.Region != ""
	}
	return conduit.Provider{ID: id, Name: id, Type: e.ptype, BaseURL: e.baseURL, Enabled: enabled}, true
}

func (s *configStore) Credentials(providerID string) []conduit.ProviderKeyCredential {
	e, ok := s.entries[providerID]
	if !ok || e.apiKey == "" {
		return nil
	}
	return []conduit.ProviderKeyCredential{{
		ID:              providerID + "-primary",
		ProviderID:      providerID,
		APIKey:          e.apiKey,
		SecondarySecret: e.secondary,
		APIVersion:      e.apiVersion,
		IsPrimary:       true,
		IsEnabled:       true,
	}}
}

// buildRegistry constructs a client factory (spec §4.E) over the config-
// backed store, with one AdapterBuilder per ProviderType this gateway
// supports. metrics may be nil to disable the tracking decorator.
func buildRegistry(ctx context.Context, cfg *config.Config, metrics registry.MetricsSink) *registry.Factory {
	store := newConfigStore(cfg)
	f := registry.New(store, metrics)

	f.Register(conduit.ProviderOpenAI, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		var opts []openaiprov.Option
		if p.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(p.BaseURL))
		}
		return openaiprov.New(cred.APIKey, opts...), nil
	})

	f.Register(conduit.ProviderAnthropic, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		var opts []anthropicprov.Option
		if p.BaseURL != "" {
			opts = append(opts, anthropicprov.WithBaseURL(p.BaseURL))
		}
		return anthropicprov.New(cred.APIKey, opts...), nil
	})

	f.Register(conduit.ProviderGemini, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		var opts []geminiprov.Option
		if p.BaseURL != "" {
			opts = append(opts, geminiprov.WithBaseURL(p.BaseURL))
		}
		return geminiprov.New(ctx, cred.APIKey, opts...), nil
	})

	f.Register(conduit.ProviderMistral, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		var opts []mistralprov.Option
		if p.BaseURL != "" {
			opts = append(opts, mistralprov.WithBaseURL(p.BaseURL))
		}
		return mistralprov.New(cred.APIKey, opts...), nil
	})

	f.Register(conduit.ProviderVertexAI, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		var opts []vertexaiprov.Option
		if cfg.VertexAI.Location != "" {
			opts = append(opts, vertexaiprov.WithLocation(cfg.VertexAI.Location))
		}
		return vertexaiprov.New(ctx, cfg.VertexAI.Project, opts...)
	})

	f.Register(conduit.ProviderBedrock, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		var opts []bedrockprov.Option
		if s := cfg.Bedrock.SessionToken; s != "" {
			opts = append(opts, bedrockprov.WithSessionToken(s))
		}
		if p.BaseURL != "" {
			opts = append(opts, bedrockprov.WithEndpointURL(p.BaseURL))
		}
		return bedrockprov.New(cred.APIKey, cred.SecondarySecret, cfg.Bedrock.Region, opts...), nil
	})

	f.Register(conduit.ProviderAzureOpenAI, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		apiVersion := cred.APIVersion
		if apiVersion == "" {
			apiVersion = "2024-12-01-preview"
		}
		return azureprov.New(p.BaseURL, cred.APIKey, apiVersion), nil
	})

	f.Register(conduit.ProviderCohere, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return cohereprov.New(cred.APIKey), nil
	})

	f.Register(conduit.ProviderHuggingFace, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return huggingfaceprov.New(cred.APIKey), nil
	})

	f.Register(conduit.ProviderReplicate, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return replicateprov.New(cred.APIKey), nil
	})

	f.Register(conduit.ProviderMiniMax, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return minimaxprov.New(cred.APIKey), nil
	})

	f.Register(conduit.ProviderUltravox, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return ultravoxprov.New(cred.APIKey), nil
	})

	f.Register(conduit.ProviderElevenLabs, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return elevenlabsprov.New(cred.APIKey), nil
	})

	f.Register(conduit.ProviderGoogleCloud, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		return googlecloudprov.New(ctx, []byte(cred.APIKey))
	})

	f.Register(conduit.ProviderOllama, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
		key := cred.APIKey
		if key == "" {
			key = "ollama"
		}
		return openaicompatprov.New("ollama", key, p.BaseURL), nil
	})

	// Every single-vendor OpenAI-compatible infrastructure provider (Groq,
	// Cerebras, Fireworks, DeepInfra, SambaNova, OpenRouter) plus the generic
	// aggregator bucket share one adapter, parameterized by name and base URL.
	for _, t := range []conduit.ProviderType{
		conduit.ProviderGroq, conduit.ProviderCerebras, conduit.ProviderFireworks,
		conduit.ProviderDeepInfra, conduit.ProviderSambaNova, conduit.ProviderOpenRouter,
		conduit.ProviderOpenAICompatible,
	} {
		f.Register(t, func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
			if cred.APIKey == "" {
				return nil, fmt.Errorf("registry: %s: no API key configured", p.Name)
			}
			return openaicompatprov.New(p.Name, cred.APIKey, p.BaseURL), nil
		})
	}

	return f
}
