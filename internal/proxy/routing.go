package proxy

import (
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

// resolveProvider returns the provider name for the given chat/completion model.
// Falls back to "openai" if the model is unknown.
func resolveProvider(model string) string {
	if name, ok := providers.ModelAliases[model]; ok {
		return name
	}
	return "openai"
}

// resolveEmbeddingProvider returns the provider name for the given embedding model.
// It checks EmbeddingModelAliases first, then ModelAliases for provider detection,
// and falls back to "openai".
func resolveEmbeddingProvider(model string) string {
	if name, ok := providers.EmbeddingModelAliases[model]; ok {
		return name
	}
	// A user might pass a chat model name; resolve to its provider so it can
	// attempt the embedding call (the provider API will return a clear error).
	if name, ok := providers.ModelAliases[model]; ok {
		return name
	}
	return "openai"
}

// resolveImageProvider returns the provider name for the given image model.
// Falls back to "openai" if the model is unknown.
func resolveImageProvider(model string) string {
	if name, ok := providers.ImageModelAliases[model]; ok {
		return name
	}
	return "openai"
}

// resolveSpeechProvider returns the provider name for the given
// text-to-speech model. Unlike chat/embeddings/image aliases there is no
// sensible default provider for audio, so callers must check ok.
func resolveSpeechProvider(model string) (name string, ok bool) {
	name, ok = providers.SpeechModelAliases[model]
	return name, ok
}

// resolveTranscribeProvider returns the provider name for the given
// speech-to-text model. Unlike chat/embeddings/image aliases there is no
// sensible default provider for audio, so callers must check ok.
func resolveTranscribeProvider(model string) (name string, ok bool) {
	name, ok = providers.TranscribeModelAliases[model]
	return name, ok
}

// resolveRealtimeProvider returns the provider name for the given real-time
// conversational-session model (spec §4.G). Unlike chat/embeddings/image
// aliases there is no sensible default provider, so callers must check ok.
func resolveRealtimeProvider(model string) (name string, ok bool) {
	name, ok = providers.RealtimeModelAliases[model]
	return name, ok
}
