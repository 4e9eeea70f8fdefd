package registry

import (
	"context"
	"time"

	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

// trackedProvider decorates a providers.Provider with wall-clock and
// success/failure recording, tagged by provider name (spec §4.E step 5:
// "wrap the adapter with a decorator that records wall-clock ... and
// success/failure per call"). First-token latency for streaming calls is
// recorded by the gateway's stream consumer, which sees individual chunks;
// this decorator only sees Request's overall duration.
type trackedProvider struct {
	providers.Provider
	metrics MetricsSink
}

func newTrackedProvider(p providers.Provider, m MetricsSink) providers.Provider {
	return &trackedProvider{Provider: p, metrics: m}
}

func (t *trackedProvider) Request(ctx context.Context, req *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	start := time.Now()
	resp, err := t.Provider.Request(ctx, req)
	t.metrics.RecordAdapterCall(t.Provider.Name(), time.Since(start).Milliseconds(), err == nil)
	return resp, err
}

// Embed forwards to the wrapped EmbeddingProvider, if the adapter implements
// one, recording the same wall-clock/success metrics.
func (t *trackedProvider) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	ep, ok := t.Provider.(providers.EmbeddingProvider)
	if !ok {
		return nil, &embeddingUnsupportedError{provider: t.Provider.Name()}
	}
	start := time.Now()
	resp, err := ep.Embed(ctx, req)
	t.metrics.RecordAdapterCall(t.Provider.Name(), time.Since(start).Milliseconds(), err == nil)
	return resp, err
}

type embeddingUnsupportedError struct{ provider string }

func (e *embeddingUnsupportedError) Error() string {
	return e.provider + ": does not support embeddings"
}
