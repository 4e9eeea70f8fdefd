// Package registry implements the client factory (spec §4.E): resolving a
// model alias to a concrete provider adapter through the
// ModelMapping -> Provider -> ProviderKeyCredential chain, optionally
// wrapped in a performance-tracking decorator. It generalizes the teacher's
// internal/app.buildProviders, which built one fixed provider map from
// static config at startup; this factory instead resolves per call against
// live, externally-mutable Provider/credential records, as spec §3 requires
// ("long-lived and externally mutable").
package registry

import (
	"fmt"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

// AdapterBuilder constructs a concrete adapter for one ProviderType given
// the resolved Provider record and its chosen credential. Registered per
// ProviderType by the composition root (internal/app), which is the only
// place that imports every concrete provider package — this file stays
// independent of any one provider's SDK.
type AdapterBuilder func(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error)

// Store is the minimal read surface over the externally-mutable
// configuration records the factory resolves against. A real deployment
// backs this with whatever persistence the admin plane owns (out of scope
// here, per spec §1); tests back it with an in-memory implementation.
type Store interface {
	ModelMapping(alias string) (conduit.ModelMapping, bool)
	Provider(id string) (conduit.Provider, bool)
	Credentials(providerID string) []conduit.ProviderKeyCredential
}

// MetricsSink is implemented by internal/metrics.Registry; kept as a small
// local interface so this package doesn't import prometheus types.
type MetricsSink interface {
	RecordAdapterCall(provider string, durationMs int64, success bool)
}

// Factory is the client factory (spec §4.E).
type Factory struct {
	store    Store
	builders map[conduit.ProviderType]AdapterBuilder
	metrics  MetricsSink // nil disables the performance-tracking decorator
}

// New builds a Factory. metrics may be nil.
func New(store Store, metrics MetricsSink) *Factory {
	return &Factory{store: store, builders: make(map[conduit.ProviderType]AdapterBuilder), metrics: metrics}
}

// Register associates a ProviderType with the function that builds its
// concrete adapter.
func (f *Factory) Register(t conduit.ProviderType, b AdapterBuilder) {
	f.builders[t] = b
}

// GetClient resolves modelAlias per spec §4.E steps 1-5.
func (f *Factory) GetClient(modelAlias string) (providers.Provider, error) {
	mapping, ok := f.store.ModelMapping(modelAlias)
	if !ok {
		return nil, conduit.NewError(conduit.KindConfiguration, "", fmt.Sprintf("no mapping for alias %q", modelAlias), nil)
	}
	return f.getClientForProvider(mapping.ProviderID)
}

// GetClientByProviderId is the model-agnostic variant used for list-models
// and health-check operations (spec §4.E).
func (f *Factory) GetClientByProviderId(id string) (providers.Provider, error) {
	return f.getClientForProvider(id)
}

// GetClientByProviderType resolves by scanning the store for the first
// enabled provider of the given type. Callers needing a specific provider
// id should use GetClientByProviderId instead.
func (f *Factory) GetClientByProviderType(t conduit.ProviderType, providerIDs []string) (providers.Provider, error) {
	for _, id := range providerIDs {
		p, ok := f.store.Provider(id)
		if ok && p.Type == t && p.Enabled {
			return f.getClientForProvider(id)
		}
	}
	return nil, conduit.NewError(conduit.KindConfiguration, t.String(), "no enabled provider of this type", nil)
}

// CreateTestClient builds an adapter for credential verification only,
// bypassing model mapping resolution (spec §4.E: "uses a placeholder model
// id and is used only for credential verification").
func (f *Factory) CreateTestClient(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
	return f.build(p, cred)
}

const testModelID = "test-model"

func (f *Factory) getClientForProvider(providerID string) (providers.Provider, error) {
	p, ok := f.store.Provider(providerID)
	if !ok || !p.Enabled {
		return nil, conduit.NewError(conduit.KindConfiguration, providerID, "provider missing or disabled", nil)
	}

	cred, ok := selectCredential(f.store.Credentials(providerID))
	if !ok {
		return nil, conduit.NewError(conduit.KindConfiguration, p.Name, "no enabled credential for provider", nil)
	}

	return f.build(p, cred)
}

// selectCredential picks the primary-enabled credential, else the first
// enabled one (spec §3 ProviderKeyCredential invariant).
func selectCredential(creds []conduit.ProviderKeyCredential) (conduit.ProviderKeyCredential, bool) {
	var firstEnabled *conduit.ProviderKeyCredential
	for i := range creds {
		c := creds[i]
		if !c.IsEnabled {
			continue
		}
		if c.IsPrimary {
			return c, true
		}
		if firstEnabled == nil {
			firstEnabled = &creds[i]
		}
	}
	if firstEnabled != nil {
		return *firstEnabled, true
	}
	return conduit.ProviderKeyCredential{}, false
}

func (f *Factory) build(p conduit.Provider, cred conduit.ProviderKeyCredential) (providers.Provider, error) {
	builder, ok := f.builders[p.Type]
	if !ok {
		return nil, conduit.NewError(conduit.KindConfiguration, p.Name, fmt.Sprintf("no adapter builder registered for provider type %s", p.Type), nil)
	}
	adapter, err := builder(p, cred)
	if err != nil {
		return nil, err
	}
	if f.metrics != nil {
		return newTrackedProvider(adapter, f.metrics), nil
	}
	return adapter, nil
}
