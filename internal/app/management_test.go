package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/valyala/fasthttp"

	npCache "github.com/nulpointcorp/conduit-gateway/internal/cache"
	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/internal/registry"
)

// fakeStore is a minimal registry.Store backed by in-memory maps, so these
// tests exercise the client factory without any real config file or
// external persistence.
type fakeStore struct {
	providers map[string]conduit.Provider
	creds     map[string][]conduit.ProviderKeyCredential
}

func (s *fakeStore) ModelMapping(string) (conduit.ModelMapping, bool) { return conduit.ModelMapping{}, false }

func (s *fakeStore) Provider(id string) (conduit.Provider, bool) {
	p, ok := s.providers[id]
	return p, ok
}

func (s *fakeStore) Credentials(providerID string) []conduit.ProviderKeyCredential {
	return s.creds[providerID]
}

// fakeManagedProvider implements providers.Provider, providers.ListModelsProvider
// and providers.AuthVerifier, so handleListModels/handleVerifyCredential can
// exercise both capability branches.
type fakeManagedProvider struct {
	name    string
	models  []string
	listErr error
	authOK  bool
	authErr error
}

func (f *fakeManagedProvider) Name() string { return f.name }

func (f *fakeManagedProvider) Request(_ context.Context, _ *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	return nil, errors.New("fakeManagedProvider: chat not supported")
}

func (f *fakeManagedProvider) HealthCheck(_ context.Context) error { return nil }

func (f *fakeManagedProvider) ListModels(_ context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeManagedProvider) VerifyAuthentication(_ context.Context, _, _ string) (*providers.AuthResult, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &providers.AuthResult{OK: f.authOK, RoundTripMs: 12}, nil
}

func newTestApp(t *testing.T, store *fakeStore, builders map[conduit.ProviderType]*fakeManagedProvider) *App {
	t.Helper()
	f := registry.New(store, nil)
	for pt, prov := range builders {
		p := prov
		f.Register(pt, func(conduit.Provider, conduit.ProviderKeyCredential) (providers.Provider, error) {
			return p, nil
		})
	}
	return &App{
		reg:         f,
		log:         slog.New(slog.NewTextHandler(noopWriter{}, nil)),
		cacheStats:  npCache.NewStatsRecorder(),
		cacheAlerts: npCache.NewAlertManager(),
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleListModels_Success(t *testing.T) {
	store := &fakeStore{
		providers: map[string]conduit.Provider{"openai-1": {ID: "openai-1", Name: "openai", Type: conduit.ProviderOpenAI, Enabled: true}},
		creds:     map[string][]conduit.ProviderKeyCredential{"openai-1": {{ProviderID: "openai-1", APIKey: "sk-test", IsPrimary: true, IsEnabled: true}}},
	}
	a := newTestApp(t, store, map[conduit.ProviderType]*fakeManagedProvider{
		conduit.ProviderOpenAI: {name: "openai", models: []string{"gpt-4", "gpt-4.1"}},
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue("id", "openai-1")
	a.handleListModels(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, want 200", ctx.Response.StatusCode())
	}
	var body struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Data) != 2 || body.Data[0] != "gpt-4" {
		t.Errorf("unexpected models: %+v", body.Data)
	}
}

func TestHandleListModels_UnknownProvider(t *testing.T) {
	a := newTestApp(t, &fakeStore{}, nil)

	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue("id", "does-not-exist")
	a.handleListModels(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", ctx.Response.StatusCode())
	}
}

func TestHandleVerifyCredential_Success(t *testing.T) {
	store := &fakeStore{
		providers: map[string]conduit.Provider{"anthropic-1": {ID: "anthropic-1", Name: "anthropic", Type: conduit.ProviderAnthropic, Enabled: true}},
		creds:     map[string][]conduit.ProviderKeyCredential{"anthropic-1": {{ProviderID: "anthropic-1", APIKey: "sk-ant", IsPrimary: true, IsEnabled: true}}},
	}
	a := newTestApp(t, store, map[conduit.ProviderType]*fakeManagedProvider{
		conduit.ProviderAnthropic: {name: "anthropic", authOK: true},
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue("id", "anthropic-1")
	a.handleVerifyCredential(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, want 200", ctx.Response.StatusCode())
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.OK {
		t.Errorf("ok = false, want true")
	}
}

func TestHandleVerifyCredential_ProviderDisabled(t *testing.T) {
	store := &fakeStore{
		providers: map[string]conduit.Provider{"anthropic-1": {ID: "anthropic-1", Name: "anthropic", Type: conduit.ProviderAnthropic, Enabled: false}},
	}
	a := newTestApp(t, store, map[conduit.ProviderType]*fakeManagedProvider{
		conduit.ProviderAnthropic: {name: "anthropic", authOK: true},
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue("id", "anthropic-1")
	a.handleVerifyCredential(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", ctx.Response.StatusCode())
	}
}

func TestHandleCacheStats_ReportsChatCompletionsRegion(t *testing.T) {
	a := newTestApp(t, &fakeStore{}, nil)
	a.cacheStats.Record(conduit.CacheRegionChatCompletions, conduit.CacheOpGet, true, false, 0)
	a.cacheStats.Record(conduit.CacheRegionChatCompletions, conduit.CacheOpGet, false, false, 0)

	ctx := &fasthttp.RequestCtx{}
	a.handleCacheStats(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, want 200", ctx.Response.StatusCode())
	}
	var body struct {
		Regions []conduit.CacheStatistics `json:"regions"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Regions) != 1 {
		t.Fatalf("regions = %d, want 1", len(body.Regions))
	}
	got := body.Regions[0]
	if got.Region != conduit.CacheRegionChatCompletions || got.Hits != 1 || got.Misses != 1 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestHandleCacheStats_FiresLowHitRateAlert(t *testing.T) {
	a := newTestApp(t, &fakeStore{}, nil)
	// 1 hit, 19 misses: 20 requests meets the sample floor and a 5% hit
	// rate is well under the 50% threshold, so a low-hit-rate alert should fire.
	a.cacheStats.Record(conduit.CacheRegionChatCompletions, conduit.CacheOpGet, true, false, 0)
	for i := 0; i < 19; i++ {
		a.cacheStats.Record(conduit.CacheRegionChatCompletions, conduit.CacheOpGet, false, false, 0)
	}

	ctx := &fasthttp.RequestCtx{}
	a.handleCacheStats(ctx)

	var body struct {
		Alerts []conduit.CacheAlert `json:"alerts"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1: %+v", len(body.Alerts), body.Alerts)
	}
	if body.Alerts[0].Type != conduit.AlertLowHitRate {
		t.Errorf("alert type = %v, want AlertLowHitRate", body.Alerts[0].Type)
	}

	// A second request within the cooldown window must not re-fire.
	ctx2 := &fasthttp.RequestCtx{}
	a.handleCacheStats(ctx2)
	var body2 struct {
		Alerts []conduit.CacheAlert `json:"alerts"`
	}
	if err := json.Unmarshal(ctx2.Response.Body(), &body2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body2.Alerts) != 0 {
		t.Errorf("expected no alerts on second request within cooldown, got %+v", body2.Alerts)
	}
}

func TestHandleCacheStats_NilAlertManagerOmitsAlerts(t *testing.T) {
	a := newTestApp(t, &fakeStore{}, nil)
	a.cacheAlerts = nil

	ctx := &fasthttp.RequestCtx{}
	a.handleCacheStats(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, want 200", ctx.Response.StatusCode())
	}
}
