package app

import (
	"context"
	"fmt"
	"log/slog"

	npCache "github.com/nulpointcorp/conduit-gateway/internal/cache"
	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/ledger"
	"github.com/nulpointcorp/conduit-gateway/internal/metrics"
	"github.com/nulpointcorp/conduit-gateway/internal/proxy"
	"github.com/nulpointcorp/conduit-gateway/internal/ratelimit"
	"github.com/nulpointcorp/conduit-gateway/internal/router"
)

// initInfra establishes optional external connections.
// Redis is only required when CACHE_MODE=redis.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Mode == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	if a.cfg.Ledger.Addr != "" {
		a.log.Info("connecting to clickhouse usage ledger", slog.String("addr", a.cfg.Ledger.Addr))

		lg, err := ledger.Open(ctx, ledger.Config{
			Addr:     a.cfg.Ledger.Addr,
			Database: a.cfg.Ledger.Database,
			Username: a.cfg.Ledger.Username,
			Password: a.cfg.Ledger.Password,
		}, a.log)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		a.usageLedger = lg
		a.log.Info("usage ledger connected")
	}

	return nil
}

// initProviders builds the LLM provider map. At least one provider must be
// configured: config.Load's validation rejects an empty set unless
// ALLOW_CLIENT_API_KEYS is on, and this function rejects it in every case.
func (a *App) initProviders(_ context.Context) error {
	a.provs = buildProviders(a.baseCtx, a.cfg)
	if len(a.provs) == 0 {
		return fmt.Errorf("no provider API keys configured")
	}

	names := make([]string, 0, len(a.provs))
	for n := range a.provs {
		names = append(names, n)
	}
	a.log.Info("providers loaded", slog.Any("providers", names))

	return nil
}

// initRegistry builds the client factory (internal/registry) over the same
// configuration buildProviders reads, so admin-plane operations (list-models,
// credential verification) resolve adapters the same way the hot path does
// without requiring an actual admin database.
func (a *App) initRegistry(ctx context.Context) error {
	a.reg = buildRegistry(ctx, a.cfg, a.prom)
	return nil
}

// initServices creates the cache backend and Prometheus metrics registry.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		// ExactCache wraps the already-connected Redis client.
		a.log.Info("cache backend: redis")

	case "memory":
		// MemoryCache — zero external dependencies, not shared across replicas.
		a.memCache = npCache.NewMemoryCache(ctx)
		a.log.Info("cache backend: memory (in-process)")

	case "none":
		a.log.Info("cache backend: disabled")

	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	return nil
}

// initGateway wires together the Gateway with all configured subsystems.
func (a *App) initGateway(_ context.Context) error {
	// ── Determine cache implementation ────────────────────────────────────────
	var cacheImpl npCache.Cache
	var cacheReady func() bool

	// cacheStats accumulates hit/miss/latency counters for /v1/cache/stats
	// (spec §4.H CacheStatistics) regardless of which backend is active;
	// WithStats tags every Get/Set/Delete against the chat-completions
	// region, the only region this gateway's cache path writes to today.
	a.cacheStats = npCache.NewStatsRecorder()
	a.cacheAlerts = npCache.NewAlertManager()

	switch a.cfg.Cache.Mode {
	case "redis":
		exact := npCache.NewExactCacheFromClient(a.rdb)
		cacheImpl = exact.WithStats(a.cacheStats, conduit.CacheRegionChatCompletions)
		cacheReady = redisPinger(a.baseCtx, a.rdb)
	case "memory":
		cacheImpl = a.memCache.WithStats(a.cacheStats, conduit.CacheRegionChatCompletions)
		cacheReady = func() bool { return true }
	case "none":
		// nil cache — gateway handles nil gracefully (no caching)
	}

	// ── Build the gateway ────────────────────────────────────────────────────
	opts := proxy.GatewayOptions{
		Logger:             a.log,
		MaxRetries:         a.cfg.Failover.MaxRetries,
		ProviderTimeout:    a.cfg.Failover.ProviderTimeout,
		CacheTTL:           a.cfg.Cache.TTL,
		Metrics:            a.prom,
		AllowClientAPIKeys: a.cfg.AllowClientAPIKeys,
		CBConfig: proxy.CBConfig{
			ErrorThreshold:  a.cfg.CircuitBreaker.ErrorThreshold,
			TimeWindow:      a.cfg.CircuitBreaker.TimeWindow,
			HalfOpenTimeout: a.cfg.CircuitBreaker.HalfOpenTimeout,
		},
	}

	gw := proxy.NewGatewayWithOptions(a.baseCtx, a.provs, cacheImpl, cacheReady, opts)

	// Deployment router (spec §4.F) — picks among enabled deployments of a
	// model alias using the configured strategy. Built from the same
	// providers.ModelAliases roster the static failover path uses, so every
	// wired provider gets a deployment without requiring a separate admin
	// database (out of scope, spec §1).
	routerCfg := buildRouterConfig(a.provs)
	if len(routerCfg.Deployments) > 0 {
		gw.SetRouter(router.New(routerCfg, a.log), a.cfg.RouterStrategy)
	}

	// ── Optional subsystems ──────────────────────────────────────────────────

	// Rate limiting — only when Redis is available.
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		gw.SetRateLimiters(ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit))
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	// Async usage ledger — only connected when LEDGER_CLICKHOUSE_ADDR is set.
	// Request metadata is always written via slog regardless (see gateway.go
	// logRequest); the ledger additionally captures per-request cost for the
	// models staticPricing knows about.
	if a.usageLedger != nil {
		gw.SetLedger(a.usageLedger, lookupModelCost)
	}

	// CORS.
	gw.SetCORSOrigins(a.cfg.CORSOrigins)

	// Context-length pre-flight (spec §5) — on by default; CONTEXT_LENGTH_CHECK=false
	// disables it if the tokenizer's offline BPE-rank cache is unavailable.
	gw.SetContextLengthCheck(a.cfg.ContextLengthCheck)

	// Cache exclusions.
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := npCache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		gw.SetCacheExclusions(el)
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	// ── Management routes ────────────────────────────────────────────────────
	a.mgmt = &proxy.ManagementRoutes{
		Metrics:          a.prom.Handler(),
		ListModels:       a.handleListModels,
		VerifyCredential: a.handleVerifyCredential,
		CacheStats:       a.handleCacheStats,
	}

	a.gw = gw

	return nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			// Find the scheme end ("://") and keep only scheme + "***" + @host.
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
