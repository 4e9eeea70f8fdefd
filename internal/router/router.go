package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/httputil"
)

// Invoker dispatches one request to a concrete deployment. It is supplied
// by the caller (the gateway's dispatch path) so this package never needs
// to import the provider adapters or the client factory — avoiding the
// cyclic dependency spec §9 warns against.
type Invoker[Req, Resp any] func(ctx context.Context, d *ModelDeployment, req Req) (Resp, error)

// Router selects and invokes a ModelDeployment, retrying within the primary
// deployment's retry budget before walking the model's fallback chain
// (spec §4.F, and DESIGN.md Open Question decision #1 on retry-before-fallback
// ordering).
type Router struct {
	cfg        RouterConfig
	strategies *StrategyRegistry
	cb         *CircuitBreaker
	log        *slog.Logger
	retry      httputil.RetryPolicy

	byModel map[string][]*ModelDeployment
}

// New builds a Router over cfg's deployment set, grouped by ModelName.
func New(cfg RouterConfig, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		cfg:        cfg,
		strategies: NewStrategyRegistry(),
		cb:         NewCircuitBreaker(DefaultCBConfig()),
		log:        log,
		retry:      httputil.RetryPolicy{MaxAttempts: cfg.MaxRetries, InitialDelay: cfg.BaseBackoff, MaxDelay: cfg.MaxBackoff},
		byModel:    make(map[string][]*ModelDeployment),
	}
	if r.retry.MaxAttempts <= 0 {
		r.retry.MaxAttempts = 3
	}
	if r.retry.InitialDelay <= 0 {
		r.retry.InitialDelay = time.Second
	}
	if r.retry.MaxDelay <= 0 {
		r.retry.MaxDelay = 30 * time.Second
	}
	for _, d := range cfg.Deployments {
		r.byModel[d.ModelName] = append(r.byModel[d.ModelName], d)
	}
	return r
}

// Strategies exposes the registry so callers can Register custom strategies.
func (r *Router) Strategies() *StrategyRegistry { return r.strategies }

// candidatesFor filters deployments for modelName to those enabled, healthy,
// and (when requireEmbeddings) embedding-capable (spec §4.F step 1). The
// deployments' RPMCap and TPMCap are not consulted here or anywhere else;
// internal/ratelimit applies only one global requests-per-minute limit.
func (r *Router) candidatesFor(modelName string, requireEmbeddings bool) []*ModelDeployment {
	var out []*ModelDeployment
	for _, d := range r.byModel[modelName] {
		if !d.Enabled || !d.Healthy {
			continue
		}
		if requireEmbeddings && !d.SupportsEmbeddings {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ErrUnknownModel is returned by Dispatch when modelName has no deployment
// configured in the router at all — as opposed to having deployments that
// were tried and failed. Callers use errors.Is(err, ErrUnknownModel) to
// decide whether falling back to a different dispatch path makes sense;
// falling back after real candidates were exhausted would just re-dispatch
// to the same providers a second time.
var ErrUnknownModel = errors.New("router: unknown model")

// Dispatch runs the full selection + retry + fallback algorithm for one
// request against modelName, returning the response from whichever
// deployment ultimately succeeded.
func Dispatch[Req, Resp any](
	ctx context.Context,
	r *Router,
	modelName string,
	requireEmbeddings bool,
	strategyName string,
	req Req,
	invoke Invoker[Req, Resp],
	classify func(error) conduit.ErrorKind,
) (Resp, error) {
	var zero Resp

	if _, ok := r.byModel[modelName]; !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownModel, modelName)
	}

	models := []string{modelName}
	if r.cfg.FallbackEnabled {
		models = append(models, r.cfg.Fallbacks[modelName]...)
	}

	strategy := r.strategies.Get(strategyName)

	var lastErr error
	for _, m := range models {
		candidates := r.candidatesFor(m, requireEmbeddings)
		for len(candidates) > 0 {
			d := strategy(candidates)
			if !r.cb.Allow(d.ID) {
				candidates = removeDeployment(candidates, d)
				continue
			}

			resp, err := attemptWithRetry(ctx, r, d, req, invoke, classify)
			if err == nil {
				r.cb.RecordSuccess(d.ID)
				return resp, nil
			}

			r.cb.RecordFailure(d.ID)
			lastErr = err
			kind := classify(err)
			r.log.WarnContext(ctx, "deployment_attempt_failed",
				slog.String("model", m),
				slog.String("deployment_id", d.ID),
				slog.String("kind", kind.String()),
			)
			if !kind.Retryable() {
				return zero, fmt.Errorf("router: non-retryable failure: %w", lastErr)
			}
			candidates = removeDeployment(candidates, d)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("router: no healthy deployment available")
	}
	return zero, fmt.Errorf("router: all candidates exhausted: %w", lastErr)
}

// attemptWithRetry retries the same deployment up to r.retry.MaxAttempts
// times for retryable errors before giving up on it (Open Question decision
// #1: retry-before-fallback).
func attemptWithRetry[Req, Resp any](
	ctx context.Context,
	r *Router,
	d *ModelDeployment,
	req Req,
	invoke Invoker[Req, Resp],
	classify func(error) conduit.ErrorKind,
) (Resp, error) {
	var zero Resp
	var lastErr error

	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := invoke(ctx, d, req)
		if err == nil {
			d.RecordSuccess(time.Since(start))
			return resp, nil
		}
		lastErr = err
		kind := classify(err)
		if !kind.Retryable() {
			return zero, err
		}
		if attempt < r.retry.MaxAttempts-1 {
			if sleepErr := httputil.Sleep(ctx, r.retry.Delay(attempt)); sleepErr != nil {
				return zero, sleepErr
			}
		}
	}
	return zero, lastErr
}

func removeDeployment(list []*ModelDeployment, target *ModelDeployment) []*ModelDeployment {
	out := list[:0:0]
	for _, d := range list {
		if d != target {
			out = append(out, d)
		}
	}
	return out
}
