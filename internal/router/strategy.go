package router

import "sync"

// Strategy picks one deployment from a non-empty candidate slice. It must
// never be called with an empty slice; Router filters before selecting.
type Strategy func(candidates []*ModelDeployment) *ModelDeployment

// simpleStrategy always returns the first candidate (spec §8 invariant 5).
func simpleStrategy(candidates []*ModelDeployment) *ModelDeployment {
	return candidates[0]
}

// leastUsedStrategy returns the deployment with the smallest observed
// usage counter ("roundrobin"/"leastused" in spec §4.F share one
// implementation: both select on request count).
func leastUsedStrategy(candidates []*ModelDeployment) *ModelDeployment {
	best := candidates[0]
	bestCount, _, _ := best.Snapshot()
	for _, d := range candidates[1:] {
		count, _, _ := d.Snapshot()
		if count < bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// leastCostStrategy orders by input cost per 1K, ties broken by output cost
// (spec §8 invariant 6 and scenario 1).
func leastCostStrategy(candidates []*ModelDeployment) *ModelDeployment {
	best := candidates[0]
	for _, d := range candidates[1:] {
		if d.InputCostPer1K < best.InputCostPer1K ||
			(d.InputCostPer1K == best.InputCostPer1K && d.OutputCostPer1K < best.OutputCostPer1K) {
			best = d
		}
	}
	return best
}

// leastLatencyStrategy orders by rolling average latency.
func leastLatencyStrategy(candidates []*ModelDeployment) *ModelDeployment {
	best := candidates[0]
	_, bestLatency, _ := best.Snapshot()
	for _, d := range candidates[1:] {
		_, latency, _ := d.Snapshot()
		if latency < bestLatency {
			best, bestLatency = d, latency
		}
	}
	return best
}

// priorityStrategy orders by Priority ascending.
func priorityStrategy(candidates []*ModelDeployment) *ModelDeployment {
	best := candidates[0]
	for _, d := range candidates[1:] {
		if d.Priority < best.Priority {
			best = d
		}
	}
	return best
}

// StrategyRegistry caches Strategy instances by name. It is an explicit,
// Router-owned object rather than a package-level singleton, per spec §9
// design note ("avoids global state during tests").
type StrategyRegistry struct {
	mu    sync.RWMutex
	named map[string]Strategy
}

// NewStrategyRegistry returns a registry pre-populated with the built-in
// named strategies from spec §4.F.
func NewStrategyRegistry() *StrategyRegistry {
	r := &StrategyRegistry{named: map[string]Strategy{
		"simple":       simpleStrategy,
		"roundrobin":   leastUsedStrategy,
		"leastused":    leastUsedStrategy,
		"leastcost":    leastCostStrategy,
		"leastlatency": leastLatencyStrategy,
		"priority":     priorityStrategy,
	}}
	return r
}

// Register adds or replaces a named strategy, e.g. to inject a test double.
func (r *StrategyRegistry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = s
}

// Get never returns nil; unrecognized names resolve to "simple" (spec
// §4.F: "the strategy factory never returns null").
func (r *StrategyRegistry) Get(name string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.named[name]; ok {
		return s
	}
	return r.named["simple"]
}
