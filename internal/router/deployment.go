// Package router implements the fallback-capable dispatcher (spec §4.F):
// given a set of candidate ModelDeployments for a request, it picks one
// using a named, pluggable Strategy, invokes it, and walks the fallback
// chain on retryable failure. It generalizes the teacher's
// internal/proxy/routing.go + failover.go + circuitbreaker.go, which hard
// coded a single static provider list (providers.DefaultFallbackOrder) into
// data-driven dispatch over ModelDeployment records.
package router

import (
	"sync"
	"time"
)

// ModelDeployment is one routable (model, provider) pairing (spec §3).
type ModelDeployment struct {
	ID          string
	ModelName   string
	Provider    string
	Weight      int
	RPMCap      int
	TPMCap      int
	InputCostPer1K  float64
	OutputCostPer1K float64
	Priority    int // lower is higher priority
	Healthy     bool
	Enabled     bool
	SupportsEmbeddings bool

	mu              sync.Mutex
	lastUsed        time.Time
	requestCount    int64
	avgLatencyMs    float64
}

// RecordSuccess updates usage count and the rolling average latency (EWMA,
// alpha=0.2 per spec §4.F step 4). Safe for concurrent callers; holds no
// I/O under the lock (spec §5 locking discipline).
func (d *ModelDeployment) RecordSuccess(latency time.Duration) {
	const alpha = 0.2
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestCount++
	d.lastUsed = time.Now()
	ms := float64(latency.Milliseconds())
	if d.avgLatencyMs == 0 {
		d.avgLatencyMs = ms
	} else {
		d.avgLatencyMs = alpha*ms + (1-alpha)*d.avgLatencyMs
	}
}

// Snapshot returns a torn-read-free copy of the mutable usage fields (spec
// §5: "concurrent readers observe a consistent snapshot").
func (d *ModelDeployment) Snapshot() (requestCount int64, avgLatencyMs float64, lastUsed time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requestCount, d.avgLatencyMs, d.lastUsed
}

// RouterConfig is the static configuration of the router (spec §3).
type RouterConfig struct {
	Deployments     []*ModelDeployment
	DefaultStrategy string
	Fallbacks       map[string][]string // model name -> ordered fallback model names
	MaxRetries      int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	FallbackEnabled bool
}
