package router

import (
	"sync"
	"time"
)

type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

// CBConfig holds circuit breaker tuning parameters, generalized from the
// teacher's internal/proxy/circuitbreaker.go (which hard-coded its
// defaults to the providers package's constants). Zero values fall back
// to DefaultCBConfig.
type CBConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

// DefaultCBConfig matches the teacher's original defaults.
func DefaultCBConfig() CBConfig {
	return CBConfig{ErrorThreshold: 5, TimeWindow: 60 * time.Second, HalfOpenTimeout: 30 * time.Second}
}

func (c CBConfig) errorThreshold() int {
	if c.ErrorThreshold > 0 {
		return c.ErrorThreshold
	}
	return DefaultCBConfig().ErrorThreshold
}

func (c CBConfig) timeWindow() time.Duration {
	if c.TimeWindow > 0 {
		return c.TimeWindow
	}
	return DefaultCBConfig().TimeWindow
}

func (c CBConfig) halfOpenTimeout() time.Duration {
	if c.HalfOpenTimeout > 0 {
		return c.HalfOpenTimeout
	}
	return DefaultCBConfig().HalfOpenTimeout
}

type deploymentCB struct {
	mu            sync.Mutex
	state         cbState
	errorCount    int
	windowStart   time.Time
	openedAt      time.Time
	probeInflight bool
}

// CircuitBreaker tracks independent breaker state per deployment id. Unlike
// the teacher's provider-keyed breaker (seeded from a fixed provider list
// at construction time), entries here are created lazily on first use, so
// the router can be handed an arbitrary, runtime-configured deployment set.
type CircuitBreaker struct {
	mu       sync.Mutex
	breakers map[string]*deploymentCB
	cfg      CBConfig
}

func NewCircuitBreaker(cfg CBConfig) *CircuitBreaker {
	return &CircuitBreaker{breakers: make(map[string]*deploymentCB), cfg: cfg}
}

func (cb *CircuitBreaker) getOrCreate(id string) *deploymentCB {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	d, ok := cb.breakers[id]
	if !ok {
		d = &deploymentCB{state: cbClosed, windowStart: time.Now()}
		cb.breakers[id] = d
	}
	return d
}

// Allow reports whether deployment id should receive the next request.
func (cb *CircuitBreaker) Allow(id string) bool {
	d := cb.getOrCreate(id)
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case cbClosed:
		return true
	case cbOpen:
		if time.Since(d.openedAt) >= cb.cfg.halfOpenTimeout() {
			d.state = cbHalfOpen
			d.probeInflight = true
			return true
		}
		return false
	case cbHalfOpen:
		if d.probeInflight {
			return false
		}
		d.probeInflight = true
		return true
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess(id string) {
	d := cb.getOrCreate(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = cbClosed
	d.errorCount = 0
	d.probeInflight = false
	d.windowStart = time.Now()
}

func (cb *CircuitBreaker) RecordFailure(id string) {
	d := cb.getOrCreate(id)
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if now.Sub(d.windowStart) > cb.cfg.timeWindow() {
		d.errorCount = 0
		d.windowStart = now
	}
	d.errorCount++
	d.probeInflight = false
	if d.errorCount >= cb.cfg.errorThreshold() {
		d.state = cbOpen
		d.openedAt = now
	}
}

func (cb *CircuitBreaker) StateLabel(id string) string {
	d := cb.getOrCreate(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
