package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
)

// StatsRecorder accumulates per-region cache operation counters and derives
// a conduit.CacheStatistics snapshot on demand (spec §3 "CacheRegion /
// CacheOperationType / CacheStatistics"). Cache backends (ExactCache,
// MemoryCache) call Record from their Get/Set/Delete
// paths; the gateway surfaces Snapshot via the /v1/cache/stats route.
type StatsRecorder struct {
	mu      sync.Mutex
	regions map[conduit.CacheRegion]*regionCounters
}

type regionCounters struct {
	hits, misses, sets, removes, evictions, errs int64
	sizeBytes                                    int64
	latenciesMs                                  []float64
	breakdown                                    map[conduit.CacheOperationType]int64
	windowStart                                  time.Time
}

// NewStatsRecorder returns an empty recorder.
func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{regions: make(map[conduit.CacheRegion]*regionCounters)}
}

func (r *StatsRecorder) region(name conduit.CacheRegion) *regionCounters {
	rc, ok := r.regions[name]
	if !ok {
		rc = &regionCounters{breakdown: make(map[conduit.CacheOperationType]int64), windowStart: time.Now()}
		r.regions[name] = rc
	}
	return rc
}

// Record logs one cache operation's outcome and latency against region.
func (r *StatsRecorder) Record(region conduit.CacheRegion, op conduit.CacheOperationType, hit bool, failed bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc := r.region(region)
	rc.breakdown[op]++
	rc.latenciesMs = append(rc.latenciesMs, float64(latency.Microseconds())/1000.0)

	switch {
	case failed:
		rc.errs++
	case op == conduit.CacheOpGet && hit:
		rc.hits++
	case op == conduit.CacheOpGet && !hit:
		rc.misses++
	case op == conduit.CacheOpSet:
		rc.sets++
	case op == conduit.CacheOpDelete:
		rc.removes++
	case op == conduit.CacheOpEvict:
		rc.evictions++
	}
}

// Snapshot computes a CacheStatistics for region as of now (spec §8
// invariant 8: hits+misses=total_requests, hit_rate=hits/total or 0).
func (r *StatsRecorder) Snapshot(region conduit.CacheRegion) conduit.CacheStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, ok := r.regions[region]
	if !ok {
		return conduit.CacheStatistics{Region: region, WindowStart: time.Now(), WindowEnd: time.Now()}
	}

	avg, p95, p99, max := percentiles(rc.latenciesMs)
	breakdown := make(map[conduit.CacheOperationType]int64, len(rc.breakdown))
	for k, v := range rc.breakdown {
		breakdown[k] = v
	}

	return conduit.CacheStatistics{
		Region:             region,
		Hits:               rc.hits,
		Misses:             rc.misses,
		Sets:               rc.sets,
		Removes:            rc.removes,
		Evictions:          rc.evictions,
		Errors:             rc.errs,
		SizeBytes:          rc.sizeBytes,
		WindowStart:        rc.windowStart,
		WindowEnd:          time.Now(),
		LatencyAvgMs:       avg,
		LatencyP95Ms:       p95,
		LatencyP99Ms:       p99,
		LatencyMaxMs:       max,
		OperationBreakdown: breakdown,
	}
}

func percentiles(samples []float64) (avg, p95, p99, max float64) {
	if len(samples) == 0 {
		return 0, 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	avg = sum / float64(len(sorted))
	max = sorted[len(sorted)-1]
	p95 = sorted[percentileIndex(len(sorted), 0.95)]
	p99 = sorted[percentileIndex(len(sorted), 0.99)]
	return avg, p95, p99, max
}

func percentileIndex(n int, p float64) int {
	idx := int(float64(n) * p)
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// AlertManager fires conduit.CacheAlert values when thresholds are crossed,
// suppressing re-firing for the same (region, type) until its cooldown
// elapses (spec §3 CacheAlert invariant).
type AlertManager struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewAlertManager returns an empty manager.
func NewAlertManager() *AlertManager {
	return &AlertManager{lastFired: make(map[string]time.Time)}
}

// Evaluate fires and returns an alert if current breaches threshold and the
// (region, kind) cooldown has elapsed; otherwise returns (nil, false).
func (a *AlertManager) Evaluate(region conduit.CacheRegion, kind conduit.CacheAlertType, severity conduit.AlertSeverity, current, threshold float64, cooldown time.Duration, breached bool) (*conduit.CacheAlert, bool) {
	if !breached {
		return nil, false
	}

	key := string(region) + "|" + kind.String()
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.lastFired[key]; ok && now.Sub(last) < cooldown {
		return nil, false
	}
	a.lastFired[key] = now

	return &conduit.CacheAlert{
		ID:          uuid.NewString(),
		Region:      region,
		Type:        kind,
		Severity:    severity,
		Current:     current,
		Threshold:   threshold,
		TriggeredAt: now,
		Cooldown:    cooldown,
	}, true
}

// Default thresholds for EvaluateThresholds. A region needs at least
// minSampleRequests observed requests before a hit-rate alert is considered
// meaningful — a cold region with 1 miss out of 1 request is not "0%
// hit rate", it's untested.
const (
	lowHitRateThreshold       = 0.5
	highEvictionRateThreshold = 0.2
	highResponseTimeMsP99     = 500.0
	alertCooldown             = 5 * time.Minute
	minSampleRequests         = 20
)

// EvaluateThresholds checks a CacheStatistics snapshot against the fixed
// operational thresholds above and returns every alert that fires, using
// Evaluate's per-(region, type) cooldown to suppress repeats. Called from
// the /v1/cache/stats handler on each request so the returned alert list
// always reflects the latest snapshot (spec §3 CacheAlert).
func (a *AlertManager) EvaluateThresholds(stats conduit.CacheStatistics) []conduit.CacheAlert {
	var alerts []conduit.CacheAlert

	if stats.TotalRequests() >= minSampleRequests {
		if alert, fired := a.Evaluate(stats.Region, conduit.AlertLowHitRate, conduit.SeverityWarning,
			stats.HitRate(), lowHitRateThreshold, alertCooldown, stats.HitRate() < lowHitRateThreshold); fired {
			alerts = append(alerts, *alert)
		}
	}

	if stats.Sets > 0 {
		evictionRate := float64(stats.Evictions) / float64(stats.Sets)
		if alert, fired := a.Evaluate(stats.Region, conduit.AlertHighEvictionRate, conduit.SeverityWarning,
			evictionRate, highEvictionRateThreshold, alertCooldown, evictionRate > highEvictionRateThreshold); fired {
			alerts = append(alerts, *alert)
		}
	}

	if alert, fired := a.Evaluate(stats.Region, conduit.AlertHighResponseTime, conduit.SeverityError,
		stats.LatencyP99Ms, highResponseTimeMsP99, alertCooldown, stats.LatencyP99Ms > highResponseTimeMsP99); fired {
		alerts = append(alerts, *alert)
	}

	return alerts
}
