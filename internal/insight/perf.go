package insight

import (
	"sync"
	"time"
)

// Monitor keeps running averages over request resolutions. The latency mean
// folds in cache hits using the hit entry's original computation time, so the
// average reflects the cost of the answers served rather than collapsing
// toward zero as the hit rate climbs.
type Monitor struct {
	mu                 sync.Mutex
	totalComputations  uint64
	avgComputationMs   float64
	hitRate            float64
	lastOptimizationAt time.Time
}

// NewMonitor constructs a zeroed monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// RecordOutcome folds one resolution into the running means.
func (m *Monitor) RecordOutcome(latency time.Duration, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalComputations++
	n := float64(m.totalComputations)
	latencyMs := float64(latency) / float64(time.Millisecond)
	m.avgComputationMs = (m.avgComputationMs*(n-1) + latencyMs) / n
	hitVal := 0.0
	if hit {
		hitVal = 1.0
	}
	m.hitRate = (m.hitRate*(n-1) + hitVal) / n
}

// MarkOptimized stamps the completion of an optimization sweep.
func (m *Monitor) MarkOptimized(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOptimizationAt = at
}

// Counters is a point-in-time snapshot of the running averages.
type Counters struct {
	TotalComputations        uint64     `json:"totalComputations"`
	AverageComputationTimeMs float64    `json:"averageComputationTimeMs"`
	CacheHitRate             float64    `json:"cacheHitRate"`
	LastOptimizationAt       *time.Time `json:"lastOptimizationAt,omitempty"`
}

// Snapshot returns the current counters.
func (m *Monitor) Snapshot() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters := Counters{
		TotalComputations:        m.totalComputations,
		AverageComputationTimeMs: m.avgComputationMs,
		CacheHitRate:             m.hitRate,
	}
	if !m.lastOptimizationAt.IsZero() {
		at := m.lastOptimizationAt
		counters.LastOptimizationAt = &at
	}
	return counters
}
