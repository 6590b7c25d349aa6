package insight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorRunningAverages(t *testing.T) {
	m := NewMonitor()

	m.RecordOutcome(100*time.Millisecond, false)
	m.RecordOutcome(200*time.Millisecond, false)

	c := m.Snapshot()
	require.Equal(t, uint64(2), c.TotalComputations)
	require.InDelta(t, 150, c.AverageComputationTimeMs, 1e-9)
	require.Zero(t, c.CacheHitRate)

	// A hit folds in the served entry's original computation time.
	m.RecordOutcome(100*time.Millisecond, true)

	c = m.Snapshot()
	require.Equal(t, uint64(3), c.TotalComputations)
	require.InDelta(t, 400.0/3, c.AverageComputationTimeMs, 1e-9)
	require.InDelta(t, 1.0/3, c.CacheHitRate, 1e-9)
}

func TestMonitorOptimizationStamp(t *testing.T) {
	m := NewMonitor()
	require.Nil(t, m.Snapshot().LastOptimizationAt)

	at := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	m.MarkOptimized(at)

	got := m.Snapshot().LastOptimizationAt
	require.NotNil(t, got)
	require.Equal(t, at, *got)
}

func TestMonitorZeroState(t *testing.T) {
	c := NewMonitor().Snapshot()
	require.Zero(t, c.TotalComputations)
	require.Zero(t, c.AverageComputationTimeMs)
	require.Zero(t, c.CacheHitRate)
}
