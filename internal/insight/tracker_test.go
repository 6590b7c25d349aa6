package insight

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/sprout/internal/insight/cache"
	"github.com/verdantlabs/sprout/internal/metrics"
)

func TestTrackerSweepsTaggedEntries(t *testing.T) {
	store := cache.NewStore(time.Minute, 50)
	tracker := NewTracker(store, testLogger(), metrics.NewRecorder(prometheus.NewRegistry()))

	store.Put("activity_summary", 1, KindActivitySummary.dependencyTags(), time.Millisecond)
	store.Put("weather_impact", 2, KindWeatherImpact.dependencyTags(), time.Millisecond)
	store.Put("plant_analysis:leaf=1", 3, KindPlantAnalysis.dependencyTags(), time.Millisecond)

	removed := tracker.MarkChanged(DomainActivityData)
	require.Equal(t, 2, removed)
	require.Equal(t, 1, store.Len())

	_, ok := store.Get("plant_analysis:leaf=1")
	require.True(t, ok)
}

func TestTrackerRecordsChangeInstant(t *testing.T) {
	store := cache.NewStore(time.Minute, 50)
	tracker := NewTracker(store, testLogger(), metrics.NewRecorder(prometheus.NewRegistry()))

	require.Empty(t, tracker.State())

	before := time.Now().UTC()
	tracker.MarkChanged(DomainWeatherData)
	after := time.Now().UTC()

	state := tracker.State()
	require.Len(t, state, 1)
	at, ok := state[DomainWeatherData]
	require.True(t, ok)
	require.False(t, at.Before(before))
	require.False(t, at.After(after))

	// A second change moves the instant forward.
	tracker.MarkChanged(DomainWeatherData)
	require.False(t, tracker.State()[DomainWeatherData].Before(at))
}

func TestTrackerMarkChangedOnEmptyStore(t *testing.T) {
	store := cache.NewStore(time.Minute, 50)
	tracker := NewTracker(store, testLogger(), metrics.NewRecorder(prometheus.NewRegistry()))
	require.Zero(t, tracker.MarkChanged(DomainPlantData))
}
