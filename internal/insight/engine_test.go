package insight

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/sprout/internal/analysis"
	"github.com/verdantlabs/sprout/internal/insight/cache"
	"github.com/verdantlabs/sprout/internal/metrics"
	"github.com/verdantlabs/sprout/internal/stores"
	"github.com/verdantlabs/sprout/internal/tips"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testEnv struct {
	engine     *Engine
	store      *cache.Store
	tracker    *Tracker
	monitor    *Monitor
	plants     *stores.PlantStore
	activities *stores.ActivityStore
	weather    *stores.WeatherProvider
	prefs      *stores.PreferenceStore
}

// newTestEnv wires an engine exactly the way main does: stores notify the
// tracker, the tracker sweeps the cache store shared with the engine.
func newTestEnv(t *testing.T, ttl time.Duration, maxEntries int) *testEnv {
	t.Helper()
	logger := testLogger()
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	store := cache.NewStore(ttl, maxEntries)
	tracker := NewTracker(store, logger, rec)

	env := &testEnv{store: store, tracker: tracker, monitor: NewMonitor()}
	env.plants = stores.NewPlantStore(func() { tracker.MarkChanged(DomainPlantData) })
	env.activities = stores.NewActivityStore(func() { tracker.MarkChanged(DomainActivityData) })
	env.weather = stores.NewWeatherProvider(func() { tracker.MarkChanged(DomainWeatherData) })
	env.prefs = stores.NewPreferenceStore(func() { tracker.MarkChanged(DomainUserPreferences) })

	advisor, err := tips.NewAdvisor(logger, tips.DefaultRules()...)
	require.NoError(t, err)

	env.engine = New(Options{
		Store:   store,
		Tracker: tracker,
		Monitor: env.monitor,
		Sources: Sources{
			Plants:      env.plants,
			Activities:  env.activities,
			Weather:     env.weather,
			Preferences: env.prefs,
		},
		Advisor:  advisor,
		Analyzer: analysis.NewAnalyzer(logger, env.weather),
		Logger:   logger,
		Metrics:  rec,
	})
	return env
}

func (env *testEnv) seedPlant(t *testing.T, scores ...float64) stores.Plant {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var log []stores.HealthSample
	for i, s := range scores {
		log = append(log, stores.HealthSample{At: base.AddDate(0, 0, i), Score: s})
	}
	return env.plants.Add(stores.Plant{
		Name:       "Monstera",
		Species:    "Monstera deliciosa",
		Location:   "indoor",
		AcquiredAt: base.AddDate(0, -2, 0),
		HealthLog:  log,
	})
}

func TestResolveComputesThenCaches(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	plant := env.seedPlant(t, 0.5, 0.6, 0.7, 0.8)

	req := Request{Kind: KindHealthTrend, SubjectID: plant.ID}
	first := env.engine.Resolve(context.Background(), req)
	require.True(t, first.Success)
	require.False(t, first.Cached)
	require.NotNil(t, first.Data)

	second := env.engine.Resolve(context.Background(), req)
	require.True(t, second.Success)
	require.True(t, second.Cached)
	require.Equal(t, first.Data, second.Data)
	require.Equal(t, first.GeneratedAt, second.GeneratedAt)
	require.Equal(t, 1, env.store.Len())
}

func TestResolveUnsupportedKind(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)

	resp := env.engine.Resolve(context.Background(), Request{Kind: Kind("mood_ring")})
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeUnsupportedKind, resp.Error.Code)
	require.Zero(t, env.store.Len())
}

func TestResolveSubjectNotFound(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)

	resp := env.engine.Resolve(context.Background(), Request{Kind: KindHealthTrend, SubjectID: "plant_404"})
	require.False(t, resp.Success)
	require.Equal(t, CodeSubjectNotFound, resp.Error.Code)

	// A missing subject id on a per-plant kind classifies the same way.
	resp = env.engine.Resolve(context.Background(), Request{Kind: KindGrowthForecast})
	require.False(t, resp.Success)
	require.Equal(t, CodeSubjectNotFound, resp.Error.Code)
}

func TestResolveFailuresAreNotCached(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	plant := env.seedPlant(t) // no health samples yet

	req := Request{Kind: KindGrowthForecast, SubjectID: plant.ID}
	resp := env.engine.Resolve(context.Background(), req)
	require.False(t, resp.Success)
	require.Equal(t, CodeNoData, resp.Error.Code)
	require.Zero(t, env.store.Len())

	ok := env.plants.RecordHealth(plant.ID, stores.HealthSample{At: time.Now().UTC(), Score: 0.9})
	require.True(t, ok)

	resp = env.engine.Resolve(context.Background(), req)
	require.True(t, resp.Success)
	require.False(t, resp.Cached)
}

func TestDomainChangeInvalidatesDependents(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	plant := env.seedPlant(t, 0.8)
	env.activities.Add(stores.Activity{PlantID: plant.ID, Type: stores.ActivityWatering, At: time.Now().UTC().AddDate(0, 0, -1)})

	summaryReq := Request{Kind: KindActivitySummary}
	analysisReq := Request{Kind: KindPlantAnalysis, Parameters: map[string]string{"imageUrl": "https://example.com/leaf.jpg"}}

	require.True(t, env.engine.Resolve(context.Background(), summaryReq).Success)
	require.True(t, env.engine.Resolve(context.Background(), analysisReq).Success)
	require.Equal(t, 2, env.store.Len())

	// Logging a new activity invalidates activity-dependent entries but not
	// the analysis result, which only reads plant and weather data.
	env.activities.Add(stores.Activity{PlantID: plant.ID, Type: stores.ActivityMisting, At: time.Now().UTC()})

	require.False(t, env.engine.Resolve(context.Background(), summaryReq).Cached)
	require.True(t, env.engine.Resolve(context.Background(), analysisReq).Cached)
}

func TestForceRefreshRecomputes(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	plant := env.seedPlant(t, 0.5, 0.9)

	req := Request{Kind: KindHealthTrend, SubjectID: plant.ID}
	require.False(t, env.engine.Resolve(context.Background(), req).Cached)
	require.True(t, env.engine.Resolve(context.Background(), req).Cached)

	req.ForceRefresh = true
	resp := env.engine.Resolve(context.Background(), req)
	require.True(t, resp.Success)
	require.False(t, resp.Cached)

	// The refreshed result replaces the cached entry.
	req.ForceRefresh = false
	require.True(t, env.engine.Resolve(context.Background(), req).Cached)
	require.Equal(t, 1, env.store.Len())
}

func TestCapacitySweepEvictsOldestFirst(t *testing.T) {
	env := newTestEnv(t, time.Minute, 2)
	plant := env.seedPlant(t, 0.8)
	env.activities.Add(stores.Activity{PlantID: plant.ID, Type: stores.ActivityWatering, At: time.Now().UTC().AddDate(0, 0, -2)})

	// Advance the store clock per operation so insertion order is the age order.
	current := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	env.store.SetClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	})

	reqs := []Request{
		{Kind: KindActivitySummary},
		{Kind: KindWateringSchedule},
		{Kind: KindCareTips},
	}
	for _, req := range reqs {
		require.True(t, env.engine.Resolve(context.Background(), req).Success)
	}

	// The third write pushed the store past its headroom; the inline sweep
	// dropped the first-generated entry and kept the newer two.
	require.Equal(t, 2, env.store.Len())
	require.True(t, env.engine.Resolve(context.Background(), reqs[1]).Cached)
	require.True(t, env.engine.Resolve(context.Background(), reqs[2]).Cached)
	require.False(t, env.engine.Resolve(context.Background(), reqs[0]).Cached)
}

// gatedPlants blocks List until released so concurrent resolutions pile up on
// the same in-flight computation.
type gatedPlants struct {
	mu    sync.Mutex
	lists int
	gate  chan struct{}
	plant stores.Plant
}

func (g *gatedPlants) Get(id string) (stores.Plant, bool) {
	if id == g.plant.ID {
		return g.plant, true
	}
	return stores.Plant{}, false
}

func (g *gatedPlants) List() []stores.Plant {
	g.mu.Lock()
	g.lists++
	g.mu.Unlock()
	<-g.gate
	return []stores.Plant{g.plant}
}

func TestConcurrentResolutionsCoalesce(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	gated := &gatedPlants{
		gate:  make(chan struct{}),
		plant: stores.Plant{ID: "plant_1", Name: "Fern", Location: "indoor", AcquiredAt: time.Now().UTC().AddDate(0, -1, 0)},
	}
	env.engine.sources.Plants = gated

	req := Request{Kind: KindWateringSchedule}
	var wg sync.WaitGroup
	responses := make([]Response, 5)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = env.engine.Resolve(context.Background(), req)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gated.gate)
	wg.Wait()

	gated.mu.Lock()
	lists := gated.lists
	gated.mu.Unlock()
	require.Equal(t, 1, lists)
	for _, resp := range responses {
		require.True(t, resp.Success)
		require.False(t, resp.Cached)
	}
	require.Equal(t, 1, env.store.Len())
}

func TestPerformanceReport(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	plant := env.seedPlant(t, 0.4, 0.6)

	req := Request{Kind: KindHealthTrend, SubjectID: plant.ID}
	env.engine.Resolve(context.Background(), req)
	env.engine.Resolve(context.Background(), req)

	report := env.engine.PerformanceReport()
	require.Equal(t, uint64(2), report.TotalComputations)
	require.InDelta(t, 0.5, report.CacheHitRate, 1e-9)
	require.Equal(t, 1, report.CacheEntries)
	require.Nil(t, report.LastOptimizationAt)

	env.engine.Optimize()
	report = env.engine.PerformanceReport()
	require.NotNil(t, report.LastOptimizationAt)
	require.Contains(t, report.Dependencies, DomainPlantData)
}

func TestUpdateCacheConfigAppliesToSubsequentWrites(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	plant := env.seedPlant(t, 0.7, 0.8)
	env.activities.Add(stores.Activity{PlantID: plant.ID, Type: stores.ActivityWatering, At: time.Now().UTC()})

	require.True(t, env.engine.Resolve(context.Background(), Request{Kind: KindActivitySummary}).Success)
	env.engine.UpdateCacheConfig(time.Minute, 1)
	require.True(t, env.engine.Resolve(context.Background(), Request{Kind: KindHealthTrend, SubjectID: plant.ID}).Success)

	env.engine.Optimize()
	require.Equal(t, 1, env.store.Len())
}

func TestClearScopedBySubject(t *testing.T) {
	env := newTestEnv(t, time.Minute, 50)
	a := env.seedPlant(t, 0.5, 0.6)
	b := env.seedPlant(t, 0.9, 0.9)

	for _, id := range []string{a.ID, b.ID} {
		require.True(t, env.engine.Resolve(context.Background(), Request{Kind: KindHealthTrend, SubjectID: id}).Success)
	}
	require.Equal(t, 2, env.store.Len())

	removed := env.engine.Clear("subject:" + a.ID)
	require.Equal(t, 1, removed)
	require.True(t, env.engine.Resolve(context.Background(), Request{Kind: KindHealthTrend, SubjectID: b.ID}).Cached)
}
