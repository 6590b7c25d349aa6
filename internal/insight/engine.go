package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/verdantlabs/sprout/internal/analysis"
	"github.com/verdantlabs/sprout/internal/insight/cache"
	"github.com/verdantlabs/sprout/internal/insight/compute"
	"github.com/verdantlabs/sprout/internal/metrics"
	"github.com/verdantlabs/sprout/internal/stores"
	"github.com/verdantlabs/sprout/internal/tips"
)

// PlantSource is the read surface the engine needs from the plant store.
type PlantSource interface {
	Get(id string) (stores.Plant, bool)
	List() []stores.Plant
}

// ActivitySource is the read surface the engine needs from the activity log.
type ActivitySource interface {
	List() []stores.Activity
	ForPlant(plantID string) []stores.Activity
}

// WeatherSource is the read surface the engine needs from the weather provider.
type WeatherSource interface {
	Current() stores.WeatherSnapshot
	Recent(n int) []stores.WeatherSnapshot
}

// PreferenceSource is the read surface the engine needs from user preferences.
type PreferenceSource interface {
	Get() stores.Preferences
}

// Sources bundles the collaborator stores the computations read from.
type Sources struct {
	Plants      PlantSource
	Activities  ActivitySource
	Weather     WeatherSource
	Preferences PreferenceSource
}

// Options wires an Engine to its collaborators.
type Options struct {
	Store    *cache.Store
	Tracker  *Tracker
	Monitor  *Monitor
	Sources  Sources
	Advisor  *tips.Advisor
	Analyzer *analysis.Analyzer
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Engine is the computation dispatcher: the sole entry point for resolving
// insights. It consults the cache, runs the registered computation on a miss,
// stores successful results with their dependency tags, and keeps the
// performance counters current. Concurrent resolutions of the same uncached
// key are coalesced so at most one computation runs per key; this is a
// deliberate strengthening over the behavior the mobile app shipped with,
// which let concurrent requests race and last-write-win.
type Engine struct {
	store    *cache.Store
	tracker  *Tracker
	perf     *Monitor
	sources  Sources
	advisor  *tips.Advisor
	analyzer *analysis.Analyzer
	logger   *slog.Logger
	metrics  *metrics.Recorder
	group    singleflight.Group
	now      func() time.Time
}

// New constructs an engine from pre-built collaborators.
func New(opts Options) *Engine {
	return &Engine{
		store:    opts.Store,
		tracker:  opts.Tracker,
		perf:     opts.Monitor,
		sources:  opts.Sources,
		advisor:  opts.Advisor,
		analyzer: opts.Analyzer,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve answers an insight request from cache when possible, computing and
// caching on a miss. It always returns a response envelope; failures are
// classified, never propagated, and never cached.
func (e *Engine) Resolve(ctx context.Context, req Request) Response {
	if !req.Kind.Valid() {
		resp := failure(CodeUnsupportedKind, fmt.Sprintf("no computation registered for kind %q", req.Kind))
		e.perf.RecordOutcome(0, false)
		e.metrics.ObserveRequest(string(req.Kind), string(CodeUnsupportedKind), false, 0)
		return resp
	}

	key := req.CacheKey()
	if !req.ForceRefresh {
		if entry, ok := e.store.Get(key); ok {
			e.metrics.ObserveCacheGet(metrics.CacheGetHit)
			e.perf.RecordOutcome(entry.ComputationTime, true)
			e.metrics.ObserveRequest(string(req.Kind), "success", true, entry.ComputationTime)
			return Response{
				Success:           true,
				Data:              entry.Payload,
				Cached:            true,
				ComputationTimeMs: durationMs(entry.ComputationTime),
				GeneratedAt:       entry.GeneratedAt,
			}
		}
		e.metrics.ObserveCacheGet(metrics.CacheGetMiss)
	}

	var resp Response
	if req.ForceRefresh {
		// Forced refreshes intentionally bypass coalescing: the caller asked
		// for a recomputation, not for whatever result is already in flight.
		resp = e.computeAndStore(ctx, req, key)
	} else {
		v, _, _ := e.group.Do(key, func() (any, error) {
			return e.computeAndStore(ctx, req, key), nil
		})
		resp = v.(Response)
	}

	latency := time.Duration(resp.ComputationTimeMs * float64(time.Millisecond))
	outcome := "success"
	if !resp.Success {
		outcome = string(resp.Error.Code)
	}
	e.perf.RecordOutcome(latency, false)
	e.metrics.ObserveRequest(string(req.Kind), outcome, false, latency)
	return resp
}

func (e *Engine) computeAndStore(ctx context.Context, req Request, key string) Response {
	start := time.Now()
	payload, err := e.compute(ctx, req)
	duration := time.Since(start)

	if err != nil {
		code := classify(err)
		if e.logger != nil {
			e.logger.Warn("insight computation failed",
				slog.String("kind", string(req.Kind)),
				slog.String("key", key),
				slog.String("code", string(code)),
				slog.Any("error", err))
		}
		resp := failure(code, err.Error())
		resp.ComputationTimeMs = durationMs(duration)
		return resp
	}

	entry := e.store.Put(key, payload, req.Kind.dependencyTags(), duration)
	e.metrics.ObserveCachePut()
	return Response{
		Success:           true,
		Data:              payload,
		Cached:            false,
		ComputationTimeMs: durationMs(duration),
		GeneratedAt:       entry.GeneratedAt,
	}
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, compute.ErrNoData), errors.Is(err, analysis.ErrNoImage):
		return CodeNoData
	case errors.Is(err, compute.ErrSubjectNotFound):
		return CodeSubjectNotFound
	default:
		return CodeComputationError
	}
}

// compute runs the computation registered for the request's kind against
// current domain state. The switch is exhaustive over the closed Kind set.
func (e *Engine) compute(_ context.Context, req Request) (any, error) {
	from, to := req.window()
	switch req.Kind {
	case KindHealthTrend:
		plant, err := e.subject(req)
		if err != nil {
			return nil, err
		}
		return compute.HealthTrend(plant, from, to)

	case KindGrowthForecast:
		plant, err := e.subject(req)
		if err != nil {
			return nil, err
		}
		horizon := paramInt(req.Parameters, "horizonDays", 30)
		return compute.GrowthForecast(plant, horizon)

	case KindWateringSchedule:
		plants, err := e.subjectOrAll(req)
		if err != nil {
			return nil, err
		}
		return compute.WateringSchedule(plants, e.sources.Activities.List(), e.sources.Weather.Current())

	case KindActivitySummary:
		activities := e.sources.Activities.List()
		if req.SubjectID != "" {
			activities = e.sources.Activities.ForPlant(req.SubjectID)
		}
		return compute.ActivitySummary(activities, from, to)

	case KindWeatherImpact:
		days := paramInt(req.Parameters, "days", 14)
		return compute.WeatherImpact(e.sources.Activities.List(), e.sources.Weather.Recent(days))

	case KindCareTips:
		plants, err := e.subjectOrAll(req)
		if err != nil {
			return nil, err
		}
		return e.careTips(plants)

	case KindPlantAnalysis:
		return e.analyzer.Analyze(analysis.Request{
			ImageURL:    req.Parameters["imageUrl"],
			ImageBase64: req.Parameters["imageBase64"],
			PlantName:   req.Parameters["plantName"],
		})
	}
	return nil, fmt.Errorf("insight: kind %q not dispatchable", req.Kind)
}

// subject resolves the request's required plant.
func (e *Engine) subject(req Request) (stores.Plant, error) {
	if req.SubjectID == "" {
		return stores.Plant{}, fmt.Errorf("%w: %s requires a subjectId", compute.ErrSubjectNotFound, req.Kind)
	}
	plant, ok := e.sources.Plants.Get(req.SubjectID)
	if !ok {
		return stores.Plant{}, fmt.Errorf("%w: plant %q", compute.ErrSubjectNotFound, req.SubjectID)
	}
	return plant, nil
}

// subjectOrAll resolves the request's plant when a subject is given, or every
// plant otherwise.
func (e *Engine) subjectOrAll(req Request) ([]stores.Plant, error) {
	if req.SubjectID == "" {
		return e.sources.Plants.List(), nil
	}
	plant, ok := e.sources.Plants.Get(req.SubjectID)
	if !ok {
		return nil, fmt.Errorf("%w: plant %q", compute.ErrSubjectNotFound, req.SubjectID)
	}
	return []stores.Plant{plant}, nil
}

// careTips evaluates the advisor per plant and merges the selected tips,
// deduplicated by id and ordered by priority.
func (e *Engine) careTips(plants []stores.Plant) (any, error) {
	if len(plants) == 0 {
		return nil, fmt.Errorf("%w: no plants", compute.ErrNoData)
	}
	weather := e.sources.Weather.Current()
	prefs := e.sources.Preferences.Get()
	now := e.now()

	seen := make(map[string]tips.Tip)
	for _, plant := range plants {
		activities := e.sources.Activities.ForPlant(plant.ID)
		input := tips.Input{
			Plant: map[string]any{
				"id":          plant.ID,
				"location":    plant.Location,
				"species":     plant.Species,
				"healthScore": latestHealthScore(plant),
			},
			Weather: map[string]any{
				"tempC":     weather.TempC,
				"humidity":  weather.Humidity,
				"condition": weather.Condition,
			},
			Activity: map[string]any{
				"daysSinceWatering":    daysSince(activities, stores.ActivityWatering, now),
				"daysSinceFertilizing": daysSince(activities, stores.ActivityFertilizing, now),
			},
			Prefs: map[string]any{
				"careLevel":            prefs.CareLevel,
				"notificationsEnabled": prefs.NotificationsEnabled,
			},
		}
		for _, tip := range e.advisor.Advise(input) {
			if _, ok := seen[tip.ID]; !ok {
				seen[tip.ID] = tip
			}
		}
	}

	out := make([]tips.Tip, 0, len(seen))
	for _, tip := range seen {
		out = append(out, tip)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].ID < out[j].ID
		}
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

// latestHealthScore returns the most recent health observation, defaulting to
// a healthy score when the plant has no log yet.
func latestHealthScore(plant stores.Plant) float64 {
	if len(plant.HealthLog) == 0 {
		return 1.0
	}
	latest := plant.HealthLog[0]
	for _, sample := range plant.HealthLog[1:] {
		if sample.At.After(latest.At) {
			latest = sample
		}
	}
	return latest.Score
}

// daysSince reports the days elapsed since the latest activity of the given
// type, or a large sentinel when none was ever logged so threshold rules fire.
func daysSince(activities []stores.Activity, typ stores.ActivityType, now time.Time) float64 {
	var latest time.Time
	for _, a := range activities {
		if a.Type == typ && a.At.After(latest) {
			latest = a.At
		}
	}
	if latest.IsZero() {
		return 365
	}
	return now.Sub(latest).Hours() / 24
}

func paramInt(params map[string]string, name string, fallback int) int {
	raw, ok := params[name]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// MarkDomainChanged is the invalidation hook external stores call after every
// mutation.
func (e *Engine) MarkDomainChanged(domain Domain) int {
	return e.tracker.MarkChanged(domain)
}

// Optimize removes expired entries, evicts down to capacity, and stamps the
// optimization instant. Called by the scheduler and exposed for manual runs.
func (e *Engine) Optimize() (expired, evicted int) {
	expired = e.store.RemoveExpired()
	evicted = e.store.EvictOverCapacity()
	e.metrics.ObserveEvictions(expired + evicted)
	e.perf.MarkOptimized(e.now())
	if e.logger != nil && expired+evicted > 0 {
		e.logger.Debug("cache optimized",
			slog.Int("expired", expired),
			slog.Int("evicted", evicted))
	}
	return expired, evicted
}

// Clear removes all entries, or only those whose key contains needle.
func (e *Engine) Clear(needle string) int {
	return e.store.Clear(needle)
}

// UpdateCacheConfig applies a new TTL and capacity to subsequent writes.
// Existing entries keep the expiry they were stored with.
func (e *Engine) UpdateCacheConfig(ttl time.Duration, maxEntries int) {
	e.store.SetLimits(ttl, maxEntries)
	if e.logger != nil {
		e.logger.Info("cache config updated",
			slog.Duration("ttl", ttl),
			slog.Int("max_entries", maxEntries))
	}
}

// Report combines the running counters with the cache and dependency state.
type Report struct {
	Counters
	CacheEntries int                  `json:"cacheEntries"`
	Dependencies map[Domain]time.Time `json:"dependencies"`
}

// PerformanceReport snapshots the engine's telemetry.
func (e *Engine) PerformanceReport() Report {
	return Report{
		Counters:     e.perf.Snapshot(),
		CacheEntries: e.store.Len(),
		Dependencies: e.tracker.State(),
	}
}
