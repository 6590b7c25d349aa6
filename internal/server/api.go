package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/verdantlabs/sprout/internal/analysis"
	"github.com/verdantlabs/sprout/internal/config"
	"github.com/verdantlabs/sprout/internal/insight"
	"github.com/verdantlabs/sprout/internal/insight/compute"
	"github.com/verdantlabs/sprout/internal/insight/history"
	"github.com/verdantlabs/sprout/internal/report"
	"github.com/verdantlabs/sprout/internal/stores"
	"github.com/verdantlabs/sprout/internal/tips"
)

// API dispatches the HTTP surface onto the engine, the scheduler, and the
// collaborator stores.
type API struct {
	logger     *slog.Logger
	engine     *insight.Engine
	scheduler  *insight.Scheduler
	plants     *stores.PlantStore
	activities *stores.ActivityStore
	prefs      *stores.PreferenceStore
	weather    *stores.WeatherProvider
	analyzer   *analysis.Analyzer
	reports    *report.Renderer
	history    history.Store
	metrics    http.Handler

	mu       sync.Mutex
	insights config.InsightsConfig
}

// APIOptions wires an API to its collaborators.
type APIOptions struct {
	Logger     *slog.Logger
	Engine     *insight.Engine
	Scheduler  *insight.Scheduler
	Plants     *stores.PlantStore
	Activities *stores.ActivityStore
	Prefs      *stores.PreferenceStore
	Weather    *stores.WeatherProvider
	Analyzer   *analysis.Analyzer
	Reports    *report.Renderer
	History    history.Store
	Metrics    http.Handler
	Insights   config.InsightsConfig
}

// NewAPI builds the handler set.
func NewAPI(opts APIOptions) *API {
	return &API{
		logger:     opts.Logger.With(slog.String("agent", "api")),
		engine:     opts.Engine,
		scheduler:  opts.Scheduler,
		plants:     opts.Plants,
		activities: opts.Activities,
		prefs:      opts.Prefs,
		weather:    opts.Weather,
		analyzer:   opts.Analyzer,
		reports:    opts.Reports,
		history:    opts.History,
		metrics:    opts.Metrics,
		insights:   opts.Insights,
	}
}

// Handler assembles the route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/insights", a.handleResolve)
	mux.HandleFunc("GET /v1/insights/performance", a.handlePerformance)
	mux.HandleFunc("POST /v1/invalidate", a.handleInvalidate)
	mux.HandleFunc("POST /v1/cache/clear", a.handleCacheClear)
	mux.HandleFunc("PATCH /v1/config", a.handleConfigPatch)
	mux.HandleFunc("POST /v1/analyze", a.handleAnalyze)

	mux.HandleFunc("GET /v1/plants", a.handlePlantList)
	mux.HandleFunc("POST /v1/plants", a.handlePlantCreate)
	mux.HandleFunc("GET /v1/plants/{id}", a.handlePlantGet)
	mux.HandleFunc("PUT /v1/plants/{id}", a.handlePlantUpdate)
	mux.HandleFunc("DELETE /v1/plants/{id}", a.handlePlantDelete)
	mux.HandleFunc("POST /v1/plants/{id}/health", a.handleHealthRecord)
	mux.HandleFunc("GET /v1/plants/{id}/report", a.handlePlantReport)
	mux.HandleFunc("GET /v1/plants/{id}/history", a.handleHistoryList)
	mux.HandleFunc("POST /v1/plants/{id}/history", a.handleHistoryCapture)

	mux.HandleFunc("GET /v1/activities", a.handleActivityList)
	mux.HandleFunc("POST /v1/activities", a.handleActivityCreate)
	mux.HandleFunc("DELETE /v1/activities/{id}", a.handleActivityDelete)

	mux.HandleFunc("GET /v1/preferences", a.handlePreferencesGet)
	mux.HandleFunc("PUT /v1/preferences", a.handlePreferencesPut)
	mux.HandleFunc("POST /v1/weather/refresh", a.handleWeatherRefresh)

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	return mux
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("response encode failed", slog.Any("error", err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return false
	}
	return true
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req insight.Request
	if !a.decode(w, r, &req) {
		return
	}
	resp := a.engine.Resolve(r.Context(), req)
	status := http.StatusOK
	if !resp.Success {
		switch resp.Error.Code {
		case insight.CodeUnsupportedKind:
			status = http.StatusBadRequest
		case insight.CodeSubjectNotFound:
			status = http.StatusNotFound
		}
	}
	a.writeJSON(w, status, resp)
}

func (a *API) handlePerformance(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.PerformanceReport())
}

func (a *API) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Domain string `json:"domain"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	domain, ok := insight.ParseDomain(body.Domain)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "unknown domain "+body.Domain)
		return
	}
	removed := a.engine.MarkDomainChanged(domain)
	a.writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "removed": removed})
}

func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prefix string `json:"prefix"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	removed := a.engine.Clear(body.Prefix)
	a.writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// insightSettings is the runtime-updatable slice of the configuration.
type insightSettings struct {
	Cache     config.CacheConfig     `json:"cache"`
	Scheduler config.SchedulerConfig `json:"scheduler"`
}

// handleConfigPatch merges the request over the current settings, so omitted
// fields keep their values, then applies the result to the engine and the
// scheduler. Updated limits govern subsequent cache writes only.
func (a *API) handleConfigPatch(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged := insightSettings{Cache: a.insights.Cache, Scheduler: a.insights.Scheduler}
	if !a.decode(w, r, &merged) {
		return
	}
	if merged.Cache.TTLSeconds <= 0 || merged.Cache.MaxEntries <= 0 {
		a.writeError(w, http.StatusBadRequest, "cache ttlSeconds and maxEntries must be positive")
		return
	}

	a.insights.Cache = merged.Cache
	a.insights.Scheduler = merged.Scheduler
	a.engine.UpdateCacheConfig(merged.Cache.TTL(), merged.Cache.MaxEntries)
	a.scheduler.UpdateSettings(insight.Settings{
		BackgroundEnabled:  merged.Scheduler.BackgroundEnabled,
		WarmupOnInit:       false,
		OptimizeInterval:   merged.Scheduler.OptimizeInterval(),
		PrecomputeInterval: merged.Scheduler.PrecomputeInterval(),
		PruneInterval:      a.insights.History.PruneInterval(),
	})
	a.writeJSON(w, http.StatusOK, merged)
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.analyzer.Analyze(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analysis.ErrNoImage) {
			status = http.StatusBadRequest
		}
		a.writeError(w, status, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePlantList(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.plants.List())
}

func (a *API) handlePlantCreate(w http.ResponseWriter, r *http.Request) {
	var plant stores.Plant
	if !a.decode(w, r, &plant) {
		return
	}
	a.writeJSON(w, http.StatusCreated, a.plants.Add(plant))
}

func (a *API) handlePlantGet(w http.ResponseWriter, r *http.Request) {
	plant, ok := a.plants.Get(r.PathValue("id"))
	if !ok {
		a.writeError(w, http.StatusNotFound, "plant not found")
		return
	}
	a.writeJSON(w, http.StatusOK, plant)
}

func (a *API) handlePlantUpdate(w http.ResponseWriter, r *http.Request) {
	var plant stores.Plant
	if !a.decode(w, r, &plant) {
		return
	}
	plant.ID = r.PathValue("id")
	updated, ok := a.plants.Update(plant)
	if !ok {
		a.writeError(w, http.StatusNotFound, "plant not found")
		return
	}
	a.writeJSON(w, http.StatusOK, updated)
}

func (a *API) handlePlantDelete(w http.ResponseWriter, r *http.Request) {
	if !a.plants.Delete(r.PathValue("id")) {
		a.writeError(w, http.StatusNotFound, "plant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleHealthRecord(w http.ResponseWriter, r *http.Request) {
	var sample stores.HealthSample
	if !a.decode(w, r, &sample) {
		return
	}
	if sample.At.IsZero() {
		sample.At = time.Now().UTC()
	}
	if !a.plants.RecordHealth(r.PathValue("id"), sample) {
		a.writeError(w, http.StatusNotFound, "plant not found")
		return
	}
	a.writeJSON(w, http.StatusCreated, sample)
}

// handlePlantReport resolves the per-plant insights through the engine, so
// the report benefits from (and populates) the cache, then renders them.
func (a *API) handlePlantReport(w http.ResponseWriter, r *http.Request) {
	plant, ok := a.plants.Get(r.PathValue("id"))
	if !ok {
		a.writeError(w, http.StatusNotFound, "plant not found")
		return
	}

	data := report.Data{
		Plant:       plant,
		Weather:     a.weather.Current(),
		GeneratedAt: time.Now().UTC(),
	}
	if resp := a.engine.Resolve(r.Context(), insight.Request{Kind: insight.KindHealthTrend, SubjectID: plant.ID}); resp.Success {
		if trend, ok := resp.Data.(compute.HealthTrendResult); ok {
			data.Trend = &trend
		}
	}
	if resp := a.engine.Resolve(r.Context(), insight.Request{Kind: insight.KindWateringSchedule, SubjectID: plant.ID}); resp.Success {
		if schedule, ok := resp.Data.(compute.WateringScheduleResult); ok && len(schedule.Plans) > 0 {
			data.Plan = &schedule.Plans[0]
		}
	}
	if resp := a.engine.Resolve(r.Context(), insight.Request{Kind: insight.KindCareTips, SubjectID: plant.ID}); resp.Success {
		if selected, ok := resp.Data.([]tips.Tip); ok {
			data.Tips = selected
		}
	}

	text, err := a.reports.Render(data)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		a.logger.Warn("report write failed", slog.Any("error", err))
	}
}

func (a *API) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	g, ok := history.ParseGranularity(r.URL.Query().Get("granularity"))
	if !ok {
		a.writeError(w, http.StatusBadRequest, "granularity must be daily, weekly, or monthly")
		return
	}
	list, err := a.history.List(r.Context(), r.PathValue("id"), g)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []history.Aggregate{}
	}
	a.writeJSON(w, http.StatusOK, list)
}

// handleHistoryCapture snapshots the plant's current period and persists it.
func (a *API) handleHistoryCapture(w http.ResponseWriter, r *http.Request) {
	plant, ok := a.plants.Get(r.PathValue("id"))
	if !ok {
		a.writeError(w, http.StatusNotFound, "plant not found")
		return
	}
	var body struct {
		Granularity string    `json:"granularity"`
		PeriodStart time.Time `json:"periodStart"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	g, ok := history.ParseGranularity(body.Granularity)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "granularity must be daily, weekly, or monthly")
		return
	}
	start := body.PeriodStart
	if start.IsZero() {
		now := time.Now().UTC()
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	agg := history.Snapshot(plant, a.activities.ForPlant(plant.ID), g, start)
	if err := a.history.Put(r.Context(), agg); err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusCreated, agg)
}

func (a *API) handleActivityList(w http.ResponseWriter, r *http.Request) {
	if plantID := r.URL.Query().Get("plantId"); plantID != "" {
		a.writeJSON(w, http.StatusOK, a.activities.ForPlant(plantID))
		return
	}
	a.writeJSON(w, http.StatusOK, a.activities.List())
}

func (a *API) handleActivityCreate(w http.ResponseWriter, r *http.Request) {
	var activity stores.Activity
	if !a.decode(w, r, &activity) {
		return
	}
	if activity.PlantID == "" {
		a.writeError(w, http.StatusBadRequest, "plantId required")
		return
	}
	if activity.At.IsZero() {
		activity.At = time.Now().UTC()
	}
	a.writeJSON(w, http.StatusCreated, a.activities.Add(activity))
}

func (a *API) handleActivityDelete(w http.ResponseWriter, r *http.Request) {
	if !a.activities.Delete(r.PathValue("id")) {
		a.writeError(w, http.StatusNotFound, "activity not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePreferencesGet(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.prefs.Get())
}

func (a *API) handlePreferencesPut(w http.ResponseWriter, r *http.Request) {
	var prefs stores.Preferences
	if !a.decode(w, r, &prefs) {
		return
	}
	a.writeJSON(w, http.StatusOK, a.prefs.Update(prefs))
}

func (a *API) handleWeatherRefresh(w http.ResponseWriter, r *http.Request) {
	a.weather.Refresh()
	a.writeJSON(w, http.StatusOK, a.weather.Current())
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
