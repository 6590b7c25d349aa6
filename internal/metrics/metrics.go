package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationGet records insight cache reads.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationPut records insight cache writes.
	CacheOperationPut CacheOperation = "put"
	// CacheOperationEvict records entries removed by the optimizer.
	CacheOperationEvict CacheOperation = "evict"
)

// CacheGetOutcome captures the result of a cache read.
type CacheGetOutcome string

const (
	// CacheGetHit indicates the read reused a cached insight.
	CacheGetHit CacheGetOutcome = "hit"
	// CacheGetMiss indicates no live entry was present.
	CacheGetMiss CacheGetOutcome = "miss"
)

// BackgroundOutcome captures whether a scheduled task run succeeded.
type BackgroundOutcome string

const (
	// BackgroundOK indicates the task completed.
	BackgroundOK BackgroundOutcome = "ok"
	// BackgroundError indicates the task failed and the failure was swallowed.
	BackgroundError BackgroundOutcome = "error"
)

// Recorder publishes Prometheus metrics for insight engine activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	insightRequests *prometheus.CounterVec
	insightLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	backgroundRuns  *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	insightRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "insight",
		Name:      "requests_total",
		Help:      "Total insight requests resolved by the dispatcher.",
	}, []string{"kind", "outcome", "from_cache"})

	insightLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sprout",
		Subsystem: "insight",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for resolved insight requests.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"kind", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Insight cache operations executed by the engine.",
	}, []string{"operation", "result"})

	invalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "cache",
		Name:      "invalidated_entries_total",
		Help:      "Cache entries removed by domain invalidation sweeps.",
	}, []string{"domain"})

	backgroundRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Background task executions by the scheduler.",
	}, []string{"task", "outcome"})

	reg.MustRegister(insightRequests, insightLatency, cacheOperations, invalidations, backgroundRuns)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		insightRequests: insightRequests,
		insightLatency:  insightLatency,
		cacheOperations: cacheOperations,
		invalidations:   invalidations,
		backgroundRuns:  backgroundRuns,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the outcome and latency for a resolved insight request.
func (r *Recorder) ObserveRequest(kind, outcome string, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	kindLabel := normalizeLabel(kind)
	outcomeLabel := normalizeLabel(outcome)
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.insightRequests.WithLabelValues(kindLabel, outcomeLabel, cacheLabel).Inc()
	r.insightLatency.WithLabelValues(kindLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheGet records the result of a cache read.
func (r *Recorder) ObserveCacheGet(result CacheGetOutcome) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheGetMiss)
	}
	r.cacheOperations.WithLabelValues(string(CacheOperationGet), resultLabel).Inc()
}

// ObserveCachePut records a cache write.
func (r *Recorder) ObserveCachePut() {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues(string(CacheOperationPut), "stored").Inc()
}

// ObserveEvictions records entries removed by an expiry or capacity sweep.
func (r *Recorder) ObserveEvictions(removed int) {
	if r == nil || removed <= 0 {
		return
	}
	r.cacheOperations.WithLabelValues(string(CacheOperationEvict), "removed").Add(float64(removed))
}

// ObserveInvalidation records entries swept after a domain mutation.
func (r *Recorder) ObserveInvalidation(domain string, removed int) {
	if r == nil {
		return
	}
	r.invalidations.WithLabelValues(normalizeLabel(domain)).Add(float64(removed))
}

// ObserveBackgroundRun records a scheduler task execution.
func (r *Recorder) ObserveBackgroundRun(task string, outcome BackgroundOutcome) {
	if r == nil {
		return
	}
	outcomeLabel := string(outcome)
	if outcomeLabel == "" {
		outcomeLabel = string(BackgroundError)
	}
	r.backgroundRuns.WithLabelValues(normalizeLabel(task), outcomeLabel).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
