// Package insight implements the request-keyed cache and computation-dispatch
// engine behind the application's analytics: key generation, the dependency
// tracker that sweeps cached results when a data domain mutates, the
// dispatcher that memoizes the per-kind computations, the background
// scheduler, and the running performance counters.
package insight

// Kind enumerates the computations the dispatcher knows how to run. The set is
// closed: Resolve switches exhaustively over it, so adding a kind is a
// compile-visible change.
type Kind string

const (
	KindHealthTrend      Kind = "health_trend"
	KindGrowthForecast   Kind = "growth_forecast"
	KindWateringSchedule Kind = "watering_schedule"
	KindActivitySummary  Kind = "activity_summary"
	KindWeatherImpact    Kind = "weather_impact"
	KindCareTips         Kind = "care_tips"
	KindPlantAnalysis    Kind = "plant_analysis"
)

// Domain tags the four coarse data categories used to scope invalidation.
type Domain string

const (
	DomainPlantData       Domain = "plantData"
	DomainActivityData    Domain = "activityData"
	DomainWeatherData     Domain = "weatherData"
	DomainUserPreferences Domain = "userPreferences"
)

// Domains returns every domain tag in declaration order.
func Domains() []Domain {
	return []Domain{DomainPlantData, DomainActivityData, DomainWeatherData, DomainUserPreferences}
}

// ParseDomain validates an externally supplied domain name.
func ParseDomain(raw string) (Domain, bool) {
	switch Domain(raw) {
	case DomainPlantData, DomainActivityData, DomainWeatherData, DomainUserPreferences:
		return Domain(raw), true
	}
	return "", false
}

// kindDependencies fixes which domains each kind reads. The sets are hardcoded
// per kind rather than inferred so invalidation behavior is reviewable in one
// place.
var kindDependencies = map[Kind][]Domain{
	KindHealthTrend:      {DomainPlantData, DomainActivityData},
	KindGrowthForecast:   {DomainPlantData, DomainActivityData},
	KindWateringSchedule: {DomainPlantData, DomainActivityData, DomainWeatherData, DomainUserPreferences},
	KindActivitySummary:  {DomainActivityData, DomainUserPreferences},
	KindWeatherImpact:    {DomainActivityData, DomainWeatherData},
	KindCareTips:         {DomainPlantData, DomainActivityData, DomainWeatherData, DomainUserPreferences},
	KindPlantAnalysis:    {DomainPlantData, DomainWeatherData},
}

// Valid reports whether the dispatcher has a computation registered for k.
func (k Kind) Valid() bool {
	_, ok := kindDependencies[k]
	return ok
}

// Dependencies returns the domain tags k's results are invalidated by.
func (k Kind) Dependencies() []Domain {
	return append([]Domain(nil), kindDependencies[k]...)
}

// dependencyTags converts k's domain set to the string tags the cache stores.
func (k Kind) dependencyTags() []string {
	deps := kindDependencies[k]
	tags := make([]string, len(deps))
	for i, d := range deps {
		tags[i] = string(d)
	}
	return tags
}

// CommonKinds lists the subject-free insights the scheduler warms and
// periodically precomputes.
func CommonKinds() []Kind {
	return []Kind{KindActivitySummary, KindWateringSchedule, KindCareTips, KindWeatherImpact}
}

// SubjectKinds lists the per-plant insights precomputed for active subjects.
func SubjectKinds() []Kind {
	return []Kind{KindHealthTrend, KindGrowthForecast}
}
