package compute

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/verdantlabs/sprout/internal/stores"
)

// ErrNoData indicates the computation had no input to work with.
var ErrNoData = errors.New("compute: no data")

// ErrSubjectNotFound indicates the referenced plant does not exist.
var ErrSubjectNotFound = errors.New("compute: subject not found")

// HealthTrendResult describes the direction a plant's health is moving.
type HealthTrendResult struct {
	PlantID   string  `json:"plantId"`
	Samples   int     `json:"samples"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
	Direction string  `json:"direction"`
}

// HealthTrend fits a least-squares line through a plant's health log, limited
// to the given window when from/to are non-zero. An empty log yields ErrNoData.
func HealthTrend(plant stores.Plant, from, to time.Time) (HealthTrendResult, error) {
	var values []float64
	for _, sample := range plant.HealthLog {
		if !from.IsZero() && sample.At.Before(from) {
			continue
		}
		if !to.IsZero() && sample.At.After(to) {
			continue
		}
		values = append(values, sample.Score)
	}
	if len(values) == 0 {
		return HealthTrendResult{}, ErrNoData
	}
	trend := LinearTrend(values)
	direction := "stable"
	switch {
	case trend.Slope > 0.005:
		direction = "improving"
	case trend.Slope < -0.005:
		direction = "declining"
	}
	return HealthTrendResult{
		PlantID:   plant.ID,
		Samples:   len(values),
		Slope:     trend.Slope,
		Intercept: trend.Intercept,
		RSquared:  RSquared(values),
		Direction: direction,
	}, nil
}

// GrowthForecastResult projects a plant's health score forward.
type GrowthForecastResult struct {
	PlantID        string  `json:"plantId"`
	CurrentScore   float64 `json:"currentScore"`
	ProjectedScore float64 `json:"projectedScore"`
	HorizonDays    int     `json:"horizonDays"`
	Confidence     float64 `json:"confidence"`
}

// GrowthForecast extrapolates the health trend horizonDays samples ahead,
// clamping the projection to [0,1]. Confidence is the fit's R².
func GrowthForecast(plant stores.Plant, horizonDays int) (GrowthForecastResult, error) {
	if len(plant.HealthLog) == 0 {
		return GrowthForecastResult{}, ErrNoData
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	values := make([]float64, len(plant.HealthLog))
	for i, sample := range plant.HealthLog {
		values[i] = sample.Score
	}
	trend := LinearTrend(values)
	current := values[len(values)-1]
	projected := trend.Slope*float64(len(values)-1+horizonDays) + trend.Intercept
	if len(values) < 2 {
		projected = current
	}
	projected = math.Max(0, math.Min(1, projected))
	return GrowthForecastResult{
		PlantID:        plant.ID,
		CurrentScore:   current,
		ProjectedScore: projected,
		HorizonDays:    horizonDays,
		Confidence:     RSquared(values),
	}, nil
}

// ActivitySummaryResult aggregates logged care actions.
type ActivitySummaryResult struct {
	Total       int                         `json:"total"`
	ByType      map[stores.ActivityType]int `json:"byType"`
	PerDay      float64                     `json:"perDay"`
	MostTended  string                      `json:"mostTendedPlantId,omitempty"`
	WindowStart time.Time                   `json:"windowStart"`
	WindowEnd   time.Time                   `json:"windowEnd"`
}

// ActivitySummary counts activities within the window. Zero from/to bounds
// widen the window to the observed data. No activities yields ErrNoData.
func ActivitySummary(activities []stores.Activity, from, to time.Time) (ActivitySummaryResult, error) {
	byType := make(map[stores.ActivityType]int)
	perPlant := make(map[string]int)
	var kept []stores.Activity
	for _, a := range activities {
		if !from.IsZero() && a.At.Before(from) {
			continue
		}
		if !to.IsZero() && a.At.After(to) {
			continue
		}
		kept = append(kept, a)
		byType[a.Type]++
		perPlant[a.PlantID]++
	}
	if len(kept) == 0 {
		return ActivitySummaryResult{}, ErrNoData
	}
	start, end := from, to
	if start.IsZero() {
		start = kept[0].At
		for _, a := range kept {
			if a.At.Before(start) {
				start = a.At
			}
		}
	}
	if end.IsZero() {
		end = kept[0].At
		for _, a := range kept {
			if a.At.After(end) {
				end = a.At
			}
		}
	}
	days := end.Sub(start).Hours() / 24
	if days < 1 {
		days = 1
	}

	mostTended := ""
	best := 0
	plantIDs := make([]string, 0, len(perPlant))
	for id := range perPlant {
		plantIDs = append(plantIDs, id)
	}
	sort.Strings(plantIDs)
	for _, id := range plantIDs {
		if perPlant[id] > best {
			best = perPlant[id]
			mostTended = id
		}
	}

	return ActivitySummaryResult{
		Total:       len(kept),
		ByType:      byType,
		PerDay:      float64(len(kept)) / days,
		MostTended:  mostTended,
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

// WateringPlan is the recommended watering cadence for one plant.
type WateringPlan struct {
	PlantID          string    `json:"plantId"`
	IntervalDays     float64   `json:"intervalDays"`
	LastWatered      time.Time `json:"lastWatered"`
	NextDue          time.Time `json:"nextDue"`
	HumidityAdjusted bool      `json:"humidityAdjusted"`
}

// WateringScheduleResult collects the plans for the requested plants.
type WateringScheduleResult struct {
	Plans []WateringPlan `json:"plans"`
}

const defaultWateringIntervalDays = 3.0

// WateringSchedule derives a per-plant watering cadence from the observed gaps
// between watering activities, nudged by current humidity: dry air tightens
// the interval, humid air relaxes it. Plants with no watering history fall
// back to a default cadence anchored at the acquisition date.
func WateringSchedule(plants []stores.Plant, activities []stores.Activity, weather stores.WeatherSnapshot) (WateringScheduleResult, error) {
	if len(plants) == 0 {
		return WateringScheduleResult{}, ErrNoData
	}
	waterings := make(map[string][]time.Time)
	for _, a := range activities {
		if a.Type == stores.ActivityWatering {
			waterings[a.PlantID] = append(waterings[a.PlantID], a.At)
		}
	}

	adjust := 1.0
	adjusted := false
	switch {
	case weather.Humidity < 45:
		adjust = 0.8
		adjusted = true
	case weather.Humidity > 75:
		adjust = 1.25
		adjusted = true
	}

	plans := make([]WateringPlan, 0, len(plants))
	for _, plant := range plants {
		times := waterings[plant.ID]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		interval := defaultWateringIntervalDays
		if len(times) >= 2 {
			var total float64
			for i := 1; i < len(times); i++ {
				total += times[i].Sub(times[i-1]).Hours() / 24
			}
			interval = total / float64(len(times)-1)
		}
		interval *= adjust

		last := plant.AcquiredAt
		if len(times) > 0 {
			last = times[len(times)-1]
		}
		plans = append(plans, WateringPlan{
			PlantID:          plant.ID,
			IntervalDays:     interval,
			LastWatered:      last,
			NextDue:          last.Add(time.Duration(interval * 24 * float64(time.Hour))),
			HumidityAdjusted: adjusted,
		})
	}
	return WateringScheduleResult{Plans: plans}, nil
}

// WeatherImpactResult relates care frequency to weather over the sampled days.
type WeatherImpactResult struct {
	Days                int     `json:"days"`
	TempCorrelation     float64 `json:"tempCorrelation"`
	HumidityCorrelation float64 `json:"humidityCorrelation"`
	AvgTempC            float64 `json:"avgTempC"`
	AvgHumidity         float64 `json:"avgHumidity"`
	AvgDailyActivities  float64 `json:"avgDailyActivities"`
}

// WeatherImpact correlates per-day activity counts with the matching weather
// readings. The readings supply the day grid; no readings yields ErrNoData.
func WeatherImpact(activities []stores.Activity, readings []stores.WeatherSnapshot) (WeatherImpactResult, error) {
	if len(readings) == 0 {
		return WeatherImpactResult{}, ErrNoData
	}
	countsByDay := make(map[string]float64)
	for _, a := range activities {
		countsByDay[a.At.Format("2006-01-02")]++
	}

	temps := make([]float64, len(readings))
	humidity := make([]float64, len(readings))
	counts := make([]float64, len(readings))
	var tempSum, humSum, countSum float64
	for i, r := range readings {
		temps[i] = r.TempC
		humidity[i] = r.Humidity
		counts[i] = countsByDay[r.CapturedAt.Format("2006-01-02")]
		tempSum += r.TempC
		humSum += r.Humidity
		countSum += counts[i]
	}
	n := float64(len(readings))
	return WeatherImpactResult{
		Days:                len(readings),
		TempCorrelation:     Pearson(temps, counts),
		HumidityCorrelation: Pearson(humidity, counts),
		AvgTempC:            tempSum / n,
		AvgHumidity:         humSum / n,
		AvgDailyActivities:  countSum / n,
	}, nil
}
