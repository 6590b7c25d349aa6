// Package history persists per-plant aggregate snapshots so trend views can
// reach further back than the live health log. Snapshots are bucketed by
// granularity and dropped once they age past the bucket's retention window.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verdantlabs/sprout/internal/stores"
)

// Granularity names the bucketing applied to a snapshot.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// Retention windows per granularity. Daily and weekly snapshots are kept for
// 90 days, monthly rollups for 180.
const (
	shortRetention   = 90 * 24 * time.Hour
	monthlyRetention = 180 * 24 * time.Hour
)

// Retention returns how long snapshots of granularity g are kept.
func Retention(g Granularity) time.Duration {
	if g == Monthly {
		return monthlyRetention
	}
	return shortRetention
}

// ParseGranularity validates an externally supplied granularity name.
func ParseGranularity(raw string) (Granularity, bool) {
	switch Granularity(raw) {
	case Daily, Weekly, Monthly:
		return Granularity(raw), true
	}
	return "", false
}

// Aggregate is one persisted snapshot of a plant's state over a period.
type Aggregate struct {
	PlantID       string      `json:"plantId"`
	Granularity   Granularity `json:"granularity"`
	PeriodStart   time.Time   `json:"periodStart"`
	AverageHealth float64     `json:"averageHealth"`
	ActivityCount int         `json:"activityCount"`
	WateringCount int         `json:"wateringCount"`
	CapturedAt    time.Time   `json:"capturedAt"`
}

// key is the canonical storage key shared by every backend.
func (a Aggregate) key() string {
	return fmt.Sprintf("history:%s:%s:%s", a.Granularity, a.PlantID, a.PeriodStart.UTC().Format("2006-01-02"))
}

// Store is the persistence boundary for aggregates. Put overwrites any
// snapshot already recorded for the same plant, granularity, and period.
type Store interface {
	Put(ctx context.Context, agg Aggregate) error
	Get(ctx context.Context, plantID string, g Granularity, period time.Time) (Aggregate, bool, error)
	List(ctx context.Context, plantID string, g Granularity) ([]Aggregate, error)
	Prune(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	Valkey  ValkeyConfig
}

// periodEnd returns the exclusive end of the period starting at start.
func periodEnd(g Granularity, start time.Time) time.Time {
	switch g {
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Snapshot derives the aggregate for one plant over the period beginning at
// periodStart, from the live health log and activity log.
func Snapshot(plant stores.Plant, activities []stores.Activity, g Granularity, periodStart time.Time) Aggregate {
	start := periodStart.UTC()
	end := periodEnd(g, start)

	var healthSum float64
	samples := 0
	for _, sample := range plant.HealthLog {
		if sample.At.Before(start) || !sample.At.Before(end) {
			continue
		}
		healthSum += sample.Score
		samples++
	}
	avg := 0.0
	if samples > 0 {
		avg = healthSum / float64(samples)
	}

	total, waterings := 0, 0
	for _, a := range activities {
		if a.PlantID != plant.ID || a.At.Before(start) || !a.At.Before(end) {
			continue
		}
		total++
		if a.Type == stores.ActivityWatering {
			waterings++
		}
	}

	return Aggregate{
		PlantID:       plant.ID,
		Granularity:   g,
		PeriodStart:   start,
		AverageHealth: avg,
		ActivityCount: total,
		WateringCount: waterings,
	}
}

// New builds the configured backend. An empty backend name selects memory.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "valkey":
		return NewValkey(cfg.Valkey)
	default:
		return nil, errors.New("history: unknown backend " + cfg.Backend)
	}
}
