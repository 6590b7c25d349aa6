package history

import (
	"context"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/verdantlabs/sprout/internal/stores"
)

func TestSnapshotAggregatesPeriod(t *testing.T) {
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	plant := stores.Plant{
		ID: "plant_1",
		HealthLog: []stores.HealthSample{
			{At: start.Add(6 * time.Hour), Score: 0.6},
			{At: start.AddDate(0, 0, 2), Score: 0.8},
			{At: start.AddDate(0, 0, -1), Score: 0.1}, // before the period
			{At: start.AddDate(0, 0, 7), Score: 0.1},  // next period
		},
	}
	activities := []stores.Activity{
		{PlantID: "plant_1", Type: stores.ActivityWatering, At: start.Add(time.Hour)},
		{PlantID: "plant_1", Type: stores.ActivityPruning, At: start.AddDate(0, 0, 3)},
		{PlantID: "plant_2", Type: stores.ActivityWatering, At: start.Add(time.Hour)},
		{PlantID: "plant_1", Type: stores.ActivityWatering, At: start.AddDate(0, 0, 8)},
	}

	agg := Snapshot(plant, activities, Weekly, start)
	if agg.PlantID != "plant_1" || agg.Granularity != Weekly {
		t.Fatalf("unexpected identity: %#v", agg)
	}
	if math.Abs(agg.AverageHealth-0.7) > 1e-9 {
		t.Fatalf("expected average 0.7, got %v", agg.AverageHealth)
	}
	if agg.ActivityCount != 2 || agg.WateringCount != 1 {
		t.Fatalf("unexpected counts: %#v", agg)
	}
}

func TestSnapshotEmptyPeriod(t *testing.T) {
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	agg := Snapshot(stores.Plant{ID: "plant_9"}, nil, Daily, start)
	if agg.AverageHealth != 0 || agg.ActivityCount != 0 {
		t.Fatalf("expected zero aggregate, got %#v", agg)
	}
}

func sample(plantID string, g Granularity, period time.Time) Aggregate {
	return Aggregate{
		PlantID:       plantID,
		Granularity:   g,
		PeriodStart:   period,
		AverageHealth: 0.8,
		ActivityCount: 4,
		WateringCount: 2,
	}
}

func TestMemoryPutGetList(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := store.Put(ctx, sample("plant_1", Daily, day.AddDate(0, 0, i))); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := store.Put(ctx, sample("plant_2", Daily, day)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Get(ctx, "plant_1", Daily, day)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot for %s", day)
	}
	if got.ActivityCount != 4 || got.CapturedAt.IsZero() {
		t.Fatalf("unexpected aggregate: %#v", got)
	}

	list, err := store.List(ctx, "plant_1", Daily)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].PeriodStart.Before(list[i-1].PeriodStart) {
			t.Fatalf("list not in period order: %v", list)
		}
	}

	// Other granularities and plants are excluded.
	if weekly, _ := store.List(ctx, "plant_1", Weekly); len(weekly) != 0 {
		t.Fatalf("expected no weekly snapshots, got %d", len(weekly))
	}
}

func TestMemoryPutOverwritesPeriod(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	if err := store.Put(ctx, sample("plant_1", Daily, day)); err != nil {
		t.Fatalf("put: %v", err)
	}
	updated := sample("plant_1", Daily, day)
	updated.ActivityCount = 9
	if err := store.Put(ctx, updated); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, _ := store.Get(ctx, "plant_1", Daily, day)
	if !ok || got.ActivityCount != 9 {
		t.Fatalf("expected overwrite, got %#v", got)
	}
	if list, _ := store.List(ctx, "plant_1", Daily); len(list) != 1 {
		t.Fatalf("expected single snapshot, got %d", len(list))
	}
}

func TestMemoryPruneByRetention(t *testing.T) {
	store := NewMemory().(*memoryStore)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if err := store.Put(ctx, sample("plant_1", Daily, now.AddDate(0, 0, -100))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, sample("plant_1", Daily, now.AddDate(0, 0, -10))); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Monthly retention is twice as long, so 100 days old survives there.
	if err := store.Put(ctx, sample("plant_1", Monthly, now.AddDate(0, 0, -100))); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Expired snapshots are invisible even before the prune runs.
	if list, _ := store.List(ctx, "plant_1", Daily); len(list) != 1 {
		t.Fatalf("expected 1 live daily snapshot, got %d", len(list))
	}

	removed, err := store.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if list, _ := store.List(ctx, "plant_1", Monthly); len(list) != 1 {
		t.Fatalf("expected monthly snapshot to survive, got %d", len(list))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := New(Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	if _, ok := store.(*memoryStore); !ok {
		t.Fatalf("expected memory backend, got %T", store)
	}
	if _, err := New(Config{Backend: "etcd"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, err := New(Config{Backend: "valkey"}); err == nil {
		t.Fatalf("expected address-required error")
	}
}

func TestValkeyRoundTrip(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	store, err := NewValkey(ValkeyConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new valkey: %v", err)
	}
	ctx := context.Background()
	defer store.Close(ctx)

	day := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := store.Put(ctx, sample("plant_1", Daily, day.AddDate(0, 0, -i))); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := store.Put(ctx, sample("plant_2", Daily, day)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Get(ctx, "plant_1", Daily, day)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got.AverageHealth != 0.8 {
		t.Fatalf("unexpected aggregate: %#v", got)
	}

	list, err := store.List(ctx, "plant_1", Daily)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(list))
	}
	if !list[0].PeriodStart.Before(list[2].PeriodStart) {
		t.Fatalf("list not in period order: %v", list)
	}
}

func TestValkeyRetentionAsTTL(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	store, err := NewValkey(ValkeyConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new valkey: %v", err)
	}
	ctx := context.Background()
	defer store.Close(ctx)

	recent := sample("plant_1", Daily, time.Now().UTC().AddDate(0, 0, -1))
	if err := store.Put(ctx, recent); err != nil {
		t.Fatalf("put: %v", err)
	}
	ttl := server.TTL(recent.key())
	if ttl <= 0 || ttl > Retention(Daily) {
		t.Fatalf("expected ttl within retention, got %v", ttl)
	}

	// A snapshot already past retention is never written.
	aged := sample("plant_1", Daily, time.Now().UTC().AddDate(0, 0, -120))
	if err := store.Put(ctx, aged); err != nil {
		t.Fatalf("put aged: %v", err)
	}
	if server.Exists(aged.key()) {
		t.Fatalf("expected aged snapshot to be skipped")
	}

	// The server expires keys as time advances.
	server.FastForward(Retention(Daily))
	if _, ok, _ := store.Get(ctx, "plant_1", Daily, recent.PeriodStart); ok {
		t.Fatalf("expected snapshot to expire")
	}
}
