package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu         sync.RWMutex
	aggregates map[string]Aggregate
	now        func() time.Time
}

// NewMemory returns an in-process store. Expired snapshots linger until the
// next Prune; reads filter them out so callers never see stale periods.
func NewMemory() Store {
	return &memoryStore{
		aggregates: make(map[string]Aggregate),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) Put(_ context.Context, agg Aggregate) error {
	if agg.CapturedAt.IsZero() {
		agg.CapturedAt = s.now()
	}
	agg.PeriodStart = agg.PeriodStart.UTC()
	s.mu.Lock()
	s.aggregates[agg.key()] = agg
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, plantID string, g Granularity, period time.Time) (Aggregate, bool, error) {
	lookup := Aggregate{PlantID: plantID, Granularity: g, PeriodStart: period}
	s.mu.RLock()
	agg, ok := s.aggregates[lookup.key()]
	s.mu.RUnlock()
	if !ok || s.expired(agg) {
		return Aggregate{}, false, nil
	}
	return agg, true, nil
}

func (s *memoryStore) List(_ context.Context, plantID string, g Granularity) ([]Aggregate, error) {
	s.mu.RLock()
	var out []Aggregate
	for _, agg := range s.aggregates {
		if agg.PlantID == plantID && agg.Granularity == g && !s.expired(agg) {
			out = append(out, agg)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

func (s *memoryStore) Prune(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, agg := range s.aggregates {
		if s.expired(agg) {
			delete(s.aggregates, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func (s *memoryStore) expired(agg Aggregate) bool {
	return s.now().Sub(agg.PeriodStart) > Retention(agg.Granularity)
}

// SetClock overrides the store's clock. Intended for tests.
func (s *memoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
