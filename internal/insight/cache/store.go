// Package cache implements the TTL-bound, dependency-tagged store that fronts
// insight computations. Entries are immutable once written: they are created
// by Put, observed by Get, and removed by expiry, domain invalidation, or
// capacity eviction. The store never runs timers of its own; sweeps are driven
// by its callers.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// SchemaVersion is stamped into every entry so a payload layout change can
// invalidate persisted caches wholesale.
const SchemaVersion = 1

// Entry is one cached computation result. Dependencies carries the domain tags
// whose mutations invalidate the entry.
type Entry struct {
	Key             string        `json:"key"`
	Payload         any           `json:"payload"`
	GeneratedAt     time.Time     `json:"generatedAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	Dependencies    []string      `json:"dependencies"`
	ComputationTime time.Duration `json:"computationTime"`
	SchemaVersion   int           `json:"schemaVersion"`
}

// Store is a mutex-guarded in-memory entry map. TTL and capacity apply to
// writes made after they change; existing entries keep the expiry they were
// stored with.
type Store struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]Entry
	now        func() time.Time
}

// overCapacityFactor is the hysteresis headroom allowed before a put triggers
// an inline eviction sweep.
const overCapacityFactor = 1.1

// NewStore constructs an empty store.
func NewStore(ttl time.Duration, maxEntries int) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]Entry),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetLimits updates the TTL and capacity applied to subsequent writes.
func (s *Store) SetLimits(ttl time.Duration, maxEntries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		s.ttl = ttl
	}
	if maxEntries > 0 {
		s.maxEntries = maxEntries
	}
}

// Get returns the live entry for key. An expired entry is removed as a side
// effect of the read and reported as absent.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !s.now().Before(entry.ExpiresAt) {
		delete(s.entries, key)
		return Entry{}, false
	}
	return entry, true
}

// Put stores a successful computation result, overwriting any entry already
// held for key. When the write pushes the store past its hysteresis headroom
// an eviction sweep runs before returning.
func (s *Store) Put(key string, payload any, dependencies []string, computationTime time.Duration) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry := Entry{
		Key:             key,
		Payload:         payload,
		GeneratedAt:     now,
		ExpiresAt:       now.Add(s.ttl),
		Dependencies:    append([]string(nil), dependencies...),
		ComputationTime: computationTime,
		SchemaVersion:   SchemaVersion,
	}
	s.entries[key] = entry
	if float64(len(s.entries)) > overCapacityFactor*float64(s.maxEntries) {
		s.evictOverCapacityLocked()
	}
	return entry
}

// InvalidateTag removes every entry depending on the given domain tag and
// reports how many were removed. The sweep is a full scan; the store is small
// enough that a secondary index would not pay for itself.
func (s *Store) InvalidateTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		for _, dep := range entry.Dependencies {
			if dep == tag {
				delete(s.entries, key)
				removed++
				break
			}
		}
	}
	return removed
}

// RemoveExpired deletes every entry whose expiry has passed.
func (s *Store) RemoveExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// EvictOverCapacity removes the oldest-generated entries until the store is
// back within its configured capacity.
func (s *Store) EvictOverCapacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictOverCapacityLocked()
}

func (s *Store) evictOverCapacityLocked() int {
	excess := len(s.entries) - s.maxEntries
	if excess <= 0 {
		return 0
	}
	ordered := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].GeneratedAt.Equal(ordered[j].GeneratedAt) {
			return ordered[i].Key < ordered[j].Key
		}
		return ordered[i].GeneratedAt.Before(ordered[j].GeneratedAt)
	})
	for _, entry := range ordered[:excess] {
		delete(s.entries, entry.Key)
	}
	return excess
}

// Clear removes every entry, or only those whose key contains needle when one
// is given. Used for manual cache busting, e.g. when a plant is deleted.
func (s *Store) Clear(needle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if needle == "" {
		removed := len(s.entries)
		s.entries = make(map[string]Entry)
		return removed
	}
	removed := 0
	for key := range s.entries {
		if strings.Contains(key, needle) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of held entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
