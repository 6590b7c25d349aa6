// Package stores holds the thin CRUD collaborators the insight engine consults:
// plants, care activities, user preferences, and a mock weather provider. Every
// mutating operation fires the registered change hook so the engine's
// dependency tracker can sweep affected cache entries.
package stores

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthSample is one observed health score for a plant, in [0,1].
type HealthSample struct {
	At    time.Time `json:"at"`
	Score float64   `json:"score"`
}

// Plant is a tracked plant and its observed health history.
type Plant struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Species    string         `json:"species"`
	Location   string         `json:"location"`
	AcquiredAt time.Time      `json:"acquiredAt"`
	HealthLog  []HealthSample `json:"healthLog,omitempty"`
}

// ChangeHook is invoked after every mutating store operation.
type ChangeHook func()

// PlantStore owns the plant collection.
type PlantStore struct {
	mu       sync.RWMutex
	plants   map[string]Plant
	nextID   int
	onChange ChangeHook
}

// NewPlantStore constructs an empty plant store wired to the supplied hook.
func NewPlantStore(onChange ChangeHook) *PlantStore {
	return &PlantStore{plants: make(map[string]Plant), nextID: 1, onChange: onChange}
}

func (s *PlantStore) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Add stores a new plant, assigning an id when none is provided.
func (s *PlantStore) Add(p Plant) Plant {
	s.mu.Lock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("plant_%d", s.nextID)
		s.nextID++
	}
	if p.AcquiredAt.IsZero() {
		p.AcquiredAt = time.Now().UTC()
	}
	s.plants[p.ID] = p
	s.mu.Unlock()
	s.notify()
	return p
}

// Update replaces an existing plant.
func (s *PlantStore) Update(p Plant) (Plant, bool) {
	s.mu.Lock()
	if _, ok := s.plants[p.ID]; !ok {
		s.mu.Unlock()
		return Plant{}, false
	}
	s.plants[p.ID] = p
	s.mu.Unlock()
	s.notify()
	return p, true
}

// Delete removes a plant by id.
func (s *PlantStore) Delete(id string) bool {
	s.mu.Lock()
	if _, ok := s.plants[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.plants, id)
	s.mu.Unlock()
	s.notify()
	return true
}

// RecordHealth appends a health observation to a plant's log.
func (s *PlantStore) RecordHealth(id string, sample HealthSample) bool {
	s.mu.Lock()
	p, ok := s.plants[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if sample.At.IsZero() {
		sample.At = time.Now().UTC()
	}
	p.HealthLog = append(p.HealthLog, sample)
	s.plants[id] = p
	s.mu.Unlock()
	s.notify()
	return true
}

// Get returns a plant by id.
func (s *PlantStore) Get(id string) (Plant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plants[id]
	return p, ok
}

// List returns all plants ordered by id.
func (s *PlantStore) List() []Plant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plant, 0, len(s.plants))
	for _, p := range s.plants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
