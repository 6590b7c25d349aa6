package stores

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ActivityType names a care action performed on a plant.
type ActivityType string

const (
	ActivityWatering    ActivityType = "watering"
	ActivityFertilizing ActivityType = "fertilizing"
	ActivityPruning     ActivityType = "pruning"
	ActivityRepotting   ActivityType = "repotting"
	ActivityMisting     ActivityType = "misting"
)

// Activity is one logged care action.
type Activity struct {
	ID      string       `json:"id"`
	PlantID string       `json:"plantId"`
	Type    ActivityType `json:"type"`
	At      time.Time    `json:"at"`
	Note    string       `json:"note,omitempty"`
}

// ActivityStore owns the care activity log.
type ActivityStore struct {
	mu         sync.RWMutex
	activities map[string]Activity
	nextID     int
	onChange   ChangeHook
}

// NewActivityStore constructs an empty activity store wired to the supplied hook.
func NewActivityStore(onChange ChangeHook) *ActivityStore {
	return &ActivityStore{activities: make(map[string]Activity), nextID: 1, onChange: onChange}
}

func (s *ActivityStore) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Add logs a new activity, assigning an id when none is provided.
func (s *ActivityStore) Add(a Activity) Activity {
	s.mu.Lock()
	if a.ID == "" {
		a.ID = fmt.Sprintf("activity_%d", s.nextID)
		s.nextID++
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	s.activities[a.ID] = a
	s.mu.Unlock()
	s.notify()
	return a
}

// Delete removes an activity by id.
func (s *ActivityStore) Delete(id string) bool {
	s.mu.Lock()
	if _, ok := s.activities[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.activities, id)
	s.mu.Unlock()
	s.notify()
	return true
}

// List returns every activity ordered by timestamp ascending.
func (s *ActivityStore) List() []Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	sortActivities(out)
	return out
}

// ForPlant returns the activities logged against one plant, ordered by
// timestamp ascending.
func (s *ActivityStore) ForPlant(plantID string) []Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Activity
	for _, a := range s.activities {
		if a.PlantID == plantID {
			out = append(out, a)
		}
	}
	sortActivities(out)
	return out
}

func sortActivities(activities []Activity) {
	sort.Slice(activities, func(i, j int) bool {
		if activities[i].At.Equal(activities[j].At) {
			return activities[i].ID < activities[j].ID
		}
		return activities[i].At.Before(activities[j].At)
	})
}
