package stores

import "sync"

// Preferences holds the user-level care settings the insight algorithms
// consult when shaping recommendations.
type Preferences struct {
	CareLevel            string `json:"careLevel"`
	PreferredUnits       string `json:"preferredUnits"`
	WateringReminderHour int    `json:"wateringReminderHour"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

// DefaultPreferences returns the settings applied before the user changes anything.
func DefaultPreferences() Preferences {
	return Preferences{
		CareLevel:            "beginner",
		PreferredUnits:       "metric",
		WateringReminderHour: 9,
		NotificationsEnabled: true,
	}
}

// PreferenceStore owns the single user preference record.
type PreferenceStore struct {
	mu       sync.RWMutex
	prefs    Preferences
	onChange ChangeHook
}

// NewPreferenceStore constructs a store seeded with defaults and wired to the
// supplied hook.
func NewPreferenceStore(onChange ChangeHook) *PreferenceStore {
	return &PreferenceStore{prefs: DefaultPreferences(), onChange: onChange}
}

// Get returns the current preferences.
func (s *PreferenceStore) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update replaces the preference record.
func (s *PreferenceStore) Update(p Preferences) Preferences {
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange()
	}
	return p
}
