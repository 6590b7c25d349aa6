package stores

import (
	"hash/fnv"
	"sync"
	"time"
)

// WeatherSnapshot is one observed (mocked) weather reading.
type WeatherSnapshot struct {
	TempC      float64   `json:"tempC"`
	Humidity   float64   `json:"humidity"`
	Condition  string    `json:"condition"`
	CapturedAt time.Time `json:"capturedAt"`
}

// WeatherProvider generates deterministic mock weather. Readings are a pure
// function of the calendar day so repeated calls within a day agree, which
// keeps cached insights stable between invalidations.
type WeatherProvider struct {
	mu       sync.RWMutex
	now      func() time.Time
	onChange ChangeHook
}

// NewWeatherProvider constructs a provider wired to the supplied hook.
func NewWeatherProvider(onChange ChangeHook) *WeatherProvider {
	return &WeatherProvider{now: func() time.Time { return time.Now().UTC() }, onChange: onChange}
}

// SetClock overrides the provider's clock. Intended for tests.
func (p *WeatherProvider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Current returns the mock reading for today.
func (p *WeatherProvider) Current() WeatherSnapshot {
	p.mu.RLock()
	now := p.now()
	p.mu.RUnlock()
	return snapshotFor(now)
}

// Recent returns readings for the last n days, oldest first, ending today.
func (p *WeatherProvider) Recent(n int) []WeatherSnapshot {
	if n <= 0 {
		return nil
	}
	p.mu.RLock()
	now := p.now()
	p.mu.RUnlock()
	out := make([]WeatherSnapshot, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, snapshotFor(now.AddDate(0, 0, -i)))
	}
	return out
}

// Refresh signals that weather conditions changed, firing the change hook so
// dependent cache entries are invalidated.
func (p *WeatherProvider) Refresh() {
	if p.onChange != nil {
		p.onChange()
	}
}

var conditions = []string{"sunny", "cloudy", "rainy", "partly_cloudy"}

func snapshotFor(at time.Time) WeatherSnapshot {
	day := at.Format("2006-01-02")
	h := fnv.New32a()
	_, _ = h.Write([]byte(day))
	seed := h.Sum32()

	return WeatherSnapshot{
		TempC:      18 + float64(seed%16),           // 18..33
		Humidity:   40 + float64((seed/16)%45),      // 40..84
		Condition:  conditions[(seed/720)%uint32(len(conditions))],
		CapturedAt: at.Truncate(24 * time.Hour),
	}
}
