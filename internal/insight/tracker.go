package insight

import (
	"log/slog"
	"sync"
	"time"

	"github.com/verdantlabs/sprout/internal/insight/cache"
	"github.com/verdantlabs/sprout/internal/metrics"
)

// Tracker records when each data domain last mutated and synchronously sweeps
// the cache on every change signal. This push path is the only way underlying
// data changes reach the cache; there is no polling and no timestamp
// comparison. The recorded instants exist for telemetry only.
type Tracker struct {
	mu          sync.Mutex
	lastChanged map[Domain]time.Time

	store   *cache.Store
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewTracker wires a tracker to the cache store it sweeps.
func NewTracker(store *cache.Store, logger *slog.Logger, recorder *metrics.Recorder) *Tracker {
	return &Tracker{
		lastChanged: make(map[Domain]time.Time),
		store:       store,
		logger:      logger,
		metrics:     recorder,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// MarkChanged records the mutation instant for domain and removes every cache
// entry tagged with it before returning, so a read issued after this call is
// guaranteed to miss.
func (t *Tracker) MarkChanged(domain Domain) int {
	t.mu.Lock()
	t.lastChanged[domain] = t.now()
	t.mu.Unlock()

	removed := t.store.InvalidateTag(string(domain))
	t.metrics.ObserveInvalidation(string(domain), removed)
	if t.logger != nil && removed > 0 {
		t.logger.Debug("domain invalidation swept cache",
			slog.String("domain", string(domain)),
			slog.Int("removed", removed))
	}
	return removed
}

// State snapshots the last-changed instant per domain. Domains that never
// signaled are absent.
func (t *Tracker) State() map[Domain]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Domain]time.Time, len(t.lastChanged))
	for domain, at := range t.lastChanged {
		out[domain] = at
	}
	return out
}
