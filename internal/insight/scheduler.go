package insight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/verdantlabs/sprout/internal/metrics"
)

// Pruner is the slice of the history store the scheduler drives.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Settings controls the scheduler's cadence.
type Settings struct {
	BackgroundEnabled  bool
	WarmupOnInit       bool
	OptimizeInterval   time.Duration
	PrecomputeInterval time.Duration
	PruneInterval      time.Duration
}

// Scheduler runs the engine's background work: an optional warmup pass at
// startup, periodic precomputation of the commonly requested insights,
// periodic cache optimization, and history pruning. All passes resolve
// through the engine so results land in the cache with normal TTLs.
type Scheduler struct {
	engine  *Engine
	pruner  Pruner
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu       sync.Mutex
	settings Settings
	parent   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	onceMu  sync.Mutex
	onceSeq int
	pending map[int]context.CancelFunc
	onceWG  sync.WaitGroup
}

// NewScheduler builds a stopped scheduler. Pruner may be nil when no history
// store is configured.
func NewScheduler(engine *Engine, pruner Pruner, settings Settings, logger *slog.Logger, rec *metrics.Recorder) *Scheduler {
	return &Scheduler{
		engine:   engine,
		pruner:   pruner,
		settings: settings,
		logger:   logger,
		metrics:  rec,
		pending:  make(map[int]context.CancelFunc),
	}
}

// Start launches the background loops. Calling Start on a running scheduler
// is a no-op. When background work is disabled the scheduler stays idle but
// ScheduleOnce still works.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parent = ctx
	if s.cancel != nil {
		return
	}
	s.startLocked()
}

func (s *Scheduler) startLocked() {
	if !s.settings.BackgroundEnabled {
		s.logger.Info("background scheduling disabled")
		return
	}
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel

	if s.settings.WarmupOnInit {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.warmup(ctx)
		}()
	}
	s.loop(ctx, s.settings.PrecomputeInterval, s.precompute)
	s.loop(ctx, s.settings.OptimizeInterval, func(ctx context.Context) { s.engine.Optimize() })
	if s.pruner != nil {
		s.loop(ctx, s.settings.PruneInterval, s.prune)
	}
	s.logger.Info("background scheduling started",
		slog.Duration("precompute_interval", s.settings.PrecomputeInterval),
		slog.Duration("optimize_interval", s.settings.OptimizeInterval))
}

// Stop cancels the loops and every pending one-off, then waits for in-flight
// work to finish. Idempotent, and cancels one-offs even when the loops never
// ran.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	s.mu.Unlock()

	s.onceMu.Lock()
	for id, cancelOnce := range s.pending {
		cancelOnce()
		delete(s.pending, id)
	}
	s.onceMu.Unlock()
	s.onceWG.Wait()

	if cancel != nil {
		s.logger.Info("background scheduling stopped")
	}
}

// UpdateSettings applies a new cadence, restarting the loops when running.
// The lock is held across the whole restart so a concurrent Start or Stop
// cannot slip in between teardown and relaunch. The loops never take the
// lock, so waiting on them here cannot deadlock.
func (s *Scheduler) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := s.cancel != nil
	if running {
		s.cancel()
		s.cancel = nil
		s.wg.Wait()
	}
	s.settings = settings
	if s.parent != nil && (running || settings.BackgroundEnabled) {
		s.startLocked()
	}
}

// ScheduleOnce resolves a single request after the delay. Pending runs are
// tracked until they fire. The returned function cancels this run and is
// safe to call after firing; Stop cancels every run still pending.
func (s *Scheduler) ScheduleOnce(req Request, delay time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	s.onceMu.Lock()
	s.onceSeq++
	id := s.onceSeq
	s.pending[id] = cancel
	s.onceMu.Unlock()

	s.onceWG.Add(1)
	go func() {
		defer s.onceWG.Done()
		defer func() {
			s.onceMu.Lock()
			delete(s.pending, id)
			s.onceMu.Unlock()
		}()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			s.observe("scheduled", s.engine.Resolve(ctx, req))
		}
	}()
	return cancel
}

// PendingOnce returns the number of one-off runs scheduled but not yet fired
// or cancelled.
func (s *Scheduler) PendingOnce() int {
	s.onceMu.Lock()
	defer s.onceMu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
}

// warmup primes the cache with the insights every screen asks for. Failures
// are logged and swallowed; a cold cache is not an error condition.
func (s *Scheduler) warmup(ctx context.Context) {
	for _, kind := range CommonKinds() {
		if ctx.Err() != nil {
			return
		}
		resp := s.engine.Resolve(ctx, Request{Kind: kind})
		s.observe("warmup", resp)
	}
	s.logger.Info("cache warmup finished", slog.Int("kinds", len(CommonKinds())))
}

// precompute refreshes the common insights plus the per-plant ones for every
// known plant, so interactive requests mostly hit warm entries.
func (s *Scheduler) precompute(ctx context.Context) {
	for _, kind := range CommonKinds() {
		if ctx.Err() != nil {
			return
		}
		s.observe("precompute", s.engine.Resolve(ctx, Request{Kind: kind}))
	}
	for _, plant := range s.engine.sources.Plants.List() {
		for _, kind := range SubjectKinds() {
			if ctx.Err() != nil {
				return
			}
			s.observe("precompute", s.engine.Resolve(ctx, Request{Kind: kind, SubjectID: plant.ID}))
		}
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	removed, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Warn("history prune failed", slog.Any("error", err))
		s.metrics.ObserveBackgroundRun("prune", metrics.BackgroundError)
		return
	}
	if removed > 0 {
		s.logger.Debug("history pruned", slog.Int("removed", removed))
	}
	s.metrics.ObserveBackgroundRun("prune", metrics.BackgroundOK)
}

func (s *Scheduler) observe(task string, resp Response) {
	outcome := metrics.BackgroundOK
	if !resp.Success {
		outcome = metrics.BackgroundError
		s.logger.Debug("background computation skipped",
			slog.String("task", task),
			slog.String("code", string(resp.Error.Code)))
	}
	s.metrics.ObserveBackgroundRun(task, outcome)
}
