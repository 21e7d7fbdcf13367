package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

// Ensure RefreshScheduler implements the interface.
var _ driving.RefreshService = (*RefreshScheduler)(nil)

// RefreshScheduler runs the ingestion pipeline at startup, on a fixed
// interval and on demand. At most MaxConcurrentJobs runs are in flight;
// triggers beyond that are dropped, never queued.
type RefreshScheduler struct {
	cfg      domain.RefreshConfig
	interval time.Duration
	ingest   driving.IngestionService
	runs     driven.RunStore        // optional
	metrics  driven.MetricsRecorder // optional
	now      func() time.Time
	log      *logger.Logger

	mu         sync.Mutex
	status     domain.RefreshStatus
	running    int
	dropped    int
	lastRun    time.Time
	nextRun    time.Time
	lastResult *domain.RunSummary
	started    bool
	baseCtx    context.Context
	stopCh     chan struct{}
	wg         sync.WaitGroup

	// reschedule tells the loop that nextRun moved.
	reschedule chan struct{}
}

// SchedulerOption configures the scheduler.
type SchedulerOption func(*RefreshScheduler)

// WithInterval overrides the interval derived from RefreshConfig.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *RefreshScheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerMetrics reports dropped triggers.
func WithSchedulerMetrics(m driven.MetricsRecorder) SchedulerOption {
	return func(s *RefreshScheduler) {
		s.metrics = m
	}
}

// WithHistory serves History from a run store.
func WithHistory(runs driven.RunStore) SchedulerOption {
	return func(s *RefreshScheduler) {
		s.runs = runs
	}
}

// NewRefreshScheduler creates a scheduler. When cfg.Enabled is false the
// scheduler is fixed in the disabled state.
func NewRefreshScheduler(cfg domain.RefreshConfig, ingest driving.IngestionService, opts ...SchedulerOption) *RefreshScheduler {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	s := &RefreshScheduler{
		cfg:      cfg,
		interval: cfg.Interval(),
		ingest:   ingest,
		now:      time.Now,
		log:      logger.With("refresh"),
		status:   domain.RefreshIdle,

		reschedule: make(chan struct{}, 1),
	}
	if !cfg.Enabled {
		s.status = domain.RefreshDisabled
	}
	if s.interval <= 0 {
		s.interval = domain.DefaultRefreshConfig().Interval()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start triggers a startup run and then one run per interval. It blocks
// until ctx is cancelled or Stop is called. A disabled scheduler returns
// immediately.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == domain.RefreshDisabled {
		s.mu.Unlock()
		s.log.Info("refresh disabled")
		return nil
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.baseCtx = ctx
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.Trigger(ctx, domain.TriggerStartup); err != nil {
		s.log.Warn("startup refresh not started: %v", err)
	}

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-s.reschedule:
			timer.Reset(s.untilNext())
		case <-timer.C:
			// A manual run since the timer was armed pushed the deadline out.
			if wait := s.pending(); wait > 0 {
				timer.Reset(wait)
				continue
			}
			if err := s.Trigger(ctx, domain.TriggerScheduled); err != nil {
				s.log.Warn("scheduled refresh dropped: %v", err)
				// The next tick supersedes the dropped one.
				s.mu.Lock()
				s.nextRun = s.now().Add(s.interval)
				s.mu.Unlock()
			}
			timer.Reset(s.untilNext())
		}
	}
}

// untilNext returns the delay until the next scheduled run.
func (s *RefreshScheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextRun.IsZero() {
		s.nextRun = s.now().Add(s.interval)
	}
	d := s.nextRun.Sub(s.now())
	if d <= 0 {
		d = s.interval
		s.nextRun = s.now().Add(d)
	}
	return d
}

// pending returns how long until nextRun, or zero when it is due.
func (s *RefreshScheduler) pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.nextRun.Sub(s.now()), 0)
}

// Stop ends the loop and waits for in-flight runs.
func (s *RefreshScheduler) Stop() error {
	s.mu.Lock()
	if s.started {
		s.started = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Trigger starts a run unless the job limit is reached. The run outlives
// ctx; it is bound to the context passed to Start instead.
func (s *RefreshScheduler) Trigger(ctx context.Context, trigger domain.Trigger) error {
	s.mu.Lock()
	if s.status == domain.RefreshDisabled {
		s.mu.Unlock()
		return domain.ErrRefreshDisabled
	}
	if s.running >= s.cfg.MaxConcurrentJobs {
		s.dropped++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.ObserveTriggerDropped()
		}
		return domain.ErrRefreshBusy
	}

	runCtx := s.baseCtx
	if runCtx == nil {
		runCtx = context.WithoutCancel(ctx)
	}
	start := s.now()
	s.running++
	s.status = domain.RefreshRunning
	s.lastRun = start
	s.nextRun = start.Add(s.interval)
	s.wg.Add(1)
	s.mu.Unlock()

	select {
	case s.reschedule <- struct{}{}:
	default:
	}

	s.log.Info("refresh started (%s)", trigger)
	go s.run(runCtx, trigger)
	return nil
}

func (s *RefreshScheduler) run(ctx context.Context, trigger domain.Trigger) {
	defer s.wg.Done()

	summary, err := s.ingest.Run(ctx, trigger)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("refresh (%s) failed: %v", trigger, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running--
	if summary != nil {
		s.lastResult = summary
	}
	if s.running == 0 {
		s.status = domain.RefreshIdle
	}
}

// State returns a snapshot of the scheduler.
func (s *RefreshScheduler) State() domain.RefreshState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.RefreshState{
		Status:      s.status,
		RunningJobs: s.running,
		MaxJobs:     s.cfg.MaxConcurrentJobs,
		LastRun:     s.lastRun,
		Dropped:     s.dropped,
	}
	if s.status != domain.RefreshDisabled && s.started {
		state.NextRun = s.nextRun
	}
	if s.lastResult != nil {
		res := *s.lastResult
		state.LastResult = &res
	}
	return state
}

// History returns recent run summaries, most recent first. Without a run
// store only the last result is known.
func (s *RefreshScheduler) History(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if s.runs != nil {
		return s.runs.ListRuns(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return nil, nil
	}
	return []domain.RunSummary{*s.lastResult}, nil
}
