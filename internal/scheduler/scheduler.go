package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"
)

// SyncKeyRisk is the sync-state key written after a complete risk sync.
const SyncKeyRisk = "risk_last_sync"

const defaultPageSize = 500

// ErrSyncInProgress is returned by RunOnce while another run is active.
var ErrSyncInProgress = errors.New("risk sync already in progress")

// Registry pages through monitored locations and records sync times.
type Registry interface {
	ListLocations(ctx context.Context, page, limit int) ([]domain.Location, error)
	MarkSynced(ctx context.Context, key string, t time.Time) error
}

// Assessor runs a batch assessment over a set of locations.
type Assessor interface {
	AssessMany(ctx context.Context, locs []domain.Location, q domain.WindowQuery, concurrency int) ([]domain.BatchResult, error)
}

// Publisher delivers batch results downstream.
type Publisher interface {
	Publish(ctx context.Context, results []domain.BatchResult) error
}

// Options controls the periodic sync.
type Options struct {
	Interval     time.Duration
	Days         int
	RadiusKm     float64
	MinMagnitude float64
	Concurrency  int
	PageSize     int
}

// Scheduler periodically assesses the whole registry over a trailing window.
type Scheduler struct {
	scheduler *gocron.Scheduler
	registry  Registry
	assessor  Assessor
	publisher Publisher
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Scheduler. publisher may be nil, in which case results are only logged.
func New(registry Registry, assessor Assessor, publisher Publisher, opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		registry:  registry,
		assessor:  assessor,
		publisher: publisher,
		opts:      opts,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the sync job and starts the underlying scheduler. The first
// run starts immediately; later runs never overlap a run still in progress.
// Runs are cancelled when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", s.opts.Interval)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	_, err := s.scheduler.Every(s.opts.Interval).SingletonMode().Do(func() {
		if _, err := s.RunOnce(runCtx); errors.Is(err, ErrSyncInProgress) {
			s.logger.Info("risk sync skipped, manual run in progress")
		} else if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("risk sync failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("scheduler: schedule sync job: %w", err)
	}

	s.scheduler.StartAsync()
	s.metrics.SchedulerRunning.Set(1)
	s.logger.Info("risk sync scheduled", "interval", s.opts.Interval, "days", s.opts.Days)
	return nil
}

// Stop cancels any running sync and stops future runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.scheduler.Stop()
	s.metrics.SchedulerRunning.Set(0)
}

// RunOnce assesses every registry page and publishes each page's results.
// It returns the number of locations assessed. Runs never overlap: a call made
// while another run is active fails with ErrSyncInProgress.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrSyncInProgress
	}
	defer s.running.Store(false)

	start := s.clock.Now()
	q := domain.TrailingWindow(start, s.opts.Days, s.opts.RadiusKm, s.opts.MinMagnitude)
	if err := q.Validate(); err != nil {
		return 0, err
	}
	s.logger.Info("risk sync started", "start", q.StartDate(), "end", q.EndDate())

	total := 0
	for page := 1; ; page++ {
		locs, err := s.registry.ListLocations(ctx, page, s.opts.PageSize)
		if err != nil {
			return total, fmt.Errorf("list locations page %d: %w", page, err)
		}
		if len(locs) == 0 {
			break
		}

		results, err := s.assessor.AssessMany(ctx, locs, q, s.opts.Concurrency)
		if err != nil {
			return total, fmt.Errorf("assess page %d: %w", page, err)
		}
		total += len(results)

		if err := s.publish(ctx, results); err != nil {
			return total, err
		}
		if len(locs) < s.opts.PageSize {
			break
		}
	}

	if err := s.registry.MarkSynced(ctx, SyncKeyRisk, s.clock.Now()); err != nil {
		return total, fmt.Errorf("mark risk sync: %w", err)
	}
	s.logger.Info("risk sync finished", "assessed", total, "duration", s.clock.Since(start))
	return total, nil
}

func (s *Scheduler) publish(ctx context.Context, results []domain.BatchResult) error {
	if s.publisher == nil || len(results) == 0 {
		return nil
	}
	if err := s.publisher.Publish(ctx, results); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}
	s.metrics.ResultsPublished.Add(float64(len(results)))
	return nil
}
