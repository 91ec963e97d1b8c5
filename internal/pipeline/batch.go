package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Worker pool bounds.
const (
	DefaultConcurrency = 6
	MaxConcurrency     = 20
)

// Batch assesses many locations with a fixed-size worker pool.
type Batch struct {
	ingester *Ingester
	scorer   *Scorer
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewBatch creates a batch orchestrator. ttl is passed to every FetchAndCache call.
func NewBatch(ingester *Ingester, scorer *Scorer, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Batch {
	return &Batch{
		ingester: ingester,
		scorer:   scorer,
		ttl:      ttl,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// ClampConcurrency bounds n to [1, MaxConcurrency]; zero or less means the default.
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return min(n, MaxConcurrency)
}

// AssessMany fetches and scores every location with usable coordinates.
// Locations without coordinates are skipped silently; failed locations are
// logged, counted and left out. Results follow input order.
func (b *Batch) AssessMany(ctx context.Context, locs []domain.Location, q domain.WindowQuery, concurrency int) ([]domain.BatchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := b.logger.With("run_id", runID)
	start := b.clock.Now()
	workers := ClampConcurrency(concurrency)

	type job struct {
		index int
		loc   domain.Location
	}

	eligible := make([]job, 0, len(locs))
	for _, loc := range locs {
		if _, _, ok := loc.Coordinates(); ok && loc.VNum != "" {
			eligible = append(eligible, job{index: len(eligible), loc: loc})
		}
	}

	logger.Info("batch started",
		"locations", len(locs),
		"eligible", len(eligible),
		"workers", workers,
		"start", q.StartDate(),
		"end", q.EndDate(),
	)
	b.metrics.BatchSize.Observe(float64(len(eligible)))

	results := make([]*domain.BatchResult, len(eligible))
	jobs := make(chan job)

	var wg sync.WaitGroup
	for range min(workers, max(1, len(eligible))) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r, err := b.assessOne(ctx, j.loc, q)
				if err != nil {
					b.metrics.BatchFailures.Inc()
					logger.Warn("location assessment failed", "vnum", j.loc.VNum, "error", err)
					continue
				}
				results[j.index] = &r
			}
		}()
	}

feed:
	for _, j := range eligible {
		select {
		case jobs <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	out := make([]domain.BatchResult, 0, len(eligible))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	elapsed := b.clock.Since(start)
	b.metrics.BatchDuration.Observe(elapsed.Seconds())
	logger.Info("batch finished",
		"assessed", len(out),
		"failed", len(eligible)-len(out),
		"duration", elapsed,
	)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// assessOne runs ingestion to completion before scoring reads the cache.
func (b *Batch) assessOne(ctx context.Context, loc domain.Location, q domain.WindowQuery) (domain.BatchResult, error) {
	if _, err := b.ingester.FetchAndCache(ctx, loc, q, b.ttl); err != nil {
		return domain.BatchResult{}, err
	}
	a, err := b.scorer.ComputeIndicators(ctx, loc, q)
	if err != nil {
		return domain.BatchResult{}, err
	}
	lat, lon, _ := loc.Coordinates()
	return domain.BatchResult{
		VNum:       loc.VNum,
		Name:       loc.Name,
		Lat:        lat,
		Lon:        lon,
		Score:      a.Score,
		Color:      a.Color,
		Basis:      a.Basis,
		Confidence: a.Confidence,
		ComputedAt: a.ComputedAt,
	}, nil
}
