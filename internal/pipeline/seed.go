package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// SyncKeyVolcanoes is the sync-state key written after a registry seed.
const SyncKeyVolcanoes = "volcanoes_last_sync"

// ErrNoUsableVolcanoes means the upstream volcano list had no row with an id, a name and coordinates.
var ErrNoUsableVolcanoes = errors.New("volcano list has no usable rows")

// Registry stores monitored locations and sync bookkeeping.
type Registry interface {
	GetLocation(ctx context.Context, vnum string) (domain.Location, error)
	ListLocations(ctx context.Context, page, limit int) ([]domain.Location, error)
	SearchLocations(ctx context.Context, term string, limit int) ([]domain.Location, error)
	CountLocations(ctx context.Context) (int, error)
	UpsertLocations(ctx context.Context, locs []domain.Location) (int, error)
	MarkSynced(ctx context.Context, key string, t time.Time) error
}

// VolcanoLister downloads the upstream volcano list. The int result counts rows skipped as unusable.
type VolcanoLister interface {
	ListVolcanoes(ctx context.Context) ([]domain.Location, int, error)
}

// SeedResult describes one seeding attempt.
type SeedResult struct {
	Seeded   bool
	Upserted int
	Skipped  int
	Existing int
}

// Seeder fills the location registry from the upstream volcano list.
type Seeder struct {
	registry Registry
	lister   VolcanoLister
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(registry Registry, lister VolcanoLister, clock clockwork.Clock, logger *slog.Logger) *Seeder {
	return &Seeder{registry: registry, lister: lister, clock: clock, logger: logger}
}

// EnsureSeeded seeds the registry only when it is empty.
func (s *Seeder) EnsureSeeded(ctx context.Context) (SeedResult, error) {
	n, err := s.registry.CountLocations(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("count locations: %w", err)
	}
	if n > 0 {
		s.logger.Debug("registry already seeded", "volcanoes", n)
		return SeedResult{Existing: n}, nil
	}
	return s.Seed(ctx)
}

// Seed downloads the volcano list and upserts every usable row.
func (s *Seeder) Seed(ctx context.Context) (SeedResult, error) {
	locs, skipped, err := s.lister.ListVolcanoes(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("download volcano list: %w", err)
	}
	if len(locs) == 0 {
		return SeedResult{Skipped: skipped}, fmt.Errorf("%w (%d skipped)", ErrNoUsableVolcanoes, skipped)
	}

	n, err := s.registry.UpsertLocations(ctx, locs)
	if err != nil {
		return SeedResult{}, fmt.Errorf("upsert locations: %w", err)
	}
	if err := s.registry.MarkSynced(ctx, SyncKeyVolcanoes, s.clock.Now()); err != nil {
		return SeedResult{}, fmt.Errorf("mark volcano sync: %w", err)
	}

	s.logger.Info("volcano registry seeded", "upserted", n, "skipped", skipped)
	return SeedResult{Seeded: true, Upserted: n, Skipped: skipped}, nil
}
