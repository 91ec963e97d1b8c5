package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Scorer derives risk assessments from cached events. It never calls the catalog.
type Scorer struct {
	events  EventStore
	status  domain.StatusFeed
	weights domain.ScoringWeights
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewScorer creates a Scorer. status may be nil, in which case every
// assessment uses the seismic heuristic.
func NewScorer(events EventStore, status domain.StatusFeed, weights domain.ScoringWeights, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scorer {
	return &Scorer{
		events:  events,
		status:  status,
		weights: weights,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// ComputeIndicators scores loc over q from whatever is cached right now.
// Status feed failures degrade the assessment to the heuristic basis;
// storage failures are returned.
func (s *Scorer) ComputeIndicators(ctx context.Context, loc domain.Location, q domain.WindowQuery) (domain.RiskAssessment, error) {
	if err := q.Validate(); err != nil {
		return domain.RiskAssessment{}, err
	}

	events, err := s.events.FindEvents(ctx, loc.VNum, q.RadiusKm, q.MinMagnitude, q.From(), q.Until())
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("read events for %s: %w", loc.VNum, err)
	}

	status := s.lookupStatus(ctx, loc.VNum)
	a := domain.Assess(loc, q, events, status, s.clock.Now(), s.weights)

	s.metrics.Assessments.WithLabelValues(string(a.Basis), string(a.Color)).Inc()
	return a, nil
}

// Events returns the cached events for loc within q, oldest first.
func (s *Scorer) Events(ctx context.Context, loc domain.Location, q domain.WindowQuery) ([]domain.SeismicEvent, error) {
	events, err := s.events.FindEvents(ctx, loc.VNum, q.RadiusKm, q.MinMagnitude, q.From(), q.Until())
	if err != nil {
		return nil, fmt.Errorf("read events for %s: %w", loc.VNum, err)
	}
	return events, nil
}

func (s *Scorer) lookupStatus(ctx context.Context, vnum string) *domain.AuthoritativeStatus {
	if s.status == nil {
		return nil
	}
	st, err := s.status.Status(ctx, vnum)
	if err != nil {
		s.logger.Warn("authoritative status unavailable, using heuristic", "vnum", vnum, "error", err)
		return nil
	}
	return &st
}
