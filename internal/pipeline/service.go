package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Registry read limits.
const (
	DefaultPageLimit = 200
	MaxPageLimit     = 1000
	SearchLimit      = 30
)

// StatusSource is the authoritative feed including the elevated-volcano notices.
type StatusSource interface {
	domain.StatusFeed
	Elevated(ctx context.Context) ([]domain.ElevatedVolcano, error)
}

// LocationPage is one page of the registry.
type LocationPage struct {
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	Total   int               `json:"total"`
	Pages   int               `json:"pages"`
	Results []domain.Location `json:"results"`
}

// VolcanoRef is the short form of a location used in reports.
type VolcanoRef struct {
	VNum string   `json:"vnum"`
	Name string   `json:"vName"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// StatusReport combines the observatory status and the elevated-notice match for one volcano.
type StatusReport struct {
	Volcano   VolcanoRef                  `json:"volcano"`
	VHP       *domain.AuthoritativeStatus `json:"vhp"`
	HANS      *domain.ElevatedVolcano     `json:"hans"`
	FetchedAt time.Time                   `json:"fetchedAt"`
}

// EarthquakeReport lists cached events after making sure the window is cached.
type EarthquakeReport struct {
	Volcano VolcanoRef            `json:"volcano"`
	Query   domain.WindowQuery    `json:"query"`
	Cache   domain.FetchResult    `json:"cache"`
	Count   int                   `json:"count"`
	Events  []domain.SeismicEvent `json:"events"`
}

// IndicatorReport is a risk assessment together with the fetch that preceded it.
type IndicatorReport struct {
	domain.RiskAssessment
	Cache domain.FetchResult `json:"cache"`
}

// NTVCReport is the legacy 24-hour score for one volcano.
type NTVCReport struct {
	Volcano VolcanoRef `json:"volcano"`
	domain.NTVCResult
	Events     int       `json:"n_24h"`
	ComputedAt time.Time `json:"computedAt"`
}

// RiskMap is a batch of assessments over a trailing window.
type RiskMap struct {
	Query       domain.WindowQuery   `json:"query"`
	Days        int                  `json:"days"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	Concurrency int                  `json:"concurrency"`
	Count       int                  `json:"count"`
	Results     []domain.BatchResult `json:"results"`
	ComputedAt  time.Time            `json:"computedAt"`
}

// RiskMapRequest selects the registry page and window for a risk map.
type RiskMapRequest struct {
	Days         int
	RadiusKm     float64
	MinMagnitude float64
	Page         int
	Limit        int
	Concurrency  int
}

// Service is the read API used by the HTTP layer.
type Service struct {
	registry Registry
	ingester *Ingester
	scorer   *Scorer
	batch    *Batch
	status   StatusSource
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewService wires the registry, the engines and the status feed. status may be nil.
func NewService(registry Registry, ingester *Ingester, scorer *Scorer, batch *Batch, status StatusSource, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		ingester: ingester,
		scorer:   scorer,
		batch:    batch,
		status:   status,
		ttl:      ttl,
		clock:    clock,
		logger:   logger,
	}
}

// ListLocations returns one page of the registry sorted by name.
func (s *Service) ListLocations(ctx context.Context, page, limit int) (LocationPage, error) {
	page = max(1, page)
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)

	total, err := s.registry.CountLocations(ctx)
	if err != nil {
		return LocationPage{}, fmt.Errorf("count locations: %w", err)
	}
	locs, err := s.registry.ListLocations(ctx, page, limit)
	if err != nil {
		return LocationPage{}, fmt.Errorf("list locations: %w", err)
	}
	return LocationPage{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Pages:   (total + limit - 1) / limit,
		Results: locs,
	}, nil
}

// SearchLocations matches term against names and vnums, case-insensitively.
func (s *Service) SearchLocations(ctx context.Context, term string) ([]domain.Location, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: missing search term", domain.ErrInvalidQuery)
	}
	locs, err := s.registry.SearchLocations(ctx, term, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search locations: %w", err)
	}
	return locs, nil
}

// Location looks up one volcano by vnum.
func (s *Service) Location(ctx context.Context, vnum string) (domain.Location, error) {
	return s.registry.GetLocation(ctx, strings.TrimSpace(vnum))
}

// Status fetches the observatory status and the elevated-notice match in
// parallel. Both are best-effort: a failing feed leaves its field nil.
func (s *Service) Status(ctx context.Context, vnum string) (StatusReport, error) {
	loc, err := s.Location(ctx, vnum)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Volcano: refOf(loc)}
	if s.status == nil {
		report.FetchedAt = s.clock.Now().UTC()
		return report, nil
	}

	var (
		wg       sync.WaitGroup
		elevated []domain.ElevatedVolcano
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		st, err := s.status.Status(ctx, loc.VNum)
		if err != nil {
			s.logger.Warn("vhp status unavailable", "vnum", loc.VNum, "error", err)
			return
		}
		report.VHP = &st
	}()
	go func() {
		defer wg.Done()
		list, err := s.status.Elevated(ctx)
		if err != nil {
			s.logger.Warn("elevated volcano list unavailable", "error", err)
			return
		}
		elevated = list
	}()
	wg.Wait()

	report.HANS = domain.MatchElevated(elevated, loc)
	report.FetchedAt = s.clock.Now().UTC()
	return report, nil
}

// Earthquakes caches the window if needed and returns its events, oldest first.
func (s *Service) Earthquakes(ctx context.Context, vnum string, q domain.WindowQuery) (EarthquakeReport, error) {
	loc, err := s.Location(ctx, vnum)
	if err != nil {
		return EarthquakeReport{}, err
	}
	res, err := s.ingester.FetchAndCache(ctx, loc, q, s.ttl)
	if err != nil {
		return EarthquakeReport{}, err
	}
	events, err := s.scorer.Events(ctx, loc, q)
	if err != nil {
		return EarthquakeReport{}, err
	}
	if events == nil {
		events = []domain.SeismicEvent{}
	}
	return EarthquakeReport{
		Volcano: refOf(loc),
		Query:   q,
		Cache:   res,
		Count:   len(events),
		Events:  events,
	}, nil
}

// Indicators caches the window if needed and scores it.
func (s *Service) Indicators(ctx context.Context, vnum string, q domain.WindowQuery) (IndicatorReport, error) {
	loc, err := s.Location(ctx, vnum)
	if err != nil {
		return IndicatorReport{}, err
	}
	res, err := s.ingester.FetchAndCache(ctx, loc, q, s.ttl)
	if err != nil {
		return IndicatorReport{}, err
	}
	a, err := s.scorer.ComputeIndicators(ctx, loc, q)
	if err != nil {
		return IndicatorReport{}, err
	}
	return IndicatorReport{RiskAssessment: a, Cache: res}, nil
}

// NTVC scores the last 24 hours of events with the legacy lookup table.
func (s *Service) NTVC(ctx context.Context, vnum string, radiusKm, minMagnitude float64) (NTVCReport, error) {
	loc, err := s.Location(ctx, vnum)
	if err != nil {
		return NTVCReport{}, err
	}
	now := s.clock.Now().UTC()
	q := domain.TrailingWindow(now, 1, radiusKm, minMagnitude)
	if _, err := s.ingester.FetchAndCache(ctx, loc, q, s.ttl); err != nil {
		return NTVCReport{}, err
	}
	events, err := s.scorer.Events(ctx, loc, q)
	if err != nil {
		return NTVCReport{}, err
	}
	res := domain.NTVC(events, now)

	n := 0
	for _, e := range events {
		if !e.Time.Before(now.Add(-24*time.Hour)) && !e.Time.After(now) {
			n++
		}
	}
	return NTVCReport{Volcano: refOf(loc), NTVCResult: res, Events: n, ComputedAt: now}, nil
}

// RiskMap assesses one registry page over a trailing window ending today.
func (s *Service) RiskMap(ctx context.Context, req RiskMapRequest) (RiskMap, error) {
	now := s.clock.Now().UTC()
	q := domain.TrailingWindow(now, req.Days, req.RadiusKm, req.MinMagnitude)
	if err := q.Validate(); err != nil {
		return RiskMap{}, err
	}

	locs, err := s.registry.ListLocations(ctx, max(1, req.Page), req.Limit)
	if err != nil {
		return RiskMap{}, fmt.Errorf("list locations: %w", err)
	}
	results, err := s.batch.AssessMany(ctx, locs, q, req.Concurrency)
	if err != nil {
		return RiskMap{}, fmt.Errorf("risk map: %w", err)
	}
	return RiskMap{
		Query:       q,
		Days:        req.Days,
		Page:        max(1, req.Page),
		Limit:       req.Limit,
		Concurrency: ClampConcurrency(req.Concurrency),
		Count:       len(results),
		Results:     results,
		ComputedAt:  s.clock.Now().UTC(),
	}, nil
}

func refOf(loc domain.Location) VolcanoRef {
	return VolcanoRef{VNum: loc.VNum, Name: loc.Name, Lat: loc.Lat, Lon: loc.Lon}
}
