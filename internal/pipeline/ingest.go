package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// EventStore caches seismic events keyed by (event id, vnum, radius, magnitude floor).
type EventStore interface {
	UpsertEvents(ctx context.Context, events []domain.SeismicEvent) (int, error)
	FindEvents(ctx context.Context, vnum string, radiusKm, minMagnitude float64, from, until time.Time) ([]domain.SeismicEvent, error)
}

// Catalog queries the upstream earthquake catalog.
type Catalog interface {
	QueryEvents(ctx context.Context, q domain.CatalogQuery) (domain.CatalogPage, error)
}

// IngestOptions tunes how windows are split and paced.
type IngestOptions struct {
	MaxDaysPerChunk int
	ChunkDelay      time.Duration
}

// Ingester fills the event cache from the catalog, one sub-window at a time.
type Ingester struct {
	events  EventStore
	ledger  *FreshnessLedger
	catalog Catalog
	opts    IngestOptions
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIngester creates an Ingester.
func NewIngester(events EventStore, ledger *FreshnessLedger, catalog Catalog, opts IngestOptions, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	if opts.MaxDaysPerChunk < 1 {
		opts.MaxDaysPerChunk = 31
	}
	return &Ingester{
		events:  events,
		ledger:  ledger,
		catalog: catalog,
		opts:    opts,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// FetchAndCache makes sure the events for q around loc are cached. When the
// ledger says the window is still fresh it returns without any network call.
// A failing sub-window aborts the call and leaves the ledger untouched, so the
// next call for the same signature fetches again. Sub-windows committed
// before the failure stay committed.
func (in *Ingester) FetchAndCache(ctx context.Context, loc domain.Location, q domain.WindowQuery, ttl time.Duration) (domain.FetchResult, error) {
	if loc.VNum == "" {
		return domain.FetchResult{}, fmt.Errorf("%w: location has no vnum", domain.ErrInvalidQuery)
	}
	lat, lon, ok := loc.Coordinates()
	if !ok {
		return domain.FetchResult{}, fmt.Errorf("%w: volcano %s has no coordinates", domain.ErrInvalidQuery, loc.VNum)
	}
	if err := q.Validate(); err != nil {
		return domain.FetchResult{}, err
	}

	sig := q.Signature(loc.VNum)
	decision, err := in.ledger.ShouldFetch(ctx, sig, q, ttl)
	if err != nil {
		return domain.FetchResult{}, err
	}
	in.metrics.FetchDecisions.WithLabelValues(decision.Reason).Inc()
	if !decision.Fetch {
		in.logger.Debug("window cached, skipping fetch", "signature", sig, "reason", decision.Reason)
		return domain.FetchResult{
			DidFetch: false,
			Stats:    domain.FetchStats{Reason: decision.Reason, Signature: sig},
		}, nil
	}

	stats := domain.FetchStats{Reason: decision.Reason, Signature: sig}
	chunks := domain.SplitWindow(q.Start, q.End, in.opts.MaxDaysPerChunk)

	for i, c := range chunks {
		if i > 0 && !retry.SleepWithContext(ctx, in.opts.ChunkDelay) {
			in.metrics.FetchErrors.Inc()
			return domain.FetchResult{}, fmt.Errorf("fetch %s: %w", sig, ctx.Err())
		}

		fetched, upserted, skipped, err := in.fetchChunk(ctx, loc.VNum, lat, lon, q, c)
		if err != nil {
			in.metrics.FetchErrors.Inc()
			in.logger.Warn("chunk fetch failed",
				"signature", sig,
				"chunk_start", c.Start.Format(domain.DateLayout),
				"chunk_end", c.End.Format(domain.DateLayout),
				"error", err,
			)
			return domain.FetchResult{}, fmt.Errorf("fetch %s chunk %d/%d: %w", sig, i+1, len(chunks), err)
		}
		stats.TotalFetched += fetched
		stats.TotalUpserts += upserted
		stats.Skipped += skipped
		stats.Chunks++
	}

	stats.FetchedAt = in.clock.Now().UTC()
	err = in.ledger.Record(ctx, domain.WindowFetchRecord{
		Signature:    sig,
		FetchedAt:    stats.FetchedAt,
		TotalFetched: stats.TotalFetched,
		TotalUpserts: stats.TotalUpserts,
		Chunks:       stats.Chunks,
		Params:       q,
	})
	if err != nil {
		in.metrics.FetchErrors.Inc()
		return domain.FetchResult{}, err
	}

	in.logger.Info("window fetched",
		"signature", sig,
		"reason", decision.Reason,
		"fetched", stats.TotalFetched,
		"upserted", stats.TotalUpserts,
		"skipped", stats.Skipped,
		"chunks", stats.Chunks,
	)
	return domain.FetchResult{DidFetch: true, Stats: stats}, nil
}

// fetchChunk queries one sub-window and upserts its events as a single batch.
func (in *Ingester) fetchChunk(ctx context.Context, vnum string, lat, lon float64, q domain.WindowQuery, c domain.Chunk) (fetched, upserted, skipped int, err error) {
	page, err := in.catalog.QueryEvents(ctx, domain.CatalogQuery{
		Latitude:     lat,
		Longitude:    lon,
		RadiusKm:     q.RadiusKm,
		MinMagnitude: q.MinMagnitude,
		Start:        c.Start,
		End:          c.Until(),
	})
	if err != nil {
		return 0, 0, 0, err
	}

	events := make([]domain.SeismicEvent, 0, len(page.Features))
	skipped = page.Malformed
	for _, f := range page.Features {
		e, err := domain.NormalizeFeature(f, vnum, q.RadiusKm, q.MinMagnitude)
		if err != nil {
			in.logger.Debug("skipping catalog feature", "vnum", vnum, "error", err)
			skipped++
			continue
		}
		events = append(events, e)
	}

	in.metrics.ChunksFetched.Inc()
	in.metrics.EventsFetched.Add(float64(len(page.Features)))
	in.metrics.FeaturesSkipped.Add(float64(skipped - page.Malformed))

	if len(events) == 0 {
		return len(page.Features), 0, skipped, nil
	}
	n, err := in.events.UpsertEvents(ctx, events)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("upsert events: %w", err)
	}
	in.metrics.EventsUpserted.Add(float64(n))
	return len(page.Features), n, skipped, nil
}
