package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/couchcryptid/volcano-risk-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// --- mocks ---

type eventKey struct {
	id, vnum       string
	radius, minmag float64
}

// memStore is an in-memory EventStore, LedgerStore and Registry.
type memStore struct {
	mu        sync.Mutex
	events    map[eventKey]domain.SeismicEvent
	windows   map[string]domain.WindowFetchRecord
	locations map[string]domain.Location
	synced    map[string]time.Time
	upserts   int
	failFind  error
}

func newMemStore() *memStore {
	return &memStore{
		events:    map[eventKey]domain.SeismicEvent{},
		windows:   map[string]domain.WindowFetchRecord{},
		locations: map[string]domain.Location{},
		synced:    map[string]time.Time{},
	}
}

func (m *memStore) UpsertEvents(_ context.Context, events []domain.SeismicEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[eventKey{e.EventID, e.VNum, e.RadiusKm, e.MinMagnitude}] = e
	}
	m.upserts += len(events)
	return len(events), nil
}

func (m *memStore) FindEvents(_ context.Context, vnum string, radiusKm, minMagnitude float64, from, until time.Time) ([]domain.SeismicEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return nil, m.failFind
	}
	var out []domain.SeismicEvent
	for k, e := range m.events {
		if k.vnum != vnum || k.radius != radiusKm || k.minmag != minMagnitude {
			continue
		}
		if e.Time.Before(from) || e.Time.After(until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStore) GetWindow(_ context.Context, signature string) (domain.WindowFetchRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[signature]
	return rec, ok, nil
}

func (m *memStore) PutWindow(_ context.Context, rec domain.WindowFetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[rec.Signature] = rec
	return nil
}

func (m *memStore) GetLocation(_ context.Context, vnum string) (domain.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[vnum]
	if !ok {
		return domain.Location{}, fmt.Errorf("volcano %s: %w", vnum, domain.ErrLocationNotFound)
	}
	return loc, nil
}

func (m *memStore) sortedLocations() []domain.Location {
	out := make([]domain.Location, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memStore) ListLocations(_ context.Context, page, limit int) ([]domain.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedLocations()
	lo := min((page-1)*limit, len(all))
	hi := min(lo+limit, len(all))
	return all[lo:hi], nil
}

func (m *memStore) SearchLocations(_ context.Context, term string, limit int) ([]domain.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Location
	for _, l := range m.sortedLocations() {
		if strings.Contains(strings.ToLower(l.Name), strings.ToLower(term)) || strings.Contains(l.VNum, term) {
			out = append(out, l)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountLocations(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locations), nil
}

func (m *memStore) UpsertLocations(_ context.Context, locs []domain.Location) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range locs {
		m.locations[l.VNum] = l
	}
	return len(locs), nil
}

func (m *memStore) MarkSynced(_ context.Context, key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced[key] = t
	return nil
}

// fakeCatalog serves a fixed feature list, filtered by the requested time range.
type fakeCatalog struct {
	mu       sync.Mutex
	features []domain.CatalogFeature
	queries  []domain.CatalogQuery
	failOn   map[int]error     // by 1-based call number
	failFor  map[float64]error // by latitude
}

func (c *fakeCatalog) QueryEvents(_ context.Context, q domain.CatalogQuery) (domain.CatalogPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	if err := c.failOn[len(c.queries)]; err != nil {
		return domain.CatalogPage{}, err
	}
	if err := c.failFor[q.Latitude]; err != nil {
		return domain.CatalogPage{}, err
	}
	var page domain.CatalogPage
	for _, f := range c.features {
		if f.TimeMillis != nil {
			at := time.UnixMilli(*f.TimeMillis)
			if at.Before(q.Start) || at.After(q.End) {
				continue
			}
		}
		page.Features = append(page.Features, f)
	}
	return page, nil
}

func (c *fakeCatalog) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

type fakeStatus struct {
	status   domain.AuthoritativeStatus
	err      error
	elevated []domain.ElevatedVolcano
	elevErr  error
}

func (f *fakeStatus) Status(_ context.Context, vnum string) (domain.AuthoritativeStatus, error) {
	if f.err != nil {
		return domain.AuthoritativeStatus{}, f.err
	}
	s := f.status
	s.VNum = vnum
	return s, nil
}

func (f *fakeStatus) Elevated(_ context.Context) ([]domain.ElevatedVolcano, error) {
	return f.elevated, f.elevErr
}

type fakeLister struct {
	locs    []domain.Location
	skipped int
	err     error
	calls   int
}

func (f *fakeLister) ListVolcanoes(_ context.Context) ([]domain.Location, int, error) {
	f.calls++
	return f.locs, f.skipped, f.err
}

var errUpstream = errors.New("upstream unavailable")

// --- helpers ---

func ptr[T any](v T) *T { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func feature(id string, at time.Time, mag, depth float64) domain.CatalogFeature {
	return domain.CatalogFeature{
		ID:          id,
		TimeMillis:  ptr(at.UnixMilli()),
		Magnitude:   ptr(mag),
		Coordinates: []*float64{ptr(-155.28), ptr(19.41), ptr(depth)},
		Raw:         []byte(fmt.Sprintf(`{"id":%q}`, id)),
	}
}

func testLocation(vnum string, lat float64) domain.Location {
	return domain.Location{VNum: vnum, Name: "Volcano " + vnum, Lat: ptr(lat), Lon: ptr(-155.28)}
}

func mustQuery(start, end string) domain.WindowQuery {
	q, err := domain.NewWindowQuery(start, end, 25, 0)
	if err != nil {
		panic(err)
	}
	return q
}

type harness struct {
	store    *memStore
	catalog  *fakeCatalog
	status   *fakeStatus
	clock    *clockwork.FakeClock
	ingester *pipeline.Ingester
	scorer   *pipeline.Scorer
	batch    *pipeline.Batch
	metrics  *observability.Metrics
}

const testTTL = 5 * time.Minute

func newHarness(now time.Time, features ...domain.CatalogFeature) *harness {
	h := &harness{
		store:   newMemStore(),
		catalog: &fakeCatalog{features: features},
		status:  &fakeStatus{err: errUpstream},
		clock:   clockwork.NewFakeClockAt(now),
		metrics: newTestMetrics(),
	}
	logger := discardLogger()
	ledger := pipeline.NewFreshnessLedger(h.store, h.clock)
	h.ingester = pipeline.NewIngester(h.store, ledger, h.catalog,
		pipeline.IngestOptions{MaxDaysPerChunk: 31}, h.clock, logger, h.metrics)
	h.scorer = pipeline.NewScorer(h.store, h.status, domain.DefaultScoringWeights(), h.clock, logger, h.metrics)
	h.batch = pipeline.NewBatch(h.ingester, h.scorer, testTTL, h.clock, logger, h.metrics)
	return h
}
