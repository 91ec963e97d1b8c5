package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(h *harness) *pipeline.Service {
	return pipeline.NewService(h.store, h.ingester, h.scorer, h.batch, h.status, testTTL, h.clock, discardLogger())
}

func seedLocations(h *harness, n int) {
	for i := range n {
		loc := testLocation(fmt.Sprintf("%06d", 300000+i), float64(i))
		loc.Name = fmt.Sprintf("Volcano %03d", i)
		h.store.locations[loc.VNum] = loc
	}
}

func TestService_ListLocations(t *testing.T) {
	h := newHarness(ingestNow)
	seedLocations(h, 5)
	svc := newTestService(h)

	page, err := svc.ListLocations(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "Volcano 002", page.Results[0].Name)

	page, err = svc.ListLocations(context.Background(), 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, pipeline.MaxPageLimit, page.Limit)

	page, err = svc.ListLocations(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultPageLimit, page.Limit)
}

func TestService_SearchLocations(t *testing.T) {
	h := newHarness(ingestNow)
	seedLocations(h, 3)
	svc := newTestService(h)

	locs, err := svc.SearchLocations(context.Background(), "  volcano 001 ")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "300001", locs[0].VNum)

	_, err = svc.SearchLocations(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestService_UnknownVolcano(t *testing.T) {
	svc := newTestService(newHarness(ingestNow))
	ctx := context.Background()
	q := mustQuery("2024-01-01", "2024-01-31")

	_, err := svc.Status(ctx, "999999")
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
	_, err = svc.Earthquakes(ctx, "999999", q)
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
	_, err = svc.Indicators(ctx, "999999", q)
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
	_, err = svc.NTVC(ctx, "999999", 25, 0)
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
}

func TestService_Status(t *testing.T) {
	h := newHarness(ingestNow)
	loc := testLocation("332010", 19.41)
	loc.VolcanoCode = "HI3"
	h.store.locations[loc.VNum] = loc
	svc := newTestService(h)

	t.Run("both feeds", func(t *testing.T) {
		h.status.err = nil
		h.status.status = domain.AuthoritativeStatus{AlertLevel: "ADVISORY", ColorCode: "YELLOW"}
		h.status.elevated = []domain.ElevatedVolcano{{VolcanoCode: "hi3", AlertLevel: "ADVISORY"}}
		h.status.elevErr = nil

		report, err := svc.Status(context.Background(), " 332010 ")
		require.NoError(t, err)
		assert.Equal(t, "332010", report.Volcano.VNum)
		require.NotNil(t, report.VHP)
		assert.Equal(t, "ADVISORY", report.VHP.AlertLevel)
		require.NotNil(t, report.HANS)
		assert.Equal(t, "hi3", report.HANS.VolcanoCode)
		assert.Equal(t, ingestNow, report.FetchedAt)
	})

	t.Run("feeds down", func(t *testing.T) {
		h.status.err = errUpstream
		h.status.elevErr = errUpstream

		report, err := svc.Status(context.Background(), "332010")
		require.NoError(t, err)
		assert.Nil(t, report.VHP)
		assert.Nil(t, report.HANS)
	})
}

func TestService_EarthquakesAndIndicators(t *testing.T) {
	h := newHarness(ingestNow, januaryFeatures()...)
	h.store.locations["332010"] = testLocation("332010", 19.41)
	svc := newTestService(h)
	ctx := context.Background()
	q := mustQuery("2024-01-01", "2024-01-31")

	eq, err := svc.Earthquakes(ctx, "332010", q)
	require.NoError(t, err)
	assert.True(t, eq.Cache.DidFetch)
	assert.Equal(t, 3, eq.Count)
	require.Len(t, eq.Events, 3)
	assert.Equal(t, "hv1", eq.Events[0].EventID)

	ind, err := svc.Indicators(ctx, "332010", q)
	require.NoError(t, err)
	assert.False(t, ind.Cache.DidFetch)
	assert.Equal(t, pipeline.ReasonFresh, ind.Cache.Stats.Reason)
	assert.Equal(t, 3, ind.Indicators.Total)

	data, err := json.Marshal(ind)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Contains(t, body, "score_0_100")
	assert.Contains(t, body, "cache")
	assert.Contains(t, body, "indicators")

	assert.Equal(t, 1, h.catalog.calls())
}

func TestService_EarthquakesEmptyIsNotNull(t *testing.T) {
	h := newHarness(ingestNow)
	h.store.locations["332010"] = testLocation("332010", 19.41)

	eq, err := newTestService(h).Earthquakes(context.Background(), "332010", mustQuery("2023-01-01", "2023-01-31"))
	require.NoError(t, err)
	assert.NotNil(t, eq.Events)
	assert.Zero(t, eq.Count)
}

func TestService_NTVC(t *testing.T) {
	now := ingestNow
	var features []domain.CatalogFeature
	for i := range 60 {
		features = append(features, feature(fmt.Sprintf("hv%d", i), now.Add(-time.Duration(i)*20*time.Minute), 2.6, 3))
	}
	h := newHarness(now, features...)
	h.store.locations["332010"] = testLocation("332010", 19.41)

	report, err := newTestService(h).NTVC(context.Background(), "332010", 25, 0)
	require.NoError(t, err)
	// 60 events in the last day is 2.5/h (+15); max magnitude 2.6 adds 20.
	assert.Equal(t, 60, report.Events)
	assert.Equal(t, 35, report.Score)
	assert.Equal(t, domain.NTVCBackground, report.State)
}

func TestService_RiskMap(t *testing.T) {
	h := newHarness(ingestNow, januaryFeatures()...)
	seedLocations(h, 4)
	svc := newTestService(h)

	rm, err := svc.RiskMap(context.Background(), pipeline.RiskMapRequest{
		Days: 30, RadiusKm: 25, MinMagnitude: 0, Page: 1, Limit: 3, Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rm.Count)
	assert.Equal(t, "2024-01-31", rm.Query.StartDate())
	assert.Equal(t, "2024-03-01", rm.Query.EndDate())
	assert.Equal(t, 2, rm.Concurrency)
	assert.Equal(t, "300000", rm.Results[0].VNum)

	_, err = svc.RiskMap(context.Background(), pipeline.RiskMapRequest{Days: 30, RadiusKm: 0, Page: 1, Limit: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}
