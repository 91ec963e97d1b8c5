package domain

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func quake(id string, at time.Time, mag, depth float64) SeismicEvent {
	return SeismicEvent{
		EventID:      id,
		VNum:         "332010",
		RadiusKm:     25,
		MinMagnitude: 0,
		Time:         at,
		Magnitude:    ptr(mag),
		DepthKm:      ptr(depth),
	}
}

func testLocation() Location {
	return Location{VNum: "332010", Name: "Kilauea", Lat: ptr(19.421), Lon: ptr(-155.287)}
}

func TestAssess_ShallowEscalatingSwarm(t *testing.T) {
	w := DefaultScoringWeights()
	q := WindowQuery{Start: date(t, "2024-04-11"), End: date(t, "2024-05-10"), RadiusKm: 25}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	events := []SeismicEvent{
		quake("a", time.Date(2024, 5, 5, 3, 0, 0, 0, time.UTC), 2.0, 8),
		quake("b", time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC), 3.6, 4),
		quake("c", time.Date(2024, 5, 8, 22, 15, 0, 0, time.UTC), 4.7, 2),
	}

	a := Assess(testLocation(), q, events, nil, now, w)

	assert.Equal(t, 3, a.Indicators.Total)
	assert.Equal(t, 3, a.Indicators.N7)
	assert.Equal(t, 3, a.Indicators.N30)
	require.NotNil(t, a.Indicators.MaxMagnitude7)
	assert.Equal(t, 4.7, *a.Indicators.MaxMagnitude7)
	require.NotNil(t, a.Indicators.MedianDepth7)
	assert.Equal(t, 4.0, *a.Indicators.MedianDepth7)

	// 20 + 35 (mag) + 35 (ratio ~4.29) + 8 (depth 4) = 98, capped.
	assert.Equal(t, 95.0, a.HeuristicScore)
	assert.Equal(t, 95.0, a.Score)
	assert.Equal(t, ColorRed, a.Color)
	assert.Equal(t, BasisHeuristic, a.Basis)
	assert.Nil(t, a.OfficialStatus)
	assert.Equal(t, now, a.ComputedAt)
}

func TestAssess_EmptyWindowFloor(t *testing.T) {
	w := DefaultScoringWeights()
	q := WindowQuery{Start: date(t, "2024-01-01"), End: date(t, "2024-01-31"), RadiusKm: 25}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a := Assess(testLocation(), q, nil, nil, now, w)

	assert.Equal(t, 0, a.Indicators.Total)
	assert.Equal(t, 31, a.Indicators.DaysSpan)
	assert.Zero(t, a.Indicators.PerDay)
	assert.Nil(t, a.Indicators.MaxMagnitude)
	assert.Nil(t, a.Indicators.MedianDepth)
	assert.Equal(t, 20.0, a.Score)
	assert.Equal(t, ColorGreen, a.Color)
	assert.Equal(t, ConfidenceLow, a.Confidence)
}

func TestAssess_IgnoresEventsOutsideWindow(t *testing.T) {
	w := DefaultScoringWeights()
	q := WindowQuery{Start: date(t, "2024-01-01"), End: date(t, "2024-01-31"), RadiusKm: 25}
	events := []SeismicEvent{
		quake("before", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), 5, 1),
		quake("first", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1, 10),
		quake("last", time.Date(2024, 1, 31, 23, 59, 59, 600e6, time.UTC), 1, 10),
		quake("after", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 5, 1),
	}

	ind := ComputeIndicators(events, q, w)
	assert.Equal(t, 2, ind.Total)
	assert.Equal(t, 0.065, ind.PerDay)
	require.NotNil(t, ind.MaxMagnitude)
	assert.Equal(t, 1.0, *ind.MaxMagnitude)
}

func TestAssess_TrailingWindowsAnchorAtQueryEnd(t *testing.T) {
	w := DefaultScoringWeights()
	q := WindowQuery{Start: date(t, "2023-01-01"), End: date(t, "2023-12-31"), RadiusKm: 25}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	events := []SeismicEvent{
		quake("old", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), 4.8, 1),
		quake("late", time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), 1.2, 12),
	}

	a := Assess(testLocation(), q, events, nil, now, w)
	assert.Equal(t, 1, a.Indicators.N7)
	assert.Equal(t, 1, a.Indicators.N30)
	require.NotNil(t, a.Indicators.MaxMagnitude)
	assert.Equal(t, 4.8, *a.Indicators.MaxMagnitude)
	require.NotNil(t, a.Indicators.MaxMagnitude7)
	assert.Equal(t, 1.2, *a.Indicators.MaxMagnitude7)
}

func TestAssess_Deterministic(t *testing.T) {
	w := DefaultScoringWeights()
	q := WindowQuery{Start: date(t, "2024-04-11"), End: date(t, "2024-05-10"), RadiusKm: 25}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	events := []SeismicEvent{
		quake("a", time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC), 2.6, 6),
		quake("b", time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), 1.1, 3),
	}
	status := &AuthoritativeStatus{AlertLevel: "ADVISORY", ColorCode: "YELLOW"}

	first := Assess(testLocation(), q, events, status, now, w)
	second := Assess(testLocation(), q, events, status, now, w)
	assert.Equal(t, first, second)
}

func TestAssess_AuthoritativeBlend(t *testing.T) {
	w := DefaultScoringWeights()
	q := WindowQuery{Start: date(t, "2024-04-11"), End: date(t, "2024-05-10"), RadiusKm: 25}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	t.Run("watch with quiet seismicity", func(t *testing.T) {
		status := &AuthoritativeStatus{AlertLevel: "WATCH", ColorCode: "ORANGE"}
		a := Assess(testLocation(), q, nil, status, now, w)

		assert.Equal(t, 65.0, a.Score)
		assert.Equal(t, ColorOrange, a.Color)
		assert.Equal(t, BasisAuthoritative, a.Basis)
		require.NotNil(t, a.OfficialStatus)
		assert.Equal(t, "WATCH", a.OfficialStatus.AlertLevel)
	})

	t.Run("unassigned falls back to heuristic", func(t *testing.T) {
		status := &AuthoritativeStatus{AlertLevel: "UNASSIGNED", ColorCode: "RED"}
		a := Assess(testLocation(), q, nil, status, now, w)

		assert.Equal(t, 20.0, a.Score)
		assert.Equal(t, BasisHeuristic, a.Basis)
		assert.Nil(t, a.OfficialStatus)
	})

	t.Run("color code alone is enough", func(t *testing.T) {
		status := &AuthoritativeStatus{ColorCode: " orange "}
		a := Assess(testLocation(), q, nil, status, now, w)

		assert.Equal(t, 65.0, a.Score)
		assert.Equal(t, BasisAuthoritative, a.Basis)
	})
}

func TestStatusBaseScore(t *testing.T) {
	w := DefaultScoringWeights()

	tests := []struct {
		alert, color string
		want         float64
	}{
		{"", "", 20},
		{"NORMAL", "GREEN", 20},
		{"ADVISORY", "", 45},
		{"", "YELLOW", 45},
		{"WATCH", "YELLOW", 65},
		{"ADVISORY", "RED", 85},
		{"warning", "orange", 85},
	}
	for _, tt := range tests {
		t.Run(tt.alert+"/"+tt.color, func(t *testing.T) {
			got := StatusBaseScore(AuthoritativeStatus{AlertLevel: tt.alert, ColorCode: tt.color}, w)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlendScore(t *testing.T) {
	w := DefaultScoringWeights()

	assert.InDelta(t, 45.0, BlendScore(45, 20, w), 1e-9)
	assert.InDelta(t, 51.0, BlendScore(45, 60, w), 1e-9)
	assert.InDelta(t, 42.0, BlendScore(45, 0, w), 1e-9)
	assert.Equal(t, 100.0, BlendScore(99, 95, w))
}

func TestHeuristicScore_Steps(t *testing.T) {
	w := DefaultScoringWeights()

	tests := []struct {
		name string
		ind  Indicators
		want float64
	}{
		{"quiet", Indicators{}, 20},
		{"moderate magnitude", Indicators{N7: 1, N30: 30, MaxMagnitude7: ptr(2.5)}, 30},
		{"strong magnitude", Indicators{N7: 7, N30: 30, MaxMagnitude7: ptr(3.5)}, 40},
		{"ratio 1.5", Indicators{N7: 11, N30: 30}, 30},
		{"ratio 2", Indicators{N7: 14, N30: 30}, 40},
		{"burst without background", Indicators{N7: 2, N30: 0}, 40},
		{"shallow", Indicators{N7: 7, N30: 30, MedianDepth7: ptr(2.9)}, 35},
		{"intermediate depth", Indicators{N7: 7, N30: 30, MedianDepth7: ptr(7.0)}, 28},
		{"deep", Indicators{N7: 7, N30: 30, MedianDepth7: ptr(12.0)}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HeuristicScore(tt.ind, w))
		})
	}
}

func TestActivityRatio(t *testing.T) {
	w := DefaultScoringWeights()
	assert.InDelta(t, 1.0, ActivityRatio(7, 30, w), 1e-9)
	assert.Equal(t, 3.0, ActivityRatio(5, 0, w))
	assert.Equal(t, 1.0, ActivityRatio(0, 0, w))
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Color
	}{
		{0, ColorGreen},
		{39.9, ColorGreen},
		{40, ColorYellow},
		{59.9, ColorYellow},
		{60, ColorOrange},
		{79.9, ColorOrange},
		{80, ColorRed},
		{100, ColorRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColorFor(tt.score), "score %v", tt.score)
	}
}

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		name        string
		total, span int
		official    bool
		recent      bool
		want        Confidence
	}{
		{"nothing", 0, 30, false, false, ConfidenceLow},
		{"recent only", 0, 30, false, true, ConfidenceLow},
		{"official only", 0, 30, true, false, ConfidenceLow},
		{"official and recent", 0, 30, true, true, ConfidenceMedium},
		{"many events long span", 250, 365, false, false, ConfidenceMedium},
		{"everything", 200, 365, true, true, ConfidenceHigh},
		{"official recent and moderate count", 50, 30, true, true, ConfidenceMedium},
		{"official with dense long record", 200, 400, true, false, ConfidenceHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfidenceFor(tt.total, tt.span, tt.official, tt.recent))
		})
	}
}

func TestProperty_HeuristicMonotonicInMagnitude(t *testing.T) {
	w := DefaultScoringWeights()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("raising the 7-day max magnitude never lowers the score", prop.ForAll(
		func(a, b float64, n7, extra int, depth float64) bool {
			if a > b {
				a, b = b, a
			}
			base := Indicators{N7: n7, N30: n7 + extra, MedianDepth7: ptr(depth)}
			lo, hi := base, base
			lo.MaxMagnitude7 = ptr(a)
			hi.MaxMagnitude7 = ptr(b)
			return HeuristicScore(lo, w) <= HeuristicScore(hi, w)
		},
		gen.Float64Range(-1, 9),
		gen.Float64Range(-1, 9),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.Float64Range(-3, 40),
	))

	properties.Property("shallower median depth never lowers the score", prop.ForAll(
		func(d1, d2 float64, n7, extra int) bool {
			if d1 > d2 {
				d1, d2 = d2, d1
			}
			shallow := Indicators{N7: n7, N30: n7 + extra, MedianDepth7: ptr(d1)}
			deep := Indicators{N7: n7, N30: n7 + extra, MedianDepth7: ptr(d2)}
			return HeuristicScore(shallow, w) >= HeuristicScore(deep, w)
		},
		gen.Float64Range(-3, 40),
		gen.Float64Range(-3, 40),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
	))

	properties.Property("more short-window events against a fixed background never lowers the score", prop.ForAll(
		func(n30, k1, k2 int) bool {
			if k1 > k2 {
				k1, k2 = k2, k1
			}
			if k2 > n30 {
				k2 = n30
			}
			if k1 > k2 {
				k1 = k2
			}
			fewer := Indicators{N7: k1, N30: n30}
			more := Indicators{N7: k2, N30: n30}
			return HeuristicScore(fewer, w) <= HeuristicScore(more, w)
		},
		gen.IntRange(1, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	alerts := []string{"", "NORMAL", "ADVISORY", "WATCH", "WARNING"}
	properties.Property("scores stay within bounds", prop.ForAll(
		func(mag, depth float64, n7, extra, alert int) bool {
			ind := Indicators{N7: n7, N30: n7 + extra, MaxMagnitude7: ptr(mag), MedianDepth7: ptr(depth)}
			h := HeuristicScore(ind, w)
			if h < 0 || h > w.HeuristicMax {
				return false
			}
			s := BlendScore(StatusBaseScore(AuthoritativeStatus{AlertLevel: alerts[alert]}, w), h, w)
			return s >= 0 && s <= 100
		},
		gen.Float64Range(-1, 9),
		gen.Float64Range(-3, 40),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.IntRange(0, len(alerts)-1),
	))

	properties.TestingRun(t)
}
