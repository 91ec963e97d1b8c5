package domain

import (
	"time"
)

// Color is the risk band shown to users.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
)

// Basis names the method that produced a score.
type Basis string

const (
	BasisAuthoritative Basis = "authoritative+seismic"
	BasisHeuristic     Basis = "seismic heuristic"
)

// Confidence is a coarse trust label for a score.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Step awards Points when a value crosses Threshold.
type Step struct {
	Threshold float64
	Points    float64
}

// ScoringWeights holds the empirically chosen scoring constants.
// Step lists are evaluated in order and the first match wins.
type ScoringWeights struct {
	Baseline     float64
	HeuristicMax float64
	BlendWeight  float64

	MagnitudeSteps []Step // value >= threshold
	RatioSteps     []Step // value >= threshold
	DepthSteps     []Step // value <= threshold

	// Ratio substitutes when the 30-day background is empty.
	BurstRatio  float64 // n30 == 0, n7 > 0
	QuietRatio  float64 // n30 == 0, n7 == 0
	TrailShort  int     // days
	TrailLong   int     // days
	AlertLevels map[string]float64
	ColorCodes  map[string]float64
}

// DefaultScoringWeights returns the reference thresholds.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Baseline:     20,
		HeuristicMax: 95,
		BlendWeight:  0.15,
		MagnitudeSteps: []Step{
			{Threshold: 4.5, Points: 35},
			{Threshold: 3.5, Points: 20},
			{Threshold: 2.5, Points: 10},
		},
		RatioSteps: []Step{
			{Threshold: 4, Points: 35},
			{Threshold: 2, Points: 20},
			{Threshold: 1.5, Points: 10},
		},
		DepthSteps: []Step{
			{Threshold: 3, Points: 15},
			{Threshold: 7, Points: 8},
		},
		BurstRatio: 3,
		QuietRatio: 1,
		TrailShort: 7,
		TrailLong:  30,
		AlertLevels: map[string]float64{
			"ADVISORY": 45,
			"WATCH":    65,
			"WARNING":  85,
		},
		ColorCodes: map[string]float64{
			"YELLOW": 45,
			"ORANGE": 65,
			"RED":    85,
		},
	}
}

// Indicators summarizes cached seismicity for a window.
type Indicators struct {
	Total         int      `json:"n_total"`
	DaysSpan      int      `json:"days_span"`
	PerDay        float64  `json:"n_per_day"`
	N7            int      `json:"n7"`
	N30           int      `json:"n30"`
	MaxMagnitude  *float64 `json:"mmax"`
	MaxMagnitude7 *float64 `json:"mmax7"`
	MedianDepth   *float64 `json:"depth_median_km"`
	MedianDepth7  *float64 `json:"depth_median_7d_km"`
}

// RiskAssessment is a live view over cached events; it is never persisted.
type RiskAssessment struct {
	Location       Location             `json:"volcano"`
	Query          WindowQuery          `json:"query"`
	Indicators     Indicators           `json:"indicators"`
	OfficialStatus *AuthoritativeStatus `json:"official_status"`
	Score          float64              `json:"score_0_100"`
	HeuristicScore float64              `json:"heuristic_score"`
	Color          Color                `json:"color"`
	Basis          Basis                `json:"basis"`
	Confidence     Confidence           `json:"confidence"`
	ComputedAt     time.Time            `json:"computedAt"`
}

// ComputeIndicators derives window and trailing-window indicators. Trailing
// windows are anchored at the query's end, not at wall-clock time.
func ComputeIndicators(events []SeismicEvent, q WindowQuery, w ScoringWeights) Indicators {
	inWindow := make([]SeismicEvent, 0, len(events))
	for _, e := range events {
		if !e.Time.Before(q.From()) && !e.Time.After(q.Until()) {
			inWindow = append(inWindow, e)
		}
	}

	span := q.DaysSpan()
	end := q.Until()
	short := since(inWindow, end.Add(-time.Duration(w.TrailShort)*day))
	long := since(inWindow, end.Add(-time.Duration(w.TrailLong)*day))

	return Indicators{
		Total:         len(inWindow),
		DaysSpan:      span,
		PerDay:        roundTo(float64(len(inWindow))/float64(span), 3),
		N7:            len(short),
		N30:           len(long),
		MaxMagnitude:  Max(magnitudes(inWindow)),
		MaxMagnitude7: Max(magnitudes(short)),
		MedianDepth:   Median(depths(inWindow)),
		MedianDepth7:  Median(depths(short)),
	}
}

// ActivityRatio compares the short-window count with the count expected from
// the long-window background rate.
func ActivityRatio(n7, n30 int, w ScoringWeights) float64 {
	switch {
	case n30 > 0:
		expected := float64(n30) / float64(w.TrailLong) * float64(w.TrailShort)
		return float64(n7) / expected
	case n7 > 0:
		return w.BurstRatio
	default:
		return w.QuietRatio
	}
}

// HeuristicScore scores risk from seismicity alone, clamped to [0, HeuristicMax].
func HeuristicScore(ind Indicators, w ScoringWeights) float64 {
	score := w.Baseline

	mmax7 := 0.0
	if ind.MaxMagnitude7 != nil {
		mmax7 = *ind.MaxMagnitude7
	}
	score += stepAtLeast(mmax7, w.MagnitudeSteps)
	score += stepAtLeast(ActivityRatio(ind.N7, ind.N30, w), w.RatioSteps)
	if ind.MedianDepth7 != nil {
		score += stepAtMost(*ind.MedianDepth7, w.DepthSteps)
	}

	return clamp(score, 0, w.HeuristicMax)
}

// StatusBaseScore maps an alert level and color code to a base score, taking
// the larger of the two derivations.
func StatusBaseScore(s AuthoritativeStatus, w ScoringWeights) float64 {
	score := w.Baseline
	if v, ok := w.AlertLevels[normalizeToken(s.AlertLevel)]; ok {
		score = v
	}
	if v, ok := w.ColorCodes[normalizeToken(s.ColorCode)]; ok {
		score = max(score, v)
	}
	return score
}

// BlendScore nudges an authoritative base score by a fraction of the heuristic's
// deviation from baseline, clamped to [0, 100].
func BlendScore(base, heuristic float64, w ScoringWeights) float64 {
	return clamp(base+(heuristic-w.Baseline)*w.BlendWeight, 0, 100)
}

// ColorFor maps a score to its band.
func ColorFor(score float64) Color {
	switch {
	case score >= 80:
		return ColorRed
	case score >= 60:
		return ColorOrange
	case score >= 40:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// ConfidenceFor grades how much a score can be trusted from coverage and freshness.
func ConfidenceFor(totalEvents, daysSpan int, hasOfficial, endIsRecent bool) Confidence {
	points := 0
	if hasOfficial {
		points += 2
	}
	if endIsRecent {
		points++
	}
	switch {
	case totalEvents >= 200:
		points += 2
	case totalEvents >= 50:
		points++
	}
	if daysSpan >= 365 {
		points++
	}

	switch {
	case points >= 5:
		return ConfidenceHigh
	case points >= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Assess derives a RiskAssessment from cached events and an optional status.
// It is deterministic for identical inputs and never fails on an empty event set.
func Assess(loc Location, q WindowQuery, events []SeismicEvent, status *AuthoritativeStatus, now time.Time, w ScoringWeights) RiskAssessment {
	ind := ComputeIndicators(events, q, w)
	heuristic := HeuristicScore(ind, w)

	official := status != nil && status.Usable()

	score, basis := heuristic, BasisHeuristic
	if official {
		score = BlendScore(StatusBaseScore(*status, w), heuristic, w)
		basis = BasisAuthoritative
	}
	score = roundTo(score, 1)

	a := RiskAssessment{
		Location:       loc,
		Query:          q,
		Indicators:     ind,
		Score:          score,
		HeuristicScore: heuristic,
		Color:          ColorFor(score),
		Basis:          basis,
		Confidence:     ConfidenceFor(ind.Total, ind.DaysSpan, official, q.IsRecentEnd(now)),
		ComputedAt:     now.UTC(),
	}
	if official {
		s := *status
		a.OfficialStatus = &s
	}
	return a
}

func stepAtLeast(v float64, steps []Step) float64 {
	for _, s := range steps {
		if v >= s.Threshold {
			return s.Points
		}
	}
	return 0
}

func stepAtMost(v float64, steps []Step) float64 {
	for _, s := range steps {
		if v <= s.Threshold {
			return s.Points
		}
	}
	return 0
}
