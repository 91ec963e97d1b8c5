package domain

import (
	"math"
	"slices"
	"time"
)

// Median returns the median of values, or nil for an empty set.
func Median(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	}
	return &m
}

// Max returns the largest value, or nil for an empty set.
func Max(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := slices.Max(values)
	return &m
}

func magnitudes(events []SeismicEvent) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		if e.Magnitude != nil && finite(*e.Magnitude) {
			out = append(out, *e.Magnitude)
		}
	}
	return out
}

func depths(events []SeismicEvent) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		if e.DepthKm != nil && finite(*e.DepthKm) {
			out = append(out, *e.DepthKm)
		}
	}
	return out
}

// since returns the events at or after the cutoff.
func since(events []SeismicEvent, cutoff time.Time) []SeismicEvent {
	out := make([]SeismicEvent, 0, len(events))
	for _, e := range events {
		if !e.Time.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
