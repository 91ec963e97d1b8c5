package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissingEventID means the upstream feature had no usable identifier.
	ErrMissingEventID = errors.New("feature has no event id")

	// ErrInvalidEventTime means the upstream feature had no parsable origin time.
	ErrInvalidEventTime = errors.New("feature has no valid origin time")
)

// NormalizeFeature converts a catalog feature into a SeismicEvent keyed for
// the given location and query configuration. Features without an id or an
// origin time are rejected so the caller can skip them individually.
func NormalizeFeature(f CatalogFeature, vnum string, radiusKm, minMagnitude float64) (SeismicEvent, error) {
	id := strings.TrimSpace(f.ID)
	if id == "" {
		return SeismicEvent{}, ErrMissingEventID
	}
	if f.TimeMillis == nil {
		return SeismicEvent{}, fmt.Errorf("event %s: %w", id, ErrInvalidEventTime)
	}

	lon, lat, depth := coordinate(f.Coordinates, 0), coordinate(f.Coordinates, 1), coordinate(f.Coordinates, 2)

	return SeismicEvent{
		EventID:      id,
		VNum:         vnum,
		RadiusKm:     radiusKm,
		MinMagnitude: minMagnitude,
		Time:         time.UnixMilli(*f.TimeMillis).UTC(),
		Magnitude:    finitePtr(f.Magnitude),
		DepthKm:      depth,
		Place:        nonEmpty(f.Place),
		Lat:          lat,
		Lon:          lon,
		URL:          nonEmpty(f.URL),
		Raw:          f.Raw,
	}, nil
}

// coordinate returns the i-th GeoJSON coordinate component if present and finite.
func coordinate(coords []*float64, i int) *float64 {
	if i >= len(coords) {
		return nil
	}
	return finitePtr(coords[i])
}

func finitePtr(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	out := *v
	return &out
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	out := *s
	return &out
}
