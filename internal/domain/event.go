package domain

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidQuery marks caller input errors: they fail fast and are never retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrLocationNotFound is returned by registries for an unknown vnum.
	ErrLocationNotFound = errors.New("location not found")
)

// Location is a monitored volcano. The registry owns it; the core only reads it.
type Location struct {
	VNum            string    `json:"vnum"`
	Name            string    `json:"vName"`
	Lat             *float64  `json:"lat"`
	Lon             *float64  `json:"lon"`
	VolcanoCode     string    `json:"volcanoCd,omitempty"`
	Observatory     string    `json:"obs,omitempty"`
	Region          string    `json:"region,omitempty"`
	URL             string    `json:"vUrl,omitempty"`
	ImageURL        string    `json:"vImage,omitempty"`
	Source          string    `json:"source,omitempty"`
	UpdatedAtSource time.Time `json:"updatedAtSource,omitzero"`
}

// Coordinates returns the location's coordinates and whether both are present and finite.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	if l.Lat == nil || l.Lon == nil {
		return 0, 0, false
	}
	lat, lon = *l.Lat, *l.Lon
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0, 0, false
	}
	return lat, lon, true
}

// CatalogFeature is one decoded GeoJSON feature from the earthquake catalog,
// before normalization. Pointer fields are nil when upstream sent null.
type CatalogFeature struct {
	ID          string
	TimeMillis  *int64
	Magnitude   *float64
	Place       *string
	URL         *string
	Coordinates []*float64 // [lon, lat, depth_km]
	Raw         json.RawMessage
}

// CatalogQuery is one upstream catalog request: a circle around a point and a
// time range, both bounds inclusive.
type CatalogQuery struct {
	Latitude     float64
	Longitude    float64
	RadiusKm     float64
	MinMagnitude float64
	Start        time.Time
	End          time.Time
}

// CatalogPage is the decoded response to a CatalogQuery. Malformed counts the
// features that could not be decoded and were dropped.
type CatalogPage struct {
	Features  []CatalogFeature
	Malformed int
}

// SeismicEvent is one earthquake as cached for a specific (vnum, radius, magnitude floor) query.
type SeismicEvent struct {
	EventID      string          `json:"eventId"`
	VNum         string          `json:"volcanoVnum"`
	RadiusKm     float64         `json:"radiusKm"`
	MinMagnitude float64         `json:"minmag"`
	Time         time.Time       `json:"time"`
	Magnitude    *float64        `json:"mag"`
	DepthKm      *float64        `json:"depthKm"`
	Place        *string         `json:"place"`
	Lat          *float64        `json:"lat"`
	Lon          *float64        `json:"lon"`
	URL          *string         `json:"url"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// WindowFetchRecord remembers when a query signature was last fetched successfully.
type WindowFetchRecord struct {
	Signature    string      `json:"signature"`
	FetchedAt    time.Time   `json:"fetchedAt"`
	TotalFetched int         `json:"totalFetched"`
	TotalUpserts int         `json:"totalOps"`
	Chunks       int         `json:"chunks"`
	Params       WindowQuery `json:"params"`
}

// FetchStats describes one FetchAndCache call.
type FetchStats struct {
	Reason       string    `json:"reason"`
	Signature    string    `json:"windowKey"`
	TotalFetched int       `json:"totalFetched"`
	TotalUpserts int       `json:"totalOps"`
	Skipped      int       `json:"skipped"`
	Chunks       int       `json:"chunks"`
	FetchedAt    time.Time `json:"fetchedAt,omitzero"`
}

// FetchResult is the outcome of FetchAndCache.
type FetchResult struct {
	DidFetch bool       `json:"fetchedNow"`
	Stats    FetchStats `json:"fetchStats"`
}

// BatchResult is the per-location summary produced by the batch orchestrator.
type BatchResult struct {
	VNum       string     `json:"vnum"`
	Name       string     `json:"vName"`
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Score      float64    `json:"score"`
	Color      Color      `json:"color"`
	Basis      Basis      `json:"basis"`
	Confidence Confidence `json:"confidence"`
	ComputedAt time.Time  `json:"computedAt"`
}
