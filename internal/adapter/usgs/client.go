// Package usgs queries the USGS FDSN earthquake event service.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
)

const (
	timeLayout   = "2006-01-02T15:04:05.000"
	maxErrorBody = 512
)

// Client fetches GeoJSON event collections from the FDSN event query endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limit      int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an FDSN event client. limit caps the events per request.
func NewClient(baseURL, userAgent string, timeout time.Duration, limit int, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
		limit:      limit,
		metrics:    metrics,
		logger:     logger,
	}
}

// QueryEvents runs one radius query. Individual features that fail to decode
// are dropped and counted; any transport, status, or envelope error fails the call.
func (c *Client) QueryEvents(ctx context.Context, q domain.CatalogQuery) (domain.CatalogPage, error) {
	params := url.Values{
		"format":       {"geojson"},
		"latitude":     {formatCoord(q.Latitude)},
		"longitude":    {formatCoord(q.Longitude)},
		"maxradiuskm":  {formatCoord(q.RadiusKm)},
		"minmagnitude": {formatCoord(q.MinMagnitude)},
		"starttime":    {q.Start.UTC().Format(timeLayout)},
		"endtime":      {q.End.UTC().Format(timeLayout)},
		"orderby":      {"time"},
		"limit":        {strconv.Itoa(c.limit)},
	}

	start := time.Now()
	page, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.UpstreamDuration.WithLabelValues("catalog").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamErrors.WithLabelValues("catalog").Inc()
		return domain.CatalogPage{}, err
	}

	if page.Malformed > 0 {
		c.metrics.FeaturesSkipped.Add(float64(page.Malformed))
		c.logger.Warn("dropped malformed catalog features",
			"malformed", page.Malformed,
			"start", params.Get("starttime"),
			"end", params.Get("endtime"),
		)
	}
	return page, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.CatalogPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.CatalogPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.CatalogPage{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.CatalogPage{}, fmt.Errorf("usgs catalog error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return domain.CatalogPage{}, fmt.Errorf("decode response: %w", err)
	}

	page := domain.CatalogPage{Features: make([]domain.CatalogFeature, 0, len(fc.Features))}
	for _, raw := range fc.Features {
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			page.Malformed++
			continue
		}
		cf := domain.CatalogFeature{
			ID:         f.ID,
			TimeMillis: f.Properties.Time,
			Magnitude:  f.Properties.Mag,
			Place:      f.Properties.Place,
			URL:        f.Properties.URL,
			Raw:        raw,
		}
		if f.Geometry != nil {
			cf.Coordinates = f.Geometry.Coordinates
		}
		page.Features = append(page.Features, cf)
	}
	return page, nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FDSN GeoJSON response types.

type featureCollection struct {
	Features []json.RawMessage `json:"features"`
}

type feature struct {
	ID         string     `json:"id"`
	Properties properties `json:"properties"`
	Geometry   *geometry  `json:"geometry"`
}

type properties struct {
	Time  *int64   `json:"time"`
	Mag   *float64 `json:"mag"`
	Place *string  `json:"place"`
	URL   *string  `json:"url"`
}

type geometry struct {
	Coordinates []*float64 `json:"coordinates"` // [lon, lat, depth_km]
}
