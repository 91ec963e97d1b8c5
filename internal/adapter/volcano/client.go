// Package volcano talks to the USGS volcano hazards APIs: per-volcano status,
// the elevated-status notice list, and the registry list used for seeding.
package volcano

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
)

const (
	maxErrorBody = 512
	seedSource   = "usgs_vsc_volcanoesGVP"
)

// ErrUnexpectedFormat means a list endpoint returned neither an array nor an
// object carrying one.
var ErrUnexpectedFormat = errors.New("unexpected volcano list format")

// Client fetches volcano status and registry data.
type Client struct {
	statusClient *http.Client
	listClient   *http.Client
	apiURL       string
	hansURL      string
	seedURL      string
	userAgent    string
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// Endpoints groups the upstream URLs.
type Endpoints struct {
	API  string // volcanoApi base; vhpstatus/<vnum> is appended
	HANS string // elevated volcanoes list
	Seed string // full registry list
}

// NewClient creates a volcano API client. statusTimeout applies to status and
// elevated-list calls; listTimeout to the registry download.
func NewClient(ep Endpoints, userAgent string, statusTimeout, listTimeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		statusClient: &http.Client{Timeout: statusTimeout},
		listClient:   &http.Client{Timeout: listTimeout},
		apiURL:       ep.API,
		hansURL:      ep.HANS,
		seedURL:      ep.Seed,
		userAgent:    userAgent,
		metrics:      metrics,
		logger:       logger,
	}
}

// Status fetches the current alert level and color code for one volcano.
// The endpoint answers with either an object or a single-element array; an
// empty answer yields a status with no signal.
func (c *Client) Status(ctx context.Context, vnum string) (domain.AuthoritativeStatus, error) {
	body, err := c.get(ctx, c.statusClient, c.apiURL+"/vhpstatus/"+url.PathEscape(vnum), "status")
	if err != nil {
		return domain.AuthoritativeStatus{}, err
	}

	raw, err := firstObject(body)
	if err != nil {
		return domain.AuthoritativeStatus{}, fmt.Errorf("decode status: %w", err)
	}
	if raw == nil {
		return domain.AuthoritativeStatus{VNum: vnum}, nil
	}

	var p statusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.AuthoritativeStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return domain.AuthoritativeStatus{
		VNum:        vnum,
		AlertLevel:  p.AlertLevel,
		ColorCode:   p.ColorCode,
		Observatory: firstNonEmpty(p.Obs, p.ObsAbbr),
		SentAt:      p.SentUTC,
		Raw:         raw,
	}, nil
}

// Elevated fetches the volcanoes currently above normal status.
func (c *Client) Elevated(ctx context.Context) ([]domain.ElevatedVolcano, error) {
	body, err := c.get(ctx, c.statusClient, c.hansURL, "elevated")
	if err != nil {
		return nil, err
	}

	rows, err := pickRows(body)
	if err != nil {
		return nil, fmt.Errorf("decode elevated volcanoes: %w", err)
	}

	out := make([]domain.ElevatedVolcano, 0, len(rows))
	for _, raw := range rows {
		var r row
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		out = append(out, domain.ElevatedVolcano{
			VNum:        r.str("vnum", "volcanoVnum", "volcano_vnum"),
			VolcanoCode: r.str("volcanoCd", "volcano_cd"),
			Name:        r.str("vName", "volcano_name", "volcanoName", "name"),
			AlertLevel:  r.str("alertLevel", "alert_level"),
			ColorCode:   r.str("colorCode", "color_code"),
			Raw:         raw,
		})
	}
	return out, nil
}

// ListVolcanoes downloads the registry list. Rows missing an id, a name, or
// finite coordinates are skipped and counted. A payload that is not a list
// fails with ErrUnexpectedFormat.
func (c *Client) ListVolcanoes(ctx context.Context) ([]domain.Location, int, error) {
	body, err := c.get(ctx, c.listClient, c.seedURL, "registry")
	if err != nil {
		return nil, 0, err
	}

	rows, err := pickRows(body)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	locs := make([]domain.Location, 0, len(rows))
	skipped := 0
	for _, raw := range rows {
		var r row
		if err := json.Unmarshal(raw, &r); err != nil {
			skipped++
			continue
		}
		loc, ok := r.location(now)
		if !ok {
			skipped++
			continue
		}
		locs = append(locs, loc)
	}
	return locs, skipped, nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, fullURL, source string) ([]byte, error) {
	start := time.Now()
	body, err := c.doRequest(ctx, hc, fullURL)
	c.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamErrors.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("%s request: %w", source, err)
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, hc *http.Client, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("usgs volcano API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// firstObject returns the object itself, or the first element of an array.
// It returns nil for an empty array or a JSON null.
func firstObject(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		return nil, nil
	case body[0] == '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil
	case body[0] == '{':
		return json.RawMessage(body), nil
	default:
		return nil, fmt.Errorf("expected object or array, got %.20q", body)
	}
}

// pickRows accepts a bare array or an object carrying one under "results" or "volcanoes".
func pickRows(body []byte) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
	}
	for _, key := range []string{"results", "volcanoes"} {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &arr); err == nil {
				return arr, nil
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return nil, fmt.Errorf("%w: keys=%v", ErrUnexpectedFormat, keys)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// USGS volcano API response types.

type statusPayload struct {
	AlertLevel string `json:"alertLevel"`
	ColorCode  string `json:"colorCode"`
	Obs        string `json:"obs"`
	ObsAbbr    string `json:"obsAbbr"`
	SentUTC    string `json:"sentUtc"`
}
