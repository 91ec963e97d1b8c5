package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
)

const upsertEventSQL = `
INSERT INTO seismic_events (
    event_id, vnum, radius_km, min_magnitude, time_ms,
    magnitude, depth_km, place, lat, lon, url, raw, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id, vnum, radius_km, min_magnitude) DO UPDATE SET
    time_ms = excluded.time_ms,
    magnitude = excluded.magnitude,
    depth_km = excluded.depth_km,
    place = excluded.place,
    lat = excluded.lat,
    lon = excluded.lon,
    url = excluded.url,
    raw = excluded.raw,
    updated_at = excluded.updated_at`

const findEventsSQL = `
SELECT event_id, vnum, radius_km, min_magnitude, time_ms,
       magnitude, depth_km, place, lat, lon, url, raw
FROM seismic_events
WHERE vnum = ? AND radius_km = ? AND min_magnitude = ?
  AND time_ms >= ? AND time_ms <= ?
ORDER BY time_ms ASC, event_id ASC`

// UpsertEvents inserts or replaces events by (event id, vnum, radius, magnitude
// floor) in one transaction and returns the number of write operations.
func (s *Store) UpsertEvents(ctx context.Context, events []domain.SeismicEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin event upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertEventSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare event upsert: %w", err)
	}
	defer stmt.Close()

	now := toMillis(s.clock.Now())
	for _, e := range events {
		var raw []byte
		if len(e.Raw) > 0 {
			raw = snappy.Encode(nil, e.Raw)
		}
		if _, err := stmt.ExecContext(ctx,
			e.EventID, e.VNum, e.RadiusKm, e.MinMagnitude, toMillis(e.Time),
			nullFloat(e.Magnitude), nullFloat(e.DepthKm), nullString(e.Place),
			nullFloat(e.Lat), nullFloat(e.Lon), nullString(e.URL), raw, now,
		); err != nil {
			return 0, fmt.Errorf("sqlite: upsert event %s: %w", e.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit event upsert: %w", err)
	}
	return len(events), nil
}

// FindEvents returns the cached events for one query shape whose origin time
// falls in [from, until], in ascending time order.
func (s *Store) FindEvents(ctx context.Context, vnum string, radiusKm, minMagnitude float64, from, until time.Time) ([]domain.SeismicEvent, error) {
	rows, err := s.readDB.QueryContext(ctx, findEventsSQL, vnum, radiusKm, minMagnitude, toMillis(from), toMillis(until))
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer rows.Close()

	var out []domain.SeismicEvent
	for rows.Next() {
		var (
			e                  domain.SeismicEvent
			timeMs             int64
			mag, dep, lat, lon sql.NullFloat64
			place, url         sql.NullString
			raw                []byte
		)
		if err := rows.Scan(&e.EventID, &e.VNum, &e.RadiusKm, &e.MinMagnitude, &timeMs,
			&mag, &dep, &place, &lat, &lon, &url, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		e.Time = fromMillis(timeMs)
		e.Magnitude, e.DepthKm = floatPtr(mag), floatPtr(dep)
		e.Lat, e.Lon = floatPtr(lat), floatPtr(lon)
		e.Place, e.URL = stringPtr(place), stringPtr(url)
		if len(raw) > 0 {
			decoded, err := snappy.Decode(nil, raw)
			if err != nil {
				return nil, fmt.Errorf("sqlite: decode raw payload for %s: %w", e.EventID, err)
			}
			e.Raw = decoded
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate events: %w", err)
	}
	return out, nil
}
