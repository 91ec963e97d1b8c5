package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
)

const locationColumns = `vnum, name, lat, lon, volcano_cd, obs, region, url, image_url, source, updated_at_source`

const upsertLocationSQL = `
INSERT INTO locations (` + locationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (vnum) DO UPDATE SET
    name = excluded.name,
    lat = excluded.lat,
    lon = excluded.lon,
    volcano_cd = excluded.volcano_cd,
    obs = excluded.obs,
    region = excluded.region,
    url = excluded.url,
    image_url = excluded.image_url,
    source = excluded.source,
    updated_at_source = excluded.updated_at_source`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetLocation returns one registry entry or domain.ErrLocationNotFound.
func (s *Store) GetLocation(ctx context.Context, vnum string) (domain.Location, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE vnum = ?`, vnum)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Location{}, fmt.Errorf("vnum %s: %w", vnum, domain.ErrLocationNotFound)
	}
	if err != nil {
		return domain.Location{}, fmt.Errorf("sqlite: get location %s: %w", vnum, err)
	}
	return loc, nil
}

// ListLocations returns one page of the registry sorted by name. Pages start at 1.
func (s *Store) ListLocations(ctx context.Context, page, limit int) ([]domain.Location, error) {
	page = max(page, 1)
	return s.queryLocations(ctx, "list locations",
		`SELECT `+locationColumns+` FROM locations ORDER BY name ASC, vnum ASC LIMIT ? OFFSET ?`,
		limit, (page-1)*limit,
	)
}

// SearchLocations returns up to limit entries whose name or vnum contains term,
// ignoring ASCII case.
func (s *Store) SearchLocations(ctx context.Context, term string, limit int) ([]domain.Location, error) {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	return s.queryLocations(ctx, "search locations",
		`SELECT `+locationColumns+` FROM locations
		WHERE name LIKE ? ESCAPE '\' OR vnum LIKE ? ESCAPE '\'
		ORDER BY name ASC, vnum ASC LIMIT ?`,
		pattern, pattern, limit,
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) queryLocations(ctx context.Context, op, query string, args ...any) ([]domain.Location, error) {
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return out, nil
}

// CountLocations returns the registry size.
func (s *Store) CountLocations(ctx context.Context) (int, error) {
	var n int
	if err := s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count locations: %w", err)
	}
	return n, nil
}

// UpsertLocations inserts or replaces registry entries by vnum in one transaction.
func (s *Store) UpsertLocations(ctx context.Context, locs []domain.Location) (int, error) {
	if len(locs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin location upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertLocationSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare location upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range locs {
		var updated sql.NullInt64
		if !l.UpdatedAtSource.IsZero() {
			updated = sql.NullInt64{Int64: toMillis(l.UpdatedAtSource), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			l.VNum, l.Name, nullFloat(l.Lat), nullFloat(l.Lon),
			l.VolcanoCode, l.Observatory, l.Region, l.URL, l.ImageURL, l.Source, updated,
		); err != nil {
			return 0, fmt.Errorf("sqlite: upsert location %s: %w", l.VNum, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit location upsert: %w", err)
	}
	return len(locs), nil
}

func scanLocation(row rowScanner) (domain.Location, error) {
	var (
		l        domain.Location
		lat, lon sql.NullFloat64
		updated  sql.NullInt64
	)
	if err := row.Scan(&l.VNum, &l.Name, &lat, &lon,
		&l.VolcanoCode, &l.Observatory, &l.Region, &l.URL, &l.ImageURL, &l.Source, &updated); err != nil {
		return domain.Location{}, err
	}
	l.Lat, l.Lon = floatPtr(lat), floatPtr(lon)
	if updated.Valid {
		l.UpdatedAtSource = fromMillis(updated.Int64)
	}
	return l, nil
}
