package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
)

// GetWindow returns the ledger record for a query signature, if one exists.
func (s *Store) GetWindow(ctx context.Context, signature string) (domain.WindowFetchRecord, bool, error) {
	var (
		rec       domain.WindowFetchRecord
		fetchedAt int64
		params    string
	)
	err := s.readDB.QueryRowContext(ctx,
		`SELECT signature, fetched_at, total_fetched, total_upserts, chunks, params
		 FROM window_fetches WHERE signature = ?`, signature,
	).Scan(&rec.Signature, &fetchedAt, &rec.TotalFetched, &rec.TotalUpserts, &rec.Chunks, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WindowFetchRecord{}, false, nil
	}
	if err != nil {
		return domain.WindowFetchRecord{}, false, fmt.Errorf("sqlite: get window %s: %w", signature, err)
	}

	rec.FetchedAt = fromMillis(fetchedAt)
	if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
		return domain.WindowFetchRecord{}, false, fmt.Errorf("sqlite: decode window params %s: %w", signature, err)
	}
	return rec, true, nil
}

// PutWindow creates or replaces the ledger record for its signature.
func (s *Store) PutWindow(ctx context.Context, rec domain.WindowFetchRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("sqlite: encode window params: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO window_fetches (signature, fetched_at, total_fetched, total_upserts, chunks, params)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (signature) DO UPDATE SET
		    fetched_at = excluded.fetched_at,
		    total_fetched = excluded.total_fetched,
		    total_upserts = excluded.total_upserts,
		    chunks = excluded.chunks,
		    params = excluded.params`,
		rec.Signature, toMillis(rec.FetchedAt), rec.TotalFetched, rec.TotalUpserts, rec.Chunks, string(params),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put window %s: %w", rec.Signature, err)
	}
	return nil
}

// MarkSynced records that the named background job completed at t.
func (s *Store) MarkSynced(ctx context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, synced_at) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET synced_at = excluded.synced_at`,
		key, toMillis(t),
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark synced %s: %w", key, err)
	}
	return nil
}

// LastSynced returns when the named job last completed, if ever.
func (s *Store) LastSynced(ctx context.Context, key string) (time.Time, bool, error) {
	var ms int64
	err := s.readDB.QueryRowContext(ctx, `SELECT synced_at FROM sync_state WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: last synced %s: %w", key, err)
	}
	return fromMillis(ms), true, nil
}
