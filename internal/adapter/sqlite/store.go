// Package sqlite implements the event cache, freshness ledger, and volcano
// registry on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed event store, freshness ledger, and location registry.
// Writes go through a single connection; reads use a separate pool.
type Store struct {
	db     *sql.DB // single writer
	readDB *sql.DB // concurrent readers
	mu     sync.Mutex
	clock  clockwork.Clock
}

// Open opens (creating if needed) the database at path and applies the schema.
// clock stamps row write times.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, clock: clock}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_query_only=true")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range allSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// CheckReadiness pings both connection pools.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: writer unavailable: %w", err)
	}
	if err := s.readDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: reader unavailable: %w", err)
	}
	return nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	rerr := s.readDB.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return rerr
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
