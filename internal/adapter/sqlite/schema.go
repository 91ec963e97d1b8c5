package sqlite

// createLocationsTableSQL holds the volcano registry, keyed by vnum.
const createLocationsTableSQL = `
CREATE TABLE IF NOT EXISTS locations (
    vnum TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    lat REAL,
    lon REAL,
    volcano_cd TEXT NOT NULL DEFAULT '',
    obs TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    updated_at_source INTEGER
)`

// createSeismicEventsTableSQL holds cached catalog events. The same upstream
// event may be stored once per (vnum, radius, magnitude floor) query shape.
// raw holds the snappy-compressed upstream feature.
const createSeismicEventsTableSQL = `
CREATE TABLE IF NOT EXISTS seismic_events (
    event_id TEXT NOT NULL,
    vnum TEXT NOT NULL,
    radius_km REAL NOT NULL,
    min_magnitude REAL NOT NULL,
    time_ms INTEGER NOT NULL,
    magnitude REAL,
    depth_km REAL,
    place TEXT,
    lat REAL,
    lon REAL,
    url TEXT,
    raw BLOB,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (event_id, vnum, radius_km, min_magnitude)
)`

// createWindowFetchesTableSQL is the freshness ledger, one row per query signature.
const createWindowFetchesTableSQL = `
CREATE TABLE IF NOT EXISTS window_fetches (
    signature TEXT PRIMARY KEY,
    fetched_at INTEGER NOT NULL,
    total_fetched INTEGER NOT NULL,
    total_upserts INTEGER NOT NULL,
    chunks INTEGER NOT NULL,
    params TEXT NOT NULL
)`

// createSyncStateTableSQL records when background jobs last completed.
const createSyncStateTableSQL = `
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    synced_at INTEGER NOT NULL
)`

var createIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_locations_name ON locations(name)`,
	`CREATE INDEX IF NOT EXISTS idx_events_query ON seismic_events(vnum, radius_km, min_magnitude, time_ms)`,
}

func allSchemaSQL() []string {
	stmts := []string{
		createLocationsTableSQL,
		createSeismicEventsTableSQL,
		createWindowFetchesTableSQL,
		createSyncStateTableSQL,
	}
	return append(stmts, createIndexesSQL...)
}
