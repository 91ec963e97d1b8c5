package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DBPath    string
	UserAgent string

	// USGS FDSN event catalog.
	EventURL     string
	EventTimeout time.Duration
	EventLimit   int

	// USGS volcano status and registry feeds.
	VolcanoAPIURL   string
	HANSURL         string
	VolcanoSeedURL  string
	StatusTimeout   time.Duration
	ListTimeout     time.Duration
	StatusCacheTTL  time.Duration
	StatusCacheSize int
	FetchCacheTTL   time.Duration
	MaxDaysPerChunk int
	ChunkDelay      time.Duration
	DefaultRadiusKm float64
	DefaultMinMag   float64
	SeedOnStart     bool

	// Periodic batch sync.
	SyncEnabled     bool
	SyncInterval    time.Duration
	SyncDays        int
	SyncConcurrency int

	// Batch result publishing.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaRiskTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; it never
// overrides variables already set in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		DBPath:          sharedcfg.EnvOrDefault("DB_PATH", "volcano-risk.db"),
		UserAgent:       sharedcfg.EnvOrDefault("USER_AGENT", "volcano-risk-service/1.0"),
		EventURL:        sharedcfg.EnvOrDefault("USGS_EVENT_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
		VolcanoAPIURL:   sharedcfg.EnvOrDefault("VOLCANO_API_URL", "https://volcanoes.usgs.gov/vsc/api/volcanoApi"),
		HANSURL:         sharedcfg.EnvOrDefault("HANS_URL", "https://volcanoes.usgs.gov/hans-public/api/volcano/getElevatedVolcanoes"),
		VolcanoSeedURL:  sharedcfg.EnvOrDefault("VOLCANO_SEED_URL", "https://volcanoes.usgs.gov/vsc/api/volcanoApi/volcanoesGVP"),
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRiskTopic:  sharedcfg.EnvOrDefault("KAFKA_RISK_TOPIC", "volcano-risk-assessments"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"USGS_EVENT_TIMEOUT", "60s", &cfg.EventTimeout},
		{"VOLCANO_STATUS_TIMEOUT", "30s", &cfg.StatusTimeout},
		{"VOLCANO_LIST_TIMEOUT", "60s", &cfg.ListTimeout},
		{"STATUS_CACHE_TTL", "5m", &cfg.StatusCacheTTL},
		{"FETCH_CACHE_TTL", "5m", &cfg.FetchCacheTTL},
		{"SYNC_INTERVAL", "1h", &cfg.SyncInterval},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.ChunkDelay, err = parseDuration("CHUNK_DELAY", "150ms"); err != nil {
		return nil, err
	}
	if cfg.ChunkDelay < 0 {
		return nil, errors.New("invalid CHUNK_DELAY: must not be negative")
	}

	ints := []struct {
		key      string
		def      int
		min, max int
		dst      *int
	}{
		{"USGS_EVENT_LIMIT", 20000, 1, 20000, &cfg.EventLimit},
		{"STATUS_CACHE_SIZE", 1000, 1, 100000, &cfg.StatusCacheSize},
		{"MAX_DAYS_PER_CHUNK", 31, 1, 366, &cfg.MaxDaysPerChunk},
		{"SYNC_DAYS", 30, 1, 365, &cfg.SyncDays},
		{"SYNC_CONCURRENCY", 6, 1, 20, &cfg.SyncConcurrency},
	}
	for _, n := range ints {
		if *n.dst, err = parseIntRange(n.key, n.def, n.min, n.max); err != nil {
			return nil, err
		}
	}

	if cfg.DefaultRadiusKm, err = parseFloatRange("DEFAULT_RADIUS_KM", 25, 1, 500); err != nil {
		return nil, err
	}
	if cfg.DefaultMinMag, err = parseFloatRange("DEFAULT_MIN_MAG", 0, -1, 10); err != nil {
		return nil, err
	}

	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"SEED_ON_START", true, &cfg.SeedOnStart},
		{"SYNC_ENABLED", false, &cfg.SyncEnabled},
		{"KAFKA_ENABLED", false, &cfg.KafkaEnabled},
	}
	for _, b := range bools {
		if *b.dst, err = parseBool(b.key, b.def); err != nil {
			return nil, err
		}
	}

	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaRiskTopic == "" {
			return nil, errors.New("KAFKA_RISK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseIntRange(key string, def, lo, hi int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}

func parseFloatRange(key string, def, lo, hi float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.FormatFloat(def, 'f', -1, 64))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s: must be a number in [%g, %g]", key, lo, hi)
	}
	return f, nil
}

func parseBool(key string, def bool) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, strconv.FormatBool(def)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}
