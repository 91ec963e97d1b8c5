// Command seed fills the volcano registry from the USGS volcanoesGVP list.
// By default it does nothing when the registry already has entries.
//
// Usage:
//
//	go run ./cmd/seed [-force]
//
// The database path, user agent, and upstream URLs come from the same
// environment variables as the service (DB_PATH, USER_AGENT, VOLCANO_SEED_URL, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/volcano-risk-service/internal/adapter/sqlite"
	"github.com/couchcryptid/volcano-risk-service/internal/adapter/volcano"
	"github.com/couchcryptid/volcano-risk-service/internal/config"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/couchcryptid/volcano-risk-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	force := flag.Bool("force", false, "re-download and upsert even if the registry is populated")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	clock := clockwork.NewRealClock()
	store, err := sqlite.Open(cfg.DBPath, clock)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	client := volcano.NewClient(volcano.Endpoints{
		API:  cfg.VolcanoAPIURL,
		HANS: cfg.HANSURL,
		Seed: cfg.VolcanoSeedURL,
	}, cfg.UserAgent, cfg.StatusTimeout, cfg.ListTimeout, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seeder := pipeline.NewSeeder(store, client, clock, logger)
	var res pipeline.SeedResult
	if *force {
		res, err = seeder.Seed(ctx)
	} else {
		res, err = seeder.EnsureSeeded(ctx)
	}
	if err != nil {
		return err
	}

	if !res.Seeded {
		fmt.Printf("registry already has %d volcanoes; use -force to refresh\n", res.Existing)
		return nil
	}
	fmt.Printf("seeded %d volcanoes (%d rows skipped) into %s\n", res.Upserted, res.Skipped, cfg.DBPath)
	return nil
}
