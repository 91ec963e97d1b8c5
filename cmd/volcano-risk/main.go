package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/volcano-risk-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/volcano-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/volcano-risk-service/internal/adapter/sqlite"
	"github.com/couchcryptid/volcano-risk-service/internal/adapter/usgs"
	"github.com/couchcryptid/volcano-risk-service/internal/adapter/volcano"
	"github.com/couchcryptid/volcano-risk-service/internal/config"
	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
	"github.com/couchcryptid/volcano-risk-service/internal/pipeline"
	"github.com/couchcryptid/volcano-risk-service/internal/scheduler"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := sqlite.Open(cfg.DBPath, clock)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	catalog := usgs.NewClient(cfg.EventURL, cfg.UserAgent, cfg.EventTimeout, cfg.EventLimit, metrics, logger)
	volcanoes := volcano.NewClient(volcano.Endpoints{
		API:  cfg.VolcanoAPIURL,
		HANS: cfg.HANSURL,
		Seed: cfg.VolcanoSeedURL,
	}, cfg.UserAgent, cfg.StatusTimeout, cfg.ListTimeout, metrics, logger)
	status := volcano.NewCachedFeed(
		volcano.NewBreakerFeed(volcanoes, volcano.DefaultBreakerSettings(), logger),
		cfg.StatusCacheSize, cfg.StatusCacheTTL, clock, metrics,
	)

	ledger := pipeline.NewFreshnessLedger(store, clock)
	ingester := pipeline.NewIngester(store, ledger, catalog, pipeline.IngestOptions{
		MaxDaysPerChunk: cfg.MaxDaysPerChunk,
		ChunkDelay:      cfg.ChunkDelay,
	}, clock, logger, metrics)
	scorer := pipeline.NewScorer(store, status, domain.DefaultScoringWeights(), clock, logger, metrics)
	batch := pipeline.NewBatch(ingester, scorer, cfg.FetchCacheTTL, clock, logger, metrics)
	service := pipeline.NewService(store, ingester, scorer, batch, status, cfg.FetchCacheTTL, clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed the registry before serving; the API still starts if upstream is down.
	if cfg.SeedOnStart {
		seeder := pipeline.NewSeeder(store, volcanoes, clock, logger)
		if _, err := seeder.EnsureSeeded(ctx); err != nil {
			logger.Error("volcano registry seed failed", "error", err)
		}
	}

	var writer *kafkaadapter.Writer
	var publisher scheduler.Publisher
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("risk publishing enabled", "topic", cfg.KafkaRiskTopic, "brokers", cfg.KafkaBrokers)
	}

	sched := scheduler.New(store, batch, publisher, scheduler.Options{
		Interval:     cfg.SyncInterval,
		Days:         cfg.SyncDays,
		RadiusKm:     cfg.DefaultRadiusKm,
		MinMagnitude: cfg.DefaultMinMag,
		Concurrency:  cfg.SyncConcurrency,
	}, clock, logger, metrics)
	if cfg.SyncEnabled {
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("periodic risk sync disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, service, httpadapter.Defaults{
		RadiusKm:     cfg.DefaultRadiusKm,
		MinMagnitude: cfg.DefaultMinMag,
	}, logger)
	srv.EnableSync(sched)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if cfg.SyncEnabled {
		sched.Stop()
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}
