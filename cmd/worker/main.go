package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nba_analytics/ingestion/internal/cache"
	"nba_analytics/ingestion/internal/config"
	"nba_analytics/ingestion/internal/metrics"
	"nba_analytics/ingestion/internal/pipeline"
	"nba_analytics/ingestion/internal/report"
	"nba_analytics/ingestion/internal/repository"
	"nba_analytics/ingestion/internal/scheduler"
	"nba_analytics/ingestion/internal/teams"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logger
	setupLogger()

	log.Info().Msg("Starting NBA Team Analytics Worker")

	// Load configuration
	cfg := config.MustLoad()
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Int("season", cfg.Season).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize provider clients and adapters
	providers, err := pipeline.Providers(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize providers")
	}

	// Initialize database connection
	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	// Initialize Redis client
	assemblerOpts := []report.Option{
		report.WithSink(db.Records),
		report.WithBookmakerPreference(cfg.Bookmakers()),
	}
	var teamCache teams.Cache
	redisCache, err := cache.NewRedisCache(pipeline.CacheConfig(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
	} else {
		defer redisCache.Close()
		teamCache = redisCache
		assemblerOpts = append(assemblerOpts,
			report.WithPriorStore(redisCache),
			report.WithReportCache(redisCache),
		)
		log.Info().Msg("Redis cache connected")
	}

	directory := teams.NewDirectory(teamCache)
	assembler := report.NewAssembler(providers, assemblerOpts...)
	batch := scheduler.NewBatch(assembler, db.Records, cfg.BatchWorkers, pipeline.BatchOptions(cfg))
	sched := scheduler.NewScheduler(scheduler.Config{
		RefreshCron:    cfg.RefreshCron,
		InitialRefresh: cfg.InitialRefreshEnabled,
	}, batch, directory, providers.Teams)

	// Start ops HTTP server
	srv := newServer(cfg.MetricsPort, cfg.EnableMetrics, db, redisCache, batch)
	go srv.start()

	// Update system uptime and pool metrics
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				db.ReportPoolStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.EnableScheduler {
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	} else {
		log.Info().Msg("Scheduler disabled")
	}

	// Keep running until context is cancelled
	<-ctx.Done()

	// Graceful shutdown
	log.Info().Msg("Shutting down scheduler...")
	if cfg.EnableScheduler {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.shutdown(shutdownCtx)

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger() {
	// Pretty console logging in development
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}
