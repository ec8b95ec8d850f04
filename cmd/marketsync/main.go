package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/common"
	"github.com/ternarybob/marketsync/internal/eodhd"
	"github.com/ternarybob/marketsync/internal/handlers"
	"github.com/ternarybob/marketsync/internal/planner"
	"github.com/ternarybob/marketsync/internal/progress"
	"github.com/ternarybob/marketsync/internal/recovery"
	"github.com/ternarybob/marketsync/internal/runner"
	"github.com/ternarybob/marketsync/internal/server"
	"github.com/ternarybob/marketsync/internal/services/scheduler"
	"github.com/ternarybob/marketsync/internal/services/status"
	storagebadger "github.com/ternarybob/marketsync/internal/storage/badger"
)

var (
	configFile  = flag.String("config", "", "Configuration file path (TOML)")
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("MarketSync version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> file -> env -> CLI)
	// 2. Initialize logger, print banner
	// 3. Open storage, run recovery scan BEFORE accepting any job
	// 4. Wire core, start scheduler and HTTP server
	path := *configFile
	if path == "" {
		if _, err := os.Stat("marketsync.toml"); err == nil {
			path = "marketsync.toml"
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("config", path).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Application configuration loaded")

	storageManager, err := storagebadger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer storageManager.Close()

	// Orphaned jobs from a prior process must be failed before any new job
	// is accepted: their snapshots are gone and no worker owns them.
	scanner := recovery.NewScanner(storageManager.JobStorage(), logger)
	if converted, err := scanner.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Recovery scan failed")
		os.Exit(1)
	} else if converted > 0 {
		logger.Warn().Int("count", converted).Msg("Jobs orphaned by previous shutdown were marked failed")
	}

	aggregator := progress.NewAggregator(storageManager.EventStorage(), logger)
	pln := planner.New(config.Ingest.ChunkDays)

	client := eodhd.NewClient(config.EODHD.APIKey,
		eodhd.WithBaseURL(config.EODHD.BaseURL),
		eodhd.WithRateLimit(config.EODHD.RateLimit),
		eodhd.WithLogger(logger),
	)
	fetcher := eodhd.NewFetcher(client)

	jobRunner := runner.New(
		pln,
		aggregator,
		storageManager.JobStorage(),
		fetcher,
		storageManager.PriceStorage(),
		config.Ingest.PersistSplit,
		logger,
	)

	statusService := status.NewService(aggregator, storageManager.JobStorage(), storageManager.EventStorage(), logger)

	schedulerService, err := scheduler.NewService(jobRunner, config.Schedules, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize scheduler")
		os.Exit(1)
	}
	schedulerService.Start()
	defer schedulerService.Stop()

	srv := server.New(
		config,
		logger,
		handlers.NewJobHandler(jobRunner, statusService, logger),
		handlers.NewProgressHandler(statusService, logger),
		handlers.NewWebSocketHandler(statusService, logger),
	)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
			os.Exit(1)
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	// Stop accepting scheduled jobs, then give in-flight workers a bounded
	// window; anything still running is handled by the recovery scan on the
	// next start.
	schedulerService.Stop()
	jobRunner.Shutdown()

	logger.Info().Msg("MarketSync stopped")
}
