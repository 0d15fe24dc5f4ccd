package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"market-stress-go/internal/config"
	"market-stress-go/internal/dashboard"
	"market-stress-go/internal/database"
	"market-stress-go/internal/logger"
	"market-stress-go/internal/market"
	"market-stress-go/internal/metrics"
	"market-stress-go/internal/stress"
)

func main() {
	configDir := flag.String("config", "./configs", "directory holding config.yml")
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed("dashboard", cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	var db *gorm.DB
	if cfg.Dashboard.Persist {
		db, err = database.NewDatabase(&cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		log.Info("Database connection successful and schema migrated.", zap.String("dsn", cfg.Database.DSN))
	}

	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	opts := []market.SimulatorOption{market.WithStartPrice(cfg.Simulator.StartPrice)}
	if cfg.Simulator.Retention > 0 {
		opts = append(opts, market.WithRetention(cfg.Simulator.Retention))
	}
	sim := market.NewSimulator(rng, opts...)

	detectors := []dashboard.Detector{
		dashboard.NewHeuristicDetector(cfg.Model.Threshold, rng),
		dashboard.NewModelDetector(stress.ModelConfig{
			MinRows:       cfg.Model.MinRows,
			Threshold:     cfg.Model.Threshold,
			Trees:         cfg.Model.Trees,
			Clusters:      cfg.Model.Clusters,
			Contamination: cfg.Model.Contamination,
			Seed:          cfg.Model.Seed,
		}),
	}

	recorder := metrics.New()
	engine := dashboard.NewEngine(log, &cfg, sim, detectors, db, recorder)
	api := dashboard.NewAPIServer(engine, cfg.Server.Port, recorder.Handler(), log)

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api.Start()
	if err := engine.Run(ctx); err != nil {
		log.Error("Engine stopped with error", zap.Error(err))
	}
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Dashboard has been shut down.", zap.String("session_id", engine.UUID))
}
