// Package main provides the HTTP API server for listsync.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mgrabner/listsync-go/internal/config"
	"github.com/mgrabner/listsync-go/internal/db"
	"github.com/mgrabner/listsync-go/internal/enrich"
	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/server"
	"github.com/mgrabner/listsync-go/internal/service"
)

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Initialize logging
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("starting listsync-server", "port", cfg.ServerPort)

	// Connect to the database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("LISTSYNC_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = dbClient.InitSchema(ctx)
	cancel()
	if err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Wire services
	collector := metrics.NewCollector()
	gaps := service.NewGapService(dbClient, collector, cfg.ScanLimit)
	jobs := service.NewJobManager(dbClient)
	enricher := enrich.NewHTTPEnricher(cfg.MarketplaceURL, cfg.MarketplaceTimeout)
	runner := service.NewRunner(dbClient, enricher, jobs, gaps, collector, cfg.RepairBatchSize)

	// Pick up jobs interrupted by the previous shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = runner.ResumeIncompleteJobs(ctx)
	cancel()
	if err != nil {
		slog.Error("failed to resume jobs", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg.ServerPort, gaps, runner, collector, logger)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
