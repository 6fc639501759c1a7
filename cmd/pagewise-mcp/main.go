// Package main provides the entry point for the pagewise MCP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/pagewise/internal/capture"
	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/db"
	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/metrics"
	"github.com/raphaelgruber/pagewise/internal/server"
	"github.com/raphaelgruber/pagewise/internal/tools"
)

const version = "0.1.0"

func main() {
	noDB := flag.Bool("no-db", false, "run without SurrealDB snapshots")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Stdout carries the MCP protocol, so logs go to stderr and the file.
	logger, cleanup := config.SetupLogger(cfg)
	defer func() { _ = cleanup() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("pagewise-mcp starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"privacy_mode", cfg.PrivacyMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	mc := metrics.NewCollector()
	mgr := manager.New(logger, manager.OptionsFromConfig(cfg, mc))

	fetcher, closeFetcher := capture.FromConfig(cfg, logger, mc)
	defer func() { _ = closeFetcher() }()

	deps := &tools.Dependencies{
		Manager: mgr,
		Fetcher: fetcher,
		Logger:  logger,
	}

	if !*noDB {
		connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
		dbClient, err := db.NewClient(connectCtx, db.ConfigFrom(cfg), logger)
		if err == nil {
			err = dbClient.InitSchema(connectCtx)
		}
		connectCancel()
		if err != nil {
			// Snapshots are optional; the session itself lives in memory.
			logger.Warn("snapshots disabled", "error", err)
		} else {
			dbClient.SetMetrics(mc)
			deps.Snapshots = dbClient
			defer func() {
				logger.Info("closing database connection")
				_ = dbClient.Close(context.Background())
			}()
		}
	}

	srv := server.New(version, logger, mc)
	srv.Setup()
	tools.RegisterAll(srv.MCPServer(), deps)

	logger.Info("server ready, awaiting connections", "snapshots", deps.Snapshots != nil)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
