// Package main provides the HTTP and WebSocket gateway for the pagewise
// browser extension.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/db"
	"github.com/raphaelgruber/pagewise/internal/gateway"
	"github.com/raphaelgruber/pagewise/internal/llm"
	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/metrics"
)

func main() {
	addr := flag.String("addr", "", "listen address (default from config)")
	noChat := flag.Bool("no-chat", false, "disable chat frames")
	wipeDB := flag.Bool("wipe", false, "delete all snapshots on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}

	logger, cleanup := config.SetupLogger(cfg)
	defer func() { _ = cleanup() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	mc := metrics.NewCollector()
	mgr := manager.New(logger, manager.OptionsFromConfig(cfg, mc))

	var chat gateway.Chat
	if !*noChat {
		model, err := llm.NewModel(cfg, logger, mc)
		if err != nil {
			logger.Warn("chat disabled", "provider", cfg.LLMProvider, "error", err)
		} else {
			chat = model
		}
	}

	var snapshots gateway.Snapshots
	if cfg.AutosaveName != "" || *wipeDB {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		dbClient, err := db.NewClient(ctx, db.ConfigFrom(cfg), logger)
		if err == nil {
			err = dbClient.InitSchema(ctx)
		}
		if err == nil && *wipeDB {
			err = dbClient.WipeData(ctx)
		}
		cancel()
		if err != nil {
			logger.Error("failed to prepare database", "error", err)
			os.Exit(1)
		}
		dbClient.SetMetrics(mc)
		snapshots = dbClient
		defer func() {
			if err := dbClient.Close(context.Background()); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()
	}

	srv := gateway.New(gateway.Config{
		Addr:           cfg.ServerAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		AutosaveName:   cfg.AutosaveName,
	}, mgr, chat, snapshots, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.Restore(ctx); err != nil {
		logger.Warn("autosave not restored", "error", err)
	}
	cancel()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return
	}
	logger.Info("gateway stopped")
}
