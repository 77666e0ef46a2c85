package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkuran/shopbot/internal/api"
	"github.com/mkuran/shopbot/internal/browser"
	"github.com/mkuran/shopbot/internal/config"
	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/models"
	"github.com/mkuran/shopbot/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	logger := setupLogging(cfg.Logging)
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := diagnostics.NewRecorder(cfg.OutputDir)
	if err != nil {
		logger.Error("failed to create output directory", "error", err)
		return 1
	}
	logger.Info("run starting", "run_id", rec.RunID(), "dir", rec.Dir(),
		"accounts", len(cfg.Accounts), "products", len(cfg.Products),
		"checkout_enabled", cfg.CheckoutEnabled, "full_send", cfg.FullSend)

	if cfg.DatabaseURL != "" {
		store, err := diagnostics.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("postgres store unavailable", "error", err)
		} else {
			defer store.Close()
			rec.AttachStore(store)
		}
	}
	if cfg.RedisAddr != "" {
		events, err := diagnostics.NewEventStream(ctx, cfg.RedisAddr, rec.RunID())
		if err != nil {
			logger.Warn("redis event stream unavailable", "error", err)
		} else {
			defer events.Close()
			rec.AttachEvents(events)
		}
	}

	newDriver := func() (session.Driver, error) {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Headless
		opts.WSEndpoint = cfg.BrowserWSEndpoint
		opts.NavTimeout = cfg.NavTimeout
		opts.ActionTimeout = cfg.ActionTimeout
		return browser.New(opts)
	}
	drv, err := newDriver()
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		return 1
	}
	defer drv.Close()

	orch, err := session.New(cfg, rec, drv, newDriver)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}

	if cfg.StatusAddr != "" {
		srv := api.NewServer(cfg.StatusAddr, orch.Snapshot)
		srv.Start()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// First signal: one screenshot, cancel the run (its deferred report
	// persists partial results), no further UI actions. Second signal:
	// immediate exit.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("interrupt received; capturing state and stopping")
		rec.Screenshot("interrupted")
		cancel()
		<-sigs
		os.Exit(130)
	}()

	results, err := orch.Run(ctx)
	printSummary(logger, results)
	if err != nil && ctx.Err() == nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	return 0
}

func setupLogging(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func printSummary(logger *slog.Logger, results []models.AccountResult) {
	if len(results) == 0 {
		logger.Info("run finished with no results")
		return
	}
	for _, r := range results {
		logger.Info("account result",
			"index", r.Index,
			"account", r.MaskedUsername,
			"status", string(r.Status),
			"message", r.Message)
	}
}
