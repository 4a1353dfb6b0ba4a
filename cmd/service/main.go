// cmd/service/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"commit-tracker/internal/api"
	"commit-tracker/internal/config"
	"commit-tracker/internal/feed"
	"commit-tracker/internal/ledger"
	"commit-tracker/internal/notify"
	"commit-tracker/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "ledger_driver", cfg.LedgerDriver, "feed_format", cfg.FeedFormat)

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Open the ledger; migrations run as part of opening
	store, err := ledger.Open(ctx, cfg.LedgerDriver, cfg.DBURL, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()
	logger.Info("Ledger ready")

	// 5. Initialize application components
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fetcher := feed.NewClient(feed.Format(cfg.FeedFormat), cfg.RequestTimeout, logger)
	notifier := notify.NewDiscord(notify.Options{
		WebhookURL:   cfg.WebhookURL,
		FeedURL:      cfg.FeedURL,
		Title:        cfg.EmbedTitle,
		Color:        cfg.EmbedColor,
		BotName:      cfg.BotName,
		BotAvatarURL: cfg.BotAvatarURL,
		RatePerSec:   cfg.NotifyRatePerSec,
		Timeout:      cfg.RequestTimeout,
	}, logger)

	appTracker, err := tracker.NewTracker(store, fetcher, notifier, logger, tracker.NewMetrics(registry), tracker.Settings{
		FeedURL:    cfg.FeedURL,
		Interval:   cfg.PollInterval,
		KeepLast:   cfg.KeepLast,
		TrimMargin: cfg.TrimMargin,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}

	// 6. Run the tracker and, if configured, the status server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return appTracker.Run(gctx)
	})
	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(store, registry, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			return api.Serve(gctx, srv, logger)
		})
	}

	logger.Info("Application started. Waiting for shutdown signal...")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
