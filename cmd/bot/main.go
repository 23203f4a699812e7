package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketwatch/internal/alerts"
	"marketwatch/internal/bot"
	"marketwatch/internal/config"
	"marketwatch/internal/fetcher"
	"marketwatch/internal/history"
	"marketwatch/internal/httpserver"
	"marketwatch/internal/model"
	"marketwatch/internal/scheduler"
	"marketwatch/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	store, err := openStorage(cfg)
	if err != nil {
		log.Error("open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	registry := alerts.New(store, log)
	alertTable, err := store.LoadAlerts(ctx)
	if err != nil {
		log.Warn("load alerts, ignoring unreadable entries", "error", err)
	}
	registry.Load(alertTable)

	cache := history.New(store, cfg.HistorySize, log)
	historyTable, err := store.LoadHistory(ctx)
	if err != nil {
		log.Warn("load history, ignoring unreadable entries", "error", err)
	}
	cache.Load(historyTable)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create telegram client", "error", err)
		os.Exit(1)
	}
	log.Info("authorized", "username", api.Self.UserName)

	sup := scheduler.New(registry, cache, newFetcher(cfg), bot.NewNotifier(api, log), scheduler.Options{
		MinInterval:  cfg.PollIntervalMin,
		MaxInterval:  cfg.PollIntervalMax,
		FetchTimeout: cfg.FetchTimeout,
		NotifyDelay:  cfg.NotifyDelay,
		Area: model.Area{
			Latitude:  cfg.SearchLatitude,
			Longitude: cfg.SearchLongitude,
			RadiusKM:  cfg.SearchRadiusKM,
		},
	}, log)

	b := bot.New(api, sup, registry, cache, cfg, log)

	log.Info("starting bot", "storage", cfg.StorageBackend, "feed", cfg.FeedKind)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	if cfg.HTTPListenAddr != "" {
		srv := httpserver.New(cfg.HTTPListenAddr, httpserver.Deps{
			Registry:   registry,
			History:    cache,
			Supervisor: sup,
			Logger:     log,
			StartTime:  time.Now(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Error("http server", "error", err)
			}
		}()
	}

	b.Run(ctx)
	wg.Wait()

	log.Info("bot stopped")
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageBackend == config.BackendSQLite {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, err
			}
		}
		return storage.NewSQLite(cfg.DatabasePath)
	}
	return storage.NewJSONFile(cfg.DataDir)
}

func newFetcher(cfg *config.Config) scheduler.Fetcher {
	client := &http.Client{Timeout: cfg.FetchTimeout}

	var f fetcher.Fetcher
	if cfg.FeedKind == config.FeedRSS {
		f = fetcher.NewRSS(client, cfg.RSSURLTemplate)
	} else {
		f = fetcher.NewMarketplace(client, cfg.MarketplaceURL, cfg.MarketplaceCookie)
	}
	return fetcher.NewLimited(f, cfg.FetchMinGap)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
