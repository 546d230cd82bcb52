// Package main is the entry point for the discosync server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"discosync/config"
	"discosync/internal/cache"
	"discosync/internal/catalog"
	"discosync/internal/discogs"
	"discosync/internal/httpclient"
	"discosync/internal/importer"
	"discosync/internal/observability"
	"discosync/internal/savedsearch"
	"discosync/internal/server"
	"discosync/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("starting discosync",
		"cache_backend", cfg.Cache.Backend,
		"storage_type", cfg.Storage.Type,
	)

	if cfg.Discogs.Token == "" && cfg.Discogs.ConsumerKey == "" {
		slog.Error("discogs credentials required: set DISCOGS_TOKEN or DISCOGS_CONSUMER_KEY/DISCOGS_CONSUMER_SECRET")
		os.Exit(1)
	}
	if cfg.Server.MasterKey == "" {
		slog.Warn("MASTER_KEY not set - API running without authentication")
	}

	ctx := context.Background()

	// Response cache and the separate saved-search store. Saved searches
	// never expire and must survive DELETE /v1/cache, so they get their
	// own store instance (and key prefix on redis).
	cacheStore, err := newCacheStore(cfg.Cache, "discosync:")
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheStore.Close()

	searchStore, err := newCacheStore(cfg.Cache, "discosync:saved:")
	if err != nil {
		slog.Error("failed to initialize saved-search store", "error", err)
		os.Exit(1)
	}
	defer searchStore.Close()

	store, err := storage.New(ctx, storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLitePath},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgresURL,
			MaxConns: int(cfg.Storage.PostgresMaxConn),
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoURL,
			Database: cfg.Storage.MongoDatabase,
		},
	})
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	catalogStore, err := catalog.NewStore(ctx, store)
	if err != nil {
		slog.Error("failed to initialize catalog", "error", err)
		os.Exit(1)
	}

	var clientHooks discogs.Hooks
	var importHooks importer.Hooks
	if cfg.Server.MetricsEnabled {
		metrics := observability.New(prometheus.DefaultRegisterer)
		clientHooks = metrics.ClientHooks()
		importHooks = metrics.ImporterHooks()
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Server.MetricsEndpoint)
	}

	httpClient := httpclient.NewDefaultHTTPClient()
	client := discogs.NewWithHTTPClient(httpClient, discogs.Config{
		Token:          cfg.Discogs.Token,
		ConsumerKey:    cfg.Discogs.ConsumerKey,
		ConsumerSecret: cfg.Discogs.ConsumerSecret,
		UserAgent:      cfg.Discogs.UserAgent,
		SearchTTL:      cfg.Cache.SearchTTL,
		RecordTTL:      cfg.Cache.RecordTTL,
	}, cacheStore, clientHooks)

	images := importer.NewImageImporter(httpClient, catalogStore, cfg.Import.ImageDir, logger)
	imp := importer.New(client, catalogStore, images, importer.Defaults{
		Price:          cfg.Import.Price,
		Status:         cfg.Import.Status,
		SKUPrefix:      cfg.Import.SKUPrefix,
		ImportImages:   cfg.Import.ImportImages,
		AutoCategorize: cfg.Import.AutoCategorize,
	}, importHooks, logger)

	handler := server.NewHandler(client, imp, cacheStore, savedsearch.New(searchStore), nil)
	srv := server.New(handler, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Server.MetricsEnabled,
		MetricsEndpoint: cfg.Server.MetricsEndpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newCacheStore(cfg config.CacheConfig, prefix string) (cache.Store, error) {
	if cfg.Backend == "redis" {
		return cache.NewRedisStore(cache.RedisConfig{URL: cfg.RedisURL, Prefix: prefix})
	}
	return cache.NewMemoryStore(), nil
}
