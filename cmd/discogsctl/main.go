// Package main provides a small CLI for one-shot operations against the
// Discogs API and the local catalog.
//
// Usage:
//
//	DISCOGS_TOKEN=xxx go run ./cmd/discogsctl search -q "selected ambient works"
//	DISCOGS_TOKEN=xxx go run ./cmd/discogsctl import -release 249504 -force
//	go run ./cmd/discogsctl flush
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"discosync/config"
	"discosync/internal/cache"
	"discosync/internal/catalog"
	"discosync/internal/core"
	"discosync/internal/discogs"
	"discosync/internal/httpclient"
	"discosync/internal/importer"
	"discosync/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	// The CLI is quiet by default; imports still log enrichment skips.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	switch os.Args[1] {
	case "search":
		runSearch(cfg, os.Args[2:])
	case "import":
		runImport(cfg, logger, os.Args[2:])
	case "flush":
		runFlush(cfg)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: discogsctl <search|import|flush> [flags]")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func newClient(cfg *config.Config) (*discogs.Client, cache.Store) {
	store, err := newCacheStore(cfg)
	if err != nil {
		fatal("failed to initialize cache: %v", err)
	}
	client := discogs.NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), discogs.Config{
		Token:          cfg.Discogs.Token,
		ConsumerKey:    cfg.Discogs.ConsumerKey,
		ConsumerSecret: cfg.Discogs.ConsumerSecret,
		UserAgent:      cfg.Discogs.UserAgent,
		SearchTTL:      cfg.Cache.SearchTTL,
		RecordTTL:      cfg.Cache.RecordTTL,
	}, store, discogs.Hooks{})
	return client, store
}

func newCacheStore(cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedisStore(cache.RedisConfig{URL: cfg.Cache.RedisURL})
	}
	return cache.NewMemoryStore(), nil
}

func runSearch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("q", "", "free-text query")
	artist := fs.String("artist", "", "artist filter")
	format := fs.String("format", "", "format filter, e.g. Vinyl")
	year := fs.String("year", "", "year filter")
	page := fs.Int("page", 1, "result page")
	fs.Parse(args)

	client, store := newClient(cfg)
	defer store.Close()

	resp, err := client.Search(context.Background(), *query, core.SearchFilters{
		Artist: *artist,
		Format: *format,
		Year:   *year,
	}, *page)
	if err != nil {
		fatal("search failed: %v", err)
	}

	fmt.Printf("page %d/%d, %d results\n", resp.Pagination.Page, resp.Pagination.Pages, resp.Pagination.Items)
	for _, r := range resp.Results {
		fmt.Printf("  %8d  %s (%s, %s)\n", r.ID, r.Title, r.Year, r.CatalogNumber)
	}
}

func runImport(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	releaseID := fs.Int64("release", 0, "Discogs release ID")
	price := fs.String("price", "", "product price")
	status := fs.String("status", "", "product status")
	force := fs.Bool("force", false, "re-import an already imported release")
	asJSON := fs.Bool("json", false, "print the imported product as JSON")
	fs.Parse(args)

	ctx := context.Background()

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
		fatal("failed to initialize storage: %v", err)
	}
	defer store.Close()

	catalogStore, err := catalog.NewStore(ctx, store)
	if err != nil {
		fatal("failed to initialize catalog: %v", err)
	}

	client, cacheStore := newClient(cfg)
	defer cacheStore.Close()

	images := importer.NewImageImporter(httpclient.NewDefaultHTTPClient(), catalogStore, cfg.Import.ImageDir, logger)
	imp := importer.New(client, catalogStore, images, importer.Defaults{
		Price:          cfg.Import.Price,
		Status:         cfg.Import.Status,
		SKUPrefix:      cfg.Import.SKUPrefix,
		ImportImages:   cfg.Import.ImportImages,
		AutoCategorize: cfg.Import.AutoCategorize,
	}, importer.Hooks{}, logger)

	productID, err := imp.ImportRelease(ctx, *releaseID, core.ImportOptions{
		Price:       *price,
		Status:      *status,
		ForceUpdate: *force,
	})
	if err != nil {
		fatal("import failed: %v", err)
	}

	if *asJSON {
		product, err := catalogStore.GetProduct(ctx, productID)
		if err != nil {
			fatal("failed to load imported product: %v", err)
		}
		printJSON(os.Stdout, product)
		return
	}
	fmt.Printf("imported release %d as product %s\n", *releaseID, productID)
}

func runFlush(cfg *config.Config) {
	store, err := newCacheStore(cfg)
	if err != nil {
		fatal("failed to initialize cache: %v", err)
	}
	defer store.Close()

	deleted, err := store.Flush(context.Background())
	if err != nil {
		fatal("cache flush failed: %v", err)
	}
	fmt.Printf("deleted %d cache entries\n", deleted)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
