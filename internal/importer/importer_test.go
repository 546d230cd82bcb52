package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"discosync/internal/catalog"
	"discosync/internal/core"
	"discosync/internal/discogs"
)

type fakeFetcher struct {
	release *discogs.Release
	err     error
	calls   int
}

func (f *fakeFetcher) GetRelease(ctx context.Context, id int64) (*discogs.Release, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.release, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCatalogStore(t *testing.T) catalog.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "catalog.db")+"?_journal=WAL")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := catalog.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func sampleRelease() *discogs.Release {
	return &discogs.Release{
		ID:          249504,
		Title:       "Selected Ambient Works 85-92",
		ArtistsSort: "Aphex Twin",
		Year:        1992,
		Country:     "Belgium",
		Notes:       "Landmark ambient techno.",
		URI:         "https://www.discogs.com/release/249504",
		Genres:      []string{"Electronic"},
		Styles:      []string{"Ambient", "Techno"},
		Labels:      []discogs.Label{{Name: "Apollo", CatalogNumber: "AMB 3922 LP"}},
		Formats:     []discogs.Format{{Name: "LP", Quantity: "2", Descriptions: []string{"Album"}}},
		Tracklist:   []discogs.Track{{Position: "A1", Title: "Xtal", Duration: "4:51"}},
		ExtraArtists: []discogs.Credit{
			{Role: "Written-By", Name: "Richard D. James"},
		},
		Raw: json.RawMessage(`{"id":249504}`),
	}
}

func newImporter(fetcher ReleaseFetcher, store catalog.Store, images ImageImporter) *Importer {
	defaults := DefaultOptions()
	defaults.SKUPrefix = "LDG"
	defaults.Price = "19.99"
	return New(fetcher, store, images, defaults, Hooks{}, discardLogger())
}

func TestImportCreatesProduct(t *testing.T) {
	store := newCatalogStore(t)
	fetcher := &fakeFetcher{release: sampleRelease()}
	imp := newImporter(fetcher, store, nil)
	ctx := context.Background()

	id, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportRelease failed: %v", err)
	}

	p, err := store.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Title != "Aphex Twin - Selected Ambient Works 85-92" {
		t.Errorf("unexpected title: %q", p.Title)
	}
	if p.SKU != "LDG249504" {
		t.Errorf("expected sku LDG249504, got %q", p.SKU)
	}
	if p.Price != "19.99" {
		t.Errorf("expected default price applied, got %q", p.Price)
	}
	if p.Status != "draft" {
		t.Errorf("expected default status draft, got %q", p.Status)
	}
	if p.TracklistHTML == "" || p.CreditsHTML == "" {
		t.Error("expected rendered tracklist and credits fragments")
	}
	if string(p.RawRelease) != `{"id":249504}` {
		t.Errorf("raw snapshot mismatch: %s", p.RawRelease)
	}
	if p.Attributes["catalog_number"] != "AMB 3922 LP" {
		t.Errorf("unexpected attributes: %v", p.Attributes)
	}
	// Auto-categorize defaults on: genres become categories, styles and
	// format names become tags.
	if len(p.Categories) != 1 || p.Categories[0] != "Electronic" {
		t.Errorf("unexpected categories: %v", p.Categories)
	}
	if len(p.Tags) != 3 || p.Tags[0] != "Ambient" || p.Tags[2] != "LP" {
		t.Errorf("unexpected tags: %v", p.Tags)
	}
}

func TestImportIdempotentWithoutForce(t *testing.T) {
	store := newCatalogStore(t)
	fetcher := &fakeFetcher{release: sampleRelease()}
	imp := newImporter(fetcher, store, nil)
	ctx := context.Background()

	first, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{})
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	second, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if first != second {
		t.Errorf("expected same product id, got %s then %s", first, second)
	}

	// The second import must not touch the stored product.
	p, err := store.GetProduct(ctx, first)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Price != "19.99" {
		t.Errorf("product modified by idempotent re-import: price=%q", p.Price)
	}
}

func TestForcedUpdateReusesProduct(t *testing.T) {
	store := newCatalogStore(t)
	fetcher := &fakeFetcher{release: sampleRelease()}
	imp := newImporter(fetcher, store, nil)
	ctx := context.Background()

	first, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{})
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	fetcher.release.Notes = "Repress with updated liner notes."
	second, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{
		ForceUpdate: true,
		Price:       "34.99",
		Status:      "publish",
	})
	if err != nil {
		t.Fatalf("forced import failed: %v", err)
	}
	if first != second {
		t.Errorf("forced update created a duplicate: %s vs %s", first, second)
	}

	p, err := store.GetProduct(ctx, first)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Price != "34.99" || p.Status != "publish" {
		t.Errorf("options not applied on forced update: price=%q status=%q", p.Price, p.Status)
	}
	if p.Description != "<p>Repress with updated liner notes.</p>" {
		t.Errorf("derived fields not refreshed: %q", p.Description)
	}
}

func TestForcedUpdatePreservesUnsuppliedOptions(t *testing.T) {
	store := newCatalogStore(t)
	fetcher := &fakeFetcher{release: sampleRelease()}
	imp := newImporter(fetcher, store, nil)
	ctx := context.Background()

	id, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{
		Price:         "34.99",
		Status:        "publish",
		ManageStock:   true,
		StockQuantity: 3,
	})
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	// A forced re-import with no options must refresh the release-derived
	// fields only; the configured defaults (draft status, default price)
	// must not overwrite what the caller set at import time.
	if _, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{ForceUpdate: true}); err != nil {
		t.Fatalf("forced re-import failed: %v", err)
	}

	p, err := store.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Status != "publish" {
		t.Errorf("forced re-import demoted status to %q", p.Status)
	}
	if p.Price != "34.99" {
		t.Errorf("forced re-import reset price to %q", p.Price)
	}
	if !p.ManageStock || p.StockQuantity != 3 {
		t.Errorf("forced re-import clobbered stock handling: manage=%v qty=%d",
			p.ManageStock, p.StockQuantity)
	}

	t.Run("supplied options still apply", func(t *testing.T) {
		if _, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{
			ForceUpdate:   true,
			Status:        "draft",
			StockQuantity: 1,
			ManageStock:   true,
		}); err != nil {
			t.Fatalf("forced re-import failed: %v", err)
		}
		p, err := store.GetProduct(ctx, id)
		if err != nil {
			t.Fatalf("GetProduct failed: %v", err)
		}
		if p.Status != "draft" || p.StockQuantity != 1 {
			t.Errorf("explicit options not applied: status=%q qty=%d", p.Status, p.StockQuantity)
		}
	})
}

func TestImportValidation(t *testing.T) {
	imp := newImporter(&fakeFetcher{}, newCatalogStore(t), nil)

	_, err := imp.ImportRelease(context.Background(), 0, core.ImportOptions{})
	if core.KindOf(err) != core.KindInvalidInput {
		t.Errorf("expected invalid input error, got %v", err)
	}
}

func TestImportFetchFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: core.NewRateLimitedError("rate limit exceeded", 30)}
	imp := newImporter(fetcher, newCatalogStore(t), nil)

	_, err := imp.ImportRelease(context.Background(), 249504, core.ImportOptions{})
	if core.KindOf(err) != core.KindUpstreamRateLimited {
		t.Errorf("expected rate limited error to propagate, got %v", err)
	}
}

func TestImageEnrichmentTolerance(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		if r.URL.Path == "/broken.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	store := newCatalogStore(t)
	release := sampleRelease()
	release.Images = []discogs.Image{
		{Type: "secondary", URI: srv.URL + "/back.jpg"},
		{Type: "primary", URI: srv.URL + "/front.jpg"},
		{Type: "secondary", URI: srv.URL + "/broken.jpg"},
	}
	images := NewImageImporter(srv.Client(), store, t.TempDir(), discardLogger())
	imp := newImporter(&fakeFetcher{release: release}, store, images)
	ctx := context.Background()

	id, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{})
	if err != nil {
		t.Fatalf("import with one broken image failed: %v", err)
	}

	p, err := store.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	// Primary becomes the cover even though it was listed second; the
	// broken secondary is skipped.
	if p.CoverAttachmentID == "" {
		t.Fatal("expected a cover attachment")
	}
	cover, err := store.FindAttachmentBySourceURI(ctx, srv.URL+"/front.jpg")
	if err != nil || cover.ID != p.CoverAttachmentID {
		t.Errorf("expected primary image as cover, got %v (err %v)", p.CoverAttachmentID, err)
	}
	if len(p.GalleryAttachmentIDs) != 1 {
		t.Errorf("expected one gallery attachment, got %v", p.GalleryAttachmentIDs)
	}

	t.Run("forced re-import reuses assets", func(t *testing.T) {
		servedBefore := served
		if _, err := imp.ImportRelease(ctx, 249504, core.ImportOptions{ForceUpdate: true}); err != nil {
			t.Fatalf("forced re-import failed: %v", err)
		}
		// Only the previously failed image is re-attempted.
		if got := served - servedBefore; got != 1 {
			t.Errorf("expected 1 download on re-import, got %d", got)
		}
	})
}

func TestImportImagesDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("image downloaded despite import_images=false")
	}))
	defer srv.Close()

	store := newCatalogStore(t)
	release := sampleRelease()
	release.Images = []discogs.Image{{Type: "primary", URI: srv.URL + "/front.jpg"}}
	images := NewImageImporter(srv.Client(), store, t.TempDir(), discardLogger())
	imp := newImporter(&fakeFetcher{release: release}, store, images)

	off := false
	if _, err := imp.ImportRelease(context.Background(), 249504, core.ImportOptions{ImportImages: &off}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
}

func TestDuplicateCreateReturnsWinner(t *testing.T) {
	store := newCatalogStore(t)
	fetcher := &fakeFetcher{release: sampleRelease()}
	imp := newImporter(fetcher, store, nil)
	ctx := context.Background()

	// Simulate a concurrent import landing between lookup and create by
	// racing through a store wrapper that inserts a competing product on
	// the first lookup miss.
	racing := &racingStore{Store: store, imp: imp}
	impRaced := newImporter(fetcher, racing, nil)

	id, err := impRaced.ImportRelease(ctx, 249504, core.ImportOptions{})
	if err != nil {
		t.Fatalf("import through duplicate create failed: %v", err)
	}
	winner, err := store.FindByDiscogsID(ctx, 249504)
	if err != nil {
		t.Fatalf("FindByDiscogsID failed: %v", err)
	}
	if id != winner.ID {
		t.Errorf("expected winner %s, got %s", winner.ID, id)
	}
}

// racingStore makes the first CreateProduct lose to a competing insert.
type racingStore struct {
	catalog.Store
	imp   *Importer
	raced bool
}

func (r *racingStore) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if !r.raced {
		r.raced = true
		if _, err := r.imp.ImportRelease(ctx, p.DiscogsID, core.ImportOptions{}); err != nil {
			return err
		}
	}
	return r.Store.CreateProduct(ctx, p)
}
