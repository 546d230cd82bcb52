// Package importer reconciles Discogs releases into catalog products. Each
// import runs Fetch, Lookup, Create-or-Update, then best-effort Enrich:
// once the base product is committed, image and taxonomy failures are
// logged and skipped rather than failing the import.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"discosync/internal/catalog"
	"discosync/internal/core"
	"discosync/internal/discogs"
)

// ReleaseFetcher is the subset of the Discogs client the importer needs.
type ReleaseFetcher interface {
	GetRelease(ctx context.Context, id int64) (*discogs.Release, error)
}

// Defaults fill in import options the caller leaves unset.
type Defaults struct {
	Price          string
	Status         string
	SKUPrefix      string
	ImportImages   bool
	AutoCategorize bool
}

// DefaultOptions returns the stock defaults used when no configuration
// overrides them.
func DefaultOptions() Defaults {
	return Defaults{
		Status:         "draft",
		SKUPrefix:      "DSC",
		ImportImages:   true,
		AutoCategorize: true,
	}
}

// Hooks observe import outcomes for metrics. All fields are optional.
type Hooks struct {
	OnImport func(outcome string)
}

func (h Hooks) imported(outcome string) {
	if h.OnImport != nil {
		h.OnImport(outcome)
	}
}

// Importer maps releases onto catalog products.
type Importer struct {
	releases ReleaseFetcher
	store    catalog.Store
	images   ImageImporter
	defaults Defaults
	hooks    Hooks
	log      *slog.Logger

	now func() time.Time
}

// New builds an Importer. images may be nil when image import is disabled
// globally.
func New(releases ReleaseFetcher, store catalog.Store, images ImageImporter, defaults Defaults, hooks Hooks, log *slog.Logger) *Importer {
	return &Importer{
		releases: releases,
		store:    store,
		images:   images,
		defaults: defaults,
		hooks:    hooks,
		log:      log,
		now:      time.Now,
	}
}

// ImportRelease imports one release and returns the product ID. Repeated
// imports of the same release without ForceUpdate return the existing
// product untouched. With ForceUpdate the product's derived fields are
// rebuilt and enrichment re-runs; enrichment steps reuse already-imported
// assets and set-replace taxonomy terms, so re-running them is safe.
func (i *Importer) ImportRelease(ctx context.Context, releaseID int64, opts core.ImportOptions) (string, error) {
	if releaseID <= 0 {
		return "", core.NewInvalidInputError("release id must be a positive integer")
	}
	// Defaults fill the create path and the enrichment toggles. The update
	// path keeps the caller's raw options: an omitted price or status on a
	// forced re-import means "leave it alone", not "reset to the default".
	filled := i.applyDefaults(opts)

	release, err := i.releases.GetRelease(ctx, releaseID)
	if err != nil {
		i.log.Error("release fetch failed", "release_id", releaseID, "error", err)
		i.hooks.imported("failed")
		return "", err
	}

	existing, err := i.store.FindByDiscogsID(ctx, releaseID)
	switch {
	case err == nil && !opts.ForceUpdate:
		i.log.Info("release already imported, skipping",
			"release_id", releaseID, "product_id", existing.ID)
		i.hooks.imported("skipped")
		return existing.ID, nil

	case err == nil:
		if err := i.updateProduct(ctx, existing, release, opts); err != nil {
			i.hooks.imported("failed")
			return "", err
		}
		i.enrich(ctx, existing.ID, release, filled)
		i.log.Info("release re-imported", "release_id", releaseID, "product_id", existing.ID)
		i.hooks.imported("updated")
		return existing.ID, nil

	case errors.Is(err, catalog.ErrNotFound):
		id, err := i.createProduct(ctx, release, filled)
		if err != nil {
			i.hooks.imported("failed")
			return "", err
		}
		i.enrich(ctx, id, release, filled)
		i.log.Info("release imported", "release_id", releaseID, "product_id", id)
		i.hooks.imported("created")
		return id, nil

	default:
		i.log.Error("product lookup failed", "release_id", releaseID, "error", err)
		i.hooks.imported("failed")
		return "", fmt.Errorf("failed to look up product: %w", err)
	}
}

func (i *Importer) applyDefaults(opts core.ImportOptions) core.ImportOptions {
	if opts.Price == "" {
		opts.Price = i.defaults.Price
	}
	if opts.Status == "" {
		opts.Status = i.defaults.Status
	}
	if opts.ImportImages == nil {
		v := i.defaults.ImportImages
		opts.ImportImages = &v
	}
	if opts.AutoCategorize == nil {
		v := i.defaults.AutoCategorize
		opts.AutoCategorize = &v
	}
	return opts
}

func (i *Importer) createProduct(ctx context.Context, release *discogs.Release, opts core.ImportOptions) (string, error) {
	now := i.now().UTC()
	p := &catalog.Product{
		ID:            uuid.New().String(),
		DiscogsID:     release.ID,
		SKU:           fmt.Sprintf("%s%d", i.defaults.SKUPrefix, release.ID),
		Price:         opts.Price,
		Status:        opts.Status,
		ManageStock:   opts.ManageStock,
		StockQuantity: opts.StockQuantity,
		ImportedAt:    now,
	}
	i.applyRelease(p, release, now)

	if err := i.store.CreateProduct(ctx, p); err != nil {
		// A concurrent import created the product between our lookup and
		// insert; the unique index on the release ID resolves the race.
		// Return the winner.
		if errors.Is(err, catalog.ErrDuplicate) {
			winner, ferr := i.store.FindByDiscogsID(ctx, release.ID)
			if ferr != nil {
				return "", fmt.Errorf("failed to fetch winning product after duplicate create: %w", ferr)
			}
			i.log.Info("concurrent import won the create, returning existing product",
				"release_id", release.ID, "product_id", winner.ID)
			return winner.ID, nil
		}
		i.log.Error("product create failed", "release_id", release.ID, "error", err)
		return "", fmt.Errorf("failed to create product: %w", err)
	}
	return p.ID, nil
}

// updateProduct rewrites the release-derived fields and applies only the
// options the caller explicitly supplied. Price, status and stock handling
// carry over from the stored product otherwise, so a forced re-import never
// demotes a published product or clears stock management.
func (i *Importer) updateProduct(ctx context.Context, p *catalog.Product, release *discogs.Release, opts core.ImportOptions) error {
	if opts.Price != "" {
		p.Price = opts.Price
	}
	if opts.Status != "" {
		p.Status = opts.Status
	}
	if opts.StockQuantity > 0 {
		p.ManageStock = opts.ManageStock
		p.StockQuantity = opts.StockQuantity
	}
	i.applyRelease(p, release, i.now().UTC())

	if err := i.store.UpdateProduct(ctx, p); err != nil {
		i.log.Error("product update failed",
			"release_id", release.ID, "product_id", p.ID, "error", err)
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// applyRelease rewrites the product's release-derived fields.
func (i *Importer) applyRelease(p *catalog.Product, release *discogs.Release, now time.Time) {
	p.Title = DisplayTitle(release)
	p.Description = Description(release)
	p.ShortDescription = ShortDescription(release)
	p.TracklistHTML = TracklistHTML(release.Tracklist)
	p.CreditsHTML = CreditsHTML(release.ExtraArtists)
	p.Attributes = Attributes(release)
	p.RawRelease = release.Raw
	p.DiscogsURI = release.URI
	p.LastSyncAt = now
}

// enrich runs the tolerant secondary phase. The base product is already
// committed; nothing here may fail the import.
func (i *Importer) enrich(ctx context.Context, productID string, release *discogs.Release, opts core.ImportOptions) {
	if *opts.ImportImages && i.images != nil && len(release.Images) > 0 {
		coverID, galleryIDs := i.images.Import(ctx, release.Images)
		if coverID != "" || len(galleryIDs) > 0 {
			if err := i.store.SetImages(ctx, productID, coverID, galleryIDs); err != nil {
				i.log.Warn("failed to link product images",
					"release_id", release.ID, "product_id", productID, "error", err)
			}
		}
	}

	if *opts.AutoCategorize {
		categories, tags := taxonomyTerms(release)
		if len(categories) > 0 || len(tags) > 0 {
			if err := i.store.ReplaceTerms(ctx, productID, categories, tags); err != nil {
				i.log.Warn("failed to assign taxonomy terms",
					"release_id", release.ID, "product_id", productID, "error", err)
			}
		}
	}
}

// taxonomyTerms maps genres to categories and styles plus format names to
// tags, deduplicated in first-seen order.
func taxonomyTerms(release *discogs.Release) (categories, tags []string) {
	categories = dedupeTerms(release.Genres)

	var raw []string
	raw = append(raw, release.Styles...)
	for _, f := range release.Formats {
		raw = append(raw, f.Name)
	}
	tags = dedupeTerms(raw)
	return categories, tags
}

func dedupeTerms(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
