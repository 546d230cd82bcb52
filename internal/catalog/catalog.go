// Package catalog persists catalog products created from Discogs releases,
// plus the imported image attachments they reference. A product carries a
// back-reference to its Discogs release ID; a unique index guarantees one
// release maps to at most one product, so concurrent duplicate imports are
// resolved by the database rather than by the racy lookup-then-create in
// application code.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"discosync/internal/storage"
)

// ErrDuplicate is returned by CreateProduct when a product for the same
// Discogs release already exists. The importer treats it as "already
// imported, re-fetch and return the winner".
var ErrDuplicate = errors.New("catalog: duplicate discogs release")

// ErrNotFound is returned when no matching record exists.
var ErrNotFound = errors.New("catalog: not found")

// Product is a catalog item created or updated from a Discogs release.
type Product struct {
	ID        string `json:"id"`
	DiscogsID int64  `json:"discogs_id"`

	Title            string `json:"title"`
	SKU              string `json:"sku"`
	Description      string `json:"description,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Price            string `json:"price,omitempty"`
	Status           string `json:"status"`
	ManageStock      bool   `json:"manage_stock"`
	StockQuantity    int    `json:"stock_quantity,omitempty"`

	// Denormalized import metadata.
	TracklistHTML string            `json:"tracklist_html,omitempty"`
	CreditsHTML   string            `json:"credits_html,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	RawRelease    json.RawMessage   `json:"raw_release,omitempty"`
	DiscogsURI    string            `json:"discogs_uri,omitempty"`
	ImportedAt    time.Time         `json:"imported_at"`
	LastSyncAt    time.Time         `json:"last_sync_at"`

	// Image linkage: one cover, ordered gallery of the rest.
	CoverAttachmentID    string   `json:"cover_attachment_id,omitempty"`
	GalleryAttachmentIDs []string `json:"gallery_attachment_ids,omitempty"`

	// Taxonomy terms, replaced as a set on each import.
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Attachment is an imported image asset, deduplicated by source URI so a
// re-import reuses the existing asset instead of re-downloading it.
type Attachment struct {
	ID        string    `json:"id"`
	SourceURI string    `json:"source_uri"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the catalog persistence contract. Implementations must be safe
// for concurrent use.
type Store interface {
	// FindByDiscogsID looks up the product holding the given release
	// back-reference. Returns ErrNotFound when absent.
	FindByDiscogsID(ctx context.Context, discogsID int64) (*Product, error)

	// GetProduct fetches a product by ID. Returns ErrNotFound when absent.
	GetProduct(ctx context.Context, id string) (*Product, error)

	// CreateProduct inserts a new product. Returns ErrDuplicate when a
	// product with the same Discogs release ID already exists.
	CreateProduct(ctx context.Context, p *Product) error

	// UpdateProduct rewrites an existing product's fields.
	UpdateProduct(ctx context.Context, p *Product) error

	// SetImages records the cover and gallery attachment linkage.
	SetImages(ctx context.Context, productID, coverID string, galleryIDs []string) error

	// ReplaceTerms set-replaces the product's categories and tags.
	ReplaceTerms(ctx context.Context, productID string, categories, tags []string) error

	// FindAttachmentBySourceURI looks up an already-imported asset.
	// Returns ErrNotFound when absent.
	FindAttachmentBySourceURI(ctx context.Context, uri string) (*Attachment, error)

	// CreateAttachment records a newly imported asset.
	CreateAttachment(ctx context.Context, a *Attachment) error
}

// NewStore creates the catalog store matching the configured backend.
func NewStore(ctx context.Context, st storage.Storage) (Store, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, st.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, st.MongoDatabase())
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", st.Type())
	}
}

// marshalStrings serializes a string slice for the JSON columns used by the
// SQL backends. nil round-trips as an empty list.
func marshalStrings(values []string) []byte {
	if len(values) == 0 {
		return []byte("[]")
	}
	data, err := json.Marshal(values)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func unmarshalStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func marshalAttributes(attrs map[string]string) []byte {
	if len(attrs) == 0 {
		return []byte("{}")
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func unmarshalAttributes(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var attrs map[string]string
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
