package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore persists the catalog in SQLite. Timestamps are stored as
// RFC 3339 strings, structured fields as JSON text columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the schema if needed and returns the store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		discogs_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		sku TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		short_description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		manage_stock INTEGER NOT NULL DEFAULT 0,
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		tracklist_html TEXT NOT NULL DEFAULT '',
		credits_html TEXT NOT NULL DEFAULT '',
		attributes TEXT NOT NULL DEFAULT '{}',
		raw_release TEXT NOT NULL DEFAULT '',
		discogs_uri TEXT NOT NULL DEFAULT '',
		imported_at TEXT NOT NULL,
		last_sync_at TEXT NOT NULL,
		cover_attachment_id TEXT NOT NULL DEFAULT '',
		gallery_attachment_ids TEXT NOT NULL DEFAULT '[]',
		categories TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]'
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_discogs_id ON products(discogs_id);
	CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		source_uri TEXT NOT NULL UNIQUE,
		file_path TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const sqliteProductColumns = `id, discogs_id, title, sku, description, short_description,
	price, status, manage_stock, stock_quantity, tracklist_html, credits_html,
	attributes, raw_release, discogs_uri, imported_at, last_sync_at,
	cover_attachment_id, gallery_attachment_ids, categories, tags`

func (s *SQLiteStore) FindByDiscogsID(ctx context.Context, discogsID int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProductColumns+` FROM products WHERE discogs_id = ?`, discogsID)
	return scanSQLiteProduct(row)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProductColumns+` FROM products WHERE id = ?`, id)
	return scanSQLiteProduct(row)
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+sqliteProductColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DiscogsID, p.Title, p.SKU, p.Description, p.ShortDescription,
		p.Price, p.Status, boolToInt(p.ManageStock), p.StockQuantity,
		p.TracklistHTML, p.CreditsHTML,
		string(marshalAttributes(p.Attributes)), string(p.RawRelease), p.DiscogsURI,
		p.ImportedAt.UTC().Format(time.RFC3339Nano),
		p.LastSyncAt.UTC().Format(time.RFC3339Nano),
		p.CoverAttachmentID, string(marshalStrings(p.GalleryAttachmentIDs)),
		string(marshalStrings(p.Categories)), string(marshalStrings(p.Tags)))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			title = ?, sku = ?, description = ?, short_description = ?,
			price = ?, status = ?, manage_stock = ?, stock_quantity = ?,
			tracklist_html = ?, credits_html = ?, attributes = ?,
			raw_release = ?, discogs_uri = ?, last_sync_at = ?
		WHERE id = ?`,
		p.Title, p.SKU, p.Description, p.ShortDescription,
		p.Price, p.Status, boolToInt(p.ManageStock), p.StockQuantity,
		p.TracklistHTML, p.CreditsHTML, string(marshalAttributes(p.Attributes)),
		string(p.RawRelease), p.DiscogsURI,
		p.LastSyncAt.UTC().Format(time.RFC3339Nano), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) SetImages(ctx context.Context, productID, coverID string, galleryIDs []string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET cover_attachment_id = ?, gallery_attachment_ids = ?
		WHERE id = ?`,
		coverID, string(marshalStrings(galleryIDs)), productID)
	if err != nil {
		return fmt.Errorf("failed to set product images: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) ReplaceTerms(ctx context.Context, productID string, categories, tags []string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET categories = ?, tags = ?
		WHERE id = ?`,
		string(marshalStrings(categories)), string(marshalStrings(tags)), productID)
	if err != nil {
		return fmt.Errorf("failed to replace product terms: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) FindAttachmentBySourceURI(ctx context.Context, uri string) (*Attachment, error) {
	var a Attachment
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_uri, file_path, created_at
		FROM attachments WHERE source_uri = ?`, uri).
		Scan(&a.ID, &a.SourceURI, &a.FilePath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

func (s *SQLiteStore) CreateAttachment(ctx context.Context, a *Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, source_uri, file_path, created_at)
		VALUES (?, ?, ?, ?)`,
		a.ID, a.SourceURI, a.FilePath, a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func scanSQLiteProduct(row *sql.Row) (*Product, error) {
	var p Product
	var manageStock int
	var attributes, rawRelease, gallery, categories, tags string
	var importedAt, lastSyncAt string
	err := row.Scan(&p.ID, &p.DiscogsID, &p.Title, &p.SKU, &p.Description,
		&p.ShortDescription, &p.Price, &p.Status, &manageStock, &p.StockQuantity,
		&p.TracklistHTML, &p.CreditsHTML, &attributes, &rawRelease, &p.DiscogsURI,
		&importedAt, &lastSyncAt, &p.CoverAttachmentID, &gallery, &categories, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.ManageStock = manageStock != 0
	p.Attributes = unmarshalAttributes([]byte(attributes))
	if rawRelease != "" {
		p.RawRelease = []byte(rawRelease)
	}
	p.GalleryAttachmentIDs = unmarshalStrings([]byte(gallery))
	p.Categories = unmarshalStrings([]byte(categories))
	p.Tags = unmarshalStrings([]byte(tags))
	p.ImportedAt, _ = time.Parse(time.RFC3339Nano, importedAt)
	p.LastSyncAt, _ = time.Parse(time.RFC3339Nano, lastSyncAt)
	return &p, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
