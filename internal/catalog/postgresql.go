package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const pgUniqueViolation = "23505"

// PostgreSQLStore persists the catalog in PostgreSQL using JSONB for the
// structured columns.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the schema if needed and returns the store.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	s := &PostgreSQLStore{pool: pool}
	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return s, nil
}

func (s *PostgreSQLStore) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		discogs_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		sku TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		short_description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		manage_stock BOOLEAN NOT NULL DEFAULT FALSE,
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		tracklist_html TEXT NOT NULL DEFAULT '',
		credits_html TEXT NOT NULL DEFAULT '',
		attributes JSONB NOT NULL DEFAULT '{}',
		raw_release JSONB,
		discogs_uri TEXT NOT NULL DEFAULT '',
		imported_at TIMESTAMPTZ NOT NULL,
		last_sync_at TIMESTAMPTZ NOT NULL,
		cover_attachment_id TEXT NOT NULL DEFAULT '',
		gallery_attachment_ids JSONB NOT NULL DEFAULT '[]',
		categories JSONB NOT NULL DEFAULT '[]',
		tags JSONB NOT NULL DEFAULT '[]'
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_discogs_id ON products(discogs_id);
	CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		source_uri TEXT NOT NULL UNIQUE,
		file_path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const pgProductColumns = `id, discogs_id, title, sku, description, short_description,
	price, status, manage_stock, stock_quantity, tracklist_html, credits_html,
	attributes, raw_release, discogs_uri, imported_at, last_sync_at,
	cover_attachment_id, gallery_attachment_ids, categories, tags`

func (s *PostgreSQLStore) FindByDiscogsID(ctx context.Context, discogsID int64) (*Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE discogs_id = $1`, discogsID)
	return scanPGProduct(row)
}

func (s *PostgreSQLStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE id = $1`, id)
	return scanPGProduct(row)
}

func (s *PostgreSQLStore) CreateProduct(ctx context.Context, p *Product) error {
	var rawRelease any
	if len(p.RawRelease) > 0 {
		rawRelease = []byte(p.RawRelease)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (`+pgProductColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		p.ID, p.DiscogsID, p.Title, p.SKU, p.Description, p.ShortDescription,
		p.Price, p.Status, p.ManageStock, p.StockQuantity,
		p.TracklistHTML, p.CreditsHTML,
		marshalAttributes(p.Attributes), rawRelease, p.DiscogsURI,
		p.ImportedAt, p.LastSyncAt,
		p.CoverAttachmentID, marshalStrings(p.GalleryAttachmentIDs),
		marshalStrings(p.Categories), marshalStrings(p.Tags))
	if err != nil {
		if isPGUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) UpdateProduct(ctx context.Context, p *Product) error {
	var rawRelease any
	if len(p.RawRelease) > 0 {
		rawRelease = []byte(p.RawRelease)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET
			title = $1, sku = $2, description = $3, short_description = $4,
			price = $5, status = $6, manage_stock = $7, stock_quantity = $8,
			tracklist_html = $9, credits_html = $10, attributes = $11,
			raw_release = $12, discogs_uri = $13, last_sync_at = $14
		WHERE id = $15`,
		p.Title, p.SKU, p.Description, p.ShortDescription,
		p.Price, p.Status, p.ManageStock, p.StockQuantity,
		p.TracklistHTML, p.CreditsHTML, marshalAttributes(p.Attributes),
		rawRelease, p.DiscogsURI, p.LastSyncAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgreSQLStore) SetImages(ctx context.Context, productID, coverID string, galleryIDs []string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET cover_attachment_id = $1, gallery_attachment_ids = $2
		WHERE id = $3`,
		coverID, marshalStrings(galleryIDs), productID)
	if err != nil {
		return fmt.Errorf("failed to set product images: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgreSQLStore) ReplaceTerms(ctx context.Context, productID string, categories, tags []string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET categories = $1, tags = $2
		WHERE id = $3`,
		marshalStrings(categories), marshalStrings(tags), productID)
	if err != nil {
		return fmt.Errorf("failed to replace product terms: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgreSQLStore) FindAttachmentBySourceURI(ctx context.Context, uri string) (*Attachment, error) {
	var a Attachment
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_uri, file_path, created_at
		FROM attachments WHERE source_uri = $1`, uri).
		Scan(&a.ID, &a.SourceURI, &a.FilePath, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}
	return &a, nil
}

func (s *PostgreSQLStore) CreateAttachment(ctx context.Context, a *Attachment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attachments (id, source_uri, file_path, created_at)
		VALUES ($1, $2, $3, $4)`,
		a.ID, a.SourceURI, a.FilePath, a.CreatedAt)
	if err != nil {
		if isPGUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func scanPGProduct(row pgx.Row) (*Product, error) {
	var p Product
	var attributes, gallery, categories, tags []byte
	var rawRelease []byte
	err := row.Scan(&p.ID, &p.DiscogsID, &p.Title, &p.SKU, &p.Description,
		&p.ShortDescription, &p.Price, &p.Status, &p.ManageStock, &p.StockQuantity,
		&p.TracklistHTML, &p.CreditsHTML, &attributes, &rawRelease, &p.DiscogsURI,
		&p.ImportedAt, &p.LastSyncAt, &p.CoverAttachmentID, &gallery, &categories, &tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.Attributes = unmarshalAttributes(attributes)
	if len(rawRelease) > 0 {
		p.RawRelease = rawRelease
	}
	p.GalleryAttachmentIDs = unmarshalStrings(gallery)
	p.Categories = unmarshalStrings(categories)
	p.Tags = unmarshalStrings(tags)
	return &p, nil
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
