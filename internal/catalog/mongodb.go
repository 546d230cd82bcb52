package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBStore persists the catalog in MongoDB. Products and attachments
// live in separate collections; uniqueness is enforced by indexes so
// concurrent duplicate imports lose at the database, same as the SQL
// backends.
type MongoDBStore struct {
	products    *mongo.Collection
	attachments *mongo.Collection
}

type mongoProduct struct {
	ID               string            `bson:"_id"`
	DiscogsID        int64             `bson:"discogs_id"`
	Title            string            `bson:"title"`
	SKU              string            `bson:"sku"`
	Description      string            `bson:"description"`
	ShortDescription string            `bson:"short_description"`
	Price            string            `bson:"price"`
	Status           string            `bson:"status"`
	ManageStock      bool              `bson:"manage_stock"`
	StockQuantity    int               `bson:"stock_quantity"`
	TracklistHTML    string            `bson:"tracklist_html"`
	CreditsHTML      string            `bson:"credits_html"`
	Attributes       map[string]string `bson:"attributes,omitempty"`
	RawRelease       string            `bson:"raw_release,omitempty"`
	DiscogsURI       string            `bson:"discogs_uri"`
	ImportedAt       time.Time         `bson:"imported_at"`
	LastSyncAt       time.Time         `bson:"last_sync_at"`
	CoverAttachment  string            `bson:"cover_attachment_id"`
	Gallery          []string          `bson:"gallery_attachment_ids,omitempty"`
	Categories       []string          `bson:"categories,omitempty"`
	Tags             []string          `bson:"tags,omitempty"`
}

type mongoAttachment struct {
	ID        string    `bson:"_id"`
	SourceURI string    `bson:"source_uri"`
	FilePath  string    `bson:"file_path"`
	CreatedAt time.Time `bson:"created_at"`
}

// NewMongoDBStore ensures the unique indexes and returns the store.
func NewMongoDBStore(ctx context.Context, db *mongo.Database) (*MongoDBStore, error) {
	s := &MongoDBStore{
		products:    db.Collection("products"),
		attachments: db.Collection("attachments"),
	}

	_, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "discogs_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create products index: %w", err)
	}

	_, err = s.attachments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_uri", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attachments index: %w", err)
	}

	return s, nil
}

func (s *MongoDBStore) FindByDiscogsID(ctx context.Context, discogsID int64) (*Product, error) {
	return s.findOne(ctx, bson.M{"discogs_id": discogsID})
}

func (s *MongoDBStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoDBStore) findOne(ctx context.Context, filter bson.M) (*Product, error) {
	var doc mongoProduct
	err := s.products.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return doc.toProduct(), nil
}

func (s *MongoDBStore) CreateProduct(ctx context.Context, p *Product) error {
	_, err := s.products.InsertOne(ctx, toMongoProduct(p))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *MongoDBStore) UpdateProduct(ctx context.Context, p *Product) error {
	update := bson.M{"$set": bson.M{
		"title":             p.Title,
		"sku":               p.SKU,
		"description":       p.Description,
		"short_description": p.ShortDescription,
		"price":             p.Price,
		"status":            p.Status,
		"manage_stock":      p.ManageStock,
		"stock_quantity":    p.StockQuantity,
		"tracklist_html":    p.TracklistHTML,
		"credits_html":      p.CreditsHTML,
		"attributes":        p.Attributes,
		"raw_release":       string(p.RawRelease),
		"discogs_uri":       p.DiscogsURI,
		"last_sync_at":      p.LastSyncAt,
	}}
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoDBStore) SetImages(ctx context.Context, productID, coverID string, galleryIDs []string) error {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": productID}, bson.M{"$set": bson.M{
		"cover_attachment_id":    coverID,
		"gallery_attachment_ids": galleryIDs,
	}})
	if err != nil {
		return fmt.Errorf("failed to set product images: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoDBStore) ReplaceTerms(ctx context.Context, productID string, categories, tags []string) error {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": productID}, bson.M{"$set": bson.M{
		"categories": categories,
		"tags":       tags,
	}})
	if err != nil {
		return fmt.Errorf("failed to replace product terms: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoDBStore) FindAttachmentBySourceURI(ctx context.Context, uri string) (*Attachment, error) {
	var doc mongoAttachment
	err := s.attachments.FindOne(ctx, bson.M{"source_uri": uri}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}
	return &Attachment{ID: doc.ID, SourceURI: doc.SourceURI, FilePath: doc.FilePath, CreatedAt: doc.CreatedAt}, nil
}

func (s *MongoDBStore) CreateAttachment(ctx context.Context, a *Attachment) error {
	_, err := s.attachments.InsertOne(ctx, mongoAttachment{
		ID: a.ID, SourceURI: a.SourceURI, FilePath: a.FilePath, CreatedAt: a.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func toMongoProduct(p *Product) mongoProduct {
	return mongoProduct{
		ID:               p.ID,
		DiscogsID:        p.DiscogsID,
		Title:            p.Title,
		SKU:              p.SKU,
		Description:      p.Description,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		Status:           p.Status,
		ManageStock:      p.ManageStock,
		StockQuantity:    p.StockQuantity,
		TracklistHTML:    p.TracklistHTML,
		CreditsHTML:      p.CreditsHTML,
		Attributes:       p.Attributes,
		RawRelease:       string(p.RawRelease),
		DiscogsURI:       p.DiscogsURI,
		ImportedAt:       p.ImportedAt,
		LastSyncAt:       p.LastSyncAt,
		CoverAttachment:  p.CoverAttachmentID,
		Gallery:          p.GalleryAttachmentIDs,
		Categories:       p.Categories,
		Tags:             p.Tags,
	}
}

func (d mongoProduct) toProduct() *Product {
	p := &Product{
		ID:                   d.ID,
		DiscogsID:            d.DiscogsID,
		Title:                d.Title,
		SKU:                  d.SKU,
		Description:          d.Description,
		ShortDescription:     d.ShortDescription,
		Price:                d.Price,
		Status:               d.Status,
		ManageStock:          d.ManageStock,
		StockQuantity:        d.StockQuantity,
		TracklistHTML:        d.TracklistHTML,
		CreditsHTML:          d.CreditsHTML,
		Attributes:           d.Attributes,
		DiscogsURI:           d.DiscogsURI,
		ImportedAt:           d.ImportedAt,
		LastSyncAt:           d.LastSyncAt,
		CoverAttachmentID:    d.CoverAttachment,
		GalleryAttachmentIDs: d.Gallery,
		Categories:           d.Categories,
		Tags:                 d.Tags,
	}
	if d.RawRelease != "" {
		p.RawRelease = []byte(d.RawRelease)
	}
	return p
}
