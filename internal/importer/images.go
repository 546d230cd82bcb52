package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"discosync/internal/catalog"
	"discosync/internal/discogs"
)

// maxImageBytes caps a single downloaded asset. Discogs serves JPEGs well
// under this; anything larger is treated as a failed download.
const maxImageBytes = 20 << 20

// ImageImporter downloads release images into local assets. Assets are
// deduplicated by source URI: an image already imported for any product is
// reused instead of re-fetched.
type ImageImporter interface {
	Import(ctx context.Context, images []discogs.Image) (coverID string, galleryIDs []string)
}

type imageImporter struct {
	client *http.Client
	store  catalog.Store
	dir    string
	log    *slog.Logger
}

// NewImageImporter stores downloaded assets under dir, creating it on first
// use.
func NewImageImporter(client *http.Client, store catalog.Store, dir string, log *slog.Logger) ImageImporter {
	return &imageImporter{client: client, store: store, dir: dir, log: log}
}

// Import fetches images in cover-first order and returns the attachment
// linkage. Every failure is logged and skipped; an import never fails
// because an image could not be fetched.
func (im *imageImporter) Import(ctx context.Context, images []discogs.Image) (string, []string) {
	ordered := orderImages(images)
	if len(ordered) == 0 {
		return "", nil
	}

	var coverID string
	var galleryIDs []string
	for i, img := range ordered {
		id, err := im.importOne(ctx, img)
		if err != nil {
			im.log.Warn("image import failed, skipping",
				"uri", img.URI, "error", err)
			continue
		}
		if i == 0 || coverID == "" {
			coverID = id
		} else {
			galleryIDs = append(galleryIDs, id)
		}
	}
	return coverID, galleryIDs
}

func (im *imageImporter) importOne(ctx context.Context, img discogs.Image) (string, error) {
	existing, err := im.store.FindAttachmentBySourceURI(ctx, img.URI)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return "", err
	}

	filePath, err := im.download(ctx, img.URI)
	if err != nil {
		return "", err
	}

	a := &catalog.Attachment{
		ID:        uuid.New().String(),
		SourceURI: img.URI,
		FilePath:  filePath,
		CreatedAt: time.Now().UTC(),
	}
	if err := im.store.CreateAttachment(ctx, a); err != nil {
		// A concurrent import of the same image won the insert; use theirs.
		if errors.Is(err, catalog.ErrDuplicate) {
			os.Remove(filePath)
			if winner, ferr := im.store.FindAttachmentBySourceURI(ctx, img.URI); ferr == nil {
				return winner.ID, nil
			}
		}
		return "", err
	}
	return a.ID, nil
}

func (im *imageImporter) download(ctx context.Context, uri string) (string, error) {
	if err := os.MkdirAll(im.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("invalid image url: %w", err)
	}
	resp, err := im.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	filePath := filepath.Join(im.dir, uuid.New().String()+extensionFor(uri))
	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return filePath, nil
}

// orderImages puts the designated primary image first, then everything else
// in original order, deduplicated by source URI.
func orderImages(images []discogs.Image) []discogs.Image {
	var ordered []discogs.Image
	seen := make(map[string]bool)

	primaryIdx := -1
	for i, img := range images {
		if img.Type == "primary" && strings.TrimSpace(img.URI) != "" {
			primaryIdx = i
			break
		}
	}
	if primaryIdx >= 0 {
		ordered = append(ordered, images[primaryIdx])
		seen[images[primaryIdx].URI] = true
	}
	for _, img := range images {
		if strings.TrimSpace(img.URI) == "" || seen[img.URI] {
			continue
		}
		seen[img.URI] = true
		ordered = append(ordered, img)
	}
	return ordered
}

func extensionFor(uri string) string {
	ext := path.Ext(uri)
	if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
		ext = ext[:idx]
	}
	if len(ext) < 2 || len(ext) > 5 {
		return ".jpg"
	}
	return ext
}
