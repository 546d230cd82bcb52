// Package server provides the HTTP API for searching Discogs and importing
// releases into the catalog.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"discosync/internal/cache"
	"discosync/internal/core"
	"discosync/internal/discogs"
	"discosync/internal/savedsearch"
)

// DiscogsAPI is the subset of the Discogs client the handlers call.
type DiscogsAPI interface {
	Search(ctx context.Context, query string, filters core.SearchFilters, page int) (*discogs.SearchResponse, error)
	GetRelease(ctx context.Context, id int64) (*discogs.Release, error)
	GetArtist(ctx context.Context, id int64) (*discogs.ArtistDetail, error)
	GetLabel(ctx context.Context, id int64) (*discogs.LabelDetail, error)
	TestConnection(ctx context.Context) error
}

// ReleaseImporter runs one import and returns the product ID.
type ReleaseImporter interface {
	ImportRelease(ctx context.Context, releaseID int64, opts core.ImportOptions) (string, error)
}

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	api       DiscogsAPI
	importer  ReleaseImporter
	cache     cache.Store
	searches  *savedsearch.Store
	authorize core.Authorizer
}

// NewHandler creates a handler. authorize may be nil, which allows every
// operation.
func NewHandler(api DiscogsAPI, imp ReleaseImporter, cacheStore cache.Store, searches *savedsearch.Store, authorize core.Authorizer) *Handler {
	if authorize == nil {
		authorize = core.AllowAll
	}
	return &Handler{
		api:       api,
		importer:  imp,
		cache:     cacheStore,
		searches:  searches,
		authorize: authorize,
	}
}

func (h *Handler) authorized(c echo.Context, action string) error {
	if !h.authorize(requestUser(c), action) {
		return core.NewPermissionDeniedError(action)
	}
	return nil
}

// Health handles GET /health. With ?upstream=true it also verifies Discogs
// connectivity.
func (h *Handler) Health(c echo.Context) error {
	status := map[string]string{"status": "ok"}
	if c.QueryParam("upstream") == "true" {
		if err := h.api.TestConnection(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["upstream"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
		status["upstream"] = "ok"
	}
	return c.JSON(http.StatusOK, status)
}

// Search handles GET /v1/search.
func (h *Handler) Search(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return handleError(c, core.NewInvalidInputError("page must be a positive integer"))
		}
		page = parsed
	}

	filters := core.SearchFilters{
		Artist:        c.QueryParam("artist"),
		Title:         c.QueryParam("title"),
		Label:         c.QueryParam("label"),
		CatalogNumber: c.QueryParam("catno"),
		Year:          c.QueryParam("year"),
		Format:        c.QueryParam("format"),
		Country:       c.QueryParam("country"),
		Genre:         c.QueryParam("genre"),
		Style:         c.QueryParam("style"),
		Sort:          c.QueryParam("sort"),
		SortOrder:     c.QueryParam("sort_order"),
	}

	resp, err := h.api.Search(c.Request().Context(), c.QueryParam("q"), filters, page)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetRelease handles GET /v1/releases/:id.
func (h *Handler) GetRelease(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return handleError(c, err)
	}
	release, err := h.api.GetRelease(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, release)
}

// GetArtist handles GET /v1/artists/:id.
func (h *Handler) GetArtist(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return handleError(c, err)
	}
	artist, err := h.api.GetArtist(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, artist)
}

// GetLabel handles GET /v1/labels/:id.
func (h *Handler) GetLabel(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return handleError(c, err)
	}
	label, err := h.api.GetLabel(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, label)
}

// ImportRequest is the POST /v1/imports payload.
type ImportRequest struct {
	ReleaseID      int64  `json:"release_id"`
	Price          string `json:"price,omitempty"`
	Status         string `json:"status,omitempty"`
	ManageStock    bool   `json:"manage_stock,omitempty"`
	StockQuantity  int    `json:"stock_quantity,omitempty"`
	ImportImages   *bool  `json:"import_images,omitempty"`
	AutoCategorize *bool  `json:"auto_categorize,omitempty"`
	ForceUpdate    bool   `json:"force_update,omitempty"`
}

// Import handles POST /v1/imports.
func (h *Handler) Import(c echo.Context) error {
	if err := h.authorized(c, "import"); err != nil {
		return handleError(c, err)
	}

	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidInputError("invalid request body: "+err.Error()))
	}

	productID, err := h.importer.ImportRelease(c.Request().Context(), req.ReleaseID, core.ImportOptions{
		Price:          req.Price,
		Status:         req.Status,
		ManageStock:    req.ManageStock,
		StockQuantity:  req.StockQuantity,
		ImportImages:   req.ImportImages,
		AutoCategorize: req.AutoCategorize,
		ForceUpdate:    req.ForceUpdate,
	})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"product_id": productID})
}

// FlushCache handles DELETE /v1/cache.
func (h *Handler) FlushCache(c echo.Context) error {
	if err := h.authorized(c, "manage"); err != nil {
		return handleError(c, err)
	}
	deleted, err := h.cache.Flush(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": deleted})
}

// CacheStats handles GET /v1/cache/stats.
func (h *Handler) CacheStats(c echo.Context) error {
	if err := h.authorized(c, "manage"); err != nil {
		return handleError(c, err)
	}
	count, err := h.cache.Count(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"entries": count})
}

// ListSavedSearches handles GET /v1/saved-searches.
func (h *Handler) ListSavedSearches(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}
	list, err := h.searches.List(c.Request().Context(), requestUser(c))
	if err != nil {
		return handleError(c, err)
	}
	if list == nil {
		list = []core.SavedSearch{}
	}
	return c.JSON(http.StatusOK, map[string]any{"saved_searches": list})
}

// SaveSearchRequest is the POST /v1/saved-searches payload.
type SaveSearchRequest struct {
	Name    string            `json:"name"`
	Query   string            `json:"query,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// SaveSearch handles POST /v1/saved-searches.
func (h *Handler) SaveSearch(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}
	var req SaveSearchRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidInputError("invalid request body: "+err.Error()))
	}
	saved, err := h.searches.Save(c.Request().Context(), requestUser(c), req.Name, req.Query, req.Filters)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// DeleteSavedSearch handles DELETE /v1/saved-searches/:id.
func (h *Handler) DeleteSavedSearch(c echo.Context) error {
	if err := h.authorized(c, "search"); err != nil {
		return handleError(c, err)
	}
	if err := h.searches.Delete(c.Request().Context(), requestUser(c), c.Param("id")); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewInvalidInputError("id must be a positive integer")
	}
	return id, nil
}

// handleError converts typed errors to HTTP responses.
func handleError(c echo.Context, err error) error {
	var typed *core.Error
	if errors.As(err, &typed) {
		return c.JSON(typed.HTTPStatusCode(), typed.ToJSON())
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": err.Error(),
		},
	})
}
