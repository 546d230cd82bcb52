package core

import "time"

// Authorizer is the capability predicate gating each operation.
// Handlers ask it whether the given user may perform the given action
// ("search", "import", "manage") instead of talking to an identity system.
type Authorizer func(user, action string) bool

// AllowAll authorizes every action. Used by the CLI and in tests.
func AllowAll(string, string) bool { return true }

// ImportOptions controls how a release is imported as a catalog product.
// Zero values fall back to configured defaults where noted.
type ImportOptions struct {
	Price         string `json:"price,omitempty"`
	Status        string `json:"status,omitempty"` // default from config
	ManageStock   bool   `json:"manage_stock,omitempty"`
	StockQuantity int    `json:"stock_quantity,omitempty"`
	ImportImages  *bool  `json:"import_images,omitempty"`   // default from config
	AutoCategorize *bool `json:"auto_categorize,omitempty"` // default from config
	ForceUpdate   bool   `json:"force_update,omitempty"`
}

// SearchFilters are the supported Discogs search parameters beyond the free-text query.
// Empty fields are omitted from the request.
type SearchFilters struct {
	Artist        string `json:"artist,omitempty"`
	Title         string `json:"title,omitempty"`
	Label         string `json:"label,omitempty"`
	CatalogNumber string `json:"catno,omitempty"`
	Year          string `json:"year,omitempty"`
	Format        string `json:"format,omitempty"`
	Country       string `json:"country,omitempty"`
	Genre         string `json:"genre,omitempty"`
	Style         string `json:"style,omitempty"`
	Sort          string `json:"sort,omitempty"`
	SortOrder     string `json:"sort_order,omitempty"`
}

// SavedSearch is a user-persisted named set of search criteria.
type SavedSearch struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Query     string            `json:"query"`
	Filters   map[string]string `json:"filters,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// MaxSavedSearches is the per-user saved search cap. Saves past the cap
// are rejected, never evicted.
const MaxSavedSearches = 50
