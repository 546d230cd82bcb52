// Package discogs provides the rate-limited, caching, retrying client for
// the Discogs database API.
package discogs

import "encoding/json"

// Release is a snapshot of a Discogs release. Every field sourced from the
// API is optional: the payload is loosely typed and no field is guaranteed
// present, so consumers must read defensively.
type Release struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title,omitempty"`
	ArtistsSort string   `json:"artists_sort,omitempty"`
	Artists     []Artist `json:"artists,omitempty"`
	Year        int      `json:"year,omitempty"`
	Country     string   `json:"country,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	URI         string   `json:"uri,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Styles      []string `json:"styles,omitempty"`
	Labels      []Label  `json:"labels,omitempty"`
	Formats     []Format `json:"formats,omitempty"`
	Images      []Image  `json:"images,omitempty"`
	Tracklist   []Track  `json:"tracklist,omitempty"`
	// ExtraArtists carries per-release credits (producer, mix, etc.)
	ExtraArtists []Credit `json:"extraartists,omitempty"`

	// Raw is the undecoded response body, persisted with the imported
	// product so re-imports can diff against the original snapshot.
	Raw json.RawMessage `json:"-"`
}

// Artist is a release contributor reference.
type Artist struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Join string `json:"join,omitempty"`
}

// Credit is an extra-artist entry with the role they performed.
type Credit struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Label is a record label reference on a release.
type Label struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name,omitempty"`
	CatalogNumber string `json:"catno,omitempty"`
	Profile       string `json:"profile,omitempty"`
	URI           string `json:"uri,omitempty"`
}

// Format describes the physical format of a release (Vinyl, CD, ...).
type Format struct {
	Name         string   `json:"name,omitempty"`
	Quantity     string   `json:"qty,omitempty"`
	Descriptions []string `json:"descriptions,omitempty"`
}

// Image is a release image. Type is "primary" or "secondary".
type Image struct {
	Type   string `json:"type,omitempty"`
	URI    string `json:"uri,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Track is one tracklist entry. Index and medley tracks nest their parts
// under SubTracks, recursively.
type Track struct {
	Position  string  `json:"position,omitempty"`
	Title     string  `json:"title,omitempty"`
	Duration  string  `json:"duration,omitempty"`
	SubTracks []Track `json:"sub_tracks,omitempty"`
}

// ArtistDetail is a full artist record fetched by ID.
type ArtistDetail struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name,omitempty"`
	RealName       string   `json:"realname,omitempty"`
	Profile        string   `json:"profile,omitempty"`
	URI            string   `json:"uri,omitempty"`
	NameVariations []string `json:"namevariations,omitempty"`
}

// LabelDetail is a full label record fetched by ID.
type LabelDetail struct {
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	Profile string `json:"profile,omitempty"`
	URI     string `json:"uri,omitempty"`
}

// SearchResponse is a page of search results with pagination metadata.
type SearchResponse struct {
	Pagination Pagination     `json:"pagination"`
	Results    []SearchResult `json:"results"`
}

// Pagination describes the result window of a search response.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// SearchResult is a single search hit. Year is a string in search payloads
// even though it is numeric on full release records.
type SearchResult struct {
	ID            int64    `json:"id"`
	Type          string   `json:"type,omitempty"`
	Title         string   `json:"title,omitempty"`
	Year          string   `json:"year,omitempty"`
	Country       string   `json:"country,omitempty"`
	CatalogNumber string   `json:"catno,omitempty"`
	Thumb         string   `json:"thumb,omitempty"`
	CoverImage    string   `json:"cover_image,omitempty"`
	Genres        []string `json:"genre,omitempty"`
	Styles        []string `json:"style,omitempty"`
	Labels        []string `json:"label,omitempty"`
	Formats       []string `json:"format,omitempty"`
}
