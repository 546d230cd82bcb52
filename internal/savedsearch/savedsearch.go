// Package savedsearch stores per-user saved Discogs searches. Entries are
// written without a TTL and must outlive both API-response cache flushes
// and process restarts: point the Store at a dedicated backend instance
// with its own key prefix, and use the redis backend in deployments where
// saved searches need to survive a restart. The memory backend keeps them
// for the life of the process only.
package savedsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"discosync/internal/cache"
	"discosync/internal/core"
)

const keyPrefix = "savedsearch:"

// Store manages saved searches. Each user holds at most
// core.MaxSavedSearches entries; saves past the cap are rejected rather
// than evicting older entries.
type Store struct {
	cache cache.Store

	now   func() time.Time
	newID func() string
}

// New builds a Store on the given cache backend.
func New(c cache.Store) *Store {
	return &Store{
		cache: c,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

func userKey(user string) string {
	return keyPrefix + user
}

// List returns the user's saved searches in save order.
func (s *Store) List(ctx context.Context, user string) ([]core.SavedSearch, error) {
	if user == "" {
		return nil, core.NewInvalidInputError("user is required")
	}
	return s.load(ctx, user)
}

// Save stores a new search and returns it with its generated ID.
func (s *Store) Save(ctx context.Context, user, name, query string, filters map[string]string) (*core.SavedSearch, error) {
	if user == "" {
		return nil, core.NewInvalidInputError("user is required")
	}
	if name == "" {
		return nil, core.NewInvalidInputError("search name is required")
	}
	if query == "" && len(filters) == 0 {
		return nil, core.NewInvalidInputError("search query or filters are required")
	}

	searches, err := s.load(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(searches) >= core.MaxSavedSearches {
		return nil, core.NewInvalidInputError(
			fmt.Sprintf("saved search limit of %d reached, delete one first", core.MaxSavedSearches))
	}

	saved := core.SavedSearch{
		ID:        s.newID(),
		Name:      name,
		Query:     query,
		Filters:   filters,
		CreatedAt: s.now().UTC(),
	}
	searches = append(searches, saved)
	if err := s.persist(ctx, user, searches); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete removes one saved search by ID.
func (s *Store) Delete(ctx context.Context, user, id string) error {
	if user == "" {
		return core.NewInvalidInputError("user is required")
	}
	searches, err := s.load(ctx, user)
	if err != nil {
		return err
	}

	kept := searches[:0]
	found := false
	for _, sx := range searches {
		if sx.ID == id {
			found = true
			continue
		}
		kept = append(kept, sx)
	}
	if !found {
		return core.NewNotFoundError("saved search not found")
	}
	return s.persist(ctx, user, kept)
}

func (s *Store) load(ctx context.Context, user string) ([]core.SavedSearch, error) {
	data, ok, err := s.cache.Get(ctx, userKey(user))
	if err != nil {
		return nil, fmt.Errorf("failed to load saved searches: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var searches []core.SavedSearch
	if err := json.Unmarshal(data, &searches); err != nil {
		return nil, fmt.Errorf("failed to decode saved searches: %w", err)
	}
	return searches, nil
}

func (s *Store) persist(ctx context.Context, user string, searches []core.SavedSearch) error {
	data, err := json.Marshal(searches)
	if err != nil {
		return fmt.Errorf("failed to encode saved searches: %w", err)
	}
	if err := s.cache.Set(ctx, userKey(user), data, 0); err != nil {
		return fmt.Errorf("failed to store saved searches: %w", err)
	}
	return nil
}
