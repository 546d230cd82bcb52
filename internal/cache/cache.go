// Package cache provides the expiring key-value store used by the Discogs
// client and rate limiter. Supports an in-memory backend for single-instance
// deployments and Redis for multi-instance deployments.
package cache

import (
	"context"
	"time"
)

// Store defines the cache contract. Implementations must be safe for
// concurrent use. There is no eviction policy beyond TTL expiry; this is
// an expiring map, not an LRU.
type Store interface {
	// Get retrieves a value. Returns nil, false if absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Flush removes every entry owned by this store and returns the count.
	Flush(ctx context.Context) (int, error)

	// Count returns the number of live entries, for diagnostics.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
