// Package ratelimit tracks the Discogs remaining-quota window from server
// response headers and gates outbound calls before they are made.
//
// The tracker is server-driven rather than a fixed local counter: the remote
// quota window can drift from wall-clock assumptions, and trusting the
// server's own headers avoids both over-throttling and accidental bans.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"discosync/internal/cache"
)

const (
	// StateKey is the shared cache key holding the rate-limit state.
	// One record for the whole deployment; concurrent writers race, which
	// is acceptable looseness that self-heals at the next reset window.
	StateKey = "ratelimit:discogs"

	// minStateTTL keeps the persisted state from expiring prematurely on
	// fast reset cycles.
	minStateTTL = 60 * time.Second

	headerRemaining  = "X-Discogs-Ratelimit-Remaining"
	headerReset      = "X-Discogs-Ratelimit-Reset"
	headerRetryAfter = "Retry-After"
)

// State is the persisted rate-limit snapshot derived from response headers.
type State struct {
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	LastStatus int       `json:"last_status"`
}

// Limiter gates outbound Discogs calls using state shared via a cache.Store,
// so the window survives process restarts within its TTL.
type Limiter struct {
	store cache.Store
	now   func() time.Time
}

// New creates a limiter backed by the given store.
func New(store cache.Store) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
	}
}

// Check reports whether an outbound call may proceed. When the tracked
// quota is exhausted it returns allowed=false with the seconds to wait
// until the window resets (minimum 1). Absent or expired state allows the
// call and implicitly resets tracking.
func (l *Limiter) Check(ctx context.Context) (allowed bool, retryAfter int) {
	data, ok, err := l.store.Get(ctx, StateKey)
	if err != nil {
		// A broken state store must not block outbound traffic.
		slog.Warn("rate limit state read failed", "error", err)
		return true, 0
	}
	if !ok {
		return true, 0
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("rate limit state corrupt, resetting", "error", err)
		_ = l.store.Delete(ctx, StateKey)
		return true, 0
	}

	secondsToReset := int(state.ResetAt.Sub(l.now()).Seconds())
	if secondsToReset <= 0 {
		_ = l.store.Delete(ctx, StateKey)
		return true, 0
	}

	if state.Remaining <= 0 {
		if secondsToReset < 1 {
			secondsToReset = 1
		}
		return false, secondsToReset
	}

	return true, 0
}

// Observe extracts quota signals from a response and persists the new state.
// Header lookup is case-insensitive (http.Header canonicalizes). When the
// quota headers are absent it falls back to the Retry-After hint; when no
// signal is present at all the previous state is left untouched.
func (l *Limiter) Observe(ctx context.Context, header http.Header, statusCode int) {
	remaining, hasRemaining := headerInt(header, headerRemaining)
	resetDelta, hasReset := headerInt(header, headerReset)
	retryAfter := RetryAfterSeconds(header)

	if !hasRemaining && !hasReset && retryAfter == 0 {
		return
	}

	now := l.now()
	resetAt := now
	switch {
	case hasReset:
		resetAt = now.Add(time.Duration(resetDelta) * time.Second)
	case retryAfter > 0:
		resetAt = now.Add(time.Duration(retryAfter) * time.Second)
	}

	state := State{
		Remaining:  remaining,
		ResetAt:    resetAt,
		LastStatus: statusCode,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	// TTL bounded by the reset window so state never outlives its own
	// relevance, floored so it doesn't vanish on short cycles.
	ttl := resetAt.Sub(now)
	if ttl < minStateTTL {
		ttl = minStateTTL
	}

	if err := l.store.Set(ctx, StateKey, data, ttl); err != nil {
		slog.Warn("rate limit state write failed", "error", err)
	}
}

// RetryAfterSeconds parses the server-suggested wait from response headers,
// preferring Retry-After and falling back to the Discogs reset header.
func RetryAfterSeconds(header http.Header) int {
	if v, ok := headerInt(header, headerRetryAfter); ok && v > 0 {
		return v
	}
	if v, ok := headerInt(header, headerReset); ok && v > 0 {
		return v
	}
	return 0
}

func headerInt(header http.Header, name string) (int, bool) {
	raw := header.Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
