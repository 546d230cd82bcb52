package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"discosync/internal/cache"
)

func seedState(t *testing.T, store cache.Store, state State) {
	t.Helper()
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	if err := store.Set(context.Background(), StateKey, data, time.Minute); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("AllowsWhenNoState", func(t *testing.T) {
		limiter := New(cache.NewMemoryStore())

		allowed, retryAfter := limiter.Check(ctx)
		if !allowed {
			t.Fatal("expected allow with no tracked state")
		}
		if retryAfter != 0 {
			t.Errorf("retryAfter = %d, want 0", retryAfter)
		}
	})

	t.Run("BlocksWhenQuotaExhausted", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)
		seedState(t, store, State{Remaining: 0, ResetAt: time.Now().Add(30 * time.Second), LastStatus: 429})

		allowed, retryAfter := limiter.Check(ctx)
		if allowed {
			t.Fatal("expected block with zero remaining")
		}
		if retryAfter < 28 || retryAfter > 30 {
			t.Errorf("retryAfter = %d, want ~30", retryAfter)
		}
	})

	t.Run("AllowsAfterResetPassed", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)
		seedState(t, store, State{Remaining: 0, ResetAt: time.Now().Add(-5 * time.Second), LastStatus: 429})

		allowed, _ := limiter.Check(ctx)
		if !allowed {
			t.Fatal("expected allow once reset time has passed")
		}

		// Expired state is dropped so the next window starts clean.
		if _, ok, _ := store.Get(ctx, StateKey); ok {
			t.Error("expired state should have been deleted")
		}
	})

	t.Run("AllowsWithRemainingQuota", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)
		seedState(t, store, State{Remaining: 12, ResetAt: time.Now().Add(time.Minute), LastStatus: 200})

		if allowed, _ := limiter.Check(ctx); !allowed {
			t.Fatal("expected allow with remaining quota")
		}
	})

	t.Run("MinimumRetryAfterIsOneSecond", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)
		seedState(t, store, State{Remaining: 0, ResetAt: time.Now().Add(300 * time.Millisecond)})

		allowed, retryAfter := limiter.Check(ctx)
		if allowed {
			t.Fatal("expected block")
		}
		if retryAfter < 1 {
			t.Errorf("retryAfter = %d, want >= 1", retryAfter)
		}
	})

	t.Run("CorruptStateResets", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)
		_ = store.Set(ctx, StateKey, []byte("{not json"), time.Minute)

		if allowed, _ := limiter.Check(ctx); !allowed {
			t.Fatal("corrupt state must not block calls")
		}
	})
}

func TestObserve(t *testing.T) {
	ctx := context.Background()

	readState := func(t *testing.T, store cache.Store) State {
		t.Helper()
		data, ok, err := store.Get(ctx, StateKey)
		if err != nil || !ok {
			t.Fatalf("expected persisted state, ok=%v err=%v", ok, err)
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		return state
	}

	t.Run("PersistsQuotaHeaders", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)

		header := http.Header{}
		header.Set("X-Discogs-Ratelimit-Remaining", "17")
		header.Set("X-Discogs-Ratelimit-Reset", "45")
		limiter.Observe(ctx, header, 200)

		state := readState(t, store)
		if state.Remaining != 17 {
			t.Errorf("Remaining = %d, want 17", state.Remaining)
		}
		if state.LastStatus != 200 {
			t.Errorf("LastStatus = %d, want 200", state.LastStatus)
		}
		until := time.Until(state.ResetAt)
		if until < 43*time.Second || until > 45*time.Second {
			t.Errorf("ResetAt %v from now, want ~45s", until)
		}
	})

	t.Run("LowercaseHeadersStillMatch", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)

		// Header.Set canonicalizes, so exercise the lookup through a
		// hand-built map the way a non-canonical proxy would send it.
		header := http.Header{}
		header.Set("x-discogs-ratelimit-remaining", "3")
		header.Set("x-discogs-ratelimit-reset", "10")
		limiter.Observe(ctx, header, 200)

		if state := readState(t, store); state.Remaining != 3 {
			t.Errorf("Remaining = %d, want 3", state.Remaining)
		}
	})

	t.Run("RetryAfterFallback", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)

		header := http.Header{}
		header.Set("Retry-After", "7")
		limiter.Observe(ctx, header, 429)

		state := readState(t, store)
		if state.Remaining != 0 {
			t.Errorf("Remaining = %d, want 0", state.Remaining)
		}
		if state.LastStatus != 429 {
			t.Errorf("LastStatus = %d, want 429", state.LastStatus)
		}
	})

	t.Run("NoSignalsLeaveStateUntouched", func(t *testing.T) {
		store := cache.NewMemoryStore()
		limiter := New(store)

		limiter.Observe(ctx, http.Header{}, 200)

		if _, ok, _ := store.Get(ctx, StateKey); ok {
			t.Error("no headers should mean no persisted state")
		}
	})
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"retry-after preferred", map[string]string{"Retry-After": "5", "X-Discogs-Ratelimit-Reset": "60"}, 5},
		{"reset fallback", map[string]string{"X-Discogs-Ratelimit-Reset": "60"}, 60},
		{"absent", nil, 0},
		{"non-numeric", map[string]string{"Retry-After": "soon"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tt.header {
				header.Set(k, v)
			}
			if got := RetryAfterSeconds(header); got != tt.want {
				t.Errorf("RetryAfterSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}
