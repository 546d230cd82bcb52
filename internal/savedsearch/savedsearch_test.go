package savedsearch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"discosync/internal/cache"
	"discosync/internal/core"
)

func newTestStore() (*Store, cache.Store) {
	mem := cache.NewMemoryStore()
	s := New(mem)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, mem
}

func TestSaveAndList(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, "alice", "UK jungle", "jungle", map[string]string{"country": "UK"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected generated id")
	}
	if !saved.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected created_at: %v", saved.CreatedAt)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "UK jungle" || list[0].Filters["country"] != "UK" {
		t.Errorf("unexpected list: %+v", list)
	}

	t.Run("lists are per user", func(t *testing.T) {
		other, err := s.List(ctx, "bob")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("expected empty list for other user, got %+v", other)
		}
	})
}

func TestSaveValidation(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	tests := []struct {
		name            string
		user, title, q  string
		filters         map[string]string
	}{
		{name: "missing user", title: "x", q: "bowie"},
		{name: "missing name", user: "alice", q: "bowie"},
		{name: "empty criteria", user: "alice", title: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Save(ctx, tt.user, tt.title, tt.q, tt.filters)
			if core.KindOf(err) != core.KindInvalidInput {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestSaveCapRejectsNotEvicts(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for i := 0; i < core.MaxSavedSearches; i++ {
		if _, err := s.Save(ctx, "alice", fmt.Sprintf("search %d", i), "q", nil); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	_, err := s.Save(ctx, "alice", "one too many", "q", nil)
	if core.KindOf(err) != core.KindInvalidInput {
		t.Fatalf("expected invalid input at cap, got %v", err)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != core.MaxSavedSearches {
		t.Errorf("expected %d searches, got %d", core.MaxSavedSearches, len(list))
	}
	if list[0].Name != "search 0" {
		t.Errorf("oldest search evicted: %q", list[0].Name)
	}

	t.Run("other users unaffected by cap", func(t *testing.T) {
		if _, err := s.Save(ctx, "bob", "fresh", "q", nil); err != nil {
			t.Errorf("save for other user failed: %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	first, _ := s.Save(ctx, "alice", "first", "q1", nil)
	second, _ := s.Save(ctx, "alice", "second", "q2", nil)

	if err := s.Delete(ctx, "alice", first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("unexpected list after delete: %+v", list)
	}

	t.Run("deleting unknown id returns not found", func(t *testing.T) {
		if err := s.Delete(ctx, "alice", "nope"); core.KindOf(err) != core.KindNotFound {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("delete frees capacity", func(t *testing.T) {
		for i := len(list); i < core.MaxSavedSearches; i++ {
			if _, err := s.Save(ctx, "alice", fmt.Sprintf("fill %d", i), "q", nil); err != nil {
				t.Fatalf("save %d failed: %v", i, err)
			}
		}
		if _, err := s.Save(ctx, "alice", "over", "q", nil); core.KindOf(err) != core.KindInvalidInput {
			t.Fatalf("expected cap rejection, got %v", err)
		}
		if err := s.Delete(ctx, "alice", second.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Save(ctx, "alice", "replacement", "q", nil); err != nil {
			t.Errorf("save after delete failed: %v", err)
		}
	})
}
