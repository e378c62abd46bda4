package saved

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listing(t *testing.T, raw string) model.Listing {
	t.Helper()
	var l model.Listing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	return l
}

func ids(items []model.Listing) []model.ListingID {
	out := make([]model.ListingID, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

type brokenKV struct{ storage.KV }

func (brokenKV) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestToggle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := listing(t, `{"id": 1, "created_at": "2026-10-16T10:00:00Z", "product_data": {"title": "A"}}`)
	b := listing(t, `{"id": "2", "created_at": "2026-10-16T10:05:00Z", "product_data": {"title": "B"}}`)

	l := New(store, discardLogger())
	l.Load(ctx)

	if !l.Toggle(ctx, a) || !l.Toggle(ctx, b) {
		t.Fatal("first toggle must save")
	}
	if !l.IsSaved("1") {
		t.Error("listing 1 should be saved")
	}
	if l.Toggle(ctx, a) {
		t.Error("second toggle must unsave")
	}
	if diff := cmp.Diff([]model.ListingID{"2"}, ids(l.All())); diff != "" {
		t.Errorf("saved ids mismatch (-want +got):\n%s", diff)
	}

	reloaded := New(store, discardLogger())
	reloaded.Load(ctx)
	got, ok := reloaded.Get("2")
	if !ok {
		t.Fatal("listing 2 not persisted")
	}
	if diff := cmp.Diff("B", got.Product().Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 10, 16, 10, 5, 0, 0, time.UTC)) {
		t.Errorf("created at = %v", got.CreatedAt)
	}
}

func TestTogglePersistFailure(t *testing.T) {
	ctx := context.Background()
	l := New(brokenKV{newTestStore(t)}, discardLogger())
	a := listing(t, `{"id": 1, "created_at": "2026-10-16T10:00:00Z"}`)

	if !l.Toggle(ctx, a) {
		t.Fatal("toggle must save in memory despite write failure")
	}
	if !l.IsSaved("1") {
		t.Error("in-memory list should hold the listing")
	}
}

func TestLoadMalformed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Set(ctx, storage.KeySavedProducts, "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	l := New(store, discardLogger())
	l.Load(ctx)
	if diff := cmp.Diff(0, len(l.All())); diff != "" {
		t.Errorf("count mismatch (-want +got):\n%s", diff)
	}
}
