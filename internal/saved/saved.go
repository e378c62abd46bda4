// Package saved keeps the user's bookmarked listings.
package saved

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

// List is the bookmarked listings, oldest bookmark first. The in-memory
// list is authoritative; write failures are logged.
type List struct {
	kv  storage.KV
	log *slog.Logger

	mu    sync.Mutex
	items []model.Listing
}

// New creates an empty List backed by kv.
func New(kv storage.KV, log *slog.Logger) *List {
	return &List{kv: kv, log: log}
}

// Load replaces the in-memory list with the persisted one. Absent or
// unreadable data leaves the list empty.
func (l *List) Load(ctx context.Context) {
	var items []model.Listing
	err := storage.GetJSON(ctx, l.kv, storage.KeySavedProducts, &items)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		items = nil
	case err != nil:
		l.log.Warn("load saved products", "error", err)
		items = nil
	}

	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
	l.log.Debug("saved products loaded", "count", len(items))
}

// Toggle adds item when it is not saved and removes it otherwise. It
// reports whether the item is saved afterwards.
func (l *List) Toggle(ctx context.Context, item model.Listing) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]model.Listing, 0, len(l.items)+1)
	removed := false
	for _, it := range l.items {
		if it.ID == item.ID {
			removed = true
			continue
		}
		next = append(next, it)
	}
	if !removed {
		next = append(next, item)
	}
	l.items = next

	if err := storage.SetJSON(ctx, l.kv, storage.KeySavedProducts, l.items); err != nil {
		l.log.Error("persist saved products", "error", err)
	}
	return !removed
}

// IsSaved reports whether the listing with id is bookmarked.
func (l *List) IsSaved(id model.ListingID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Get returns the saved listing with id.
func (l *List) Get(id model.ListingID) (model.Listing, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.ID == id {
			return it, true
		}
	}
	return model.Listing{}, false
}

// All returns a copy of the saved listings.
func (l *List) All() []model.Listing {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Listing(nil), l.items...)
}
