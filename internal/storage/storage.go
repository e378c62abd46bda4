// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hollowscan/internal/model"
)

// ErrNotFound is returned when a key or listing is absent.
var ErrNotFound = errors.New("not found")

// Fixed keys of the local key-value store.
const (
	KeyDailyViews    = "daily_views"
	KeySavedProducts = "saved_products"
	KeyUserData      = "user_data"
	KeyNotifyRules   = "notify_rules"
	KeyNotifyChat    = "notify_chat"
)

// KV is a string key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ListingCache keeps listings the user has been shown so they can be
// opened or saved by id later.
type ListingCache interface {
	PutListings(ctx context.Context, listings []model.Listing) error
	GetListing(ctx context.Context, id model.ListingID) (*model.Listing, error)
	PruneListings(ctx context.Context, before time.Time) (int64, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	KV
	ListingCache
	Close() error
}

// GetJSON loads the value under key into v.
// It returns ErrNotFound when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v under key as JSON text.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, string(data))
}
