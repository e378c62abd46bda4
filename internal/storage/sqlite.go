package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"hollowscan/internal/model"
	"hollowscan/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer per device; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PutListings upserts listings into the cache.
func (s *SQLite) PutListings(ctx context.Context, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, l := range listings {
		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode listing %s: %w", l.ID, err)
		}
		var created *string
		if !l.CreatedAt.IsZero() {
			v := l.CreatedAt.UTC().Format(time.RFC3339Nano)
			created = &v
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO listing_cache (id, payload, created_at, cached_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at, cached_at = excluded.cached_at`,
			string(l.ID), string(payload), created, now,
		); err != nil {
			return fmt.Errorf("insert listing %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

// GetListing returns a cached listing by id.
func (s *SQLite) GetListing(ctx context.Context, id model.ListingID) (*model.Listing, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM listing_cache WHERE id = ?`, string(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	var l model.Listing
	if err := json.Unmarshal([]byte(payload), &l); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", id, err)
	}
	return &l, nil
}

// PruneListings removes listings cached before the given time.
func (s *SQLite) PruneListings(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM listing_cache WHERE cached_at < ?`, before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune listings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
