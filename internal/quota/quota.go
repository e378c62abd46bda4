// Package quota enforces the daily product-view allowance of free users.
//
// A free user may open FreeProductLimit distinct products per calendar day.
// Re-opening a product already opened today is free. The record resets at
// local midnight: a record dated another day is replaced, never merged.
// Premium users are never counted.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

const dateLayout = "2006-01-02"

// PremiumChecker reports the current premium status of the user.
type PremiumChecker interface {
	IsPremium() bool
}

// Tracker counts distinct product views per day.
//
// The in-memory record is authoritative once loaded. Persistence failures
// are logged and never change the outcome reported to the caller.
type Tracker struct {
	store   storage.KV
	premium PremiumChecker
	log     *slog.Logger
	now     func() time.Time
	loc     *time.Location
	limit   int

	mu     sync.Mutex
	record model.DailyViewRecord
	loaded bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the zone whose calendar defines a day.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithLimit overrides the daily limit.
func WithLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.limit = n
		}
	}
}

// New creates a Tracker backed by store.
func New(store storage.KV, premium PremiumChecker, log *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		premium: premium,
		log:     log,
		now:     time.Now,
		loc:     time.Local,
		limit:   model.FreeProductLimit,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.record = model.DailyViewRecord{Date: t.today(), Products: []string{}}
	return t
}

// Limit returns the daily limit for free users.
func (t *Tracker) Limit() int {
	return t.limit
}

// Load reads the persisted record. A record from another day is replaced
// by an empty one for today and written back.
func (t *Tracker) Load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)
	if t.rollover() {
		t.persist(ctx)
	}
}

// TrackProductView records a view of productID and reports whether it is allowed.
func (t *Tracker) TrackProductView(ctx context.Context, productID string) model.ViewResult {
	if t.premium.IsPremium() {
		t.log.Debug("premium user, view not counted", "product_id", productID)
		return model.ViewResult{Allowed: true, Remaining: model.Unlimited}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.load(ctx)
	t.rollover()

	if t.record.Contains(productID) {
		t.log.Debug("product already viewed today", "product_id", productID)
		return model.ViewResult{Allowed: true, Remaining: t.remaining()}
	}

	if len(t.record.Products) >= t.limit {
		t.log.Info("daily view limit reached", "product_id", productID, "limit", t.limit)
		return model.ViewResult{Allowed: false, Remaining: 0}
	}

	t.record.Products = append(t.record.Products, productID)
	t.persist(ctx)

	remaining := t.remaining()
	t.log.Debug("view tracked", "product_id", productID, "remaining", remaining)
	return model.ViewResult{Allowed: true, Remaining: remaining}
}

// RemainingViews returns the views left today without storage I/O.
// It applies the same midnight rollover as TrackProductView, in memory only,
// so the count is never stale across a day boundary.
func (t *Tracker) RemainingViews() int {
	if t.premium.IsPremium() {
		return model.Unlimited
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.remaining()
}

// ResetDailyViews clears today's record and persists it.
// The in-memory reset holds even when the write fails.
func (t *Tracker) ResetDailyViews(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loaded = true
	t.record = model.DailyViewRecord{Date: t.today(), Products: []string{}}
	if err := storage.SetJSON(ctx, t.store, storage.KeyDailyViews, t.record); err != nil {
		t.log.Error("persist daily views", "error", err)
		return err
	}
	return nil
}

// Record returns a copy of the in-memory record.
func (t *Tracker) Record() model.DailyViewRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.DailyViewRecord{
		Date:     t.record.Date,
		Products: append([]string{}, t.record.Products...),
	}
}

func (t *Tracker) today() string {
	return t.now().In(t.loc).Format(dateLayout)
}

func (t *Tracker) remaining() int {
	return max(0, t.limit-len(t.record.Products))
}

// load reads the persisted record on first use. Absent, unreadable and
// malformed records all leave an empty record.
func (t *Tracker) load(ctx context.Context) {
	if t.loaded {
		return
	}
	t.loaded = true

	var rec model.DailyViewRecord
	err := storage.GetJSON(ctx, t.store, storage.KeyDailyViews, &rec)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		t.log.Debug("no daily views record, starting fresh")
		return
	case err != nil:
		t.log.Warn("load daily views", "error", err)
		return
	}
	t.record = model.DailyViewRecord{Date: rec.Date, Products: dedupe(rec.Products)}
}

// rollover replaces a record dated another day and reports whether it did.
func (t *Tracker) rollover() bool {
	today := t.today()
	if t.record.Date == today {
		return false
	}
	t.log.Info("new day, daily views reset", "previous_date", t.record.Date, "date", today)
	t.record = model.DailyViewRecord{Date: today, Products: []string{}}
	return true
}

func (t *Tracker) persist(ctx context.Context) {
	if err := storage.SetJSON(ctx, t.store, storage.KeyDailyViews, t.record); err != nil {
		t.log.Error("persist daily views", "error", err)
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
