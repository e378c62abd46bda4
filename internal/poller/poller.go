// Package poller watches the deal feed and announces listings published
// after the ones the user has already been shown.
package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hollowscan/internal/model"
)

// DefaultInterval is the poll period used when Start gets a non-positive one.
const DefaultInterval = 30 * time.Second

// Source fetches the most recent page of listings for a filter.
// since is the newest createdAt already delivered, or nil. Sources may use
// it to filter server-side; the poller filters client-side regardless.
type Source interface {
	FetchListings(ctx context.Context, f model.FeedFilter, since *time.Time) ([]model.Listing, error)
}

// Poller periodically fetches the feed and hands new listings to subscribers.
//
// The first successful fetch of a session only establishes the baseline
// watermark. Ticks never overlap: a tick that fires while the previous
// fetch is in flight is skipped. Responses that arrive after Stop,
// ResetWatermark or SetFilter are discarded.
type Poller struct {
	src Source
	log *slog.Logger

	mu        sync.Mutex
	sess      *session
	interval  time.Duration
	filter    model.FeedFilter
	epoch     uint64
	watermark *time.Time
	baselined bool
	subs      map[uint64]func([]model.Listing)
	nextSub   uint64
}

type session struct {
	filter   model.FeedFilter
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight atomic.Bool
}

// New creates a Poller reading from src.
func New(src Source, log *slog.Logger) *Poller {
	return &Poller{
		src:      src,
		log:      log,
		interval: DefaultInterval,
		subs:     make(map[uint64]func([]model.Listing)),
	}
}

// Start begins polling for f every interval. The first tick fires at once
// and only establishes the baseline. Starting while running restarts the
// schedule and the watermark.
func (p *Poller) Start(f model.FeedFilter, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.mu.Lock()
	p.stopLocked()
	p.resetLocked()
	p.filter = f
	p.interval = interval
	s := p.startLocked()
	p.mu.Unlock()

	p.log.Info("live polling started", "region", f.Region, "category", f.Category, "interval", interval)
	go p.run(s, interval)
}

// Stop halts polling. It is idempotent and safe to call before Start,
// including from within a subscriber callback.
func (p *Poller) Stop() {
	p.mu.Lock()
	stopped := p.stopLocked()
	p.mu.Unlock()

	if stopped {
		p.log.Info("live polling stopped")
	}
}

// ResetWatermark forgets the newest delivered timestamp. The next
// successful fetch becomes a new baseline.
func (p *Poller) ResetWatermark() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

// SetFilter switches polling to f: the watermark is reset and the tick
// schedule restarted so nothing fetched for the old filter is delivered.
// When the poller is stopped only the filter and watermark change.
func (p *Poller) SetFilter(f model.FeedFilter) {
	p.mu.Lock()
	running := p.sess != nil
	p.stopLocked()
	p.resetLocked()
	p.filter = f
	interval := p.interval
	var s *session
	if running {
		s = p.startLocked()
	}
	p.mu.Unlock()

	p.log.Info("feed filter changed", "region", f.Region, "category", f.Category)
	if s != nil {
		go p.run(s, interval)
	}
}

// Subscribe registers fn to receive every batch of new listings, ordered
// oldest to newest. The returned function removes the subscription.
func (p *Poller) Subscribe(fn func([]model.Listing)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Filter returns the current feed filter.
func (p *Poller) Filter() model.FeedFilter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter
}

// Watermark returns the newest delivered createdAt, or nil.
func (p *Poller) Watermark() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watermark == nil {
		return nil
	}
	w := *p.watermark
	return &w
}

// Running reports whether a polling session is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess != nil
}

// startLocked creates a new session; the caller launches run.
func (p *Poller) startLocked() *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{filter: p.filter, ctx: ctx, cancel: cancel}
	p.sess = s
	return s
}

func (p *Poller) stopLocked() bool {
	if p.sess == nil {
		return false
	}
	p.sess.cancel()
	p.sess = nil
	p.epoch++
	return true
}

func (p *Poller) resetLocked() {
	p.watermark = nil
	p.baselined = false
	p.epoch++
}

func (p *Poller) run(s *session, interval time.Duration) {
	p.fire(s)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			p.fire(s)
		}
	}
}

func (p *Poller) fire(s *session) {
	if s.ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		p.log.Debug("previous poll still in flight, tick skipped")
		return
	}
	go func() {
		defer s.inFlight.Store(false)
		p.poll(s)
	}()
}

// poll runs one fetch-and-deliver cycle for session s.
func (p *Poller) poll(s *session) {
	p.mu.Lock()
	epoch := p.epoch
	var since *time.Time
	if p.watermark != nil {
		w := *p.watermark
		since = &w
	}
	p.mu.Unlock()

	items, err := p.src.FetchListings(s.ctx, s.filter, since)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		p.log.Warn("poll feed", "region", s.filter.Region, "category", s.filter.Category, "error", err)
		return
	}

	p.mu.Lock()
	if !p.currentLocked(s, epoch) {
		p.mu.Unlock()
		p.log.Debug("stale poll response discarded", "items", len(items))
		return
	}
	fresh := p.advanceLocked(items)
	ids := make([]uint64, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	p.log.Info("new listings", "count", len(fresh), "region", s.filter.Region, "category", s.filter.Category)
	for _, id := range ids {
		p.mu.Lock()
		fn, ok := p.subs[id]
		current := p.currentLocked(s, epoch)
		p.mu.Unlock()
		if !current {
			return
		}
		if !ok {
			continue
		}
		batch := make([]model.Listing, len(fresh))
		copy(batch, fresh)
		fn(batch)
	}
}

func (p *Poller) currentLocked(s *session, epoch uint64) bool {
	return p.sess == s && p.epoch == epoch
}

// advanceLocked applies a fetched page to the watermark and returns the
// listings to deliver, oldest first.
func (p *Poller) advanceLocked(items []model.Listing) []model.Listing {
	if !p.baselined {
		p.baselined = true
		if newest := maxCreatedAt(items); newest != nil {
			p.watermark = newest
		}
		p.log.Debug("baseline established", "items", len(items))
		return nil
	}

	fresh := make([]model.Listing, 0, len(items))
	seen := make(map[model.ListingID]struct{}, len(items))
	for _, it := range items {
		if p.watermark != nil && !it.CreatedAt.After(*p.watermark) {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
	})
	newest := fresh[len(fresh)-1].CreatedAt
	p.watermark = &newest
	return fresh
}

func maxCreatedAt(items []model.Listing) *time.Time {
	var newest *time.Time
	for i := range items {
		t := items[i].CreatedAt
		if newest == nil || t.After(*newest) {
			newest = &t
		}
	}
	return newest
}
