// Package notify turns new feed listings into Telegram notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"hollowscan/internal/filter"
	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

// Sender delivers a notification about one listing to a chat.
type Sender interface {
	SendListing(chatID int64, text string, id model.ListingID) error
}

// RuleSource lists the active notification rules.
type RuleSource interface {
	List(ctx context.Context) ([]model.Rule, error)
}

// Store is the persistence the dispatcher needs.
type Store interface {
	storage.KV
	storage.ListingCache
}

const (
	defaultQueueSize = 256
	cacheTTL         = 7 * 24 * time.Hour
	pruneEvery       = time.Hour
)

// Dispatcher queues new listings and sends the ones matching the rules,
// no faster than the configured rate.
type Dispatcher struct {
	sender  Sender
	rules   RuleSource
	store   Store
	log     *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time

	chatID atomic.Int64
	queue  chan model.Listing
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRate limits sends to perSecond, with a burst of one.
func WithRate(perSecond float64) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithChat sets the chat used until one is registered with SetChat.
func WithChat(chatID int64) Option {
	return func(d *Dispatcher) { d.chatID.Store(chatID) }
}

// WithQueueSize sets how many listings may wait to be sent.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan model.Listing, n)
		}
	}
}

// New creates a Dispatcher.
func New(sender Sender, rules RuleSource, store Store, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		rules:   rules,
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(20, 1),
		now:     time.Now,
		queue:   make(chan model.Listing, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LoadChat restores the registered notification chat, if any.
func (d *Dispatcher) LoadChat(ctx context.Context) error {
	raw, err := d.store.Get(ctx, storage.KeyNotifyChat)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load notify chat: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse notify chat %q: %w", raw, err)
	}
	d.chatID.Store(id)
	return nil
}

// SetChat registers chatID as the notification target and persists it.
func (d *Dispatcher) SetChat(ctx context.Context, chatID int64) error {
	d.chatID.Store(chatID)
	if err := d.store.Set(ctx, storage.KeyNotifyChat, strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("save notify chat: %w", err)
	}
	return nil
}

// Chat returns the notification chat, or 0 when none is registered.
func (d *Dispatcher) Chat() int64 {
	return d.chatID.Load()
}

// Handle caches a batch of new listings and queues them for sending. It
// never blocks; listings that do not fit in the queue are dropped.
func (d *Dispatcher) Handle(batch []model.Listing) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.PutListings(ctx, batch); err != nil {
		d.log.Warn("cache listings", "count", len(batch), "error", err)
	}

	for _, l := range batch {
		select {
		case d.queue <- l:
		default:
			d.log.Warn("notification queue full, listing dropped", "listing_id", l.ID)
		}
	}
}

// Run sends queued listings until ctx is cancelled. It also prunes the
// listing cache periodically.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune(ctx)
		case l := <-d.queue:
			d.dispatch(ctx, l)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, l model.Listing) {
	chatID := d.chatID.Load()
	if chatID == 0 {
		d.log.Debug("no notification chat registered", "listing_id", l.ID)
		return
	}

	rules, err := d.rules.List(ctx)
	if err != nil {
		d.log.Warn("load notification rules", "error", err)
		rules = nil
	}
	if !filter.Match(filter.FromListing(l), rules) {
		d.log.Debug("listing filtered out", "listing_id", l.ID)
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	if err := d.sender.SendListing(chatID, Format(l), l.ID); err != nil {
		d.log.Error("send notification", "chat_id", chatID, "listing_id", l.ID, "error", err)
		return
	}
	d.log.Debug("notification sent", "chat_id", chatID, "listing_id", l.ID)
}

func (d *Dispatcher) prune(ctx context.Context) {
	n, err := d.store.PruneListings(ctx, d.now().Add(-cacheTTL))
	if err != nil {
		d.log.Warn("prune listing cache", "error", err)
		return
	}
	if n > 0 {
		d.log.Info("listing cache pruned", "removed", n)
	}
}

// Format renders the notification text of a listing. Locked listings
// are announced without prices.
func Format(l model.Listing) string {
	p := l.Product()
	var b strings.Builder

	b.WriteString("New deal")
	if l.Category != "" {
		fmt.Fprintf(&b, " [%s]", l.Category)
	}
	b.WriteString("\n\n")
	title := p.Title
	if title == "" {
		title = "Untitled product"
	}
	b.WriteString(title)

	if l.IsLocked {
		b.WriteString("\n\nPremium deal. Upgrade to see prices and links.")
	} else {
		if p.Price.IsSet() {
			fmt.Fprintf(&b, "\n\nBuy: %s", model.FormatMoney(p.Price.Float()))
			if p.Resell.IsSet() {
				fmt.Fprintf(&b, "  Resell: %s", model.FormatMoney(p.Resell.Float()))
				fmt.Fprintf(&b, "\nProfit: %s (ROI %.0f%%)",
					model.FormatMoney(p.Profit(model.DefaultFeePercent)),
					p.ReturnOnInvestment(model.DefaultFeePercent))
			}
		}
		if u := p.PrimaryBuyURL(); u != "" {
			b.WriteString("\n\n")
			b.WriteString(u)
		}
	}

	fmt.Fprintf(&b, "\n\n/view %s", l.ID)
	return b.String()
}
