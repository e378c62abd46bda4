// Package fetcher reads deals from an RSS or Atom feed and turns them into
// listings, for deployments that publish the feed instead of the REST API.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"hollowscan/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses a deal feed.
type Fetcher struct {
	client  HTTPClient
	url     string
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Fetcher for the feed at url.
func New(client HTTPClient, url string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		url:     url,
		timeout: 30 * time.Second,
		log:     log,
	}
}

// Fetch downloads and parses the feed.
func (f *Fetcher) Fetch(ctx context.Context) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Hollowscan/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// FetchListings returns the feed items of the filter's category, newest
// first. The feed has no region, so only the category narrows the result.
// Items at or before since are dropped.
func (f *Fetcher) FetchListings(ctx context.Context, flt model.FeedFilter, since *time.Time) ([]model.Listing, error) {
	feed, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Listing, 0, len(feed.Items))
	for _, item := range feed.Items {
		l, ok := ToListing(item)
		if !ok {
			f.log.Debug("skip feed item without date", "guid", ItemGUID(item))
			continue
		}
		if !inCategory(item, flt.Category) {
			continue
		}
		if since != nil && !l.CreatedAt.After(*since) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Feed returns one page of the feed for browsing, newest first.
func (f *Fetcher) Feed(ctx context.Context, flt model.FeedFilter, offset, limit int) ([]model.Listing, error) {
	all, err := f.FetchListings(ctx, flt, nil)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []model.Listing{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

type itemPayload struct {
	ID          string            `json:"id"`
	CreatedAt   model.Timestamp   `json:"created_at"`
	Category    string            `json:"category_name,omitempty"`
	ProductData model.ProductData `json:"product_data"`
	Description string            `json:"description,omitempty"`
}

// ToListing converts a feed item. Items with neither a published nor an
// updated date cannot be ordered and are rejected.
func ToListing(item *gofeed.Item) (model.Listing, bool) {
	created := item.PublishedParsed
	if created == nil {
		created = item.UpdatedParsed
	}
	if created == nil {
		return model.Listing{}, false
	}

	var cat string
	if len(item.Categories) > 0 {
		cat = item.Categories[0]
	}
	desc := item.Description
	if len(desc) > 300 {
		desc = desc[:300] + "..."
	}
	p := itemPayload{
		ID:          ItemGUID(item),
		CreatedAt:   model.Timestamp{Time: created.UTC()},
		Category:    cat,
		Description: desc,
		ProductData: model.ProductData{Title: item.Title, BuyURL: item.Link},
	}
	if item.Image != nil {
		p.ProductData.Image = item.Image.URL
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return model.Listing{}, false
	}
	return model.Listing{
		ID:        model.ListingID(p.ID),
		CreatedAt: created.UTC(),
		Category:  cat,
		Payload:   raw,
	}, true
}

func inCategory(item *gofeed.Item, category string) bool {
	if category == "" || category == model.CategoryAll {
		return true
	}
	for _, c := range item.Categories {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}
