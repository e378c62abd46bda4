// Package api is the client of the Hollowscan REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"hollowscan/internal/model"
)

// Error classes of a failed request.
var (
	// ErrNetwork marks transport failures and timeouts.
	ErrNetwork = errors.New("network error")
	// ErrStatus marks non-2xx responses.
	ErrStatus = errors.New("unexpected status")
	// ErrMalformed marks bodies that do not have the expected shape.
	ErrMalformed = errors.New("malformed response")
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Hollowscan API on behalf of one user.
type Client struct {
	client   HTTPClient
	baseURL  string
	userID   string
	pageSize int
	timeout  time.Duration
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets the number of listings requested per feed page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Client for baseURL acting as userID.
func New(client HTTPClient, baseURL, userID string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		userID:   userID,
		pageSize: 10,
		timeout:  15 * time.Second,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the user the client acts for.
func (c *Client) UserID() string {
	return c.userID
}

// PageSize returns the number of listings per feed page.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Feed returns one page of listings for f.
// An empty array yields no listings; a body that is not an array yields
// ErrMalformed.
func (c *Client) Feed(ctx context.Context, f model.FeedFilter, offset, limit int) ([]model.Listing, error) {
	q := c.feedQuery(f)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return c.feed(ctx, q)
}

// FetchListings returns the newest page for f. since, when set, is passed
// to the server so it can skip older listings.
func (c *Client) FetchListings(ctx context.Context, f model.FeedFilter, since *time.Time) ([]model.Listing, error) {
	q := c.feedQuery(f)
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(c.pageSize))
	if since != nil {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	return c.feed(ctx, q)
}

// Categories returns the category names of every region.
func (c *Client) Categories(ctx context.Context) (model.Categories, error) {
	var cats model.Categories
	if err := c.getJSON(ctx, "/v1/categories", nil, &cats); err != nil {
		return nil, err
	}
	if cats == nil {
		cats = model.Categories{}
	}
	return cats, nil
}

// UserStatus returns the server-side view counters of the user.
func (c *Client) UserStatus(ctx context.Context) (model.UserStatus, error) {
	var st model.UserStatus
	err := c.getJSON(ctx, "/v1/user/status", url.Values{"user_id": {c.userID}}, &st)
	return st, err
}

// GenerateLinkKey asks the server for a key that links the user to the Telegram bot.
func (c *Client) GenerateLinkKey(ctx context.Context) (string, error) {
	var res model.LinkKey
	if err := c.do(ctx, http.MethodPost, "/v1/user/telegram/generate-key", url.Values{"user_id": {c.userID}}, &res); err != nil {
		return "", err
	}
	if !res.Success || res.Key == "" {
		detail := res.Detail
		if detail == "" {
			detail = "no link key returned"
		}
		return "", fmt.Errorf("generate link key: %s", detail)
	}
	return res.Key, nil
}

// LinkStatus reports whether the user has linked Telegram and their premium state.
func (c *Client) LinkStatus(ctx context.Context) (model.LinkStatus, error) {
	var st model.LinkStatus
	err := c.getJSON(ctx, "/v1/user/telegram/link-status", url.Values{"user_id": {c.userID}}, &st)
	return st, err
}

// Snapshot is the data the home screen needs on open.
type Snapshot struct {
	Categories model.Categories
	Status     *model.UserStatus
	Listings   []model.Listing
}

// Bootstrap loads categories, user status and the first feed page in
// parallel. Individual failures are logged and leave the part empty; the
// error is non-nil only when every request failed.
func (c *Client) Bootstrap(ctx context.Context, f model.FeedFilter) (*Snapshot, error) {
	snap := &Snapshot{Categories: model.Categories{}}
	var catErr, statusErr, feedErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cats, err := c.Categories(gctx)
		if err != nil {
			catErr = err
			return nil
		}
		snap.Categories = cats
		return nil
	})
	g.Go(func() error {
		st, err := c.UserStatus(gctx)
		if err != nil {
			statusErr = err
			return nil
		}
		snap.Status = &st
		return nil
	})
	g.Go(func() error {
		items, err := c.Feed(gctx, f, 0, c.pageSize)
		if err != nil {
			feedErr = err
			return nil
		}
		snap.Listings = items
		return nil
	})
	_ = g.Wait()

	if catErr != nil {
		c.log.Warn("load categories", "error", catErr)
	}
	if statusErr != nil {
		c.log.Warn("load user status", "error", statusErr)
	}
	if feedErr != nil {
		c.log.Warn("load feed", "region", f.Region, "category", f.Category, "error", feedErr)
	}
	if catErr != nil && statusErr != nil && feedErr != nil {
		return snap, fmt.Errorf("bootstrap: %w", errors.Join(catErr, statusErr, feedErr))
	}
	return snap, nil
}

func (c *Client) feedQuery(f model.FeedFilter) url.Values {
	cat := f.Category
	if cat == "" {
		cat = model.CategoryAll
	}
	return url.Values{
		"user_id":  {c.userID},
		"region":   {f.Region},
		"category": {cat},
	}
}

func (c *Client) feed(ctx context.Context, q url.Values) ([]model.Listing, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/v1/feed", q, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("feed: %w: body is not an array", ErrMalformed)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("feed: %w: %v", ErrMalformed, err)
	}
	items := make([]model.Listing, 0, len(elems))
	for _, e := range elems {
		var l model.Listing
		if err := json.Unmarshal(e, &l); err != nil {
			c.log.Warn("skip malformed listing", "error", err)
			continue
		}
		items = append(items, l)
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	return c.do(ctx, http.MethodGet, path, q, v)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Hollowscan/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%s %s: %w: read body: %v", method, path, ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %w %d", method, path, ErrStatus, resp.StatusCode)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformed, err)
	}
	return nil
}
