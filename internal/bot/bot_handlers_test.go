package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"hollowscan/internal/config"
	"hollowscan/internal/model"
	"hollowscan/internal/poller"
	"hollowscan/internal/quota"
	"hollowscan/internal/rules"
	"hollowscan/internal/saved"
	"hollowscan/internal/session"
	"hollowscan/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup any
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Markup: msg.ReplyMarkup})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type fakeFeed struct {
	items   []model.Listing
	err     error
	filters []model.FeedFilter
	offsets []int
}

func (f *fakeFeed) Feed(_ context.Context, flt model.FeedFilter, offset, limit int) ([]model.Listing, error) {
	f.filters = append(f.filters, flt)
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, f.err
	}
	if offset >= len(f.items) {
		return []model.Listing{}, nil
	}
	end := min(len(f.items), offset+limit)
	return f.items[offset:end], nil
}

type fakeAccount struct {
	cats    model.Categories
	status  model.UserStatus
	key     string
	link    model.LinkStatus
	err     error
	keyErr  error
	linkErr error
}

func (a *fakeAccount) Categories(context.Context) (model.Categories, error) {
	return a.cats, a.err
}

func (a *fakeAccount) UserStatus(context.Context) (model.UserStatus, error) {
	return a.status, a.err
}

func (a *fakeAccount) GenerateLinkKey(context.Context) (string, error) {
	return a.key, a.keyErr
}

func (a *fakeAccount) LinkStatus(context.Context) (model.LinkStatus, error) {
	return a.link, a.linkErr
}

type emptySource struct{}

func (emptySource) FetchListings(context.Context, model.FeedFilter, *time.Time) ([]model.Listing, error) {
	return nil, nil
}

type fakeChats struct {
	mu sync.Mutex
	id int64
}

func (c *fakeChats) SetChat(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	return nil
}

func (c *fakeChats) Chat() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// --- helpers ---

type testEnv struct {
	api     *mockAPI
	store   *storage.SQLite
	feed    *fakeFeed
	account *fakeAccount
	live    *poller.Poller
	session *session.Session
	chats   *fakeChats
}

func newTestBot(t *testing.T) (*Bot, *testEnv) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := session.New(store, "user-1", log)
	if err := sess.Load(ctx); err != nil {
		t.Fatalf("load session: %v", err)
	}
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	tracker := quota.New(store, sess, log, quota.WithClock(func() time.Time { return now }), quota.WithLocation(time.UTC))
	tracker.Load(ctx)
	list := saved.New(store, log)
	list.Load(ctx)

	live := poller.New(emptySource{}, log)
	live.SetFilter(model.FeedFilter{Region: "USA Stores", Category: model.CategoryAll})
	t.Cleanup(live.Stop)

	env := &testEnv{
		api:   &mockAPI{},
		store: store,
		feed:  &fakeFeed{},
		account: &fakeAccount{
			cats: model.Categories{"USA Stores": {"Pokemon", "Lego"}, "UK Stores": {"Toys"}},
		},
		live:    live,
		session: sess,
		chats:   &fakeChats{},
	}
	b := newBot(env.api, Deps{
		Feed:     env.feed,
		Account:  env.account,
		Live:     live,
		Quota:    tracker,
		Saved:    list,
		Session:  sess,
		Rules:    rules.New(store),
		Chats:    env.chats,
		Listings: store,
	}, &config.Config{FeedPageSize: 2, PollInterval: time.Hour}, log)
	return b, env
}

func seedListings(t *testing.T, env *testEnv, raws ...string) []model.Listing {
	t.Helper()
	var out []model.Listing
	for _, raw := range raws {
		out = append(out, mustListing(t, raw))
	}
	if err := env.store.PutListings(context.Background(), out); err != nil {
		t.Fatalf("seed listings: %v", err)
	}
	return out
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func makeMsg(cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 100},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
		},
	}
}

const (
	dealA = `{"id": 1, "created_at": "2026-10-16T10:00:00Z", "category_name": "Pokemon", "product_data": {"title": "Booster Box", "price": 100, "resell": 200}}`
	dealB = `{"id": 2, "created_at": "2026-10-16T10:01:00Z", "category_name": "Lego", "product_data": {"title": "Technic"}}`
	dealC = `{"id": 3, "created_at": "2026-10-16T10:02:00Z", "product_data": {"title": "Console"}}`
	dealD = `{"id": 4, "created_at": "2026-10-16T10:03:00Z", "product_data": {"title": "Headphones"}}`
	dealE = `{"id": 5, "created_at": "2026-10-16T10:04:00Z", "product_data": {"title": "Sneakers"}}`
	dealX = `{"id": 9, "created_at": "2026-10-16T10:05:00Z", "is_locked": true, "product_data": {"title": "Secret"}}`
)

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, env := newTestBot(t)
	b.handleStart(context.Background(), 100)
	requireContains(t, env.api.lastText(), "Welcome to Hollowscan")
	if diff := cmp.Diff(int64(100), env.chats.Chat()); diff != "" {
		t.Errorf("notification chat mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleHelp(t *testing.T) {
	b, env := newTestBot(t)
	b.handleHelp(100)
	requireContains(t, env.api.lastText(), "/feed")
	requireContains(t, env.api.lastText(), "/rmrule")
}

func TestHandleFeed(t *testing.T) {
	ctx := context.Background()

	t.Run("first page caches listings", func(t *testing.T) {
		b, env := newTestBot(t)
		env.feed.items = []model.Listing{mustListing(t, dealA), mustListing(t, dealB), mustListing(t, dealC)}

		b.handleFeed(ctx, 100, "")
		reply := env.api.last()
		requireContains(t, reply.Text, "USA Stores / ALL, page 1")
		requireContains(t, reply.Text, "1. Booster Box  $100.00")
		if reply.Markup == nil {
			t.Error("full page must carry buttons")
		}

		if _, err := env.store.GetListing(ctx, "2"); err != nil {
			t.Errorf("listing 2 not cached: %v", err)
		}
	})

	t.Run("second page offset", func(t *testing.T) {
		b, env := newTestBot(t)
		env.feed.items = []model.Listing{mustListing(t, dealA), mustListing(t, dealB), mustListing(t, dealC)}

		b.handleFeed(ctx, 100, "2")
		requireContains(t, env.api.lastText(), "1. Console")
		if diff := cmp.Diff([]int{2}, env.feed.offsets); diff != "" {
			t.Errorf("offsets mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bad page", func(t *testing.T) {
		b, env := newTestBot(t)
		b.handleFeed(ctx, 100, "zero")
		requireContains(t, env.api.lastText(), "Usage: /feed")
	})

	t.Run("api failure", func(t *testing.T) {
		b, env := newTestBot(t)
		env.feed.err = errors.New("network error")
		b.handleFeed(ctx, 100, "")
		requireContains(t, env.api.lastText(), "Could not load deals")
	})
}

func TestHandleRegionAndCategory(t *testing.T) {
	ctx := context.Background()
	b, env := newTestBot(t)

	b.handleRegion(100, "mars")
	requireContains(t, env.api.lastText(), "Unknown region")

	b.handleRegion(100, "uk stores")
	requireContains(t, env.api.lastText(), "Region set to UK Stores")
	want := model.FeedFilter{Region: "UK Stores", Category: model.CategoryAll}
	if diff := cmp.Diff(want, env.live.Filter()); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}

	b.handleCategory(ctx, 100, "pokemon")
	requireContains(t, env.api.lastText(), `Unknown category "pokemon" in UK Stores`)

	b.handleCategory(ctx, 100, "toys")
	requireContains(t, env.api.lastText(), "Category set to Toys")
	want = model.FeedFilter{Region: "UK Stores", Category: "Toys"}
	if diff := cmp.Diff(want, env.live.Filter()); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}

	b.handleCategory(ctx, 100, "all")
	if diff := cmp.Diff(model.CategoryAll, env.live.Filter().Category); diff != "" {
		t.Errorf("category mismatch (-want +got):\n%s", diff)
	}

	b.handleCategories(ctx, 100)
	requireContains(t, env.api.lastText(), "Categories in UK Stores")
	requireContains(t, env.api.lastText(), "ALL (current)")
}

func TestHandleView(t *testing.T) {
	ctx := context.Background()

	t.Run("not cached", func(t *testing.T) {
		b, env := newTestBot(t)
		b.handleView(ctx, 100, "404")
		requireContains(t, env.api.lastText(), "Deal 404 not found")
	})

	t.Run("daily limit", func(t *testing.T) {
		b, env := newTestBot(t)
		seedListings(t, env, dealA, dealB, dealC, dealD, dealE)

		for i, id := range []string{"1", "2", "3", "4"} {
			b.handleView(ctx, 100, id)
			requireContains(t, env.api.lastText(), "Views left today: "+strconv.Itoa(3-i))
		}
		b.handleView(ctx, 100, "5")
		requireContains(t, env.api.lastText(), "Daily limit reached")

		b.handleView(ctx, 100, "1")
		requireContains(t, env.api.lastText(), "Booster Box")
		requireContains(t, env.api.lastText(), "Views left today: 0")
	})

	t.Run("locked for free user", func(t *testing.T) {
		b, env := newTestBot(t)
		seedListings(t, env, dealX)
		b.handleView(ctx, 100, "9")
		requireContains(t, env.api.lastText(), "premium members")
	})

	t.Run("premium is unlimited", func(t *testing.T) {
		b, env := newTestBot(t)
		seedListings(t, env, dealA, dealB, dealC, dealD, dealE, dealX)
		if err := env.session.Update(ctx, model.User{ID: "user-1", IsPremium: true}); err != nil {
			t.Fatalf("update user: %v", err)
		}
		for _, id := range []string{"1", "2", "3", "4", "5", "9"} {
			b.handleView(ctx, 100, id)
			if strings.Contains(env.api.lastText(), "limit") {
				t.Fatalf("premium view of %s limited: %s", id, env.api.lastText())
			}
		}
		requireContains(t, env.api.lastText(), "Secret")
	})
}

func TestHandleSave(t *testing.T) {
	ctx := context.Background()
	b, env := newTestBot(t)
	seedListings(t, env, dealA)

	b.handleSave(ctx, 100, "1")
	requireContains(t, env.api.lastText(), `Saved "Booster Box"`)

	b.handleSaved(100)
	requireContains(t, env.api.lastText(), "Saved products (1)")

	b.handleSave(ctx, 100, "1")
	requireContains(t, env.api.lastText(), "Removed")

	b.handleSaved(100)
	requireContains(t, env.api.lastText(), "No saved products")

	b.handleSave(ctx, 100, "")
	requireContains(t, env.api.lastText(), "Usage: /save")
}

func TestSavedListingOutlivesCache(t *testing.T) {
	ctx := context.Background()
	b, env := newTestBot(t)
	seedListings(t, env, dealA)
	b.handleSave(ctx, 100, "1")

	if _, err := env.store.PruneListings(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	b.handleView(ctx, 100, "1")
	requireContains(t, env.api.lastText(), "Booster Box")
}

func TestHandleQuota(t *testing.T) {
	ctx := context.Background()
	b, env := newTestBot(t)
	env.account.status = model.UserStatus{ViewsUsed: 1, ViewsLimit: 4}

	b.handleQuota(ctx, 100)
	requireContains(t, env.api.lastText(), "Product views left today: 4 of 4.")
	requireContains(t, env.api.lastText(), "Server count: 1 of 4 used.")

	env.account.err = errors.New("offline")
	b.handleQuota(ctx, 100)
	if strings.Contains(env.api.lastText(), "Server count") {
		t.Errorf("server status shown despite error: %s", env.api.lastText())
	}
}

func TestHandleLink(t *testing.T) {
	ctx := context.Background()
	b, env := newTestBot(t)

	env.account.key = "K-42"
	b.handleLink(ctx, 100)
	requireContains(t, env.api.lastText(), "Your link key: K-42")

	env.account.keyErr = errors.New("generate link key: already linked")
	b.handleLink(ctx, 100)
	requireContains(t, env.api.lastText(), "already linked")

	env.account.link = model.LinkStatus{Success: true, Linked: true, IsPremium: true}
	b.handleLinkStatus(ctx, 100)
	requireContains(t, env.api.lastText(), "Plan: premium")
	if !env.session.IsPremium() {
		t.Error("session should be premium after link status")
	}

	env.account.linkErr = errors.New("offline")
	b.handleLinkStatus(ctx, 100)
	requireContains(t, env.api.lastText(), "Could not check")
}

func TestHandleLive(t *testing.T) {
	b, env := newTestBot(t)

	b.handleLive(100, "")
	requireContains(t, env.api.lastText(), "Live updates: off.")
	requireContains(t, env.api.lastText(), "Send /start")

	b.handleLive(100, "on")
	requireContains(t, env.api.lastText(), "Live updates: on for USA Stores / ALL.")
	if !env.live.Running() {
		t.Error("poller should be running")
	}

	b.handleLive(100, "off")
	requireContains(t, env.api.lastText(), "Live updates: off.")
	if env.live.Running() {
		t.Error("poller should be stopped")
	}

	b.handleLive(100, "maybe")
	requireContains(t, env.api.lastText(), "Usage: /live")
}

func TestHandleRules(t *testing.T) {
	ctx := context.Background()
	b, env := newTestBot(t)

	b.handleRules(ctx, 100)
	requireContains(t, env.api.lastText(), "No notification rules")

	b.handleAddRule(ctx, 100, "-s title pokemon", model.RuleInclude)
	requireContains(t, env.api.lastText(), "Rule R1 added: include pokemon (title only)")

	b.handleAddRule(ctx, 100, "[broken", model.RuleExcludeRe)
	requireContains(t, env.api.lastText(), "invalid rule")

	b.handleAddRule(ctx, 100, "-s price cheap", model.RuleExclude)
	requireContains(t, env.api.lastText(), "invalid scope")

	b.handleRules(ctx, 100)
	requireContains(t, env.api.lastText(), "R1: pokemon (title only)")

	b.handleRmRule(ctx, 100, "R1")
	requireContains(t, env.api.lastText(), "Rule R1 removed.")

	b.handleRmRule(ctx, 100, "1")
	requireContains(t, env.api.lastText(), "Rule R1 not found.")

	b.handleRmRule(ctx, 100, "")
	requireContains(t, env.api.lastText(), "Usage: /rmrule")
}

func TestSendListing(t *testing.T) {
	b, env := newTestBot(t)
	if err := b.SendListing(42, "New deal", "7"); err != nil {
		t.Fatalf("SendListing: %v", err)
	}
	got := env.api.last()
	if diff := cmp.Diff(int64(42), got.ChatID); diff != "" {
		t.Errorf("chat mismatch (-want +got):\n%s", diff)
	}
	kb, ok := got.Markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("markup = %T, want inline keyboard", got.Markup)
	}
	if diff := cmp.Diff("view:7", *kb.InlineKeyboard[0][0].CallbackData); diff != "" {
		t.Errorf("callback mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches known commands", func(t *testing.T) {
		b, env := newTestBot(t)

		cmds := []struct {
			cmd      string
			args     string
			contains string
		}{
			{"start", "", "Welcome"},
			{"help", "", "/feed"},
			{"feed", "", "page 1"},
			{"region", "", "Current region: USA Stores"},
			{"category", "", "Current category: ALL"},
			{"view", "", "Usage: /view"},
			{"saved", "", "No saved products"},
			{"live", "", "Live updates"},
			{"rules", "", "No notification rules"},
			{"unknown_cmd", "", "Unknown command"},
		}

		for _, tc := range cmds {
			env.api.reset()
			b.handleCommand(ctx, makeMsg(tc.cmd, tc.args))
			requireContains(t, env.api.lastText(), tc.contains)
		}
	})

	t.Run("dispatches rule commands", func(t *testing.T) {
		b, env := newTestBot(t)

		cases := []struct {
			cmd  string
			args string
		}{
			{"include", "word"},
			{"exclude", "spam"},
			{"include_re", "(?i)lego"},
			{"exclude_re", "(?i)refurb"},
		}
		for _, tc := range cases {
			env.api.reset()
			b.handleCommand(ctx, makeMsg(tc.cmd, tc.args))
			requireContains(t, env.api.lastText(), "Rule R")
		}
	})
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid data format", func(t *testing.T) {
		b, env := newTestBot(t)
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb1",
			Data:    "nocolon",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		if diff := cmp.Diff(0, len(env.api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("view callback", func(t *testing.T) {
		b, env := newTestBot(t)
		seedListings(t, env, dealA)
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb2",
			Data:    "view:1",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		requireContains(t, env.api.lastText(), "Share: hollowscan://product/1")
	})

	t.Run("save callback", func(t *testing.T) {
		b, env := newTestBot(t)
		seedListings(t, env, dealB)
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb3",
			Data:    "save:2",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		requireContains(t, env.api.lastText(), `Saved "Technic"`)
	})

	t.Run("feed callback", func(t *testing.T) {
		b, env := newTestBot(t)
		env.feed.items = []model.Listing{mustListing(t, dealA), mustListing(t, dealB), mustListing(t, dealC)}
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb4",
			Data:    "feed:2",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		requireContains(t, env.api.lastText(), "page 2")
	})

	t.Run("rmrule callback", func(t *testing.T) {
		b, env := newTestBot(t)
		b.handleAddRule(ctx, 100, "go", model.RuleInclude)
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb5",
			Data:    "rmrule:1",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		requireContains(t, env.api.lastText(), "Rule R1 removed")
	})
}
