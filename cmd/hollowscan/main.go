package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"hollowscan/internal/api"
	"hollowscan/internal/bot"
	"hollowscan/internal/config"
	"hollowscan/internal/fetcher"
	"hollowscan/internal/model"
	"hollowscan/internal/notify"
	"hollowscan/internal/poller"
	"hollowscan/internal/quota"
	"hollowscan/internal/rules"
	"hollowscan/internal/saved"
	"hollowscan/internal/session"
	"hollowscan/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess := session.New(store, cfg.UserID, log)
	if err := sess.Load(ctx); err != nil {
		log.Error("load session", "error", err)
		os.Exit(1)
	}

	tracker := quota.New(store, sess, log, quota.WithLocation(cfg.Location))
	tracker.Load(ctx)

	savedList := saved.New(store, log)
	savedList.Load(ctx)

	ruleStore := rules.New(store)

	client := api.New(&http.Client{}, cfg.APIBaseURL, sess.User().ID, log,
		api.WithPageSize(cfg.FeedPageSize),
		api.WithTimeout(cfg.HTTPTimeout),
	)

	var (
		feed bot.FeedSource = client
		src  poller.Source  = client
	)
	if cfg.FeedSource == config.SourceRSS {
		rss := fetcher.New(&http.Client{}, cfg.RSSURL, log)
		feed, src = rss, rss
		log.Info("using rss feed", "url", cfg.RSSURL)
	}

	filter := model.FeedFilter{Region: cfg.FeedRegion, Category: cfg.FeedCategory}
	live := poller.New(src, log)
	live.SetFilter(filter)

	// The dispatcher and the bot refer to each other.
	sender := &botSender{}
	dispatcher := notify.New(sender, ruleStore, store, log,
		notify.WithRate(cfg.NotifyRate),
		notify.WithChat(cfg.NotifyChatID),
	)
	if err := dispatcher.LoadChat(ctx); err != nil {
		log.Warn("load notification chat", "error", err)
	}

	b, err := bot.New(cfg.TelegramBotToken, bot.Deps{
		Feed:     feed,
		Account:  client,
		Live:     live,
		Quota:    tracker,
		Saved:    savedList,
		Session:  sess,
		Rules:    ruleStore,
		Chats:    dispatcher,
		Listings: store,
	}, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}
	sender.bot = b

	bootstrap(ctx, client, store, filter, log)

	unsubscribe := live.Subscribe(dispatcher.Handle)
	defer unsubscribe()

	live.Start(filter, cfg.PollInterval)
	defer live.Stop()

	log.Info("starting bot", "user_id", sess.User().ID, "region", filter.Region, "category", filter.Category)

	go dispatcher.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

// bootstrap loads the startup data in parallel and caches the first feed
// page so /view works before /feed was used.
func bootstrap(ctx context.Context, client *api.Client, store storage.ListingCache, f model.FeedFilter, log *slog.Logger) {
	snap, err := client.Bootstrap(ctx, f)
	if err != nil {
		log.Warn("startup data unavailable", "error", err)
		return
	}
	if snap.Status != nil {
		log.Info("account status",
			"views_used", snap.Status.ViewsUsed,
			"views_limit", snap.Status.ViewsLimit,
		)
	}
	log.Info("startup data loaded", "regions", len(snap.Categories), "listings", len(snap.Listings))
	if len(snap.Listings) > 0 {
		if err := store.PutListings(ctx, snap.Listings); err != nil {
			log.Warn("cache startup listings", "error", err)
		}
	}
}

type botSender struct {
	bot *bot.Bot
}

func (s *botSender) SendListing(chatID int64, text string, id model.ListingID) error {
	return s.bot.SendListing(chatID, text, id)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
