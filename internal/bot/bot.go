package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hollowscan/internal/config"
	"hollowscan/internal/model"
	"hollowscan/internal/rules"
	"hollowscan/internal/saved"
	"hollowscan/internal/session"
	"hollowscan/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// FeedSource serves pages of the deal feed.
type FeedSource interface {
	Feed(ctx context.Context, f model.FeedFilter, offset, limit int) ([]model.Listing, error)
}

// Account is the per-user part of the Hollowscan API.
type Account interface {
	Categories(ctx context.Context) (model.Categories, error)
	UserStatus(ctx context.Context) (model.UserStatus, error)
	GenerateLinkKey(ctx context.Context) (string, error)
	LinkStatus(ctx context.Context) (model.LinkStatus, error)
}

// LiveFeed controls the new-listing poller.
type LiveFeed interface {
	Start(f model.FeedFilter, interval time.Duration)
	Stop()
	SetFilter(f model.FeedFilter)
	Filter() model.FeedFilter
	Running() bool
	Watermark() *time.Time
}

// ViewTracker enforces the daily product view allowance.
type ViewTracker interface {
	TrackProductView(ctx context.Context, productID string) model.ViewResult
	RemainingViews() int
	Limit() int
}

// ChatRegistry records which chat receives new-listing notifications.
type ChatRegistry interface {
	SetChat(ctx context.Context, chatID int64) error
	Chat() int64
}

// Deps groups the components the bot drives.
type Deps struct {
	Feed     FeedSource
	Account  Account
	Live     LiveFeed
	Quota    ViewTracker
	Saved    *saved.List
	Session  *session.Session
	Rules    *rules.Store
	Chats    ChatRegistry
	Listings storage.ListingCache
}

// Bot is the Telegram front-end of the Hollowscan client.
type Bot struct {
	api      telegramAPI
	cfg      *config.Config
	feed     FeedSource
	account  Account
	live     LiveFeed
	quota    ViewTracker
	saved    *saved.List
	session  *session.Session
	rules    *rules.Store
	chats    ChatRegistry
	listings storage.ListingCache
	log      *slog.Logger
}

// New creates a Bot with the given Telegram token, components, and config.
func New(token string, deps Deps, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, deps, cfg, log), nil
}

func newBot(api telegramAPI, deps Deps, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		cfg:      cfg,
		feed:     deps.Feed,
		account:  deps.Account,
		live:     deps.Live,
		quota:    deps.Quota,
		saved:    deps.Saved,
		session:  deps.Session,
		rules:    deps.Rules,
		chats:    deps.Chats,
		listings: deps.Listings,
		log:      log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if update.CallbackQuery.From != nil && !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// SendListing sends a new-listing notification with view and save buttons.
func (b *Bot) SendListing(chatID int64, text string, id model.ListingID) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if kb, ok := listingKeyboard(id); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send listing %s: %w", id, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(markup.InlineKeyboard) > 0 {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdFeed:
		b.handleFeed(ctx, chatID, args)
	case "categories":
		b.handleCategories(ctx, chatID)
	case "region":
		b.handleRegion(chatID, args)
	case "category":
		b.handleCategory(ctx, chatID, args)
	case cmdView:
		b.handleView(ctx, chatID, args)
	case cmdSave:
		b.handleSave(ctx, chatID, args)
	case "saved":
		b.handleSaved(chatID)
	case "quota":
		b.handleQuota(ctx, chatID)
	case "link":
		b.handleLink(ctx, chatID)
	case "linkstatus":
		b.handleLinkStatus(ctx, chatID)
	case "live":
		b.handleLive(chatID, args)
	case "include":
		b.handleAddRule(ctx, chatID, args, model.RuleInclude)
	case "exclude":
		b.handleAddRule(ctx, chatID, args, model.RuleExclude)
	case "include_re":
		b.handleAddRule(ctx, chatID, args, model.RuleIncludeRe)
	case "exclude_re":
		b.handleAddRule(ctx, chatID, args, model.RuleExcludeRe)
	case "rules":
		b.handleRules(ctx, chatID)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
