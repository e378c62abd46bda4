package bot

import (
	"context"
	"errors"
	"fmt"

	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	if err := b.chats.SetChat(ctx, chatID); err != nil {
		b.log.Error("register notification chat", "chat_id", chatID, "error", err)
	}
	b.reply(chatID, `Welcome to Hollowscan!

Browse retail arbitrage deals and get alerts for new ones in this chat.

Quick start:
1. /feed: latest deals
2. /region, /category: choose what to watch
3. /live on: get new deals as they appear

Free accounts can open 4 products a day. Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Browsing:
/feed [page]: deals for the current region and category
/categories: categories of the current region
/region <name>: switch region (USA Stores, UK Stores, Canada Stores)
/category <name>: switch category (ALL for every category)
/view <id>: product details (counts toward the daily limit)
/save <id>: bookmark or unbookmark a product
/saved: bookmarked products

Account:
/quota: product views left today
/link: get a key to link Telegram to your account
/linkstatus: check link and premium status

Live updates:
/live [on|off]: show or toggle new-deal alerts
/rules: show notification rules
/include [-s scope] <word>: alert only on deals with the word
/exclude [-s scope] <word>: never alert on deals with the word
/include_re [-s scope] <regex>: include by regex
/exclude_re [-s scope] <regex>: exclude by regex
/rmrule <rule_id>: remove a rule

Scope flag: -s title | content | all (default: all)`)
}

func (b *Bot) handleFeed(ctx context.Context, chatID int64, args string) {
	page, err := ParsePage(args)
	if err != nil {
		b.reply(chatID, "Usage: /feed [page]")
		return
	}

	f := b.live.Filter()
	limit := b.cfg.FeedPageSize
	if limit <= 0 {
		limit = 10
	}
	items, err := b.feed.Feed(ctx, f, (page-1)*limit, limit)
	if err != nil {
		b.log.Warn("load feed page", "page", page, "error", err)
		b.reply(chatID, "Could not load deals right now. Try again later.")
		return
	}
	b.cacheListings(ctx, items)

	b.replyWithMarkup(chatID, FormatFeedPage(f, page, items), feedKeyboard(items, page, len(items) == limit))
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64) {
	cats, err := b.account.Categories(ctx)
	if err != nil {
		b.log.Warn("load categories", "error", err)
		b.reply(chatID, "Could not load categories right now.")
		return
	}
	b.reply(chatID, FormatCategories(cats, b.live.Filter()))
}

func (b *Bot) handleRegion(chatID int64, args string) {
	cur := b.live.Filter()
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Current region: %s\nAvailable: USA Stores, UK Stores, Canada Stores\nUsage: /region <name>", cur.Region))
		return
	}
	region, ok := MatchName(args, model.Regions)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Unknown region %q. Available: USA Stores, UK Stores, Canada Stores", args))
		return
	}
	f := model.FeedFilter{Region: region, Category: model.CategoryAll}
	b.live.SetFilter(f)
	b.reply(chatID, fmt.Sprintf("Region set to %s, category ALL.", region))
}

func (b *Bot) handleCategory(ctx context.Context, chatID int64, args string) {
	cur := b.live.Filter()
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Current category: %s\nUsage: /category <name>, see /categories", categoryLabel(cur.Category)))
		return
	}

	category := model.CategoryAll
	if _, isAll := MatchName(args, []string{model.CategoryAll}); !isAll {
		cats, err := b.account.Categories(ctx)
		if err != nil {
			b.log.Warn("load categories", "error", err)
			b.reply(chatID, "Could not load categories right now.")
			return
		}
		name, ok := MatchName(args, cats[cur.Region])
		if !ok {
			b.reply(chatID, fmt.Sprintf("Unknown category %q in %s. See /categories.", args, cur.Region))
			return
		}
		category = name
	}

	b.live.SetFilter(model.FeedFilter{Region: cur.Region, Category: category})
	b.reply(chatID, fmt.Sprintf("Category set to %s in %s.", category, cur.Region))
}

func (b *Bot) handleView(ctx context.Context, chatID int64, args string) {
	id, err := ParseListingID(args)
	if err != nil {
		b.reply(chatID, "Usage: /view <id>")
		return
	}
	l, ok := b.findListing(ctx, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Deal %s not found. Open it from /feed first.", id))
		return
	}
	if l.IsLocked && !b.session.IsPremium() {
		b.reply(chatID, "This deal is for premium members. Use /link to upgrade.")
		return
	}

	res := b.quota.TrackProductView(ctx, string(l.ID))
	if !res.Allowed {
		b.reply(chatID, FormatLimitReached(b.quota.Limit()))
		return
	}

	text := FormatDetail(l, res, b.saved.IsSaved(l.ID))
	b.replyWithMarkup(chatID, text, saveKeyboard(l.ID))
}

func (b *Bot) handleSave(ctx context.Context, chatID int64, args string) {
	id, err := ParseListingID(args)
	if err != nil {
		b.reply(chatID, "Usage: /save <id>")
		return
	}
	l, ok := b.findListing(ctx, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Deal %s not found. Open it from /feed first.", id))
		return
	}
	title := titleOf(l.Product())
	if b.saved.Toggle(ctx, l) {
		b.reply(chatID, fmt.Sprintf("Saved \"%s\".", title))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed \"%s\" from saved.", title))
}

func (b *Bot) handleSaved(chatID int64) {
	b.reply(chatID, FormatSavedList(b.saved.All()))
}

func (b *Bot) handleQuota(ctx context.Context, chatID int64) {
	var status *model.UserStatus
	st, err := b.account.UserStatus(ctx)
	if err != nil {
		b.log.Warn("load user status", "error", err)
	} else {
		status = &st
	}
	b.reply(chatID, FormatQuota(b.quota.RemainingViews(), b.quota.Limit(), status))
}

func (b *Bot) handleLink(ctx context.Context, chatID int64) {
	key, err := b.account.GenerateLinkKey(ctx)
	if err != nil {
		b.log.Warn("generate link key", "error", err)
		b.reply(chatID, fmt.Sprintf("Could not generate a link key: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Your link key: %s\n\nSend it to the Hollowscan Telegram bot to link this account, then run /linkstatus.", key))
}

func (b *Bot) handleLinkStatus(ctx context.Context, chatID int64) {
	st, err := b.account.LinkStatus(ctx)
	if err != nil {
		b.log.Warn("load link status", "error", err)
		b.reply(chatID, "Could not check the link status right now.")
		return
	}
	if err := b.session.ApplyLinkStatus(ctx, st); err != nil {
		b.log.Error("save premium status", "error", err)
	}
	b.reply(chatID, FormatLinkStatus(st))
}

func (b *Bot) handleLive(chatID int64, args string) {
	switch args {
	case "on":
		if !b.live.Running() {
			b.live.Start(b.live.Filter(), b.cfg.PollInterval)
		}
	case "off":
		b.live.Stop()
	case "":
	default:
		b.reply(chatID, "Usage: /live [on|off]")
		return
	}
	b.reply(chatID, FormatLiveStatus(b.live.Running(), b.live.Filter(), b.live.Watermark(), b.chats.Chat()))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	list, err := b.rules.List(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(list))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, args string, kind model.RuleKind) {
	parsed, err := ParseRuleCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	r, err := b.rules.Add(ctx, kind, parsed.Scope, parsed.Value)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d added: %s %s (%s)", r.ID, kind, r.Value, scopeLabel(r.Scope)))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseRuleID(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}
	if err := b.rules.Remove(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d removed.", id))
}

// findListing looks a listing up in the cache of shown listings, then in
// the saved list.
func (b *Bot) findListing(ctx context.Context, id model.ListingID) (model.Listing, bool) {
	l, err := b.listings.GetListing(ctx, id)
	if err == nil {
		return *l, true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		b.log.Warn("load cached listing", "listing_id", id, "error", err)
	}
	return b.saved.Get(id)
}

func (b *Bot) cacheListings(ctx context.Context, items []model.Listing) {
	if len(items) == 0 {
		return
	}
	if err := b.listings.PutListings(ctx, items); err != nil {
		b.log.Warn("cache listings", "count", len(items), "error", err)
	}
}
