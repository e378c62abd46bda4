package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hollowscan/internal/model"
)

const (
	cmdFeed   = "feed"
	cmdView   = "view"
	cmdSave   = "save"
	cmdRmRule = "rmrule"
)

// Telegram rejects callback data longer than this.
const maxCallbackData = 64

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(data, ":")
	if !ok || arg == "" {
		return
	}

	var userID int64
	var username string
	if cb.From != nil {
		userID, username = cb.From.ID, cb.From.UserName
	}
	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", userID,
		"username", username,
	)

	switch action {
	case cmdView:
		b.handleView(ctx, chatID, arg)
	case cmdSave:
		b.handleSave(ctx, chatID, arg)
	case cmdFeed:
		b.handleFeed(ctx, chatID, arg)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, arg)
	}
}

func callbackData(action, arg string) (string, bool) {
	data := action + ":" + arg
	return data, len(data) <= maxCallbackData
}

// listingKeyboard returns the view/save buttons of a listing, or false
// when its id does not fit into callback data.
func listingKeyboard(id model.ListingID) (tgbotapi.InlineKeyboardMarkup, bool) {
	view, ok1 := callbackData(cmdView, string(id))
	save, ok2 := callbackData(cmdSave, string(id))
	if !ok1 || !ok2 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("View", view),
			tgbotapi.NewInlineKeyboardButtonData("Save", save),
		),
	), true
}

func saveKeyboard(id model.ListingID) tgbotapi.InlineKeyboardMarkup {
	data, ok := callbackData(cmdSave, string(id))
	if !ok {
		return tgbotapi.InlineKeyboardMarkup{}
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Save / unsave", data)),
	)
}

// feedKeyboard has one view button per listing and a next-page button
// when the page was full.
func feedKeyboard(items []model.Listing, page int, full bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, it := range items {
		data, ok := callbackData(cmdView, string(it.ID))
		if !ok {
			continue
		}
		label := strconv.Itoa(i+1) + ". " + truncate(it.Product().Title, 40)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	if full {
		next, _ := callbackData(cmdFeed, strconv.Itoa(page+1))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Next page", next)))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
