package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	actionOn            = "on"
	actionOff           = "off"
	actionCheck         = "check"
	actionShow          = "show"
	actionExport        = "export"
	actionDelete        = "delete"
	actionDeleteConfirm = "delete_confirm"
	actionNoop          = "noop"

	// Telegram rejects callback data longer than 64 bytes.
	maxCallbackData = 64
)

// callbackButton returns nil when the data does not fit in a callback.
func callbackButton(text, action, term string) *tgbotapi.InlineKeyboardButton {
	data := action + ":" + term
	if len(data) > maxCallbackData {
		return nil
	}
	btn := tgbotapi.NewInlineKeyboardButtonData(text, data)
	return &btn
}

func buttonRow(buttons ...*tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	for _, btn := range buttons {
		if btn != nil {
			row = append(row, *btn)
		}
	}
	return row
}

func keyboardRows(rows ...[]tgbotapi.InlineKeyboardButton) [][]tgbotapi.InlineKeyboardButton {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		if len(row) > 0 {
			out = append(out, row)
		}
	}
	return out
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	if cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID

	action, term, ok := parseCallbackData(cb.Data)
	if !ok || action == actionNoop {
		return
	}

	b.log.Info("callback",
		"action", action,
		"term", term,
		"chat_id", chatID,
		"user_id", userID,
		"username", cb.From.UserName,
	)

	switch action {
	case actionOn:
		b.handleOn(ctx, userID, chatID, term)
	case actionOff:
		b.handleOff(ctx, userID, chatID, term)
	case actionCheck:
		b.handleCheck(ctx, userID, chatID, term)
	case actionShow:
		if key, ok := b.alertKey(userID, chatID, term, "Usage: /history <term> [count]"); ok {
			b.showHistory(chatID, key, min(defaultShowCount, b.history.Capacity()))
		}
	case actionExport:
		b.handleExport(userID, chatID, term)
	case actionDeleteConfirm:
		key, ok := b.alertKey(userID, chatID, term, "Usage: /delete <term>")
		if !ok {
			return
		}
		if _, err := b.registry.Get(key); err != nil {
			b.replyError(chatID, key.Term, err)
			return
		}
		b.replyWithKeyboard(chatID,
			fmt.Sprintf("Delete alert %q and its history? This cannot be undone.", key.Term),
			keyboardRows(buttonRow(
				callbackButton("Yes, delete", actionDelete, key.Term),
				callbackButton("Cancel", actionNoop, ""),
			)),
		)
	case actionDelete:
		b.handleDelete(ctx, userID, chatID, term)
	}
}
