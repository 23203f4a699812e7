package bot

import (
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketwatch/internal/model"
)

// Notifier delivers listings and notices to Telegram chats.
type Notifier struct {
	api API
	log *slog.Logger
}

// NewNotifier creates a Notifier on top of api.
func NewNotifier(api API, log *slog.Logger) *Notifier {
	return &Notifier{api: api, log: log}
}

// SendListing sends a listing as a photo with an HTML caption, or as an HTML
// message when it has no image. If that fails a plain link is sent instead.
func (n *Notifier) SendListing(chatID int64, l model.Listing) error {
	caption := FormatListing(l)

	var err error
	if l.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(l.ImageURL))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		_, err = n.api.Send(photo)
	} else {
		msg := tgbotapi.NewMessage(chatID, caption)
		msg.ParseMode = tgbotapi.ModeHTML
		_, err = n.api.Send(msg)
	}
	if err == nil {
		return nil
	}

	n.log.Warn("send listing failed, falling back to plain link", "chat_id", chatID, "listing_id", l.ID, "error", err)
	fallback := tgbotapi.NewMessage(chatID, FormatPlainListing(l))
	if _, ferr := n.api.Send(fallback); ferr != nil {
		return fmt.Errorf("send listing: %w", errors.Join(err, ferr))
	}
	return nil
}

// SendText sends a plain text message without link previews.
func (n *Notifier) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}
