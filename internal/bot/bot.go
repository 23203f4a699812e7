package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketwatch/internal/alerts"
	"marketwatch/internal/config"
	"marketwatch/internal/history"
	"marketwatch/internal/scheduler"
)

// API is the subset of the Telegram client used by the bot.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands.
type Bot struct {
	api      API
	notifier *Notifier
	sup      *scheduler.Supervisor
	registry *alerts.Registry
	history  *history.Cache
	cfg      *config.Config
	log      *slog.Logger
}

// New creates a Bot. Alert state changes go through sup; registry and
// cache are only read.
func New(api API, sup *scheduler.Supervisor, registry *alerts.Registry, cache *history.Cache, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		notifier: NewNotifier(api, log),
		sup:      sup,
		registry: registry,
		history:  cache,
		cfg:      cfg,
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
				if update.CallbackQuery.From == nil || !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.notifier.SendText(chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	userID := msg.From.ID
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "user_id", userID, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, userID, chatID, args)
	case "list":
		b.handleList(userID, chatID)
	case actionOn:
		b.handleOn(ctx, userID, chatID, args)
	case actionOff:
		b.handleOff(ctx, userID, chatID, args)
	case actionDelete:
		b.handleDelete(ctx, userID, chatID, args)
	case actionCheck:
		b.handleCheck(ctx, userID, chatID, args)
	case "history":
		b.handleHistory(userID, chatID, args)
	case actionExport:
		b.handleExport(userID, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
