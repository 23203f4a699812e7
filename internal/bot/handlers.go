package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketwatch/internal/alerts"
	"marketwatch/internal/filter"
	"marketwatch/internal/model"
	"marketwatch/internal/report"
	"marketwatch/internal/scheduler"
)

// defaultShowCount is how many listings /history shows without a count.
const defaultShowCount = 20

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Marketplace Alert Bot!

Watch marketplace searches and get notified about new listings.

Quick start:
1. /add <term> - create an alert
2. /on <term> - start monitoring it
3. /check <term> - search right now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Alerts:
/add <term> - create an alert (inactive)
/list - show your alerts
/on <term> - start monitoring
/off <term> - stop monitoring
/delete <term> - delete an alert and its history

Results:
/check <term> - search now and store new listings
/history <term> [count] - show the latest stored listings
/export <term> - download stored listings as HTML

The first search after /on only records existing listings; you are notified about listings that appear after it.`)
}

// alertKey normalizes the term and reports invalid input to the chat.
func (b *Bot) alertKey(userID, chatID int64, args, usage string) (model.Key, bool) {
	raw, err := ParseTermArg(args)
	if err != nil {
		b.reply(chatID, usage)
		return model.Key{}, false
	}
	key, err := alerts.KeyFor(userID, raw)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid search term. Terms must be 1 to %d characters.", filter.MaxTermLength))
		return model.Key{}, false
	}
	return key, true
}

// replyError maps alert and supervisor errors to chat messages.
func (b *Bot) replyError(chatID int64, term string, err error) {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("No alert for %q. Use /add %s first.", term, term))
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		b.reply(chatID, fmt.Sprintf("Monitoring for %q is already running.", term))
	case errors.Is(err, scheduler.ErrPollInProgress):
		b.reply(chatID, fmt.Sprintf("A search for %q is already in progress.", term))
	case errors.Is(err, scheduler.ErrStopped):
		b.reply(chatID, "The bot is shutting down, try again later.")
	default:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	}
}

func (b *Bot) handleAdd(ctx context.Context, userID, chatID int64, args string) {
	raw, err := ParseTermArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /add <term>")
		return
	}

	alert, err := b.sup.Create(ctx, userID, raw, chatID)
	switch {
	case errors.Is(err, alerts.ErrInvalidTerm):
		b.reply(chatID, fmt.Sprintf("Invalid search term. Terms must be 1 to %d characters.", filter.MaxTermLength))
		return
	case errors.Is(err, alerts.ErrAlreadyExists):
		status := statusPaused
		if alert.Active {
			status = statusActive
		}
		b.reply(chatID, fmt.Sprintf("You already have an alert for %q [%s].", alert.Term, status))
		return
	case err != nil:
		b.replyError(chatID, raw, err)
		return
	}

	b.replyWithKeyboard(chatID,
		fmt.Sprintf("Alert %q created. Monitoring is off; use /on %s to start it.", alert.Term, alert.Term),
		keyboardRows(buttonRow(
			callbackButton("Start monitoring", actionOn, alert.Term),
			callbackButton("Search now", actionCheck, alert.Term),
		)),
	)
}

func (b *Bot) handleList(userID, chatID int64) {
	list := b.registry.List(userID)

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range list {
		toggle := callbackButton("Start "+a.Term, actionOn, a.Term)
		if a.Active {
			toggle = callbackButton("Stop "+a.Term, actionOff, a.Term)
		}
		rows = append(rows, buttonRow(toggle, callbackButton("Delete", actionDeleteConfirm, a.Term)))
	}
	b.replyWithKeyboard(chatID, FormatAlertList(list), keyboardRows(rows...))
}

func (b *Bot) handleOn(ctx context.Context, userID, chatID int64, args string) {
	key, ok := b.alertKey(userID, chatID, args, "Usage: /on <term>")
	if !ok {
		return
	}
	if err := b.sup.Activate(ctx, key); err != nil {
		b.replyError(chatID, key.Term, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Monitoring started for %q. You will be notified about new listings.", key.Term))
}

func (b *Bot) handleOff(ctx context.Context, userID, chatID int64, args string) {
	key, ok := b.alertKey(userID, chatID, args, "Usage: /off <term>")
	if !ok {
		return
	}
	if err := b.sup.Deactivate(ctx, key); err != nil {
		b.replyError(chatID, key.Term, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Monitoring stopped for %q.", key.Term))
}

func (b *Bot) handleDelete(ctx context.Context, userID, chatID int64, args string) {
	key, ok := b.alertKey(userID, chatID, args, "Usage: /delete <term>")
	if !ok {
		return
	}
	if err := b.sup.Delete(ctx, key); err != nil {
		b.replyError(chatID, key.Term, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Alert %q deleted.", key.Term))
}

func (b *Bot) handleCheck(ctx context.Context, userID, chatID int64, args string) {
	key, ok := b.alertKey(userID, chatID, args, "Usage: /check <term>")
	if !ok {
		return
	}

	if _, err := b.registry.Get(key); err != nil {
		b.replyError(chatID, key.Term, err)
		return
	}

	b.reply(chatID, fmt.Sprintf("Searching %q...", key.Term))
	res, err := b.sup.PollNow(ctx, key)
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) || errors.Is(err, scheduler.ErrPollInProgress) {
			b.replyError(chatID, key.Term, err)
			return
		}
		b.log.Warn("poll now", "user_id", userID, "term", key.Term, "error", err)
		b.reply(chatID, fmt.Sprintf("Search for %q failed, try again later.", key.Term))
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if res.HistorySize > 0 {
		rows = append(rows, buttonRow(
			callbackButton(fmt.Sprintf("Show latest %d", min(defaultShowCount, res.HistorySize)), actionShow, key.Term),
			callbackButton("Download HTML", actionExport, key.Term),
		))
	}
	b.replyWithKeyboard(chatID, FormatPollResult(key.Term, res), keyboardRows(rows...))
}

func (b *Bot) handleHistory(userID, chatID int64, args string) {
	limit := b.history.Capacity()
	raw, n, err := ParseHistoryArgs(args, min(defaultShowCount, limit), limit)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	key, ok := b.alertKey(userID, chatID, raw, "Usage: /history <term> [count]")
	if !ok {
		return
	}
	b.showHistory(chatID, key, n)
}

func (b *Bot) showHistory(chatID int64, key model.Key, n int) {
	if _, err := b.registry.Get(key); err != nil {
		b.replyError(chatID, key.Term, err)
		return
	}

	listings := b.history.Snapshot(key, n)
	if len(listings) == 0 {
		b.reply(chatID, fmt.Sprintf("No listings stored for %q yet. Try /check %s.", key.Term, key.Term))
		return
	}

	b.reply(chatID, fmt.Sprintf("Latest %d listing(s) for %q:", len(listings), key.Term))
	for _, l := range listings {
		if err := b.notifier.SendListing(chatID, l); err != nil {
			b.log.Error("send listing", "chat_id", chatID, "listing_id", l.ID, "error", err)
		}
	}
}

func (b *Bot) handleExport(userID, chatID int64, args string) {
	key, ok := b.alertKey(userID, chatID, args, "Usage: /export <term>")
	if !ok {
		return
	}
	b.exportHistory(chatID, key)
}

func (b *Bot) exportHistory(chatID int64, key model.Key) {
	if _, err := b.registry.Get(key); err != nil {
		b.replyError(chatID, key.Term, err)
		return
	}

	listings := b.history.Snapshot(key, 0)
	if len(listings) == 0 {
		b.reply(chatID, fmt.Sprintf("No listings stored for %q yet. Try /check %s.", key.Term, key.Term))
		return
	}

	page, err := report.HTML(key.Term, listings)
	if err != nil {
		b.log.Error("render report", "term", key.Term, "error", err)
		b.reply(chatID, "Failed to build the report.")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: report.Filename(key.Term), Bytes: page})
	doc.Caption = fmt.Sprintf("%d listing(s) for %q", len(listings), key.Term)
	if _, err := b.api.Send(doc); err != nil {
		b.log.Error("send document", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to send the report.")
	}
}
