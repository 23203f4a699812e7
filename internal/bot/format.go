package bot

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketwatch/internal/model"
	"marketwatch/internal/scheduler"
)

const (
	statusActive = "active"
	statusPaused = "paused"

	// Photo captions are limited to 1024 characters.
	maxTitleRunes = 200
)

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// FormatListing formats a listing as a Telegram HTML message.
func FormatListing(l model.Listing) string {
	title := l.Title
	if title == "" {
		title = "Untitled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", escape(truncate(title, maxTitleRunes)))
	if l.Price != "" {
		fmt.Fprintf(&b, "Price: %s\n", escape(l.Price))
	}
	if l.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", escape(l.Location))
	}
	fmt.Fprintf(&b, `<a href="%s">View listing</a>`, html.EscapeString(l.URL))
	return b.String()
}

// FormatPlainListing is the fallback used when the rich message is rejected.
func FormatPlainListing(l model.Listing) string {
	title := l.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("New listing: %s\n%s", truncate(title, maxTitleRunes), l.URL)
}

// FormatAlertList formats the subscriber's alerts for display.
func FormatAlertList(list []model.Alert) string {
	if len(list) == 0 {
		return "You have no alerts yet. Use /add <term> to create one."
	}
	var b strings.Builder
	b.WriteString("Your alerts:\n")
	for _, a := range list {
		status := statusActive
		if !a.Active {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n%q [%s]", a.Term, status)
	}
	return b.String()
}

// FormatPollResult summarizes an on-demand search.
func FormatPollResult(term string, res scheduler.PollResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search %q finished: %d listing(s) found, %d new.\n", term, res.Found, len(res.Added))
	fmt.Fprintf(&b, "History now holds %d listing(s).", res.HistorySize)
	return b.String()
}
