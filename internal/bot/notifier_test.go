package bot

import (
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"marketwatch/internal/model"
)

func newTestNotifier(api *mockAPI) *Notifier {
	return NewNotifier(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifierSendListing(t *testing.T) {
	withImage := model.Listing{ID: "1", Title: "Bike", URL: "https://example.com/1", ImageURL: "https://img.example.com/1.jpg"}
	noImage := model.Listing{ID: "2", Title: "Bike", URL: "https://example.com/2"}

	t.Run("photo with caption", func(t *testing.T) {
		api := &mockAPI{}
		if err := newTestNotifier(api).SendListing(42, withImage); err != nil {
			t.Fatalf("send listing: %v", err)
		}
		if len(api.photos) != 1 {
			t.Fatalf("expected 1 photo, got %d", len(api.photos))
		}
		photo := api.photos[0]
		if diff := cmp.Diff(int64(42), photo.ChatID); diff != "" {
			t.Errorf("chat id (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(tgbotapi.FileURL(withImage.ImageURL), photo.File); diff != "" {
			t.Errorf("file (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(FormatListing(withImage), photo.Caption); diff != "" {
			t.Errorf("caption (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(tgbotapi.ModeHTML, photo.ParseMode); diff != "" {
			t.Errorf("parse mode (-want +got):\n%s", diff)
		}
		if len(api.sent) != 0 {
			t.Errorf("unexpected text messages: %v", api.sent)
		}
	})

	t.Run("html message without image", func(t *testing.T) {
		api := &mockAPI{}
		if err := newTestNotifier(api).SendListing(42, noImage); err != nil {
			t.Fatalf("send listing: %v", err)
		}
		want := []sentMsg{{ChatID: 42, Text: FormatListing(noImage), ParseMode: tgbotapi.ModeHTML}}
		if diff := cmp.Diff(want, api.sent); diff != "" {
			t.Errorf("messages (-want +got):\n%s", diff)
		}
	})

	t.Run("falls back to plain link when photo fails", func(t *testing.T) {
		api := &mockAPI{failPhoto: true}
		if err := newTestNotifier(api).SendListing(42, withImage); err != nil {
			t.Fatalf("send listing: %v", err)
		}
		want := []sentMsg{{ChatID: 42, Text: FormatPlainListing(withImage)}}
		if diff := cmp.Diff(want, api.sent); diff != "" {
			t.Errorf("messages (-want +got):\n%s", diff)
		}
	})

	t.Run("falls back to plain link when html fails", func(t *testing.T) {
		api := &mockAPI{failHTML: true}
		if err := newTestNotifier(api).SendListing(42, noImage); err != nil {
			t.Fatalf("send listing: %v", err)
		}
		want := []sentMsg{{ChatID: 42, Text: FormatPlainListing(noImage)}}
		if diff := cmp.Diff(want, api.sent); diff != "" {
			t.Errorf("messages (-want +got):\n%s", diff)
		}
	})

	t.Run("error when fallback fails too", func(t *testing.T) {
		api := &mockAPI{failAll: true}
		if err := newTestNotifier(api).SendListing(42, withImage); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestNotifierSendText(t *testing.T) {
	api := &mockAPI{}
	n := newTestNotifier(api)
	if err := n.SendText(7, `Monitoring stopped for "bici".`); err != nil {
		t.Fatalf("send text: %v", err)
	}
	want := []sentMsg{{ChatID: 7, Text: `Monitoring stopped for "bici".`}}
	if diff := cmp.Diff(want, api.sent); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}

	api.failAll = true
	if err := n.SendText(7, "x"); err == nil {
		t.Error("expected error")
	}
}
