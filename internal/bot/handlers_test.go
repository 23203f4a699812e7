package bot

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"marketwatch/internal/model"
	"marketwatch/internal/scheduler"
)

func TestParseTermArg(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    string
		wantErr bool
	}{
		{name: "single word", args: "bici", want: "bici"},
		{name: "keeps inner spaces", args: "  bici rodado 29 ", want: "bici rodado 29"},
		{name: "empty", args: "", wantErr: true},
		{name: "only spaces", args: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTermArg(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseHistoryArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantTerm  string
		wantCount int
		wantErr   bool
	}{
		{name: "term only", args: "bici", wantTerm: "bici", wantCount: 20},
		{name: "term and count", args: "bici 5", wantTerm: "bici", wantCount: 5},
		{name: "multi word term and count", args: "bici rodado 29 3", wantTerm: "bici rodado 29", wantCount: 3},
		{name: "numeric term only", args: "29", wantTerm: "29", wantCount: 20},
		{name: "count at limit", args: "bici 30", wantTerm: "bici", wantCount: 30},
		{name: "count zero", args: "bici 0", wantErr: true},
		{name: "count above limit", args: "bici 31", wantErr: true},
		{name: "negative count", args: "bici -1", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, n, err := ParseHistoryArgs(tt.args, 20, 30)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.wantTerm, term); diff != "" {
				t.Errorf("term mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCount, n); diff != "" {
				t.Errorf("count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data       string
		wantAction string
		wantTerm   string
		wantOK     bool
	}{
		{data: "on:bici", wantAction: "on", wantTerm: "bici", wantOK: true},
		{data: "check:bici rodado 29", wantAction: "check", wantTerm: "bici rodado 29", wantOK: true},
		{data: "show:a:b", wantAction: "show", wantTerm: "a:b", wantOK: true},
		{data: "noop:", wantAction: "noop", wantOK: true},
		{data: "nocolon"},
		{data: ":bici"},
		{data: ""},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, term, ok := parseCallbackData(tt.data)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Fatalf("ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantAction, action); diff != "" {
				t.Errorf("action mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantTerm, term); diff != "" {
				t.Errorf("term mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCallbackButton(t *testing.T) {
	if btn := callbackButton("Start", actionOn, "bici"); btn == nil || *btn.CallbackData != "on:bici" {
		t.Errorf("unexpected button %+v", btn)
	}

	fits := strings.Repeat("x", maxCallbackData-len("on:"))
	if callbackButton("Start", actionOn, fits) == nil {
		t.Error("button at the size limit should be kept")
	}
	if callbackButton("Start", actionOn, fits+"x") != nil {
		t.Error("button over the size limit should be dropped")
	}

	rows := keyboardRows(buttonRow(nil, nil), buttonRow(callbackButton("Delete", actionDelete, "bici")))
	if diff := cmp.Diff(1, len(rows)); diff != "" {
		t.Errorf("row count (-want +got):\n%s", diff)
	}
}

func TestFormatListing(t *testing.T) {
	tests := []struct {
		name    string
		listing model.Listing
		want    string
	}{
		{
			name: "full listing",
			listing: model.Listing{
				ID:       "1",
				Title:    "Bicicleta rodado 29",
				Price:    "$150.000",
				Location: "Rosario, SF",
				URL:      "https://www.facebook.com/marketplace/item/1/",
			},
			want: "<b>Bicicleta rodado 29</b>\nPrice: $150.000\nLocation: Rosario, SF\n" +
				`<a href="https://www.facebook.com/marketplace/item/1/">View listing</a>`,
		},
		{
			name:    "escapes html",
			listing: model.Listing{Title: "<Bike> & co", URL: `https://example.com/?a=1&b="2"`},
			want:    "<b>&lt;Bike&gt; &amp; co</b>\n" + `<a href="https://example.com/?a=1&amp;b=&#34;2&#34;">View listing</a>`,
		},
		{
			name:    "untitled",
			listing: model.Listing{URL: "https://example.com/1"},
			want:    "<b>Untitled</b>\n" + `<a href="https://example.com/1">View listing</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatListing(tt.listing)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatListingTruncatesTitle(t *testing.T) {
	got := FormatListing(model.Listing{Title: strings.Repeat("a", 300), URL: "https://example.com"})
	want := "<b>" + strings.Repeat("a", maxTitleRunes-1) + "…</b>"
	if !strings.HasPrefix(got, want) {
		t.Errorf("title not truncated, got:\n%s", got)
	}
}

func TestFormatPlainListing(t *testing.T) {
	got := FormatPlainListing(model.Listing{Title: "<Bike>", URL: "https://example.com/1"})
	if diff := cmp.Diff("New listing: <Bike>\nhttps://example.com/1", got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatAlertList(t *testing.T) {
	tests := []struct {
		name string
		list []model.Alert
		want string
	}{
		{
			name: "empty",
			want: "You have no alerts yet. Use /add <term> to create one.",
		},
		{
			name: "mixed states",
			list: []model.Alert{
				{Subscriber: 1, Term: "bici", Active: true},
				{Subscriber: 1, Term: "zapatillas"},
			},
			want: "Your alerts:\n\n\"bici\" [active]\n\"zapatillas\" [paused]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatAlertList(tt.list)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatPollResult(t *testing.T) {
	res := scheduler.PollResult{
		Found:       24,
		Added:       []model.Listing{{ID: "1"}, {ID: "2"}},
		HistorySize: 30,
	}
	want := "Search \"bici\" finished: 24 listing(s) found, 2 new.\nHistory now holds 30 listing(s)."
	if diff := cmp.Diff(want, FormatPollResult("bici", res)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
