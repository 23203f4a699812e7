// Package filter normalizes search terms and sanitizes marketplace results
// before they reach the history cache.
package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"

	"marketwatch/internal/model"
)

// MaxTermLength is the longest accepted search term, in runes.
const MaxTermLength = 100

// NormalizeTerm canonicalizes a search term so that equivalent inputs map to
// the same alert key. The text is transliterated to ASCII ("Straße" becomes
// "strasse"), lower-cased and trimmed, and internal whitespace is collapsed
// to single spaces.
func NormalizeTerm(raw string) string {
	s := unidecode.Unidecode(norm.NFKC.String(raw))
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ValidTerm reports whether a normalized term can be used as an alert key.
func ValidTerm(term string) bool {
	return term != "" && utf8.RuneCountInString(term) <= MaxTermLength
}

// Listings drops sold items and items without an ID, trims text fields and
// removes duplicate IDs within the batch. Order is preserved.
func Listings(items []model.Listing) []model.Listing {
	out := make([]model.Listing, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Sold {
			continue
		}
		id := strings.TrimSpace(it.ID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		it.ID = id
		it.Title = strings.TrimSpace(it.Title)
		it.Price = strings.TrimSpace(it.Price)
		it.URL = strings.TrimSpace(it.URL)
		it.ImageURL = strings.TrimSpace(it.ImageURL)
		it.Location = strings.TrimSpace(it.Location)
		out = append(out, it)
	}
	return out
}
