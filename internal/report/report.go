// Package report renders alert history as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"unicode"

	"marketwatch/internal/model"
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Marketplace results for {{.Term}}</title>
<style>
body { font-family: sans-serif; margin: 20px; background-color: #f4f4f4; line-height: 1.6; }
.listing { border: 1px solid #ddd; padding: 15px; margin-bottom: 15px; border-radius: 8px; background-color: #fff; display: flex; align-items: center; gap: 15px; }
.listing img { max-width: 100px; max-height: 100px; object-fit: cover; border-radius: 4px; flex-shrink: 0; }
.title { font-size: 1.1em; margin: 0 0 5px 0; font-weight: bold; }
.price { color: #008000; font-weight: bold; margin: 5px 0; }
.location { color: #555; font-size: 0.9em; }
a { color: #1877f2; text-decoration: none; }
h1 { color: #333; border-bottom: 2px solid #1877f2; padding-bottom: 10px; }
</style>
</head>
<body>
<h1>Marketplace results for: {{.Term}}</h1>
{{- if not .Listings}}
<p>No recent listings for this search.</p>
{{- end}}
{{- range .Listings}}
<div class="listing">
{{- if .ImageURL}}
<img src="{{.ImageURL}}" alt="Listing photo">
{{- end}}
<div>
<p class="title"><a href="{{.URL}}" target="_blank" rel="noopener">{{or .Title "Untitled"}}</a></p>
<p class="price">{{or .Price "No price"}}</p>
<p class="location">{{or .Location "Unknown location"}}</p>
</div>
</div>
{{- end}}
</body>
</html>
`))

// HTML renders listings for term.
func HTML(term string, listings []model.Listing) ([]byte, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Term     string
		Listings []model.Listing
	}{Term: term, Listings: listings})
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns a safe attachment name for term.
func Filename(term string) string {
	var b strings.Builder
	for _, r := range term {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "search"
	}
	return "listings_" + name + ".html"
}
