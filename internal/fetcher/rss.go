package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"marketwatch/internal/filter"
	"marketwatch/internal/model"
)

// RSS searches classifieds sites that publish search results as an RSS or
// Atom feed. The URL template may contain {query}, {lat}, {lon} and
// {radius} placeholders.
type RSS struct {
	client   HTTPClient
	template string
}

// NewRSS creates an RSS client for the given URL template.
func NewRSS(client HTTPClient, template string) *RSS {
	return &RSS{client: client, template: template}
}

// URL expands the template for one search.
func (r *RSS) URL(term string, area model.Area) string {
	return strings.NewReplacer(
		"{query}", url.QueryEscape(term),
		"{lat}", strconv.FormatFloat(area.Latitude, 'f', -1, 64),
		"{lon}", strconv.FormatFloat(area.Longitude, 'f', -1, 64),
		"{radius}", strconv.Itoa(area.RadiusKM),
	).Replace(r.template)
}

// Fetch downloads and parses the search feed.
func (r *RSS) Fetch(ctx context.Context, term string, area model.Area) ([]model.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(term, area), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	body, err := do(r.client, req)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	listings := make([]model.Listing, 0, len(feed.Items))
	for _, item := range feed.Items {
		listings = append(listings, itemListing(item))
	}
	return filter.Listings(listings), nil
}

func itemListing(item *gofeed.Item) model.Listing {
	l := model.Listing{
		ID:    ItemGUID(item),
		Title: item.Title,
		URL:   item.Link,
	}
	if item.Image != nil {
		l.ImageURL = item.Image.URL
	}
	for _, c := range item.Categories {
		if price, ok := strings.CutPrefix(c, "price:"); ok {
			l.Price = price
		}
		if loc, ok := strings.CutPrefix(c, "location:"); ok {
			l.Location = loc
		}
	}
	return l
}
