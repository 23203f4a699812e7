package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"marketwatch/internal/filter"
	"marketwatch/internal/model"
)

// Marketplace defaults.
const (
	DefaultMarketplaceURL = "https://www.facebook.com/api/graphql/"
	itemURLFormat         = "https://www.facebook.com/marketplace/item/%s/"
	searchDocID           = "9082812915151057"
	searchQueryName       = "CometMarketplaceSearchContentPaginationQuery"
	pageSize              = 24
)

// ErrNoCookie is returned when the marketplace client has no session cookie.
var ErrNoCookie = errors.New("marketplace cookie is not configured")

// Marketplace searches the marketplace GraphQL endpoint with a browser
// session cookie.
type Marketplace struct {
	client   HTTPClient
	endpoint string
	cookie   string
}

// NewMarketplace creates a Marketplace client. An empty endpoint uses
// DefaultMarketplaceURL.
func NewMarketplace(client HTTPClient, endpoint, cookie string) *Marketplace {
	if endpoint == "" {
		endpoint = DefaultMarketplaceURL
	}
	return &Marketplace{client: client, endpoint: endpoint, cookie: cookie}
}

type searchVariables struct {
	Count  int          `json:"count"`
	Cursor *string      `json:"cursor"`
	Params searchParams `json:"params"`
	Scale  int          `json:"scale"`
}

type searchParams struct {
	BQF           searchBQF     `json:"bqf"`
	BrowseRequest browseRequest `json:"browse_request_params"`
}

type searchBQF struct {
	Callsite string `json:"callsite"`
	Query    string `json:"query"`
}

type browseRequest struct {
	LocalPickup bool    `json:"commerce_enable_local_pickup"`
	Shipping    bool    `json:"commerce_enable_shipping"`
	Latitude    float64 `json:"filter_location_latitude"`
	Longitude   float64 `json:"filter_location_longitude"`
	PriceLower  int64   `json:"filter_price_lower_bound"`
	PriceUpper  int64   `json:"filter_price_upper_bound"`
	RadiusKM    int     `json:"filter_radius_km"`
}

type searchResponse struct {
	Data struct {
		MarketplaceSearch struct {
			FeedUnits struct {
				Edges []struct {
					Node struct {
						Listing *rawListing `json:"listing"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"feed_units"`
		} `json:"marketplace_search"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type rawListing struct {
	ID    string `json:"id"`
	Title string `json:"marketplace_listing_title"`
	Price struct {
		Formatted string `json:"formatted_amount"`
	} `json:"listing_price"`
	Photo *struct {
		Image struct {
			URI string `json:"uri"`
		} `json:"image"`
	} `json:"primary_listing_photo"`
	Location *struct {
		ReverseGeocode struct {
			City string `json:"city"`
		} `json:"reverse_geocode"`
	} `json:"location"`
	Sold bool `json:"is_sold"`
}

// Fetch runs one search and returns the unsold listings in result order.
func (m *Marketplace) Fetch(ctx context.Context, term string, area model.Area) ([]model.Listing, error) {
	if m.cookie == "" {
		return nil, ErrNoCookie
	}

	vars, err := json.Marshal(searchVariables{
		Count: pageSize,
		Params: searchParams{
			BQF: searchBQF{Callsite: "COMMERCE_MKTPLACE_WWW", Query: term},
			BrowseRequest: browseRequest{
				LocalPickup: true,
				Shipping:    true,
				Latitude:    area.Latitude,
				Longitude:   area.Longitude,
				PriceUpper:  214748364700,
				RadiusKM:    area.RadiusKM,
			},
		},
		Scale: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}

	form := url.Values{}
	form.Set("av", "0")
	form.Set("__user", "0")
	form.Set("__a", "1")
	form.Set("fb_api_caller_class", "RelayModern")
	form.Set("fb_api_req_friendly_name", searchQueryName)
	form.Set("variables", string(vars))
	form.Set("server_timestamps", "true")
	form.Set("doc_id", searchDocID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cookie", m.cookie)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-FB-Friendly-Name", searchQueryName)

	body, err := do(m.client, req)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", resp.Errors[0].Message)
	}

	var listings []model.Listing
	for _, edge := range resp.Data.MarketplaceSearch.FeedUnits.Edges {
		raw := edge.Node.Listing
		if raw == nil {
			continue
		}
		listings = append(listings, raw.toListing())
	}
	return filter.Listings(listings), nil
}

func (r *rawListing) toListing() model.Listing {
	l := model.Listing{
		ID:    r.ID,
		Title: r.Title,
		Price: r.Price.Formatted,
		URL:   fmt.Sprintf(itemURLFormat, url.PathEscape(r.ID)),
		Sold:  r.Sold,
	}
	if r.Photo != nil {
		l.ImageURL = r.Photo.Image.URI
	}
	if r.Location != nil {
		l.Location = r.Location.ReverseGeocode.City
	}
	return l
}
