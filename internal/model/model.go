// Package model defines the domain types used across the application.
package model

import "fmt"

// Key identifies an alert: one subscriber watching one normalized search term.
type Key struct {
	Subscriber int64
	Term       string
}

// NewKey builds a Key. The term must already be normalized.
func NewKey(subscriber int64, term string) Key {
	return Key{Subscriber: subscriber, Term: term}
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.Subscriber, k.Term)
}

// Alert is a persistent subscription for one search term.
type Alert struct {
	Subscriber  int64
	Term        string
	Active      bool
	Destination int64
}

// Key returns the alert's identity.
func (a Alert) Key() Key {
	return Key{Subscriber: a.Subscriber, Term: a.Term}
}

// Listing is a single marketplace item returned by a feed.
type Listing struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Location string `json:"location"`
	Sold     bool   `json:"-"`
}

// Area is the geographic filter applied to every search.
type Area struct {
	Latitude  float64
	Longitude float64
	RadiusKM  int
}
