// Package storage defines the persisted tables and their backends.
package storage

import (
	"context"

	"marketwatch/internal/model"
)

// AlertRow is the persisted state of one alert.
type AlertRow struct {
	Active      bool  `json:"active"`
	Destination int64 `json:"destination"`
}

// AlertTable maps subscriber ID to normalized term to alert state.
type AlertTable map[int64]map[string]AlertRow

// HistoryTable maps subscriber ID to normalized term to recent listings,
// newest first.
type HistoryTable map[int64]map[string][]model.Listing

// AlertStore loads and saves the alert table.
type AlertStore interface {
	LoadAlerts(ctx context.Context) (AlertTable, error)
	SaveAlerts(ctx context.Context, t AlertTable) error
}

// HistoryStore loads and saves the history table.
type HistoryStore interface {
	LoadHistory(ctx context.Context) (HistoryTable, error)
	SaveHistory(ctx context.Context, t HistoryTable) error
}

// Storage is the interface for all persistence operations.
//
// Load methods fail soft: they always return a usable (possibly empty) table,
// and a non-nil error only signals that persisted content had to be ignored.
type Storage interface {
	AlertStore
	HistoryStore

	Close() error
}
