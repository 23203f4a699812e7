// Package alerts holds the in-memory registry of alert definitions.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"marketwatch/internal/filter"
	"marketwatch/internal/model"
	"marketwatch/internal/storage"
)

var (
	// ErrNotFound is returned when no alert exists for a key.
	ErrNotFound = errors.New("alert not found")
	// ErrAlreadyExists is returned when the subscriber already watches the term.
	ErrAlreadyExists = errors.New("alert already exists")
	// ErrInvalidTerm is returned for terms that are empty or too long after normalization.
	ErrInvalidTerm = errors.New("invalid search term")
)

// KeyFor normalizes a raw term and builds the alert key for it.
func KeyFor(subscriber int64, rawTerm string) (model.Key, error) {
	term := filter.NormalizeTerm(rawTerm)
	if !filter.ValidTerm(term) {
		return model.Key{}, fmt.Errorf("%w: %q", ErrInvalidTerm, rawTerm)
	}
	return model.NewKey(subscriber, term), nil
}

// Registry is the source of truth for alert definitions. Every mutation is
// persisted before the mutating call returns.
type Registry struct {
	store  storage.AlertStore
	logger *slog.Logger

	mu     sync.RWMutex
	alerts map[model.Key]storage.AlertRow

	flushMu sync.Mutex
}

// New creates an empty Registry that persists to store.
func New(store storage.AlertStore, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		alerts: make(map[model.Key]storage.AlertRow),
	}
}

// Load replaces the registry contents with a persisted table. Terms are
// normalized again; rows whose terms collide or are invalid are dropped.
func (r *Registry) Load(t storage.AlertTable) {
	alerts := make(map[model.Key]storage.AlertRow)
	for sub, terms := range t {
		for raw, row := range terms {
			key, err := KeyFor(sub, raw)
			if err != nil {
				r.logger.Warn("skipping stored alert", "subscriber_id", sub, "term", raw, "error", err)
				continue
			}
			if existing, ok := alerts[key]; ok {
				// Keep the active one if two stored spellings collapse to one key.
				if existing.Active || !row.Active {
					continue
				}
			}
			alerts[key] = row
		}
	}

	r.mu.Lock()
	r.alerts = alerts
	r.mu.Unlock()
}

// Create registers a new inactive alert. If the normalized term is already
// watched by the subscriber, the existing alert is returned with
// ErrAlreadyExists.
func (r *Registry) Create(ctx context.Context, subscriber int64, rawTerm string, destination int64) (model.Alert, error) {
	key, err := KeyFor(subscriber, rawTerm)
	if err != nil {
		return model.Alert{}, err
	}

	r.mu.Lock()
	if row, ok := r.alerts[key]; ok {
		r.mu.Unlock()
		return toAlert(key, row), ErrAlreadyExists
	}
	row := storage.AlertRow{Active: false, Destination: destination}
	r.alerts[key] = row
	r.mu.Unlock()

	r.flush(ctx)
	return toAlert(key, row), nil
}

// SetActive updates the active flag and returns the previous value.
func (r *Registry) SetActive(ctx context.Context, key model.Key, active bool) (bool, error) {
	r.mu.Lock()
	row, ok := r.alerts[key]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	prev := row.Active
	row.Active = active
	r.alerts[key] = row
	r.mu.Unlock()

	if prev != active {
		r.flush(ctx)
	}
	return prev, nil
}

// Delete removes an alert.
func (r *Registry) Delete(ctx context.Context, key model.Key) error {
	r.mu.Lock()
	if _, ok := r.alerts[key]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(r.alerts, key)
	r.mu.Unlock()

	r.flush(ctx)
	return nil
}

// Get returns the alert for key.
func (r *Registry) Get(key model.Key) (model.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.alerts[key]
	if !ok {
		return model.Alert{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return toAlert(key, row), nil
}

// IsActive reports whether the alert exists and is active.
func (r *Registry) IsActive(key model.Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alerts[key].Active
}

// List returns the subscriber's alerts ordered by term.
func (r *Registry) List(subscriber int64) []model.Alert {
	r.mu.RLock()
	var out []model.Alert
	for key, row := range r.alerts {
		if key.Subscriber == subscriber {
			out = append(out, toAlert(key, row))
		}
	}
	r.mu.RUnlock()

	sortAlerts(out)
	return out
}

// Active returns every active alert, ordered by subscriber and term.
func (r *Registry) Active() []model.Alert {
	r.mu.RLock()
	var out []model.Alert
	for key, row := range r.alerts {
		if row.Active {
			out = append(out, toAlert(key, row))
		}
	}
	r.mu.RUnlock()

	sortAlerts(out)
	return out
}

// Table returns a copy of the registry in its persisted shape.
func (r *Registry) Table() storage.AlertTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := make(storage.AlertTable)
	for key, row := range r.alerts {
		if t[key.Subscriber] == nil {
			t[key.Subscriber] = make(map[string]storage.AlertRow)
		}
		t[key.Subscriber][key.Term] = row
	}
	return t
}

// flush persists the current table. The snapshot is taken after acquiring
// flushMu so the last writer always stores the latest state.
func (r *Registry) flush(ctx context.Context) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if err := r.store.SaveAlerts(ctx, r.Table()); err != nil {
		r.logger.Error("failed to save alerts", "error", err)
	}
}

func toAlert(key model.Key, row storage.AlertRow) model.Alert {
	return model.Alert{
		Subscriber:  key.Subscriber,
		Term:        key.Term,
		Active:      row.Active,
		Destination: row.Destination,
	}
}

func sortAlerts(a []model.Alert) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].Subscriber != a[j].Subscriber {
			return a[i].Subscriber < a[j].Subscriber
		}
		return a[i].Term < a[j].Term
	})
}
