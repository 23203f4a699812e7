// Package history keeps the bounded per-alert list of recently seen listings.
package history

import (
	"context"
	"log/slog"
	"sync"

	"marketwatch/internal/model"
	"marketwatch/internal/storage"
)

// DefaultCapacity is the number of listings kept per alert.
const DefaultCapacity = 30

type entries struct {
	items []model.Listing // newest first
	ids   map[string]struct{}
}

// Cache holds the seen listings of every alert, newest first and capped at a
// fixed capacity. A listing ID appears at most once per alert.
type Cache struct {
	store    storage.HistoryStore
	logger   *slog.Logger
	capacity int

	mu   sync.RWMutex
	data map[model.Key]*entries

	flushMu sync.Mutex
}

// New creates an empty Cache. A non-positive capacity falls back to
// DefaultCapacity.
func New(store storage.HistoryStore, capacity int, logger *slog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		store:    store,
		logger:   logger,
		capacity: capacity,
		data:     make(map[model.Key]*entries),
	}
}

// Capacity returns the per-alert limit.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Load replaces the cache contents with a persisted table. Each list is
// trimmed to capacity and later duplicates of an ID are dropped.
func (c *Cache) Load(t storage.HistoryTable) {
	data := make(map[model.Key]*entries)
	for sub, terms := range t {
		for term, listings := range terms {
			e := &entries{ids: make(map[string]struct{})}
			for _, l := range listings {
				if len(e.items) == c.capacity {
					break
				}
				if l.ID == "" {
					continue
				}
				if _, dup := e.ids[l.ID]; dup {
					continue
				}
				e.items = append(e.items, l)
				e.ids[l.ID] = struct{}{}
			}
			if len(e.items) > 0 {
				data[model.NewKey(sub, term)] = e
			}
		}
	}

	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
}

// Contains reports whether the alert has already seen a listing ID.
func (c *Cache) Contains(key model.Key, id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok {
		return false
	}
	_, seen := e.ids[id]
	return seen
}

// PushFront inserts l as the newest listing, evicting the oldest one when
// the alert is at capacity. A listing whose ID is already present is
// rejected and false is returned.
func (c *Cache) PushFront(key model.Key, l model.Listing) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushLocked(key, l)
}

// Merge pushes every listing not yet seen, in the given order, and returns
// them. It is the single definition of a new listing.
func (c *Cache) Merge(key model.Key, listings []model.Listing) []model.Listing {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []model.Listing
	for _, l := range listings {
		if c.pushLocked(key, l) {
			added = append(added, l)
		}
	}
	return added
}

func (c *Cache) pushLocked(key model.Key, l model.Listing) bool {
	if l.ID == "" {
		return false
	}
	e, ok := c.data[key]
	if !ok {
		e = &entries{ids: make(map[string]struct{})}
		c.data[key] = e
	}
	if _, dup := e.ids[l.ID]; dup {
		return false
	}

	items := make([]model.Listing, 0, min(len(e.items)+1, c.capacity))
	items = append(items, l)
	items = append(items, e.items...)
	for len(items) > c.capacity {
		delete(e.ids, items[len(items)-1].ID)
		items = items[:len(items)-1]
	}
	e.items = items
	e.ids[l.ID] = struct{}{}
	return true
}

// Snapshot returns up to limit listings, newest first. A non-positive limit
// returns all of them.
func (c *Cache) Snapshot(key model.Key, limit int) []model.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok {
		return nil
	}
	n := len(e.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Listing, n)
	copy(out, e.items[:n])
	return out
}

// Len returns the number of listings stored for the alert.
func (c *Cache) Len(key model.Key) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.data[key]; ok {
		return len(e.items)
	}
	return 0
}

// Clear forgets every listing of the alert.
func (c *Cache) Clear(key model.Key) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Table returns a copy of the cache in its persisted shape.
func (c *Cache) Table() storage.HistoryTable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := make(storage.HistoryTable)
	for key, e := range c.data {
		if len(e.items) == 0 {
			continue
		}
		if t[key.Subscriber] == nil {
			t[key.Subscriber] = make(map[string][]model.Listing)
		}
		items := make([]model.Listing, len(e.items))
		copy(items, e.items)
		t[key.Subscriber][key.Term] = items
	}
	return t
}

// Flush persists the whole cache. Failures are logged; the in-memory state
// stays authoritative.
func (c *Cache) Flush(ctx context.Context) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	if err := c.store.SaveHistory(ctx, c.Table()); err != nil {
		c.logger.Error("failed to save history", "error", err)
	}
}
