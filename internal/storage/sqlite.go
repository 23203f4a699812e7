package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"marketwatch/internal/model"
	"marketwatch/migrations"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB

	alertsMu  sync.Mutex
	historyMu sync.Mutex
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadAlerts reads every alert row.
func (s *SQLite) LoadAlerts(ctx context.Context) (AlertTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id, term, active, destination FROM alerts ORDER BY subscriber_id, term`,
	)
	if err != nil {
		return AlertTable{}, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	t := AlertTable{}
	for rows.Next() {
		var (
			sub, dest int64
			term      string
			active    int
		)
		if err := rows.Scan(&sub, &term, &active, &dest); err != nil {
			return AlertTable{}, fmt.Errorf("scan alert: %w", err)
		}
		if t[sub] == nil {
			t[sub] = make(map[string]AlertRow)
		}
		t[sub][term] = AlertRow{Active: active == 1, Destination: dest}
	}
	if err := rows.Err(); err != nil {
		return AlertTable{}, fmt.Errorf("iterate alerts: %w", err)
	}
	return t, nil
}

// SaveAlerts replaces the alerts table with t.
func (s *SQLite) SaveAlerts(ctx context.Context, t AlertTable) error {
	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}
	for sub, terms := range t {
		for term, row := range terms {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO alerts (subscriber_id, term, active, destination) VALUES (?, ?, ?, ?)`,
				sub, term, boolToInt(row.Active), row.Destination,
			); err != nil {
				return fmt.Errorf("insert alert: %w", err)
			}
		}
	}
	return tx.Commit()
}

// LoadHistory reads every history row, newest first per alert.
func (s *SQLite) LoadHistory(ctx context.Context) (HistoryTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id, term, listing_id, title, price, url, image_url, location
		 FROM history ORDER BY subscriber_id, term, position`,
	)
	if err != nil {
		return HistoryTable{}, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	t := HistoryTable{}
	for rows.Next() {
		var (
			sub  int64
			term string
			l    model.Listing
		)
		if err := rows.Scan(&sub, &term, &l.ID, &l.Title, &l.Price, &l.URL, &l.ImageURL, &l.Location); err != nil {
			return HistoryTable{}, fmt.Errorf("scan history: %w", err)
		}
		if t[sub] == nil {
			t[sub] = make(map[string][]model.Listing)
		}
		t[sub][term] = append(t[sub][term], l)
	}
	if err := rows.Err(); err != nil {
		return HistoryTable{}, fmt.Errorf("iterate history: %w", err)
	}
	return t, nil
}

// SaveHistory replaces the history table with t.
func (s *SQLite) SaveHistory(ctx context.Context, t HistoryTable) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for sub, terms := range t {
		for term, listings := range terms {
			for pos, l := range listings {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO history (subscriber_id, term, position, listing_id, title, price, url, image_url, location)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					sub, term, pos, l.ID, l.Title, l.Price, l.URL, l.ImageURL, l.Location,
				); err != nil {
					return fmt.Errorf("insert history: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
