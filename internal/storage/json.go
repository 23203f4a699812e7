package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"marketwatch/internal/model"
)

// File names used by JSONFile inside its directory.
const (
	AlertsFile  = "alerts.json"
	HistoryFile = "history.json"
)

// JSONFile implements Storage with one JSON document per table.
type JSONFile struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewJSONFile returns a store that keeps its tables in dir, creating the
// directory if needed.
func NewJSONFile(dir string) (*JSONFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &JSONFile{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Close is a no-op; files are closed after every write.
func (s *JSONFile) Close() error {
	return nil
}

// LoadAlerts reads the alert table. Rows that cannot be decoded are skipped
// and reported in the returned error.
func (s *JSONFile) LoadAlerts(_ context.Context) (AlertTable, error) {
	rows, err := loadRows[AlertRow](s, filepath.Join(s.dir, AlertsFile))
	return AlertTable(rows), err
}

// SaveAlerts writes the alert table.
func (s *JSONFile) SaveAlerts(_ context.Context, t AlertTable) error {
	return s.save(filepath.Join(s.dir, AlertsFile), t)
}

// LoadHistory reads the history table. Rows that cannot be decoded are
// skipped and reported in the returned error.
func (s *JSONFile) LoadHistory(_ context.Context) (HistoryTable, error) {
	rows, err := loadRows[[]model.Listing](s, filepath.Join(s.dir, HistoryFile))
	return HistoryTable(rows), err
}

// SaveHistory writes the history table.
func (s *JSONFile) SaveHistory(_ context.Context, t HistoryTable) error {
	return s.save(filepath.Join(s.dir, HistoryFile), t)
}

func (s *JSONFile) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// loadRows decodes a subscriber -> term -> row document. A missing or empty
// file yields an empty table. A document that is not an object of objects is
// rejected whole; otherwise each bad subscriber or term entry is dropped on
// its own.
func loadRows[T any](s *JSONFile, path string) (map[int64]map[string]T, error) {
	out := make(map[int64]map[string]T)

	data, err := s.read(path)
	if err != nil || len(data) == 0 {
		return out, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}

	var skipped []error
	for rawID, body := range doc {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("subscriber %q: invalid id", rawID))
			continue
		}
		var terms map[string]json.RawMessage
		if err := json.Unmarshal(body, &terms); err != nil {
			skipped = append(skipped, fmt.Errorf("subscriber %d: %w", id, err))
			continue
		}
		for term, raw := range terms {
			var row T
			if err := json.Unmarshal(raw, &row); err != nil {
				skipped = append(skipped, fmt.Errorf("subscriber %d term %q: %w", id, term, err))
				continue
			}
			if out[id] == nil {
				out[id] = make(map[string]T)
			}
			out[id][term] = row
		}
	}

	if len(skipped) > 0 {
		return out, fmt.Errorf("decode %s: skipped %d rows: %w", path, len(skipped), errors.Join(skipped...))
	}
	return out, nil
}

func (s *JSONFile) read(path string) ([]byte, error) {
	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured data dir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// save writes v to a temporary file and renames it over path, so readers
// never observe a half-written table.
func (s *JSONFile) save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp.Name(), err)
	}
	return nil
}
