package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"marketwatch/internal/model"
	"marketwatch/internal/storage"
)

type mockStore struct {
	mu    sync.Mutex
	saves []storage.AlertTable
	err   error
}

func (m *mockStore) LoadAlerts(_ context.Context) (storage.AlertTable, error) {
	return storage.AlertTable{}, nil
}

func (m *mockStore) SaveAlerts(_ context.Context, t storage.AlertTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, t)
	return m.err
}

func (m *mockStore) last() storage.AlertTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func newTestRegistry(t *testing.T) (*Registry, *mockStore) {
	t.Helper()
	store := &mockStore{}
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)

	got, err := r.Create(ctx, 1, "  Used   Bicycle ", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := model.Alert{Subscriber: 1, Term: "used bicycle", Active: false, Destination: 10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Create mismatch (-want +got):\n%s", diff)
	}

	wantTable := storage.AlertTable{1: {"used bicycle": {Active: false, Destination: 10}}}
	if diff := cmp.Diff(wantTable, store.last()); diff != "" {
		t.Errorf("persisted table mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)

	if _, err := r.Create(ctx, 1, "bicicleta", 10); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.SetActive(ctx, model.NewKey(1, "bicicleta"), true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	saves := len(store.saves)

	got, err := r.Create(ctx, 1, "BICICLETA", 99)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	want := model.Alert{Subscriber: 1, Term: "bicicleta", Active: true, Destination: 10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("existing alert mismatch (-want +got):\n%s", diff)
	}
	if len(store.saves) != saves {
		t.Errorf("duplicate create must not persist, saves went from %d to %d", saves, len(store.saves))
	}

	// Another subscriber may watch the same term.
	if _, err := r.Create(ctx, 2, "bicicleta", 20); err != nil {
		t.Errorf("create for other subscriber: %v", err)
	}
}

func TestCreateInvalidTerm(t *testing.T) {
	r, store := newTestRegistry(t)

	tests := []struct {
		name string
		term string
	}{
		{name: "empty", term: ""},
		{name: "only spaces", term: "   \t "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(context.Background(), 1, tt.term, 1)
			if !errors.Is(err, ErrInvalidTerm) {
				t.Errorf("expected ErrInvalidTerm, got %v", err)
			}
		})
	}
	if len(store.saves) != 0 {
		t.Errorf("expected no saves, got %d", len(store.saves))
	}
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	key := model.NewKey(1, "lamp")

	if _, err := r.SetActive(ctx, key, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := r.Create(ctx, 1, "lamp", 1); err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		value    bool
		wantPrev bool
	}{
		{value: true, wantPrev: false},
		{value: true, wantPrev: true},
		{value: false, wantPrev: true},
	}
	for i, s := range steps {
		prev, err := r.SetActive(ctx, key, s.value)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if prev != s.wantPrev {
			t.Errorf("step %d: prev = %v, want %v", i, prev, s.wantPrev)
		}
		if got := r.IsActive(key); got != s.value {
			t.Errorf("step %d: IsActive = %v, want %v", i, got, s.value)
		}
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)

	for _, term := range []string{"sofa", "lamp"} {
		if _, err := r.Create(ctx, 1, term, 1); err != nil {
			t.Fatalf("create %s: %v", term, err)
		}
	}

	if err := r.Delete(ctx, model.NewKey(1, "sofa")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.Delete(ctx, model.NewKey(1, "sofa")); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := r.Get(model.NewKey(1, "sofa")); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: expected ErrNotFound, got %v", err)
	}

	want := storage.AlertTable{1: {"lamp": {Destination: 1}}}
	if diff := cmp.Diff(want, store.last()); diff != "" {
		t.Errorf("persisted table mismatch (-want +got):\n%s", diff)
	}
}

func TestListOrdered(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	for _, term := range []string{"zapatillas", "auto", "mesa"} {
		if _, err := r.Create(ctx, 1, term, 1); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := r.Create(ctx, 2, "bici", 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.SetActive(ctx, model.NewKey(1, "mesa"), true); err != nil {
		t.Fatalf("set active: %v", err)
	}

	want := []model.Alert{
		{Subscriber: 1, Term: "auto", Destination: 1},
		{Subscriber: 1, Term: "mesa", Active: true, Destination: 1},
		{Subscriber: 1, Term: "zapatillas", Destination: 1},
	}
	if diff := cmp.Diff(want, r.List(1)); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
	if got := r.List(3); len(got) != 0 {
		t.Errorf("expected empty list for unknown subscriber, got %v", got)
	}
}

func TestLoad(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Load(storage.AlertTable{
		1: {
			"Café":  {Active: false, Destination: 1},
			"cafe":  {Active: true, Destination: 1},
			"":      {Active: true, Destination: 1},
			"mesa ": {Active: true, Destination: 5},
		},
		2: {"bici": {Active: false, Destination: 2}},
	})

	want := []model.Alert{
		{Subscriber: 1, Term: "cafe", Active: true, Destination: 1},
		{Subscriber: 1, Term: "mesa", Active: true, Destination: 5},
	}
	if diff := cmp.Diff(want, r.Active()); diff != "" {
		t.Errorf("Active mismatch (-want +got):\n%s", diff)
	}
	if got := len(r.List(2)); got != 1 {
		t.Errorf("expected 1 alert for subscriber 2, got %d", got)
	}
}

func TestPersistenceFailureIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	store.err = errors.New("disk full")

	if _, err := r.Create(ctx, 1, "bici", 1); err != nil {
		t.Fatalf("create must succeed in memory: %v", err)
	}
	if _, err := r.SetActive(ctx, model.NewKey(1, "bici"), true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if !r.IsActive(model.NewKey(1, "bici")) {
		t.Error("expected alert to be active in memory")
	}
}
