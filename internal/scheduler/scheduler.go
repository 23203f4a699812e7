// Package scheduler runs one polling worker per active alert.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketwatch/internal/alerts"
	"marketwatch/internal/history"
	"marketwatch/internal/model"
)

var (
	// ErrAlreadyRunning is returned when a worker already exists for the alert.
	ErrAlreadyRunning = errors.New("monitoring already running")
	// ErrPollInProgress is returned when an on-demand poll for the alert has not finished yet.
	ErrPollInProgress = errors.New("poll already in progress")
	// ErrStopped is returned after the supervisor has been stopped.
	ErrStopped = errors.New("supervisor stopped")
)

// defaultStopTimeout bounds how long Deactivate waits for a worker to exit.
const defaultStopTimeout = 5 * time.Second

// Fetcher searches the marketplace for a term.
type Fetcher interface {
	Fetch(ctx context.Context, term string, area model.Area) ([]model.Listing, error)
}

// Notifier delivers messages to a destination chat.
type Notifier interface {
	SendListing(chatID int64, l model.Listing) error
	SendText(chatID int64, text string) error
}

// Options tune polling behaviour.
type Options struct {
	MinInterval  time.Duration
	MaxInterval  time.Duration
	FetchTimeout time.Duration
	NotifyDelay  time.Duration
	Area         model.Area
}

// DefaultOptions returns the production polling settings.
func DefaultOptions() Options {
	return Options{
		MinInterval:  185 * time.Second,
		MaxInterval:  353 * time.Second,
		FetchTimeout: 30 * time.Second,
		NotifyDelay:  500 * time.Millisecond,
		Area:         model.Area{Latitude: -32.95, Longitude: -60.64, RadiusKM: 65},
	}
}

// PollResult describes the outcome of an on-demand poll.
type PollResult struct {
	Found       int
	Added       []model.Listing
	HistorySize int
}

// handle is the cancellation signal of a running worker. It stays in the
// supervisor's map until the worker goroutine has returned.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the polling workers. It is the only component that starts
// or stops them, and the only one that mutates the alert registry.
type Supervisor struct {
	registry *alerts.Registry
	history  *history.Cache
	fetcher  Fetcher
	notifier Notifier
	log      *slog.Logger
	opts     Options

	stopTimeout time.Duration

	root     context.Context
	stopRoot context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	handles  map[model.Key]*handle
	baseline map[model.Key]bool
	polling  map[model.Key]bool
}

// New creates a Supervisor. No worker runs until Activate, ResumeAll or Run
// is called.
func New(registry *alerts.Registry, cache *history.Cache, f Fetcher, n Notifier, opts Options, log *slog.Logger) *Supervisor {
	root, stop := context.WithCancel(context.Background())
	return &Supervisor{
		registry: registry,
		history:  cache,
		fetcher:  f,
		notifier: n,
		log:      log,
		opts:     opts,

		stopTimeout: defaultStopTimeout,

		root:     root,
		stopRoot: stop,
		handles:  make(map[model.Key]*handle),
		baseline: make(map[model.Key]bool),
		polling:  make(map[model.Key]bool),
	}
}

// Run resumes every active alert and blocks until ctx is cancelled, then
// stops all workers.
func (s *Supervisor) Run(ctx context.Context) {
	n := s.ResumeAll(ctx)
	s.log.Info("monitoring resumed", "count", n)

	<-ctx.Done()
	s.Stop()
}

// Stop cancels every worker and waits for them to exit.
func (s *Supervisor) Stop() {
	s.stopRoot()
	s.wg.Wait()
	s.log.Info("all workers stopped")
}

// Create registers a new inactive alert.
func (s *Supervisor) Create(ctx context.Context, subscriber int64, rawTerm string, destination int64) (model.Alert, error) {
	return s.registry.Create(ctx, subscriber, rawTerm, destination)
}

// Activate marks the alert active and starts its worker. The worker begins
// with a silent baseline poll.
func (s *Supervisor) Activate(ctx context.Context, key model.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.root.Err() != nil {
		return ErrStopped
	}
	if _, ok := s.handles[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	if _, err := s.registry.SetActive(ctx, key, true); err != nil {
		return err
	}

	s.baseline[key] = false
	s.start(key)
	return nil
}

// Deactivate marks the alert inactive and stops its worker, waiting for it
// to exit. Deactivating an alert with no worker only updates the registry.
func (s *Supervisor) Deactivate(ctx context.Context, key model.Key) error {
	s.mu.Lock()
	h := s.handles[key]
	if h != nil {
		h.cancel()
	}
	s.mu.Unlock()

	_, err := s.registry.SetActive(ctx, key, false)

	if h == nil {
		s.log.Info("no running worker", "subscriber_id", key.Subscriber, "term", key.Term)
		return err
	}
	s.await(key, h)
	return err
}

// Delete stops the alert's worker and removes its history and definition.
func (s *Supervisor) Delete(ctx context.Context, key model.Key) error {
	if err := s.Deactivate(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.baseline, key)
	s.mu.Unlock()

	s.history.Clear(key)
	s.history.Flush(ctx)

	return s.registry.Delete(ctx, key)
}

// ResumeAll starts a worker for every active alert that has a destination
// and no running worker. It returns the number of workers started.
func (s *Supervisor) ResumeAll(ctx context.Context) int {
	started := 0
	for _, a := range s.registry.Active() {
		if ctx.Err() != nil {
			break
		}
		key := a.Key()
		if a.Destination == 0 {
			s.log.Warn("active alert without destination", "subscriber_id", key.Subscriber, "term", key.Term)
			continue
		}

		s.mu.Lock()
		if _, ok := s.handles[key]; ok || s.root.Err() != nil {
			s.mu.Unlock()
			continue
		}
		s.baseline[key] = false
		s.start(key)
		s.mu.Unlock()
		started++
	}
	return started
}

// Running reports whether a worker exists for the alert.
func (s *Supervisor) Running(key model.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[key]
	return ok
}

// PollNow fetches the alert's term immediately and merges the results into
// its history. Feed errors are returned to the caller.
func (s *Supervisor) PollNow(ctx context.Context, key model.Key) (PollResult, error) {
	if _, err := s.registry.Get(key); err != nil {
		return PollResult{}, err
	}

	s.mu.Lock()
	if s.polling[key] {
		s.mu.Unlock()
		return PollResult{}, fmt.Errorf("%w: %s", ErrPollInProgress, key)
	}
	s.polling[key] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.polling, key)
		s.mu.Unlock()
	}()

	listings, err := s.fetch(ctx, key.Term)
	if err != nil {
		return PollResult{}, fmt.Errorf("fetch listings: %w", err)
	}

	added := s.history.Merge(key, listings)
	if len(added) > 0 {
		s.history.Flush(context.WithoutCancel(ctx))
	}

	return PollResult{
		Found:       len(listings),
		Added:       added,
		HistorySize: s.history.Len(key),
	}, nil
}

// start launches a worker for key. The caller must hold s.mu.
func (s *Supervisor) start(key model.Key) {
	ctx, cancel := context.WithCancel(s.root)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	s.handles[key] = h

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)
		s.runWorker(ctx, key, h)
	}()
}

// release removes h if it is still the registered handle for key.
func (s *Supervisor) release(key model.Key, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[key] == h {
		delete(s.handles, key)
	}
	h.cancel()
}

// await waits for a cancelled worker to exit. On timeout the handle stays
// registered, so Activate keeps failing with ErrAlreadyRunning until the
// worker goroutine returns and releases it.
func (s *Supervisor) await(key model.Key, h *handle) {
	select {
	case <-h.done:
	case <-time.After(s.stopTimeout):
		s.log.Warn("timeout waiting for worker to stop", "subscriber_id", key.Subscriber, "term", key.Term)
	}
}

func (s *Supervisor) baselineDone(key model.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline[key]
}

func (s *Supervisor) markBaseline(key model.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline[key] = true
}

func (s *Supervisor) fetch(ctx context.Context, term string) ([]model.Listing, error) {
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}
	return s.fetcher.Fetch(ctx, term, s.opts.Area)
}
