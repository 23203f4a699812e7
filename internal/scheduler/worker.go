package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"marketwatch/internal/model"
)

// runWorker polls one alert until its context is cancelled or the alert is
// no longer active. The first successful fetch after activation only seeds
// the history.
func (s *Supervisor) runWorker(ctx context.Context, key model.Key, h *handle) {
	log := s.log.With("subscriber_id", key.Subscriber, "term", key.Term)
	log.Info("worker started")

	var notice int64
	defer func() {
		s.release(key, h)
		if notice != 0 {
			msg := fmt.Sprintf("Monitoring stopped for %q.", key.Term)
			if err := s.notifier.SendText(notice, msg); err != nil {
				log.Error("send stop notice", "error", err)
			}
		}
		log.Info("worker stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		alert, err := s.registry.Get(key)
		if err != nil || !alert.Active {
			// Deactivate cancels before touching the registry, so an
			// inactive alert with a live context was stopped elsewhere.
			if err == nil && ctx.Err() == nil {
				notice = alert.Destination
			}
			return
		}

		s.poll(ctx, log, alert)

		if !sleep(ctx, s.interval()) {
			return
		}
	}
}

// poll runs a single cycle: fetch, merge into history, persist, notify.
func (s *Supervisor) poll(ctx context.Context, log *slog.Logger, alert model.Alert) {
	key := alert.Key()

	listings, err := s.fetch(ctx, alert.Term)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Warn("fetch listings", "error", err)
		return
	}

	if !s.baselineDone(key) {
		added := s.history.Merge(key, listings)
		if len(added) > 0 {
			s.history.Flush(context.WithoutCancel(ctx))
		}
		s.markBaseline(key)
		log.Info("baseline completed", "count", len(listings), "added", len(added))
		return
	}

	if len(listings) == 0 {
		log.Debug("no listings")
		return
	}

	added := s.history.Merge(key, listings)
	if len(added) == 0 {
		log.Debug("no new listings", "count", len(listings))
		return
	}
	s.history.Flush(context.WithoutCancel(ctx))
	log.Info("new listings", "count", len(added))

	for i, l := range added {
		if i > 0 && !sleep(ctx, s.opts.NotifyDelay) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.notifier.SendListing(alert.Destination, l); err != nil {
			log.Error("send listing", "chat_id", alert.Destination, "listing_id", l.ID, "error", err)
		}
	}
}

// interval picks a wait uniformly from [MinInterval, MaxInterval].
func (s *Supervisor) interval() time.Duration {
	lo, hi := s.opts.MinInterval, s.opts.MaxInterval
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
