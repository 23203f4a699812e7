package fetcher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"marketwatch/internal/model"
)

// Limited spaces out requests to the wrapped Fetcher. All poll workers
// share one feed endpoint, so they share one limiter.
type Limited struct {
	next Fetcher
	lim  *rate.Limiter
}

// NewLimited allows one request per gap. A zero gap disables limiting.
func NewLimited(next Fetcher, gap time.Duration) *Limited {
	return &Limited{next: next, lim: rate.NewLimiter(rate.Every(gap), 1)}
}

// Fetch waits for the limiter, then delegates to the wrapped Fetcher. A ctx
// that ends while waiting returns an error without fetching.
func (l *Limited) Fetch(ctx context.Context, term string, area model.Area) ([]model.Listing, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	return l.next.Fetch(ctx, term, area)
}
