package jobs

import (
	"context"
	"log"
	"time"

	"github.com/ankicapture/backend/internal/phrase"
)

// Sweeper reaps phrases whose job has been in flight longer than the timeout.
// There is no cancellation channel to the enrichment service; a reaped job's
// late result is rejected by the webhook's identity gate instead.
type Sweeper struct {
	store    phrase.Store
	timeout  time.Duration
	interval time.Duration
}

// NewSweeper builds a sweeper that fails jobs older than timeout and, when
// run as a loop, wakes every interval.
func NewSweeper(store phrase.Store, timeout, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, timeout: timeout, interval: interval}
}

// Sweep performs one pass and returns how many phrases were reaped. Idempotent:
// a phrase reaped by a concurrent pass no longer matches the conditions.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	return s.store.SweepTimedOut(ctx, time.Now().Add(-s.timeout))
}

// Run sweeps on a fixed schedule until the context is cancelled. It runs
// out-of-band and never blocks request-path operations.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("sweep reaped %d timed-out job(s)", count)
			}
		}
	}
}
