// Package sweeper reconciles scoped session rows whose expiry has passed but
// whose status was never corrected by a validation or create call.
package sweeper

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// SessionExpirer is the minimal repository surface the sweeper needs.
type SessionExpirer interface {
	// ExpireOlderThan flips every active session with expires_at before now to
	// expired and returns the number of rows changed.
	ExpireOlderThan(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically expires stale active sessions in bulk. It is a safety
// net behind lazy expiry: correctness never depends on it, only the freshness
// of listings and reports does.
type Sweeper struct {
	sessions SessionExpirer
	interval time.Duration
	expired  metric.Int64Counter
	now      func() time.Time
}

// New returns a Sweeper that runs every interval. meter may come from a no-op
// provider; the counter records how many rows each sweep flipped.
func New(sessions SessionExpirer, interval time.Duration, meter metric.Meter) (*Sweeper, error) {
	counter, err := meter.Int64Counter("scoped_sessions_expired_total",
		metric.WithDescription("Number of scoped sessions flipped to expired by the sweeper"))
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		expired:  counter,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Sweep runs one reconciliation pass and returns the number of sessions it
// expired. Sessions already healed lazily are not visible here; the guarded
// bulk update skips anything no longer active.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.sessions.ExpireOlderThan(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.expired.Add(ctx, n)
		log.Printf("sweeper: expired %d stale session(s)", n)
	}
	return n, nil
}

// Run sweeps immediately, then on every interval tick until ctx is canceled.
// Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		log.Printf("sweeper: sweep failed: %v", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Printf("sweeper: sweep failed: %v", err)
			}
		}
	}
}
