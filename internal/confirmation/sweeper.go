package confirmation

import (
	"context"
	"time"

	"github.com/haltman-io/mailfwd/internal/pkg/logger"
)

// Housekeeping is the store surface the sweeper needs. Implemented by
// postgres.ConfirmationRepo.
type Housekeeping interface {
	ExpireStale(ctx context.Context) (int64, error)
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically flips visibly stale pending rows to expired and purges
// terminal rows past retention. Purely observational hygiene: expiry is
// enforced by read/write predicates, so correctness never depends on a sweep
// having run.
type Sweeper struct {
	store     Housekeeping
	interval  time.Duration
	retention time.Duration
	now       Clock
}

// NewSweeper builds a sweeper. A non-positive interval disables it.
func NewSweeper(store Housekeeping, interval, retention time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, retention: retention, now: time.Now}
}

// Run blocks, sweeping on each tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.store.ExpireStale(ctx)
	if err != nil {
		logger.Warn("sweep: expiring stale rows failed", "err", err.Error())
	} else if expired > 0 {
		logger.Info("sweep: stale pending rows expired", "count", expired)
	}

	if s.retention <= 0 {
		return
	}
	purged, err := s.store.PurgeTerminalBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		logger.Warn("sweep: purging terminal rows failed", "err", err.Error())
	} else if purged > 0 {
		logger.Info("sweep: terminal rows purged", "count", purged)
	}
}
