// Package lock provides keyed leases so that scheduled jobs run on at most
// one instance at a time. A lease has a maximum hold (the lease expires even
// when the holder dies mid-run) and a minimum hold (a fast run keeps the key
// alive so other instances do not immediately re-run the job).
package lock

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Lease is a held lock. It is only valid for release by the store that
// issued it.
type Lease struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
}

// Store acquires and releases named leases.
type Store interface {
	// Acquire takes the named lease for at most maxHold. It returns nil when
	// the lease is currently held elsewhere.
	Acquire(ctx context.Context, name string, maxHold time.Duration) (*Lease, error)

	// Release gives up the lease. When keepFor is positive the key stays
	// reserved for that long, enforcing the minimum hold.
	Release(ctx context.Context, lease *Lease, keepFor time.Duration) error
}

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Guard wraps a job so it only runs while holding the named lease. When the
// lease is held elsewhere the tick is skipped without error.
func Guard(store Store, name string, minHold, maxHold time.Duration, logger *zap.Logger, job Job) Job {
	return func(ctx context.Context) error {
		lease, err := store.Acquire(ctx, name, maxHold)
		if err != nil {
			return err
		}
		if lease == nil {
			logger.Debug("lease held elsewhere, skipping tick", zap.String("lock", name))
			return nil
		}
		defer func() {
			keepFor := minHold - time.Since(lease.AcquiredAt)
			if keepFor < 0 {
				keepFor = 0
			}
			if err := store.Release(context.WithoutCancel(ctx), lease, keepFor); err != nil {
				logger.Warn("lease release failed", zap.String("lock", name), zap.Error(err))
			}
		}()
		return job(ctx)
	}
}
