// Package lock provides the exclusive lock the settlement engine holds while
// it moves funds for one auction or one order.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by TryAcquire when another owner holds the key.
var ErrLockHeld = errors.New("lock held by another owner")

type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases by key. A lease not released within the
// locker's timeout is treated as abandoned and may be reclaimed.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (Lease, error)
}

// AcquireWait retries TryAcquire every poll interval until it succeeds, a
// non-contention error occurs, or ctx is done.
func AcquireWait(ctx context.Context, l Locker, key string, poll time.Duration) (Lease, error) {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		lease, err := l.TryAcquire(ctx, key)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
