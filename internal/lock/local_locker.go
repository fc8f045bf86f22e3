package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is an in-process lock map for single-instance deployments.
type LocalLocker struct {
	mu      sync.Mutex
	timeout time.Duration
	held    map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	token      string
	acquiredAt time.Time
}

func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		timeout: timeout,
		held:    make(map[string]localEntry),
		now:     time.Now,
	}
}

func (l *LocalLocker) TryAcquire(ctx context.Context, key string) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Sub(e.acquiredAt) < l.timeout {
		return nil, ErrLockHeld
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, acquiredAt: now}
	return &localLease{l: l, key: key, token: token}, nil
}

type localLease struct {
	l     *LocalLocker
	key   string
	token string
}

// Release is a no-op if the lease went stale and was reclaimed by another
// owner.
func (ls *localLease) Release(ctx context.Context) error {
	ls.l.mu.Lock()
	defer ls.l.mu.Unlock()

	if e, ok := ls.l.held[ls.key]; ok && e.token == ls.token {
		delete(ls.l.held, ls.key)
	}
	return nil
}
