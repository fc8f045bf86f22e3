package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgCloseTimeout = 5 * time.Second

// PostgresLocker uses session-level advisory locks. The lock lives on a
// pooled connection pinned for the lease, so a crashed holder frees it when
// its connection drops. A lease still held after timeout has its session
// closed, which frees the lock for the next owner.
type PostgresLocker struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresLocker builds the locker. A zero timeout leaves leases
// unbounded.
func NewPostgresLocker(db *pgxpool.Pool, timeout time.Duration) *PostgresLocker {
	return &PostgresLocker{db: db, timeout: timeout}
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *PostgresLocker) TryAcquire(ctx context.Context, key string) (Lease, error) {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	k := advisoryKey(key)
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, k).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take advisory lock %s: %w", key, err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLockHeld
	}

	ls := &pgLease{conn: conn, key: k}
	if l.timeout > 0 {
		ls.timer = time.AfterFunc(l.timeout, ls.expire)
	}
	return ls, nil
}

type pgLease struct {
	mu    sync.Mutex
	conn  *pgxpool.Conn
	key   int64
	timer *time.Timer
	done  bool
}

// expire drops the pinned session. The pool discards closed connections on
// release.
func (ls *pgLease) expire() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.done {
		return
	}
	ls.done = true

	ctx, cancel := context.WithTimeout(context.Background(), pgCloseTimeout)
	defer cancel()
	_ = ls.conn.Conn().Close(ctx)
	ls.conn.Release()
}

// Release is a no-op once the lease has expired.
func (ls *pgLease) Release(ctx context.Context) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.done {
		return nil
	}
	ls.done = true
	if ls.timer != nil {
		ls.timer.Stop()
	}

	defer ls.conn.Release()
	if _, err := ls.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, ls.key); err != nil {
		// Dropping the session is the only other way to free the lock.
		_ = ls.conn.Conn().Close(context.Background())
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}
