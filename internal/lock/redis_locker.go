package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks across instances. The key's TTL doubles as the
// stale-lock timeout.
type RedisLocker struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisLocker(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "auction:lock"
	}
	return &RedisLocker{client: client, prefix: prefix, timeout: timeout}
}

func (l *RedisLocker) key(k string) string {
	return fmt.Sprintf("%s:%s", l.prefix, k)
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLease{client: l.client, key: l.key(key), token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (ls *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, ls.client, []string{ls.key}, ls.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", ls.key, err)
	}
	return nil
}
