package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-key lease shared by all replicas.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	token  string
}

// NewRedisLock creates a lock on key that expires after ttl if never released.
func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		return nil, fmt.Errorf("lock key cannot be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// TryLock implements Lock.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Unlock implements Lock. Releasing a lease that expired and was taken by
// another holder is a no-op.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
