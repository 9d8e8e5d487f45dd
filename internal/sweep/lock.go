package sweep

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock grants one sweep run at a time. TryLock never waits: a run that
// cannot acquire the lock is skipped.
type Lock interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, acquired bool, err error)
}

// LocalLock serializes runs within one process.
type LocalLock struct {
	held atomic.Bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) TryLock(context.Context) (func(context.Context) error, bool, error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.held.Store(false)
		return nil
	}, true, nil
}

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock serializes runs across replicas with SET NX PX.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

const DefaultLockKey = "agora:sweep:lock"

// NewRedisLock builds a lock on key. ttl bounds how long a crashed holder
// can block other replicas and should exceed the longest expected run.
func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release sweep lock: %w", err)
		}
		return nil
	}, true, nil
}
