package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotObtained is returned when the lock is still held by someone else
// after all retry attempts.
var ErrLockNotObtained = errors.New("lock not obtained")

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type RedisLocker struct {
	client   *redislock.Client
	attempts int
	backoff  time.Duration
}

// NewRedisLocker retries a held lock `attempts` times, sleeping `backoff` in between.
func NewRedisLocker(c *RedisClient, attempts int, backoff time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   redislock.New(c.Client),
		attempts: attempts,
		backoff:  backoff,
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.attempts),
	}
	lock, err := l.client.Obtain(ctx, key, ttl, opts)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLockNotObtained
		}
		return nil, err
	}
	return lock, nil
}

// LocalLocker is an in-process Locker for single-replica deployments and tests.
// The ttl is ignored; the lock is held until Release.
type LocalLocker struct {
	mu       sync.Mutex
	held     map[string]struct{}
	attempts int
	backoff  time.Duration
}

func NewLocalLocker(attempts int, backoff time.Duration) *LocalLocker {
	return &LocalLocker{
		held:     make(map[string]struct{}),
		attempts: attempts,
		backoff:  backoff,
	}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	for i := 0; ; i++ {
		if l.tryAcquire(key) {
			return &localLock{owner: l, key: key}, nil
		}
		if i >= l.attempts {
			return nil, ErrLockNotObtained
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

func (l *LocalLocker) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

type localLock struct {
	owner *LocalLocker
	key   string
	once  sync.Once
}

func (k *localLock) Release(context.Context) error {
	k.once.Do(func() {
		k.owner.mu.Lock()
		delete(k.owner.held, k.key)
		k.owner.mu.Unlock()
	})
	return nil
}
