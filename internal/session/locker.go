package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// ErrUnavailable is returned when the lock backend or the store cannot be reached
var ErrUnavailable = errors.New("store unavailable")

// Locker grants exclusive access to the record store. Lock blocks until the lock is held
// or ctx is done, and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
}

// LocalLocker serializes sequences within one process
type LocalLocker struct {
	sem *semaphore.Weighted
}

// NewLocalLocker creates an in-process lock
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{sem: semaphore.NewWeighted(1)}
}

// Lock acquires the process-wide lock
func (l *LocalLocker) Lock(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

// releaseScript deletes the lock key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes sequences across processes sharing one record store. The lock
// is a lease: a holder that dies loses it after the TTL.
type RedisLocker struct {
	client       redis.UniversalClient
	key          string
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisLocker creates a lease lock stored under key
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:       client,
		key:          key,
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
	}
}

// Lock polls until the lease is obtained or ctx is done
func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: redis lock: %v", ErrUnavailable, err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// a failed release leaves the lease to expire on its own
	_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}
