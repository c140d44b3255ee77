package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrLockFailed = errors.New("failed to acquire distributed lock")

// unlockScript deletes the key only when the caller still holds it; the
// check-and-delete must be atomic.
const unlockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

// DistributedLock is a Redis SET NX EX lock. The value identifies the holder
// so an expired holder cannot release a lock someone else now owns.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a single non-blocking acquire.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock up to maxRetries times, waiting retryInterval between
// attempts.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock only if this instance still holds it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// NewAccountLock scopes contention to a single student's account: operations
// on different accounts never block each other.
func NewAccountLock(client *redis.Client, studentID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("ledger:lock:account:%d", studentID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewReconcileLock serializes webhook deliveries for one recharge ahead of
// the row lock.
func NewReconcileLock(client *redis.Client, rechargeNo, holder string) *DistributedLock {
	key := fmt.Sprintf("ledger:lock:recharge:%s", rechargeNo)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
