package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires a free lock", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		l := NewDistributedLock(rdb, "ledger:lock:test", "holder-1", 30*time.Second)

		mock.ExpectSetNX("ledger:lock:test", "holder-1", 30*time.Second).SetVal(true)

		ok, err := l.TryLock(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a held lock", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		l := NewDistributedLock(rdb, "ledger:lock:test", "holder-2", 30*time.Second)

		mock.ExpectSetNX("ledger:lock:test", "holder-2", 30*time.Second).SetVal(false)

		ok, err := l.TryLock(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLock(t *testing.T) {
	ctx := context.Background()

	t.Run("retries until acquired", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		l := NewDistributedLock(rdb, "ledger:lock:test", "holder-1", 30*time.Second)

		mock.ExpectSetNX("ledger:lock:test", "holder-1", 30*time.Second).SetVal(false)
		mock.ExpectSetNX("ledger:lock:test", "holder-1", 30*time.Second).SetVal(false)
		mock.ExpectSetNX("ledger:lock:test", "holder-1", 30*time.Second).SetVal(true)

		err := l.Lock(ctx, time.Millisecond, 5)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		l := NewDistributedLock(rdb, "ledger:lock:test", "holder-1", 30*time.Second)

		for i := 0; i < 3; i++ {
			mock.ExpectSetNX("ledger:lock:test", "holder-1", 30*time.Second).SetVal(false)
		}

		err := l.Lock(ctx, time.Millisecond, 3)
		assert.ErrorIs(t, err, ErrLockFailed)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		l := NewDistributedLock(rdb, "ledger:lock:test", "holder-1", 30*time.Second)

		mock.ExpectSetNX("ledger:lock:test", "holder-1", 30*time.Second).SetVal(false)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := l.Lock(cancelled, time.Minute, 5)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUnlock(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	l := NewDistributedLock(rdb, "ledger:lock:test", "holder-1", 30*time.Second)

	mock.ExpectEval(unlockScript, []string{"ledger:lock:test"}, "holder-1").SetVal(int64(1))

	err := l.Unlock(ctx)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKeyScoping(t *testing.T) {
	a := NewAccountLock(nil, 7, "L1")
	assert.Equal(t, "ledger:lock:account:7", a.key)

	r := NewReconcileLock(nil, "RCH1", "EXT1")
	assert.Equal(t, "ledger:lock:recharge:RCH1", r.key)
}
