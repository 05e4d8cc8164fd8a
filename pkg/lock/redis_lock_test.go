package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, "test:", time.Second), mr
}

func TestLock_TryAcquireExclusive(t *testing.T) {
	locker, _ := setupLocker(t)
	ctx := context.Background()

	a := locker.NewLock("ledger")
	b := locker.NewLock("ledger")

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx), ErrLockNotHeld)
	require.NoError(t, a.Release(ctx))

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_AcquireRespectsContext(t *testing.T) {
	locker, _ := setupLocker(t)
	holder := locker.NewLock("ledger")
	ok, err := holder.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err = locker.NewLock("ledger").Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockAcquireFailed)
}

func TestLock_Extend(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()
	lk := locker.NewLock("ledger")
	ok, err := lk.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lk.Extend(ctx, 10*time.Second))
	assert.Greater(t, mr.TTL("test:ledger"), 5*time.Second)

	mr.FastForward(11 * time.Second)
	assert.ErrorIs(t, lk.Extend(ctx, time.Second), ErrLockNotHeld)
}

func TestLocker_WithLock(t *testing.T) {
	locker, mr := setupLocker(t)
	ran := false
	err := locker.WithLock(context.Background(), "job", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("test:job"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("test:job"))

	boom := errors.New("boom")
	err = locker.WithLock(context.Background(), "job", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("test:job"))
}

func TestLocker_WithLockRenewsWhileRunning(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client, "test:", 300*time.Millisecond)

	err := locker.WithLock(context.Background(), "ledger", func(ctx context.Context) error {
		// 只剩 50ms, 续期协程每 100ms 把 TTL 拉回 300ms
		mr.FastForward(250 * time.Millisecond)
		require.Less(t, mr.TTL("test:ledger"), 100*time.Millisecond)
		time.Sleep(250 * time.Millisecond)
		assert.True(t, mr.Exists("test:ledger"))
		assert.Greater(t, mr.TTL("test:ledger"), 150*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:ledger"))
}
