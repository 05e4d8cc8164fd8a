// Package lock 基于 Redis 的分布式互斥锁
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

var (
	// ErrLockNotHeld 锁未持有
	ErrLockNotHeld = errors.New("lock not held")
	// ErrLockAcquireFailed 获取锁失败
	ErrLockAcquireFailed = errors.New("failed to acquire lock")
)

// 仅持有者可以删除或续期
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker 锁工厂
type Locker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
}

// NewLocker 创建锁工厂
func NewLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		retryEvery: 20 * time.Millisecond,
	}
}

// Lock 单个锁实例, 每次获取使用独立 token
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// NewLock 创建锁
func (l *Locker) NewLock(key string) *Lock {
	return &Lock{
		locker: l,
		key:    l.prefix + key,
		token:  uuid.NewString(),
	}
}

// TryAcquire 非阻塞获取
func (lk *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := lk.locker.client.SetNX(ctx, lk.key, lk.token, lk.locker.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", lk.key, err)
	}
	return ok, nil
}

// Acquire 阻塞获取直到成功或 ctx 结束
func (lk *Lock) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(lk.locker.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := lk.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLockAcquireFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release 释放锁
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 续期
func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// WithLock 在锁内执行 fn, 执行期间按 ttl/3 自动续期
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lk := l.NewLock(key)
	if err := lk.Acquire(ctx); err != nil {
		return err
	}
	stop := lk.watchdog(context.WithoutCancel(ctx))
	defer func() {
		stop()
		_ = lk.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// watchdog 启动续期协程, 返回的 stop 等待协程退出
func (lk *Lock) watchdog(ctx context.Context) (stop func()) {
	ttl := lk.locker.ttl
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if err := lk.Extend(ctx, ttl); err != nil {
					logger.Warn("failed to renew lock",
						zap.String("key", lk.key),
						zap.Error(err))
					if errors.Is(err, ErrLockNotHeld) {
						return
					}
				}
			}
		}
	}()
	return func() {
		close(stopCh)
		wg.Wait()
	}
}
