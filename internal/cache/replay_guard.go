package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ReplayKeyPrefix 签名防重放键前缀
	ReplayKeyPrefix = "eidos:yield:replay:"

	// DefaultReplayTTL 签名记录保留时间, 不短于时间戳容忍窗口
	DefaultReplayTTL = 5 * time.Minute
)

// ReplayGuard 基于 Redis 的签名防重放
type ReplayGuard struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewReplayGuard 创建防重放检查器
func NewReplayGuard(rdb redis.UniversalClient) *ReplayGuard {
	return NewReplayGuardWithTTL(rdb, DefaultReplayTTL)
}

// NewReplayGuardWithTTL 创建带自定义 TTL 的防重放检查器
func NewReplayGuardWithTTL(rdb redis.UniversalClient, ttl time.Duration) *ReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &ReplayGuard{rdb: rdb, ttl: ttl}
}

// CheckAndMark 原子地检查并标记签名
// 返回 true 表示首次使用, false 表示已被使用
func (g *ReplayGuard) CheckAndMark(ctx context.Context, wallet, timestamp, signature string) (bool, error) {
	return g.rdb.SetNX(ctx, g.key(wallet, timestamp, signature), "1", g.ttl).Result()
}

// Check 签名是否已被使用
func (g *ReplayGuard) Check(ctx context.Context, wallet, timestamp, signature string) (bool, error) {
	n, err := g.rdb.Exists(ctx, g.key(wallet, timestamp, signature)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *ReplayGuard) key(wallet, timestamp, signature string) string {
	sum := sha256.Sum256([]byte(wallet + ":" + timestamp + ":" + signature))
	return ReplayKeyPrefix + hex.EncodeToString(sum[:])
}
