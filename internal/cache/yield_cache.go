// Package cache Redis 缓存: 最新收益快照与签名防重放
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

// Redis 缓存键
const (
	KeyLatestYield = "yield:latest"
)

// DefaultYieldTTL 默认快照缓存时间, 与快照任务周期一致
const DefaultYieldTTL = 300 * time.Second

// YieldCache 最新收益快照缓存
type YieldCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewYieldCache 创建快照缓存, ttl 为 0 时使用默认值
func NewYieldCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *YieldCache {
	if ttl <= 0 {
		ttl = DefaultYieldTTL
	}
	return &YieldCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("yield_cache"),
	}
}

// SetLatest 缓存最新快照
func (c *YieldCache) SetLatest(ctx context.Context, data *model.YieldData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, KeyLatestYield, raw, c.ttl).Err(); err != nil {
		return err
	}
	c.logger.Debug("latest yield cached", zap.Int64("timestamp", data.Timestamp))
	return nil
}

// GetLatest 读取缓存的快照, 未命中返回 (nil, nil)
func (c *YieldCache) GetLatest(ctx context.Context) (*model.YieldData, error) {
	raw, err := c.client.Get(ctx, KeyLatestYield).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var data model.YieldData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Invalidate 删除缓存
func (c *YieldCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, KeyLatestYield).Err()
}

// Ping 健康检查
func (c *YieldCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
