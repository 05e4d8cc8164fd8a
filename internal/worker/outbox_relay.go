// Package worker 后台任务: outbox 投递与定时收益快照
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// Publisher 消息发送
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// OutboxRelay 将 outbox 消息投递到 Kafka
type OutboxRelay struct {
	cfg       config.OutboxConfig
	repo      repository.OutboxRepository
	publisher Publisher
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewOutboxRelay 创建 Outbox Relay
func NewOutboxRelay(cfg config.OutboxConfig, repo repository.OutboxRepository, publisher Publisher) *OutboxRelay {
	if cfg.RelayInterval <= 0 {
		cfg.RelayInterval = 100 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &OutboxRelay{cfg: cfg, repo: repo, publisher: publisher}
}

// Start 启动投递, 清理与恢复三个循环
func (r *OutboxRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(3)
	go r.loop(ctx, r.cfg.RelayInterval, func(ctx context.Context) { r.ProcessBatch(ctx) })
	go r.loop(ctx, r.cfg.CleanupInterval, func(ctx context.Context) { r.Cleanup(ctx) })
	go r.loop(ctx, r.cfg.RecoveryInterval, func(ctx context.Context) { r.RecoverStale(ctx) })

	logger.Info("outbox relay started",
		zap.Duration("relay_interval", r.cfg.RelayInterval),
		zap.Int("batch_size", r.cfg.BatchSize))
}

// Stop 停止并等待循环退出
func (r *OutboxRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	logger.Info("outbox relay stopped")
}

func (r *OutboxRelay) loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessBatch 认领并投递一批消息, 返回成功投递数
func (r *OutboxRelay) ProcessBatch(ctx context.Context) int {
	messages, err := r.repo.FetchAndClaim(ctx, r.cfg.BatchSize)
	if err != nil {
		logger.Error("fetch pending outbox messages failed", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if err := r.publisher.Publish(ctx, msg.Topic, msg.PartitionKey, msg.Payload); err != nil {
			logger.Error("publish outbox message failed",
				zap.Int64("id", msg.ID),
				zap.String("message_id", msg.MessageID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			if markErr := r.repo.MarkFailed(ctx, msg.ID, err); markErr != nil {
				logger.Error("mark outbox message failed error", zap.Error(markErr))
			}
			continue
		}
		if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.Error("mark outbox message sent error", zap.Int64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}

	r.refreshPending(ctx)
	return sent
}

// Cleanup 删除超过保留期的已发送消息
func (r *OutboxRelay) Cleanup(ctx context.Context) int64 {
	before := time.Now().Add(-r.cfg.Retention).UnixMilli()
	deleted, err := r.repo.CleanSent(ctx, before, r.cfg.BatchSize)
	if err != nil {
		logger.Error("cleanup sent outbox messages failed", zap.Error(err))
		return deleted
	}
	if deleted > 0 {
		logger.Info("cleaned up sent outbox messages", zap.Int64("count", deleted))
	}

	failed, err := r.repo.CountByStatus(ctx, model.OutboxStatusFailed)
	if err == nil && failed > 0 {
		logger.Warn("outbox has failed messages", zap.Int64("count", failed))
	}
	return deleted
}

// RecoverStale 实例崩溃后遗留的 processing 消息回到 pending
func (r *OutboxRelay) RecoverStale(ctx context.Context) int64 {
	recovered, err := r.repo.RecoverStale(ctx, r.cfg.StaleAfter)
	if err != nil {
		logger.Error("recover stale outbox messages failed", zap.Error(err))
		return 0
	}
	if recovered > 0 {
		logger.Info("recovered stale outbox messages",
			zap.Int64("count", recovered),
			zap.Duration("threshold", r.cfg.StaleAfter))
	}
	return recovered
}

func (r *OutboxRelay) refreshPending(ctx context.Context) {
	n, err := r.repo.CountByStatus(ctx, model.OutboxStatusPending)
	if err != nil {
		return
	}
	metrics.OutboxPending.Set(float64(n))
}
