package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/lock"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

const ledgerLockKey = "ledger"

// Op 一次串行执行的上下文
type Op struct {
	Height int64     // 执行高度, 每次执行单调递增
	Now    time.Time // 执行时刻, 同一次执行内保持不变

	events []model.Event
}

// Timestamp 执行时刻 (毫秒)
func (o *Op) Timestamp() int64 {
	return o.Now.UnixMilli()
}

// Emit 记录待发布事件, 提交时与状态变更一起写入 outbox
func (o *Op) Emit(eventType model.EventType, partitionKey string, payload interface{}) {
	o.events = append(o.events, model.Event{Type: eventType, PartitionKey: partitionKey, Payload: payload})
}

// Events 已记录的事件
func (o *Op) Events() []model.Event {
	return o.events
}

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	Locker    *lock.Locker // 为空时只使用进程内互斥
	TxRetries int
}

// Executor 全局串行执行路径
//
// 所有状态变更都经由 Execute 完成: 进程内互斥 (可选 Redis 分布式锁) 保证同一时刻只有一个
// 操作在执行, 操作在单个数据库事务中运行, 任何错误都会整体回滚.
type Executor struct {
	mu       sync.Mutex
	repo     *repository.Repository
	counters repository.CounterRepository
	outbox   repository.OutboxRepository
	clock    Clock
	locker   *lock.Locker
	retries  int
}

// NewExecutor 创建执行器
func NewExecutor(
	repo *repository.Repository,
	counters repository.CounterRepository,
	outbox repository.OutboxRepository,
	clock Clock,
	cfg ExecutorConfig,
) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	retries := cfg.TxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Executor{
		repo:     repo,
		counters: counters,
		outbox:   outbox,
		clock:    clock,
		locker:   cfg.Locker,
		retries:  retries,
	}
}

// Clock 执行器使用的时钟
func (e *Executor) Clock() Clock {
	return e.clock
}

// Execute 串行执行 fn, fn 内的仓储调用共享同一事务
func (e *Executor) Execute(ctx context.Context, operation string, fn func(ctx context.Context, op *Op) error) error {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var height int64
	run := func(ctx context.Context) error {
		return e.repo.TransactionWithRetry(ctx, e.retries, func(txCtx context.Context) error {
			h, err := e.counters.Next(txCtx, model.CounterLedgerHeight)
			if err != nil {
				return err
			}
			op := &Op{Height: h, Now: e.clock.Now()}
			if err := fn(txCtx, op); err != nil {
				return err
			}
			if err := e.writeOutbox(txCtx, op); err != nil {
				return err
			}
			height = h
			return nil
		})
	}

	var err error
	if e.locker != nil {
		err = e.locker.WithLock(ctx, ledgerLockKey, run)
	} else {
		err = run(ctx)
	}
	err = translate(err)

	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil:
		metrics.RecordOperation(operation, "ok", elapsed)
		metrics.LedgerHeight.Set(float64(height))
	case apperrors.GetKind(err) == apperrors.KindInternal:
		metrics.RecordOperation(operation, "error", elapsed)
		logger.Error("operation failed",
			zap.String("operation", operation),
			zap.Error(err))
	default:
		metrics.RecordOperation(operation, "rejected", elapsed)
		logger.Warn("operation rejected",
			zap.String("operation", operation),
			zap.String("code", apperrors.GetCode(err)),
			zap.String("reason", err.Error()))
	}
	return err
}

func (e *Executor) writeOutbox(ctx context.Context, op *Op) error {
	for _, ev := range op.events {
		msg := &model.OutboxMessage{
			MessageID:    uuid.NewString(),
			Topic:        ev.Type.Topic(),
			PartitionKey: ev.PartitionKey,
			EventType:    string(ev.Type),
			Height:       op.Height,
		}
		if err := msg.SetPayload(&model.EventEnvelope{
			EventType: ev.Type,
			Height:    op.Height,
			Timestamp: op.Timestamp(),
			Payload:   ev.Payload,
		}); err != nil {
			return err
		}
		if err := e.outbox.Create(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
