package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/lock"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// Job 定时任务
type Job interface {
	Name() string
	Execute(ctx context.Context) error
	Timeout() time.Duration
}

// Scheduler 秒级 cron 调度
//
// 同名任务不会重叠执行. 配置了 locker 时还会用 Redis 锁保证多实例只执行一次.
type Scheduler struct {
	cron    *cron.Cron
	locker  *lock.Locker
	jobs    map[string]Job
	running map[string]bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler 创建调度器, locker 可为空
func NewScheduler(locker *lock.Locker) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		locker:  locker,
		jobs:    make(map[string]Job),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register 按 cron 表达式注册任务
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(job) }); err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", job.Name(), err)
	}
	s.jobs[job.Name()] = job

	logger.Info("job registered", zap.String("job", job.Name()), zap.String("cron", spec))
	return nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop 停止调度并等待执行中的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Info("scheduler stopped")
}

// Trigger 立即执行一次
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	s.Run(job)
	return nil
}

// Run 执行任务, 同名任务正在执行时跳过
func (s *Scheduler) Run(job Job) {
	name := job.Name()
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		logger.Warn("job still running, skipping", zap.String("job", name))
		return
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout())
	defer cancel()

	if s.locker != nil {
		lk := s.locker.NewLock("job:" + name)
		acquired, err := lk.TryAcquire(ctx)
		if err != nil {
			metrics.RecordJob(name, false)
			logger.Error("failed to acquire job lock", zap.String("job", name), zap.Error(err))
			return
		}
		if !acquired {
			logger.Debug("job is running on another instance", zap.String("job", name))
			return
		}
		defer func() {
			if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	err := job.Execute(ctx)
	metrics.RecordJob(name, err == nil)
	if err != nil {
		logger.Error("job failed",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	logger.Info("job completed",
		zap.String("job", name),
		zap.Duration("duration", time.Since(start)))
}
