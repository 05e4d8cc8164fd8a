package worker

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// YieldSnapshotJobName 任务名
const YieldSnapshotJobName = "yield-snapshot"

// SnapshotRecorder 追加收益快照
type SnapshotRecorder interface {
	UpdateYieldHistory(ctx context.Context, caller common.Address) (*model.YieldSnapshot, error)
}

// LatestYieldCache 最新快照缓存
type LatestYieldCache interface {
	SetLatest(ctx context.Context, data *model.YieldData) error
}

// YieldSnapshotJob 以 keeper 身份定期追加收益历史并刷新缓存
type YieldSnapshotJob struct {
	recorder SnapshotRecorder
	cache    LatestYieldCache
	keeper   common.Address
	timeout  time.Duration
}

// NewYieldSnapshotJob 创建快照任务, cache 可为空
func NewYieldSnapshotJob(recorder SnapshotRecorder, cache LatestYieldCache, keeper common.Address, timeout time.Duration) *YieldSnapshotJob {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &YieldSnapshotJob{recorder: recorder, cache: cache, keeper: keeper, timeout: timeout}
}

func (j *YieldSnapshotJob) Name() string           { return YieldSnapshotJobName }
func (j *YieldSnapshotJob) Timeout() time.Duration { return j.timeout }

func (j *YieldSnapshotJob) Execute(ctx context.Context) error {
	snap, err := j.recorder.UpdateYieldHistory(ctx, j.keeper)
	if err != nil {
		return err
	}
	if j.cache == nil {
		return nil
	}

	data, err := snap.ToData()
	if err != nil {
		return err
	}
	// 缓存失败不影响已提交的快照
	if err := j.cache.SetLatest(ctx, data); err != nil {
		logger.Warn("failed to cache latest yield", zap.Error(err))
	}
	return nil
}
