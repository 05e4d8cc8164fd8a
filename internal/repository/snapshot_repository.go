package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrSnapshotNotFound = errors.New("yield snapshot not found")

// SnapshotRepository 收益历史仓储, 只追加
type SnapshotRepository interface {
	Create(ctx context.Context, s *model.YieldSnapshot) error
	// ListRecent 最近 limit 条, 按时间正序; limit 为 0 返回全部
	ListRecent(ctx context.Context, limit int) ([]*model.YieldSnapshot, error)
	Latest(ctx context.Context) (*model.YieldSnapshot, error)
	// ListSince 时间戳不早于 since (毫秒) 的快照, 按时间升序
	ListSince(ctx context.Context, since int64) ([]*model.YieldSnapshot, error)
}

type snapshotRepository struct {
	*Repository
}

// NewSnapshotRepository 创建收益历史仓储
func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{Repository: NewRepository(db)}
}

func (r *snapshotRepository) Create(ctx context.Context, s *model.YieldSnapshot) error {
	s.CreatedAt = nowMilli()
	return r.DB(ctx).Create(s).Error
}

func (r *snapshotRepository) ListRecent(ctx context.Context, limit int) ([]*model.YieldSnapshot, error) {
	var list []*model.YieldSnapshot
	q := r.DB(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *snapshotRepository) Latest(ctx context.Context) (*model.YieldSnapshot, error) {
	var s model.YieldSnapshot
	err := r.DB(ctx).Order("id DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *snapshotRepository) ListSince(ctx context.Context, since int64) ([]*model.YieldSnapshot, error) {
	var list []*model.YieldSnapshot
	err := r.DB(ctx).Where("timestamp >= ?", since).Order("timestamp ASC, id ASC").Find(&list).Error
	return list, err
}
