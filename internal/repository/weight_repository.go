package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrWeightNotFound = errors.New("strategy weight not found")

// WeightRepository 收益计算器权重注册表仓储
type WeightRepository interface {
	Get(ctx context.Context, ref string) (*model.StrategyWeight, error)
	// ListActive 按 position 排序返回激活条目
	ListActive(ctx context.Context) ([]*model.StrategyWeight, error)
	Save(ctx context.Context, w *model.StrategyWeight) error
	UpdatePosition(ctx context.Context, id int64, position int) error
}

type weightRepository struct {
	*Repository
}

// NewWeightRepository 创建权重仓储
func NewWeightRepository(db *gorm.DB) WeightRepository {
	return &weightRepository{Repository: NewRepository(db)}
}

func (r *weightRepository) Get(ctx context.Context, ref string) (*model.StrategyWeight, error) {
	var w model.StrategyWeight
	err := r.DB(ctx).Where("strategy_ref = ?", ref).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWeightNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *weightRepository) ListActive(ctx context.Context) ([]*model.StrategyWeight, error) {
	var list []*model.StrategyWeight
	err := r.DB(ctx).Where("is_active = ?", true).Order("position ASC").Find(&list).Error
	return list, err
}

// Save 新建或整行更新
func (r *weightRepository) Save(ctx context.Context, w *model.StrategyWeight) error {
	now := nowMilli()
	if w.ID == 0 {
		w.CreatedAt = now
		w.UpdatedAt = now
		return r.DB(ctx).Create(w).Error
	}
	w.UpdatedAt = now
	return r.DB(ctx).Save(w).Error
}

func (r *weightRepository) UpdatePosition(ctx context.Context, id int64, position int) error {
	result := r.DB(ctx).Model(&model.StrategyWeight{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"position": position, "updated_at": nowMilli()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWeightNotFound
	}
	return nil
}
