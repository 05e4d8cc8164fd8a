package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrStrategyNotFound = errors.New("strategy not found")

// StrategyRepository 聚合器策略仓储
type StrategyRepository interface {
	Create(ctx context.Context, s *model.Strategy) error
	GetByID(ctx context.Context, id int64, opts *QueryOptions) (*model.Strategy, error)
	Update(ctx context.Context, id int64, fields map[string]interface{}) error
	List(ctx context.Context, activeOnly bool) ([]*model.Strategy, error)
}

type strategyRepository struct {
	*Repository
}

// NewStrategyRepository 创建策略仓储
func NewStrategyRepository(db *gorm.DB) StrategyRepository {
	return &strategyRepository{Repository: NewRepository(db)}
}

func (r *strategyRepository) Create(ctx context.Context, s *model.Strategy) error {
	now := nowMilli()
	s.CreatedAt = now
	s.UpdatedAt = now
	return r.DB(ctx).Create(s).Error
}

func (r *strategyRepository) GetByID(ctx context.Context, id int64, opts *QueryOptions) (*model.Strategy, error) {
	var s model.Strategy
	err := opts.ApplyLock(r.DB(ctx)).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *strategyRepository) Update(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = nowMilli()
	result := r.DB(ctx).Model(&model.Strategy{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStrategyNotFound
	}
	return nil
}

func (r *strategyRepository) List(ctx context.Context, activeOnly bool) ([]*model.Strategy, error) {
	var list []*model.Strategy
	q := r.DB(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("id ASC").Find(&list).Error
	return list, err
}
