package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

// CounterRepository 持久化单调计数器
type CounterRepository interface {
	// Next 自增并返回新值, 计数器不存在时从 1 开始
	Next(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
}

type counterRepository struct {
	*Repository
}

// NewCounterRepository 创建计数器仓储
func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{Repository: NewRepository(db)}
}

func (r *counterRepository) Next(ctx context.Context, name string) (int64, error) {
	var c model.LedgerCounter
	err := r.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", name).First(&c).Error
	now := nowMilli()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = model.LedgerCounter{Name: name, Value: 1, UpdatedAt: now}
		if err := r.DB(ctx).Create(&c).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	next := c.Value + 1
	if err := r.DB(ctx).Model(&model.LedgerCounter{}).Where("id = ?", c.ID).
		Updates(map[string]interface{}{"value": next, "updated_at": now}).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func (r *counterRepository) Current(ctx context.Context, name string) (int64, error) {
	var c model.LedgerCounter
	err := r.DB(ctx).Where("name = ?", name).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return c.Value, err
}
