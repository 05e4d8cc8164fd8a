package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var (
	ErrSettlementNotFound       = errors.New("settlement not found")
	ErrSettlementStatusConflict = errors.New("settlement status changed concurrently")
)

// SettlementRepository 结算仓储
type SettlementRepository interface {
	Create(ctx context.Context, s *model.Settlement) error
	GetByID(ctx context.Context, id int64, opts *QueryOptions) (*model.Settlement, error)
	// Transition 从 from 迁移到 to 并写入附加字段, 当前状态不是 from 时返回 ErrSettlementStatusConflict
	Transition(ctx context.Context, id int64, from, to model.SettlementStatus, fields map[string]interface{}) error
	Count(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	ListByUser(ctx context.Context, user string, page *Pagination) ([]*model.Settlement, error)
}

type settlementRepository struct {
	*Repository
}

// NewSettlementRepository 创建结算仓储
func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepository{Repository: NewRepository(db)}
}

func (r *settlementRepository) Create(ctx context.Context, s *model.Settlement) error {
	now := nowMilli()
	s.CreatedAt = now
	s.UpdatedAt = now
	return r.DB(ctx).Create(s).Error
}

func (r *settlementRepository) GetByID(ctx context.Context, id int64, opts *QueryOptions) (*model.Settlement, error) {
	var s model.Settlement
	err := opts.ApplyLock(r.DB(ctx)).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettlementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settlementRepository) Transition(ctx context.Context, id int64, from, to model.SettlementStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = nowMilli()

	result := r.DB(ctx).Model(&model.Settlement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettlementStatusConflict
	}
	return nil
}

func (r *settlementRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&model.Settlement{}).Count(&n).Error
	return n, err
}

func (r *settlementRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&model.Settlement{}).
		Where("status IN ?", []model.SettlementStatus{model.SettlementStatusPending, model.SettlementStatusProcessing}).
		Count(&n).Error
	return n, err
}

func (r *settlementRepository) ListByUser(ctx context.Context, user string, page *Pagination) ([]*model.Settlement, error) {
	var list []*model.Settlement
	q := r.DB(ctx).Model(&model.Settlement{}).Where("user_address = ?", user)
	if page != nil {
		if err := q.Count(&page.Total).Error; err != nil {
			return nil, err
		}
		q = q.Offset(page.Offset()).Limit(page.Limit())
	}
	err := q.Order("id DESC").Find(&list).Error
	return list, err
}
