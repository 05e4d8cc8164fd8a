package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrDepositNotFound = errors.New("user deposit not found")

// DepositRepository 用户存款仓储
type DepositRepository interface {
	// Append 追加存款, 编号为该用户已有存款数
	Append(ctx context.Context, d *model.UserDeposit) error
	Get(ctx context.Context, user string, index int64, opts *QueryOptions) (*model.UserDeposit, error)
	// RecordWithdrawal 更新剩余金额并累加手续费, 归零时停用
	RecordWithdrawal(ctx context.Context, id int64, remaining, fee decimal.Decimal) error
	ListByUser(ctx context.Context, user string) ([]*model.UserDeposit, error)
	Positions(ctx context.Context, user string) ([]*model.UserPosition, error)
	// Counts 存款用户数与存款笔数
	Counts(ctx context.Context) (users, deposits int64, err error)
}

type depositRepository struct {
	*Repository
}

// NewDepositRepository 创建存款仓储
func NewDepositRepository(db *gorm.DB) DepositRepository {
	return &depositRepository{Repository: NewRepository(db)}
}

func (r *depositRepository) Append(ctx context.Context, d *model.UserDeposit) error {
	var count int64
	if err := r.DB(ctx).Model(&model.UserDeposit{}).
		Where("user_address = ?", d.UserAddress).
		Count(&count).Error; err != nil {
		return err
	}
	now := nowMilli()
	d.DepositIndex = count
	d.IsActive = true
	if d.Principal.IsZero() {
		d.Principal = d.Amount
	}
	d.CreatedAt = now
	d.UpdatedAt = now
	return r.DB(ctx).Create(d).Error
}

func (r *depositRepository) Get(ctx context.Context, user string, index int64, opts *QueryOptions) (*model.UserDeposit, error) {
	var d model.UserDeposit
	err := opts.ApplyLock(r.DB(ctx)).
		Where("user_address = ? AND deposit_index = ?", user, index).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *depositRepository) RecordWithdrawal(ctx context.Context, id int64, remaining, fee decimal.Decimal) error {
	result := r.DB(ctx).Model(&model.UserDeposit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"amount":     remaining,
			"is_active":  remaining.IsPositive(),
			"fees_paid":  gorm.Expr("fees_paid + ?", fee),
			"updated_at": nowMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDepositNotFound
	}
	return nil
}

func (r *depositRepository) ListByUser(ctx context.Context, user string) ([]*model.UserDeposit, error) {
	var list []*model.UserDeposit
	err := r.DB(ctx).Where("user_address = ?", user).Order("deposit_index ASC").Find(&list).Error
	return list, err
}

func (r *depositRepository) Positions(ctx context.Context, user string) ([]*model.UserPosition, error) {
	deposits, err := r.ListByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	byStrategy := make(map[int64]*model.UserPosition)
	var out []*model.UserPosition
	for _, d := range deposits {
		if !d.IsActive {
			continue
		}
		p, ok := byStrategy[d.StrategyID]
		if !ok {
			p = &model.UserPosition{StrategyID: d.StrategyID, ActiveAmount: decimal.Zero, EarliestStart: d.Timestamp}
			byStrategy[d.StrategyID] = p
			out = append(out, p)
		}
		p.ActiveAmount = p.ActiveAmount.Add(d.Amount)
		p.DepositCount++
		if d.Timestamp < p.EarliestStart {
			p.EarliestStart = d.Timestamp
		}
	}
	return out, nil
}

func (r *depositRepository) Counts(ctx context.Context) (int64, int64, error) {
	var users, deposits int64
	if err := r.DB(ctx).Model(&model.UserDeposit{}).Distinct("user_address").Count(&users).Error; err != nil {
		return 0, 0, err
	}
	if err := r.DB(ctx).Model(&model.UserDeposit{}).Count(&deposits).Error; err != nil {
		return 0, 0, err
	}
	return users, deposits, nil
}
