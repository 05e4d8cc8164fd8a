package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidDelta        = errors.New("invalid balance delta")
)

// BalanceRepository 代币托管余额仓储
type BalanceRepository interface {
	Get(ctx context.Context, token, account string) (decimal.Decimal, error)
	// Credit 增加余额, 不存在时创建
	Credit(ctx context.Context, token, account string, amount decimal.Decimal) (decimal.Decimal, error)
	// Debit 扣减余额, 不足时返回 ErrInsufficientBalance 且不修改
	Debit(ctx context.Context, token, account string, amount decimal.Decimal) (decimal.Decimal, error)
	ListByAccount(ctx context.Context, account string) ([]*model.TokenBalance, error)
}

type balanceRepository struct {
	*Repository
}

// NewBalanceRepository 创建余额仓储
func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{Repository: NewRepository(db)}
}

func (r *balanceRepository) find(ctx context.Context, token, account string, opts *QueryOptions) (*model.TokenBalance, error) {
	var b model.TokenBalance
	err := opts.ApplyLock(r.DB(ctx)).
		Where("token = ? AND account = ?", token, account).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *balanceRepository) Get(ctx context.Context, token, account string) (decimal.Decimal, error) {
	b, err := r.find(ctx, token, account, nil)
	if err != nil || b == nil {
		return decimal.Zero, err
	}
	return b.Balance, nil
}

func (r *balanceRepository) Credit(ctx context.Context, token, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidDelta
	}
	b, err := r.find(ctx, token, account, ForUpdate)
	if err != nil {
		return decimal.Zero, err
	}
	now := nowMilli()
	if b == nil {
		b = &model.TokenBalance{Token: token, Account: account, Balance: amount, CreatedAt: now, UpdatedAt: now}
		if err := r.DB(ctx).Create(b).Error; err != nil {
			return decimal.Zero, err
		}
		return b.Balance, nil
	}
	next := b.Balance.Add(amount)
	if err := r.DB(ctx).Model(&model.TokenBalance{}).Where("id = ?", b.ID).
		Updates(map[string]interface{}{"balance": next, "updated_at": now}).Error; err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

func (r *balanceRepository) Debit(ctx context.Context, token, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidDelta
	}
	b, err := r.find(ctx, token, account, ForUpdate)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		if b == nil {
			return decimal.Zero, nil
		}
		return b.Balance, nil
	}
	if b == nil || b.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}
	next := b.Balance.Sub(amount)
	if err := r.DB(ctx).Model(&model.TokenBalance{}).Where("id = ?", b.ID).
		Updates(map[string]interface{}{"balance": next, "updated_at": nowMilli()}).Error; err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

func (r *balanceRepository) ListByAccount(ctx context.Context, account string) ([]*model.TokenBalance, error) {
	var list []*model.TokenBalance
	err := r.DB(ctx).Where("account = ?", account).Order("token ASC").Find(&list).Error
	return list, err
}
