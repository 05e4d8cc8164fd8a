package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var (
	ErrTransferNotFound         = errors.New("cross-chain transfer not found")
	ErrTransferAlreadyCompleted = errors.New("cross-chain transfer already completed")
)

// TransferRepository 跨链转账仓储
type TransferRepository interface {
	Create(ctx context.Context, transfer *model.CrossChainTransfer) error
	Get(ctx context.Context, domain model.TransferDomain, transferID string, opts *QueryOptions) (*model.CrossChainTransfer, error)
	// MarkCompleted 仅在未完成时生效, 否则返回 ErrTransferAlreadyCompleted
	MarkCompleted(ctx context.Context, id int64, messageID string, success bool) error
	ListByUser(ctx context.Context, domain model.TransferDomain, user string, page *Pagination) ([]*model.CrossChainTransfer, error)
}

type transferRepository struct {
	*Repository
}

// NewTransferRepository 创建跨链转账仓储
func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{Repository: NewRepository(db)}
}

func (r *transferRepository) Create(ctx context.Context, transfer *model.CrossChainTransfer) error {
	now := nowMilli()
	transfer.CreatedAt = now
	transfer.UpdatedAt = now
	return r.DB(ctx).Create(transfer).Error
}

func (r *transferRepository) Get(ctx context.Context, domain model.TransferDomain, transferID string, opts *QueryOptions) (*model.CrossChainTransfer, error) {
	var t model.CrossChainTransfer
	err := opts.ApplyLock(r.DB(ctx)).
		Where("transfer_id = ? AND domain = ?", transferID, domain).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transferRepository) MarkCompleted(ctx context.Context, id int64, messageID string, success bool) error {
	now := nowMilli()
	result := r.DB(ctx).Model(&model.CrossChainTransfer{}).
		Where("id = ? AND is_completed = ?", id, false).
		Updates(map[string]interface{}{
			"is_completed": true,
			"success":      success,
			"message_id":   messageID,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransferAlreadyCompleted
	}
	return nil
}

func (r *transferRepository) ListByUser(ctx context.Context, domain model.TransferDomain, user string, page *Pagination) ([]*model.CrossChainTransfer, error) {
	var list []*model.CrossChainTransfer
	q := r.DB(ctx).Model(&model.CrossChainTransfer{}).
		Where("domain = ? AND user_address = ?", domain, user)
	if page != nil {
		if err := q.Count(&page.Total).Error; err != nil {
			return nil, err
		}
		q = q.Offset(page.Offset()).Limit(page.Limit())
	}
	err := q.Order("id DESC").Find(&list).Error
	return list, err
}
