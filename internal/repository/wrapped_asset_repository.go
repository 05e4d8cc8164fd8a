package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrWrappedAssetNotFound = errors.New("wrapped asset not found")

// WrappedAssetRepository 合成资产仓储
type WrappedAssetRepository interface {
	// Ensure 不存在时创建, 已存在时保持原值
	Ensure(ctx context.Context, asset *model.WrappedAsset) error
	Get(ctx context.Context, token string, opts *QueryOptions) (*model.WrappedAsset, error)
	UpdateSupply(ctx context.Context, token string, supply decimal.Decimal) error
}

type wrappedAssetRepository struct {
	*Repository
}

// NewWrappedAssetRepository 创建合成资产仓储
func NewWrappedAssetRepository(db *gorm.DB) WrappedAssetRepository {
	return &wrappedAssetRepository{Repository: NewRepository(db)}
}

func (r *wrappedAssetRepository) Ensure(ctx context.Context, asset *model.WrappedAsset) error {
	now := nowMilli()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoNothing: true,
	}).Create(asset).Error
}

func (r *wrappedAssetRepository) Get(ctx context.Context, token string, opts *QueryOptions) (*model.WrappedAsset, error) {
	var asset model.WrappedAsset
	err := opts.ApplyLock(r.DB(ctx)).Where("token = ?", token).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWrappedAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *wrappedAssetRepository) UpdateSupply(ctx context.Context, token string, supply decimal.Decimal) error {
	result := r.DB(ctx).Model(&model.WrappedAsset{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{"total_supply": supply, "updated_at": nowMilli()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWrappedAssetNotFound
	}
	return nil
}
