package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

// AssetRepository 支持的代币 / 网络 / 链
type AssetRepository interface {
	IsSupported(ctx context.Context, kind model.AssetKind, value string) (bool, error)
	// Seed 写入初始列表, 已存在的条目不变
	Seed(ctx context.Context, assets []*model.SupportedAsset) error
	SetEnabled(ctx context.Context, kind model.AssetKind, value string, enabled bool) error
	List(ctx context.Context, kind model.AssetKind) ([]*model.SupportedAsset, error)
}

type assetRepository struct {
	*Repository
}

// NewAssetRepository 创建支持列表仓储
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{Repository: NewRepository(db)}
}

func (r *assetRepository) IsSupported(ctx context.Context, kind model.AssetKind, value string) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&model.SupportedAsset{}).
		Where("kind = ? AND value = ? AND enabled = ?", kind, value, true).
		Count(&n).Error
	return n > 0, err
}

func (r *assetRepository) Seed(ctx context.Context, assets []*model.SupportedAsset) error {
	if len(assets) == 0 {
		return nil
	}
	now := nowMilli()
	for _, a := range assets {
		a.Enabled = true
		a.CreatedAt = now
		a.UpdatedAt = now
	}
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "value"}},
		DoNothing: true,
	}).Create(&assets).Error
}

// SetEnabled 启用或停用条目, 不存在时新建
func (r *assetRepository) SetEnabled(ctx context.Context, kind model.AssetKind, value string, enabled bool) error {
	now := nowMilli()
	result := r.DB(ctx).Model(&model.SupportedAsset{}).
		Where("kind = ? AND value = ?", kind, value).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	asset := &model.SupportedAsset{Kind: kind, Value: value, Enabled: true, CreatedAt: now, UpdatedAt: now}
	if err := r.DB(ctx).Create(asset).Error; err != nil {
		return err
	}
	if enabled {
		return nil
	}
	// enabled 带默认值, 零值不会随 INSERT 写入
	return r.DB(ctx).Model(asset).Update("enabled", false).Error
}

func (r *assetRepository) List(ctx context.Context, kind model.AssetKind) ([]*model.SupportedAsset, error) {
	var list []*model.SupportedAsset
	err := r.DB(ctx).Where("kind = ? AND enabled = ?", kind, true).Order("id ASC").Find(&list).Error
	return list, err
}
