package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrSettingsNotFound = errors.New("component settings not found")

// SettingsRepository 组件设置仓储
type SettingsRepository interface {
	// Ensure 不存在时以给定初始值创建
	Ensure(ctx context.Context, s *model.ComponentSettings) error
	Get(ctx context.Context, component model.Component, opts *QueryOptions) (*model.ComponentSettings, error)
	Update(ctx context.Context, component model.Component, fields map[string]interface{}) error
}

type settingsRepository struct {
	*Repository
}

// NewSettingsRepository 创建组件设置仓储
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{Repository: NewRepository(db)}
}

func (r *settingsRepository) Ensure(ctx context.Context, s *model.ComponentSettings) error {
	now := nowMilli()
	s.CreatedAt = now
	s.UpdatedAt = now
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "component"}},
		DoNothing: true,
	}).Create(s).Error
}

func (r *settingsRepository) Get(ctx context.Context, component model.Component, opts *QueryOptions) (*model.ComponentSettings, error) {
	var s model.ComponentSettings
	err := opts.ApplyLock(r.DB(ctx)).Where("component = ?", component).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) Update(ctx context.Context, component model.Component, fields map[string]interface{}) error {
	fields["updated_at"] = nowMilli()
	result := r.DB(ctx).Model(&model.ComponentSettings{}).Where("component = ?", component).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettingsNotFound
	}
	return nil
}
