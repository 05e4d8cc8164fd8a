package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrRoleNotFound = errors.New("role binding not found")

// RoleRepository 角色绑定仓储
type RoleRepository interface {
	Get(ctx context.Context, component model.Component, role model.Role) (*model.RoleBinding, error)
	// Set 覆盖绑定
	Set(ctx context.Context, binding *model.RoleBinding) error
	// SetIfAbsent 仅在未绑定时写入
	SetIfAbsent(ctx context.Context, binding *model.RoleBinding) error
	List(ctx context.Context) ([]*model.RoleBinding, error)
}

type roleRepository struct {
	*Repository
}

// NewRoleRepository 创建角色仓储
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{Repository: NewRepository(db)}
}

func (r *roleRepository) Get(ctx context.Context, component model.Component, role model.Role) (*model.RoleBinding, error) {
	var b model.RoleBinding
	err := r.DB(ctx).Where("component = ? AND role = ?", component, role).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *roleRepository) upsert(ctx context.Context, binding *model.RoleBinding, overwrite bool) error {
	now := nowMilli()
	binding.CreatedAt = now
	binding.UpdatedAt = now
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "component"}, {Name: "role"}},
	}
	if overwrite {
		conflict.DoUpdates = clause.AssignmentColumns([]string{"address", "updated_by", "updated_at"})
	} else {
		conflict.DoNothing = true
	}
	return r.DB(ctx).Clauses(conflict).Create(binding).Error
}

func (r *roleRepository) Set(ctx context.Context, binding *model.RoleBinding) error {
	return r.upsert(ctx, binding, true)
}

func (r *roleRepository) SetIfAbsent(ctx context.Context, binding *model.RoleBinding) error {
	return r.upsert(ctx, binding, false)
}

func (r *roleRepository) List(ctx context.Context) ([]*model.RoleBinding, error) {
	var list []*model.RoleBinding
	err := r.DB(ctx).Order("component ASC, role ASC").Find(&list).Error
	return list, err
}
