package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/auth"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// RoleService 组件角色管理
type RoleService struct {
	exec  *Executor
	authz *auth.Authorizer
}

// NewRoleService 创建角色服务
func NewRoleService(exec *Executor, authz *auth.Authorizer) *RoleService {
	return &RoleService{exec: exec, authz: authz}
}

func validComponent(c model.Component) bool {
	switch c {
	case model.ComponentBridge, model.ComponentSettlement, model.ComponentCalculator, model.ComponentAggregator:
		return true
	}
	return false
}

// GrantRole 组件 owner 为该组件绑定角色地址, 转让 owner 也走这里
func (s *RoleService) GrantRole(ctx context.Context, caller common.Address, component model.Component,
	role model.Role, addr common.Address) error {
	if !validComponent(component) {
		return apperrors.ErrInvalidRequest.WithMessagef("unknown component %q", component)
	}
	err := s.exec.Execute(ctx, "roles.grant", func(ctx context.Context, op *Op) error {
		if err := s.authz.Require(ctx, component, caller, model.RoleOwner); err != nil {
			return err
		}
		return s.authz.Grant(ctx, component, role, addr, caller)
	})
	if err != nil {
		return err
	}
	logger.Info("role granted",
		zap.String("component", string(component)),
		zap.String("role", string(role)),
		zap.String("address", addr.Hex()),
		zap.String("by", caller.Hex()))
	return nil
}

// Roles 全部角色绑定
func (s *RoleService) Roles(ctx context.Context) ([]*model.RoleBinding, error) {
	list, err := s.authz.List(ctx)
	return list, translate(err)
}
