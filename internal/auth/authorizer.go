// Package auth 组件级角色校验
//
// 每个组件 (bridge, settlement, calculator, aggregator) 每个角色绑定一个地址,
// 所有需要权限的操作都通过 Authorizer.Require 校验调用方.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// Authorizer 角色校验
type Authorizer struct {
	roles repository.RoleRepository
}

// NewAuthorizer 创建角色校验
func NewAuthorizer(roles repository.RoleRepository) *Authorizer {
	return &Authorizer{roles: roles}
}

// Holder 返回角色当前绑定的地址, 未绑定时 ok 为 false
func (a *Authorizer) Holder(ctx context.Context, component model.Component, role model.Role) (common.Address, bool, error) {
	b, err := a.roles.Get(ctx, component, role)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	return common.HexToAddress(b.Address), true, nil
}

// Has caller 是否持有任一角色
func (a *Authorizer) Has(ctx context.Context, component model.Component, caller common.Address, roles ...model.Role) (bool, error) {
	if caller == (common.Address{}) {
		return false, nil
	}
	for _, role := range roles {
		holder, ok, err := a.Holder(ctx, component, role)
		if err != nil {
			return false, err
		}
		if ok && holder == caller {
			return true, nil
		}
	}
	return false, nil
}

// Require caller 必须持有任一角色, 否则返回 ErrForbidden
func (a *Authorizer) Require(ctx context.Context, component model.Component, caller common.Address, roles ...model.Role) error {
	ok, err := a.Has(ctx, component, caller, roles...)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, err)
	}
	if !ok {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		return apperrors.ErrForbidden.
			WithMessagef("caller is not %s of %s", strings.Join(names, " or "), component).
			WithDetail("caller", caller.Hex())
	}
	return nil
}

// Grant 覆盖角色绑定, 由调用方在执行器内完成 owner 校验
func (a *Authorizer) Grant(ctx context.Context, component model.Component, role model.Role, addr, by common.Address) error {
	if !role.Valid() {
		return apperrors.ErrInvalidRequest.WithMessagef("unknown role %q", role)
	}
	if addr == (common.Address{}) {
		return apperrors.ErrInvalidAddress.WithMessage("role address must not be zero")
	}
	return a.roles.Set(ctx, &model.RoleBinding{
		Component: component,
		Role:      role,
		Address:   model.AddressKey(addr),
		UpdatedBy: model.AddressKey(by),
	})
}

// List 全部角色绑定
func (a *Authorizer) List(ctx context.Context) ([]*model.RoleBinding, error) {
	return a.roles.List(ctx)
}

// Bootstrap 写入配置中的初始角色, 已存在的绑定保持不变
func (a *Authorizer) Bootstrap(ctx context.Context, cfg config.RolesConfig) error {
	type seed struct {
		component model.Component
		role      model.Role
		address   string
	}
	seeds := []seed{
		{model.ComponentBridge, model.RoleOwner, cfg.Owner},
		{model.ComponentSettlement, model.RoleOwner, cfg.Owner},
		{model.ComponentCalculator, model.RoleOwner, cfg.Owner},
		{model.ComponentAggregator, model.RoleOwner, cfg.Owner},
		{model.ComponentBridge, model.RoleOperator, cfg.BridgeOperator},
		{model.ComponentSettlement, model.RoleValidator, cfg.SettlementValidator},
		{model.ComponentCalculator, model.RoleKeeper, cfg.CalculatorKeeper},
		{model.ComponentAggregator, model.RoleOperator, cfg.AggregatorOperator},
	}
	for _, s := range seeds {
		if s.address == "" {
			continue
		}
		if !common.IsHexAddress(s.address) {
			return apperrors.ErrInvalidAddress.WithMessagef("invalid %s %s address %q", s.component, s.role, s.address)
		}
		err := a.roles.SetIfAbsent(ctx, &model.RoleBinding{
			Component: s.component,
			Role:      s.role,
			Address:   model.AddressKey(common.HexToAddress(s.address)),
			UpdatedBy: "config",
		})
		if err != nil {
			return err
		}
	}
	logger.Info("role bindings bootstrapped", zap.Int("candidates", len(seeds)))
	return nil
}
