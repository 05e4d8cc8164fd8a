package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

// LedgerService 托管账本查询
type LedgerService interface {
	BalanceOf(ctx context.Context, token, account common.Address) (decimal.Decimal, error)
	Balances(ctx context.Context, account common.Address) ([]*model.TokenBalance, error)
}

// RoleService 角色管理
type RoleService interface {
	GrantRole(ctx context.Context, caller common.Address, component model.Component, role model.Role, addr common.Address) error
	Roles(ctx context.Context) ([]*model.RoleBinding, error)
}

// LedgerHandler 余额与角色接口
type LedgerHandler struct {
	ledger LedgerService
	roles  RoleService
}

// NewLedgerHandler 创建余额与角色处理器
func NewLedgerHandler(ledger LedgerService, roles RoleService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, roles: roles}
}

// Balances GET /api/v1/balances
func (h *LedgerHandler) Balances(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.ledger.Balances(c.Request.Context(), from)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// Balance GET /api/v1/balances/:token
func (h *LedgerHandler) Balance(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	bal, err := h.ledger.BalanceOf(c.Request.Context(), token, from)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"token": token.Hex(), "account": from.Hex(), "balance": bal})
}

// Roles GET /api/v1/roles
func (h *LedgerHandler) Roles(c *gin.Context) {
	list, err := h.roles.Roles(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// GrantRole POST /api/v1/roles
func (h *LedgerHandler) GrantRole(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.GrantRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	addr, err := dto.ParseAddress("address", req.Address)
	if err != nil {
		Fail(c, err)
		return
	}
	err = h.roles.GrantRole(c.Request.Context(), from, model.Component(req.Component), model.Role(req.Role), addr)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"component": req.Component, "role": req.Role, "address": addr.Hex()})
}
