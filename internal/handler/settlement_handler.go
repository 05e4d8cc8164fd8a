package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
)

// SettlementService 结算服务接口
type SettlementService interface {
	InitiateSettlement(ctx context.Context, caller, token common.Address, amount, yieldAmount decimal.Decimal) (*model.Settlement, error)
	ProcessSettlement(ctx context.Context, caller common.Address, id int64, externalTxRef, externalNetwork string) error
	CompleteSettlement(ctx context.Context, caller common.Address, id int64, finalAmount decimal.Decimal) (*model.Settlement, error)
	FailSettlement(ctx context.Context, caller common.Address, id int64, reason string) error
	CancelSettlement(ctx context.Context, caller common.Address, id int64) error
	Fund(ctx context.Context, caller, token common.Address, amount decimal.Decimal) error
	UpdateConfig(ctx context.Context, caller common.Address, patch *service.SettlementConfigPatch) (*model.ComponentSettings, error)
	Config(ctx context.Context) (*model.ComponentSettings, error)
	GetSettlement(ctx context.Context, id int64) (*model.Settlement, error)
	ListByUser(ctx context.Context, user common.Address, page *repository.Pagination) ([]*model.Settlement, error)
	Stats(ctx context.Context) (*model.SettlementStats, error)
}

// SettlementHandler 结算接口
type SettlementHandler struct {
	svc SettlementService
}

// NewSettlementHandler 创建结算处理器
func NewSettlementHandler(svc SettlementService) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

// Initiate POST /api/v1/settlements
func (h *SettlementHandler) Initiate(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.InitiateSettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := dto.ParseAddress("token", req.Token)
	if err != nil {
		Fail(c, err)
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	yieldAmount, err := dto.ParseOptionalAmount("yield_amount", req.YieldAmount)
	if err != nil {
		Fail(c, err)
		return
	}

	s, err := h.svc.InitiateSettlement(c.Request.Context(), from, token, amount, yieldAmount)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, s)
}

// Process POST /api/v1/settlements/:id/process
func (h *SettlementHandler) Process(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req dto.ProcessSettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.ProcessSettlement(c.Request.Context(), from, id, req.ExternalTxRef, req.ExternalNetwork); err != nil {
		Fail(c, err)
		return
	}
	h.respondSettlement(c, id)
}

// Complete POST /api/v1/settlements/:id/complete
func (h *SettlementHandler) Complete(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req dto.CompleteSettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	finalAmount, err := dto.ParseAmount("final_amount", req.FinalAmount)
	if err != nil {
		Fail(c, err)
		return
	}
	s, err := h.svc.CompleteSettlement(c.Request.Context(), from, id, finalAmount)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, s)
}

// MarkFailed POST /api/v1/settlements/:id/fail
func (h *SettlementHandler) MarkFailed(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req dto.FailSettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.FailSettlement(c.Request.Context(), from, id, req.Reason); err != nil {
		Fail(c, err)
		return
	}
	h.respondSettlement(c, id)
}

// Cancel POST /api/v1/settlements/:id/cancel
func (h *SettlementHandler) Cancel(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	if err := h.svc.CancelSettlement(c.Request.Context(), from, id); err != nil {
		Fail(c, err)
		return
	}
	h.respondSettlement(c, id)
}

// Fund POST /api/v1/settlements/fund
func (h *SettlementHandler) Fund(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.FundRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := dto.ParseAddress("token", req.Token)
	if err != nil {
		Fail(c, err)
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := h.svc.Fund(c.Request.Context(), from, token, amount); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"token": token.Hex(), "amount": amount.String()})
}

// Get GET /api/v1/settlements/:id
func (h *SettlementHandler) Get(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	h.respondSettlement(c, id)
}

// List GET /api/v1/settlements
func (h *SettlementHandler) List(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	page := pagination(c)
	list, err := h.svc.ListByUser(c.Request.Context(), from, page)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, list, page)
}

// Stats GET /api/v1/settlements/stats
func (h *SettlementHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, stats)
}

// GetConfig GET /api/v1/settlements/config
func (h *SettlementHandler) GetConfig(c *gin.Context) {
	cfg, err := h.svc.Config(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, cfg)
}

// UpdateConfig PUT /api/v1/settlements/config
// 先解析全部字段, 再整体提交
func (h *SettlementHandler) UpdateConfig(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.SettlementConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	patch := &service.SettlementConfigPatch{
		FeeRateBps:     req.FeeRateBps,
		Network:        req.Network,
		NetworkEnabled: true,
	}
	if req.MaxSettlementAmount != "" {
		maxAmount, err := dto.ParseAmount("max_settlement_amount", req.MaxSettlementAmount)
		if err != nil {
			Fail(c, err)
			return
		}
		patch.MaxSettlementAmount = &maxAmount
	}
	if req.Validator != "" {
		validator, err := dto.ParseAddress("validator", req.Validator)
		if err != nil {
			Fail(c, err)
			return
		}
		patch.Validator = &validator
	}
	if req.NetworkEnabled != nil {
		patch.NetworkEnabled = *req.NetworkEnabled
	}
	cfg, err := h.svc.UpdateConfig(c.Request.Context(), from, patch)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, cfg)
}

func (h *SettlementHandler) respondSettlement(c *gin.Context, id int64) {
	s, err := h.svc.GetSettlement(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, s)
}
