package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
)

// AggregatorService 收益聚合服务接口
type AggregatorService interface {
	AddStrategy(ctx context.Context, caller common.Address, name string, backing common.Address, performanceFeeRate, managementFeeRate int64) (*model.Strategy, error)
	UpdateStrategy(ctx context.Context, caller common.Address, id int64, isActive bool, performanceFeeRate, managementFeeRate int64) (*model.Strategy, error)
	Deposit(ctx context.Context, caller common.Address, strategyID int64, amount decimal.Decimal) (*model.UserDeposit, error)
	Withdraw(ctx context.Context, caller common.Address, depositIndex int64, amount decimal.Decimal) (*service.WithdrawResult, error)
	InitiateCrossChainTransfer(ctx context.Context, caller, token common.Address, amount decimal.Decimal, dstChainID int64) (*model.CrossChainTransfer, error)
	CompleteCrossChainTransfer(ctx context.Context, caller common.Address, transferID, messageID string) (*model.CrossChainTransfer, error)
	SetFeeCollector(ctx context.Context, caller, collector common.Address) error
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	Stats(ctx context.Context) (*service.AggregatorStats, error)
	GetStrategy(ctx context.Context, id int64) (*model.Strategy, error)
	ListStrategies(ctx context.Context, activeOnly bool) ([]*model.Strategy, error)
	GetUserDeposits(ctx context.Context, user common.Address) ([]*model.UserDeposit, error)
	GetUserPositions(ctx context.Context, user common.Address) ([]*model.UserPosition, error)
	GetTransfer(ctx context.Context, transferID string) (*model.CrossChainTransfer, error)
}

// AggregatorHandler 收益聚合接口
type AggregatorHandler struct {
	svc AggregatorService
}

// NewAggregatorHandler 创建聚合处理器
func NewAggregatorHandler(svc AggregatorService) *AggregatorHandler {
	return &AggregatorHandler{svc: svc}
}

// AddStrategy POST /api/v1/strategies
func (h *AggregatorHandler) AddStrategy(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.AddStrategyRequest
	if !bindJSON(c, &req) {
		return
	}
	backing, err := dto.ParseAddress("backing_address", req.BackingAddress)
	if err != nil {
		Fail(c, err)
		return
	}
	s, err := h.svc.AddStrategy(c.Request.Context(), from, req.Name, backing, req.PerformanceFeeRate, req.ManagementFeeRate)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, s)
}

// UpdateStrategy PUT /api/v1/strategies/:id
func (h *AggregatorHandler) UpdateStrategy(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateStrategyRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.svc.UpdateStrategy(c.Request.Context(), from, id, *req.IsActive, req.PerformanceFeeRate, req.ManagementFeeRate)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, s)
}

// ListStrategies GET /api/v1/strategies?active=true
func (h *AggregatorHandler) ListStrategies(c *gin.Context) {
	list, err := h.svc.ListStrategies(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// GetStrategy GET /api/v1/strategies/:id
func (h *AggregatorHandler) GetStrategy(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	s, err := h.svc.GetStrategy(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, s)
}

// Deposit POST /api/v1/deposits
func (h *AggregatorHandler) Deposit(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	d, err := h.svc.Deposit(c.Request.Context(), from, req.StrategyID, amount)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, d)
}

// Withdraw POST /api/v1/deposits/:index/withdraw
func (h *AggregatorHandler) Withdraw(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	index, ok := pathInt(c, "index")
	if !ok {
		return
	}
	var req dto.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	res, err := h.svc.Withdraw(c.Request.Context(), from, index, amount)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}

// Deposits GET /api/v1/deposits
func (h *AggregatorHandler) Deposits(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.svc.GetUserDeposits(c.Request.Context(), from)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// Positions GET /api/v1/positions
func (h *AggregatorHandler) Positions(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.svc.GetUserPositions(c.Request.Context(), from)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// InitiateTransfer POST /api/v1/transfers
func (h *AggregatorHandler) InitiateTransfer(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.CrossChainTransferRequest
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
	t, err := h.svc.InitiateCrossChainTransfer(c.Request.Context(), from, token, amount, req.DestinationChainID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// CompleteTransfer POST /api/v1/transfers/:id/complete
func (h *AggregatorHandler) CompleteTransfer(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.CompleteCrossChainRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.svc.CompleteCrossChainTransfer(c.Request.Context(), from, c.Param("id"), req.MessageID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// GetTransfer GET /api/v1/transfers/:id
func (h *AggregatorHandler) GetTransfer(c *gin.Context) {
	t, err := h.svc.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Stats GET /api/v1/aggregator
func (h *AggregatorHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, stats)
}

// SetFeeCollector PUT /api/v1/aggregator/fee-collector
func (h *AggregatorHandler) SetFeeCollector(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.FeeCollectorRequest
	if !bindJSON(c, &req) {
		return
	}
	collector, err := dto.ParseAddress("fee_collector", req.FeeCollector)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := h.svc.SetFeeCollector(c.Request.Context(), from, collector); err != nil {
		Fail(c, err)
		return
	}
	h.Stats(c)
}

// Pause POST /api/v1/aggregator/pause
func (h *AggregatorHandler) Pause(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	if err := h.svc.Pause(c.Request.Context(), from); err != nil {
		Fail(c, err)
		return
	}
	h.Stats(c)
}

// Unpause POST /api/v1/aggregator/unpause
func (h *AggregatorHandler) Unpause(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	if err := h.svc.Unpause(c.Request.Context(), from); err != nil {
		Fail(c, err)
		return
	}
	h.Stats(c)
}
