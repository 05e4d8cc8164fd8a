package handler

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// CalculatorService 收益计算服务接口
type CalculatorService interface {
	AddStrategy(ctx context.Context, caller, ref common.Address, weight int64) error
	UpdateStrategyWeight(ctx context.Context, caller, ref common.Address, weight int64) error
	RemoveStrategy(ctx context.Context, caller, ref common.Address) error
	Registry(ctx context.Context) (*service.WeightRegistry, error)
	GetDetailedYieldData(ctx context.Context) (*model.YieldData, error)
	UpdateYieldHistory(ctx context.Context, caller common.Address) (*model.YieldSnapshot, error)
	CalculateOptimalAllocation(ctx context.Context, totalAmount decimal.Decimal) ([]service.Allocation, error)
	GetYieldHistory(ctx context.Context, limit int) ([]*model.YieldSnapshot, error)
	LatestSnapshot(ctx context.Context) (*model.YieldSnapshot, error)
}

// YieldCache 最新快照缓存
type YieldCache interface {
	GetLatest(ctx context.Context) (*model.YieldData, error)
	SetLatest(ctx context.Context, data *model.YieldData) error
}

// YieldHandler 收益计算接口
type YieldHandler struct {
	svc   CalculatorService
	cache YieldCache
}

// NewYieldHandler 创建收益处理器, cache 可为空
func NewYieldHandler(svc CalculatorService, cache YieldCache) *YieldHandler {
	return &YieldHandler{svc: svc, cache: cache}
}

// Weights GET /api/v1/yield/weights
func (h *YieldHandler) Weights(c *gin.Context) {
	reg, err := h.svc.Registry(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, reg)
}

// AddWeight POST /api/v1/yield/weights
func (h *YieldHandler) AddWeight(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.AddWeightRequest
	if !bindJSON(c, &req) {
		return
	}
	ref, err := dto.ParseAddress("strategy_ref", req.StrategyRef)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := h.svc.AddStrategy(c.Request.Context(), from, ref, req.Weight); err != nil {
		Fail(c, err)
		return
	}
	h.Weights(c)
}

// UpdateWeight PUT /api/v1/yield/weights/:ref
func (h *YieldHandler) UpdateWeight(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	ref, ok := pathAddress(c, "ref")
	if !ok {
		return
	}
	var req dto.UpdateWeightRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.UpdateStrategyWeight(c.Request.Context(), from, ref, req.Weight); err != nil {
		Fail(c, err)
		return
	}
	h.Weights(c)
}

// RemoveWeight DELETE /api/v1/yield/weights/:ref
func (h *YieldHandler) RemoveWeight(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	ref, ok := pathAddress(c, "ref")
	if !ok {
		return
	}
	if err := h.svc.RemoveStrategy(c.Request.Context(), from, ref); err != nil {
		Fail(c, err)
		return
	}
	h.Weights(c)
}

// Data GET /api/v1/yield/data
func (h *YieldHandler) Data(c *gin.Context) {
	data, err := h.svc.GetDetailedYieldData(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, data)
}

// Latest GET /api/v1/yield/latest
// 优先读缓存, 未命中时读最近一次快照并回填
func (h *YieldHandler) Latest(c *gin.Context) {
	ctx := c.Request.Context()
	if h.cache != nil {
		data, err := h.cache.GetLatest(ctx)
		if err != nil {
			logger.Warn("read latest yield cache failed", zap.Error(err))
		} else if data != nil {
			Success(c, data)
			return
		}
	}

	snap, err := h.svc.LatestSnapshot(ctx)
	if err != nil {
		Fail(c, err)
		return
	}
	data, err := snap.ToData()
	if err != nil {
		Fail(c, apperrors.Wrap(apperrors.ErrInternal, err))
		return
	}
	if h.cache != nil {
		if err := h.cache.SetLatest(ctx, data); err != nil {
			logger.Warn("refill latest yield cache failed", zap.Error(err))
		}
	}
	Success(c, data)
}

// History GET /api/v1/yield/history?limit=
func (h *YieldHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			Fail(c, apperrors.ErrInvalidRequest.WithMessagef("invalid limit %q", raw))
			return
		}
		limit = v
	}
	list, err := h.svc.GetYieldHistory(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	out := make([]*model.YieldData, 0, len(list))
	for _, s := range list {
		data, err := s.ToData()
		if err != nil {
			Fail(c, apperrors.Wrap(apperrors.ErrInternal, err))
			return
		}
		out = append(out, data)
	}
	Success(c, out)
}

// Snapshot POST /api/v1/yield/history
func (h *YieldHandler) Snapshot(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	snap, err := h.svc.UpdateYieldHistory(c.Request.Context(), from)
	if err != nil {
		Fail(c, err)
		return
	}
	data, err := snap.ToData()
	if err != nil {
		Fail(c, apperrors.Wrap(apperrors.ErrInternal, err))
		return
	}
	if h.cache != nil {
		if err := h.cache.SetLatest(c.Request.Context(), data); err != nil {
			logger.Warn("refresh latest yield cache failed", zap.Error(err))
		}
	}
	Success(c, data)
}

// Allocation GET /api/v1/yield/allocation?amount=
func (h *YieldHandler) Allocation(c *gin.Context) {
	amount, err := dto.ParseAmount("amount", c.Query("amount"))
	if err != nil {
		Fail(c, err)
		return
	}
	allocs, err := h.svc.CalculateOptimalAllocation(c.Request.Context(), amount)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, allocs)
}
