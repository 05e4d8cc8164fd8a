package handler

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

// AnalyticsService 分析服务接口
type AnalyticsService interface {
	TopYields(ctx context.Context, limit int) ([]model.StrategyYield, error)
	YieldTrends(ctx context.Context, days int) ([]service.DailyYield, error)
	UserAnalytics(ctx context.Context, user common.Address) (*service.UserAnalytics, error)
	SystemAnalytics(ctx context.Context) (*service.SystemAnalytics, error)
}

// AnalyticsHandler 分析接口, 全部只读
type AnalyticsHandler struct {
	svc AnalyticsService
}

// NewAnalyticsHandler 创建分析处理器
func NewAnalyticsHandler(svc AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// TopYields GET /api/v1/analytics/top-yields?limit=
func (h *AnalyticsHandler) TopYields(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	list, err := h.svc.TopYields(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// Trends GET /api/v1/analytics/trends?days=
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	list, err := h.svc.YieldTrends(c.Request.Context(), days)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, list)
}

// User GET /api/v1/analytics/users/:address
func (h *AnalyticsHandler) User(c *gin.Context) {
	user, ok := pathAddress(c, "address")
	if !ok {
		return
	}
	ua, err := h.svc.UserAnalytics(c.Request.Context(), user)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ua)
}

// System GET /api/v1/analytics/system
func (h *AnalyticsHandler) System(c *gin.Context) {
	sa, err := h.svc.SystemAnalytics(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, sa)
}

// queryInt 可选的非负整数查询参数, 缺省为 0
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		Fail(c, apperrors.ErrInvalidRequest.WithMessagef("invalid %s %q", name, raw))
		return 0, false
	}
	return v, true
}
