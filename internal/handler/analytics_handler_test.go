package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
)

type MockAnalyticsService struct{ mock.Mock }

func (m *MockAnalyticsService) TopYields(ctx context.Context, limit int) ([]model.StrategyYield, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.StrategyYield), args.Error(1)
}

func (m *MockAnalyticsService) YieldTrends(ctx context.Context, days int) ([]service.DailyYield, error) {
	args := m.Called(ctx, days)
	return args.Get(0).([]service.DailyYield), args.Error(1)
}

func (m *MockAnalyticsService) UserAnalytics(ctx context.Context, user common.Address) (*service.UserAnalytics, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UserAnalytics), args.Error(1)
}

func (m *MockAnalyticsService) SystemAnalytics(ctx context.Context) (*service.SystemAnalytics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SystemAnalytics), args.Error(1)
}

func analyticsRouter(svc *MockAnalyticsService) *gin.Engine {
	h := NewAnalyticsHandler(svc)
	r := gin.New()
	r.GET("/analytics/top-yields", h.TopYields)
	r.GET("/analytics/trends", h.Trends)
	r.GET("/analytics/users/:address", h.User)
	r.GET("/analytics/system", h.System)
	return r
}

func TestAnalyticsHandler_QueryParams(t *testing.T) {
	svc := new(MockAnalyticsService)
	r := analyticsRouter(svc)

	svc.On("TopYields", mock.Anything, 0).Return([]model.StrategyYield{}, nil).Once()
	svc.On("TopYields", mock.Anything, 5).Return([]model.StrategyYield{
		{StrategyRef: "0x01", Weight: 5000, Rate: decimal.NewFromInt(500), Value: decimal.NewFromInt(100)},
	}, nil).Once()
	svc.On("YieldTrends", mock.Anything, 7).Return([]service.DailyYield{
		{Date: "2025-01-01", AverageAPY: decimal.NewFromInt(450), TotalValue: decimal.NewFromInt(1200), Snapshots: 2},
	}, nil).Once()

	w, _ := perform(r, http.MethodGet, "/analytics/top-yields", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := perform(r, http.MethodGet, "/analytics/top-yields?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)

	w, resp = perform(r, http.MethodGet, "/analytics/trends?days=7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	day := resp.Data.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2025-01-01", day["date"])
	assert.Equal(t, "450", day["average_apy"])

	for _, path := range []string{
		"/analytics/top-yields?limit=ten",
		"/analytics/top-yields?limit=-1",
		"/analytics/trends?days=1w",
	} {
		w, resp := perform(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "INVALID_REQUEST", resp.Code, path)
	}
	svc.AssertExpectations(t)
}

func TestAnalyticsHandler_UserAndSystem(t *testing.T) {
	svc := new(MockAnalyticsService)
	r := analyticsRouter(svc)

	svc.On("UserAnalytics", mock.Anything, alice).Return(&service.UserAnalytics{
		User:           model.AddressKey(alice),
		TotalDeposited: decimal.NewFromInt(1500),
		CurrentTVL:     decimal.NewFromInt(600),
		DepositCount:   2,
	}, nil)
	svc.On("SystemAnalytics", mock.Anything).Return(&service.SystemAnalytics{
		TotalStrategies:  1,
		TotalValueLocked: decimal.NewFromInt(1100),
		UserCount:        2,
	}, nil)

	w, resp := perform(r, http.MethodGet, "/analytics/users/"+alice.Hex(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "600", resp.Data.(map[string]interface{})["current_tvl"])

	w, resp = perform(r, http.MethodGet, "/analytics/users/alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ADDRESS", resp.Code)

	w, resp = perform(r, http.MethodGet, "/analytics/system", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["user_count"])
	svc.AssertExpectations(t)
}
