package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers 路由依赖
type Handlers struct {
	Bridge     *BridgeHandler
	Settlement *SettlementHandler
	Yield      *YieldHandler
	Aggregator *AggregatorHandler
	Ledger     *LedgerHandler
	Analytics  *AnalyticsHandler
}

// RegisterRoutes 注册 /api/v1 路由, auth 用于需要调用方身份的接口
func RegisterRoutes(r *gin.Engine, h *Handlers, auth gin.HandlerFunc) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	authed := api.Group("", auth)

	// Bridge
	api.GET("/bridge/protocol", h.Bridge.GetProtocol)
	api.GET("/bridge/chains", h.Bridge.Chains)
	api.GET("/bridge/tokens", h.Bridge.Tokens)
	api.GET("/bridge/health", h.Bridge.Health)
	api.GET("/bridge/transfers/:id", h.Bridge.GetTransfer)
	api.GET("/bridge/history/:address", h.Bridge.History)
	api.GET("/bridge/fees/:src/:dst", h.Bridge.Fees)
	authed.PUT("/bridge/protocol", h.Bridge.SetProtocol)
	authed.PUT("/bridge/tokens/:token", h.Bridge.SetToken)
	authed.POST("/bridge/lock", h.Bridge.Lock)
	authed.POST("/bridge/mint", h.Bridge.Mint)
	authed.POST("/bridge/burn", h.Bridge.Burn)
	authed.POST("/bridge/release", h.Bridge.Release)
	authed.POST("/bridge/transfers/:id/complete", h.Bridge.CompleteTransfer)
	authed.POST("/bridge/validate", h.Bridge.Validate)

	// Settlement
	api.GET("/settlements/stats", h.Settlement.Stats)
	api.GET("/settlements/config", h.Settlement.GetConfig)
	api.GET("/settlements/:id", h.Settlement.Get)
	authed.GET("/settlements", h.Settlement.List)
	authed.POST("/settlements", h.Settlement.Initiate)
	authed.POST("/settlements/fund", h.Settlement.Fund)
	authed.PUT("/settlements/config", h.Settlement.UpdateConfig)
	authed.POST("/settlements/:id/process", h.Settlement.Process)
	authed.POST("/settlements/:id/complete", h.Settlement.Complete)
	authed.POST("/settlements/:id/fail", h.Settlement.MarkFailed)
	authed.POST("/settlements/:id/cancel", h.Settlement.Cancel)

	// Calculator
	api.GET("/yield/weights", h.Yield.Weights)
	api.GET("/yield/data", h.Yield.Data)
	api.GET("/yield/latest", h.Yield.Latest)
	api.GET("/yield/history", h.Yield.History)
	api.GET("/yield/allocation", h.Yield.Allocation)
	authed.POST("/yield/weights", h.Yield.AddWeight)
	authed.PUT("/yield/weights/:ref", h.Yield.UpdateWeight)
	authed.DELETE("/yield/weights/:ref", h.Yield.RemoveWeight)
	authed.POST("/yield/history", h.Yield.Snapshot)

	// Aggregator
	api.GET("/strategies", h.Aggregator.ListStrategies)
	api.GET("/strategies/:id", h.Aggregator.GetStrategy)
	api.GET("/transfers/:id", h.Aggregator.GetTransfer)
	api.GET("/aggregator", h.Aggregator.Stats)
	authed.POST("/strategies", h.Aggregator.AddStrategy)
	authed.PUT("/strategies/:id", h.Aggregator.UpdateStrategy)
	authed.POST("/deposits", h.Aggregator.Deposit)
	authed.GET("/deposits", h.Aggregator.Deposits)
	authed.POST("/deposits/:index/withdraw", h.Aggregator.Withdraw)
	authed.GET("/positions", h.Aggregator.Positions)
	authed.POST("/transfers", h.Aggregator.InitiateTransfer)
	authed.POST("/transfers/:id/complete", h.Aggregator.CompleteTransfer)
	authed.PUT("/aggregator/fee-collector", h.Aggregator.SetFeeCollector)
	authed.POST("/aggregator/pause", h.Aggregator.Pause)
	authed.POST("/aggregator/unpause", h.Aggregator.Unpause)

	// Analytics
	api.GET("/analytics/top-yields", h.Analytics.TopYields)
	api.GET("/analytics/trends", h.Analytics.Trends)
	api.GET("/analytics/users/:address", h.Analytics.User)
	api.GET("/analytics/system", h.Analytics.System)

	// Ledger
	api.GET("/roles", h.Ledger.Roles)
	authed.GET("/balances", h.Ledger.Balances)
	authed.GET("/balances/:token", h.Ledger.Balance)
	authed.POST("/roles", h.Ledger.GrantRole)
}
