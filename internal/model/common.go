package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BpsDenominator 费率与权重的基点分母
const BpsDenominator int64 = 10000

// 费率与权重上限 (基点)
const (
	MaxWeightBps         int64 = 10000
	MaxSettlementFeeBps  int64 = 1000
	MaxPerformanceFeeBps int64 = 5000
	MaxManagementFeeBps  int64 = 1000
	SecondsPerYear       int64 = 365 * 86400
)

// Component 组件名, 用于角色绑定与设置
type Component string

const (
	ComponentBridge     Component = "bridge"
	ComponentSettlement Component = "settlement"
	ComponentCalculator Component = "calculator"
	ComponentAggregator Component = "aggregator"
)

// AddressKey 地址的存储形式 (EIP-55 校验和)
func AddressKey(a common.Address) string {
	return a.Hex()
}

// IsWholeAmount 是否为非负整数基础单位
func IsWholeAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Truncate(0))
}
