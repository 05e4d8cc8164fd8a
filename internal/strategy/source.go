// Package strategy 策略收益数据源
//
// 每个策略对外只暴露三个只读查询: 当前收益率、托管总值、累计收益.
// 聚合计算通过 SafeSource 调用, 单个策略失败时按零计入, 不影响整体结果.
package strategy

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrSourceNotConfigured 策略没有可用的数据源
var ErrSourceNotConfigured = errors.New("strategy source not configured")

// YieldSource 策略查询接口
type YieldSource interface {
	// Rate 当前收益率 (基点)
	Rate(ctx context.Context) (decimal.Decimal, error)
	// TotalValue 策略托管总值
	TotalValue(ctx context.Context) (decimal.Decimal, error)
	// AccumulatedYield 累计收益
	AccumulatedYield(ctx context.Context) (decimal.Decimal, error)
}

// StaticSource 固定值数据源, 用于配置中的静态策略
type StaticSource struct {
	mu    sync.RWMutex
	rate  decimal.Decimal
	value decimal.Decimal
	yield decimal.Decimal
}

// NewStaticSource 创建静态数据源
func NewStaticSource(rate, value, accumulated decimal.Decimal) *StaticSource {
	return &StaticSource{rate: rate, value: value, yield: accumulated}
}

// Set 更新全部值
func (s *StaticSource) Set(rate, value, accumulated decimal.Decimal) {
	s.mu.Lock()
	s.rate, s.value, s.yield = rate, value, accumulated
	s.mu.Unlock()
}

func (s *StaticSource) Rate(context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate, nil
}

func (s *StaticSource) TotalValue(context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

func (s *StaticSource) AccumulatedYield(context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.yield, nil
}

// missingSource 未配置的策略, 所有查询都失败
type missingSource struct{}

func (missingSource) Rate(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, ErrSourceNotConfigured
}

func (missingSource) TotalValue(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, ErrSourceNotConfigured
}

func (missingSource) AccumulatedYield(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, ErrSourceNotConfigured
}
