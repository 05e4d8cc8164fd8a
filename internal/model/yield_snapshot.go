package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// StrategyYield 单个策略的查询结果
type StrategyYield struct {
	StrategyRef string          `json:"strategy_ref"`
	Weight      int64           `json:"weight"`
	Rate        decimal.Decimal `json:"rate"`
	Value       decimal.Decimal `json:"value"`
	Yield       decimal.Decimal `json:"yield"`
}

// YieldData 一次一致的收益汇总
type YieldData struct {
	TotalValue decimal.Decimal `json:"total_value"`
	TotalYield decimal.Decimal `json:"total_yield"`
	AverageAPY decimal.Decimal `json:"average_apy"`
	Strategies []StrategyYield `json:"strategies"`
	Timestamp  int64           `json:"timestamp"`
}

// YieldSnapshot 收益历史快照, 创建后只读
type YieldSnapshot struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TotalValue  decimal.Decimal `gorm:"column:total_value;type:decimal(36,0);not null" json:"total_value"`
	TotalYield  decimal.Decimal `gorm:"column:total_yield;type:decimal(36,0);not null" json:"total_yield"`
	AverageAPY  decimal.Decimal `gorm:"column:average_apy;type:decimal(36,0);not null" json:"average_apy"`
	Strategies  string          `gorm:"column:strategies;type:text;not null" json:"-"` // JSON 数组
	BlockHeight int64           `gorm:"column:block_height;type:bigint;not null" json:"block_height"`
	Timestamp   int64           `gorm:"column:timestamp;type:bigint;not null;index" json:"timestamp"`
	CreatedAt   int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
}

// TableName 返回表名
func (YieldSnapshot) TableName() string {
	return "yield_snapshots"
}

// SetStrategies 序列化逐策略数据
func (s *YieldSnapshot) SetStrategies(items []StrategyYield) error {
	if items == nil {
		items = []StrategyYield{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	s.Strategies = string(data)
	return nil
}

// GetStrategies 解析逐策略数据
func (s *YieldSnapshot) GetStrategies() ([]StrategyYield, error) {
	var items []StrategyYield
	if s.Strategies == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(s.Strategies), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ToData 转换为 YieldData
func (s *YieldSnapshot) ToData() (*YieldData, error) {
	items, err := s.GetStrategies()
	if err != nil {
		return nil, err
	}
	return &YieldData{
		TotalValue: s.TotalValue,
		TotalYield: s.TotalYield,
		AverageAPY: s.AverageAPY,
		Strategies: items,
		Timestamp:  s.Timestamp,
	}, nil
}
