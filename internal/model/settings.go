package model

import "github.com/shopspring/decimal"

// ComponentSettings 组件级可配置项与累计值, 每个组件一行
type ComponentSettings struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Component         Component       `gorm:"column:component;type:varchar(16);uniqueIndex;not null" json:"component"`
	Paused            bool            `gorm:"column:paused;not null;default:false" json:"paused"`
	Protocol          string          `gorm:"column:protocol;type:varchar(32)" json:"protocol,omitempty"`
	FeeRateBps        int64           `gorm:"column:fee_rate_bps;type:bigint;not null;default:0" json:"fee_rate_bps"`
	MaxAmount         decimal.Decimal `gorm:"column:max_amount;type:decimal(36,0);not null;default:0" json:"max_amount"`
	FeeCollector      string          `gorm:"column:fee_collector;type:varchar(42)" json:"fee_collector,omitempty"`
	TotalWeight       int64           `gorm:"column:total_weight;type:bigint;not null;default:0" json:"total_weight"`
	TotalValueLocked  decimal.Decimal `gorm:"column:total_value_locked;type:decimal(36,0);not null;default:0" json:"total_value_locked"`
	TotalSettled      decimal.Decimal `gorm:"column:total_settled;type:decimal(36,0);not null;default:0" json:"total_settled"`
	TotalSettledYield decimal.Decimal `gorm:"column:total_settled_yield;type:decimal(36,0);not null;default:0" json:"total_settled_yield"`
	TotalFees         decimal.Decimal `gorm:"column:total_fees;type:decimal(36,0);not null;default:0" json:"total_fees"`
	CreatedAt         int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt         int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (ComponentSettings) TableName() string {
	return "yield_component_settings"
}

// AssetKind 支持列表的种类
type AssetKind string

const (
	AssetKindToken   AssetKind = "token"   // 跨链桥支持的代币地址
	AssetKindNetwork AssetKind = "network" // 结算引擎支持的外部网络
	AssetKindChain   AssetKind = "chain"   // 跨链桥可达的链
)

// SupportedAsset 支持的代币 / 网络 / 链
type SupportedAsset struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind      AssetKind `gorm:"column:kind;type:varchar(16);not null;uniqueIndex:uk_supported_asset" json:"kind"`
	Value     string    `gorm:"column:value;type:varchar(64);not null;uniqueIndex:uk_supported_asset" json:"value"`
	ChainID   int64     `gorm:"column:chain_id;type:bigint;not null;default:0" json:"chain_id"`
	Enabled   bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedAt int64     `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt int64     `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (SupportedAsset) TableName() string {
	return "yield_supported_assets"
}

// LedgerCounter 持久化计数器, 执行高度即 "ledger_height"
type LedgerCounter struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"column:name;type:varchar(32);uniqueIndex;not null" json:"name"`
	Value     int64  `gorm:"column:value;type:bigint;not null;default:0" json:"value"`
	UpdatedAt int64  `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (LedgerCounter) TableName() string {
	return "yield_ledger_counters"
}

// CounterLedgerHeight 执行高度计数器名
const CounterLedgerHeight = "ledger_height"
