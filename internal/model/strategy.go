package model

import "github.com/shopspring/decimal"

// Strategy 聚合器策略目录, 只停用不删除
type Strategy struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name               string          `gorm:"column:name;type:varchar(64);not null" json:"name"`
	BackingAddress     string          `gorm:"column:backing_address;type:varchar(42);not null" json:"backing_address"` // 底层资产
	IsActive           bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	TotalDeposited     decimal.Decimal `gorm:"column:total_deposited;type:decimal(36,0);not null;default:0" json:"total_deposited"`
	TotalWithdrawn     decimal.Decimal `gorm:"column:total_withdrawn;type:decimal(36,0);not null;default:0" json:"total_withdrawn"`
	PerformanceFeeRate int64           `gorm:"column:performance_fee_rate;type:bigint;not null" json:"performance_fee_rate"`
	ManagementFeeRate  int64           `gorm:"column:management_fee_rate;type:bigint;not null" json:"management_fee_rate"`
	CreatedAt          int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt          int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Strategy) TableName() string {
	return "yield_strategies"
}

// UserDeposit 用户存款, 按用户追加编号
type UserDeposit struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserAddress  string          `gorm:"column:user_address;type:varchar(42);not null;uniqueIndex:uk_user_deposit_index" json:"user_address"`
	DepositIndex int64           `gorm:"column:deposit_index;type:bigint;not null;uniqueIndex:uk_user_deposit_index" json:"deposit_index"`
	StrategyID   int64           `gorm:"column:strategy_id;type:bigint;not null;index" json:"strategy_id"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(36,0);not null" json:"amount"`       // 剩余本金
	Principal    decimal.Decimal `gorm:"column:principal;type:decimal(36,0);not null" json:"principal"` // 存入本金
	FeesPaid     decimal.Decimal `gorm:"column:fees_paid;type:decimal(36,0);not null;default:0" json:"fees_paid"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Timestamp    int64           `gorm:"column:timestamp;type:bigint;not null" json:"timestamp"` // 存入时间 (毫秒)
	CreatedAt    int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt    int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (UserDeposit) TableName() string {
	return "yield_user_deposits"
}

// UserPosition 用户在单个策略上的持仓汇总
type UserPosition struct {
	StrategyID    int64           `json:"strategy_id"`
	ActiveAmount  decimal.Decimal `json:"active_amount"`
	DepositCount  int64           `json:"deposit_count"`
	EarliestStart int64           `json:"earliest_start"`
}

// StrategyWeight 收益计算器中的策略权重
// 激活条目的 Position 连续且从 0 开始, 停用条目 Position 为 -1
type StrategyWeight struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	StrategyRef string `gorm:"column:strategy_ref;type:varchar(42);uniqueIndex;not null" json:"strategy_ref"`
	Weight      int64  `gorm:"column:weight;type:bigint;not null" json:"weight"`
	Position    int    `gorm:"column:position;type:int;not null;index" json:"position"`
	IsActive    bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   int64  `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt   int64  `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (StrategyWeight) TableName() string {
	return "yield_strategy_weights"
}
