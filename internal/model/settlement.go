package model

import "github.com/shopspring/decimal"

// SettlementStatus 结算状态
type SettlementStatus int8

const (
	SettlementStatusPending    SettlementStatus = 0 // 待处理
	SettlementStatusProcessing SettlementStatus = 1 // 验证者处理中
	SettlementStatusCompleted  SettlementStatus = 2 // 已完成
	SettlementStatusFailed     SettlementStatus = 3 // 失败 (已退款)
	SettlementStatusCancelled  SettlementStatus = 4 // 用户取消 (已退款)
)

func (s SettlementStatus) String() string {
	switch s {
	case SettlementStatusPending:
		return "PENDING"
	case SettlementStatusProcessing:
		return "PROCESSING"
	case SettlementStatusCompleted:
		return "COMPLETED"
	case SettlementStatusFailed:
		return "FAILED"
	case SettlementStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal 判断是否为终态
func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementStatusCompleted || s == SettlementStatusFailed || s == SettlementStatusCancelled
}

// IsActive 待处理或处理中
func (s SettlementStatus) IsActive() bool {
	return s == SettlementStatusPending || s == SettlementStatusProcessing
}

// CanTransitionTo 合法状态迁移
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	switch s {
	case SettlementStatusPending:
		return next == SettlementStatusProcessing || next == SettlementStatusCancelled
	case SettlementStatusProcessing:
		return next == SettlementStatusCompleted || next == SettlementStatusFailed
	default:
		return false
	}
}

// Settlement 结算记录
type Settlement struct {
	ID              int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserAddress     string           `gorm:"column:user_address;type:varchar(42);not null;index" json:"user_address"`
	Token           string           `gorm:"column:token;type:varchar(42);not null" json:"token"`
	Amount          decimal.Decimal  `gorm:"column:amount;type:decimal(36,0);not null" json:"amount"`
	YieldAmount     decimal.Decimal  `gorm:"column:yield_amount;type:decimal(36,0);not null" json:"yield_amount"`
	FinalAmount     decimal.Decimal  `gorm:"column:final_amount;type:decimal(36,0);not null;default:0" json:"final_amount"`
	Fee             decimal.Decimal  `gorm:"column:fee;type:decimal(36,0);not null;default:0" json:"fee"`
	Status          SettlementStatus `gorm:"column:status;type:smallint;not null;default:0;index" json:"status"`
	ExternalTxRef   string           `gorm:"column:external_tx_ref;type:varchar(128)" json:"external_tx_ref"`
	ExternalNetwork string           `gorm:"column:external_network;type:varchar(32)" json:"external_network"`
	FailReason      string           `gorm:"column:fail_reason;type:varchar(500)" json:"fail_reason"`
	BlockHeight     int64            `gorm:"column:block_height;type:bigint;not null" json:"block_height"`
	Timestamp       int64            `gorm:"column:timestamp;type:bigint;not null" json:"timestamp"`
	CompletedAt     int64            `gorm:"column:completed_at;type:bigint" json:"completed_at"`
	CreatedAt       int64            `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt       int64            `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Settlement) TableName() string {
	return "yield_settlements"
}

// SettlementStats 结算统计
type SettlementStats struct {
	TotalSettlements  int64           `json:"total_settlements"`
	TotalSettled      decimal.Decimal `json:"total_settled"`
	TotalSettledYield decimal.Decimal `json:"total_settled_yield"`
	TotalFees         decimal.Decimal `json:"total_fees"`
	ActiveSettlements int64           `json:"active_settlements"`
}
