package model

import "github.com/shopspring/decimal"

// TransferDomain 跨链转账所属组件, 两个组件的转账互不影响
type TransferDomain string

const (
	TransferDomainBridge     TransferDomain = "bridge"
	TransferDomainAggregator TransferDomain = "aggregator"
)

// TransferKind 发起方式
type TransferKind string

const (
	TransferKindLock     TransferKind = "lock"
	TransferKindBurn     TransferKind = "burn"
	TransferKindInitiate TransferKind = "initiate"
)

// CrossChainTransfer 跨链转账记录, 仅允许一次置为完成
type CrossChainTransfer struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransferID         string          `gorm:"column:transfer_id;type:varchar(66);uniqueIndex;not null" json:"transfer_id"`
	Domain             TransferDomain  `gorm:"column:domain;type:varchar(16);not null;index:idx_transfer_domain_user" json:"domain"`
	Kind               TransferKind    `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	UserAddress        string          `gorm:"column:user_address;type:varchar(42);not null;index:idx_transfer_domain_user" json:"user_address"`
	Token              string          `gorm:"column:token;type:varchar(42);not null" json:"token"`
	Amount             decimal.Decimal `gorm:"column:amount;type:decimal(36,0);not null" json:"amount"`
	SourceChainID      int64           `gorm:"column:source_chain_id;type:bigint;not null" json:"source_chain_id"`
	DestinationChainID int64           `gorm:"column:destination_chain_id;type:bigint;not null" json:"destination_chain_id"`
	DestinationAddress string          `gorm:"column:destination_address;type:varchar(130)" json:"destination_address"` // hex
	Sequence           int64           `gorm:"column:sequence;type:bigint;not null" json:"sequence"`
	MessageID          string          `gorm:"column:message_id;type:varchar(128)" json:"message_id"`
	IsCompleted        bool            `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	Success            bool            `gorm:"column:success;not null;default:false" json:"success"`
	Timestamp          int64           `gorm:"column:timestamp;type:bigint;not null" json:"timestamp"`
	CompletedAt        int64           `gorm:"column:completed_at;type:bigint" json:"completed_at"`
	CreatedAt          int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt          int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (CrossChainTransfer) TableName() string {
	return "yield_cross_chain_transfers"
}

// Status 展示用状态
func (t *CrossChainTransfer) Status() string {
	switch {
	case !t.IsCompleted:
		return "PENDING"
	case t.Success || t.Domain == TransferDomainAggregator:
		return "COMPLETED"
	default:
		return "FAILED"
	}
}
