package model

// MessageScope 消息去重范围
type MessageScope string

const (
	MessageScopeBridge     MessageScope = "bridge"     // mint/release/completeTransfer
	MessageScopeAggregator MessageScope = "aggregator" // 聚合器跨链完成
	MessageScopeDeposit    MessageScope = "deposit"    // 外部充值入账
)

// ProcessedMessage 已消费的外部消息, 只增不删
type ProcessedMessage struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Scope     MessageScope `gorm:"column:scope;type:varchar(16);not null;uniqueIndex:uk_scope_message" json:"scope"`
	MessageID string       `gorm:"column:message_id;type:varchar(128);not null;uniqueIndex:uk_scope_message" json:"message_id"`
	Height    int64        `gorm:"column:height;type:bigint;not null" json:"height"`
	CreatedAt int64        `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
}

// TableName 返回表名
func (ProcessedMessage) TableName() string {
	return "yield_processed_messages"
}
