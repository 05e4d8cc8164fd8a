package model

import "encoding/json"

// OutboxStatus 消息状态
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing" // 已被某实例认领
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusFailed     OutboxStatus = "failed" // 超过最大重试
)

// OutboxMessage 与业务变更同事务写入的待投递事件
type OutboxMessage struct {
	ID           int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID    string       `gorm:"column:message_id;type:varchar(64);uniqueIndex;not null" json:"message_id"`
	Topic        string       `gorm:"column:topic;type:varchar(100);not null" json:"topic"`
	PartitionKey string       `gorm:"column:partition_key;type:varchar(100);not null" json:"partition_key"`
	EventType    string       `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	Payload      []byte       `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Height       int64        `gorm:"column:height;type:bigint;not null;index" json:"height"`
	Status       OutboxStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index:idx_outbox_status_created" json:"status"`
	RetryCount   int          `gorm:"column:retry_count;type:int;not null;default:0" json:"retry_count"`
	MaxRetries   int          `gorm:"column:max_retries;type:int;not null;default:5" json:"max_retries"`
	LastError    string       `gorm:"column:last_error;type:varchar(500)" json:"last_error"`
	CreatedAt    int64        `gorm:"column:created_at;type:bigint;not null;index:idx_outbox_status_created" json:"created_at"`
	UpdatedAt    int64        `gorm:"column:updated_at;type:bigint" json:"updated_at"`
	SentAt       int64        `gorm:"column:sent_at;type:bigint" json:"sent_at"`
}

// TableName 返回表名
func (OutboxMessage) TableName() string {
	return "yield_outbox_messages"
}

// SetPayload 设置消息内容
func (m *OutboxMessage) SetPayload(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Payload = data
	return nil
}

// GetPayload 解析消息内容
func (m *OutboxMessage) GetPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
