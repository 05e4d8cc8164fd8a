package model

import "github.com/shopspring/decimal"

// EventType 对外发布的事件类型
type EventType string

const (
	EventLocked            EventType = "Locked"
	EventMinted            EventType = "Minted"
	EventBurned            EventType = "Burned"
	EventReleased          EventType = "Released"
	EventTransferCompleted EventType = "TransferCompleted"

	EventSettlementInitiated EventType = "SettlementInitiated"
	EventSettlementProcessed EventType = "SettlementProcessed"
	EventSettlementCompleted EventType = "SettlementCompleted"
	EventSettlementFailed    EventType = "SettlementFailed"
	EventSettlementCancelled EventType = "SettlementCancelled"

	EventDeposit                     EventType = "Deposit"
	EventWithdraw                    EventType = "Withdraw"
	EventCrossChainTransferInitiated EventType = "CrossChainTransferInitiated"
	EventCrossChainTransferCompleted EventType = "CrossChainTransferCompleted"

	EventStrategyAdded   EventType = "StrategyAdded"
	EventStrategyUpdated EventType = "StrategyUpdated"
	EventStrategyRemoved EventType = "StrategyRemoved"
	EventYieldCalculated EventType = "YieldCalculated"

	EventAggregatorStrategyAdded   EventType = "AggregatorStrategyAdded"
	EventAggregatorStrategyUpdated EventType = "AggregatorStrategyUpdated"
	EventAggregatorStateChanged    EventType = "AggregatorStateChanged"
)

// Event 待发布事件
type Event struct {
	Type         EventType
	PartitionKey string
	Payload      interface{}
}

// EventEnvelope 发布到 Kafka 的消息格式
type EventEnvelope struct {
	EventType EventType   `json:"event_type"`
	Height    int64       `json:"height"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TransferEvent Locked / Burned / CrossChainTransferInitiated
type TransferEvent struct {
	TransferID         string          `json:"transfer_id"`
	User               string          `json:"user"`
	Token              string          `json:"token"`
	Amount             decimal.Decimal `json:"amount"`
	SourceChainID      int64           `json:"source_chain_id"`
	DestinationChainID int64           `json:"destination_chain_id"`
	DestinationAddress string          `json:"destination_address,omitempty"`
	Sequence           int64           `json:"sequence"`
}

// BridgeMessageEvent Minted / Released
type BridgeMessageEvent struct {
	MessageID     string          `json:"message_id"`
	To            string          `json:"to"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SourceChainID int64           `json:"source_chain_id"`
	SourceTxRef   string          `json:"source_tx_ref"`
}

// TransferCompletedEvent TransferCompleted / CrossChainTransferCompleted
type TransferCompletedEvent struct {
	TransferID string          `json:"transfer_id"`
	MessageID  string          `json:"message_id"`
	Success    bool            `json:"success"`
	User       string          `json:"user"`
	Amount     decimal.Decimal `json:"amount"`
}

// SettlementEvent 结算生命周期事件
type SettlementEvent struct {
	SettlementID    int64           `json:"settlement_id"`
	User            string          `json:"user"`
	Token           string          `json:"token"`
	Amount          decimal.Decimal `json:"amount"`
	YieldAmount     decimal.Decimal `json:"yield_amount"`
	Status          string          `json:"status"`
	FinalAmount     decimal.Decimal `json:"final_amount,omitempty"`
	Fee             decimal.Decimal `json:"fee,omitempty"`
	ExternalTxRef   string          `json:"external_tx_ref,omitempty"`
	ExternalNetwork string          `json:"external_network,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// DepositEvent 聚合器存款
type DepositEvent struct {
	User         string          `json:"user"`
	StrategyID   int64           `json:"strategy_id"`
	DepositIndex int64           `json:"deposit_index"`
	Amount       decimal.Decimal `json:"amount"`
}

// WithdrawEvent 聚合器取款
type WithdrawEvent struct {
	User           string          `json:"user"`
	StrategyID     int64           `json:"strategy_id"`
	DepositIndex   int64           `json:"deposit_index"`
	Amount         decimal.Decimal `json:"amount"`
	ManagementFee  decimal.Decimal `json:"management_fee"`
	PerformanceFee decimal.Decimal `json:"performance_fee"`
	Net            decimal.Decimal `json:"net"`
}

// StrategyWeightEvent 计算器注册表变更
type StrategyWeightEvent struct {
	StrategyRef string `json:"strategy_ref"`
	Weight      int64  `json:"weight"`
	TotalWeight int64  `json:"total_weight"`
}

// AggregatorStrategyEvent 聚合器策略目录变更
type AggregatorStrategyEvent struct {
	StrategyID         int64  `json:"strategy_id"`
	Name               string `json:"name"`
	BackingAddress     string `json:"backing_address"`
	IsActive           bool   `json:"is_active"`
	PerformanceFeeRate int64  `json:"performance_fee_rate"`
	ManagementFeeRate  int64  `json:"management_fee_rate"`
}

// AggregatorStateEvent 暂停 / 手续费接收地址变更
type AggregatorStateEvent struct {
	Paused       bool   `json:"paused"`
	FeeCollector string `json:"fee_collector"`
}

// ExternalDeposit 链上充值 (由链上索引服务发布到 deposits topic)
type ExternalDeposit struct {
	DepositID   string          `json:"deposit_id"`
	Wallet      string          `json:"wallet"`
	Token       string          `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    int             `json:"log_index"`
	BlockNumber int64           `json:"block_number"`
	DetectedAt  int64           `json:"detected_at"`
}

// Kafka topics
const (
	TopicBridgeEvents     = "bridge-events"
	TopicSettlementEvents = "settlement-events"
	TopicAggregatorEvents = "aggregator-events"
	TopicYieldEvents      = "yield-events"
	TopicDeposits         = "deposits"
)

// Topic 事件所属 topic
func (t EventType) Topic() string {
	switch t {
	case EventLocked, EventMinted, EventBurned, EventReleased, EventTransferCompleted:
		return TopicBridgeEvents
	case EventSettlementInitiated, EventSettlementProcessed, EventSettlementCompleted,
		EventSettlementFailed, EventSettlementCancelled:
		return TopicSettlementEvents
	case EventDeposit, EventWithdraw, EventCrossChainTransferInitiated, EventCrossChainTransferCompleted,
		EventAggregatorStrategyAdded, EventAggregatorStrategyUpdated, EventAggregatorStateChanged:
		return TopicAggregatorEvents
	default:
		return TopicYieldEvents
	}
}
