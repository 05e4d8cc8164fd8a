package dto

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

// ========== Bridge ==========

// LockRequest 锁定原生资产
type LockRequest struct {
	Token              string `json:"token" binding:"required"`
	Amount             string `json:"amount" binding:"required"`
	DestinationChainID int64  `json:"destination_chain_id" binding:"required"`
	DestinationAddress string `json:"destination_address" binding:"required"` // hex
}

// BurnRequest 销毁合成资产
type BurnRequest struct {
	Amount             string `json:"amount" binding:"required"`
	DestinationChainID int64  `json:"destination_chain_id" binding:"required"`
	DestinationAddress string `json:"destination_address" binding:"required"`
}

// MintRequest 根据外部消息增发
type MintRequest struct {
	To            string `json:"to" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	SourceChainID int64  `json:"source_chain_id" binding:"required"`
	SourceTxRef   string `json:"source_tx_ref"`
	MessageID     string `json:"message_id" binding:"required"`
}

// ReleaseRequest 根据外部消息释放
type ReleaseRequest struct {
	Token         string `json:"token" binding:"required"`
	To            string `json:"to" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	SourceChainID int64  `json:"source_chain_id" binding:"required"`
	SourceTxRef   string `json:"source_tx_ref"`
	MessageID     string `json:"message_id" binding:"required"`
}

// CompleteTransferRequest 标记跨链转账结果
type CompleteTransferRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Success   *bool  `json:"success" binding:"required"`
}

// ValidateTransferRequest 跨链参数预校验
type ValidateTransferRequest struct {
	Kind               string `json:"kind"` // lock (默认) 或 burn
	Token              string `json:"token"`
	Amount             string `json:"amount" binding:"required"`
	DestinationChainID int64  `json:"destination_chain_id" binding:"required"`
}

// SetProtocolRequest 切换中继协议
type SetProtocolRequest struct {
	Protocol string `json:"protocol" binding:"required"`
}

// ========== Settlement ==========

// InitiateSettlementRequest 发起结算
type InitiateSettlementRequest struct {
	Token       string `json:"token" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	YieldAmount string `json:"yield_amount"`
}

// ProcessSettlementRequest 进入处理中
type ProcessSettlementRequest struct {
	ExternalTxRef   string `json:"external_tx_ref" binding:"required"`
	ExternalNetwork string `json:"external_network" binding:"required"`
}

// CompleteSettlementRequest 完成结算
type CompleteSettlementRequest struct {
	FinalAmount string `json:"final_amount" binding:"required"`
}

// FailSettlementRequest 结算失败
type FailSettlementRequest struct {
	Reason string `json:"reason"`
}

// FundRequest 向结算托管注资
type FundRequest struct {
	Token  string `json:"token" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// SettlementConfigRequest 结算参数, 只修改非空字段
type SettlementConfigRequest struct {
	FeeRateBps          *int64 `json:"fee_rate_bps"`
	MaxSettlementAmount string `json:"max_settlement_amount"`
	Validator           string `json:"validator"`
	Network             string `json:"network"`
	NetworkEnabled      *bool  `json:"network_enabled"`
}

// ========== Calculator ==========

// AddWeightRequest 登记策略权重
type AddWeightRequest struct {
	StrategyRef string `json:"strategy_ref" binding:"required"`
	Weight      int64  `json:"weight"`
}

// UpdateWeightRequest 修改权重
type UpdateWeightRequest struct {
	Weight int64 `json:"weight"`
}

// ========== Aggregator ==========

// AddStrategyRequest 新增聚合策略
type AddStrategyRequest struct {
	Name               string `json:"name" binding:"required"`
	BackingAddress     string `json:"backing_address" binding:"required"`
	PerformanceFeeRate int64  `json:"performance_fee_rate"`
	ManagementFeeRate  int64  `json:"management_fee_rate"`
}

// UpdateStrategyRequest 更新聚合策略
type UpdateStrategyRequest struct {
	IsActive           *bool `json:"is_active" binding:"required"`
	PerformanceFeeRate int64 `json:"performance_fee_rate"`
	ManagementFeeRate  int64 `json:"management_fee_rate"`
}

// DepositRequest 存入策略
type DepositRequest struct {
	StrategyID int64  `json:"strategy_id" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
}

// WithdrawRequest 取款
type WithdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// CrossChainTransferRequest 聚合器跨链转账
type CrossChainTransferRequest struct {
	Token              string `json:"token" binding:"required"`
	Amount             string `json:"amount" binding:"required"`
	DestinationChainID int64  `json:"destination_chain_id" binding:"required"`
}

// CompleteCrossChainRequest 完成聚合器跨链转账
type CompleteCrossChainRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

// FeeCollectorRequest 设置手续费接收地址
type FeeCollectorRequest struct {
	FeeCollector string `json:"fee_collector" binding:"required"`
}

// ========== Roles ==========

// GrantRoleRequest 绑定角色
type GrantRoleRequest struct {
	Component string `json:"component" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Address   string `json:"address" binding:"required"`
}

// ParseAmount 解析整数基础单位金额
func ParseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperrors.ErrInvalidAmount.WithMessagef("invalid %s: %q", field, s)
	}
	return d, nil
}

// ParseOptionalAmount 空字符串视为 0
func ParseOptionalAmount(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(field, s)
}

// ParseAddress 解析 20 字节地址
func ParseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, apperrors.ErrInvalidAddress.WithMessagef("invalid %s: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// ParseHexBytes 解析目标链地址, 长度不限
func ParseHexBytes(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(b) == 0 {
		return nil, apperrors.ErrInvalidAddress.WithMessagef("invalid %s: %q", field, s)
	}
	return b, nil
}
