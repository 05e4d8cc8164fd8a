package service

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/auth"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// 可选的中继协议, 只影响链下中继路径
var bridgeProtocols = []string{"wormhole", "chainbridge", "layerzero", "axelar"}

// IsBridgeProtocol 是否为已知协议
func IsBridgeProtocol(name string) bool {
	for _, p := range bridgeProtocols {
		if p == name {
			return true
		}
	}
	return false
}

// BridgeProtocols 已知协议列表
func BridgeProtocols() []string {
	out := make([]string, len(bridgeProtocols))
	copy(out, bridgeProtocols)
	return out
}

// TransferRequest 跨链参数 (用于预校验)
type TransferRequest struct {
	Kind               model.TransferKind
	Caller             common.Address
	Token              common.Address
	Amount             decimal.Decimal
	DestinationChainID int64
}

// FeeQuote 费用报价
type FeeQuote struct {
	SourceChainID      int64  `json:"source_chain_id"`
	DestinationChainID int64  `json:"destination_chain_id"`
	Protocol           string `json:"protocol"`
	BridgeFeeBps       int64  `json:"bridge_fee_bps"`     // 中继费估算, 不由本服务收取
	SettlementFeeBps   int64  `json:"settlement_fee_bps"` // 即时结算费率
}

// BridgeHealth 跨链桥状态
type BridgeHealth struct {
	Protocol      string          `json:"protocol"`
	ChainID       int64           `json:"chain_id"`
	WrappedToken  string          `json:"wrapped_token"`
	WrappedSupply decimal.Decimal `json:"wrapped_supply"`
	Operator      string          `json:"operator"`
}

// BridgeService 跨链桥: lock→mint 与 burn→release
type BridgeService struct {
	exec      *Executor
	authz     *auth.Authorizer
	ledger    *TokenLedger
	issuer    *WrappedAssetIssuer
	transfers repository.TransferRepository
	messages  repository.MessageRepository
	settings  repository.SettingsRepository
	assets    repository.AssetRepository

	chainID int64
	custody common.Address
	cfg     config.BridgeConfig
}

// NewBridgeService 创建跨链桥服务
func NewBridgeService(
	exec *Executor,
	authz *auth.Authorizer,
	ledger *TokenLedger,
	issuer *WrappedAssetIssuer,
	transfers repository.TransferRepository,
	messages repository.MessageRepository,
	settings repository.SettingsRepository,
	assets repository.AssetRepository,
	chainID int64,
	cfg config.BridgeConfig,
) *BridgeService {
	return &BridgeService{
		exec:      exec,
		authz:     authz,
		ledger:    ledger,
		issuer:    issuer,
		transfers: transfers,
		messages:  messages,
		settings:  settings,
		assets:    assets,
		chainID:   chainID,
		custody:   common.HexToAddress(cfg.Address),
		cfg:       cfg,
	}
}

// Custody 托管账户
func (s *BridgeService) Custody() common.Address {
	return s.custody
}

// Init 写入初始设置、支持的代币与链, 登记合成资产
func (s *BridgeService) Init(ctx context.Context) error {
	if err := s.settings.Ensure(ctx, &model.ComponentSettings{
		Component: model.ComponentBridge,
		Protocol:  s.cfg.Protocol,
	}); err != nil {
		return err
	}
	assets := make([]*model.SupportedAsset, 0, len(s.cfg.SupportedTokens)+len(s.cfg.Chains))
	for _, t := range s.cfg.SupportedTokens {
		assets = append(assets, &model.SupportedAsset{
			Kind:    model.AssetKindToken,
			Value:   model.AddressKey(common.HexToAddress(t)),
			ChainID: s.chainID,
		})
	}
	for _, c := range s.cfg.Chains {
		assets = append(assets, &model.SupportedAsset{
			Kind:    model.AssetKindChain,
			Value:   strconv.FormatInt(c.ChainID, 10),
			ChainID: c.ChainID,
		})
	}
	if err := s.assets.Seed(ctx, assets); err != nil {
		return err
	}
	return s.issuer.Init(ctx, s.cfg.WrappedName, s.cfg.WrappedSymbol, s.custody)
}

func (s *BridgeService) requireOperator(ctx context.Context, caller common.Address) error {
	return s.authz.Require(ctx, model.ComponentBridge, caller, model.RoleOperator, model.RoleOwner)
}

func (s *BridgeService) validateOutbound(amount decimal.Decimal, dstChainID int64) error {
	if err := requirePositive("amount", amount); err != nil {
		return err
	}
	if dstChainID == s.chainID {
		return apperrors.ErrSameChainTransfer.WithDetail("chain_id", strconv.FormatInt(dstChainID, 10))
	}
	if dstChainID <= 0 {
		return apperrors.ErrInvalidRequest.WithMessage("destination chain id must be positive")
	}
	return nil
}

func (s *BridgeService) requireSupportedToken(ctx context.Context, token common.Address) error {
	ok, err := s.assets.IsSupported(ctx, model.AssetKindToken, model.AddressKey(token))
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrUnsupportedToken.WithDetail("token", token.Hex())
	}
	return nil
}

// markMessage 先标记消息已处理再执行后续动作
func (s *BridgeService) markMessage(ctx context.Context, messageID string, height int64) error {
	if messageID == "" {
		return apperrors.ErrInvalidRequest.WithMessage("message id is required")
	}
	err := s.messages.Mark(ctx, model.MessageScopeBridge, messageID, height)
	if errors.Is(err, repository.ErrMessageAlreadyProcessed) {
		metrics.RecordReplayRejected(string(model.MessageScopeBridge))
		return apperrors.ErrMessageProcessed.WithDetail("message_id", messageID)
	}
	return err
}

func (s *BridgeService) recordOutbound(ctx context.Context, op *Op, kind model.TransferKind, caller, token common.Address,
	amount decimal.Decimal, dstChainID int64, dstAddress []byte) (*model.CrossChainTransfer, error) {
	t := &model.CrossChainTransfer{
		TransferID:         deriveTransferID(caller, token, amount, s.chainID, dstChainID, op.Timestamp(), op.Height),
		Domain:             model.TransferDomainBridge,
		Kind:               kind,
		UserAddress:        model.AddressKey(caller),
		Token:              model.AddressKey(token),
		Amount:             amount,
		SourceChainID:      s.chainID,
		DestinationChainID: dstChainID,
		DestinationAddress: hex.EncodeToString(dstAddress),
		Sequence:           op.Height,
		Timestamp:          op.Timestamp(),
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func transferEvent(t *model.CrossChainTransfer) *model.TransferEvent {
	return &model.TransferEvent{
		TransferID:         t.TransferID,
		User:               t.UserAddress,
		Token:              t.Token,
		Amount:             t.Amount,
		SourceChainID:      t.SourceChainID,
		DestinationChainID: t.DestinationChainID,
		DestinationAddress: t.DestinationAddress,
		Sequence:           t.Sequence,
	}
}

// Lock 锁定调用方的原生资产并登记跨链转账
func (s *BridgeService) Lock(ctx context.Context, caller, token common.Address, amount decimal.Decimal,
	dstChainID int64, dstAddress []byte) (*model.CrossChainTransfer, error) {
	if err := s.validateOutbound(amount, dstChainID); err != nil {
		return nil, err
	}
	var transfer *model.CrossChainTransfer
	err := s.exec.Execute(ctx, "bridge.lock", func(ctx context.Context, op *Op) error {
		if err := s.requireSupportedToken(ctx, token); err != nil {
			return err
		}
		if err := s.ledger.Transfer(ctx, token, caller, s.custody, amount); err != nil {
			return err
		}
		t, err := s.recordOutbound(ctx, op, model.TransferKindLock, caller, token, amount, dstChainID, dstAddress)
		if err != nil {
			return err
		}
		op.Emit(model.EventLocked, t.TransferID, transferEvent(t))
		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTransfer(string(model.TransferDomainBridge), string(model.TransferKindLock))
	logger.Info("tokens locked",
		zap.String("transfer_id", transfer.TransferID),
		zap.String("user", transfer.UserAddress),
		zap.String("amount", amount.String()),
		zap.Int64("destination_chain_id", dstChainID),
		zap.Int64("height", transfer.Sequence))
	return transfer, nil
}

// Mint 根据外部消息增发合成资产, 同一 messageID 只接受一次
func (s *BridgeService) Mint(ctx context.Context, caller, to common.Address, amount decimal.Decimal,
	srcChainID int64, srcTxRef, messageID string) error {
	if err := requirePositive("amount", amount); err != nil {
		return err
	}
	err := s.exec.Execute(ctx, "bridge.mint", func(ctx context.Context, op *Op) error {
		if err := s.requireOperator(ctx, caller); err != nil {
			return err
		}
		if err := s.markMessage(ctx, messageID, op.Height); err != nil {
			return err
		}
		if err := s.issuer.Mint(ctx, s.custody, to, amount); err != nil {
			return err
		}
		op.Emit(model.EventMinted, messageID, &model.BridgeMessageEvent{
			MessageID:     messageID,
			To:            model.AddressKey(to),
			Token:         model.AddressKey(s.issuer.Token()),
			Amount:        amount,
			SourceChainID: srcChainID,
			SourceTxRef:   srcTxRef,
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("wrapped tokens minted",
		zap.String("message_id", messageID),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// Burn 销毁调用方的合成资产并登记跨链转账
func (s *BridgeService) Burn(ctx context.Context, caller common.Address, amount decimal.Decimal,
	dstChainID int64, dstAddress []byte) (*model.CrossChainTransfer, error) {
	if err := s.validateOutbound(amount, dstChainID); err != nil {
		return nil, err
	}
	var transfer *model.CrossChainTransfer
	err := s.exec.Execute(ctx, "bridge.burn", func(ctx context.Context, op *Op) error {
		if err := s.issuer.Burn(ctx, s.custody, caller, amount); err != nil {
			return err
		}
		t, err := s.recordOutbound(ctx, op, model.TransferKindBurn, caller, s.issuer.Token(), amount, dstChainID, dstAddress)
		if err != nil {
			return err
		}
		op.Emit(model.EventBurned, t.TransferID, transferEvent(t))
		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTransfer(string(model.TransferDomainBridge), string(model.TransferKindBurn))
	logger.Info("wrapped tokens burned",
		zap.String("transfer_id", transfer.TransferID),
		zap.String("user", transfer.UserAddress),
		zap.String("amount", amount.String()))
	return transfer, nil
}

// Release 根据外部消息从托管释放原生资产, 同一 messageID 只接受一次
func (s *BridgeService) Release(ctx context.Context, caller, token, to common.Address, amount decimal.Decimal,
	srcChainID int64, srcTxRef, messageID string) error {
	if err := requirePositive("amount", amount); err != nil {
		return err
	}
	err := s.exec.Execute(ctx, "bridge.release", func(ctx context.Context, op *Op) error {
		if err := s.requireOperator(ctx, caller); err != nil {
			return err
		}
		if err := s.markMessage(ctx, messageID, op.Height); err != nil {
			return err
		}
		if err := s.ledger.Payout(ctx, token, s.custody, to, amount); err != nil {
			return err
		}
		op.Emit(model.EventReleased, messageID, &model.BridgeMessageEvent{
			MessageID:     messageID,
			To:            model.AddressKey(to),
			Token:         model.AddressKey(token),
			Amount:        amount,
			SourceChainID: srcChainID,
			SourceTxRef:   srcTxRef,
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("tokens released",
		zap.String("message_id", messageID),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// CompleteTransfer 关闭跨链转账, 每笔只能完成一次
func (s *BridgeService) CompleteTransfer(ctx context.Context, caller common.Address, transferID, messageID string, success bool) error {
	err := s.exec.Execute(ctx, "bridge.complete_transfer", func(ctx context.Context, op *Op) error {
		if err := s.requireOperator(ctx, caller); err != nil {
			return err
		}
		t, err := s.transfers.Get(ctx, model.TransferDomainBridge, transferID, repository.ForUpdate)
		if err != nil {
			return err
		}
		if t.IsCompleted {
			return apperrors.ErrTransferCompleted.WithDetail("transfer_id", transferID)
		}
		if err := s.transfers.MarkCompleted(ctx, t.ID, messageID, success); err != nil {
			return err
		}
		op.Emit(model.EventTransferCompleted, transferID, &model.TransferCompletedEvent{
			TransferID: transferID,
			MessageID:  messageID,
			Success:    success,
			User:       t.UserAddress,
			Amount:     t.Amount,
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("bridge transfer completed",
		zap.String("transfer_id", transferID),
		zap.String("message_id", messageID),
		zap.Bool("success", success))
	return nil
}

// SetOperator 更换桥操作员, 仅 owner
func (s *BridgeService) SetOperator(ctx context.Context, caller, operator common.Address) error {
	return s.exec.Execute(ctx, "bridge.set_operator", func(ctx context.Context, op *Op) error {
		if err := s.authz.Require(ctx, model.ComponentBridge, caller, model.RoleOwner); err != nil {
			return err
		}
		return s.authz.Grant(ctx, model.ComponentBridge, model.RoleOperator, operator, caller)
	})
}

// Protocol 当前中继协议
func (s *BridgeService) Protocol(ctx context.Context) (string, error) {
	st, err := s.settings.Get(ctx, model.ComponentBridge, nil)
	if err != nil {
		return "", translate(err)
	}
	return st.Protocol, nil
}

// SetProtocol 切换中继协议, 仅 owner. 不影响链上状态机
func (s *BridgeService) SetProtocol(ctx context.Context, caller common.Address, protocol string) error {
	if !IsBridgeProtocol(protocol) {
		return apperrors.ErrInvalidRequest.WithMessagef("unknown bridge protocol %q", protocol)
	}
	err := s.exec.Execute(ctx, "bridge.set_protocol", func(ctx context.Context, op *Op) error {
		if err := s.authz.Require(ctx, model.ComponentBridge, caller, model.RoleOwner); err != nil {
			return err
		}
		return s.settings.Update(ctx, model.ComponentBridge, map[string]interface{}{"protocol": protocol})
	})
	if err != nil {
		return err
	}
	logger.Info("bridge protocol switched", zap.String("protocol", protocol))
	return nil
}

// SupportedChains 支持的链
func (s *BridgeService) SupportedChains() []config.ChainEntry {
	return s.cfg.Chains
}

// SupportedTokens 支持的代币
func (s *BridgeService) SupportedTokens(ctx context.Context) ([]*model.SupportedAsset, error) {
	list, err := s.assets.List(ctx, model.AssetKindToken)
	return list, translate(err)
}

// SetTokenSupported 启用或停用代币, 仅 owner
func (s *BridgeService) SetTokenSupported(ctx context.Context, caller, token common.Address, enabled bool) error {
	return s.exec.Execute(ctx, "bridge.set_token", func(ctx context.Context, op *Op) error {
		if err := s.authz.Require(ctx, model.ComponentBridge, caller, model.RoleOwner); err != nil {
			return err
		}
		return s.assets.SetEnabled(ctx, model.AssetKindToken, model.AddressKey(token), enabled)
	})
}

// ValidateTransfer 只校验参数, 不执行
func (s *BridgeService) ValidateTransfer(ctx context.Context, req *TransferRequest) error {
	if err := s.validateOutbound(req.Amount, req.DestinationChainID); err != nil {
		return err
	}
	ok, err := s.assets.IsSupported(ctx, model.AssetKindChain, strconv.FormatInt(req.DestinationChainID, 10))
	if err != nil {
		return translate(err)
	}
	if !ok {
		return apperrors.ErrInvalidRequest.WithMessagef("destination chain %d is not reachable", req.DestinationChainID)
	}

	token := req.Token
	if req.Kind == model.TransferKindBurn {
		token = s.issuer.Token()
	} else if err := s.requireSupportedToken(ctx, token); err != nil {
		return translate(err)
	}
	bal, err := s.ledger.BalanceOf(ctx, token, req.Caller)
	if err != nil {
		return err
	}
	if bal.LessThan(req.Amount) {
		return apperrors.ErrInsufficientBalance.WithDetail("balance", bal.String())
	}
	return nil
}

// QuoteFee 跨链费用报价
func (s *BridgeService) QuoteFee(ctx context.Context, srcChainID, dstChainID int64) (*FeeQuote, error) {
	if srcChainID == dstChainID {
		return nil, apperrors.ErrSameChainTransfer
	}
	protocol, err := s.Protocol(ctx)
	if err != nil {
		return nil, err
	}
	quote := &FeeQuote{
		SourceChainID:      srcChainID,
		DestinationChainID: dstChainID,
		Protocol:           protocol,
		BridgeFeeBps:       s.cfg.FeeEstimateBps,
	}
	st, err := s.settings.Get(ctx, model.ComponentSettlement, nil)
	if err == nil {
		quote.SettlementFeeBps = st.FeeRateBps
	} else if !errors.Is(err, repository.ErrSettingsNotFound) {
		return nil, translate(err)
	}
	return quote, nil
}

// GetTransfer 查询跨链转账
func (s *BridgeService) GetTransfer(ctx context.Context, transferID string) (*model.CrossChainTransfer, error) {
	t, err := s.transfers.Get(ctx, model.TransferDomainBridge, transferID, nil)
	return t, translate(err)
}

// History 用户的跨链转账记录
func (s *BridgeService) History(ctx context.Context, user common.Address, page *repository.Pagination) ([]*model.CrossChainTransfer, error) {
	list, err := s.transfers.ListByUser(ctx, model.TransferDomainBridge, model.AddressKey(user), page)
	return list, translate(err)
}

// Health 跨链桥状态
func (s *BridgeService) Health(ctx context.Context) (*BridgeHealth, error) {
	protocol, err := s.Protocol(ctx)
	if err != nil {
		return nil, err
	}
	asset, err := s.issuer.Asset(ctx)
	if err != nil {
		return nil, err
	}
	h := &BridgeHealth{
		Protocol:      protocol,
		ChainID:       s.chainID,
		WrappedToken:  asset.Token,
		WrappedSupply: asset.TotalSupply,
	}
	if addr, ok, err := s.authz.Holder(ctx, model.ComponentBridge, model.RoleOperator); err == nil && ok {
		h.Operator = addr.Hex()
	}
	return h, nil
}
