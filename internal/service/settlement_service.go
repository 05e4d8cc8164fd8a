package service

import (
	"context"
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

// SettlementService 验证者驱动的即时结算
//
// 状态机: Pending → Processing → Completed | Failed, 以及 Pending → Cancelled (仅用户).
// 其他迁移一律返回 ErrInvalidStatus.
type SettlementService struct {
	exec        *Executor
	authz       *auth.Authorizer
	ledger      *TokenLedger
	settlements repository.SettlementRepository
	settings    repository.SettingsRepository
	assets      repository.AssetRepository

	custody common.Address
	cfg     config.SettlementConfig
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	exec *Executor,
	authz *auth.Authorizer,
	ledger *TokenLedger,
	settlements repository.SettlementRepository,
	settings repository.SettingsRepository,
	assets repository.AssetRepository,
	cfg config.SettlementConfig,
) *SettlementService {
	return &SettlementService{
		exec:        exec,
		authz:       authz,
		ledger:      ledger,
		settlements: settlements,
		settings:    settings,
		assets:      assets,
		custody:     common.HexToAddress(cfg.Address),
		cfg:         cfg,
	}
}

// Custody 托管账户
func (s *SettlementService) Custody() common.Address {
	return s.custody
}

// Init 写入初始费率、限额与支持的网络
func (s *SettlementService) Init(ctx context.Context) error {
	maxAmount, err := decimal.NewFromString(s.cfg.MaxSettlementAmount)
	if err != nil {
		return err
	}
	if err := s.settings.Ensure(ctx, &model.ComponentSettings{
		Component:  model.ComponentSettlement,
		FeeRateBps: s.cfg.FeeRateBps,
		MaxAmount:  maxAmount,
	}); err != nil {
		return err
	}
	networks := make([]*model.SupportedAsset, 0, len(s.cfg.SupportedNetworks))
	for _, n := range s.cfg.SupportedNetworks {
		networks = append(networks, &model.SupportedAsset{Kind: model.AssetKindNetwork, Value: n})
	}
	return s.assets.Seed(ctx, networks)
}

func (s *SettlementService) requireValidator(ctx context.Context, caller common.Address) error {
	return s.authz.Require(ctx, model.ComponentSettlement, caller, model.RoleValidator)
}

func (s *SettlementService) requireOwner(ctx context.Context, caller common.Address) error {
	return s.authz.Require(ctx, model.ComponentSettlement, caller, model.RoleOwner)
}

// load 加锁读取并校验状态迁移
func (s *SettlementService) load(ctx context.Context, id int64, next model.SettlementStatus) (*model.Settlement, error) {
	st, err := s.settlements.GetByID(ctx, id, repository.ForUpdate)
	if err != nil {
		return nil, err
	}
	if !st.Status.CanTransitionTo(next) {
		return nil, apperrors.ErrInvalidStatus.
			WithMessagef("settlement %d cannot move from %s to %s", id, st.Status, next).
			WithDetail("status", st.Status.String())
	}
	return st, nil
}

func settlementEvent(st *model.Settlement, status model.SettlementStatus) *model.SettlementEvent {
	return &model.SettlementEvent{
		SettlementID:    st.ID,
		User:            st.UserAddress,
		Token:           st.Token,
		Amount:          st.Amount,
		YieldAmount:     st.YieldAmount,
		Status:          status.String(),
		ExternalTxRef:   st.ExternalTxRef,
		ExternalNetwork: st.ExternalNetwork,
	}
}

func settlementKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// InitiateSettlement 用户发起结算, 资金转入结算托管
func (s *SettlementService) InitiateSettlement(ctx context.Context, caller, token common.Address,
	amount, yieldAmount decimal.Decimal) (*model.Settlement, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	if err := requireNonNegative("yield_amount", yieldAmount); err != nil {
		return nil, err
	}
	var created *model.Settlement
	err := s.exec.Execute(ctx, "settlement.initiate", func(ctx context.Context, op *Op) error {
		cfg, err := s.settings.Get(ctx, model.ComponentSettlement, nil)
		if err != nil {
			return err
		}
		if amount.GreaterThan(cfg.MaxAmount) {
			return apperrors.ErrExceedLimit.WithMessagef("amount %s exceeds max settlement amount %s", amount, cfg.MaxAmount)
		}
		if err := s.ledger.Transfer(ctx, token, caller, s.custody, amount); err != nil {
			return err
		}
		st := &model.Settlement{
			UserAddress: model.AddressKey(caller),
			Token:       model.AddressKey(token),
			Amount:      amount,
			YieldAmount: yieldAmount,
			FinalAmount: decimal.Zero,
			Fee:         decimal.Zero,
			Status:      model.SettlementStatusPending,
			BlockHeight: op.Height,
			Timestamp:   op.Timestamp(),
		}
		if err := s.settlements.Create(ctx, st); err != nil {
			return err
		}
		op.Emit(model.EventSettlementInitiated, settlementKey(st.ID), settlementEvent(st, model.SettlementStatusPending))
		created = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSettlement(model.SettlementStatusPending.String())
	logger.Info("settlement initiated",
		zap.Int64("settlement_id", created.ID),
		zap.String("user", created.UserAddress),
		zap.String("amount", amount.String()),
		zap.Int64("height", created.BlockHeight))
	return created, nil
}

// ProcessSettlement 验证者受理结算
func (s *SettlementService) ProcessSettlement(ctx context.Context, caller common.Address, id int64, externalTxRef, externalNetwork string) error {
	err := s.exec.Execute(ctx, "settlement.process", func(ctx context.Context, op *Op) error {
		if err := s.requireValidator(ctx, caller); err != nil {
			return err
		}
		st, err := s.load(ctx, id, model.SettlementStatusProcessing)
		if err != nil {
			return err
		}
		ok, err := s.assets.IsSupported(ctx, model.AssetKindNetwork, externalNetwork)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrUnsupportedNetwork.WithDetail("network", externalNetwork)
		}
		if err := s.settlements.Transition(ctx, id, model.SettlementStatusPending, model.SettlementStatusProcessing,
			map[string]interface{}{
				"external_tx_ref":  externalTxRef,
				"external_network": externalNetwork,
			}); err != nil {
			return err
		}
		st.ExternalTxRef = externalTxRef
		st.ExternalNetwork = externalNetwork
		op.Emit(model.EventSettlementProcessed, settlementKey(id), settlementEvent(st, model.SettlementStatusProcessing))
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordSettlement(model.SettlementStatusProcessing.String())
	logger.Info("settlement processing",
		zap.Int64("settlement_id", id),
		zap.String("external_tx_ref", externalTxRef),
		zap.String("external_network", externalNetwork))
	return nil
}

// CompleteSettlement 验证者完成结算: 扣除手续费后把净额付给用户
// 托管余额不足 finalAmount 时整体失败, 状态不变
func (s *SettlementService) CompleteSettlement(ctx context.Context, caller common.Address, id int64,
	finalAmount decimal.Decimal) (*model.Settlement, error) {
	if err := requirePositive("final_amount", finalAmount); err != nil {
		return nil, err
	}
	var done *model.Settlement
	err := s.exec.Execute(ctx, "settlement.complete", func(ctx context.Context, op *Op) error {
		if err := s.requireValidator(ctx, caller); err != nil {
			return err
		}
		st, err := s.load(ctx, id, model.SettlementStatusCompleted)
		if err != nil {
			return err
		}
		cfg, err := s.settings.Get(ctx, model.ComponentSettlement, repository.ForUpdate)
		if err != nil {
			return err
		}
		token := common.HexToAddress(st.Token)
		held, err := s.ledger.BalanceOf(ctx, token, s.custody)
		if err != nil {
			return err
		}
		if held.LessThan(finalAmount) {
			return apperrors.ErrInsufficientCustody.
				WithMessagef("settlement custody holds %s, need %s", held, finalAmount)
		}

		fee := mulDivFloor(finalAmount, decimal.NewFromInt(cfg.FeeRateBps), bpsDenominator)
		net := finalAmount.Sub(fee)
		if err := s.ledger.Payout(ctx, token, s.custody, common.HexToAddress(st.UserAddress), net); err != nil {
			return err
		}
		if err := s.settings.Update(ctx, model.ComponentSettlement, map[string]interface{}{
			"total_settled":       cfg.TotalSettled.Add(net),
			"total_settled_yield": cfg.TotalSettledYield.Add(st.YieldAmount),
			"total_fees":          cfg.TotalFees.Add(fee),
		}); err != nil {
			return err
		}
		if err := s.settlements.Transition(ctx, id, model.SettlementStatusProcessing, model.SettlementStatusCompleted,
			map[string]interface{}{
				"final_amount": finalAmount,
				"fee":          fee,
				"completed_at": op.Timestamp(),
			}); err != nil {
			return err
		}
		st.Status = model.SettlementStatusCompleted
		st.FinalAmount = finalAmount
		st.Fee = fee
		st.CompletedAt = op.Timestamp()

		ev := settlementEvent(st, model.SettlementStatusCompleted)
		ev.FinalAmount = finalAmount
		ev.Fee = fee
		op.Emit(model.EventSettlementCompleted, settlementKey(id), ev)
		done = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSettlement(model.SettlementStatusCompleted.String())
	logger.Info("settlement completed",
		zap.Int64("settlement_id", id),
		zap.String("final_amount", finalAmount.String()),
		zap.String("fee", done.Fee.String()))
	return done, nil
}

// FailSettlement 验证者判定失败, 退还原始金额
func (s *SettlementService) FailSettlement(ctx context.Context, caller common.Address, id int64, reason string) error {
	err := s.exec.Execute(ctx, "settlement.fail", func(ctx context.Context, op *Op) error {
		if err := s.requireValidator(ctx, caller); err != nil {
			return err
		}
		st, err := s.load(ctx, id, model.SettlementStatusFailed)
		if err != nil {
			return err
		}
		if err := s.ledger.Payout(ctx, common.HexToAddress(st.Token), s.custody, common.HexToAddress(st.UserAddress), st.Amount); err != nil {
			return err
		}
		if len(reason) > 500 {
			reason = reason[:500]
		}
		if err := s.settlements.Transition(ctx, id, model.SettlementStatusProcessing, model.SettlementStatusFailed,
			map[string]interface{}{
				"fail_reason":  reason,
				"completed_at": op.Timestamp(),
			}); err != nil {
			return err
		}
		ev := settlementEvent(st, model.SettlementStatusFailed)
		ev.Reason = reason
		op.Emit(model.EventSettlementFailed, settlementKey(id), ev)
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordSettlement(model.SettlementStatusFailed.String())
	logger.Info("settlement failed", zap.Int64("settlement_id", id), zap.String("reason", reason))
	return nil
}

// CancelSettlement 用户在验证者受理前取消, 退还原始金额
func (s *SettlementService) CancelSettlement(ctx context.Context, caller common.Address, id int64) error {
	err := s.exec.Execute(ctx, "settlement.cancel", func(ctx context.Context, op *Op) error {
		st, err := s.settlements.GetByID(ctx, id, repository.ForUpdate)
		if err != nil {
			return err
		}
		if common.HexToAddress(st.UserAddress) != caller {
			return apperrors.ErrForbidden.WithMessage("only the settlement owner may cancel")
		}
		if !st.Status.CanTransitionTo(model.SettlementStatusCancelled) {
			return apperrors.ErrInvalidStatus.
				WithMessagef("settlement %d cannot be cancelled in %s", id, st.Status).
				WithDetail("status", st.Status.String())
		}
		if err := s.ledger.Payout(ctx, common.HexToAddress(st.Token), s.custody, caller, st.Amount); err != nil {
			return err
		}
		if err := s.settlements.Transition(ctx, id, model.SettlementStatusPending, model.SettlementStatusCancelled,
			map[string]interface{}{"completed_at": op.Timestamp()}); err != nil {
			return err
		}
		op.Emit(model.EventSettlementCancelled, settlementKey(id), settlementEvent(st, model.SettlementStatusCancelled))
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordSettlement(model.SettlementStatusCancelled.String())
	logger.Info("settlement cancelled", zap.Int64("settlement_id", id))
	return nil
}

// Fund 向结算托管注资, 验证者在完成结算前补足资金
func (s *SettlementService) Fund(ctx context.Context, caller, token common.Address, amount decimal.Decimal) error {
	if err := requirePositive("amount", amount); err != nil {
		return err
	}
	err := s.exec.Execute(ctx, "settlement.fund", func(ctx context.Context, op *Op) error {
		return s.ledger.Transfer(ctx, token, caller, s.custody, amount)
	})
	if err != nil {
		return err
	}
	logger.Info("settlement custody funded",
		zap.String("funder", caller.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// SettlementConfigPatch 结算参数修改, 空字段保持不变
type SettlementConfigPatch struct {
	FeeRateBps          *int64
	MaxSettlementAmount *decimal.Decimal
	Validator           *common.Address
	Network             string
	NetworkEnabled      bool
}

func (p *SettlementConfigPatch) validate() error {
	if p.FeeRateBps != nil && (*p.FeeRateBps < 0 || *p.FeeRateBps > model.MaxSettlementFeeBps) {
		return apperrors.ErrFeeRateTooHigh.WithMessagef("fee rate must be within [0, %d] bps", model.MaxSettlementFeeBps)
	}
	if p.MaxSettlementAmount != nil {
		if err := requirePositive("max_settlement_amount", *p.MaxSettlementAmount); err != nil {
			return err
		}
	}
	if p.Validator != nil && *p.Validator == (common.Address{}) {
		return apperrors.ErrInvalidAddress.WithMessage("validator must not be zero")
	}
	return nil
}

// UpdateConfig 校验全部字段后在一次执行内整体应用, 任一字段非法时不做任何修改
func (s *SettlementService) UpdateConfig(ctx context.Context, caller common.Address, patch *SettlementConfigPatch) (*model.ComponentSettings, error) {
	if patch == nil {
		return nil, apperrors.ErrInvalidRequest.WithMessage("empty settlement config")
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}
	err := s.exec.Execute(ctx, "settlement.update_config", func(ctx context.Context, op *Op) error {
		if err := s.requireOwner(ctx, caller); err != nil {
			return err
		}
		updates := make(map[string]interface{}, 2)
		if patch.FeeRateBps != nil {
			updates["fee_rate_bps"] = *patch.FeeRateBps
		}
		if patch.MaxSettlementAmount != nil {
			updates["max_amount"] = *patch.MaxSettlementAmount
		}
		if len(updates) > 0 {
			if err := s.settings.Update(ctx, model.ComponentSettlement, updates); err != nil {
				return err
			}
		}
		if patch.Validator != nil {
			if err := s.authz.Grant(ctx, model.ComponentSettlement, model.RoleValidator, *patch.Validator, caller); err != nil {
				return err
			}
		}
		if patch.Network != "" {
			return s.assets.SetEnabled(ctx, model.AssetKindNetwork, patch.Network, patch.NetworkEnabled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Config(ctx)
}

// SetFeeRate 设置费率, 上限 10%
func (s *SettlementService) SetFeeRate(ctx context.Context, caller common.Address, feeRateBps int64) error {
	_, err := s.UpdateConfig(ctx, caller, &SettlementConfigPatch{FeeRateBps: &feeRateBps})
	return err
}

// SetMaxSettlementAmount 设置单笔限额
func (s *SettlementService) SetMaxSettlementAmount(ctx context.Context, caller common.Address, maxAmount decimal.Decimal) error {
	_, err := s.UpdateConfig(ctx, caller, &SettlementConfigPatch{MaxSettlementAmount: &maxAmount})
	return err
}

// SetValidator 更换验证者
func (s *SettlementService) SetValidator(ctx context.Context, caller, validator common.Address) error {
	_, err := s.UpdateConfig(ctx, caller, &SettlementConfigPatch{Validator: &validator})
	return err
}

// SetNetworkSupported 启用或停用外部网络
func (s *SettlementService) SetNetworkSupported(ctx context.Context, caller common.Address, network string, enabled bool) error {
	if network == "" {
		return apperrors.ErrInvalidRequest.WithMessage("network is required")
	}
	_, err := s.UpdateConfig(ctx, caller, &SettlementConfigPatch{Network: network, NetworkEnabled: enabled})
	return err
}

// Config 当前费率与限额
func (s *SettlementService) Config(ctx context.Context) (*model.ComponentSettings, error) {
	st, err := s.settings.Get(ctx, model.ComponentSettlement, nil)
	return st, translate(err)
}

// GetSettlement 查询结算
func (s *SettlementService) GetSettlement(ctx context.Context, id int64) (*model.Settlement, error) {
	st, err := s.settlements.GetByID(ctx, id, nil)
	return st, translate(err)
}

// ListByUser 用户的结算记录
func (s *SettlementService) ListByUser(ctx context.Context, user common.Address, page *repository.Pagination) ([]*model.Settlement, error) {
	list, err := s.settlements.ListByUser(ctx, model.AddressKey(user), page)
	return list, translate(err)
}

// Stats 结算统计
func (s *SettlementService) Stats(ctx context.Context) (*model.SettlementStats, error) {
	cfg, err := s.settings.Get(ctx, model.ComponentSettlement, nil)
	if err != nil {
		return nil, translate(err)
	}
	total, err := s.settlements.Count(ctx)
	if err != nil {
		return nil, translate(err)
	}
	active, err := s.settlements.CountActive(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &model.SettlementStats{
		TotalSettlements:  total,
		TotalSettled:      cfg.TotalSettled,
		TotalSettledYield: cfg.TotalSettledYield,
		TotalFees:         cfg.TotalFees,
		ActiveSettlements: active,
	}, nil
}
