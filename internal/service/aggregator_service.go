package service

import (
	"context"
	"errors"

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

var secondsPerYear = decimal.NewFromInt(model.SecondsPerYear)

// AggregatorStats 聚合器全局状态
type AggregatorStats struct {
	Paused           bool            `json:"paused"`
	FeeCollector     string          `json:"fee_collector"`
	TotalValueLocked decimal.Decimal `json:"total_value_locked"`
	StrategyCount    int             `json:"strategy_count"`
}

// WithdrawResult 取款结算明细
type WithdrawResult struct {
	Deposit        *model.UserDeposit `json:"deposit"`
	Amount         decimal.Decimal    `json:"amount"`
	ManagementFee  decimal.Decimal    `json:"management_fee"`
	PerformanceFee decimal.Decimal    `json:"performance_fee"`
	Net            decimal.Decimal    `json:"net"`
}

// YieldAggregator 面向用户的存取款账本
type YieldAggregator struct {
	exec       *Executor
	authz      *auth.Authorizer
	ledger     *TokenLedger
	strategies repository.StrategyRepository
	deposits   repository.DepositRepository
	transfers  repository.TransferRepository
	messages   repository.MessageRepository
	settings   repository.SettingsRepository

	chainID int64
	custody common.Address
	cfg     config.AggregatorConfig
}

// NewYieldAggregator 创建聚合器
func NewYieldAggregator(
	exec *Executor,
	authz *auth.Authorizer,
	ledger *TokenLedger,
	strategies repository.StrategyRepository,
	deposits repository.DepositRepository,
	transfers repository.TransferRepository,
	messages repository.MessageRepository,
	settings repository.SettingsRepository,
	chainID int64,
	cfg config.AggregatorConfig,
) *YieldAggregator {
	return &YieldAggregator{
		exec:       exec,
		authz:      authz,
		ledger:     ledger,
		strategies: strategies,
		deposits:   deposits,
		transfers:  transfers,
		messages:   messages,
		settings:   settings,
		chainID:    chainID,
		custody:    common.HexToAddress(cfg.Address),
		cfg:        cfg,
	}
}

// Custody 托管账户
func (a *YieldAggregator) Custody() common.Address {
	return a.custody
}

// Init 写入初始设置, 未配置手续费接收地址时手续费留在托管账户
func (a *YieldAggregator) Init(ctx context.Context) error {
	collector := a.custody
	if a.cfg.FeeCollector != "" {
		collector = common.HexToAddress(a.cfg.FeeCollector)
	}
	return a.settings.Ensure(ctx, &model.ComponentSettings{
		Component:    model.ComponentAggregator,
		FeeCollector: model.AddressKey(collector),
	})
}

func (a *YieldAggregator) requireOwner(ctx context.Context, caller common.Address) error {
	return a.authz.Require(ctx, model.ComponentAggregator, caller, model.RoleOwner)
}

func validateStrategyFees(performance, management int64) error {
	if performance < 0 || performance > model.MaxPerformanceFeeBps {
		return apperrors.ErrFeeRateTooHigh.
			WithMessagef("performance fee must be within [0, %d] bps, got %d", model.MaxPerformanceFeeBps, performance)
	}
	if management < 0 || management > model.MaxManagementFeeBps {
		return apperrors.ErrFeeRateTooHigh.
			WithMessagef("management fee must be within [0, %d] bps, got %d", model.MaxManagementFeeBps, management)
	}
	return nil
}

func strategyEvent(s *model.Strategy) *model.AggregatorStrategyEvent {
	return &model.AggregatorStrategyEvent{
		StrategyID:         s.ID,
		Name:               s.Name,
		BackingAddress:     s.BackingAddress,
		IsActive:           s.IsActive,
		PerformanceFeeRate: s.PerformanceFeeRate,
		ManagementFeeRate:  s.ManagementFeeRate,
	}
}

// AddStrategy 新增策略, 返回自增 id
func (a *YieldAggregator) AddStrategy(ctx context.Context, caller common.Address, name string,
	backing common.Address, performanceFeeRate, managementFeeRate int64) (*model.Strategy, error) {
	if name == "" {
		return nil, apperrors.ErrInvalidRequest.WithMessage("strategy name is required")
	}
	if backing == (common.Address{}) {
		return nil, apperrors.ErrInvalidAddress.WithMessage("backing address must not be zero")
	}
	if err := validateStrategyFees(performanceFeeRate, managementFeeRate); err != nil {
		return nil, err
	}
	var created *model.Strategy
	err := a.exec.Execute(ctx, "aggregator.add_strategy", func(ctx context.Context, op *Op) error {
		if err := a.requireOwner(ctx, caller); err != nil {
			return err
		}
		s := &model.Strategy{
			Name:               name,
			BackingAddress:     model.AddressKey(backing),
			IsActive:           true,
			TotalDeposited:     decimal.Zero,
			TotalWithdrawn:     decimal.Zero,
			PerformanceFeeRate: performanceFeeRate,
			ManagementFeeRate:  managementFeeRate,
		}
		if err := a.strategies.Create(ctx, s); err != nil {
			return err
		}
		op.Emit(model.EventAggregatorStrategyAdded, s.BackingAddress, strategyEvent(s))
		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("aggregator strategy added",
		zap.Int64("strategy_id", created.ID),
		zap.String("name", name),
		zap.String("backing", created.BackingAddress))
	return created, nil
}

// UpdateStrategy 更新启停状态与费率
func (a *YieldAggregator) UpdateStrategy(ctx context.Context, caller common.Address, id int64,
	isActive bool, performanceFeeRate, managementFeeRate int64) (*model.Strategy, error) {
	if err := validateStrategyFees(performanceFeeRate, managementFeeRate); err != nil {
		return nil, err
	}
	var updated *model.Strategy
	err := a.exec.Execute(ctx, "aggregator.update_strategy", func(ctx context.Context, op *Op) error {
		if err := a.requireOwner(ctx, caller); err != nil {
			return err
		}
		s, err := a.strategies.GetByID(ctx, id, repository.ForUpdate)
		if err != nil {
			return err
		}
		if err := a.strategies.Update(ctx, id, map[string]interface{}{
			"is_active":            isActive,
			"performance_fee_rate": performanceFeeRate,
			"management_fee_rate":  managementFeeRate,
		}); err != nil {
			return err
		}
		s.IsActive = isActive
		s.PerformanceFeeRate = performanceFeeRate
		s.ManagementFeeRate = managementFeeRate
		op.Emit(model.EventAggregatorStrategyUpdated, s.BackingAddress, strategyEvent(s))
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("aggregator strategy updated",
		zap.Int64("strategy_id", id),
		zap.Bool("active", isActive),
		zap.Int64("performance_fee_rate", performanceFeeRate),
		zap.Int64("management_fee_rate", managementFeeRate))
	return updated, nil
}

// Deposit 存入策略底层资产
func (a *YieldAggregator) Deposit(ctx context.Context, caller common.Address, strategyID int64,
	amount decimal.Decimal) (*model.UserDeposit, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	var deposit *model.UserDeposit
	err := a.exec.Execute(ctx, "aggregator.deposit", func(ctx context.Context, op *Op) error {
		st, err := a.settings.Get(ctx, model.ComponentAggregator, repository.ForUpdate)
		if err != nil {
			return err
		}
		if st.Paused {
			return apperrors.ErrPaused
		}
		s, err := a.strategies.GetByID(ctx, strategyID, repository.ForUpdate)
		if err != nil {
			return err
		}
		if !s.IsActive {
			return apperrors.ErrStrategyInactive.WithMessagef("strategy %d is not active", strategyID)
		}
		if err := a.ledger.Transfer(ctx, common.HexToAddress(s.BackingAddress), caller, a.custody, amount); err != nil {
			return err
		}
		d := &model.UserDeposit{
			UserAddress: model.AddressKey(caller),
			StrategyID:  s.ID,
			Amount:      amount,
			Principal:   amount,
			Timestamp:   op.Timestamp(),
		}
		if err := a.deposits.Append(ctx, d); err != nil {
			return err
		}
		if err := a.strategies.Update(ctx, s.ID, map[string]interface{}{
			"total_deposited": s.TotalDeposited.Add(amount),
		}); err != nil {
			return err
		}
		if err := a.settings.Update(ctx, model.ComponentAggregator, map[string]interface{}{
			"total_value_locked": st.TotalValueLocked.Add(amount),
		}); err != nil {
			return err
		}
		op.Emit(model.EventDeposit, d.UserAddress, &model.DepositEvent{
			User:         d.UserAddress,
			StrategyID:   s.ID,
			DepositIndex: d.DepositIndex,
			Amount:       amount,
		})
		deposit = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("deposit accepted",
		zap.String("user", deposit.UserAddress),
		zap.Int64("strategy_id", strategyID),
		zap.Int64("deposit_index", deposit.DepositIndex),
		zap.String("amount", amount.String()))
	return deposit, nil
}

// ManagementFee amount × rate × elapsed / (365 天 × 10000), 向下取整并以 amount 为上限
func ManagementFee(amount decimal.Decimal, rateBps int64, elapsedSeconds int64) decimal.Decimal {
	if elapsedSeconds <= 0 || rateBps <= 0 || !amount.IsPositive() {
		return decimal.Zero
	}
	numerator := amount.Mul(decimal.NewFromInt(rateBps)).Mul(decimal.NewFromInt(elapsedSeconds))
	fee, _ := numerator.QuoRem(secondsPerYear.Mul(bpsDenominator), 0)
	if fee.GreaterThan(amount) {
		return amount
	}
	return fee
}

// Withdraw 从存款中取出 amount, 暂停期间仍可取款
func (a *YieldAggregator) Withdraw(ctx context.Context, caller common.Address, depositIndex int64,
	amount decimal.Decimal) (*WithdrawResult, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	var result *WithdrawResult
	err := a.exec.Execute(ctx, "aggregator.withdraw", func(ctx context.Context, op *Op) error {
		d, err := a.deposits.Get(ctx, model.AddressKey(caller), depositIndex, repository.ForUpdate)
		if err != nil {
			return err
		}
		if !d.IsActive {
			return apperrors.ErrDepositInactive.WithMessagef("deposit %d is closed", depositIndex)
		}
		if amount.GreaterThan(d.Amount) {
			return apperrors.ErrInvalidAmount.WithMessagef("amount %s exceeds deposit balance %s", amount, d.Amount)
		}
		s, err := a.strategies.GetByID(ctx, d.StrategyID, repository.ForUpdate)
		if err != nil {
			return err
		}
		st, err := a.settings.Get(ctx, model.ComponentAggregator, repository.ForUpdate)
		if err != nil {
			return err
		}

		elapsed := (op.Timestamp() - d.Timestamp) / 1000
		mgmtFee := ManagementFee(amount, s.ManagementFeeRate, elapsed)
		perfFee := decimal.Zero
		net := amount.Sub(mgmtFee).Sub(perfFee)

		remaining := d.Amount.Sub(amount)
		if err := a.deposits.RecordWithdrawal(ctx, d.ID, remaining, mgmtFee.Add(perfFee)); err != nil {
			return err
		}
		token := common.HexToAddress(s.BackingAddress)
		if err := a.ledger.Payout(ctx, token, a.custody, caller, net); err != nil {
			return err
		}
		if fee := mgmtFee.Add(perfFee); fee.IsPositive() {
			if err := a.ledger.Payout(ctx, token, a.custody, common.HexToAddress(st.FeeCollector), fee); err != nil {
				return err
			}
		}
		if err := a.strategies.Update(ctx, s.ID, map[string]interface{}{
			"total_withdrawn": s.TotalWithdrawn.Add(amount),
		}); err != nil {
			return err
		}
		tvl := st.TotalValueLocked.Sub(amount)
		if tvl.IsNegative() {
			tvl = decimal.Zero
		}
		if err := a.settings.Update(ctx, model.ComponentAggregator, map[string]interface{}{
			"total_value_locked": tvl,
		}); err != nil {
			return err
		}

		d.Amount = remaining
		d.IsActive = remaining.IsPositive()
		d.FeesPaid = d.FeesPaid.Add(mgmtFee).Add(perfFee)
		op.Emit(model.EventWithdraw, d.UserAddress, &model.WithdrawEvent{
			User:           d.UserAddress,
			StrategyID:     s.ID,
			DepositIndex:   d.DepositIndex,
			Amount:         amount,
			ManagementFee:  mgmtFee,
			PerformanceFee: perfFee,
			Net:            net,
		})
		result = &WithdrawResult{
			Deposit:        d,
			Amount:         amount,
			ManagementFee:  mgmtFee,
			PerformanceFee: perfFee,
			Net:            net,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("withdrawal processed",
		zap.String("user", result.Deposit.UserAddress),
		zap.Int64("deposit_index", depositIndex),
		zap.String("amount", amount.String()),
		zap.String("management_fee", result.ManagementFee.String()),
		zap.String("net", result.Net.String()))
	return result, nil
}

// InitiateCrossChainTransfer 资金转入聚合器托管并登记跨链转账
func (a *YieldAggregator) InitiateCrossChainTransfer(ctx context.Context, caller, token common.Address,
	amount decimal.Decimal, dstChainID int64) (*model.CrossChainTransfer, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	if dstChainID <= 0 {
		return nil, apperrors.ErrInvalidRequest.WithMessage("destination chain id must be positive")
	}
	if dstChainID == a.chainID {
		return nil, apperrors.ErrSameChainTransfer
	}
	var transfer *model.CrossChainTransfer
	err := a.exec.Execute(ctx, "aggregator.initiate_transfer", func(ctx context.Context, op *Op) error {
		if err := a.ledger.Transfer(ctx, token, caller, a.custody, amount); err != nil {
			return err
		}
		t := &model.CrossChainTransfer{
			TransferID:         deriveTransferID(caller, token, amount, a.chainID, dstChainID, op.Timestamp(), op.Height),
			Domain:             model.TransferDomainAggregator,
			Kind:               model.TransferKindInitiate,
			UserAddress:        model.AddressKey(caller),
			Token:              model.AddressKey(token),
			Amount:             amount,
			SourceChainID:      a.chainID,
			DestinationChainID: dstChainID,
			Sequence:           op.Height,
			Timestamp:          op.Timestamp(),
		}
		if err := a.transfers.Create(ctx, t); err != nil {
			return err
		}
		op.Emit(model.EventCrossChainTransferInitiated, t.TransferID, transferEvent(t))
		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTransfer(string(model.TransferDomainAggregator), string(model.TransferKindInitiate))
	logger.Info("aggregator transfer initiated",
		zap.String("transfer_id", transfer.TransferID),
		zap.String("user", transfer.UserAddress),
		zap.String("amount", amount.String()),
		zap.Int64("destination_chain_id", dstChainID))
	return transfer, nil
}

// CompleteCrossChainTransfer 完成聚合器跨链转账并向用户放款
func (a *YieldAggregator) CompleteCrossChainTransfer(ctx context.Context, caller common.Address,
	transferID, messageID string) (*model.CrossChainTransfer, error) {
	if messageID == "" {
		return nil, apperrors.ErrInvalidRequest.WithMessage("message id is required")
	}
	var transfer *model.CrossChainTransfer
	err := a.exec.Execute(ctx, "aggregator.complete_transfer", func(ctx context.Context, op *Op) error {
		if a.cfg.TransferCompletionRestricted() {
			if err := a.authz.Require(ctx, model.ComponentAggregator, caller, model.RoleOwner, model.RoleOperator); err != nil {
				return err
			}
		}
		t, err := a.transfers.Get(ctx, model.TransferDomainAggregator, transferID, repository.ForUpdate)
		if err != nil {
			return err
		}
		if t.IsCompleted {
			return apperrors.ErrTransferCompleted.WithDetail("transfer_id", transferID)
		}
		err = a.messages.Mark(ctx, model.MessageScopeAggregator, messageID, op.Height)
		if errors.Is(err, repository.ErrMessageAlreadyProcessed) {
			metrics.RecordReplayRejected(string(model.MessageScopeAggregator))
			return apperrors.ErrMessageProcessed.WithDetail("message_id", messageID)
		}
		if err != nil {
			return err
		}
		if err := a.transfers.MarkCompleted(ctx, t.ID, messageID, true); err != nil {
			return err
		}
		if err := a.ledger.Payout(ctx, common.HexToAddress(t.Token), a.custody,
			common.HexToAddress(t.UserAddress), t.Amount); err != nil {
			return err
		}
		t.IsCompleted = true
		t.Success = true
		t.MessageID = messageID
		t.CompletedAt = op.Timestamp()
		op.Emit(model.EventCrossChainTransferCompleted, t.TransferID, &model.TransferCompletedEvent{
			TransferID: t.TransferID,
			MessageID:  messageID,
			Success:    true,
			User:       t.UserAddress,
			Amount:     t.Amount,
		})
		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("aggregator transfer completed",
		zap.String("transfer_id", transferID),
		zap.String("message_id", messageID),
		zap.String("caller", caller.Hex()))
	return transfer, nil
}

func (a *YieldAggregator) updateState(ctx context.Context, operation string, caller common.Address,
	fields map[string]interface{}) error {
	return a.exec.Execute(ctx, operation, func(ctx context.Context, op *Op) error {
		if err := a.requireOwner(ctx, caller); err != nil {
			return err
		}
		if err := a.settings.Update(ctx, model.ComponentAggregator, fields); err != nil {
			return err
		}
		st, err := a.settings.Get(ctx, model.ComponentAggregator, nil)
		if err != nil {
			return err
		}
		op.Emit(model.EventAggregatorStateChanged, string(model.ComponentAggregator), &model.AggregatorStateEvent{
			Paused:       st.Paused,
			FeeCollector: st.FeeCollector,
		})
		return nil
	})
}

// SetFeeCollector 更新手续费接收地址
func (a *YieldAggregator) SetFeeCollector(ctx context.Context, caller, collector common.Address) error {
	if collector == (common.Address{}) {
		return apperrors.ErrInvalidAddress.WithMessage("fee collector must not be zero")
	}
	if err := a.updateState(ctx, "aggregator.set_fee_collector", caller, map[string]interface{}{
		"fee_collector": model.AddressKey(collector),
	}); err != nil {
		return err
	}
	logger.Info("fee collector updated", zap.String("fee_collector", collector.Hex()))
	return nil
}

// Pause 暂停存款
func (a *YieldAggregator) Pause(ctx context.Context, caller common.Address) error {
	if err := a.updateState(ctx, "aggregator.pause", caller, map[string]interface{}{"paused": true}); err != nil {
		return err
	}
	logger.Warn("aggregator paused", zap.String("caller", caller.Hex()))
	return nil
}

// Unpause 恢复存款
func (a *YieldAggregator) Unpause(ctx context.Context, caller common.Address) error {
	if err := a.updateState(ctx, "aggregator.unpause", caller, map[string]interface{}{"paused": false}); err != nil {
		return err
	}
	logger.Info("aggregator unpaused", zap.String("caller", caller.Hex()))
	return nil
}

// Stats 全局状态
func (a *YieldAggregator) Stats(ctx context.Context) (*AggregatorStats, error) {
	st, err := a.settings.Get(ctx, model.ComponentAggregator, nil)
	if err != nil {
		return nil, translate(err)
	}
	list, err := a.strategies.List(ctx, false)
	if err != nil {
		return nil, translate(err)
	}
	return &AggregatorStats{
		Paused:           st.Paused,
		FeeCollector:     st.FeeCollector,
		TotalValueLocked: st.TotalValueLocked,
		StrategyCount:    len(list),
	}, nil
}

// GetStrategy 查询策略
func (a *YieldAggregator) GetStrategy(ctx context.Context, id int64) (*model.Strategy, error) {
	s, err := a.strategies.GetByID(ctx, id, nil)
	return s, translate(err)
}

// ListStrategies 策略目录, activeOnly 时只含激活策略
func (a *YieldAggregator) ListStrategies(ctx context.Context, activeOnly bool) ([]*model.Strategy, error) {
	list, err := a.strategies.List(ctx, activeOnly)
	return list, translate(err)
}

// GetUserDeposits 用户全部存款 (含已关闭), 按编号排序
func (a *YieldAggregator) GetUserDeposits(ctx context.Context, user common.Address) ([]*model.UserDeposit, error) {
	list, err := a.deposits.ListByUser(ctx, model.AddressKey(user))
	return list, translate(err)
}

// GetUserPositions 按策略汇总的激活存款
func (a *YieldAggregator) GetUserPositions(ctx context.Context, user common.Address) ([]*model.UserPosition, error) {
	list, err := a.deposits.Positions(ctx, model.AddressKey(user))
	return list, translate(err)
}

// GetTransfer 查询聚合器发起的跨链转账
func (a *YieldAggregator) GetTransfer(ctx context.Context, transferID string) (*model.CrossChainTransfer, error) {
	t, err := a.transfers.Get(ctx, model.TransferDomainAggregator, transferID, nil)
	return t, translate(err)
}
