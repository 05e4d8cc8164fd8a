package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// TokenLedger 代币托管账本
//
// 余额按 (token, account) 记录整数基础单位. 组件从调用方拉取资金即一次 Transfer,
// 余额不足时整笔失败. 除 CreditExternal 外的方法都应在 Executor.Execute 内调用.
type TokenLedger struct {
	balances repository.BalanceRepository
	messages repository.MessageRepository
	exec     *Executor
}

// NewTokenLedger 创建托管账本
func NewTokenLedger(balances repository.BalanceRepository, messages repository.MessageRepository, exec *Executor) *TokenLedger {
	return &TokenLedger{balances: balances, messages: messages, exec: exec}
}

// BalanceOf 查询余额
func (l *TokenLedger) BalanceOf(ctx context.Context, token, account common.Address) (decimal.Decimal, error) {
	bal, err := l.balances.Get(ctx, model.AddressKey(token), model.AddressKey(account))
	return bal, translate(err)
}

// Balances 账户的全部余额
func (l *TokenLedger) Balances(ctx context.Context, account common.Address) ([]*model.TokenBalance, error) {
	list, err := l.balances.ListByAccount(ctx, model.AddressKey(account))
	return list, translate(err)
}

// Transfer 从 from 转给 to, 余额不足返回 ErrInsufficientBalance
func (l *TokenLedger) Transfer(ctx context.Context, token, from, to common.Address, amount decimal.Decimal) error {
	return l.transfer(ctx, token, from, to, amount, apperrors.ErrInsufficientBalance)
}

// Payout 从组件托管账户付出, 托管不足返回 ErrInsufficientCustody
func (l *TokenLedger) Payout(ctx context.Context, token, custody, to common.Address, amount decimal.Decimal) error {
	return l.transfer(ctx, token, custody, to, amount, apperrors.ErrInsufficientCustody)
}

func (l *TokenLedger) transfer(ctx context.Context, token, from, to common.Address, amount decimal.Decimal, shortage *apperrors.Error) error {
	if amount.IsZero() || from == to {
		return nil
	}
	if !model.IsWholeAmount(amount) {
		return apperrors.ErrInvalidAmount.WithMessagef("amount %s must be a non-negative integer", amount)
	}
	tokenKey := model.AddressKey(token)
	if _, err := l.balances.Debit(ctx, tokenKey, model.AddressKey(from), amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return shortage.WithDetail("account", from.Hex()).WithDetail("token", token.Hex())
		}
		return err
	}
	_, err := l.balances.Credit(ctx, tokenKey, model.AddressKey(to), amount)
	return err
}

// Credit 直接增加余额
func (l *TokenLedger) Credit(ctx context.Context, token, account common.Address, amount decimal.Decimal) error {
	_, err := l.balances.Credit(ctx, model.AddressKey(token), model.AddressKey(account), amount)
	return err
}

// Debit 直接扣减余额
func (l *TokenLedger) Debit(ctx context.Context, token, account common.Address, amount decimal.Decimal) error {
	_, err := l.balances.Debit(ctx, model.AddressKey(token), model.AddressKey(account), amount)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return apperrors.ErrInsufficientBalance.WithDetail("account", account.Hex()).WithDetail("token", token.Hex())
	}
	return err
}

// CreditExternal 链上充值入账, 同一 deposit_id 只入账一次
// 返回 false 表示该充值已处理过
func (l *TokenLedger) CreditExternal(ctx context.Context, dep *model.ExternalDeposit) (bool, error) {
	if dep.DepositID == "" {
		return false, apperrors.ErrInvalidRequest.WithMessage("deposit_id is required")
	}
	if !common.IsHexAddress(dep.Wallet) || !common.IsHexAddress(dep.Token) {
		return false, apperrors.ErrInvalidAddress.WithMessage("deposit wallet and token must be addresses")
	}
	if !dep.Amount.IsPositive() || !model.IsWholeAmount(dep.Amount) {
		return false, apperrors.ErrInvalidAmount.WithMessagef("invalid deposit amount %s", dep.Amount)
	}
	token := common.HexToAddress(dep.Token)
	wallet := common.HexToAddress(dep.Wallet)

	credited := false
	err := l.exec.Execute(ctx, "ledger.credit_external", func(ctx context.Context, op *Op) error {
		exists, err := l.messages.Exists(ctx, model.MessageScopeDeposit, dep.DepositID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := l.messages.Mark(ctx, model.MessageScopeDeposit, dep.DepositID, op.Height); err != nil {
			return err
		}
		if err := l.Credit(ctx, token, wallet, dep.Amount); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !credited {
		metrics.RecordReplayRejected(string(model.MessageScopeDeposit))
		logger.Info("external deposit already credited", zap.String("deposit_id", dep.DepositID))
		return false, nil
	}
	logger.Info("external deposit credited",
		zap.String("deposit_id", dep.DepositID),
		zap.String("wallet", wallet.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", dep.Amount.String()))
	return true, nil
}
