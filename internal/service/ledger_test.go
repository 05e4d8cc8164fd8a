package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

func TestTokenLedger_CreditExternalIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dep := &model.ExternalDeposit{
		DepositID: "0xabc-3",
		Wallet:    alice.Hex(),
		Token:     usdc.Hex(),
		Amount:    dec(750),
		TxHash:    "0xabc",
		LogIndex:  3,
	}
	credited, err := env.ledger.CreditExternal(ctx, dep)
	require.NoError(t, err)
	assert.True(t, credited)

	credited, err = env.ledger.CreditExternal(ctx, dep)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.Equal(t, "750", env.balance(t, usdc, alice).String())

	_, err = env.ledger.CreditExternal(ctx, &model.ExternalDeposit{DepositID: "x", Wallet: "nope", Token: usdc.Hex(), Amount: dec(1)})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAddress))

	_, err = env.ledger.CreditExternal(ctx, &model.ExternalDeposit{DepositID: "y", Wallet: alice.Hex(), Token: usdc.Hex(), Amount: dec(0)})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))
}

func TestTokenLedger_TransferAndPayout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, usdc, alice, 100)

	require.NoError(t, env.ledger.Transfer(ctx, usdc, alice, bob, dec(60)))
	assert.Equal(t, "40", env.balance(t, usdc, alice).String())
	assert.Equal(t, "60", env.balance(t, usdc, bob).String())

	err := env.ledger.Transfer(ctx, usdc, alice, bob, dec(41))
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))

	err = env.ledger.Payout(ctx, usdc, bridgeCustody, bob, dec(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientCustody))

	// 零金额和自转账不产生记录
	require.NoError(t, env.ledger.Transfer(ctx, usdc, alice, alice, dec(40)))
	require.NoError(t, env.ledger.Transfer(ctx, usdc, bridgeCustody, bob, dec(0)))

	list, err := env.ledger.Balances(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.AddressKey(usdc), list[0].Token)
}

func TestExecutor_RollbackAndOutbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var heights []int64
	for i := 0; i < 2; i++ {
		err := env.exec.Execute(ctx, "test.emit", func(ctx context.Context, op *Op) error {
			heights = append(heights, op.Height)
			op.Emit(model.EventDeposit, "k", &model.DepositEvent{User: alice.Hex(), Amount: dec(1)})
			return env.ledger.Credit(ctx, usdc, alice, dec(5))
		})
		require.NoError(t, err)
	}
	require.Len(t, heights, 2)
	assert.Equal(t, heights[0]+1, heights[1])

	before := env.outboxCount(t)
	err := env.exec.Execute(ctx, "test.fail", func(ctx context.Context, op *Op) error {
		op.Emit(model.EventDeposit, "k", nil)
		if err := env.ledger.Credit(ctx, usdc, alice, dec(100)); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, apperrors.KindInternal, apperrors.GetKind(err))
	assert.Equal(t, before, env.outboxCount(t))
	assert.Equal(t, "10", env.balance(t, usdc, alice).String())

	// 失败的操作不消耗高度
	err = env.exec.Execute(ctx, "test.next", func(ctx context.Context, op *Op) error {
		assert.Equal(t, heights[1]+1, op.Height)
		return nil
	})
	require.NoError(t, err)

	var msg model.OutboxMessage
	require.NoError(t, env.db.Where("topic = ?", model.TopicAggregatorEvents).Order("id ASC").First(&msg).Error)
	var envelope struct {
		EventType string `json:"event_type"`
		Height    int64  `json:"height"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, msg.GetPayload(&envelope))
	assert.Equal(t, string(model.EventDeposit), envelope.EventType)
	assert.Equal(t, heights[0], envelope.Height)
	assert.Equal(t, testStart.UnixMilli(), envelope.Timestamp)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
}

func TestRoleService_GrantRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.roles.GrantRole(ctx, alice, model.ComponentCalculator, model.RoleKeeper, bob)
	assert.True(t, apperrors.IsForbidden(err))

	err = env.roles.GrantRole(ctx, ownerAddr, model.Component("oracle"), model.RoleKeeper, bob)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	require.NoError(t, env.roles.GrantRole(ctx, ownerAddr, model.ComponentCalculator, model.RoleKeeper, bob))
	_, err = env.calc.UpdateYieldHistory(ctx, bob)
	require.NoError(t, err)
	_, err = env.calc.UpdateYieldHistory(ctx, keeperAddr)
	assert.True(t, apperrors.IsForbidden(err))
}
