package service

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

func initiate(t *testing.T, env *testEnv, amount int64) *model.Settlement {
	t.Helper()
	env.fund(t, usdc, alice, amount)
	st, err := env.settle.InitiateSettlement(context.Background(), alice, usdc, dec(amount), dec(50))
	require.NoError(t, err)
	return st
}

func status(t *testing.T, env *testEnv, id int64) model.SettlementStatus {
	t.Helper()
	st, err := env.settle.GetSettlement(context.Background(), id)
	require.NoError(t, err)
	return st.Status
}

func TestSettlementService_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := initiate(t, env, 1000)
	assert.Equal(t, model.SettlementStatusPending, st.Status)
	assert.Equal(t, "1000", env.balance(t, usdc, settlementCustody).String())

	err := env.settle.ProcessSettlement(ctx, alice, st.ID, "0xext", "solana")
	assert.True(t, apperrors.IsForbidden(err))

	err = env.settle.ProcessSettlement(ctx, validatorAddr, st.ID, "0xext", "bitcoin")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedNetwork))

	require.NoError(t, env.settle.ProcessSettlement(ctx, validatorAddr, st.ID, "0xext", "solana"))
	assert.Equal(t, model.SettlementStatusProcessing, status(t, env, st.ID))

	done, err := env.settle.CompleteSettlement(ctx, validatorAddr, st.ID, dec(1000))
	require.NoError(t, err)
	assert.Equal(t, "3", done.Fee.String())
	assert.Equal(t, "997", env.balance(t, usdc, alice).String())
	assert.Equal(t, "3", env.balance(t, usdc, settlementCustody).String())

	stats, err := env.settle.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSettlements)
	assert.Equal(t, int64(0), stats.ActiveSettlements)
	assert.Equal(t, "997", stats.TotalSettled.String())
	assert.Equal(t, "50", stats.TotalSettledYield.String())
	assert.Equal(t, "3", stats.TotalFees.String())
}

// 每个状态只允许规定的迁移
func TestSettlementService_LifecycleClosure(t *testing.T) {
	ctx := context.Background()

	type action struct {
		name string
		run  func(env *testEnv, id int64) error
	}
	actions := []action{
		{"process", func(env *testEnv, id int64) error {
			return env.settle.ProcessSettlement(ctx, validatorAddr, id, "0xext", "solana")
		}},
		{"complete", func(env *testEnv, id int64) error {
			_, err := env.settle.CompleteSettlement(ctx, validatorAddr, id, dec(100))
			return err
		}},
		{"fail", func(env *testEnv, id int64) error {
			return env.settle.FailSettlement(ctx, validatorAddr, id, "rejected")
		}},
		{"cancel", func(env *testEnv, id int64) error {
			return env.settle.CancelSettlement(ctx, alice, id)
		}},
	}

	allowed := map[model.SettlementStatus]map[string]bool{
		model.SettlementStatusPending:    {"process": true, "cancel": true},
		model.SettlementStatusProcessing: {"complete": true, "fail": true},
		model.SettlementStatusCompleted:  {},
		model.SettlementStatusFailed:     {},
		model.SettlementStatusCancelled:  {},
	}
	reach := map[model.SettlementStatus][]string{
		model.SettlementStatusPending:    nil,
		model.SettlementStatusProcessing: {"process"},
		model.SettlementStatusCompleted:  {"process", "complete"},
		model.SettlementStatusFailed:     {"process", "fail"},
		model.SettlementStatusCancelled:  {"cancel"},
	}
	byName := make(map[string]action, len(actions))
	for _, a := range actions {
		byName[a.name] = a
	}

	for from, path := range reach {
		for _, a := range actions {
			t.Run(from.String()+"/"+a.name, func(t *testing.T) {
				env := newTestEnv(t)
				st := initiate(t, env, 100)
				for _, step := range path {
					require.NoError(t, byName[step].run(env, st.ID))
				}
				require.Equal(t, from, status(t, env, st.ID))

				err := a.run(env, st.ID)
				if allowed[from][a.name] {
					assert.NoError(t, err)
					return
				}
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidStatus), "got %v", err)
				assert.Equal(t, from, status(t, env, st.ID))
			})
		}
	}
}

func TestSettlementService_InsufficientCustody(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := initiate(t, env, 1000)
	require.NoError(t, env.settle.ProcessSettlement(ctx, validatorAddr, st.ID, "0xext", "solana"))
	before := env.outboxCount(t)

	_, err := env.settle.CompleteSettlement(ctx, validatorAddr, st.ID, dec(1500))
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientCustody))
	assert.Equal(t, model.SettlementStatusProcessing, status(t, env, st.ID))
	assert.True(t, env.balance(t, usdc, alice).IsZero())
	assert.Equal(t, "1000", env.balance(t, usdc, settlementCustody).String())
	assert.Equal(t, before, env.outboxCount(t))

	env.fund(t, usdc, validatorAddr, 500)
	require.NoError(t, env.settle.Fund(ctx, validatorAddr, usdc, dec(500)))

	done, err := env.settle.CompleteSettlement(ctx, validatorAddr, st.ID, dec(1500))
	require.NoError(t, err)
	assert.Equal(t, "4", done.Fee.String())
	assert.Equal(t, "1496", env.balance(t, usdc, alice).String())
}

func TestSettlementService_CancelAndFailRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	st := initiate(t, env, 200)
	assert.True(t, apperrors.IsForbidden(env.settle.CancelSettlement(ctx, bob, st.ID)))
	require.NoError(t, env.settle.CancelSettlement(ctx, alice, st.ID))
	assert.Equal(t, "200", env.balance(t, usdc, alice).String())

	st2, err := env.settle.InitiateSettlement(ctx, alice, usdc, dec(200), dec(0))
	require.NoError(t, err)
	require.NoError(t, env.settle.ProcessSettlement(ctx, validatorAddr, st2.ID, "0xext", "solana"))
	require.NoError(t, env.settle.FailSettlement(ctx, validatorAddr, st2.ID, strings.Repeat("x", 600)))
	assert.Equal(t, "200", env.balance(t, usdc, alice).String())

	failed, err := env.settle.GetSettlement(ctx, st2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusFailed, failed.Status)
	assert.Len(t, failed.FailReason, 500)

	_, err = env.settle.GetSettlement(ctx, 999)
	assert.True(t, apperrors.Is(err, apperrors.ErrSettlementNotFound))
}

func TestSettlementService_Limits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, usdc, alice, 2000000)

	_, err := env.settle.InitiateSettlement(ctx, alice, usdc, dec(1000001), dec(0))
	assert.True(t, apperrors.Is(err, apperrors.ErrExceedLimit))

	_, err = env.settle.InitiateSettlement(ctx, alice, usdc, dec(0), dec(0))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	assert.True(t, apperrors.Is(env.settle.SetFeeRate(ctx, ownerAddr, 1001), apperrors.ErrFeeRateTooHigh))
	assert.True(t, apperrors.IsForbidden(env.settle.SetFeeRate(ctx, alice, 10)))
	require.NoError(t, env.settle.SetFeeRate(ctx, ownerAddr, 100))
	require.NoError(t, env.settle.SetMaxSettlementAmount(ctx, ownerAddr, dec(5000000)))

	cfg, err := env.settle.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.FeeRateBps)

	_, err = env.settle.InitiateSettlement(ctx, alice, usdc, dec(1000001), dec(0))
	require.NoError(t, err)

	require.NoError(t, env.settle.SetNetworkSupported(ctx, ownerAddr, "bitcoin", true))
	list, err := env.settle.ListByUser(ctx, alice, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, env.settle.ProcessSettlement(ctx, validatorAddr, list[0].ID, "0xbtc", "bitcoin"))
}

func TestSettlementService_UpdateConfigAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fee := int64(900)
	fractional := decimal.RequireFromString("1.5")
	_, err := env.settle.UpdateConfig(ctx, ownerAddr, &SettlementConfigPatch{
		FeeRateBps:          &fee,
		MaxSettlementAmount: &fractional,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	zero := common.Address{}
	_, err = env.settle.UpdateConfig(ctx, ownerAddr, &SettlementConfigPatch{FeeRateBps: &fee, Validator: &zero})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAddress))

	_, err = env.settle.UpdateConfig(ctx, alice, &SettlementConfigPatch{FeeRateBps: &fee, Network: "bitcoin", NetworkEnabled: true})
	assert.True(t, apperrors.IsForbidden(err))

	cfg, err := env.settle.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), cfg.FeeRateBps)
	assert.Equal(t, "1000000", cfg.MaxAmount.String())

	st := initiate(t, env, 1000)
	err = env.settle.ProcessSettlement(ctx, validatorAddr, st.ID, "0xbtc", "bitcoin")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedNetwork))

	maxAmount := dec(2000000)
	updated, err := env.settle.UpdateConfig(ctx, ownerAddr, &SettlementConfigPatch{
		FeeRateBps:          &fee,
		MaxSettlementAmount: &maxAmount,
		Validator:           &bob,
		Network:             "bitcoin",
		NetworkEnabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), updated.FeeRateBps)
	assert.Equal(t, "2000000", updated.MaxAmount.String())

	assert.True(t, apperrors.IsForbidden(env.settle.ProcessSettlement(ctx, validatorAddr, st.ID, "0xbtc", "bitcoin")))
	require.NoError(t, env.settle.ProcessSettlement(ctx, bob, st.ID, "0xbtc", "bitcoin"))
}
