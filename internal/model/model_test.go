package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementStatus_String(t *testing.T) {
	tests := []struct {
		status   SettlementStatus
		expected string
	}{
		{SettlementStatusPending, "PENDING"},
		{SettlementStatusProcessing, "PROCESSING"},
		{SettlementStatusCompleted, "COMPLETED"},
		{SettlementStatusFailed, "FAILED"},
		{SettlementStatusCancelled, "CANCELLED"},
		{SettlementStatus(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestSettlementStatus_Transitions(t *testing.T) {
	all := []SettlementStatus{
		SettlementStatusPending, SettlementStatusProcessing, SettlementStatusCompleted,
		SettlementStatusFailed, SettlementStatusCancelled,
	}
	legal := map[[2]SettlementStatus]bool{
		{SettlementStatusPending, SettlementStatusProcessing}:   true,
		{SettlementStatusPending, SettlementStatusCancelled}:    true,
		{SettlementStatusProcessing, SettlementStatusCompleted}: true,
		{SettlementStatusProcessing, SettlementStatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]SettlementStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
		assert.Equal(t, from.IsTerminal(), !from.IsActive(), from.String())
	}
}

func TestCrossChainTransfer_Status(t *testing.T) {
	tr := &CrossChainTransfer{Domain: TransferDomainBridge}
	assert.Equal(t, "PENDING", tr.Status())
	tr.IsCompleted = true
	assert.Equal(t, "FAILED", tr.Status())
	tr.Success = true
	assert.Equal(t, "COMPLETED", tr.Status())

	agg := &CrossChainTransfer{Domain: TransferDomainAggregator, IsCompleted: true}
	assert.Equal(t, "COMPLETED", agg.Status())
}

func TestYieldSnapshot_Strategies(t *testing.T) {
	snap := &YieldSnapshot{TotalValue: decimal.NewFromInt(10), Timestamp: 5}
	items := []StrategyYield{
		{StrategyRef: "0xa", Weight: 3000, Rate: decimal.NewFromInt(500), Value: decimal.NewFromInt(7), Yield: decimal.NewFromInt(1)},
	}
	require.NoError(t, snap.SetStrategies(items))

	data, err := snap.ToData()
	require.NoError(t, err)
	require.Len(t, data.Strategies, 1)
	assert.Equal(t, "0xa", data.Strategies[0].StrategyRef)
	assert.True(t, data.Strategies[0].Rate.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, int64(5), data.Timestamp)

	empty := &YieldSnapshot{}
	require.NoError(t, empty.SetStrategies(nil))
	assert.Equal(t, "[]", empty.Strategies)

	broken := &YieldSnapshot{Strategies: "{"}
	_, err = broken.ToData()
	assert.Error(t, err)
}

func TestIsWholeAmount(t *testing.T) {
	assert.True(t, IsWholeAmount(decimal.Zero))
	assert.True(t, IsWholeAmount(decimal.RequireFromString("1000000000000000000000")))
	assert.False(t, IsWholeAmount(decimal.RequireFromString("1.5")))
	assert.False(t, IsWholeAmount(decimal.NewFromInt(-1)))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleKeeper.Valid())
	assert.False(t, Role("admin").Valid())
}

func TestAddressKey(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assert.Equal(t, a.Hex(), AddressKey(a))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "yield_settlements", Settlement{}.TableName())
	assert.Equal(t, "yield_cross_chain_transfers", CrossChainTransfer{}.TableName())
	assert.Equal(t, "yield_outbox_messages", OutboxMessage{}.TableName())
	assert.Equal(t, "yield_strategy_weights", StrategyWeight{}.TableName())
}
