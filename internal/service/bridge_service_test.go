package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

var destination = []byte{0xde, 0xad, 0xbe, 0xef}

func TestBridgeService_Lock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, usdc, alice, 1000)

	tr, err := env.bridge.Lock(ctx, alice, usdc, dec(400), 1, destination)
	require.NoError(t, err)
	assert.Equal(t, model.TransferKindLock, tr.Kind)
	assert.Equal(t, testChainID, tr.SourceChainID)
	assert.Equal(t, "deadbeef", tr.DestinationAddress)
	assert.Equal(t, "600", env.balance(t, usdc, alice).String())
	assert.Equal(t, "400", env.balance(t, usdc, bridgeCustody).String())

	got, err := env.bridge.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", got.Status())

	var msg model.OutboxMessage
	require.NoError(t, env.db.Where("event_type = ?", string(model.EventLocked)).First(&msg).Error)
	assert.Equal(t, model.TopicBridgeEvents, msg.Topic)
	assert.Equal(t, tr.TransferID, msg.PartitionKey)

	_, err = env.bridge.Lock(ctx, alice, usdc, dec(1), testChainID, destination)
	assert.True(t, apperrors.Is(err, apperrors.ErrSameChainTransfer))

	_, err = env.bridge.Lock(ctx, alice, wrappedToken, dec(1), 1, destination)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedToken))

	_, err = env.bridge.Lock(ctx, alice, usdc, dec(601), 1, destination)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))
	assert.Equal(t, "600", env.balance(t, usdc, alice).String())

	history, err := env.bridge.History(ctx, alice, &repository.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBridgeService_MintReplayRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.bridge.Mint(ctx, operatorAddr, bob, dec(250), 1, "0xsrc", "msg-1"))
	assert.Equal(t, "250", env.balance(t, wrappedToken, bob).String())
	before := env.outboxCount(t)

	err := env.bridge.Mint(ctx, operatorAddr, bob, dec(250), 1, "0xsrc", "msg-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrMessageProcessed))
	assert.Equal(t, "250", env.balance(t, wrappedToken, bob).String())
	assert.Equal(t, before, env.outboxCount(t))

	asset, err := env.issuer.Asset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "250", asset.TotalSupply.String())

	err = env.bridge.Mint(ctx, alice, bob, dec(1), 1, "0xsrc", "msg-2")
	assert.True(t, apperrors.IsForbidden(err))

	err = env.bridge.Mint(ctx, operatorAddr, bob, dec(1), 1, "0xsrc", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestBridgeService_Burn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.bridge.Mint(ctx, operatorAddr, bob, dec(250), 1, "0xsrc", "msg-1"))

	tr, err := env.bridge.Burn(ctx, bob, dec(100), 1, destination)
	require.NoError(t, err)
	assert.Equal(t, model.AddressKey(wrappedToken), tr.Token)
	assert.Equal(t, "150", env.balance(t, wrappedToken, bob).String())

	_, err = env.bridge.Burn(ctx, bob, dec(151), 1, destination)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))

	health, err := env.bridge.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "150", health.WrappedSupply.String())
	assert.Equal(t, operatorAddr.Hex(), health.Operator)
	assert.Equal(t, "wormhole", health.Protocol)
}

func TestBridgeService_ReleaseInsufficientCustodyIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, usdc, alice, 400)
	_, err := env.bridge.Lock(ctx, alice, usdc, dec(400), 1, destination)
	require.NoError(t, err)

	err = env.bridge.Release(ctx, operatorAddr, usdc, bob, dec(500), 1, "0xsrc", "msg-r")
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientCustody))
	assert.True(t, env.balance(t, usdc, bob).IsZero())
	assert.Equal(t, "400", env.balance(t, usdc, bridgeCustody).String())

	// 回滚后消息未被标记, 同一 messageID 仍可使用
	require.NoError(t, env.bridge.Release(ctx, operatorAddr, usdc, bob, dec(300), 1, "0xsrc", "msg-r"))
	assert.Equal(t, "300", env.balance(t, usdc, bob).String())

	err = env.bridge.Release(ctx, operatorAddr, usdc, bob, dec(100), 1, "0xsrc", "msg-r")
	assert.True(t, apperrors.Is(err, apperrors.ErrMessageProcessed))
	assert.Equal(t, "100", env.balance(t, usdc, bridgeCustody).String())
}

func TestBridgeService_CompleteTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, usdc, alice, 100)
	tr, err := env.bridge.Lock(ctx, alice, usdc, dec(100), 42161, destination)
	require.NoError(t, err)

	err = env.bridge.CompleteTransfer(ctx, alice, tr.TransferID, "msg-c", true)
	assert.True(t, apperrors.IsForbidden(err))

	require.NoError(t, env.bridge.CompleteTransfer(ctx, operatorAddr, tr.TransferID, "msg-c", false))
	got, err := env.bridge.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.Equal(t, "FAILED", got.Status())

	err = env.bridge.CompleteTransfer(ctx, operatorAddr, tr.TransferID, "msg-c2", true)
	assert.True(t, apperrors.Is(err, apperrors.ErrTransferCompleted))

	err = env.bridge.CompleteTransfer(ctx, operatorAddr, "0x01", "msg-c3", true)
	assert.True(t, apperrors.Is(err, apperrors.ErrTransferNotFound))
}

func TestBridgeService_ValidateAndQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, usdc, alice, 100)

	req := &TransferRequest{Kind: model.TransferKindLock, Caller: alice, Token: usdc, Amount: dec(100), DestinationChainID: 1}
	assert.NoError(t, env.bridge.ValidateTransfer(ctx, req))

	req.Amount = dec(101)
	assert.True(t, apperrors.Is(env.bridge.ValidateTransfer(ctx, req), apperrors.ErrInsufficientBalance))

	req.Amount = dec(10)
	req.DestinationChainID = 999
	assert.True(t, apperrors.Is(env.bridge.ValidateTransfer(ctx, req), apperrors.ErrInvalidRequest))

	quote, err := env.bridge.QuoteFee(ctx, testChainID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), quote.SettlementFeeBps)
	assert.Equal(t, "wormhole", quote.Protocol)

	_, err = env.bridge.QuoteFee(ctx, 1, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrSameChainTransfer))
}

func TestBridgeService_OwnerSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.True(t, apperrors.IsForbidden(env.bridge.SetProtocol(ctx, operatorAddr, "axelar")))
	assert.True(t, apperrors.Is(env.bridge.SetProtocol(ctx, ownerAddr, "carrier-pigeon"), apperrors.ErrInvalidRequest))
	require.NoError(t, env.bridge.SetProtocol(ctx, ownerAddr, "axelar"))
	protocol, err := env.bridge.Protocol(ctx)
	require.NoError(t, err)
	assert.Equal(t, "axelar", protocol)

	require.NoError(t, env.bridge.SetTokenSupported(ctx, ownerAddr, usdc, false))
	env.fund(t, usdc, alice, 10)
	_, err = env.bridge.Lock(ctx, alice, usdc, dec(10), 1, destination)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedToken))

	require.NoError(t, env.bridge.SetOperator(ctx, ownerAddr, bob))
	assert.True(t, apperrors.IsForbidden(env.bridge.Mint(ctx, operatorAddr, alice, dec(1), 1, "0x", "m-old")))
	require.NoError(t, env.bridge.Mint(ctx, bob, alice, dec(1), 1, "0x", "m-new"))
}
