package strategy

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/circuitbreaker"
)

type failingSource struct{ calls int }

func (f *failingSource) Rate(context.Context) (decimal.Decimal, error) {
	f.calls++
	return decimal.Zero, errors.New("execution reverted")
}

func (f *failingSource) TotalValue(context.Context) (decimal.Decimal, error) {
	f.calls++
	return decimal.Zero, errors.New("execution reverted")
}

func (f *failingSource) AccumulatedYield(context.Context) (decimal.Decimal, error) {
	f.calls++
	return decimal.Zero, errors.New("execution reverted")
}

type panickingSource struct{}

func (panickingSource) Rate(context.Context) (decimal.Decimal, error) { panic("boom") }

func (panickingSource) TotalValue(context.Context) (decimal.Decimal, error) { panic("boom") }

func (panickingSource) AccumulatedYield(context.Context) (decimal.Decimal, error) { panic("boom") }

// fakeCaller 按方法选择器返回预设值
type fakeCaller struct {
	abi     abi.ABI
	results map[string]*big.Int
	err     error
}

func newFakeCaller(t *testing.T, results map[string]*big.Int) *fakeCaller {
	parsed, err := abi.JSON(strings.NewReader(StrategyABI))
	require.NoError(t, err)
	return &fakeCaller{abi: parsed, results: results}
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	v, ok := f.results[method.Name]
	if !ok {
		return nil, nil
	}
	return method.Outputs.Pack(v)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(decimal.NewFromInt(500), decimal.NewFromInt(1000), decimal.NewFromInt(50))
	ctx := context.Background()

	rate, err := src.Rate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "500", rate.String())

	src.Set(decimal.NewFromInt(600), decimal.NewFromInt(2000), decimal.NewFromInt(70))
	value, err := src.TotalValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000", value.String())
	accumulated, err := src.AccumulatedYield(ctx)
	require.NoError(t, err)
	assert.Equal(t, "70", accumulated.String())
}

func TestSafeSource_FailureCountsAsZero(t *testing.T) {
	ctx := context.Background()

	safe := NewSafeSource("s1", &failingSource{}, nil)
	assert.True(t, safe.Rate(ctx).IsZero())
	assert.True(t, safe.TotalValue(ctx).IsZero())
	assert.True(t, safe.AccumulatedYield(ctx).IsZero())

	safe = NewSafeSource("s2", panickingSource{}, nil)
	assert.NotPanics(t, func() {
		assert.True(t, safe.Rate(ctx).IsZero())
	})
}

func TestSafeSource_NegativeValueRejected(t *testing.T) {
	safe := NewSafeSource("s1", NewStaticSource(decimal.NewFromInt(-5), decimal.Zero, decimal.Zero), nil)
	assert.True(t, safe.Rate(context.Background()).IsZero())
}

func TestSafeSource_BreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	breaker := circuitbreaker.New("s1", circuitbreaker.Config{FailureThreshold: 2})
	src := &failingSource{}
	safe := NewSafeSource("s1", src, breaker)

	safe.Rate(ctx)
	safe.Rate(ctx)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	// 熔断后不再调用底层数据源
	safe.Rate(ctx)
	assert.Equal(t, 2, src.calls)
}

func TestOnChainSource(t *testing.T) {
	caller := newFakeCaller(t, map[string]*big.Int{
		"getCurrentYieldRate":       big.NewInt(450),
		"getTotalValue":             big.NewInt(1_000_000),
		"calculateAccumulatedYield": big.NewInt(12_345),
	})
	src, err := NewOnChainSource(common.HexToAddress("0x01"), caller, 0)
	require.NoError(t, err)
	ctx := context.Background()

	rate, err := src.Rate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "450", rate.String())

	value, err := src.TotalValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000000", value.String())

	accumulated, err := src.AccumulatedYield(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12345", accumulated.String())

	caller.err = errors.New("connection refused")
	_, err = src.Rate(ctx)
	assert.Error(t, err)
}

func TestOnChainSource_EmptyResult(t *testing.T) {
	caller := newFakeCaller(t, map[string]*big.Int{})
	src, err := NewOnChainSource(common.HexToAddress("0x01"), caller, 0)
	require.NoError(t, err)

	_, err = src.Rate(context.Background())
	assert.ErrorIs(t, err, errEmptyResult)
}

func TestRegistry_Load(t *testing.T) {
	r := NewRegistry(circuitbreaker.NewRegistry(circuitbreaker.Config{}), nil, 0)
	err := r.Load([]config.StrategySourceEntry{
		{Ref: "0x0000000000000000000000000000000000000011", Type: "static", Rate: "500", TotalValue: "1000", AccumulatedYield: "10"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	known := r.Source(common.HexToAddress("0x0000000000000000000000000000000000000011"))
	assert.Equal(t, "500", known.Rate(ctx).String())
	assert.Equal(t, "1000", known.TotalValue(ctx).String())

	unknown := r.Source(common.HexToAddress("0x0000000000000000000000000000000000000099"))
	assert.True(t, unknown.Rate(ctx).IsZero())
}

func TestRegistry_LoadErrors(t *testing.T) {
	r := NewRegistry(nil, nil, 0)

	err := r.Load([]config.StrategySourceEntry{{Ref: "not-an-address"}})
	assert.Error(t, err)

	err = r.Load([]config.StrategySourceEntry{{Ref: "0x0000000000000000000000000000000000000011", Type: "onchain"}})
	assert.Error(t, err)

	err = r.Load([]config.StrategySourceEntry{{Ref: "0x0000000000000000000000000000000000000011", Type: "oracle"}})
	assert.Error(t, err)

	err = r.Load([]config.StrategySourceEntry{{Ref: "0x0000000000000000000000000000000000000011", Rate: "abc"}})
	assert.Error(t, err)
}

func TestRegistry_OnChainFallback(t *testing.T) {
	caller := newFakeCaller(t, map[string]*big.Int{"getCurrentYieldRate": big.NewInt(300)})
	r := NewRegistry(nil, caller, 0)

	src := r.Source(common.HexToAddress("0x0000000000000000000000000000000000000042"))
	assert.Equal(t, "300", src.Rate(context.Background()).String())
	// 未返回数据的方法按零计入
	assert.True(t, src.TotalValue(context.Background()).IsZero())
}
