package strategy

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// StrategyABI 策略合约统一暴露的只读查询接口
const StrategyABI = `[
	{"type":"function","name":"getCurrentYieldRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTotalValue","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"calculateAccumulatedYield","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var errEmptyResult = errors.New("empty call result")

// OnChainSource 通过 eth_call 查询策略合约
type OnChainSource struct {
	address common.Address
	abi     abi.ABI
	caller  bind.ContractCaller
	timeout time.Duration
}

// NewOnChainSource 创建绑定到 address 处策略合约的数据源
func NewOnChainSource(address common.Address, caller bind.ContractCaller, timeout time.Duration) (*OnChainSource, error) {
	parsed, err := abi.JSON(strings.NewReader(StrategyABI))
	if err != nil {
		return nil, err
	}
	return &OnChainSource{
		address: address,
		abi:     parsed,
		caller:  caller,
		timeout: timeout,
	}, nil
}

// Address 合约地址
func (s *OnChainSource) Address() common.Address {
	return s.address
}

func (s *OnChainSource) call(ctx context.Context, method string) (decimal.Decimal, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	data, err := s.abi.Pack(method)
	if err != nil {
		return decimal.Zero, err
	}
	msg := ethereum.CallMsg{
		To:   &s.address,
		Data: data,
	}
	result, err := s.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if len(result) == 0 {
		return decimal.Zero, errEmptyResult
	}

	var value *big.Int
	if err := s.abi.UnpackIntoInterface(&value, method, result); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(value, 0), nil
}

// Rate 当前收益率 (getCurrentYieldRate)
func (s *OnChainSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	return s.call(ctx, "getCurrentYieldRate")
}

// TotalValue 托管总值 (getTotalValue)
func (s *OnChainSource) TotalValue(ctx context.Context) (decimal.Decimal, error) {
	return s.call(ctx, "getTotalValue")
}

// AccumulatedYield 累计收益 (calculateAccumulatedYield)
func (s *OnChainSource) AccumulatedYield(ctx context.Context) (decimal.Decimal, error) {
	return s.call(ctx, "calculateAccumulatedYield")
}
