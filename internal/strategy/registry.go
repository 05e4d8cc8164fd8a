package strategy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/circuitbreaker"
)

// 数据源类型
const (
	SourceTypeStatic  = "static"
	SourceTypeOnChain = "onchain"
)

// Registry 策略地址到数据源的映射
//
// 未显式登记的策略在配置了链上调用时按合约查询, 否则所有查询失败 (按零计入).
type Registry struct {
	mu       sync.RWMutex
	sources  map[common.Address]YieldSource
	breakers *circuitbreaker.Registry
	caller   bind.ContractCaller
	timeout  time.Duration
}

// NewRegistry 创建数据源映射, caller 为空时不做链上查询
func NewRegistry(breakers *circuitbreaker.Registry, caller bind.ContractCaller, timeout time.Duration) *Registry {
	return &Registry{
		sources:  make(map[common.Address]YieldSource),
		breakers: breakers,
		caller:   caller,
		timeout:  timeout,
	}
}

// Register 登记数据源, 覆盖已有登记
func (r *Registry) Register(ref common.Address, source YieldSource) {
	r.mu.Lock()
	r.sources[ref] = source
	r.mu.Unlock()
}

// Load 按配置登记数据源
func (r *Registry) Load(entries []config.StrategySourceEntry) error {
	for _, e := range entries {
		if !common.IsHexAddress(e.Ref) {
			return fmt.Errorf("strategy source %q: invalid address", e.Ref)
		}
		ref := common.HexToAddress(e.Ref)
		switch strings.ToLower(e.Type) {
		case SourceTypeStatic, "":
			rate, err := parseAmount(e.Rate)
			if err != nil {
				return fmt.Errorf("strategy source %s rate: %w", e.Ref, err)
			}
			value, err := parseAmount(e.TotalValue)
			if err != nil {
				return fmt.Errorf("strategy source %s total_value: %w", e.Ref, err)
			}
			accumulated, err := parseAmount(e.AccumulatedYield)
			if err != nil {
				return fmt.Errorf("strategy source %s accumulated_yield: %w", e.Ref, err)
			}
			r.Register(ref, NewStaticSource(rate, value, accumulated))
		case SourceTypeOnChain:
			if r.caller == nil {
				return fmt.Errorf("strategy source %s: on-chain source needs blockchain.rpc_url", e.Ref)
			}
			src, err := NewOnChainSource(ref, r.caller, r.timeout)
			if err != nil {
				return err
			}
			r.Register(ref, src)
		default:
			return fmt.Errorf("strategy source %s: unknown type %q", e.Ref, e.Type)
		}
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (r *Registry) lookup(ref common.Address) YieldSource {
	r.mu.RLock()
	src, ok := r.sources[ref]
	r.mu.RUnlock()
	if ok {
		return src
	}
	if r.caller == nil {
		return missingSource{}
	}
	onchain, err := NewOnChainSource(ref, r.caller, r.timeout)
	if err != nil {
		return missingSource{}
	}
	r.Register(ref, onchain)
	return onchain
}

// Source 返回带失败隔离的数据源
func (r *Registry) Source(ref common.Address) *SafeSource {
	var breaker *circuitbreaker.Breaker
	if r.breakers != nil {
		breaker = r.breakers.Get("strategy:" + ref.Hex())
	}
	return NewSafeSource(ref.Hex(), r.lookup(ref), breaker)
}
