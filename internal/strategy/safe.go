package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/circuitbreaker"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// SafeSource 失败隔离包装: 错误、panic、熔断时返回零
type SafeSource struct {
	ref     string
	source  YieldSource
	breaker *circuitbreaker.Breaker
}

// NewSafeSource 创建失败隔离包装, breaker 可为空
func NewSafeSource(ref string, source YieldSource, breaker *circuitbreaker.Breaker) *SafeSource {
	return &SafeSource{ref: ref, source: source, breaker: breaker}
}

// Ref 策略标识
func (s *SafeSource) Ref() string {
	return s.ref
}

func (s *SafeSource) query(ctx context.Context, method string, fn func(context.Context) (decimal.Decimal, error)) (value decimal.Decimal, ok bool) {
	var err error
	admitted := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			value, ok = decimal.Zero, false
			if s.breaker != nil && admitted {
				s.breaker.Record(err)
			}
			metrics.RecordStrategyQueryFailure(s.ref, method)
			logger.Warn("strategy query failed, counted as zero",
				zap.String("strategy", s.ref),
				zap.String("method", method),
				zap.Error(err))
		}
	}()

	if s.breaker != nil {
		if err = s.breaker.Allow(); err != nil {
			return decimal.Zero, false
		}
	}
	admitted = true
	value, err = fn(ctx)
	if err != nil {
		return decimal.Zero, false
	}
	if value.IsNegative() {
		err = fmt.Errorf("negative %s %s", method, value)
		return decimal.Zero, false
	}
	if s.breaker != nil {
		s.breaker.Record(nil)
	}
	return value, true
}

// Rate 当前收益率, 失败时为零
func (s *SafeSource) Rate(ctx context.Context) decimal.Decimal {
	v, _ := s.query(ctx, "rate", s.source.Rate)
	return v
}

// TotalValue 托管总值, 失败时为零
func (s *SafeSource) TotalValue(ctx context.Context) decimal.Decimal {
	v, _ := s.query(ctx, "total_value", s.source.TotalValue)
	return v
}

// AccumulatedYield 累计收益, 失败时为零
func (s *SafeSource) AccumulatedYield(ctx context.Context) decimal.Decimal {
	v, _ := s.query(ctx, "accumulated_yield", s.source.AccumulatedYield)
	return v
}
