package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
)

const (
	defaultTopYields = 10
	maxTopYields     = 100
	defaultTrendDays = 30
	maxTrendDays     = 365
)

// DailyYield 单日收益汇总
type DailyYield struct {
	Date       string          `json:"date"`        // UTC 日期 YYYY-MM-DD
	AverageAPY decimal.Decimal `json:"average_apy"` // 当日快照加权收益率的算术平均 (向下取整)
	TotalValue decimal.Decimal `json:"total_value"` // 当日最后一条快照的托管总值
	Snapshots  int             `json:"snapshots"`
}

// UserAnalytics 用户存款汇总
type UserAnalytics struct {
	User           string          `json:"user"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalFeesPaid  decimal.Decimal `json:"total_fees_paid"`
	CurrentTVL     decimal.Decimal `json:"current_tvl"`
	DepositCount   int             `json:"deposit_count"`
	ActiveDeposits int             `json:"active_deposits"`
	StrategyCount  int             `json:"strategy_count"` // 仍有激活存款的策略数
}

// SystemAnalytics 系统汇总
type SystemAnalytics struct {
	TotalStrategies    int             `json:"total_strategies"`
	ActiveStrategies   int             `json:"active_strategies"`
	WeightedStrategies int             `json:"weighted_strategies"`
	TotalValueLocked   decimal.Decimal `json:"total_value_locked"`
	TotalDeposited     decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn     decimal.Decimal `json:"total_withdrawn"`
	UserCount          int64           `json:"user_count"`
	DepositCount       int64           `json:"deposit_count"`
	AverageAPY         decimal.Decimal `json:"average_apy"`        // 最近一次快照
	SnapshotTimestamp  int64           `json:"snapshot_timestamp"` // 无快照时为 0
	Paused             bool            `json:"paused"`
}

// AnalyticsService 只读分析视图, 不经过执行器
type AnalyticsService struct {
	calc *YieldCalculator
	agg  *YieldAggregator
}

// NewAnalyticsService 创建分析服务
func NewAnalyticsService(calc *YieldCalculator, agg *YieldAggregator) *AnalyticsService {
	return &AnalyticsService{calc: calc, agg: agg}
}

// TopYields 收益率为正的激活策略, 按当前收益率降序, 同率保持注册表顺序
func (s *AnalyticsService) TopYields(ctx context.Context, limit int) ([]model.StrategyYield, error) {
	if limit <= 0 {
		limit = defaultTopYields
	}
	limit = min(limit, maxTopYields)

	items, err := s.calc.collect(ctx, true, true, false)
	if err != nil {
		return nil, err
	}
	ranked := make([]model.StrategyYield, 0, len(items))
	for _, it := range items {
		if it.Rate.IsPositive() {
			ranked = append(ranked, it)
		}
	}
	slices.SortStableFunc(ranked, func(a, b model.StrategyYield) int {
		return b.Rate.Cmp(a.Rate)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// YieldTrends 最近 days 天的收益快照按 UTC 日期聚合
func (s *AnalyticsService) YieldTrends(ctx context.Context, days int) ([]DailyYield, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	days = min(days, maxTrendDays)

	since := s.calc.exec.Clock().Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	list, err := s.calc.snapshots.ListSince(ctx, since)
	if err != nil {
		return nil, translate(err)
	}

	out := make([]DailyYield, 0)
	var sums []decimal.Decimal
	for _, snap := range list {
		date := time.UnixMilli(snap.Timestamp).UTC().Format(time.DateOnly)
		if len(out) == 0 || out[len(out)-1].Date != date {
			out = append(out, DailyYield{Date: date})
			sums = append(sums, decimal.Zero)
		}
		i := len(out) - 1
		sums[i] = sums[i].Add(snap.AverageAPY)
		out[i].Snapshots++
		out[i].TotalValue = snap.TotalValue
	}
	for i := range out {
		out[i].AverageAPY, _ = sums[i].QuoRem(decimal.NewFromInt(int64(out[i].Snapshots)), 0)
	}
	return out, nil
}

// UserAnalytics 用户全部存款的本金、取款、手续费与当前余额
func (s *AnalyticsService) UserAnalytics(ctx context.Context, user common.Address) (*UserAnalytics, error) {
	deposits, err := s.agg.deposits.ListByUser(ctx, model.AddressKey(user))
	if err != nil {
		return nil, translate(err)
	}
	ua := &UserAnalytics{
		User:           model.AddressKey(user),
		TotalDeposited: decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		TotalFeesPaid:  decimal.Zero,
		CurrentTVL:     decimal.Zero,
		DepositCount:   len(deposits),
	}
	strategies := make(map[int64]struct{})
	for _, d := range deposits {
		ua.TotalDeposited = ua.TotalDeposited.Add(d.Principal)
		ua.TotalWithdrawn = ua.TotalWithdrawn.Add(d.Principal.Sub(d.Amount))
		ua.TotalFeesPaid = ua.TotalFeesPaid.Add(d.FeesPaid)
		if d.IsActive {
			ua.CurrentTVL = ua.CurrentTVL.Add(d.Amount)
			ua.ActiveDeposits++
			strategies[d.StrategyID] = struct{}{}
		}
	}
	ua.StrategyCount = len(strategies)
	return ua, nil
}

// SystemAnalytics 策略目录、托管总量、用户规模与最近一次收益快照
func (s *AnalyticsService) SystemAnalytics(ctx context.Context) (*SystemAnalytics, error) {
	st, err := s.agg.settings.Get(ctx, model.ComponentAggregator, nil)
	if err != nil {
		return nil, translate(err)
	}
	catalog, err := s.agg.strategies.List(ctx, false)
	if err != nil {
		return nil, translate(err)
	}
	weights, err := s.calc.weights.ListActive(ctx)
	if err != nil {
		return nil, translate(err)
	}
	users, deposits, err := s.agg.deposits.Counts(ctx)
	if err != nil {
		return nil, translate(err)
	}

	sa := &SystemAnalytics{
		TotalStrategies:    len(catalog),
		WeightedStrategies: len(weights),
		TotalValueLocked:   st.TotalValueLocked,
		TotalDeposited:     decimal.Zero,
		TotalWithdrawn:     decimal.Zero,
		UserCount:          users,
		DepositCount:       deposits,
		AverageAPY:         decimal.Zero,
		Paused:             st.Paused,
	}
	for _, strategy := range catalog {
		if strategy.IsActive {
			sa.ActiveStrategies++
		}
		sa.TotalDeposited = sa.TotalDeposited.Add(strategy.TotalDeposited)
		sa.TotalWithdrawn = sa.TotalWithdrawn.Add(strategy.TotalWithdrawn)
	}

	latest, err := s.calc.snapshots.Latest(ctx)
	switch {
	case errors.Is(err, repository.ErrSnapshotNotFound):
	case err != nil:
		return nil, translate(err)
	default:
		sa.AverageAPY = latest.AverageAPY
		sa.SnapshotTimestamp = latest.Timestamp
	}
	return sa, nil
}
