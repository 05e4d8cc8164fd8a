package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/auth"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/strategy"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// SourceResolver 按策略地址解析数据源
type SourceResolver interface {
	Source(ref common.Address) *strategy.SafeSource
}

// Allocation 单个策略的建议分配额
type Allocation struct {
	StrategyRef string          `json:"strategy_ref"`
	Weight      int64           `json:"weight"`
	Amount      decimal.Decimal `json:"amount"`
}

// WeightRegistry 权重注册表视图
type WeightRegistry struct {
	TotalWeight int64                   `json:"total_weight"`
	Strategies  []*model.StrategyWeight `json:"strategies"`
}

// YieldCalculator 加权策略篮子与收益汇总
type YieldCalculator struct {
	exec      *Executor
	authz     *auth.Authorizer
	weights   repository.WeightRepository
	snapshots repository.SnapshotRepository
	settings  repository.SettingsRepository
	sources   SourceResolver

	enforceCapOnUpdate bool
}

// NewYieldCalculator 创建收益计算器
func NewYieldCalculator(
	exec *Executor,
	authz *auth.Authorizer,
	weights repository.WeightRepository,
	snapshots repository.SnapshotRepository,
	settings repository.SettingsRepository,
	sources SourceResolver,
	enforceCapOnUpdate bool,
) *YieldCalculator {
	return &YieldCalculator{
		exec:               exec,
		authz:              authz,
		weights:            weights,
		snapshots:          snapshots,
		settings:           settings,
		sources:            sources,
		enforceCapOnUpdate: enforceCapOnUpdate,
	}
}

// Init 写入初始设置
func (c *YieldCalculator) Init(ctx context.Context) error {
	return c.settings.Ensure(ctx, &model.ComponentSettings{Component: model.ComponentCalculator})
}

func (c *YieldCalculator) requireOwner(ctx context.Context, caller common.Address) error {
	return c.authz.Require(ctx, model.ComponentCalculator, caller, model.RoleOwner)
}

func validateWeight(weight int64) error {
	if weight < 0 || weight > model.MaxWeightBps {
		return apperrors.ErrInvalidRequest.WithMessagef("weight must be within [0, %d] bps, got %d", model.MaxWeightBps, weight)
	}
	return nil
}

func (c *YieldCalculator) totalWeight(ctx context.Context) (int64, error) {
	st, err := c.settings.Get(ctx, model.ComponentCalculator, repository.ForUpdate)
	if err != nil {
		return 0, err
	}
	return st.TotalWeight, nil
}

func (c *YieldCalculator) setTotalWeight(ctx context.Context, total int64) error {
	return c.settings.Update(ctx, model.ComponentCalculator, map[string]interface{}{"total_weight": total})
}

// AddStrategy 登记策略权重, 激活权重总和不超过 10000
func (c *YieldCalculator) AddStrategy(ctx context.Context, caller, ref common.Address, weight int64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	refKey := model.AddressKey(ref)
	var total int64
	err := c.exec.Execute(ctx, "calculator.add_strategy", func(ctx context.Context, op *Op) error {
		if err := c.requireOwner(ctx, caller); err != nil {
			return err
		}
		current, err := c.totalWeight(ctx)
		if err != nil {
			return err
		}
		if current+weight > model.MaxWeightBps {
			return apperrors.ErrWeightCapExceeded.
				WithMessagef("total weight %d + %d exceeds %d", current, weight, model.MaxWeightBps)
		}

		w, err := c.weights.Get(ctx, refKey)
		switch {
		case err == nil && w.IsActive:
			return apperrors.ErrStrategyExists.WithDetail("strategy_ref", refKey)
		case err == nil:
		case err == repository.ErrWeightNotFound:
			w = &model.StrategyWeight{StrategyRef: refKey}
		default:
			return err
		}
		active, err := c.weights.ListActive(ctx)
		if err != nil {
			return err
		}
		w.Weight = weight
		w.Position = len(active)
		w.IsActive = true
		if err := c.weights.Save(ctx, w); err != nil {
			return err
		}
		total = current + weight
		if err := c.setTotalWeight(ctx, total); err != nil {
			return err
		}
		op.Emit(model.EventStrategyAdded, refKey, &model.StrategyWeightEvent{
			StrategyRef: refKey,
			Weight:      weight,
			TotalWeight: total,
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("strategy weight added",
		zap.String("strategy_ref", refKey),
		zap.Int64("weight", weight),
		zap.Int64("total_weight", total))
	return nil
}

// UpdateStrategyWeight 调整激活策略的权重
// enforceCapOnUpdate 关闭时不校验调整后的总和
func (c *YieldCalculator) UpdateStrategyWeight(ctx context.Context, caller, ref common.Address, weight int64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	refKey := model.AddressKey(ref)
	var total int64
	err := c.exec.Execute(ctx, "calculator.update_strategy", func(ctx context.Context, op *Op) error {
		if err := c.requireOwner(ctx, caller); err != nil {
			return err
		}
		w, err := c.weights.Get(ctx, refKey)
		if err != nil {
			return err
		}
		if !w.IsActive {
			return apperrors.ErrStrategyInactive.WithDetail("strategy_ref", refKey)
		}
		current, err := c.totalWeight(ctx)
		if err != nil {
			return err
		}
		total = current - w.Weight + weight
		if c.enforceCapOnUpdate && total > model.MaxWeightBps {
			return apperrors.ErrWeightCapExceeded.
				WithMessagef("total weight would become %d, cap is %d", total, model.MaxWeightBps)
		}
		w.Weight = weight
		if err := c.weights.Save(ctx, w); err != nil {
			return err
		}
		if err := c.setTotalWeight(ctx, total); err != nil {
			return err
		}
		op.Emit(model.EventStrategyUpdated, refKey, &model.StrategyWeightEvent{
			StrategyRef: refKey,
			Weight:      weight,
			TotalWeight: total,
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("strategy weight updated",
		zap.String("strategy_ref", refKey),
		zap.Int64("weight", weight),
		zap.Int64("total_weight", total))
	return nil
}

// RemoveStrategy 停用策略, 最后一个条目移入空出的位置
func (c *YieldCalculator) RemoveStrategy(ctx context.Context, caller, ref common.Address) error {
	refKey := model.AddressKey(ref)
	var total int64
	err := c.exec.Execute(ctx, "calculator.remove_strategy", func(ctx context.Context, op *Op) error {
		if err := c.requireOwner(ctx, caller); err != nil {
			return err
		}
		w, err := c.weights.Get(ctx, refKey)
		if err != nil {
			return err
		}
		if !w.IsActive {
			return apperrors.ErrStrategyInactive.WithDetail("strategy_ref", refKey)
		}
		active, err := c.weights.ListActive(ctx)
		if err != nil {
			return err
		}
		last := active[len(active)-1]
		if last.ID != w.ID {
			if err := c.weights.UpdatePosition(ctx, last.ID, w.Position); err != nil {
				return err
			}
		}
		current, err := c.totalWeight(ctx)
		if err != nil {
			return err
		}
		total = current - w.Weight
		removed := w.Weight
		w.IsActive = false
		w.Position = -1
		w.Weight = 0
		if err := c.weights.Save(ctx, w); err != nil {
			return err
		}
		if err := c.setTotalWeight(ctx, total); err != nil {
			return err
		}
		op.Emit(model.EventStrategyRemoved, refKey, &model.StrategyWeightEvent{
			StrategyRef: refKey,
			Weight:      removed,
			TotalWeight: total,
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("strategy weight removed",
		zap.String("strategy_ref", refKey),
		zap.Int64("total_weight", total))
	return nil
}

// Registry 当前激活条目, 按迭代顺序
func (c *YieldCalculator) Registry(ctx context.Context) (*WeightRegistry, error) {
	st, err := c.settings.Get(ctx, model.ComponentCalculator, nil)
	if err != nil {
		return nil, translate(err)
	}
	active, err := c.weights.ListActive(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return &WeightRegistry{TotalWeight: st.TotalWeight, Strategies: active}, nil
}

// collect 按注册表顺序查询每个策略, 失败的查询按零计入
func (c *YieldCalculator) collect(ctx context.Context, rate, value, accumulated bool) ([]model.StrategyYield, error) {
	active, err := c.weights.ListActive(ctx)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]model.StrategyYield, 0, len(active))
	for _, w := range active {
		src := c.sources.Source(common.HexToAddress(w.StrategyRef))
		item := model.StrategyYield{
			StrategyRef: w.StrategyRef,
			Weight:      w.Weight,
			Rate:        decimal.Zero,
			Value:       decimal.Zero,
			Yield:       decimal.Zero,
		}
		if rate {
			item.Rate = src.Rate(ctx)
		}
		if value {
			item.Value = src.TotalValue(ctx)
		}
		if accumulated {
			item.Yield = src.AccumulatedYield(ctx)
		}
		out = append(out, item)
	}
	return out, nil
}

func weightedYield(items []model.StrategyYield) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Rate.Mul(decimal.NewFromInt(it.Weight)))
	}
	q, _ := sum.QuoRem(bpsDenominator, 0)
	return q
}

// CalculateWeightedYield Σ(rate × weight) / 10000
func (c *YieldCalculator) CalculateWeightedYield(ctx context.Context) (decimal.Decimal, error) {
	items, err := c.collect(ctx, true, false, false)
	if err != nil {
		return decimal.Zero, err
	}
	return weightedYield(items), nil
}

// CalculateTotalValue 各策略托管总值之和
func (c *YieldCalculator) CalculateTotalValue(ctx context.Context) (decimal.Decimal, error) {
	items, err := c.collect(ctx, false, true, false)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Value)
	}
	return sum, nil
}

// CalculateTotalAccumulatedYield 各策略累计收益之和
func (c *YieldCalculator) CalculateTotalAccumulatedYield(ctx context.Context) (decimal.Decimal, error) {
	items, err := c.collect(ctx, false, false, true)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Yield)
	}
	return sum, nil
}

// GetDetailedYieldData 一次查询得到的一致汇总
func (c *YieldCalculator) GetDetailedYieldData(ctx context.Context) (*model.YieldData, error) {
	items, err := c.collect(ctx, true, true, true)
	if err != nil {
		return nil, err
	}
	data := &model.YieldData{
		TotalValue: decimal.Zero,
		TotalYield: decimal.Zero,
		AverageAPY: weightedYield(items),
		Strategies: items,
		Timestamp:  c.exec.Clock().Now().UnixMilli(),
	}
	for _, it := range items {
		data.TotalValue = data.TotalValue.Add(it.Value)
		data.TotalYield = data.TotalYield.Add(it.Yield)
	}
	return data, nil
}

// snapshotAttempts 注册表在采集期间被修改时的最大重试次数
const snapshotAttempts = 3

var errRegistryChanged = apperrors.ErrConflict.WithMessage("strategy registry changed while collecting yield data")

// UpdateYieldHistory 追加一条收益快照, owner 或 keeper
// 策略数据在执行器之外采集, 执行器内只核对注册表并落库
func (c *YieldCalculator) UpdateYieldHistory(ctx context.Context, caller common.Address) (*model.YieldSnapshot, error) {
	if err := c.authz.Require(ctx, model.ComponentCalculator, caller, model.RoleOwner, model.RoleKeeper); err != nil {
		return nil, err
	}
	var (
		snap *model.YieldSnapshot
		err  error
	)
	for attempt := 1; attempt <= snapshotAttempts; attempt++ {
		var data *model.YieldData
		data, err = c.GetDetailedYieldData(ctx)
		if err != nil {
			return nil, err
		}
		snap, err = c.persistSnapshot(ctx, caller, data)
		if !apperrors.Is(err, errRegistryChanged) {
			break
		}
		logger.Warn("strategy registry changed during yield collection, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}
	metrics.WeightedYieldGauge.Set(snap.AverageAPY.InexactFloat64())
	logger.Info("yield history updated",
		zap.Int64("snapshot_id", snap.ID),
		zap.String("total_value", snap.TotalValue.String()),
		zap.String("average_apy", snap.AverageAPY.String()),
		zap.Int64("height", snap.BlockHeight))
	return snap, nil
}

func (c *YieldCalculator) persistSnapshot(ctx context.Context, caller common.Address, data *model.YieldData) (*model.YieldSnapshot, error) {
	var snap *model.YieldSnapshot
	err := c.exec.Execute(ctx, "calculator.update_history", func(ctx context.Context, op *Op) error {
		if err := c.authz.Require(ctx, model.ComponentCalculator, caller, model.RoleOwner, model.RoleKeeper); err != nil {
			return err
		}
		active, err := c.weights.ListActive(ctx)
		if err != nil {
			return err
		}
		if !sameRegistry(active, data.Strategies) {
			return errRegistryChanged
		}
		data.Timestamp = op.Timestamp()
		s := &model.YieldSnapshot{
			TotalValue:  data.TotalValue,
			TotalYield:  data.TotalYield,
			AverageAPY:  data.AverageAPY,
			BlockHeight: op.Height,
			Timestamp:   data.Timestamp,
		}
		if err := s.SetStrategies(data.Strategies); err != nil {
			return err
		}
		if err := c.snapshots.Create(ctx, s); err != nil {
			return err
		}
		op.Emit(model.EventYieldCalculated, "calculator", data)
		snap = s
		return nil
	})
	return snap, err
}

// sameRegistry 采集结果与当前激活条目的顺序和权重一致
func sameRegistry(active []*model.StrategyWeight, items []model.StrategyYield) bool {
	if len(active) != len(items) {
		return false
	}
	for i, w := range active {
		if w.StrategyRef != items[i].StrategyRef || w.Weight != items[i].Weight {
			return false
		}
	}
	return true
}

// CalculateOptimalAllocation 按权重拆分 totalAmount
// 每个策略取 floor(total × w / 10000), 余数归最后一个激活策略, 结果之和恒等于 totalAmount
func (c *YieldCalculator) CalculateOptimalAllocation(ctx context.Context, totalAmount decimal.Decimal) ([]Allocation, error) {
	if err := requireNonNegative("total_amount", totalAmount); err != nil {
		return nil, err
	}
	active, err := c.weights.ListActive(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return allocate(active, totalAmount), nil
}

func allocate(active []*model.StrategyWeight, totalAmount decimal.Decimal) []Allocation {
	out := make([]Allocation, len(active))
	assigned := decimal.Zero
	for i, w := range active {
		amount := mulDivFloor(totalAmount, decimal.NewFromInt(w.Weight), bpsDenominator)
		out[i] = Allocation{StrategyRef: w.StrategyRef, Weight: w.Weight, Amount: amount}
		assigned = assigned.Add(amount)
	}
	if len(out) > 0 {
		last := len(out) - 1
		out[last].Amount = out[last].Amount.Add(totalAmount.Sub(assigned))
	}
	return out
}

// GetYieldHistory 最近 limit 条快照, 按时间正序; limit 为 0 返回全部
func (c *YieldCalculator) GetYieldHistory(ctx context.Context, limit int) ([]*model.YieldSnapshot, error) {
	if limit < 0 {
		return nil, apperrors.ErrInvalidRequest.WithMessage("limit must not be negative")
	}
	list, err := c.snapshots.ListRecent(ctx, limit)
	return list, translate(err)
}

// LatestSnapshot 最近一条快照
func (c *YieldCalculator) LatestSnapshot(ctx context.Context) (*model.YieldSnapshot, error) {
	s, err := c.snapshots.Latest(ctx)
	return s, translate(err)
}
