package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/auth"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/strategy"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/circuitbreaker"
)

const testChainID int64 = 31337

var (
	ownerAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	operatorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	validatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	keeperAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	alice         = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob           = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	bridgeCustody     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	settlementCustody = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	aggregatorCustody = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	feeCollector      = common.HexToAddress("0x00000000000000000000000000000000000000c4")

	usdc         = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	wrappedToken = common.HexToAddress("0x00000000000000000000000000000000000000d2")

	testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

type testEnv struct {
	db       *gorm.DB
	clock    *ManualClock
	exec     *Executor
	ledger   *TokenLedger
	issuer   *WrappedAssetIssuer
	sources  *strategy.Registry
	bridge   *BridgeService
	settle   *SettlementService
	calc     *YieldCalculator
	agg      *YieldAggregator
	roles    *RoleService
	outbox   repository.OutboxRepository
	balances repository.BalanceRepository
}

type envOption func(*envConfig)

type envConfig struct {
	calculator config.CalculatorConfig
	aggregator config.AggregatorConfig
}

func withUncheckedWeightUpdates() envOption {
	return func(c *envConfig) {
		off := false
		c.calculator.EnforceCapOnUpdate = &off
	}
}

func withOpenTransferCompletion() envOption {
	return func(c *envConfig) {
		off := false
		c.aggregator.RestrictTransferCompletion = &off
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.RoleBinding{},
		&model.TokenBalance{},
		&model.WrappedAsset{},
		&model.ProcessedMessage{},
		&model.CrossChainTransfer{},
		&model.Settlement{},
		&model.ComponentSettings{},
		&model.SupportedAsset{},
		&model.LedgerCounter{},
		&model.Strategy{},
		&model.UserDeposit{},
		&model.StrategyWeight{},
		&model.YieldSnapshot{},
		&model.OutboxMessage{},
	))
	return db
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := &envConfig{
		aggregator: config.AggregatorConfig{
			Address:      aggregatorCustody.Hex(),
			FeeCollector: feeCollector.Hex(),
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db := newTestDB(t)
	ctx := context.Background()

	balances := repository.NewBalanceRepository(db)
	messages := repository.NewMessageRepository(db)
	transfers := repository.NewTransferRepository(db)
	settings := repository.NewSettingsRepository(db)
	assets := repository.NewAssetRepository(db)
	outbox := repository.NewOutboxRepository(db)

	clock := NewManualClock(testStart)
	exec := NewExecutor(repository.NewRepository(db), repository.NewCounterRepository(db), outbox, clock, ExecutorConfig{})
	authz := auth.NewAuthorizer(repository.NewRoleRepository(db))
	require.NoError(t, authz.Bootstrap(ctx, config.RolesConfig{
		Owner:               ownerAddr.Hex(),
		BridgeOperator:      operatorAddr.Hex(),
		SettlementValidator: validatorAddr.Hex(),
		CalculatorKeeper:    keeperAddr.Hex(),
		AggregatorOperator:  operatorAddr.Hex(),
	}))

	ledger := NewTokenLedger(balances, messages, exec)
	issuer := NewWrappedAssetIssuer(repository.NewWrappedAssetRepository(db), ledger, wrappedToken)
	sources := strategy.NewRegistry(circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 100}), nil, 0)

	env := &testEnv{
		db:      db,
		clock:   clock,
		exec:    exec,
		ledger:  ledger,
		issuer:  issuer,
		sources: sources,
		bridge: NewBridgeService(exec, authz, ledger, issuer, transfers, messages, settings, assets, testChainID,
			config.BridgeConfig{
				Address:         bridgeCustody.Hex(),
				Protocol:        "wormhole",
				WrappedToken:    wrappedToken.Hex(),
				WrappedName:     "Wrapped USDC",
				WrappedSymbol:   "wUSDC",
				SupportedTokens: []string{usdc.Hex()},
				Chains:          []config.ChainEntry{{Name: "ethereum", ChainID: 1}, {Name: "arbitrum", ChainID: 42161}},
			}),
		settle: NewSettlementService(exec, authz, ledger, repository.NewSettlementRepository(db), settings, assets,
			config.SettlementConfig{
				Address:             settlementCustody.Hex(),
				FeeRateBps:          30,
				MaxSettlementAmount: "1000000",
				SupportedNetworks:   []string{"solana"},
			}),
		calc: NewYieldCalculator(exec, authz, repository.NewWeightRepository(db), repository.NewSnapshotRepository(db),
			settings, sources, cfg.calculator.CapEnforced()),
		agg: NewYieldAggregator(exec, authz, ledger, repository.NewStrategyRepository(db), repository.NewDepositRepository(db),
			transfers, messages, settings, testChainID, cfg.aggregator),
		roles:    NewRoleService(exec, authz),
		outbox:   outbox,
		balances: balances,
	}
	require.NoError(t, env.bridge.Init(ctx))
	require.NoError(t, env.settle.Init(ctx))
	require.NoError(t, env.calc.Init(ctx))
	require.NoError(t, env.agg.Init(ctx))
	return env
}

// fund 直接给账户入账, 不经过执行器
func (e *testEnv) fund(t *testing.T, token, account common.Address, amount int64) {
	t.Helper()
	require.NoError(t, e.ledger.Credit(context.Background(), token, account, decimal.NewFromInt(amount)))
}

func (e *testEnv) balance(t *testing.T, token, account common.Address) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	return b
}

func (e *testEnv) outboxCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.OutboxMessage{}).Count(&n).Error)
	return n
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// strategyRef 计算器测试用策略地址
func strategyRef(n int64) common.Address {
	return common.BigToAddress(big.NewInt(0xe000 + n))
}
