// Package app 提供 eidos-yield 服务的应用生命周期管理
//
// ========================================
// eidos-yield 服务对接说明
// ========================================
//
// ## 服务职责
// eidos-yield 是多链收益聚合服务，负责:
// 1. 跨链桥 (Bridge): 锁定/释放原生资产, 增发/销毁合成资产
// 2. 结算引擎 (Settlement): 验证者驱动的收益结算与退款
// 3. 收益计算 (Calculator): 加权策略篮子, 收益汇总与分配建议
// 4. 收益聚合 (Aggregator): 用户存取款, 管理费, 跨链转账记录
//
// ## Kafka 对接 (参见 internal/kafka 和 internal/worker/outbox_relay.go)
//
// ### 消费的 Topic
// - deposits: 链上检测到的充值, 入账托管账本
//
// ### 生产的 Topic (经 outbox 投递)
// - bridge-events / settlement-events / aggregator-events / yield-events
//
// ## HTTP 对接
// - 端口: 8090, 前缀 /api/v1
// - 认证: Authorization: EIP712 <wallet>:<timestamp>:<signature>
//
// ## gRPC
// - 端口: 50060, 仅注册健康检查
//
// ## 数据库
// - 数据库名: eidos_yield
// - 迁移文件: migrations/
//
// ========================================
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/auth"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/cache"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/handler"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/kafka"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/middleware"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/strategy"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/worker"
	"github.com/eidos-exchange/eidos/eidos-yield/migrations"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/circuitbreaker"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/lock"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/migrate"
)

const (
	lockPrefix     = "eidos:yield:lock:"
	migrationTable = "yield_schema_migrations"
)

// App 应用
type App struct {
	cfg *config.Config

	// 基础设施
	db        *gorm.DB
	redis     redis.UniversalClient
	locker    *lock.Locker
	ethClient *ethclient.Client

	// 服务
	ledger     *service.TokenLedger
	bridge     *service.BridgeService
	settlement *service.SettlementService
	calculator *service.YieldCalculator
	aggregator *service.YieldAggregator
	roles      *service.RoleService

	// 缓存
	yieldCache  *cache.YieldCache
	replayGuard *cache.ReplayGuard

	// Kafka
	kafkaProducer *kafka.Producer
	kafkaConsumer *kafka.Consumer
	outboxRelay   *worker.OutboxRelay

	// 定时任务
	scheduler *worker.Scheduler

	// 服务端
	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *health.Server

	stopCh chan struct{}
}

// NewApp 创建应用
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := app.initKafka(); err != nil {
		return nil, fmt.Errorf("failed to init kafka: %w", err)
	}

	if err := app.initJobs(); err != nil {
		return nil, fmt.Errorf("failed to init jobs: %w", err)
	}

	app.initHTTP()
	app.initGRPC()

	return app, nil
}

// initInfrastructure 初始化数据库、迁移、Redis 与链上客户端
func (a *App) initInfrastructure() error {
	db, err := gorm.Open(postgres.Open(a.cfg.Postgres.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetime) * time.Second)

	a.db = db
	logger.Info("database connected", zap.String("host", a.cfg.Postgres.Host))

	migrator := migrate.NewMigrator(sqlDB, a.cfg.Service.Name, migrationTable, logger.Named("migrate"))
	if err := migrator.Up(migrations.FS, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Redis
	addrs := a.cfg.Redis.Addresses
	if len(addrs) == 0 {
		addrs = []string{"localhost:6379"}
	}
	a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err := a.redis.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	logger.Info("redis connected", zap.Strings("addrs", addrs))

	if a.cfg.Ledger.DistributedLock {
		a.locker = lock.NewLocker(a.redis, lockPrefix, a.cfg.Ledger.LockTTL)
	}

	// 链上策略查询, 未配置 RPC 时只使用静态数据源
	if a.cfg.Blockchain.RPCURL != "" {
		client, err := ethclient.Dial(a.cfg.Blockchain.RPCURL)
		if err != nil {
			return fmt.Errorf("failed to dial rpc: %w", err)
		}
		a.ethClient = client
		logger.Info("blockchain client initialized",
			zap.Int64("chain_id", a.cfg.Blockchain.ChainID),
			zap.String("rpc", a.cfg.Blockchain.RPCURL))
	}

	return nil
}

// initServices 初始化仓储与服务
func (a *App) initServices() error {
	ctx := context.Background()

	balances := repository.NewBalanceRepository(a.db)
	messages := repository.NewMessageRepository(a.db)
	transfers := repository.NewTransferRepository(a.db)
	settings := repository.NewSettingsRepository(a.db)
	assets := repository.NewAssetRepository(a.db)
	outbox := repository.NewOutboxRepository(a.db)

	exec := service.NewExecutor(
		repository.NewRepository(a.db),
		repository.NewCounterRepository(a.db),
		outbox,
		service.SystemClock{},
		service.ExecutorConfig{Locker: a.locker, TxRetries: a.cfg.Ledger.TxRetries},
	)

	authz := auth.NewAuthorizer(repository.NewRoleRepository(a.db))
	if err := authz.Bootstrap(ctx, a.cfg.Roles); err != nil {
		return fmt.Errorf("bootstrap roles: %w", err)
	}

	breakerCfg := a.cfg.Breaker
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("strategy source breaker state changed",
			zap.String("strategy", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	var caller bind.ContractCaller
	if a.ethClient != nil {
		caller = a.ethClient
	}
	sources := strategy.NewRegistry(circuitbreaker.NewRegistry(breakerCfg), caller, a.cfg.Blockchain.CallTimeout)
	if err := sources.Load(a.cfg.Strategies); err != nil {
		return err
	}

	a.ledger = service.NewTokenLedger(balances, messages, exec)
	issuer := service.NewWrappedAssetIssuer(repository.NewWrappedAssetRepository(a.db), a.ledger, a.wrappedToken())

	a.bridge = service.NewBridgeService(exec, authz, a.ledger, issuer, transfers, messages, settings, assets,
		a.cfg.Blockchain.ChainID, a.cfg.Bridge)
	a.settlement = service.NewSettlementService(exec, authz, a.ledger, repository.NewSettlementRepository(a.db),
		settings, assets, a.cfg.Settlement)
	a.calculator = service.NewYieldCalculator(exec, authz, repository.NewWeightRepository(a.db),
		repository.NewSnapshotRepository(a.db), settings, sources, a.cfg.Calculator.CapEnforced())
	a.aggregator = service.NewYieldAggregator(exec, authz, a.ledger, repository.NewStrategyRepository(a.db),
		repository.NewDepositRepository(a.db), transfers, messages, settings, a.cfg.Blockchain.ChainID, a.cfg.Aggregator)
	a.roles = service.NewRoleService(exec, authz)

	inits := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"bridge", a.bridge.Init},
		{"settlement", a.settlement.Init},
		{"calculator", a.calculator.Init},
		{"aggregator", a.aggregator.Init},
	}
	for _, in := range inits {
		if err := in.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", in.name, err)
		}
	}

	a.yieldCache = cache.NewYieldCache(a.redis, a.cfg.Jobs.CacheTTL, logger.L())
	a.replayGuard = cache.NewReplayGuardWithTTL(a.redis, 2*a.cfg.Auth.TimestampTolerance)

	logger.Info("services initialized",
		zap.String("bridge_custody", a.bridge.Custody().Hex()),
		zap.String("settlement_custody", a.settlement.Custody().Hex()),
		zap.String("aggregator_custody", a.aggregator.Custody().Hex()),
		zap.String("wrapped_token", issuer.Token().Hex()))
	return nil
}

// wrappedToken 未配置时按桥托管账户推导合成资产地址
func (a *App) wrappedToken() common.Address {
	if a.cfg.Bridge.WrappedToken != "" {
		return common.HexToAddress(a.cfg.Bridge.WrappedToken)
	}
	return ethcrypto.CreateAddress(common.HexToAddress(a.cfg.Bridge.Address), 0)
}

// initKafka 初始化 Kafka 生产者、消费者与 outbox 投递
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled {
		logger.Warn("kafka disabled, outbox messages stay pending")
		return nil
	}

	producer, err := kafka.NewProducer(&kafka.ProducerConfig{
		Brokers:  a.cfg.Kafka.Brokers,
		ClientID: a.cfg.Kafka.ClientID,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	a.kafkaProducer = producer
	a.outboxRelay = worker.NewOutboxRelay(a.cfg.Outbox, repository.NewOutboxRepository(a.db), producer)

	consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
		Brokers:  a.cfg.Kafka.Brokers,
		GroupID:  a.cfg.Kafka.GroupID,
		ClientID: a.cfg.Kafka.ClientID,
	}, a.ledger)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	a.kafkaConsumer = consumer

	logger.Info("kafka initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return nil
}

// initJobs 注册定时任务
func (a *App) initJobs() error {
	a.scheduler = worker.NewScheduler(a.locker)
	if !a.cfg.Jobs.Enabled {
		return nil
	}

	keeper := a.cfg.Roles.CalculatorKeeper
	if keeper == "" {
		keeper = a.cfg.Roles.Owner
	}
	job := worker.NewYieldSnapshotJob(a.calculator, a.yieldCache, common.HexToAddress(keeper), a.cfg.Jobs.JobTimeout)
	if err := a.scheduler.Register(a.cfg.Jobs.YieldSnapshotCron, job); err != nil {
		return err
	}
	logger.Info("jobs registered",
		zap.String("job", job.Name()),
		zap.String("cron", a.cfg.Jobs.YieldSnapshotCron),
		zap.String("keeper", keeper))
	return nil
}

// initHTTP 初始化 HTTP 路由
func (a *App) initHTTP() {
	if a.cfg.Service.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger(), middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMW := middleware.Auth(&middleware.AuthConfig{
		Domain:             a.cfg.Auth.Domain,
		TimestampTolerance: a.cfg.Auth.TimestampTolerance,
		ReplayGuard:        a.replayGuard,
	})
	if a.cfg.Auth.Domain.IsMock() {
		logger.Warn("auth running in mock mode, signatures are not verified")
	}

	handler.RegisterRoutes(r, &handler.Handlers{
		Bridge:     handler.NewBridgeHandler(a.bridge),
		Settlement: handler.NewSettlementHandler(a.settlement),
		Yield:      handler.NewYieldHandler(a.calculator, a.yieldCache),
		Aggregator: handler.NewAggregatorHandler(a.aggregator),
		Ledger:     handler.NewLedgerHandler(a.ledger, a.roles),
		Analytics:  handler.NewAnalyticsHandler(service.NewAnalyticsService(a.calculator, a.aggregator)),
	}, authMW)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// initGRPC 初始化 gRPC 健康检查
func (a *App) initGRPC() {
	a.grpcServer = grpc.NewServer()
	a.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.healthServer)
}

// Run 运行应用
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.kafkaConsumer != nil {
		if err := a.kafkaConsumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start kafka consumer: %w", err)
		}
	}
	if a.outboxRelay != nil {
		a.outboxRelay.Start(ctx)
	}
	a.scheduler.Start()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Service.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	a.healthServer.SetServingStatus(a.cfg.Service.Name, grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("gRPC server listening", zap.Int("port", a.cfg.Service.GRPCPort))
		if err := a.grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", a.cfg.Service.HTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-a.stopCh:
		logger.Info("shutdown requested")
	}

	return a.shutdown()
}

// shutdown 关闭应用
func (a *App) shutdown() error {
	logger.Info("shutting down...")

	a.healthServer.SetServingStatus(a.cfg.Service.Name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	a.scheduler.Stop()

	if a.kafkaConsumer != nil {
		if err := a.kafkaConsumer.Stop(); err != nil {
			logger.Error("kafka consumer stop error", zap.Error(err))
		}
	}

	// 先停 relay 再关生产者
	if a.outboxRelay != nil {
		a.outboxRelay.Stop()
	}
	if a.kafkaProducer != nil {
		_ = a.kafkaProducer.Close()
	}

	a.grpcServer.GracefulStop()

	if a.ethClient != nil {
		a.ethClient.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, _ := a.db.DB(); sqlDB != nil {
			_ = sqlDB.Close()
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// Stop 停止应用
func (a *App) Stop() {
	close(a.stopCh)
}
