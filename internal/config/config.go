package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/eidos-exchange/eidos/eidos-yield/pkg/circuitbreaker"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/crypto"
)

// Config 配置
type Config struct {
	Service    ServiceConfig         `yaml:"service" json:"service"`
	Postgres   PostgresConfig        `yaml:"postgres" json:"postgres"`
	Redis      RedisConfig           `yaml:"redis" json:"redis"`
	Kafka      KafkaConfig           `yaml:"kafka" json:"kafka"`
	Blockchain BlockchainConfig      `yaml:"blockchain" json:"blockchain"`
	Ledger     LedgerConfig          `yaml:"ledger" json:"ledger"`
	Roles      RolesConfig           `yaml:"roles" json:"roles"`
	Bridge     BridgeConfig          `yaml:"bridge" json:"bridge"`
	Settlement SettlementConfig      `yaml:"settlement" json:"settlement"`
	Calculator CalculatorConfig      `yaml:"calculator" json:"calculator"`
	Aggregator AggregatorConfig      `yaml:"aggregator" json:"aggregator"`
	Strategies []StrategySourceEntry `yaml:"strategies" json:"strategies"`
	Breaker    circuitbreaker.Config `yaml:"breaker" json:"breaker"`
	Auth       AuthConfig            `yaml:"auth" json:"auth"`
	Jobs       JobsConfig            `yaml:"jobs" json:"jobs"`
	Outbox     OutboxConfig          `yaml:"outbox" json:"outbox"`
	Log        LogConfig             `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	GRPCPort int    `yaml:"grpc_port" json:"grpc_port"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Database        string `yaml:"database" json:"database"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	MaxConnections  int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"` // 秒
}

// DSN 连接串
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		p.Host, p.Port, p.User, p.Password, p.Database)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addresses []string `yaml:"addresses" json:"addresses"`
	Password  string   `yaml:"password" json:"password"`
	DB        int      `yaml:"db" json:"db"`
	PoolSize  int      `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Brokers  []string `yaml:"brokers" json:"brokers"`
	GroupID  string   `yaml:"group_id" json:"group_id"`
	ClientID string   `yaml:"client_id" json:"client_id"`
}

// BlockchainConfig 当前链与合约调用配置
type BlockchainConfig struct {
	ChainID     int64         `yaml:"chain_id" json:"chain_id"`
	RPCURL      string        `yaml:"rpc_url" json:"rpc_url"`
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// LedgerConfig 串行执行器配置
type LedgerConfig struct {
	DistributedLock bool          `yaml:"distributed_lock" json:"distributed_lock"` // 多副本共享数据库时开启
	LockTTL         time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	TxRetries       int           `yaml:"tx_retries" json:"tx_retries"`
}

// RolesConfig 启动时写入的角色绑定, 已存在的绑定不覆盖
type RolesConfig struct {
	Owner               string `yaml:"owner" json:"owner"`
	BridgeOperator      string `yaml:"bridge_operator" json:"bridge_operator"`
	SettlementValidator string `yaml:"settlement_validator" json:"settlement_validator"`
	CalculatorKeeper    string `yaml:"calculator_keeper" json:"calculator_keeper"`
	AggregatorOperator  string `yaml:"aggregator_operator" json:"aggregator_operator"`
}

// ChainEntry 支持的链
type ChainEntry struct {
	Name    string `yaml:"name" json:"name"`
	ChainID int64  `yaml:"chain_id" json:"chain_id"`
}

// BridgeConfig 跨链桥配置
type BridgeConfig struct {
	Address         string       `yaml:"address" json:"address"` // 桥托管账户
	Protocol        string       `yaml:"protocol" json:"protocol"`
	WrappedToken    string       `yaml:"wrapped_token" json:"wrapped_token"`
	WrappedName     string       `yaml:"wrapped_name" json:"wrapped_name"`
	WrappedSymbol   string       `yaml:"wrapped_symbol" json:"wrapped_symbol"`
	SupportedTokens []string     `yaml:"supported_tokens" json:"supported_tokens"`
	Chains          []ChainEntry `yaml:"chains" json:"chains"`
	FeeEstimateBps  int64        `yaml:"fee_estimate_bps" json:"fee_estimate_bps"` // 仅用于报价
}

// SettlementConfig 结算引擎配置
type SettlementConfig struct {
	Address             string   `yaml:"address" json:"address"`
	FeeRateBps          int64    `yaml:"fee_rate_bps" json:"fee_rate_bps"`
	MaxSettlementAmount string   `yaml:"max_settlement_amount" json:"max_settlement_amount"`
	SupportedNetworks   []string `yaml:"supported_networks" json:"supported_networks"`
}

// CalculatorConfig 收益计算器配置
type CalculatorConfig struct {
	EnforceCapOnUpdate *bool `yaml:"enforce_cap_on_update" json:"enforce_cap_on_update"`
}

// CapEnforced 更新权重时是否校验总和上限, 默认开启
func (c CalculatorConfig) CapEnforced() bool {
	return c.EnforceCapOnUpdate == nil || *c.EnforceCapOnUpdate
}

// AggregatorConfig 聚合器配置
type AggregatorConfig struct {
	Address                    string `yaml:"address" json:"address"`
	FeeCollector               string `yaml:"fee_collector" json:"fee_collector"`
	RestrictTransferCompletion *bool  `yaml:"restrict_transfer_completion" json:"restrict_transfer_completion"`
}

// TransferCompletionRestricted 完成跨链转账是否需要 owner/operator, 默认开启
func (c AggregatorConfig) TransferCompletionRestricted() bool {
	return c.RestrictTransferCompletion == nil || *c.RestrictTransferCompletion
}

// StrategySourceEntry 策略收益数据源
type StrategySourceEntry struct {
	Ref              string `yaml:"ref" json:"ref"`   // 策略地址
	Type             string `yaml:"type" json:"type"` // static, onchain
	Name             string `yaml:"name" json:"name"`
	Rate             string `yaml:"rate" json:"rate"`
	TotalValue       string `yaml:"total_value" json:"total_value"`
	AccumulatedYield string `yaml:"accumulated_yield" json:"accumulated_yield"`
}

// AuthConfig EIP-712 请求签名配置
type AuthConfig struct {
	Domain             crypto.Domain `yaml:"domain" json:"domain"`
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance" json:"timestamp_tolerance"`
}

// JobsConfig 定时任务配置
type JobsConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	YieldSnapshotCron string        `yaml:"yield_snapshot_cron" json:"yield_snapshot_cron"`
	CacheTTL          time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	JobTimeout        time.Duration `yaml:"job_timeout" json:"job_timeout"`
}

// OutboxConfig Outbox 投递配置
type OutboxConfig struct {
	RelayInterval    time.Duration `yaml:"relay_interval" json:"relay_interval"`
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	Retention        time.Duration `yaml:"retention" json:"retention"`
	StaleAfter       time.Duration `yaml:"stale_after" json:"stale_after"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	RecoveryInterval time.Duration `yaml:"recovery_interval" json:"recovery_interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 YAML 内容, 展开环境变量并补全默认值
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		end += start

		name, def, _ := strings.Cut(s[start+2:end], ":")
		value := os.Getenv(name)
		if value == "" {
			value = def
		}
		b.WriteString(s[:start])
		b.WriteString(value)
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "eidos-yield"
	}
	if cfg.Service.GRPCPort == 0 {
		cfg.Service.GRPCPort = 50060
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8090
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 50
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 3600
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "eidos-yield"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "eidos-yield"
	}

	if cfg.Blockchain.ChainID == 0 {
		cfg.Blockchain.ChainID = 1
	}
	if cfg.Blockchain.CallTimeout == 0 {
		cfg.Blockchain.CallTimeout = 5 * time.Second
	}

	if cfg.Ledger.LockTTL == 0 {
		cfg.Ledger.LockTTL = 10 * time.Second
	}
	if cfg.Ledger.TxRetries == 0 {
		cfg.Ledger.TxRetries = 3
	}

	if cfg.Bridge.Protocol == "" {
		cfg.Bridge.Protocol = "wormhole"
	}
	if cfg.Bridge.WrappedName == "" {
		cfg.Bridge.WrappedName = "Wrapped Yield Token"
	}
	if cfg.Bridge.WrappedSymbol == "" {
		cfg.Bridge.WrappedSymbol = "wYLD"
	}
	if len(cfg.Bridge.Chains) == 0 {
		cfg.Bridge.Chains = []ChainEntry{
			{Name: "ethereum", ChainID: 1},
			{Name: "polygon", ChainID: 137},
			{Name: "bsc", ChainID: 56},
			{Name: "testnet", ChainID: 5},
		}
	}

	if cfg.Settlement.FeeRateBps == 0 {
		cfg.Settlement.FeeRateBps = 10
	}
	if cfg.Settlement.MaxSettlementAmount == "" {
		cfg.Settlement.MaxSettlementAmount = "1000000000000000000000000"
	}
	if len(cfg.Settlement.SupportedNetworks) == 0 {
		cfg.Settlement.SupportedNetworks = []string{"ethereum", "polygon", "bsc", "testnet"}
	}

	if cfg.Jobs.YieldSnapshotCron == "" {
		cfg.Jobs.YieldSnapshotCron = "0 */5 * * * *"
	}
	if cfg.Jobs.CacheTTL == 0 {
		cfg.Jobs.CacheTTL = 300 * time.Second
	}
	if cfg.Jobs.JobTimeout == 0 {
		cfg.Jobs.JobTimeout = time.Minute
	}

	if cfg.Outbox.RelayInterval == 0 {
		cfg.Outbox.RelayInterval = 100 * time.Millisecond
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.Retention == 0 {
		cfg.Outbox.Retention = 24 * time.Hour
	}
	if cfg.Outbox.StaleAfter == 0 {
		cfg.Outbox.StaleAfter = 5 * time.Minute
	}
	if cfg.Outbox.CleanupInterval == 0 {
		cfg.Outbox.CleanupInterval = time.Hour
	}
	if cfg.Outbox.RecoveryInterval == 0 {
		cfg.Outbox.RecoveryInterval = 5 * time.Minute
	}

	if cfg.Auth.TimestampTolerance == 0 {
		cfg.Auth.TimestampTolerance = 5 * time.Minute
	}
	if cfg.Auth.Domain.Name == "" {
		cfg.Auth.Domain.Name = "EidosYield"
	}
	if cfg.Auth.Domain.Version == "" {
		cfg.Auth.Domain.Version = "1"
	}
	if cfg.Auth.Domain.ChainID == 0 {
		cfg.Auth.Domain.ChainID = cfg.Blockchain.ChainID
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate 校验地址与金额
func (c *Config) Validate() error {
	addrs := map[string]string{
		"roles.owner":        c.Roles.Owner,
		"bridge.address":     c.Bridge.Address,
		"settlement.address": c.Settlement.Address,
		"aggregator.address": c.Aggregator.Address,
	}
	for field, v := range addrs {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("config %s: invalid address %q", field, v)
		}
	}
	if c.Bridge.WrappedToken != "" && !common.IsHexAddress(c.Bridge.WrappedToken) {
		return fmt.Errorf("config bridge.wrapped_token: invalid address %q", c.Bridge.WrappedToken)
	}
	for _, tok := range c.Bridge.SupportedTokens {
		if !common.IsHexAddress(tok) {
			return fmt.Errorf("config bridge.supported_tokens: invalid address %q", tok)
		}
	}
	if c.Settlement.FeeRateBps < 0 || c.Settlement.FeeRateBps > 1000 {
		return fmt.Errorf("config settlement.fee_rate_bps: %d out of range", c.Settlement.FeeRateBps)
	}
	if d, err := decimal.NewFromString(c.Settlement.MaxSettlementAmount); err != nil || !d.IsPositive() {
		return fmt.Errorf("config settlement.max_settlement_amount: invalid %q", c.Settlement.MaxSettlementAmount)
	}
	for _, s := range c.Strategies {
		if !common.IsHexAddress(s.Ref) {
			return fmt.Errorf("config strategies: invalid ref %q", s.Ref)
		}
		switch s.Type {
		case "", "static", "onchain":
		default:
			return fmt.Errorf("config strategies: unknown type %q", s.Type)
		}
	}
	return nil
}

// GetEnvInt 获取环境变量整数值
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
