package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
service:
  name: eidos-yield
roles:
  owner: "0x00000000000000000000000000000000000000a1"
bridge:
  address: "0x00000000000000000000000000000000000000b1"
  wrapped_token: "0x00000000000000000000000000000000000000c1"
  supported_tokens:
    - "0x00000000000000000000000000000000000000d1"
settlement:
  address: "${SETTLEMENT_ADDR:0x00000000000000000000000000000000000000b2}"
  fee_rate_bps: 25
aggregator:
  address: "0x00000000000000000000000000000000000000b3"
calculator:
  enforce_cap_on_update: false
strategies:
  - ref: "0x00000000000000000000000000000000000000e1"
    type: static
    rate: "500"
jobs:
  cache_ttl: 2m
`

func TestExpandEnvVars(t *testing.T) {
	t.Run("simple variable", func(t *testing.T) {
		t.Setenv("TEST_VAR", "hello")
		assert.Equal(t, "value is hello", expandEnvVars("value is ${TEST_VAR}"))
	})

	t.Run("default used", func(t *testing.T) {
		assert.Equal(t, "value is fallback", expandEnvVars("value is ${NOT_EXISTS_YIELD:fallback}"))
	})

	t.Run("default overridden", func(t *testing.T) {
		t.Setenv("MY_VAR", "actual")
		assert.Equal(t, "actual", expandEnvVars("${MY_VAR:fallback}"))
	})

	t.Run("multiple variables", func(t *testing.T) {
		t.Setenv("VAR1", "first")
		t.Setenv("VAR2", "second")
		assert.Equal(t, "first and second", expandEnvVars("${VAR1} and ${VAR2}"))
	})

	t.Run("default with colon", func(t *testing.T) {
		assert.Equal(t, "redis://h:1", expandEnvVars("${NOT_EXISTS_YIELD:redis://h:1}"))
	})

	t.Run("unterminated", func(t *testing.T) {
		assert.Equal(t, "x ${OPEN", expandEnvVars("x ${OPEN"))
	})
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, "eidos-yield", cfg.Service.Name)
	assert.Equal(t, 50060, cfg.Service.GRPCPort)
	assert.Equal(t, 8090, cfg.Service.HTTPPort)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, int64(1), cfg.Blockchain.ChainID)
	assert.Equal(t, "wormhole", cfg.Bridge.Protocol)
	assert.Len(t, cfg.Bridge.Chains, 4)
	assert.Equal(t, int64(10), cfg.Settlement.FeeRateBps)
	assert.Equal(t, []string{"ethereum", "polygon", "bsc", "testnet"}, cfg.Settlement.SupportedNetworks)
	assert.Equal(t, 300*time.Second, cfg.Jobs.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.Auth.TimestampTolerance)
	assert.Equal(t, int64(1), cfg.Auth.Domain.ChainID)
	assert.True(t, cfg.Calculator.CapEnforced())
	assert.True(t, cfg.Aggregator.TransferCompletionRestricted())
}

func TestParse(t *testing.T) {
	t.Setenv("SETTLEMENT_ADDR", "0x00000000000000000000000000000000000000f2")

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000000f2", cfg.Settlement.Address)
	assert.Equal(t, int64(25), cfg.Settlement.FeeRateBps)
	assert.False(t, cfg.Calculator.CapEnforced())
	assert.True(t, cfg.Aggregator.TransferCompletionRestricted())
	assert.Equal(t, 2*time.Minute, cfg.Jobs.CacheTTL)
	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, "500", cfg.Strategies[0].Rate)
}

func TestValidate(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	bad := *cfg
	bad.Roles.Owner = "not-an-address"
	assert.ErrorContains(t, bad.Validate(), "roles.owner")

	bad = *cfg
	bad.Settlement.FeeRateBps = 1001
	assert.ErrorContains(t, bad.Validate(), "fee_rate_bps")

	bad = *cfg
	bad.Settlement.MaxSettlementAmount = "0"
	assert.ErrorContains(t, bad.Validate(), "max_settlement_amount")

	bad = *cfg
	bad.Strategies = []StrategySourceEntry{{Ref: cfg.Strategies[0].Ref, Type: "oracle"}}
	assert.ErrorContains(t, bad.Validate(), "unknown type")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eidos-yield", cfg.Service.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("YIELD_INT", "42")
	assert.Equal(t, 42, GetEnvInt("YIELD_INT", 1))
	t.Setenv("YIELD_INT", "x")
	assert.Equal(t, 1, GetEnvInt("YIELD_INT", 1))
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "eidos-yield", cfg.Service.Name)
	assert.Equal(t, int64(31337), cfg.Blockchain.ChainID)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addresses)
	assert.True(t, cfg.Auth.Domain.IsMock())
	assert.Equal(t, 5*time.Minute, cfg.Auth.TimestampTolerance)
	assert.Equal(t, "0 */5 * * * *", cfg.Jobs.YieldSnapshotCron)
	assert.True(t, cfg.Calculator.CapEnforced())
	assert.True(t, cfg.Aggregator.TransferCompletionRestricted())
	assert.Len(t, cfg.Bridge.Chains, 4)
}
