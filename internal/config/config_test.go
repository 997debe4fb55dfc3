package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdt-market/internal/types"
)

const (
	testColdEVM  = "0x1111111111111111111111111111111111111111"
	testColdTron = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("CHAIN_CALL_TIMEOUT", "5s")
	t.Setenv("ETH_RPC", "https://eth.example")
	t.Setenv("SPENDER_BSC", "0x2222222222222222222222222222222222222222")
	t.Setenv("TRON_FULLNODE", "https://api.trongrid.io")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "testhost", cfg.Database.Postgres.Host)
	assert.Equal(t, 5*time.Second, cfg.Verifier.CallTimeout)
	assert.Equal(t, "https://eth.example", cfg.Networks[types.NetworkERC20].RPC)
	assert.Equal(t, int64(1), cfg.Networks[types.NetworkERC20].ChainID)
	assert.Equal(t, int64(56), cfg.Networks[types.NetworkBEP20].ChainID)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", cfg.Networks[types.NetworkBEP20].Spender)
	assert.Equal(t, "https://api.trongrid.io", cfg.Networks[types.NetworkTRC20].RPC)
	assert.Equal(t, int64(50_000_000), cfg.Tron.FeeLimit)
	assert.Equal(t, 30*time.Minute, cfg.Trade.EscrowDuration)
	assert.True(t, cfg.RPCBudget.Enabled)
	assert.Equal(t, 50, cfg.RPCBudget.CallsPerSecond)
	assert.Equal(t, 30, cfg.RPCBudget.Reserved)
}

func validConfig() *Config {
	return &Config{
		ColdWallets: ColdWalletConfig{EVM: testColdEVM, Tron: testColdTron},
		Auth:        AuthConfig{JWTSecret: "secret"},
		Verifier:    VerifierConfig{Concurrency: 4},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing evm cold wallet",
			mutate:  func(c *Config) { c.ColdWallets.EVM = "" },
			wantErr: "ADMIN_COLD_WALLET_EVM",
		},
		{
			name:    "missing tron cold wallet",
			mutate:  func(c *Config) { c.ColdWallets.Tron = "" },
			wantErr: "ADMIN_COLD_WALLET_TRON",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "malformed evm cold wallet",
			mutate:  func(c *Config) { c.ColdWallets.EVM = "0x1234" },
			wantErr: "not a valid EVM address",
		},
		{
			name:    "malformed tron cold wallet",
			mutate:  func(c *Config) { c.ColdWallets.Tron = "TNotAnAddress" },
			wantErr: "not a valid Tron address",
		},
		{
			name: "reserved budget above total",
			mutate: func(c *Config) {
				c.RPCBudget = RPCBudgetConfig{Enabled: true, CallsPerSecond: 10, Reserved: 20}
			},
			wantErr: "RPC_BUDGET_RESERVED",
		},
		{
			name:   "disabled budget skips check",
			mutate: func(c *Config) { c.RPCBudget = RPCBudgetConfig{CallsPerSecond: 10, Reserved: 20} },
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Verifier.Concurrency = 0 },
			wantErr: "VERIFY_CONCURRENCY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestColdWalletForFamily(t *testing.T) {
	c := ColdWalletConfig{EVM: testColdEVM, Tron: testColdTron}
	assert.Equal(t, testColdEVM, c.ForFamily(types.FamilyEVM))
	assert.Equal(t, testColdTron, c.ForFamily(types.FamilyTron))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_STR", "custom")
	t.Setenv("T_INT", "200")
	t.Setenv("T_INT_BAD", "many")
	t.Setenv("T_DUR", "30s")
	t.Setenv("T_DUR_BAD", "soon")
	t.Setenv("T_BOOL", "true")
	t.Setenv("T_BOOL_BAD", "maybe")

	assert.Equal(t, "custom", getEnv("T_STR", "default"))
	assert.Equal(t, "default", getEnv("T_STR_UNSET", "default"))

	assert.Equal(t, 200, getEnvAsInt("T_INT", 100))
	assert.Equal(t, 100, getEnvAsInt("T_INT_BAD", 100))
	assert.Equal(t, 100, getEnvAsInt("T_INT_UNSET", 100))

	assert.Equal(t, 30*time.Second, getEnvAsDuration("T_DUR", 10*time.Second))
	assert.Equal(t, 10*time.Second, getEnvAsDuration("T_DUR_BAD", 10*time.Second))
	assert.Equal(t, 10*time.Second, getEnvAsDuration("T_DUR_UNSET", 10*time.Second))

	assert.True(t, getEnvAsBool("T_BOOL", false))
	assert.True(t, getEnvAsBool("T_BOOL_BAD", true))
	assert.False(t, getEnvAsBool("T_BOOL_UNSET", false))
}

func TestNetworkEnvNames(t *testing.T) {
	assert.Equal(t, "ETH", NetworkEnvSuffix(types.NetworkERC20))
	assert.Equal(t, "BSC", NetworkEnvSuffix(types.NetworkBEP20))
	assert.Equal(t, "TRON", NetworkEnvSuffix(types.NetworkTRC20))
	assert.Equal(t, "BSC_RPC", NetworkRPCEnv(types.NetworkBEP20))
	assert.Equal(t, "TRON_FULLNODE", NetworkRPCEnv(types.NetworkTRC20))
}
