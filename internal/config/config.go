// Package config provides configuration management for the marketplace backend.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/joho/godotenv"
	"github.com/usdt-market/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Networks    map[types.Network]NetworkConfig
	Tron        TronConfig
	Signers     SignerConfig
	ColdWallets ColdWalletConfig
	Auth        AuthConfig
	Verifier    VerifierConfig
	Payout      PayoutConfig
	Trade       TradeConfig
	Chat        ChatConfig
	Worker      WorkerConfig
	RateLimit   RateLimitConfig
	RPCBudget   RPCBudgetConfig
	Logging     LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by the migration tool
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration.
// ClickHouse only stores allowance history, so it is optional.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// NetworkConfig holds the endpoints and contract addresses of one network
type NetworkConfig struct {
	RPC     string
	Token   string
	Spender string
	ChainID int64 // EVM only
}

// TronConfig holds Tron full node options
type TronConfig struct {
	APIKey   string
	FeeLimit int64 // sun
}

// SignerConfig holds the admin relayer keys. Either may be empty, in which
// case payouts on that family fail with a configuration error.
type SignerConfig struct {
	EVMPrivateKey  string
	TronPrivateKey string
}

// ColdWalletConfig holds the payout destinations per network family
type ColdWalletConfig struct {
	EVM  string
	Tron string
}

// ForFamily returns the cold wallet configured for a network family
func (c ColdWalletConfig) ForFamily(f types.Family) string {
	if f == types.FamilyTron {
		return c.Tron
	}
	return c.EVM
}

// AuthConfig holds admin authentication configuration
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
}

// VerifierConfig holds allowance verification limits
type VerifierConfig struct {
	CallTimeout time.Duration
	Concurrency int
}

// PayoutConfig holds payout execution options
type PayoutConfig struct {
	LockTTL time.Duration
}

// TradeConfig holds trade quote options
type TradeConfig struct {
	EscrowDuration          time.Duration
	TrustWalletApprovalUSDT int64
}

// ChatConfig bounds the in-memory chat relay
type ChatConfig struct {
	HistoryLimit int
	MaxRooms     int
}

// WorkerConfig holds allowance watcher configuration
type WorkerConfig struct {
	Interval time.Duration
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	PublicRPS int
	AdminRPS  int
}

// RPCBudgetConfig holds the Redis-shared chain call budget. Reserved calls
// per second are kept for interactive requests; background sweeps share
// the rest.
type RPCBudgetConfig struct {
	Enabled        bool
	CallsPerSecond int
	Reserved       int
	MaxWait        time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "5000"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "usdt_market"),
				User:           getEnv("POSTGRES_USER", "market"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "usdt_market"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Networks: loadNetworkConfigs(),
		Tron: TronConfig{
			APIKey:   getEnv("TRON_API_KEY", ""),
			FeeLimit: int64(getEnvAsInt("TRON_FEE_LIMIT", 50_000_000)),
		},
		Signers: SignerConfig{
			EVMPrivateKey:  getEnv("ADMIN_EVM_PRIVATE_KEY", ""),
			TronPrivateKey: getEnv("ADMIN_TRON_PRIVATE_KEY", ""),
		},
		ColdWallets: ColdWalletConfig{
			EVM:  strings.TrimSpace(getEnv("ADMIN_COLD_WALLET_EVM", "")),
			Tron: strings.TrimSpace(getEnv("ADMIN_COLD_WALLET_TRON", "")),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvAsDuration("JWT_TTL", 24*time.Hour),
			AdminUsername: getEnv("ADMIN_USERNAME", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Verifier: VerifierConfig{
			CallTimeout: getEnvAsDuration("CHAIN_CALL_TIMEOUT", 8*time.Second),
			Concurrency: getEnvAsInt("VERIFY_CONCURRENCY", 16),
		},
		Payout: PayoutConfig{
			LockTTL: getEnvAsDuration("PAYOUT_LOCK_TTL", 2*time.Minute),
		},
		Trade: TradeConfig{
			EscrowDuration:          getEnvAsDuration("ESCROW_DURATION", 30*time.Minute),
			TrustWalletApprovalUSDT: int64(getEnvAsInt("TRUSTWALLET_APPROVAL_USDT", 1_000_000)),
		},
		Chat: ChatConfig{
			HistoryLimit: getEnvAsInt("CHAT_HISTORY_LIMIT", 200),
			MaxRooms:     getEnvAsInt("CHAT_MAX_ROOMS", 10000),
		},
		Worker: WorkerConfig{
			Interval: getEnvAsDuration("WATCH_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			PublicRPS: getEnvAsInt("RATE_LIMIT_PUBLIC_RPS", 20),
			AdminRPS:  getEnvAsInt("RATE_LIMIT_ADMIN_RPS", 100),
		},
		RPCBudget: RPCBudgetConfig{
			Enabled:        getEnvAsBool("RPC_BUDGET_ENABLED", true),
			CallsPerSecond: getEnvAsInt("RPC_BUDGET_CALLS_PER_SECOND", 50),
			Reserved:       getEnvAsInt("RPC_BUDGET_RESERVED", 30),
			MaxWait:        getEnvAsDuration("RPC_BUDGET_MAX_WAIT", 2*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// loadNetworkConfigs loads the per-network RPC, token and spender settings
func loadNetworkConfigs() map[types.Network]NetworkConfig {
	return map[types.Network]NetworkConfig{
		types.NetworkERC20: {
			RPC:     getEnv("ETH_RPC", ""),
			Token:   getEnv("USDT_ETH", ""),
			Spender: getEnv("SPENDER_ETH", ""),
			ChainID: int64(getEnvAsInt("ETH_CHAIN_ID", 1)),
		},
		types.NetworkBEP20: {
			RPC:     getEnv("BSC_RPC", ""),
			Token:   getEnv("USDT_BSC", ""),
			Spender: getEnv("SPENDER_BSC", ""),
			ChainID: int64(getEnvAsInt("BSC_CHAIN_ID", 56)),
		},
		types.NetworkTRC20: {
			RPC:     getEnv("TRON_FULLNODE", ""),
			Token:   getEnv("USDT_TRON", ""),
			Spender: getEnv("SPENDER_TRON", ""),
		},
	}
}

// Validate checks the settings the process must not start without.
// Per-network RPC, token and spender gaps are tolerated here and reported
// as configuration errors when a request touches that network.
func (c *Config) Validate() error {
	var missing []string
	if c.ColdWallets.EVM == "" {
		missing = append(missing, "ADMIN_COLD_WALLET_EVM")
	}
	if c.ColdWallets.Tron == "" {
		missing = append(missing, "ADMIN_COLD_WALLET_TRON")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if !common.IsHexAddress(c.ColdWallets.EVM) {
		return fmt.Errorf("ADMIN_COLD_WALLET_EVM is not a valid EVM address: %s", c.ColdWallets.EVM)
	}
	if _, err := address.Base58ToAddress(c.ColdWallets.Tron); err != nil {
		return fmt.Errorf("ADMIN_COLD_WALLET_TRON is not a valid Tron address: %w", err)
	}
	if c.RPCBudget.Enabled && c.RPCBudget.Reserved > c.RPCBudget.CallsPerSecond {
		return fmt.Errorf("RPC_BUDGET_RESERVED (%d) cannot exceed RPC_BUDGET_CALLS_PER_SECOND (%d)", c.RPCBudget.Reserved, c.RPCBudget.CallsPerSecond)
	}
	if c.Verifier.Concurrency <= 0 {
		return fmt.Errorf("VERIFY_CONCURRENCY must be positive, got %d", c.Verifier.Concurrency)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// NetworkEnvSuffix returns the suffix of a network's env settings
// (USDT_<suffix>, SPENDER_<suffix>)
func NetworkEnvSuffix(n types.Network) string {
	switch n {
	case types.NetworkERC20:
		return "ETH"
	case types.NetworkBEP20:
		return "BSC"
	case types.NetworkTRC20:
		return "TRON"
	default:
		return strings.ToUpper(string(n))
	}
}

// NetworkRPCEnv returns the env var holding a network's RPC endpoint
func NetworkRPCEnv(n types.Network) string {
	if n == types.NetworkTRC20 {
		return "TRON_FULLNODE"
	}
	return NetworkEnvSuffix(n) + "_RPC"
}
