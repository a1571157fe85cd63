// Package config provides configuration management for the wallet monitor.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chainsage-alerts/internal/types"
	"github.com/joho/godotenv"
)

// MinAgentInterval is the shortest allowed delay between pipeline passes
const MinAgentInterval = 10 * time.Second

var walletAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Agent     AgentConfig
	Chains    ChainsConfig
	Fetch     FetchConfig
	Store     StoreConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Host           string
	AllowedOrigins []string
	StaticDir      string
	ManifestPath   string
}

// AgentConfig holds monitoring scheduler configuration
type AgentConfig struct {
	WalletAddress string
	Interval      time.Duration
	AllowOverlap  bool
}

// ChainsConfig holds chain configuration
type ChainsConfig struct {
	Monitored        []types.ChainID
	ThirdwebClientID string
	Chains           map[types.ChainID]ChainConfig
}

// ChainConfig holds configuration for a specific chain
type ChainConfig struct {
	RPCPrimary   string
	RPCSecondary string
}

// FetchConfig holds balance fetch resilience settings
type FetchConfig struct {
	MaxAttempts       int
	RetryDelay        time.Duration
	BreakerEnabled    bool
	BreakerMaxFailure int
	BreakerTimeout    time.Duration
	RPCRateLimit      int // RPC calls per second per chain, 0 disables
}

// StoreConfig selects and configures the alert store
type StoreConfig struct {
	Driver     string // sqlite | postgres
	SQLitePath string
	Postgres   PostgresConfig
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

// URL returns the connection URL used by migrations
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, p.Database)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig holds alert publisher configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RateLimitConfig holds HTTP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	SweepInterval     time.Duration
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

	monitored, err := parseChainIDs(getEnv("CHAINS", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", getEnv("SERVER_PORT", "3000")),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
			StaticDir:      getEnv("STATIC_DIR", ""),
			ManifestPath:   getEnv("MCP_MANIFEST_PATH", "mcp-manifest.json"),
		},
		Agent: AgentConfig{
			WalletAddress: getEnv("WALLET_ADDRESS", ""),
			Interval:      time.Duration(getEnvAsInt("AGENT_LOOP_INTERVAL", 30000)) * time.Millisecond,
			AllowOverlap:  getEnvAsBool("AGENT_ALLOW_OVERLAP", true),
		},
		Fetch: FetchConfig{
			MaxAttempts:       getEnvAsInt("FETCH_MAX_ATTEMPTS", 1),
			RetryDelay:        getEnvAsDuration("FETCH_RETRY_DELAY", time.Second),
			BreakerEnabled:    getEnvAsBool("FETCH_BREAKER_ENABLED", true),
			BreakerMaxFailure: getEnvAsInt("FETCH_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:    getEnvAsDuration("FETCH_BREAKER_TIMEOUT", 60*time.Second),
			RPCRateLimit:      getEnvAsInt("FETCH_RPC_RATE_LIMIT", 0),
		},
		Store: StoreConfig{
			Driver:     getEnv("ALERT_STORE", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", "data/alerts.db"),
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "chainsage"),
				User:           getEnv("POSTGRES_USER", "chainsage"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("REDIS_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_ALERTS_TOPIC", "chainsage.alerts"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
			SweepInterval:     getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Chains = loadChainConfigs(monitored)

	return config, nil
}

// DefaultMonitoredChains is used when CHAINS is not set
func DefaultMonitoredChains() []types.ChainID {
	return []types.ChainID{types.ChainEthereum, types.ChainPolygon}
}

// loadChainConfigs loads chain-specific RPC endpoints.
// Endpoints are read from <PREFIX>_RPC_PRIMARY / <PREFIX>_RPC_SECONDARY where the
// prefix is the upper-cased chain name (ETHEREUM, POLYGON, ...) or CHAIN_<id>.
func loadChainConfigs(monitored []types.ChainID) ChainsConfig {
	if len(monitored) == 0 {
		monitored = DefaultMonitoredChains()
	}

	chains := make(map[types.ChainID]ChainConfig, len(monitored))
	for _, id := range monitored {
		prefix := EnvPrefix(id)
		chains[id] = ChainConfig{
			RPCPrimary:   getEnv(prefix+"_RPC_PRIMARY", getEnv(fmt.Sprintf("CHAIN_%d_RPC_PRIMARY", id), "")),
			RPCSecondary: getEnv(prefix+"_RPC_SECONDARY", getEnv(fmt.Sprintf("CHAIN_%d_RPC_SECONDARY", id), "")),
		}
	}

	return ChainsConfig{
		Monitored:        monitored,
		ThirdwebClientID: getEnv("THIRDWEB_CLIENT_ID", ""),
		Chains:           chains,
	}
}

var envPrefixes = map[types.ChainID]string{
	types.ChainEthereum: "ETHEREUM",
	types.ChainPolygon:  "POLYGON",
	types.ChainBNB:      "BSC",
	types.ChainArbitrum: "ARBITRUM",
	types.ChainOptimism: "OPTIMISM",
	types.ChainBase:     "BASE",
}

// EnvPrefix returns the environment variable prefix for a chain's RPC settings
func EnvPrefix(id types.ChainID) string {
	if p, ok := envPrefixes[id]; ok {
		return p
	}
	return fmt.Sprintf("CHAIN_%d", id)
}

// RPCEndpoints returns the primary and secondary RPC URLs for a chain.
// When no explicit primary is configured, the thirdweb gateway URL is derived from the client id.
func (c ChainsConfig) RPCEndpoints(id types.ChainID) (primary, secondary string) {
	cc := c.Chains[id]
	primary, secondary = cc.RPCPrimary, cc.RPCSecondary
	if primary == "" && c.ThirdwebClientID != "" {
		primary = fmt.Sprintf("https://%d.rpc.thirdweb.com/%s", id, c.ThirdwebClientID)
	}
	return primary, secondary
}

// Validate performs the pre-flight checks that must hold before the agent runs
func (c *Config) Validate() error {
	if c.Agent.WalletAddress == "" {
		return fmt.Errorf("WALLET_ADDRESS not set in environment variables")
	}
	if !IsWalletAddress(c.Agent.WalletAddress) {
		return fmt.Errorf("invalid wallet address format: %s", c.Agent.WalletAddress)
	}
	if c.Agent.Interval < MinAgentInterval {
		return fmt.Errorf("AGENT_LOOP_INTERVAL must be at least %dms, got %dms",
			MinAgentInterval.Milliseconds(), c.Agent.Interval.Milliseconds())
	}
	if len(c.Chains.Monitored) == 0 {
		return fmt.Errorf("no chains configured for monitoring")
	}
	for _, id := range c.Chains.Monitored {
		if primary, _ := c.Chains.RPCEndpoints(id); primary == "" {
			return fmt.Errorf("no RPC endpoint for chain %d: set THIRDWEB_CLIENT_ID or %s_RPC_PRIMARY", id, EnvPrefix(id))
		}
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must not be empty")
		}
	case "postgres":
	default:
		return fmt.Errorf("unknown ALERT_STORE driver: %s", c.Store.Driver)
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.Fetch.RPCRateLimit < 0 {
		return fmt.Errorf("FETCH_RPC_RATE_LIMIT cannot be negative")
	}
	return nil
}

// IsWalletAddress reports whether s is a 0x-prefixed 20-byte hex address
func IsWalletAddress(s string) bool {
	return walletAddressPattern.MatchString(s)
}

// parseChainIDs parses a comma-separated list of numeric chain ids, keeping order
func parseChainIDs(raw string) ([]types.ChainID, error) {
	var ids []types.ChainID
	for _, part := range splitList(raw) {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid chain id %q in CHAINS", part)
		}
		ids = append(ids, types.ChainID(n))
	}
	return ids, nil
}

// splitList splits a comma-separated value, trimming blanks
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
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

// getEnvAsBool gets an environment variable as a boolean with a default value
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
