package config

import (
	"testing"
	"time"

	"github.com/chainsage-alerts/internal/types"
)

const testWallet = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WALLET_ADDRESS", testWallet)
	t.Setenv("AGENT_LOOP_INTERVAL", "15000")
	t.Setenv("CHAINS", "137, 1,8453")
	t.Setenv("POLYGON_RPC_PRIMARY", "https://polygon.example")
	t.Setenv("REDIS_TTL", "30s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Agent.Interval != 15*time.Second {
		t.Errorf("Agent.Interval = %v, want %v", cfg.Agent.Interval, 15*time.Second)
	}
	want := []types.ChainID{137, 1, 8453}
	if len(cfg.Chains.Monitored) != len(want) {
		t.Fatalf("Chains.Monitored = %v, want %v", cfg.Chains.Monitored, want)
	}
	for i := range want {
		if cfg.Chains.Monitored[i] != want[i] {
			t.Errorf("Chains.Monitored[%d] = %v, want %v", i, cfg.Chains.Monitored[i], want[i])
		}
	}
	if cfg.Chains.Chains[types.ChainPolygon].RPCPrimary != "https://polygon.example" {
		t.Errorf("polygon RPCPrimary = %q", cfg.Chains.Chains[types.ChainPolygon].RPCPrimary)
	}
	if cfg.Redis.TTL != 30*time.Second {
		t.Errorf("Redis.TTL = %v, want %v", cfg.Redis.TTL, 30*time.Second)
	}
	if !cfg.Agent.AllowOverlap {
		t.Error("Agent.AllowOverlap should default to true")
	}
}

func TestLoadConfig_DefaultChains(t *testing.T) {
	t.Setenv("CHAINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if len(cfg.Chains.Monitored) != 2 ||
		cfg.Chains.Monitored[0] != types.ChainEthereum ||
		cfg.Chains.Monitored[1] != types.ChainPolygon {
		t.Errorf("Chains.Monitored = %v, want [1 137]", cfg.Chains.Monitored)
	}
}

func TestLoadConfig_InvalidChains(t *testing.T) {
	t.Setenv("CHAINS", "1,polygon")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for non-numeric chain id")
	}
}

func TestRPCEndpoints(t *testing.T) {
	c := ChainsConfig{
		ThirdwebClientID: "abc123",
		Chains: map[types.ChainID]ChainConfig{
			types.ChainEthereum: {RPCPrimary: "https://eth.example", RPCSecondary: "https://eth2.example"},
			types.ChainPolygon:  {},
		},
	}

	primary, secondary := c.RPCEndpoints(types.ChainEthereum)
	if primary != "https://eth.example" || secondary != "https://eth2.example" {
		t.Errorf("explicit endpoints = %q, %q", primary, secondary)
	}

	primary, _ = c.RPCEndpoints(types.ChainPolygon)
	if primary != "https://137.rpc.thirdweb.com/abc123" {
		t.Errorf("derived endpoint = %q", primary)
	}

	c.ThirdwebClientID = ""
	if primary, _ = c.RPCEndpoints(types.ChainPolygon); primary != "" {
		t.Errorf("expected no endpoint without client id, got %q", primary)
	}
}

func validConfig() *Config {
	return &Config{
		Agent: AgentConfig{WalletAddress: testWallet, Interval: 30 * time.Second},
		Chains: ChainsConfig{
			Monitored:        DefaultMonitoredChains(),
			ThirdwebClientID: "client",
			Chains:           map[types.ChainID]ChainConfig{},
		},
		Store:     StoreConfig{Driver: "sqlite", SQLitePath: "data/alerts.db"},
		RateLimit: RateLimitConfig{RequestsPerMinute: 100},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(c *Config) {}},
		{name: "missing wallet", mutate: func(c *Config) { c.Agent.WalletAddress = "" }, wantErr: true},
		{name: "malformed wallet", mutate: func(c *Config) { c.Agent.WalletAddress = "0x1234" }, wantErr: true},
		{name: "interval below floor", mutate: func(c *Config) { c.Agent.Interval = 9999 * time.Millisecond }, wantErr: true},
		{name: "interval at floor", mutate: func(c *Config) { c.Agent.Interval = MinAgentInterval }},
		{name: "no credentials", mutate: func(c *Config) { c.Chains.ThirdwebClientID = "" }, wantErr: true},
		{
			name: "explicit rpc without client id",
			mutate: func(c *Config) {
				c.Chains.ThirdwebClientID = ""
				c.Chains.Chains[types.ChainEthereum] = ChainConfig{RPCPrimary: "https://eth"}
				c.Chains.Chains[types.ChainPolygon] = ChainConfig{RPCPrimary: "https://poly"}
			},
		},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: true},
		{name: "postgres store", mutate: func(c *Config) { c.Store.Driver = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvPrefix(t *testing.T) {
	if got := EnvPrefix(types.ChainBNB); got != "BSC" {
		t.Errorf("EnvPrefix(56) = %q", got)
	}
	if got := EnvPrefix(324); got != "CHAIN_324" {
		t.Errorf("EnvPrefix(324) = %q", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{name: "returns integer when valid", key: "TEST_INT", defaultValue: 100, envValue: "200", want: 200},
		{name: "returns default when invalid", key: "TEST_INT_INVALID", defaultValue: 100, envValue: "invalid", want: 100},
		{name: "returns default when not set", key: "TEST_INT_NOTSET", defaultValue: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnvAsInt(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	if getEnvAsBool("TEST_BOOL", true) {
		t.Error("getEnvAsBool() = true, want false")
	}
	t.Setenv("TEST_BOOL_BAD", "maybe")
	if !getEnvAsBool("TEST_BOOL_BAD", true) {
		t.Error("getEnvAsBool() should fall back to default on invalid input")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "30s")
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 30*time.Second {
		t.Errorf("getEnvAsDuration() = %v", got)
	}
	t.Setenv("TEST_DURATION_INVALID", "soon")
	if got := getEnvAsDuration("TEST_DURATION_INVALID", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() = %v", got)
	}
}
