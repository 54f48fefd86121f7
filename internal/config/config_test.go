package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() Config {
	return Config{
		Mode:                "paper",
		Coins:               []string{"BTC"},
		CycleInterval:       Duration(time.Hour),
		ConfidenceThreshold: 0.5,
		MaxLeverage:         5,
		RiskFraction:        0.02,
		RewardRiskRatio:     3,
		LedgerBackend:       "file",
		LedgerDir:           "data",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"live mode not wired", func(c *Config) { c.Mode = "live" }, true},
		{"no coins", func(c *Config) { c.Coins = nil }, true},
		{"zero interval", func(c *Config) { c.CycleInterval = 0 }, true},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, true},
		{"negative leverage", func(c *Config) { c.MaxLeverage = -1 }, true},
		{"risk fraction too large", func(c *Config) { c.RiskFraction = 1 }, true},
		{"postgres without conn str", func(c *Config) { c.LedgerBackend = "postgres" }, true},
		{"postgres with conn str", func(c *Config) {
			c.LedgerBackend = "postgres"
			c.DBConnStr = "postgres://localhost/trades"
		}, false},
		{"unknown ledger", func(c *Config) { c.LedgerBackend = "redis" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitCoins(t *testing.T) {
	assert.Equal(t, []string{"BTC", "ETH"}, splitCoins("btc, eth"))
	assert.Equal(t, []string{"BTC"}, splitCoins("BTC,"))
	assert.Nil(t, splitCoins(""))
}

func TestYAMLConfig(t *testing.T) {
	raw := `
mode: "paper"
coins: ["BTC", "ETH"]
cycle_interval: 30m
confidence_threshold: 0.6
max_leverage: 3.0
risk_fraction: 0.01
reward_risk_ratio: 2.5
ledger_backend: "file"
ledger_dir: "/var/lib/autotrader"
metrics_addr: ":9191"
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Coins)
	assert.Equal(t, 30*time.Minute, cfg.CycleInterval.Std())
	assert.InDelta(t, 0.6, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, ":9191", cfg.MetricsAddr)
}
