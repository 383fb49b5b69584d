package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	iv, err := cfg.Market.ParseUpdateInterval()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, iv)

	comb, err := cfg.BuildCombiner()
	require.NoError(t, err)
	assert.Len(t, comb.Strategies(), 2)
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Market.Symbols = []string{"LKOH"}
	cfg.Risk.StopLossPercent = 3.5
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"LKOH"}, loaded.Market.Symbols)
	assert.Equal(t, 3.5, loaded.Risk.StopLossPercent)
	assert.Equal(t, cfg.Indicators, loaded.Indicators)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  initial_capital: 100000\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, cfg.Account.InitialCapital)
	assert.Equal(t, []string{"SBER", "GAZP"}, cfg.Market.Symbols)
	assert.Equal(t, 2.0, cfg.Risk.StopLossPercent)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no symbols", func(c *Config) { c.Market.Symbols = nil }, "market.symbols"},
		{"duplicate symbol", func(c *Config) { c.Market.Symbols = []string{"SBER", "SBER"} }, "twice"},
		{"bad interval", func(c *Config) { c.Market.UpdateInterval = "soon" }, "update_interval"},
		{"no strategies", func(c *Config) { c.Strategy.Active = nil }, "strategy.active"},
		{"unknown strategy", func(c *Config) { c.Strategy.Active = []string{"momentum"} }, "unknown strategy"},
		{"bad mode", func(c *Config) { c.Strategy.Mode = "majority" }, "strategy.mode"},
		{"rsi bands inverted", func(c *Config) { c.Strategy.RSIOversold = 80 }, "rsi_oversold"},
		{"ema order", func(c *Config) { c.Indicators.EMAShort = 30 }, "ema_short"},
		{"macd order", func(c *Config) { c.Indicators.MACDFast = 30 }, "macd_fast"},
		{"zero period", func(c *Config) { c.Indicators.RSIPeriod = 0 }, "rsi_period"},
		{"position size", func(c *Config) { c.Risk.MaxPositionSize = 1.5 }, "max_position_size"},
		{"commission", func(c *Config) { c.Risk.CommissionRate = 1.0 }, "commission_rate"},
		{"negative capital", func(c *Config) { c.Account.InitialCapital = -1 }, "initial_capital"},
		{"journal type", func(c *Config) { c.Journal.Type = "kafka" }, "journal.type"},
		{"sqlite path", func(c *Config) { c.Journal.Type = "sqlite"; c.Journal.DBPath = "" }, "db_path"},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddr = "" }, "listen_addr"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
