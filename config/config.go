// Package config loads and validates the YAML configuration consumed
// by the backtest and run commands. Configuration is read once at
// startup and never reloaded.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/risk"
	"github.com/mvolkov/tradecore/strategy"
)

// Config is the complete runtime configuration.
type Config struct {
	Account    AccountConfig   `yaml:"account"`
	Market     MarketConfig    `yaml:"market"`
	Strategy   StrategyConfig  `yaml:"strategy"`
	Indicators IndicatorConfig `yaml:"indicators"`
	Risk       RiskConfig      `yaml:"risk"`
	Journal    JournalConfig   `yaml:"journal"`
	Logging    LoggingConfig   `yaml:"logging"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// AccountConfig holds the capital pool parameters.
type AccountConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Currency       string  `yaml:"currency"`
}

// MarketConfig selects the traded instruments and the polling cadence.
type MarketConfig struct {
	Symbols        []string `yaml:"symbols"`
	Timeframe      string   `yaml:"timeframe"`
	MinDataPoints  int      `yaml:"min_data_points"`
	UpdateInterval string   `yaml:"update_interval"` // e.g. "15m", "1h"
}

// ParseUpdateInterval converts the polling cadence to a Duration.
func (m MarketConfig) ParseUpdateInterval() (time.Duration, error) {
	if m.UpdateInterval == "" {
		return 15 * time.Minute, nil
	}
	return time.ParseDuration(m.UpdateInterval)
}

// StrategyConfig selects the active strategies and their thresholds.
type StrategyConfig struct {
	Active []string `yaml:"active"`
	Mode   string   `yaml:"mode"` // "any" or "all"

	MinVolumeFactor float64 `yaml:"min_volume_factor"`
	RSIOversold     float64 `yaml:"rsi_oversold"`
	RSIOverbought   float64 `yaml:"rsi_overbought"`
}

// IndicatorConfig holds the lookback periods.
type IndicatorConfig struct {
	EMAShort        int     `yaml:"ema_short"`
	EMALong         int     `yaml:"ema_long"`
	MACDFast        int     `yaml:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal"`
	RSIPeriod       int     `yaml:"rsi_period"`
	BollingerPeriod int     `yaml:"bollinger_period"`
	BollingerStdDev float64 `yaml:"bollinger_std_dev"`
	VolumeMAPeriod  int     `yaml:"volume_ma_period"`
	ATRPeriod       int     `yaml:"atr_period"`
}

// RiskConfig holds the position and exit limits. Percent fields are
// whole percents.
type RiskConfig struct {
	StopLossPercent     float64 `yaml:"stop_loss_percent"`
	TrailingStopPercent float64 `yaml:"trailing_stop_percent"`
	TakeProfitPercent   float64 `yaml:"take_profit_percent"`
	MaxPositionSize     float64 `yaml:"max_position_size"` // fraction 0..1
	MaxPositions        int     `yaml:"max_positions"`
	MaxHoldingDays      int     `yaml:"max_holding_days"`
	CommissionRate      float64 `yaml:"commission_rate"` // fraction of notional
}

// JournalConfig selects the trade ledger sink.
type JournalConfig struct {
	Type       string `yaml:"type"` // "memory", "csv" or "sqlite"
	DBPath     string `yaml:"db_path,omitempty"`
	TradesFile string `yaml:"trades_file,omitempty"`
	EquityFile string `yaml:"equity_file,omitempty"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// MetricsConfig controls the Prometheus endpoint of the live bot.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoadFromFile reads and validates a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols is required")
	}
	seen := make(map[string]bool, len(c.Market.Symbols))
	for _, s := range c.Market.Symbols {
		if s == "" {
			return fmt.Errorf("market.symbols must not contain empty entries")
		}
		if seen[s] {
			return fmt.Errorf("market.symbols lists %s twice", s)
		}
		seen[s] = true
	}
	if c.Market.MinDataPoints <= 0 {
		return fmt.Errorf("market.min_data_points must be positive")
	}
	if _, err := c.Market.ParseUpdateInterval(); err != nil {
		return fmt.Errorf("market.update_interval: %w", err)
	}

	if len(c.Strategy.Active) == 0 {
		return fmt.Errorf("strategy.active is required")
	}
	if _, err := strategy.ParseMode(c.Strategy.Mode); err != nil {
		return fmt.Errorf("strategy.mode: %w", err)
	}
	for _, name := range c.Strategy.Active {
		if _, err := strategy.ByName(name, c.StrategyThresholds()); err != nil {
			return fmt.Errorf("strategy.active: %w", err)
		}
	}
	if c.Strategy.RSIOversold >= c.Strategy.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold must be below rsi_overbought")
	}

	for name, v := range map[string]int{
		"indicators.ema_short":        c.Indicators.EMAShort,
		"indicators.ema_long":         c.Indicators.EMALong,
		"indicators.macd_fast":        c.Indicators.MACDFast,
		"indicators.macd_slow":        c.Indicators.MACDSlow,
		"indicators.macd_signal":      c.Indicators.MACDSignal,
		"indicators.rsi_period":       c.Indicators.RSIPeriod,
		"indicators.bollinger_period": c.Indicators.BollingerPeriod,
		"indicators.volume_ma_period": c.Indicators.VolumeMAPeriod,
		"indicators.atr_period":       c.Indicators.ATRPeriod,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Indicators.EMAShort >= c.Indicators.EMALong {
		return fmt.Errorf("indicators.ema_short must be below ema_long")
	}
	if c.Indicators.MACDFast >= c.Indicators.MACDSlow {
		return fmt.Errorf("indicators.macd_fast must be below macd_slow")
	}
	if c.Indicators.BollingerStdDev <= 0 {
		return fmt.Errorf("indicators.bollinger_std_dev must be positive")
	}

	if c.Risk.StopLossPercent <= 0 {
		return fmt.Errorf("risk.stop_loss_percent must be positive")
	}
	if c.Risk.TrailingStopPercent <= 0 {
		return fmt.Errorf("risk.trailing_stop_percent must be positive")
	}
	if c.Risk.TakeProfitPercent <= 0 {
		return fmt.Errorf("risk.take_profit_percent must be positive")
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		return fmt.Errorf("risk.max_position_size must be in (0, 1]")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive")
	}
	if c.Risk.MaxHoldingDays <= 0 {
		return fmt.Errorf("risk.max_holding_days must be positive")
	}
	if c.Risk.CommissionRate < 0 || c.Risk.CommissionRate >= 1 {
		return fmt.Errorf("risk.commission_rate must be in [0, 1)")
	}

	switch c.Journal.Type {
	case "memory":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for csv type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'memory', 'csv' or 'sqlite'")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr required when metrics are enabled")
	}
	return nil
}

func (ic IndicatorConfig) params() indicators.Params {
	return indicators.Params{
		EMAShort:        ic.EMAShort,
		EMALong:         ic.EMALong,
		MACDFast:        ic.MACDFast,
		MACDSlow:        ic.MACDSlow,
		MACDSignal:      ic.MACDSignal,
		RSIPeriod:       ic.RSIPeriod,
		BollingerPeriod: ic.BollingerPeriod,
		BollingerStdDev: ic.BollingerStdDev,
		VolumeMAPeriod:  ic.VolumeMAPeriod,
		ATRPeriod:       ic.ATRPeriod,
	}
}

// IndicatorParams converts the indicator section to domain parameters.
func (c *Config) IndicatorParams() indicators.Params {
	return c.Indicators.params()
}

// RiskLimits converts the risk section to manager limits.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		StopLossPercent:     c.Risk.StopLossPercent,
		TrailingStopPercent: c.Risk.TrailingStopPercent,
		TakeProfitPercent:   c.Risk.TakeProfitPercent,
		MaxPositionSize:     c.Risk.MaxPositionSize,
		MaxPositions:        c.Risk.MaxPositions,
		MaxHoldingDays:      c.Risk.MaxHoldingDays,
		CommissionRate:      c.Risk.CommissionRate,
	}
}

// StrategyThresholds converts the strategy section to decision
// thresholds.
func (c *Config) StrategyThresholds() strategy.Config {
	return strategy.Config{
		MinVolumeFactor: c.Strategy.MinVolumeFactor,
		RSIOversold:     c.Strategy.RSIOversold,
		RSIOverbought:   c.Strategy.RSIOverbought,
	}
}

// BuildCombiner assembles the configured strategies in their listed
// order.
func (c *Config) BuildCombiner() (*strategy.Combiner, error) {
	mode, err := strategy.ParseMode(c.Strategy.Mode)
	if err != nil {
		return nil, err
	}
	strats := make([]strategy.Strategy, 0, len(c.Strategy.Active))
	for _, name := range c.Strategy.Active {
		s, err := strategy.ByName(name, c.StrategyThresholds())
		if err != nil {
			return nil, err
		}
		strats = append(strats, s)
	}
	return strategy.NewCombiner(mode, strats), nil
}

// Default returns the configuration used when a value is omitted from
// the file.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialCapital: 50000,
			Currency:       "RUB",
		},
		Market: MarketConfig{
			Symbols:        []string{"SBER", "GAZP"},
			Timeframe:      "1d",
			MinDataPoints:  30,
			UpdateInterval: "15m",
		},
		Strategy: StrategyConfig{
			Active:          []string{"trend", "reversal"},
			Mode:            "any",
			MinVolumeFactor: 1.0,
			RSIOversold:     30,
			RSIOverbought:   70,
		},
		Indicators: IndicatorConfig{
			EMAShort:        8,
			EMALong:         21,
			MACDFast:        12,
			MACDSlow:        26,
			MACDSignal:      9,
			RSIPeriod:       14,
			BollingerPeriod: 20,
			BollingerStdDev: 2.0,
			VolumeMAPeriod:  20,
			ATRPeriod:       14,
		},
		Risk: RiskConfig{
			StopLossPercent:     2.0,
			TrailingStopPercent: 1.5,
			TakeProfitPercent:   4.0,
			MaxPositionSize:     0.9,
			MaxPositions:        1,
			MaxHoldingDays:      7,
			CommissionRate:      0.003,
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9100",
		},
	}
}
