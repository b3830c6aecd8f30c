package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/risk"
	"github.com/rustyeddy/perptrader/strategies"
)

// Config is the complete bot configuration. It is loaded once and handed to each
// component as a value.
type Config struct {
	Account    AccountConfig     `json:"account" yaml:"account"`
	Risk       RiskConfig        `json:"risk" yaml:"risk"`
	Exits      ExitsConfig       `json:"exits" yaml:"exits"`
	Strategy   StrategyConfig    `json:"strategy" yaml:"strategy"`
	Instrument market.Instrument `json:"instrument" yaml:"instrument"`
	Exchange   ExchangeConfig    `json:"exchange" yaml:"exchange"`
	Live       LiveConfig        `json:"live" yaml:"live"`
	Backtest   BacktestConfig    `json:"backtest" yaml:"backtest"`
	Journal    JournalConfig     `json:"journal" yaml:"journal"`
	Notify     NotifyConfig      `json:"notify" yaml:"notify"`
	Log        LogConfig         `json:"log" yaml:"log"`
}

type AccountConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"` // USDT
	Leverage       float64 `json:"leverage" yaml:"leverage"`
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"` // per side
}

type RiskConfig struct {
	RiskPct              float64 `json:"risk_pct" yaml:"risk_pct"`
	PositionSizePct      float64 `json:"position_size_pct" yaml:"position_size_pct"`
	StopPct              float64 `json:"stop_pct" yaml:"stop_pct"`
	MaxOpenPositions     int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxTradesPerDay      int     `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MaxDailyLoss         float64 `json:"max_daily_loss" yaml:"max_daily_loss"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	Timezone             string  `json:"timezone" yaml:"timezone"` // IANA name, day boundary of the governor
}

type ExitsConfig struct {
	UseATRStop          bool    `json:"use_atr_stop" yaml:"use_atr_stop"`
	ATRMultiplier       float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
	TP1Ratio            float64 `json:"tp1_ratio" yaml:"tp1_ratio"`
	TP1ClosePct         float64 `json:"tp1_close_pct" yaml:"tp1_close_pct"`
	TP2Ratio            float64 `json:"tp2_ratio" yaml:"tp2_ratio"`
	MoveStopToBreakEven bool    `json:"move_stop_to_break_even" yaml:"move_stop_to_break_even"`
}

type StrategyConfig struct {
	Name              string `json:"name" yaml:"name"`
	strategies.Params `yaml:",inline"`
}

type ExchangeConfig struct {
	Testnet            bool   `json:"testnet" yaml:"testnet"`
	RealTradingEnabled bool   `json:"real_trading_enabled" yaml:"real_trading_enabled"`
	ProxyURL           string `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`
	APIKey             string `json:"-" yaml:"-"`
	APISecret          string `json:"-" yaml:"-"`
}

// HasCredentials reports whether API keys were supplied.
func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.APISecret != "" && !strings.HasPrefix(e.APIKey, "YOUR_")
}

type LiveConfig struct {
	Interval      time.Duration `json:"interval" yaml:"interval"`
	SettleBuffer  time.Duration `json:"settle_buffer" yaml:"settle_buffer"`
	BarInterval   string        `json:"bar_interval" yaml:"bar_interval"`     // 5m
	TrendInterval string        `json:"trend_interval" yaml:"trend_interval"` // 1h
	KlineLimit    int           `json:"kline_limit" yaml:"kline_limit"`
	MetricsAddr   string        `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

type BacktestConfig struct {
	DataFile string `json:"data_file,omitempty" yaml:"data_file,omitempty"`
	Seed     int64  `json:"seed" yaml:"seed"`
	CloseEnd bool   `json:"close_end" yaml:"close_end"`
}

type JournalConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type NotifyConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Channels       []string `json:"channels" yaml:"channels"` // "bark", "telegram"
	BarkURL        string   `json:"bark_url,omitempty" yaml:"bark_url,omitempty"`
	TelegramToken  string   `json:"-" yaml:"-"`
	TelegramChatID string   `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default mirrors the settings the bot has always shipped with.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialCapital: 50,
			Leverage:       5,
			CommissionRate: 0.0005,
		},
		Risk: RiskConfig{
			RiskPct:              0.02,
			PositionSizePct:      0.2,
			StopPct:              0.015,
			MaxOpenPositions:     4,
			MaxTradesPerDay:      5,
			MaxDailyLoss:         -2,
			MaxConsecutiveLosses: 4,
			Timezone:             "UTC",
		},
		Exits: ExitsConfig{
			UseATRStop:          true,
			ATRMultiplier:       2,
			TP1Ratio:            1.5,
			TP1ClosePct:         0.5,
			TP2Ratio:            3.5,
			MoveStopToBreakEven: true,
		},
		Strategy: StrategyConfig{
			Name:   "trend-mean-reversion",
			Params: strategies.DefaultParams(),
		},
		Instrument: market.BTCUSDT,
		Exchange: ExchangeConfig{
			Testnet: true,
		},
		Live: LiveConfig{
			Interval:      5 * time.Minute,
			SettleBuffer:  3 * time.Second,
			BarInterval:   "5m",
			TrendInterval: "1h",
			KlineLimit:    200,
			MetricsAddr:   ":9108",
		},
		Backtest: BacktestConfig{
			Seed:     1,
			CloseEnd: true,
		},
		Journal: JournalConfig{
			DBPath: "./perptrader.db",
		},
		Notify: NotifyConfig{
			Channels: []string{"bark", "telegram"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile reads a YAML (or JSON) file over the defaults, applies .env and
// PERPTRADER_* overrides and validates the result. An empty path means defaults
// plus environment.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Try YAML first, fall back to JSON
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if jerr := json.Unmarshal(data, cfg); jerr != nil {
				return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
			}
		}
	}

	LoadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML unless path ends in .json. Secrets are never written.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks every section and reports the first offending field.
func (c *Config) Validate() error {
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive")
	}
	if c.Account.Leverage < 1 {
		return fmt.Errorf("account.leverage must be at least 1")
	}
	if c.Account.CommissionRate < 0 || c.Account.CommissionRate >= 0.01 {
		return fmt.Errorf("account.commission_rate must be in [0, 0.01)")
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct >= 1 {
		return fmt.Errorf("risk.risk_pct must be between 0 and 1")
	}
	if c.Risk.PositionSizePct <= 0 || c.Risk.PositionSizePct > 1 {
		return fmt.Errorf("risk.position_size_pct must be in (0, 1]")
	}
	if c.Risk.StopPct <= 0 || c.Risk.StopPct >= 1 {
		return fmt.Errorf("risk.stop_pct must be between 0 and 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("risk.timezone: %w", err)
	}
	if err := c.Limits().Validate(); err != nil {
		return err
	}
	if c.Exits.UseATRStop && c.Exits.ATRMultiplier <= 0 {
		return fmt.Errorf("exits.atr_multiplier must be positive")
	}
	if c.Exits.TP1Ratio <= 0 || c.Exits.TP2Ratio <= c.Exits.TP1Ratio {
		return fmt.Errorf("exits.tp2_ratio must exceed exits.tp1_ratio > 0")
	}
	if err := c.Ladder().Validate(); err != nil {
		return err
	}
	if _, err := strategies.ByName(c.Strategy.Name, c.Strategy.Params); err != nil {
		return fmt.Errorf("strategy.name: %w", err)
	}
	if err := c.Strategy.Params.Validate(); err != nil {
		return err
	}
	if err := c.Instrument.Validate(); err != nil {
		return err
	}
	if c.Live.Interval <= 0 {
		return fmt.Errorf("live.interval must be positive")
	}
	if c.Live.SettleBuffer < 0 || c.Live.SettleBuffer >= c.Live.Interval {
		return fmt.Errorf("live.settle_buffer must be in [0, live.interval)")
	}
	if c.Live.KlineLimit <= c.Strategy.TrendEMAPeriod {
		return fmt.Errorf("live.kline_limit must exceed strategy.trend_ema_period")
	}
	if c.Exchange.RealTradingEnabled && !c.Exchange.HasCredentials() {
		return fmt.Errorf("exchange.real_trading_enabled needs PERPTRADER_BINANCE_API_KEY and PERPTRADER_BINANCE_SECRET")
	}
	// one netted venue position carries one bracket
	if c.Exchange.RealTradingEnabled && c.Risk.MaxOpenPositions > 1 {
		return fmt.Errorf("risk.max_open_positions must be 1 when exchange.real_trading_enabled is set, got %d", c.Risk.MaxOpenPositions)
	}
	for _, ch := range c.Notify.Channels {
		switch ch {
		case "bark", "telegram":
		default:
			return fmt.Errorf("notify.channels: unknown channel %q", ch)
		}
	}
	return nil
}

// Location is the governor's day boundary.
func (c *Config) Location() (*time.Location, error) {
	if c.Risk.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Risk.Timezone)
}

func (c *Config) Limits() risk.Limits {
	loc, _ := c.Location()
	return risk.Limits{
		MaxTradesPerDay:      c.Risk.MaxTradesPerDay,
		MaxOpenPositions:     c.Risk.MaxOpenPositions,
		MaxDailyLoss:         c.Risk.MaxDailyLoss,
		MaxConsecutiveLosses: c.Risk.MaxConsecutiveLosses,
		Location:             loc,
	}
}

func (c *Config) Ladder() position.LadderConfig {
	return position.LadderConfig{
		TP1ClosePct:     c.Exits.TP1ClosePct,
		MoveStopToEntry: c.Exits.MoveStopToBreakEven,
		CommissionRate:  c.Account.CommissionRate,
	}
}

// Engine builds the controller configuration. Live controllers round entry
// quantities to the instrument; backtests size with unrounded floats.
func (c *Config) Engine(roundQty bool) engine.Config {
	ec := engine.Config{
		Symbol:         c.Instrument.Symbol,
		InitialCapital: c.Account.InitialCapital,
		RiskPct:        c.Risk.RiskPct,
		AllocationPct:  c.Risk.PositionSizePct,
		Leverage:       c.Account.Leverage,
		StopPct:        c.Risk.StopPct,
		UseATRStop:     c.Exits.UseATRStop,
		ATRMultiplier:  c.Exits.ATRMultiplier,
		R1:             c.Exits.TP1Ratio,
		R2:             c.Exits.TP2Ratio,
		Ladder:         c.Ladder(),
		Limits:         c.Limits(),
	}
	if roundQty {
		ec.Instrument = c.Instrument
	}
	return ec
}
