package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LoggingConfig      `yaml:"log"`
	Gateway     GatewayConfig      `yaml:"gateway"`
	Stream      StreamConfig       `yaml:"stream"`
	Exposure    SourceConfig       `yaml:"exposure"`
	Hedge       SourceConfig       `yaml:"hedge"`
	State       StateConfig        `yaml:"state"`
	Ledger      LedgerConfig       `yaml:"ledger"`
	Policy      PolicyConfig       `yaml:"policy"`
	Sizing      SizingConfig       `yaml:"sizing"`
	Tracker     TrackerConfig      `yaml:"tracker"`
	Telegram    TelegramConfig     `yaml:"telegram"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type GatewayConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"`
}

type StreamConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type SourceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type LedgerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PolicyConfig holds the rebalance trigger thresholds. PositiveTrigger and
// NegativeTrigger bound an asymmetric dead-band around the hedge ratio;
// MinUSDTrigger suppresses rebalances whose notional is too small to matter.
type PolicyConfig struct {
	PositiveTrigger float64 `yaml:"positive_trigger"`
	NegativeTrigger float64 `yaml:"negative_trigger"`
	MinUSDTrigger   float64 `yaml:"min_usd_trigger"`
	ManualBandPct   float64 `yaml:"manual_band_pct"`
}

type SizingConfig struct {
	NotionalThresholdUSD float64 `yaml:"notional_threshold_usd"`
	ChildDelayMinMS      int64   `yaml:"child_delay_min_ms"`
	ChildDelayMaxMS      int64   `yaml:"child_delay_max_ms"`
	AliveTimeMinMS       int64   `yaml:"alive_time_min_ms"`
	AliveTimeMaxMS       int64   `yaml:"alive_time_max_ms"`
	MaxRetryAsLimitOrder int     `yaml:"max_retry_as_limit_order"`
}

type TrackerConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxSubmitAttempts int           `yaml:"max_submit_attempts"`
	FillTolerance     float64       `yaml:"fill_tolerance"`
	TimeoutBufferMS   int64         `yaml:"timeout_buffer_ms"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type InstrumentConfig struct {
	Symbol    string            `yaml:"symbol"`
	UnitScale float64           `yaml:"unit_scale"`
	Auto      bool              `yaml:"auto"`
	Contracts map[string]string `yaml:"contracts"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 10 * time.Second
	}
	if cfg.Gateway.RatePerSec == 0 {
		cfg.Gateway.RatePerSec = 2
	}
	if cfg.Stream.ReconnectDelay == 0 {
		cfg.Stream.ReconnectDelay = 60 * time.Second
	}
	if cfg.Exposure.Timeout == 0 {
		cfg.Exposure.Timeout = 10 * time.Second
	}
	if cfg.Hedge.Timeout == 0 {
		cfg.Hedge.Timeout = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/lp-hedge-bot.db"
	}
	if cfg.Ledger.Schema == "" {
		cfg.Ledger.Schema = "public"
	}
	if cfg.Ledger.QueueSize == 0 {
		cfg.Ledger.QueueSize = 256
	}
	if cfg.Policy.ManualBandPct == 0 {
		cfg.Policy.ManualBandPct = 10
	}
	if cfg.Sizing.NotionalThresholdUSD == 0 {
		cfg.Sizing.NotionalThresholdUSD = 1000
	}
	if cfg.Sizing.ChildDelayMinMS == 0 {
		cfg.Sizing.ChildDelayMinMS = 200
	}
	if cfg.Sizing.ChildDelayMaxMS == 0 {
		cfg.Sizing.ChildDelayMaxMS = 1000
	}
	if cfg.Sizing.AliveTimeMinMS == 0 {
		cfg.Sizing.AliveTimeMinMS = 5000
	}
	if cfg.Sizing.AliveTimeMaxMS == 0 {
		cfg.Sizing.AliveTimeMaxMS = 8000
	}
	if cfg.Sizing.MaxRetryAsLimitOrder == 0 {
		cfg.Sizing.MaxRetryAsLimitOrder = 3
	}
	if cfg.Tracker.PollInterval == 0 {
		cfg.Tracker.PollInterval = 30 * time.Second
	}
	if cfg.Tracker.MaxSubmitAttempts == 0 {
		cfg.Tracker.MaxSubmitAttempts = 1
	}
	if cfg.Tracker.FillTolerance == 0 {
		cfg.Tracker.FillTolerance = 0.03
	}
	if cfg.Tracker.TimeoutBufferMS == 0 {
		cfg.Tracker.TimeoutBufferMS = 10000
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
}

func validate(cfg *Config) error {
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required")
	}
	if cfg.Stream.URL == "" {
		return errors.New("stream.url is required")
	}
	if cfg.Policy.PositiveTrigger < 0 {
		return errors.New("policy.positive_trigger must be >= 0")
	}
	if cfg.Policy.NegativeTrigger > 0 {
		return errors.New("policy.negative_trigger must be <= 0")
	}
	if cfg.Policy.MinUSDTrigger < 0 {
		return errors.New("policy.min_usd_trigger must be >= 0")
	}
	if cfg.Sizing.NotionalThresholdUSD <= 0 {
		return errors.New("sizing.notional_threshold_usd must be > 0")
	}
	if cfg.Sizing.ChildDelayMinMS > cfg.Sizing.ChildDelayMaxMS {
		return errors.New("sizing.child_delay_min_ms exceeds child_delay_max_ms")
	}
	if cfg.Sizing.AliveTimeMinMS > cfg.Sizing.AliveTimeMaxMS {
		return errors.New("sizing.alive_time_min_ms exceeds alive_time_max_ms")
	}
	if cfg.Sizing.MaxRetryAsLimitOrder <= 0 {
		return errors.New("sizing.max_retry_as_limit_order must be > 0")
	}
	if cfg.Tracker.MaxSubmitAttempts <= 0 {
		return errors.New("tracker.max_submit_attempts must be > 0")
	}
	if cfg.Tracker.FillTolerance <= 0 || cfg.Tracker.FillTolerance >= 1 {
		return errors.New("tracker.fill_tolerance must be in (0, 1)")
	}
	if len(cfg.Instruments) == 0 {
		return errors.New("at least one instrument is required")
	}
	for i, inst := range cfg.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instruments[%d].symbol is required", i)
		}
		if inst.UnitScale <= 0 {
			return fmt.Errorf("instrument %s: unit_scale must be > 0", inst.Symbol)
		}
	}
	return nil
}
