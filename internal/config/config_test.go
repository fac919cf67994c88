package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{BaseURL: "https://gateway.example"},
		Stream:  StreamConfig{URL: "wss://gateway.example/executions"},
		Policy:  PolicyConfig{PositiveTrigger: 0.05, NegativeTrigger: -0.05, MinUSDTrigger: 1000},
		Instruments: []InstrumentConfig{
			{Symbol: "ETH", UnitScale: 1, Auto: true},
		},
	}
}

func TestGatewayDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Fatalf("expected gateway timeout default, got %v", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.RatePerSec != 2 {
		t.Fatalf("expected gateway rate default, got %v", cfg.Gateway.RatePerSec)
	}
}

func TestStreamDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Stream.ReconnectDelay != 60*time.Second {
		t.Fatalf("expected reconnect delay default, got %v", cfg.Stream.ReconnectDelay)
	}
}

func TestSizingDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Sizing.NotionalThresholdUSD != 1000 {
		t.Fatalf("expected notional threshold default, got %v", cfg.Sizing.NotionalThresholdUSD)
	}
	if cfg.Sizing.ChildDelayMinMS != 200 || cfg.Sizing.ChildDelayMaxMS != 1000 {
		t.Fatalf("expected child delay defaults, got %d..%d", cfg.Sizing.ChildDelayMinMS, cfg.Sizing.ChildDelayMaxMS)
	}
	if cfg.Sizing.AliveTimeMinMS != 5000 || cfg.Sizing.AliveTimeMaxMS != 8000 {
		t.Fatalf("expected alive time defaults, got %d..%d", cfg.Sizing.AliveTimeMinMS, cfg.Sizing.AliveTimeMaxMS)
	}
	if cfg.Sizing.MaxRetryAsLimitOrder != 3 {
		t.Fatalf("expected retry default, got %d", cfg.Sizing.MaxRetryAsLimitOrder)
	}
}

func TestTrackerDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Tracker.PollInterval != 30*time.Second {
		t.Fatalf("expected poll interval default, got %v", cfg.Tracker.PollInterval)
	}
	if cfg.Tracker.MaxSubmitAttempts != 1 {
		t.Fatalf("expected submit attempts default, got %d", cfg.Tracker.MaxSubmitAttempts)
	}
	if cfg.Tracker.FillTolerance != 0.03 {
		t.Fatalf("expected fill tolerance default, got %v", cfg.Tracker.FillTolerance)
	}
	if cfg.Tracker.TimeoutBufferMS != 10000 {
		t.Fatalf("expected timeout buffer default, got %d", cfg.Tracker.TimeoutBufferMS)
	}
}

func TestPolicyManualBandDefault(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Policy.ManualBandPct != 10 {
		t.Fatalf("expected manual band default, got %v", cfg.Policy.ManualBandPct)
	}
}

func TestValidateRequiresGatewayURL(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.BaseURL = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for missing gateway url")
	}
}

func TestValidateRequiresStreamURL(t *testing.T) {
	cfg := validConfig()
	cfg.Stream.URL = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for missing stream url")
	}
}

func TestValidateRejectsPositiveTriggerBelowZero(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.PositiveTrigger = -0.1
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for negative positive_trigger")
	}
}

func TestValidateRejectsNegativeTriggerAboveZero(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.NegativeTrigger = 0.1
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for positive negative_trigger")
	}
}

func TestValidateRejectsInvertedDelayBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Sizing.ChildDelayMinMS = 2000
	cfg.Sizing.ChildDelayMaxMS = 1000
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for inverted delay bounds")
	}
}

func TestValidateRejectsFillToleranceOutOfRange(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	cfg.Tracker.FillTolerance = 1.5
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for fill tolerance above 1")
	}
}

func TestValidateRequiresInstruments(t *testing.T) {
	cfg := validConfig()
	cfg.Instruments = nil
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for empty instruments")
	}
}

func TestValidateRejectsZeroUnitScale(t *testing.T) {
	cfg := validConfig()
	cfg.Instruments[0].UnitScale = 0
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for zero unit_scale")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
gateway:
  base_url: https://gateway.example
stream:
  url: wss://gateway.example/executions
policy:
  positive_trigger: 0.05
  negative_trigger: -0.05
  min_usd_trigger: 1000
instruments:
  - symbol: ETH
    unit_scale: 1
    auto: true
  - symbol: BTC
    unit_scale: 0.1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(cfg.Instruments))
	}
	if !cfg.Instruments[0].Auto || cfg.Instruments[1].Auto {
		t.Fatalf("auto flags not parsed: %+v", cfg.Instruments)
	}
	if cfg.Policy.NegativeTrigger != -0.05 {
		t.Fatalf("negative trigger = %v", cfg.Policy.NegativeTrigger)
	}
	if cfg.Tracker.PollInterval != 30*time.Second {
		t.Fatalf("expected defaults applied on load, got %v", cfg.Tracker.PollInterval)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
