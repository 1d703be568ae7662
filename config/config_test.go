package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TradingConfig.RiskPercent != 1.0 {
		t.Errorf("risk percent = %v", cfg.TradingConfig.RiskPercent)
	}
	if cfg.GatekeeperConfig.ApproveThreshold != 0.65 || cfg.GatekeeperConfig.DeferThreshold != 0.45 {
		t.Errorf("gatekeeper thresholds: %+v", cfg.GatekeeperConfig)
	}
	if cfg.OrchestratorConfig.WorkerLimit != 4 {
		t.Errorf("worker limit = %d", cfg.OrchestratorConfig.WorkerLimit)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_RISK_PERCENT", "2.5")
	t.Setenv("ORCHESTRATOR_INTERVAL_SECONDS", "30")
	t.Setenv("MOCK_MODE", "true")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TradingConfig.RiskPercent != 2.5 {
		t.Errorf("risk percent = %v", cfg.TradingConfig.RiskPercent)
	}
	if cfg.OrchestratorConfig.Interval() != 30*time.Second {
		t.Errorf("interval = %v", cfg.OrchestratorConfig.Interval())
	}
	if !cfg.GatewayConfig.MockMode {
		t.Error("mock mode override not applied")
	}
	if !cfg.RedisConfig.Enabled || cfg.RedisConfig.Address != "localhost:6379" {
		t.Errorf("redis config: %+v", cfg.RedisConfig)
	}
}

func TestSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.GatewayConfig.MockMode {
		t.Error("sample config should default to mock mode")
	}
	if len(cfg.TradingConfig.Symbols) != 3 {
		t.Errorf("symbols = %v", cfg.TradingConfig.Symbols)
	}
	if cfg.TradingConfig.CooldownDuration() != 300*time.Second {
		t.Errorf("cooldown = %v", cfg.TradingConfig.CooldownDuration())
	}
}
