package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	GatewayConfig      GatewayConfig      `json:"gateway"`
	TradingConfig      TradingConfig      `json:"trading"`
	ManagerConfig      ManagerConfig      `json:"manager"`
	GatekeeperConfig   GatekeeperConfig   `json:"gatekeeper"`
	OrchestratorConfig OrchestratorConfig `json:"orchestrator"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	JournalConfig      JournalConfig      `json:"journal"`
	RedisConfig        RedisConfig        `json:"redis"`
	VaultConfig        VaultConfig        `json:"vault"`
}

// GatewayConfig holds the broker gateway connection settings.
type GatewayConfig struct {
	Account  string `json:"account"`
	Server   string `json:"server"`
	MockMode bool   `json:"mock_mode"` // Use a simulated broker instead of a live gateway
}

// TradingConfig holds the per-instrument trading defaults.
type TradingConfig struct {
	Symbols             []string `json:"symbols"`
	Timeframe           string   `json:"timeframe"`
	RiskPercent         float64  `json:"risk_percent"`
	CooldownSeconds     int      `json:"cooldown_seconds"`
	DedupSameDirection  bool     `json:"dedup_same_direction"`
	StackingEnabled     bool     `json:"stacking_enabled"`
	MaxStacked          int      `json:"max_stacked"`
	StackRiskMultiplier float64  `json:"stack_risk_multiplier"`
	BarsToFetch         int      `json:"bars_to_fetch"`
	FastPeriod          int      `json:"fast_period"`
	SlowPeriod          int      `json:"slow_period"`
	StopLossPips        float64  `json:"stop_loss_pips"`
	TakeProfitPips      float64  `json:"take_profit_pips"`
}

// ManagerConfig holds the position management rule settings.
type ManagerConfig struct {
	Enabled                 bool    `json:"enabled"`
	BreakevenEnabled        bool    `json:"breakeven_enabled"`
	BreakevenTriggerPips    float64 `json:"breakeven_trigger_pips"`
	BreakevenOffsetPips     float64 `json:"breakeven_offset_pips"`
	TrailingEnabled         bool    `json:"trailing_enabled"`
	TrailingStartPips       float64 `json:"trailing_start_pips"`
	TrailingDistancePips    float64 `json:"trailing_distance_pips"`
	PartialCloseEnabled     bool    `json:"partial_close_enabled"`
	PartialCloseTriggerPips float64 `json:"partial_close_trigger_pips"`
	PartialClosePercent     float64 `json:"partial_close_percent"`
	TPExtensionEnabled      bool    `json:"tp_extension_enabled"`
	TPExtensionTriggerPct   float64 `json:"tp_extension_trigger_pct"`
	TPExtensionPips         float64 `json:"tp_extension_pips"`
}

// GatekeeperConfig holds the portfolio gatekeeper thresholds.
type GatekeeperConfig struct {
	Enabled          bool    `json:"enabled"`
	CloseThreshold   float64 `json:"close_threshold"`
	ApproveThreshold float64 `json:"approve_threshold"`
	DeferThreshold   float64 `json:"defer_threshold"`
}

// OrchestratorConfig holds the cycle scheduling settings.
type OrchestratorConfig struct {
	Parallel        bool `json:"parallel"`
	WorkerLimit     int  `json:"worker_limit"`
	IntervalSeconds int  `json:"interval_seconds"`
	MaxCycles       int  `json:"max_cycles"` // 0 = unlimited
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // Output as JSON instead of console
}

// JournalConfig holds the PostgreSQL journal settings.
type JournalConfig struct {
	Enabled     bool   `json:"enabled"`
	DatabaseURL string `json:"database_url"`
}

// RedisConfig holds the management-state mirror settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig holds the broker credential store settings.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

func Load(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		// No config file means env-only configuration
		cfg = defaults()
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		TradingConfig: TradingConfig{
			Symbols:             []string{"EURUSD"},
			Timeframe:           "M15",
			RiskPercent:         1.0,
			CooldownSeconds:     300,
			DedupSameDirection:  true,
			MaxStacked:          3,
			StackRiskMultiplier: 0.5,
			BarsToFetch:         100,
			FastPeriod:          10,
			SlowPeriod:          30,
			StopLossPips:        30,
			TakeProfitPips:      60,
		},
		ManagerConfig: ManagerConfig{
			Enabled:                 true,
			BreakevenEnabled:        true,
			BreakevenTriggerPips:    15,
			BreakevenOffsetPips:     2,
			TrailingEnabled:         true,
			TrailingStartPips:       25,
			TrailingDistancePips:    15,
			PartialCloseEnabled:     true,
			PartialCloseTriggerPips: 30,
			PartialClosePercent:     50,
			TPExtensionEnabled:      false,
			TPExtensionTriggerPct:   80,
			TPExtensionPips:         20,
		},
		GatekeeperConfig: GatekeeperConfig{
			Enabled:          true,
			CloseThreshold:   0.65,
			ApproveThreshold: 0.65,
			DeferThreshold:   0.45,
		},
		OrchestratorConfig: OrchestratorConfig{
			WorkerLimit:     4,
			IntervalSeconds: 60,
		},
		ServerConfig: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		LoggingConfig: LoggingConfig{Level: "info"},
		VaultConfig:   VaultConfig{MountPath: "secret", SecretPath: "gateway"},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Gateway credentials are never read from the environment; they come from
// Vault or the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.GatewayConfig.Account = getEnvOrDefault("GATEWAY_ACCOUNT", cfg.GatewayConfig.Account)
	cfg.GatewayConfig.Server = getEnvOrDefault("GATEWAY_SERVER", cfg.GatewayConfig.Server)
	if getEnvOrDefault("MOCK_MODE", "") == "true" {
		cfg.GatewayConfig.MockMode = true
	}

	cfg.TradingConfig.RiskPercent = getEnvFloatOrDefault("TRADING_RISK_PERCENT", cfg.TradingConfig.RiskPercent)
	cfg.TradingConfig.CooldownSeconds = getEnvIntOrDefault("TRADING_COOLDOWN_SECONDS", cfg.TradingConfig.CooldownSeconds)
	if getEnvOrDefault("TRADING_STACKING", "") == "true" {
		cfg.TradingConfig.StackingEnabled = true
	}

	cfg.OrchestratorConfig.IntervalSeconds = getEnvIntOrDefault("ORCHESTRATOR_INTERVAL_SECONDS", cfg.OrchestratorConfig.IntervalSeconds)
	cfg.OrchestratorConfig.WorkerLimit = getEnvIntOrDefault("ORCHESTRATOR_WORKERS", cfg.OrchestratorConfig.WorkerLimit)
	if getEnvOrDefault("ORCHESTRATOR_PARALLEL", "") == "true" {
		cfg.OrchestratorConfig.Parallel = true
	}

	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if getEnvOrDefault("LOG_JSON", "") == "true" {
		cfg.LoggingConfig.JSONFormat = true
	}

	cfg.JournalConfig.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.JournalConfig.DatabaseURL)
	if cfg.JournalConfig.DatabaseURL != "" {
		cfg.JournalConfig.Enabled = true
	}

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	if cfg.RedisConfig.Address != "" {
		cfg.RedisConfig.Enabled = true
	}

	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	if cfg.VaultConfig.Address != "" && cfg.VaultConfig.Token != "" {
		cfg.VaultConfig.Enabled = true
	}
}

// CooldownDuration returns the trading cooldown as a duration.
func (t *TradingConfig) CooldownDuration() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// Interval returns the orchestration interval as a duration.
func (o *OrchestratorConfig) Interval() time.Duration {
	return time.Duration(o.IntervalSeconds) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a starter config file with sane defaults.
func GenerateSampleConfig(filename string) error {
	cfg := defaults()
	cfg.GatewayConfig = GatewayConfig{
		Account:  "your_account_here",
		Server:   "gateway.example.com:443",
		MockMode: true,
	}
	cfg.TradingConfig.Symbols = []string{"EURUSD", "GBPUSD", "USDJPY"}
	cfg.ServerConfig.Enabled = true

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
