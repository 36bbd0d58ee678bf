package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration. A config.json file provides
// the base values and environment variables override it.
type Config struct {
	LoggingConfig  LoggingConfig  `json:"logging"`
	ServerConfig   ServerConfig   `json:"server"`
	TradingConfig  TradingConfig  `json:"trading"`
	EngineConfig   EngineConfig   `json:"engine"`
	GovernorConfig GovernorConfig `json:"governor"`
	TunerConfig    TunerConfig    `json:"tuner"`
	AdvisoryConfig AdvisoryConfig `json:"advisory"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowOrigins   []string `json:"allow_origins"`
}

// TradingConfig holds top-level trading configuration
type TradingConfig struct {
	Symbols         []string      `json:"symbols"`
	CycleInterval   time.Duration `json:"cycle_interval"`
	CycleBudget     time.Duration `json:"cycle_budget"`
	IndicatorWindow int           `json:"indicator_window"`
	DryRun          bool          `json:"dry_run"` // Paper execution, no real orders
}

// EngineConfig holds decision engine thresholds
type EngineConfig struct {
	MinConfidence       float64 `json:"min_confidence"`
	DispersionThreshold float64 `json:"dispersion_threshold"`
	RSIOverbought       float64 `json:"rsi_overbought"`
	RSIOversold         float64 `json:"rsi_oversold"`
}

// GovernorConfig holds daily circuit breaker limits. The loss limit is a
// single authoritative constant; no component carries its own copy.
type GovernorConfig struct {
	DailyTarget         float64 `json:"daily_target"`
	DailyLossLimit      float64 `json:"daily_loss_limit"`
	MinTradesForWinRate int     `json:"min_trades_for_win_rate"`
	WinRateFloor        float64 `json:"win_rate_floor"`
}

// TunerConfig holds live strategy tuner settings
type TunerConfig struct {
	PauseAfterLosses int           `json:"pause_after_losses"`
	PauseDuration    time.Duration `json:"pause_duration"`
}

// AdvisoryConfig holds advisory producer settings
type AdvisoryConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // claude or openai
	Model           string        `json:"model"`
	APIKey          string        `json:"api_key"` // Fallback when vault is disabled
	Timeout         time.Duration `json:"timeout"`
	RateLimitPerMin int           `json:"rate_limit_per_min"`
}

// RedisConfig holds Redis configuration for the day journal
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if cfg.GovernorConfig.DailyLossLimit <= 0 {
		return nil, fmt.Errorf("daily loss limit must be positive, got %f", cfg.GovernorConfig.DailyLossLimit)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Environment
// values take precedence over the file.
func applyEnvOverrides(cfg *Config) {
	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)
	if origins := os.Getenv("SERVER_ALLOW_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowOrigins = strings.Split(origins, ",")
	}
	if len(cfg.ServerConfig.AllowOrigins) == 0 {
		cfg.ServerConfig.AllowOrigins = []string{"http://localhost:5173"}
	}

	// Trading
	if symbols := os.Getenv("TRADING_SYMBOLS"); symbols != "" {
		cfg.TradingConfig.Symbols = strings.Split(symbols, ",")
	}
	if len(cfg.TradingConfig.Symbols) == 0 {
		cfg.TradingConfig.Symbols = []string{"SPY", "QQQ"}
	}
	cfg.TradingConfig.CycleInterval = getEnvDurationOrDefault("CYCLE_INTERVAL", defaultDuration(cfg.TradingConfig.CycleInterval, 5*time.Second))
	cfg.TradingConfig.CycleBudget = getEnvDurationOrDefault("CYCLE_BUDGET", defaultDuration(cfg.TradingConfig.CycleBudget, 100*time.Millisecond))
	cfg.TradingConfig.IndicatorWindow = getEnvIntOrDefault("INDICATOR_WINDOW", defaultInt(cfg.TradingConfig.IndicatorWindow, 50))
	// Live order routing is opt-in; DRY_RUN=false is the only way to disable paper mode.
	cfg.TradingConfig.DryRun = getEnvBoolOrDefault("DRY_RUN", true)

	// Engine
	cfg.EngineConfig.MinConfidence = getEnvFloatOrDefault("ENGINE_MIN_CONFIDENCE", defaultFloat(cfg.EngineConfig.MinConfidence, 0.45))
	cfg.EngineConfig.DispersionThreshold = getEnvFloatOrDefault("ENGINE_DISPERSION_THRESHOLD", defaultFloat(cfg.EngineConfig.DispersionThreshold, 0.35))
	cfg.EngineConfig.RSIOverbought = getEnvFloatOrDefault("ENGINE_RSI_OVERBOUGHT", defaultFloat(cfg.EngineConfig.RSIOverbought, 80))
	cfg.EngineConfig.RSIOversold = getEnvFloatOrDefault("ENGINE_RSI_OVERSOLD", defaultFloat(cfg.EngineConfig.RSIOversold, 20))

	// Governor
	cfg.GovernorConfig.DailyTarget = getEnvFloatOrDefault("DAILY_PROFIT_TARGET", defaultFloat(cfg.GovernorConfig.DailyTarget, 300.0))
	cfg.GovernorConfig.DailyLossLimit = getEnvFloatOrDefault("DAILY_LOSS_LIMIT", defaultFloat(cfg.GovernorConfig.DailyLossLimit, 300.0))
	cfg.GovernorConfig.MinTradesForWinRate = getEnvIntOrDefault("GOVERNOR_MIN_TRADES_FOR_WIN_RATE", defaultInt(cfg.GovernorConfig.MinTradesForWinRate, 10))
	cfg.GovernorConfig.WinRateFloor = getEnvFloatOrDefault("GOVERNOR_WIN_RATE_FLOOR", defaultFloat(cfg.GovernorConfig.WinRateFloor, 0.40))

	// Tuner
	cfg.TunerConfig.PauseAfterLosses = getEnvIntOrDefault("TUNER_PAUSE_AFTER_LOSSES", defaultInt(cfg.TunerConfig.PauseAfterLosses, 3))
	cfg.TunerConfig.PauseDuration = getEnvDurationOrDefault("TUNER_PAUSE_DURATION", defaultDuration(cfg.TunerConfig.PauseDuration, 30*time.Minute))

	// Advisory
	cfg.AdvisoryConfig.Enabled = getEnvBoolOrDefault("ADVISORY_ENABLED", cfg.AdvisoryConfig.Enabled)
	cfg.AdvisoryConfig.Provider = getEnvOrDefault("ADVISORY_PROVIDER", defaultString(cfg.AdvisoryConfig.Provider, "claude"))
	cfg.AdvisoryConfig.Model = getEnvOrDefault("ADVISORY_MODEL", cfg.AdvisoryConfig.Model)
	cfg.AdvisoryConfig.APIKey = getEnvOrDefault("ADVISORY_API_KEY", cfg.AdvisoryConfig.APIKey)
	cfg.AdvisoryConfig.Timeout = getEnvDurationOrDefault("ADVISORY_TIMEOUT", defaultDuration(cfg.AdvisoryConfig.Timeout, 3*time.Second))
	cfg.AdvisoryConfig.RateLimitPerMin = getEnvIntOrDefault("ADVISORY_RATE_LIMIT_PER_MIN", defaultInt(cfg.AdvisoryConfig.RateLimitPerMin, 10))

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "coordinator/advisory"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func defaultFloat(value, fallback float64) float64 {
	if value != 0 {
		return value
	}
	return fallback
}

func defaultDuration(value, fallback time.Duration) time.Duration {
	if value != 0 {
		return value
	}
	return fallback
}
