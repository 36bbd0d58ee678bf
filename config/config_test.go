package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GovernorConfig.DailyLossLimit != 300.0 {
		t.Errorf("expected daily loss limit 300, got %f", cfg.GovernorConfig.DailyLossLimit)
	}
	if cfg.GovernorConfig.DailyTarget != 300.0 {
		t.Errorf("expected daily target 300, got %f", cfg.GovernorConfig.DailyTarget)
	}
	if cfg.TradingConfig.CycleBudget != 100*time.Millisecond {
		t.Errorf("expected cycle budget 100ms, got %v", cfg.TradingConfig.CycleBudget)
	}
	if cfg.TunerConfig.PauseDuration != 30*time.Minute {
		t.Errorf("expected pause duration 30m, got %v", cfg.TunerConfig.PauseDuration)
	}
	if !cfg.TradingConfig.DryRun {
		t.Error("dry run should default to enabled")
	}
	if cfg.AdvisoryConfig.Timeout != 3*time.Second {
		t.Errorf("expected advisory timeout 3s, got %v", cfg.AdvisoryConfig.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DAILY_LOSS_LIMIT", "150")
	t.Setenv("TRADING_SYMBOLS", "AAPL,TSLA,NVDA")
	t.Setenv("TUNER_PAUSE_DURATION", "15m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GovernorConfig.DailyLossLimit != 150 {
		t.Errorf("env override for loss limit not applied: %f", cfg.GovernorConfig.DailyLossLimit)
	}
	if len(cfg.TradingConfig.Symbols) != 3 || cfg.TradingConfig.Symbols[1] != "TSLA" {
		t.Errorf("symbol list override not applied: %v", cfg.TradingConfig.Symbols)
	}
	if cfg.TunerConfig.PauseDuration != 15*time.Minute {
		t.Errorf("pause duration override not applied: %v", cfg.TunerConfig.PauseDuration)
	}
	if cfg.LoggingConfig.Level != "debug" {
		t.Errorf("log level override not applied: %s", cfg.LoggingConfig.Level)
	}
}

func TestLoadRejectsNonPositiveLossLimit(t *testing.T) {
	t.Setenv("DAILY_LOSS_LIMIT", "-5")

	if _, err := Load(); err == nil {
		t.Error("expected error for negative loss limit")
	}
}
