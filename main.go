package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/config"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/api"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/bus"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/coordinator"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/execution"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/governor"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/logging"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/risk"
	sig "github.com/ScientiaCapital/trading-backtesting-sub000/internal/signal"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/store"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().Msg("structured logging initialized")

	// Day journal: Redis-backed when enabled, in-memory otherwise.
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}
	journal := store.NewDayJournal(redisClient, logger)

	gov := governor.New(&governor.Config{
		DailyTarget:         cfg.GovernorConfig.DailyTarget,
		DailyLossLimit:      cfg.GovernorConfig.DailyLossLimit,
		ApproachFraction:    0.80,
		MinTradesForWinRate: cfg.GovernorConfig.MinTradesForWinRate,
		WinRateFloor:        cfg.GovernorConfig.WinRateFloor,
	}, journal, logger)

	tuner := risk.NewLiveStrategyTuner(&risk.TunerConfig{
		PauseAfterLosses: cfg.TunerConfig.PauseAfterLosses,
		PauseDuration:    cfg.TunerConfig.PauseDuration,
	}, logger)
	gate := risk.NewGate(nil, tuner, logger)

	engine := decision.NewEngine(&decision.EngineConfig{
		Budget:              cfg.TradingConfig.CycleBudget,
		MinConfidence:       cfg.EngineConfig.MinConfidence,
		DispersionThreshold: cfg.EngineConfig.DispersionThreshold,
		RSIOverbought:       cfg.EngineConfig.RSIOverbought,
		RSIOversold:         cfg.EngineConfig.RSIOversold,
	}, logger)

	producers := []sig.Producer{
		sig.NewMomentumProducer(),
		sig.NewMeanReversionProducer(),
	}
	if cfg.AdvisoryConfig.Enabled {
		if advisory, err := buildAdvisoryProducer(cfg, logger); err != nil {
			logger.Warn().Err(err).Msg("advisory producer disabled")
		} else {
			producers = append(producers, advisory)
		}
	}

	if !cfg.TradingConfig.DryRun {
		logger.Warn().Msg("live execution is not connected, running paper execution")
	}
	executor := execution.NewPaperExecutor(nil, logger)

	messageBus := bus.NewBus(logger)
	streamMailbox, err := messageBus.Register("ws-stream", 256)
	if err != nil {
		log.Fatalf("Failed to register stream mailbox: %v", err)
	}

	coord := coordinator.New(&coordinator.Config{
		CycleBudget:     cfg.TradingConfig.CycleBudget,
		IndicatorWindow: cfg.TradingConfig.IndicatorWindow,
	}, coordinator.Deps{
		Bus:       messageBus,
		Feed:      market.NewSimFeed(0),
		Analyzer:  market.NewContextAnalyzer(),
		Producers: producers,
		Engine:    engine,
		Tuner:     tuner,
		Gate:      gate,
		Governor:  gov,
		Executor:  executor,
	}, logger)
	coord.Start()

	hub := api.NewWSHub(logger)
	go hub.Run()
	go hub.StreamBus(streamMailbox)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowOrigins:   cfg.ServerConfig.AllowOrigins,
	}, coord, tuner, hub, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	rootCtx, cancel := context.WithCancel(context.Background())
	go runCycles(rootCtx, coord, cfg.TradingConfig.Symbols, cfg.TradingConfig.CycleInterval, logger)

	logger.Info().
		Strs("symbols", cfg.TradingConfig.Symbols).
		Dur("cycle_interval", cfg.TradingConfig.CycleInterval).
		Float64("daily_loss_limit", cfg.GovernorConfig.DailyLossLimit).
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Msg("decision coordinator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	executor.Shutdown()
	coord.Stop()
	messageBus.Close()
	logger.Info().Msg("shutdown complete")
}

// runCycles drives a decision cycle per symbol on a fixed interval. Cycles
// already in flight or halted days are skipped quietly.
func runCycles(ctx context.Context, coord *coordinator.Coordinator, symbols []string, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				go func(symbol string) {
					d, err := coord.RunCycle(ctx, symbol)
					switch {
					case errors.Is(err, coordinator.ErrCycleInFlight), errors.Is(err, coordinator.ErrTradingHalted):
						return
					case err != nil:
						logger.Error().Err(err).Str("symbol", symbol).Msg("decision cycle failed")
					default:
						logger.Debug().
							Str("symbol", symbol).
							Str("action", string(d.Action)).
							Float64("confidence", d.Confidence).
							Str("reasoning", d.Reasoning).
							Msg("cycle complete")
					}
				}(symbol)
			}
		}
	}
}

// buildAdvisoryProducer wires the LLM capability, resolving the API key from
// Vault when enabled and falling back to the configured key.
func buildAdvisoryProducer(cfg *config.Config, logger zerolog.Logger) (sig.Producer, error) {
	apiKey := cfg.AdvisoryConfig.APIKey
	model := cfg.AdvisoryConfig.Model

	vaultClient, err := vault.NewClient(vault.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
		TLSEnabled: cfg.VaultConfig.TLSEnabled,
		CACert:     cfg.VaultConfig.CACert,
	})
	if err != nil {
		return nil, err
	}
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cred, err := vaultClient.GetCredential(ctx, cfg.AdvisoryConfig.Provider)
		if err != nil {
			logger.Warn().Err(err).Msg("vault credential lookup failed, using configured key")
		} else {
			apiKey = cred.APIKey
			if cred.Model != "" {
				model = cred.Model
			}
		}
	}
	if apiKey == "" {
		return nil, errors.New("no advisory API key available")
	}

	clientConfig := sig.DefaultClientConfig()
	clientConfig.Provider = sig.Provider(cfg.AdvisoryConfig.Provider)
	clientConfig.APIKey = apiKey
	if model != "" {
		clientConfig.Model = model
	}
	clientConfig.Timeout = cfg.AdvisoryConfig.Timeout

	capability := sig.NewClient(clientConfig)
	return sig.NewAdvisoryProducer("advisory", capability, &sig.AdvisoryConfig{
		Timeout:         cfg.AdvisoryConfig.Timeout,
		RateLimitPerMin: cfg.AdvisoryConfig.RateLimitPerMin,
	}, logger), nil
}
