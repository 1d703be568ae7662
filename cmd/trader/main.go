// The trader binary runs the live multi-instrument trading loop: strategy
// evaluation, portfolio gatekeeping, execution and position management, with
// an optional read-only status API.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"forex-trading-engine/config"
	"forex-trading-engine/internal/api"
	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/journal"
	"forex-trading-engine/internal/logging"
	"forex-trading-engine/internal/manager"
	"forex-trading-engine/internal/orchestrator"
	"forex-trading-engine/internal/portfolio"
	"forex-trading-engine/internal/secrets"
	"forex-trading-engine/internal/statecache"
	"forex-trading-engine/internal/strategy"
	"forex-trading-engine/internal/trader"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	genConfig := flag.Bool("gen-config", false, "write a sample config file and exit")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample config written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})

	if err := run(cfg, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("trader exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := buildBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var store journal.Store = journal.Nop{}
	if cfg.JournalConfig.Enabled {
		pg, err := journal.NewPostgres(ctx, cfg.JournalConfig.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer pg.Close()
		store = pg
	}

	var states *statecache.Cache
	var sink manager.StateSink
	if cfg.RedisConfig.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer client.Close()
		states = statecache.New(client, logger)
		sink = states
	} else {
		states = statecache.New(nil, logger)
		sink = states
	}

	var gk *portfolio.Gatekeeper
	if cfg.GatekeeperConfig.Enabled {
		gk = portfolio.New(b, portfolio.Config{
			CloseThreshold:   cfg.GatekeeperConfig.CloseThreshold,
			ApproveThreshold: cfg.GatekeeperConfig.ApproveThreshold,
			DeferThreshold:   cfg.GatekeeperConfig.DeferThreshold,
		}, logger)
	}

	var mgr *manager.Manager
	if cfg.ManagerConfig.Enabled {
		mc := cfg.ManagerConfig
		mgr = manager.New(b, manager.RuleConfig{
			BreakevenEnabled:          mc.BreakevenEnabled,
			BreakevenTriggerPips:      mc.BreakevenTriggerPips,
			BreakevenOffsetPips:       mc.BreakevenOffsetPips,
			TrailingEnabled:           mc.TrailingEnabled,
			TrailingActivationPips:    mc.TrailingStartPips,
			TrailingDistancePips:      mc.TrailingDistancePips,
			PartialCloseEnabled:       mc.PartialCloseEnabled,
			PartialCloseTriggerPips:   mc.PartialCloseTriggerPips,
			PartialClosePercent:       mc.PartialClosePercent,
			TPExtensionEnabled:        mc.TPExtensionEnabled,
			TPExtensionTriggerPercent: mc.TPExtensionTriggerPct,
			TPExtensionPips:           mc.TPExtensionPips,
		}, sink, logger)
	}

	orch := orchestrator.New(b, gk, mgr, store, orchestrator.Config{
		Parallel:    cfg.OrchestratorConfig.Parallel,
		WorkerLimit: cfg.OrchestratorConfig.WorkerLimit,
	}, logger)

	tc := cfg.TradingConfig
	for _, symbol := range tc.Symbols {
		err := orch.AddInstrument(ctx, trader.Config{
			Symbol: symbol,
			Strategy: strategy.NewCrossoverStrategy(strategy.CrossoverConfig{
				Symbol:         symbol,
				FastPeriod:     tc.FastPeriod,
				SlowPeriod:     tc.SlowPeriod,
				StopLossPips:   tc.StopLossPips,
				TakeProfitPips: tc.TakeProfitPips,
			}),
			Timeframe:           tc.Timeframe,
			RiskPercent:         tc.RiskPercent,
			Cooldown:            tc.CooldownDuration(),
			DedupSameDirection:  tc.DedupSameDirection,
			StackingEnabled:     tc.StackingEnabled,
			MaxStacked:          tc.MaxStacked,
			StackRiskMultiplier: tc.StackRiskMultiplier,
			BarsToFetch:         tc.BarsToFetch,
			Comment:             "forex-trading-engine",
		})
		if err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Msg("instrument skipped")
		}
	}
	if len(orch.Instruments()) == 0 {
		return fmt.Errorf("no instruments registered")
	}

	if cfg.ServerConfig.Enabled {
		server := api.New(api.Config{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		}, b, orch, gk, states, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("status API stopped")
			}
		}()
	}

	logger.Info().
		Strs("symbols", orch.Instruments()).
		Dur("interval", cfg.OrchestratorConfig.Interval()).
		Bool("mock", cfg.GatewayConfig.MockMode).
		Msg("trading loop starting")
	return orch.RunContinuous(ctx, cfg.OrchestratorConfig.Interval(), cfg.OrchestratorConfig.MaxCycles)
}

// buildBroker selects the broker implementation. Only the simulated broker is
// available in this build; a live gateway needs credentials from Vault and an
// external bridge process.
func buildBroker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (broker.Broker, error) {
	if !cfg.GatewayConfig.MockMode {
		store, err := secrets.NewStore(secrets.Config{
			Enabled:    cfg.VaultConfig.Enabled,
			Address:    cfg.VaultConfig.Address,
			Token:      cfg.VaultConfig.Token,
			MountPath:  cfg.VaultConfig.MountPath,
			SecretPath: cfg.VaultConfig.SecretPath,
		})
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		creds, err := store.Get(ctx, cfg.GatewayConfig.Account)
		if err != nil {
			return nil, fmt.Errorf("gateway credentials: %w", err)
		}
		return nil, fmt.Errorf("live gateway %s is not bundled with this build, set gateway.mock_mode (credentials for %s loaded ok)", creds.Server, cfg.GatewayConfig.Account)
	}

	mock := broker.NewMockBroker()
	mock.SetBalance(10000)
	for _, symbol := range cfg.TradingConfig.Symbols {
		seedInstrument(mock, symbol, cfg.TradingConfig)
	}
	logger.Info().Msg("using simulated broker")
	return mock, nil
}

// seedInstrument loads deterministic synthetic bars so the loop has data to
// chew on in mock mode.
func seedInstrument(mock *broker.MockBroker, symbol string, tc config.TradingConfig) {
	pipSize := broker.PipSizeFromSymbol(symbol)
	mock.SetConstraints(broker.SymbolConstraints{
		Symbol:         symbol,
		MinVolume:      0.01,
		MaxVolume:      100,
		VolumeStep:     0.01,
		PipSize:        pipSize,
		ContractSize:   100000,
		PipValuePerLot: 10,
	})

	count := tc.BarsToFetch
	if count < tc.SlowPeriod+10 {
		count = tc.SlowPeriod + 10
	}
	base := 1.10
	if pipSize == 0.01 {
		base = 150.0
	}
	bars := make([]broker.Bar, count)
	start := time.Now().Add(-time.Duration(count) * 15 * time.Minute)
	for i := range bars {
		// Smooth oscillation so crossovers actually occur.
		drift := math.Sin(float64(i)/12) * 40 * pipSize
		open := base + drift
		close := base + math.Sin(float64(i+1)/12)*40*pipSize
		bars[i] = broker.Bar{
			Symbol:    symbol,
			Timeframe: tc.Timeframe,
			OpenTime:  start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      open,
			High:      math.Max(open, close) + 5*pipSize,
			Low:       math.Min(open, close) - 5*pipSize,
			Close:     close,
			Volume:    1000,
		}
	}
	mock.SetBars(symbol, tc.Timeframe, bars)
}
