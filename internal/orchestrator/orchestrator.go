package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/journal"
	"forex-trading-engine/internal/manager"
	"forex-trading-engine/internal/portfolio"
	"forex-trading-engine/internal/trader"
)

// Registration errors.
var (
	ErrDuplicateInstrument   = errors.New("instrument already registered")
	ErrUnavailableInstrument = errors.New("instrument unavailable at broker")
)

// Config controls cycle scheduling.
type Config struct {
	// Parallel runs instrument cycles on a bounded worker pool instead of
	// sequentially.
	Parallel bool
	// WorkerLimit bounds the pool; 0 defaults to 4.
	WorkerLimit int
}

// CycleReport aggregates one orchestration cycle across all instruments.
type CycleReport struct {
	CycleID            string
	StartedAt          time.Time
	Duration           time.Duration
	Outcomes           []trader.CycleOutcome
	ClosedByGatekeeper []int64
	Executed           int
	Errors             int
}

// Stats are the orchestrator's aggregated lifetime counters.
type Stats struct {
	Cycles     int            `json:"cycles"`
	Signals    int            `json:"signals"`
	Executions int            `json:"executions"`
	Errors     int            `json:"errors"`
	BySymbol   map[string]int `json:"executions_by_symbol"`
}

// Orchestrator owns a set of instrument traders and drives their periodic
// signal/risk/execution cycles, sequentially or on a bounded worker pool. A
// failing instrument never aborts the others. Before new signals are
// generated each cycle the attached gatekeeper scans all live positions, and
// the position manager applies its protective-level rules.
type Orchestrator struct {
	broker     broker.Broker
	gatekeeper *portfolio.Gatekeeper
	manager    *manager.Manager
	journal    journal.Store
	config     Config
	logger     zerolog.Logger

	mu      sync.Mutex
	traders map[string]*trader.Trader
	order   []string // registration order, for deterministic sequential cycles
	stats   Stats
}

// New creates an orchestrator. gatekeeper, mgr and store may be nil.
func New(b broker.Broker, gatekeeper *portfolio.Gatekeeper, mgr *manager.Manager, store journal.Store, config Config, logger zerolog.Logger) *Orchestrator {
	if config.WorkerLimit <= 0 {
		config.WorkerLimit = 4
	}
	if store == nil {
		store = journal.Nop{}
	}
	return &Orchestrator{
		broker:     b,
		gatekeeper: gatekeeper,
		manager:    mgr,
		journal:    store,
		config:     config,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		traders:    make(map[string]*trader.Trader),
		stats:      Stats{BySymbol: make(map[string]int)},
	}
}

// AddInstrument registers one instrument trader. Duplicates and symbols the
// broker reports unavailable are rejected; both rejections are non-fatal
// configuration errors.
func (o *Orchestrator) AddInstrument(ctx context.Context, cfg trader.Config) error {
	o.mu.Lock()
	_, exists := o.traders[cfg.Symbol]
	o.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateInstrument, cfg.Symbol)
	}

	if _, err := o.broker.GetSymbolConstraints(ctx, cfg.Symbol); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailableInstrument, cfg.Symbol, err)
	}

	var gk trader.Gatekeeper
	if o.gatekeeper != nil {
		gk = o.gatekeeper
	}
	t := trader.New(cfg, o.broker, gk, o.logger)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.traders[cfg.Symbol]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateInstrument, cfg.Symbol)
	}
	o.traders[cfg.Symbol] = t
	o.order = append(o.order, cfg.Symbol)
	o.logger.Info().Str("symbol", cfg.Symbol).Str("strategy", cfg.Strategy.Name()).Msg("instrument registered")
	return nil
}

// Instruments returns the registered symbols in registration order.
func (o *Orchestrator) Instruments() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// RunCycle drives one process_cycle per managed instrument and aggregates the
// outcomes. Instrument failures are isolated into their outcome.
func (o *Orchestrator) RunCycle(ctx context.Context) *CycleReport {
	report := &CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
	}

	// Portfolio-wide scan first: the gatekeeper may close positions on any
	// symbol, managed or not, before new signals are generated.
	if o.gatekeeper != nil {
		closed, err := o.gatekeeper.ScanAndClose(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("gatekeeper scan failed")
		}
		report.ClosedByGatekeeper = closed
	}

	if o.manager != nil {
		if err := o.manager.ProcessAll(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("position management pass failed")
		}
	}

	o.mu.Lock()
	symbols := make([]string, len(o.order))
	copy(symbols, o.order)
	traders := make([]*trader.Trader, 0, len(symbols))
	for _, s := range symbols {
		traders = append(traders, o.traders[s])
	}
	o.mu.Unlock()

	outcomes := make([]trader.CycleOutcome, len(traders))
	if o.config.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.config.WorkerLimit)
		for i, t := range traders {
			i, t := i, t
			g.Go(func() error {
				outcomes[i] = t.ProcessCycle(gctx)
				return nil // failures live in the outcome, never abort siblings
			})
		}
		_ = g.Wait()
	} else {
		for i, t := range traders {
			outcomes[i] = t.ProcessCycle(ctx)
		}
	}
	report.Outcomes = outcomes
	report.Duration = time.Since(report.StartedAt)

	o.accumulate(report)
	o.record(ctx, report)
	return report
}

func (o *Orchestrator) accumulate(report *CycleReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Cycles++
	for _, out := range report.Outcomes {
		if out.Signal != nil && out.Signal.Direction.Actionable() {
			o.stats.Signals++
		}
		if out.Executed {
			report.Executed++
			o.stats.Executions++
			o.stats.BySymbol[out.Symbol]++
		}
		if out.Err != nil {
			report.Errors++
			o.stats.Errors++
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, report *CycleReport) {
	rec := journal.CycleRecord{
		CycleID:    report.CycleID,
		StartedAt:  report.StartedAt,
		DurationMs: report.Duration.Milliseconds(),
		Instruments: len(report.Outcomes),
		Executed:   report.Executed,
		Errors:     report.Errors,
	}
	if err := o.journal.SaveCycle(ctx, rec); err != nil {
		o.logger.Debug().Err(err).Msg("cycle journal write failed")
	}
	for _, out := range report.Outcomes {
		if !out.Executed {
			continue
		}
		exec := journal.ExecutionRecord{
			CycleID:   report.CycleID,
			Symbol:    out.Symbol,
			Direction: string(out.Signal.Direction),
			Price:     out.Signal.Price,
			Volume:    out.Volume,
			Ticket:    out.Ticket,
			Stacked:   out.Stacked,
			Reason:    out.Signal.Reason,
			At:        time.Now(),
		}
		if err := o.journal.SaveExecution(ctx, exec); err != nil {
			o.logger.Debug().Err(err).Msg("execution journal write failed")
		}
	}
}

// RunContinuous loops run-cycle/sleep until maxCycles is reached (0 =
// unlimited) or ctx is cancelled. Cancellation flushes aggregated statistics
// before returning.
func (o *Orchestrator) RunContinuous(ctx context.Context, interval time.Duration, maxCycles int) error {
	o.logger.Info().
		Dur("interval", interval).
		Int("max_cycles", maxCycles).
		Bool("parallel", o.config.Parallel).
		Msg("continuous trading loop starting")

	cycles := 0
	for {
		select {
		case <-ctx.Done():
			o.FlushStats()
			return ctx.Err()
		default:
		}

		report := o.RunCycle(ctx)
		cycles++
		o.logger.Info().
			Str("cycle", report.CycleID).
			Int("instruments", len(report.Outcomes)).
			Int("executed", report.Executed).
			Int("errors", report.Errors).
			Dur("took", report.Duration).
			Msg("cycle complete")

		if maxCycles > 0 && cycles >= maxCycles {
			o.FlushStats()
			return nil
		}

		select {
		case <-ctx.Done():
			o.FlushStats()
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Stats returns a copy of the aggregated counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.BySymbol = make(map[string]int, len(o.stats.BySymbol))
	for k, v := range o.stats.BySymbol {
		out.BySymbol[k] = v
	}
	return out
}

// FlushStats logs the aggregated statistics. Called on shutdown and whenever
// the loop exits.
func (o *Orchestrator) FlushStats() {
	stats := o.Stats()
	o.logger.Info().
		Int("cycles", stats.Cycles).
		Int("signals", stats.Signals).
		Int("executions", stats.Executions).
		Int("errors", stats.Errors).
		Interface("by_symbol", stats.BySymbol).
		Msg("session statistics")
}
