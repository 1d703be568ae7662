package trader

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/portfolio"
	"forex-trading-engine/internal/strategy"
)

// Cycle states reported in a CycleOutcome. The per-instrument machine runs
// IDLE -> ANALYZING -> {HOLD | EXECUTING} -> IDLE on every cycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateAnalyzing State = "ANALYZING"
	StateHold      State = "HOLD"
	StateExecuting State = "EXECUTING"
)

// Config is the immutable per-trader configuration.
type Config struct {
	Symbol    string
	Strategy  strategy.Strategy
	Timeframe string

	// RiskPercent of account balance risked per trade.
	RiskPercent float64
	// Cooldown is the minimum time between executed trades.
	Cooldown time.Duration

	// DedupSameDirection rejects a signal whose direction matches the
	// previously executed one. Stacking relaxes this up to MaxStacked
	// same-direction positions, sized with StackRiskMultiplier.
	DedupSameDirection  bool
	StackingEnabled     bool
	MaxStacked          int
	StackRiskMultiplier float64

	// BarsToFetch per analysis; 0 defaults to the strategy warm-up plus one.
	BarsToFetch int

	Comment string
}

// fallbackVolume is used when the symbol's constraints cannot be fetched and
// its real minimum is unknowable. 0.01 lots is the smallest increment the
// supported gateways trade.
const fallbackVolume = 0.01

// Gatekeeper is the portfolio-level veto consulted before execution. A nil
// gatekeeper approves everything.
type Gatekeeper interface {
	Decide(ctx context.Context, sig *strategy.Signal) (*portfolio.Decision, error)
}

// CycleOutcome is the structured result of one ProcessCycle call.
type CycleOutcome struct {
	CycleID  string
	Symbol   string
	State    State
	Signal   *strategy.Signal
	Executed bool
	Stacked  bool
	Ticket   int64
	Volume   float64
	Reason   string
	Err      error
}

// Stats are the trader's lifetime counters.
type Stats struct {
	Cycles        int
	Signals       int
	Executed      int
	Failures      int
	LastTradeAt   time.Time
	LastDirection strategy.Direction
}

// Trader is a per-instrument state machine combining strategy evaluation,
// cooldown/deduplication, risk-based sizing and execution. Its mutable state
// is private to the instrument; a single trader is never cycled concurrently
// with itself.
type Trader struct {
	config     Config
	broker     broker.Broker
	gatekeeper Gatekeeper
	logger     zerolog.Logger

	mu            sync.Mutex
	lastTradeAt   time.Time
	lastDirection strategy.Direction
	cycles        int
	signals       int
	executed      int
	failures      int
}

// New creates an instrument trader. gatekeeper may be nil.
func New(config Config, b broker.Broker, gatekeeper Gatekeeper, logger zerolog.Logger) *Trader {
	if config.BarsToFetch <= 0 && config.Strategy != nil {
		config.BarsToFetch = config.Strategy.WarmupBars() + 1
	}
	return &Trader{
		config:     config,
		broker:     b,
		gatekeeper: gatekeeper,
		logger:     logger.With().Str("component", "trader").Str("symbol", config.Symbol).Logger(),
	}
}

// Symbol returns the instrument this trader manages.
func (t *Trader) Symbol() string { return t.config.Symbol }

// Stats returns a copy of the trader's counters.
func (t *Trader) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Cycles:        t.cycles,
		Signals:       t.signals,
		Executed:      t.executed,
		Failures:      t.failures,
		LastTradeAt:   t.lastTradeAt,
		LastDirection: t.lastDirection,
	}
}

// CanTrade reports whether the cooldown window since the last executed trade
// has elapsed. True when no trade has been executed yet.
func (t *Trader) CanTrade() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canTradeLocked(time.Now())
}

func (t *Trader) canTradeLocked(now time.Time) bool {
	if t.lastTradeAt.IsZero() {
		return true
	}
	return now.Sub(t.lastTradeAt) >= t.config.Cooldown
}

// Analyze fetches recent bars and delegates to the configured strategy. Too
// little history is data insufficiency and yields HOLD, not an error.
func (t *Trader) Analyze(ctx context.Context) (*strategy.Signal, error) {
	bars, err := t.broker.GetBars(ctx, t.config.Symbol, t.config.Timeframe, t.config.BarsToFetch)
	if err != nil {
		return nil, fmt.Errorf("get bars for %s: %w", t.config.Symbol, err)
	}
	if len(bars) < t.config.Strategy.WarmupBars() {
		return strategy.NewHold(t.config.Symbol,
			fmt.Sprintf("insufficient history: %d of %d bars", len(bars), t.config.Strategy.WarmupBars())), nil
	}

	sig, err := t.config.Strategy.Evaluate(bars)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", t.config.Strategy.Name(), err)
	}
	if sig == nil {
		// The Strategy contract says HOLD, never nil; tolerate sloppy
		// closures behind the Func adapter anyway.
		return strategy.NewHold(t.config.Symbol, "strategy returned no signal"), nil
	}
	if sig.Symbol == "" {
		sig.Symbol = t.config.Symbol
	}
	return sig, nil
}

// ShouldExecute applies the execution gate: HOLD is rejected, cooldown is
// enforced, and a repeat of the previously executed direction is rejected
// unless stacking allows another same-direction entry. The second return
// marks an approved signal as a stacked entry.
func (t *Trader) ShouldExecute(ctx context.Context, sig *strategy.Signal) (bool, bool, string) {
	if sig == nil || !sig.Direction.Actionable() {
		return false, false, "signal is not actionable"
	}

	t.mu.Lock()
	canTrade := t.canTradeLocked(time.Now())
	lastDirection := t.lastDirection
	t.mu.Unlock()

	if !canTrade {
		return false, false, fmt.Sprintf("cooldown active (%s)", t.config.Cooldown)
	}

	if t.config.DedupSameDirection && sig.Direction == lastDirection {
		if !t.config.StackingEnabled {
			return false, false, fmt.Sprintf("duplicate %s signal, stacking disabled", sig.Direction)
		}
		open, err := t.sameDirectionOpen(ctx, sig.Direction)
		if err != nil {
			return false, false, fmt.Sprintf("stacking check failed: %v", err)
		}
		if open >= t.config.MaxStacked {
			return false, false, fmt.Sprintf("stack limit reached (%d/%d)", open, t.config.MaxStacked)
		}
		return true, true, fmt.Sprintf("stacked entry %d of %d", open+1, t.config.MaxStacked)
	}

	return true, false, ""
}

func (t *Trader) sameDirectionOpen(ctx context.Context, dir strategy.Direction) (int, error) {
	positions, err := t.broker.ListOpenPositions(ctx, t.config.Symbol)
	if err != nil {
		return 0, err
	}
	side := broker.SideBuy
	if dir == strategy.Sell {
		side = broker.SideSell
	}
	count := 0
	for _, pos := range positions {
		if pos.Side == side {
			count++
		}
	}
	return count, nil
}

// CalculateVolume sizes the position from the account balance, the configured
// risk percent and the stop distance, rounded down to the symbol's volume
// step and clamped to its min/max. Any sizing failure falls back to the
// symbol's minimum tradeable volume.
func (t *Trader) CalculateVolume(ctx context.Context, sig *strategy.Signal, stacked bool) float64 {
	constraints, err := t.broker.GetSymbolConstraints(ctx, t.config.Symbol)
	if err != nil {
		t.logger.Warn().Err(err).Msg("constraints unavailable, using fallback volume")
		return fallbackVolume
	}

	account, err := t.broker.GetAccountSnapshot(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("account unavailable, using minimum volume")
		return constraints.MinVolume
	}

	pip := constraints.PipSize
	if pip <= 0 {
		pip = broker.PipSizeFromSymbol(t.config.Symbol)
	}
	stopPips := math.Abs(sig.Price-sig.StopLoss) / pip
	if sig.StopLoss <= 0 || stopPips <= 0 || constraints.PipValuePerLot <= 0 {
		t.logger.Warn().Float64("stop_pips", stopPips).Msg("unusable stop distance, using minimum volume")
		return constraints.MinVolume
	}

	riskAmount := account.Balance * t.config.RiskPercent / 100
	if stacked && t.config.StackRiskMultiplier > 0 {
		riskAmount *= t.config.StackRiskMultiplier
	}

	volume := riskAmount / (stopPips * constraints.PipValuePerLot)
	if constraints.VolumeStep > 0 {
		volume = math.Floor(volume/constraints.VolumeStep) * constraints.VolumeStep
	}
	if volume < constraints.MinVolume {
		volume = constraints.MinVolume
	}
	if constraints.MaxVolume > 0 && volume > constraints.MaxVolume {
		volume = constraints.MaxVolume
	}
	return volume
}

// Execute submits the order. Success advances the cooldown clock and records
// the executed direction; failure only increments the failure counter, so a
// failing instrument is retried on the next cycle without backoff.
func (t *Trader) Execute(ctx context.Context, sig *strategy.Signal, volume float64) (*broker.OrderResult, error) {
	side := broker.SideBuy
	if sig.Direction == strategy.Sell {
		side = broker.SideSell
	}

	res, err := t.broker.SendOrder(ctx, broker.OrderRequest{
		Symbol:     t.config.Symbol,
		Side:       side,
		Volume:     volume,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Comment:    t.config.Comment,
	})
	if err != nil {
		t.mu.Lock()
		t.failures++
		t.mu.Unlock()
		return nil, fmt.Errorf("send order: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !res.Success {
		t.failures++
		return res, nil
	}
	t.lastTradeAt = time.Now()
	t.lastDirection = sig.Direction
	t.executed++
	return res, nil
}

// ProcessCycle composes analyze, the execution gate, the optional gatekeeper
// consultation, sizing and execution into one structured outcome.
func (t *Trader) ProcessCycle(ctx context.Context) CycleOutcome {
	t.mu.Lock()
	t.cycles++
	t.mu.Unlock()

	outcome := CycleOutcome{
		CycleID: uuid.NewString(),
		Symbol:  t.config.Symbol,
		State:   StateAnalyzing,
	}

	sig, err := t.Analyze(ctx)
	if err != nil {
		outcome.State = StateIdle
		outcome.Err = err
		return outcome
	}
	outcome.Signal = sig

	if !sig.Direction.Actionable() {
		outcome.State = StateHold
		outcome.Reason = sig.Reason
		return outcome
	}

	t.mu.Lock()
	t.signals++
	t.mu.Unlock()

	ok, stacked, reason := t.ShouldExecute(ctx, sig)
	if !ok {
		outcome.State = StateIdle
		outcome.Reason = reason
		return outcome
	}
	outcome.Stacked = stacked

	if t.gatekeeper != nil {
		decision, err := t.gatekeeper.Decide(ctx, sig)
		if err != nil {
			outcome.State = StateIdle
			outcome.Err = fmt.Errorf("gatekeeper: %w", err)
			return outcome
		}
		if decision.Action != portfolio.Approve {
			outcome.State = StateIdle
			outcome.Reason = fmt.Sprintf("gatekeeper %s: %s", decision.Action, decision.Rationale)
			return outcome
		}
	}

	outcome.State = StateExecuting
	outcome.Volume = t.CalculateVolume(ctx, sig, stacked)

	res, err := t.Execute(ctx, sig, outcome.Volume)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if !res.Success {
		outcome.Reason = fmt.Sprintf("order rejected: %s", res.ErrorMsg)
		return outcome
	}

	outcome.Executed = true
	outcome.Ticket = res.Ticket
	t.logger.Info().
		Str("cycle", outcome.CycleID).
		Str("direction", string(sig.Direction)).
		Float64("volume", outcome.Volume).
		Int64("ticket", res.Ticket).
		Bool("stacked", stacked).
		Msg("trade executed")
	return outcome
}
