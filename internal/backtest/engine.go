package backtest

import (
	"time"

	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/strategy"
)

// Position status values for simulated positions.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Exit reasons written by the engine.
const (
	ReasonStopLoss   = "Stop Loss"
	ReasonTakeProfit = "Take Profit"
	ReasonEndOfTest  = "End of backtest"
)

// SimulatedPosition is a position owned exclusively by the simulation engine.
// Status transitions OPEN to CLOSED exactly once and is never reopened.
type SimulatedPosition struct {
	Symbol     string
	Side       broker.Side
	Volume     float64
	EntryTime  time.Time
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason string
	Profit     float64 // account currency, net of commission
	ProfitPips float64
	Commission float64
	Status     string
}

// EquityPoint records balance plus unrealized profit after one bar.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// EngineConfig holds simulation parameters.
type EngineConfig struct {
	InitialBalance float64
	// SlippagePips worsens every fill by a fixed pip distance.
	SlippagePips float64
	// Commission is a flat account-currency charge per opened position.
	Commission float64
	// PipSize overrides pip derivation; 0 means derive from the symbol name.
	PipSize float64
	// ContractSize is the units-per-lot multiplier; 0 defaults to 100000.
	ContractSize float64
}

// Engine replays a chronological bar sequence against a strategy and tracks
// simulated positions. It is single-threaded and fully deterministic for
// identical inputs.
type Engine struct {
	config EngineConfig
	logger zerolog.Logger
}

// NewEngine creates a simulation engine.
func NewEngine(config EngineConfig, logger zerolog.Logger) *Engine {
	if config.ContractSize <= 0 {
		config.ContractSize = 100000
	}
	return &Engine{
		config: config,
		logger: logger.With().Str("component", "backtest").Logger(),
	}
}

// Run replays bars (chronologically ordered, one symbol/timeframe) against
// strat. Processing starts after the strategy's warm-up length; on each later
// bar open positions are swept for stop-loss/take-profit touches, then a new
// position may be opened if fewer than maxOpen are live. Remaining positions
// are force-closed at the final close. Empty input yields zero metrics.
func (e *Engine) Run(strat strategy.Strategy, bars []broker.Bar, symbol, timeframe string, volume float64, maxOpen int) *PerformanceMetrics {
	if len(bars) == 0 {
		return &PerformanceMetrics{Symbol: symbol, Timeframe: timeframe, FinalBalance: e.config.InitialBalance}
	}
	if maxOpen <= 0 {
		maxOpen = 1
	}

	pipSize := e.config.PipSize
	if pipSize <= 0 {
		pipSize = broker.PipSizeFromSymbol(symbol)
	}

	balance := e.config.InitialBalance
	var open []*SimulatedPosition
	var closed []SimulatedPosition
	equity := make([]EquityPoint, 0, len(bars))

	warmup := strat.WarmupBars()

	for i := warmup; i < len(bars); i++ {
		bar := bars[i]

		// 1. Sweep open positions for protective-level touches.
		remaining := open[:0]
		for _, pos := range open {
			exitPrice, reason := touchedLevel(pos, bar)
			if reason == "" {
				remaining = append(remaining, pos)
				continue
			}
			e.closePosition(pos, bar.OpenTime, exitPrice, reason, pipSize)
			// Commission already left the balance at entry; settle the
			// gross move so it is not charged a second time.
			balance += pos.Profit + pos.Commission
			closed = append(closed, *pos)
		}
		open = remaining

		// 2. Ask the strategy for a signal over the bar prefix seen so far.
		if len(open) < maxOpen {
			sig, err := strat.Evaluate(bars[:i+1])
			if err != nil {
				e.logger.Debug().Err(err).Int("bar", i).Msg("strategy evaluation failed")
			} else if sig != nil && sig.Direction.Actionable() {
				pos := e.openPosition(sig, bar, symbol, volume, pipSize)
				balance -= pos.Commission
				open = append(open, pos)
			}
		}

		// 3. Record equity: balance plus unrealized profit of open positions.
		unrealized := 0.0
		for _, pos := range open {
			diff := (bar.Close - pos.EntryPrice) * pos.Side.Sign()
			unrealized += diff * pos.Volume * e.config.ContractSize
		}
		equity = append(equity, EquityPoint{Timestamp: bar.OpenTime, Equity: balance + unrealized})
	}

	// Force-close whatever is still open at the final close price.
	last := bars[len(bars)-1]
	for _, pos := range open {
		e.closePosition(pos, last.OpenTime, last.Close, ReasonEndOfTest, pipSize)
		balance += pos.Profit + pos.Commission
		closed = append(closed, *pos)
	}

	metrics := ComputeMetrics(closed, e.config.InitialBalance)
	metrics.Symbol = symbol
	metrics.Timeframe = timeframe
	metrics.FinalBalance = balance
	metrics.EquityCurve = equity
	metrics.Positions = closed
	return metrics
}

// openPosition enters at the signal price adjusted by slippage against the
// trader and charges the flat commission.
func (e *Engine) openPosition(sig *strategy.Signal, bar broker.Bar, symbol string, volume float64, pipSize float64) *SimulatedPosition {
	entry := sig.Price
	slip := e.config.SlippagePips * pipSize
	side := broker.SideBuy
	if sig.Direction == strategy.Sell {
		side = broker.SideSell
		entry -= slip
	} else {
		entry += slip
	}
	return &SimulatedPosition{
		Symbol:     symbol,
		Side:       side,
		Volume:     volume,
		EntryTime:  bar.OpenTime,
		EntryPrice: entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Commission: e.config.Commission,
		Status:     StatusOpen,
	}
}

func (e *Engine) closePosition(pos *SimulatedPosition, at time.Time, exitPrice float64, reason string, pipSize float64) {
	diff := (exitPrice - pos.EntryPrice) * pos.Side.Sign()
	pos.ExitTime = at
	pos.ExitPrice = exitPrice
	pos.ExitReason = reason
	pos.Profit = diff*pos.Volume*e.config.ContractSize - pos.Commission
	pos.ProfitPips = diff / pipSize
	pos.Status = StatusClosed
}

// touchedLevel returns the exit price and reason when the bar crosses the
// position's stop-loss or take-profit, checking the stop first. The exit
// price is the triggered level itself.
func touchedLevel(pos *SimulatedPosition, bar broker.Bar) (float64, string) {
	if pos.Side == broker.SideBuy {
		if pos.StopLoss > 0 && bar.Low <= pos.StopLoss {
			return pos.StopLoss, ReasonStopLoss
		}
		if pos.TakeProfit > 0 && bar.High >= pos.TakeProfit {
			return pos.TakeProfit, ReasonTakeProfit
		}
		return 0, ""
	}
	if pos.StopLoss > 0 && bar.High >= pos.StopLoss {
		return pos.StopLoss, ReasonStopLoss
	}
	if pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit {
		return pos.TakeProfit, ReasonTakeProfit
	}
	return 0, ""
}
