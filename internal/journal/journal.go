// Package journal persists trading activity for surrounding tooling. The
// engine itself keeps no state across restarts; the journal is a write-only
// sink that records what happened.
package journal

import (
	"context"
	"time"
)

// ExecutionRecord is one executed live trade.
type ExecutionRecord struct {
	CycleID   string
	Symbol    string
	Direction string
	Price     float64
	Volume    float64
	Ticket    int64
	Stacked   bool
	Reason    string
	At        time.Time
}

// CycleRecord summarizes one orchestration cycle.
type CycleRecord struct {
	CycleID     string
	StartedAt   time.Time
	DurationMs  int64
	Instruments int
	Executed    int
	Errors      int
}

// BacktestRecord summarizes one simulation run.
type BacktestRecord struct {
	Symbol       string
	Timeframe    string
	Strategy     string
	TotalTrades  int
	WinRate      float64
	NetProfit    float64
	ProfitFactor float64
	MaxDrawdown  float64
	Rating       float64
	RanAt        time.Time
}

// Store is the journal sink interface. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveExecution(ctx context.Context, rec ExecutionRecord) error
	SaveCycle(ctx context.Context, rec CycleRecord) error
	SaveBacktest(ctx context.Context, rec BacktestRecord) error
}

// Nop discards all records. Used when no journal database is configured.
type Nop struct{}

func (Nop) SaveExecution(context.Context, ExecutionRecord) error { return nil }
func (Nop) SaveCycle(context.Context, CycleRecord) error         { return nil }
func (Nop) SaveBacktest(context.Context, BacktestRecord) error   { return nil }

var _ Store = Nop{}
