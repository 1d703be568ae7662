package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/strategy"
)

func ascendingBars(n int, start, step float64) []broker.Bar {
	bars := make([]broker.Bar, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = broker.Bar{
			Symbol:    "EURUSD",
			Timeframe: "M15",
			OpenTime:  t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c - step/2,
			High:      c + step/2,
			Low:       c - step,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

// buyOnce signals BUY exactly when the history reaches fireAt bars, HOLD
// otherwise.
func buyOnce(warmup, fireAt int, slPips, tpPips float64) strategy.Strategy {
	return strategy.Func{
		StrategyName: "buy-once",
		Warmup:       warmup,
		Fn: func(bars []broker.Bar) (*strategy.Signal, error) {
			if len(bars) != fireAt {
				return strategy.NewHold("EURUSD", "waiting"), nil
			}
			price := bars[len(bars)-1].Close
			return &strategy.Signal{
				Direction:  strategy.Buy,
				Symbol:     "EURUSD",
				Price:      price,
				Confidence: 0.9,
				StopLoss:   price - slPips*0.0001,
				TakeProfit: price + tpPips*0.0001,
			}, nil
		},
	}
}

func TestRunAscendingSeriesHitsTakeProfit(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
		ContractSize:   100000,
	}, zerolog.Nop())

	// 60 bars rising 10 pips each; one BUY at bar 51 with a 50-pip target.
	bars := ascendingBars(60, 1.0000, 0.0010)
	metrics := engine.Run(buyOnce(50, 51, 100, 50), bars, "EURUSD", "M15", 0.1, 1)

	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", metrics.TotalTrades)
	}
	pos := metrics.Positions[0]
	if pos.ExitReason != ReasonTakeProfit {
		t.Errorf("exit reason = %q, want %q", pos.ExitReason, ReasonTakeProfit)
	}
	if pos.Profit <= 0 {
		t.Errorf("profit = %v, want > 0", pos.Profit)
	}
	if pos.Status != StatusClosed {
		t.Errorf("status = %q, want %q", pos.Status, StatusClosed)
	}
	if metrics.FinalBalance <= 10000 {
		t.Errorf("final balance = %v, want > initial", metrics.FinalBalance)
	}
}

func TestRunEmptyInput(t *testing.T) {
	engine := NewEngine(EngineConfig{InitialBalance: 5000}, zerolog.Nop())
	metrics := engine.Run(buyOnce(10, 11, 30, 60), nil, "EURUSD", "M15", 0.1, 1)

	if metrics.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0", metrics.TotalTrades)
	}
	if metrics.FinalBalance != 5000 {
		t.Errorf("final balance = %v, want 5000", metrics.FinalBalance)
	}
}

func TestRunStopLossCheckedBeforeTakeProfit(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
		ContractSize:   100000,
	}, zerolog.Nop())

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []broker.Bar{
		{OpenTime: t0, Open: 1.0000, High: 1.0001, Low: 0.9999, Close: 1.0000},
		{OpenTime: t0.Add(15 * time.Minute), Open: 1.0000, High: 1.0001, Low: 0.9999, Close: 1.0000},
		// Wide bar covering both protective levels.
		{OpenTime: t0.Add(30 * time.Minute), Open: 1.0000, High: 1.0100, Low: 0.9900, Close: 1.0000},
	}
	metrics := engine.Run(buyOnce(1, 2, 50, 50), bars, "EURUSD", "M15", 0.1, 1)

	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", metrics.TotalTrades)
	}
	if got := metrics.Positions[0].ExitReason; got != ReasonStopLoss {
		t.Errorf("exit reason = %q, want %q (stop has priority)", got, ReasonStopLoss)
	}
}

func TestRunSellProfitArithmetic(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
		ContractSize:   100000,
		Commission:     2,
	}, zerolog.Nop())

	sellOnce := strategy.Func{
		StrategyName: "sell-once",
		Warmup:       1,
		Fn: func(bars []broker.Bar) (*strategy.Signal, error) {
			if len(bars) != 2 {
				return strategy.NewHold("EURUSD", "waiting"), nil
			}
			return &strategy.Signal{
				Direction:  strategy.Sell,
				Symbol:     "EURUSD",
				Price:      1.0000,
				StopLoss:   1.0050,
				TakeProfit: 0.9950,
			}, nil
		},
	}

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []broker.Bar{
		{OpenTime: t0, Open: 1.0000, High: 1.0001, Low: 0.9999, Close: 1.0000},
		{OpenTime: t0.Add(15 * time.Minute), Open: 1.0000, High: 1.0001, Low: 0.9999, Close: 1.0000},
		{OpenTime: t0.Add(30 * time.Minute), Open: 0.9990, High: 0.9995, Low: 0.9940, Close: 0.9950},
	}
	metrics := engine.Run(sellOnce, bars, "EURUSD", "M15", 1.0, 1)

	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", metrics.TotalTrades)
	}
	pos := metrics.Positions[0]
	if pos.ExitReason != ReasonTakeProfit {
		t.Fatalf("exit reason = %q", pos.ExitReason)
	}
	// (1.0000 - 0.9950) x 1 lot x 100000 - 2 commission
	want := 0.0050*1.0*100000 - 2
	if math.Abs(pos.Profit-want) > 1e-6 {
		t.Errorf("profit = %v, want %v", pos.Profit, want)
	}
	if math.Abs(pos.ProfitPips-50) > 1e-6 {
		t.Errorf("profit pips = %v, want 50", pos.ProfitPips)
	}
}

func TestRunBalanceReconcilesWithNetProfit(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
		ContractSize:   100000,
		Commission:     2,
	}, zerolog.Nop())

	// One take-profit trade; the commission must hit the balance exactly
	// once, so final balance equals initial plus net profit.
	bars := ascendingBars(10, 1.0000, 0.0010)
	metrics := engine.Run(buyOnce(1, 2, 100, 30), bars, "EURUSD", "M15", 0.1, 1)

	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", metrics.TotalTrades)
	}
	want := 10000 + metrics.NetProfit
	if math.Abs(metrics.FinalBalance-want) > 1e-6 {
		t.Errorf("final balance = %v, want initial+net = %v", metrics.FinalBalance, want)
	}

	// Same reconciliation with several trades and a force close at the end.
	alwaysBuy := strategy.Func{
		StrategyName: "always-buy",
		Warmup:       1,
		Fn: func(bars []broker.Bar) (*strategy.Signal, error) {
			price := bars[len(bars)-1].Close
			return &strategy.Signal{
				Direction: strategy.Buy, Symbol: "EURUSD", Price: price,
				StopLoss: price - 0.0030, TakeProfit: price + 0.0030,
			}, nil
		},
	}
	metrics = engine.Run(alwaysBuy, ascendingBars(30, 1.0000, 0.0010), "EURUSD", "M15", 0.1, 1)
	if metrics.TotalTrades < 2 {
		t.Fatalf("trades = %d, want several", metrics.TotalTrades)
	}
	want = 10000 + metrics.NetProfit
	if math.Abs(metrics.FinalBalance-want) > 1e-6 {
		t.Errorf("multi-trade final balance = %v, want initial+net = %v", metrics.FinalBalance, want)
	}
}

func TestRunForceCloseAtEnd(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
		ContractSize:   100000,
	}, zerolog.Nop())

	// No protective levels, so the position survives to the final bar.
	openEnded := strategy.Func{
		StrategyName: "open-ended",
		Warmup:       1,
		Fn: func(bars []broker.Bar) (*strategy.Signal, error) {
			if len(bars) != 2 {
				return strategy.NewHold("EURUSD", "waiting"), nil
			}
			return &strategy.Signal{Direction: strategy.Buy, Symbol: "EURUSD", Price: bars[len(bars)-1].Close}, nil
		},
	}

	bars := ascendingBars(10, 1.0000, 0.0010)
	metrics := engine.Run(openEnded, bars, "EURUSD", "M15", 0.1, 1)

	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", metrics.TotalTrades)
	}
	pos := metrics.Positions[0]
	if pos.ExitReason != ReasonEndOfTest {
		t.Errorf("exit reason = %q, want %q", pos.ExitReason, ReasonEndOfTest)
	}
	if pos.ExitPrice != bars[len(bars)-1].Close {
		t.Errorf("exit price = %v, want final close %v", pos.ExitPrice, bars[len(bars)-1].Close)
	}
}

func TestRunSlippageWorsensEntry(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
		ContractSize:   100000,
		SlippagePips:   2,
	}, zerolog.Nop())

	bars := ascendingBars(10, 1.0000, 0.0010)
	metrics := engine.Run(buyOnce(1, 2, 0, 0), bars, "EURUSD", "M15", 0.1, 1)

	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d", metrics.TotalTrades)
	}
	signalPrice := bars[1].Close
	want := signalPrice + 2*0.0001 // buy fills worse, above the signal price
	if math.Abs(metrics.Positions[0].EntryPrice-want) > 1e-9 {
		t.Errorf("entry = %v, want %v", metrics.Positions[0].EntryPrice, want)
	}
}

func TestRunMaxOpenLimit(t *testing.T) {
	engine := NewEngine(EngineConfig{
		InitialBalance: 10000,
		PipSize:        0.0001,
	}, zerolog.Nop())

	alwaysBuy := strategy.Func{
		StrategyName: "always-buy",
		Warmup:       1,
		Fn: func(bars []broker.Bar) (*strategy.Signal, error) {
			return &strategy.Signal{Direction: strategy.Buy, Symbol: "EURUSD", Price: bars[len(bars)-1].Close}, nil
		},
	}

	bars := ascendingBars(20, 1.0000, 0.0010)
	metrics := engine.Run(alwaysBuy, bars, "EURUSD", "M15", 0.1, 2)

	// No protective levels: everything force-closes at the end, so total
	// trades equals the entries the maxOpen gate allowed.
	if metrics.TotalTrades != 2 {
		t.Errorf("trades = %d, want 2 (maxOpen)", metrics.TotalTrades)
	}
}

func TestRunEquityCurveLength(t *testing.T) {
	engine := NewEngine(EngineConfig{InitialBalance: 10000, PipSize: 0.0001}, zerolog.Nop())
	bars := ascendingBars(30, 1.0000, 0.0010)
	metrics := engine.Run(buyOnce(10, 11, 30, 60), bars, "EURUSD", "M15", 0.1, 1)

	// One equity point per processed bar, after the warm-up.
	if want := 30 - 10; len(metrics.EquityCurve) != want {
		t.Errorf("equity points = %d, want %d", len(metrics.EquityCurve), want)
	}
}
