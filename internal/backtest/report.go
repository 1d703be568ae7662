package backtest

import (
	"fmt"
	"io"
	"math"
)

// PerformanceMetrics aggregates statistics over the closed positions of one
// simulation run. All statistics are computed over CLOSED positions only.
type PerformanceMetrics struct {
	Symbol    string
	Timeframe string

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent, 0..100

	GrossProfit float64
	GrossLoss   float64 // absolute value
	NetProfit   float64
	TotalPips   float64

	ProfitFactor float64
	SharpeRatio  float64

	MaxDrawdown        float64
	MaxDrawdownPercent float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	Rating float64 // composite 0..100

	FinalBalance float64
	EquityCurve  []EquityPoint
	Positions    []SimulatedPosition
}

// ComputeMetrics derives aggregate statistics from closed positions in
// chronological order. Zero trades produce zero-valued metrics.
func ComputeMetrics(closed []SimulatedPosition, initialBalance float64) *PerformanceMetrics {
	m := &PerformanceMetrics{FinalBalance: initialBalance}
	if len(closed) == 0 {
		return m
	}

	m.TotalTrades = len(closed)

	var winStreak, lossStreak int
	for _, pos := range closed {
		m.NetProfit += pos.Profit
		m.TotalPips += pos.ProfitPips
		if pos.Profit > 0 {
			m.WinningTrades++
			m.GrossProfit += pos.Profit
			winStreak++
			lossStreak = 0
		} else {
			m.LosingTrades++
			m.GrossLoss += -pos.Profit
			lossStreak++
			winStreak = 0
		}
		if winStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = winStreak
		}
		if lossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = lossStreak
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.GrossLoss > 0 {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}
	m.SharpeRatio = sharpeRatio(closed)
	m.MaxDrawdown = maxDrawdown(closed)
	if initialBalance > 0 {
		m.MaxDrawdownPercent = m.MaxDrawdown / initialBalance * 100
	}
	m.Rating = rate(m)
	return m
}

// sharpeRatio computes a per-trade-return Sharpe-like ratio with a zero
// risk-free rate. Fewer than two trades or zero variance yield 0.
func sharpeRatio(closed []SimulatedPosition) float64 {
	if len(closed) < 2 {
		return 0
	}
	mean := 0.0
	for _, pos := range closed {
		mean += pos.Profit
	}
	mean /= float64(len(closed))

	variance := 0.0
	for _, pos := range closed {
		d := pos.Profit - mean
		variance += d * d
	}
	variance /= float64(len(closed))
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// maxDrawdown is the largest peak-to-trough decline of cumulative profit over
// the trade sequence: max(running_max(cumulative) - cumulative).
func maxDrawdown(closed []SimulatedPosition) float64 {
	cumulative := 0.0
	peak := 0.0
	worst := 0.0
	for _, pos := range closed {
		cumulative += pos.Profit
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return worst
}

// rate blends the headline statistics into a 0-100 score used to rank
// strategies against each other. The breakpoints are fixed.
func rate(m *PerformanceMetrics) float64 {
	score := 0.0

	switch {
	case m.WinRate >= 60:
		score += 25
	case m.WinRate >= 50:
		score += 20
	case m.WinRate >= 40:
		score += 15
	case m.WinRate >= 30:
		score += 10
	default:
		score += 5
	}

	switch {
	case m.ProfitFactor >= 2.0:
		score += 25
	case m.ProfitFactor >= 1.5:
		score += 20
	case m.ProfitFactor >= 1.2:
		score += 15
	case m.ProfitFactor >= 1.0:
		score += 10
	}

	switch {
	case m.SharpeRatio >= 2.0:
		score += 20
	case m.SharpeRatio >= 1.0:
		score += 15
	case m.SharpeRatio >= 0.5:
		score += 10
	case m.SharpeRatio > 0:
		score += 5
	}

	switch {
	case m.MaxDrawdownPercent <= 5:
		score += 15
	case m.MaxDrawdownPercent <= 10:
		score += 12
	case m.MaxDrawdownPercent <= 20:
		score += 8
	case m.MaxDrawdownPercent <= 30:
		score += 4
	}

	if m.NetProfit > 0 {
		score += 15
	}

	return score
}

// Print writes a human-readable report to w.
func (m *PerformanceMetrics) Print(w io.Writer) {
	fmt.Fprintf(w, "=== BACKTEST RESULTS: %s %s ===\n", m.Symbol, m.Timeframe)
	fmt.Fprintf(w, "Total Trades: %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Winning Trades: %d (%.1f%%)\n", m.WinningTrades, m.WinRate)
	fmt.Fprintf(w, "Losing Trades: %d\n", m.LosingTrades)
	fmt.Fprintf(w, "Net Profit: %.2f (%.1f pips)\n", m.NetProfit, m.TotalPips)
	fmt.Fprintf(w, "Profit Factor: %.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Max Drawdown: %.2f (%.2f%%)\n", m.MaxDrawdown, m.MaxDrawdownPercent)
	fmt.Fprintf(w, "Longest Win Streak: %d\n", m.MaxConsecutiveWins)
	fmt.Fprintf(w, "Longest Loss Streak: %d\n", m.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Final Balance: %.2f\n", m.FinalBalance)
	fmt.Fprintf(w, "Rating: %.0f/100\n", m.Rating)
}
