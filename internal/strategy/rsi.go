package strategy

import (
	"fmt"
	"time"

	"forex-trading-engine/internal/broker"
)

// RSIConfig configures the mean-reversion RSI strategy.
type RSIConfig struct {
	Symbol          string
	Period          int     // 0 = 14
	OversoldLevel   float64 // 0 = 30
	OverboughtLevel float64 // 0 = 70
	StopLossPips    float64
	TakeProfitPips  float64
	PipSize         float64 // 0 = derive from symbol name
}

// RSIStrategy buys oversold and sells overbought readings of the relative
// strength index. Between the levels it holds.
type RSIStrategy struct {
	config RSIConfig
}

// NewRSIStrategy creates an RSI strategy with the usual 14/30/70 defaults.
func NewRSIStrategy(config RSIConfig) *RSIStrategy {
	if config.Period <= 0 {
		config.Period = 14
	}
	if config.OversoldLevel <= 0 {
		config.OversoldLevel = 30
	}
	if config.OverboughtLevel <= 0 {
		config.OverboughtLevel = 70
	}
	if config.PipSize <= 0 {
		config.PipSize = broker.PipSizeFromSymbol(config.Symbol)
	}
	return &RSIStrategy{config: config}
}

func (s *RSIStrategy) Name() string {
	return fmt.Sprintf("RSI-%s-%d", s.config.Symbol, s.config.Period)
}

func (s *RSIStrategy) WarmupBars() int {
	return s.config.Period + 1
}

func (s *RSIStrategy) Evaluate(bars []broker.Bar) (*Signal, error) {
	if len(bars) < s.config.Period+1 {
		return NewHold(s.config.Symbol, fmt.Sprintf("need %d bars, have %d", s.config.Period+1, len(bars))), nil
	}

	rsi := RSI(bars, s.config.Period)
	price := bars[len(bars)-1].Close
	slDist := s.config.StopLossPips * s.config.PipSize
	tpDist := s.config.TakeProfitPips * s.config.PipSize

	sig := &Signal{
		Symbol:    s.config.Symbol,
		Timestamp: time.Now(),
		Price:     price,
		Reason:    fmt.Sprintf("RSI %.2f", rsi),
	}

	switch {
	case rsi < s.config.OversoldLevel:
		sig.Direction = Buy
		sig.StopLoss = price - slDist
		sig.TakeProfit = price + tpDist
		sig.Confidence = confidenceFromDistance(s.config.OversoldLevel - rsi)
		sig.Reason = fmt.Sprintf("RSI oversold: %.2f", rsi)
	case rsi > s.config.OverboughtLevel:
		sig.Direction = Sell
		sig.StopLoss = price + slDist
		sig.TakeProfit = price - tpDist
		sig.Confidence = confidenceFromDistance(rsi - s.config.OverboughtLevel)
		sig.Reason = fmt.Sprintf("RSI overbought: %.2f", rsi)
	default:
		sig.Direction = Hold
	}
	return sig, nil
}

// confidenceFromDistance scales how far past the level the reading sits into
// [0.5, 1]: every point beyond the threshold adds 0.02.
func confidenceFromDistance(distance float64) float64 {
	c := 0.5 + distance*0.02
	if c > 1 {
		return 1
	}
	return c
}

// RSI computes the relative strength index over the last period bars using
// simple (non-smoothed) average gains and losses. Returns 50 on flat input.
func RSI(bars []broker.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50
	}

	var gains, losses float64
	recent := bars[len(bars)-period-1:]
	for i := 1; i < len(recent); i++ {
		change := recent[i].Close - recent[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	if gains+losses == 0 {
		return 50
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}

var _ Strategy = (*RSIStrategy)(nil)
