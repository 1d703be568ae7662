package strategy

import (
	"fmt"
	"time"

	"forex-trading-engine/internal/broker"
)

// CrossoverConfig configures the fast/slow moving-average strategy.
type CrossoverConfig struct {
	Symbol         string
	FastPeriod     int
	SlowPeriod     int
	StopLossPips   float64
	TakeProfitPips float64
	PipSize        float64 // 0 = derive from symbol name
}

// CrossoverStrategy maps the relation between a fast and a slow simple moving
// average to a direction: fast above slow is BUY, fast below slow is SELL,
// equal is HOLD. Protective levels sit at fixed pip distances from the close.
type CrossoverStrategy struct {
	config CrossoverConfig
}

// NewCrossoverStrategy creates a crossover strategy, filling in the pip size
// from the symbol name when the config leaves it unset.
func NewCrossoverStrategy(config CrossoverConfig) *CrossoverStrategy {
	if config.PipSize <= 0 {
		config.PipSize = broker.PipSizeFromSymbol(config.Symbol)
	}
	return &CrossoverStrategy{config: config}
}

func (s *CrossoverStrategy) Name() string {
	return fmt.Sprintf("Crossover-%s-%d/%d", s.config.Symbol, s.config.FastPeriod, s.config.SlowPeriod)
}

func (s *CrossoverStrategy) WarmupBars() int {
	return s.config.SlowPeriod
}

func (s *CrossoverStrategy) Evaluate(bars []broker.Bar) (*Signal, error) {
	if len(bars) < s.config.SlowPeriod {
		return NewHold(s.config.Symbol, fmt.Sprintf("need %d bars, have %d", s.config.SlowPeriod, len(bars))), nil
	}

	fast := SMA(bars, s.config.FastPeriod)
	slow := SMA(bars, s.config.SlowPeriod)
	price := bars[len(bars)-1].Close

	sig := &Signal{
		Symbol:    s.config.Symbol,
		Timestamp: time.Now(),
		Price:     price,
	}

	slDist := s.config.StopLossPips * s.config.PipSize
	tpDist := s.config.TakeProfitPips * s.config.PipSize

	switch {
	case fast > slow:
		sig.Direction = Buy
		sig.StopLoss = price - slDist
		sig.TakeProfit = price + tpDist
	case fast < slow:
		sig.Direction = Sell
		sig.StopLoss = price + slDist
		sig.TakeProfit = price - tpDist
	default:
		sig.Direction = Hold
	}

	// Confidence scales with the separation of the averages, capped at 1.
	if sig.Direction != Hold && slow != 0 {
		spread := (fast - slow) / slow
		if spread < 0 {
			spread = -spread
		}
		sig.Confidence = 0.5 + spread*100
		if sig.Confidence > 1 {
			sig.Confidence = 1
		}
	}

	sig.Reason = fmt.Sprintf("fast SMA %.5f vs slow SMA %.5f", fast, slow)
	return sig, nil
}

// SMA returns the simple moving average of the closing prices over the last
// period bars. Returns 0 when fewer bars than period are available.
func SMA(bars []broker.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	sum := 0.0
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}

var _ Strategy = (*CrossoverStrategy)(nil)
