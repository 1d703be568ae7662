package strategy

import "forex-trading-engine/internal/broker"

// Strategy defines the interface for trading strategies. Evaluate must be a
// pure function of the bar slice it is given: identical input bars produce an
// identical signal, which is what makes historical replay deterministic.
type Strategy interface {
	// Name returns the strategy name.
	Name() string

	// WarmupBars returns the minimum bar history Evaluate needs. Callers
	// treat shorter histories as data insufficiency, not an error.
	WarmupBars() int

	// Evaluate inspects the bar history (oldest first) and returns a signal.
	// A HOLD signal, not a nil signal, is the no-action answer.
	Evaluate(bars []broker.Bar) (*Signal, error)
}

// Func adapts a closure to the Strategy interface, mirroring http.HandlerFunc.
// Used heavily by backtests and tests.
type Func struct {
	StrategyName string
	Warmup       int
	Fn           func(bars []broker.Bar) (*Signal, error)
}

func (f Func) Name() string    { return f.StrategyName }
func (f Func) WarmupBars() int { return f.Warmup }
func (f Func) Evaluate(bars []broker.Bar) (*Signal, error) {
	return f.Fn(bars)
}

var _ Strategy = Func{}
