package strategy

import "time"

// Direction is a trade recommendation.
type Direction string

const (
	Buy       Direction = "BUY"
	Sell      Direction = "SELL"
	Hold      Direction = "HOLD"
	CloseBuy  Direction = "CLOSE_BUY"
	CloseSell Direction = "CLOSE_SELL"
)

// Actionable reports whether the direction opens a new position.
func (d Direction) Actionable() bool {
	return d == Buy || d == Sell
}

// Signal is a directional trade recommendation produced by a Strategy. It is
// created fresh on each evaluation; enrichment layers (the gatekeeper) may
// overwrite Direction and Confidence before execution, nothing else mutates
// it.
type Signal struct {
	Direction  Direction
	Symbol     string
	Timestamp  time.Time
	Price      float64
	Confidence float64 // 0..1
	StopLoss   float64 // 0 = unset
	TakeProfit float64 // 0 = unset
	Reason     string
	Metadata   map[string]string
}

// NewHold returns a HOLD signal with the given reason.
func NewHold(symbol, reason string) *Signal {
	return &Signal{
		Direction: Hold,
		Symbol:    symbol,
		Timestamp: time.Now(),
		Reason:    reason,
	}
}
