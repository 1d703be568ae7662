package broker

import "time"

// Side is the direction of a live position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL, used in profit arithmetic.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite returns the closing side for a position.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Bar is a fixed-interval OHLCV aggregate for one symbol, produced by the
// broker. Bars are immutable once returned.
type Bar struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// AccountSnapshot is a point-in-time view of the trading account.
type AccountSnapshot struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
	Currency   string
}

// SymbolConstraints describes the tradeable limits and price granularity of
// one symbol as reported by the broker.
type SymbolConstraints struct {
	Symbol       string
	MinVolume    float64
	MaxVolume    float64
	VolumeStep   float64
	PipSize      float64
	ContractSize float64
	// PipValuePerLot is the account-currency value of a one-pip move for one
	// lot of volume.
	PipValuePerLot float64
}

// OrderRequest describes a market order to be submitted to the broker.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64 // reference price, broker fills at market
	StopLoss   float64 // 0 = none
	TakeProfit float64 // 0 = none
	Comment    string
}

// OrderResult is the broker's response to SendOrder.
type OrderResult struct {
	Success   bool
	Ticket    int64
	FillPrice float64
	ErrorCode int
	ErrorMsg  string
}

// ModifyResult is the broker's response to ModifyPosition.
type ModifyResult struct {
	Success  bool
	ErrorMsg string
}

// CloseResult is the broker's response to ClosePosition.
type CloseResult struct {
	Success   bool
	FillPrice float64
	ErrorMsg  string
}

// Position is a live position handle owned by the broker. Callers reference
// it by Ticket and must never assume it is still open on the next call.
type Position struct {
	Ticket       int64
	Symbol       string
	Side         Side
	Volume       float64
	OpenPrice    float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	Profit       float64
	OpenTime     time.Time
}
