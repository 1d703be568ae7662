package broker

import (
	"context"
	"errors"
	"strings"
)

// Broker defines the synchronous request/response contract with the external
// trading venue. Every call is blocking and atomic from the caller's point of
// view: it either succeeds or fails, never partially. Failures mean "no state
// change assumed" and callers continue with other work.
type Broker interface {
	// GetBars returns up to count bars for symbol/timeframe, oldest first.
	// An empty slice is a valid response on upstream failure.
	GetBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error)

	// GetAccountSnapshot returns the current account state.
	GetAccountSnapshot(ctx context.Context) (*AccountSnapshot, error)

	// GetSymbolConstraints returns trading constraints for symbol. An error
	// indicates the symbol is unknown or unavailable.
	GetSymbolConstraints(ctx context.Context, symbol string) (*SymbolConstraints, error)

	// SendOrder submits a market order.
	SendOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// ModifyPosition updates the protective levels of an open position.
	// Passing 0 for a level leaves it unchanged. The broker may reject the
	// modification if its view of the position changed since the last read.
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (*ModifyResult, error)

	// ClosePosition closes an open position at market. Volume below the
	// position's volume performs a partial close.
	ClosePosition(ctx context.Context, ticket int64, volume float64) (*CloseResult, error)

	// ListOpenPositions returns all open positions, optionally filtered by
	// symbol ("" = all).
	ListOpenPositions(ctx context.Context, symbol string) ([]Position, error)
}

// ErrUnknownSymbol is returned by brokers for symbols they cannot trade.
var ErrUnknownSymbol = errors.New("unknown symbol")

// PipSizeFromSymbol guesses a pip size from the symbol name. This is a
// fallback for contexts where SymbolConstraints are unavailable (synthetic
// backtests); live code paths should prefer the broker-reported PipSize.
func PipSizeFromSymbol(symbol string) float64 {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.Contains(upper, "JPY"):
		return 0.01
	case strings.Contains(upper, "XAU"), strings.Contains(upper, "GOLD"):
		return 0.1
	default:
		return 0.0001
	}
}
