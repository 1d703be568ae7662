package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBroker is an in-memory Broker used by tests and dry-run mode. Bars,
// constraints and account state are scripted by the caller; orders maintain a
// positions ledger with incrementing tickets.
type MockBroker struct {
	mu          sync.RWMutex
	bars        map[string][]Bar // keyed by symbol+"/"+timeframe
	constraints map[string]*SymbolConstraints
	account     AccountSnapshot
	positions   map[int64]*Position
	nextTicket  int64

	// Failure switches for error-path tests.
	FailOrders   bool
	FailModifies bool
	FailCloses   bool
	OrderErrMsg  string
}

// NewMockBroker creates a mock broker with a default account and no symbols.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		bars:        make(map[string][]Bar),
		constraints: make(map[string]*SymbolConstraints),
		positions:   make(map[int64]*Position),
		account:     AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 10000, Currency: "USD"},
		nextTicket:  1000,
	}
}

var _ Broker = (*MockBroker)(nil)

func barKey(symbol, timeframe string) string { return symbol + "/" + timeframe }

// SetBars scripts the bar history returned for symbol/timeframe.
func (m *MockBroker) SetBars(symbol, timeframe string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[barKey(symbol, timeframe)] = bars
}

// SetConstraints registers a tradeable symbol.
func (m *MockBroker) SetConstraints(c SymbolConstraints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints[c.Symbol] = &c
}

// SetBalance overrides the account balance and equity.
func (m *MockBroker) SetBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account.Balance = balance
	m.account.Equity = balance
	m.account.FreeMargin = balance
}

// AddPosition seeds an open position and returns its ticket.
func (m *MockBroker) AddPosition(p Position) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Ticket == 0 {
		m.nextTicket++
		p.Ticket = m.nextTicket
	}
	m.positions[p.Ticket] = &p
	return p.Ticket
}

// SetCurrentPrice updates the mark price and profit of all open positions for
// symbol, using the symbol's constraints for valuation.
func (m *MockBroker) SetCurrentPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.constraints[symbol]
	for _, p := range m.positions {
		if p.Symbol != symbol {
			continue
		}
		p.CurrentPrice = price
		if c != nil && c.PipSize > 0 {
			pips := (price - p.OpenPrice) / c.PipSize * p.Side.Sign()
			p.Profit = pips * c.PipValuePerLot * p.Volume
		} else {
			p.Profit = (price - p.OpenPrice) * p.Side.Sign() * p.Volume
		}
	}
}

func (m *MockBroker) GetBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars := m.bars[barKey(symbol, timeframe)]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (m *MockBroker) GetAccountSnapshot(ctx context.Context) (*AccountSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.account
	return &snap, nil
}

func (m *MockBroker) GetSymbolConstraints(ctx context.Context, symbol string) (*SymbolConstraints, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.constraints[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	out := *c
	return &out, nil
}

func (m *MockBroker) SendOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOrders {
		msg := m.OrderErrMsg
		if msg == "" {
			msg = "order rejected"
		}
		return &OrderResult{Success: false, ErrorCode: 10006, ErrorMsg: msg}, nil
	}
	if _, ok := m.constraints[req.Symbol]; !ok {
		return &OrderResult{Success: false, ErrorCode: 10014, ErrorMsg: "unknown symbol " + req.Symbol}, nil
	}
	m.nextTicket++
	ticket := m.nextTicket
	m.positions[ticket] = &Position{
		Ticket:       ticket,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       req.Volume,
		OpenPrice:    req.Price,
		CurrentPrice: req.Price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OpenTime:     time.Now(),
	}
	return &OrderResult{Success: true, Ticket: ticket, FillPrice: req.Price}, nil
}

func (m *MockBroker) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (*ModifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailModifies {
		return &ModifyResult{Success: false, ErrorMsg: "modification rejected"}, nil
	}
	p, ok := m.positions[ticket]
	if !ok {
		return &ModifyResult{Success: false, ErrorMsg: fmt.Sprintf("ticket %d not found", ticket)}, nil
	}
	if stopLoss > 0 {
		p.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		p.TakeProfit = takeProfit
	}
	return &ModifyResult{Success: true}, nil
}

func (m *MockBroker) ClosePosition(ctx context.Context, ticket int64, volume float64) (*CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCloses {
		return &CloseResult{Success: false, ErrorMsg: "close rejected"}, nil
	}
	p, ok := m.positions[ticket]
	if !ok {
		return &CloseResult{Success: false, ErrorMsg: fmt.Sprintf("ticket %d not found", ticket)}, nil
	}
	if volume <= 0 || volume >= p.Volume {
		delete(m.positions, ticket)
	} else {
		p.Volume -= volume
	}
	return &CloseResult{Success: true, FillPrice: p.CurrentPrice}, nil
}

func (m *MockBroker) ListOpenPositions(ctx context.Context, symbol string) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}
