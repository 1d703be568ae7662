package broker

import (
	"context"
	"math"
	"testing"
)

func TestPipSizeFromSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   float64
	}{
		{"EURUSD", 0.0001},
		{"GBPUSD", 0.0001},
		{"USDJPY", 0.01},
		{"eurjpy", 0.01},
		{"XAUUSD", 0.1},
		{"GOLD", 0.1},
		{"BTCUSD", 0.0001},
	}
	for _, tt := range tests {
		if got := PipSizeFromSymbol(tt.symbol); got != tt.want {
			t.Errorf("PipSizeFromSymbol(%q) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestSideSignAndOpposite(t *testing.T) {
	if SideBuy.Sign() != 1 || SideSell.Sign() != -1 {
		t.Errorf("Sign: buy=%v sell=%v", SideBuy.Sign(), SideSell.Sign())
	}
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Errorf("Opposite: buy=%v sell=%v", SideBuy.Opposite(), SideSell.Opposite())
	}
}

func eurusd() SymbolConstraints {
	return SymbolConstraints{
		Symbol:         "EURUSD",
		MinVolume:      0.01,
		MaxVolume:      100,
		VolumeStep:     0.01,
		PipSize:        0.0001,
		ContractSize:   100000,
		PipValuePerLot: 10,
	}
}

func TestMockBrokerOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMockBroker()
	m.SetConstraints(eurusd())

	res, err := m.SendOrder(ctx, OrderRequest{
		Symbol: "EURUSD", Side: SideBuy, Volume: 1.0, Price: 1.1000,
		StopLoss: 1.0950, TakeProfit: 1.1100,
	})
	if err != nil || !res.Success {
		t.Fatalf("SendOrder: res=%+v err=%v", res, err)
	}

	positions, err := m.ListOpenPositions(ctx, "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	if positions[0].Ticket != res.Ticket || positions[0].StopLoss != 1.0950 {
		t.Errorf("position = %+v", positions[0])
	}

	// Partial close leaves the remainder open.
	cres, err := m.ClosePosition(ctx, res.Ticket, 0.4)
	if err != nil || !cres.Success {
		t.Fatalf("partial close: res=%+v err=%v", cres, err)
	}
	positions, _ = m.ListOpenPositions(ctx, "")
	if len(positions) != 1 || math.Abs(positions[0].Volume-0.6) > 1e-9 {
		t.Fatalf("after partial close: %+v", positions)
	}

	// Closing the full remaining volume removes the ticket.
	if cres, _ := m.ClosePosition(ctx, res.Ticket, 0.6); !cres.Success {
		t.Fatalf("full close rejected: %+v", cres)
	}
	positions, _ = m.ListOpenPositions(ctx, "")
	if len(positions) != 0 {
		t.Fatalf("expected empty ledger, got %+v", positions)
	}
}

func TestMockBrokerUnknownSymbolOrder(t *testing.T) {
	m := NewMockBroker()
	res, err := m.SendOrder(context.Background(), OrderRequest{Symbol: "NOPE", Side: SideBuy, Volume: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("order on unknown symbol should be rejected")
	}
}

func TestMockBrokerSetCurrentPriceProfit(t *testing.T) {
	m := NewMockBroker()
	m.SetConstraints(eurusd())
	ticket := m.AddPosition(Position{
		Symbol: "EURUSD", Side: SideBuy, Volume: 2.0,
		OpenPrice: 1.1000, CurrentPrice: 1.1000,
	})

	m.SetCurrentPrice("EURUSD", 1.1030) // +30 pips

	positions, _ := m.ListOpenPositions(context.Background(), "EURUSD")
	if len(positions) != 1 {
		t.Fatalf("positions: %+v", positions)
	}
	// 30 pips x 10 per lot x 2 lots
	if math.Abs(positions[0].Profit-600) > 1e-6 {
		t.Errorf("profit = %v, want 600", positions[0].Profit)
	}
	_ = ticket
}

func TestMockBrokerModifyZeroLeavesLevel(t *testing.T) {
	ctx := context.Background()
	m := NewMockBroker()
	m.SetConstraints(eurusd())
	ticket := m.AddPosition(Position{
		Symbol: "EURUSD", Side: SideSell, Volume: 1,
		OpenPrice: 1.1000, StopLoss: 1.1050, TakeProfit: 1.0900,
	})

	if res, _ := m.ModifyPosition(ctx, ticket, 1.1030, 0); !res.Success {
		t.Fatalf("modify rejected: %+v", res)
	}
	positions, _ := m.ListOpenPositions(ctx, "")
	if positions[0].StopLoss != 1.1030 {
		t.Errorf("stop loss = %v, want 1.1030", positions[0].StopLoss)
	}
	if positions[0].TakeProfit != 1.0900 {
		t.Errorf("take profit moved: %v", positions[0].TakeProfit)
	}
}

func TestMockBrokerGetBarsTail(t *testing.T) {
	m := NewMockBroker()
	bars := make([]Bar, 10)
	for i := range bars {
		bars[i].Close = float64(i)
	}
	m.SetBars("EURUSD", "M15", bars)

	got, err := m.GetBars(context.Background(), "EURUSD", "M15", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Close != 7 || got[2].Close != 9 {
		t.Errorf("GetBars tail = %+v", got)
	}
}
