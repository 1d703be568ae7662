package strategy

import (
	"math"
	"testing"

	"forex-trading-engine/internal/broker"
)

func barsFromCloses(closes ...float64) []broker.Bar {
	bars := make([]broker.Bar, len(closes))
	for i, c := range closes {
		bars[i] = broker.Bar{Symbol: "EURUSD", Close: c, High: c, Low: c, Open: c}
	}
	return bars
}

func TestSMA(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5)
	tests := []struct {
		period int
		want   float64
	}{
		{1, 5},
		{3, 4},
		{5, 3},
		{6, 0}, // not enough bars
		{0, 0},
	}
	for _, tt := range tests {
		if got := SMA(bars, tt.period); got != tt.want {
			t.Errorf("SMA(period=%d) = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestCrossoverDirections(t *testing.T) {
	cfg := CrossoverConfig{
		Symbol: "EURUSD", FastPeriod: 2, SlowPeriod: 4,
		StopLossPips: 30, TakeProfitPips: 60,
	}
	s := NewCrossoverStrategy(cfg)

	tests := []struct {
		name   string
		closes []float64
		want   Direction
	}{
		{"ascending is buy", []float64{1.00, 1.01, 1.02, 1.03}, Buy},
		{"descending is sell", []float64{1.03, 1.02, 1.01, 1.00}, Sell},
		{"flat is hold", []float64{1.00, 1.00, 1.00, 1.00}, Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := s.Evaluate(barsFromCloses(tt.closes...))
			if err != nil {
				t.Fatal(err)
			}
			if sig.Direction != tt.want {
				t.Fatalf("direction = %v, want %v", sig.Direction, tt.want)
			}
			if tt.want == Hold {
				return
			}
			price := tt.closes[len(tt.closes)-1]
			if sig.Price != price {
				t.Errorf("price = %v, want %v", sig.Price, price)
			}
			slDist := math.Abs(sig.Price - sig.StopLoss)
			tpDist := math.Abs(sig.TakeProfit - sig.Price)
			if math.Abs(slDist-30*0.0001) > 1e-9 {
				t.Errorf("stop distance = %v", slDist)
			}
			if math.Abs(tpDist-60*0.0001) > 1e-9 {
				t.Errorf("take profit distance = %v", tpDist)
			}
			if sig.Confidence < 0.5 || sig.Confidence > 1 {
				t.Errorf("confidence out of range: %v", sig.Confidence)
			}
		})
	}
}

func TestCrossoverProtectiveLevelSides(t *testing.T) {
	s := NewCrossoverStrategy(CrossoverConfig{
		Symbol: "EURUSD", FastPeriod: 2, SlowPeriod: 4,
		StopLossPips: 30, TakeProfitPips: 60,
	})

	buy, _ := s.Evaluate(barsFromCloses(1.00, 1.01, 1.02, 1.03))
	if buy.StopLoss >= buy.Price || buy.TakeProfit <= buy.Price {
		t.Errorf("buy levels inverted: sl=%v price=%v tp=%v", buy.StopLoss, buy.Price, buy.TakeProfit)
	}

	sell, _ := s.Evaluate(barsFromCloses(1.03, 1.02, 1.01, 1.00))
	if sell.StopLoss <= sell.Price || sell.TakeProfit >= sell.Price {
		t.Errorf("sell levels inverted: sl=%v price=%v tp=%v", sell.StopLoss, sell.Price, sell.TakeProfit)
	}
}

func TestCrossoverShortHistoryHolds(t *testing.T) {
	s := NewCrossoverStrategy(CrossoverConfig{Symbol: "EURUSD", FastPeriod: 2, SlowPeriod: 10})
	sig, err := s.Evaluate(barsFromCloses(1.0, 1.1))
	if err != nil {
		t.Fatal(err)
	}
	if sig.Direction != Hold {
		t.Errorf("expected HOLD on short history, got %v", sig.Direction)
	}
}

func TestCrossoverDeterministic(t *testing.T) {
	s := NewCrossoverStrategy(CrossoverConfig{
		Symbol: "USDJPY", FastPeriod: 3, SlowPeriod: 5,
		StopLossPips: 20, TakeProfitPips: 40,
	})
	bars := barsFromCloses(150.1, 150.3, 150.2, 150.5, 150.8, 151.0)

	a, _ := s.Evaluate(bars)
	b, _ := s.Evaluate(bars)
	if a.Direction != b.Direction || a.Price != b.Price || a.StopLoss != b.StopLoss || a.TakeProfit != b.TakeProfit {
		t.Errorf("evaluation not deterministic: %+v vs %+v", a, b)
	}
}

func TestDirectionActionable(t *testing.T) {
	tests := []struct {
		dir  Direction
		want bool
	}{
		{Buy, true},
		{Sell, true},
		{Hold, false},
		{CloseBuy, false},
		{CloseSell, false},
	}
	for _, tt := range tests {
		if got := tt.dir.Actionable(); got != tt.want {
			t.Errorf("%v.Actionable() = %v, want %v", tt.dir, got, tt.want)
		}
	}
}
