package broker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
)

func ts(day, hour, minute int) time.Time {
	return time.Date(2023, 12, day, hour, minute, 0, 0, time.UTC)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// testSeries has three intraday bars on Dec 26 and a zero-volume day on Dec 27.
func testSeries(t *testing.T) *series.Series {
	t.Helper()
	s, err := series.New([]domain.Bar{
		{Symbol: "SPY", Timestamp: ts(26, 9, 30), Open: 100, High: 100.5, Low: 99, Close: 100, Volume: 100000},
		{Symbol: "SPY", Timestamp: ts(26, 10, 30), Open: 100, High: 102, Low: 98, Close: 101, Volume: 50000},
		{Symbol: "SPY", Timestamp: ts(26, 15, 59), Open: 101, High: 103, Low: 100, Close: 102, Volume: 80000},
		{Symbol: "SPY", Timestamp: ts(27, 9, 30), Open: 102, High: 103, Low: 101, Close: 102, Volume: 0},
		{Symbol: "SPY", Timestamp: ts(27, 15, 59), Open: 102, High: 103, Low: 101, Close: 102, Volume: 0},
	})
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

func newSim(t *testing.T, mutate func(*SimulatorConfig)) *SimulatorBroker {
	t.Helper()
	cfg := DefaultSimulatorConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := NewSimulatorBroker(cfg, nil)
	if err != nil {
		t.Fatalf("NewSimulatorBroker: %v", err)
	}
	return b
}

func TestSimulatorBrokerName(t *testing.T) {
	b := newSim(t, nil)
	if got := b.Name(); got != "simulator" {
		t.Errorf("SimulatorBroker.Name() = %q, want %q", got, "simulator")
	}
}

func TestExecuteRepricesAtOpen(t *testing.T) {
	b := newSim(t, nil)
	s := testSeries(t)

	buy := domain.NewOrder("SPY", ts(26, 15, 59), domain.OrderSideBuy, 10, 100)
	fills := b.Execute(context.Background(), []domain.Order{buy}, s)
	if len(fills) != 1 {
		t.Fatalf("Execute returned %d fills, want 1", len(fills))
	}

	f := fills[0]
	if !f.Time.Equal(ts(26, 9, 30)) {
		t.Errorf("fill time = %s, want the 09:30 bar", f.Time.Format("15:04"))
	}
	if !f.OriginalTime.Equal(buy.Time) {
		t.Errorf("OriginalTime = %s, want %s", f.OriginalTime, buy.Time)
	}
	if !approx(f.Price, 100.01) {
		t.Errorf("fill price = %v, want 100.01", f.Price)
	}
	if !approx(f.Value, -10*100.01) {
		t.Errorf("fill value = %v, want %v", f.Value, -10*100.01)
	}
	if !approx(f.SlippageBps, 1) {
		t.Errorf("SlippageBps = %v, want 1", f.SlippageBps)
	}
}

func TestExecuteSlippageBounded(t *testing.T) {
	b := newSim(t, func(c *SimulatorConfig) { c.SlippageBps = 500 })
	s := testSeries(t)

	orders := []domain.Order{
		domain.NewOrder("SPY", ts(26, 10, 30), domain.OrderSideBuy, 10, 100),
		domain.NewOrder("SPY", ts(26, 10, 30), domain.OrderSideSell, 10, 100),
	}
	fills := b.Execute(context.Background(), orders, s)
	if len(fills) != 2 {
		t.Fatalf("Execute returned %d fills, want 2", len(fills))
	}
	for _, f := range fills {
		switch f.Side {
		case domain.OrderSideBuy:
			if f.Price != 100.5 {
				t.Errorf("buy price = %v, want capped at High 100.5", f.Price)
			}
			if f.Price < 100 {
				t.Errorf("buy price %v below intended", f.Price)
			}
		case domain.OrderSideSell:
			if f.Price != 99 {
				t.Errorf("sell price = %v, want floored at Low 99", f.Price)
			}
			if f.Value != 990 {
				t.Errorf("sell value = %v, want 990", f.Value)
			}
		}
	}
}

func TestExecuteDropsUntimelyOrders(t *testing.T) {
	b := newSim(t, nil)
	s := testSeries(t)

	orders := []domain.Order{
		domain.NewOrder("SPY", ts(28, 10, 30), domain.OrderSideSell, 1, 100), // no data that day
		domain.NewOrder("SPY", ts(26, 8, 0), domain.OrderSideSell, 1, 100),   // before open
		domain.NewOrder("SPY", ts(26, 0, 0), domain.OrderSideBuy, 1, 100),    // midnight daily stamp
		{Symbol: "SPY", Time: ts(26, 10, 30), Side: "HOLD", Qty: 1, Price: 100},
	}
	fills := b.Execute(context.Background(), orders, s)
	if fills == nil {
		t.Fatal("Execute returned nil, want empty slice")
	}
	if len(fills) != 0 {
		t.Errorf("Execute returned %d fills, want 0", len(fills))
	}
}

func TestExecuteLiquidity(t *testing.T) {
	s := testSeries(t)
	big := domain.NewOrder("SPY", ts(26, 10, 30), domain.OrderSideBuy, 1001, 100) // > 1% of 100000
	ok := domain.NewOrder("SPY", ts(26, 10, 30), domain.OrderSideBuy, 1000, 100)  // exactly 1%
	thin := domain.NewOrder("SPY", ts(27, 10, 0), domain.OrderSideBuy, 1, 102)    // zero volume

	fills := newSim(t, nil).Execute(context.Background(), []domain.Order{big, ok, thin}, s)
	if len(fills) != 1 || fills[0].Qty != 1000 {
		t.Fatalf("liquidity-checked fills = %+v, want only the 1000 share order", fills)
	}

	fills = newSim(t, func(c *SimulatorConfig) { c.LiquidityCheck = false }).
		Execute(context.Background(), []domain.Order{big, ok, thin}, s)
	if len(fills) != 3 {
		t.Errorf("unchecked fills = %d, want 3", len(fills))
	}
}

func TestExecuteSortsByFillTime(t *testing.T) {
	b := newSim(t, func(c *SimulatorConfig) { c.PreserveTimestamp = true })
	s := testSeries(t)

	orders := []domain.Order{
		domain.NewOrder("SPY", ts(26, 15, 59), domain.OrderSideSell, 1, 102),
		domain.NewOrder("SPY", ts(26, 10, 30), domain.OrderSideBuy, 1, 101),
	}
	fills := b.Execute(context.Background(), orders, s)
	if len(fills) != 2 {
		t.Fatalf("Execute returned %d fills, want 2", len(fills))
	}
	if !fills[0].Time.Equal(ts(26, 10, 30)) || !fills[1].Time.Equal(ts(26, 15, 59)) {
		t.Errorf("fills not sorted by preserved time: %s, %s", fills[0].Time, fills[1].Time)
	}
}

func TestPreserveTimestampFallsBackToLocate(t *testing.T) {
	b := newSim(t, func(c *SimulatorConfig) { c.PreserveTimestamp = true })
	s := testSeries(t)

	// 10:00 has no bar; the next bar at or after it is 10:30.
	orders := []domain.Order{
		domain.NewOrder("SPY", ts(26, 9, 30), domain.OrderSideBuy, 1, 100),
		domain.NewOrder("SPY", ts(26, 10, 0), domain.OrderSideSell, 1, 101),
	}
	fills := b.Execute(context.Background(), orders, s)
	if len(fills) != 2 {
		t.Fatalf("Execute returned %d fills, want 2", len(fills))
	}
	if !fills[1].Time.Equal(ts(26, 10, 30)) {
		t.Errorf("sell fill time = %s, want 10:30", fills[1].Time.Format("15:04"))
	}
}

func TestExecuteCapsSellsToPosition(t *testing.T) {
	b := newSim(t, nil)
	s := testSeries(t)

	orders := []domain.Order{
		domain.NewOrder("SPY", ts(26, 10, 30), domain.OrderSideSell, 5, 101),  // nothing held yet
		domain.NewOrder("SPY", ts(26, 9, 30), domain.OrderSideBuy, 10, 100),
		domain.NewOrder("SPY", ts(26, 11, 0), domain.OrderSideBuy, 2000, 100), // fails liquidity
		domain.NewOrder("SPY", ts(26, 15, 59), domain.OrderSideSell, 25, 102),
	}
	fills := b.Execute(context.Background(), orders, s)
	if len(fills) != 3 {
		t.Fatalf("Execute returned %d fills, want 3: %+v", len(fills), fills)
	}

	var pos int64
	for _, f := range fills {
		if f.Side == domain.OrderSideBuy {
			pos += f.Qty
		} else {
			pos -= f.Qty
		}
		if pos < 0 {
			t.Fatalf("position went negative at %s", f.Time)
		}
	}
	if pos != 0 {
		t.Errorf("final position = %d, want 0", pos)
	}
	if fills[1].Side != domain.OrderSideSell || fills[1].Qty != 5 {
		t.Errorf("first sell = %s %d, want SELL 5 after the buy", fills[1].Side, fills[1].Qty)
	}
	last := fills[2]
	if last.Qty != 5 || !approx(last.Value, 5*last.Price) {
		t.Errorf("last sell = %d shares worth %v, want the 5 left at %v", last.Qty, last.Value, last.Price)
	}
}

// A BUY priced at the prior close and repriced to a 09:30 bar whose High is
// below that close fills at the High, cheaper than intended.
func TestExecuteRepricedBuyCappedBelowIntended(t *testing.T) {
	b := newSim(t, nil)
	s := testSeries(t)

	buy := domain.NewOrder("SPY", ts(26, 15, 59), domain.OrderSideBuy, 10, 102) // day's last close
	fills := b.Execute(context.Background(), []domain.Order{buy}, s)
	if len(fills) != 1 {
		t.Fatalf("Execute returned %d fills, want 1", len(fills))
	}
	f := fills[0]
	if !f.Time.Equal(ts(26, 9, 30)) {
		t.Errorf("fill time = %s, want the 09:30 bar", f.Time.Format("15:04"))
	}
	if f.Price != 100.5 {
		t.Errorf("fill price = %v, want the 09:30 High 100.5", f.Price)
	}
	if f.SlippageBps >= 0 {
		t.Errorf("SlippageBps = %v, want negative", f.SlippageBps)
	}
}

func TestSimulatorConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SimulatorConfig)
	}{
		{"negative slippage", func(c *SimulatorConfig) { c.SlippageBps = -1 }},
		{"zero volume cap", func(c *SimulatorConfig) { c.MaxVolumePct = 0 }},
		{"bad reprice time", func(c *SimulatorConfig) { c.RepriceTime = "9:30" }},
		{"inverted session", func(c *SimulatorConfig) { c.SessionOpen, c.SessionClose = "16:00", "09:30" }},
	}
	for _, tt := range tests {
		cfg := DefaultSimulatorConfig()
		tt.mutate(&cfg)
		if _, err := NewSimulatorBroker(cfg, nil); !errors.Is(err, domain.ErrInput) {
			t.Errorf("%s: error = %v, want ErrInput", tt.name, err)
		}
	}
}

func TestSlippageBps(t *testing.T) {
	if got := SlippageBps(0, 10); got != 0 {
		t.Errorf("SlippageBps(0, 10) = %v, want 0", got)
	}
	if got := SlippageBps(100, 99); !approx(got, -100) {
		t.Errorf("SlippageBps(100, 99) = %v, want -100", got)
	}
}
