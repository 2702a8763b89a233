package strategy

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
)

func dailyBar(month time.Month, day int, close float64) domain.Bar {
	return domain.Bar{
		Symbol:    "SPY",
		Timestamp: time.Date(2023, month, day, 16, 0, 0, 0, time.UTC),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1_000_000,
	}
}

// decemberSeries holds daily bars for Dec 18-22 and Dec 26-29 2023, all at close.
func decemberSeries(t *testing.T, close float64) *series.Series {
	t.Helper()
	var bars []domain.Bar
	for _, d := range []int{18, 19, 20, 21, 22, 26, 27, 28, 29} {
		bars = append(bars, dailyBar(time.December, d, close))
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

func newLadder(t *testing.T, mutate func(*LadderParams)) *Ladder {
	t.Helper()
	p := DefaultLadderParams(2023, "SPY")
	if mutate != nil {
		mutate(&p)
	}
	l, err := NewLadder(p, nil)
	if err != nil {
		t.Fatalf("NewLadder: %v", err)
	}
	return l
}

func TestLadderName(t *testing.T) {
	l := newLadder(t, nil)
	if l.Name() != "xmas-ladder" {
		t.Errorf("Name() = %q, want %q", l.Name(), "xmas-ladder")
	}
	if l.Symbol() != "SPY" {
		t.Errorf("Symbol() = %q, want %q", l.Symbol(), "SPY")
	}
}

func TestGenerateBuysBeforeSells(t *testing.T) {
	l := newLadder(t, nil)
	orders, err := l.Generate(context.Background(), decemberSeries(t, 100), 10000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var buys, sells int
	anchor := time.Date(2023, time.December, 25, 0, 0, 0, 0, time.UTC)
	for i, o := range orders {
		if i > 0 && o.Time.Before(orders[i-1].Time) {
			t.Errorf("order %d at %s is before order %d", i, o.Time, i-1)
		}
		switch o.Side {
		case domain.OrderSideBuy:
			buys++
			if !o.Time.Before(anchor) {
				t.Errorf("buy at %s is not before Dec 25", o.Time)
			}
			if o.Qty != 20 || o.Value != -2000 {
				t.Errorf("buy = %d @ %v value %v, want 20 shares for -2000", o.Qty, o.Price, o.Value)
			}
		case domain.OrderSideSell:
			sells++
			if !o.Time.After(anchor) {
				t.Errorf("sell at %s is not after Dec 25", o.Time)
			}
			if o.Value <= 0 {
				t.Errorf("sell value %v should be positive", o.Value)
			}
		}
	}
	if buys != 5 {
		t.Errorf("buys = %d, want 5", buys)
	}
	// Only four post-anchor dates exist, each selling 1/remaining-days of the position.
	if sells != 4 {
		t.Errorf("sells = %d, want 4", sells)
	}
}

func TestGenerateLiquidatesWithinSellDays(t *testing.T) {
	l := newLadder(t, func(p *LadderParams) { p.SellDays = 3 })
	orders, err := l.Generate(context.Background(), decemberSeries(t, 100), 10000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var position int64
	var sellQtys []int64
	for _, o := range orders {
		if o.Side == domain.OrderSideBuy {
			position += o.Qty
		} else {
			position -= o.Qty
			sellQtys = append(sellQtys, o.Qty)
		}
		if position < 0 {
			t.Fatalf("position went negative at %s", o.Time)
		}
	}
	if position != 0 {
		t.Errorf("ending position = %d, want 0", position)
	}
	want := []int64{33, 33, 34}
	if len(sellQtys) != len(want) {
		t.Fatalf("sell quantities = %v, want %v", sellQtys, want)
	}
	for i := range want {
		if sellQtys[i] != want[i] {
			t.Errorf("sell %d qty = %d, want %d", i, sellQtys[i], want[i])
		}
	}
}

func TestGenerateSellsAtExecutionTime(t *testing.T) {
	at := func(day, hour, minute int) time.Time {
		return time.Date(2023, time.December, day, hour, minute, 0, 0, time.UTC)
	}
	s, err := series.New([]domain.Bar{
		{Symbol: "SPY", Timestamp: at(22, 9, 30), Open: 50, High: 51, Low: 49, Close: 50, Volume: 100},
		{Symbol: "SPY", Timestamp: at(22, 16, 0), Open: 50, High: 51, Low: 49, Close: 50, Volume: 100},
		{Symbol: "SPY", Timestamp: at(26, 9, 30), Open: 51, High: 52, Low: 50, Close: 51, Volume: 100},
		{Symbol: "SPY", Timestamp: at(26, 10, 30), Open: 52, High: 53, Low: 51, Close: 52, Volume: 100},
		{Symbol: "SPY", Timestamp: at(26, 16, 0), Open: 53, High: 54, Low: 52, Close: 53, Volume: 100},
	})
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}

	l := newLadder(t, func(p *LadderParams) { p.SellDays = 1 })
	orders, err := l.Generate(context.Background(), s, 1000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("Generate returned %d orders, want 2", len(orders))
	}

	buy, sell := orders[0], orders[1]
	if !buy.Time.Equal(at(22, 16, 0)) || buy.Price != 50 || buy.Qty != 20 {
		t.Errorf("buy = %+v, want 20 @ 50 at the Dec 22 close", buy)
	}
	if !sell.Time.Equal(at(26, 10, 30)) || sell.Price != 52 || sell.Qty != 20 {
		t.Errorf("sell = %+v, want 20 @ 52 at 10:30", sell)
	}
}

func TestGenerateNoPostAnchorDates(t *testing.T) {
	var bars []domain.Bar
	for d := 13; d <= 17; d++ {
		bars = append(bars, dailyBar(time.November, d, 100))
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}

	orders, err := newLadder(t, nil).Generate(context.Background(), s, 10000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if orders == nil || len(orders) != 0 {
		t.Errorf("Generate = %v, want empty non-nil slice", orders)
	}
}

func TestGenerateZeroCash(t *testing.T) {
	orders, err := newLadder(t, nil).Generate(context.Background(), decemberSeries(t, 100), 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("Generate with zero cash returned %d orders, want 0", len(orders))
	}
}

func TestGeneratePriceAboveAllocation(t *testing.T) {
	// 1000 cash over 5 days is 200 a day, less than one share at 500.
	orders, err := newLadder(t, nil).Generate(context.Background(), decemberSeries(t, 500), 1000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("Generate returned %d orders, want 0", len(orders))
	}
}

func TestGenerateAbsentYear(t *testing.T) {
	l := newLadder(t, func(p *LadderParams) { p.Year = 2022 })
	_, err := l.Generate(context.Background(), decemberSeries(t, 100), 10000)
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("Generate error = %v, want ErrNoData", err)
	}

	if _, err := l.Generate(context.Background(), nil, 10000); !errors.Is(err, domain.ErrInput) {
		t.Errorf("Generate(nil) error = %v, want ErrInput", err)
	}
}

func TestLadderParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LadderParams)
	}{
		{"zero year", func(p *LadderParams) { p.Year = 0 }},
		{"empty symbol", func(p *LadderParams) { p.Symbol = "" }},
		{"zero buy days", func(p *LadderParams) { p.BuyDays = 0 }},
		{"negative sell days", func(p *LadderParams) { p.SellDays = -1 }},
		{"bad sell time", func(p *LadderParams) { p.SellExecutionTime = "10.30" }},
	}
	for _, tt := range tests {
		p := DefaultLadderParams(2023, "SPY")
		tt.mutate(&p)
		if _, err := NewLadder(p, nil); !errors.Is(err, domain.ErrInput) {
			t.Errorf("%s: error = %v, want ErrInput", tt.name, err)
		}
	}
}

func TestSellQuantity(t *testing.T) {
	tests := []struct {
		position int64
		i, days  int
		want     int64
	}{
		{100, 1, 10, 10},
		{90, 2, 10, 10},
		{7, 1, 3, 2},
		{5, 3, 3, 5},
		{5, 4, 3, 5},
		{3, 1, 10, 0},
	}
	for _, tt := range tests {
		if got := SellQuantity(tt.position, tt.i, tt.days); got != tt.want {
			t.Errorf("SellQuantity(%d, %d, %d) = %d, want %d", tt.position, tt.i, tt.days, got, tt.want)
		}
	}
}

// buyOnce buys one share at the first bar; a stand-in for a second strategy.
type buyOnce struct{ symbol string }

func (b *buyOnce) Name() string   { return "buy-once" }
func (b *buyOnce) Symbol() string { return b.symbol }
func (b *buyOnce) Generate(_ context.Context, s *series.Series, _ float64) ([]domain.Order, error) {
	bar := s.Bars()[0]
	return []domain.Order{domain.NewOrder(b.symbol, bar.Timestamp, domain.OrderSideBuy, 1, bar.Close)}, nil
}

func TestRegistryList(t *testing.T) {
	r := DefaultRegistry()
	r.Register("buy-once", func(p LadderParams, _ *slog.Logger) (Strategy, error) {
		return &buyOnce{symbol: p.Symbol}, nil
	})

	names := r.List()
	// List returns sorted names.
	if len(names) != 2 || names[0] != "buy-once" || names[1] != LadderName {
		t.Errorf("List returned %v, want [buy-once %s]", names, LadderName)
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryNew(t *testing.T) {
	r := DefaultRegistry()

	s, err := r.New(LadderName, DefaultLadderParams(2023, "QQQ"), nil)
	if err != nil {
		t.Fatalf("New(%q): %v", LadderName, err)
	}
	if s.Name() != LadderName || s.Symbol() != "QQQ" {
		t.Errorf("New returned %s/%s, want %s/QQQ", s.Name(), s.Symbol(), LadderName)
	}

	if _, err := r.New("nonexistent", DefaultLadderParams(2023, "QQQ"), nil); !errors.Is(err, domain.ErrInput) {
		t.Errorf("New(nonexistent) = %v, want ErrInput", err)
	}

	bad := DefaultLadderParams(2023, "QQQ")
	bad.BuyDays = 0
	if s, err := r.New(LadderName, bad, nil); !errors.Is(err, domain.ErrInput) || s != nil {
		t.Errorf("New with zero buy days = %v, %v; want nil, ErrInput", s, err)
	}
}
