package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
	"xmasladder/internal/util"
)

// Compile-time interface check.
var _ Strategy = (*Ladder)(nil)

// LadderParams configures one Christmas ladder run.
type LadderParams struct {
	Year              int
	Symbol            string
	BuyDays           int    // trading days before Dec 25 to accumulate
	SellDays          int    // trading days after Dec 25 to distribute
	SellExecutionTime string // "HH:MM" exchange time for sells
}

// DefaultLadderParams returns the standard 5-in, 10-out schedule selling at 10:30.
func DefaultLadderParams(year int, symbol string) LadderParams {
	return LadderParams{
		Year:              year,
		Symbol:            symbol,
		BuyDays:           5,
		SellDays:          10,
		SellExecutionTime: "10:30",
	}
}

// Validate reports malformed parameters as domain.ErrInput.
func (p LadderParams) Validate() error {
	if p.Year <= 0 {
		return fmt.Errorf("%w: year %d", domain.ErrInput, p.Year)
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrInput)
	}
	if p.BuyDays < 1 {
		return fmt.Errorf("%w: buy_days %d must be at least 1", domain.ErrInput, p.BuyDays)
	}
	if p.SellDays < 1 {
		return fmt.Errorf("%w: sell_days %d must be at least 1", domain.ErrInput, p.SellDays)
	}
	if _, _, err := series.ParseClock(p.SellExecutionTime); err != nil {
		return fmt.Errorf("sell_execution_time: %w", err)
	}
	return nil
}

// Anchor returns December 25 of the strategy year in loc.
func (p LadderParams) Anchor(loc *time.Location) time.Time {
	return time.Date(p.Year, time.December, 25, 0, 0, 0, 0, loc)
}

// Ladder accumulates equal notional over the last BuyDays trading days
// before Christmas at each day's close, then distributes the position over
// the first SellDays trading days after it.
type Ladder struct {
	params LadderParams
	log    *slog.Logger
}

// LadderName is the Registry name of the Christmas ladder.
const LadderName = "xmas-ladder"

// NewLadder validates p and returns a ready Ladder.
func NewLadder(p LadderParams, log *slog.Logger) (*Ladder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Ladder{
		params: p,
		log:    util.OrDefault(log).With("strategy", LadderName),
	}, nil
}

// Name returns LadderName.
func (l *Ladder) Name() string { return LadderName }

// Symbol returns the traded symbol.
func (l *Ladder) Symbol() string { return l.params.Symbol }

// Params returns the ladder's configuration.
func (l *Ladder) Params() LadderParams { return l.params }

// book is the running cash and share count threaded through the schedule.
type book struct {
	cash     float64
	position int64
}

// Generate builds the buy and sell legs of the ladder. Missing data around
// the anchor shortens the schedule rather than failing; an absent year is
// reported as domain.ErrNoData.
func (l *Ladder) Generate(_ context.Context, s *series.Series, cash float64) ([]domain.Order, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil series", domain.ErrInput)
	}

	loc := time.UTC
	if dates := s.Dates(); len(dates) > 0 {
		loc = dates[0].Location()
	}
	anchor := l.params.Anchor(loc)

	buyDates, sellDates, err := util.TradingDaysAround(s, anchor, l.params.BuyDays, l.params.SellDays)
	if err != nil {
		return nil, fmt.Errorf("resolving ladder dates: %w", err)
	}

	orders := []domain.Order{}
	if len(sellDates) == 0 {
		// Nothing after the anchor to liquidate into, so the ladder is never opened.
		l.log.Info("no trading days after anchor", "year", l.params.Year, "buyDates", len(buyDates))
		return orders, nil
	}

	b := book{cash: cash}
	alloc := cash / float64(max(len(buyDates), 1))
	for _, d := range buyDates {
		var (
			o  domain.Order
			ok bool
		)
		b, o, ok, err = l.buyLeg(s, b, d, alloc)
		if err != nil {
			return nil, err
		}
		if ok {
			orders = append(orders, o)
		}
	}

	for i, d := range sellDates {
		if b.position <= 0 {
			break
		}
		var (
			o  domain.Order
			ok bool
		)
		b, o, ok, err = l.sellLeg(s, b, i+1, d)
		if err != nil {
			return nil, err
		}
		if ok {
			orders = append(orders, o)
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Time.Before(orders[j].Time)
	})

	l.log.Debug("generated ladder",
		"year", l.params.Year,
		"buyDates", len(buyDates),
		"sellDates", len(sellDates),
		"orders", len(orders),
		"openPosition", b.position,
	)
	return orders, nil
}

// buyLeg buys floor(alloc/close) shares at the last bar of day d.
func (l *Ladder) buyLeg(s *series.Series, b book, d time.Time, alloc float64) (book, domain.Order, bool, error) {
	last, err := s.LastBar(d)
	if err != nil {
		return b, domain.Order{}, false, fmt.Errorf("pricing buy on %s: %w", d.Format("2006-01-02"), err)
	}
	if last.Close <= 0 {
		return b, domain.Order{}, false, nil
	}
	qty := int64(math.Floor(alloc / last.Close))
	if qty <= 0 {
		return b, domain.Order{}, false, nil
	}

	o := domain.NewOrder(l.params.Symbol, last.Timestamp, domain.OrderSideBuy, qty, last.Close)
	b.cash += o.Value
	b.position += qty
	return b, o, true, nil
}

// sellLeg sells the i-th (1-based) slice of the position at the configured
// execution time on day d.
func (l *Ladder) sellLeg(s *series.Series, b book, i int, d time.Time) (book, domain.Order, bool, error) {
	qty := SellQuantity(b.position, i, l.params.SellDays)
	if qty <= 0 {
		return b, domain.Order{}, false, nil
	}

	ts, err := s.Locate(d, l.params.SellExecutionTime)
	if err != nil {
		return b, domain.Order{}, false, fmt.Errorf("locating sell bar on %s: %w", d.Format("2006-01-02"), err)
	}
	bar, ok := s.BarAt(ts)
	if !ok {
		return b, domain.Order{}, false, fmt.Errorf("%w: no bar at %s", domain.ErrNoData, ts.Format(time.RFC3339))
	}

	o := domain.NewOrder(l.params.Symbol, ts, domain.OrderSideSell, qty, bar.Close)
	b.cash += o.Value
	b.position -= qty
	return b, o, true, nil
}

// SellQuantity is the share count sold on the i-th (1-based) of sellDays
// distribution days: an equal share of what remains, and everything on the
// final day.
func SellQuantity(position int64, i, sellDays int) int64 {
	if i >= sellDays {
		return position
	}
	return position / int64(sellDays-i+1)
}
