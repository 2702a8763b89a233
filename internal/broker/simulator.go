package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
	"xmasladder/internal/util"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorConfig controls slippage, liquidity and timing rules.
type SimulatorConfig struct {
	SlippageBps    float64
	LiquidityCheck bool
	MaxVolumePct   float64 // largest allowed qty/bar volume when LiquidityCheck is on

	// RepriceTime is the time of day used to re-resolve each order's
	// execution bar. PreserveTimestamp re-validates against the order's own
	// timestamp instead.
	RepriceTime       string
	PreserveTimestamp bool

	SessionOpen  string
	SessionClose string
}

// DefaultSimulatorConfig returns 1bp slippage, a 1% volume cap and
// re-resolution at the market open.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		SlippageBps:    1.0,
		LiquidityCheck: true,
		MaxVolumePct:   0.01,
		RepriceTime:    series.DefaultSessionOpen,
		SessionOpen:    series.DefaultSessionOpen,
		SessionClose:   series.DefaultSessionClose,
	}
}

// Validate reports malformed settings as domain.ErrInput.
func (c SimulatorConfig) Validate() error {
	if c.SlippageBps < 0 {
		return fmt.Errorf("%w: slippage_bps %v is negative", domain.ErrInput, c.SlippageBps)
	}
	if c.LiquidityCheck && c.MaxVolumePct <= 0 {
		return fmt.Errorf("%w: max_volume_pct %v must be positive", domain.ErrInput, c.MaxVolumePct)
	}
	for name, clock := range map[string]string{
		"reprice_time":  c.RepriceTime,
		"session_open":  c.SessionOpen,
		"session_close": c.SessionClose,
	} {
		if _, _, err := series.ParseClock(clock); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.SessionOpen > c.SessionClose {
		return fmt.Errorf("%w: session_open %s after session_close %s", domain.ErrInput, c.SessionOpen, c.SessionClose)
	}
	return nil
}

// DropReason says why an order produced no fill.
type DropReason string

const (
	DropNone         DropReason = ""
	DropNoData       DropReason = "no_data"
	DropOutsideHours DropReason = "outside_hours"
	DropLiquidity    DropReason = "liquidity"
	DropBadOrder     DropReason = "bad_order"
	DropNoPosition   DropReason = "no_position"
)

// SimulatorBroker fills orders against historical bars with adverse
// slippage bounded by the bar's range, and rejects fills too large for the
// bar's volume.
type SimulatorBroker struct {
	cfg SimulatorConfig
	log *slog.Logger
}

// NewSimulatorBroker validates cfg and returns a SimulatorBroker.
func NewSimulatorBroker(cfg SimulatorConfig, log *slog.Logger) (*SimulatorBroker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SimulatorBroker{
		cfg: cfg,
		log: util.OrDefault(log).With("broker", "simulator"),
	}, nil
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Config returns the simulator's settings.
func (b *SimulatorBroker) Config() SimulatorConfig { return b.cfg }

// Execute fills orders in intended-time order while tracking the position
// filled so far per symbol. A SELL larger than the position is cut to it, and
// a SELL with nothing held is dropped, so skipped buys never leave the fills
// oversold. Dropped orders are only visible as missing rows, and in debug logs.
func (b *SimulatorBroker) Execute(_ context.Context, orders []domain.Order, s *series.Series) []domain.Fill {
	fills := make([]domain.Fill, 0, len(orders))
	if s == nil {
		return fills
	}

	byTime := make([]domain.Order, len(orders))
	copy(byTime, orders)
	sort.SliceStable(byTime, func(i, j int) bool {
		return byTime[i].Time.Before(byTime[j].Time)
	})

	held := make(map[string]int64)
	for _, o := range byTime {
		f, reason := b.fillHeld(o, held[o.Symbol], s)
		if reason != DropNone {
			b.log.Debug("order dropped",
				"time", o.Time,
				"side", o.Side,
				"qty", o.Qty,
				"reason", reason,
			)
			continue
		}
		if f.Side == domain.OrderSideBuy {
			held[o.Symbol] += f.Qty
		} else {
			held[o.Symbol] -= f.Qty
		}
		fills = append(fills, f)
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Time.Before(fills[j].Time)
	})
	return fills
}

// fillHeld caps a SELL at the shares held before filling it.
func (b *SimulatorBroker) fillHeld(o domain.Order, held int64, s *series.Series) (domain.Fill, DropReason) {
	if o.Side == domain.OrderSideSell {
		if held <= 0 {
			return domain.Fill{}, DropNoPosition
		}
		if o.Qty > held {
			b.log.Debug("sell cut to position", "time", o.Time, "qty", o.Qty, "held", held)
			o = domain.NewOrder(o.Symbol, o.Time, o.Side, held, o.Price)
		}
	}
	return b.fill(o, s)
}

func (b *SimulatorBroker) fill(o domain.Order, s *series.Series) (domain.Fill, DropReason) {
	if o.Side != domain.OrderSideBuy && o.Side != domain.OrderSideSell {
		return domain.Fill{}, DropBadOrder
	}
	if !s.HasDate(o.Time) {
		return domain.Fill{}, DropNoData
	}
	if !series.WithinHours(o.Time, b.cfg.SessionOpen, b.cfg.SessionClose) {
		return domain.Fill{}, DropOutsideHours
	}

	bar, ok := b.executionBar(o, s)
	if !ok {
		return domain.Fill{}, DropNoData
	}

	price := ApplySlippage(o.Price, bar, o.Side, b.cfg.SlippageBps)
	if b.cfg.LiquidityCheck && !CheckLiquidity(o.Qty, bar.Volume, b.cfg.MaxVolumePct) {
		return domain.Fill{}, DropLiquidity
	}

	executed := domain.NewOrder(o.Symbol, bar.Timestamp, o.Side, o.Qty, price)
	return domain.Fill{
		Order:        executed,
		OriginalTime: o.Time,
		SlippageBps:  SlippageBps(o.Price, price),
	}, DropNone
}

// executionBar re-resolves the bar an order executes against.
func (b *SimulatorBroker) executionBar(o domain.Order, s *series.Series) (domain.Bar, bool) {
	if b.cfg.PreserveTimestamp {
		if bar, ok := s.BarAt(o.Time); ok {
			return bar, true
		}
	}

	clock := b.cfg.RepriceTime
	if b.cfg.PreserveTimestamp {
		clock = o.Time.Format("15:04")
	}
	ts, err := s.Locate(o.Time, clock)
	if err != nil {
		return domain.Bar{}, false
	}
	return s.BarAt(ts)
}

// ApplySlippage moves the intended price against the trader by slippageBps,
// capped at the bar's High for buys and floored at its Low for sells.
func ApplySlippage(intended float64, bar domain.Bar, side domain.OrderSide, slippageBps float64) float64 {
	mult := slippageBps / 10000.0
	if side == domain.OrderSideBuy {
		return min(intended*(1+mult), bar.High)
	}
	return max(intended*(1-mult), bar.Low)
}

// CheckLiquidity reports whether qty is at most maxVolumePct of volume. A
// bar with no volume never passes.
func CheckLiquidity(qty, volume int64, maxVolumePct float64) bool {
	if volume <= 0 {
		return false
	}
	return float64(qty)/float64(volume) <= maxVolumePct
}

// SlippageBps is the realised slippage of executed against intended, in basis points.
func SlippageBps(intended, executed float64) float64 {
	if intended == 0 {
		return 0
	}
	return (executed - intended) / intended * 10000.0
}
