package engine

import (
	"fmt"
	"math"
	"sort"

	"xmasladder/internal/domain"
)

// RiskManager holds the limits used for position sizing and portfolio checks.
type RiskManager struct {
	maxPositionPct       float64
	maxSinglePositionPct float64
	maxKellyFraction     float64
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxPositionPct: largest fraction of available cash committed to one
//     order (e.g. 0.10 for 10%).
//   - maxSinglePositionPct: largest fraction of portfolio value held in one
//     symbol before CheckConcentration warns.
//   - maxKellyFraction: upper clamp on the Kelly fraction.
func NewRiskManager(maxPositionPct, maxSinglePositionPct, maxKellyFraction float64) *RiskManager {
	return &RiskManager{
		maxPositionPct:       maxPositionPct,
		maxSinglePositionPct: maxSinglePositionPct,
		maxKellyFraction:     maxKellyFraction,
	}
}

// DefaultRiskManager allows full cash per order, warns above 100%
// concentration and caps Kelly at a quarter of capital.
func DefaultRiskManager() *RiskManager {
	return NewRiskManager(1.0, 1.0, 0.25)
}

// PositionSize returns the whole number of shares affordable for
// targetAllocation, never committing more than maxPositionPct of
// availableCash.
func (rm *RiskManager) PositionSize(availableCash, targetAllocation, price float64) int64 {
	if availableCash <= 0 || targetAllocation <= 0 || price <= 0 {
		return 0
	}
	alloc := min(targetAllocation, availableCash*rm.maxPositionPct)
	return int64(math.Floor(alloc / price))
}

// CheckMargin reports whether the total buy notional of orders fits within
// cash times marginMultiplier.
func (rm *RiskManager) CheckMargin(orders []domain.Order, cash, marginMultiplier float64) (bool, float64) {
	var required float64
	for _, o := range orders {
		if o.Side == domain.OrderSideBuy {
			required += float64(o.Qty) * o.Price
		}
	}
	return required <= cash*marginMultiplier, required
}

// CheckConcentration returns one warning per symbol whose buy notional
// exceeds maxSinglePositionPct of portfolioValue, sorted by symbol.
func (rm *RiskManager) CheckConcentration(orders []domain.Order, portfolioValue float64) []string {
	if portfolioValue <= 0 {
		return nil
	}
	bySymbol := make(map[string]float64)
	for _, o := range orders {
		if o.Side == domain.OrderSideBuy {
			bySymbol[o.Symbol] += float64(o.Qty) * o.Price
		}
	}

	var warnings []string
	for sym, notional := range bySymbol {
		if pct := notional / portfolioValue; pct > rm.maxSinglePositionPct {
			warnings = append(warnings, fmt.Sprintf("%s: %.1f%% of portfolio exceeds %.1f%% limit",
				sym, pct*100, rm.maxSinglePositionPct*100))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// Kelly returns the capital to risk under the Kelly criterion, with the
// fraction clamped to [0, maxKellyFraction].
func (rm *RiskManager) Kelly(winRate, avgWin, avgLoss, capital float64) float64 {
	if avgLoss == 0 || winRate <= 0 || winRate >= 1 {
		return 0
	}
	b := avgWin / math.Abs(avgLoss)
	f := (b*winRate - (1 - winRate)) / b
	f = max(0, min(f, rm.maxKellyFraction))
	return capital * f
}

// CheckPositions fails with domain.ErrInput if the running position of any
// symbol goes below zero while walking fills in order.
func (rm *RiskManager) CheckPositions(fills []domain.Fill) error {
	position := make(map[string]int64)
	for _, f := range fills {
		if f.Side == domain.OrderSideSell {
			position[f.Symbol] -= f.Qty
		} else {
			position[f.Symbol] += f.Qty
		}
		if position[f.Symbol] < 0 {
			return fmt.Errorf("%w: %s oversold by %d shares at %s",
				domain.ErrInput, f.Symbol, -position[f.Symbol], f.Time.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
