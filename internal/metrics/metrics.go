// Package metrics derives performance statistics from the executed orders
// and result of a backtest.
package metrics

import (
	"math"

	"github.com/montanaflynn/stats"

	"xmasladder/internal/domain"
)

// TradingDaysPerYear annualises per-period statistics.
const TradingDaysPerYear = 252

// DefaultRiskFreeRate is the annual risk-free rate used by Summarize.
const DefaultRiskFreeRate = 0.02

// Sharpe returns the annualised Sharpe ratio of periodic returns against an
// annual risk-free rate. Fewer than two returns, or no variation, yield 0.
func Sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	daily := riskFree / TradingDaysPerYear
	excess := make(stats.Float64Data, len(returns))
	for i, r := range returns {
		excess[i] = r - daily
	}

	sd, err := stats.StandardDeviationSample(excess)
	if err != nil || sd == 0 {
		return 0
	}
	mean, err := stats.Mean(excess)
	if err != nil {
		return 0
	}
	return mean / sd * math.Sqrt(TradingDaysPerYear)
}

// Drawdown describes the worst peak-to-trough decline of an equity curve.
type Drawdown struct {
	MaxDrawdown  float64 // positive fraction of the peak
	DurationBars int     // longest run of consecutive points below a prior peak
	RecoveryBars int     // points from the deepest trough back to its peak, 0 if never recovered
}

// MaxDrawdown walks equity and reports its deepest decline.
func MaxDrawdown(equity []float64) Drawdown {
	var dd Drawdown
	if len(equity) == 0 {
		return dd
	}

	peak := equity[0]
	troughIdx, troughPeak := -1, 0.0
	run := 0
	for i, v := range equity {
		if v >= peak {
			peak = v
			run = 0
			continue
		}
		run++
		dd.DurationBars = max(dd.DurationBars, run)
		if peak > 0 {
			if d := (peak - v) / peak; d > dd.MaxDrawdown {
				dd.MaxDrawdown = d
				troughIdx, troughPeak = i, peak
			}
		}
	}

	if troughIdx >= 0 {
		for i := troughIdx + 1; i < len(equity); i++ {
			if equity[i] >= troughPeak {
				dd.RecoveryBars = i - troughIdx
				break
			}
		}
	}
	return dd
}

// WinLossStats summarises per-trade P&L.
type WinLossStats struct {
	Total        int
	Winners      int
	Losers       int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64 // magnitude
	ProfitFactor float64 // gross profit / gross loss; +Inf with profit and no losses
}

// WinLoss computes win/loss statistics over trade P&L values.
func WinLoss(tradePnL []float64) WinLossStats {
	var (
		out       WinLossStats
		wins      stats.Float64Data
		losses    stats.Float64Data
		grossWin  float64
		grossLoss float64
	)
	out.Total = len(tradePnL)
	if out.Total == 0 {
		return out
	}

	for _, p := range tradePnL {
		switch {
		case p > 0:
			wins = append(wins, p)
		case p < 0:
			losses = append(losses, -p)
		}
	}
	out.Winners, out.Losers = len(wins), len(losses)
	out.WinRate = float64(out.Winners) / float64(out.Total)

	if len(wins) > 0 {
		out.AvgWin, _ = stats.Mean(wins)
		grossWin, _ = stats.Sum(wins)
	}
	if len(losses) > 0 {
		out.AvgLoss, _ = stats.Mean(losses)
		grossLoss, _ = stats.Sum(losses)
	}

	switch {
	case grossLoss > 0:
		out.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		out.ProfitFactor = math.Inf(1)
	}
	return out
}

// VolatilityStats is the dispersion of periodic returns.
type VolatilityStats struct {
	Daily  float64
	Annual float64
}

// Volatility returns the sample standard deviation of returns, daily and
// annualised.
func Volatility(returns []float64) VolatilityStats {
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil || math.IsNaN(sd) {
		return VolatilityStats{}
	}
	return VolatilityStats{Daily: sd, Annual: sd * math.Sqrt(TradingDaysPerYear)}
}

// EquityCurve returns the marked account value before the first fill and
// after each fill, valuing open shares at that fill's price.
func EquityCurve(fills []domain.Fill, initialCash float64) []float64 {
	curve := make([]float64, 0, len(fills)+1)
	curve = append(curve, initialCash)

	cash := initialCash
	var position int64
	for _, f := range fills {
		cash += f.Value
		if f.Side == domain.OrderSideBuy {
			position += f.Qty
		} else {
			position -= f.Qty
		}
		curve = append(curve, cash+float64(position)*f.Price)
	}
	return curve
}

// Returns converts an equity curve into period-over-period fractional
// changes, skipping periods that start from a non-positive value.
func Returns(equity []float64) []float64 {
	var out []float64
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// RealizedPnL returns the P&L of each SELL fill against the running average
// cost of the shares held at that point.
func RealizedPnL(fills []domain.Fill) []float64 {
	var (
		out   []float64
		held  int64
		basis float64
	)
	for _, f := range fills {
		switch f.Side {
		case domain.OrderSideBuy:
			held += f.Qty
			basis += float64(f.Qty) * f.Price
		case domain.OrderSideSell:
			if held <= 0 {
				continue
			}
			avg := basis / float64(held)
			qty := min(f.Qty, held)
			out = append(out, (f.Price-avg)*float64(qty))
			basis -= avg * float64(qty)
			held -= qty
		}
	}
	return out
}
