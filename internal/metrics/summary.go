package metrics

import (
	"math"

	"xmasladder/internal/domain"
	"xmasladder/internal/engine"
)

// Summary is the headline performance of one backtest.
type Summary struct {
	TotalReturn      float64
	AnnualReturn     float64
	Sharpe           float64
	MaxDrawdown      float64
	WinRate          float64
	ProfitFactor     float64
	AnnualVolatility float64
	TotalTrades      int
}

// Summarize computes the headline metrics for fills, which must be sorted by
// time, given the starting cash and the final marked account value.
func Summarize(fills []domain.Fill, initialCash, finalValue float64) Summary {
	var s Summary
	if len(fills) == 0 {
		return s
	}

	if initialCash > 0 {
		s.TotalReturn = (finalValue - initialCash) / initialCash
	}
	days := int(fills[len(fills)-1].Time.Sub(fills[0].Time).Hours() / 24)
	if days > 0 && s.TotalReturn > -1 {
		s.AnnualReturn = math.Pow(1+s.TotalReturn, 365/float64(days)) - 1
	}

	equity := EquityCurve(fills, initialCash)
	returns := Returns(equity)
	s.Sharpe = Sharpe(returns, DefaultRiskFreeRate)
	s.MaxDrawdown = MaxDrawdown(equity).MaxDrawdown
	s.AnnualVolatility = Volatility(returns).Annual

	wl := WinLoss(RealizedPnL(fills))
	s.WinRate = wl.WinRate
	s.ProfitFactor = wl.ProfitFactor
	s.TotalTrades = wl.Total
	return s
}

// Trades counts completed round trips and how they ended.
type Trades struct {
	RoundTrips  int // SELL fills
	Winners     int
	Losers      int
	WinRate     float64
	AvgTradePnL float64 // total P&L spread over round trips
	MaxDrawdown float64
}

// TradeStats derives round-trip statistics from an engine result.
func TradeStats(res *engine.Result) Trades {
	var t Trades
	if res == nil || len(res.Orders) == 0 {
		return t
	}

	pnl := RealizedPnL(res.Orders)
	t.RoundTrips = len(pnl)
	if t.RoundTrips == 0 {
		return t
	}
	wl := WinLoss(pnl)
	t.Winners, t.Losers, t.WinRate = wl.Winners, wl.Losers, wl.WinRate
	t.AvgTradePnL = res.PnL / float64(t.RoundTrips)
	t.MaxDrawdown = MaxDrawdown(EquityCurve(res.Orders, res.InitialCash)).MaxDrawdown
	return t
}
