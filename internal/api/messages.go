package api

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"xmasladder/internal/broker"
	"xmasladder/internal/domain"
	"xmasladder/internal/gather"
	"xmasladder/internal/strategy"
)

// Defaults fill in request fields a caller leaves out.
type Defaults struct {
	Params      strategy.LadderParams
	InitialCash float64
	Interval    gather.Interval
	Execution   broker.SimulatorConfig
	Location    *time.Location
}

// decodeRequest reads a Run request. Recognised fields are symbol, year,
// buy_days, sell_days, sell_execution_time, initial_cash, interval, start,
// end, slippage_bps and min_liquidity_check; unknown fields are ignored.
func decodeRequest(in *structpb.Struct, d Defaults) (strategy.Request, error) {
	fields := in.GetFields()
	req := strategy.Request{
		Params:      d.Params,
		InitialCash: d.InitialCash,
		Interval:    d.Interval,
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}

	var err error
	if req.Params.Symbol, err = stringField(fields, "symbol", req.Params.Symbol); err != nil {
		return req, err
	}
	if req.Params.Year, err = intField(fields, "year", req.Params.Year); err != nil {
		return req, err
	}
	if req.Params.BuyDays, err = intField(fields, "buy_days", req.Params.BuyDays); err != nil {
		return req, err
	}
	if req.Params.SellDays, err = intField(fields, "sell_days", req.Params.SellDays); err != nil {
		return req, err
	}
	if req.Params.SellExecutionTime, err = stringField(fields, "sell_execution_time", req.Params.SellExecutionTime); err != nil {
		return req, err
	}
	if req.InitialCash, err = numberField(fields, "initial_cash", req.InitialCash); err != nil {
		return req, err
	}

	iv, err := stringField(fields, "interval", string(req.Interval))
	if err != nil {
		return req, err
	}
	if iv != "" {
		if req.Interval, err = gather.ParseInterval(iv); err != nil {
			return req, err
		}
	}

	start, err := dateField(fields, "start", loc)
	if err != nil {
		return req, err
	}
	end, err := dateField(fields, "end", loc)
	if err != nil {
		return req, err
	}
	if !start.IsZero() || !end.IsZero() {
		r := gather.DefaultRange(req.Params.Year, loc)
		if !start.IsZero() {
			r.Start = start
		}
		if !end.IsZero() {
			r.End = end.Add(24*time.Hour - time.Second)
		}
		if err := r.Validate(); err != nil {
			return req, err
		}
		req.Range = r
	}

	_, hasSlip := fields["slippage_bps"]
	_, hasLiq := fields["min_liquidity_check"]
	if hasSlip || hasLiq {
		exec := d.Execution
		if exec.SlippageBps, err = numberField(fields, "slippage_bps", exec.SlippageBps); err != nil {
			return req, err
		}
		if exec.LiquidityCheck, err = boolField(fields, "min_liquidity_check", exec.LiquidityCheck); err != nil {
			return req, err
		}
		req.Execution = &exec
	}
	return req, nil
}

func stringField(fields map[string]*structpb.Value, name, def string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return def, nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return def, fmt.Errorf("%w: %s must be a string", domain.ErrInput, name)
	}
	return s.StringValue, nil
}

func numberField(fields map[string]*structpb.Value, name string, def float64) (float64, error) {
	v, ok := fields[name]
	if !ok {
		return def, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return def, fmt.Errorf("%w: %s must be a number", domain.ErrInput, name)
	}
	return n.NumberValue, nil
}

func intField(fields map[string]*structpb.Value, name string, def int) (int, error) {
	f, err := numberField(fields, name, float64(def))
	if err != nil {
		return def, err
	}
	if f != math.Trunc(f) {
		return def, fmt.Errorf("%w: %s must be a whole number, got %v", domain.ErrInput, name, f)
	}
	return int(f), nil
}

func boolField(fields map[string]*structpb.Value, name string, def bool) (bool, error) {
	v, ok := fields[name]
	if !ok {
		return def, nil
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return def, fmt.Errorf("%w: %s must be a bool", domain.ErrInput, name)
	}
	return b.BoolValue, nil
}

func dateField(fields map[string]*structpb.Value, name string, loc *time.Location) (time.Time, error) {
	s, err := stringField(fields, name, "")
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not YYYY-MM-DD", domain.ErrInput, name, s)
	}
	return t, nil
}

// encodeReport renders a report as the Run response. Timestamps are RFC 3339.
func encodeReport(rep *strategy.Report) (*structpb.Struct, error) {
	res := rep.Result
	executed := make([]any, 0, len(res.Orders))
	for _, f := range res.Orders {
		executed = append(executed, map[string]any{
			"symbol":        f.Symbol,
			"time":          f.Time.Format(time.RFC3339),
			"original_time": f.OriginalTime.Format(time.RFC3339),
			"side":          string(f.Side),
			"qty":           f.Qty,
			"price":         f.Price,
			"value":         f.Value,
			"slippage_bps":  f.SlippageBps,
		})
	}
	warnings := make([]any, 0, len(rep.Warnings))
	for _, w := range rep.Warnings {
		warnings = append(warnings, w)
	}

	s := rep.Summary
	return structpb.NewStruct(map[string]any{
		"run_id":               rep.RunID,
		"symbol":               rep.Symbol,
		"year":                 rep.Year,
		"initial_cash":         res.InitialCash,
		"ending_cash":          res.EndingCash,
		"remaining_shares":     res.RemainingShares,
		"remaining_value_mark": res.RemainingValueMark,
		"total_value":          res.TotalValue,
		"pnl":                  res.PnL,
		"return_pct":           res.ReturnPct,
		"intended":             len(rep.Intended),
		"dropped":              rep.Dropped,
		"executed":             executed,
		"warnings":             warnings,
		"summary": map[string]any{
			"total_return":      s.TotalReturn,
			"annual_return":     s.AnnualReturn,
			"sharpe":            s.Sharpe,
			"max_drawdown":      s.MaxDrawdown,
			"win_rate":          s.WinRate,
			"profit_factor":     finite(s.ProfitFactor),
			"annual_volatility": s.AnnualVolatility,
			"total_trades":      s.TotalTrades,
		},
	})
}

// finite clamps infinities so the response stays representable as JSON.
func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	case math.IsNaN(v):
		return 0
	}
	return v
}
