package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"xmasladder/internal/strategy"
	"xmasladder/pkg/xmasladder"
)

type fillRow struct {
	time        time.Time
	side        string
	qty         int64
	price       float64
	value       float64
	slippageBps float64
}

type kv struct {
	key   string
	value string
}

// view is what render prints, built from a local report or a server reply.
type view struct {
	runID    string
	symbol   string
	year     int
	fills    []fillRow
	results  []kv
	metrics  []kv
	dropped  int
	warnings []string
}

func reportView(rep *strategy.Report) view {
	res := rep.Result
	v := view{
		runID:    rep.RunID,
		symbol:   rep.Symbol,
		year:     rep.Year,
		dropped:  rep.Dropped,
		warnings: rep.Warnings,
	}
	for _, f := range res.Orders {
		v.fills = append(v.fills, fillRow{f.Time, string(f.Side), f.Qty, f.Price, f.Value, f.SlippageBps})
	}
	v.results = resultRows(res.InitialCash, res.EndingCash, res.RemainingShares, res.RemainingValueMark,
		res.TotalValue, res.PnL, res.ReturnPct)

	s := rep.Summary
	v.metrics = []kv{
		{"Total return", pct(s.TotalReturn)},
		{"Annual return", pct(s.AnnualReturn)},
		{"Sharpe", fmt.Sprintf("%.2f", s.Sharpe)},
		{"Max drawdown", pct(s.MaxDrawdown)},
		{"Win rate", pct(s.WinRate)},
		{"Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor)},
		{"Annual volatility", pct(s.AnnualVolatility)},
		{"Closing trades", fmt.Sprintf("%d", s.TotalTrades)},
	}
	return v
}

func resultView(res *xmasladder.RunResult) view {
	v := view{
		runID:    res.RunID,
		symbol:   res.Symbol,
		year:     res.Year,
		dropped:  res.Dropped,
		warnings: res.Warnings,
	}
	for _, f := range res.Executed {
		v.fills = append(v.fills, fillRow{f.Time, f.Side, f.Qty, f.Price, f.Value, f.SlippageBps})
	}
	v.results = resultRows(res.InitialCash, res.EndingCash, res.RemainingShares, res.RemainingValueMark,
		res.TotalValue, res.PnL, res.ReturnPct)

	keys := make([]string, 0, len(res.Summary))
	for k := range res.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.metrics = append(v.metrics, kv{k, fmt.Sprintf("%.4f", res.Summary[k])})
	}
	return v
}

func resultRows(initial, ending float64, shares int64, mark, total, pnl, ret float64) []kv {
	return []kv{
		{"Initial cash", money(initial)},
		{"Ending cash", money(ending)},
		{"Remaining shares", fmt.Sprintf("%d", shares)},
		{"Remaining value (mark)", money(mark)},
		{"Total value", money(total)},
		{"P&L", money(pnl)},
		{"Return", pct(ret)},
	}
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }
func pct(v float64) string   { return fmt.Sprintf("%.2f%%", v*100) }

func render(w io.Writer, v view) {
	fmt.Fprintf(w, "Christmas ladder %s %d (run %s)\n\n", v.symbol, v.year, v.runID)

	fmt.Fprintln(w, "Executed orders:")
	if len(v.fills) == 0 {
		fmt.Fprintln(w, "  none")
	} else {
		t := tablewriter.NewWriter(w)
		t.SetHeader([]string{"Time", "Side", "Qty", "Price", "Value", "Slippage (bp)"})
		t.SetAlignment(tablewriter.ALIGN_RIGHT)
		for _, f := range v.fills {
			t.Append([]string{
				f.time.Format("2006-01-02 15:04"),
				f.side,
				fmt.Sprintf("%d", f.qty),
				fmt.Sprintf("%.2f", f.price),
				money(f.value),
				fmt.Sprintf("%.2f", f.slippageBps),
			})
		}
		t.Render()
	}
	if v.dropped > 0 {
		fmt.Fprintf(w, "  %d intended orders did not fill\n", v.dropped)
	}

	fmt.Fprintln(w, "\nResults:")
	renderPairs(w, v.results)
	fmt.Fprintln(w, "\nMetrics:")
	renderPairs(w, v.metrics)

	for _, warn := range v.warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func renderPairs(w io.Writer, rows []kv) {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetColumnSeparator("")
	for _, r := range rows {
		t.Append([]string{r.key, r.value})
	}
	t.Render()
}

func renderSweep(w io.Writer, reports []*strategy.Report) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Year", "Filled", "Dropped", "Open shares", "P&L", "Return", "Sharpe", "Max DD"})
	t.SetAlignment(tablewriter.ALIGN_RIGHT)
	var total float64
	for _, rep := range reports {
		res := rep.Result
		total += res.PnL
		t.Append([]string{
			fmt.Sprintf("%d", rep.Year),
			fmt.Sprintf("%d", len(res.Orders)),
			fmt.Sprintf("%d", rep.Dropped),
			fmt.Sprintf("%d", res.RemainingShares),
			money(res.PnL),
			pct(res.ReturnPct),
			fmt.Sprintf("%.2f", rep.Summary.Sharpe),
			pct(rep.Summary.MaxDrawdown),
		})
	}
	t.SetFooter([]string{"", "", "", "", money(total), "", "", ""})
	t.Render()
}
