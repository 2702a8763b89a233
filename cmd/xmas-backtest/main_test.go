package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"xmasladder/internal/config"
	"xmasladder/internal/domain"
	"xmasladder/internal/engine"
	"xmasladder/internal/strategy"
)

func TestRunFlagsApplyOnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	f := &runFlags{}
	f.register(cmd)
	for name, value := range map[string]string{"year": "2020", "no-liquidity-check": "true", "sell-time": "11:00"} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
	}

	cfg := config.Default()
	cfg.Strategy.Symbol = "QQQ"
	cfg.Backtest.InitialCash = 5000
	f.apply(cmd, cfg)

	if cfg.Strategy.Year != 2020 || cfg.Strategy.SellExecutionTime != "11:00" || cfg.Execution.MinLiquidityCheck {
		t.Errorf("changed flags not applied: %+v %+v", cfg.Strategy, cfg.Execution)
	}
	if cfg.Strategy.Symbol != "QQQ" || cfg.Backtest.InitialCash != 5000 {
		t.Errorf("unchanged flags overrode config: symbol %q cash %v", cfg.Strategy.Symbol, cfg.Backtest.InitialCash)
	}
}

func TestRender(t *testing.T) {
	ts := time.Date(2023, 12, 18, 16, 0, 0, 0, time.UTC)
	fill := domain.Fill{Order: domain.NewOrder("SPY", ts, domain.OrderSideBuy, 20, 100.01), SlippageBps: 1}
	rep := &strategy.Report{
		RunID:  "abc",
		Symbol: "SPY",
		Year:   2023,
		Result: &engine.Result{
			InitialCash:     10000,
			EndingCash:      7999.8,
			RemainingShares: 20,
			TotalValue:      10000,
			Orders:          []domain.Fill{fill},
		},
		Dropped:  2,
		Warnings: []string{"margin"},
	}

	var buf bytes.Buffer
	render(&buf, reportView(rep))
	out := buf.String()
	for _, want := range []string{"SPY 2023 (run abc)", "2023-12-18 16:00", "BUY", "-2000.20", "Remaining shares", "2 intended orders did not fill", "warning: margin"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
