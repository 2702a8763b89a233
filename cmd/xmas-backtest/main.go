// Command xmas-backtest runs the Christmas ladder backtest and prints the
// executed orders, the final account state and performance metrics.
//
// Usage:
//
//	xmas-backtest run --symbol SPY --year 2023
//	xmas-backtest run --csv spy_1m.csv --year 2023 --interval 1m
//	xmas-backtest run --server localhost:50061 --year 2022
//	xmas-backtest sweep --symbol SPY --from 2015 --to 2023 --interval 1d
//	xmas-backtest fetch --symbol SPY --year 2023 --out spy_1m.csv
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xmasladder/internal/app"
	"xmasladder/internal/config"
	"xmasladder/internal/util"
	"xmasladder/pkg/xmasladder"
)

var (
	cfgPath string
	envFile string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:           "xmas-backtest",
		Short:         "Backtest buying into Christmas and selling out after it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("XMAS_CONFIG"), "YAML config file (defaults when empty)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with Alpaca credentials")

	root.AddCommand(newRunCmd(), newFetchCmd(), newSweepCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file and the config, then applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	f.apply(cmd, cfg)
	return cfg, nil
}

// newLogger logs to stderr so tables on stdout stay clean.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	return logger
}

// runFlags are the command-line overrides shared by every subcommand.
type runFlags struct {
	symbol      string
	year        int
	cash        float64
	buyDays     int
	sellDays    int
	sellTime    string
	slippageBps float64
	noLiquidity bool
	csv         string
	interval    string
	server      string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.symbol, "symbol", "SPY", "ticker to trade")
	fl.IntVar(&f.year, "year", 0, "year of the Christmas to trade around")
	fl.Float64Var(&f.cash, "cash", 100000, "initial cash")
	fl.IntVar(&f.buyDays, "buy-days", 5, "trading days before Dec 25 to buy")
	fl.IntVar(&f.sellDays, "sell-days", 10, "trading days after Dec 25 to sell")
	fl.StringVar(&f.sellTime, "sell-time", "10:30", "HH:MM exchange time for sells")
	fl.Float64Var(&f.slippageBps, "slippage-bps", 1.0, "adverse slippage in basis points")
	fl.BoolVar(&f.noLiquidity, "no-liquidity-check", false, "fill regardless of bar volume")
	fl.StringVar(&f.csv, "csv", "", "read bars from this CSV instead of Alpaca")
	fl.StringVar(&f.interval, "interval", "1m", "bar interval: 1m, 5m, 15m, 1h or 1d")
}

// apply copies explicitly set flags over cfg so unset flags keep the
// config file's values.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("symbol") {
		cfg.Strategy.Symbol = f.symbol
	}
	if changed("year") {
		cfg.Strategy.Year = f.year
	}
	if changed("cash") {
		cfg.Backtest.InitialCash = f.cash
	}
	if changed("buy-days") {
		cfg.Strategy.BuyDays = f.buyDays
	}
	if changed("sell-days") {
		cfg.Strategy.SellDays = f.sellDays
	}
	if changed("sell-time") {
		cfg.Strategy.SellExecutionTime = f.sellTime
	}
	if changed("slippage-bps") {
		cfg.Execution.SlippageBps = f.slippageBps
	}
	if changed("no-liquidity-check") {
		cfg.Execution.MinLiquidityCheck = !f.noLiquidity
	}
	if changed("csv") {
		cfg.Backtest.DataFile = f.csv
	}
	if changed("interval") {
		cfg.Backtest.Interval = f.interval
	}
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backtest and print the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if f.server != "" {
				return runRemote(cmd, cfg, f)
			}
			return runLocal(cmd, cfg)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.server, "server", "", "run on an xmas-server at host:port instead of locally")
	return cmd
}

func runLocal(cmd *cobra.Command, cfg *config.Config) error {
	a, err := app.New(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.Request()
	if err != nil {
		return err
	}
	rep, err := a.Backtester.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	render(cmd.OutOrStdout(), reportView(rep))
	return nil
}

func runRemote(cmd *cobra.Command, cfg *config.Config, f *runFlags) error {
	c, err := xmasladder.Dial(f.server)
	if err != nil {
		return err
	}
	defer c.Close()

	slip := cfg.Execution.SlippageBps
	liq := cfg.Execution.MinLiquidityCheck
	res, err := c.Run(cmd.Context(), xmasladder.RunRequest{
		Symbol:            cfg.Strategy.Symbol,
		Year:              cfg.Strategy.Year,
		BuyDays:           cfg.Strategy.BuyDays,
		SellDays:          cfg.Strategy.SellDays,
		SellExecutionTime: cfg.Strategy.SellExecutionTime,
		InitialCash:       cfg.Backtest.InitialCash,
		Interval:          cfg.Backtest.Interval,
		Start:             cfg.Backtest.Start,
		End:               cfg.Backtest.End,
		SlippageBps:       &slip,
		MinLiquidityCheck: &liq,
	})
	if err != nil {
		return err
	}
	render(cmd.OutOrStdout(), resultView(res))
	return nil
}
