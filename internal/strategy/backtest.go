package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xmasladder/internal/broker"
	"xmasladder/internal/domain"
	"xmasladder/internal/engine"
	"xmasladder/internal/gather"
	"xmasladder/internal/metrics"
	"xmasladder/internal/series"
	"xmasladder/internal/util"
)

// Request describes one backtest run.
type Request struct {
	Strategy    string // Registry name, empty means LadderName
	Params      LadderParams
	InitialCash float64
	Range       gather.DateRange // zero means gather.DefaultRange of Params.Year
	Interval    gather.Interval  // empty means 1m

	// Execution overrides the Backtester's broker with a simulator built
	// from these settings for this run only.
	Execution *broker.SimulatorConfig
}

// Report holds everything a backtest run produced.
type Report struct {
	RunID    string
	Strategy string
	Symbol   string
	Year     int
	Intended []domain.Order
	Result   *engine.Result
	Summary  metrics.Summary
	Stats    metrics.Trades
	Dropped  int // intended orders that did not fill
	Warnings []string
}

// Executed returns the filled orders.
func (r *Report) Executed() []domain.Fill {
	if r.Result == nil {
		return nil
	}
	return r.Result.Orders
}

// BacktesterOptions tunes the checks around a run.
type BacktesterOptions struct {
	MarginMultiplier float64        // buying power as a multiple of cash, default 1
	Location         *time.Location // exchange time for default ranges, default UTC
	Registry         *Registry      // strategies by name, default DefaultRegistry
}

// Backtester replays historical bar data through a registered strategy, the
// execution simulator and the engine, and computes performance metrics.
type Backtester struct {
	feed   gather.Feed
	broker broker.Broker
	engine *engine.Engine
	opts   BacktesterOptions
	log    *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from feed and fills
// orders through brk.
func NewBacktester(feed gather.Feed, brk broker.Broker, eng *engine.Engine, opts BacktesterOptions, log *slog.Logger) *Backtester {
	if eng == nil {
		eng = engine.NewEngine(nil)
	}
	if opts.MarginMultiplier <= 0 {
		opts.MarginMultiplier = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	return &Backtester{
		feed:   feed,
		broker: brk,
		engine: eng,
		opts:   opts,
		log:    util.OrDefault(log).With("component", "backtester"),
	}
}

// Run executes one backtest. Any error aborts the run with no partial
// report; orders the simulator could not fill only reduce Report.Executed.
func (b *Backtester) Run(ctx context.Context, req Request) (*Report, error) {
	if req.InitialCash < 0 {
		return nil, fmt.Errorf("%w: initial cash %v is negative", domain.ErrInput, req.InitialCash)
	}

	runID := uuid.NewString()
	log := b.log.With("run", runID, "symbol", req.Params.Symbol, "year", req.Params.Year)

	name := req.Strategy
	if name == "" {
		name = LadderName
	}
	strat, err := b.opts.Registry.New(name, req.Params, log)
	if err != nil {
		return nil, err
	}
	brk, err := b.brokerFor(req, log)
	if err != nil {
		return nil, err
	}

	r := req.Range
	if r.Start.IsZero() && r.End.IsZero() {
		r = gather.DefaultRange(req.Params.Year, b.opts.Location)
	}
	iv := req.Interval
	if iv == "" {
		iv = gather.Interval1m
	}

	log.Info("starting backtest",
		"strategy", strat.Name(),
		"feed", b.feed.Name(),
		"broker", brk.Name(),
		"interval", iv,
		"start", r.Start.Format("2006-01-02"),
		"end", r.End.Format("2006-01-02"),
		"cash", req.InitialCash,
	)

	bars, err := b.feed.History(ctx, req.Params.Symbol, r, iv)
	if err != nil {
		return nil, fmt.Errorf("loading market data: %w", err)
	}
	s, err := series.New(bars)
	if err != nil {
		return nil, fmt.Errorf("building series: %w", err)
	}

	intended, err := strat.Generate(ctx, s, req.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("generating orders: %w", err)
	}

	var warnings []string
	risk := b.engine.Risk()
	if ok, required := risk.CheckMargin(intended, req.InitialCash, b.opts.MarginMultiplier); !ok {
		msg := fmt.Sprintf("buy notional %.2f exceeds buying power %.2f", required, req.InitialCash*b.opts.MarginMultiplier)
		log.Warn("margin check failed", "required", required, "cash", req.InitialCash)
		warnings = append(warnings, msg)
	}
	for _, w := range risk.CheckConcentration(intended, req.InitialCash) {
		log.Warn("concentration check failed", "detail", w)
		warnings = append(warnings, w)
	}

	fills := brk.Execute(ctx, intended, s)
	res, err := b.engine.Run(fills, req.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("settling fills: %w", err)
	}

	rep := &Report{
		RunID:    runID,
		Strategy: strat.Name(),
		Symbol:   strat.Symbol(),
		Year:     req.Params.Year,
		Intended: intended,
		Result:   res,
		Summary:  metrics.Summarize(res.Orders, res.InitialCash, res.TotalValue),
		Stats:    metrics.TradeStats(res),
		Dropped:  len(intended) - len(fills),
		Warnings: warnings,
	}

	log.Info("backtest complete",
		"bars", s.Len(),
		"intended", len(intended),
		"executed", len(fills),
		"dropped", rep.Dropped,
		"pnl", res.PnL,
		"returnPct", res.ReturnPct,
	)
	return rep, nil
}

func (b *Backtester) brokerFor(req Request, log *slog.Logger) (broker.Broker, error) {
	if req.Execution == nil {
		if b.broker == nil {
			return nil, fmt.Errorf("%w: no broker configured", domain.ErrInput)
		}
		return b.broker, nil
	}
	return broker.NewSimulatorBroker(*req.Execution, log)
}
