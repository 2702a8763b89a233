// Package app wires the backtest harness together from configuration: the
// bar cache, the market-data feed, the execution simulator, the engine and
// the Backtester that drives them.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"xmasladder/internal/broker"
	"xmasladder/internal/config"
	"xmasladder/internal/domain"
	"xmasladder/internal/engine"
	"xmasladder/internal/gather"
	"xmasladder/internal/gather/us"
	"xmasladder/internal/store"
	"xmasladder/internal/strategy"
	"xmasladder/internal/util"
)

// App holds the components built from one Config.
type App struct {
	Config     *config.Config
	Log        *slog.Logger
	Location   *time.Location
	Store      store.BarStore // nil when storage.backend is none
	Feed       gather.Feed
	Broker     *broker.SimulatorBroker
	Engine     *engine.Engine
	Backtester *strategy.Backtester

	closers []io.Closer
}

// New validates cfg and builds every component. A nil log uses a logger
// built from cfg.Logging.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	}
	loc, err := gather.ExchangeLocation()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Location: loc}
	if err := a.openStore(); err != nil {
		return nil, err
	}

	feed, err := a.upstreamFeed()
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Store != nil && cfg.Backtest.DataFile == "" {
		feed = gather.NewCachedFeed(feed, a.Store, loc, log)
	}
	a.Feed = feed

	a.Broker, err = broker.NewSimulatorBroker(ExecutionConfig(cfg), log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine.NewEngine(engine.NewRiskManager(
		cfg.Risk.MaxPositionPct,
		cfg.Risk.MaxSinglePositionPct,
		cfg.Risk.MaxKellyFraction,
	))
	a.Backtester = strategy.NewBacktester(a.Feed, a.Broker, a.Engine, strategy.BacktesterOptions{
		MarginMultiplier: cfg.Risk.MarginMultiplier,
		Location:         loc,
	}, log)

	log.Debug("app initialised",
		"storage", cfg.Storage.Backend,
		"feed", a.Feed.Name(),
		"broker", a.Broker.Name(),
	)
	return a, nil
}

func (a *App) openStore() error {
	switch a.Config.Storage.Backend {
	case "parquet":
		a.Store = store.NewParquetStore(a.Config.Storage.DataDir)
	case "sqlite":
		s, err := store.NewSQLiteStore(a.Config.Storage.SQLitePath)
		if err != nil {
			return err
		}
		a.Store = s
		a.closers = append(a.closers, s)
	}
	return nil
}

// upstreamFeed returns the CSV feed when backtest.data_file is set and the
// Alpaca feed otherwise.
func (a *App) upstreamFeed() (gather.Feed, error) {
	cfg := a.Config
	if cfg.Backtest.DataFile != "" {
		return gather.NewCSVFeed(cfg.Backtest.DataFile, a.Location), nil
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return nil, fmt.Errorf("%w: alpaca credentials are required without backtest.data_file", domain.ErrInput)
	}

	ac := us.DefaultAlpacaConfig()
	ac.APIKey = cfg.Alpaca.APIKey
	ac.APISecret = cfg.Alpaca.APISecret
	ac.DataURL = cfg.Alpaca.DataURL
	ac.BaseURL = cfg.Alpaca.BaseURL
	ac.SessionOpen = cfg.Execution.SessionOpen
	ac.SessionClose = cfg.Execution.SessionClose
	if cfg.Alpaca.Feed != "" {
		ac.Feed = cfg.Alpaca.Feed
	}
	if cfg.Alpaca.RateLimitPerMin > 0 {
		ac.RateLimitPerMin = cfg.Alpaca.RateLimitPerMin
	}
	return us.NewAlpacaFeed(ac, a.Log)
}

// Close releases the bar store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Request returns the backtest request described by the strategy and
// backtest sections.
func (a *App) Request() (strategy.Request, error) {
	cfg := a.Config
	iv, err := gather.ParseInterval(cfg.Backtest.Interval)
	if err != nil {
		return strategy.Request{}, err
	}
	r, err := DateRange(cfg, a.Location)
	if err != nil {
		return strategy.Request{}, err
	}
	return strategy.Request{
		Params:      LadderParams(cfg),
		InitialCash: cfg.Backtest.InitialCash,
		Range:       r,
		Interval:    iv,
	}, nil
}

// LadderParams maps the strategy section.
func LadderParams(cfg *config.Config) strategy.LadderParams {
	return strategy.LadderParams{
		Year:              cfg.Strategy.Year,
		Symbol:            cfg.Strategy.Symbol,
		BuyDays:           cfg.Strategy.BuyDays,
		SellDays:          cfg.Strategy.SellDays,
		SellExecutionTime: cfg.Strategy.SellExecutionTime,
	}
}

// ExecutionConfig maps the execution section.
func ExecutionConfig(cfg *config.Config) broker.SimulatorConfig {
	e := cfg.Execution
	return broker.SimulatorConfig{
		SlippageBps:       e.SlippageBps,
		LiquidityCheck:    e.MinLiquidityCheck,
		MaxVolumePct:      e.MaxVolumePct,
		RepriceTime:       e.RepriceTime,
		PreserveTimestamp: e.PreserveTimestamp,
		SessionOpen:       e.SessionOpen,
		SessionClose:      e.SessionClose,
	}
}

// DateRange resolves backtest.start and backtest.end in loc. Either bound
// left empty falls back to the default window around the strategy year;
// an end date covers that whole day.
func DateRange(cfg *config.Config, loc *time.Location) (gather.DateRange, error) {
	r := gather.DefaultRange(cfg.Strategy.Year, loc)
	if s := cfg.Backtest.Start; s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return gather.DateRange{}, fmt.Errorf("%w: backtest.start %q", domain.ErrInput, s)
		}
		r.Start = t
	}
	if s := cfg.Backtest.End; s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return gather.DateRange{}, fmt.Errorf("%w: backtest.end %q", domain.ErrInput, s)
		}
		r.End = t.Add(24*time.Hour - time.Second)
	}
	if err := r.Validate(); err != nil {
		return gather.DateRange{}, err
	}
	return r, nil
}
