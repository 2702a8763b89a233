// Package us implements market-data feeds for US equities.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"xmasladder/internal/domain"
	"xmasladder/internal/gather"
	"xmasladder/internal/series"
	"xmasladder/internal/util"
)

// Compile-time interface check.
var _ gather.Feed = (*AlpacaFeed)(nil)

// recentDataDelay keeps requests clear of the window SIP subscriptions may
// not query.
const recentDataDelay = 16 * time.Minute

// barsClient is the subset of *marketdata.Client the feed uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestBar(symbol string, req marketdata.GetLatestBarRequest) (*marketdata.Bar, error)
}

// AlpacaConfig holds credentials and limits for the Alpaca market-data API.
type AlpacaConfig struct {
	APIKey          string
	APISecret       string
	DataURL         string // market-data API, empty for the SDK default
	BaseURL         string // trading API, used for the market calendar
	Feed            string // "sip" or "iex"
	RateLimitPerMin int
	Retry           util.RetryPolicy
	SessionOpen     string
	SessionClose    string
}

// DefaultAlpacaConfig returns the SIP feed at 200 requests a minute over the
// regular session.
func DefaultAlpacaConfig() AlpacaConfig {
	return AlpacaConfig{
		Feed:            "sip",
		RateLimitPerMin: 200,
		Retry:           util.DefaultRetryPolicy,
		SessionOpen:     series.DefaultSessionOpen,
		SessionClose:    series.DefaultSessionClose,
	}
}

// AlpacaFeed fetches historical bars for US equities from Alpaca. Intraday
// bars are limited to the regular session and all bars are returned in
// exchange time, daily bars stamped at the close.
type AlpacaFeed struct {
	client   barsClient
	calendar calendarFunc
	cfg      AlpacaConfig
	limiter  *util.RateLimiter
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// NewAlpacaFeed creates an AlpacaFeed configured with the given credentials.
func NewAlpacaFeed(cfg AlpacaConfig, log *slog.Logger) (*AlpacaFeed, error) {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}

	var cal calendarFunc
	if cfg.BaseURL != "" {
		cal = alpacaCalendar(alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}))
	}
	return newAlpacaFeed(marketdata.NewClient(opts), cal, cfg, log)
}

func newAlpacaFeed(client barsClient, cal calendarFunc, cfg AlpacaConfig, log *slog.Logger) (*AlpacaFeed, error) {
	loc, err := gather.ExchangeLocation()
	if err != nil {
		return nil, err
	}
	if cfg.Feed == "" {
		cfg.Feed = "sip"
	}
	if cfg.SessionOpen == "" {
		cfg.SessionOpen = series.DefaultSessionOpen
	}
	if cfg.SessionClose == "" {
		cfg.SessionClose = series.DefaultSessionClose
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = util.DefaultRetryPolicy
	}
	return &AlpacaFeed{
		client:   client,
		calendar: cal,
		cfg:      cfg,
		limiter:  util.NewRateLimiter(cfg.RateLimitPerMin, 10),
		loc:      loc,
		now:      time.Now,
		log:      util.OrDefault(log).With("feed", "alpaca"),
	}, nil
}

// Name returns "alpaca".
func (f *AlpacaFeed) Name() string { return "alpaca" }

// History fetches bars for symbol within r at interval iv.
func (f *AlpacaFeed) History(ctx context.Context, symbol string, r gather.DateRange, iv gather.Interval) ([]domain.Bar, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	tf, err := timeFrame(iv)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	r.End = f.clampEnd(r.End)

	var raw []marketdata.Bar
	err = util.Retry(ctx, f.cfg.Retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var ferr error
		raw, ferr = f.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     r.Start,
			End:       r.End,
			Feed:      marketdata.Feed(f.cfg.Feed),
		})
		if ferr != nil {
			f.log.Warn("GetBars failed", "symbol", symbol, "interval", iv, "err", ferr)
		}
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := f.convert(symbol, raw, iv)
	f.log.Info("fetched bars",
		"symbol", symbol,
		"interval", iv,
		"start", r.Start.Format("2006-01-02"),
		"end", r.End.Format("2006-01-02"),
		"raw", len(raw),
		"kept", len(bars),
	)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: alpaca returned no %s %s bars", domain.ErrNoData, symbol, iv)
	}
	return bars, nil
}

// LastPrice returns the close of the most recent minute bar for symbol.
func (f *AlpacaFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)

	var bar *marketdata.Bar
	err := util.Retry(ctx, f.cfg.Retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var ferr error
		bar, ferr = f.client.GetLatestBar(symbol, marketdata.GetLatestBarRequest{
			Feed: marketdata.Feed(f.cfg.Feed),
		})
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("GetLatestBar %s: %w", symbol, err)
	}
	if bar == nil {
		return 0, fmt.Errorf("%w: no latest bar for %s", domain.ErrNoData, symbol)
	}
	return bar.Close, nil
}

// convert maps Alpaca bars to domain bars in exchange time, dropping
// intraday bars that start outside the regular session, the close minute
// included.
func (f *AlpacaFeed) convert(symbol string, raw []marketdata.Bar, iv gather.Interval) []domain.Bar {
	bars := make([]domain.Bar, 0, len(raw))
	dropped := 0
	for _, ab := range raw {
		ts := ab.Timestamp.In(f.loc)
		if iv.Daily() {
			ts = gather.StampDaily(ts, f.loc)
		} else if !series.InSession(ts, f.cfg.SessionOpen, f.cfg.SessionClose) {
			dropped++
			continue
		}
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ts,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	if dropped > 0 {
		f.log.Debug("dropped extended-hours bars", "symbol", symbol, "count", dropped)
	}
	return bars
}

// clampEnd keeps end out of the future, using the market calendar when one
// is configured.
func (f *AlpacaFeed) clampEnd(end time.Time) time.Time {
	now := f.now().In(f.loc)
	limit := now.Add(-recentDataDelay)
	if !end.After(limit) {
		return end
	}
	if f.calendar != nil {
		day, err := LatestFinishedTradingDay(f.calendar, now)
		if err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, f.loc)
		}
		f.log.Warn("market calendar unavailable", "err", err)
	}
	return limit
}

// timeFrame maps an interval to the Alpaca time frame.
func timeFrame(iv gather.Interval) (marketdata.TimeFrame, error) {
	switch iv {
	case gather.Interval1m:
		return marketdata.OneMin, nil
	case gather.Interval5m:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case gather.Interval15m:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case gather.Interval1h:
		return marketdata.OneHour, nil
	case gather.Interval1d:
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("%w: unsupported interval %q", domain.ErrInput, iv)
}
