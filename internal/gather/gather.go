// Package gather defines the market-data feeds that supply price bars to a
// backtest, plus the CSV and store-backed implementations.
package gather

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // ET must resolve on hosts without a zoneinfo database.

	"xmasladder/internal/domain"
)

// Interval is a bar resolution.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

// ParseInterval validates s as one of the supported intervals.
func ParseInterval(s string) (Interval, error) {
	switch iv := Interval(s); iv {
	case Interval1m, Interval5m, Interval15m, Interval1h, Interval1d:
		return iv, nil
	}
	return "", fmt.Errorf("%w: unsupported interval %q", domain.ErrInput, s)
}

// Daily reports whether iv is one bar per session.
func (iv Interval) Daily() bool { return iv == Interval1d }

// DailyBarClock is the exchange time daily bars are stamped at, so a daily
// bar reads as the session close.
const DailyBarClock = 16

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Validate rejects zero or inverted ranges.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: date range needs a start and an end", domain.ErrInput)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: range end %s before start %s",
			domain.ErrInput, r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return nil
}

// ShiftYears moves both bounds by n years. The zero range stays zero.
func (r DateRange) ShiftYears(n int) DateRange {
	if r.Start.IsZero() && r.End.IsZero() {
		return r
	}
	return DateRange{Start: r.Start.AddDate(n, 0, 0), End: r.End.AddDate(n, 0, 0)}
}

// DefaultRange is the fetch window around a Christmas of year: Nov 15
// through the end of Jan 15 of the following year, in loc.
func DefaultRange(year int, loc *time.Location) DateRange {
	return DateRange{
		Start: time.Date(year, time.November, 15, 0, 0, 0, 0, loc),
		End:   time.Date(year+1, time.January, 15, 23, 59, 59, 0, loc),
	}
}

// Feed supplies historical bars for one symbol.
type Feed interface {
	// Name returns the feed identifier.
	Name() string

	// History returns bars within r sorted by time, in exchange time. An
	// empty result is reported as domain.ErrNoData.
	History(ctx context.Context, symbol string, r DateRange, iv Interval) ([]domain.Bar, error)
}

// StampDaily moves a daily bar's timestamp to the session close of its own
// calendar date in loc.
func StampDaily(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, DailyBarClock, 0, 0, 0, loc)
}

// ExchangeLocation returns the US equity exchange time zone.
func ExchangeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	return loc, nil
}
