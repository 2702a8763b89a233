package series

import (
	"fmt"
	"time"

	"xmasladder/internal/domain"
)

// Regular US equity session bounds in exchange wall-clock time.
const (
	DefaultSessionOpen  = "09:30"
	DefaultSessionClose = "16:00"
)

// ParseClock parses an "HH:MM" time of day.
func ParseClock(clock string) (hour, minute int, err error) {
	if len(clock) != len("15:04") {
		return 0, 0, fmt.Errorf("%w: time of day %q is not HH:MM", domain.ErrInput, clock)
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time of day %q: %v", domain.ErrInput, clock, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Locate picks the bar used to price an order on the calendar date of
// target. A date with a single bar (daily data) returns that bar whatever
// the clock. Otherwise it returns the first bar at or after clock, falling
// back to the last bar of the day when the clock is past the final bar.
func (s *Series) Locate(target time.Time, clock string) (time.Time, error) {
	bars := s.barsOn(target)
	if len(bars) == 0 {
		return time.Time{}, fmt.Errorf("%w: no bars on %s", domain.ErrNoData, target.Format("2006-01-02"))
	}
	if len(bars) == 1 {
		return bars[0].Timestamp, nil
	}

	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	first := bars[0].Timestamp
	want := time.Date(first.Year(), first.Month(), first.Day(), hour, minute, 0, 0, first.Location())
	for _, b := range bars {
		if !b.Timestamp.Before(want) {
			return b.Timestamp, nil
		}
	}
	return bars[len(bars)-1].Timestamp, nil
}

// SessionBounds returns the first and last bar timestamps on the calendar
// date of d, used as proxies for market open and close.
func (s *Series) SessionBounds(d time.Time) (openTS, closeTS time.Time, err error) {
	bars := s.barsOn(d)
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: no market data for %s", domain.ErrNoData, d.Format("2006-01-02"))
	}
	return bars[0].Timestamp, bars[len(bars)-1].Timestamp, nil
}

// WithinHours reports whether the wall-clock time of ts lies in the
// inclusive range [sessionOpen, sessionClose]. Bounds are "HH:MM" strings
// compared lexically, so they must be zero padded.
func WithinHours(ts time.Time, sessionOpen, sessionClose string) bool {
	hm := ts.Format("15:04")
	return sessionOpen <= hm && hm <= sessionClose
}

// InSession reports whether the bar starting at ts trades inside the
// half-open session [sessionOpen, sessionClose). A minute bar stamped at the
// close covers the first after-hours minute.
func InSession(ts time.Time, sessionOpen, sessionClose string) bool {
	hm := ts.Format("15:04")
	return sessionOpen <= hm && hm < sessionClose
}

// barsOn is BarsOn without the defensive copy, for read-only use inside the package.
func (s *Series) barsOn(d time.Time) []domain.Bar {
	idx, ok := s.byDate[dateOf(d)]
	if !ok {
		return nil
	}
	sess := s.sessions[idx]
	return s.bars[sess.start:sess.end]
}
