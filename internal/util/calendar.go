package util

import (
	"fmt"
	"time"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
)

// TradingDaysAround returns up to before trading dates strictly earlier than
// anchor and up to after trading dates strictly later than it, drawn only
// from dates the series actually contains within the anchor's calendar year.
// Fewer dates than requested is not an error. It fails with
// domain.ErrInput on a nil series and domain.ErrNoData when the year is
// absent.
func TradingDaysAround(s *series.Series, anchor time.Time, before, after int) (pre, post []time.Time, err error) {
	if s == nil {
		return nil, nil, fmt.Errorf("%w: nil series", domain.ErrInput)
	}

	year := anchor.Year()
	dates := s.DatesInYear(year)
	if len(dates) == 0 {
		return nil, nil, fmt.Errorf("%w: no data for year %d", domain.ErrNoData, year)
	}

	anchorDay := truncateDay(anchor)
	var earlier, later []time.Time
	for _, d := range dates {
		switch dd := truncateDay(d); {
		case dd.Before(anchorDay):
			earlier = append(earlier, d)
		case dd.After(anchorDay):
			later = append(later, d)
		}
	}
	return lastN(earlier, before), firstN(later, after), nil
}

// FilterBusinessDays drops Saturdays and Sundays. Exchange holidays are not
// modelled; the series itself is the source of truth for trading dates.
func FilterBusinessDays(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

// truncateDay maps t to midnight UTC of its own calendar date so dates from
// different locations compare by calendar day alone.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lastN(dates []time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	if len(dates) > n {
		return dates[len(dates)-n:]
	}
	return dates
}

func firstN(dates []time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	if len(dates) > n {
		return dates[:n]
	}
	return dates
}
