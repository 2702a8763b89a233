package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// calendarFunc returns the trading dates ("2006-01-02") in [start, end].
type calendarFunc func(start, end time.Time) ([]string, error)

func alpacaCalendar(client *alpaca.Client) calendarFunc {
	return func(start, end time.Time) ([]string, error) {
		days, err := client.GetCalendar(alpaca.GetCalendarRequest{
			Start: start,
			End:   end,
		})
		if err != nil {
			return nil, fmt.Errorf("GetCalendar: %w", err)
		}
		dates := make([]string, len(days))
		for i, d := range days {
			dates[i] = d.Date
		}
		return dates, nil
	}
}

// LatestFinishedTradingDay returns the most recent trading day whose regular
// session has ended by now (16:15 ET, allowing bars to settle). The result is
// midnight of that date in now's location.
func LatestFinishedTradingDay(cal calendarFunc, now time.Time) (time.Time, error) {
	dates, err := cal(now.AddDate(0, 0, -7), now)
	if err != nil {
		return time.Time{}, err
	}
	if len(dates) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	loc := now.Location()
	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 16, 15, 0, 0, loc)

	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] == today {
			if now.After(cutoff) {
				return time.ParseInLocation("2006-01-02", dates[i], loc)
			}
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", dates[i], loc)
		if err != nil {
			continue
		}
		if day.Before(now) {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
