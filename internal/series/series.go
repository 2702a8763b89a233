// Package series provides a read-only, date-indexed view over an ordered
// sequence of OHLCV bars. Every component that needs "bars on a date" or
// "the bar nearest a time of day" goes through this package instead of
// filtering raw slices itself.
package series

import (
	"fmt"
	"sort"
	"time"

	"xmasladder/internal/domain"
)

// civilDate is a calendar date with no time-of-day or location.
type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{year: y, month: m, day: d}
}

// session is the half-open bar index range [start, end) of one calendar date.
type session struct {
	date  time.Time
	start int
	end   int
}

// Series is an immutable, strictly time-ordered bar sequence. It is safe for
// concurrent readers.
type Series struct {
	symbol   string
	bars     []domain.Bar
	sessions []session
	byDate   map[civilDate]int
}

// New validates bars and builds a Series over a private copy of them,
// expressed in the location of the first bar. It fails with domain.ErrInput
// when a timestamp is zero or the timestamps are not strictly increasing.
func New(bars []domain.Bar) (*Series, error) {
	s := &Series{
		bars:   make([]domain.Bar, len(bars)),
		byDate: make(map[civilDate]int),
	}
	copy(s.bars, bars)

	var loc *time.Location
	for i := range s.bars {
		b := &s.bars[i]
		if b.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: bar %d has no timestamp", domain.ErrInput, i)
		}
		// All bars share the first bar's location so each date is contiguous.
		if loc == nil {
			loc = b.Timestamp.Location()
		}
		b.Timestamp = b.Timestamp.In(loc)

		if i > 0 && !b.Timestamp.After(s.bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: bar %d at %s is not after %s",
				domain.ErrInput, i, b.Timestamp.Format(time.RFC3339), s.bars[i-1].Timestamp.Format(time.RFC3339))
		}
		if s.symbol == "" {
			s.symbol = b.Symbol
		}

		key := dateOf(b.Timestamp)
		idx, ok := s.byDate[key]
		if !ok {
			y, m, d := b.Timestamp.Date()
			s.sessions = append(s.sessions, session{
				date:  time.Date(y, m, d, 0, 0, 0, 0, b.Timestamp.Location()),
				start: i,
				end:   i + 1,
			})
			s.byDate[key] = len(s.sessions) - 1
			continue
		}
		s.sessions[idx].end = i + 1
	}

	return s, nil
}

// Symbol returns the symbol of the first bar, or "" for an empty series.
func (s *Series) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bars returns a copy of all bars.
func (s *Series) Bars() []domain.Bar {
	out := make([]domain.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Dates returns the unique calendar dates present, ascending. Each date is
// midnight in the location of that day's bars.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.date
	}
	return out
}

// DatesInYear returns the unique calendar dates within the given year.
func (s *Series) DatesInYear(year int) []time.Time {
	var out []time.Time
	for _, sess := range s.sessions {
		if sess.date.Year() == year {
			out = append(out, sess.date)
		}
	}
	return out
}

// HasDate reports whether any bar falls on the calendar date of d.
func (s *Series) HasDate(d time.Time) bool {
	_, ok := s.byDate[dateOf(d)]
	return ok
}

// BarsOn returns a copy of the bars on the calendar date of d, in time order.
func (s *Series) BarsOn(d time.Time) []domain.Bar {
	idx, ok := s.byDate[dateOf(d)]
	if !ok {
		return nil
	}
	sess := s.sessions[idx]
	out := make([]domain.Bar, sess.end-sess.start)
	copy(out, s.bars[sess.start:sess.end])
	return out
}

// LastBar returns the final bar on the calendar date of d.
func (s *Series) LastBar(d time.Time) (domain.Bar, error) {
	idx, ok := s.byDate[dateOf(d)]
	if !ok {
		return domain.Bar{}, fmt.Errorf("%w: no bars on %s", domain.ErrNoData, d.Format("2006-01-02"))
	}
	return s.bars[s.sessions[idx].end-1], nil
}

// BarAt returns the bar stamped exactly at ts.
func (s *Series) BarAt(ts time.Time) (domain.Bar, bool) {
	i := sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Timestamp.Before(ts)
	})
	if i < len(s.bars) && s.bars[i].Timestamp.Equal(ts) {
		return s.bars[i], true
	}
	return domain.Bar{}, false
}
