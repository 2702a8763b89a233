package series

import (
	"errors"
	"testing"
	"time"

	"xmasladder/internal/domain"
)

func at(day int, hour, minute int) time.Time {
	return time.Date(2023, 6, day, hour, minute, 0, 0, time.UTC)
}

func bar(ts time.Time, close float64) domain.Bar {
	return domain.Bar{Symbol: "TEST", Timestamp: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000}
}

// intraday returns bars at 09:30, 10:00, 11:00 and 16:00 on June 15 plus a
// single daily bar on June 16.
func intraday(t *testing.T) *Series {
	t.Helper()
	s, err := New([]domain.Bar{
		bar(at(15, 9, 30), 100),
		bar(at(15, 10, 0), 101),
		bar(at(15, 11, 0), 102),
		bar(at(15, 16, 0), 103),
		bar(at(16, 16, 0), 104),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsNonChronological(t *testing.T) {
	_, err := New([]domain.Bar{bar(at(15, 10, 0), 1), bar(at(15, 9, 30), 1)})
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("New out-of-order error = %v, want ErrInput", err)
	}

	_, err = New([]domain.Bar{bar(at(15, 10, 0), 1), bar(at(15, 10, 0), 1)})
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("New duplicate timestamp error = %v, want ErrInput", err)
	}

	_, err = New([]domain.Bar{{Symbol: "TEST"}})
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("New zero timestamp error = %v, want ErrInput", err)
	}
}

func TestNewDoesNotAlias(t *testing.T) {
	bars := []domain.Bar{bar(at(15, 9, 30), 100)}
	s, err := New(bars)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bars[0].Close = 999

	got := s.BarsOn(at(15, 0, 0))
	if got[0].Close != 100 {
		t.Errorf("series bar Close = %v after caller mutation, want 100", got[0].Close)
	}
	got[0].Close = 555
	if again := s.BarsOn(at(15, 0, 0)); again[0].Close != 100 {
		t.Errorf("BarsOn returned aliased slice, Close = %v", again[0].Close)
	}
}

func TestDates(t *testing.T) {
	s := intraday(t)

	dates := s.Dates()
	if len(dates) != 2 {
		t.Fatalf("Dates() returned %d dates, want 2", len(dates))
	}
	if !dates[0].Equal(at(15, 0, 0)) || !dates[1].Equal(at(16, 0, 0)) {
		t.Errorf("Dates() = %v, want June 15 and 16 at midnight", dates)
	}
	if got := len(s.DatesInYear(2022)); got != 0 {
		t.Errorf("DatesInYear(2022) returned %d dates, want 0", got)
	}
	if !s.HasDate(at(16, 12, 0)) {
		t.Error("HasDate(June 16) = false, want true")
	}
	if s.Symbol() != "TEST" {
		t.Errorf("Symbol() = %q, want %q", s.Symbol(), "TEST")
	}
}

func TestLocateFallback(t *testing.T) {
	s := intraday(t)
	day := at(15, 0, 0)

	tests := []struct {
		clock string
		want  time.Time
	}{
		{"10:00", at(15, 10, 0)},
		{"10:30", at(15, 11, 0)},
		{"17:00", at(15, 16, 0)},
		{"09:00", at(15, 9, 30)},
	}
	for _, tt := range tests {
		got, err := s.Locate(day, tt.clock)
		if err != nil {
			t.Fatalf("Locate(%s): %v", tt.clock, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Locate(%s) = %s, want %s", tt.clock, got.Format("15:04"), tt.want.Format("15:04"))
		}
	}
}

func TestLocateDailyBar(t *testing.T) {
	s := intraday(t)

	got, err := s.Locate(at(16, 0, 0), "10:30")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !got.Equal(at(16, 16, 0)) {
		t.Errorf("Locate on single-bar day = %s, want the only bar", got)
	}
}

func TestLocateNoData(t *testing.T) {
	s := intraday(t)

	_, err := s.Locate(at(1, 0, 0), "10:30")
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("Locate on missing date error = %v, want ErrNoData", err)
	}

	_, err = s.Locate(at(15, 0, 0), "1030")
	if !errors.Is(err, domain.ErrInput) {
		t.Errorf("Locate with bad clock error = %v, want ErrInput", err)
	}
}

func TestSessionBounds(t *testing.T) {
	s := intraday(t)

	open, closeTS, err := s.SessionBounds(at(15, 0, 0))
	if err != nil {
		t.Fatalf("SessionBounds: %v", err)
	}
	if !open.Equal(at(15, 9, 30)) || !closeTS.Equal(at(15, 16, 0)) {
		t.Errorf("SessionBounds = (%s, %s), want (09:30, 16:00)", open.Format("15:04"), closeTS.Format("15:04"))
	}

	if _, _, err := s.SessionBounds(at(20, 0, 0)); !errors.Is(err, domain.ErrNoData) {
		t.Errorf("SessionBounds on missing date error = %v, want ErrNoData", err)
	}
}

func TestWithinHours(t *testing.T) {
	tests := []struct {
		ts   time.Time
		want bool
	}{
		{at(15, 9, 29), false},
		{at(15, 9, 30), true},
		{at(15, 12, 0), true},
		{at(15, 16, 0), true},
		{at(15, 16, 1), false},
		{at(15, 0, 0), false},
	}
	for _, tt := range tests {
		if got := WithinHours(tt.ts, DefaultSessionOpen, DefaultSessionClose); got != tt.want {
			t.Errorf("WithinHours(%s) = %v, want %v", tt.ts.Format("15:04"), got, tt.want)
		}
	}

	if !WithinHours(at(15, 8, 0), "08:00", "09:00") {
		t.Error("WithinHours with custom bounds = false, want true")
	}
}

func TestInSession(t *testing.T) {
	for _, tt := range []struct {
		ts   time.Time
		want bool
	}{
		{at(15, 9, 29), false},
		{at(15, 9, 30), true},
		{at(15, 15, 59), true},
		{at(15, 16, 0), false},
	} {
		if got := InSession(tt.ts, DefaultSessionOpen, DefaultSessionClose); got != tt.want {
			t.Errorf("InSession(%s) = %v, want %v", tt.ts.Format("15:04"), got, tt.want)
		}
	}
}

func TestBarAtAndLastBar(t *testing.T) {
	s := intraday(t)

	b, ok := s.BarAt(at(15, 11, 0))
	if !ok || b.Close != 102 {
		t.Errorf("BarAt(11:00) = (%v, %v), want Close 102", b.Close, ok)
	}
	if _, ok := s.BarAt(at(15, 10, 30)); ok {
		t.Error("BarAt(10:30) found a bar, want none")
	}

	last, err := s.LastBar(at(15, 0, 0))
	if err != nil {
		t.Fatalf("LastBar: %v", err)
	}
	if last.Close != 103 {
		t.Errorf("LastBar Close = %v, want 103", last.Close)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("10:30")
	if err != nil || h != 10 || m != 30 {
		t.Errorf("ParseClock(10:30) = (%d, %d, %v), want (10, 30, nil)", h, m, err)
	}
	for _, bad := range []string{"", "9:30", "25:00", "ab:cd"} {
		if _, _, err := ParseClock(bad); !errors.Is(err, domain.ErrInput) {
			t.Errorf("ParseClock(%q) error = %v, want ErrInput", bad, err)
		}
	}
}
