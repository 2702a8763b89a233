package gather

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"xmasladder/internal/domain"
)

// Compile-time interface check.
var _ Feed = (*CSVFeed)(nil)

// csvTimeLayouts are tried in order. A date-only row is a daily bar.
var csvTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CSVTimeLayout is the layout WriteBarsCSV emits.
const CSVTimeLayout = "2006-01-02 15:04:05"

// barRow is one CSV line: timestamp,open,high,low,close,volume.
type barRow struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
}

// CSVFeed serves bars from a local CSV file. The file's own resolution is
// used whatever interval is requested.
type CSVFeed struct {
	path string
	loc  *time.Location
}

// NewCSVFeed returns a feed reading path, interpreting timestamps in loc.
func NewCSVFeed(path string, loc *time.Location) *CSVFeed {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVFeed{path: path, loc: loc}
}

// Name returns "csv".
func (f *CSVFeed) Name() string { return "csv" }

// History reads the file and returns the rows inside r.
func (f *CSVFeed) History(_ context.Context, symbol string, r DateRange, _ Interval) ([]domain.Bar, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.path, err)
	}
	defer file.Close()

	bars, err := ReadBarsCSV(file, symbol, f.loc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	out := bars[:0]
	for _, b := range bars {
		if r.Contains(b.Timestamp) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s has no %s bars between %s and %s", domain.ErrNoData,
			f.path, symbol, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return out, nil
}

// ReadBarsCSV decodes every row of r, sorted by time. Malformed rows are
// reported as domain.ErrInput.
func ReadBarsCSV(r io.Reader, symbol string, loc *time.Location) ([]domain.Bar, error) {
	var rows []barRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding csv: %v", domain.ErrInput, err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, row := range rows {
		ts, err := parseCSVTime(row.Timestamp, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrInput, i+1, err)
		}
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// WriteBarsCSV encodes bars in the layout ReadBarsCSV accepts.
func WriteBarsCSV(w io.Writer, bars []domain.Bar) error {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Timestamp: b.Timestamp.Format(CSVTimeLayout),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return gocsv.Marshal(&rows, w)
}

func parseCSVTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		ts, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if len(s) == len("2006-01-02") {
			ts = StampDaily(ts, loc)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
