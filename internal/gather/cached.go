package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"xmasladder/internal/domain"
	"xmasladder/internal/store"
	"xmasladder/internal/util"
)

// Compile-time interface check.
var _ Feed = (*CachedFeed)(nil)

// coverageSlack is how far the cached bars may start after, or end before,
// the requested range and still count as a hit. Weekends and holidays mean
// the first and last trading days rarely sit on the range bounds.
const coverageSlack = 5 * 24 * time.Hour

// CachedFeed serves bars from a BarStore and falls through to an upstream
// feed on a miss, writing what it fetched back into the store.
type CachedFeed struct {
	upstream Feed
	store    store.BarStore
	loc      *time.Location
	log      *slog.Logger
}

// NewCachedFeed wraps upstream with s. Cached bars are returned in loc.
func NewCachedFeed(upstream Feed, s store.BarStore, loc *time.Location, log *slog.Logger) *CachedFeed {
	if loc == nil {
		loc = time.UTC
	}
	return &CachedFeed{
		upstream: upstream,
		store:    s,
		loc:      loc,
		log:      util.OrDefault(log).With("feed", "cached", "upstream", upstream.Name()),
	}
}

// Name returns "cached".
func (f *CachedFeed) Name() string { return "cached" }

// History returns cached bars when they cover r, otherwise fetches from
// upstream. A failed write-back is logged, not returned.
func (f *CachedFeed) History(ctx context.Context, symbol string, r DateRange, iv Interval) ([]domain.Bar, error) {
	cached, err := f.store.ReadBars(ctx, symbol, string(iv), r.Start, r.End)
	if err != nil {
		f.log.Warn("cache read failed", "symbol", symbol, "err", err)
	} else if covers(cached, r) {
		f.log.Debug("cache hit", "symbol", symbol, "interval", iv, "bars", len(cached))
		for i := range cached {
			cached[i].Timestamp = cached[i].Timestamp.In(f.loc)
		}
		return cached, nil
	}

	bars, err := f.upstream.History(ctx, symbol, r, iv)
	if err != nil {
		return nil, fmt.Errorf("%s history: %w", f.upstream.Name(), err)
	}
	if err := f.store.WriteBars(ctx, string(iv), bars); err != nil {
		f.log.Warn("cache write failed", "symbol", symbol, "err", err)
	} else {
		f.log.Debug("cached bars", "symbol", symbol, "interval", iv, "bars", len(bars))
	}
	return bars, nil
}

func covers(bars []domain.Bar, r DateRange) bool {
	if len(bars) == 0 {
		return false
	}
	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	return !first.After(r.Start.Add(coverageSlack)) && !last.Before(r.End.Add(-coverageSlack))
}
