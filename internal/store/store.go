// Package store defines the market-data cache interface and its Parquet and
// SQLite implementations.
package store

import (
	"context"
	"time"

	"xmasladder/internal/domain"
)

// BarStore persists and retrieves OHLCV bars keyed by symbol, timeframe
// ("1m", "1d", ...) and timestamp. Timestamps come back in UTC; callers
// convert to exchange time.
type BarStore interface {
	// WriteBars persists a batch of bars, replacing any with the same
	// symbol and timestamp.
	WriteBars(ctx context.Context, timeframe string, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], sorted by time.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for timeframe.
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}
