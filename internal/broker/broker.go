// Package broker defines the Broker interface and the simulated broker used
// to turn intended orders into realistic fills during a backtest.
package broker

import (
	"context"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
)

// Broker turns intended orders into fills against market data.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Execute fills what it can of orders. Orders that cannot be filled are
	// dropped rather than reported as errors. The result is sorted by fill
	// time and is never nil.
	Execute(ctx context.Context, orders []domain.Order, s *series.Series) []domain.Fill
}
