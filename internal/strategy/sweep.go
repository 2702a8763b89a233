package strategy

import (
	"context"
	"fmt"
)

// Sweep runs one backtest per year of base, one after another, and returns
// the reports in the order of years. An explicit base.Range moves with the
// year. The first failure stops the sweep.
func (b *Backtester) Sweep(ctx context.Context, base Request, years []int) ([]*Report, error) {
	reports := make([]*Report, 0, len(years))
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req := base
		req.Params.Year = year
		req.Range = base.Range.ShiftYears(year - base.Params.Year)

		rep, err := b.Run(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
