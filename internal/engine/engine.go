// Package engine turns executed orders into the final account state of a
// backtest and provides the risk checks applied around it.
package engine

import (
	"fmt"

	"xmasladder/internal/domain"
)

// Result is the account state after replaying executed orders.
type Result struct {
	InitialCash        float64
	EndingCash         float64
	RemainingShares    int64
	RemainingValueMark float64 // RemainingShares at the last fill's price
	TotalValue         float64
	PnL                float64
	ReturnPct          float64 // PnL / InitialCash, 0 when InitialCash is 0
	Orders             []domain.Fill
}

// Engine settles executed orders against a cash balance.
type Engine struct {
	risk *RiskManager
}

// NewEngine creates an Engine. A nil risk manager uses DefaultRiskManager.
func NewEngine(risk *RiskManager) *Engine {
	if risk == nil {
		risk = DefaultRiskManager()
	}
	return &Engine{risk: risk}
}

// Risk returns the engine's risk manager.
func (e *Engine) Risk() *RiskManager { return e.risk }

// Run settles fills, which must be sorted by time, starting from
// initialCash. Empty input yields the zero state. Input that sells more
// shares than were held is rejected with domain.ErrInput.
func (e *Engine) Run(fills []domain.Fill, initialCash float64) (*Result, error) {
	res := &Result{
		InitialCash: initialCash,
		EndingCash:  initialCash,
		TotalValue:  initialCash,
		Orders:      []domain.Fill{},
	}
	if len(fills) == 0 {
		return res, nil
	}

	if err := e.risk.CheckPositions(fills); err != nil {
		return nil, err
	}

	var cashFlow float64
	for _, f := range fills {
		switch f.Side {
		case domain.OrderSideBuy:
			res.RemainingShares += f.Qty
		case domain.OrderSideSell:
			res.RemainingShares -= f.Qty
		default:
			return nil, fmt.Errorf("%w: fill at %s has side %q", domain.ErrInput, f.Time, f.Side)
		}
		cashFlow += f.Value
	}

	res.Orders = append(res.Orders, fills...)
	res.EndingCash = initialCash + cashFlow
	if res.RemainingShares > 0 {
		res.RemainingValueMark = float64(res.RemainingShares) * fills[len(fills)-1].Price
	}
	res.TotalValue = res.EndingCash + res.RemainingValueMark
	res.PnL = res.TotalValue - initialCash
	if initialCash > 0 {
		res.ReturnPct = res.PnL / initialCash
	}
	return res, nil
}
