// Package domain defines the core value types shared by every stage of the
// backtest pipeline: bars, intended orders, executed fills, and the error
// taxonomy.
package domain

import "time"

// Bar is one OHLCV data point for a fixed time interval (daily or intraday).
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order is an intended order produced by a strategy. Value is the signed
// cash impact: -Qty*Price for buys, +Qty*Price for sells.
type Order struct {
	Symbol string
	Time   time.Time
	Side   OrderSide
	Qty    int64
	Price  float64
	Value  float64
}

// NewOrder builds an Order and fills in its signed value.
func NewOrder(symbol string, ts time.Time, side OrderSide, qty int64, price float64) Order {
	return Order{
		Symbol: symbol,
		Time:   ts,
		Side:   side,
		Qty:    qty,
		Price:  price,
		Value:  SignedValue(side, qty, price),
	}
}

// SignedValue returns the cash impact of trading qty at price on the given side.
func SignedValue(side OrderSide, qty int64, price float64) float64 {
	notional := float64(qty) * price
	if side == OrderSideBuy {
		return -notional
	}
	return notional
}

// Fill is an order as it was actually executed. Time and Price may differ
// from the intention recorded in OriginalTime and the strategy's price.
type Fill struct {
	Order
	OriginalTime time.Time
	SlippageBps  float64
}
