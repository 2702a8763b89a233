// Package xmasladder is a Go client for the xmas-server Backtester API.
package xmasladder

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const runMethod = "/xmasladder.v1.Backtester/Run"

// Client calls a backtest server over gRPC.
type Client struct {
	conn  grpc.ClientConnInterface
	close func() error
}

// Dial connects to target. Without options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	return &Client{conn: conn, close: conn.Close}, nil
}

// NewClient wraps an existing connection, which the caller keeps ownership of.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// RunRequest selects the backtest. Zero fields take the server's defaults.
type RunRequest struct {
	Symbol            string
	Year              int
	BuyDays           int
	SellDays          int
	SellExecutionTime string
	InitialCash       float64
	Interval          string
	Start             string // YYYY-MM-DD
	End               string // YYYY-MM-DD

	SlippageBps       *float64
	MinLiquidityCheck *bool
}

func (r RunRequest) fields() map[string]any {
	m := make(map[string]any)
	if r.Symbol != "" {
		m["symbol"] = r.Symbol
	}
	if r.Year != 0 {
		m["year"] = r.Year
	}
	if r.BuyDays != 0 {
		m["buy_days"] = r.BuyDays
	}
	if r.SellDays != 0 {
		m["sell_days"] = r.SellDays
	}
	if r.SellExecutionTime != "" {
		m["sell_execution_time"] = r.SellExecutionTime
	}
	if r.InitialCash != 0 {
		m["initial_cash"] = r.InitialCash
	}
	if r.Interval != "" {
		m["interval"] = r.Interval
	}
	if r.Start != "" {
		m["start"] = r.Start
	}
	if r.End != "" {
		m["end"] = r.End
	}
	if r.SlippageBps != nil {
		m["slippage_bps"] = *r.SlippageBps
	}
	if r.MinLiquidityCheck != nil {
		m["min_liquidity_check"] = *r.MinLiquidityCheck
	}
	return m
}

// Fill is one executed order.
type Fill struct {
	Symbol       string
	Time         time.Time
	OriginalTime time.Time
	Side         string
	Qty          int64
	Price        float64
	Value        float64
	SlippageBps  float64
}

// RunResult is the outcome of a backtest.
type RunResult struct {
	RunID              string
	Symbol             string
	Year               int
	InitialCash        float64
	EndingCash         float64
	RemainingShares    int64
	RemainingValueMark float64
	TotalValue         float64
	PnL                float64
	ReturnPct          float64
	Intended           int
	Dropped            int
	Executed           []Fill
	Warnings           []string

	// Summary holds the performance metrics by name, e.g. "sharpe".
	Summary map[string]float64
}

// Run executes one backtest on the server. Errors carry the server's gRPC
// status; use status.Code to tell bad input from missing data.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	in, err := structpb.NewStruct(req.fields())
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, runMethod, in, out); err != nil {
		return nil, err
	}
	return decodeResult(out)
}

func decodeResult(out *structpb.Struct) (*RunResult, error) {
	f := out.GetFields()
	num := func(name string) float64 { return f[name].GetNumberValue() }

	res := &RunResult{
		RunID:              f["run_id"].GetStringValue(),
		Symbol:             f["symbol"].GetStringValue(),
		Year:               int(num("year")),
		InitialCash:        num("initial_cash"),
		EndingCash:         num("ending_cash"),
		RemainingShares:    int64(num("remaining_shares")),
		RemainingValueMark: num("remaining_value_mark"),
		TotalValue:         num("total_value"),
		PnL:                num("pnl"),
		ReturnPct:          num("return_pct"),
		Intended:           int(num("intended")),
		Dropped:            int(num("dropped")),
		Summary:            make(map[string]float64),
	}

	for _, v := range f["executed"].GetListValue().GetValues() {
		row := v.GetStructValue().GetFields()
		fill := Fill{
			Symbol:      row["symbol"].GetStringValue(),
			Side:        row["side"].GetStringValue(),
			Qty:         int64(row["qty"].GetNumberValue()),
			Price:       row["price"].GetNumberValue(),
			Value:       row["value"].GetNumberValue(),
			SlippageBps: row["slippage_bps"].GetNumberValue(),
		}
		var err error
		if fill.Time, err = time.Parse(time.RFC3339, row["time"].GetStringValue()); err != nil {
			return nil, fmt.Errorf("decoding fill time: %w", err)
		}
		if fill.OriginalTime, err = time.Parse(time.RFC3339, row["original_time"].GetStringValue()); err != nil {
			return nil, fmt.Errorf("decoding fill original time: %w", err)
		}
		res.Executed = append(res.Executed, fill)
	}
	for _, v := range f["warnings"].GetListValue().GetValues() {
		res.Warnings = append(res.Warnings, v.GetStringValue())
	}
	for k, v := range f["summary"].GetStructValue().GetFields() {
		res.Summary[k] = v.GetNumberValue()
	}
	return res, nil
}
