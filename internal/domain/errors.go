package domain

import "errors"

var (
	// ErrInput marks malformed input shape or configuration. Fatal, never retried.
	ErrInput = errors.New("invalid input")

	// ErrNoData marks a requested date or year with no market data.
	ErrNoData = errors.New("no market data")
)
