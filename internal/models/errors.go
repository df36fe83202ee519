package models

import "errors"

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidCandle     = errors.New("invalid candle (high < low)")
	ErrInvalidVolume     = errors.New("invalid volume")
	ErrInvalidDecisionID = errors.New("invalid decision ID")
	ErrInvalidStrength   = errors.New("strength out of [0,1]")
	ErrMissingRisk       = errors.New("accepted decision without risk levels")
	ErrUnexpectedRisk    = errors.New("rejected decision with risk levels")

	// ErrInsufficientData means the OHLCV series is shorter than the
	// longest indicator warm-up window. The symbol is skipped for the
	// cycle, not surfaced as a failure.
	ErrInsufficientData = errors.New("insufficient data for indicator warm-up")

	// ErrInvalidRisk means ATR or entry price was non-positive; the
	// symbol is rejected, not retried.
	ErrInvalidRisk = errors.New("invalid risk parameters")

	// ErrFetchTimeout and ErrAPIRequest classify market-data fetch
	// failures. Both skip the symbol for the current cycle only.
	ErrFetchTimeout = errors.New("market data fetch timed out")
	ErrAPIRequest   = errors.New("market data request failed")
)
