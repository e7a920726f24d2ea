package market

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by data providers when a snapshot cannot be
// produced for a symbol this cycle. The engine treats it as "skip the symbol",
// never as a fatal condition.
var ErrUnavailable = errors.New("market data unavailable")

// ErrNotTrained is returned by a Predictor that has no usable model yet.
// Callers substitute a neutral probability instead of failing the ensemble.
var ErrNotTrained = errors.New("predictor not trained")

// DataProvider supplies precomputed indicator snapshots. Indicator
// computation itself (candles, RSI, MACD, ATR) lives behind this boundary.
type DataProvider interface {
	// GetIndicatorSnapshot returns the current feature snapshot for a symbol,
	// or ErrUnavailable.
	GetIndicatorSnapshot(ctx context.Context, symbol string) (*IndicatorSnapshot, error)

	// GetTimeframeSnapshots returns one snapshot per analysis timeframe
	// (short, medium, long), or ErrUnavailable.
	GetTimeframeSnapshots(ctx context.Context, symbol string) ([]TimeframeSnapshot, error)
}

// Predictor wraps the external probabilistic classifier used as one signal
// input. Training is out of scope; the engine only consumes predictions.
type Predictor interface {
	// PredictBuyProbability returns the classifier output for a symbol, or
	// ErrNotTrained when no model is available.
	PredictBuyProbability(ctx context.Context, symbol string) (*Prediction, error)
}

// ExecutionProvider places orders and reports account balance. A failed call
// leaves engine state untouched; the same condition is re-evaluated on the
// next cycle.
type ExecutionProvider interface {
	// ExecuteBuy places a market buy for the given notional value and returns
	// the fill.
	ExecuteBuy(ctx context.Context, symbol string, notional float64) (*Fill, error)

	// ExecuteSell places a market sell for the given base quantity and
	// returns the fill.
	ExecuteSell(ctx context.Context, symbol string, quantity float64) (*Fill, error)

	// GetAccountBalance returns the available quote-currency balance.
	GetAccountBalance(ctx context.Context) (float64, error)
}
