package market

import (
	"context"
	"math"
)

// HeuristicPredictor stands in for an externally trained classifier. It maps
// the indicator snapshot through a logistic curve so its output lands in the
// same [0, 1] probability space a real model would produce. Confidence grows
// with the strength of the underlying signals.
type HeuristicPredictor struct {
	data DataProvider
}

// NewHeuristicPredictor creates a predictor over a data provider
func NewHeuristicPredictor(data DataProvider) *HeuristicPredictor {
	return &HeuristicPredictor{data: data}
}

// PredictBuyProbability derives a buy probability for a symbol. Returns
// ErrNotTrained when no snapshot is available so the scorer substitutes its
// neutral probability.
func (p *HeuristicPredictor) PredictBuyProbability(ctx context.Context, symbol string) (*Prediction, error) {
	snap, err := p.data.GetIndicatorSnapshot(ctx, symbol)
	if err != nil {
		return nil, ErrNotTrained
	}

	// Oversold RSI and positive momentum both argue for a buy; a MACD line
	// above its signal adds a fixed nudge
	x := snap.Momentum*1.2 + (50-snap.RSI)/50*0.8
	if snap.MACD > snap.MACDSignal {
		x += 0.4
	} else if snap.MACD < snap.MACDSignal {
		x -= 0.4
	}

	prob := 1 / (1 + math.Exp(-x))
	confidence := math.Min(1, math.Abs(x)/2)

	return &Prediction{
		BuyProbability: prob,
		Confidence:     confidence,
	}, nil
}
