package signal

import (
	"context"
	"math"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/market"
)

// technicalMaxScore is the raw ceiling of the additive rule table
const technicalMaxScore = 12.0

// neutralProbability substitutes for the classifier when it fails or is untrained
const neutralProbability = 0.5

// Breakdown exposes the sub-scores behind a final entry score
type Breakdown struct {
	Technical    float64    `json:"technical"`     // Normalized [0, 1]
	TechnicalRaw float64    `json:"technical_raw"` // 0-12 rule-table total
	MTF          float64    `json:"mtf"`           // Normalized [0, 1]
	ML           float64    `json:"ml"`            // Classifier probability [0, 1]
	MLNeutral    bool       `json:"ml_neutral"`    // True when the neutral substitute was used
	MTFDetail    *MTFResult `json:"mtf_detail"`
}

// Scorer combines the technical rule table, multi-timeframe consensus, and
// the external classifier into one weighted entry score. It holds no mutable
// state: identical inputs produce identical scores.
type Scorer struct {
	cfg       *config.SignalConfig
	data      market.DataProvider
	predictor market.Predictor
}

// NewScorer creates a new scoring engine
func NewScorer(cfg *config.SignalConfig, data market.DataProvider, predictor market.Predictor) *Scorer {
	return &Scorer{
		cfg:       cfg,
		data:      data,
		predictor: predictor,
	}
}

// Score computes the weighted entry score (0-10) for a symbol from its
// indicator snapshot. Multi-timeframe data and the classifier are consulted
// through their providers; classifier failures degrade to a neutral
// probability rather than failing the ensemble. Missing multi-timeframe data
// returns market.ErrUnavailable so the caller skips the symbol this cycle.
func (s *Scorer) Score(ctx context.Context, symbol string, snap *market.IndicatorSnapshot) (float64, *Breakdown, error) {
	if snap == nil {
		return 0, nil, market.ErrUnavailable
	}

	tfSnaps, err := s.data.GetTimeframeSnapshots(ctx, symbol)
	if err != nil {
		return 0, nil, market.ErrUnavailable
	}

	breakdown := &Breakdown{
		TechnicalRaw: s.technicalScore(snap),
		MTFDetail:    analyzeTimeframes(s.cfg, tfSnaps),
	}
	breakdown.Technical = breakdown.TechnicalRaw / technicalMaxScore
	breakdown.MTF = breakdown.MTFDetail.FinalScore / 10.0
	breakdown.ML, breakdown.MLNeutral = s.mlScore(ctx, symbol)

	final := 10.0 * (breakdown.Technical*s.cfg.TechnicalWeight +
		breakdown.MTF*s.cfg.MTFWeight +
		breakdown.ML*s.cfg.MLWeight)

	return final, breakdown, nil
}

// MultiTimeframe exposes the consensus analysis on its own, for callers that
// only need trend agreement
func (s *Scorer) MultiTimeframe(ctx context.Context, symbol string) (*MTFResult, error) {
	tfSnaps, err := s.data.GetTimeframeSnapshots(ctx, symbol)
	if err != nil {
		return nil, market.ErrUnavailable
	}
	return analyzeTimeframes(s.cfg, tfSnaps), nil
}

// technicalScore evaluates the additive 0-12 rule table over the snapshot
func (s *Scorer) technicalScore(snap *market.IndicatorSnapshot) float64 {
	cfg := s.cfg
	score := 0.0

	// Moving-average alignment (0-3)
	if snap.ShortMA > snap.LongMA {
		score += 2.0
	}
	if snap.Price > snap.ShortMA {
		score += 1.0
	}

	// RSI banding (0-3): the pullback band is rewarded highest, mild momentum
	// gets partial credit, overbought is penalized
	switch {
	case snap.RSI >= cfg.RSIRewardLow && snap.RSI <= cfg.RSIRewardHigh:
		score += 3.0
	case snap.RSI > cfg.RSIRewardHigh && snap.RSI < cfg.RSIOverbought-10:
		score += 1.5
	case snap.RSI >= cfg.RSIOverbought:
		score -= 1.0
	}

	// MACD vs signal (0-3): bullish sign plus a proximity bonus for fresh
	// crossovers
	if snap.MACD > snap.MACDSignal {
		score += 2.0
		if snap.Price > 0 && math.Abs(snap.MACD-snap.MACDSignal) <= cfg.MACDProximityBand*snap.Price {
			score += 1.0
		}
	}

	// Volume-ratio thresholds (0-2)
	switch {
	case snap.VolumeRatio >= cfg.VolumeRatioHigh:
		score += 2.0
	case snap.VolumeRatio >= 1.0:
		score += 1.0
	case snap.VolumeRatio < cfg.VolumeRatioLow:
		// no credit for thin volume
	}

	// Volatility banding (0-1): tradable volatility rewarded, extremes not
	switch {
	case snap.Volatility > 0 && snap.Volatility <= cfg.VolatilityIdeal:
		score += 1.0
	case snap.Volatility > cfg.VolatilityIdeal && snap.Volatility < cfg.VolatilityExtreme:
		score += 0.5
	}

	return math.Max(0, math.Min(score, technicalMaxScore))
}

// mlScore fetches the classifier probability, weighting it toward neutral by
// the reported confidence. Failures and untrained models substitute 0.5.
func (s *Scorer) mlScore(ctx context.Context, symbol string) (float64, bool) {
	if s.predictor == nil {
		return neutralProbability, true
	}

	pred, err := s.predictor.PredictBuyProbability(ctx, symbol)
	if err != nil || pred == nil {
		return neutralProbability, true
	}

	p := clamp01(pred.BuyProbability)
	conf := clamp01(pred.Confidence)

	// Low-confidence predictions are pulled toward neutral
	return neutralProbability + (p-neutralProbability)*conf, false
}
