package signal

import (
	"math"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/market"
)

// SignalStrength classifies the multi-timeframe consensus quality
type SignalStrength string

const (
	StrengthStrong   SignalStrength = "strong"
	StrengthModerate SignalStrength = "moderate"
	StrengthWeak     SignalStrength = "weak"
)

// TimeframeScore holds the per-timeframe contribution to the consensus
type TimeframeScore struct {
	Timeframe market.Timeframe      `json:"timeframe"`
	Score     float64               `json:"score"` // 0-10
	Trend     market.TrendDirection `json:"trend"`
	Weight    float64               `json:"weight"`
}

// MTFResult is the outcome of multi-timeframe consensus analysis
type MTFResult struct {
	FinalScore     float64               `json:"final_score"`     // Weighted 0-10 score
	ConsensusLevel float64               `json:"consensus_level"` // Weighted vote share of the majority trend
	DominantTrend  market.TrendDirection `json:"dominant_trend"`
	SignalStrength SignalStrength        `json:"signal_strength"`
	Timeframes     []TimeframeScore      `json:"timeframes"`
}

// scoreTimeframe computes a 0-10 trend+momentum+volume score for one
// timeframe snapshot
func scoreTimeframe(cfg *config.SignalConfig, snap market.TimeframeSnapshot) float64 {
	score := 0.0

	// Trend contribution (0-4): direction plus normalized slope strength
	switch snap.Trend {
	case market.TrendUp:
		score += 2.0 + 2.0*clamp01(snap.TrendSlope)
	case market.TrendNeutral:
		score += 1.0
	}

	// Momentum contribution (0-3): signed momentum mapped onto [0, 3]
	score += 3.0 * clamp01((snap.Momentum+1.0)/2.0)

	// Volume contribution (0-3): ratio relative to the strong-volume level
	if cfg.VolumeRatioHigh > 0 {
		score += 3.0 * clamp01(snap.VolumeRatio/cfg.VolumeRatioHigh)
	}

	return math.Min(score, 10.0)
}

// analyzeTimeframes combines per-timeframe scores into a weighted consensus.
// Timeframes missing a configured weight contribute nothing.
func analyzeTimeframes(cfg *config.SignalConfig, snaps []market.TimeframeSnapshot) *MTFResult {
	result := &MTFResult{
		Timeframes:     make([]TimeframeScore, 0, len(snaps)),
		SignalStrength: StrengthWeak,
		DominantTrend:  market.TrendNeutral,
	}

	voteWeight := make(map[market.TrendDirection]float64)
	totalWeight := 0.0
	longScore := 0.0

	for _, snap := range snaps {
		weight := cfg.TimeframeWeights[string(snap.Timeframe)]
		if weight <= 0 {
			continue
		}

		score := scoreTimeframe(cfg, snap)
		result.Timeframes = append(result.Timeframes, TimeframeScore{
			Timeframe: snap.Timeframe,
			Score:     score,
			Trend:     snap.Trend,
			Weight:    weight,
		})

		result.FinalScore += score * weight
		voteWeight[snap.Trend] += weight
		totalWeight += weight

		if snap.Timeframe == market.TimeframeLong {
			longScore = score
		}
	}

	if totalWeight == 0 {
		return result
	}

	// Consensus level is the weighted vote share of the majority direction
	for trend, weight := range voteWeight {
		share := weight / totalWeight
		if share > result.ConsensusLevel {
			result.ConsensusLevel = share
			result.DominantTrend = trend
		}
	}

	switch {
	case result.ConsensusLevel >= cfg.StrongConsensus && result.FinalScore >= 7.0 && longScore >= 6.0:
		result.SignalStrength = StrengthStrong
	case result.ConsensusLevel >= cfg.ModerateConsensus && result.FinalScore >= 6.0:
		result.SignalStrength = StrengthModerate
	default:
		result.SignalStrength = StrengthWeak
	}

	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
