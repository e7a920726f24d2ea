package regime

import (
	"context"
	"time"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/market"
)

// Regime represents the classified macro market state
type Regime int

const (
	RegimeBearish Regime = iota - 1
	RegimeNeutral
	RegimeBullish
)

func (r Regime) String() string {
	switch r {
	case RegimeBullish:
		return "BULLISH"
	case RegimeBearish:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// StreakType labels the direction of a consecutive trade-result streak
type StreakType string

const (
	StreakWins   StreakType = "wins"
	StreakLosses StreakType = "losses"
	StreakNone   StreakType = "none"
)

// TradingStats carries the trailing performance inputs that accompany a
// regime snapshot. They come from the risk governor's running statistics.
type TradingStats struct {
	WinRate     float64    `json:"win_rate"`
	StreakType  StreakType `json:"streak_type"`
	StreakCount int        `json:"streak_count"`
}

// Snapshot is the ephemeral output of one classification pass. It is not
// persisted beyond the check that produced it.
type Snapshot struct {
	Regime        Regime     `json:"regime"`
	AvgVolatility float64    `json:"avg_volatility"` // Mean ATR-derived volatility across the sample
	TrendStrength float64    `json:"trend_strength"` // Share of sampled symbols trending up (0-1)
	VolumeTrend   float64    `json:"volume_trend"`   // Share of sampled symbols with above-average volume (0-1)
	WinRate       float64    `json:"win_rate"`
	StreakType    StreakType `json:"streak_type"`
	StreakCount   int        `json:"streak_count"`
	SampledCount  int        `json:"sampled_count"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Classifier labels the current market as bullish, bearish, or neutral from
// aggregate volatility, trend, and volume across the watch-list
type Classifier struct {
	cfg  *config.RegimeConfig
	data market.DataProvider
}

// NewClassifier creates a new regime classifier
func NewClassifier(cfg *config.RegimeConfig, data market.DataProvider) *Classifier {
	return &Classifier{cfg: cfg, data: data}
}

// Classify samples the watch-list and derives the regime. Symbols whose
// snapshot is unavailable are skipped; an empty sample yields neutral.
func (c *Classifier) Classify(ctx context.Context, watchlist []string, stats TradingStats) (Regime, *Snapshot) {
	snapshot := &Snapshot{
		Regime:      RegimeNeutral,
		WinRate:     stats.WinRate,
		StreakType:  stats.StreakType,
		StreakCount: stats.StreakCount,
		Timestamp:   time.Now(),
	}

	sampleSize := c.cfg.SampleSize
	if sampleSize > len(watchlist) {
		sampleSize = len(watchlist)
	}

	totalVolatility := 0.0
	trendingUp := 0
	activeVolume := 0

	for _, symbol := range watchlist[:sampleSize] {
		snap, err := c.data.GetIndicatorSnapshot(ctx, symbol)
		if err != nil {
			continue
		}

		totalVolatility += snap.Volatility
		if snap.Trend == market.TrendUp {
			trendingUp++
		}
		if snap.VolumeRatio >= 1.0 {
			activeVolume++
		}
		snapshot.SampledCount++
	}

	if snapshot.SampledCount == 0 {
		return RegimeNeutral, snapshot
	}

	n := float64(snapshot.SampledCount)
	snapshot.AvgVolatility = totalVolatility / n
	snapshot.TrendStrength = float64(trendingUp) / n
	snapshot.VolumeTrend = float64(activeVolume) / n

	switch {
	case snapshot.TrendStrength >= c.cfg.TrendUpThreshold && snapshot.AvgVolatility < c.cfg.VolatilityCeiling:
		snapshot.Regime = RegimeBullish
	case snapshot.TrendStrength <= c.cfg.TrendDownThreshold || snapshot.AvgVolatility > c.cfg.VolatilityCeiling:
		snapshot.Regime = RegimeBearish
	default:
		snapshot.Regime = RegimeNeutral
	}

	return snapshot.Regime, snapshot
}

// SizeMultiplier scales position sizing by regime: above 1 in bullish
// markets, below 1 in bearish ones
func (c *Classifier) SizeMultiplier(r Regime) float64 {
	switch r {
	case RegimeBullish:
		return c.cfg.BullishMultiplier
	case RegimeBearish:
		return c.cfg.BearishMultiplier
	default:
		return 1.0
	}
}

// AdjustThreshold applies the regime delta to a base entry threshold
func (c *Classifier) AdjustThreshold(base float64, r Regime) float64 {
	switch r {
	case RegimeBullish:
		return base + c.cfg.BullishScoreDelta
	case RegimeBearish:
		return base + c.cfg.BearishScoreDelta
	default:
		return base
	}
}
