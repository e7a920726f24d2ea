package regime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/market"
)

type fakeData struct {
	snaps map[string]*market.IndicatorSnapshot
}

func (f *fakeData) GetIndicatorSnapshot(ctx context.Context, symbol string) (*market.IndicatorSnapshot, error) {
	snap, ok := f.snaps[symbol]
	if !ok {
		return nil, market.ErrUnavailable
	}
	return snap, nil
}

func (f *fakeData) GetTimeframeSnapshots(ctx context.Context, symbol string) ([]market.TimeframeSnapshot, error) {
	return nil, market.ErrUnavailable
}

func testRegimeConfig() *config.RegimeConfig {
	return &config.RegimeConfig{
		VolatilityCeiling:  0.045,
		TrendUpThreshold:   0.6,
		TrendDownThreshold: 0.4,
		SampleSize:         10,
		BullishMultiplier:  1.2,
		BearishMultiplier:  0.7,
		BullishScoreDelta:  -0.5,
		BearishScoreDelta:  0.5,
	}
}

func snap(trend market.TrendDirection, volatility, volumeRatio float64) *market.IndicatorSnapshot {
	return &market.IndicatorSnapshot{Trend: trend, Volatility: volatility, VolumeRatio: volumeRatio}
}

func TestClassify_Bullish(t *testing.T) {
	data := &fakeData{snaps: map[string]*market.IndicatorSnapshot{
		"BTCUSDT": snap(market.TrendUp, 0.02, 1.2),
		"ETHUSDT": snap(market.TrendUp, 0.03, 1.1),
		"SOLUSDT": snap(market.TrendNeutral, 0.02, 0.9),
		"XRPUSDT": snap(market.TrendUp, 0.025, 1.0),
	}}
	c := NewClassifier(testRegimeConfig(), data)

	r, s := c.Classify(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}, TradingStats{})
	assert.Equal(t, RegimeBullish, r)
	assert.Equal(t, 4, s.SampledCount)
	assert.InDelta(t, 0.75, s.TrendStrength, 1e-9)
}

func TestClassify_BearishOnWeakTrend(t *testing.T) {
	data := &fakeData{snaps: map[string]*market.IndicatorSnapshot{
		"BTCUSDT": snap(market.TrendDown, 0.02, 0.8),
		"ETHUSDT": snap(market.TrendDown, 0.03, 0.7),
		"SOLUSDT": snap(market.TrendUp, 0.02, 1.1),
	}}
	c := NewClassifier(testRegimeConfig(), data)

	r, _ := c.Classify(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, TradingStats{})
	assert.Equal(t, RegimeBearish, r)
}

func TestClassify_BearishOnHighVolatility(t *testing.T) {
	// All trending up, but aggregate volatility breaches the ceiling
	data := &fakeData{snaps: map[string]*market.IndicatorSnapshot{
		"BTCUSDT": snap(market.TrendUp, 0.06, 1.5),
		"ETHUSDT": snap(market.TrendUp, 0.05, 1.4),
	}}
	c := NewClassifier(testRegimeConfig(), data)

	r, s := c.Classify(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, TradingStats{})
	assert.Equal(t, RegimeBearish, r)
	assert.InDelta(t, 0.055, s.AvgVolatility, 1e-9)
}

func TestClassify_NeutralMiddleBand(t *testing.T) {
	data := &fakeData{snaps: map[string]*market.IndicatorSnapshot{
		"BTCUSDT": snap(market.TrendUp, 0.02, 1.2),
		"ETHUSDT": snap(market.TrendDown, 0.02, 0.9),
	}}
	c := NewClassifier(testRegimeConfig(), data)

	r, _ := c.Classify(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, TradingStats{})
	assert.Equal(t, RegimeNeutral, r)
}

func TestClassify_EmptySampleIsNeutral(t *testing.T) {
	c := NewClassifier(testRegimeConfig(), &fakeData{snaps: map[string]*market.IndicatorSnapshot{}})

	r, s := c.Classify(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, TradingStats{})
	assert.Equal(t, RegimeNeutral, r)
	assert.Zero(t, s.SampledCount)
}

func TestClassify_RespectsSampleSize(t *testing.T) {
	cfg := testRegimeConfig()
	cfg.SampleSize = 1

	data := &fakeData{snaps: map[string]*market.IndicatorSnapshot{
		"BTCUSDT": snap(market.TrendUp, 0.02, 1.2),
		"ETHUSDT": snap(market.TrendDown, 0.08, 0.4),
	}}
	c := NewClassifier(cfg, data)

	r, s := c.Classify(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, TradingStats{})
	assert.Equal(t, 1, s.SampledCount)
	assert.Equal(t, RegimeBullish, r)
}

func TestClassify_CarriesTradingStats(t *testing.T) {
	c := NewClassifier(testRegimeConfig(), &fakeData{})

	stats := TradingStats{WinRate: 0.62, StreakType: StreakLosses, StreakCount: 2}
	_, s := c.Classify(context.Background(), nil, stats)
	assert.InDelta(t, 0.62, s.WinRate, 1e-9)
	assert.Equal(t, StreakLosses, s.StreakType)
	assert.Equal(t, 2, s.StreakCount)
}

func TestSizeMultiplier(t *testing.T) {
	c := NewClassifier(testRegimeConfig(), &fakeData{})

	assert.InDelta(t, 1.2, c.SizeMultiplier(RegimeBullish), 1e-9)
	assert.InDelta(t, 1.0, c.SizeMultiplier(RegimeNeutral), 1e-9)
	assert.InDelta(t, 0.7, c.SizeMultiplier(RegimeBearish), 1e-9)
}

func TestAdjustThreshold(t *testing.T) {
	c := NewClassifier(testRegimeConfig(), &fakeData{})

	assert.InDelta(t, 6.0, c.AdjustThreshold(6.5, RegimeBullish), 1e-9)
	assert.InDelta(t, 6.5, c.AdjustThreshold(6.5, RegimeNeutral), 1e-9)
	assert.InDelta(t, 7.0, c.AdjustThreshold(6.5, RegimeBearish), 1e-9)
}
