package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/market"
)

type fakeData struct {
	snap   *market.IndicatorSnapshot
	tf     []market.TimeframeSnapshot
	tfErr  error
	tfCall int
}

func (f *fakeData) GetIndicatorSnapshot(ctx context.Context, symbol string) (*market.IndicatorSnapshot, error) {
	if f.snap == nil {
		return nil, market.ErrUnavailable
	}
	return f.snap, nil
}

func (f *fakeData) GetTimeframeSnapshots(ctx context.Context, symbol string) ([]market.TimeframeSnapshot, error) {
	f.tfCall++
	if f.tfErr != nil {
		return nil, f.tfErr
	}
	return f.tf, nil
}

type fakePredictor struct {
	pred *market.Prediction
	err  error
}

func (f *fakePredictor) PredictBuyProbability(ctx context.Context, symbol string) (*market.Prediction, error) {
	return f.pred, f.err
}

func testSignalConfig() *config.SignalConfig {
	cfg := config.DefaultEngineConfig()
	return &cfg.Signal
}

// idealSnapshot maxes out every rule in the technical table
func idealSnapshot() *market.IndicatorSnapshot {
	return &market.IndicatorSnapshot{
		Symbol:      "BTCUSDT",
		Price:       100,
		ShortMA:     99,  // price above short
		LongMA:      98,  // short above long
		RSI:         35,  // inside the 25-45 reward band
		MACD:        0.05,
		MACDSignal:  0.02, // bullish, within the proximity band of price 100
		VolumeRatio: 1.6,  // above the strong confirmation level
		Volatility:  0.02, // inside the ideal band
		Momentum:    0.5,
		Trend:       market.TrendUp,
	}
}

func uptrendTimeframes() []market.TimeframeSnapshot {
	return []market.TimeframeSnapshot{
		{Timeframe: market.TimeframeShort, Trend: market.TrendUp, TrendSlope: 1.0, Momentum: 1.0, VolumeRatio: 1.5},
		{Timeframe: market.TimeframeMedium, Trend: market.TrendUp, TrendSlope: 1.0, Momentum: 1.0, VolumeRatio: 1.5},
		{Timeframe: market.TimeframeLong, Trend: market.TrendUp, TrendSlope: 1.0, Momentum: 1.0, VolumeRatio: 1.5},
	}
}

func TestTechnicalScore_FullTable(t *testing.T) {
	s := NewScorer(testSignalConfig(), &fakeData{}, nil)

	raw := s.technicalScore(idealSnapshot())
	assert.InDelta(t, 12.0, raw, 1e-9)
}

func TestTechnicalScore_Bands(t *testing.T) {
	s := NewScorer(testSignalConfig(), &fakeData{}, nil)

	tests := []struct {
		name   string
		mutate func(*market.IndicatorSnapshot)
		want   float64
	}{
		{
			name:   "overbought RSI penalized",
			mutate: func(snap *market.IndicatorSnapshot) { snap.RSI = 75 },
			want:   8.0, // loses the +3 band, takes the -1 penalty
		},
		{
			name:   "mild momentum RSI partial credit",
			mutate: func(snap *market.IndicatorSnapshot) { snap.RSI = 50 },
			want:   10.5,
		},
		{
			name:   "bearish MACD drops cross bonus and sign",
			mutate: func(snap *market.IndicatorSnapshot) { snap.MACD = -0.05 },
			want:   9.0,
		},
		{
			name:   "thin volume earns nothing",
			mutate: func(snap *market.IndicatorSnapshot) { snap.VolumeRatio = 0.5 },
			want:   10.0,
		},
		{
			name:   "elevated volatility half credit",
			mutate: func(snap *market.IndicatorSnapshot) { snap.Volatility = 0.045 },
			want:   11.5,
		},
		{
			name:   "extreme volatility no credit",
			mutate: func(snap *market.IndicatorSnapshot) { snap.Volatility = 0.08 },
			want:   11.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := idealSnapshot()
			tt.mutate(snap)
			assert.InDelta(t, tt.want, s.technicalScore(snap), 1e-9)
		})
	}
}

func TestScore_WeightedEnsemble(t *testing.T) {
	data := &fakeData{snap: idealSnapshot(), tf: uptrendTimeframes()}
	pred := &fakePredictor{pred: &market.Prediction{BuyProbability: 0.9, Confidence: 1.0}}
	s := NewScorer(testSignalConfig(), data, pred)

	final, breakdown, err := s.Score(context.Background(), "BTCUSDT", data.snap)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, breakdown.Technical, 1e-9)
	assert.InDelta(t, 1.0, breakdown.MTF, 1e-9)
	assert.InDelta(t, 0.9, breakdown.ML, 1e-9)
	assert.False(t, breakdown.MLNeutral)

	// 10 * (1.0*0.35 + 1.0*0.35 + 0.9*0.30)
	assert.InDelta(t, 9.7, final, 1e-9)
}

func TestScore_MissingTimeframesSkipsSymbol(t *testing.T) {
	data := &fakeData{snap: idealSnapshot(), tfErr: market.ErrUnavailable}
	s := NewScorer(testSignalConfig(), data, nil)

	_, _, err := s.Score(context.Background(), "BTCUSDT", data.snap)
	assert.ErrorIs(t, err, market.ErrUnavailable)
}

func TestScore_NilSnapshot(t *testing.T) {
	s := NewScorer(testSignalConfig(), &fakeData{}, nil)

	_, _, err := s.Score(context.Background(), "BTCUSDT", nil)
	assert.ErrorIs(t, err, market.ErrUnavailable)
}

func TestMLScore_NeutralSubstitution(t *testing.T) {
	data := &fakeData{snap: idealSnapshot(), tf: uptrendTimeframes()}

	tests := []struct {
		name string
		pred market.Predictor
	}{
		{"nil predictor", nil},
		{"untrained predictor", &fakePredictor{err: market.ErrNotTrained}},
		{"nil prediction", &fakePredictor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(testSignalConfig(), data, tt.pred)
			_, breakdown, err := s.Score(context.Background(), "BTCUSDT", data.snap)
			require.NoError(t, err)
			assert.True(t, breakdown.MLNeutral)
			assert.InDelta(t, 0.5, breakdown.ML, 1e-9)
		})
	}
}

func TestMLScore_ConfidenceWeighting(t *testing.T) {
	data := &fakeData{snap: idealSnapshot(), tf: uptrendTimeframes()}
	pred := &fakePredictor{pred: &market.Prediction{BuyProbability: 1.0, Confidence: 0.5}}
	s := NewScorer(testSignalConfig(), data, pred)

	_, breakdown, err := s.Score(context.Background(), "BTCUSDT", data.snap)
	require.NoError(t, err)

	// Half confidence pulls 1.0 halfway back to neutral
	assert.InDelta(t, 0.75, breakdown.ML, 1e-9)
	assert.False(t, breakdown.MLNeutral)
}

func TestAnalyzeTimeframes_Consensus(t *testing.T) {
	cfg := testSignalConfig()

	result := analyzeTimeframes(cfg, uptrendTimeframes())
	assert.Equal(t, market.TrendUp, result.DominantTrend)
	assert.InDelta(t, 1.0, result.ConsensusLevel, 1e-9)
	assert.InDelta(t, 10.0, result.FinalScore, 1e-9)
	assert.Equal(t, StrengthStrong, result.SignalStrength)
}

func TestAnalyzeTimeframes_SplitVotes(t *testing.T) {
	cfg := testSignalConfig()

	snaps := []market.TimeframeSnapshot{
		{Timeframe: market.TimeframeShort, Trend: market.TrendUp, TrendSlope: 0.5, Momentum: 0.2, VolumeRatio: 1.0},
		{Timeframe: market.TimeframeMedium, Trend: market.TrendDown, TrendSlope: -0.5, Momentum: -0.2, VolumeRatio: 1.0},
		{Timeframe: market.TimeframeLong, Trend: market.TrendDown, TrendSlope: -0.5, Momentum: -0.2, VolumeRatio: 1.0},
	}

	result := analyzeTimeframes(cfg, snaps)
	assert.Equal(t, market.TrendDown, result.DominantTrend)
	// medium + long weights over the total
	assert.InDelta(t, 0.7, result.ConsensusLevel, 1e-9)
	assert.Equal(t, StrengthWeak, result.SignalStrength)
}

func TestAnalyzeTimeframes_NoWeights(t *testing.T) {
	cfg := testSignalConfig()
	cfg.TimeframeWeights = map[string]float64{}

	result := analyzeTimeframes(cfg, uptrendTimeframes())
	assert.Zero(t, result.FinalScore)
	assert.Equal(t, StrengthWeak, result.SignalStrength)
	assert.Equal(t, market.TrendNeutral, result.DominantTrend)
}
