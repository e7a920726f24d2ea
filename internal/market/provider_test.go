package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	klines map[string][]Kline
	err    error
	calls  int
}

func (f *fakeSource) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]Kline, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.klines[interval], nil
}

func (f *fakeSource) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func trendingKlines(n int) []Kline {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]Kline, n)
	price := 100.0
	for i := range klines {
		price *= 1.001
		klines[i] = Kline{
			StartTime: start.Add(time.Duration(i) * time.Hour),
			Open:      price * 0.999,
			High:      price * 1.005,
			Low:       price * 0.995,
			Close:     price,
			Volume:    1000 + float64(i),
		}
	}
	return klines
}

func TestGetIndicatorSnapshot(t *testing.T) {
	source := &fakeSource{klines: map[string][]Kline{
		intervalMedium: trendingKlines(minKlines + momentumPeriod),
	}}
	p := NewSnapshotProvider(source)

	snap, err := p.GetIndicatorSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Greater(t, snap.Price, 0.0)
	assert.Greater(t, snap.ShortMA, snap.LongMA, "steady uptrend")
	assert.Equal(t, TrendUp, snap.Trend)
	assert.Greater(t, snap.Volatility, 0.0)
}

func TestGetIndicatorSnapshot_InsufficientHistory(t *testing.T) {
	source := &fakeSource{klines: map[string][]Kline{
		intervalMedium: trendingKlines(minKlines - 1),
	}}
	p := NewSnapshotProvider(source)

	_, err := p.GetIndicatorSnapshot(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetIndicatorSnapshot_CachedWithinCycle(t *testing.T) {
	source := &fakeSource{klines: map[string][]Kline{
		intervalMedium: trendingKlines(minKlines + momentumPeriod),
	}}
	p := NewSnapshotProvider(source)

	base := time.Now()
	p.now = func() time.Time { return base }

	first, err := p.GetIndicatorSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	second, err := p.GetIndicatorSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, source.calls)

	// Past the TTL the candles are refetched
	p.now = func() time.Time { return base.Add(time.Minute) }
	_, err = p.GetIndicatorSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestGetTimeframeSnapshots(t *testing.T) {
	klines := trendingKlines(minKlines)
	source := &fakeSource{klines: map[string][]Kline{
		intervalShort:  klines,
		intervalMedium: klines,
		intervalLong:   klines,
	}}
	p := NewSnapshotProvider(source)

	snaps, err := p.GetTimeframeSnapshots(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, TimeframeShort, snaps[0].Timeframe)
	assert.Equal(t, TimeframeMedium, snaps[1].Timeframe)
	assert.Equal(t, TimeframeLong, snaps[2].Timeframe)
}

func TestGetTimeframeSnapshots_PartialFailuresOmitted(t *testing.T) {
	source := &fakeSource{klines: map[string][]Kline{
		intervalMedium: trendingKlines(minKlines),
		// short and long intervals return no candles
	}}
	p := NewSnapshotProvider(source)

	snaps, err := p.GetTimeframeSnapshots(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, TimeframeMedium, snaps[0].Timeframe)
}

func TestGetTimeframeSnapshots_AllFailing(t *testing.T) {
	source := &fakeSource{err: ErrUnavailable}
	p := NewSnapshotProvider(source)

	_, err := p.GetTimeframeSnapshots(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHeuristicPredictor(t *testing.T) {
	source := &fakeSource{klines: map[string][]Kline{
		intervalMedium: trendingKlines(minKlines + momentumPeriod),
	}}
	p := NewHeuristicPredictor(NewSnapshotProvider(source))

	pred, err := p.PredictBuyProbability(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.BuyProbability, 0.0)
	assert.LessOrEqual(t, pred.BuyProbability, 1.0)
	assert.GreaterOrEqual(t, pred.Confidence, 0.0)
	assert.LessOrEqual(t, pred.Confidence, 1.0)
}

func TestHeuristicPredictor_NoData(t *testing.T) {
	p := NewHeuristicPredictor(NewSnapshotProvider(&fakeSource{err: ErrUnavailable}))

	_, err := p.PredictBuyProbability(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNotTrained)
}
