package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func klinesFromCloses(closes []float64) []Kline {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]Kline, len(closes))
	for i, c := range closes {
		klines[i] = Kline{
			StartTime: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return klines
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 4.0, sma(values, 3), 1e-9)
	assert.InDelta(t, 3.0, sma(values, 5), 1e-9)
	assert.Zero(t, sma(values, 6), "insufficient data")
	assert.Zero(t, sma(values, 0))
}

func TestEMA(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10}
	assert.InDelta(t, 10.0, ema(values, 3), 1e-9, "flat series stays flat")

	rising := []float64{1, 2, 3, 4, 5, 6}
	got := ema(rising, 3)
	// Seeded at sma(1,2,3)=2, then k=0.5 over 4, 5, 6: 3, 4, 5
	assert.InDelta(t, 5.0, got, 1e-9)
	assert.Zero(t, ema(rising, 7))
}

func TestRSI(t *testing.T) {
	// Not enough changes: neutral
	assert.InDelta(t, 50.0, rsi([]float64{1, 2, 3}, 14), 1e-9)

	// Monotonic gains: no losses
	gains := make([]float64, 20)
	for i := range gains {
		gains[i] = float64(100 + i)
	}
	assert.InDelta(t, 100.0, rsi(gains, 14), 1e-9)

	// Equal gains and losses balance to 50
	alternating := []float64{100, 101, 100, 101, 100, 101, 100, 101, 100}
	assert.InDelta(t, 50.0, rsi(alternating, 8), 1e-9)
}

func TestMACD_InsufficientData(t *testing.T) {
	macdLine, signalLine := macd(make([]float64, 30))
	assert.Zero(t, macdLine)
	assert.Zero(t, signalLine)
}

func TestMACD_TrendingSeries(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	macdLine, signalLine := macd(prices)
	// A steady uptrend keeps the fast EMA above the slow EMA
	assert.Greater(t, macdLine, 0.0)
	assert.Greater(t, signalLine, 0.0)
}

func TestATR(t *testing.T) {
	klines := klinesFromCloses([]float64{100, 100, 100, 100, 100})
	// Each candle spans 99..101 with flat closes: true range 2
	assert.InDelta(t, 2.0, atr(klines, 4), 1e-9)
	assert.Zero(t, atr(klines, 10), "insufficient data")
}

func TestVolumeRatio(t *testing.T) {
	klines := klinesFromCloses([]float64{100, 100, 100, 100})
	assert.InDelta(t, 1.0, volumeRatio(klines, 4), 1e-9)

	klines[len(klines)-1].Volume = 2500
	// avg = (1000*3 + 2500) / 4 = 1375
	assert.InDelta(t, 2500.0/1375.0, volumeRatio(klines, 4), 1e-9)

	assert.InDelta(t, 1.0, volumeRatio(klines, 10), 1e-9, "insufficient data defaults to neutral")
}

func TestMomentum(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100, 100}
	assert.Zero(t, momentum(flat, 5))

	// +5% over the window maps to 0.5
	rising := []float64{100, 101, 102, 103, 104, 105}
	assert.InDelta(t, 0.5, momentum(rising, 5), 1e-9)

	// A 20% move clamps at 1
	surging := []float64{100, 120}
	assert.InDelta(t, 1.0, momentum(surging, 1), 1e-9)

	falling := []float64{100, 80}
	assert.InDelta(t, -1.0, momentum(falling, 1), 1e-9)

	assert.Zero(t, momentum([]float64{100}, 5), "insufficient data")
}

func TestClassifyTrend(t *testing.T) {
	assert.Equal(t, TrendUp, classifyTrend(101, 100))
	assert.Equal(t, TrendDown, classifyTrend(99, 100))
	assert.Equal(t, TrendNeutral, classifyTrend(100.05, 100), "inside the dead band")
	assert.Equal(t, TrendNeutral, classifyTrend(100, 0))
}

func TestTrendSlope(t *testing.T) {
	assert.InDelta(t, 0.5, trendSlope(101, 100), 1e-9)
	assert.InDelta(t, 1.0, trendSlope(105, 100), 1e-9, "saturates at a 2% spread")
	assert.InDelta(t, -1.0, trendSlope(95, 100), 1e-9)
	assert.Zero(t, trendSlope(100, 0))
}
