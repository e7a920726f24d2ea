package market

import (
	"math"
	"time"
)

// Kline is one candlestick, oldest-first in every series this package sees
type Kline struct {
	StartTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Indicator periods used when deriving snapshots from raw candles
const (
	shortMAPeriod    = 20
	longMAPeriod     = 50
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	volumeSMAPeriod  = 20
	atrPeriod        = 14
	momentumPeriod   = 10
)

// minKlines is the history needed to compute every indicator in a snapshot
const minKlines = longMAPeriod + macdSignalPeriod

func closes(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// sma computes the simple moving average of the last period values
func sma(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// ema computes the exponential moving average over the whole series, seeded
// with an SMA of the first period values
func ema(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	avg := sma(values[:period], period)
	for _, v := range values[period:] {
		avg = v*k + avg*(1-k)
	}
	return avg
}

// rsi computes the Relative Strength Index over the last period changes
func rsi(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}
	gains := 0.0
	losses := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += math.Abs(change)
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - (100 / (1 + rs))
}

// macd computes the MACD line and its EMA signal line
func macd(prices []float64) (macdLine, signalLine float64) {
	if len(prices) < macdSlowPeriod+macdSignalPeriod {
		return 0, 0
	}

	// Build the MACD history needed to seed the signal EMA
	history := make([]float64, 0, macdSignalPeriod)
	for i := macdSignalPeriod - 1; i >= 0; i-- {
		end := len(prices) - i
		history = append(history, ema(prices[:end], macdFastPeriod)-ema(prices[:end], macdSlowPeriod))
	}

	macdLine = history[len(history)-1]
	signalLine = ema(history, macdSignalPeriod)
	return macdLine, signalLine
}

// atr computes the Average True Range over the last period candles
func atr(klines []Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}

// volumeRatio compares the latest volume to its recent average
func volumeRatio(klines []Kline, period int) float64 {
	if len(klines) < period {
		return 1.0
	}
	sum := 0.0
	for _, k := range klines[len(klines)-period:] {
		sum += k.Volume
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 1.0
	}
	return klines[len(klines)-1].Volume / avg
}

// momentum returns the rate of change over the momentum window, clamped to
// [-1, 1] at a 10% move
func momentum(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 0
	}
	base := prices[len(prices)-1-period]
	if base == 0 {
		return 0
	}
	roc := (prices[len(prices)-1] - base) / base
	return math.Max(-1, math.Min(1, roc*10))
}

// classifyTrend labels the MA relationship, with a small dead band so a
// flat market reads neutral
func classifyTrend(shortMA, longMA float64) TrendDirection {
	if longMA == 0 {
		return TrendNeutral
	}
	spread := (shortMA - longMA) / longMA
	switch {
	case spread > 0.001:
		return TrendUp
	case spread < -0.001:
		return TrendDown
	default:
		return TrendNeutral
	}
}

// trendSlope normalizes the MA spread into [-1, 1], saturating at a 2% gap
func trendSlope(shortMA, longMA float64) float64 {
	if longMA == 0 {
		return 0
	}
	spread := (shortMA - longMA) / longMA
	return math.Max(-1, math.Min(1, spread*50))
}
