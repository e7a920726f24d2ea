package market

import (
	"context"
	"time"
)

// KlineSource supplies raw candles and last prices. The Bybit adapter is the
// production implementation.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]Kline, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Timeframe intervals in the exchange's notation (minutes)
const (
	intervalShort  = "15"
	intervalMedium = "60"
	intervalLong   = "240"
)

// snapshotTTL bounds how long a computed snapshot is served from cache; one
// polling cycle at the default period
const snapshotTTL = 55 * time.Second

type cachedSnapshot struct {
	snap    *IndicatorSnapshot
	fetched time.Time
}

type cachedTimeframes struct {
	snaps   []TimeframeSnapshot
	fetched time.Time
}

// SnapshotProvider derives indicator snapshots from raw candles. It
// implements DataProvider. Snapshots are cached per symbol for one cycle so
// the scorer and the regime classifier do not refetch the same candles.
//
// Only the control loop calls it, so the caches need no locking.
type SnapshotProvider struct {
	source KlineSource

	snapCache map[string]cachedSnapshot
	tfCache   map[string]cachedTimeframes

	now func() time.Time
}

// NewSnapshotProvider creates a snapshot provider over a kline source
func NewSnapshotProvider(source KlineSource) *SnapshotProvider {
	return &SnapshotProvider{
		source:    source,
		snapCache: make(map[string]cachedSnapshot),
		tfCache:   make(map[string]cachedTimeframes),
		now:       time.Now,
	}
}

// GetIndicatorSnapshot computes the single-timeframe snapshot for a symbol
// from medium-interval candles. Insufficient history returns ErrUnavailable.
func (p *SnapshotProvider) GetIndicatorSnapshot(ctx context.Context, symbol string) (*IndicatorSnapshot, error) {
	if cached, ok := p.snapCache[symbol]; ok && p.now().Sub(cached.fetched) < snapshotTTL {
		return cached.snap, nil
	}

	klines, err := p.source.GetKlines(ctx, symbol, intervalMedium, minKlines+momentumPeriod)
	if err != nil {
		return nil, ErrUnavailable
	}
	if len(klines) < minKlines {
		return nil, ErrUnavailable
	}

	prices := closes(klines)
	last := klines[len(klines)-1]

	shortMA := sma(prices, shortMAPeriod)
	longMA := sma(prices, longMAPeriod)
	macdLine, signalLine := macd(prices)

	volatility := 0.0
	if last.Close > 0 {
		volatility = atr(klines, atrPeriod) / last.Close
	}

	snap := &IndicatorSnapshot{
		Symbol:      symbol,
		Price:       last.Close,
		ShortMA:     shortMA,
		LongMA:      longMA,
		RSI:         rsi(prices, rsiPeriod),
		MACD:        macdLine,
		MACDSignal:  signalLine,
		VolumeRatio: volumeRatio(klines, volumeSMAPeriod),
		Volatility:  volatility,
		Momentum:    momentum(prices, momentumPeriod),
		Trend:       classifyTrend(shortMA, longMA),
		Timestamp:   last.StartTime,
	}

	p.snapCache[symbol] = cachedSnapshot{snap: snap, fetched: p.now()}
	return snap, nil
}

// GetTimeframeSnapshots computes per-timeframe trend summaries across the
// short, medium, and long intervals. A timeframe whose candles cannot be
// fetched is omitted; an empty result returns ErrUnavailable.
func (p *SnapshotProvider) GetTimeframeSnapshots(ctx context.Context, symbol string) ([]TimeframeSnapshot, error) {
	if cached, ok := p.tfCache[symbol]; ok && p.now().Sub(cached.fetched) < snapshotTTL {
		return cached.snaps, nil
	}

	intervals := []struct {
		timeframe Timeframe
		interval  string
	}{
		{TimeframeShort, intervalShort},
		{TimeframeMedium, intervalMedium},
		{TimeframeLong, intervalLong},
	}

	snaps := make([]TimeframeSnapshot, 0, len(intervals))
	for _, tf := range intervals {
		klines, err := p.source.GetKlines(ctx, symbol, tf.interval, minKlines)
		if err != nil || len(klines) < longMAPeriod {
			continue
		}

		prices := closes(klines)
		shortMA := sma(prices, shortMAPeriod)
		longMA := sma(prices, longMAPeriod)

		snaps = append(snaps, TimeframeSnapshot{
			Timeframe:   tf.timeframe,
			Trend:       classifyTrend(shortMA, longMA),
			TrendSlope:  trendSlope(shortMA, longMA),
			Momentum:    momentum(prices, momentumPeriod),
			VolumeRatio: volumeRatio(klines, volumeSMAPeriod),
		})
	}

	if len(snaps) == 0 {
		return nil, ErrUnavailable
	}

	p.tfCache[symbol] = cachedTimeframes{snaps: snaps, fetched: p.now()}
	return snaps, nil
}

// LatestPrice returns the last traded price for a symbol
func (p *SnapshotProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return p.source.GetLatestPrice(ctx, symbol)
}
