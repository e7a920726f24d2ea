package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeforge/position-engine/internal/config"
)

func testSizingConfig() *config.SizingConfig {
	return &config.SizingConfig{
		KellyMultiplier:       0.25,
		KellyMin:              0.01,
		KellyMax:              0.10,
		FallbackFraction:      0.02,
		MinTradesForKelly:     10,
		MaxPositionFraction:   0.20,
		StableSymbols:         []string{"BTCUSDT", "ETHUSDT"},
		ScannedSymbolPenalty:  0.6,
		TargetVolatility:      0.02,
		LossStreakDampener:    0.2,
		ExchangeMinOrderValue: 10.0,
	}
}

func TestKellyFraction(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	tests := []struct {
		name  string
		stats TradeStats
		want  float64
	}{
		{
			name:  "insufficient history falls back",
			stats: TradeStats{TotalTrades: 5, WinRate: 0.8, AvgWinLossRatio: 2.0},
			want:  0.02,
		},
		{
			name:  "no history falls back",
			stats: TradeStats{},
			want:  0.02,
		},
		{
			name:  "zero ratio falls back",
			stats: TradeStats{TotalTrades: 20, WinRate: 0.6, AvgWinLossRatio: 0},
			want:  0.02,
		},
		{
			name: "moderate edge",
			// f = (0.6*1.5 - 0.4) / 1.5 * 0.25 = 0.0833
			stats: TradeStats{TotalTrades: 20, WinRate: 0.6, AvgWinLossRatio: 1.5},
			want:  0.0833333333,
		},
		{
			name: "strong edge clamps at max",
			// raw f = (0.9*3 - 0.1) / 3 * 0.25 = 0.2167
			stats: TradeStats{TotalTrades: 50, WinRate: 0.9, AvgWinLossRatio: 3.0},
			want:  0.10,
		},
		{
			name: "negative edge clamps at min",
			// raw f = (0.2*1 - 0.8) / 1 * 0.25 = -0.15
			stats: TradeStats{TotalTrades: 20, WinRate: 0.2, AvgWinLossRatio: 1.0},
			want:  0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.KellyFraction(tt.stats)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.01)
			assert.LessOrEqual(t, got, 0.10)
		})
	}
}

func TestSize_NeverExceedsMaxFraction(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	// Strong history drives Kelly to its upper clamp
	stats := TradeStats{TotalTrades: 50, WinRate: 0.9, AvgWinLossRatio: 3.0}

	balance := 1000000.0
	price := 100.0
	quantity := calc.Size(balance, "BTCUSDT", price, 0, 1.0, stats)

	assert.Greater(t, quantity, 0.0)
	assert.LessOrEqual(t, quantity*price, balance*0.20+1e-6)
	// Kelly clamp at 0.10 binds before the 0.20 cap
	assert.InDelta(t, balance*0.10/price, quantity, 1e-6)
}

func TestSize_FallbackFraction(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	quantity := calc.Size(10000, "BTCUSDT", 100, 0, 1.0, TradeStats{})

	// 10000 * 0.02 = 200 notional at price 100
	assert.InDelta(t, 2.0, quantity, 1e-9)
}

func TestSize_ScannedSymbolPenalty(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	stable := calc.Size(10000, "BTCUSDT", 100, 0, 1.0, TradeStats{})
	scanned := calc.Size(10000, "DOGEUSDT", 100, 0, 1.0, TradeStats{})

	assert.InDelta(t, stable*0.6, scanned, 1e-9)
	assert.True(t, calc.IsStable("BTCUSDT"))
	assert.False(t, calc.IsStable("DOGEUSDT"))
}

func TestSize_VolatilityDampenerNeverScalesUp(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	calm := calc.Size(10000, "BTCUSDT", 100, 0.01, 1.0, TradeStats{})
	base := calc.Size(10000, "BTCUSDT", 100, 0, 1.0, TradeStats{})
	rough := calc.Size(10000, "BTCUSDT", 100, 0.04, 1.0, TradeStats{})

	assert.InDelta(t, base, calm, 1e-9)
	assert.InDelta(t, base*0.5, rough, 1e-9)
}

func TestSize_LossStreakDampener(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	base := calc.Size(10000, "BTCUSDT", 100, 0, 1.0, TradeStats{})
	dampened := calc.Size(10000, "BTCUSDT", 100, 0, 1.0, TradeStats{ConsecutiveLosses: 2})

	// 1 / (1 + 2*0.2) = 0.7143
	assert.InDelta(t, base/1.4, dampened, 1e-9)
}

func TestSize_BelowMinOrderValue(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	// 100 * 0.02 = 2 notional, under the 10 floor
	assert.Zero(t, calc.Size(100, "BTCUSDT", 100, 0, 1.0, TradeStats{}))
}

func TestSize_InvalidInputs(t *testing.T) {
	calc := NewCalculator(testSizingConfig())

	assert.Zero(t, calc.Size(0, "BTCUSDT", 100, 0, 1.0, TradeStats{}))
	assert.Zero(t, calc.Size(-50, "BTCUSDT", 100, 0, 1.0, TradeStats{}))
	assert.Zero(t, calc.Size(10000, "BTCUSDT", 0, 0, 1.0, TradeStats{}))
}
