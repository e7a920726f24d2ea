package sizing

import (
	"math"

	"github.com/tradeforge/position-engine/internal/config"
)

// TradeStats carries the trailing performance inputs for Kelly sizing. The
// risk governor maintains them incrementally.
type TradeStats struct {
	WinRate           float64 // Trailing win rate (0-1)
	AvgWinLossRatio   float64 // Average win / average loss
	TotalTrades       int     // Closed trades in history
	ConsecutiveLosses int     // Current loss streak
}

// Calculator converts account balance, Kelly statistics, volatility, regime,
// and loss streak into an order quantity. Deterministic given identical
// inputs.
type Calculator struct {
	cfg    *config.SizingConfig
	stable map[string]bool
}

// NewCalculator creates a new position sizing calculator
func NewCalculator(cfg *config.SizingConfig) *Calculator {
	stable := make(map[string]bool, len(cfg.StableSymbols))
	for _, s := range cfg.StableSymbols {
		stable[s] = true
	}
	return &Calculator{cfg: cfg, stable: stable}
}

// KellyFraction derives the capital fraction to risk from trailing win rate
// and win/loss ratio: f = (p*b - q) / b, scaled by the conservative
// multiplier and clamped to the configured range. Insufficient or degenerate
// history falls back to the fixed fraction before clamping, so the result is
// always within [KellyMin, KellyMax].
func (c *Calculator) KellyFraction(stats TradeStats) float64 {
	f := c.cfg.FallbackFraction

	if stats.TotalTrades >= c.cfg.MinTradesForKelly && stats.AvgWinLossRatio > 0 {
		p := clamp(stats.WinRate, 0, 1)
		q := 1 - p
		b := stats.AvgWinLossRatio
		f = (p*b - q) / b * c.cfg.KellyMultiplier
	}

	return clamp(f, c.cfg.KellyMin, c.cfg.KellyMax)
}

// Size returns the base-currency quantity to buy, or zero when the clamped
// notional would fall below the exchange minimum order value.
func (c *Calculator) Size(balance float64, symbol string, price, volatility, regimeMultiplier float64, stats TradeStats) float64 {
	if balance <= 0 || price <= 0 {
		return 0
	}

	kelly := c.KellyFraction(stats)
	notional := balance * math.Min(c.cfg.MaxPositionFraction, kelly)

	// Dynamically-scanned symbols carry a fixed size penalty
	if !c.stable[symbol] {
		notional *= c.cfg.ScannedSymbolPenalty
	}

	if regimeMultiplier > 0 {
		notional *= regimeMultiplier
	}

	// Volatility dampener: never scales up
	if volatility > 0 {
		notional *= math.Min(1.0, c.cfg.TargetVolatility/volatility)
	}

	// Loss-streak dampener
	notional *= 1.0 / (1.0 + float64(stats.ConsecutiveLosses)*c.cfg.LossStreakDampener)

	cap := balance * c.cfg.MaxPositionFraction
	if notional > cap {
		notional = cap
	}
	if notional < c.cfg.ExchangeMinOrderValue {
		return 0
	}

	return notional / price
}

// IsStable reports whether the symbol is on the stable allow-list
func (c *Calculator) IsStable(symbol string) bool {
	return c.stable[symbol]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
