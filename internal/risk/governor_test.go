package risk

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/position"
)

func testRiskConfig() *config.RiskConfig {
	return &config.RiskConfig{
		InitialBalance:         10000,
		DailyLossLimitRatio:    0.03,
		ConsecutiveLossLimit:   3,
		CapitalProtectionRatio: 0.93,
		MaxConcurrentPositions: 3,
	}
}

func newTestGovernor(t *testing.T) *Governor {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	lg, err := logger.NewLogger("test")
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })

	return NewGovernor(testRiskConfig(), lg)
}

func loss(amount float64) *position.TradeRecord {
	return &position.TradeRecord{Symbol: "BTCUSDT", PnL: -amount}
}

func win(amount float64) *position.TradeRecord {
	return &position.TradeRecord{Symbol: "BTCUSDT", PnL: amount}
}

func TestCanOpen_CleanState(t *testing.T) {
	g := newTestGovernor(t)

	ok, reason := g.CanOpenNewPosition(0)
	assert.True(t, ok)
	assert.Equal(t, HaltNone, reason)
}

func TestBreaker_TripsAtLimit(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(loss(10))
	g.OnTradeClosed(loss(10))
	ok, _ := g.CanOpenNewPosition(0)
	assert.True(t, ok, "two losses must not trip the breaker")

	g.OnTradeClosed(loss(10))
	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltConsecutiveLosses, reason)
	assert.True(t, g.GetStatus().BreakerTripped)
}

func TestBreaker_SurvivesDailyResetUntilWin(t *testing.T) {
	g := newTestGovernor(t)

	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }
	g.lastResetDate = g.utcDate(base)

	g.OnTradeClosed(loss(10))
	g.OnTradeClosed(loss(10))
	g.OnTradeClosed(loss(10))

	// Next UTC day: daily counters reset but the streak, and with it the
	// breaker, persists
	g.now = func() time.Time { return base.Add(24 * time.Hour) }

	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltConsecutiveLosses, reason)

	status := g.GetStatus()
	assert.Zero(t, status.DailyPnL)
	assert.Zero(t, status.DailyTrades)
	assert.Equal(t, 3, status.ConsecutiveLosses)
	assert.Equal(t, 3, status.TotalTrades)

	// A winning trade walks the counter below the limit and releases the
	// breaker
	g.OnTradeClosed(win(20))
	ok, _ = g.CanOpenNewPosition(0)
	assert.True(t, ok)
	assert.Equal(t, 2, g.GetStatus().ConsecutiveLosses)
}

func TestLossCounter_WinsDecrementFloorZero(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(loss(10))
	g.OnTradeClosed(loss(10))
	assert.Equal(t, 2, g.GetStatus().ConsecutiveLosses)

	g.OnTradeClosed(win(10))
	assert.Equal(t, 1, g.GetStatus().ConsecutiveLosses)

	g.OnTradeClosed(win(10))
	g.OnTradeClosed(win(10))
	assert.Zero(t, g.GetStatus().ConsecutiveLosses, "counter never goes negative")
}

func TestDailyLossLimit_HaltsEntries(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(loss(299))
	ok, _ := g.CanOpenNewPosition(0)
	assert.True(t, ok, "just under 3% of the initial balance")

	g.OnTradeClosed(win(0.5)) // walks the loss counter back, keeps the daily loss
	g.OnTradeClosed(loss(2))
	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltDailyLossLimit, reason)
	assert.True(t, g.CheckDailyLossLimit())
}

func TestDailyLossLimit_AnchoredToInitialBalance(t *testing.T) {
	g := newTestGovernor(t)

	// Equity doubled, so the day-start balance re-based upward; the limit
	// still trips at 3% of the configured initial balance
	g.SetDayStartBalance(20000)

	g.OnTradeClosed(loss(301))
	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltDailyLossLimit, reason)
}

func TestDailyLossLimit_ClearsNextDay(t *testing.T) {
	g := newTestGovernor(t)

	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }
	g.lastResetDate = g.utcDate(base)

	g.OnTradeClosed(win(1))
	g.OnTradeClosed(loss(400))

	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltDailyLossLimit, reason)

	g.now = func() time.Time { return base.Add(24 * time.Hour) }
	ok, _ = g.CanOpenNewPosition(0)
	assert.True(t, ok)

	// Cumulative statistics survive the reset
	status := g.GetStatus()
	assert.Equal(t, 2, status.TotalTrades)
	assert.Equal(t, 1, status.WinningTrades)
}

func TestCapitalProtection_Latches(t *testing.T) {
	g := newTestGovernor(t)

	g.ObserveBalance(9400)
	ok, _ := g.CanOpenNewPosition(0)
	assert.True(t, ok)

	g.ObserveBalance(9300)
	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltCapitalProtection, reason)

	// Recovery above the floor does not release the latch
	g.ObserveBalance(9800)
	ok, reason = g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltCapitalProtection, reason)
}

func TestMaxConcurrentPositions(t *testing.T) {
	g := newTestGovernor(t)

	ok, _ := g.CanOpenNewPosition(2)
	assert.True(t, ok)

	ok, reason := g.CanOpenNewPosition(3)
	assert.False(t, ok)
	assert.Equal(t, HaltMaxPositions, reason)
}

func TestHaltPriority_CapitalProtectionDominates(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(loss(400))
	g.OnTradeClosed(loss(10))
	g.OnTradeClosed(loss(10))
	g.ObserveBalance(9000)

	_, reason := g.CanOpenNewPosition(3)
	assert.Equal(t, HaltCapitalProtection, reason)
}

func TestTradeStats_KellyInputs(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(win(30))
	g.OnTradeClosed(win(10))
	g.OnTradeClosed(loss(10))
	g.OnTradeClosed(win(20))

	stats := g.TradeStats()
	assert.Equal(t, 4, stats.TotalTrades)
	assert.InDelta(t, 0.75, stats.WinRate, 1e-9)
	// avg win 20, avg loss 10
	assert.InDelta(t, 2.0, stats.AvgWinLossRatio, 1e-9)
	assert.Zero(t, stats.ConsecutiveLosses)
}

func TestTradingStats_StreakView(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(win(10))
	g.OnTradeClosed(win(10))
	stats := g.TradingStats()
	assert.Equal(t, 2, stats.StreakCount)

	g.OnTradeClosed(loss(5))
	stats = g.TradingStats()
	assert.Equal(t, 1, stats.StreakCount)
}

func TestBreakEven_CountsAsLossForStreakOnly(t *testing.T) {
	g := newTestGovernor(t)

	g.OnTradeClosed(&position.TradeRecord{PnL: 0})
	g.OnTradeClosed(&position.TradeRecord{PnL: 0})
	g.OnTradeClosed(&position.TradeRecord{PnL: 0})

	ok, reason := g.CanOpenNewPosition(0)
	assert.False(t, ok)
	assert.Equal(t, HaltConsecutiveLosses, reason)

	// No loss amounts accumulated, so the win/loss ratio stays undefined
	assert.Zero(t, g.TradeStats().AvgWinLossRatio)
}

func TestRestore_PreservesRatioAndStreak(t *testing.T) {
	g := newTestGovernor(t)

	g.Restore(Status{
		DailyPnL:          -50,
		DayStartBalance:   9500,
		ConsecutiveLosses: 2,
		TotalTrades:       40,
		WinningTrades:     24,
		AvgWinLossRatio:   1.8,
		LastResetDate:     g.utcDate(g.now()),
	})

	stats := g.TradeStats()
	assert.Equal(t, 40, stats.TotalTrades)
	assert.InDelta(t, 0.6, stats.WinRate, 1e-9)
	assert.InDelta(t, 1.8, stats.AvgWinLossRatio, 1e-9)
	assert.Equal(t, 2, stats.ConsecutiveLosses)

	ok, _ := g.CanOpenNewPosition(0)
	assert.True(t, ok)
}
