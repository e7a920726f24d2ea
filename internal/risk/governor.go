package risk

import (
	"math"
	"sync"
	"time"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/position"
	"github.com/tradeforge/position-engine/internal/regime"
	"github.com/tradeforge/position-engine/internal/sizing"
)

// HaltReason labels why the governor is refusing new entries
type HaltReason string

const (
	HaltNone              HaltReason = ""
	HaltDailyLossLimit    HaltReason = "daily loss limit reached"
	HaltConsecutiveLosses HaltReason = "consecutive losses"
	HaltCapitalProtection HaltReason = "capital protection floor breached"
	HaltMaxPositions      HaltReason = "max concurrent positions"
)

// Status is a read-only snapshot of the governor's state for telemetry and
// periodic status logging
type Status struct {
	DailyPnL          float64    `json:"daily_pnl"`
	DailyTrades       int        `json:"daily_trades"`
	DayStartBalance   float64    `json:"day_start_balance"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	ConsecutiveWins   int        `json:"consecutive_wins"`
	TotalTrades       int        `json:"total_trades"`
	WinningTrades     int        `json:"winning_trades"`
	WinRate           float64    `json:"win_rate"`
	AvgWinLossRatio   float64    `json:"avg_win_loss_ratio"`
	DailyHalted       bool       `json:"daily_halted"`
	BreakerTripped    bool       `json:"breaker_tripped"`
	CapitalProtected  bool       `json:"capital_protected"`
	HaltReason        HaltReason `json:"halt_reason,omitempty"`
	LastResetDate     time.Time  `json:"last_reset_date"`
}

// Governor enforces the account-level safety rails: the daily loss limit,
// the consecutive-loss circuit breaker, the capital protection floor, and
// the concurrent position cap. It also maintains the running trade
// statistics consumed by Kelly sizing and the preset manager.
//
// Statistics update in O(1) per closed trade. All methods are safe for
// concurrent use, though the control loop is the only writer in practice.
type Governor struct {
	cfg *config.RiskConfig
	log *logger.Logger

	mu sync.RWMutex

	// Daily tracking, reset at UTC midnight
	dailyPnL        float64
	dailyTrades     int
	dayStartBalance float64
	lastResetDate   time.Time
	dailyHalted     bool

	// Capital protection latches until a restart with a healthier balance
	capitalProtected bool

	// Running trade statistics
	totalTrades       int
	winningTrades     int
	sumWins           float64
	sumLosses         float64
	consecutiveLosses int
	consecutiveWins   int

	now func() time.Time
}

// NewGovernor creates a risk governor. The day-start balance seeds from the
// configured initial balance until the first balance observation.
func NewGovernor(cfg *config.RiskConfig, log *logger.Logger) *Governor {
	g := &Governor{
		cfg:             cfg,
		log:             log,
		dayStartBalance: cfg.InitialBalance,
		now:             time.Now,
	}
	g.lastResetDate = g.utcDate(g.now())
	return g
}

func (g *Governor) utcDate(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// ObserveBalance records the current account balance, latching capital
// protection when it falls to or below the protection floor
func (g *Governor) ObserveBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	floor := g.cfg.InitialBalance * g.cfg.CapitalProtectionRatio
	if !g.capitalProtected && balance <= floor {
		g.capitalProtected = true
		g.log.Error("Capital protection triggered: balance $%.2f at or below floor $%.2f", balance, floor)
	}
}

// CanOpenNewPosition is the entry gate consulted before every new position.
// Returns false with the dominant halt reason; capital protection outranks
// the daily limit, which outranks the breaker, which outranks the position
// cap.
func (g *Governor) CanOpenNewPosition(openPositions int) (bool, HaltReason) {
	g.maybeResetDaily()

	g.mu.RLock()
	defer g.mu.RUnlock()

	switch {
	case g.capitalProtected:
		return false, HaltCapitalProtection
	case g.dailyHalted:
		return false, HaltDailyLossLimit
	case g.breakerActive():
		return false, HaltConsecutiveLosses
	case openPositions >= g.cfg.MaxConcurrentPositions:
		return false, HaltMaxPositions
	}
	return true, HaltNone
}

// CheckDailyLossLimit reports whether the daily loss limit has been reached
// for the current UTC day
func (g *Governor) CheckDailyLossLimit() bool {
	g.maybeResetDaily()

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dailyHalted
}

// breakerActive derives the circuit breaker from the live loss counter, so
// it stays engaged across the daily reset until winning trades bring the
// counter back below the limit. Must be called with the mutex held.
func (g *Governor) breakerActive() bool {
	return g.cfg.ConsecutiveLossLimit > 0 && g.consecutiveLosses >= g.cfg.ConsecutiveLossLimit
}

// OnTradeClosed folds a closed trade into daily PnL, the loss counter, and
// the running Kelly statistics, tripping the daily limit or the breaker
// when their thresholds are crossed. Losing exits increment the loss
// counter and winning exits walk it back down, floored at zero. Break-even
// trades count as losses for the counter but do not skew the win/loss
// averages.
func (g *Governor) OnTradeClosed(record *position.TradeRecord) {
	g.maybeResetDaily()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnL += record.PnL
	g.dailyTrades++
	g.totalTrades++

	if record.PnL > 0 {
		g.winningTrades++
		g.sumWins += record.PnL
		g.consecutiveWins++
		if g.consecutiveLosses > 0 {
			g.consecutiveLosses--
		}
	} else {
		if record.PnL < 0 {
			g.sumLosses += -record.PnL
		}
		g.consecutiveLosses++
		g.consecutiveWins = 0
	}

	if g.breakerActive() && g.consecutiveLosses == g.cfg.ConsecutiveLossLimit {
		g.log.Warning("Circuit breaker tripped: %d consecutive losses", g.consecutiveLosses)
	}

	// The limit is anchored to the configured initial balance so it does not
	// drift as equity re-bases each day
	limit := g.cfg.InitialBalance * g.cfg.DailyLossLimitRatio
	if !g.dailyHalted && g.dailyPnL <= -limit {
		g.dailyHalted = true
		g.log.Warning("Daily loss limit reached: %.2f against limit %.2f", g.dailyPnL, -limit)
	}
}

// maybeResetDaily clears the daily PnL, the daily trade count, and the
// daily halt at the first call after a UTC date change. The loss counter
// and cumulative totals survive the reset; only winning trades walk the
// counter back down (and with it the breaker).
func (g *Governor) maybeResetDaily() {
	today := g.utcDate(g.now())

	g.mu.Lock()
	defer g.mu.Unlock()

	if !today.After(g.lastResetDate) {
		return
	}

	g.lastResetDate = today
	g.dailyPnL = 0
	g.dailyTrades = 0
	g.dailyHalted = false
	g.log.Info("Daily risk counters reset for %s", today.Format("2006-01-02"))
}

// SetDayStartBalance records the balance at the start of the trading day,
// the base for drawdown reporting
func (g *Governor) SetDayStartBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if balance > 0 {
		g.dayStartBalance = balance
	}
}

// TradeStats exports the running statistics in the shape Kelly sizing
// consumes
func (g *Governor) TradeStats() sizing.TradeStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := sizing.TradeStats{
		TotalTrades:       g.totalTrades,
		ConsecutiveLosses: g.consecutiveLosses,
	}
	if g.totalTrades > 0 {
		stats.WinRate = float64(g.winningTrades) / float64(g.totalTrades)
	}

	losingTrades := g.totalTrades - g.winningTrades
	if g.winningTrades > 0 && losingTrades > 0 && g.sumLosses > 0 {
		avgWin := g.sumWins / float64(g.winningTrades)
		avgLoss := g.sumLosses / float64(losingTrades)
		stats.AvgWinLossRatio = avgWin / avgLoss
	}
	return stats
}

// TradingStats exports the streak view consumed by the regime snapshot and
// the preset manager
func (g *Governor) TradingStats() regime.TradingStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := regime.TradingStats{StreakType: regime.StreakNone}
	if g.totalTrades > 0 {
		stats.WinRate = float64(g.winningTrades) / float64(g.totalTrades)
	}
	switch {
	case g.consecutiveLosses > 0:
		stats.StreakType = regime.StreakLosses
		stats.StreakCount = g.consecutiveLosses
	case g.consecutiveWins > 0:
		stats.StreakType = regime.StreakWins
		stats.StreakCount = g.consecutiveWins
	}
	return stats
}

// GetStatus returns a snapshot for status logging and telemetry
func (g *Governor) GetStatus() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	status := Status{
		DailyPnL:          g.dailyPnL,
		DailyTrades:       g.dailyTrades,
		DayStartBalance:   g.dayStartBalance,
		ConsecutiveLosses: g.consecutiveLosses,
		ConsecutiveWins:   g.consecutiveWins,
		TotalTrades:       g.totalTrades,
		WinningTrades:     g.winningTrades,
		DailyHalted:       g.dailyHalted,
		BreakerTripped:    g.breakerActive(),
		CapitalProtected:  g.capitalProtected,
		LastResetDate:     g.lastResetDate,
	}
	if g.totalTrades > 0 {
		status.WinRate = float64(g.winningTrades) / float64(g.totalTrades)
	}
	losingTrades := g.totalTrades - g.winningTrades
	if g.winningTrades > 0 && losingTrades > 0 && g.sumLosses > 0 {
		status.AvgWinLossRatio = (g.sumWins / float64(g.winningTrades)) / (g.sumLosses / float64(losingTrades))
	}
	switch {
	case status.CapitalProtected:
		status.HaltReason = HaltCapitalProtection
	case status.DailyHalted:
		status.HaltReason = HaltDailyLossLimit
	case status.BreakerTripped:
		status.HaltReason = HaltConsecutiveLosses
	}
	return status
}

// DailyDrawdownRatio returns today's realized loss as a fraction of the
// day-start balance, zero when the day is profitable
func (g *Governor) DailyDrawdownRatio() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.dayStartBalance <= 0 || g.dailyPnL >= 0 {
		return 0
	}
	return math.Abs(g.dailyPnL) / g.dayStartBalance
}

// Restore reinstalls persisted governor state at startup
func (g *Governor) Restore(status Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnL = status.DailyPnL
	g.dailyTrades = status.DailyTrades
	if status.DayStartBalance > 0 {
		g.dayStartBalance = status.DayStartBalance
	}
	g.consecutiveLosses = status.ConsecutiveLosses
	g.consecutiveWins = status.ConsecutiveWins
	g.totalTrades = status.TotalTrades
	g.winningTrades = status.WinningTrades
	g.dailyHalted = status.DailyHalted
	g.capitalProtected = status.CapitalProtected
	if !status.LastResetDate.IsZero() {
		g.lastResetDate = status.LastResetDate
	}

	// Win/loss sums are not persisted; rebuild an approximation from the
	// restored ratio so Kelly sizing does not start from zero
	if status.AvgWinLossRatio > 0 && status.WinningTrades > 0 {
		g.sumWins = status.AvgWinLossRatio * float64(status.WinningTrades)
		if losing := status.TotalTrades - status.WinningTrades; losing > 0 {
			g.sumLosses = float64(losing)
		}
	}
}
