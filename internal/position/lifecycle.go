package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tradeforge/position-engine/internal/config"
	enginerrors "github.com/tradeforge/position-engine/internal/errors"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/market"
)

// ActionType labels what a lifecycle check did to a position this cycle
type ActionType string

const (
	ActionNone         ActionType = "none"
	ActionExit         ActionType = "exit"
	ActionPartialExit  ActionType = "partial_exit"
	ActionAveragedDown ActionType = "averaged_down"
)

// Action reports the single transition (if any) taken for a symbol in one
// cycle. Averaging-down and profit-tier events are mutually exclusive per
// cycle: the first check that fires short-circuits the rest.
type Action struct {
	Type   ActionType
	Reason ExitReason
	Record *TradeRecord
	Fill   *market.Fill
}

// TradeClosedFunc is invoked for every full or partial exit fill
type TradeClosedFunc func(*TradeRecord)

// Manager owns the per-symbol position state machines. All entry, exit,
// averaging-down, and partial-exit transitions run through it; the scorer,
// sizer, and risk governor are read-only advisors consulted by the caller
// before each transition.
//
// The control loop is the only writer. The mutex exists for telemetry
// readers taking snapshots.
type Manager struct {
	cfg  *config.LifecycleConfig
	exec market.ExecutionProvider
	log  *logger.Logger

	mu        sync.RWMutex
	positions map[string]*Position
	cooldowns map[string]time.Time

	onTradeClosed TradeClosedFunc

	now func() time.Time
}

// NewManager creates a new lifecycle manager
func NewManager(cfg *config.LifecycleConfig, exec market.ExecutionProvider, log *logger.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		exec:      exec,
		log:       log,
		positions: make(map[string]*Position),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetTradeClosedHandler registers the callback fed on every exit fill
func (m *Manager) SetTradeClosedHandler(fn TradeClosedFunc) {
	m.onTradeClosed = fn
}

// HasPosition reports whether a position is open for the symbol
func (m *Manager) HasPosition(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[symbol]
	return ok
}

// OpenCount returns the number of open positions
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// OpenSymbols returns the symbols with open positions
func (m *Manager) OpenSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.positions))
	for s := range m.positions {
		symbols = append(symbols, s)
	}
	return symbols
}

// GetPosition returns a snapshot of the position for a symbol
func (m *Manager) GetPosition(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return pos.Snapshot(), true
}

// Snapshots returns copies of all open positions
func (m *Manager) Snapshots() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		snaps = append(snaps, pos.Snapshot())
	}
	return snaps
}

// InCooldown reports whether the symbol is still inside its re-entry
// cooldown window
func (m *Manager) InCooldown(symbol string) bool {
	m.mu.RLock()
	closedAt, ok := m.cooldowns[symbol]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if m.now().Sub(closedAt) >= m.cfg.Cooldown() {
		m.mu.Lock()
		delete(m.cooldowns, symbol)
		m.mu.Unlock()
		return false
	}
	return true
}

// Restore reinstalls persisted positions at startup
func (m *Manager) Restore(positions []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range positions {
		pos := positions[i]
		if pos.Quantity <= 0 {
			continue
		}
		restored := pos
		m.positions[pos.Symbol] = &restored
	}
}

// StopLossPercent returns the effective stop-loss for a position: the base
// percentage widened by a fixed increment per completed averaging fill,
// capped at the configured maximum. Monotonically non-decreasing in the
// fill count.
func (m *Manager) StopLossPercent(pos *Position) float64 {
	pct := m.cfg.StopLossPercent + float64(len(pos.AveragingFills))*m.cfg.StopLossWidenPerFill
	return math.Min(pct, m.cfg.StopLossMaxPercent)
}

// Open enters a new position via a filled buy. A failed fill leaves no
// partial state: the symbol remains empty and the caller retries on a later
// cycle.
func (m *Manager) Open(ctx context.Context, symbol string, notional, score float64) (*Position, error) {
	if m.HasPosition(symbol) {
		return nil, fmt.Errorf("position already open for %s", symbol)
	}

	fill, err := m.exec.ExecuteBuy(ctx, symbol, notional)
	if err != nil {
		return nil, enginerrors.NewExecutionFailure("lifecycle", "entry buy", err)
	}

	pos := newPosition(symbol, fill.Price, fill.Quantity, fill.Fee, score, m.now())

	m.mu.Lock()
	m.positions[symbol] = pos
	m.mu.Unlock()

	m.log.LogEntry(symbol, fill.Price, fill.Quantity, fill.Notional(), score)

	return pos, nil
}

// CheckExits runs the per-cycle transition checks for one open position in
// priority order: stop-loss, trailing stop, take-profit, partial-exit
// ladder, averaging-down. The first check that fires ends the pass for this
// symbol. Returns ActionNone when nothing fired.
func (m *Manager) CheckExits(ctx context.Context, symbol string, price float64) (*Action, error) {
	// The peak update and the trigger evaluation happen under the write lock
	// so snapshot readers never observe a half-applied peak
	m.mu.Lock()
	pos, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return &Action{Type: ActionNone}, nil
	}

	pos.ObservePrice(price)

	rate := pos.UnrealizedRate(price)
	held := pos.HoldDuration(m.now())
	stop := m.StopLossPercent(pos)
	trailDist, trailActive := m.trailingDistance(pos.PeakRate())
	pullback := 0.0
	if pos.HighestPrice > 0 {
		pullback = (pos.HighestPrice - price) / pos.HighestPrice
	}
	var partialTier config.PartialExitTier
	hasPartialTier := pos.PartialExitsDone < len(m.cfg.PartialExitTiers)
	if hasPartialTier {
		partialTier = m.cfg.PartialExitTiers[pos.PartialExitsDone]
	}
	averaging := m.shouldAverageDown(pos, price)
	m.mu.Unlock()

	// Stop-loss is a safety trigger: it bypasses min-hold-time and always
	// executes when hit
	if rate <= -stop {
		return m.closeFull(ctx, pos, price, ExitStopLoss)
	}

	// Trailing stop: inactive until peak profit clears the lowest activation
	// tier; tighter trails as profit grows. Also bypasses min-hold-time.
	if trailActive && pullback >= trailDist {
		return m.closeFull(ctx, pos, price, ExitTrailingStop)
	}

	// Take-profit honors the minimum hold time: it is a target, not a
	// safety trigger
	if rate >= m.cfg.TakeProfitPercent && held >= m.cfg.MinHoldTime() {
		return m.closeFull(ctx, pos, price, ExitTakeProfit)
	}

	// Partial-exit ladder
	if hasPartialTier && rate >= partialTier.ProfitRate {
		return m.partialExit(ctx, pos, price, partialTier.ExitFraction)
	}

	// Averaging-down, mutually exclusive with the profit-tier checks above
	if averaging {
		return m.averageDown(ctx, pos)
	}

	return &Action{Type: ActionNone}, nil
}

// trailingDistance returns the trail distance of the highest activated tier.
// The bool is false while peak profit is below the minimum activation rate.
func (m *Manager) trailingDistance(peakRate float64) (float64, bool) {
	dist := 0.0
	active := false
	for _, tier := range m.cfg.TrailingTiers {
		if peakRate >= tier.ActivationRate {
			dist = tier.TrailDistance
			active = true
		}
	}
	return dist, active
}

// shouldAverageDown evaluates the averaging-down gate: trigger loss from the
// latest fill, fill-count cap, and the hard total-loss floor
func (m *Manager) shouldAverageDown(pos *Position, price float64) bool {
	if len(pos.AveragingFills) >= m.cfg.Averaging.MaxFills {
		return false
	}
	if pos.RateFromLastFill(price) > -m.cfg.Averaging.TriggerLossRate {
		return false
	}
	// Past the hard floor the position is left for the stop-loss; adding
	// exposure there only deepens the drawdown
	return pos.UnrealizedRate(price) > m.cfg.Averaging.HardFloorRate
}

// averageDown issues the additional buy and folds the fill into the
// position. A failed fill leaves the position unchanged.
func (m *Manager) averageDown(ctx context.Context, pos *Position) (*Action, error) {
	notional := pos.OriginalNotional * m.cfg.Averaging.SizeFactor

	fill, err := m.exec.ExecuteBuy(ctx, pos.Symbol, notional)
	if err != nil {
		return &Action{Type: ActionNone}, enginerrors.NewExecutionFailure("lifecycle", "averaging buy", err)
	}

	m.mu.Lock()
	pos.ApplyAveragingFill(fill.Price, fill.Quantity, fill.Fee, m.now())
	m.mu.Unlock()

	m.log.Trade("Averaged down %s: fill %d at $%.4f, new avg entry $%.4f, stop widened to %.2f%%",
		pos.Symbol, len(pos.AveragingFills), fill.Price, pos.EntryPrice, m.StopLossPercent(pos)*100)

	return &Action{Type: ActionAveragedDown, Fill: fill}, nil
}

// partialExit sells a fraction of the remaining quantity and keeps the
// position open with unchanged entry price, unless the fraction liquidates
func (m *Manager) partialExit(ctx context.Context, pos *Position, price, fraction float64) (*Action, error) {
	quantity := pos.Quantity * fraction
	if fraction >= 1.0 {
		quantity = pos.Quantity
	}

	fill, err := m.exec.ExecuteSell(ctx, pos.Symbol, quantity)
	if err != nil {
		return &Action{Type: ActionNone}, enginerrors.NewExecutionFailure("lifecycle", "partial exit sell", err)
	}

	m.mu.Lock()
	pos.PartialExitsDone++
	closed := pos.Reduce(fill.Quantity, fill.Fee)
	record := m.makeRecord(pos, fill, ExitPartialTier, closed)
	if closed {
		delete(m.positions, pos.Symbol)
		m.cooldowns[pos.Symbol] = m.now()
	}
	m.mu.Unlock()

	m.log.LogExit(pos.Symbol, string(ExitPartialTier), fill.Price, fill.Quantity, record.PnL, record.PnLRate)
	m.emitTradeClosed(record)

	actionType := ActionPartialExit
	if closed {
		actionType = ActionExit
	}
	return &Action{Type: actionType, Reason: ExitPartialTier, Record: record, Fill: fill}, nil
}

// closeFull sells the entire remaining quantity. A failed fill leaves the
// position unchanged so the next cycle retries the same exit check.
func (m *Manager) closeFull(ctx context.Context, pos *Position, price float64, reason ExitReason) (*Action, error) {
	fill, err := m.exec.ExecuteSell(ctx, pos.Symbol, pos.Quantity)
	if err != nil {
		return &Action{Type: ActionNone}, enginerrors.NewExecutionFailure("lifecycle", "exit sell", err)
	}

	m.mu.Lock()
	pos.Reduce(fill.Quantity, fill.Fee)
	closed := pos.Quantity == 0
	record := m.makeRecord(pos, fill, reason, closed)
	if closed {
		delete(m.positions, pos.Symbol)
		m.cooldowns[pos.Symbol] = m.now()
	}
	m.mu.Unlock()

	m.log.LogExit(pos.Symbol, string(reason), fill.Price, fill.Quantity, record.PnL, record.PnLRate)
	m.emitTradeClosed(record)

	return &Action{Type: ActionExit, Reason: reason, Record: record, Fill: fill}, nil
}

// makeRecord builds the immutable trade record for an exit fill. Must be
// called with the mutex held.
func (m *Manager) makeRecord(pos *Position, fill *market.Fill, reason ExitReason, final bool) *TradeRecord {
	pnlRate := 0.0
	if pos.EntryPrice > 0 {
		pnlRate = (fill.Price - pos.EntryPrice) / pos.EntryPrice
	}
	return &TradeRecord{
		Symbol:       pos.Symbol,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    fill.Price,
		Quantity:     fill.Quantity,
		PnL:          (fill.Price-pos.EntryPrice)*fill.Quantity - fill.Fee,
		PnLRate:      pnlRate,
		Fee:          fill.Fee,
		HoldDuration: pos.HoldDuration(m.now()),
		Reason:       reason,
		ClosedAt:     m.now(),
		FinalExit:    final,
	}
}

func (m *Manager) emitTradeClosed(record *TradeRecord) {
	if m.onTradeClosed != nil {
		m.onTradeClosed(record)
	}
}
