package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tradeforge/position-engine/internal/config"
	enginerrors "github.com/tradeforge/position-engine/internal/errors"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/market"
	"github.com/tradeforge/position-engine/internal/monitoring"
	"github.com/tradeforge/position-engine/internal/notifications"
	"github.com/tradeforge/position-engine/internal/position"
	"github.com/tradeforge/position-engine/internal/preset"
	"github.com/tradeforge/position-engine/internal/regime"
	"github.com/tradeforge/position-engine/internal/risk"
	"github.com/tradeforge/position-engine/internal/signal"
	"github.com/tradeforge/position-engine/internal/sizing"
	"github.com/tradeforge/position-engine/internal/state"
)

// PriceSource supplies the last traded price used for exit checks
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// ExitEvent summarizes one exit fill executed during a cycle
type ExitEvent struct {
	Symbol string              `json:"symbol"`
	Reason position.ExitReason `json:"reason"`
	PnL    float64             `json:"pnl"`
	Final  bool                `json:"final"`
}

// CycleReport is the outcome of one full decision cycle
type CycleReport struct {
	Cycle            int64         `json:"cycle"`
	Balance          float64       `json:"balance"`
	Regime           regime.Regime `json:"regime"`
	ActivePreset     string        `json:"active_preset"`
	EntriesOpened    []string      `json:"entries_opened,omitempty"`
	ExitsExecuted    []ExitEvent   `json:"exits_executed,omitempty"`
	AveragedDown     []string      `json:"averaged_down,omitempty"`
	EntryHaltReason  string        `json:"entry_halt_reason,omitempty"`
	WatchlistAdded   []string      `json:"watchlist_added,omitempty"`
	WatchlistRemoved []string      `json:"watchlist_removed,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// RiskStatus is the caller-facing risk summary
type RiskStatus struct {
	TotalValue        float64 `json:"total_value"`
	DailyPnL          float64 `json:"daily_pnl"`
	DailyPnLRate      float64 `json:"daily_pnl_rate"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	ActivePositions   int     `json:"active_positions"`
	WinRate           float64 `json:"win_rate"`
	KellyFraction     float64 `json:"kelly_fraction"`
}

// Engine drives the decision cycle: exit checks for all open positions
// first, then preset re-evaluation, then new-entry scanning over the
// watch-list. All position and risk state is owned by the single loop
// goroutine; collaborators are read-only advisors.
type Engine struct {
	cfg *config.EngineConfig
	log *logger.Logger

	data   market.DataProvider
	prices PriceSource
	exec   market.ExecutionProvider

	scorer     *signal.Scorer
	classifier *regime.Classifier
	sizer      *sizing.Calculator
	lifecycle  *position.Manager
	governor   *risk.Governor
	presets    *preset.Manager

	persistence *state.Persistence
	notifier    *notifications.TelegramNotifier
	health      *monitoring.HealthChecker

	cycle         int64
	lastBalance   float64
	lastResetDate time.Time
	currentRegime regime.Regime
	prevWatchlist map[string]bool
	tradeHistory  []position.TradeRecord
}

// Deps bundles the engine's collaborators
type Deps struct {
	Data        market.DataProvider
	Prices      PriceSource
	Exec        market.ExecutionProvider
	Predictor   market.Predictor
	Persistence *state.Persistence
	Notifier    *notifications.TelegramNotifier
	Health      *monitoring.HealthChecker
}

// New wires an engine from configuration and collaborators
func New(cfg *config.EngineConfig, log *logger.Logger, deps Deps) *Engine {
	e := &Engine{
		cfg:           cfg,
		log:           log,
		data:          deps.Data,
		prices:        deps.Prices,
		exec:          deps.Exec,
		scorer:        signal.NewScorer(&cfg.Signal, deps.Data, deps.Predictor),
		classifier:    regime.NewClassifier(&cfg.Regime, deps.Data),
		sizer:         sizing.NewCalculator(&cfg.Sizing),
		governor:      risk.NewGovernor(&cfg.Risk, log),
		presets:       preset.NewManager(cfg, log),
		persistence:   deps.Persistence,
		notifier:      deps.Notifier,
		health:        deps.Health,
		currentRegime: regime.RegimeNeutral,
		prevWatchlist: make(map[string]bool),
	}
	e.lifecycle = position.NewManager(&cfg.Lifecycle, deps.Exec, log)
	e.lifecycle.SetTradeClosedHandler(e.onTradeClosed)
	return e
}

// Start restores persisted state and reconciles it with the live account
func (e *Engine) Start(ctx context.Context) error {
	if e.persistence != nil {
		if err := e.persistence.Initialize(); err != nil {
			return err
		}
		saved, err := e.persistence.Load()
		if err != nil {
			return err
		}
		e.lifecycle.Restore(saved.Positions)
		e.governor.Restore(saved.Risk)
		e.tradeHistory = append(e.tradeHistory, saved.TradeHistory...)
		e.cycle = int64(saved.CyclesCompleted)
		if saved.ActivePreset != "" && saved.ActivePreset != e.presets.Active() {
			if _, err := e.presets.Switch(saved.ActivePreset, true); err != nil {
				e.log.LogWarning("Startup", "Could not restore preset %s: %v", saved.ActivePreset, err)
			}
		}
	}

	balance, err := e.exec.GetAccountBalance(ctx)
	if err != nil {
		e.log.LogWarning("Startup", "Balance unavailable, using configured initial: %v", err)
		balance = e.cfg.Risk.InitialBalance
	}
	e.lastBalance = balance
	e.lastResetDate = time.Now().UTC().Truncate(24 * time.Hour)
	e.governor.SetDayStartBalance(balance)
	e.governor.ObserveBalance(balance)

	if restored := e.lifecycle.OpenCount(); restored > 0 {
		e.log.Info("Reconciled %d open positions against balance $%.2f", restored, balance)
	}
	e.log.Status("Engine started: balance $%.2f, preset %s", balance, e.presets.Active())
	return nil
}

// Run executes the polling loop until the context is cancelled. The current
// cycle always completes and state is persisted before returning.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CycleInterval())
	defer ticker.Stop()

	e.log.Info("Control loop running: %d symbols, %s cycle",
		len(e.cfg.Engine.Watchlist), e.cfg.CycleInterval())

	for {
		report, err := e.OnCycle(ctx, e.cfg.Engine.Watchlist)
		if err != nil {
			e.log.LogError("Cycle", err)
		} else {
			e.logCycle(report)
		}

		select {
		case <-ctx.Done():
			e.log.Status("Shutdown requested, persisting state")
			return e.Shutdown()
		case <-ticker.C:
		}
	}
}

// Shutdown persists the final state. Open positions are left on the
// exchange and restored on the next start.
func (e *Engine) Shutdown() error {
	if e.persistence == nil {
		return nil
	}
	if err := e.persistence.Save(e.buildState()); err != nil {
		return err
	}
	return e.persistence.Close()
}

// OnCycle runs one full decision cycle over the given watch-list. Exits for
// all open positions are evaluated before any new entry.
func (e *Engine) OnCycle(ctx context.Context, watchlist []string) (*CycleReport, error) {
	started := time.Now()
	e.cycle++

	report := &CycleReport{
		Cycle:        e.cycle,
		ActivePreset: e.presets.Active(),
	}
	report.WatchlistAdded, report.WatchlistRemoved = e.diffWatchlist(watchlist)

	balance, err := e.exec.GetAccountBalance(ctx)
	if err != nil {
		balance = e.lastBalance
		e.log.LogWarning("Cycle", "Balance unavailable, using last known: %v", err)
	} else {
		e.lastBalance = balance
		e.observeDayBoundary(balance)
		e.governor.ObserveBalance(balance)
		monitoring.UpdateBalance(balance)
	}
	report.Balance = balance

	snapshot := e.classifyRegime(ctx, watchlist)
	report.Regime = e.currentRegime

	e.checkExits(ctx, report)

	e.evaluatePreset(snapshot, report)
	report.ActivePreset = e.presets.Active()

	e.scanEntries(ctx, watchlist, balance, report)

	e.finishCycle(report, started)
	return report, nil
}

// observeDayBoundary re-bases the daily loss limit on the first cycle of a
// new UTC day
func (e *Engine) observeDayBoundary(balance float64) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if today.After(e.lastResetDate) {
		e.lastResetDate = today
		e.governor.SetDayStartBalance(balance)
	}
}

func (e *Engine) classifyRegime(ctx context.Context, watchlist []string) *regime.Snapshot {
	r, snapshot := e.classifier.Classify(ctx, watchlist, e.governor.TradingStats())
	if r != e.currentRegime {
		e.log.Info("Regime changed: %s -> %s (trend %.2f, volatility %.4f)",
			e.currentRegime, r, snapshot.TrendStrength, snapshot.AvgVolatility)
	}
	e.currentRegime = r
	monitoring.UpdateRegime(int(r))
	return snapshot
}

// checkExits evaluates the transition checks for every open position
func (e *Engine) checkExits(ctx context.Context, report *CycleReport) {
	for _, symbol := range e.lifecycle.OpenSymbols() {
		price, err := e.prices.LatestPrice(ctx, symbol)
		if err != nil {
			e.log.LogWarning("Exits", "Price unavailable for %s, skipping checks", symbol)
			continue
		}

		action, err := e.lifecycle.CheckExits(ctx, symbol, price)
		if err != nil {
			var engErr *enginerrors.EngineError
			if errors.As(err, &engErr) {
				monitoring.RecordError(string(engErr.Category))
			}
			e.log.LogError("Exits", err)
			continue
		}

		switch action.Type {
		case position.ActionExit, position.ActionPartialExit:
			report.ExitsExecuted = append(report.ExitsExecuted, ExitEvent{
				Symbol: symbol,
				Reason: action.Record.Reason,
				PnL:    action.Record.PnL,
				Final:  action.Record.FinalExit,
			})
		case position.ActionAveragedDown:
			report.AveragedDown = append(report.AveragedDown, symbol)
			monitoring.RecordAveragingFill(symbol)
		}
	}
}

// evaluatePreset recommends a preset from the regime snapshot and switches
// when it differs. Governor halt conditions force the switch through the
// hysteresis gate.
func (e *Engine) evaluatePreset(snapshot *regime.Snapshot, report *CycleReport) {
	rec := e.presets.Recommend(snapshot)
	if rec.Preset == e.presets.Active() {
		return
	}

	status := e.governor.GetStatus()
	force := status.BreakerTripped || status.DailyHalted || status.CapitalProtected

	previous := e.presets.Active()
	switched, err := e.presets.Switch(rec.Preset, force)
	if err != nil {
		var engErr *enginerrors.EngineError
		if errors.As(err, &engErr) && engErr.Category == enginerrors.ErrorCategoryPresetSwitch {
			e.log.Debug("Preset switch to %s rejected: %v", rec.Preset, err)
			return
		}
		e.log.LogError("Preset", err)
		return
	}
	if switched {
		monitoring.UpdateActivePreset(e.presets.Active(), presetNames(e.cfg))
		if e.notifier != nil {
			if err := e.notifier.NotifyPresetSwitch(previous, rec.Preset, rec.Score, rec.Confidence); err != nil {
				e.log.LogWarning("Notify", "Preset switch alert failed: %v", err)
			}
		}
	}
}

// scanEntries scores watch-list symbols and opens positions through the
// governor's gate. The gate is re-consulted before every open since each
// fill changes the position count.
func (e *Engine) scanEntries(ctx context.Context, watchlist []string, balance float64, report *CycleReport) {
	threshold := e.classifier.AdjustThreshold(e.presets.EntryThreshold(), e.currentRegime)
	multiplier := e.classifier.SizeMultiplier(e.currentRegime)

	for _, symbol := range watchlist {
		if e.lifecycle.HasPosition(symbol) || e.lifecycle.InCooldown(symbol) {
			continue
		}

		ok, reason := e.governor.CanOpenNewPosition(e.lifecycle.OpenCount())
		if !ok {
			report.EntryHaltReason = string(reason)
			if reason != risk.HaltMaxPositions {
				return
			}
			continue
		}

		snap, err := e.data.GetIndicatorSnapshot(ctx, symbol)
		if err != nil {
			continue
		}

		score, breakdown, err := e.scorer.Score(ctx, symbol, snap)
		if err != nil {
			continue
		}
		if score < threshold {
			continue
		}

		quantity := e.sizer.Size(balance, symbol, snap.Price, snap.Volatility, multiplier, e.governor.TradeStats())
		if quantity <= 0 {
			e.log.Debug("Entry for %s sized to zero (balance $%.2f)", symbol, balance)
			continue
		}

		notional := quantity * snap.Price
		if _, err := e.lifecycle.Open(ctx, symbol, notional, score); err != nil {
			var engErr *enginerrors.EngineError
			if errors.As(err, &engErr) {
				monitoring.RecordError(string(engErr.Category))
			}
			e.log.LogError("Entry", err)
			continue
		}

		report.EntriesOpened = append(report.EntriesOpened, symbol)
		monitoring.RecordEntry(symbol, score)
		e.log.Debug("Entry %s: score %.2f (tech %.2f, mtf %.2f, ml %.2f) >= threshold %.2f",
			symbol, score, breakdown.Technical, breakdown.MTF, breakdown.ML, threshold)
	}
}

func (e *Engine) finishCycle(report *CycleReport, started time.Time) {
	report.Duration = time.Since(started)

	status := e.governor.GetStatus()
	monitoring.RecordCycle(report.Duration.Seconds())
	monitoring.UpdateOpenPositions(e.lifecycle.OpenCount())
	monitoring.UpdateDailyPnL(status.DailyPnL)
	monitoring.UpdateConsecutiveLosses(status.ConsecutiveLosses)
	if e.health != nil {
		e.health.MarkCycle()
	}

	if e.persistence != nil {
		if err := e.persistence.Save(e.buildState()); err != nil {
			e.log.LogWarning("Persistence", "State save failed: %v", err)
		}
	}
}

// onTradeClosed is the single sink for every exit fill
func (e *Engine) onTradeClosed(record *position.TradeRecord) {
	e.governor.OnTradeClosed(record)
	e.tradeHistory = append(e.tradeHistory, *record)
	monitoring.RecordExit(record.Symbol, string(record.Reason))

	if e.persistence != nil {
		e.persistence.AppendTrade(record)
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyTradeClosed(record); err != nil {
			e.log.LogWarning("Notify", "Trade alert failed: %v", err)
		}
		status := e.governor.GetStatus()
		switch {
		case status.CapitalProtected:
			e.notifier.NotifyCapitalProtection(e.lastBalance)
		case status.BreakerTripped && status.ConsecutiveLosses == e.cfg.Risk.ConsecutiveLossLimit:
			e.notifier.NotifyBreakerTripped(status.ConsecutiveLosses)
		case status.DailyHalted:
			e.notifier.NotifyDailyLimit(status.DailyPnL)
		}
	}
}

// RecordTrade feeds an externally observed trade into the statistics, for
// callers reconciling fills that did not pass through this engine
func (e *Engine) RecordTrade(record *position.TradeRecord) {
	e.onTradeClosed(record)
}

// GetRiskStatus returns the caller-facing risk summary
func (e *Engine) GetRiskStatus() RiskStatus {
	status := e.governor.GetStatus()
	stats := e.governor.TradeStats()

	dailyRate := 0.0
	if status.DayStartBalance > 0 {
		dailyRate = status.DailyPnL / status.DayStartBalance
	}

	return RiskStatus{
		TotalValue:        e.lastBalance,
		DailyPnL:          status.DailyPnL,
		DailyPnLRate:      dailyRate,
		ConsecutiveLosses: status.ConsecutiveLosses,
		ActivePositions:   e.lifecycle.OpenCount(),
		WinRate:           status.WinRate,
		KellyFraction:     e.sizer.KellyFraction(stats),
	}
}

// RiskSnapshot returns the full governor status for reporting
func (e *Engine) RiskSnapshot() risk.Status {
	return e.governor.GetStatus()
}

// GetPositions returns snapshots of all open positions
func (e *Engine) GetPositions() []position.Position {
	return e.lifecycle.Snapshots()
}

// TradeHistory returns a copy of the recorded trade history
func (e *Engine) TradeHistory() []position.TradeRecord {
	return append([]position.TradeRecord(nil), e.tradeHistory...)
}

// ActivePreset returns the name of the active preset
func (e *Engine) ActivePreset() string {
	return e.presets.Active()
}

func (e *Engine) buildState() *state.EngineState {
	return &state.EngineState{
		Instance:         e.cfg.Engine.Instance,
		Positions:        e.lifecycle.Snapshots(),
		ActivePreset:     e.presets.Active(),
		LastPresetSwitch: e.presets.LastSwitch(),
		Risk:             e.governor.GetStatus(),
		TradeHistory:     e.tradeHistory,
		CyclesCompleted:  int(e.cycle),
	}
}

// diffWatchlist reports symbols added and removed since the previous cycle
func (e *Engine) diffWatchlist(watchlist []string) (added, removed []string) {
	current := make(map[string]bool, len(watchlist))
	for _, s := range watchlist {
		current[s] = true
		if !e.prevWatchlist[s] {
			added = append(added, s)
		}
	}
	for s := range e.prevWatchlist {
		if !current[s] {
			removed = append(removed, s)
		}
	}
	e.prevWatchlist = current
	return added, removed
}

func (e *Engine) logCycle(report *CycleReport) {
	status := e.governor.GetStatus()
	e.log.LogCycleStatus(int(report.Cycle), report.Balance, e.lifecycle.OpenCount(),
		status.DailyPnL, report.Regime.String(), report.ActivePreset)
}

func presetNames(cfg *config.EngineConfig) []string {
	names := make([]string, 0, len(cfg.Presets.Definitions))
	for name := range cfg.Presets.Definitions {
		names = append(names, name)
	}
	return names
}
