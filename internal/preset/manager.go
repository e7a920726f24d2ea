package preset

import (
	"math"
	"sync"
	"time"

	"github.com/tradeforge/position-engine/internal/config"
	enginerrors "github.com/tradeforge/position-engine/internal/errors"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/regime"
)

// Preset names. Exactly one is active at any time.
const (
	Conservative = "conservative"
	Balanced     = "balanced"
	Aggressive   = "aggressive"
)

// Macro scoring bands. Volatility is the aggregate ATR-derived figure from
// the regime snapshot.
const (
	highVolatility = 0.04
	lowVolatility  = 0.02

	strongTrend = 0.7
	weakTrend   = 0.3

	activeVolume = 0.6

	highWinRate = 0.65
	lowWinRate  = 0.50

	streakSignificance = 3

	// Score magnitudes at or beyond which confidence saturates
	confidenceSpan = 5.0

	// Total score mapping to the outer presets
	aggressiveScore   = 3.0
	conservativeScore = -3.0
)

// Recommendation is the output of one macro scoring pass
type Recommendation struct {
	Preset     string    `json:"preset"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Manager scores macro conditions and trailing performance into a preset
// recommendation and applies switches with hysteresis. Switching rewrites
// the entry threshold, the base stop-loss, and the position-size cap in the
// shared configuration; the control loop is the only caller, so consumers
// observe a switch atomically between cycles.
type Manager struct {
	cfg *config.EngineConfig
	log *logger.Logger

	mu         sync.RWMutex
	active     string
	lastSwitch time.Time

	now func() time.Time
}

// NewManager creates a preset manager with the configured startup preset
// active. The startup preset's parameters are applied immediately.
func NewManager(cfg *config.EngineConfig, log *logger.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		log:    log,
		active: cfg.Presets.Active,
		now:    time.Now,
	}
	m.apply(cfg.Presets.Definitions[m.active])
	return m
}

// Active returns the name of the active preset
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// ActiveDefinition returns the active preset's parameter bundle
func (m *Manager) ActiveDefinition() config.PresetDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Presets.Definitions[m.active]
}

// LastSwitch returns when the preset last changed, zero if never
func (m *Manager) LastSwitch() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSwitch
}

// Recommend scores the macro snapshot and trailing performance into a
// preset. Signed deltas accumulate from zero; strongly positive conditions
// map to aggressive, strongly negative to conservative, the middle band to
// balanced.
func (m *Manager) Recommend(snap *regime.Snapshot) Recommendation {
	score := 0.0

	switch {
	case snap.AvgVolatility > highVolatility:
		score -= 2
	case snap.AvgVolatility > 0 && snap.AvgVolatility < lowVolatility:
		score += 1
	}

	switch {
	case snap.TrendStrength > strongTrend:
		score += 2
	case snap.TrendStrength < weakTrend:
		score -= 1
	}

	if snap.VolumeTrend > activeVolume {
		score += 1
	}

	switch {
	case snap.WinRate >= highWinRate:
		score += 2
	case snap.WinRate <= lowWinRate:
		score -= 2
	}

	if snap.StreakCount >= streakSignificance {
		switch snap.StreakType {
		case regime.StreakLosses:
			score -= 3
		case regime.StreakWins:
			score += 2
		}
	}

	name := Balanced
	switch {
	case score >= aggressiveScore:
		name = Aggressive
	case score <= conservativeScore:
		name = Conservative
	}

	return Recommendation{
		Preset:     name,
		Score:      score,
		Confidence: math.Min(math.Abs(score)/confidenceSpan, 1.0),
		Timestamp:  m.now(),
	}
}

// Switch activates the named preset. Unforced switches are rejected while
// the minimum interval since the last switch has not elapsed; forced
// switches bypass the gate. Switching to the already-active preset is a
// no-op that does not consume the interval.
func (m *Manager) Switch(name string, force bool) (bool, error) {
	def, ok := m.cfg.Presets.Definitions[name]
	if !ok {
		return false, enginerrors.NewConfigurationError("preset", "unknown preset "+name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == m.active {
		return false, nil
	}

	if !force && !m.lastSwitch.IsZero() {
		elapsed := m.now().Sub(m.lastSwitch)
		if elapsed < m.cfg.Presets.MinSwitchInterval() {
			return false, enginerrors.NewPresetSwitchRejected("minimum switch interval not elapsed")
		}
	}

	previous := m.active
	m.active = name
	m.lastSwitch = m.now()
	m.apply(def)

	m.log.Info("Preset switched: %s -> %s (forced=%v, threshold=%.1f, stop=%.2f%%, cap=%.0f%%)",
		previous, name, force, def.EntryThreshold, def.StopLossPercent*100, def.MaxPositionFraction*100)

	return true, nil
}

// apply rewrites the preset-controlled parameters in the shared config.
// Must be called with the mutex held (or from the constructor).
func (m *Manager) apply(def config.PresetDefinition) {
	m.cfg.Lifecycle.StopLossPercent = def.StopLossPercent
	m.cfg.Sizing.MaxPositionFraction = def.MaxPositionFraction
}

// EntryThreshold returns the active preset's minimum entry score before
// regime adjustment
func (m *Manager) EntryThreshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Presets.Definitions[m.active].EntryThreshold
}
