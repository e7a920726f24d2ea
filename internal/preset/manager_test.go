package preset

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/regime"
)

func newTestManager(t *testing.T) (*Manager, *config.EngineConfig) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	lg, err := logger.NewLogger("test")
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })

	cfg := config.DefaultEngineConfig()
	return NewManager(cfg, lg), cfg
}

func TestNewManager_AppliesStartupPreset(t *testing.T) {
	m, cfg := newTestManager(t)

	assert.Equal(t, Balanced, m.Active())
	def := cfg.Presets.Definitions[Balanced]
	assert.InDelta(t, def.StopLossPercent, cfg.Lifecycle.StopLossPercent, 1e-9)
	assert.InDelta(t, def.MaxPositionFraction, cfg.Sizing.MaxPositionFraction, 1e-9)
	assert.InDelta(t, def.EntryThreshold, m.EntryThreshold(), 1e-9)
}

func TestRecommend_Scoring(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		name       string
		snap       regime.Snapshot
		wantPreset string
		wantScore  float64
	}{
		{
			name: "calm trending winning market",
			// +1 low vol, +2 strong trend, +1 volume, +2 win rate = +6
			snap: regime.Snapshot{
				AvgVolatility: 0.015,
				TrendStrength: 0.8,
				VolumeTrend:   0.7,
				WinRate:       0.70,
			},
			wantPreset: Aggressive,
			wantScore:  6,
		},
		{
			name: "volatile weak losing market",
			// -2 high vol, -1 weak trend, -2 win rate, -3 loss streak = -8
			snap: regime.Snapshot{
				AvgVolatility: 0.05,
				TrendStrength: 0.2,
				WinRate:       0.40,
				StreakType:    regime.StreakLosses,
				StreakCount:   3,
			},
			wantPreset: Conservative,
			wantScore:  -8,
		},
		{
			name: "mixed conditions stay balanced",
			// +1 low vol, -1 weak trend = 0
			snap: regime.Snapshot{
				AvgVolatility: 0.015,
				TrendStrength: 0.25,
				WinRate:       0.55,
			},
			wantPreset: Balanced,
			wantScore:  0,
		},
		{
			name: "loss streak drags an otherwise fine market",
			// +2 strong trend, +1 volume, -2 win rate, -3 streak = -2
			snap: regime.Snapshot{
				AvgVolatility: 0.03,
				TrendStrength: 0.75,
				VolumeTrend:   0.65,
				WinRate:       0.45,
				StreakType:    regime.StreakLosses,
				StreakCount:   4,
			},
			wantPreset: Balanced,
			wantScore:  -2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := m.Recommend(&tt.snap)
			assert.Equal(t, tt.wantPreset, rec.Preset)
			assert.InDelta(t, tt.wantScore, rec.Score, 1e-9)
		})
	}
}

func TestRecommend_VolatileLowWinRate(t *testing.T) {
	m, _ := newTestManager(t)

	// -2 high vol, -2 win rate, trend and volume in the neutral bands
	rec := m.Recommend(&regime.Snapshot{
		AvgVolatility: 0.05,
		TrendStrength: 0.5,
		VolumeTrend:   0.5,
		WinRate:       0.45,
	})
	assert.Equal(t, Conservative, rec.Preset)
	assert.InDelta(t, -4.0, rec.Score, 1e-9)
	assert.InDelta(t, 0.8, rec.Confidence, 1e-9)
}

func TestRecommend_ConfidenceSaturates(t *testing.T) {
	m, _ := newTestManager(t)

	rec := m.Recommend(&regime.Snapshot{
		AvgVolatility: 0.05,
		TrendStrength: 0.2,
		WinRate:       0.40,
	})
	// score -5 -> confidence 1.0
	assert.InDelta(t, 1.0, rec.Confidence, 1e-9)

	rec = m.Recommend(&regime.Snapshot{
		AvgVolatility: 0.03,
		TrendStrength: 0.5,
		WinRate:       0.40,
	})
	// score -2 -> confidence 0.4
	assert.InDelta(t, 0.4, rec.Confidence, 1e-9)
}

func TestSwitch_AppliesDefinition(t *testing.T) {
	m, cfg := newTestManager(t)

	switched, err := m.Switch(Conservative, false)
	require.NoError(t, err)
	assert.True(t, switched)
	assert.Equal(t, Conservative, m.Active())

	def := cfg.Presets.Definitions[Conservative]
	assert.InDelta(t, def.StopLossPercent, cfg.Lifecycle.StopLossPercent, 1e-9)
	assert.InDelta(t, def.MaxPositionFraction, cfg.Sizing.MaxPositionFraction, 1e-9)
}

func TestSwitch_HysteresisGate(t *testing.T) {
	m, _ := newTestManager(t)

	base := time.Now()
	m.now = func() time.Time { return base }

	switched, err := m.Switch(Aggressive, false)
	require.NoError(t, err)
	assert.True(t, switched, "first switch is not gated")

	// Too soon for an unforced switch back
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	switched, err = m.Switch(Conservative, false)
	assert.Error(t, err)
	assert.False(t, switched)
	assert.Equal(t, Aggressive, m.Active())

	// After the interval the switch goes through
	m.now = func() time.Time { return base.Add(7 * time.Hour) }
	switched, err = m.Switch(Conservative, false)
	require.NoError(t, err)
	assert.True(t, switched)
}

func TestSwitch_ForceBypassesGate(t *testing.T) {
	m, _ := newTestManager(t)

	base := time.Now()
	m.now = func() time.Time { return base }

	_, err := m.Switch(Aggressive, false)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(time.Minute) }
	switched, err := m.Switch(Conservative, true)
	require.NoError(t, err)
	assert.True(t, switched)
	assert.Equal(t, Conservative, m.Active())
}

func TestSwitch_SameNameIsNoOp(t *testing.T) {
	m, _ := newTestManager(t)

	switched, err := m.Switch(Balanced, false)
	require.NoError(t, err)
	assert.False(t, switched)
	assert.True(t, m.LastSwitch().IsZero(), "no-op must not consume the interval")
}

func TestSwitch_UnknownPreset(t *testing.T) {
	m, _ := newTestManager(t)

	switched, err := m.Switch("reckless", false)
	assert.Error(t, err)
	assert.False(t, switched)
	assert.Equal(t, Balanced, m.Active())
}
