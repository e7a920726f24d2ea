package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EngineConfig represents the complete configuration for the trading engine
type EngineConfig struct {
	// Engine loop settings
	Engine EngineSettings `json:"engine"`

	// Signal scoring configuration
	Signal SignalConfig `json:"signal"`

	// Regime classification configuration
	Regime RegimeConfig `json:"regime"`

	// Position sizing configuration
	Sizing SizingConfig `json:"sizing"`

	// Position lifecycle configuration
	Lifecycle LifecycleConfig `json:"lifecycle"`

	// Risk governor configuration
	Risk RiskConfig `json:"risk"`

	// Adaptive preset configuration
	Presets PresetConfig `json:"presets"`

	// Exchange connection configuration
	Exchange ExchangeConfig `json:"exchange"`

	// Monitoring configuration
	Monitoring MonitoringConfig `json:"monitoring"`

	// Notification configuration (optional)
	Notifications *NotificationConfig `json:"notifications,omitempty"`
}

// EngineSettings holds control-loop parameters
type EngineSettings struct {
	Instance         string   `json:"instance"`           // Instance name used for logs and state files
	CycleIntervalSec int      `json:"cycle_interval_sec"` // Polling cycle period (default 60s)
	Watchlist        []string `json:"watchlist"`          // Default watchlist for the scheduler
	StateDir         string   `json:"state_dir"`          // Directory for persisted position state
}

// SignalConfig holds scoring engine configuration
type SignalConfig struct {
	// Ensemble weights, must sum to 1
	TechnicalWeight float64 `json:"technical_weight"` // Default 0.35
	MTFWeight       float64 `json:"mtf_weight"`       // Default 0.35
	MLWeight        float64 `json:"ml_weight"`        // Default 0.30

	// Technical rule-table banding
	RSIRewardLow      float64 `json:"rsi_reward_low"`      // Lower bound of the rewarded RSI band (25)
	RSIRewardHigh     float64 `json:"rsi_reward_high"`     // Upper bound of the rewarded RSI band (45)
	RSIOverbought     float64 `json:"rsi_overbought"`      // Penalized at or above (70)
	VolumeRatioHigh   float64 `json:"volume_ratio_high"`   // Strong volume confirmation (1.5)
	VolumeRatioLow    float64 `json:"volume_ratio_low"`    // Weak volume cutoff (0.8)
	VolatilityIdeal   float64 `json:"volatility_ideal"`    // Upper bound of the rewarded volatility band (0.03)
	VolatilityExtreme float64 `json:"volatility_extreme"`  // Penalized at or above (0.06)
	MACDProximityBand float64 `json:"macd_proximity_band"` // Fraction of price treated as "near signal" (0.001)

	// Multi-timeframe consensus
	TimeframeWeights  map[string]float64 `json:"timeframe_weights"`  // short/medium/long, sum to 1
	StrongConsensus   float64            `json:"strong_consensus"`   // 0.8
	ModerateConsensus float64            `json:"moderate_consensus"` // 0.65
}

// RegimeConfig holds regime classifier configuration
type RegimeConfig struct {
	VolatilityCeiling  float64 `json:"volatility_ceiling"`   // Above this aggregate volatility the regime is bearish (0.045)
	TrendUpThreshold   float64 `json:"trend_up_threshold"`   // Directional consistency above = trending up (0.6)
	TrendDownThreshold float64 `json:"trend_down_threshold"` // Directional consistency below = trending down (0.4)
	SampleSize         int     `json:"sample_size"`          // Max watchlist symbols sampled per classification (10)
	BullishMultiplier  float64 `json:"bullish_multiplier"`   // Position size multiplier in bullish regime (1.2)
	BearishMultiplier  float64 `json:"bearish_multiplier"`   // Position size multiplier in bearish regime (0.7)
	BullishScoreDelta  float64 `json:"bullish_score_delta"`  // Entry threshold adjustment in bullish regime (-0.5)
	BearishScoreDelta  float64 `json:"bearish_score_delta"`  // Entry threshold adjustment in bearish regime (+0.5)
}

// SizingConfig holds Kelly sizing configuration
type SizingConfig struct {
	KellyMultiplier       float64  `json:"kelly_multiplier"`         // Conservative scale on raw Kelly (0.25)
	KellyMin              float64  `json:"kelly_min"`                // Lower clamp on the Kelly fraction (0.01)
	KellyMax              float64  `json:"kelly_max"`                // Upper clamp on the Kelly fraction (0.10)
	FallbackFraction      float64  `json:"fallback_fraction"`        // Used when trade history is insufficient (0.02)
	MinTradesForKelly     int      `json:"min_trades_for_kelly"`     // History required before Kelly applies (10)
	MaxPositionFraction   float64  `json:"max_position_fraction"`    // Hard cap on notional as balance fraction (0.20)
	StableSymbols         []string `json:"stable_symbols"`           // Allow-list exempt from the scan penalty
	ScannedSymbolPenalty  float64  `json:"scanned_symbol_penalty"`   // Multiplier for non-allow-list symbols (0.6)
	TargetVolatility      float64  `json:"target_volatility"`        // Volatility dampener target (0.02)
	LossStreakDampener    float64  `json:"loss_streak_dampener"`     // Per-loss dampening step (0.2)
	ExchangeMinOrderValue float64  `json:"exchange_min_order_value"` // Notional floor below which no trade is placed (10)
}

// TrailingTier defines one step of the tiered trailing stop: at or above the
// activation profit, the trail distance applies
type TrailingTier struct {
	ActivationRate float64 `json:"activation_rate"` // Unrealized profit rate that activates this tier
	TrailDistance  float64 `json:"trail_distance"`  // Allowed pullback from the highest price
}

// PartialExitTier defines one rung of the partial-exit ladder
type PartialExitTier struct {
	ProfitRate   float64 `json:"profit_rate"`   // Unrealized profit rate that triggers the rung
	ExitFraction float64 `json:"exit_fraction"` // Fraction of remaining quantity to sell (1.0 liquidates)
}

// AveragingConfig holds averaging-down parameters
type AveragingConfig struct {
	TriggerLossRate float64 `json:"trigger_loss_rate"` // Loss from the latest fill that triggers averaging (0.012)
	MaxFills        int     `json:"max_fills"`         // Maximum averaging fills per position (2)
	HardFloorRate   float64 `json:"hard_floor_rate"`   // Total unrealized loss beyond which averaging stops (-0.08)
	SizeFactor      float64 `json:"size_factor"`       // Averaging notional as a factor of the original (1.0)
}

// LifecycleConfig holds position lifecycle configuration
type LifecycleConfig struct {
	StopLossPercent      float64           `json:"stop_loss_percent"`        // Base stop-loss below average entry (0.015)
	StopLossWidenPerFill float64           `json:"stop_loss_widen_per_fill"` // Added per completed averaging fill (0.005)
	StopLossMaxPercent   float64           `json:"stop_loss_max_percent"`    // Overall stop-loss cap (0.04)
	TakeProfitPercent    float64           `json:"take_profit_percent"`      // Fixed target above average entry (0.03)
	MinHoldTimeMin       int               `json:"min_hold_time_min"`        // Minimum hold before non-safety exits (30)
	CooldownMin          int               `json:"cooldown_min"`             // Re-entry cooldown after close (60)
	TrailingTiers        []TrailingTier    `json:"trailing_tiers"`
	PartialExitTiers     []PartialExitTier `json:"partial_exit_tiers"`
	Averaging            AveragingConfig   `json:"averaging"`
}

// RiskConfig holds risk governor configuration
type RiskConfig struct {
	InitialBalance         float64 `json:"initial_balance"`          // Balance baseline for loss ratios
	DailyLossLimitRatio    float64 `json:"daily_loss_limit_ratio"`   // Daily loss / initial balance blocking entries (0.03)
	ConsecutiveLossLimit   int     `json:"consecutive_loss_limit"`   // Loss streak blocking entries (3)
	CapitalProtectionRatio float64 `json:"capital_protection_ratio"` // Balance floor as fraction of initial (0.93)
	MaxConcurrentPositions int     `json:"max_concurrent_positions"` // Open position cap (3)
}

// PresetDefinition is one named risk parameter bundle
type PresetDefinition struct {
	EntryThreshold      float64 `json:"entry_threshold"`       // Minimum final score for entry
	StopLossPercent     float64 `json:"stop_loss_percent"`     // Overrides lifecycle stop-loss base
	MaxPositionFraction float64 `json:"max_position_fraction"` // Overrides sizing cap
}

// PresetConfig holds adaptive preset manager configuration
type PresetConfig struct {
	Active              string                      `json:"active"`                 // Preset active at startup (balanced)
	MinSwitchIntervalHr float64                     `json:"min_switch_interval_hr"` // Hours between unforced switches (6)
	Definitions         map[string]PresetDefinition `json:"definitions"`
}

// ExchangeConfig holds exchange connection configuration
type ExchangeConfig struct {
	Name      string `json:"name"`     // Exchange adapter name (bybit)
	Category  string `json:"category"` // Market category (spot, linear)
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
	Testnet   bool   `json:"testnet"`
	Demo      bool   `json:"demo"`
}

// MonitoringConfig holds metrics and health endpoint configuration
type MonitoringConfig struct {
	PrometheusPort int `json:"prometheus_port"` // 0 disables the metrics endpoint
	HealthPort     int `json:"health_port"`     // 0 disables the health endpoint
}

// NotificationConfig holds notification settings
type NotificationConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegram_token,omitempty"`
	TelegramChat  string `json:"telegram_chat,omitempty"`
}

// CycleInterval returns the loop period as a duration
func (c *EngineConfig) CycleInterval() time.Duration {
	return time.Duration(c.Engine.CycleIntervalSec) * time.Second
}

// MinHoldTime returns the minimum hold time as a duration
func (c *LifecycleConfig) MinHoldTime() time.Duration {
	return time.Duration(c.MinHoldTimeMin) * time.Minute
}

// Cooldown returns the re-entry cooldown as a duration
func (c *LifecycleConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMin) * time.Minute
}

// MinSwitchInterval returns the preset switch gate as a duration
func (c *PresetConfig) MinSwitchInterval() time.Duration {
	return time.Duration(c.MinSwitchIntervalHr * float64(time.Hour))
}

// LoadEngineConfig loads configuration from a JSON file
func LoadEngineConfig(configFile string) (*EngineConfig, error) {
	// Bare names resolve against the configs/ directory
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config EngineConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// DefaultEngineConfig returns a fully-populated default configuration
func DefaultEngineConfig() *EngineConfig {
	config := &EngineConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults fills in default values for missing configuration
func (c *EngineConfig) SetDefaults() {
	// Engine defaults
	if c.Engine.Instance == "" {
		c.Engine.Instance = "engine"
	}
	if c.Engine.CycleIntervalSec == 0 {
		c.Engine.CycleIntervalSec = 60
	}
	if c.Engine.StateDir == "" {
		c.Engine.StateDir = "state"
	}

	// Signal defaults
	if c.Signal.TechnicalWeight == 0 && c.Signal.MTFWeight == 0 && c.Signal.MLWeight == 0 {
		c.Signal.TechnicalWeight = 0.35
		c.Signal.MTFWeight = 0.35
		c.Signal.MLWeight = 0.30
	}
	if c.Signal.RSIRewardLow == 0 {
		c.Signal.RSIRewardLow = 25
	}
	if c.Signal.RSIRewardHigh == 0 {
		c.Signal.RSIRewardHigh = 45
	}
	if c.Signal.RSIOverbought == 0 {
		c.Signal.RSIOverbought = 70
	}
	if c.Signal.VolumeRatioHigh == 0 {
		c.Signal.VolumeRatioHigh = 1.5
	}
	if c.Signal.VolumeRatioLow == 0 {
		c.Signal.VolumeRatioLow = 0.8
	}
	if c.Signal.VolatilityIdeal == 0 {
		c.Signal.VolatilityIdeal = 0.03
	}
	if c.Signal.VolatilityExtreme == 0 {
		c.Signal.VolatilityExtreme = 0.06
	}
	if c.Signal.MACDProximityBand == 0 {
		c.Signal.MACDProximityBand = 0.001
	}
	if len(c.Signal.TimeframeWeights) == 0 {
		c.Signal.TimeframeWeights = map[string]float64{
			"short":  0.3,
			"medium": 0.35,
			"long":   0.35,
		}
	}
	if c.Signal.StrongConsensus == 0 {
		c.Signal.StrongConsensus = 0.8
	}
	if c.Signal.ModerateConsensus == 0 {
		c.Signal.ModerateConsensus = 0.65
	}

	// Regime defaults
	if c.Regime.VolatilityCeiling == 0 {
		c.Regime.VolatilityCeiling = 0.045
	}
	if c.Regime.TrendUpThreshold == 0 {
		c.Regime.TrendUpThreshold = 0.6
	}
	if c.Regime.TrendDownThreshold == 0 {
		c.Regime.TrendDownThreshold = 0.4
	}
	if c.Regime.SampleSize == 0 {
		c.Regime.SampleSize = 10
	}
	if c.Regime.BullishMultiplier == 0 {
		c.Regime.BullishMultiplier = 1.2
	}
	if c.Regime.BearishMultiplier == 0 {
		c.Regime.BearishMultiplier = 0.7
	}
	if c.Regime.BullishScoreDelta == 0 {
		c.Regime.BullishScoreDelta = -0.5
	}
	if c.Regime.BearishScoreDelta == 0 {
		c.Regime.BearishScoreDelta = 0.5
	}

	// Sizing defaults
	if c.Sizing.KellyMultiplier == 0 {
		c.Sizing.KellyMultiplier = 0.25
	}
	if c.Sizing.KellyMin == 0 {
		c.Sizing.KellyMin = 0.01
	}
	if c.Sizing.KellyMax == 0 {
		c.Sizing.KellyMax = 0.10
	}
	if c.Sizing.FallbackFraction == 0 {
		c.Sizing.FallbackFraction = 0.02
	}
	if c.Sizing.MinTradesForKelly == 0 {
		c.Sizing.MinTradesForKelly = 10
	}
	if c.Sizing.MaxPositionFraction == 0 {
		c.Sizing.MaxPositionFraction = 0.20
	}
	if c.Sizing.ScannedSymbolPenalty == 0 {
		c.Sizing.ScannedSymbolPenalty = 0.6
	}
	if c.Sizing.TargetVolatility == 0 {
		c.Sizing.TargetVolatility = 0.02
	}
	if c.Sizing.LossStreakDampener == 0 {
		c.Sizing.LossStreakDampener = 0.2
	}
	if c.Sizing.ExchangeMinOrderValue == 0 {
		c.Sizing.ExchangeMinOrderValue = 10.0
	}

	// Lifecycle defaults
	if c.Lifecycle.StopLossPercent == 0 {
		c.Lifecycle.StopLossPercent = 0.015
	}
	if c.Lifecycle.StopLossWidenPerFill == 0 {
		c.Lifecycle.StopLossWidenPerFill = 0.005
	}
	if c.Lifecycle.StopLossMaxPercent == 0 {
		c.Lifecycle.StopLossMaxPercent = 0.04
	}
	if c.Lifecycle.TakeProfitPercent == 0 {
		c.Lifecycle.TakeProfitPercent = 0.03
	}
	if c.Lifecycle.MinHoldTimeMin == 0 {
		c.Lifecycle.MinHoldTimeMin = 30
	}
	if c.Lifecycle.CooldownMin == 0 {
		c.Lifecycle.CooldownMin = 60
	}
	if len(c.Lifecycle.TrailingTiers) == 0 {
		c.Lifecycle.TrailingTiers = []TrailingTier{
			{ActivationRate: 0.01, TrailDistance: 0.008},
			{ActivationRate: 0.02, TrailDistance: 0.006},
			{ActivationRate: 0.04, TrailDistance: 0.004},
		}
	}
	if len(c.Lifecycle.PartialExitTiers) == 0 {
		c.Lifecycle.PartialExitTiers = []PartialExitTier{
			{ProfitRate: 0.015, ExitFraction: 0.3},
			{ProfitRate: 0.025, ExitFraction: 0.4},
			{ProfitRate: 0.04, ExitFraction: 1.0},
		}
	}
	if c.Lifecycle.Averaging.TriggerLossRate == 0 {
		c.Lifecycle.Averaging.TriggerLossRate = 0.012
	}
	if c.Lifecycle.Averaging.MaxFills == 0 {
		c.Lifecycle.Averaging.MaxFills = 2
	}
	if c.Lifecycle.Averaging.HardFloorRate == 0 {
		c.Lifecycle.Averaging.HardFloorRate = -0.08
	}
	if c.Lifecycle.Averaging.SizeFactor == 0 {
		c.Lifecycle.Averaging.SizeFactor = 1.0
	}

	// Risk defaults
	if c.Risk.InitialBalance == 0 {
		c.Risk.InitialBalance = 10000.0
	}
	if c.Risk.DailyLossLimitRatio == 0 {
		c.Risk.DailyLossLimitRatio = 0.03
	}
	if c.Risk.ConsecutiveLossLimit == 0 {
		c.Risk.ConsecutiveLossLimit = 3
	}
	if c.Risk.CapitalProtectionRatio == 0 {
		c.Risk.CapitalProtectionRatio = 0.93
	}
	if c.Risk.MaxConcurrentPositions == 0 {
		c.Risk.MaxConcurrentPositions = 3
	}

	// Preset defaults
	if c.Presets.Active == "" {
		c.Presets.Active = "balanced"
	}
	if c.Presets.MinSwitchIntervalHr == 0 {
		c.Presets.MinSwitchIntervalHr = 6
	}
	if len(c.Presets.Definitions) == 0 {
		c.Presets.Definitions = map[string]PresetDefinition{
			"conservative": {EntryThreshold: 7.5, StopLossPercent: 0.01, MaxPositionFraction: 0.10},
			"balanced":     {EntryThreshold: 6.5, StopLossPercent: 0.015, MaxPositionFraction: 0.20},
			"aggressive":   {EntryThreshold: 5.5, StopLossPercent: 0.02, MaxPositionFraction: 0.30},
		}
	}

	// Exchange defaults
	if c.Exchange.Name == "" {
		c.Exchange.Name = "bybit"
	}
	if c.Exchange.Category == "" {
		c.Exchange.Category = "spot"
	}
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = os.Getenv("EXCHANGE_API_KEY")
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = os.Getenv("EXCHANGE_API_SECRET")
	}
}

// Validate checks configuration consistency. Configuration errors are the
// only fatal startup errors.
func (c *EngineConfig) Validate() error {
	weightSum := c.Signal.TechnicalWeight + c.Signal.MTFWeight + c.Signal.MLWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("signal weights must sum to 1, got %.4f", weightSum)
	}

	tfSum := 0.0
	for _, w := range c.Signal.TimeframeWeights {
		tfSum += w
	}
	if tfSum < 0.999 || tfSum > 1.001 {
		return fmt.Errorf("timeframe weights must sum to 1, got %.4f", tfSum)
	}

	if c.Sizing.KellyMin <= 0 || c.Sizing.KellyMax <= c.Sizing.KellyMin {
		return fmt.Errorf("invalid kelly clamp range [%.4f, %.4f]", c.Sizing.KellyMin, c.Sizing.KellyMax)
	}
	if c.Sizing.MaxPositionFraction <= 0 || c.Sizing.MaxPositionFraction > 1 {
		return fmt.Errorf("max_position_fraction must be in (0, 1], got %.4f", c.Sizing.MaxPositionFraction)
	}

	if c.Lifecycle.StopLossMaxPercent < c.Lifecycle.StopLossPercent {
		return fmt.Errorf("stop_loss_max_percent %.4f below base stop_loss_percent %.4f",
			c.Lifecycle.StopLossMaxPercent, c.Lifecycle.StopLossPercent)
	}
	if c.Lifecycle.Averaging.HardFloorRate >= 0 {
		return fmt.Errorf("averaging hard_floor_rate must be negative, got %.4f", c.Lifecycle.Averaging.HardFloorRate)
	}

	for i, tier := range c.Lifecycle.PartialExitTiers {
		if tier.ExitFraction <= 0 || tier.ExitFraction > 1 {
			return fmt.Errorf("partial exit tier %d: exit_fraction must be in (0, 1], got %.4f", i, tier.ExitFraction)
		}
		if i > 0 && tier.ProfitRate <= c.Lifecycle.PartialExitTiers[i-1].ProfitRate {
			return fmt.Errorf("partial exit tiers must have increasing profit rates")
		}
	}
	if n := len(c.Lifecycle.PartialExitTiers); n > 0 {
		if c.Lifecycle.PartialExitTiers[n-1].ExitFraction != 1.0 {
			return fmt.Errorf("final partial exit tier must liquidate (exit_fraction 1.0)")
		}
	}

	for i, tier := range c.Lifecycle.TrailingTiers {
		if i > 0 {
			prev := c.Lifecycle.TrailingTiers[i-1]
			if tier.ActivationRate <= prev.ActivationRate {
				return fmt.Errorf("trailing tiers must have increasing activation rates")
			}
			if tier.TrailDistance >= prev.TrailDistance {
				return fmt.Errorf("trailing tiers must have narrowing trail distances")
			}
		}
	}

	if c.Risk.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive")
	}

	if _, ok := c.Presets.Definitions[c.Presets.Active]; !ok {
		return fmt.Errorf("active preset %q has no definition", c.Presets.Active)
	}
	for _, name := range []string{"conservative", "balanced", "aggressive"} {
		if _, ok := c.Presets.Definitions[name]; !ok {
			return fmt.Errorf("preset %q must be defined", name)
		}
	}

	return nil
}
