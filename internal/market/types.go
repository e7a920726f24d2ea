package market

import "time"

// TrendDirection represents the direction of a detected trend
type TrendDirection int

const (
	TrendDown TrendDirection = iota - 1
	TrendNeutral
	TrendUp
)

func (t TrendDirection) String() string {
	switch t {
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	default:
		return "NEUTRAL"
	}
}

// Timeframe identifies one of the analysis horizons used by the scorer
type Timeframe string

const (
	TimeframeShort  Timeframe = "short"
	TimeframeMedium Timeframe = "medium"
	TimeframeLong   Timeframe = "long"
)

// IndicatorSnapshot holds the precomputed per-symbol features consumed by the
// scoring engine. All fields are required; a provider that cannot produce a
// complete snapshot returns ErrUnavailable instead of a partial struct.
type IndicatorSnapshot struct {
	Symbol      string         `json:"symbol"`
	Price       float64        `json:"price"`
	ShortMA     float64        `json:"short_ma"`
	LongMA      float64        `json:"long_ma"`
	RSI         float64        `json:"rsi"`          // 0-100
	MACD        float64        `json:"macd"`
	MACDSignal  float64        `json:"macd_signal"`
	VolumeRatio float64        `json:"volume_ratio"` // Current volume / average volume
	Volatility  float64        `json:"volatility"`   // ATR normalized by price
	Momentum    float64        `json:"momentum"`     // Rate of change, signed
	Trend       TrendDirection `json:"trend"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TimeframeSnapshot holds the per-timeframe features used for the
// multi-timeframe consensus sub-score
type TimeframeSnapshot struct {
	Timeframe   Timeframe      `json:"timeframe"`
	Trend       TrendDirection `json:"trend"`
	TrendSlope  float64        `json:"trend_slope"`  // Normalized slope strength (0-1)
	Momentum    float64        `json:"momentum"`     // Signed momentum (-1 to 1)
	VolumeRatio float64        `json:"volume_ratio"`
}

// Prediction is the output of the external probabilistic classifier
type Prediction struct {
	BuyProbability float64 `json:"buy_probability"` // 0.0 to 1.0
	Confidence     float64 `json:"confidence"`      // 0.0 to 1.0
}

// Fill describes the executed part of a buy or sell order
type Fill struct {
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Fee      float64   `json:"fee"`
	OrderID  string    `json:"order_id"`
	Time     time.Time `json:"time"`
}

// Notional returns the quote-currency value of the fill
func (f *Fill) Notional() float64 {
	return f.Price * f.Quantity
}
