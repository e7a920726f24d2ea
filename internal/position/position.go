package position

import (
	"time"
)

// AveragingFill records one averaging-down buy for audit and for
// average-price recomputation
type AveragingFill struct {
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Time     time.Time `json:"time"`
}

// Position is the live state of one open position. It is owned exclusively
// by the lifecycle manager for its symbol: at most one open Position exists
// per symbol, quantity is never negative, and the Position is destroyed
// exactly when quantity reaches zero.
type Position struct {
	Symbol           string          `json:"symbol"`
	EntryPrice       float64         `json:"entry_price"` // Quantity-weighted average across all fills
	Quantity         float64         `json:"quantity"`
	EntryTime        time.Time       `json:"entry_time"`
	HighestPrice     float64         `json:"highest_price"` // Monotonic since entry
	OriginalNotional float64         `json:"original_notional"`
	LastFillPrice    float64         `json:"last_fill_price"` // Entry or latest averaging fill
	AveragingFills   []AveragingFill `json:"averaging_fills,omitempty"`
	PartialExitsDone int             `json:"partial_exits_done"` // Ladder rungs already taken
	TotalFees        float64         `json:"total_fees"`
	EntryScore       float64         `json:"entry_score"`
}

// newPosition creates a Position from an entry fill
func newPosition(symbol string, price, quantity, fee, score float64, at time.Time) *Position {
	return &Position{
		Symbol:           symbol,
		EntryPrice:       price,
		Quantity:         quantity,
		EntryTime:        at,
		HighestPrice:     price,
		OriginalNotional: price * quantity,
		LastFillPrice:    price,
		TotalFees:        fee,
		EntryScore:       score,
	}
}

// ObservePrice updates the running highest price. Highest price only moves up.
func (p *Position) ObservePrice(price float64) {
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
}

// UnrealizedRate returns the profit rate relative to the average entry price
func (p *Position) UnrealizedRate(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// PeakRate returns the profit rate the position reached at its highest price
func (p *Position) PeakRate() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.HighestPrice - p.EntryPrice) / p.EntryPrice
}

// RateFromLastFill returns the profit rate relative to the most recent fill,
// which is the reference for averaging-down triggers
func (p *Position) RateFromLastFill(price float64) float64 {
	if p.LastFillPrice == 0 {
		return 0
	}
	return (price - p.LastFillPrice) / p.LastFillPrice
}

// ApplyAveragingFill folds an averaging buy into the position, recomputing
// the quantity-weighted average entry price used for all subsequent stop and
// target calculations
func (p *Position) ApplyAveragingFill(price, quantity, fee float64, at time.Time) {
	totalCost := p.EntryPrice*p.Quantity + price*quantity
	p.Quantity += quantity
	if p.Quantity > 0 {
		p.EntryPrice = totalCost / p.Quantity
	}
	p.LastFillPrice = price
	p.TotalFees += fee
	p.AveragingFills = append(p.AveragingFills, AveragingFill{
		Price:    price,
		Quantity: quantity,
		Time:     at,
	})
}

// Reduce removes sold quantity after a partial or full exit. Entry price is
// unchanged. Returns true when the position is fully closed.
func (p *Position) Reduce(quantity, fee float64) bool {
	p.Quantity -= quantity
	p.TotalFees += fee
	if p.Quantity < minResidualQuantity {
		p.Quantity = 0
	}
	return p.Quantity == 0
}

// HoldDuration returns how long the position has been open
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// Snapshot returns a copy safe to hand to readers outside the control loop
func (p *Position) Snapshot() Position {
	copied := *p
	copied.AveragingFills = append([]AveragingFill(nil), p.AveragingFills...)
	return copied
}

// minResidualQuantity absorbs float dust after a final ladder exit
const minResidualQuantity = 1e-9

// ExitReason labels why an exit fired
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitPartialTier  ExitReason = "partial_tier"
	ExitManual       ExitReason = "manual"
)

// TradeRecord is the immutable record created on every full or partial exit
// fill. It feeds the risk governor's statistics and the preset manager's
// trailing win-rate tracking.
type TradeRecord struct {
	Symbol       string        `json:"symbol"`
	EntryPrice   float64       `json:"entry_price"`
	ExitPrice    float64       `json:"exit_price"`
	Quantity     float64       `json:"quantity"`
	PnL          float64       `json:"pnl"`
	PnLRate      float64       `json:"pnl_rate"`
	Fee          float64       `json:"fee"`
	HoldDuration time.Duration `json:"hold_duration"`
	Reason       ExitReason    `json:"reason"`
	ClosedAt     time.Time     `json:"closed_at"`
	FinalExit    bool          `json:"final_exit"` // True when the position reached zero quantity
}
