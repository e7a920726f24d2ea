package bybit

import (
	"context"

	"github.com/tradeforge/position-engine/internal/config"
	enginerrors "github.com/tradeforge/position-engine/internal/errors"
	"github.com/tradeforge/position-engine/internal/market"
)

// Adapter exposes the Bybit client through the engine's market interfaces.
// Orders retry on transient API errors; a confirmed fill is translated into
// the engine's fill type.
type Adapter struct {
	client   *Client
	category string
}

// NewAdapter creates an adapter from the exchange configuration
func NewAdapter(cfg config.ExchangeConfig) *Adapter {
	return &Adapter{
		client: NewClient(Config{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Testnet:   cfg.Testnet,
			Demo:      cfg.Demo,
		}),
		category: cfg.Category,
	}
}

// Client exposes the underlying Bybit client
func (a *Adapter) Client() *Client {
	return a.client
}

// Environment describes the connected trading environment
func (a *Adapter) Environment() string {
	return a.client.GetEnvironment()
}

// ExecuteBuy places a market buy for the given quote notional
func (a *Adapter) ExecuteBuy(ctx context.Context, symbol string, notional float64) (*market.Fill, error) {
	var order *Order
	err := a.client.Retry(ctx, func() error {
		var err error
		order, err = a.client.MarketBuyQuote(ctx, a.category, symbol, notional)
		return err
	})
	if err != nil {
		return nil, enginerrors.NewExecutionFailure("bybit", "market buy", err)
	}
	return a.toFill(symbol, order), nil
}

// ExecuteSell places a market sell for the given base quantity
func (a *Adapter) ExecuteSell(ctx context.Context, symbol string, quantity float64) (*market.Fill, error) {
	var order *Order
	err := a.client.Retry(ctx, func() error {
		var err error
		order, err = a.client.MarketSellBase(ctx, a.category, symbol, quantity)
		return err
	})
	if err != nil {
		return nil, enginerrors.NewExecutionFailure("bybit", "market sell", err)
	}
	return a.toFill(symbol, order), nil
}

// GetAccountBalance returns the unified account equity in quote terms
func (a *Adapter) GetAccountBalance(ctx context.Context) (float64, error) {
	var balance *AccountBalance
	err := a.client.Retry(ctx, func() error {
		var err error
		balance, err = a.client.GetAccountBalance(ctx, AccountTypeUnified)
		return err
	})
	if err != nil {
		return 0, enginerrors.NewExecutionFailure("bybit", "account balance", err)
	}
	return balance.TotalEquity, nil
}

// GetKlines fetches candles for the snapshot provider
func (a *Adapter) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]market.Kline, error) {
	klines, err := a.client.GetKlines(ctx, KlineParams{
		Category: a.category,
		Symbol:   symbol,
		Interval: KlineInterval(interval),
		Limit:    limit,
	})
	if err != nil {
		return nil, market.ErrUnavailable
	}

	// Bybit returns newest first; the indicator math wants oldest first
	out := make([]market.Kline, len(klines))
	for i, k := range klines {
		out[len(klines)-1-i] = market.Kline{
			StartTime: k.StartTime,
			Open:      k.OpenPrice,
			High:      k.HighPrice,
			Low:       k.LowPrice,
			Close:     k.ClosePrice,
			Volume:    k.Volume,
		}
	}
	return out, nil
}

// GetLatestPrice fetches the last traded price
func (a *Adapter) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := a.client.GetLatestPrice(ctx, a.category, symbol)
	if err != nil {
		return 0, market.ErrUnavailable
	}
	return price, nil
}

func (a *Adapter) toFill(symbol string, order *Order) *market.Fill {
	price := order.AvgPrice
	if price == 0 && order.CumExecQty > 0 {
		price = order.CumExecValue / order.CumExecQty
	}
	return &market.Fill{
		Symbol:   symbol,
		Price:    price,
		Quantity: order.CumExecQty,
		Fee:      order.CumExecFee,
		OrderID:  order.OrderID,
		Time:     order.CreatedTime,
	}
}
