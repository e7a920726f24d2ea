package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Order is a parsed view of an order with its execution totals
type Order struct {
	OrderID      string      `json:"orderId"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side"`
	Status       OrderStatus `json:"orderStatus"`
	Qty          float64     `json:"qty"`
	AvgPrice     float64     `json:"avgPrice"`
	CumExecQty   float64     `json:"cumExecQty"`
	CumExecValue float64     `json:"cumExecValue"`
	CumExecFee   float64     `json:"cumExecFee"`
	CreatedTime  time.Time   `json:"createdTime"`
}

// fillPollAttempts bounds how long we wait for a market order to settle in
// order history before giving up
const fillPollAttempts = 5

// MarketBuyQuote places a market buy spending the given quote-currency
// notional and waits for the fill
func (c *Client) MarketBuyQuote(ctx context.Context, category, symbol string, notional float64) (*Order, error) {
	if notional <= 0 {
		return nil, fmt.Errorf("notional must be positive")
	}

	apiParams := map[string]interface{}{
		"category":  category,
		"symbol":    symbol,
		"side":      string(OrderSideBuy),
		"orderType": "Market",
		"qty":       formatAmount(notional),
	}
	// Spot market buys quote the order size in the quote currency
	if category == "spot" {
		apiParams["marketUnit"] = "quoteCoin"
	}

	return c.placeAndConfirm(ctx, category, symbol, apiParams)
}

// MarketSellBase places a market sell of the given base-currency quantity
// and waits for the fill
func (c *Client) MarketSellBase(ctx context.Context, category, symbol string, quantity float64) (*Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	apiParams := map[string]interface{}{
		"category":  category,
		"symbol":    symbol,
		"side":      string(OrderSideSell),
		"orderType": "Market",
		"qty":       formatAmount(quantity),
	}
	if category == "spot" {
		apiParams["marketUnit"] = "baseCoin"
	}

	return c.placeAndConfirm(ctx, category, symbol, apiParams)
}

func (c *Client) placeAndConfirm(ctx context.Context, category, symbol string, apiParams map[string]interface{}) (*Order, error) {
	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	orderID, err := c.parsePlaceOrderResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	// Market orders settle quickly but history is eventually consistent
	var order *Order
	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		order, err = c.GetOrder(ctx, category, symbol, orderID)
		if err == nil && order.Status == OrderStatusFilled {
			return order, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("order %s placed but fill not confirmed: %w", orderID, err)
	}
	return nil, fmt.Errorf("order %s placed but not filled (status %s)", orderID, order.Status)
}

// GetOrder retrieves one order from order history by ID
func (c *Client) GetOrder(ctx context.Context, category, symbol, orderID string) (*Order, error) {
	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}

	orders, err := c.parseOrdersResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order history response: %w", err)
	}
	for i := range orders {
		if orders[i].OrderID == orderID {
			return &orders[i], nil
		}
	}
	return nil, fmt.Errorf("order with ID %s not found", orderID)
}

// CancelAllOrders cancels all open orders for a symbol
func (c *Client) CancelAllOrders(ctx context.Context, category, symbol string) error {
	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
	}

	_, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelAllOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel all orders: %w", err)
	}
	return nil
}

func (c *Client) parsePlaceOrderResponse(response interface{}) (string, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return "", fmt.Errorf("invalid response type")
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return "", err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderResult struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return "", fmt.Errorf("failed to unmarshal order result: %w", err)
	}
	if orderResult.OrderID == "" {
		return "", fmt.Errorf("order response missing orderId")
	}
	return orderResult.OrderID, nil
}

func (c *Client) parseOrdersResponse(response interface{}) ([]Order, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderListResult struct {
		List []struct {
			OrderID      string `json:"orderId"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			OrderStatus  string `json:"orderStatus"`
			Qty          string `json:"qty"`
			AvgPrice     string `json:"avgPrice"`
			CumExecQty   string `json:"cumExecQty"`
			CumExecValue string `json:"cumExecValue"`
			CumExecFee   string `json:"cumExecFee"`
			CreatedTime  string `json:"createdTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &orderListResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order list: %w", err)
	}

	orders := make([]Order, len(orderListResult.List))
	for i, item := range orderListResult.List {
		orders[i] = Order{
			OrderID:      item.OrderID,
			Symbol:       item.Symbol,
			Side:         OrderSide(item.Side),
			Status:       OrderStatus(item.OrderStatus),
			Qty:          parseFloat64(item.Qty),
			AvgPrice:     parseFloat64(item.AvgPrice),
			CumExecQty:   parseFloat64(item.CumExecQty),
			CumExecValue: parseFloat64(item.CumExecValue),
			CumExecFee:   parseFloat64(item.CumExecFee),
			CreatedTime:  parseTimestamp(item.CreatedTime),
		}
	}
	return orders, nil
}

// formatAmount renders a quantity the way the API expects, without
// scientific notation or trailing zeros
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
