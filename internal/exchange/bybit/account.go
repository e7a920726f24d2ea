package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// AccountType represents different account types in Bybit
type AccountType string

const (
	AccountTypeUnified AccountType = "UNIFIED"
	AccountTypeSpot    AccountType = "SPOT"
)

// Balance represents a coin balance in the account
type Balance struct {
	Coin             string  `json:"coin"`
	WalletBalance    float64 `json:"walletBalance"`
	AvailableToTrade float64 `json:"availableToTrade"`
	UsdValue         float64 `json:"usdValue"`
}

// AccountBalance holds the parsed wallet balance response
type AccountBalance struct {
	AccountType           string    `json:"accountType"`
	TotalEquity           float64   `json:"totalEquity"`
	TotalAvailableBalance float64   `json:"totalAvailableBalance"`
	TotalWalletBalance    float64   `json:"totalWalletBalance"`
	Coins                 []Balance `json:"coins"`
}

// GetAccountBalance retrieves the wallet balance for an account type
func (c *Client) GetAccountBalance(ctx context.Context, accountType AccountType) (*AccountBalance, error) {
	params := map[string]interface{}{
		"accountType": string(accountType),
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	balance, err := c.parseAccountBalanceResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account balance response: %w", err)
	}

	return balance, nil
}

// GetCoinBalance retrieves the balance for a specific coin
func (c *Client) GetCoinBalance(ctx context.Context, accountType AccountType, coin string) (*Balance, error) {
	balance, err := c.GetAccountBalance(ctx, accountType)
	if err != nil {
		return nil, err
	}
	for i := range balance.Coins {
		if balance.Coins[i].Coin == coin {
			return &balance.Coins[i], nil
		}
	}
	return nil, fmt.Errorf("coin %s not found in account", coin)
}

func (c *Client) parseAccountBalanceResponse(response interface{}) (*AccountBalance, error) {
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

	var walletResult struct {
		List []struct {
			AccountType           string `json:"accountType"`
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			Coin                  []struct {
				Coin             string `json:"coin"`
				WalletBalance    string `json:"walletBalance"`
				AvailableToTrade string `json:"availableToTrade"`
				UsdValue         string `json:"usdValue"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}
	if len(walletResult.List) == 0 {
		return nil, fmt.Errorf("no account data found")
	}

	account := walletResult.List[0]
	balance := &AccountBalance{
		AccountType:           account.AccountType,
		TotalEquity:           parseFloat64(account.TotalEquity),
		TotalAvailableBalance: parseFloat64(account.TotalAvailableBalance),
		TotalWalletBalance:    parseFloat64(account.TotalWalletBalance),
		Coins:                 make([]Balance, len(account.Coin)),
	}
	for i, coin := range account.Coin {
		balance.Coins[i] = Balance{
			Coin:             coin.Coin,
			WalletBalance:    parseFloat64(coin.WalletBalance),
			AvailableToTrade: parseFloat64(coin.AvailableToTrade),
			UsdValue:         parseFloat64(coin.UsdValue),
		}
	}

	return balance, nil
}
