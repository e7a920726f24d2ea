package bybit

import (
	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// demoBaseURL is the paper-trading environment. The upstream client only
// ships testnet and mainnet constants.
const demoBaseURL = "https://api-demo.bybit.com"

// Client wraps the upstream Bybit HTTP client together with the environment
// it was built for
type Client struct {
	httpClient *bybit_api.Client
	testnet    bool
	demo       bool
}

// Config selects the credentials and the target environment
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool
}

// NewClient builds a client against demo, testnet, or mainnet
func NewClient(cfg Config) *Client {
	baseURL := bybit_api.MAINNET
	switch {
	case cfg.Demo:
		baseURL = demoBaseURL
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	}

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		testnet:    cfg.Testnet,
		demo:       cfg.Demo,
	}
}

// GetEnvironment names the connected environment
func (c *Client) GetEnvironment() string {
	switch {
	case c.demo:
		return "demo"
	case c.testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}
