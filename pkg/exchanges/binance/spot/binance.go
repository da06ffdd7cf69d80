// Package spot wraps the subset of the Binance spot REST API this bridge
// needs: listen-key lifecycle for the user-data stream (C3/C4) and the
// ticker snapshot used to seed the price table (C1/C2). Order placement and
// account trading endpoints are deliberately absent — this bridge never
// trades.
package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iamOgunyinka/binance-monitor/pkg/exchanges/common"
)

// Config holds Binance credentials and connection options.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Client is a minimal Binance spot REST client.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	rateLimiter *common.RateLimiter
}

// New creates a spot client. Weight budget matches Binance's published spot
// limit of 1200/min.
func New(cfg Config) *Client {
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		cfg:         cfg,
		baseURL:     base,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		rateLimiter: common.NewRateLimiter(1200, time.Minute),
	}
}

// TickerPrice mirrors one element of GET /api/v3/ticker/price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrices seeds the known-symbol set before subscribing to the
// mini-ticker stream (§4.2).
func (c *Client) GetTickerPrices(ctx context.Context) ([]TickerPrice, error) {
	endpoint := c.baseURL + "/api/v3/ticker/price"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticker price status %d: %s", res.StatusCode, string(body))
	}

	var prices []TickerPrice
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, fmt.Errorf("decode ticker prices: %w", err)
	}
	return prices, nil
}
