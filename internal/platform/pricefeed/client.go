// Package pricefeed is the REST client for the upstream market data API that
// supplies spot prices for tradable symbols.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// Client queries the price feed REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price feed client.
//
// baseURL is the API root, e.g. "https://prices.example.com/api/v1".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// quoteResponse is the wire format of GET /prices/{symbol}.
type quoteResponse struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
}

// GetPrice returns the current price for a symbol. Any failure to obtain a
// usable quote (transport error, non-200, unknown symbol, non-positive price)
// is reported as a wrapped domain.ErrSymbolUnavailable so callers can treat
// the symbol as transiently unavailable.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("%s/prices/%s", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: build request for %s: %w", symbol, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: %s: %w: %v", symbol, domain.ErrSymbolUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("pricefeed: %s: %w: status %d: %s",
			symbol, domain.ErrSymbolUnavailable, resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, fmt.Errorf("pricefeed: %s: %w: decode: %v", symbol, domain.ErrSymbolUnavailable, err)
	}

	if quote.Price <= 0 {
		return 0, fmt.Errorf("pricefeed: %s: %w: non-positive price %f",
			symbol, domain.ErrSymbolUnavailable, quote.Price)
	}

	return quote.Price, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*Client)(nil)
