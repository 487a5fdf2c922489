// Package gateway implements the REST client for the generic multi-exchange
// trading gateway. The gateway exposes one order-creation and one price-query
// endpoint across all supported exchanges, using BASE/QUOTE pair naming and
// the generic amount convention (base quantity for sells, quote notional for
// buys).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// Client is the REST client for the trading gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client. baseURL is the API root, e.g.
// "https://gateway.example.com/api/v1".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PairSymbol translates a bare base asset into the gateway's pair convention.
func PairSymbol(symbol, quote string) string {
	return strings.ToUpper(symbol) + "/" + strings.ToUpper(quote)
}

// apiError is the gateway's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// orderResponse is the gateway's order-creation response.
type orderResponse struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
}

// priceResponse is the gateway's price-query response.
type priceResponse struct {
	Price float64 `json:"price"`
}

// CreateOrder places a market order on the named exchange through the
// gateway. Exchanges or order types the gateway cannot route surface as
// domain.ErrUnsupported so the caller can try a native fallback.
func (c *Client) CreateOrder(ctx context.Context, exchange string, req domain.OrderRequest) (domain.Fill, error) {
	body := map[string]any{
		"exchange": exchange,
		"symbol":   PairSymbol(req.Symbol, req.Quote),
		"type":     "market",
		"side":     string(req.Side),
		"amount":   req.Amount,
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/order", nil, body, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("gateway: create order %s %s: %w", exchange, req.Symbol, err)
	}

	fill := domain.Fill{
		OrderID: resp.ID,
		Amount:  resp.Amount,
		Price:   resp.Price,
	}
	if resp.Timestamp > 0 {
		fill.Timestamp = time.UnixMilli(resp.Timestamp).UTC()
	}
	return fill, nil
}

// GetPrice returns the current price for symbol quoted in quote currency.
func (c *Client) GetPrice(ctx context.Context, symbol, quote string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", PairSymbol(symbol, quote))

	var resp priceResponse
	if err := c.do(ctx, http.MethodGet, "/price", params, nil, &resp); err != nil {
		return 0, fmt.Errorf("gateway: get price %s: %w", symbol, err)
	}
	return resp.Price, nil
}

// do performs one HTTP round trip and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			if apiErr.Code == "unsupported" {
				return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrUnsupported)
			}
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
