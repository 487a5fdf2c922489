// Package binance implements the dedicated Binance integration used as the
// native fallback path when the generic gateway cannot route an order.
// Binance uses concatenated pair naming (BTCUSDT, not BTC/USDT) and separate
// quantity fields for base-amount and quote-notional market orders.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// Client is the REST client for the Binance spot API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a Binance client. baseURL is the API root, e.g.
// "https://api.binance.com".
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PairSymbol translates a bare base asset into Binance's concatenated pair
// convention.
func PairSymbol(symbol, quote string) string {
	return strings.ToUpper(symbol) + strings.ToUpper(quote)
}

// orderResponse is the subset of Binance's order response the router needs.
type orderResponse struct {
	OrderID      int64  `json:"orderId"`
	ExecutedQty  string `json:"executedQty"`
	CumQuoteQty  string `json:"cummulativeQuoteQty"`
	TransactTime int64  `json:"transactTime"`
}

type tickerResponse struct {
	Price string `json:"price"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// CreateOrder places a market order. Sells specify the base quantity,
// buys the quote-currency notional, matching the generic amount convention
// so the router can hand over the same request it gave the gateway.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", PairSymbol(req.Symbol, req.Quote))
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", "MARKET")
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if req.Side == domain.TradeSideSell {
		params.Set("quantity", formatAmount(req.Amount))
	} else {
		params.Set("quoteOrderQty", formatAmount(req.Amount))
	}
	params.Set("signature", c.sign(params.Encode()))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v3/order?"+params.Encode(), nil)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("binance: build order request: %w", err)
	}
	httpReq.Header.Set("X-MBX-APIKEY", c.apiKey)

	var resp orderResponse
	if err := c.do(httpReq, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("binance: create order %s: %w", req.Symbol, err)
	}

	fill := domain.Fill{}
	if resp.OrderID != 0 {
		fill.OrderID = strconv.FormatInt(resp.OrderID, 10)
	}
	executed, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.CumQuoteQty, 64)
	fill.Amount = executed
	if executed > 0 && quote > 0 {
		fill.Price = quote / executed
	}
	if resp.TransactTime > 0 {
		fill.Timestamp = time.UnixMilli(resp.TransactTime).UTC()
	}
	return fill, nil
}

// GetPrice returns the last ticker price for symbol quoted in quote.
func (c *Client) GetPrice(ctx context.Context, symbol, quote string) (float64, error) {
	u := c.baseURL + "/api/v3/ticker/price?symbol=" + PairSymbol(symbol, quote)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("binance: build ticker request: %w", err)
	}

	var resp tickerResponse
	if err := c.do(httpReq, &resp); err != nil {
		return 0, fmt.Errorf("binance: get price %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse price %q: %w", resp.Price, err)
	}
	return price, nil
}

// sign produces the HMAC-SHA256 request signature Binance requires on
// trading endpoints.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(req *http.Request, out any) error {
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
			return fmt.Errorf("status %d (code %d): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
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

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
