package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client wraps public REST access to Binance market data.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a REST client; testnet switches the base URL.
func NewClient(testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKlines fetches recent klines for warmup.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	u := fmt.Sprintf("%s/api/v3/klines?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance klines status %d", res.StatusCode)
	}

	var raw [][]any
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		if len(item) < 7 {
			continue
		}
		klines = append(klines, Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(item[0]),
			Open:      toFloat(item[1]),
			High:      toFloat(item[2]),
			Low:       toFloat(item[3]),
			Close:     toFloat(item[4]),
			Volume:    toFloat(item[5]),
			CloseTime: toInt64(item[6]),
		})
	}
	return klines, nil
}

// GetBookTicker fetches a best bid/ask snapshot over REST. Used as a
// fallback while the stream is reconnecting.
func (c *Client) GetBookTicker(ctx context.Context, symbol string) (BookTicker, error) {
	u := fmt.Sprintf("%s/api/v3/ticker/bookTicker?symbol=%s", c.BaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return BookTicker{}, err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return BookTicker{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return BookTicker{}, fmt.Errorf("binance bookTicker status %d", res.StatusCode)
	}

	var raw struct {
		Symbol string `json:"symbol"`
		Bid    string `json:"bidPrice"`
		BidQty string `json:"bidQty"`
		Ask    string `json:"askPrice"`
		AskQty string `json:"askQty"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return BookTicker{}, err
	}
	return BookTicker{
		Symbol:   raw.Symbol,
		BidPrice: toFloat(raw.Bid),
		BidQty:   toFloat(raw.BidQty),
		AskPrice: toFloat(raw.Ask),
		AskQty:   toFloat(raw.AskQty),
	}, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
