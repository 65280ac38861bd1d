package spot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spot-trader/pkg/exchanges/common"
)

// Config holds Binance credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client is a Binance spot trading client implementing common.Gateway.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
}

func New(cfg Config) *Client {
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	client := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	client.timeSync = common.NewTimeSync(client.GetServerTime)
	// 1200 weight/min for spot; bucket paced well under that.
	client.rateLimiter = common.NewRateLimiter(10, 1200, time.Minute)
	return client
}

// StartTimeSync begins periodic clock synchronization.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, errors.New("binance: API key/secret required")
	}

	ordType := req.Type
	if ordType == "" {
		ordType = common.OrderTypeLimit
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", string(ordType))
	params.Set("quantity", formatFloat(req.Qty))
	// FULL response carries fills so we can price market orders.
	params.Set("newOrderRespType", "FULL")

	if ordType == common.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", string(toBinanceTIF(req.TimeInForce)))
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	c.stamp(params)

	body, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/api/v3/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}

	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientID:        resp.ClientOrderID,
		Status:          mapStatus(resp.Status),
		ExecutedQty:     parseFloat(resp.ExecutedQty),
		AvgPrice:        resp.avgFillPrice(),
	}, nil
}

// QueryOrder fetches the current state of an order.
func (c *Client) QueryOrder(ctx context.Context, symbol, exchangeOrderID string) (common.OrderState, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderState{}, errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)
	c.stamp(params)

	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/api/v3/order", params)
	if err != nil {
		return common.OrderState{}, err
	}

	var ord struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		OrigQty     string `json:"origQty"`
		ExecutedQty string `json:"executedQty"`
		CumQuote    string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &ord); err != nil {
		return common.OrderState{}, fmt.Errorf("decode order: %w", err)
	}

	state := common.OrderState{
		ExchangeOrderID: strconv.FormatInt(ord.OrderID, 10),
		Status:          mapStatus(ord.Status),
		OrigQty:         parseFloat(ord.OrigQty),
		ExecutedQty:     parseFloat(ord.ExecutedQty),
	}
	if state.ExecutedQty > 0 {
		state.AvgPrice = parseFloat(ord.CumQuote) / state.ExecutedQty
	}
	return state, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if exchangeOrderID != "" {
		params.Set("orderId", exchangeOrderID)
	}
	c.stamp(params)

	_, err := c.doSigned(ctx, http.MethodDelete, c.baseURL+"/api/v3/order", params)
	return err
}

// CancelAllOpenOrders cancels all open orders for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	c.stamp(params)

	_, err := c.doSigned(ctx, http.MethodDelete, c.baseURL+"/api/v3/openOrders", params)
	return err
}

// GetTicker returns the best bid/ask for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (common.Ticker, error) {
	body, err := c.doPublic(ctx, "/api/v3/ticker/bookTicker", url.Values{"symbol": []string{symbol}})
	if err != nil {
		return common.Ticker{}, err
	}
	var resp struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.Ticker{}, fmt.Errorf("decode book ticker: %w", err)
	}
	bid := parseFloat(resp.BidPrice)
	ask := parseFloat(resp.AskPrice)
	return common.Ticker{
		Symbol:    resp.Symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      (bid + ask) / 2,
		Timestamp: time.Now(),
	}, nil
}

// GetOrderBook returns a depth snapshot for a symbol.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (common.OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depth))
	body, err := c.doPublic(ctx, "/api/v3/depth", params)
	if err != nil {
		return common.OrderBook{}, err
	}
	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderBook{}, fmt.Errorf("decode depth: %w", err)
	}
	ob := common.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for _, lv := range resp.Bids {
		if len(lv) >= 2 {
			ob.Bids = append(ob.Bids, common.BookLevel{Price: parseFloat(lv[0]), Qty: parseFloat(lv[1])})
		}
	}
	for _, lv := range resp.Asks {
		if len(lv) >= 2 {
			ob.Asks = append(ob.Asks, common.BookLevel{Price: parseFloat(lv[0]), Qty: parseFloat(lv[1])})
		}
	}
	return ob, nil
}

// GetBalances returns non-zero account balances.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	c.stamp(params)

	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/api/v3/account", params)
	if err != nil {
		return nil, err
	}
	var info struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	out := make([]common.Balance, 0, len(info.Balances))
	for _, b := range info.Balances {
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		out = append(out, common.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

// GetServerTime fetches server time (ms).
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	body, err := c.doPublic(ctx, "/api/v3/time", nil)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

// stamp adds the signed-request timestamp and recv window.
func (c *Client) stamp(params url.Values) {
	timestamp := time.Now().UnixMilli()
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		timestamp = c.timeSync.Now()
	}
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
}

// doSigned signs the query and performs the HTTP request.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		// Binance expects signed params in the query string for GET/DELETE.
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	return c.do(req, method+" "+endpoint)
}

// doPublic performs an unsigned request against a public endpoint.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, "GET "+path)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.Transient(op, err)
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, classifyHTTPError(op, res.StatusCode, body)
	}
	return body, nil
}

// classifyHTTPError splits exchange failures into retryable and final.
// 429/418 are rate-limit pressure, 5xx is the venue's problem; other
// 4xx responses are definitive rejections of this request.
func classifyHTTPError(op string, status int, body []byte) error {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)
	reason := apiErr.Msg
	if reason == "" {
		reason = strings.TrimSpace(string(body))
	}

	if status == http.StatusTooManyRequests || status == 418 || status >= 500 {
		return common.Transient(op, fmt.Errorf("status %d: %s", status, reason))
	}
	return common.Reject(op, apiErr.Code, reason)
}

type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	CumQuote      string `json:"cummulativeQuoteQty"`
	Fills         []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

func (r orderResponse) avgFillPrice() float64 {
	executed := parseFloat(r.ExecutedQty)
	if executed <= 0 {
		return 0
	}
	if quote := parseFloat(r.CumQuote); quote > 0 {
		return quote / executed
	}
	var qty, notional float64
	for _, f := range r.Fills {
		q := parseFloat(f.Qty)
		qty += q
		notional += q * parseFloat(f.Price)
	}
	if qty <= 0 {
		return 0
	}
	return notional / qty
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func toBinanceTIF(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
