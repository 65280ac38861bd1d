package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// subscribe dials a stream and pumps raw messages through parse into out.
// The returned stop function is safe to call more than once.
func subscribe[T any](ctx context.Context, c *StreamClient, stream string, parse func([]byte) (T, error)) (<-chan T, func(), error) {
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", stream, err)
	}

	out := make(chan T, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If closed by caller/context, exit quietly.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("ws %s read error: %v", stream, err)
				return
			}

			parsed, err := parse(msg)
			if err != nil {
				log.Printf("ws %s parse error: %v", stream, err)
				continue
			}
			out <- parsed
		}
	}()

	return out, stop, nil
}

// SubscribeTrades subscribes to the public trade stream for a symbol.
func (c *StreamClient) SubscribeTrades(ctx context.Context, symbol string) (<-chan Trade, func(), error) {
	// Binance requires lowercase symbols for websocket streams.
	stream := fmt.Sprintf("%s@trade", strings.ToLower(symbol))
	return subscribe(ctx, c, stream, parseTradeMessage)
}

// SubscribeBookTicker subscribes to best bid/ask updates.
func (c *StreamClient) SubscribeBookTicker(ctx context.Context, symbol string) (<-chan BookTicker, func(), error) {
	stream := fmt.Sprintf("%s@bookTicker", strings.ToLower(symbol))
	return subscribe(ctx, c, stream, parseBookTickerMessage)
}

func parseTradeMessage(msg []byte) (Trade, error) {
	var raw struct {
		Symbol    string      `json:"s"`
		Price     interface{} `json:"p"`
		Qty       interface{} `json:"q"`
		TradeTime interface{} `json:"T"`
		BuyerIsMM bool        `json:"m"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Trade{}, err
	}
	return Trade{
		Symbol:       raw.Symbol,
		Price:        toFloat(raw.Price),
		Qty:          toFloat(raw.Qty),
		Time:         toInt64(raw.TradeTime),
		IsBuyerMaker: raw.BuyerIsMM,
	}, nil
}

func parseBookTickerMessage(msg []byte) (BookTicker, error) {
	var raw struct {
		Symbol string      `json:"s"`
		Bid    interface{} `json:"b"`
		BidQty interface{} `json:"B"`
		Ask    interface{} `json:"a"`
		AskQty interface{} `json:"A"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
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
