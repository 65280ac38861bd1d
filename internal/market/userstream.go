package market

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"spot-trader/internal/balance"
	"spot-trader/pkg/db"
	exspot "spot-trader/pkg/exchanges/binance/spot"
)

// UserStream mirrors exchange-side executions into the local audit
// trail. The router already records what it believes happened; the
// user data stream records what the exchange says happened, so the
// fills table stays truthful even when a poll misses a partial fill.
type UserStream struct {
	Client  *exspot.Client
	DB      *db.Database
	Balance *balance.Manager // resynced on account updates
	Testnet bool
}

// Start supervises the stream until ctx is cancelled.
func (s *UserStream) Start(ctx context.Context) {
	if s.Client == nil || s.DB == nil {
		log.Println("user stream: client or DB not set, skipping")
		return
	}
	go s.supervise(ctx)
}

func (s *UserStream) supervise(ctx context.Context) {
	backoff := NewBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.run(ctx); err != nil {
			delay := backoff.Next()
			log.Printf("⚠️ user stream down: %v (reconnect in %v)", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		return
	}
}

// run holds one connection open: listen key, dial, keepalive, read
// loop. Returns nil only on ctx cancellation.
func (s *UserStream) run(ctx context.Context) error {
	listenKey, err := s.Client.CreateListenKey(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Client.CloseListenKey(closeCtx, listenKey); err != nil {
			log.Printf("user stream: close listen key: %v", err)
		}
	}()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL(s.Testnet, listenKey), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("✓ user stream connected (testnet=%v)", s.Testnet)

	// Listen keys expire after 60 minutes without a keepalive.
	keepalive := time.NewTicker(30 * time.Minute)
	defer keepalive.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-keepalive.C:
				if err := s.Client.KeepAliveListenKey(ctx, listenKey); err != nil {
					log.Printf("user stream keepalive: %v", err)
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleMessage(ctx, msg)
	}
}

func streamURL(testnet bool, listenKey string) string {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	u := url.URL{Scheme: "wss", Host: host, Path: "/ws/" + listenKey}
	return u.String()
}

func (s *UserStream) handleMessage(ctx context.Context, msg []byte) {
	// The event type field is not always a string, so bind loosely
	// first and ignore anything that does not decode.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		log.Printf("user stream parse: %v", err)
		return
	}
	v, ok := raw["e"]
	if !ok {
		return
	}
	var eventType string
	if err := json.Unmarshal(v, &eventType); err != nil {
		return
	}

	switch eventType {
	case "executionReport":
		s.handleExecutionReport(ctx, msg)
	case "outboundAccountPosition":
		if s.Balance != nil {
			if err := s.Balance.Sync(ctx); err != nil {
				log.Printf("user stream balance sync: %v", err)
			}
		}
	}
}

func (s *UserStream) handleExecutionReport(ctx context.Context, msg []byte) {
	var rep struct {
		Symbol          string `json:"s"`
		Side            string `json:"S"`
		Status          string `json:"X"`
		ExecutionType   string `json:"x"`
		ClientOrderID   string `json:"c"`
		LastQty         string `json:"l"`
		LastPrice       string `json:"L"`
		CumulativeQty   string `json:"z"`
		CumulativeQuote string `json:"Z"`
		Commission      string `json:"n"`
		CommissionAsset string `json:"N"`
	}
	if err := json.Unmarshal(msg, &rep); err != nil {
		log.Printf("user stream execution report parse: %v", err)
		return
	}
	if rep.ExecutionType != "TRADE" {
		return
	}

	cumQty := parseFloat(rep.CumulativeQty)
	avgPrice := parseFloat(rep.LastPrice)
	if cumQty > 0 {
		if quote := parseFloat(rep.CumulativeQuote); quote > 0 {
			avgPrice = quote / cumQty
		}
	}

	if err := s.DB.UpdateOrderFill(ctx, rep.ClientOrderID, cumQty, avgPrice, rep.Status); err != nil {
		log.Printf("user stream order update: %v", err)
	}

	fill := db.Fill{
		ID:        uuid.NewString(),
		OrderID:   rep.ClientOrderID,
		Symbol:    rep.Symbol,
		Side:      rep.Side,
		Price:     parseFloat(rep.LastPrice),
		Qty:       parseFloat(rep.LastQty),
		Fee:       parseFloat(rep.Commission),
		FeeAsset:  rep.CommissionAsset,
		CreatedAt: time.Now(),
	}
	if err := s.DB.InsertFill(ctx, fill); err != nil {
		log.Printf("user stream fill insert: %v", err)
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
